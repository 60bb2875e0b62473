package usage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
)

// anthropicUsageResponse mirrors the OAuth usage endpoint payload: a rolling
// five-hour window and a seven-day window, each with a utilization percentage
// and a reset stamp.
type anthropicUsageResponse struct {
	FiveHour *anthropicUsageWindow `json:"five_hour"`
	SevenDay *anthropicUsageWindow `json:"seven_day"`
}

type anthropicUsageWindow struct {
	Utilization float64 `json:"utilization"`
	ResetsAt    string  `json:"resets_at"`
}

// DecodeAnthropic decodes the Anthropic OAuth usage shape. Missing windows
// are skipped rather than reported as errors.
func DecodeAnthropic(body []byte) ([]Window, error) {
	var response anthropicUsageResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decoding usage response: %w", err)
	}

	var windows []Window
	if response.FiveHour != nil {
		windows = append(windows, Window{
			Label:       "5-hour",
			UsedPercent: response.FiveHour.Utilization,
			ResetsAt:    parseResetStamp(response.FiveHour.ResetsAt),
		})
	}
	if response.SevenDay != nil {
		windows = append(windows, Window{
			Label:       "7-day",
			UsedPercent: response.SevenDay.Utilization,
			ResetsAt:    parseResetStamp(response.SevenDay.ResetsAt),
		})
	}
	if len(windows) == 0 {
		return nil, fmt.Errorf("usage response contained no five_hour or seven_day window")
	}
	return windows, nil
}

// openAIUsageResponse covers the credit-grant shape returned by several
// OpenAI-compatible billing endpoints.
type openAIUsageResponse struct {
	TotalGranted   float64 `json:"total_granted"`
	TotalUsed      float64 `json:"total_used"`
	TotalAvailable float64 `json:"total_available"`

	// Rate-limit style alternative.
	Limit     float64 `json:"limit"`
	Usage     float64 `json:"usage"`
	ResetTime string  `json:"reset_time"`
}

// DecodeOpenAICompatible decodes credit-grant and rate-limit usage shapes
// used by OpenAI-compatible backends.
func DecodeOpenAICompatible(body []byte) ([]Window, error) {
	var response openAIUsageResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decoding usage response: %w", err)
	}

	if response.TotalGranted > 0 {
		return []Window{{
			Label:       "credits",
			UsedPercent: response.TotalUsed / response.TotalGranted * 100,
		}}, nil
	}
	if response.Limit > 0 {
		return []Window{{
			Label:       "rate limit",
			UsedPercent: response.Usage / response.Limit * 100,
			ResetsAt:    parseResetStamp(response.ResetTime),
		}}, nil
	}
	return nil, fmt.Errorf("usage response carried neither credit grants nor a rate limit")
}

// DecodeGeneric scans an arbitrary JSON usage payload for common field-name
// variants: a direct percentage (used_percent, usedPercent, percent_used), a
// used/total pair (used/total, usedTokens/totalTokens), and a reset stamp
// (resets_at, reset_at, resetTime) as either ISO-8601 or epoch. Malformed
// JSON is run through jsonrepair first. When no variant matches, the error
// names the top-level fields seen so the caller can report something useful.
func DecodeGeneric(body []byte) ([]Window, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(body))
		if repairErr != nil {
			return nil, fmt.Errorf("usage response is not JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
			return nil, fmt.Errorf("usage response is not JSON: %w", err)
		}
	}

	window, ok := extractWindow(doc)
	if !ok {
		// Nested one level is common ("usage": {...}, "data": {...}).
		for _, value := range doc {
			if nested, isMap := value.(map[string]any); isMap {
				if window, ok = extractWindow(nested); ok {
					break
				}
			}
		}
	}
	if !ok {
		return nil, fmt.Errorf("no recognizable usage fields among %s", fieldNames(doc))
	}
	return []Window{window}, nil
}

func extractWindow(doc map[string]any) (Window, bool) {
	window := Window{Label: "usage"}

	if percent, ok := numberField(doc, "used_percent", "usedPercent", "percent_used", "percentUsed", "utilization"); ok {
		window.UsedPercent = percent
		window.ResetsAt = extractReset(doc)
		return window, true
	}

	used, usedOK := numberField(doc, "used", "used_tokens", "usedTokens", "usage")
	total, totalOK := numberField(doc, "total", "total_tokens", "totalTokens", "limit", "quota")
	if usedOK && totalOK && total > 0 {
		window.UsedPercent = used / total * 100
		window.ResetsAt = extractReset(doc)
		return window, true
	}
	return Window{}, false
}

func extractReset(doc map[string]any) *int64 {
	for _, name := range []string{"resets_at", "reset_at", "resetTime", "reset_time", "resetsAt"} {
		value, ok := doc[name]
		if !ok {
			continue
		}
		switch typed := value.(type) {
		case string:
			if stamp := parseResetStamp(typed); stamp != nil {
				return stamp
			}
		case float64:
			return epochToMillis(typed)
		}
	}
	return nil
}

func numberField(doc map[string]any, names ...string) (float64, bool) {
	for _, name := range names {
		if value, ok := doc[name].(float64); ok {
			return value, true
		}
	}
	return 0, false
}

func fieldNames(doc map[string]any) string {
	names := make([]string, 0, len(doc))
	for name := range doc {
		names = append(names, name)
	}
	if len(names) == 0 {
		return "(empty object)"
	}
	return strings.Join(names, ", ")
}

// parseResetStamp accepts ISO-8601 timestamps and numeric epoch strings,
// returning epoch milliseconds; nil when the value is empty or unparseable.
func parseResetStamp(value string) *int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		millis := parsed.UnixMilli()
		return &millis
	}
	var epoch float64
	if _, err := fmt.Sscanf(value, "%f", &epoch); err == nil {
		return epochToMillis(epoch)
	}
	return nil
}

// epochToMillis normalizes an epoch number that may be expressed in seconds
// or milliseconds. Anything before the year 2100 in seconds is treated as
// seconds.
func epochToMillis(epoch float64) *int64 {
	const year2100Seconds = 4102444800
	millis := int64(epoch)
	if epoch < year2100Seconds {
		millis = int64(epoch * 1000)
	}
	return &millis
}
