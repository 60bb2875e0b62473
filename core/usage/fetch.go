package usage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/relayai/relay/internal/utils"
	"github.com/relayai/relay/providers/ai"
)

// Decoder turns a raw quota-endpoint body into usage windows.
type Decoder func(body []byte) ([]Window, error)

const maxUsageBodySize = 1 << 20

// anthropicUsageURL is the OAuth usage endpoint; it requires an OAuth access
// token, not an API key.
const anthropicUsageURL = "https://api.anthropic.com/api/oauth/usage"

// NewHTTPFetcher builds a Fetcher that GETs the given URL with the given
// headers and runs the body through decode. Non-2xx statuses are reported
// through the shared HTTP error classifier so auth failures read as such.
func NewHTTPFetcher(client *http.Client, url string, headers map[string]string, decode Decoder) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) ([]Window, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("building usage request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		for name, value := range headers {
			req.Header.Set(name, value)
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, ai.ErrorFromTransport(err)
		}
		defer utils.CloseWithLog(resp.Body)

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxUsageBodySize))
		if err != nil {
			return nil, fmt.Errorf("reading usage response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, ai.ErrorFromStatus(resp, utils.TruncateString(string(body), 200))
		}
		return decode(body)
	}
}

// FetcherFor builds the usage fetcher for a provider snapshot, choosing the
// endpoint, auth header, and decoder by family. ok is false for families
// with no known quota endpoint and no generic URL to probe.
func FetcherFor(snapshot *ai.Snapshot, client *http.Client) (Fetcher, bool) {
	switch snapshot.Family {
	case ai.FamilyAnthropic:
		if snapshot.AuthMethod != ai.AuthOAuth {
			return nil, false
		}
		headers := map[string]string{
			"Authorization":     "Bearer " + snapshot.APIKey,
			"anthropic-version": "2023-06-01",
		}
		return NewHTTPFetcher(client, anthropicUsageURL, headers, DecodeAnthropic), true
	case ai.FamilyOpenAI, ai.FamilyOpenRouter, ai.FamilyGroq, ai.FamilyMistral, ai.FamilyDeepSeek:
		if snapshot.BaseURL == "" {
			return nil, false
		}
		headers := map[string]string{"Authorization": "Bearer " + snapshot.APIKey}
		url := snapshot.BaseURL + "/dashboard/billing/credit_grants"
		return NewHTTPFetcher(client, url, headers, chainDecoders(DecodeOpenAICompatible, DecodeGeneric)), true
	default:
		return nil, false
	}
}

// chainDecoders tries each decoder in order and keeps the first success; the
// last error wins when all fail.
func chainDecoders(decoders ...Decoder) Decoder {
	return func(body []byte) ([]Window, error) {
		var lastErr error
		for _, decode := range decoders {
			windows, err := decode(body)
			if err == nil {
				return windows, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}
