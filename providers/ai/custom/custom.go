// Package custom implements the [ai.Adapter] contract for endpoints that
// match no known backend family. Every aspect of the wire exchange (path,
// auth header, streaming framing, response field locations) comes from the
// snapshot's [ai.CustomSpec]; nothing is hard-coded beyond JSON itself.
package custom

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/relayai/relay/internal/utils"
	"github.com/relayai/relay/providers/ai"
)

// Adapter implements [ai.Adapter] driven entirely by configuration.
type Adapter struct {
	snapshot  *ai.Snapshot
	spec      ai.CustomSpec
	client    *http.Client
	canceller ai.Canceller
}

// New returns an Adapter for the snapshot's CustomSpec. A snapshot without a
// CustomSpec gets an empty spec, which fails loudly on first use rather than
// guessing at a wire format.
func New(snapshot *ai.Snapshot, client *http.Client) *Adapter {
	var spec ai.CustomSpec
	if snapshot.Custom != nil {
		spec = *snapshot.Custom
	}
	return &Adapter{snapshot: snapshot, spec: spec, client: client}
}

func (a *Adapter) baseURL() string {
	return strings.TrimSuffix(a.snapshot.BaseURL, "/")
}

// buildHeaders applies the configured auth header plus provider extras.
func (a *Adapter) buildHeaders() []utils.HeaderOption {
	var headers []utils.HeaderOption
	if a.spec.AuthHeader != "" && a.snapshot.APIKey != "" {
		headers = append(headers, utils.HeaderOption{
			Key:   a.spec.AuthHeader,
			Value: a.spec.AuthPrefix + a.snapshot.APIKey,
		})
	}
	for key, value := range a.snapshot.Headers {
		headers = append(headers, utils.HeaderOption{Key: key, Value: value})
	}
	return headers
}

// FetchModels implements [ai.Adapter]. With no models path configured the
// statically configured model list is the source of truth.
func (a *Adapter) FetchModels(ctx context.Context) ([]ai.ModelDescriptor, error) {
	if a.spec.ModelsPath == "" {
		models := make([]ai.ModelDescriptor, len(a.snapshot.Models))
		copy(models, a.snapshot.Models)
		return models, nil
	}

	url := a.baseURL() + a.spec.ModelsPath
	resp, decoded, err := utils.DoGetSync[map[string]any](ctx, a.client, url, "", a.buildHeaders()...)
	if err != nil {
		return nil, ai.ClassifyHTTP(resp, err)
	}

	ids := extractModelIDs(*decoded)
	if len(ids) == 0 {
		return nil, ai.NewError(ai.ErrInvalidResponse, "model listing contained no recognizable model ids")
	}

	models := make([]ai.ModelDescriptor, 0, len(ids))
	for _, id := range ids {
		models = append(models, ai.ModelDescriptor{ID: id, DisplayName: id, Streaming: true})
	}
	return models, nil
}

// extractModelIDs scans the common listing shapes: a "data" or "models" array
// whose entries are either id-bearing objects or bare strings.
func extractModelIDs(listing map[string]any) []string {
	var ids []string
	for _, key := range []string{"data", "models"} {
		entries, ok := listing[key].([]any)
		if !ok {
			continue
		}
		for _, entry := range entries {
			switch typed := entry.(type) {
			case string:
				ids = append(ids, typed)
			case map[string]any:
				for _, idKey := range []string{"id", "name", "model"} {
					if id, ok := typed[idKey].(string); ok && id != "" {
						ids = append(ids, id)
						break
					}
				}
			}
		}
		if len(ids) > 0 {
			return ids
		}
	}
	return ids
}

// ValidateCredentials implements [ai.Adapter]: the models endpoint when one
// is configured, otherwise a one-token chat probe.
func (a *Adapter) ValidateCredentials(ctx context.Context) (bool, error) {
	var err error
	if a.spec.ModelsPath != "" {
		_, err = a.FetchModels(ctx)
	} else {
		err = a.probeChat(ctx)
	}
	if err == nil {
		return true, nil
	}
	switch ai.KindOf(err) {
	case ai.ErrUnauthorized, ai.ErrInvalidAPIKey, ai.ErrTokenExpired:
		return false, nil
	}
	return false, err
}

// probeChat issues the smallest possible authenticated completion request.
func (a *Adapter) probeChat(ctx context.Context) error {
	request := ai.ChatRequest{
		Messages: []ai.ChatMessage{{Role: ai.RoleUser, Content: "ping"}},
		Options:  ai.RequestOptions{MaxTokens: 1, Stream: utils.Ptr(false)},
	}
	stream, err := a.SendMessage(ctx, request)
	if err != nil {
		return err
	}
	_, err = stream.Collect()
	return err
}

// Cancel implements [ai.Adapter]. Idempotent; aborts the in-flight request.
func (a *Adapter) Cancel() {
	a.canceller.Cancel()
}

// lookupPath resolves a dot-separated path inside a decoded JSON record.
// Numeric segments index into arrays ("choices.0.delta.content").
func lookupPath(record any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	current := record
	for segment := range strings.SplitSeq(path, ".") {
		switch typed := current.(type) {
		case map[string]any:
			next, ok := typed[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(typed) {
				return nil, false
			}
			current = typed[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// stringAt returns the string at path, or "".
func stringAt(record any, path string) string {
	value, ok := lookupPath(record, path)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// intAt returns the numeric value at path as an int, or 0. JSON numbers
// decode as float64.
func intAt(record any, path string) int {
	value, ok := lookupPath(record, path)
	if !ok {
		return 0
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	}
	return 0
}

// boolAt returns the boolean at path, or false.
func boolAt(record any, path string) bool {
	value, ok := lookupPath(record, path)
	if !ok {
		return false
	}
	b, _ := value.(bool)
	return b
}
