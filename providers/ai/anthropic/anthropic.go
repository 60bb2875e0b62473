// Package anthropic implements the [ai.Adapter] contract for Anthropic's
// Messages API: SSE streaming, x-api-key authentication and the versioned
// protocol header, with the system prompt carried outside the message array.
package anthropic

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/relayai/relay/internal/utils"
	"github.com/relayai/relay/providers/ai"
)

const (
	// defaultBaseURL is the canonical base URL for Anthropic's Messages API.
	defaultBaseURL = "https://api.anthropic.com/v1"

	// messagesEndpoint is the path for the Messages API endpoint.
	messagesEndpoint = "/messages"

	// modelsEndpoint is the path for model listing.
	modelsEndpoint = "/models"

	// anthropicVersion is the required anthropic-version header value.
	// Anthropic uses this to version-lock response formats independently of the URL.
	anthropicVersion = "2023-06-01"
)

// Adapter implements [ai.Adapter] for Anthropic's Messages API. Construct it
// with [New] from an immutable snapshot; the adapter never touches mutable
// provider configuration.
type Adapter struct {
	snapshot  *ai.Snapshot
	client    *http.Client
	canceller ai.Canceller
}

// New returns an Adapter bound to the given snapshot. A nil client falls back
// to http.DefaultClient.
func New(snapshot *ai.Snapshot, client *http.Client) *Adapter {
	return &Adapter{snapshot: snapshot, client: client}
}

func (a *Adapter) baseURL() string {
	if a.snapshot.BaseURL != "" {
		return strings.TrimSuffix(a.snapshot.BaseURL, "/")
	}
	return defaultBaseURL
}

// buildHeaders constructs the headers required for every Anthropic request.
// x-api-key carries the credential (Anthropic does not use Bearer tokens for
// API keys) and anthropic-version pins the wire format. OAuth-authenticated
// providers send a Bearer token instead. Snapshot headers are applied last so
// a configured header can override either.
func (a *Adapter) buildHeaders() []utils.HeaderOption {
	headers := []utils.HeaderOption{
		{Key: "anthropic-version", Value: anthropicVersion},
	}

	switch a.snapshot.AuthMethod {
	case ai.AuthOAuth, ai.AuthBearer:
		if a.snapshot.APIKey != "" {
			headers = append(headers, utils.HeaderOption{Key: "Authorization", Value: "Bearer " + a.snapshot.APIKey})
		}
	default:
		if a.snapshot.APIKey != "" {
			headers = append(headers, utils.HeaderOption{Key: "x-api-key", Value: a.snapshot.APIKey})
		}
	}

	for key, value := range a.snapshot.Headers {
		headers = append(headers, utils.HeaderOption{Key: key, Value: value})
	}

	return headers
}

// modelListResponse is the wire shape of GET /v1/models.
type modelListResponse struct {
	Data []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Type        string `json:"type"`
	} `json:"data"`
}

// FetchModels implements [ai.Adapter] via GET /v1/models.
func (a *Adapter) FetchModels(ctx context.Context) ([]ai.ModelDescriptor, error) {
	url := a.baseURL() + modelsEndpoint

	// Pass empty apiKey so the helper does not inject a Bearer token;
	// authentication happens inside buildHeaders.
	resp, listing, err := utils.DoGetSync[modelListResponse](ctx, a.client, url, "", a.buildHeaders()...)
	if err != nil {
		return nil, ai.ClassifyHTTP(resp, err)
	}

	models := make([]ai.ModelDescriptor, 0, len(listing.Data))
	for _, entry := range listing.Data {
		models = append(models, ai.ModelDescriptor{
			ID:          entry.ID,
			DisplayName: entry.DisplayName,
			Vision:      strings.Contains(entry.ID, "claude"),
			Streaming:   true,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// ValidateCredentials implements [ai.Adapter]. It issues the cheapest
// authenticated request Anthropic offers (model listing) and interprets an
// auth rejection as false rather than an error.
func (a *Adapter) ValidateCredentials(ctx context.Context) (bool, error) {
	_, err := a.FetchModels(ctx)
	if err == nil {
		return true, nil
	}
	switch ai.KindOf(err) {
	case ai.ErrUnauthorized, ai.ErrInvalidAPIKey, ai.ErrTokenExpired:
		return false, nil
	}
	return false, err
}

// Cancel implements [ai.Adapter]. Idempotent; aborts the in-flight request.
func (a *Adapter) Cancel() {
	a.canceller.Cancel()
}
