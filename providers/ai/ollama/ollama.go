// Package ollama implements the [ai.Adapter] contract for a local Ollama
// server. The chat endpoint requires no auth and streams newline-delimited
// JSON: one record per generation step, with a terminal record flagged
// done:true carrying duration and token counts.
package ollama

import (
	"context"
	"net/http"
	"strings"

	"github.com/relayai/relay/internal/utils"
	"github.com/relayai/relay/providers/ai"
)

const (
	defaultBaseURL = "http://localhost:11434"
	chatEndpoint   = "/api/chat"
	tagsEndpoint   = "/api/tags"
)

// Adapter implements [ai.Adapter] for Ollama.
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

// tagsResponse is the wire shape of GET /api/tags.
type tagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Model   string `json:"model"`
		Details struct {
			Family        string `json:"family"`
			ParameterSize string `json:"parameter_size"`
		} `json:"details"`
	} `json:"models"`
}

// FetchModels implements [ai.Adapter] via GET /api/tags, which lists the
// locally pulled models.
func (a *Adapter) FetchModels(ctx context.Context) ([]ai.ModelDescriptor, error) {
	url := a.baseURL() + tagsEndpoint

	resp, listing, err := utils.DoGetSync[tagsResponse](ctx, a.client, url, "")
	if err != nil {
		return nil, ai.ClassifyHTTP(resp, err)
	}

	models := make([]ai.ModelDescriptor, 0, len(listing.Models))
	for _, entry := range listing.Models {
		name := entry.Name
		if name == "" {
			name = entry.Model
		}
		models = append(models, ai.ModelDescriptor{
			ID:          name,
			DisplayName: name,
			Streaming:   true,
			// Local models carry no token pricing.
			InputCostPerMillion:  utils.Ptr(0.0),
			OutputCostPerMillion: utils.Ptr(0.0),
		})
	}
	return models, nil
}

// ValidateCredentials implements [ai.Adapter]. Ollama has no auth, so this
// degenerates to a reachability probe of the local server.
func (a *Adapter) ValidateCredentials(ctx context.Context) (bool, error) {
	_, err := a.FetchModels(ctx)
	if err == nil {
		return true, nil
	}
	if ai.KindOf(err) == ai.ErrUnauthorized {
		return false, nil
	}
	return false, err
}

// Cancel implements [ai.Adapter]. Idempotent; aborts the in-flight request.
func (a *Adapter) Cancel() {
	a.canceller.Cancel()
}
