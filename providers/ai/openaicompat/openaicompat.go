// Package openaicompat implements the [ai.Adapter] contract for every backend
// speaking the OpenAI Chat Completions wire protocol. One adapter serves all
// of them, parameterized by a [Preset] carrying the vendor's base URL and
// header quirks. The protocol itself (SSE data: lines, choices[0].delta,
// trailing usage chunk, [DONE] sentinel) is identical across vendors.
package openaicompat

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/relayai/relay/internal/utils"
	"github.com/relayai/relay/providers/ai"
)

const (
	chatCompletionsEndpoint = "/chat/completions"
	modelsEndpoint          = "/models"
)

// Preset captures the per-vendor differences of an OpenAI-compatible backend.
type Preset struct {
	Name    string
	BaseURL string
	Headers map[string]string // Vendor-required extras beyond Authorization
}

// presets maps each OpenAI-compatible family to its vendor defaults.
var presets = map[ai.Family]Preset{
	ai.FamilyOpenAI:     {Name: "openai", BaseURL: "https://api.openai.com/v1"},
	ai.FamilyOpenRouter: {Name: "openrouter", BaseURL: "https://openrouter.ai/api/v1"},
	ai.FamilyGroq:       {Name: "groq", BaseURL: "https://api.groq.com/openai/v1"},
	ai.FamilyMistral:    {Name: "mistral", BaseURL: "https://api.mistral.ai/v1"},
	ai.FamilyDeepSeek:   {Name: "deepseek", BaseURL: "https://api.deepseek.com/v1"},
}

// PresetFor returns the vendor preset for an OpenAI-compatible family.
// Unknown families get the plain OpenAI preset, which is the safe default for
// self-hosted compatible servers addressed via a base URL override.
func PresetFor(family ai.Family) Preset {
	if preset, ok := presets[family]; ok {
		return preset
	}
	return presets[ai.FamilyOpenAI]
}

// Adapter implements [ai.Adapter] for OpenAI-compatible backends.
type Adapter struct {
	snapshot  *ai.Snapshot
	preset    Preset
	client    *http.Client
	canceller ai.Canceller
}

// New returns an Adapter bound to the given snapshot, using the preset for
// the snapshot's family. A nil client falls back to http.DefaultClient.
func New(snapshot *ai.Snapshot, client *http.Client) *Adapter {
	return &Adapter{snapshot: snapshot, preset: PresetFor(snapshot.Family), client: client}
}

func (a *Adapter) baseURL() string {
	if a.snapshot.BaseURL != "" {
		return strings.TrimSuffix(a.snapshot.BaseURL, "/")
	}
	return a.preset.BaseURL
}

// buildHeaders merges preset extras with configured provider headers.
// Authorization is handled by the HTTP helpers' apiKey parameter, so it is
// absent here unless a configured header overrides it.
func (a *Adapter) buildHeaders() []utils.HeaderOption {
	headers := make([]utils.HeaderOption, 0, len(a.preset.Headers)+len(a.snapshot.Headers))
	for key, value := range a.preset.Headers {
		headers = append(headers, utils.HeaderOption{Key: key, Value: value})
	}
	for key, value := range a.snapshot.Headers {
		headers = append(headers, utils.HeaderOption{Key: key, Value: value})
	}
	return headers
}

// modelListResponse is the wire shape of GET /models. The pricing object is
// an OpenRouter extension; vendors without it simply leave it null.
type modelListResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		ContextLength int    `json:"context_length"`
		Pricing       *struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		} `json:"pricing"`
	} `json:"data"`
}

// FetchModels implements [ai.Adapter] via GET /models. Free models sort
// first, then everything alphabetically by id.
func (a *Adapter) FetchModels(ctx context.Context) ([]ai.ModelDescriptor, error) {
	url := a.baseURL() + modelsEndpoint

	resp, listing, err := utils.DoGetSync[modelListResponse](ctx, a.client, url, a.snapshot.APIKey, a.buildHeaders()...)
	if err != nil {
		return nil, ai.ClassifyHTTP(resp, err)
	}

	type rankedModel struct {
		descriptor ai.ModelDescriptor
		free       bool
	}

	ranked := make([]rankedModel, 0, len(listing.Data))
	for _, entry := range listing.Data {
		descriptor := ai.ModelDescriptor{
			ID:            entry.ID,
			DisplayName:   entry.Name,
			ContextWindow: entry.ContextLength,
			Streaming:     true,
		}

		free := strings.HasSuffix(entry.ID, ":free")
		if entry.Pricing != nil {
			prompt, promptErr := strconv.ParseFloat(entry.Pricing.Prompt, 64)
			completion, completionErr := strconv.ParseFloat(entry.Pricing.Completion, 64)
			if promptErr == nil && completionErr == nil {
				free = free || (prompt == 0 && completion == 0)
				// OpenRouter prices are per token; the descriptor carries per million.
				descriptor.InputCostPerMillion = utils.Ptr(prompt * 1_000_000)
				descriptor.OutputCostPerMillion = utils.Ptr(completion * 1_000_000)
			}
		}

		ranked = append(ranked, rankedModel{descriptor: descriptor, free: free})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].free != ranked[j].free {
			return ranked[i].free
		}
		return ranked[i].descriptor.ID < ranked[j].descriptor.ID
	})

	models := make([]ai.ModelDescriptor, len(ranked))
	for i, entry := range ranked {
		models[i] = entry.descriptor
	}
	return models, nil
}

// ValidateCredentials implements [ai.Adapter] against the model-listing
// endpoint; 401 means bad credentials, not an error.
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
