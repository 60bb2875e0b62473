package ai

import "maps"

// Snapshot is an immutable copy of one provider's configuration taken at
// adapter-construction time. It is the only configuration shape that crosses
// into adapters and across goroutines; the mutable original stays with the
// registry. Never modify a Snapshot after construction; build a new one and
// a new adapter instead.
type Snapshot struct {
	ProviderID   string
	DisplayName  string
	Family       Family
	BaseURL      string // Optional override; empty means the family default
	AuthMethod   AuthMethod
	APIKey       string // Resolved secret; empty for no-auth/free-tier backends
	Headers      map[string]string
	Models       []ModelDescriptor
	DefaultModel string

	// SubscriptionBilling marks providers whose token usage is covered by a
	// flat subscription; cost accounting forces them to zero.
	SubscriptionBilling bool

	// RotationKeyID identifies which rotation key produced APIKey, so the
	// caller can credit token usage back to the right counter.
	RotationKeyID string

	// Custom carries the wire description for FamilyCustom providers and is
	// nil for every other family.
	Custom *CustomSpec
}

// CustomSpec describes the wire protocol of a fully configuration-driven
// endpoint: where to POST, how to authenticate, which streaming framing the
// backend uses, and where in each record the interesting fields live.
// Field locations are dot-separated paths into the decoded JSON record
// (e.g. "choices.0.delta.content").
type CustomSpec struct {
	ChatPath       string `json:"chat_path" yaml:"chat_path"`               // e.g. "/v1/chat/completions"
	ModelsPath     string `json:"models_path" yaml:"models_path"`           // Optional; empty disables listing
	AuthHeader     string `json:"auth_header" yaml:"auth_header"`           // e.g. "Authorization"
	AuthPrefix     string `json:"auth_prefix" yaml:"auth_prefix"`           // e.g. "Bearer " (prefix applied to the key)
	StreamFormat   string `json:"stream_format" yaml:"stream_format"`       // "sse" or "ndjson"
	TextPath       string `json:"text_path" yaml:"text_path"`               // Path to the text delta in each record
	ModelPath      string `json:"model_path" yaml:"model_path"`             // Optional path to the confirmed model
	InputTokenPath string `json:"input_token_path" yaml:"input_token_path"` // Optional path to the prompt token count
	OutputTokPath  string `json:"output_token_path" yaml:"output_token_path"`
	DonePath       string `json:"done_path" yaml:"done_path"` // Optional path to a boolean terminal flag
	DoneData       string `json:"done_data" yaml:"done_data"` // Optional sentinel data payload (e.g. "[DONE]")
}

// CloneHeaders returns a copy of the snapshot's header map so request builders
// can annotate it without touching shared state.
func (s *Snapshot) CloneHeaders() map[string]string {
	cloned := make(map[string]string, len(s.Headers))
	maps.Copy(cloned, s.Headers)
	return cloned
}

// Model resolves the model to use for a request: the explicit request model,
// else the snapshot's default model.
func (s *Snapshot) Model(requested string) string {
	if requested != "" {
		return requested
	}
	return s.DefaultModel
}
