package ai

import "time"

/*
	##### ADAPTER INPUT #####
*/

// ChatRequest represents a single completion request sent through an Adapter.
type ChatRequest struct {
	Model        string         `json:"model,omitempty"`         // Model identifier; falls back to the snapshot's default model when empty
	Messages     []ChatMessage  `json:"messages"`                // Conversation history, oldest first, excluding the system prompt
	SystemPrompt string         `json:"system_prompt,omitempty"` // Resolved system prompt; placement on the wire is backend-specific
	Options      RequestOptions `json:"options,omitempty"`       // Sampling and transport knobs
}

// ChatMessage is a single message in a conversation. It exists only for the
// outbound wire request; this module never persists messages.
type ChatMessage struct {
	Role        MessageRole         `json:"role"`
	Content     string              `json:"content,omitempty"`
	Attachments []AttachmentPayload `json:"attachments,omitempty"`
}

// AttachmentPayload carries raw attachment bytes for vision-capable models.
// It is a value type; no ownership extends beyond the call that builds it.
type AttachmentPayload struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name,omitempty"`
}

// IsImage reports whether the attachment is an image payload that vision
// backends can embed into message content.
func (a AttachmentPayload) IsImage() bool {
	return len(a.MimeType) > 6 && a.MimeType[:6] == "image/"
}

// RequestOptions is a plain configuration bag for a single request.
// The zero value requests streaming with backend defaults.
type RequestOptions struct {
	Temperature float32       `json:"temperature,omitempty"` // Sampling temperature; 0 leaves the backend default in place
	TopP        float32       `json:"top_p,omitempty"`       // Nucleus sampling; 0 leaves the backend default in place
	MaxTokens   int           `json:"max_tokens,omitempty"`  // Response token cap; 0 lets the adapter pick its default
	Stream      *bool         `json:"stream,omitempty"`      // nil means true; explicit false requests a buffered response
	Timeout     time.Duration `json:"timeout,omitempty"`     // Per-request deadline; 0 means no deadline beyond the context's
}

// Streaming reports the effective stream flag (default true).
func (o RequestOptions) Streaming() bool {
	return o.Stream == nil || *o.Stream
}

/*
	##### ADAPTER OUTPUT #####
*/

// ModelDescriptor describes one model offered by a backend.
type ModelDescriptor struct {
	ID                   string   `json:"id"`
	DisplayName          string   `json:"display_name,omitempty"`
	ContextWindow        int      `json:"context_window,omitempty"`
	Vision               bool     `json:"vision,omitempty"`
	Streaming            bool     `json:"streaming,omitempty"`
	InputCostPerMillion  *float64 `json:"input_cost_per_million,omitempty"`  // Optional per-model pricing override
	OutputCostPerMillion *float64 `json:"output_cost_per_million,omitempty"` // Optional per-model pricing override
}

// ChatResult is the accumulated outcome of a consumed stream, produced by
// [ChatStream.Collect]. Token counts are zero when the backend never reported
// usage; callers that need a number anyway can estimate (see core/cost).
type ChatResult struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`         // Model the backend confirmed, when echoed
	FinishReason string `json:"finish_reason,omitempty"` // Normalised finish reason from the done event
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

/*
	##### ENUMS #####
*/

// MessageRole represents the role of a message; compatible with string.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// AuthMethod identifies how a provider authenticates outbound requests.
type AuthMethod string

const (
	AuthAPIKey AuthMethod = "api-key" // Key in a backend-specific header (x-api-key, Authorization, ...)
	AuthOAuth  AuthMethod = "oauth"   // OAuth access token, refreshed by an external flow
	AuthBearer AuthMethod = "bearer"  // Static bearer token
	AuthNone   AuthMethod = "none"    // Unauthenticated (local backends)
)

// Family identifies the backend wire-protocol family an adapter speaks.
// The registry factory dispatches on this value; the switch there is
// exhaustive over these constants.
type Family string

const (
	FamilyAnthropic  Family = "anthropic"  // Anthropic Messages API, SSE
	FamilyOpenAI     Family = "openai"     // OpenAI-compatible Chat Completions, SSE with [DONE]
	FamilyOpenRouter Family = "openrouter" // OpenAI-compatible, openrouter.ai preset
	FamilyGroq       Family = "groq"       // OpenAI-compatible, groq preset
	FamilyMistral    Family = "mistral"    // OpenAI-compatible, mistral preset
	FamilyDeepSeek   Family = "deepseek"   // OpenAI-compatible, deepseek preset
	FamilyOllama     Family = "ollama"     // Local Ollama chat endpoint, NDJSON
	FamilyCustom     Family = "custom"     // Fully configuration-driven endpoint
)
