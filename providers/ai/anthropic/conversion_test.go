package anthropic

import (
	"testing"

	"github.com/relayai/relay/providers/ai"
)

// TestBuildRequest_SystemHandling verifies that the system prompt and any
// system-role history messages end up in the top-level system field, never in
// the message array.
func TestBuildRequest_SystemHandling(t *testing.T) {
	snapshot := &ai.Snapshot{ProviderID: "claude"}
	request := ai.ChatRequest{
		Model:        "claude-sonnet-4-5",
		SystemPrompt: "Be terse.",
		Messages: []ai.ChatMessage{
			{Role: ai.RoleSystem, Content: "Also be kind."},
			{Role: ai.RoleUser, Content: "Hi"},
		},
	}

	body := buildRequest(request, snapshot)
	if body.System != "Be terse.\n\nAlso be kind." {
		t.Errorf("system: got %q", body.System)
	}
	if len(body.Messages) != 1 {
		t.Fatalf("messages: got %d, want 1", len(body.Messages))
	}
	if body.Messages[0].Role != "user" {
		t.Errorf("role: got %q", body.Messages[0].Role)
	}
	if body.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens default: got %d, want %d", body.MaxTokens, defaultMaxTokens)
	}
}

// TestBuildRequest_ImageAttachment verifies the base64 source block.
func TestBuildRequest_ImageAttachment(t *testing.T) {
	snapshot := &ai.Snapshot{ProviderID: "claude"}
	request := ai.ChatRequest{
		Model: "claude-sonnet-4-5",
		Messages: []ai.ChatMessage{{
			Role:    ai.RoleUser,
			Content: "What is this?",
			Attachments: []ai.AttachmentPayload{
				{Data: []byte{0x89, 0x50, 0x4e, 0x47}, MimeType: "image/png", FileName: "pic.png"},
				{Data: []byte("not an image"), MimeType: "application/pdf", FileName: "doc.pdf"},
			},
		}},
	}

	body := buildRequest(request, snapshot)
	if len(body.Messages) != 1 {
		t.Fatalf("messages: got %d, want 1", len(body.Messages))
	}
	content := body.Messages[0].Content
	if len(content) != 2 {
		t.Fatalf("content blocks: got %d, want text + image", len(content))
	}
	if content[0].Type != "text" || content[1].Type != "image" {
		t.Errorf("block types: got %q, %q", content[0].Type, content[1].Type)
	}
	if content[1].Source == nil || content[1].Source.MediaType != "image/png" {
		t.Errorf("image source: got %+v", content[1].Source)
	}
	if content[1].Source.Data != "iVBORw==" {
		t.Errorf("base64 data: got %q", content[1].Source.Data)
	}
}

// TestBuildRequest_Options verifies the optional knob wiring.
func TestBuildRequest_Options(t *testing.T) {
	snapshot := &ai.Snapshot{ProviderID: "claude"}
	request := ai.ChatRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []ai.ChatMessage{{Role: ai.RoleUser, Content: "Hi"}},
		Options: ai.RequestOptions{
			Temperature: 0.5,
			TopP:        0.25,
			MaxTokens:   256,
		},
	}

	body := buildRequest(request, snapshot)
	if body.MaxTokens != 256 {
		t.Errorf("max_tokens: got %d, want 256", body.MaxTokens)
	}
	if body.Temperature == nil || *body.Temperature != 0.5 {
		t.Errorf("temperature: got %v", body.Temperature)
	}
	if body.TopP == nil || *body.TopP != 0.25 {
		t.Errorf("top_p: got %v", body.TopP)
	}
}

// TestMapStopReason verifies the finish-reason normalization.
func TestMapStopReason(t *testing.T) {
	tests := map[string]string{
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"max_tokens":    "length",
		"":              "stop",
	}
	for input, want := range tests {
		if got := mapStopReason(input); got != want {
			t.Errorf("mapStopReason(%q): got %q, want %q", input, got, want)
		}
	}
}
