package openaicompat

import (
	"encoding/base64"
	"fmt"

	"github.com/relayai/relay/providers/ai"
)

// chatCompletionRequest is the typed Chat Completions request body. Optional
// sampling knobs use pointers/omitempty so unset values stay off the wire.
type chatCompletionRequest struct {
	Model         string              `json:"model"`
	Messages      []wireMessage       `json:"messages"`
	Temperature   *float64            `json:"temperature,omitempty"`
	TopP          *float64            `json:"top_p,omitempty"`
	MaxTokens     *int                `json:"max_tokens,omitempty"`
	Stream        *bool               `json:"stream,omitempty"`
	StreamOptions *streamOptionsField `json:"stream_options,omitempty"`
}

type streamOptionsField struct {
	IncludeUsage bool `json:"include_usage"`
}

// wireMessage carries either a plain string content or an array of content
// parts (required for vision). Content is any to cover both forms.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string        `json:"type"` // "text" or "image_url"
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

// buildRequest converts the generic request to the Chat Completions format.
// The system prompt becomes the leading system message; image attachments
// become image_url parts with a data URI.
func buildRequest(request ai.ChatRequest, snapshot *ai.Snapshot) chatCompletionRequest {
	req := chatCompletionRequest{
		Model:    snapshot.Model(request.Model),
		Messages: make([]wireMessage, 0, len(request.Messages)+1),
	}

	if request.Options.Temperature > 0 {
		temp := float64(request.Options.Temperature)
		req.Temperature = &temp
	}
	if request.Options.TopP > 0 {
		topP := float64(request.Options.TopP)
		req.TopP = &topP
	}
	if request.Options.MaxTokens > 0 {
		maxTokens := request.Options.MaxTokens
		req.MaxTokens = &maxTokens
	}

	if request.SystemPrompt != "" {
		req.Messages = append(req.Messages, wireMessage{Role: string(ai.RoleSystem), Content: request.SystemPrompt})
	}

	for _, message := range request.Messages {
		req.Messages = append(req.Messages, toWireMessage(message))
	}

	return req
}

// toWireMessage picks the plain-string form unless attachments force the
// content-part array form.
func toWireMessage(message ai.ChatMessage) wireMessage {
	images := make([]ai.AttachmentPayload, 0, len(message.Attachments))
	for _, attachment := range message.Attachments {
		if attachment.IsImage() {
			images = append(images, attachment)
		}
	}

	if len(images) == 0 {
		return wireMessage{Role: string(message.Role), Content: message.Content}
	}

	parts := make([]contentPart, 0, len(images)+1)
	if message.Content != "" {
		parts = append(parts, contentPart{Type: "text", Text: message.Content})
	}
	for _, image := range images {
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURLPart{
				URL: fmt.Sprintf("data:%s;base64,%s", image.MimeType, base64.StdEncoding.EncodeToString(image.Data)),
			},
		})
	}

	return wireMessage{Role: string(message.Role), Content: parts}
}
