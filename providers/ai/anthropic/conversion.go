package anthropic

import (
	"encoding/base64"

	"github.com/relayai/relay/providers/ai"
)

// anthropicRequest is the typed Messages API request body. Optional fields use
// pointers/omitempty so absent knobs stay off the wire entirely.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"` // Lives outside the message array
	MaxTokens   int                `json:"max_tokens"`       // Required by the API on every request
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type   string           `json:"type"` // "text" or "image"
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// defaultMaxTokens is applied when the caller does not cap the response;
// the Messages API rejects requests without max_tokens.
const defaultMaxTokens = 4096

// buildRequest converts the generic request into the Messages wire format.
// System prompts stay at the top level; image attachments become base64
// source blocks inside the owning message's content array.
func buildRequest(request ai.ChatRequest, snapshot *ai.Snapshot) anthropicRequest {
	req := anthropicRequest{
		Model:     snapshot.Model(request.Model),
		System:    request.SystemPrompt,
		MaxTokens: defaultMaxTokens,
		Messages:  make([]anthropicMessage, 0, len(request.Messages)),
	}

	if request.Options.MaxTokens > 0 {
		req.MaxTokens = request.Options.MaxTokens
	}
	if request.Options.Temperature > 0 {
		temp := float64(request.Options.Temperature)
		req.Temperature = &temp
	}
	if request.Options.TopP > 0 {
		topP := float64(request.Options.TopP)
		req.TopP = &topP
	}

	for _, message := range request.Messages {
		// System messages embedded in the history are folded into the
		// top-level system field, which is where this API wants them.
		if message.Role == ai.RoleSystem {
			if req.System == "" {
				req.System = message.Content
			} else {
				req.System += "\n\n" + message.Content
			}
			continue
		}

		wireMessage := anthropicMessage{Role: string(message.Role)}
		if message.Content != "" {
			wireMessage.Content = append(wireMessage.Content, anthropicContentBlock{
				Type: "text",
				Text: message.Content,
			})
		}
		for _, attachment := range message.Attachments {
			if !attachment.IsImage() {
				continue
			}
			wireMessage.Content = append(wireMessage.Content, anthropicContentBlock{
				Type: "image",
				Source: &anthropicSource{
					Type:      "base64",
					MediaType: attachment.MimeType,
					Data:      base64.StdEncoding.EncodeToString(attachment.Data),
				},
			})
		}
		if len(wireMessage.Content) == 0 {
			continue
		}
		req.Messages = append(req.Messages, wireMessage)
	}

	return req
}
