package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"

	"github.com/relayai/relay/internal/utils"
	"github.com/relayai/relay/internal/wire"
	"github.com/relayai/relay/providers/ai"
)

// chatRequest is the typed /api/chat request body.
type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // Base64 payloads for multimodal models
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

// chatRecord is one NDJSON generation step. The terminal record has Done set
// and carries the token counts and durations for the whole exchange.
type chatRecord struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	TotalDuration   int64  `json:"total_duration"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// SendMessage implements [ai.Adapter] over the NDJSON chat endpoint.
func (a *Adapter) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	reqCtx := a.canceller.Begin(ctx)
	var cancelTimeout context.CancelFunc = func() {}
	if request.Options.Timeout > 0 {
		reqCtx, cancelTimeout = context.WithTimeout(reqCtx, request.Options.Timeout)
	}

	body := buildRequest(request, a.snapshot)

	url := a.baseURL() + chatEndpoint
	response, err := utils.DoPostStream(reqCtx, a.client, url, "", body)
	if err != nil {
		cancelTimeout()
		a.canceller.End()
		return nil, ai.ClassifyHTTP(response, err)
	}

	scanner := wire.NewNDJSONScanner(response.Body)

	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		defer utils.CloseWithLog(response.Body)
		defer cancelTimeout()
		defer a.canceller.End()

		modelSent := false

		for {
			if err := reqCtx.Err(); err != nil {
				yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.ErrorFromTransport(err)}, nil)
				return
			}

			raw, scanErr := scanner.Next()
			if scanErr == io.EOF {
				// The done:true record already ended the sequence in the
				// normal case; a bare EOF means the server went away.
				yield(ai.StreamEvent{
					Type: ai.StreamEventError,
					Err:  ai.NewError(ai.ErrInvalidResponse, "stream ended without a done record"),
				}, nil)
				return
			}
			if scanErr != nil {
				if reqCtx.Err() != nil {
					yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.ErrorFromTransport(reqCtx.Err())}, nil)
					return
				}
				yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.WrapError(ai.ErrInvalidResponse, scanErr)}, nil)
				return
			}

			var record chatRecord
			if err := json.Unmarshal(raw, &record); err != nil {
				// Skipping one undecodable record keeps the stream alive.
				continue
			}

			if record.Error != "" {
				yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.NewError(ai.ErrProvider, record.Error)}, nil)
				return
			}

			if !modelSent && record.Model != "" {
				modelSent = true
				if !yield(ai.StreamEvent{Type: ai.StreamEventModel, Model: record.Model}, nil) {
					return
				}
			}

			if record.Message.Content != "" {
				if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: record.Message.Content}, nil) {
					return
				}
			}

			if record.Done {
				if !yield(ai.StreamEvent{Type: ai.StreamEventInputTokens, Tokens: record.PromptEvalCount}, nil) {
					return
				}
				if !yield(ai.StreamEvent{Type: ai.StreamEventOutputTokens, Tokens: record.EvalCount}, nil) {
					return
				}
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: mapDoneReason(record.DoneReason)}, nil)
				return
			}
		}
	}

	return ai.NewChatStream(iteratorFunc), nil
}

// buildRequest converts the generic request; image attachments ride in the
// message's images array as raw base64.
func buildRequest(request ai.ChatRequest, snapshot *ai.Snapshot) chatRequest {
	req := chatRequest{
		Model:  snapshot.Model(request.Model),
		Stream: request.Options.Streaming(),
	}

	if request.SystemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: string(ai.RoleSystem), Content: request.SystemPrompt})
	}

	for _, message := range request.Messages {
		wireMessage := chatMessage{Role: string(message.Role), Content: message.Content}
		for _, attachment := range message.Attachments {
			if attachment.IsImage() {
				wireMessage.Images = append(wireMessage.Images, base64.StdEncoding.EncodeToString(attachment.Data))
			}
		}
		req.Messages = append(req.Messages, wireMessage)
	}

	var options ollamaOptions
	hasOptions := false
	if request.Options.Temperature > 0 {
		options.Temperature = utils.Ptr(float64(request.Options.Temperature))
		hasOptions = true
	}
	if request.Options.TopP > 0 {
		options.TopP = utils.Ptr(float64(request.Options.TopP))
		hasOptions = true
	}
	if request.Options.MaxTokens > 0 {
		options.NumPredict = utils.Ptr(request.Options.MaxTokens)
		hasOptions = true
	}
	if hasOptions {
		req.Options = &options
	}

	return req
}

func mapDoneReason(reason string) string {
	switch reason {
	case "", "stop":
		return "stop"
	case "length", "limit":
		return "length"
	default:
		return reason
	}
}
