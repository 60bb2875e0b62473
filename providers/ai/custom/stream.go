package custom

import (
	"context"
	"encoding/json"
	"io"

	"github.com/relayai/relay/internal/utils"
	"github.com/relayai/relay/internal/wire"
	"github.com/relayai/relay/providers/ai"
)

// chatRequest is the outbound body for custom endpoints. The request side
// uses the chat-completions shape, the de facto least common denominator
// that ad-hoc endpoints accept, while the response side is fully mapped by
// the configured field paths.
type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SendMessage implements [ai.Adapter]. Records are decoded generically and
// the configured paths pull out text deltas, token counts, the confirmed
// model and the terminal flag.
func (a *Adapter) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	if a.snapshot.BaseURL == "" || a.spec.ChatPath == "" {
		return nil, ai.NewError(ai.ErrNotSupported, "custom provider has no chat endpoint configured")
	}

	reqCtx := a.canceller.Begin(ctx)
	var cancelTimeout context.CancelFunc = func() {}
	if request.Options.Timeout > 0 {
		reqCtx, cancelTimeout = context.WithTimeout(reqCtx, request.Options.Timeout)
	}

	body := buildRequest(request, a.snapshot)

	url := a.baseURL() + a.spec.ChatPath
	response, err := utils.DoPostStream(reqCtx, a.client, url, "", body, a.buildHeaders()...)
	if err != nil {
		cancelTimeout()
		a.canceller.End()
		return nil, ai.ClassifyHTTP(response, err)
	}

	// next abstracts over the two framings so the mapping loop below is
	// framing-agnostic: it returns raw record payloads until EOF.
	var next func() (string, error)
	if a.spec.StreamFormat == "ndjson" {
		scanner := wire.NewNDJSONScanner(response.Body)
		next = func() (string, error) {
			raw, err := scanner.Next()
			return string(raw), err
		}
	} else {
		scanner := wire.NewScanner(response.Body)
		next = func() (string, error) {
			event, err := scanner.Next()
			if err != nil {
				return "", err
			}
			return event.Data, nil
		}
	}

	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		defer utils.CloseWithLog(response.Body)
		defer cancelTimeout()
		defer a.canceller.End()

		modelSent := false
		inputSent := false
		outputSent := false

		for {
			if err := reqCtx.Err(); err != nil {
				yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.ErrorFromTransport(err)}, nil)
				return
			}

			payload, scanErr := next()
			if scanErr == io.EOF {
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: "stop"}, nil)
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

			if a.spec.DoneData != "" && payload == a.spec.DoneData {
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: "stop"}, nil)
				return
			}

			var record any
			if err := json.Unmarshal([]byte(payload), &record); err != nil {
				// Malformed records are skipped; the stream continues.
				continue
			}

			if !modelSent {
				if model := stringAt(record, a.spec.ModelPath); model != "" {
					modelSent = true
					if !yield(ai.StreamEvent{Type: ai.StreamEventModel, Model: model}, nil) {
						return
					}
				}
			}

			if !inputSent && a.spec.InputTokenPath != "" {
				if tokens := intAt(record, a.spec.InputTokenPath); tokens > 0 {
					inputSent = true
					if !yield(ai.StreamEvent{Type: ai.StreamEventInputTokens, Tokens: tokens}, nil) {
						return
					}
				}
			}
			if a.spec.OutputTokPath != "" {
				if tokens := intAt(record, a.spec.OutputTokPath); tokens > 0 && !outputSent {
					// Emitted once, from whichever record first carries it;
					// typically the terminal one.
					outputSent = true
					if !yield(ai.StreamEvent{Type: ai.StreamEventOutputTokens, Tokens: tokens}, nil) {
						return
					}
				}
			}

			if text := stringAt(record, a.spec.TextPath); text != "" {
				if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: text}, nil) {
					return
				}
			}

			if a.spec.DonePath != "" && boolAt(record, a.spec.DonePath) {
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: "stop"}, nil)
				return
			}
		}
	}

	return ai.NewChatStream(iteratorFunc), nil
}

func buildRequest(request ai.ChatRequest, snapshot *ai.Snapshot) chatRequest {
	req := chatRequest{
		Model:  snapshot.Model(request.Model),
		Stream: request.Options.Streaming(),
	}

	if request.SystemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: string(ai.RoleSystem), Content: request.SystemPrompt})
	}
	for _, message := range request.Messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(message.Role), Content: message.Content})
	}

	if request.Options.MaxTokens > 0 {
		req.MaxTokens = utils.Ptr(request.Options.MaxTokens)
	}
	if request.Options.Temperature > 0 {
		req.Temperature = utils.Ptr(float64(request.Options.Temperature))
	}
	if request.Options.TopP > 0 {
		req.TopP = utils.Ptr(float64(request.Options.TopP))
	}

	return req
}
