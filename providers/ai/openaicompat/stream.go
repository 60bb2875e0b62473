package openaicompat

import (
	"context"
	"encoding/json"
	"io"

	"github.com/relayai/relay/internal/utils"
	"github.com/relayai/relay/internal/wire"
	"github.com/relayai/relay/providers/ai"
)

// streamChunk is one decoded SSE data payload from a Chat Completions stream.
// Text arrives in choices[0].delta.content; the final chunk (empty choices)
// carries the usage object when stream_options.include_usage was requested.
type streamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chunkUsage `json:"usage"`
	Error *chunkError `json:"error"`
}

type chunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chunkError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// SendMessage implements [ai.Adapter]. The stream ends on the literal [DONE]
// data payload; the decoder below delivers that sentinel as an ordinary event
// and only this mapper interprets it.
func (a *Adapter) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	reqCtx := a.canceller.Begin(ctx)
	var cancelTimeout context.CancelFunc = func() {}
	if request.Options.Timeout > 0 {
		reqCtx, cancelTimeout = context.WithTimeout(reqCtx, request.Options.Timeout)
	}

	body := buildRequest(request, a.snapshot)

	if !request.Options.Streaming() {
		defer cancelTimeout()
		defer a.canceller.End()
		return a.sendBuffered(reqCtx, body)
	}

	body.Stream = utils.Ptr(true)
	body.StreamOptions = &streamOptionsField{IncludeUsage: true}

	url := a.baseURL() + chatCompletionsEndpoint
	response, err := utils.DoPostStream(reqCtx, a.client, url, a.snapshot.APIKey, body, a.buildHeaders()...)
	if err != nil {
		cancelTimeout()
		a.canceller.End()
		return nil, ai.ClassifyHTTP(response, err)
	}

	scanner := wire.NewScanner(response.Body)

	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		defer utils.CloseWithLog(response.Body)
		defer cancelTimeout()
		defer a.canceller.End()

		modelSent := false
		finishReason := ""

		for {
			if err := reqCtx.Err(); err != nil {
				yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.ErrorFromTransport(err)}, nil)
				return
			}

			protoEvent, scanErr := scanner.Next()
			if scanErr == io.EOF {
				// Backends are expected to send [DONE]; some compatible
				// servers just close the connection. Either way the
				// sequence must end with a terminal event.
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: mapFinishReason(finishReason)}, nil)
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

			if protoEvent.Data == "[DONE]" {
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: mapFinishReason(finishReason)}, nil)
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(protoEvent.Data), &chunk); err != nil {
				// One malformed record never terminates the stream.
				continue
			}

			if chunk.Error != nil {
				yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.NewError(ai.ErrProvider, chunk.Error.Message)}, nil)
				return
			}

			if !modelSent && chunk.Model != "" {
				modelSent = true
				if !yield(ai.StreamEvent{Type: ai.StreamEventModel, Model: chunk.Model}, nil) {
					return
				}
			}

			// The usage chunk has empty choices; handle it before them.
			if chunk.Usage != nil {
				if !yield(ai.StreamEvent{Type: ai.StreamEventInputTokens, Tokens: chunk.Usage.PromptTokens}, nil) {
					return
				}
				if !yield(ai.StreamEvent{Type: ai.StreamEventOutputTokens, Tokens: chunk.Usage.CompletionTokens}, nil) {
					return
				}
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				finishReason = *choice.FinishReason
			}
			if choice.Delta.Content != "" {
				if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: choice.Delta.Content}, nil) {
					return
				}
			}
		}
	}

	return ai.NewChatStream(iteratorFunc), nil
}

// chatCompletionResponse is the buffered (non-streaming) response shape.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *chunkUsage `json:"usage"`
}

func (a *Adapter) sendBuffered(ctx context.Context, body chatCompletionRequest) (*ai.ChatStream, error) {
	url := a.baseURL() + chatCompletionsEndpoint

	resp, decoded, err := utils.DoPostSync[chatCompletionResponse](ctx, a.client, url, a.snapshot.APIKey, body, a.buildHeaders()...)
	if err != nil {
		return nil, ai.ClassifyHTTP(resp, err)
	}
	if len(decoded.Choices) == 0 {
		return nil, ai.NewError(ai.ErrInvalidResponse, "response contained no choices")
	}

	result := &ai.ChatResult{
		Model:        decoded.Model,
		Content:      decoded.Choices[0].Message.Content,
		FinishReason: mapFinishReason(decoded.Choices[0].FinishReason),
	}
	if decoded.Usage != nil {
		result.InputTokens = decoded.Usage.PromptTokens
		result.OutputTokens = decoded.Usage.CompletionTokens
	}

	return ai.NewBufferedStream(result), nil
}

// mapFinishReason normalises Chat Completions finish reasons.
func mapFinishReason(reason string) string {
	switch reason {
	case "", "stop":
		return "stop"
	case "length":
		return "length"
	default:
		return reason
	}
}
