package anthropic

import (
	"context"
	"io"

	"github.com/relayai/relay/internal/utils"
	"github.com/relayai/relay/internal/wire"
	"github.com/relayai/relay/providers/ai"
)

// SendMessage implements [ai.Adapter]. It POSTs to the messages endpoint and
// returns a cancellable stream mapping the Messages API SSE lifecycle onto
// the generic event model:
//
//	message_start        → model + input_tokens
//	content_block_delta  → content (text_delta sub-type)
//	message_delta        → output_tokens
//	message_stop         → done
//	error                → terminal error event
//
// Pre-flight failures (connect error, non-2xx response) are returned
// synchronously; everything after the stream opens arrives as events.
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

	body.Stream = true

	url := a.baseURL() + messagesEndpoint
	// Empty apiKey: authentication is applied inside buildHeaders.
	response, err := utils.DoPostStream(reqCtx, a.client, url, "", body, a.buildHeaders()...)
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

		// Track whether a terminal event has been produced so an early EOF
		// is reported instead of silently ending the sequence.
		finished := false
		finishReason := ""

		for {
			// Cancellation checks run between decoded events.
			if err := reqCtx.Err(); err != nil {
				yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.ErrorFromTransport(err)}, nil)
				return
			}

			protoEvent, scanErr := scanner.Next()
			if scanErr == io.EOF {
				if !finished {
					yield(ai.StreamEvent{
						Type: ai.StreamEventError,
						Err:  ai.NewError(ai.ErrInvalidResponse, "stream ended before message_stop"),
					}, nil)
				}
				return
			}
			if scanErr != nil {
				// A read error during cancellation is the cancellation.
				if reqCtx.Err() != nil {
					yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.ErrorFromTransport(reqCtx.Err())}, nil)
					return
				}
				yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.WrapError(ai.ErrInvalidResponse, scanErr)}, nil)
				return
			}

			event, parseErr := unmarshalStreamEvent(protoEvent.Data)
			if parseErr != nil {
				// One malformed record never terminates the stream.
				continue
			}

			switch event.Type {

			case "message_start":
				if event.Message == nil {
					continue
				}
				if event.Message.Model != "" {
					if !yield(ai.StreamEvent{Type: ai.StreamEventModel, Model: event.Message.Model}, nil) {
						return
					}
				}
				if !yield(ai.StreamEvent{Type: ai.StreamEventInputTokens, Tokens: event.Message.Usage.InputTokens}, nil) {
					return
				}

			case "content_block_delta":
				if event.Delta == nil || event.Delta.Type != "text_delta" || event.Delta.Text == "" {
					continue
				}
				if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: event.Delta.Text}, nil) {
					return
				}

			case "message_delta":
				if event.Delta != nil && event.Delta.StopReason != "" {
					finishReason = event.Delta.StopReason
				}
				if event.Usage != nil {
					if !yield(ai.StreamEvent{Type: ai.StreamEventOutputTokens, Tokens: event.Usage.OutputTokens}, nil) {
						return
					}
				}

			case "message_stop":
				finished = true
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: mapStopReason(finishReason)}, nil)
				return

			case "error":
				finished = true
				message := "unknown stream error"
				if event.Error != nil {
					message = event.Error.Message
				}
				yield(ai.StreamEvent{Type: ai.StreamEventError, Err: ai.NewError(ai.ErrProvider, message)}, nil)
				return

			case "ping", "content_block_start", "content_block_stop":
				// Keep-alives and block framing carry nothing for this model.

			default:
				// Unknown event types are skipped for forward compatibility.
			}
		}
	}

	return ai.NewChatStream(iteratorFunc), nil
}

// anthropicResponse is the buffered (non-streaming) Messages API response.
type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage streamUsage `json:"usage"`
}

// sendBuffered handles the stream=false path with a synchronous POST, then
// replays the response through the standard event sequence.
func (a *Adapter) sendBuffered(ctx context.Context, body anthropicRequest) (*ai.ChatStream, error) {
	url := a.baseURL() + messagesEndpoint

	resp, decoded, err := utils.DoPostSync[anthropicResponse](ctx, a.client, url, "", body, a.buildHeaders()...)
	if err != nil {
		return nil, ai.ClassifyHTTP(resp, err)
	}

	result := &ai.ChatResult{
		Model:        decoded.Model,
		FinishReason: mapStopReason(decoded.StopReason),
		InputTokens:  decoded.Usage.InputTokens,
		OutputTokens: decoded.Usage.OutputTokens,
	}
	for _, block := range decoded.Content {
		if block.Type == "text" {
			result.Content += block.Text
		}
	}

	return ai.NewBufferedStream(result), nil
}
