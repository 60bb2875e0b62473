package ai

import "iter"

// StreamEventType identifies the kind of delta carried by a StreamEvent.
type StreamEventType string

const (
	// StreamEventContent indicates a text content delta.
	StreamEventContent StreamEventType = "content"
	// StreamEventInputTokens carries the prompt token count once the backend reports it.
	StreamEventInputTokens StreamEventType = "input_tokens"
	// StreamEventOutputTokens carries the completion token count once the backend reports it.
	StreamEventOutputTokens StreamEventType = "output_tokens"
	// StreamEventModel confirms the model identifier the backend actually used.
	StreamEventModel StreamEventType = "model"
	// StreamEventDone signals that the stream has finished normally. Terminal.
	StreamEventDone StreamEventType = "done"
	// StreamEventError signals a failure that terminated the stream. Terminal.
	StreamEventError StreamEventType = "error"
)

// Terminal reports whether an event of this type ends the sequence.
func (t StreamEventType) Terminal() bool {
	return t == StreamEventDone || t == StreamEventError
}

// StreamEvent represents a single delta yielded during response streaming.
// Each event carries exactly one type of payload, identified by the Type field.
// Events for one request are delivered in backend emission order; the only
// buffering underneath is what SSE multi-line field assembly requires.
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	Content      string          `json:"content,omitempty"`       // Text delta (Type == StreamEventContent)
	Tokens       int             `json:"tokens,omitempty"`        // Token count (input_tokens / output_tokens)
	Model        string          `json:"model,omitempty"`         // Confirmed model (Type == StreamEventModel)
	FinishReason string          `json:"finish_reason,omitempty"` // Present on StreamEventDone
	Err          *Error          `json:"error,omitempty"`         // Present on StreamEventError
}

// ChatStream wraps a streaming iterator and provides accumulation of deltas
// into a final ChatResult. It supports range-based iteration for incremental
// consumption and a convenience Collect() for callers who want the whole
// response.
//
// Exactly one reader may consume a ChatStream. Callers must consume it, either
// by iterating Iter() (breaking early is fine) or by calling Collect(): the
// producing adapter holds an open HTTP response body that is only released
// when the iterator completes or is abandoned via a loop break.
type ChatStream struct {
	iterator iter.Seq2[StreamEvent, error]
}

// NewChatStream creates a ChatStream from a raw streaming iterator. The
// iterator yields StreamEvent values with a nil error for normal deltas;
// a non-nil error signals a mid-stream failure and ends the sequence. Every
// well-formed sequence ends with a terminal done or error event.
func NewChatStream(iterator iter.Seq2[StreamEvent, error]) *ChatStream {
	return &ChatStream{iterator: iterator}
}

// NewErrorStream builds a stream whose only event is the given terminal error.
// Adapters use it for failures detected after the stream object must already
// exist (the pre-flight path returns errors synchronously instead).
func NewErrorStream(err *Error) *ChatStream {
	return NewChatStream(func(yield func(StreamEvent, error) bool) {
		yield(StreamEvent{Type: StreamEventError, Err: err}, nil)
	})
}

// NewBufferedStream wraps an already-complete result as a stream. Adapters
// use it when the caller opted out of streaming: the buffered response is
// replayed as the usual event sequence ending in a done event, so consumers
// handle both modes with one code path.
func NewBufferedStream(result *ChatResult) *ChatStream {
	return NewChatStream(func(yield func(StreamEvent, error) bool) {
		if result.Model != "" {
			if !yield(StreamEvent{Type: StreamEventModel, Model: result.Model}, nil) {
				return
			}
		}
		if result.InputTokens > 0 {
			if !yield(StreamEvent{Type: StreamEventInputTokens, Tokens: result.InputTokens}, nil) {
				return
			}
		}
		if result.Content != "" {
			if !yield(StreamEvent{Type: StreamEventContent, Content: result.Content}, nil) {
				return
			}
		}
		if result.OutputTokens > 0 {
			if !yield(StreamEvent{Type: StreamEventOutputTokens, Tokens: result.OutputTokens}, nil) {
				return
			}
		}
		yield(StreamEvent{Type: StreamEventDone, FinishReason: result.FinishReason}, nil)
	})
}

// Iter returns the underlying iterator for use with range-over-func loops.
//
//	for event, err := range stream.Iter() {
//	    if err != nil { handle err }
//	    ...
//	}
func (stream *ChatStream) Iter() iter.Seq2[StreamEvent, error] {
	return stream.iterator
}

// Collect consumes the entire stream and returns the accumulated ChatResult.
// A mid-stream failure (iterator error or terminal error event) stops
// collection and returns the partial result alongside the error.
func (stream *ChatStream) Collect() (*ChatResult, error) {
	result := &ChatResult{}

	for event, err := range stream.iterator {
		if err != nil {
			return result, err
		}

		switch event.Type {
		case StreamEventContent:
			result.Content += event.Content
		case StreamEventInputTokens:
			result.InputTokens = event.Tokens
		case StreamEventOutputTokens:
			result.OutputTokens = event.Tokens
		case StreamEventModel:
			result.Model = event.Model
		case StreamEventDone:
			result.FinishReason = event.FinishReason
		case StreamEventError:
			if event.Err != nil {
				return result, event.Err
			}
			return result, NewError(ErrProvider, "stream terminated with an empty error event")
		}
	}

	return result, nil
}
