package anthropic

import "encoding/json"

// streamEvent is the envelope for every Messages API SSE payload. The "type"
// discriminator selects which of the optional sub-objects is populated.
//
// Lifecycle: message_start → content_block_start → content_block_delta(s) →
// content_block_stop → message_delta → message_stop, with ping keep-alives
// interleaved and error replacing the tail on server-side failure.
type streamEvent struct {
	Type         string              `json:"type"`
	Message      *streamMessage      `json:"message,omitempty"`       // message_start
	Delta        *streamDelta        `json:"delta,omitempty"`         // content_block_delta / message_delta
	Usage        *streamUsage        `json:"usage,omitempty"`         // message_delta
	ContentBlock *streamContentBlock `json:"content_block,omitempty"` // content_block_start
	Error        *streamError        `json:"error,omitempty"`         // error
}

type streamMessage struct {
	ID    string      `json:"id"`
	Model string      `json:"model"`
	Usage streamUsage `json:"usage"`
}

type streamDelta struct {
	Type       string `json:"type"` // "text_delta" on content_block_delta
	Text       string `json:"text,omitempty"`
	StopReason string `json:"stop_reason,omitempty"` // message_delta
}

type streamUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type streamContentBlock struct {
	Type string `json:"type"`
}

type streamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// unmarshalStreamEvent decodes one SSE data payload into the typed envelope.
func unmarshalStreamEvent(payload string) (*streamEvent, error) {
	var event streamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// mapStopReason normalises Anthropic stop reasons to the generic vocabulary.
func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "":
		return "stop"
	default:
		return reason
	}
}
