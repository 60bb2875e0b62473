package wire

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// collectEvents drains the scanner and fails the test on any error other than
// a clean io.EOF.
func collectEvents(t *testing.T, s *Scanner) []*Event {
	t.Helper()

	var events []*Event
	for {
		event, err := s.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("Next returned unexpected error: %v", err)
		}
		events = append(events, event)
	}
}

func TestScanner_MultiLineDataJoinsWithNewline(t *testing.T) {
	input := "data: first\ndata: second\ndata: third\n\n"

	events := collectEvents(t, NewScanner(strings.NewReader(input)))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if got, want := events[0].Data, "first\nsecond\nthird"; got != want {
		t.Errorf("Data = %q, want %q", got, want)
	}
}

func TestScanner_FieldWithAndWithoutSpace(t *testing.T) {
	// "field: value" and "field:value" must decode identically; only one
	// leading space is stripped, so "data:  x" keeps one space.
	input := "data:no-space\n\ndata: with-space\n\ndata:  double\n\n"

	events := collectEvents(t, NewScanner(strings.NewReader(input)))
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, want := range []string{"no-space", "with-space", " double"} {
		if events[i].Data != want {
			t.Errorf("event %d Data = %q, want %q", i, events[i].Data, want)
		}
	}
}

func TestScanner_CRLFAndLFProduceIdenticalOutput(t *testing.T) {
	lf := "event: message_start\nid: 7\ndata: {\"a\":1}\n\ndata: end\n\n"
	crlf := strings.ReplaceAll(lf, "\n", "\r\n")

	lfEvents := collectEvents(t, NewScanner(strings.NewReader(lf)))
	crlfEvents := collectEvents(t, NewScanner(strings.NewReader(crlf)))

	if len(lfEvents) != len(crlfEvents) {
		t.Fatalf("event counts differ: LF %d vs CRLF %d", len(lfEvents), len(crlfEvents))
	}
	for i := range lfEvents {
		if !lfEvents[i].equalScalars(crlfEvents[i]) {
			t.Errorf("event %d differs: LF %+v vs CRLF %+v", i, lfEvents[i], crlfEvents[i])
		}
	}
}

// Event contains a slice field, so compare the scalar parts explicitly.
func (e *Event) equalScalars(other *Event) bool {
	return e.Name == other.Name && e.Data == other.Data && e.ID == other.ID && e.Retry == other.Retry
}

func TestScanner_NamedFieldsCaptured(t *testing.T) {
	input := "event: delta\nid: 42\nretry: 3000\ndata: payload\n\n"

	events := collectEvents(t, NewScanner(strings.NewReader(input)))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.Name != "delta" || event.ID != "42" || event.Retry != "3000" || event.Data != "payload" {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestScanner_CommentsDroppedByDefault(t *testing.T) {
	input := ": keep-alive\ndata: real\n: another comment\n\n"

	events := collectEvents(t, NewScanner(strings.NewReader(input)))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Data != "real" || len(events[0].Comments) != 0 {
		t.Errorf("unexpected event: %+v", events[0])
	}
}

func TestScanner_CommentOnlyEventProducesNothing(t *testing.T) {
	input := ": ping\n\n: ping again\n\ndata: actual\n\n"

	events := collectEvents(t, NewScanner(strings.NewReader(input)))
	if len(events) != 1 {
		t.Fatalf("expected only the data event, got %d events", len(events))
	}
	if events[0].Data != "actual" {
		t.Errorf("Data = %q, want %q", events[0].Data, "actual")
	}
}

func TestScanner_KeepCommentsOptIn(t *testing.T) {
	input := ": ping\n\ndata: x\n: trailing\n\n"

	events := collectEvents(t, NewScanner(strings.NewReader(input), KeepComments()))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if len(events[0].Comments) != 1 || events[0].Comments[0] != " ping" {
		t.Errorf("comment-only event = %+v", events[0])
	}
	if events[1].Data != "x" || len(events[1].Comments) != 1 {
		t.Errorf("data event = %+v", events[1])
	}
}

func TestScanner_DoneSentinelPassesThrough(t *testing.T) {
	input := "data: {\"x\":1}\n\ndata: [DONE]\n\n"

	events := collectEvents(t, NewScanner(strings.NewReader(input)))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Data != "[DONE]" {
		t.Errorf("sentinel Data = %q, want literal [DONE]", events[1].Data)
	}
}

func TestScanner_EmptyFieldValueYieldsEmptyString(t *testing.T) {
	// "data:" with no value is still a data line contributing an empty string.
	input := "data:\ndata: second\n\nevent:\ndata: x\n\n"

	events := collectEvents(t, NewScanner(strings.NewReader(input)))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if got, want := events[0].Data, "\nsecond"; got != want {
		t.Errorf("Data = %q, want %q", got, want)
	}
	if events[1].Name != "" || events[1].Data != "x" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestScanner_FinalEventWithoutTrailingBlankLineIsFlushed(t *testing.T) {
	input := "data: tail"

	events := collectEvents(t, NewScanner(strings.NewReader(input)))
	if len(events) != 1 || events[0].Data != "tail" {
		t.Fatalf("expected flushed trailing event, got %+v", events)
	}
}

func TestScanner_LineExceedingCeilingTerminatesStream(t *testing.T) {
	huge := "data: " + strings.Repeat("a", 4096) + "\n\n"

	scanner := NewScanner(strings.NewReader(huge), MaxLineSize(1024))
	_, err := scanner.Next()
	if !errors.Is(err, ErrLineTooLarge) {
		t.Fatalf("expected ErrLineTooLarge, got %v", err)
	}
}

func TestScanner_UnknownFieldsIgnored(t *testing.T) {
	input := "weird: value\ndata: kept\n\n"

	events := collectEvents(t, NewScanner(strings.NewReader(input)))
	if len(events) != 1 || events[0].Data != "kept" {
		t.Fatalf("unexpected events: %+v", events)
	}
}
