// Package wire decodes the two streaming framings used by chat backends:
// Server-Sent Events and newline-delimited JSON. It turns a byte stream into
// discrete protocol records and knows nothing about any specific AI API.
package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// defaultMaxLineSize is the maximum size of a single stream line (1 MB).
// The default bufio.Scanner limit is 64 KiB, which is too small for large
// events such as long completions or embedded base64 payloads. If a line
// exceeds the configured limit the scanner returns [ErrLineTooLarge], which
// terminates the stream.
const defaultMaxLineSize = 1 * 1024 * 1024

// ErrLineTooLarge is returned when a single line exceeds the configured byte
// ceiling. Unlike a malformed record, this error is terminal: the decoder has
// no way to resynchronise past an unbounded line.
var ErrLineTooLarge = errors.New("wire: stream line exceeds configured size limit")

// Event is one decoded SSE event. Multiple data lines are joined with "\n" in
// encounter order. A data payload equal to the literal "[DONE]" is delivered
// like any other event; only backend-specific mappers treat it specially.
type Event struct {
	Name     string   // "event:" field, empty when absent
	Data     string   // Joined "data:" lines
	ID       string   // "id:" field
	Retry    string   // "retry:" field, left as text; no backend in scope consumes it
	Comments []string // Comment lines, populated only with KeepComments
}

// Scanner reads Server-Sent Events from an io.Reader. Events are separated by
// a blank line; both CRLF and bare LF line terminators are accepted. Lines of
// the form "field: value" or "field:value" populate the data, event, id and
// retry fields; an empty value yields an empty string, not an omitted field.
// Comment lines (leading ':') are dropped unless KeepComments is set. The
// sequence is lazy and restartable per call, but not rewindable.
type Scanner struct {
	scanner      *bufio.Scanner
	keepComments bool
}

// ScannerOption configures a Scanner.
type ScannerOption func(*scannerConfig)

type scannerConfig struct {
	keepComments bool
	maxLineSize  int
}

// KeepComments makes the scanner surface comment lines on the decoded events
// instead of dropping them. An event consisting solely of comments is then
// emitted; without this option it produces nothing.
func KeepComments() ScannerOption {
	return func(c *scannerConfig) { c.keepComments = true }
}

// MaxLineSize overrides the per-line byte ceiling.
func MaxLineSize(n int) ScannerOption {
	return func(c *scannerConfig) {
		if n > 0 {
			c.maxLineSize = n
		}
	}
}

// NewScanner creates a Scanner reading SSE events from reader.
func NewScanner(reader io.Reader, opts ...ScannerOption) *Scanner {
	cfg := scannerConfig{maxLineSize: defaultMaxLineSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), cfg.maxLineSize)
	return &Scanner{
		scanner:      scanner,
		keepComments: cfg.keepComments,
	}
}

// Next returns the next decoded event. It returns io.EOF when the stream ends
// cleanly and [ErrLineTooLarge] when a line exceeds the byte ceiling. A final
// event without a trailing blank line is flushed before io.EOF.
func (s *Scanner) Next() (*Event, error) {
	var (
		event     Event
		dataLines []string
		seenField bool
	)

	flush := func() *Event {
		event.Data = strings.Join(dataLines, "\n")
		return &event
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		// bufio.ScanLines strips \n but leaves \r from CRLF terminators.
		line = strings.TrimSuffix(line, "\r")

		// Blank line terminates the event.
		if line == "" {
			if seenField || (s.keepComments && len(event.Comments) > 0) {
				return flush(), nil
			}
			// Nothing accumulated (or comments only): keep reading.
			event = Event{}
			dataLines = nil
			continue
		}

		if strings.HasPrefix(line, ":") {
			if s.keepComments {
				event.Comments = append(event.Comments, strings.TrimPrefix(line, ":"))
			}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			dataLines = append(dataLines, value)
			seenField = true
		case "event":
			event.Name = value
			seenField = true
		case "id":
			event.ID = value
			seenField = true
		case "retry":
			event.Retry = value
			seenField = true
		default:
			// Unknown fields are ignored per the SSE processing model.
		}
	}

	if err := s.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrLineTooLarge, err)
		}
		return nil, fmt.Errorf("sse scanner error: %w", err)
	}

	// Flush a trailing event that was never terminated by a blank line.
	if seenField || (s.keepComments && len(event.Comments) > 0) {
		return flush(), nil
	}

	return nil, io.EOF
}

// splitField separates an SSE line into field name and value. A single space
// after the colon is not part of the value; "field:value" and "field: value"
// decode identically. A line with no colon is a field name with empty value.
func splitField(line string) (field, value string) {
	colon := strings.IndexByte(line, ':')
	if colon == -1 {
		return line, ""
	}
	field = line[:colon]
	value = line[colon+1:]
	value = strings.TrimPrefix(value, " ")
	return field, value
}
