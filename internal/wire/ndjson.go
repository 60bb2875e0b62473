package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// NDJSONScanner reads newline-delimited JSON from an io.Reader: each
// non-empty line is one JSON document. Partial lines without a trailing
// newline are buffered until complete by the underlying bufio.Scanner.
//
// A malformed record must not kill a long-lived generation stream, so invalid
// lines are first run through jsonrepair (local backends occasionally emit
// truncated or loosely quoted JSON) and skipped entirely if still invalid.
// Only a line exceeding the byte ceiling terminates decoding, with
// [ErrLineTooLarge].
type NDJSONScanner struct {
	scanner *bufio.Scanner
}

// NewNDJSONScanner creates an NDJSONScanner reading from reader.
func NewNDJSONScanner(reader io.Reader, opts ...ScannerOption) *NDJSONScanner {
	cfg := scannerConfig{maxLineSize: defaultMaxLineSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), cfg.maxLineSize)
	return &NDJSONScanner{scanner: scanner}
}

// Next returns the next complete JSON document, or io.EOF at end of stream.
func (s *NDJSONScanner) Next() (json.RawMessage, error) {
	for s.scanner.Scan() {
		line := strings.TrimSuffix(s.scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if json.Valid([]byte(line)) {
			return json.RawMessage(line), nil
		}

		// Attempt repair before dropping the record.
		repaired, err := jsonrepair.JSONRepair(line)
		if err == nil && json.Valid([]byte(repaired)) {
			return json.RawMessage(repaired), nil
		}

		slog.Debug("skipping malformed ndjson record", "preview", preview(line))
	}

	if err := s.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrLineTooLarge, err)
		}
		return nil, fmt.Errorf("ndjson scanner error: %w", err)
	}

	return nil, io.EOF
}

func preview(line string) string {
	const max = 120
	if len(line) > max {
		return line[:max] + "..."
	}
	return line
}
