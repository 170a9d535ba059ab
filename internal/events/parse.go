package events

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
)

// ParseFile reads a batch upload into events. The format follows the file
// extension: .json holds a JSON array, .jsonl and .ndjson hold one JSON
// object per line (blank lines skipped). maxBytes bounds how much of the
// reader is consumed; going over it fails the whole parse.
func ParseFile(filename string, r io.Reader, maxBytes int64) ([]Event, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file name is required")
	}
	if maxBytes > 0 {
		// One extra byte so a file of exactly maxBytes still parses.
		r = &boundedReader{r: r, remaining: maxBytes + 1, limit: maxBytes}
	}

	switch {
	case strings.HasSuffix(filename, ".json"):
		return parseJSONArray(r)
	case strings.HasSuffix(filename, ".jsonl"), strings.HasSuffix(filename, ".ndjson"):
		return parseJSONLines(r)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unsupported file format %q, expected .json, .jsonl or .ndjson", filename))
	}
}

func parseJSONArray(r io.Reader) ([]Event, error) {
	var events []Event
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&events); err != nil {
		if fileErr := asFileSizeError(err); fileErr != nil {
			return nil, fileErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid JSON array")
	}
	return events, nil
}

func parseJSONLines(r io.Reader) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err,
				fmt.Sprintf("invalid JSON at line %d", lineNumber))
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		if fileErr := asFileSizeError(err); fileErr != nil {
			return nil, fileErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading event file")
	}
	return events, nil
}

type fileSizeError struct {
	limit int64
}

func (e *fileSizeError) Error() string {
	return fmt.Sprintf("file exceeds the %d byte limit", e.limit)
}

func asFileSizeError(err error) error {
	var sizeErr *fileSizeError
	if errors.As(err, &sizeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "event file too large")
	}
	return nil
}

type boundedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, &fileSizeError{limit: b.limit}
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	b.remaining -= int64(n)
	return n, err
}
