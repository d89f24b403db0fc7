package network

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidMessage is returned when a control-channel line isn't
// well-formed UTF-8 JSON.
var ErrInvalidMessage = errors.New("network: invalid JSON message")

// LineReader segments an inbound control-channel stream by the LF
// byte. Each line is a complete UTF-8 JSON object; lone CRs are
// stripped since some clients send CRLF line endings.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps r for line-at-a-time reading.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r)}
}

// ReadLine returns the next LF-delimited line with its trailing CR/LF
// stripped. Returns io.EOF when the underlying reader is exhausted.
func (lr *LineReader) ReadLine() ([]byte, error) {
	line, err := lr.r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, err
	}
	line = bytes.TrimRight(line, "\r\n")
	return line, nil
}

// DecodeCommand unmarshals a line into dst, wrapping decode failures
// as ErrInvalidMessage so callers can map them to the fixed
// "Invalid JSON format" client message without inspecting the
// underlying error text.
func DecodeCommand(line []byte, dst any) error {
	if err := json.Unmarshal(line, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// EncodeLine marshals v and appends the LF terminator used by every
// control-channel response.
func EncodeLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("network: marshaling response: %w", err)
	}
	return append(data, '\n'), nil
}

// PeekCommand reads just the "command" field out of a raw JSON line,
// used by the dispatcher to route before decoding into a specific
// request type.
func PeekCommand(line []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return env.Command, nil
}
