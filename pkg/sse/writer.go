package sse

import (
	"bufio"
	"fmt"

	"github.com/tidwall/sjson"
)

const deltaFrameTemplate = `{"choices":[{"delta":{}}]}`

// Writer emits the normalized wire format:
//
//	data: {"choices":[{"delta":{"content":"<text>"}}]}\n\n
//	data: [DONE]\n\n
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w.
func NewWriter(w *bufio.Writer) *Writer {
	return &Writer{w: w}
}

// Delta writes one token frame and flushes it to the client.
func (w *Writer) Delta(text string) error {
	frame, err := DeltaFrame(text)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, "%s %s\n\n", dataPrefix, frame); err != nil {
		return err
	}
	return w.w.Flush()
}

// Comment writes an SSE comment line, which clients skip.
func (w *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", text); err != nil {
		return err
	}
	return w.w.Flush()
}

// Done writes the terminating sentinel.
func (w *Writer) Done() error {
	if _, err := fmt.Fprintf(w.w, "%s %s\n\n", dataPrefix, doneToken); err != nil {
		return err
	}
	return w.w.Flush()
}

// DeltaFrame returns the JSON payload carrying text.
func DeltaFrame(text string) ([]byte, error) {
	frame, err := sjson.SetBytes([]byte(deltaFrameTemplate), "choices.0.delta.content", text)
	if err != nil {
		return nil, fmt.Errorf("building delta frame: %w", err)
	}
	return frame, nil
}
