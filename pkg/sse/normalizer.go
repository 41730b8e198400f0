package sse

import (
	"bytes"

	"github.com/tidwall/gjson"
)

const (
	dataPrefix = "data:"
	doneToken  = "[DONE]"

	// DefaultMaxBuffer bounds the partial-line buffer.
	DefaultMaxBuffer = 1 << 20
)

// Normalizer reassembles lines split across reads and extracts the text delta
// from each data payload. One instance per stream; it is not safe for
// concurrent use.
type Normalizer struct {
	deltaPath string
	maxBuffer int
	buf       []byte
	done      bool
}

// NewNormalizer returns a Normalizer that reads deltas at the given gjson path,
// e.g. "choices.0.delta.content".
func NewNormalizer(deltaPath string) *Normalizer {
	return &Normalizer{deltaPath: deltaPath, maxBuffer: DefaultMaxBuffer}
}

// WithMaxBuffer overrides the partial-line buffer bound.
func (n *Normalizer) WithMaxBuffer(size int) *Normalizer {
	n.maxBuffer = size
	return n
}

// Done reports whether End or Error has been emitted.
func (n *Normalizer) Done() bool {
	return n.done
}

// Feed appends chunk and returns the events for every complete line.
//
// A payload that is not valid JSON is kept in the buffer until more bytes
// arrive, as long as it is the last complete line. Once another complete line
// follows it, it is dropped.
func (n *Normalizer) Feed(chunk []byte) []Event {
	if n.done {
		return nil
	}
	n.buf = append(n.buf, chunk...)

	events := n.drain(false)
	if !n.done && n.maxBuffer > 0 && len(n.buf) > n.maxBuffer {
		n.done = true
		n.buf = nil
		events = append(events, Event{Kind: Error, ErrKind: ErrKindBufferOverflow})
	}
	return events
}

// Finish processes whatever is left once the upstream body is closed,
// including an unterminated final line, and always ends the stream.
// Payloads that still do not parse are dropped.
func (n *Normalizer) Finish() []Event {
	if n.done {
		return nil
	}
	if len(n.buf) > 0 && n.buf[len(n.buf)-1] != '\n' {
		n.buf = append(n.buf, '\n')
	}

	events := n.drain(true)
	if !n.done {
		n.done = true
		events = append(events, Event{Kind: End})
	}
	n.buf = nil
	return events
}

func (n *Normalizer) drain(final bool) []Event {
	var events []Event
	for !n.done {
		idx := bytes.IndexByte(n.buf, '\n')
		if idx < 0 {
			return events
		}
		line := n.buf[:idx]
		rest := n.buf[idx+1:]
		line = bytes.TrimSuffix(line, []byte{'\r'})

		if len(bytes.TrimSpace(line)) == 0 || line[0] == ':' || !bytes.HasPrefix(line, []byte(dataPrefix)) {
			n.buf = rest
			continue
		}

		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 {
			n.buf = rest
			continue
		}
		if string(payload) == doneToken {
			n.buf = rest
			n.done = true
			events = append(events, Event{Kind: End})
			return events
		}

		if !gjson.ValidBytes(payload) {
			if final || bytes.IndexByte(rest, '\n') >= 0 {
				// Later complete lines exist, so this one can never be
				// completed. Drop it rather than stall what follows.
				n.buf = rest
				continue
			}
			// Leave the line where it is; the next chunk retries it.
			return events
		}

		n.buf = rest
		if text := gjson.GetBytes(payload, n.deltaPath).String(); text != "" {
			events = append(events, Delta(text))
		}
	}
	return events
}
