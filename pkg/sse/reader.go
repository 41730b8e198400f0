package sse

import (
	"errors"
	"io"
)

const readChunkSize = 32 * 1024

// Reader is a lazy, forward-only event sequence over an upstream body. It is
// finite: it ends after End, after a read error, or when the body closes.
type Reader struct {
	r       io.Reader
	n       *Normalizer
	buf     []byte
	pending []Event
	err     error
	done    bool
}

// NewReader wraps r. Each Reader owns its own Normalizer, so concurrent
// requests never share buffer state.
func NewReader(r io.Reader, deltaPath string) *Reader {
	return &Reader{
		r:   r,
		n:   NewNormalizer(deltaPath),
		buf: make([]byte, readChunkSize),
	}
}

// Next returns the next event. ok is false once the sequence is exhausted;
// the last event returned before that is always End or Error.
func (r *Reader) Next() (Event, bool) {
	for len(r.pending) == 0 {
		if r.done {
			return Event{}, false
		}
		r.fill()
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	if ev.Kind != TokenDelta {
		r.done = true
		r.pending = nil
	}
	return ev, true
}

// Err returns the read error that ended the sequence, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) fill() {
	n, err := r.r.Read(r.buf)
	if n > 0 {
		r.pending = append(r.pending, r.n.Feed(r.buf[:n])...)
	}
	if err == nil {
		if r.n.Done() && len(r.pending) == 0 {
			r.done = true
		}
		return
	}

	if errors.Is(err, io.EOF) {
		r.pending = append(r.pending, r.n.Finish()...)
	} else {
		r.err = err
		r.pending = append(r.pending, Event{Kind: Error, ErrKind: ErrKindRead})
	}
	if len(r.pending) == 0 {
		r.done = true
	}
}
