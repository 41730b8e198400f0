// Package sse turns provider-specific, newline-delimited "data:" event
// streams into a single normalized sequence of token deltas, and writes that
// sequence back out in the relay's own wire format.
package sse

// Kind tags an Event.
type Kind int

const (
	// TokenDelta carries the next piece of generated text.
	TokenDelta Kind = iota
	// End marks normal termination.
	End
	// Error marks unrecoverable termination; ErrKind says why.
	Error
)

func (k Kind) String() string {
	switch k {
	case TokenDelta:
		return "token_delta"
	case End:
		return "end"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Error kinds.
const (
	ErrKindRead           = "read"
	ErrKindBufferOverflow = "buffer_overflow"
)

// Event is one element of a normalized stream.
type Event struct {
	Kind    Kind
	Text    string
	ErrKind string
}

// Delta builds a TokenDelta event.
func Delta(text string) Event {
	return Event{Kind: TokenDelta, Text: text}
}
