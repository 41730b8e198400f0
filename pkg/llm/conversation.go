package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Conversation is an ordered, append-only sequence of turns, oldest first.
// Repeated identical turns are valid.
type Conversation []Turn

// Last returns the most recent turn. ok is false for an empty conversation.
func (c Conversation) Last() (Turn, bool) {
	if len(c) == 0 {
		return Turn{}, false
	}
	return c[len(c)-1], true
}

// WithLastText returns a copy of the conversation whose last turn text is
// replaced. The receiver is left untouched.
func (c Conversation) WithLastText(text string) Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	if len(out) > 0 {
		out[len(out)-1].Text = text
	}
	return out
}

// Fingerprint returns a content-addressed identifier for the conversation.
// Each turn is hashed together with the hash of the turn before it, so two
// conversations that share a prefix share the intermediate hashes and any
// divergence changes every hash after it. An empty conversation yields "".
func (c Conversation) Fingerprint() string {
	var parent string
	for _, t := range c {
		parent = chainHash(t, parent)
	}
	return parent
}

type chainInput struct {
	Parent string `json:"parent,omitempty"`
	Role   Role   `json:"role"`
	Text   string `json:"content"`
	Image  string `json:"image,omitempty"`
}

func chainHash(t Turn, parent string) string {
	// Canonical JSON encoding for deterministic hashing
	data, err := json.Marshal(chainInput{Parent: parent, Role: t.Role, Text: t.Text, Image: t.Image})
	if err != nil {
		panic("failed to marshal hash input: " + err.Error())
	}

	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
