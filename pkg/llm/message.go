package llm

import "strings"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn represents a single message in a conversation.
type Turn struct {
	Role  Role   `json:"role"`            // "user" or "assistant"
	Text  string `json:"content"`         // The message text
	Image string `json:"image,omitempty"` // Optional data URL or plain URL (for multimodal)
}

// HasImage reports whether the turn carries an attached image.
func (t Turn) HasImage() bool {
	return strings.TrimSpace(t.Image) != ""
}

// DataURL splits a "data:<mime>;base64,<payload>" image into its mime type
// and base64 payload. ok is false for plain URLs.
func (t Turn) DataURL() (mime, data string, ok bool) {
	rest, found := strings.CutPrefix(t.Image, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return "", "", false
	}
	return mime, payload, true
}
