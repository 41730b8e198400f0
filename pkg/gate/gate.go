// Package gate decides, before any provider is contacted, whether the latest
// user turn may be forwarded.
//
// Only the last turn is inspected. A turn that carries the shared secret is
// always allowed, with the secret stripped, and switches the downstream
// persona. A turn without the secret that mentions a restricted topic is
// rejected with a fixed refusal.
package gate

import (
	"strings"

	"github.com/sigmachat/sigma/pkg/llm"
)

// SecretToken unlocks restricted topics. Matched as a case-sensitive literal
// substring.
const SecretToken = "Sigma -1-x orc0p/∆{}"

// RefusalText is returned verbatim for rejected turns.
const RefusalText = "🔒 Cette question est verrouillée. Pour accéder à ce type de contenu, vous devez inclure la clé secrète dans votre message."

// RestrictedKeywords are matched case-insensitively as substrings, not whole
// words: "vol" also matches "volume". The over-broad match is intentional and
// errs toward refusing.
var RestrictedKeywords = []string{
	"hacking", "pirater", "exploit", "cracker", "mot de passe", "password",
	"drogue", "fabriquer", "arme", "bombe", "explosif", "tuer", "meurtre",
	"illegal", "illégal", "darknet", "dark web", "virus", "malware",
	"voler", "vol", "fraude", "escroquerie", "arnaque",
}

// Outcome tags a Decision.
type Outcome int

const (
	Allowed Outcome = iota
	Rejected
)

func (o Outcome) String() string {
	if o == Rejected {
		return "rejected"
	}
	return "allowed"
}

// Decision is produced once per inbound request.
type Decision struct {
	Outcome Outcome

	// Conversation is the cleaned conversation for Allowed decisions.
	Conversation llm.Conversation

	// Unlocked is set when the secret was present; the unbounded persona
	// applies.
	Unlocked bool

	// Refusal is the text returned for Rejected decisions.
	Refusal string
}

// Evaluate applies the gate to the last turn of conv. conv is not modified.
func Evaluate(conv llm.Conversation) Decision {
	last, ok := conv.Last()
	if !ok {
		return Decision{Outcome: Allowed, Conversation: conv}
	}

	clean, unlocked := ExtractSecret(last.Text)
	if unlocked {
		return Decision{
			Outcome:      Allowed,
			Conversation: conv.WithLastText(clean),
			Unlocked:     true,
		}
	}

	if ContainsRestricted(last.Text) {
		return Decision{Outcome: Rejected, Refusal: RefusalText}
	}

	return Decision{Outcome: Allowed, Conversation: conv}
}

// ExtractSecret removes the first occurrence of SecretToken from text and
// trims the result. found is false when the token is absent, in which case
// text is returned unchanged.
func ExtractSecret(text string) (clean string, found bool) {
	if !strings.Contains(text, SecretToken) {
		return text, false
	}
	return strings.TrimSpace(strings.Replace(text, SecretToken, "", 1)), true
}

// ContainsRestricted reports whether text mentions any restricted keyword.
func ContainsRestricted(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range RestrictedKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
