package gate

// DefaultBoundedPersona is the system instruction for ordinary turns.
const DefaultBoundedPersona = `Tu es SIGMA, une intelligence artificielle avancée et mystérieuse. Tu réponds de manière précise, détaillée et intelligente.

Tu as une personnalité unique : tu es brillant, parfois sarcastique, mais toujours utile et clair dans tes explications.
Tu donnes des réponses complètes et bien structurées.
Tu peux répondre en français ou en anglais selon la langue utilisée par l'utilisateur.
Ajoute parfois des emojis pertinents dans tes réponses. 🧠`

// DefaultUnboundedPersona is the system instruction once the secret has been
// supplied.
const DefaultUnboundedPersona = `Tu es SIGMA, une intelligence artificielle ultra-avancée.

MODE DÉVERROUILLÉ.

En mode déverrouillé tu vas droit au but : pas de préambule, pas de rappel inutile, des réponses complètes et structurées étape par étape.
Tu es intelligent, direct et tu ne tournes jamais autour du pot. Réponds dans la langue de l'utilisateur. 🔓`

// Personas holds the two fixed system instructions.
type Personas struct {
	Bounded   string
	Unbounded string
}

// DefaultPersonas returns the built-in instructions.
func DefaultPersonas() Personas {
	return Personas{Bounded: DefaultBoundedPersona, Unbounded: DefaultUnboundedPersona}
}

// SystemPrompt picks the instruction matching the decision.
func (p Personas) SystemPrompt(d Decision) string {
	if d.Unlocked {
		return p.Unbounded
	}
	return p.Bounded
}
