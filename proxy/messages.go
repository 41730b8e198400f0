package proxy

import "net/http"

// Fixed assistant-shaped texts. The browser renders them as ordinary replies.
const (
	OverloadedText = "⏳ SIGMA est momentanément surchargé. Réessaie dans quelques instants."
	FaultText      = "⚠️ Une erreur interne est survenue. Réessaie dans un instant."
)

// rateLimitMessage is the error text for a forwarded quota status.
func rateLimitMessage(status int) string {
	if status == http.StatusPaymentRequired {
		return "Crédits épuisés."
	}
	return "Trop de requêtes. Réessaie dans quelques instants."
}
