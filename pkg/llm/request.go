// Package llm provides the internal representations of the conversation a
// browser posts to the relay and of the payloads the relay answers with.
package llm

// ChatRequest is the body the browser client posts to the gateway.
type ChatRequest struct {
	Messages Conversation `json:"messages"` // Conversation history, oldest first
}
