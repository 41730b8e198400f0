package llm

// CompletionResponse is the non-streaming answer shape. The gateway uses it for
// gate refusals, the overloaded fallback and internal faults so the browser
// renders all of them as ordinary assistant messages.
type CompletionResponse struct {
	Choices []CompletionChoice `json:"choices"`
}

// CompletionChoice holds one complete assistant message.
type CompletionChoice struct {
	Message CompletionMessage `json:"message"`
}

// CompletionMessage is the assistant message inside a CompletionChoice.
type CompletionMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewAssistantResponse wraps text as a single assistant choice.
func NewAssistantResponse(text string) CompletionResponse {
	return CompletionResponse{
		Choices: []CompletionChoice{{
			Message: CompletionMessage{Role: RoleAssistant, Content: text},
		}},
	}
}

// Text returns the content of the first choice, or "".
func (r CompletionResponse) Text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
