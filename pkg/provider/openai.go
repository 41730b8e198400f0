package provider

import (
	"context"

	"github.com/sigmachat/sigma/pkg/llm"
)

const openAIDeltaPath = "choices.0.delta.content"

type openAIAdapter struct {
	base
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

// openAIMessage content is either a plain string or a list of parts when an
// image is attached.
type openAIMessage struct {
	Role    llm.Role `json:"role"`
	Content any      `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

func (a *openAIAdapter) Send(ctx context.Context, req *Request) (*Stream, error) {
	return a.post(ctx, a.endpoint, a.buildRequest(req), openAIDeltaPath)
}

func (a *openAIAdapter) buildRequest(req *Request) *openAIRequest {
	messages := make([]openAIMessage, 0, len(req.Conversation)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{Role: llm.RoleSystem, Content: req.SystemPrompt})
	}

	for _, t := range req.Conversation {
		if !t.HasImage() {
			messages = append(messages, openAIMessage{Role: t.Role, Content: t.Text})
			continue
		}
		parts := make([]openAIPart, 0, 2)
		if t.Text != "" {
			parts = append(parts, openAIPart{Type: "text", Text: t.Text})
		}
		parts = append(parts, openAIPart{Type: "image_url", ImageURL: &openAIImageURL{URL: t.Image}})
		messages = append(messages, openAIMessage{Role: t.Role, Content: parts})
	}

	return &openAIRequest{Model: a.model, Messages: messages, Stream: true}
}
