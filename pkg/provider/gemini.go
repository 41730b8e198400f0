package provider

import (
	"context"
	"strings"

	"github.com/sigmachat/sigma/pkg/llm"
)

const geminiDeltaPath = "candidates.0.content.parts.0.text"

type geminiAdapter struct {
	base
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

func (a *geminiAdapter) Send(ctx context.Context, req *Request) (*Stream, error) {
	return a.post(ctx, a.url(), a.buildRequest(req), geminiDeltaPath)
}

func (a *geminiAdapter) url() string {
	return strings.TrimRight(a.endpoint, "/") + "/" + a.model + ":streamGenerateContent?alt=sse"
}

func (a *geminiAdapter) buildRequest(req *Request) *geminiRequest {
	out := &geminiRequest{Contents: make([]geminiContent, 0, len(req.Conversation))}
	if req.SystemPrompt != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	for _, t := range req.Conversation {
		role := "user"
		if t.Role == llm.RoleAssistant {
			role = "model"
		}

		var parts []geminiPart
		if t.Text != "" {
			parts = append(parts, geminiPart{Text: t.Text})
		}
		if t.HasImage() {
			if mime, data, ok := t.DataURL(); ok {
				parts = append(parts, geminiPart{InlineData: &geminiBlob{MimeType: mime, Data: data}})
			} else {
				// Only inline bytes are accepted here; pass the link as text.
				parts = append(parts, geminiPart{Text: "Image: " + t.Image})
			}
		}
		if len(parts) == 0 {
			// Gemini rejects a content without parts.
			continue
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: parts})
	}

	return out
}
