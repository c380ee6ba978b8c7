package provider

import "context"

// ItemData is one content item as it appears in the request JSON.
type ItemData struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Src  string `json:"src,omitempty"`
	Alt  string `json:"alt,omitempty"`
}

// Request represents the full input JSON structure sent to the model.
// Context items are provided for reference only and are not translated.
type Request struct {
	TargetLanguage string     `json:"target_language"`
	ContextBefore  []ItemData `json:"context_before,omitempty"`
	Items          []ItemData `json:"items"`
	ContextAfter   []ItemData `json:"context_after,omitempty"`
}

// ResponseField is the single string property the model must return.
const ResponseField = "translated_xhtml"

// Response represents the output JSON structure expected from the model.
type Response struct {
	TranslatedXHTML string `json:"translated_xhtml"`
	Usage           Usage  `json:"-"` // Filled from provider metadata, not the model reply
}

// Usage holds token usage information.
type Usage struct {
	PromptTokenCount     int
	CandidatesTokenCount int
	TotalTokenCount      int
}

// Add accumulates another usage record.
func (u *Usage) Add(o Usage) {
	u.PromptTokenCount += o.PromptTokenCount
	u.CandidatesTokenCount += o.CandidatesTokenCount
	u.TotalTokenCount += o.TotalTokenCount
}

// Translator interface for mocking and dependency injection.
type Translator interface {
	Translate(ctx context.Context, request Request) (*Response, error)
	SetSystemInstruction(prompt string)
}

// ResponseSchema describes the reply contract as a JSON schema object.
func ResponseSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			ResponseField: map[string]any{
				"type":        "string",
				"description": "XHTML body fragment with the translated items in input order",
			},
		},
		"required":             []string{ResponseField},
		"additionalProperties": false,
	}
}
