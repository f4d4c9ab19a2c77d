package chat

import (
	"context"
)

// ResponseSchema is the minimal JSON-schema subset the text backends accept
// as a structured-output constraint. It deliberately has no
// additionalProperties field - Gemini's responseSchema rejects it.
type ResponseSchema struct {
	Type       string                     `json:"type"`
	Properties map[string]*ResponseSchema `json:"properties,omitempty"`
	Items      *ResponseSchema            `json:"items,omitempty"`
	Required   []string                   `json:"required,omitempty"`
}

// TextRequest is one call to the text-completion backend. When Schema is set
// the backend is asked for schema-conformant JSON; otherwise plain text.
// Images are base64-encoded reference images passed inline.
type TextRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Images       []string
	Schema       *ResponseSchema
}

// TextProvider is the text-completion backend. Errors surface as a generic
// backend failure - no retryable/non-retryable taxonomy is assumed.
type TextProvider interface {
	Generate(ctx context.Context, req *TextRequest) (string, error)
}

// ImageRequest is one call to the image-synthesis backend.
type ImageRequest struct {
	UserID               string
	SessionID            string
	Prompt               string
	ReferenceImageBase64 string
	AspectRatio          string
	Resolution           string
	Model                string
}

// ImageProvider is the image-synthesis backend. On success it returns the
// object-store key of the stored image.
type ImageProvider interface {
	Generate(ctx context.Context, req *ImageRequest) (string, error)
}
