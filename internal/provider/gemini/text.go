package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"vinpix/internal/domain"
	chatSvc "vinpix/internal/domain/services/chat"
)

// TextProvider implements the TextProvider interface on the Gemini API.
type TextProvider struct {
	client *genai.Client
	logger *slog.Logger
}

// NewTextProvider creates a Gemini-backed text provider.
func NewTextProvider(ctx context.Context, apiKey string, logger *slog.Logger) (*TextProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key cannot be empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &TextProvider{
		client: client,
		logger: logger,
	}, nil
}

// Close releases the underlying API client.
func (p *TextProvider) Close() error {
	return p.client.Close()
}

// Generate performs one text-completion call. With a schema set, the model
// is constrained to schema-conformant JSON via responseSchema; the raw text
// of the first candidate is returned either way - payload decoding is the
// caller's concern.
func (p *TextProvider) Generate(ctx context.Context, req *chatSvc.TextRequest) (string, error) {
	model := p.client.GenerativeModel(MapModel(req.Model))

	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	model.SetTemperature(1.7)
	model.SetTopK(40)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(65536)

	// Disable the safety filters, matching the service's established
	// generation settings.
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}

	if req.Schema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = toGenaiSchema(req.Schema)
	}

	parts := []genai.Part{genai.Text(req.UserPrompt)}
	for _, img := range req.Images {
		mime, data, err := decodeBase64Image(img)
		if err != nil {
			return "", fmt.Errorf("%w: decode reference image: %v", domain.ErrValidation, err)
		}
		parts = append(parts, genai.Blob{MIMEType: mime, Data: data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: empty candidate list", domain.ErrBackend)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text parts in response", domain.ErrBackend)
	}

	return sb.String(), nil
}

// toGenaiSchema converts the domain response schema into the SDK's schema
// type. The domain subset carries no additionalProperties, so nothing needs
// stripping for Gemini.
func toGenaiSchema(s *chatSvc.ResponseSchema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:     schemaType(s.Type),
		Required: s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	return out
}

func schemaType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeUnspecified
	}
}

// decodeBase64Image accepts either a bare base64 string or a data URI and
// returns the mime type and raw bytes.
func decodeBase64Image(s string) (string, []byte, error) {
	mime := "image/jpeg"
	payload := s
	if strings.HasPrefix(s, "data:") {
		header, encoded, found := strings.Cut(s, ",")
		if !found {
			return "", nil, errors.New("malformed data uri")
		}
		payload = encoded
		header = strings.TrimPrefix(header, "data:")
		if m, _, ok := strings.Cut(header, ";"); ok && m != "" {
			mime = m
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return mime, data, nil
}
