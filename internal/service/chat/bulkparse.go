package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"vinpix/internal/domain"
	chatSvc "vinpix/internal/domain/services/chat"
)

const bulkParseMaxAttempts = 2

// jsonObjectPattern extracts the outermost JSON object from a response that
// wrapped it in prose or a code fence.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// BulkPromptParser extracts a flat prompt list from pasted markdown via a
// schema-constrained text call. Malformed JSON gets one recovery attempt
// (extract the embedded object) before the call is retried.
type BulkPromptParser struct {
	text   chatSvc.TextProvider
	model  string
	logger *slog.Logger
}

// NewBulkPromptParser creates the parser using the given chat model.
func NewBulkPromptParser(text chatSvc.TextProvider, model string, logger *slog.Logger) *BulkPromptParser {
	return &BulkPromptParser{
		text:   text,
		model:  model,
		logger: logger,
	}
}

// ParsePrompts parses raw markdown into a prefix plus complete prompts. Each
// returned prompt already has the prefix folded in by the model; prompts that
// came back without it are prefixed here as a safety net.
func (p *BulkPromptParser) ParsePrompts(ctx context.Context, raw string) (*chatSvc.BulkPrompts, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: input text cannot be empty", domain.ErrValidation)
	}

	req := &chatSvc.TextRequest{
		SystemPrompt: bulkParseSystemPrompt,
		UserPrompt:   buildBulkParsePrompt(raw),
		Model:        p.model,
		Schema:       bulkPromptsSchema(),
	}

	var lastErr error
	for attempt := 1; attempt <= bulkParseMaxAttempts; attempt++ {
		resp, err := p.text.Generate(ctx, req)
		if err != nil {
			return nil, err
		}

		parsed, err := decodeBulkPrompts(resp)
		if err != nil {
			lastErr = err
			p.logger.Warn("bulk parse returned malformed JSON, retrying", "attempt", attempt, "error", err)
			continue
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("%w: failed to parse prompts: %v", domain.ErrBackend, lastErr)
}

// decodeBulkPrompts decodes the model's JSON, recovering an embedded object
// when the response carries surrounding text.
func decodeBulkPrompts(resp string) (*chatSvc.BulkPrompts, error) {
	var parsed chatSvc.BulkPrompts
	if err := json.Unmarshal([]byte(resp), &parsed); err != nil {
		match := jsonObjectPattern.FindString(resp)
		if match == "" {
			return nil, err
		}
		if err := json.Unmarshal([]byte(match), &parsed); err != nil {
			return nil, err
		}
	}

	prefix := strings.TrimSpace(parsed.Prefix)
	prompts := make([]string, 0, len(parsed.Prompts))
	for _, prompt := range parsed.Prompts {
		prompt = strings.TrimSpace(prompt)
		if prompt == "" {
			continue
		}
		if prefix != "" && !strings.HasPrefix(prompt, prefix) {
			prompt = prefix + " " + prompt
		}
		prompts = append(prompts, prompt)
	}
	if len(prompts) == 0 {
		return nil, fmt.Errorf("no prompts extracted")
	}

	return &chatSvc.BulkPrompts{Prefix: prefix, Prompts: prompts}, nil
}
