package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"vinpix/internal/domain"
)

// TurnPayload is the schema-constrained output of one text-backend call:
// the assistant reply plus the image prompts the reply wants rendered.
type TurnPayload struct {
	Chat         string   `json:"chat"`
	ImagesPrompt []string `json:"imagesPrompt,omitempty"`
}

// DecodeTurnPayload decodes a raw text-backend response leniently:
// a schema-conformant object is used as-is, a bare string (or JSON string)
// becomes the chat text, and an unrecognized object is stringified as a
// fallback chat. An empty chat with no image prompts is a backend failure,
// not a valid empty turn.
func DecodeTurnPayload(raw string) (TurnPayload, error) {
	trimmed := strings.TrimSpace(raw)
	payload := decodeLenient(trimmed)

	// Drop blank prompts the backend sometimes emits.
	prompts := payload.ImagesPrompt[:0:0]
	for _, p := range payload.ImagesPrompt {
		if strings.TrimSpace(p) != "" {
			prompts = append(prompts, p)
		}
	}
	payload.ImagesPrompt = prompts

	if strings.TrimSpace(payload.Chat) == "" && len(payload.ImagesPrompt) == 0 {
		return TurnPayload{}, fmt.Errorf("%w: empty chat and image prompts", domain.ErrBackend)
	}
	return payload, nil
}

func decodeLenient(raw string) TurnPayload {
	if raw == "" {
		return TurnPayload{}
	}

	var probe interface{}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		// Not JSON at all - treat the whole response as chat text.
		return TurnPayload{Chat: raw}
	}

	switch v := probe.(type) {
	case string:
		return TurnPayload{Chat: v}
	case map[string]interface{}:
		p := TurnPayload{}
		if chat, ok := v["chat"].(string); ok {
			p.Chat = chat
		}
		if list, ok := v["imagesPrompt"].([]interface{}); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					p.ImagesPrompt = append(p.ImagesPrompt, s)
				}
			}
		}
		if p.Chat == "" && len(p.ImagesPrompt) == 0 {
			// Unrecognized object: stringify it so the user still sees
			// something instead of a silently eaten reply.
			return TurnPayload{Chat: raw}
		}
		return p
	default:
		return TurnPayload{Chat: raw}
	}
}

// ImageCountMode governs how many attachment placeholders a decoded payload
// produces.
type ImageCountMode string

const (
	// ImageCountCap keeps the backend's prompts, truncated at the
	// configured maximum. Never pads.
	ImageCountCap ImageCountMode = "cap"
	// ImageCountExact emits exactly N prompts: truncates to the first N
	// and pads by repeating the last prompt when the backend returned
	// fewer.
	ImageCountExact ImageCountMode = "exact"
	// ImageCountReplicate honours only the backend's first prompt and
	// duplicates it N times, even when the backend ignored the
	// single-prompt instruction and returned more.
	ImageCountReplicate ImageCountMode = "replicate"
)

// ApplyImageCountPolicy shapes the backend's prompt list per the mode and
// count. An empty input always yields an empty result - no mode fabricates
// prompts out of nothing.
func ApplyImageCountPolicy(prompts []string, mode ImageCountMode, n int) []string {
	if len(prompts) == 0 || n <= 0 {
		return nil
	}

	switch mode {
	case ImageCountExact:
		out := make([]string, 0, n)
		out = append(out, prompts[:min(len(prompts), n)]...)
		for len(out) < n {
			out = append(out, out[len(out)-1])
		}
		return out
	case ImageCountReplicate:
		out := make([]string, n)
		for i := range out {
			out[i] = prompts[0]
		}
		return out
	default: // ImageCountCap
		return append([]string(nil), prompts[:min(len(prompts), n)]...)
	}
}
