package chat

import (
	"fmt"
	"strings"

	chatModels "vinpix/internal/domain/models/chat"
	chatSvc "vinpix/internal/domain/services/chat"
)

// turnResponseSchema constrains a turn's text call to the payload the
// orchestrator decodes: the reply text plus zero or more image prompts.
func turnResponseSchema() *chatSvc.ResponseSchema {
	return &chatSvc.ResponseSchema{
		Type: "object",
		Properties: map[string]*chatSvc.ResponseSchema{
			"chat": {Type: "string"},
			"imagesPrompt": {
				Type:  "array",
				Items: &chatSvc.ResponseSchema{Type: "string"},
			},
		},
		Required: []string{"chat"},
	}
}

// bulkPromptsSchema constrains the bulk-parse call to a prefix plus the
// extracted prompt list.
func bulkPromptsSchema() *chatSvc.ResponseSchema {
	return &chatSvc.ResponseSchema{
		Type: "object",
		Properties: map[string]*chatSvc.ResponseSchema{
			"prefix": {Type: "string"},
			"prompts": {
				Type:  "array",
				Items: &chatSvc.ResponseSchema{Type: "string"},
			},
		},
		Required: []string{"prompts"},
	}
}

const turnSystemPrompt = `You are a creative assistant inside a visual chat tool.
Reply to the user in the "chat" field.
When the user asks for images, describe each image as a complete, standalone
generation prompt in the "imagesPrompt" array: subject, style, composition,
lighting, colors. One entry per requested image. When no image is wanted,
return an empty array.`

const singleImageInstruction = `The user wants variations of ONE image. Return exactly one entry in
"imagesPrompt": a single, fully self-contained prompt. Do not return more.`

const bulkParseSystemPrompt = `You are a prompt extraction assistant.

Your task:
1. Look for a prefix/shared instruction (lines like "Prefix:", "Style:", or header content)
2. Extract individual items from bullet points or numbered lists
3. Combine prefix with each item to create complete prompts

Rules:
- If you find a prefix, extract it and combine it with EACH item
- If no prefix, just return the items as prompts
- Clean up formatting, remove markdown symbols
- Each prompt should be a complete, standalone instruction
- Return ONLY the prompts array, nothing else`

const titleSystemPrompt = `Generate a short title (at most 6 words) summarizing the user's message.
Return only the title text, with no quotes and no trailing punctuation.`

const styleAnalysisSystemPrompt = `You are an expert visual style analyzer.
Analyze the provided reference images and extract a detailed "Style Profile"
describing their shared visual style with technical precision. Cover, in
order: visual style and art medium (aesthetic approach, rendering style,
mood); color analysis (primary/secondary/accent colors with hex codes,
saturation, temperature, gradient usage); shape language and proportions
(rounded vs angular, border radii, typical dimensions); line and border
styles (stroke weights, corner styles); lighting and atmosphere (direction,
shadow character, contrast); composition and layout (spacing system,
hierarchy); typography (font character, sizes, text effects); textures and
materials (surface finish, overlays, depth).
Return only the style profile text.`

// styleInstruction appends a moodboard's analyzed style profile to the turn
// system prompt so every image prompt the model writes follows it.
func styleInstruction(profile string) string {
	return "Every image prompt you write must follow this visual style profile:\n" + profile
}

// buildTranscript flattens the active path into a plain-text transcript for
// the text backend. Attachments are summarized by their prompts so the model
// knows what was already rendered without re-sending image bytes.
func buildTranscript(path []*chatModels.Node) string {
	var sb strings.Builder
	for _, n := range path {
		switch n.Role {
		case chatModels.RoleUser:
			sb.WriteString("User: ")
		case chatModels.RoleAssistant:
			sb.WriteString("Assistant: ")
		}
		sb.WriteString(n.Content)
		for _, a := range n.Attachments {
			if a.Prompt != "" {
				sb.WriteString(fmt.Sprintf("\n[generated image: %s]", a.Prompt))
			}
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// buildTurnPrompt assembles the user prompt of the main text call: the
// transcript so far with the new user message at its tail.
func buildTurnPrompt(path []*chatModels.Node) string {
	return buildTranscript(path)
}

// buildRefinementPrompt assembles a refinement pass: the model is shown its
// previous draft and asked to improve it under the same schema.
func buildRefinementPrompt(transcript string, draft chatModels.TurnPayload) string {
	var sb strings.Builder
	sb.WriteString(transcript)
	sb.WriteString("\n\n--- Your previous draft ---\n")
	sb.WriteString("chat: ")
	sb.WriteString(draft.Chat)
	for _, p := range draft.ImagesPrompt {
		sb.WriteString("\nimage prompt: ")
		sb.WriteString(p)
	}
	sb.WriteString("\n\nRevise the draft: improve clarity, fix mistakes, and make each image prompt more specific and vivid. Return the full revised payload.")
	return sb.String()
}

// buildBulkParsePrompt wraps the raw pasted text for extraction.
func buildBulkParsePrompt(raw string) string {
	return fmt.Sprintf("Parse this text and extract prompts:\n\n%s\n\nReturn the prefix (if any) and the complete prompts array.", raw)
}
