package handler

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	chatModels "vinpix/internal/domain/models/chat"
	chatSvc "vinpix/internal/domain/services/chat"
)

// TurnOptionsBody is the wire form of per-turn generation options.
type TurnOptionsBody struct {
	Model           string   `json:"model,omitempty"`
	ThinkingSteps   int      `json:"thinking_steps,omitempty"`
	ImageCountMode  string   `json:"image_count_mode,omitempty"`
	ImageCount      int      `json:"image_count,omitempty"`
	ImageModel      string   `json:"image_model,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	Resolution      string   `json:"resolution,omitempty"`
	StyleID         *string  `json:"style_id,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

func (b TurnOptionsBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.ImageCountMode, validation.In("", "cap", "exact", "replicate")),
		validation.Field(&b.ThinkingSteps, validation.Min(0)),
		validation.Field(&b.ImageCount, validation.Min(0)),
	)
}

func (b TurnOptionsBody) toOptions() chatSvc.TurnOptions {
	return chatSvc.TurnOptions{
		Model:           b.Model,
		ThinkingSteps:   b.ThinkingSteps,
		ImageCountMode:  chatModels.ImageCountMode(b.ImageCountMode),
		ImageCount:      b.ImageCount,
		ImageModel:      b.ImageModel,
		AspectRatio:     b.AspectRatio,
		Resolution:      b.Resolution,
		StyleID:         b.StyleID,
		ReferenceImages: b.ReferenceImages,
	}
}

// SendTurnBody is the request body of POST /api/sessions/{id}/turns.
type SendTurnBody struct {
	Content      string          `json:"content"`
	ParentNodeID *string         `json:"parent_node_id,omitempty"`
	Options      TurnOptionsBody `json:"options"`
}

func (b SendTurnBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Content, validation.Required),
		validation.Field(&b.Options),
	)
}

// EditBody is the request body of the edit endpoints.
type EditBody struct {
	Content string          `json:"content"`
	Options TurnOptionsBody `json:"options"`
}

func (b EditBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Content, validation.Required),
		validation.Field(&b.Options),
	)
}

// RegenerateBody is the request body of the regenerate endpoints.
type RegenerateBody struct {
	Options TurnOptionsBody `json:"options"`
}

func (b RegenerateBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Options),
	)
}

// SwitchBranchBody selects a sibling branch.
type SwitchBranchBody struct {
	Direction string `json:"direction"`
}

func (b SwitchBranchBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Direction, validation.Required, validation.In("prev", "next")),
	)
}

// CreateSessionBody is the request body of POST /api/sessions.
type CreateSessionBody struct {
	Title    string  `json:"title,omitempty"`
	Model    string  `json:"model,omitempty"`
	FolderID *string `json:"folder_id,omitempty"`
}

func (b CreateSessionBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Title, validation.Length(0, 200)),
	)
}

// RenameSessionBody is the request body of PATCH /api/sessions/{id}.
type RenameSessionBody struct {
	Title string `json:"title"`
}

func (b RenameSessionBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Title, validation.Required, validation.Length(1, 200)),
	)
}

// MoveToFolderBody is the request body of PATCH /api/sessions/{id}/folder.
// A nil folder ID moves the session back to the root.
type MoveToFolderBody struct {
	FolderID *string `json:"folder_id"`
}

// CreateFolderBody is the request body of POST /api/folders.
type CreateFolderBody struct {
	Title string `json:"title"`
}

func (b CreateFolderBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Title, validation.Required, validation.Length(1, 200)),
	)
}

// CreateMoodboardBody is the request body of POST /api/moodboards.
type CreateMoodboardBody struct {
	Title string `json:"title,omitempty"`
}

func (b CreateMoodboardBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Title, validation.Length(0, 200)),
	)
}

// MoodboardImageBody is the wire form of a moodboard image reference.
type MoodboardImageBody struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

func (b MoodboardImageBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Key, validation.Required),
	)
}

// UpdateMoodboardBody is the request body of PATCH /api/moodboards/{id}.
// Images, when present, replaces the whole list.
type UpdateMoodboardBody struct {
	Title            *string              `json:"title,omitempty"`
	Images           []MoodboardImageBody `json:"images,omitempty"`
	StyleDescription *string              `json:"style_description,omitempty"`
}

func (b UpdateMoodboardBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Title, validation.Length(1, 200)),
		validation.Field(&b.Images),
	)
}

func (b UpdateMoodboardBody) toImages() []chatModels.MoodboardImage {
	if b.Images == nil {
		return nil
	}
	images := make([]chatModels.MoodboardImage, len(b.Images))
	for i, img := range b.Images {
		images[i] = chatModels.MoodboardImage{Key: img.Key, Name: img.Name}
	}
	return images
}

// AddMoodboardImageBody is the request body of POST /api/moodboards/{id}/images.
type AddMoodboardImageBody struct {
	Name        string `json:"name,omitempty"`
	ImageBase64 string `json:"image_base64"`
}

func (b AddMoodboardImageBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.ImageBase64, validation.Required),
	)
}

// StartQueueBody is the request body of POST /api/sessions/{id}/queue.
type StartQueueBody struct {
	Prompts []string        `json:"prompts"`
	DelayMs int             `json:"delay_ms,omitempty"`
	Options TurnOptionsBody `json:"options"`
}

func (b StartQueueBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Prompts, validation.Required, validation.Length(1, 0)),
		validation.Field(&b.DelayMs, validation.Min(0)),
		validation.Field(&b.Options),
	)
}

// BulkParseBody is the request body of POST /api/bulk/parse.
type BulkParseBody struct {
	Text string `json:"text"`
}

func (b BulkParseBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Text, validation.Required),
	)
}
