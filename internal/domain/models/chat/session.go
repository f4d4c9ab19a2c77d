package chat

import (
	"time"
)

// SessionType distinguishes the rows of the session listing.
type SessionType string

const (
	SessionTypeChat      SessionType = "chat"
	SessionTypeFolder    SessionType = "folder"
	SessionTypeMoodboard SessionType = "moodboard"
)

// Session is the metadata record for one chat session (or folder entry in the
// same listing). The tree snapshot itself lives in the object store, keyed by
// session; metadata is what the sidebar needs without loading any tree.
type Session struct {
	ID            string      `json:"id" db:"id"`
	UserID        string      `json:"user_id" db:"user_id"`
	Type          SessionType `json:"type" db:"type"`
	Title         string      `json:"title" db:"title"`
	FolderID      *string     `json:"folder_id,omitempty" db:"folder_id"`
	Model         string      `json:"model,omitempty" db:"model"`
	StyleID       *string     `json:"style_id,omitempty" db:"style_id"`
	ThinkingSteps int         `json:"thinking_steps,omitempty" db:"thinking_steps"`
	LastMessage   string      `json:"last_message" db:"last_message"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}
