package repositories

import (
	"context"

	"vinpix/internal/domain/models/chat"
)

// SessionUpdate carries the optional metadata fields touched by a settled
// turn. Nil fields are left unchanged; updated_at is always bumped.
type SessionUpdate struct {
	Title         *string
	Model         *string
	StyleID       *string
	ThinkingSteps *int
	LastMessage   *string
}

// SessionRepository defines metadata persistence for chat sessions and
// folders. Tree snapshots are not stored here - they live in the object
// store, keyed by session.
type SessionRepository interface {
	// CreateSession inserts a session or folder row.
	CreateSession(ctx context.Context, session *chat.Session) error

	// GetSession retrieves one session owned by the user.
	GetSession(ctx context.Context, sessionID, userID string) (*chat.Session, error)

	// ListSessions retrieves the user's sessions and folders ordered by
	// updated_at descending.
	ListSessions(ctx context.Context, userID string, limit int) ([]chat.Session, error)

	// UpdateSession applies the non-nil fields of update and bumps
	// updated_at. Called once per settled turn and by rename.
	UpdateSession(ctx context.Context, sessionID, userID string, update *SessionUpdate) error

	// UpdateSessionFolder moves a session into a folder, or to the root
	// when folderID is nil.
	UpdateSessionFolder(ctx context.Context, sessionID, userID string, folderID *string) error

	// MoveFolderContentsToRoot clears folder_id on every session inside
	// the folder. Used before a folder row is deleted.
	MoveFolderContentsToRoot(ctx context.Context, folderID, userID string) error

	// DeleteSession removes the metadata row.
	DeleteSession(ctx context.Context, sessionID, userID string) error
}
