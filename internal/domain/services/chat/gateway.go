package chat

import (
	"context"

	chatModels "vinpix/internal/domain/models/chat"
)

// ObjectStore is binary/json storage by key with time-limited access URLs.
type ObjectStore interface {
	// Upload writes raw bytes under the given key.
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// UploadJSON marshals v and writes it under the given key.
	UploadJSON(ctx context.Context, key string, v interface{}) error

	// ReadJSON reads the object at key and unmarshals it into v.
	ReadJSON(ctx context.Context, key string, v interface{}) error

	// Download reads the raw bytes of the object at key.
	Download(ctx context.Context, key string) ([]byte, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys []string) error

	// AccessURL returns a time-limited URL for the object. With download
	// set, the URL forces an attachment disposition.
	AccessURL(ctx context.Context, key string, download bool) (string, error)
}

// SaveTreeRequest carries one settled turn's durable output: the full tree
// snapshot plus the metadata fields to touch. Nil metadata fields are left
// unchanged.
type SaveTreeRequest struct {
	UserID        string
	SessionID     string
	Tree          chatModels.Tree
	TitleHint     *string
	Model         *string
	StyleID       *string
	ThinkingSteps *int
	LastMessage   *string
}

// TreeGateway durably stores and retrieves full tree snapshots keyed by
// session. Called once per settled turn; no transactionality stronger than
// "last write wins per session" is assumed.
type TreeGateway interface {
	Load(ctx context.Context, userID, sessionID string) (chatModels.Tree, error)
	Save(ctx context.Context, req *SaveTreeRequest) error
}
