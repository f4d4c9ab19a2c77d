package chat

import (
	"context"

	chatModels "vinpix/internal/domain/models/chat"
)

// TurnOptions tunes one generation turn.
type TurnOptions struct {
	// Model is the chat-model alias; empty selects the configured default.
	Model string
	// ThinkingSteps > 1 adds that many sequential refinement passes.
	ThinkingSteps int
	// ImageCountMode / ImageCount govern how many attachment placeholders
	// the decoded payload produces (see chat.ApplyImageCountPolicy).
	ImageCountMode chatModels.ImageCountMode
	ImageCount     int
	// Image-synthesis parameters, validated against the capability registry.
	ImageModel  string
	AspectRatio string
	Resolution  string
	// StyleID is persisted with the session metadata on save.
	StyleID *string
	// ReferenceImages are base64 images forwarded to the backends.
	ReferenceImages []string
}

// SendTurnRequest drives one full turn under the given parent node
// (nil = the tree's current node).
type SendTurnRequest struct {
	UserID       string
	SessionID    string
	ParentNodeID *string
	Content      string
	Options      TurnOptions
}

// RegenerateNodeRequest re-runs an assistant node in place: content and
// attachments are overwritten, descendants survive.
type RegenerateNodeRequest struct {
	UserID    string
	SessionID string
	NodeID    string
	Options   TurnOptions
}

// RegenerateImageRequest re-runs a single attachment's image call with its
// stored prompt, skipping text generation entirely.
type RegenerateImageRequest struct {
	UserID       string
	SessionID    string
	NodeID       string
	AttachmentID string
	Options      TurnOptions
}

// EditRequest rewrites a user node's content. Branching mode creates a
// sibling (alternate timeline); direct mode overwrites in place and
// regenerates the node's first child, preserving grandchildren.
type EditRequest struct {
	UserID    string
	SessionID string
	NodeID    string
	Content   string
	Options   TurnOptions
}

// TurnResult is the settled outcome of a turn.
type TurnResult struct {
	Tree              chatModels.Tree `json:"tree"`
	UserNodeID        string          `json:"user_node_id,omitempty"`
	AssistantNodeID   string          `json:"assistant_node_id,omitempty"`
	FailedAttachments int             `json:"failed_attachments"`
}

// TurnPhase names the orchestrator's observable checkpoints.
type TurnPhase string

const (
	PhaseUserNodeAttached     TurnPhase = "user_node_attached"
	PhaseTextRequested        TurnPhase = "text_requested"
	PhaseTextDecoded          TurnPhase = "text_decoded"
	PhasePlaceholdersAttached TurnPhase = "placeholders_attached"
	PhaseImagesInFlight       TurnPhase = "images_in_flight"
	PhaseSettled              TurnPhase = "settled"
)

// TurnObserver receives the tree snapshot at each checkpoint so a caller can
// render intermediate state. Between checkpoints the tree is a consistent,
// readable value. Observers must not mutate the snapshot.
type TurnObserver func(phase TurnPhase, tree chatModels.Tree)

// TurnService drives generation turns against a session's tree.
type TurnService interface {
	SendTurn(ctx context.Context, req *SendTurnRequest) (*TurnResult, error)
	RegenerateNode(ctx context.Context, req *RegenerateNodeRequest) (*TurnResult, error)
	RegenerateImage(ctx context.Context, req *RegenerateImageRequest) (*TurnResult, error)
	EditAndBranch(ctx context.Context, req *EditRequest) (*TurnResult, error)
	DirectEdit(ctx context.Context, req *EditRequest) (*TurnResult, error)

	// SwitchBranch selects a sibling branch and persists the new current
	// pointer. Returns the updated tree.
	SwitchBranch(ctx context.Context, userID, sessionID, nodeID string, dir chatModels.Direction) (*TurnResult, error)

	// DeleteNode cascades deletion of a subtree, cleans up the backing
	// objects of every removed attachment, and persists the tree.
	DeleteNode(ctx context.Context, userID, sessionID, nodeID string) (*TurnResult, error)
}

// CreateSessionRequest creates a new chat session.
type CreateSessionRequest struct {
	UserID   string
	Title    string
	Model    string
	FolderID *string
}

// SessionDetail is a session's metadata plus its full tree snapshot.
type SessionDetail struct {
	Session *chatModels.Session `json:"session"`
	Tree    chatModels.Tree     `json:"tree"`
}

// SessionService manages session and folder metadata plus snapshot lifecycle.
type SessionService interface {
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionDetail, error)
	ListSessions(ctx context.Context, userID string, limit int) ([]chatModels.Session, error)
	GetSessionDetail(ctx context.Context, sessionID, userID string) (*SessionDetail, error)
	RenameSession(ctx context.Context, sessionID, userID, title string) error
	// DeleteSession removes the metadata row, the snapshot object and every
	// attachment object referenced by the tree.
	DeleteSession(ctx context.Context, sessionID, userID string) error

	CreateFolder(ctx context.Context, userID, title string) (*chatModels.Session, error)
	MoveToFolder(ctx context.Context, sessionID, userID string, folderID *string) error
	// DeleteFolder removes the folder and moves its contents to the root.
	DeleteFolder(ctx context.Context, folderID, userID string) error

	// AttachmentURL returns a time-limited access URL for a stored image.
	AttachmentURL(ctx context.Context, key string, download bool) (string, error)
}

// MoodboardDetail is a moodboard's metadata row plus its image/style data.
type MoodboardDetail struct {
	Session *chatModels.Session  `json:"session"`
	Data    chatModels.Moodboard `json:"data"`
}

// UpdateMoodboardRequest applies the non-nil fields to a moodboard. Images
// replaces the whole list (the original exposes reorder/remove that way).
type UpdateMoodboardRequest struct {
	UserID           string
	SessionID        string
	Title            *string
	Images           []chatModels.MoodboardImage
	StyleDescription *string
}

// MoodboardService manages moodboard sessions: reference image boards whose
// analyzed style profile can steer image generation in chat sessions.
type MoodboardService interface {
	CreateMoodboard(ctx context.Context, userID, title string) (*MoodboardDetail, error)
	GetMoodboard(ctx context.Context, sessionID, userID string) (*MoodboardDetail, error)
	UpdateMoodboard(ctx context.Context, req *UpdateMoodboardRequest) (*chatModels.Moodboard, error)

	// AddImage uploads a base64 image and appends it to the board.
	AddImage(ctx context.Context, userID, sessionID, name, imageBase64 string) (*chatModels.Moodboard, error)

	// Analyze runs style analysis over the board's images and stores the
	// resulting style profile on the board.
	Analyze(ctx context.Context, sessionID, userID string) (string, error)
}

// StyleResolver resolves a style ID (a moodboard session) to its analyzed
// style profile text. An unknown or empty profile is not an error for
// generation; callers degrade to no style steering.
type StyleResolver interface {
	StyleDescription(ctx context.Context, userID, styleID string) (string, error)
}

// QueueItemFailure records one failed prompt of a bulk run.
type QueueItemFailure struct {
	Index  int    `json:"index"`
	Prompt string `json:"prompt"`
	Error  string `json:"error"`
}

// QueueStatus is the observable state of a session's bulk run. Progress is
// reported after each item settles, never predicted ahead of completion.
type QueueStatus struct {
	Running   bool               `json:"running"`
	Cancelled bool               `json:"cancelled"`
	Current   int                `json:"current"`
	Total     int                `json:"total"`
	Failures  []QueueItemFailure `json:"failures,omitempty"`
}

// StartQueueRequest starts a bulk run: each prompt goes through the full
// turn pipeline sequentially with DelayMs between settled items.
type StartQueueRequest struct {
	UserID    string
	SessionID string
	Prompts   []string
	DelayMs   int
	Options   TurnOptions
}

// QueueService runs at most one bulk queue per session. Cancellation is
// cooperative: the flag is checked between items and an in-flight turn is
// allowed to settle.
type QueueService interface {
	Start(ctx context.Context, req *StartQueueRequest) error
	Cancel(userID, sessionID string) error
	Status(userID, sessionID string) (*QueueStatus, error)
}

// BulkPrompts is the parsed form of a pasted markdown task list.
type BulkPrompts struct {
	Prefix  string   `json:"prefix"`
	Prompts []string `json:"prompts"`
}

// BulkParser turns raw markdown (heading prefix + bullet items) into the
// flat prompt list the queue consumes.
type BulkParser interface {
	ParsePrompts(ctx context.Context, raw string) (*BulkPrompts, error)
}
