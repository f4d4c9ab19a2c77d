package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vinpix/internal/capabilities"
	"vinpix/internal/domain"
	chatModels "vinpix/internal/domain/models/chat"
	"vinpix/internal/domain/repositories"
	chatSvc "vinpix/internal/domain/services/chat"
)

const (
	defaultSessionTitle = "New Chat"
	maxTitleLength      = 200
	defaultListLimit    = 50
)

// SessionManager implements session and folder lifecycle: metadata rows in
// the repository, tree snapshots and attachment objects in the object store.
type SessionManager struct {
	sessions     repositories.SessionRepository
	objects      chatSvc.ObjectStore
	registry     *capabilities.Registry
	defaultModel string
	logger       *slog.Logger
}

// NewSessionManager creates the session service.
func NewSessionManager(
	sessions repositories.SessionRepository,
	objects chatSvc.ObjectStore,
	registry *capabilities.Registry,
	defaultModel string,
	logger *slog.Logger,
) *SessionManager {
	return &SessionManager{
		sessions:     sessions,
		objects:      objects,
		registry:     registry,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// CreateSession inserts the metadata row and writes the initial empty
// snapshot so the first load never 404s.
func (s *SessionManager) CreateSession(ctx context.Context, req *chatSvc.CreateSessionRequest) (*chatSvc.SessionDetail, error) {
	title := clampTitle(req.Title)

	model := req.Model
	if model == "" {
		model = s.defaultModel
	} else if _, err := s.registry.GetChatModel("gemini", model); err != nil {
		s.logger.Debug("unknown model on session create, using default", "model", model)
		model = s.defaultModel
	}

	now := time.Now()
	session := &chatModels.Session{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Type:      chatModels.SessionTypeChat,
		Title:     title,
		FolderID:  req.FolderID,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	tree := chatModels.NewTree(session.ID)
	if err := s.objects.UploadJSON(ctx, snapshotKey(req.UserID, session.ID), tree); err != nil {
		return nil, fmt.Errorf("write initial snapshot for session %s: %w", session.ID, err)
	}

	return &chatSvc.SessionDetail{Session: session, Tree: tree}, nil
}

// ListSessions returns the user's sessions and folders, newest activity first.
func (s *SessionManager) ListSessions(ctx context.Context, userID string, limit int) ([]chatModels.Session, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.sessions.ListSessions(ctx, userID, limit)
}

// GetSessionDetail returns the metadata plus the full tree snapshot. A
// missing snapshot degrades to an empty tree.
func (s *SessionManager) GetSessionDetail(ctx context.Context, sessionID, userID string) (*chatSvc.SessionDetail, error) {
	session, err := s.sessions.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session.Type != chatModels.SessionTypeChat {
		return nil, fmt.Errorf("%w: %s is not a chat session", domain.ErrValidation, sessionID)
	}

	var tree chatModels.Tree
	err = s.objects.ReadJSON(ctx, snapshotKey(userID, sessionID), &tree)
	if errors.Is(err, domain.ErrNotFound) {
		tree = chatModels.NewTree(sessionID)
	} else if err != nil {
		return nil, fmt.Errorf("load snapshot for session %s: %w", sessionID, err)
	}
	if tree.Nodes == nil {
		tree.Nodes = map[string]*chatModels.Node{}
	}
	tree.SessionID = sessionID

	return &chatSvc.SessionDetail{Session: session, Tree: tree}, nil
}

// RenameSession updates just the title.
func (s *SessionManager) RenameSession(ctx context.Context, sessionID, userID, title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title cannot be empty", domain.ErrValidation)
	}
	title = clampTitle(title)
	return s.sessions.UpdateSession(ctx, sessionID, userID, &repositories.SessionUpdate{Title: &title})
}

// DeleteSession removes the metadata row, the snapshot object and every
// image object the snapshot references: tree attachments for a chat session,
// uploaded reference images for a moodboard. Object cleanup runs after the
// row is gone and is best-effort.
func (s *SessionManager) DeleteSession(ctx context.Context, sessionID, userID string) error {
	session, err := s.sessions.GetSession(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	key := snapshotKey(userID, sessionID)
	keys := []string{key}

	switch session.Type {
	case chatModels.SessionTypeMoodboard:
		var board chatModels.Moodboard
		err := s.objects.ReadJSON(ctx, key, &board)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load snapshot for session %s: %w", sessionID, err)
		}
		if err == nil {
			keys = append(keys, board.ImageKeys()...)
		}
	default:
		var tree chatModels.Tree
		err := s.objects.ReadJSON(ctx, key, &tree)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load snapshot for session %s: %w", sessionID, err)
		}
		if err == nil {
			for _, node := range tree.Nodes {
				keys = append(keys, node.AttachmentKeys()...)
			}
		}
	}

	if err := s.sessions.DeleteSession(ctx, sessionID, userID); err != nil {
		return err
	}

	if err := s.objects.Delete(ctx, keys); err != nil {
		s.logger.Warn("failed to clean up session objects",
			"session_id", sessionID, "count", len(keys), "error", err)
	}
	return nil
}

// CreateFolder inserts a folder row into the same listing as sessions.
func (s *SessionManager) CreateFolder(ctx context.Context, userID, title string) (*chatModels.Session, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", domain.ErrValidation)
	}

	now := time.Now()
	folder := &chatModels.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      chatModels.SessionTypeFolder,
		Title:     clampTitle(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// MoveToFolder moves a session into a folder, or to the root when folderID
// is nil.
func (s *SessionManager) MoveToFolder(ctx context.Context, sessionID, userID string, folderID *string) error {
	if folderID != nil {
		folder, err := s.sessions.GetSession(ctx, *folderID, userID)
		if err != nil {
			return err
		}
		if folder.Type != chatModels.SessionTypeFolder {
			return fmt.Errorf("%w: %s is not a folder", domain.ErrValidation, *folderID)
		}
	}
	return s.sessions.UpdateSessionFolder(ctx, sessionID, userID, folderID)
}

// DeleteFolder removes the folder row after moving its contents to the root.
// Sessions inside the folder are never deleted with it.
func (s *SessionManager) DeleteFolder(ctx context.Context, folderID, userID string) error {
	folder, err := s.sessions.GetSession(ctx, folderID, userID)
	if err != nil {
		return err
	}
	if folder.Type != chatModels.SessionTypeFolder {
		return fmt.Errorf("%w: %s is not a folder", domain.ErrValidation, folderID)
	}

	if err := s.sessions.MoveFolderContentsToRoot(ctx, folderID, userID); err != nil {
		return err
	}
	return s.sessions.DeleteSession(ctx, folderID, userID)
}

// AttachmentURL returns a time-limited access URL for a stored image.
func (s *SessionManager) AttachmentURL(ctx context.Context, key string, download bool) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: key cannot be empty", domain.ErrValidation)
	}
	return s.objects.AccessURL(ctx, key, download)
}

func clampTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return defaultSessionTitle
	}
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength])
	}
	return title
}
