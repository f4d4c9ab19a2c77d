package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"vinpix/internal/domain"
	chatModels "vinpix/internal/domain/models/chat"
	"vinpix/internal/domain/repositories"
	chatSvc "vinpix/internal/domain/services/chat"
)

// snapshotKey is the object-store key of a session's tree snapshot.
func snapshotKey(userID, sessionID string) string {
	return fmt.Sprintf("smart_chat/%s/%s.json", userID, sessionID)
}

// TreeGatewayImpl persists tree snapshots in the object store and mirrors the
// turn's metadata into the session row. The snapshot write and the metadata
// update are not transactional across stores; instead Save keeps the previous
// snapshot in memory and restores it when the metadata update fails, so the
// two stores never disagree for longer than one failed call.
type TreeGatewayImpl struct {
	objects  chatSvc.ObjectStore
	sessions repositories.SessionRepository
	logger   *slog.Logger
}

// NewTreeGateway creates the snapshot gateway.
func NewTreeGateway(objects chatSvc.ObjectStore, sessions repositories.SessionRepository, logger *slog.Logger) *TreeGatewayImpl {
	return &TreeGatewayImpl{
		objects:  objects,
		sessions: sessions,
		logger:   logger,
	}
}

// Load retrieves the session's snapshot. A session without a snapshot yet
// (created but never sent a turn) degrades to an empty tree rather than an
// error; the metadata row is the source of truth for existence.
func (g *TreeGatewayImpl) Load(ctx context.Context, userID, sessionID string) (chatModels.Tree, error) {
	if _, err := g.sessions.GetSession(ctx, sessionID, userID); err != nil {
		return chatModels.Tree{}, err
	}

	var tree chatModels.Tree
	err := g.objects.ReadJSON(ctx, snapshotKey(userID, sessionID), &tree)
	if errors.Is(err, domain.ErrNotFound) {
		g.logger.Debug("no snapshot yet, starting empty", "session_id", sessionID)
		return chatModels.NewTree(sessionID), nil
	}
	if err != nil {
		return chatModels.Tree{}, fmt.Errorf("load snapshot for session %s: %w", sessionID, err)
	}
	if tree.Nodes == nil {
		tree.Nodes = map[string]*chatModels.Node{}
	}
	tree.SessionID = sessionID
	return tree, nil
}

// Save writes the snapshot, then touches the session metadata. When the
// metadata update fails the previous snapshot is restored so a reload shows
// the pre-turn state, matching what the sidebar metadata still says.
func (g *TreeGatewayImpl) Save(ctx context.Context, req *chatSvc.SaveTreeRequest) error {
	key := snapshotKey(req.UserID, req.SessionID)

	var backup json.RawMessage
	if err := g.objects.ReadJSON(ctx, key, &backup); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("read snapshot backup for session %s: %w", req.SessionID, err)
	}

	if err := g.objects.UploadJSON(ctx, key, req.Tree); err != nil {
		return fmt.Errorf("write snapshot for session %s: %w", req.SessionID, err)
	}

	update := &repositories.SessionUpdate{
		Title:         req.TitleHint,
		Model:         req.Model,
		StyleID:       req.StyleID,
		ThinkingSteps: req.ThinkingSteps,
		LastMessage:   req.LastMessage,
	}
	if err := g.sessions.UpdateSession(ctx, req.SessionID, req.UserID, update); err != nil {
		if backup != nil {
			if restoreErr := g.objects.UploadJSON(ctx, key, backup); restoreErr != nil {
				g.logger.Error("snapshot restore failed after metadata error",
					"session_id", req.SessionID, "error", restoreErr)
			}
		}
		return fmt.Errorf("update session metadata for %s: %w", req.SessionID, err)
	}
	return nil
}
