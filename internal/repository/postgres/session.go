package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vinpix/internal/domain"
	"vinpix/internal/domain/models/chat"
	"vinpix/internal/domain/repositories"
)

// PostgresSessionRepository implements the SessionRepository interface using PostgreSQL
type PostgresSessionRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewSessionRepository creates a new PostgresSessionRepository
func NewSessionRepository(config *RepositoryConfig) repositories.SessionRepository {
	return &PostgresSessionRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateSession inserts a session or folder row
func (r *PostgresSessionRepository) CreateSession(ctx context.Context, session *chat.Session) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, type, title, folder_id, model, style_id, thinking_steps, last_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.tables.Sessions)

	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Type,
		session.Title,
		session.FolderID,
		session.Model,
		session.StyleID,
		session.ThinkingSteps,
		session.LastMessage,
		session.CreatedAt,
		session.UpdatedAt,
	)

	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("session %s already exists", session.ID),
				ResourceType: string(session.Type),
				ResourceID:   session.ID,
			}
		}
		return fmt.Errorf("create session: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID
func (r *PostgresSessionRepository) GetSession(ctx context.Context, sessionID, userID string) (*chat.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, type, title, folder_id, model, style_id, thinking_steps, last_message, created_at, updated_at
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Sessions)

	var session chat.Session
	err := r.pool.QueryRow(ctx, query, sessionID, userID).Scan(
		&session.ID,
		&session.UserID,
		&session.Type,
		&session.Title,
		&session.FolderID,
		&session.Model,
		&session.StyleID,
		&session.ThinkingSteps,
		&session.LastMessage,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &session, nil
}

// ListSessions retrieves the user's sessions and folders ordered by updated_at
func (r *PostgresSessionRepository) ListSessions(ctx context.Context, userID string, limit int) ([]chat.Session, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, type, title, folder_id, model, style_id, thinking_steps, last_message, created_at, updated_at
		FROM %s
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, r.tables.Sessions)

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []chat.Session
	for rows.Next() {
		var session chat.Session
		err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.Type,
			&session.Title,
			&session.FolderID,
			&session.Model,
			&session.StyleID,
			&session.ThinkingSteps,
			&session.LastMessage,
			&session.CreatedAt,
			&session.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	// Return empty slice instead of nil
	if sessions == nil {
		sessions = []chat.Session{}
	}

	return sessions, nil
}

// UpdateSession applies the non-nil fields of update and bumps updated_at
func (r *PostgresSessionRepository) UpdateSession(ctx context.Context, sessionID, userID string, update *repositories.SessionUpdate) error {
	sets := []string{"updated_at = $1"}
	args := []interface{}{time.Now()}

	appendSet := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Title != nil {
		appendSet("title", *update.Title)
	}
	if update.Model != nil {
		appendSet("model", *update.Model)
	}
	if update.StyleID != nil {
		appendSet("style_id", *update.StyleID)
	}
	if update.ThinkingSteps != nil {
		appendSet("thinking_steps", *update.ThinkingSteps)
	}
	if update.LastMessage != nil {
		appendSet("last_message", *update.LastMessage)
	}

	args = append(args, sessionID)
	idArg := len(args)
	args = append(args, userID)
	userArg := len(args)

	query := fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE id = $%d AND user_id = $%d
	`, r.tables.Sessions, strings.Join(sets, ", "), idArg, userArg)

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	return nil
}

// UpdateSessionFolder moves a session into a folder (or to root when nil)
func (r *PostgresSessionRepository) UpdateSessionFolder(ctx context.Context, sessionID, userID string, folderID *string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET folder_id = $1, updated_at = $2
		WHERE id = $3 AND user_id = $4
	`, r.tables.Sessions)

	result, err := r.pool.Exec(ctx, query, folderID, time.Now(), sessionID, userID)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("%w: folder does not exist", domain.ErrValidation)
		}
		return fmt.Errorf("update session folder: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	return nil
}

// MoveFolderContentsToRoot clears folder_id on every session in the folder
func (r *PostgresSessionRepository) MoveFolderContentsToRoot(ctx context.Context, folderID, userID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET folder_id = NULL, updated_at = $1
		WHERE folder_id = $2 AND user_id = $3
	`, r.tables.Sessions)

	_, err := r.pool.Exec(ctx, query, time.Now(), folderID, userID)
	if err != nil {
		return fmt.Errorf("move folder contents to root: %w", err)
	}

	return nil
}

// DeleteSession removes the metadata row
func (r *PostgresSessionRepository) DeleteSession(ctx context.Context, sessionID, userID string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Sessions)

	result, err := r.pool.Exec(ctx, query, sessionID, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}

	return nil
}
