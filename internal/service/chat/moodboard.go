package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vinpix/internal/domain"
	chatModels "vinpix/internal/domain/models/chat"
	"vinpix/internal/domain/repositories"
	chatSvc "vinpix/internal/domain/services/chat"
)

const defaultMoodboardTitle = "New Moodboard"

// MoodboardManager implements moodboard sessions: a board of reference images
// whose analyzed style profile steers image prompts in chat sessions. The
// board data lives in the session's snapshot slot, like a chat tree does.
type MoodboardManager struct {
	sessions repositories.SessionRepository
	objects  chatSvc.ObjectStore
	text     chatSvc.TextProvider
	model    string
	logger   *slog.Logger
}

// NewMoodboardManager creates the moodboard service using the given chat
// model for style analysis.
func NewMoodboardManager(
	sessions repositories.SessionRepository,
	objects chatSvc.ObjectStore,
	text chatSvc.TextProvider,
	model string,
	logger *slog.Logger,
) *MoodboardManager {
	return &MoodboardManager{
		sessions: sessions,
		objects:  objects,
		text:     text,
		model:    model,
		logger:   logger,
	}
}

// CreateMoodboard inserts the metadata row and writes the initial empty board.
func (m *MoodboardManager) CreateMoodboard(ctx context.Context, userID, title string) (*chatSvc.MoodboardDetail, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultMoodboardTitle
	}

	now := time.Now()
	session := &chatModels.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      chatModels.SessionTypeMoodboard,
		Title:     clampTitle(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	board := chatModels.NewMoodboard(session.ID)
	if err := m.objects.UploadJSON(ctx, snapshotKey(userID, session.ID), board); err != nil {
		return nil, fmt.Errorf("write initial moodboard %s: %w", session.ID, err)
	}

	return &chatSvc.MoodboardDetail{Session: session, Data: board}, nil
}

// GetMoodboard returns the metadata row plus the board data.
func (m *MoodboardManager) GetMoodboard(ctx context.Context, sessionID, userID string) (*chatSvc.MoodboardDetail, error) {
	session, board, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	return &chatSvc.MoodboardDetail{Session: session, Data: board}, nil
}

// UpdateMoodboard applies the request's non-nil fields. Images replaces the
// whole list, so removal and reordering are plain updates.
func (m *MoodboardManager) UpdateMoodboard(ctx context.Context, req *chatSvc.UpdateMoodboardRequest) (*chatModels.Moodboard, error) {
	_, board, err := m.load(ctx, req.SessionID, req.UserID)
	if err != nil {
		return nil, err
	}

	if req.Images != nil {
		board.Images = req.Images
	}
	if req.StyleDescription != nil {
		board.StyleDescription = *req.StyleDescription
	}
	if err := m.objects.UploadJSON(ctx, snapshotKey(req.UserID, req.SessionID), board); err != nil {
		return nil, fmt.Errorf("write moodboard %s: %w", req.SessionID, err)
	}

	update := &repositories.SessionUpdate{}
	if req.Title != nil {
		title := clampTitle(*req.Title)
		update.Title = &title
	}
	// An empty update still bumps updated_at so the board surfaces in the
	// listing.
	if err := m.sessions.UpdateSession(ctx, req.SessionID, req.UserID, update); err != nil {
		return nil, err
	}
	return &board, nil
}

// AddImage uploads a base64 JPEG and appends it to the board.
func (m *MoodboardManager) AddImage(ctx context.Context, userID, sessionID, name, imageBase64 string) (*chatModels.Moodboard, error) {
	if strings.TrimSpace(imageBase64) == "" {
		return nil, fmt.Errorf("%w: image data cannot be empty", domain.ErrValidation)
	}
	raw, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: image data is not valid base64", domain.ErrValidation)
	}

	_, board, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("smart_chat_uploads/%s/%s/%s.jpg", userID, sessionID, uuid.NewString())
	if err := m.objects.Upload(ctx, key, raw, "image/jpeg"); err != nil {
		return nil, fmt.Errorf("upload moodboard image: %w", err)
	}

	board.Images = append(board.Images, chatModels.MoodboardImage{Key: key, Name: name})
	if err := m.objects.UploadJSON(ctx, snapshotKey(userID, sessionID), board); err != nil {
		return nil, fmt.Errorf("write moodboard %s: %w", sessionID, err)
	}
	if err := m.sessions.UpdateSession(ctx, sessionID, userID, &repositories.SessionUpdate{}); err != nil {
		return nil, err
	}
	return &board, nil
}

// Analyze reads every image on the board and asks the text backend for a
// style profile, which is stored back on the board. Images that cannot be
// read are skipped; only a fully empty set fails.
func (m *MoodboardManager) Analyze(ctx context.Context, sessionID, userID string) (string, error) {
	_, board, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return "", err
	}
	if len(board.Images) == 0 {
		return "", fmt.Errorf("%w: moodboard has no images to analyze", domain.ErrValidation)
	}

	var images []string
	for _, img := range board.Images {
		if img.Key == "" {
			continue
		}
		raw, err := m.objects.Download(ctx, img.Key)
		if err != nil {
			m.logger.Warn("skipping unreadable moodboard image", "key", img.Key, "error", err)
			continue
		}
		images = append(images, base64.StdEncoding.EncodeToString(raw))
	}
	if len(images) == 0 {
		return "", fmt.Errorf("%w: none of the moodboard images could be read", domain.ErrValidation)
	}

	profile, err := m.text.Generate(ctx, &chatSvc.TextRequest{
		SystemPrompt: styleAnalysisSystemPrompt,
		UserPrompt:   "Analyze the shared visual style of these reference images and produce the style profile.",
		Model:        m.model,
		Images:       images,
	})
	if err != nil {
		return "", err
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return "", fmt.Errorf("%w: style analysis returned an empty profile", domain.ErrBackend)
	}

	board.StyleDescription = profile
	if err := m.objects.UploadJSON(ctx, snapshotKey(userID, sessionID), board); err != nil {
		return "", fmt.Errorf("write moodboard %s: %w", sessionID, err)
	}
	if err := m.sessions.UpdateSession(ctx, sessionID, userID, &repositories.SessionUpdate{}); err != nil {
		return "", err
	}
	return profile, nil
}

// StyleDescription resolves a style ID to the board's analyzed profile. An
// unanalyzed board returns "" so generation degrades to no steering.
func (m *MoodboardManager) StyleDescription(ctx context.Context, userID, styleID string) (string, error) {
	_, board, err := m.load(ctx, styleID, userID)
	if err != nil {
		return "", err
	}
	return board.StyleDescription, nil
}

func (m *MoodboardManager) load(ctx context.Context, sessionID, userID string) (*chatModels.Session, chatModels.Moodboard, error) {
	session, err := m.sessions.GetSession(ctx, sessionID, userID)
	if err != nil {
		return nil, chatModels.Moodboard{}, err
	}
	if session.Type != chatModels.SessionTypeMoodboard {
		return nil, chatModels.Moodboard{}, fmt.Errorf("%w: %s is not a moodboard", domain.ErrValidation, sessionID)
	}

	var board chatModels.Moodboard
	err = m.objects.ReadJSON(ctx, snapshotKey(userID, sessionID), &board)
	if errors.Is(err, domain.ErrNotFound) {
		board = chatModels.NewMoodboard(sessionID)
	} else if err != nil {
		return nil, chatModels.Moodboard{}, fmt.Errorf("load moodboard %s: %w", sessionID, err)
	}
	if board.Images == nil {
		board.Images = []chatModels.MoodboardImage{}
	}
	board.SessionID = sessionID
	return session, board, nil
}
