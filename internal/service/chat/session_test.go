package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"vinpix/internal/capabilities"
	"vinpix/internal/domain"
	chatModels "vinpix/internal/domain/models/chat"
	chatSvc "vinpix/internal/domain/services/chat"
)

func newTestSessionManager(t *testing.T, sessions *memSessions, objects *memObjects) *SessionManager {
	t.Helper()
	registry, err := capabilities.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewSessionManager(sessions, objects, registry, "gemini-3.0-pro", testLogger())
}

func TestCreateSessionDefaults(t *testing.T) {
	sessions := newMemSessions()
	objects := newMemObjects()
	m := newTestSessionManager(t, sessions, objects)

	detail, err := m.CreateSession(context.Background(), &chatSvc.CreateSessionRequest{
		UserID: "u1",
		Model:  "not-a-real-model",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if detail.Session.Title != "New Chat" {
		t.Errorf("title = %q, want default", detail.Session.Title)
	}
	if detail.Session.Model != "gemini-3.0-pro" {
		t.Errorf("model = %q, unknown alias must fall back to default", detail.Session.Model)
	}
	if detail.Session.Type != chatModels.SessionTypeChat {
		t.Errorf("type = %q", detail.Session.Type)
	}

	// The initial snapshot is written up front so the first load never 404s.
	var tree chatModels.Tree
	if err := objects.ReadJSON(context.Background(), snapshotKey("u1", detail.Session.ID), &tree); err != nil {
		t.Fatalf("initial snapshot missing: %v", err)
	}
	if tree.RootNodeID != nil || len(tree.Nodes) != 0 {
		t.Errorf("initial tree = %+v, want empty", tree)
	}
}

func TestCreateSessionSetsTimestamps(t *testing.T) {
	m := newTestSessionManager(t, newMemSessions(), newMemObjects())

	detail, err := m.CreateSession(context.Background(), &chatSvc.CreateSessionRequest{UserID: "u1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if detail.Session.CreatedAt.IsZero() || detail.Session.UpdatedAt.IsZero() {
		t.Errorf("session persisted with zero timestamps: created=%v updated=%v",
			detail.Session.CreatedAt, detail.Session.UpdatedAt)
	}

	folder, err := m.CreateFolder(context.Background(), "u1", "Work")
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if folder.CreatedAt.IsZero() || folder.UpdatedAt.IsZero() {
		t.Errorf("folder persisted with zero timestamps: created=%v updated=%v",
			folder.CreatedAt, folder.UpdatedAt)
	}
}

func TestCreateSessionClampsLongTitle(t *testing.T) {
	m := newTestSessionManager(t, newMemSessions(), newMemObjects())

	long := strings.Repeat("x", 500)
	detail, err := m.CreateSession(context.Background(), &chatSvc.CreateSessionRequest{
		UserID: "u1",
		Title:  long,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := len([]rune(detail.Session.Title)); got != maxTitleLength {
		t.Errorf("title length = %d, want %d", got, maxTitleLength)
	}
}

func TestGetSessionDetailRejectsFolder(t *testing.T) {
	folder := &chatModels.Session{ID: "f1", UserID: "u1", Type: chatModels.SessionTypeFolder, Title: "Work"}
	m := newTestSessionManager(t, newMemSessions(folder), newMemObjects())

	if _, err := m.GetSessionDetail(context.Background(), "f1", "u1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestGetSessionDetailMissingSnapshotDegradesToEmpty(t *testing.T) {
	m := newTestSessionManager(t, newMemSessions(chatRow("s1", "u1")), newMemObjects())

	detail, err := m.GetSessionDetail(context.Background(), "s1", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.Tree.SessionID != "s1" || len(detail.Tree.Nodes) != 0 {
		t.Errorf("tree = %+v, want empty for s1", detail.Tree)
	}
}

func TestRenameSessionRejectsBlankTitle(t *testing.T) {
	m := newTestSessionManager(t, newMemSessions(chatRow("s1", "u1")), newMemObjects())

	if err := m.RenameSession(context.Background(), "s1", "u1", "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestDeleteSessionRemovesSnapshotAndAttachments(t *testing.T) {
	sessions := newMemSessions(chatRow("s1", "u1"))
	objects := newMemObjects()
	m := newTestSessionManager(t, sessions, objects)

	tree, _, _ := seedTree(t, "k1", "k2")
	key := snapshotKey("u1", "s1")
	if err := objects.UploadJSON(context.Background(), key, tree); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	if err := objects.Upload(context.Background(), "k1", []byte("jpeg"), "image/jpeg"); err != nil {
		t.Fatalf("seed image: %v", err)
	}

	if err := m.DeleteSession(context.Background(), "s1", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := sessions.GetSession(context.Background(), "s1", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("metadata row survived: %v", err)
	}
	var check chatModels.Tree
	if err := objects.ReadJSON(context.Background(), key, &check); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("snapshot survived: %v", err)
	}
	var raw []byte
	if err := objects.ReadJSON(context.Background(), "k1", &raw); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("attachment object survived: %v", err)
	}
}

func TestMoveToFolderValidatesTarget(t *testing.T) {
	other := chatRow("s2", "u1")
	m := newTestSessionManager(t, newMemSessions(chatRow("s1", "u1"), other), newMemObjects())

	target := "s2"
	if err := m.MoveToFolder(context.Background(), "s1", "u1", &target); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation when target is not a folder", err)
	}

	// Moving to the root is always allowed.
	if err := m.MoveToFolder(context.Background(), "s1", "u1", nil); err != nil {
		t.Fatalf("move to root: %v", err)
	}
}

func TestDeleteFolderRejectsChatSession(t *testing.T) {
	m := newTestSessionManager(t, newMemSessions(chatRow("s1", "u1")), newMemObjects())

	if err := m.DeleteFolder(context.Background(), "s1", "u1"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestAttachmentURLRequiresKey(t *testing.T) {
	m := newTestSessionManager(t, newMemSessions(), newMemObjects())

	if _, err := m.AttachmentURL(context.Background(), "", false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	url, err := m.AttachmentURL(context.Background(), "k1", true)
	if err != nil || url == "" {
		t.Fatalf("url = %q, err = %v", url, err)
	}
}
