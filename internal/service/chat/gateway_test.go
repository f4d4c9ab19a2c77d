package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"vinpix/internal/domain"
	chatModels "vinpix/internal/domain/models/chat"
	"vinpix/internal/domain/repositories"
	chatSvc "vinpix/internal/domain/services/chat"
)

func saveReq(userID, sessionID string, tree chatModels.Tree, lastMessage *string) *chatSvc.SaveTreeRequest {
	return &chatSvc.SaveTreeRequest{
		UserID:      userID,
		SessionID:   sessionID,
		Tree:        tree,
		LastMessage: lastMessage,
	}
}

// memObjects is an in-memory object store that round-trips JSON for real, so
// snapshot backup and restore behave as they would against the bucket.
type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{data: map[string][]byte{}}
}

func (m *memObjects) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memObjects) UploadJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memObjects) ReadJSON(ctx context.Context, key string, v interface{}) error {
	m.mu.Lock()
	raw, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	return json.Unmarshal(raw, v)
}

func (m *memObjects) Download(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
	}
	return append([]byte(nil), raw...), nil
}

func (m *memObjects) Delete(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memObjects) AccessURL(ctx context.Context, key string, download bool) (string, error) {
	return "https://signed.example/" + key, nil
}

// memSessions is a fake session repository with injectable update failures.
type memSessions struct {
	mu        sync.Mutex
	sessions  map[string]*chatModels.Session
	updates   []*repositories.SessionUpdate
	updateErr error
}

func newMemSessions(rows ...*chatModels.Session) *memSessions {
	m := &memSessions{sessions: map[string]*chatModels.Session{}}
	for _, row := range rows {
		m.sessions[row.ID] = row
	}
	return m
}

func (m *memSessions) CreateSession(ctx context.Context, session *chatModels.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *memSessions) GetSession(ctx context.Context, sessionID, userID string) (*chatModels.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return s, nil
}

func (m *memSessions) ListSessions(ctx context.Context, userID string, limit int) ([]chatModels.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []chatModels.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessions) UpdateSession(ctx context.Context, sessionID, userID string, update *repositories.SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	m.updates = append(m.updates, update)
	return nil
}

func (m *memSessions) UpdateSessionFolder(ctx context.Context, sessionID, userID string, folderID *string) error {
	return nil
}

func (m *memSessions) MoveFolderContentsToRoot(ctx context.Context, folderID, userID string) error {
	return nil
}

func (m *memSessions) DeleteSession(ctx context.Context, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func chatRow(id, userID string) *chatModels.Session {
	return &chatModels.Session{ID: id, UserID: userID, Type: chatModels.SessionTypeChat, Title: "New Chat"}
}

func TestGatewayLoadWithoutSnapshotStartsEmpty(t *testing.T) {
	g := NewTreeGateway(newMemObjects(), newMemSessions(chatRow("s1", "u1")), testLogger())

	tree, err := g.Load(context.Background(), "u1", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tree.SessionID != "s1" || len(tree.Nodes) != 0 || tree.RootNodeID != nil {
		t.Errorf("tree = %+v, want empty tree for s1", tree)
	}
}

func TestGatewayLoadUnknownSession(t *testing.T) {
	g := NewTreeGateway(newMemObjects(), newMemSessions(), testLogger())

	if _, err := g.Load(context.Background(), "u1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGatewayLoadEnforcesOwnership(t *testing.T) {
	g := NewTreeGateway(newMemObjects(), newMemSessions(chatRow("s1", "u1")), testLogger())

	if _, err := g.Load(context.Background(), "u2", "s1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for foreign session", err)
	}
}

func TestGatewaySaveRoundTrip(t *testing.T) {
	objects := newMemObjects()
	sessions := newMemSessions(chatRow("s1", "u1"))
	g := NewTreeGateway(objects, sessions, testLogger())

	tree, _, _ := seedTree(t, "k1")
	last := "a1"
	err := g.Save(context.Background(), saveReq("u1", "s1", tree, &last))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := g.Load(context.Background(), "u1", "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Nodes) != len(tree.Nodes) {
		t.Errorf("loaded %d nodes, want %d", len(loaded.Nodes), len(tree.Nodes))
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("loaded tree invalid: %v", err)
	}
	if len(sessions.updates) != 1 || sessions.updates[0].LastMessage == nil || *sessions.updates[0].LastMessage != "a1" {
		t.Errorf("metadata updates = %+v", sessions.updates)
	}
}

func TestGatewaySaveRestoresSnapshotOnMetadataFailure(t *testing.T) {
	objects := newMemObjects()
	sessions := newMemSessions(chatRow("s1", "u1"))
	g := NewTreeGateway(objects, sessions, testLogger())

	// Persist a first state, then make the metadata store fail.
	first, _, _ := seedTree(t)
	if err := g.Save(context.Background(), saveReq("u1", "s1", first, nil)); err != nil {
		t.Fatalf("initial save: %v", err)
	}
	sessions.updateErr = fmt.Errorf("connection reset")

	grown := first
	extra := chatModels.NewNode(grown.CurrentNodeID, chatModels.RoleUser, "q2", nil)
	grown, _ = grown.Attach(extra)

	err := g.Save(context.Background(), saveReq("u1", "s1", grown, nil))
	if err == nil {
		t.Fatal("save must fail when metadata update fails")
	}

	// A reload shows the pre-turn snapshot, matching the untouched metadata.
	loaded, loadErr := g.Load(context.Background(), "u1", "s1")
	if loadErr != nil {
		t.Fatalf("load: %v", loadErr)
	}
	if len(loaded.Nodes) != len(first.Nodes) {
		t.Errorf("loaded %d nodes, want rolled-back %d", len(loaded.Nodes), len(first.Nodes))
	}
}
