package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"vinpix/internal/capabilities"
	"vinpix/internal/domain"
	chatModels "vinpix/internal/domain/models/chat"
	chatSvc "vinpix/internal/domain/services/chat"
)

// fakeGateway keeps one tree in memory and records every save.
type fakeGateway struct {
	mu    sync.Mutex
	tree  chatModels.Tree
	saves []*chatSvc.SaveTreeRequest
}

func newFakeGateway(tree chatModels.Tree) *fakeGateway {
	return &fakeGateway{tree: tree}
}

func (g *fakeGateway) Load(ctx context.Context, userID, sessionID string) (chatModels.Tree, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tree, nil
}

func (g *fakeGateway) Save(ctx context.Context, req *chatSvc.SaveTreeRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saves = append(g.saves, req)
	g.tree = req.Tree
	return nil
}

func (g *fakeGateway) saveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.saves)
}

func (g *fakeGateway) lastSave() *chatSvc.SaveTreeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.saves) == 0 {
		return nil
	}
	return g.saves[len(g.saves)-1]
}

// fakeText pops canned responses; calls can be gated or made to fail by
// call index.
type fakeText struct {
	mu        sync.Mutex
	responses []string
	errOnCall map[int]error
	gate      chan struct{}
	calls     []*chatSvc.TextRequest
}

func (f *fakeText) Generate(ctx context.Context, req *chatSvc.TextRequest) (string, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err := f.errOnCall[idx]; err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return `{"chat":"ok"}`, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeText) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeText) call(i int) *chatSvc.TextRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// fakeImages returns deterministic keys and fails selected prompts.
type fakeImages struct {
	mu          sync.Mutex
	failPrompts map[string]bool
	calls       []string
}

func (f *fakeImages) Generate(ctx context.Context, req *chatSvc.ImageRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Prompt)
	fail := f.failPrompts[req.Prompt]
	f.mu.Unlock()

	if fail {
		return "", fmt.Errorf("%w: synth failed", domain.ErrBackend)
	}
	return "img/" + req.Prompt, nil
}

// fakeObjects records deletions; reads always miss.
type fakeObjects struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeObjects) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}

func (f *fakeObjects) UploadJSON(ctx context.Context, key string, v interface{}) error {
	return nil
}

func (f *fakeObjects) ReadJSON(ctx context.Context, key string, v interface{}) error {
	return fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
}

func (f *fakeObjects) Download(ctx context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("object %s: %w", key, domain.ErrNotFound)
}

func (f *fakeObjects) Delete(ctx context.Context, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, keys...)
	return nil
}

func (f *fakeObjects) AccessURL(ctx context.Context, key string, download bool) (string, error) {
	return "https://signed.example/" + key, nil
}

func (f *fakeObjects) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, gw *fakeGateway, text *fakeText, images chatSvc.ImageProvider, objects *fakeObjects) *Orchestrator {
	t.Helper()
	registry, err := capabilities.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewOrchestrator(gw, text, images, objects, registry, OrchestratorConfig{
		DefaultChatModel:    "gemini-3.0-pro",
		DefaultImageModel:   "imagen-4.0-generate-001",
		MaxImagesPerTurn:    4,
		MaxConcurrentImages: 2,
		MaxThinkingSteps:    5,
		TextTimeout:         time.Second,
		ImageTimeout:        time.Second,
	}, testLogger())
}

// seedTree builds q1 -> a1 with the given attachment keys on a1 and the
// current pointer at a1.
func seedTree(t *testing.T, keys ...string) (chatModels.Tree, string, string) {
	t.Helper()
	tree := chatModels.NewTree("s1")
	user := chatModels.NewNode(nil, chatModels.RoleUser, "q1", nil)
	tree, err := tree.Attach(user)
	if err != nil {
		t.Fatalf("attach user: %v", err)
	}

	var atts []chatModels.Attachment
	for i, key := range keys {
		atts = append(atts, chatModels.Attachment{
			ID:     fmt.Sprintf("att-%d", i),
			Status: chatModels.AttachmentComplete,
			Key:    key,
			Prompt: "prompt " + key,
		})
	}
	assistant := chatModels.NewNode(&user.ID, chatModels.RoleAssistant, "a1", atts)
	tree, err = tree.Attach(assistant)
	if err != nil {
		t.Fatalf("attach assistant: %v", err)
	}
	tree, err = tree.SetCurrent(assistant.ID)
	if err != nil {
		t.Fatalf("set current: %v", err)
	}
	return tree, user.ID, assistant.ID
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSendTurnFirstTurn(t *testing.T) {
	gw := newFakeGateway(chatModels.NewTree("s1"))
	text := &fakeText{responses: []string{
		`{"chat":"here you go","imagesPrompt":["a cat","a dog"]}`,
		"Cat Pictures",
	}}
	images := &fakeImages{}
	objects := &fakeObjects{}
	o := newTestOrchestrator(t, gw, text, images, objects)

	result, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID:    "u1",
		SessionID: "s1",
		Content:   "show me pets",
	})
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}

	if result.FailedAttachments != 0 {
		t.Errorf("failed attachments = %d, want 0", result.FailedAttachments)
	}
	if len(result.Tree.Nodes) != 2 {
		t.Fatalf("tree has %d nodes, want 2", len(result.Tree.Nodes))
	}
	if result.Tree.CurrentNodeID == nil || *result.Tree.CurrentNodeID != result.AssistantNodeID {
		t.Errorf("current = %v, want assistant %s", result.Tree.CurrentNodeID, result.AssistantNodeID)
	}

	assistant, ok := result.Tree.Node(result.AssistantNodeID)
	if !ok {
		t.Fatal("assistant node missing")
	}
	if assistant.Content != "here you go" {
		t.Errorf("assistant content = %q", assistant.Content)
	}
	if len(assistant.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(assistant.Attachments))
	}
	for i, want := range []string{"img/a cat", "img/a dog"} {
		a := assistant.Attachments[i]
		if a.Status != chatModels.AttachmentComplete || a.Key != want {
			t.Errorf("attachment %d = %+v, want complete/%s", i, a, want)
		}
	}

	if gw.saveCount() != 1 {
		t.Fatalf("saves = %d, want 1", gw.saveCount())
	}
	save := gw.lastSave()
	if save.TitleHint == nil || *save.TitleHint != "Cat Pictures" {
		t.Errorf("title hint = %v, want Cat Pictures", save.TitleHint)
	}
	if save.LastMessage == nil || *save.LastMessage != "here you go" {
		t.Errorf("last message = %v", save.LastMessage)
	}
	if err := save.Tree.Validate(); err != nil {
		t.Errorf("saved tree invalid: %v", err)
	}
}

func TestSendTurnRollsBackOnTextFailure(t *testing.T) {
	tree, _, assistantID := seedTree(t)
	gw := newFakeGateway(tree)
	text := &fakeText{errOnCall: map[int]error{0: fmt.Errorf("%w: overloaded", domain.ErrBackend)}}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, &fakeObjects{})

	_, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID:    "u1",
		SessionID: "s1",
		Content:   "another question",
	})
	if !errors.Is(err, domain.ErrBackend) {
		t.Fatalf("err = %v, want ErrBackend", err)
	}

	if gw.saveCount() != 0 {
		t.Fatalf("saves = %d, want 0 after failed turn", gw.saveCount())
	}
	// The stored tree is untouched: same node count, current still at a1.
	stored, _ := gw.Load(context.Background(), "u1", "s1")
	if len(stored.Nodes) != 2 {
		t.Errorf("stored nodes = %d, want 2", len(stored.Nodes))
	}
	if stored.CurrentNodeID == nil || *stored.CurrentNodeID != assistantID {
		t.Errorf("current = %v, want %s", stored.CurrentNodeID, assistantID)
	}
}

func TestSendTurnPersistsOnlyTerminalAttachments(t *testing.T) {
	tree, _, _ := seedTree(t)
	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{`{"chat":"two images","imagesPrompt":["good","bad"]}`}}
	images := &fakeImages{failPrompts: map[string]bool{"bad": true}}
	o := newTestOrchestrator(t, gw, text, images, &fakeObjects{})

	result, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID:    "u1",
		SessionID: "s1",
		Content:   "next",
	})
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}
	if result.FailedAttachments != 1 {
		t.Errorf("failed attachments = %d, want 1", result.FailedAttachments)
	}

	save := gw.lastSave()
	if save == nil {
		t.Fatal("turn with a failed image must still persist")
	}
	assistant, _ := save.Tree.Node(result.AssistantNodeID)
	statuses := map[string]chatModels.AttachmentStatus{}
	for _, a := range assistant.Attachments {
		statuses[a.Prompt] = a.Status
		if a.Status == chatModels.AttachmentLoading {
			t.Errorf("persisted attachment %s still loading", a.ID)
		}
	}
	if statuses["good"] != chatModels.AttachmentComplete || statuses["bad"] != chatModels.AttachmentFailed {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestSendTurnRejectsWhileInFlight(t *testing.T) {
	tree, _, _ := seedTree(t)
	gw := newFakeGateway(tree)
	gate := make(chan struct{})
	text := &fakeText{gate: gate}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, &fakeObjects{})

	done := make(chan error, 1)
	go func() {
		_, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
			UserID: "u1", SessionID: "s1", Content: "slow turn",
		})
		done <- err
	}()
	waitFor(t, func() bool { return text.callCount() >= 1 })

	_, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID: "u1", SessionID: "s1", Content: "eager turn",
	})
	if !errors.Is(err, domain.ErrTurnInFlight) {
		t.Fatalf("err = %v, want ErrTurnInFlight", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}

	// The gate is free again.
	_, err = o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID: "u1", SessionID: "s1", Content: "after settle",
	})
	if err != nil {
		t.Fatalf("turn after settle: %v", err)
	}
}

func TestSendTurnReplicateMode(t *testing.T) {
	tree, _, _ := seedTree(t)
	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{`{"chat":"variants","imagesPrompt":["hero pose","ignored extra"]}`}}
	images := &fakeImages{}
	o := newTestOrchestrator(t, gw, text, images, &fakeObjects{})

	result, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID:    "u1",
		SessionID: "s1",
		Content:   "three variants please",
		Options: chatSvc.TurnOptions{
			ImageCountMode: chatModels.ImageCountReplicate,
			ImageCount:     3,
		},
	})
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}

	if !strings.Contains(text.call(0).SystemPrompt, "exactly one") {
		t.Error("replicate mode must ask the model for a single prompt")
	}

	assistant, _ := result.Tree.Node(result.AssistantNodeID)
	if len(assistant.Attachments) != 3 {
		t.Fatalf("attachments = %d, want 3", len(assistant.Attachments))
	}
	for i, a := range assistant.Attachments {
		if a.Prompt != "hero pose" {
			t.Errorf("attachment %d prompt = %q, want hero pose", i, a.Prompt)
		}
	}
}

// reverseImages holds the first prompt's result until the second prompt has
// already returned, forcing out-of-order completion.
type reverseImages struct {
	secondDone chan struct{}
}

func (f *reverseImages) Generate(ctx context.Context, req *chatSvc.ImageRequest) (string, error) {
	switch req.Prompt {
	case "first":
		<-f.secondDone
	case "second":
		defer close(f.secondDone)
	}
	return "img/" + req.Prompt, nil
}

func TestAttachmentsOrderedByIndexNotArrival(t *testing.T) {
	tree, _, _ := seedTree(t)
	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{`{"chat":"two images","imagesPrompt":["first","second"]}`}}
	images := &reverseImages{secondDone: make(chan struct{})}
	o := newTestOrchestrator(t, gw, text, images, &fakeObjects{})

	result, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID:    "u1",
		SessionID: "s1",
		Content:   "both please",
	})
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}

	assistant, _ := result.Tree.Node(result.AssistantNodeID)
	if len(assistant.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(assistant.Attachments))
	}
	// Slot order follows the prompt index even though the second image
	// finished first.
	for i, want := range []string{"first", "second"} {
		a := assistant.Attachments[i]
		if a.Prompt != want || a.Key != "img/"+want || a.Status != chatModels.AttachmentComplete {
			t.Errorf("slot %d = %+v, want complete %s/img/%s", i, a, want, want)
		}
	}
}

func TestSendTurnRunsRefinementPasses(t *testing.T) {
	tree, _, _ := seedTree(t)
	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{
		`{"chat":"draft"}`,
		`{"chat":"refined"}`,
		`{"chat":"final"}`,
	}}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, &fakeObjects{})

	result, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID:    "u1",
		SessionID: "s1",
		Content:   "think hard",
		Options:   chatSvc.TurnOptions{ThinkingSteps: 3},
	})
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}

	if text.callCount() != 3 {
		t.Fatalf("text calls = %d, want 3", text.callCount())
	}
	assistant, _ := result.Tree.Node(result.AssistantNodeID)
	if assistant.Content != "final" {
		t.Errorf("content = %q, want final", assistant.Content)
	}
	if !strings.Contains(text.call(1).UserPrompt, "draft") {
		t.Error("refinement pass must carry the previous draft")
	}
}

func TestSendTurnKeepsDraftWhenRefinementFails(t *testing.T) {
	tree, _, _ := seedTree(t)
	gw := newFakeGateway(tree)
	text := &fakeText{
		responses: []string{`{"chat":"draft"}`},
		errOnCall: map[int]error{1: fmt.Errorf("%w: flaky", domain.ErrBackend)},
	}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, &fakeObjects{})

	result, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID:    "u1",
		SessionID: "s1",
		Content:   "think hard",
		Options:   chatSvc.TurnOptions{ThinkingSteps: 3},
	})
	if err != nil {
		t.Fatalf("refinement failure must not fail the turn: %v", err)
	}
	assistant, _ := result.Tree.Node(result.AssistantNodeID)
	if assistant.Content != "draft" {
		t.Errorf("content = %q, want the surviving draft", assistant.Content)
	}
}

func TestRegenerateNodePreservesChildren(t *testing.T) {
	tree, _, assistantID := seedTree(t, "old-key")

	// Grow a continuation under the assistant so regeneration has
	// descendants to preserve.
	q2 := chatModels.NewNode(&assistantID, chatModels.RoleUser, "q2", nil)
	tree, err := tree.Attach(q2)
	if err != nil {
		t.Fatalf("attach q2: %v", err)
	}

	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{`{"chat":"take two"}`}}
	objects := &fakeObjects{}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, objects)

	result, err := o.RegenerateNode(context.Background(), &chatSvc.RegenerateNodeRequest{
		UserID:    "u1",
		SessionID: "s1",
		NodeID:    assistantID,
	})
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	assistant, _ := result.Tree.Node(assistantID)
	if assistant.Content != "take two" {
		t.Errorf("content = %q, want take two", assistant.Content)
	}
	if len(assistant.ChildrenIDs) != 1 || assistant.ChildrenIDs[0] != q2.ID {
		t.Errorf("children = %v, want [%s]", assistant.ChildrenIDs, q2.ID)
	}
	if len(assistant.Attachments) != 0 {
		t.Errorf("attachments = %v, want replaced with none", assistant.Attachments)
	}

	deleted := objects.deletedKeys()
	if len(deleted) != 1 || deleted[0] != "old-key" {
		t.Errorf("deleted = %v, want [old-key]", deleted)
	}
}

func TestRegenerateNodeRejectsUserNode(t *testing.T) {
	tree, userID, _ := seedTree(t)
	gw := newFakeGateway(tree)
	o := newTestOrchestrator(t, gw, &fakeText{}, &fakeImages{}, &fakeObjects{})

	_, err := o.RegenerateNode(context.Background(), &chatSvc.RegenerateNodeRequest{
		UserID:    "u1",
		SessionID: "s1",
		NodeID:    userID,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestRegenerateImageUsesStoredPrompt(t *testing.T) {
	tree, _, assistantID := seedTree(t, "old-key")
	gw := newFakeGateway(tree)
	images := &fakeImages{}
	objects := &fakeObjects{}
	o := newTestOrchestrator(t, gw, &fakeText{}, images, objects)

	result, err := o.RegenerateImage(context.Background(), &chatSvc.RegenerateImageRequest{
		UserID:       "u1",
		SessionID:    "s1",
		NodeID:       assistantID,
		AttachmentID: "att-0",
	})
	if err != nil {
		t.Fatalf("regenerate image: %v", err)
	}

	assistant, _ := result.Tree.Node(assistantID)
	a := assistant.Attachments[0]
	if a.Status != chatModels.AttachmentComplete || a.Key != "img/prompt old-key" {
		t.Errorf("attachment = %+v", a)
	}
	if len(images.calls) != 1 || images.calls[0] != "prompt old-key" {
		t.Errorf("image calls = %v, want the stored prompt", images.calls)
	}
	deleted := objects.deletedKeys()
	if len(deleted) != 1 || deleted[0] != "old-key" {
		t.Errorf("deleted = %v, want [old-key]", deleted)
	}
}

func TestEditAndBranchCreatesSibling(t *testing.T) {
	tree, _, assistantID := seedTree(t)
	// Grow past the first exchange so the edited node has a parent.
	q2 := chatModels.NewNode(&assistantID, chatModels.RoleUser, "q2", nil)
	tree, _ = tree.Attach(q2)

	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{`{"chat":"fresh reply"}`}}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, &fakeObjects{})

	result, err := o.EditAndBranch(context.Background(), &chatSvc.EditRequest{
		UserID:    "u1",
		SessionID: "s1",
		NodeID:    q2.ID,
		Content:   "q2 edited",
	})
	if err != nil {
		t.Fatalf("edit and branch: %v", err)
	}

	// Original node survives with its content.
	original, _ := result.Tree.Node(q2.ID)
	if original.Content != "q2" {
		t.Errorf("original content = %q, want untouched", original.Content)
	}
	// The parent gained a sibling.
	parent, _ := result.Tree.Node(assistantID)
	if len(parent.ChildrenIDs) != 2 {
		t.Fatalf("parent children = %v, want 2 branches", parent.ChildrenIDs)
	}
	edited, _ := result.Tree.Node(result.UserNodeID)
	if edited.Content != "q2 edited" || edited.ID == q2.ID {
		t.Errorf("edited node = %+v", edited)
	}
}

func TestDirectEditRegeneratesReplyInPlace(t *testing.T) {
	tree, userID, assistantID := seedTree(t, "old-key")
	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{`{"chat":"new answer"}`}}
	objects := &fakeObjects{}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, objects)

	result, err := o.DirectEdit(context.Background(), &chatSvc.EditRequest{
		UserID:    "u1",
		SessionID: "s1",
		NodeID:    userID,
		Content:   "q1 rewritten",
	})
	if err != nil {
		t.Fatalf("direct edit: %v", err)
	}

	user, _ := result.Tree.Node(userID)
	if user.Content != "q1 rewritten" {
		t.Errorf("user content = %q", user.Content)
	}
	assistant, _ := result.Tree.Node(assistantID)
	if assistant.Content != "new answer" {
		t.Errorf("assistant content = %q", assistant.Content)
	}
	if result.AssistantNodeID != assistantID {
		t.Errorf("assistant id = %s, want in-place %s", result.AssistantNodeID, assistantID)
	}
	deleted := objects.deletedKeys()
	if len(deleted) != 1 || deleted[0] != "old-key" {
		t.Errorf("deleted = %v, want [old-key]", deleted)
	}
}

func TestDeleteNodeCleansUpObjects(t *testing.T) {
	tree, _, assistantID := seedTree(t, "k1", "k2")
	gw := newFakeGateway(tree)
	objects := &fakeObjects{}
	o := newTestOrchestrator(t, gw, &fakeText{}, &fakeImages{}, objects)

	result, err := o.DeleteNode(context.Background(), "u1", "s1", assistantID)
	if err != nil {
		t.Fatalf("delete node: %v", err)
	}
	if len(result.Tree.Nodes) != 1 {
		t.Errorf("remaining nodes = %d, want 1", len(result.Tree.Nodes))
	}
	if gw.saveCount() != 1 {
		t.Errorf("saves = %d, want 1", gw.saveCount())
	}
	deleted := objects.deletedKeys()
	if len(deleted) != 2 {
		t.Errorf("deleted = %v, want both attachment keys", deleted)
	}
}

func TestSwitchBranchPersistsCurrentPointer(t *testing.T) {
	tree, userID, assistantID := seedTree(t)
	alt := chatModels.NewNode(&userID, chatModels.RoleAssistant, "a1-alt", nil)
	tree, _ = tree.Attach(alt)

	gw := newFakeGateway(tree)
	o := newTestOrchestrator(t, gw, &fakeText{}, &fakeImages{}, &fakeObjects{})

	result, err := o.SwitchBranch(context.Background(), "u1", "s1", assistantID, chatModels.DirectionNext)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if result.Tree.CurrentNodeID == nil || *result.Tree.CurrentNodeID != alt.ID {
		t.Errorf("current = %v, want %s", result.Tree.CurrentNodeID, alt.ID)
	}
	if gw.saveCount() != 1 {
		t.Errorf("saves = %d, want 1", gw.saveCount())
	}
}

func TestObserverSeesSettledTreeWithoutLoading(t *testing.T) {
	tree, _, _ := seedTree(t)
	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{`{"chat":"pics","imagesPrompt":["one","two"]}`}}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, &fakeObjects{})

	var mu sync.Mutex
	phases := []chatSvc.TurnPhase{}
	var settled chatModels.Tree
	o.SetObserver(func(phase chatSvc.TurnPhase, snapshot chatModels.Tree) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, phase)
		if phase == chatSvc.PhaseSettled {
			settled = snapshot
		}
	})

	if _, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID: "u1", SessionID: "s1", Content: "go",
	}); err != nil {
		t.Fatalf("send turn: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if phases[0] != chatSvc.PhaseUserNodeAttached || phases[len(phases)-1] != chatSvc.PhaseSettled {
		t.Errorf("phases = %v", phases)
	}
	raw, _ := json.Marshal(settled)
	if strings.Contains(string(raw), string(chatModels.AttachmentLoading)) {
		t.Error("settled snapshot still contains loading attachments")
	}
}

// fakeStyles resolves style IDs from a fixed map.
type fakeStyles struct {
	profiles map[string]string
}

func (f *fakeStyles) StyleDescription(ctx context.Context, userID, styleID string) (string, error) {
	profile, ok := f.profiles[styleID]
	if !ok {
		return "", fmt.Errorf("style %s: %w", styleID, domain.ErrNotFound)
	}
	return profile, nil
}

func TestStyleProfileSteersSystemPrompt(t *testing.T) {
	tree, _, _ := seedTree(t)
	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{`{"chat":"styled","imagesPrompt":["a cat"]}`}}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, &fakeObjects{})
	o.SetStyleResolver(&fakeStyles{profiles: map[string]string{
		"board-1": "muted earth tones, thick outlines",
	}})

	styleID := "board-1"
	_, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID:    "u1",
		SessionID: "s1",
		Content:   "draw a cat",
		Options:   chatSvc.TurnOptions{StyleID: &styleID},
	})
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}

	system := text.calls[0].SystemPrompt
	if !strings.Contains(system, "muted earth tones, thick outlines") {
		t.Errorf("system prompt missing style profile:\n%s", system)
	}
}

func TestStyleLookupFailureDegradesToNoSteering(t *testing.T) {
	tree, _, _ := seedTree(t)
	gw := newFakeGateway(tree)
	text := &fakeText{responses: []string{`{"chat":"plain"}`}}
	o := newTestOrchestrator(t, gw, text, &fakeImages{}, &fakeObjects{})
	o.SetStyleResolver(&fakeStyles{})

	styleID := "missing-board"
	result, err := o.SendTurn(context.Background(), &chatSvc.SendTurnRequest{
		UserID:    "u1",
		SessionID: "s1",
		Content:   "draw a cat",
		Options:   chatSvc.TurnOptions{StyleID: &styleID},
	})
	if err != nil {
		t.Fatalf("turn must survive a failed style lookup: %v", err)
	}
	if result == nil {
		t.Fatal("result is nil")
	}
	if strings.Contains(text.calls[0].SystemPrompt, "style profile") {
		t.Errorf("system prompt should carry no style section:\n%s", text.calls[0].SystemPrompt)
	}
}
