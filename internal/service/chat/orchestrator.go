package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"vinpix/internal/capabilities"
	"vinpix/internal/domain"
	chatModels "vinpix/internal/domain/models/chat"
	chatSvc "vinpix/internal/domain/services/chat"
)

const lastMessagePreviewLen = 120

// turnGate serializes turns per session. A second send while one is in
// flight is rejected with ErrTurnInFlight instead of queued - the caller
// owns retry policy.
type turnGate struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

func newTurnGate() *turnGate {
	return &turnGate{inFlight: map[string]bool{}}
}

func (g *turnGate) acquire(sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[sessionID] {
		return fmt.Errorf("session %s: %w", sessionID, domain.ErrTurnInFlight)
	}
	g.inFlight[sessionID] = true
	return nil
}

func (g *turnGate) release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, sessionID)
}

// Orchestrator drives generation turns: it owns the only goroutine that
// mutates a turn's tree value, applying image results as they arrive over a
// channel. Tree values are pure/copy-on-write, so no locking beyond the
// per-session gate is needed.
type Orchestrator struct {
	gateway  chatSvc.TreeGateway
	text     chatSvc.TextProvider
	images   chatSvc.ImageProvider
	objects  chatSvc.ObjectStore
	registry *capabilities.Registry
	gate     *turnGate
	logger   *slog.Logger

	defaultChatModel  string
	defaultImageModel string
	maxImagesPerTurn  int
	maxConcurrent     int
	maxThinkingSteps  int
	textTimeout       time.Duration
	imageTimeout      time.Duration

	// observer receives tree snapshots at turn checkpoints; nil disables.
	observer chatSvc.TurnObserver

	// styles resolves a turn's style ID to a moodboard's analyzed profile;
	// nil disables style steering.
	styles chatSvc.StyleResolver
}

// OrchestratorConfig carries the turn policy knobs.
type OrchestratorConfig struct {
	DefaultChatModel    string
	DefaultImageModel   string
	MaxImagesPerTurn    int
	MaxConcurrentImages int
	MaxThinkingSteps    int
	TextTimeout         time.Duration
	ImageTimeout        time.Duration
}

// NewOrchestrator creates the turn service.
func NewOrchestrator(
	gateway chatSvc.TreeGateway,
	text chatSvc.TextProvider,
	images chatSvc.ImageProvider,
	objects chatSvc.ObjectStore,
	registry *capabilities.Registry,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		gateway:           gateway,
		text:              text,
		images:            images,
		objects:           objects,
		registry:          registry,
		gate:              newTurnGate(),
		logger:            logger,
		defaultChatModel:  cfg.DefaultChatModel,
		defaultImageModel: cfg.DefaultImageModel,
		maxImagesPerTurn:  cfg.MaxImagesPerTurn,
		maxConcurrent:     cfg.MaxConcurrentImages,
		maxThinkingSteps:  cfg.MaxThinkingSteps,
		textTimeout:       cfg.TextTimeout,
		imageTimeout:      cfg.ImageTimeout,
	}
}

// SetObserver installs a checkpoint observer. Must be called before any turn
// is started.
func (o *Orchestrator) SetObserver(obs chatSvc.TurnObserver) {
	o.observer = obs
}

// SetStyleResolver installs the moodboard style lookup. Must be called before
// any turn is started.
func (o *Orchestrator) SetStyleResolver(styles chatSvc.StyleResolver) {
	o.styles = styles
}

func (o *Orchestrator) notify(phase chatSvc.TurnPhase, tree chatModels.Tree) {
	if o.observer != nil {
		o.observer(phase, tree)
	}
}

// SendTurn runs one full generation turn under the given parent.
func (o *Orchestrator) SendTurn(ctx context.Context, req *chatSvc.SendTurnRequest) (*chatSvc.TurnResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	}

	if err := o.gate.acquire(req.SessionID); err != nil {
		return nil, err
	}
	defer o.gate.release(req.SessionID)

	tree, err := o.gateway.Load(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}
	firstTurn := tree.RootNodeID == nil

	parentID := req.ParentNodeID
	if parentID == nil {
		parentID = tree.CurrentNodeID
	}

	userNode := chatModels.NewNode(parentID, chatModels.RoleUser, req.Content, nil)
	tree, err = tree.Attach(userNode)
	if err != nil {
		return nil, err
	}
	tree, err = tree.SetCurrent(userNode.ID)
	if err != nil {
		return nil, err
	}
	o.notify(chatSvc.PhaseUserNodeAttached, tree)

	result, err := o.generateUnder(ctx, req.UserID, tree, userNode.ID, req.Options)
	if err != nil {
		// Roll back the speculative user node; nothing was persisted.
		if rolled, rbErr := o.rollback(tree, userNode.ID, parentID); rbErr == nil {
			o.notify(chatSvc.PhaseSettled, rolled)
		}
		return nil, err
	}
	result.UserNodeID = userNode.ID

	save := o.saveRequest(req.UserID, req.SessionID, result, req.Options)
	if firstTurn {
		title := o.autoTitle(ctx, req.Content, req.Options.Model)
		if title != "" {
			save.TitleHint = &title
		}
	}
	if err := o.gateway.Save(ctx, save); err != nil {
		return nil, err
	}
	return result, nil
}

// RegenerateNode re-runs an assistant node in place. Content and attachments
// are overwritten; the node's descendants survive untouched.
func (o *Orchestrator) RegenerateNode(ctx context.Context, req *chatSvc.RegenerateNodeRequest) (*chatSvc.TurnResult, error) {
	if err := o.gate.acquire(req.SessionID); err != nil {
		return nil, err
	}
	defer o.gate.release(req.SessionID)

	tree, err := o.gateway.Load(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}

	node, ok := tree.Node(req.NodeID)
	if !ok {
		return nil, fmt.Errorf("node %s: %w", req.NodeID, domain.ErrNotFound)
	}
	if node.Role != chatModels.RoleAssistant {
		return nil, fmt.Errorf("%w: only assistant nodes can be regenerated", domain.ErrValidation)
	}
	if node.ParentID == nil {
		return nil, fmt.Errorf("%w: assistant node %s has no parent", domain.ErrIntegrity, req.NodeID)
	}
	oldKeys := node.AttachmentKeys()

	result, err := o.overwriteAssistant(ctx, req.UserID, tree, req.NodeID, *node.ParentID, req.Options)
	if err != nil {
		return nil, err
	}

	if err := o.gateway.Save(ctx, o.saveRequest(req.UserID, req.SessionID, result, req.Options)); err != nil {
		return nil, err
	}

	// Old images are orphaned once the new snapshot is durable.
	if len(oldKeys) > 0 {
		if err := o.objects.Delete(ctx, oldKeys); err != nil {
			o.logger.Warn("failed to clean up replaced attachments", "session_id", req.SessionID, "error", err)
		}
	}
	return result, nil
}

// RegenerateImage re-runs one attachment's image call with its stored prompt.
// Text generation is skipped entirely.
func (o *Orchestrator) RegenerateImage(ctx context.Context, req *chatSvc.RegenerateImageRequest) (*chatSvc.TurnResult, error) {
	if err := o.gate.acquire(req.SessionID); err != nil {
		return nil, err
	}
	defer o.gate.release(req.SessionID)

	tree, err := o.gateway.Load(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}

	node, ok := tree.Node(req.NodeID)
	if !ok {
		return nil, fmt.Errorf("node %s: %w", req.NodeID, domain.ErrNotFound)
	}
	var target *chatModels.Attachment
	for i := range node.Attachments {
		if node.Attachments[i].ID == req.AttachmentID {
			target = &node.Attachments[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("attachment %s: %w", req.AttachmentID, domain.ErrNotFound)
	}
	if target.Prompt == "" {
		return nil, fmt.Errorf("%w: attachment %s has no stored prompt", domain.ErrValidation, req.AttachmentID)
	}
	oldKey := target.Key

	tree, err = tree.PatchAttachment(req.NodeID, req.AttachmentID, chatModels.AttachmentLoading, "")
	if err != nil {
		return nil, err
	}
	o.notify(chatSvc.PhaseImagesInFlight, tree)

	imageModel, aspect, resolution := o.resolveImageParams(req.Options)
	imgCtx, cancel := context.WithTimeout(ctx, o.imageTimeout)
	key, genErr := o.images.Generate(imgCtx, &chatSvc.ImageRequest{
		UserID:               req.UserID,
		SessionID:            req.SessionID,
		Prompt:               target.Prompt,
		ReferenceImageBase64: firstOrEmpty(req.Options.ReferenceImages),
		AspectRatio:          aspect,
		Resolution:           resolution,
		Model:                imageModel,
	})
	cancel()

	failed := 0
	if genErr != nil {
		o.logger.Warn("image regeneration failed", "session_id", req.SessionID, "error", genErr)
		failed = 1
		if oldKey != "" {
			// Keep the previous image rather than degrading a complete
			// attachment to failed.
			tree, err = tree.PatchAttachment(req.NodeID, req.AttachmentID, chatModels.AttachmentComplete, oldKey)
		} else {
			tree, err = tree.PatchAttachment(req.NodeID, req.AttachmentID, chatModels.AttachmentFailed, "")
		}
	} else {
		tree, err = tree.PatchAttachment(req.NodeID, req.AttachmentID, chatModels.AttachmentComplete, key)
	}
	if err != nil {
		return nil, err
	}
	o.notify(chatSvc.PhaseSettled, tree)

	result := &chatSvc.TurnResult{Tree: tree, AssistantNodeID: req.NodeID, FailedAttachments: failed}
	if err := o.gateway.Save(ctx, o.saveRequest(req.UserID, req.SessionID, result, req.Options)); err != nil {
		return nil, err
	}

	if genErr == nil && oldKey != "" && oldKey != key {
		if err := o.objects.Delete(ctx, []string{oldKey}); err != nil {
			o.logger.Warn("failed to clean up replaced image", "key", oldKey, "error", err)
		}
	}
	return result, nil
}

// EditAndBranch creates an alternate timeline: a sibling user node with the
// edited content, with a fresh assistant reply generated under it. The
// original branch survives and stays reachable via branch switching.
func (o *Orchestrator) EditAndBranch(ctx context.Context, req *chatSvc.EditRequest) (*chatSvc.TurnResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	}

	if err := o.gate.acquire(req.SessionID); err != nil {
		return nil, err
	}
	defer o.gate.release(req.SessionID)

	tree, err := o.gateway.Load(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}

	node, ok := tree.Node(req.NodeID)
	if !ok {
		return nil, fmt.Errorf("node %s: %w", req.NodeID, domain.ErrNotFound)
	}
	if node.Role != chatModels.RoleUser {
		return nil, fmt.Errorf("%w: only user nodes can be edited", domain.ErrValidation)
	}

	sibling := chatModels.NewNode(node.ParentID, chatModels.RoleUser, req.Content, nil)
	tree, err = tree.Attach(sibling)
	if err != nil {
		return nil, err
	}
	tree, err = tree.SetCurrent(sibling.ID)
	if err != nil {
		return nil, err
	}
	o.notify(chatSvc.PhaseUserNodeAttached, tree)

	result, err := o.generateUnder(ctx, req.UserID, tree, sibling.ID, req.Options)
	if err != nil {
		if rolled, rbErr := o.rollback(tree, sibling.ID, &req.NodeID); rbErr == nil {
			o.notify(chatSvc.PhaseSettled, rolled)
		}
		return nil, err
	}
	result.UserNodeID = sibling.ID

	if err := o.gateway.Save(ctx, o.saveRequest(req.UserID, req.SessionID, result, req.Options)); err != nil {
		return nil, err
	}
	return result, nil
}

// DirectEdit overwrites a user node's content in place and regenerates its
// first assistant child, preserving that child's descendants. A user node
// without a reply yet gets a fresh one.
func (o *Orchestrator) DirectEdit(ctx context.Context, req *chatSvc.EditRequest) (*chatSvc.TurnResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	}

	if err := o.gate.acquire(req.SessionID); err != nil {
		return nil, err
	}
	defer o.gate.release(req.SessionID)

	tree, err := o.gateway.Load(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, err
	}

	node, ok := tree.Node(req.NodeID)
	if !ok {
		return nil, fmt.Errorf("node %s: %w", req.NodeID, domain.ErrNotFound)
	}
	if node.Role != chatModels.RoleUser {
		return nil, fmt.Errorf("%w: only user nodes can be edited", domain.ErrValidation)
	}

	tree, err = tree.UpdateNode(req.NodeID, func(n *chatModels.Node) {
		n.Content = req.Content
	})
	if err != nil {
		return nil, err
	}
	o.notify(chatSvc.PhaseUserNodeAttached, tree)

	var result *chatSvc.TurnResult
	if len(node.ChildrenIDs) > 0 {
		childID := node.ChildrenIDs[0]
		child, ok := tree.Node(childID)
		if !ok {
			return nil, fmt.Errorf("%w: node %s lists missing child %s", domain.ErrIntegrity, req.NodeID, childID)
		}
		oldKeys := child.AttachmentKeys()
		result, err = o.overwriteAssistant(ctx, req.UserID, tree, childID, req.NodeID, req.Options)
		if err != nil {
			return nil, err
		}
		if err := o.gateway.Save(ctx, o.saveRequest(req.UserID, req.SessionID, result, req.Options)); err != nil {
			return nil, err
		}
		if len(oldKeys) > 0 {
			if err := o.objects.Delete(ctx, oldKeys); err != nil {
				o.logger.Warn("failed to clean up replaced attachments", "session_id", req.SessionID, "error", err)
			}
		}
	} else {
		result, err = o.generateUnder(ctx, req.UserID, tree, req.NodeID, req.Options)
		if err != nil {
			return nil, err
		}
		if err := o.gateway.Save(ctx, o.saveRequest(req.UserID, req.SessionID, result, req.Options)); err != nil {
			return nil, err
		}
	}
	result.UserNodeID = req.NodeID
	return result, nil
}

// SwitchBranch selects a sibling branch, descends to its last-seen leaf and
// persists the new current pointer.
func (o *Orchestrator) SwitchBranch(ctx context.Context, userID, sessionID, nodeID string, dir chatModels.Direction) (*chatSvc.TurnResult, error) {
	if err := o.gate.acquire(sessionID); err != nil {
		return nil, err
	}
	defer o.gate.release(sessionID)

	tree, err := o.gateway.Load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	targetID, err := tree.SwitchBranch(nodeID, dir)
	if err != nil {
		return nil, err
	}
	tree, err = tree.SetCurrent(targetID)
	if err != nil {
		return nil, err
	}

	if err := o.gateway.Save(ctx, &chatSvc.SaveTreeRequest{
		UserID:    userID,
		SessionID: sessionID,
		Tree:      tree,
	}); err != nil {
		return nil, err
	}
	return &chatSvc.TurnResult{Tree: tree}, nil
}

// DeleteNode cascades deletion of a subtree, persists the tree and cleans up
// the backing object of every removed attachment.
func (o *Orchestrator) DeleteNode(ctx context.Context, userID, sessionID, nodeID string) (*chatSvc.TurnResult, error) {
	if err := o.gate.acquire(sessionID); err != nil {
		return nil, err
	}
	defer o.gate.release(sessionID)

	tree, err := o.gateway.Load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	tree, res, err := tree.DeleteSubtree(nodeID)
	if err != nil {
		return nil, err
	}

	if err := o.gateway.Save(ctx, &chatSvc.SaveTreeRequest{
		UserID:    userID,
		SessionID: sessionID,
		Tree:      tree,
	}); err != nil {
		return nil, err
	}

	if len(res.RemovedAttachmentKeys) > 0 {
		if err := o.objects.Delete(ctx, res.RemovedAttachmentKeys); err != nil {
			o.logger.Warn("failed to clean up deleted attachments",
				"session_id", sessionID, "count", len(res.RemovedAttachmentKeys), "error", err)
		}
	}
	return &chatSvc.TurnResult{Tree: tree}, nil
}

// generateUnder runs text generation with parentID's path as context and
// attaches a fresh assistant node (with image fan-out) under it.
func (o *Orchestrator) generateUnder(ctx context.Context, userID string, tree chatModels.Tree, parentID string, opts chatSvc.TurnOptions) (*chatSvc.TurnResult, error) {
	payload, err := o.generateText(ctx, userID, tree, parentID, opts)
	if err != nil {
		return nil, err
	}
	o.notify(chatSvc.PhaseTextDecoded, tree)

	prompts := o.shapePrompts(payload.ImagesPrompt, opts)
	placeholders := make([]chatModels.Attachment, 0, len(prompts))
	for _, p := range prompts {
		placeholders = append(placeholders, chatModels.NewAttachmentPlaceholder(p))
	}

	assistant := chatModels.NewNode(&parentID, chatModels.RoleAssistant, payload.Chat, placeholders)
	assistant.Model = o.resolveChatModel(opts.Model)
	tree, err = tree.Attach(assistant)
	if err != nil {
		return nil, err
	}
	tree, err = tree.SetCurrent(assistant.ID)
	if err != nil {
		return nil, err
	}
	o.notify(chatSvc.PhasePlaceholdersAttached, tree)

	tree, failed := o.fanOutImages(ctx, userID, tree, assistant.ID, placeholders, opts)
	o.notify(chatSvc.PhaseSettled, tree)

	return &chatSvc.TurnResult{
		Tree:              tree,
		AssistantNodeID:   assistant.ID,
		FailedAttachments: failed,
	}, nil
}

// overwriteAssistant regenerates an existing assistant node in place: text
// context is the path to its parent, content and attachments are replaced,
// children are untouched.
func (o *Orchestrator) overwriteAssistant(ctx context.Context, userID string, tree chatModels.Tree, nodeID, parentID string, opts chatSvc.TurnOptions) (*chatSvc.TurnResult, error) {
	payload, err := o.generateText(ctx, userID, tree, parentID, opts)
	if err != nil {
		return nil, err
	}
	o.notify(chatSvc.PhaseTextDecoded, tree)

	prompts := o.shapePrompts(payload.ImagesPrompt, opts)
	placeholders := make([]chatModels.Attachment, 0, len(prompts))
	for _, p := range prompts {
		placeholders = append(placeholders, chatModels.NewAttachmentPlaceholder(p))
	}

	model := o.resolveChatModel(opts.Model)
	tree, err = tree.UpdateNode(nodeID, func(n *chatModels.Node) {
		n.Content = payload.Chat
		n.Attachments = placeholders
		n.Model = model
	})
	if err != nil {
		return nil, err
	}
	tree, err = tree.SetCurrent(nodeID)
	if err != nil {
		return nil, err
	}
	o.notify(chatSvc.PhasePlaceholdersAttached, tree)

	tree, failed := o.fanOutImages(ctx, userID, tree, nodeID, placeholders, opts)
	o.notify(chatSvc.PhaseSettled, tree)

	return &chatSvc.TurnResult{
		Tree:              tree,
		AssistantNodeID:   nodeID,
		FailedAttachments: failed,
	}, nil
}

// generateText runs the main text call plus any refinement passes and decodes
// the payload. A failed refinement pass keeps the last good draft instead of
// failing the turn.
func (o *Orchestrator) generateText(ctx context.Context, userID string, tree chatModels.Tree, tailNodeID string, opts chatSvc.TurnOptions) (chatModels.TurnPayload, error) {
	path, err := tree.PathTo(tailNodeID)
	if err != nil {
		return chatModels.TurnPayload{}, err
	}
	transcript := buildTurnPrompt(path)

	system := turnSystemPrompt
	if opts.ImageCountMode == chatModels.ImageCountReplicate {
		system = system + "\n\n" + singleImageInstruction
	}
	if profile := o.resolveStyle(ctx, userID, opts.StyleID); profile != "" {
		system = system + "\n\n" + styleInstruction(profile)
	}

	model := o.resolveChatModel(opts.Model)
	textReq := &chatSvc.TextRequest{
		SystemPrompt: system,
		UserPrompt:   transcript,
		Model:        model,
		Images:       opts.ReferenceImages,
		Schema:       turnResponseSchema(),
	}

	o.notify(chatSvc.PhaseTextRequested, tree)
	callCtx, cancel := context.WithTimeout(ctx, o.textTimeout)
	raw, err := o.text.Generate(callCtx, textReq)
	cancel()
	if err != nil {
		return chatModels.TurnPayload{}, err
	}

	payload, err := chatModels.DecodeTurnPayload(raw)
	if err != nil {
		return chatModels.TurnPayload{}, err
	}

	steps := opts.ThinkingSteps
	if steps > o.maxThinkingSteps {
		steps = o.maxThinkingSteps
	}
	for pass := 1; pass < steps; pass++ {
		refineReq := &chatSvc.TextRequest{
			SystemPrompt: system,
			UserPrompt:   buildRefinementPrompt(transcript, payload),
			Model:        model,
			Schema:       turnResponseSchema(),
		}
		callCtx, cancel := context.WithTimeout(ctx, o.textTimeout)
		raw, err := o.text.Generate(callCtx, refineReq)
		cancel()
		if err != nil {
			o.logger.Warn("refinement pass failed, keeping previous draft", "pass", pass, "error", err)
			break
		}
		refined, err := chatModels.DecodeTurnPayload(raw)
		if err != nil {
			o.logger.Warn("refinement pass returned undecodable payload, keeping previous draft", "pass", pass, "error", err)
			break
		}
		payload = refined
	}
	return payload, nil
}

type imageResult struct {
	attachmentID string
	key          string
	err          error
}

// fanOutImages runs image generation for every placeholder, bounded by the
// concurrency limit. Workers only report results over the channel; this
// goroutine applies every patch, so the tree value never sees concurrent
// mutation. Returns once every placeholder reached a terminal status.
func (o *Orchestrator) fanOutImages(ctx context.Context, userID string, tree chatModels.Tree, nodeID string, placeholders []chatModels.Attachment, opts chatSvc.TurnOptions) (chatModels.Tree, int) {
	if len(placeholders) == 0 {
		return tree, 0
	}
	o.notify(chatSvc.PhaseImagesInFlight, tree)

	imageModel, aspect, resolution := o.resolveImageParams(opts)
	reference := firstOrEmpty(opts.ReferenceImages)

	sem := semaphore.NewWeighted(int64(o.maxConcurrent))
	results := make(chan imageResult, len(placeholders))

	for _, att := range placeholders {
		go func(att chatModels.Attachment) {
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- imageResult{attachmentID: att.ID, err: err}
				return
			}
			defer sem.Release(1)

			imgCtx, cancel := context.WithTimeout(ctx, o.imageTimeout)
			defer cancel()
			key, err := o.images.Generate(imgCtx, &chatSvc.ImageRequest{
				UserID:               userID,
				SessionID:            tree.SessionID,
				Prompt:               att.Prompt,
				ReferenceImageBase64: reference,
				AspectRatio:          aspect,
				Resolution:           resolution,
				Model:                imageModel,
			})
			results <- imageResult{attachmentID: att.ID, key: key, err: err}
		}(att)
	}

	failed := 0
	for range placeholders {
		r := <-results
		status := chatModels.AttachmentComplete
		if r.err != nil {
			o.logger.Warn("image generation failed", "node_id", nodeID, "attachment_id", r.attachmentID, "error", r.err)
			status = chatModels.AttachmentFailed
			failed++
		}
		patched, err := tree.PatchAttachment(nodeID, r.attachmentID, status, r.key)
		if err != nil {
			// The placeholder was created this turn; a miss is a programming
			// error, not a recoverable condition.
			o.logger.Error("attachment patch failed", "node_id", nodeID, "attachment_id", r.attachmentID, "error", err)
			continue
		}
		tree = patched
	}
	return tree, failed
}

// shapePrompts applies the image-count policy and the per-model/global caps.
func (o *Orchestrator) shapePrompts(prompts []string, opts chatSvc.TurnOptions) []string {
	limit := o.maxImagesPerTurn
	imageModel, _, _ := o.resolveImageParams(opts)
	if m, err := o.registry.GetImageModel("gemini", imageModel); err == nil && m.MaxSamples > 0 && m.MaxSamples < limit {
		limit = m.MaxSamples
	}

	n := opts.ImageCount
	switch opts.ImageCountMode {
	case chatModels.ImageCountExact, chatModels.ImageCountReplicate:
		if n < 1 {
			n = 1
		}
		if n > limit {
			n = limit
		}
	default:
		if n <= 0 || n > limit {
			n = limit
		}
	}
	return chatModels.ApplyImageCountPolicy(prompts, opts.ImageCountMode, n)
}

// resolveStyle fetches the moodboard style profile for a turn's style ID. A
// failed lookup degrades to no steering rather than failing the turn.
func (o *Orchestrator) resolveStyle(ctx context.Context, userID string, styleID *string) string {
	if o.styles == nil || styleID == nil || *styleID == "" {
		return ""
	}
	profile, err := o.styles.StyleDescription(ctx, userID, *styleID)
	if err != nil {
		o.logger.Warn("style lookup failed", "style_id", *styleID, "error", err)
		return ""
	}
	return profile
}

// resolveChatModel validates the alias against the registry and falls back to
// the configured default for unknown aliases (e.g. stale session metadata).
func (o *Orchestrator) resolveChatModel(alias string) string {
	if alias == "" {
		return o.defaultChatModel
	}
	if _, err := o.registry.GetChatModel("gemini", alias); err != nil {
		o.logger.Debug("unknown chat model alias, using default", "alias", alias)
		return o.defaultChatModel
	}
	return alias
}

// resolveImageParams validates the image model and its aspect/resolution
// options against the registry, falling back to defaults per field.
func (o *Orchestrator) resolveImageParams(opts chatSvc.TurnOptions) (model, aspect, resolution string) {
	model = opts.ImageModel
	if model == "" {
		model = o.defaultImageModel
	}
	caps, err := o.registry.GetImageModel("gemini", model)
	if err != nil {
		model = o.defaultImageModel
		caps, err = o.registry.GetImageModel("gemini", model)
	}

	aspect = opts.AspectRatio
	resolution = opts.Resolution
	if err == nil {
		if aspect != "" && !containsString(caps.AspectRatios, aspect) {
			aspect = ""
		}
		if resolution != "" && !containsString(caps.Resolutions, resolution) {
			resolution = ""
		}
	}
	return model, aspect, resolution
}

// rollback detaches a speculatively attached node and restores the current
// pointer to the pre-turn parent.
func (o *Orchestrator) rollback(tree chatModels.Tree, nodeID string, parentID *string) (chatModels.Tree, error) {
	tree, err := tree.Detach(nodeID)
	if err != nil {
		o.logger.Error("turn rollback failed", "node_id", nodeID, "error", err)
		return tree, err
	}
	if parentID != nil {
		if reset, err := tree.SetCurrent(*parentID); err == nil {
			tree = reset
		}
	}
	return tree, nil
}

// saveRequest assembles the settled turn's durable output.
func (o *Orchestrator) saveRequest(userID, sessionID string, result *chatSvc.TurnResult, opts chatSvc.TurnOptions) *chatSvc.SaveTreeRequest {
	req := &chatSvc.SaveTreeRequest{
		UserID:    userID,
		SessionID: sessionID,
		Tree:      result.Tree,
		StyleID:   opts.StyleID,
	}
	if opts.Model != "" {
		model := o.resolveChatModel(opts.Model)
		req.Model = &model
	}
	if opts.ThinkingSteps > 0 {
		steps := opts.ThinkingSteps
		req.ThinkingSteps = &steps
	}
	if result.AssistantNodeID != "" {
		if node, ok := result.Tree.Node(result.AssistantNodeID); ok {
			preview := previewText(node.Content, lastMessagePreviewLen)
			req.LastMessage = &preview
		}
	}
	return req
}

// autoTitle generates a session title from the first user message. Failure is
// non-fatal: the session keeps its default title.
func (o *Orchestrator) autoTitle(ctx context.Context, content, model string) string {
	callCtx, cancel := context.WithTimeout(ctx, o.textTimeout)
	defer cancel()

	raw, err := o.text.Generate(callCtx, &chatSvc.TextRequest{
		SystemPrompt: titleSystemPrompt,
		UserPrompt:   content,
		Model:        o.resolveChatModel(model),
	})
	if err != nil {
		o.logger.Warn("auto-title generation failed", "error", err)
		return ""
	}

	title := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	return previewText(title, 200)
}

func previewText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func firstOrEmpty(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}

func containsString(items []string, s string) bool {
	for _, v := range items {
		if v == s {
			return true
		}
	}
	return false
}
