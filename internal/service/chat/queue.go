package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vinpix/internal/domain"
	chatSvc "vinpix/internal/domain/services/chat"
)

// queueRun is the mutable state of one bulk run. Progress is only advanced
// after an item settles; cancellation is a flag the runner checks between
// items, so an in-flight turn always settles before the run stops.
type queueRun struct {
	userID string

	mu        sync.Mutex
	cancelled bool
	status    chatSvc.QueueStatus
}

func (r *queueRun) snapshot() chatSvc.QueueStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	s.Failures = append([]chatSvc.QueueItemFailure(nil), r.status.Failures...)
	return s
}

func (r *queueRun) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
	r.status.Cancelled = true
}

func (r *queueRun) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

// QueueRunner runs at most one bulk prompt queue per session, feeding each
// prompt through the full turn pipeline sequentially.
type QueueRunner struct {
	turns  chatSvc.TurnService
	logger *slog.Logger

	mu   sync.Mutex
	runs map[string]*queueRun // keyed by session ID
}

// NewQueueRunner creates the queue service.
func NewQueueRunner(turns chatSvc.TurnService, logger *slog.Logger) *QueueRunner {
	return &QueueRunner{
		turns:  turns,
		logger: logger,
		runs:   map[string]*queueRun{},
	}
}

// Start launches a bulk run for the session. A session with a run already in
// progress rejects the start; finished runs are replaced.
func (q *QueueRunner) Start(ctx context.Context, req *chatSvc.StartQueueRequest) error {
	if len(req.Prompts) == 0 {
		return fmt.Errorf("%w: prompts cannot be empty", domain.ErrValidation)
	}

	run := &queueRun{
		userID: req.UserID,
		status: chatSvc.QueueStatus{
			Running: true,
			Total:   len(req.Prompts),
		},
	}

	q.mu.Lock()
	if existing, ok := q.runs[req.SessionID]; ok && existing.snapshot().Running {
		q.mu.Unlock()
		return fmt.Errorf("session %s: %w", req.SessionID, domain.ErrTurnInFlight)
	}
	q.runs[req.SessionID] = run
	q.mu.Unlock()

	// The run outlives the HTTP request that started it.
	go q.execute(context.Background(), run, req)
	return nil
}

func (q *QueueRunner) execute(ctx context.Context, run *queueRun, req *chatSvc.StartQueueRequest) {
	defer func() {
		run.mu.Lock()
		run.status.Running = false
		run.mu.Unlock()
	}()

	delay := time.Duration(req.DelayMs) * time.Millisecond

	for i, prompt := range req.Prompts {
		if run.isCancelled() {
			q.logger.Info("bulk run cancelled",
				"session_id", req.SessionID, "completed", i, "total", len(req.Prompts))
			return
		}

		_, err := q.turns.SendTurn(ctx, &chatSvc.SendTurnRequest{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Content:   prompt,
			Options:   req.Options,
		})

		run.mu.Lock()
		run.status.Current = i + 1
		if err != nil {
			// A failed item is recorded and the run moves on.
			run.status.Failures = append(run.status.Failures, chatSvc.QueueItemFailure{
				Index:  i,
				Prompt: prompt,
				Error:  err.Error(),
			})
		}
		run.mu.Unlock()

		if err != nil {
			q.logger.Warn("bulk item failed",
				"session_id", req.SessionID, "index", i, "error", err)
		}

		if delay > 0 && i < len(req.Prompts)-1 && !run.isCancelled() {
			time.Sleep(delay)
		}
	}

	q.logger.Info("bulk run finished",
		"session_id", req.SessionID,
		"total", len(req.Prompts),
		"failures", len(run.snapshot().Failures))
}

// Cancel flags the session's run for cooperative cancellation. The item in
// flight settles normally; no further items start.
func (q *QueueRunner) Cancel(userID, sessionID string) error {
	run, err := q.lookup(userID, sessionID)
	if err != nil {
		return err
	}
	run.cancel()
	return nil
}

// Status reports the run's progress. Finished runs stay queryable until the
// next Start replaces them.
func (q *QueueRunner) Status(userID, sessionID string) (*chatSvc.QueueStatus, error) {
	run, err := q.lookup(userID, sessionID)
	if err != nil {
		return nil, err
	}
	s := run.snapshot()
	return &s, nil
}

func (q *QueueRunner) lookup(userID, sessionID string) (*queueRun, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	run, ok := q.runs[sessionID]
	if !ok || run.userID != userID {
		return nil, fmt.Errorf("bulk run for session %s: %w", sessionID, domain.ErrNotFound)
	}
	return run, nil
}
