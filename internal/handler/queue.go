package handler

import (
	"log/slog"
	"net/http"

	chatSvc "vinpix/internal/domain/services/chat"
	"vinpix/internal/httputil"
)

// QueueHandler handles bulk-queue HTTP requests.
type QueueHandler struct {
	queue  chatSvc.QueueService
	parser chatSvc.BulkParser
	logger *slog.Logger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queue chatSvc.QueueService, parser chatSvc.BulkParser, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		queue:  queue,
		parser: parser,
		logger: logger,
	}
}

// Start launches a bulk run for the session.
// POST /api/sessions/{id}/queue
func (h *QueueHandler) Start(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	var body StartQueueBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.queue.Start(r.Context(), &chatSvc.StartQueueRequest{
		UserID:    httputil.GetUserID(r),
		SessionID: sessionID,
		Prompts:   body.Prompts,
		DelayMs:   body.DelayMs,
		Options:   body.Options.toOptions(),
	}); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusAccepted, map[string]interface{}{
		"total": len(body.Prompts),
	})
}

// Cancel flags the session's run for cooperative cancellation.
// DELETE /api/sessions/{id}/queue
func (h *QueueHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	if err := h.queue.Cancel(httputil.GetUserID(r), sessionID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Status reports the run's progress.
// GET /api/sessions/{id}/queue
func (h *QueueHandler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	status, err := h.queue.Status(httputil.GetUserID(r), sessionID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, status)
}

// ParsePrompts extracts a prompt list from pasted markdown.
// POST /api/bulk/parse
func (h *QueueHandler) ParsePrompts(w http.ResponseWriter, r *http.Request) {
	var body BulkParseBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	parsed, err := h.parser.ParsePrompts(r.Context(), body.Text)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, parsed)
}
