package handler

import (
	"context"
	"log/slog"
	"net/http"

	chatModels "vinpix/internal/domain/models/chat"
	chatSvc "vinpix/internal/domain/services/chat"
	"vinpix/internal/httputil"
)

// TurnHandler handles generation-turn HTTP requests.
type TurnHandler struct {
	turns  chatSvc.TurnService
	logger *slog.Logger
}

// NewTurnHandler creates a new turn handler
func NewTurnHandler(turns chatSvc.TurnService, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{
		turns:  turns,
		logger: logger,
	}
}

// SendTurn runs one full generation turn.
// POST /api/sessions/{id}/turns
func (h *TurnHandler) SendTurn(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	var body SendTurnBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.turns.SendTurn(r.Context(), &chatSvc.SendTurnRequest{
		UserID:       httputil.GetUserID(r),
		SessionID:    sessionID,
		ParentNodeID: body.ParentNodeID,
		Content:      body.Content,
		Options:      body.Options.toOptions(),
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// RegenerateNode re-runs an assistant node in place.
// POST /api/sessions/{id}/nodes/{nodeId}/regenerate
func (h *TurnHandler) RegenerateNode(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}
	nodeID, ok := PathParam(w, r, "nodeId", "Node ID")
	if !ok {
		return
	}

	var body RegenerateBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.turns.RegenerateNode(r.Context(), &chatSvc.RegenerateNodeRequest{
		UserID:    httputil.GetUserID(r),
		SessionID: sessionID,
		NodeID:    nodeID,
		Options:   body.Options.toOptions(),
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// RegenerateImage re-runs a single attachment's image call.
// POST /api/sessions/{id}/nodes/{nodeId}/attachments/{attachmentId}/regenerate
func (h *TurnHandler) RegenerateImage(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}
	nodeID, ok := PathParam(w, r, "nodeId", "Node ID")
	if !ok {
		return
	}
	attachmentID, ok := PathParam(w, r, "attachmentId", "Attachment ID")
	if !ok {
		return
	}

	var body RegenerateBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.turns.RegenerateImage(r.Context(), &chatSvc.RegenerateImageRequest{
		UserID:       httputil.GetUserID(r),
		SessionID:    sessionID,
		NodeID:       nodeID,
		AttachmentID: attachmentID,
		Options:      body.Options.toOptions(),
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// EditAndBranch rewrites a user node as a new sibling branch.
// POST /api/sessions/{id}/nodes/{nodeId}/edit-branch
func (h *TurnHandler) EditAndBranch(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, h.turns.EditAndBranch)
}

// DirectEdit rewrites a user node in place and regenerates its reply.
// POST /api/sessions/{id}/nodes/{nodeId}/edit
func (h *TurnHandler) DirectEdit(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, h.turns.DirectEdit)
}

func (h *TurnHandler) edit(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, req *chatSvc.EditRequest) (*chatSvc.TurnResult, error)) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}
	nodeID, ok := PathParam(w, r, "nodeId", "Node ID")
	if !ok {
		return
	}

	var body EditBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := run(r.Context(), &chatSvc.EditRequest{
		UserID:    httputil.GetUserID(r),
		SessionID: sessionID,
		NodeID:    nodeID,
		Content:   body.Content,
		Options:   body.Options.toOptions(),
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// SwitchBranch selects a sibling branch and persists the new view.
// POST /api/sessions/{id}/nodes/{nodeId}/switch-branch
func (h *TurnHandler) SwitchBranch(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}
	nodeID, ok := PathParam(w, r, "nodeId", "Node ID")
	if !ok {
		return
	}

	var body SwitchBranchBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.turns.SwitchBranch(r.Context(), httputil.GetUserID(r), sessionID, nodeID,
		chatModels.Direction(body.Direction))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// DeleteNode cascades deletion of a subtree.
// DELETE /api/sessions/{id}/nodes/{nodeId}
func (h *TurnHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}
	nodeID, ok := PathParam(w, r, "nodeId", "Node ID")
	if !ok {
		return
	}

	result, err := h.turns.DeleteNode(r.Context(), httputil.GetUserID(r), sessionID, nodeID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}
