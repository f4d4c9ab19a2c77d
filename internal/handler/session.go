package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	chatSvc "vinpix/internal/domain/services/chat"
	"vinpix/internal/httputil"
)

// SessionHandler handles session and folder HTTP requests.
// Handlers only communicate with services, never repositories.
type SessionHandler struct {
	sessions chatSvc.SessionService
	logger   *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions chatSvc.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// HealthCheck responds to liveness probes.
// GET /health
func (h *SessionHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateSession creates a new chat session with an empty tree.
// POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var body CreateSessionBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := h.sessions.CreateSession(r.Context(), &chatSvc.CreateSessionRequest{
		UserID:   userID,
		Title:    body.Title,
		Model:    body.Model,
		FolderID: body.FolderID,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, detail)
}

// ListSessions retrieves the user's sessions and folders.
// GET /api/sessions?limit=50
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.RespondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := h.sessions.ListSessions(r.Context(), userID, limit)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession retrieves a session's metadata plus its full tree.
// GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	detail, err := h.sessions.GetSessionDetail(r.Context(), sessionID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, detail)
}

// RenameSession updates a session's title.
// PATCH /api/sessions/{id}
func (h *SessionHandler) RenameSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	var body RenameSessionBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.RenameSession(r.Context(), sessionID, httputil.GetUserID(r), body.Title); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteSession removes a session, its snapshot and its attachments.
// DELETE /api/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	if err := h.sessions.DeleteSession(r.Context(), sessionID, httputil.GetUserID(r)); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MoveToFolder moves a session into a folder or back to the root.
// PATCH /api/sessions/{id}/folder
func (h *SessionHandler) MoveToFolder(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	var body MoveToFolderBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.sessions.MoveToFolder(r.Context(), sessionID, httputil.GetUserID(r), body.FolderID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateFolder creates a folder row in the session listing.
// POST /api/folders
func (h *SessionHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var body CreateFolderBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	folder, err := h.sessions.CreateFolder(r.Context(), httputil.GetUserID(r), body.Title)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, folder)
}

// DeleteFolder removes a folder, moving its contents to the root.
// DELETE /api/folders/{id}
func (h *SessionHandler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	folderID, ok := PathParam(w, r, "id", "Folder ID")
	if !ok {
		return
	}

	if err := h.sessions.DeleteFolder(r.Context(), folderID, httputil.GetUserID(r)); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AttachmentURL returns a signed access URL for a stored image.
// GET /api/attachments/url?key=...&download=true
func (h *SessionHandler) AttachmentURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		httputil.RespondError(w, http.StatusBadRequest, "key query parameter is required")
		return
	}
	download := r.URL.Query().Get("download") == "true"

	url, err := h.sessions.AttachmentURL(r.Context(), key, download)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"url": url})
}
