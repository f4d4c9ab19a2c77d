package handler

import (
	"log/slog"
	"net/http"

	chatSvc "vinpix/internal/domain/services/chat"
	"vinpix/internal/httputil"
)

// MoodboardHandler handles moodboard HTTP requests. Deletion goes through the
// session endpoint, since a moodboard is a session row like any other.
type MoodboardHandler struct {
	moodboards chatSvc.MoodboardService
	logger     *slog.Logger
}

// NewMoodboardHandler creates a new moodboard handler
func NewMoodboardHandler(moodboards chatSvc.MoodboardService, logger *slog.Logger) *MoodboardHandler {
	return &MoodboardHandler{
		moodboards: moodboards,
		logger:     logger,
	}
}

// Create creates a new empty moodboard.
// POST /api/moodboards
func (h *MoodboardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body CreateMoodboardBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := h.moodboards.CreateMoodboard(r.Context(), httputil.GetUserID(r), body.Title)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, detail)
}

// Get retrieves a moodboard's metadata plus its image list and style profile.
// GET /api/moodboards/{id}
func (h *MoodboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Moodboard ID")
	if !ok {
		return
	}

	detail, err := h.moodboards.GetMoodboard(r.Context(), sessionID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, detail)
}

// Update renames the board, replaces its image list, or sets the style
// profile directly. Omitted fields are left untouched.
// PATCH /api/moodboards/{id}
func (h *MoodboardHandler) Update(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Moodboard ID")
	if !ok {
		return
	}

	var body UpdateMoodboardBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	board, err := h.moodboards.UpdateMoodboard(r.Context(), &chatSvc.UpdateMoodboardRequest{
		UserID:           httputil.GetUserID(r),
		SessionID:        sessionID,
		Title:            body.Title,
		Images:           body.toImages(),
		StyleDescription: body.StyleDescription,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, board)
}

// AddImage uploads a reference image and appends it to the board.
// POST /api/moodboards/{id}/images
func (h *MoodboardHandler) AddImage(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Moodboard ID")
	if !ok {
		return
	}

	var body AddMoodboardImageBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := body.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	board, err := h.moodboards.AddImage(r.Context(), httputil.GetUserID(r), sessionID, body.Name, body.ImageBase64)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, board)
}

// Analyze runs style analysis over the board's images and stores the profile.
// POST /api/moodboards/{id}/analyze
func (h *MoodboardHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Moodboard ID")
	if !ok {
		return
	}

	profile, err := h.moodboards.Analyze(r.Context(), sessionID, httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"style_description": profile})
}
