package handler

import (
	"log/slog"
	"net/http"

	"vinpix/internal/capabilities"
	"vinpix/internal/httputil"
)

// ModelsHandler handles HTTP requests for model capabilities
type ModelsHandler struct {
	registry *capabilities.Registry
	logger   *slog.Logger
}

// NewModelsHandler creates a new models handler
func NewModelsHandler(registry *capabilities.Registry, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{
		registry: registry,
		logger:   logger,
	}
}

// GetCapabilities returns the chat and image models clients can pick from.
// GET /api/models/capabilities
func (h *ModelsHandler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	chatModels, err := h.registry.ListChatModels("gemini")
	if err != nil {
		handleError(w, err)
		return
	}
	imageModels, err := h.registry.ListImageModels("gemini")
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"chat_models":  chatModels,
		"image_models": imageModels,
	})
}
