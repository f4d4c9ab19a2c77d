package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"vinpix/internal/domain"
	chatSvc "vinpix/internal/domain/services/chat"
)

const imagenEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/%s:predict"

// ImageProvider implements the ImageProvider interface on the Imagen
// :predict endpoint. Generated bytes are uploaded to the object store and
// the storage key is returned; the raw image never travels further than this
// adapter.
type ImageProvider struct {
	apiKey     string
	httpClient *http.Client
	objects    chatSvc.ObjectStore
	logger     *slog.Logger
}

// NewImageProvider creates an Imagen-backed image provider.
func NewImageProvider(apiKey string, objects chatSvc.ObjectStore, logger *slog.Logger) (*ImageProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key cannot be empty")
	}
	return &ImageProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{},
		objects:    objects,
		logger:     logger,
	}, nil
}

type imagenInstance struct {
	Prompt         string                `json:"prompt"`
	ReferenceImage *imagenReferenceImage `json:"referenceImage,omitempty"`
}

type imagenReferenceImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
}

type imagenParameters struct {
	OutputMimeType   string `json:"outputMimeType"`
	SampleCount      int    `json:"sampleCount"`
	PersonGeneration string `json:"personGeneration"`
	AspectRatio      string `json:"aspectRatio,omitempty"`
	ImageSize        string `json:"imageSize,omitempty"`
}

type imagenRequest struct {
	Instances  []imagenInstance `json:"instances"`
	Parameters imagenParameters `json:"parameters"`
}

type imagenResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"predictions"`
}

// Generate synthesizes one image and returns its object-store key.
func (p *ImageProvider) Generate(ctx context.Context, req *chatSvc.ImageRequest) (string, error) {
	model := strings.TrimPrefix(req.Model, "models/")
	if model == "" {
		model = "imagen-4.0-generate-001"
	}

	instance := imagenInstance{Prompt: req.Prompt}
	if req.ReferenceImageBase64 != "" {
		_, data, err := decodeBase64Image(req.ReferenceImageBase64)
		if err != nil {
			return "", fmt.Errorf("%w: decode reference image: %v", domain.ErrValidation, err)
		}
		instance.ReferenceImage = &imagenReferenceImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(data),
		}
	}

	params := imagenParameters{
		OutputMimeType:   "image/jpeg",
		SampleCount:      1,
		PersonGeneration: "ALLOW_ALL",
	}
	if req.AspectRatio != "" && req.AspectRatio != "Auto" {
		params.AspectRatio = req.AspectRatio
	}
	if req.Resolution != "" {
		params.ImageSize = req.Resolution
	}

	body, err := json.Marshal(imagenRequest{
		Instances:  []imagenInstance{instance},
		Parameters: params,
	})
	if err != nil {
		return "", fmt.Errorf("marshal imagen request: %w", err)
	}

	url := fmt.Sprintf(imagenEndpoint, model) + "?key=" + p.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build imagen request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrBackend, err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("imagen request failed",
			"status", resp.StatusCode,
			"model", model,
			"body", truncate(string(respBody), 512),
		)
		return "", fmt.Errorf("%w: imagen returned status %d", domain.ErrBackend, resp.StatusCode)
	}

	var decoded imagenResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrBackend, err)
	}
	if len(decoded.Predictions) == 0 || decoded.Predictions[0].BytesBase64Encoded == "" {
		return "", fmt.Errorf("%w: no image generated in response", domain.ErrBackend)
	}

	imageBytes, err := base64.StdEncoding.DecodeString(decoded.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return "", fmt.Errorf("%w: decode image bytes: %v", domain.ErrBackend, err)
	}

	key := fmt.Sprintf("smart_chat_uploads/%s/%s/%s.jpg", req.UserID, req.SessionID, uuid.NewString())
	if err := p.objects.Upload(ctx, key, imageBytes, "image/jpeg"); err != nil {
		return "", fmt.Errorf("store generated image: %w", err)
	}

	return key, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
