package capabilities

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry manages model capabilities across all providers
type Registry struct {
	providers map[string]*ProviderCapabilities
	mu        sync.RWMutex
}

// NewRegistry creates a new capability registry and loads embedded YAML files
func NewRegistry() (*Registry, error) {
	r := &Registry{
		providers: make(map[string]*ProviderCapabilities),
	}

	if err := r.loadProviderFile("gemini"); err != nil {
		return nil, fmt.Errorf("failed to load gemini capabilities: %w", err)
	}

	return r, nil
}

// loadProviderFile loads a provider's capability YAML file
func (r *Registry) loadProviderFile(provider string) error {
	filename := fmt.Sprintf("config/%s.yaml", provider)
	data, err := configFiles.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	var providerCaps ProviderCapabilities
	if err := yaml.Unmarshal(data, &providerCaps); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}

	// Set IDs from the map keys
	for id, m := range providerCaps.ChatModels {
		m.ID = id
		providerCaps.ChatModels[id] = m
	}
	for id, m := range providerCaps.ImageModels {
		m.ID = id
		providerCaps.ImageModels[id] = m
	}

	r.mu.Lock()
	r.providers[provider] = &providerCaps
	r.mu.Unlock()

	return nil
}

// GetChatModel returns the capabilities of a chat model by its client-facing ID
func (r *Registry) GetChatModel(provider, model string) (*ChatModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	m, ok := providerCaps.ChatModels[model]
	if !ok {
		return nil, fmt.Errorf("unknown model %s for provider %s", model, provider)
	}
	return &m, nil
}

// GetImageModel returns the capabilities of an image model
func (r *Registry) GetImageModel(provider, model string) (*ImageModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	m, ok := providerCaps.ImageModels[model]
	if !ok {
		return nil, fmt.Errorf("unknown image model %s for provider %s", model, provider)
	}
	return &m, nil
}

// ListChatModels returns all chat models for a provider (ordered as defined in YAML)
func (r *Registry) ListChatModels(provider string) ([]ChatModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	models := make([]ChatModel, 0, len(providerCaps.ChatModels))
	for _, id := range providerCaps.ChatModelOrder {
		if m, ok := providerCaps.ChatModels[id]; ok {
			models = append(models, m)
		}
	}
	return models, nil
}

// ListImageModels returns all image models for a provider (ordered as defined in YAML)
func (r *Registry) ListImageModels(provider string) ([]ImageModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providerCaps, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	models := make([]ImageModel, 0, len(providerCaps.ImageModels))
	for _, id := range providerCaps.ImageModelOrder {
		if m, ok := providerCaps.ImageModels[id]; ok {
			models = append(models, m)
		}
	}
	return models, nil
}
