package capabilities

// ChatModel describes one text-completion model the backend accepts.
type ChatModel struct {
	// Model identifier exposed to clients (set during YAML unmarshaling)
	ID string `yaml:"-" json:"id"`

	// Display information
	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description" json:"description"`

	// APIModel is the actual backend model ID requests are sent with.
	APIModel string `yaml:"api_model" json:"api_model"`

	// Core capabilities
	SupportsVision   bool `yaml:"supports_vision" json:"supports_vision"`
	SupportsThinking bool `yaml:"supports_thinking" json:"supports_thinking"`

	// Limits
	MaxOutput int `yaml:"max_output" json:"max_output"`
}

// ImageModel describes one image-synthesis model and its accepted parameters.
type ImageModel struct {
	ID string `yaml:"-" json:"id"`

	DisplayName  string   `yaml:"display_name" json:"display_name"`
	AspectRatios []string `yaml:"aspect_ratios" json:"aspect_ratios"`
	Resolutions  []string `yaml:"resolutions" json:"resolutions"`
	MaxSamples   int      `yaml:"max_samples" json:"max_samples"`
}

// ProviderCapabilities represents all models for a provider.
type ProviderCapabilities struct {
	Provider    string                `yaml:"provider" json:"provider"`
	ChatModels  map[string]ChatModel  `yaml:"chat_models" json:"chat_models"`
	ImageModels map[string]ImageModel `yaml:"image_models" json:"image_models"`

	// Ordering of models as defined in YAML (for UI listing)
	ChatModelOrder  []string `yaml:"chat_model_order" json:"chat_model_order"`
	ImageModelOrder []string `yaml:"image_model_order" json:"image_model_order"`
}
