package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins string
	JWKSURL     string
	// Storage
	DatabaseURL    string
	TablePrefix    string
	GCSBucket      string
	GCSCredentials string // path to service account key, empty = ADC
	SignedURLTTL   time.Duration
	// Generation backends
	GeminiAPIKey      string
	DefaultChatModel  string
	DefaultImageModel string
	// Turn policy
	MaxImagesPerTurn    int
	MaxConcurrentImages int
	MaxThinkingSteps    int
	TextTimeout         time.Duration
	ImageTimeout        time.Duration
	// Logging
	LogDir      string // empty = stdout only
	LogMaxFiles int
	Debug       bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		JWKSURL:     getEnv("JWKS_URL", ""),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		TablePrefix:    getTablePrefix(env),
		GCSBucket:      getEnv("GCS_BUCKET", ""),
		GCSCredentials: getEnv("GCS_CREDENTIALS_FILE", ""),
		SignedURLTTL:   getDuration("SIGNED_URL_TTL", 15*time.Minute),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		DefaultChatModel:  getEnv("DEFAULT_CHAT_MODEL", "gemini-3.0-pro"),
		DefaultImageModel: getEnv("DEFAULT_IMAGE_MODEL", "imagen-4.0-generate-001"),

		MaxImagesPerTurn:    getInt("MAX_IMAGES_PER_TURN", 4),
		MaxConcurrentImages: getInt("MAX_CONCURRENT_IMAGES", 4),
		MaxThinkingSteps:    getInt("MAX_THINKING_STEPS", 5),
		TextTimeout:         getDuration("TEXT_TIMEOUT", 2*time.Minute),
		ImageTimeout:        getDuration("IMAGE_TIMEOUT", 3*time.Minute),

		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getInt("LOG_MAX_FILES", 10),

		// Debug flags - default to true in dev/test, false in production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true" // Enable DEBUG in dev/test by default
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
