package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	DataRoot string
	APIPort  string

	LogLevel  slog.Level
	LogFormat string

	TranscriberBaseURL string
	TranscriberModel   string
	TranscriberAPIKey  string
	TranscribeTimeout  time.Duration
	MaxRetries         int
	RetryBackoffBase   time.Duration

	EmbeddingBaseURL    string
	EmbeddingModelName  string
	EmbeddingAPIKey     string
	EmbeddingVectorSize int

	VectorBackend    string // "memory" or "qdrant"
	QdrantURL        string
	QdrantCollection string

	StaleThreshold time.Duration

	ProcessorCommand string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded
// automatically. Environment variables already set take precedence over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load() // Try current directory

	// Walk up toward the project root looking for a .env file.
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		DataRoot:           getEnv("DATA_ROOT", "./data/sessions"),
		APIPort:            getEnv("API_PORT", "9000"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		TranscriberBaseURL: getEnv("TRANSCRIBER_BASE_URL", "http://localhost:8080"),
		TranscriberModel:   getEnv("TRANSCRIBER_MODEL", "whisper-1"),
		TranscriberAPIKey:  getEnv("TRANSCRIBER_API_KEY", "dummy-key"),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", "dummy-key"),
		VectorBackend:      getEnv("VECTOR_BACKEND", "memory"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "sessions"),
		ProcessorCommand:   getEnv("PROCESSOR_COMMAND", ""),
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	cfg.TranscribeTimeout, err = getDuration("TRANSCRIBE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.RetryBackoffBase, err = getDuration("RETRY_BACKOFF_BASE", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.StaleThreshold, err = getDuration("STALE_THRESHOLD", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.MaxRetries, err = getInt("MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MAX_RETRIES must not be negative")
	}

	// EMBEDDING_VECTOR_SIZE must match the output vector size of the embeddings
	// model. It is only required when an embedding endpoint is configured;
	// without one, search degrades to non-semantic matching.
	if cfg.EmbeddingBaseURL != "" {
		sizeStr := getEnv("EMBEDDING_VECTOR_SIZE", "")
		if sizeStr == "" {
			return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE is required when EMBEDDING_BASE_URL is set")
		}
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE must be a valid integer: %w", err)
		}
		if size <= 0 {
			return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE must be greater than 0")
		}
		cfg.EmbeddingVectorSize = size
	}

	switch cfg.VectorBackend {
	case "memory", "qdrant":
	default:
		return nil, fmt.Errorf("VECTOR_BACKEND must be \"memory\" or \"qdrant\", got %q", cfg.VectorBackend)
	}

	return cfg, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", s)
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
