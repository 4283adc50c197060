package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.DataRoot != "./data/sessions" {
		t.Errorf("DataRoot = %s, want ./data/sessions", got.DataRoot)
	}
	if got.APIPort != "9000" {
		t.Errorf("APIPort = %s, want 9000", got.APIPort)
	}
	if got.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", got.LogLevel)
	}
	if got.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", got.MaxRetries)
	}
	if got.TranscribeTimeout != 2*time.Minute {
		t.Errorf("TranscribeTimeout = %v, want 2m", got.TranscribeTimeout)
	}
	if got.RetryBackoffBase != 30*time.Second {
		t.Errorf("RetryBackoffBase = %v, want 30s", got.RetryBackoffBase)
	}
	if got.VectorBackend != "memory" {
		t.Errorf("VectorBackend = %s, want memory", got.VectorBackend)
	}
	// No embedding endpoint configured: semantic search disabled, no size required.
	if got.EmbeddingVectorSize != 0 {
		t.Errorf("EmbeddingVectorSize = %d, want 0", got.EmbeddingVectorSize)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATA_ROOT", "/tmp/vv")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("TRANSCRIBE_TIMEOUT", "45s")
	t.Setenv("STALE_THRESHOLD", "1h")

	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.DataRoot != "/tmp/vv" {
		t.Errorf("DataRoot = %s, want /tmp/vv", got.DataRoot)
	}
	if got.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", got.LogLevel)
	}
	if got.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", got.MaxRetries)
	}
	if got.TranscribeTimeout != 45*time.Second {
		t.Errorf("TranscribeTimeout = %v, want 45s", got.TranscribeTimeout)
	}
	if got.StaleThreshold != time.Hour {
		t.Errorf("StaleThreshold = %v, want 1h", got.StaleThreshold)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "invalid log level",
			env:  map[string]string{"LOG_LEVEL": "loud"},
		},
		{
			name: "embedding URL without vector size",
			env:  map[string]string{"EMBEDDING_BASE_URL": "http://localhost:8081"},
		},
		{
			name: "non-numeric vector size",
			env: map[string]string{
				"EMBEDDING_BASE_URL":    "http://localhost:8081",
				"EMBEDDING_VECTOR_SIZE": "many",
			},
		},
		{
			name: "zero vector size",
			env: map[string]string{
				"EMBEDDING_BASE_URL":    "http://localhost:8081",
				"EMBEDDING_VECTOR_SIZE": "0",
			},
		},
		{
			name: "unknown vector backend",
			env:  map[string]string{"VECTOR_BACKEND": "pinecone"},
		},
		{
			name: "negative retries",
			env:  map[string]string{"MAX_RETRIES": "-1"},
		},
		{
			name: "bad duration",
			env:  map[string]string{"TRANSCRIBE_TIMEOUT": "soon"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestLoad_EmbeddingConfigured(t *testing.T) {
	t.Setenv("EMBEDDING_BASE_URL", "http://localhost:8081")
	t.Setenv("EMBEDDING_VECTOR_SIZE", "1024")

	got, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.EmbeddingVectorSize != 1024 {
		t.Errorf("EmbeddingVectorSize = %d, want 1024", got.EmbeddingVectorSize)
	}
}
