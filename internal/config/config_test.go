package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Cache.MaxEntries != 0 || cfg.Cache.TTL != 0 {
		t.Errorf("expected unbounded cache by default, got %+v", cfg.Cache)
	}
	if cfg.Inference.Timeout != 5*time.Minute {
		t.Errorf("expected 5m inference timeout, got %v", cfg.Inference.Timeout)
	}
	if cfg.StaleGenerationAfter != 10*time.Minute {
		t.Errorf("expected stale sweep at 2x inference timeout, got %v", cfg.StaleGenerationAfter)
	}
	if cfg.Classifier.Model != "llama-3.1-8b-instant" {
		t.Errorf("unexpected default classifier model %q", cfg.Classifier.Model)
	}
	if cfg.Media.MaxBytes != 15*1024*1024 {
		t.Errorf("unexpected media limit %d", cfg.Media.MaxBytes)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CACHE_MAX_ENTRIES", "128")
	t.Setenv("CACHE_TTL", "90")
	t.Setenv("INFERENCE_TIMEOUT", "0")
	t.Setenv("CLASSIFIER_PROVIDER", "Anthropic")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.MaxEntries != 128 {
		t.Errorf("expected 128 entries, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("expected bare seconds to parse, got %v", cfg.Cache.TTL)
	}
	if cfg.Inference.Timeout != 0 {
		t.Errorf("expected disabled inference timeout, got %v", cfg.Inference.Timeout)
	}
	if cfg.StaleGenerationAfter != 30*time.Minute {
		t.Errorf("expected fallback stale window, got %v", cfg.StaleGenerationAfter)
	}
	if cfg.Classifier.Provider != ProviderAnthropic {
		t.Errorf("expected provider to be case-folded, got %q", cfg.Classifier.Provider)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"STORE_BACKEND": "mongo"}},
		{"s3 without bucket", map[string]string{"MEDIA_STORE": "s3"}},
		{"unknown compressor", map[string]string{"COMPRESSOR": "handbrake"}},
		{"signature without url", map[string]string{"TWILIO_VALIDATE_SIGNATURE": "true"}},
		{"zero rate limit", map[string]string{"RATE_LIMIT_REQUESTS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
