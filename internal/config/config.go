// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Classifier providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Compressors.
const (
	CompressorFFmpeg = "ffmpeg"
	CompressorDocker = "docker"
	CompressorNone   = "none"
)

// Media stores.
const (
	MediaStoreTmpfiles = "tmpfiles"
	MediaStoreS3       = "s3"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	LogLevel    slog.Level

	StoreBackend         string
	DBPath               string
	Redis                RedisConfig
	SessionTTL           time.Duration
	StaleGenerationAfter time.Duration

	Inference  InferenceConfig
	Classifier ClassifierConfig
	Twilio     TwilioConfig
	Media      MediaConfig
	Cache      CacheConfig
	RateLimit  RateLimitConfig

	DefaultStyle    string
	PromptMinLength int
	PublicBaseURL   string
}

// RedisConfig configures the Redis session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// InferenceConfig configures the text-to-video endpoint.
type InferenceConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration // 0 disables the timeout
}

// ClassifierConfig configures the prompt classifier LLM.
type ClassifierConfig struct {
	Provider        string
	APIKey          string
	BaseURL         string
	Model           string
	AnthropicAPIKey string
	Timeout         time.Duration
}

// TwilioConfig holds WhatsApp delivery credentials.
type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	WhatsAppNumber    string
	ValidateSignature bool
}

// Enabled reports whether outbound WhatsApp delivery is configured.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.WhatsAppNumber != ""
}

// MediaConfig controls post-processing and upload of generated videos.
type MediaConfig struct {
	MaxBytes   int64
	Compressor string
	FFmpegPath string
	FFmpegImg  string
	Bitrate    string
	Store      string
	S3         S3Config
}

// S3Config configures the S3-compatible media store.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	URLExpiry time.Duration
}

// CacheConfig bounds the in-memory result cache. Zero values mean unbounded.
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

// RateLimitConfig controls the per-user generation rate limiter.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	inferenceTimeout := getEnvDuration("INFERENCE_TIMEOUT", 5*time.Minute)
	staleDefault := 30 * time.Minute
	if inferenceTimeout > 0 {
		staleDefault = 2 * inferenceTimeout
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		LogLevel:    parseLevel(getEnv("LOG_LEVEL", "info")),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
		DBPath:       getEnv("DB_PATH", "./data/reelbot.db"),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "reelbot"),
		},
		SessionTTL:           getEnvDuration("SESSION_TTL", 7*24*time.Hour),
		StaleGenerationAfter: getEnvDuration("STALE_GENERATION_AFTER", staleDefault),

		Inference: InferenceConfig{
			APIKey:  getEnv("HUGGING_FACE_API_KEY", ""),
			BaseURL: getEnv("INFERENCE_BASE_URL", "https://router.huggingface.co/hf-inference/models"),
			Model:   getEnv("INFERENCE_MODEL", "Wan-AI/Wan2.2-T2V-A14B"),
			Timeout: inferenceTimeout,
		},
		Classifier: ClassifierConfig{
			Provider:        strings.ToLower(getEnv("CLASSIFIER_PROVIDER", ProviderOpenAI)),
			APIKey:          getEnv("GROQ_API_KEY", ""),
			BaseURL:         getEnv("CLASSIFIER_BASE_URL", ""),
			Model:           getEnv("CLASSIFIER_MODEL", ""),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			Timeout:         getEnvDuration("CLASSIFIER_TIMEOUT", 15*time.Second),
		},
		Twilio: TwilioConfig{
			AccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
			WhatsAppNumber:    getEnv("TWILIO_WHATSAPP_NUMBER", ""),
			ValidateSignature: getEnvBool("TWILIO_VALIDATE_SIGNATURE", false),
		},
		Media: MediaConfig{
			MaxBytes:   int64(getEnvInt("MEDIA_MAX_BYTES", 15*1024*1024)),
			Compressor: strings.ToLower(getEnv("COMPRESSOR", CompressorFFmpeg)),
			FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
			FFmpegImg:  getEnv("FFMPEG_IMAGE", "jrottenberg/ffmpeg:6.1-alpine"),
			Bitrate:    getEnv("COMPRESS_BITRATE", "1M"),
			Store:      strings.ToLower(getEnv("MEDIA_STORE", MediaStoreTmpfiles)),
			S3: S3Config{
				Bucket:    getEnv("S3_BUCKET", ""),
				Prefix:    getEnv("S3_PREFIX", "videos"),
				Region:    getEnv("S3_REGION", "us-east-1"),
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				URLExpiry: getEnvDuration("S3_URL_EXPIRY", 24*time.Hour),
			},
		},
		Cache: CacheConfig{
			MaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 0),
			TTL:        getEnvDuration("CACHE_TTL", 0),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},

		DefaultStyle:    getEnv("DEFAULT_STYLE", "Cinematic"),
		PromptMinLength: getEnvInt("PROMPT_MIN_LENGTH", 10),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
	}

	if cfg.Classifier.Model == "" {
		if cfg.Classifier.Provider == ProviderAnthropic {
			cfg.Classifier.Model = "claude-3-5-haiku-latest"
		} else {
			cfg.Classifier.Model = "llama-3.1-8b-instant"
		}
	}
	if cfg.Classifier.BaseURL == "" && cfg.Classifier.Provider == ProviderOpenAI {
		cfg.Classifier.BaseURL = "https://api.groq.com/openai/v1"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreBackend {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreSQLite, StoreRedis, c.StoreBackend)
	}
	switch c.Classifier.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("CLASSIFIER_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.Classifier.Provider)
	}
	switch c.Media.Compressor {
	case CompressorFFmpeg, CompressorDocker, CompressorNone:
	default:
		return fmt.Errorf("COMPRESSOR must be one of ffmpeg, docker, none; got %q", c.Media.Compressor)
	}
	switch c.Media.Store {
	case MediaStoreTmpfiles:
	case MediaStoreS3:
		if c.Media.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET cannot be empty when MEDIA_STORE=s3")
		}
	default:
		return fmt.Errorf("MEDIA_STORE must be %q or %q, got %q", MediaStoreTmpfiles, MediaStoreS3, c.Media.Store)
	}
	if c.Media.MaxBytes <= 0 {
		return fmt.Errorf("MEDIA_MAX_BYTES must be > 0")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be >= 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.DefaultStyle == "" {
		return fmt.Errorf("DEFAULT_STYLE cannot be empty")
	}
	if c.Twilio.ValidateSignature && c.PublicBaseURL == "" {
		return fmt.Errorf("PUBLIC_BASE_URL is required when TWILIO_VALIDATE_SIGNATURE is on")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
