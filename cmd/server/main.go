// reelbot - text-to-video bot server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/reelbot/internal/api"
	"github.com/ashureev/reelbot/internal/bot"
	"github.com/ashureev/reelbot/internal/cache"
	"github.com/ashureev/reelbot/internal/classifier"
	"github.com/ashureev/reelbot/internal/config"
	"github.com/ashureev/reelbot/internal/conversation"
	"github.com/ashureev/reelbot/internal/identity"
	"github.com/ashureev/reelbot/internal/inference"
	"github.com/ashureev/reelbot/internal/media"
	"github.com/ashureev/reelbot/internal/messaging"
	"github.com/ashureev/reelbot/internal/metrics"
	"github.com/ashureev/reelbot/internal/middleware"
	"github.com/ashureev/reelbot/internal/orchestrator"
	"github.com/ashureev/reelbot/internal/store"
	"github.com/ashureev/reelbot/internal/ws"
	"github.com/ashureev/reelbot/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.StoreBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected")

	m := metrics.New()
	results := cache.New(cache.Options{MaxEntries: cfg.Cache.MaxEntries, TTL: cfg.Cache.TTL}, m)
	cls := classifier.NewFallback(newClassifier(cfg), cfg.DefaultStyle, cfg.Classifier.Timeout, m)
	gen := inference.NewClient(cfg.Inference.BaseURL, cfg.Inference.Model, cfg.Inference.APIKey, cfg.Inference.Timeout)
	if cfg.Inference.APIKey == "" {
		slog.Warn("HUGGING_FACE_API_KEY not set, inference calls will be unauthenticated")
	}

	comp, err := newCompressor(cfg)
	if err != nil {
		slog.Error("Failed to initialize compressor", "error", err)
		os.Exit(1)
	}
	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize media store", "error", err)
		os.Exit(1)
	}
	slog.Info("Media pipeline ready", "compressor", cfg.Media.Compressor, "media_store", cfg.Media.Store, "max_bytes", cfg.Media.MaxBytes)

	// Initialize services.
	orch := orchestrator.New(results, gen, comp, orchestrator.Options{MaxMediaBytes: cfg.Media.MaxBytes}, m)
	resolver := orchestrator.NewResolver(cls, cfg.DefaultStyle)
	chatBot := bot.New(bot.Deps{
		Repo: repo,
		Machine: conversation.New(conversation.Config{
			MinPromptLength: cfg.PromptMinLength,
			DefaultStyle:    cfg.DefaultStyle,
		}),
		Classifier: cls,
		Generator:  orch,
		Uploader:   uploader,
		Sender:     newSender(cfg),
		Metrics:    m,
	})

	var validator *messaging.Validator
	if cfg.Twilio.ValidateSignature {
		validator = messaging.NewValidator(cfg.Twilio.AuthToken, cfg.PublicBaseURL)
	}

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, resolver, orch)
	wsHandler := ws.NewHandler(resolver, orch, m, cfg.FrontendURL, cfg.IsDevelopment())
	webhookHandler := bot.NewWebhookHandler(chatBot, validator)

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	limit := middleware.RateLimit(limiter, identity.KeyFromRequest)

	origins := []string{"*"}
	if cfg.FrontendURL != "" {
		origins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(origins))

	r.Handle("/metrics", m.Handler())

	// Twilio calls the webhook server-to-server; no anonymous identity.
	webhookHandler.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))

		apiHandler.RegisterRoutes(r, limit)

		// WebSocket endpoint.
		r.With(limit).Get("/ws/generate", wsHandler.ServeHTTP)

		// Serve embedded client (SPA catch-all).
		r.Handle("/*", web.SPAHandler())
	})

	// Generations can run for minutes on the synchronous endpoint, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	store.StartSweeper(ctx, repo, store.SweepInterval, cfg.StaleGenerationAfter, cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	chatBot.Close()
	slog.Info("Server stopped successfully")
}

func openStore(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	if cfg.StoreBackend == config.StoreRedis {
		return store.NewRedis(ctx, store.RedisOptions{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			Prefix:     cfg.Redis.Prefix,
			SessionTTL: cfg.SessionTTL,
		})
	}
	return store.NewSQLite(cfg.DBPath)
}

func newClassifier(cfg *config.Config) classifier.Classifier {
	c := cfg.Classifier
	switch c.Provider {
	case config.ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			slog.Warn("ANTHROPIC_API_KEY not set, every prompt uses the default style", "style", cfg.DefaultStyle)
			return classifier.Static{}
		}
		return classifier.NewAnthropic(c.AnthropicAPIKey, c.BaseURL, c.Model)
	default:
		if c.APIKey == "" {
			slog.Warn("GROQ_API_KEY not set, every prompt uses the default style", "style", cfg.DefaultStyle)
			return classifier.Static{}
		}
		return classifier.NewOpenAI(c.APIKey, c.BaseURL, c.Model)
	}
}

func newCompressor(cfg *config.Config) (media.Compressor, error) {
	switch cfg.Media.Compressor {
	case config.CompressorDocker:
		return media.NewDocker(cfg.Media.FFmpegImg, cfg.Media.Bitrate)
	case config.CompressorNone:
		return media.Passthrough{}, nil
	default:
		return media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.Bitrate), nil
	}
}

func newUploader(ctx context.Context, cfg *config.Config) (media.Uploader, error) {
	if cfg.Media.Store == config.MediaStoreS3 {
		s3 := cfg.Media.S3
		return media.NewS3(ctx, media.S3Config{
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			Region:    s3.Region,
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			URLExpiry: s3.URLExpiry,
		})
	}
	return media.NewTmpfiles(""), nil
}

func newSender(cfg *config.Config) messaging.Sender {
	if !cfg.Twilio.Enabled() {
		slog.Warn("Twilio not configured, chat replies will be dropped")
		return messaging.Disabled{}
	}
	return messaging.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.WhatsAppNumber)
}
