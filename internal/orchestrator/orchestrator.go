// Package orchestrator runs one generation: cache, inference, and size post-processing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/reelbot/internal/cache"
	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/inference"
	"github.com/ashureev/reelbot/internal/media"
	"github.com/ashureev/reelbot/internal/metrics"
)

var (
	// ErrInference wraps failures of the text-to-video service.
	ErrInference = errors.New("video generation failed")
	// ErrCompress wraps failures of the re-encoder.
	ErrCompress = errors.New("video compression failed")
	// ErrOversizeMedia means the video is still too large after one re-encode.
	ErrOversizeMedia = errors.New("video too large for delivery")
)

// Stage is a progress milestone reported to the delivery channel.
type Stage string

const (
	StageSending     Stage = "sending"
	StageEncoding    Stage = "encoding"
	StageCompressing Stage = "compressing"
)

// Progress is one progress event.
type Progress struct {
	Stage Stage
}

// ProgressFunc receives progress events in order. It may be nil.
type ProgressFunc func(Progress)

// Job is a resolved request ready for generation.
type Job struct {
	Prompt  domain.ResolvedPrompt
	Channel domain.Channel
	UserID  string
}

// Options configures the orchestrator.
type Options struct {
	// MaxMediaBytes is the chat delivery ceiling.
	MaxMediaBytes int64
}

// Orchestrator produces artifacts for jobs.
type Orchestrator struct {
	cache      *cache.ResultCache
	generator  inference.Generator
	compressor media.Compressor
	opts       Options
	metrics    *metrics.Metrics
}

// New creates an orchestrator. A nil compressor disables re-encoding.
func New(c *cache.ResultCache, g inference.Generator, comp media.Compressor, opts Options, m *metrics.Metrics) *Orchestrator {
	if comp == nil {
		comp = media.Passthrough{}
	}
	return &Orchestrator{cache: c, generator: g, compressor: comp, opts: opts, metrics: m}
}

// Generate returns an artifact for job, from cache when possible.
func (o *Orchestrator) Generate(ctx context.Context, job Job, progress ProgressFunc) (domain.Artifact, error) {
	art, err := o.generate(ctx, job, progress)
	o.metrics.Generation(string(job.Channel), outcome(art, err))
	return art, err
}

func (o *Orchestrator) generate(ctx context.Context, job Job, progress ProgressFunc) (domain.Artifact, error) {
	report := func(s Stage) {
		if progress != nil {
			progress(Progress{Stage: s})
		}
	}
	log := slog.With("user_id", job.UserID, "style", job.Prompt.StyleName, "channel", job.Channel)

	if art, ok := o.cache.Lookup(job.Prompt.Prompt, job.Prompt.StyleName); ok {
		log.Info("Cache hit")
		return o.fitForChannel(ctx, job, art, report)
	}

	report(StageSending)
	start := time.Now()
	video, err := o.generator.Generate(ctx, job.Prompt.AugmentedPrompt)
	o.metrics.ObserveInference(time.Since(start))
	if err != nil {
		log.Error("Inference failed", "error", err, "elapsed", time.Since(start))
		return domain.Artifact{}, fmt.Errorf("%w: %w", ErrInference, err)
	}
	report(StageEncoding)

	art := domain.Artifact{Data: video.Data, ContentType: video.ContentType}
	o.cache.Store(job.Prompt.Prompt, job.Prompt.StyleName, art)
	log.Info("Video generated", "bytes", art.Size(), "elapsed", time.Since(start))

	return o.fitForChannel(ctx, job, art, report)
}

// fitForChannel re-encodes once for chat delivery when the artifact exceeds the ceiling.
func (o *Orchestrator) fitForChannel(ctx context.Context, job Job, art domain.Artifact, report func(Stage)) (domain.Artifact, error) {
	if job.Channel != domain.ChannelChat || o.opts.MaxMediaBytes <= 0 || art.Size() <= o.opts.MaxMediaBytes {
		return art, nil
	}

	report(StageCompressing)
	data, err := o.compressor.Compress(ctx, art.Data)
	if err != nil {
		o.metrics.Compression("error")
		return domain.Artifact{}, fmt.Errorf("%w: %w", ErrCompress, err)
	}

	out := domain.Artifact{Data: data, ContentType: art.ContentType, Cached: art.Cached, Compressed: true}
	if out.Size() > o.opts.MaxMediaBytes {
		o.metrics.Compression("oversize")
		return domain.Artifact{}, fmt.Errorf("%w: %d bytes after compression, limit %d", ErrOversizeMedia, out.Size(), o.opts.MaxMediaBytes)
	}
	o.metrics.Compression("success")
	return out, nil
}

func outcome(art domain.Artifact, err error) string {
	switch {
	case err == nil && art.Cached:
		return "cached"
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrOversizeMedia):
		return "oversize"
	default:
		return "error"
	}
}
