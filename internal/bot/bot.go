// Package bot drives chat conversations arriving on the WhatsApp webhook.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/reelbot/internal/classifier"
	"github.com/ashureev/reelbot/internal/conversation"
	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/media"
	"github.com/ashureev/reelbot/internal/messaging"
	"github.com/ashureev/reelbot/internal/metrics"
	"github.com/ashureev/reelbot/internal/orchestrator"
	"github.com/ashureev/reelbot/internal/store"
	"github.com/ashureev/reelbot/internal/style"
)

// Chat texts sent outside the state machine.
const (
	StatusWorking     = "🤖 The AI is working its magic… This can take a minute."
	StatusCompressing = "⬆️ Compressing and preparing your video file…"

	ApologyBusy     = "Sorry, the AI model is currently busy or unavailable."
	ApologyOversize = "😔 The video came out too large to send here, even after compression. Try a shorter or simpler prompt."
	ApologyGeneric  = "😔 Apologies, something went wrong on my end. Please try again later."
)

// completionBudget bounds recording a result after the generation context is gone.
const completionBudget = 30 * time.Second

// Generator runs a resolved job.
type Generator interface {
	Generate(ctx context.Context, job orchestrator.Job, progress orchestrator.ProgressFunc) (domain.Artifact, error)
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Repo       store.Repository
	Machine    *conversation.Machine
	Classifier classifier.Classifier
	Generator  Generator
	Uploader   media.Uploader
	Sender     messaging.Sender
	Metrics    *metrics.Metrics
}

// Bot serialises turns per user and runs the effects the state machine asks for.
type Bot struct {
	repo       store.Repository
	machine    *conversation.Machine
	classifier classifier.Classifier
	generator  Generator
	uploader   media.Uploader
	sender     messaging.Sender
	metrics    *metrics.Metrics
	now        func() time.Time

	// userLocks holds one *sync.Mutex per user so load, step, save never interleave.
	userLocks sync.Map

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Bot.
func New(d Deps) *Bot {
	return &Bot{
		repo:       d.Repo,
		machine:    d.Machine,
		classifier: d.Classifier,
		generator:  d.Generator,
		uploader:   d.Uploader,
		sender:     d.Sender,
		metrics:    d.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
		running:    make(map[string]context.CancelFunc),
	}
}

// HandleMessage processes one inbound chat message from userID.
func (b *Bot) HandleMessage(ctx context.Context, userID, text string) error {
	b.metrics.ChatMessage(messageLabel(text))
	return b.dispatch(ctx, userID, conversation.Message{Text: text})
}

// messageLabel bounds metric cardinality to the known commands.
func messageLabel(text string) string {
	cmd, ok := conversation.ParseCommand(text)
	if !ok {
		return "prompt"
	}
	switch cmd.Name {
	case conversation.CmdHelp, conversation.CmdCancel, conversation.CmdStatus, conversation.CmdHistory,
		conversation.CmdStyles, conversation.CmdCreateStyle, conversation.CmdDeleteStyle:
		return cmd.Name
	default:
		return "unknown"
	}
}

func (b *Bot) lock(userID string) func() {
	v, _ := b.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// dispatch applies ev and every event produced by its effects under the user's lock.
func (b *Bot) dispatch(ctx context.Context, userID string, ev conversation.Event) error {
	unlock := b.lock(userID)
	defer unlock()

	sess, err := b.repo.GetSession(ctx, userID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		sess = domain.NewUserSession(userID, b.now())
	}

	queue := []conversation.Event{ev}
	for len(queue) > 0 {
		ev, queue = queue[0], queue[1:]

		next, effects := b.machine.Step(b.now(), sess, ev)
		if next != sess {
			if err := b.repo.SaveSession(ctx, next); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			sess = next
		}

		for _, eff := range effects {
			if follow := b.run(ctx, sess, eff); follow != nil {
				queue = append(queue, follow)
			}
		}
	}
	return nil
}

// run executes one effect and returns the event it produces, if any.
func (b *Bot) run(ctx context.Context, sess *domain.UserSession, eff conversation.Effect) conversation.Event {
	switch e := eff.(type) {
	case conversation.Reply:
		b.send(ctx, sess.UserID, e.Text, "")
	case conversation.Classify:
		c, err := b.classifier.Classify(ctx, e.Prompt, style.Names(sess.CustomStyles))
		if err != nil {
			slog.Warn("Classification failed, using default style", "user_id", sess.UserID, "error", err)
			c = classifier.Classification{}
		}
		return conversation.Classified{Prompt: e.Prompt, Classification: c}
	case conversation.StartGeneration:
		b.start(ctx, sess.UserID, e)
	case conversation.AbortGeneration:
		b.abort(e.ID)
	}
	return nil
}

func (b *Bot) send(ctx context.Context, userID, body, mediaURL string) {
	if err := b.sender.Send(ctx, messaging.Address(userID), body, mediaURL); err != nil {
		slog.Error("Failed to send chat message", "user_id", userID, "error", err)
	}
}

// start launches generation in the background, detached from the webhook request.
func (b *Bot) start(parent context.Context, userID string, e conversation.StartGeneration) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))

	b.mu.Lock()
	b.running[e.ID] = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.release(e.ID)
		b.generate(ctx, userID, e)
	}()
}

func (b *Bot) abort(id string) {
	b.mu.Lock()
	cancel, ok := b.running[id]
	b.mu.Unlock()
	if ok {
		slog.Info("Cancelling generation", "generation_id", id)
		cancel()
	}
}

func (b *Bot) release(id string) {
	b.mu.Lock()
	cancel, ok := b.running[id]
	delete(b.running, id)
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

func (b *Bot) generate(ctx context.Context, userID string, e conversation.StartGeneration) {
	log := slog.With("user_id", userID, "generation_id", e.ID, "style", e.Prompt.StyleName)
	job := orchestrator.Job{Prompt: e.Prompt, Channel: domain.ChannelChat, UserID: userID}

	art, err := b.generator.Generate(ctx, job, func(p orchestrator.Progress) {
		switch p.Stage {
		case orchestrator.StageSending:
			b.send(ctx, userID, StatusWorking, "")
		case orchestrator.StageCompressing:
			b.send(ctx, userID, StatusCompressing, "")
		}
	})

	var url string
	if err == nil {
		url, err = b.uploader.Upload(ctx, art.Data, art.ContentType)
	}
	if err == nil {
		caption := fmt.Sprintf("✅ Here's your '%s' video!\n\n*Prompt:* _%s_", e.Prompt.StyleName, e.Prompt.Prompt)
		err = b.sender.Send(ctx, messaging.Address(userID), caption, url)
	}

	// Completion is recorded even after cancel; the machine ignores stale IDs.
	done, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionBudget)
	defer cancel()

	var ev conversation.Event
	switch {
	case err == nil:
		log.Info("Video delivered", "cached", art.Cached, "compressed", art.Compressed)
		ev = conversation.GenerationDone{ID: e.ID, Entry: domain.HistoryEntry{
			Prompt:    e.Prompt.Prompt,
			Style:     e.Prompt.StyleName,
			MediaURL:  url,
			CreatedAt: b.now(),
		}}
	case ctx.Err() != nil:
		log.Info("Generation cancelled")
		ev = conversation.GenerationFailed{ID: e.ID, Reason: "cancelled"}
	default:
		log.Error("Generation failed", "error", err)
		b.send(done, userID, apology(err), "")
		ev = conversation.GenerationFailed{ID: e.ID, Reason: err.Error()}
	}

	if err := b.dispatch(done, userID, ev); err != nil {
		log.Error("Failed to record generation result", "error", err)
	}
}

func apology(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrInference):
		return ApologyBusy
	case errors.Is(err, orchestrator.ErrOversizeMedia):
		return ApologyOversize
	default:
		return ApologyGeneric
	}
}

// Close cancels in-flight generations and waits for them to record their outcome.
func (b *Bot) Close() {
	b.mu.Lock()
	for _, cancel := range b.running {
		cancel()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// Wait blocks until background generations finish.
func (b *Bot) Wait() {
	b.wg.Wait()
}
