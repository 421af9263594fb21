package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/reelbot/internal/classifier"
	"github.com/ashureev/reelbot/internal/conversation"
	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/messaging"
	"github.com/ashureev/reelbot/internal/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.UserSession
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]*domain.UserSession)}
}

func (f *fakeRepo) GetSession(_ context.Context, userID string) (*domain.UserSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[userID]
	if s == nil {
		return nil, nil
	}
	return s.Clone(), nil
}

func (f *fakeRepo) SaveSession(_ context.Context, s *domain.UserSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.UserID] = s.Clone()
	return nil
}

func (f *fakeRepo) DeleteSession(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, userID)
	return nil
}

func (f *fakeRepo) ResetStaleGenerations(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) CleanupExpiredSessions(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

type sent struct {
	to, body, media string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sent
}

func (f *fakeSender) Send(_ context.Context, to, body, mediaURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{to: to, body: body, media: mediaURL})
	return nil
}

func (f *fakeSender) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.body
	}
	return out
}

func (f *fakeSender) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[len(f.msgs)-1]
}

type fakeClassifier struct {
	result classifier.Classification
	err    error
}

func (f fakeClassifier) Classify(context.Context, string, []string) (classifier.Classification, error) {
	return f.result, f.err
}

type fakeGenerator struct {
	mu      sync.Mutex
	jobs    []orchestrator.Job
	err     error
	block   bool
	started chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, job orchestrator.Job, progress orchestrator.ProgressFunc) (domain.Artifact, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()

	progress(orchestrator.Progress{Stage: orchestrator.StageSending})
	if f.block {
		close(f.started)
		<-ctx.Done()
		return domain.Artifact{}, ctx.Err()
	}
	if f.err != nil {
		return domain.Artifact{}, f.err
	}
	progress(orchestrator.Progress{Stage: orchestrator.StageEncoding})
	return domain.Artifact{Data: []byte("mp4"), ContentType: "video/mp4"}, nil
}

type fakeUploader struct{}

func (fakeUploader) Upload(context.Context, []byte, string) (string, error) {
	return "https://media.example.com/v.mp4", nil
}

type harness struct {
	bot    *Bot
	repo   *fakeRepo
	sender *fakeSender
	gen    *fakeGenerator
}

func newHarness(t *testing.T, verdict classifier.Classification, gen *fakeGenerator) *harness {
	t.Helper()
	h := &harness{repo: newFakeRepo(), sender: &fakeSender{}, gen: gen}
	ids := 0
	h.bot = New(Deps{
		Repo: h.repo,
		Machine: conversation.New(conversation.Config{
			MinPromptLength: 10,
			DefaultStyle:    "Cinematic",
			NewID: func() string {
				ids++
				return fmt.Sprintf("gen-%d", ids)
			},
		}),
		Classifier: fakeClassifier{result: verdict},
		Generator:  gen,
		Uploader:   fakeUploader{},
		Sender:     h.sender,
	})
	t.Cleanup(h.bot.Close)
	return h
}

func (h *harness) session(t *testing.T, userID string) *domain.UserSession {
	t.Helper()
	s, err := h.repo.GetSession(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func TestPromptIsGeneratedAndDelivered(t *testing.T) {
	h := newHarness(t, classifier.Classification{Style: "Anime"}, &fakeGenerator{})

	require.NoError(t, h.bot.HandleMessage(context.Background(), "+15550001", "a cat on a skateboard"))
	h.bot.Wait()

	bodies := h.sender.bodies()
	assert.Contains(t, bodies, StatusWorking)
	last := h.sender.last()
	assert.Equal(t, "whatsapp:+15550001", last.to)
	assert.Equal(t, "https://media.example.com/v.mp4", last.media)
	assert.Equal(t, "✅ Here's your 'Anime' video!\n\n*Prompt:* _a cat on a skateboard_", last.body)

	s := h.session(t, "+15550001")
	assert.Equal(t, domain.StateIdle, s.State)
	require.Len(t, s.History, 1)
	assert.Equal(t, "Anime", s.History[0].Style)
	assert.Equal(t, "https://media.example.com/v.mp4", s.History[0].MediaURL)

	require.Len(t, h.gen.jobs, 1)
	assert.Equal(t, domain.ChannelChat, h.gen.jobs[0].Channel)
}

func TestClassifierFailureUsesDefaultStyle(t *testing.T) {
	h := newHarness(t, classifier.Classification{}, &fakeGenerator{})
	h.bot.classifier = fakeClassifier{err: errors.New("llm unavailable")}

	require.NoError(t, h.bot.HandleMessage(context.Background(), "u1", "a cat on a skateboard"))
	h.bot.Wait()

	for _, body := range h.sender.bodies() {
		assert.NotContains(t, body, "couldn't detect a specific style")
	}
	require.Len(t, h.gen.jobs, 1)
	assert.Equal(t, "Cinematic", h.gen.jobs[0].Prompt.StyleName)

	s := h.session(t, "u1")
	assert.Equal(t, domain.StateIdle, s.State)
	assert.Empty(t, s.PendingPrompt)
}

func TestClarificationThenSelection(t *testing.T) {
	h := newHarness(t, classifier.Classification{NeedsClarification: true, Question: "Which look?"}, &fakeGenerator{})
	ctx := context.Background()

	require.NoError(t, h.bot.HandleMessage(ctx, "u1", "a cat on a skateboard"))
	s := h.session(t, "u1")
	assert.Equal(t, domain.StateAwaitingStyleChoice, s.State)
	assert.Contains(t, h.sender.last().body, "Which look?")

	require.NoError(t, h.bot.HandleMessage(ctx, "u1", "2"))
	h.bot.Wait()

	require.Len(t, h.gen.jobs, 1)
	assert.Equal(t, "Anime", h.gen.jobs[0].Prompt.StyleName)
	assert.Equal(t, "a cat on a skateboard", h.gen.jobs[0].Prompt.Prompt)
	assert.Equal(t, domain.StateIdle, h.session(t, "u1").State)
}

func TestCancelStopsGenerationWithoutHistory(t *testing.T) {
	gen := &fakeGenerator{block: true, started: make(chan struct{})}
	h := newHarness(t, classifier.Classification{Style: "Cinematic"}, gen)
	ctx := context.Background()

	require.NoError(t, h.bot.HandleMessage(ctx, "u1", "a cat on a skateboard"))
	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("generation never started")
	}

	require.NoError(t, h.bot.HandleMessage(ctx, "u1", "a dog on a surfboard"))
	assert.Equal(t, conversation.ReplyAlreadyInProgress, h.sender.last().body)
	assert.Equal(t, domain.StateGenerating, h.session(t, "u1").State)

	require.NoError(t, h.bot.HandleMessage(ctx, "u1", "/cancel"))
	assert.Equal(t, conversation.ReplyGenerationStopped, h.sender.last().body)
	h.bot.Wait()

	s := h.session(t, "u1")
	assert.Equal(t, domain.StateIdle, s.State)
	assert.Empty(t, s.History)
	for _, b := range h.sender.bodies() {
		assert.NotEqual(t, ApologyGeneric, b)
	}
}

func TestFailureSendsApology(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: 503", orchestrator.ErrInference)}
	h := newHarness(t, classifier.Classification{Style: "Cinematic"}, gen)

	require.NoError(t, h.bot.HandleMessage(context.Background(), "u1", "a cat on a skateboard"))
	h.bot.Wait()

	assert.Equal(t, ApologyBusy, h.sender.last().body)
	s := h.session(t, "u1")
	assert.Equal(t, domain.StateIdle, s.State)
	assert.Empty(t, s.History)
}

func TestApology(t *testing.T) {
	assert.Equal(t, ApologyOversize, apology(fmt.Errorf("%w: big", orchestrator.ErrOversizeMedia)))
	assert.Equal(t, ApologyGeneric, apology(errors.New("boom")))
}

func TestMessageLabel(t *testing.T) {
	assert.Equal(t, "prompt", messageLabel("a cat on a skateboard"))
	assert.Equal(t, "cancel", messageLabel("/CANCEL"))
	assert.Equal(t, "unknown", messageLabel("/whatever"))
}

func TestWebhookRespondsWithEmptyTwiML(t *testing.T) {
	h := newHarness(t, classifier.Classification{}, &fakeGenerator{})
	wh := NewWebhookHandler(h.bot, nil)

	form := url.Values{"From": {"whatsapp:+15550001"}, "Body": {"/help"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bot/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	wh.Twilio(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, emptyTwiML, rec.Body.String())
	assert.Equal(t, "whatsapp:+15550001", h.sender.last().to)
	assert.Contains(t, h.sender.last().body, "/createstyle")
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t, classifier.Classification{}, &fakeGenerator{})
	wh := NewWebhookHandler(h.bot, messaging.NewValidator("token", "https://bot.example.com"))

	form := url.Values{"From": {"whatsapp:+15550001"}, "Body": {"/help"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bot/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(messaging.SignatureHeader, "bogus")
	rec := httptest.NewRecorder()
	wh.Twilio(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, h.sender.bodies())
}
