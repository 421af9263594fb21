package conversation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/style"
	"github.com/google/uuid"
)

// Config tunes the machine.
type Config struct {
	// MinPromptLength rejects shorter free-text prompts.
	MinPromptLength int
	// DefaultStyle is used when a classifier verdict names no known style.
	DefaultStyle string
	// NewID mints generation IDs. Defaults to random UUIDs.
	NewID func() string
}

// Machine applies events to chat sessions.
type Machine struct {
	cfg Config
}

// New creates a machine.
func New(cfg Config) *Machine {
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.DefaultStyle == "" {
		cfg.DefaultStyle = style.BuiltIns()[0].Name
	}
	return &Machine{cfg: cfg}
}

// Step applies ev to sess and returns the next session and the effects to run.
// sess is never mutated.
func (m *Machine) Step(now time.Time, sess *domain.UserSession, ev Event) (*domain.UserSession, []Effect) {
	s := sess.Clone()
	if s.CustomStyles == nil {
		s.CustomStyles = make(map[string]string)
	}

	var effects []Effect
	changed := true
	switch ev := ev.(type) {
	case Message:
		effects, changed = m.onMessage(s, ev)
	case Classified:
		effects, changed = m.onClassified(s, ev)
	case GenerationDone:
		changed = m.finish(s, ev.ID, &ev.Entry)
	case GenerationFailed:
		changed = m.finish(s, ev.ID, nil)
	default:
		changed = false
	}

	if !changed {
		return sess, effects
	}
	s.UpdatedAt = now
	return s, effects
}

func (m *Machine) onMessage(s *domain.UserSession, ev Message) ([]Effect, bool) {
	text := strings.TrimSpace(ev.Text)
	if cmd, ok := ParseCommand(text); ok {
		return m.onCommand(s, cmd)
	}

	switch s.State {
	case domain.StateGenerating:
		return reply(ReplyAlreadyInProgress), false
	case domain.StateAwaitingStyleChoice:
		return m.onSelection(s, text)
	default:
		if len([]rune(text)) < m.cfg.MinPromptLength || text == "" {
			return reply(replyPromptTooShort(m.cfg.MinPromptLength)), false
		}
		return []Effect{Classify{Prompt: text}}, false
	}
}

func (m *Machine) onClassified(s *domain.UserSession, ev Classified) ([]Effect, bool) {
	if s.State != domain.StateIdle {
		return nil, false
	}
	c := ev.Classification

	if c.NeedsClarification {
		s.State = domain.StateAwaitingStyleChoice
		s.PendingPrompt = ev.Prompt
		s.StyleOptions = style.Names(s.CustomStyles)
		return reply(styleMenu(c.Question, s.StyleOptions)), true
	}

	st, ok := style.Lookup(c.Style, s.CustomStyles)
	if !ok {
		st, ok = style.Lookup(m.cfg.DefaultStyle, s.CustomStyles)
	}
	if !ok {
		st = style.BuiltIns()[0]
	}
	return m.start(s, ev.Prompt, st), true
}

func (m *Machine) onSelection(s *domain.UserSession, text string) ([]Effect, bool) {
	name := ""
	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(s.StyleOptions) {
			name = s.StyleOptions[n-1]
		}
	} else {
		for _, opt := range s.StyleOptions {
			if strings.EqualFold(opt, text) {
				name = opt
				break
			}
		}
	}

	st, ok := style.Lookup(name, s.CustomStyles)
	if name == "" || !ok {
		return reply(replyInvalidChoice(len(s.StyleOptions))), false
	}
	return m.start(s, s.PendingPrompt, st), true
}

func (m *Machine) start(s *domain.UserSession, prompt string, st style.Style) []Effect {
	id := m.cfg.NewID()
	s.State = domain.StateGenerating
	s.ActiveGenerationID = id
	s.LastStyle = st.Name
	s.ClearPending()

	return []Effect{
		Reply{Text: replyGenerating(st.Name)},
		StartGeneration{
			ID: id,
			Prompt: domain.ResolvedPrompt{
				Prompt:          prompt,
				AugmentedPrompt: style.Augment(prompt, st),
				StyleName:       st.Name,
			},
		},
	}
}

// finish closes generation id. Results for any other generation are stale and ignored.
func (m *Machine) finish(s *domain.UserSession, id string, entry *domain.HistoryEntry) bool {
	if s.State != domain.StateGenerating || s.ActiveGenerationID != id || id == "" {
		return false
	}
	if entry != nil {
		s.AppendHistory(*entry)
	}
	s.State = domain.StateIdle
	s.ActiveGenerationID = ""
	return true
}

func (m *Machine) onCommand(s *domain.UserSession, cmd Command) ([]Effect, bool) {
	switch cmd.Name {
	case CmdHelp:
		return reply(helpText), false
	case CmdStatus:
		return reply(statusText(s)), false
	case CmdHistory:
		return reply(historyText(s)), false
	case CmdStyles:
		return reply(stylesText(s)), false
	case CmdCancel:
		return m.cancel(s)
	case CmdCreateStyle:
		return m.createStyle(s, cmd)
	case CmdDeleteStyle:
		return m.deleteStyle(s, cmd)
	default:
		return reply(replyUnknownCommand(cmd.Name)), false
	}
}

func (m *Machine) cancel(s *domain.UserSession) ([]Effect, bool) {
	switch s.State {
	case domain.StateAwaitingStyleChoice:
		s.ClearPending()
		s.State = domain.StateIdle
		return reply(ReplyCancelled), true
	case domain.StateGenerating:
		id := s.ActiveGenerationID
		s.ActiveGenerationID = ""
		s.State = domain.StateIdle
		return []Effect{AbortGeneration{ID: id}, Reply{Text: ReplyGenerationStopped}}, true
	default:
		return reply(ReplyNothingToCancel), false
	}
}

func (m *Machine) createStyle(s *domain.UserSession, cmd Command) ([]Effect, bool) {
	name, prompt, ok := parseCreateStyle(cmd.Raw)
	if !ok {
		return reply(ReplyCreateStyleUsage), false
	}
	if style.IsBuiltIn(name) {
		return reply(fmt.Sprintf("❌ '%s' is a built-in style. Please pick another name.", name)), false
	}

	key := domain.NormalizeStyleName(name)
	s.CustomStyles[key] = prompt
	text := fmt.Sprintf("✅ Style '%s' created successfully!", key)

	if s.State == domain.StateAwaitingStyleChoice {
		idx := -1
		for i, opt := range s.StyleOptions {
			if strings.EqualFold(opt, key) {
				idx = i
				break
			}
		}
		if idx < 0 {
			s.StyleOptions = append(s.StyleOptions, key)
			idx = len(s.StyleOptions) - 1
		}
		text += fmt.Sprintf("\n\nReply *%d* to use it for _%s_.", idx+1, s.PendingPrompt)
	}
	return reply(text), true
}

func (m *Machine) deleteStyle(s *domain.UserSession, cmd Command) ([]Effect, bool) {
	if len(cmd.Args) != 1 {
		return reply(ReplyDeleteStyleUsage), false
	}
	name := cmd.Args[0]
	key := domain.NormalizeStyleName(name)
	if _, ok := s.CustomStyles[key]; !ok {
		return reply(fmt.Sprintf("❌ Could not find a style named '%s'.", name)), false
	}
	delete(s.CustomStyles, key)
	return reply(fmt.Sprintf("🗑️ Style '%s' deleted.", key)), true
}

func reply(text string) []Effect {
	return []Effect{Reply{Text: text}}
}
