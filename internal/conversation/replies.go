package conversation

import (
	"fmt"
	"strings"

	"github.com/ashureev/reelbot/internal/domain"
	"github.com/ashureev/reelbot/internal/style"
)

// Fixed replies.
const (
	ReplyAlreadyInProgress = "⏳ A video generation is already in progress… Please wait for it to finish, or send /cancel to stop it."
	ReplyCancelled         = "✅ Operation cancelled."
	ReplyGenerationStopped = "🛑 Generation cancelled. Send a new prompt whenever you're ready."
	ReplyNothingToCancel   = "Nothing to cancel."
	ReplyCreateStyleUsage  = `Invalid format. Use: /createstyle <name> "<style prompt>"`
	ReplyDeleteStyleUsage  = "Invalid format. Use: /deletestyle <name>"
	ReplyNoHistory         = "You have no video history yet."

	historyTimeFormat = "Jan 02, 15:04 UTC"
)

const helpText = "Welcome to the AI Video Bot! 🤖\n\n" +
	"To create a video, just send a descriptive prompt.\n\n" +
	"*COMMANDS:*\n" +
	"*/status* - Check if a video is being generated.\n" +
	"*/history* - View your last 5 videos.\n" +
	"*/styles* - List available styles.\n" +
	"*/createstyle <name> \"<prompt>\"* - Create a new style.\n" +
	"*/deletestyle <name>* - Delete a custom style.\n" +
	"*/cancel* - Cancel the current operation.\n" +
	"*/help* - Show this message."

func replyPromptTooShort(minLen int) string {
	return fmt.Sprintf("🤔 Your prompt is a bit short. Try being more descriptive (at least %d characters)!", minLen)
}

func replyUnknownCommand(name string) string {
	return fmt.Sprintf("Unknown command '/%s'. Send /help to see what I can do.", name)
}

func replyInvalidChoice(n int) string {
	return fmt.Sprintf("That's not a valid choice. Reply with a number from 1 to %d or a style name, or send /cancel.", n)
}

func replyGenerating(styleName string) string {
	return fmt.Sprintf("Got it! Generating a '%s' video for you. This might take a minute.", styleName)
}

func styleMenu(question string, options []string) string {
	var b strings.Builder
	if question != "" {
		b.WriteString(question)
		b.WriteString("\n\n")
	}
	b.WriteString("I couldn't detect a specific style. Please choose one to continue:\n\n")
	for i, name := range options {
		fmt.Fprintf(&b, "*%d.* %s\n", i+1, name)
	}
	b.WriteString("\nOr, create your own with the `/createstyle` command!")
	return b.String()
}

func statusText(s *domain.UserSession) string {
	var text string
	switch s.State {
	case domain.StateGenerating:
		text = fmt.Sprintf("⏳ Your '%s' video is currently being generated. Please wait.", s.LastStyle)
	case domain.StateAwaitingStyleChoice:
		text = fmt.Sprintf("🎨 Waiting for you to pick a style for: _%s_\nReply with a number from the list, or send /cancel.", s.PendingPrompt)
	default:
		text = "✅ You have no active video generation. Send a prompt to start!"
		if s.LastStyle != "" {
			text += fmt.Sprintf("\nLast style used: %s", s.LastStyle)
		}
	}
	return text
}

func historyText(s *domain.UserSession) string {
	entries := s.RecentHistory()
	if len(entries) == 0 {
		return ReplyNoHistory
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📜 *Your Last %d Videos:*\n\n", domain.MaxHistory)
	for i, e := range entries {
		fmt.Fprintf(&b, "*%d. Prompt:* `%s`\n   - *Style:* %s\n   - *When:* %s\n   - *Link:* %s\n\n",
			i+1, e.Prompt, e.Style, e.CreatedAt.UTC().Format(historyTimeFormat), e.MediaURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func stylesText(s *domain.UserSession) string {
	var b strings.Builder
	b.WriteString("🎨 *Built-in Styles:*\n")
	for _, st := range style.BuiltIns() {
		fmt.Fprintf(&b, "- %s\n", st.Name)
	}
	names := s.CustomStyleNames()
	if len(names) == 0 {
		b.WriteString("\nYou haven't created any custom styles yet. Use `/createstyle` to make one!")
		return b.String()
	}
	b.WriteString("\n🖌️ *Your Custom Styles:*\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- `%s`: \"%s\"\n", name, s.CustomStyles[name])
	}
	return strings.TrimRight(b.String(), "\n")
}
