package conversation

import (
	"regexp"
	"strings"
)

// Command names.
const (
	CmdHelp        = "help"
	CmdCancel      = "cancel"
	CmdStatus      = "status"
	CmdHistory     = "history"
	CmdStyles      = "styles"
	CmdCreateStyle = "createstyle"
	CmdDeleteStyle = "deletestyle"
)

var createStyleRe = regexp.MustCompile(`(?i)^/createstyle\s+(\w+)\s+"([^"]+)"\s*$`)

// Command is a parsed slash command.
type Command struct {
	Name string   // lower-case, without the slash
	Args []string // whitespace-split arguments
	Raw  string
}

// ParseCommand reports whether text is a slash command and splits it.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}
	fields := strings.Fields(text)
	return Command{
		Name: strings.ToLower(strings.TrimPrefix(fields[0], "/")),
		Args: fields[1:],
		Raw:  text,
	}, true
}

// parseCreateStyle extracts the name and prompt of /createstyle <name> "<prompt>".
func parseCreateStyle(raw string) (name, prompt string, ok bool) {
	m := createStyleRe.FindStringSubmatch(raw)
	if m == nil {
		return "", "", false
	}
	prompt = strings.TrimSpace(m[2])
	if prompt == "" {
		return "", "", false
	}
	return m[1], prompt, true
}
