// Package style holds the prompt-augmentation catalog.
package style

import (
	"strings"

	"github.com/ashureev/reelbot/internal/domain"
)

// Style is a named prompt prefix.
type Style struct {
	Name    string `json:"name"`
	Prompt  string `json:"prompt"`
	BuiltIn bool   `json:"built_in"`
}

var builtIns = []Style{
	{Name: "Cinematic", Prompt: "cinematic, dramatic lighting, high detail, 4k, film grain,", BuiltIn: true},
	{Name: "Anime", Prompt: "anime style, key visual, vibrant, studio ghibli, cel shading,", BuiltIn: true},
	{Name: "Pixel Art", Prompt: "pixel art, 16-bit, retro, low-res, vibrant colors,", BuiltIn: true},
	{Name: "Documentary", Prompt: "documentary style, realistic, natural lighting, steady cam,", BuiltIn: true},
	{Name: "Fantasy", Prompt: "fantasy, epic, magical, high detail, intricate, glowing,", BuiltIn: true},
	{Name: "Sci-Fi", Prompt: "sci-fi, futuristic, high-tech, neon lights, dystopian,", BuiltIn: true},
}

// BuiltIns returns the static catalog in display order.
func BuiltIns() []Style {
	return append([]Style(nil), builtIns...)
}

// IsBuiltIn reports whether name matches a built-in style, ignoring case.
func IsBuiltIn(name string) bool {
	_, ok := lookupBuiltIn(name)
	return ok
}

func lookupBuiltIn(name string) (Style, bool) {
	for _, s := range builtIns {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return s, true
		}
	}
	return Style{}, false
}

// Lookup resolves name against the built-ins first, then the user's custom styles.
func Lookup(name string, custom map[string]string) (Style, bool) {
	if s, ok := lookupBuiltIn(name); ok {
		return s, true
	}
	key := domain.NormalizeStyleName(name)
	if tmpl, ok := custom[key]; ok {
		return Style{Name: key, Prompt: tmpl}, true
	}
	return Style{}, false
}

// Names lists built-in names followed by sorted custom names.
func Names(custom map[string]string) []string {
	names := make([]string, 0, len(builtIns)+len(custom))
	for _, s := range builtIns {
		names = append(names, s.Name)
	}
	tmp := &domain.UserSession{CustomStyles: custom}
	return append(names, tmp.CustomStyleNames()...)
}

// Augment prefixes prompt with the style's keywords.
func Augment(prompt string, s Style) string {
	prefix := strings.TrimSpace(s.Prompt)
	prompt = strings.TrimSpace(prompt)
	if prefix == "" {
		return prompt
	}
	return prefix + " " + prompt
}
