package schema

import (
	"slices"
	"strings"
)

// ThemeName selects the palette used by styled front-ends.
type ThemeName string

const (
	ThemeOutrun        ThemeName = "outrun"
	ThemeGruvbox       ThemeName = "gruvbox"
	ThemeTokyoMidnight ThemeName = "tokyo-midnight"
	// ThemePlain renders the transcript without escape sequences.
	ThemePlain ThemeName = "plain"
)

// DefaultTheme is used when no theme is configured.
const DefaultTheme = ThemeOutrun

var themeAliases = map[string]ThemeName{
	"":                ThemeOutrun,
	"outrun":          ThemeOutrun,
	"outrun-electric": ThemeOutrun,
	"gruvbox":         ThemeGruvbox,
	"tokyo":           ThemeTokyoMidnight,
	"tokyo-midnight":  ThemeTokyoMidnight,
	"plain":           ThemePlain,
	"none":            ThemePlain,
	"mono":            ThemePlain,
}

// AvailableThemes returns the canonical theme names, sorted.
func AvailableThemes() []ThemeName {
	var out []ThemeName
	for _, name := range themeAliases {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// NormalizeThemeName maps a configured theme or one of its aliases to the
// canonical name. Case, surrounding space and underscores are ignored.
func NormalizeThemeName(name string) (ThemeName, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	theme, ok := themeAliases[key]
	return theme, ok
}

// Styled reports whether the theme emits colour.
func (t ThemeName) Styled() bool {
	return t != ThemePlain
}
