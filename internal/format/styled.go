package format

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"pkt.systems/jrepl/schema"
)

type palette struct {
	out, in, err, diag, debug, object, str, number, char string
}

var palettes = map[schema.ThemeName]palette{
	schema.ThemeOutrun: {
		out: "252", in: "117", err: "203", diag: "196", debug: "213",
		object: "81", str: "221", number: "141", char: "215",
	},
	schema.ThemeGruvbox: {
		out: "223", in: "109", err: "167", diag: "124", debug: "175",
		object: "108", str: "142", number: "175", char: "208",
	},
	schema.ThemeTokyoMidnight: {
		out: "189", in: "111", err: "210", diag: "203", debug: "183",
		object: "117", str: "150", number: "215", char: "180",
	},
}

// StyledRenderer colours segments by style tag.
type StyledRenderer struct {
	styles map[schema.StyleTag]lipgloss.Style
}

// NewStyledRenderer builds a renderer for w, detecting its colour profile.
// Unknown themes fall back to schema.DefaultTheme.
func NewStyledRenderer(w io.Writer, theme schema.ThemeName) *StyledRenderer {
	return newStyledRenderer(lipgloss.NewRenderer(w), theme)
}

// NewTermRenderer builds a renderer for a remote terminal whose colour
// support is only known from its TERM value.
func NewTermRenderer(w io.Writer, term string, theme schema.ThemeName) *StyledRenderer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(ProfileForTerm(term))
	return newStyledRenderer(r, theme)
}

// ProfileForTerm guesses the colour profile from a TERM value.
func ProfileForTerm(term string) termenv.Profile {
	term = strings.ToLower(term)
	switch {
	case term == "" || term == "dumb":
		return termenv.Ascii
	case strings.Contains(term, "truecolor") || strings.Contains(term, "24bit") || strings.Contains(term, "direct"):
		return termenv.TrueColor
	case strings.Contains(term, "256color"), strings.HasPrefix(term, "alacritty"), strings.HasPrefix(term, "xterm-kitty"):
		return termenv.ANSI256
	default:
		return termenv.ANSI
	}
}

func newStyledRenderer(r *lipgloss.Renderer, theme schema.ThemeName) *StyledRenderer {
	p, ok := palettes[theme]
	if !ok {
		p = palettes[schema.DefaultTheme]
	}
	fg := func(colour string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(colour))
	}
	return &StyledRenderer{styles: map[schema.StyleTag]lipgloss.Style{
		schema.StyleSystemOut:       fg(p.out),
		schema.StyleSystemIn:        fg(p.in).Italic(true),
		schema.StyleSystemErr:       fg(p.err),
		schema.StyleError:           fg(p.diag).Bold(true),
		schema.StyleDebugger:        fg(p.debug),
		schema.StyleObjectReturn:    fg(p.object),
		schema.StyleStringReturn:    fg(p.str),
		schema.StyleNumberReturn:    fg(p.number),
		schema.StyleCharacterReturn: fg(p.char),
	}}
}

// Render implements Renderer. Lines are styled one by one so lipgloss does
// not pad multi-line segments to a common width.
func (s *StyledRenderer) Render(segs []schema.Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		style, ok := s.styles[seg.Style]
		if !ok {
			b.WriteString(seg.Text)
			continue
		}
		lines := strings.Split(seg.Text, "\n")
		for i, line := range lines {
			if i > 0 {
				b.WriteByte('\n')
			}
			if line != "" {
				b.WriteString(style.Render(line))
			}
		}
	}
	return b.String()
}
