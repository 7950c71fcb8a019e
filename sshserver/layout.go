package sshserver

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"pkt.systems/jrepl/internal/format"
	"pkt.systems/jrepl/schema"
)

// rowBuilder accumulates styled segments into screen rows no wider than
// width cells.
type rowBuilder struct {
	width int
	rows  [][]schema.Segment
	col   int
}

func (b *rowBuilder) add(r rune, style schema.StyleTag) {
	if r == '\n' {
		b.breakRow()
		return
	}
	w := runewidth.RuneWidth(r)
	if b.col > 0 && b.col+w > b.width {
		b.breakRow()
	}
	last := len(b.rows) - 1
	row := b.rows[last]
	if n := len(row); n > 0 && row[n-1].Style == style {
		row[n-1].Text += string(r)
	} else {
		row = append(row, schema.Segment{Text: string(r), Style: style})
	}
	b.rows[last] = row
	b.col += w
}

func (b *rowBuilder) breakRow() {
	b.rows = append(b.rows, nil)
	b.col = 0
}

// wrapSegments splits segs into screen rows. Styles are kept per piece so
// each row can be rendered on its own.
func wrapSegments(segs []schema.Segment, width int) [][]schema.Segment {
	if width <= 0 {
		width = 80
	}
	b := &rowBuilder{width: width, rows: [][]schema.Segment{nil}}
	for _, seg := range segs {
		for _, r := range sanitizeOutput(seg.Text) {
			b.add(r, seg.Style)
		}
	}
	return b.rows
}

// renderRows wraps segs and renders the last height rows, skipping the
// newest scroll rows. It always returns exactly height lines together with
// the scroll offset clamped to the available history.
func renderRows(r format.Renderer, segs []schema.Segment, width, height, scroll int) ([]string, int) {
	if height <= 0 {
		return nil, 0
	}
	rows := wrapSegments(segs, width)
	if n := len(rows); n > 0 && len(rows[n-1]) == 0 {
		rows = rows[:n-1]
	}
	scroll = min(max(scroll, 0), max(len(rows)-height, 0))
	end := len(rows) - scroll
	start := max(end-height, 0)
	out := make([]string, height)
	for i, row := range rows[start:end] {
		out[i] = r.Render(row)
	}
	return out, scroll
}

var tabExpander = strings.NewReplacer("\t", "    ")

// sanitizeOutput drops escape sequences, invalid UTF-8 and control
// characters other than newline, and expands tabs. Evaluator output is
// untrusted and must not move the cursor.
func sanitizeOutput(text string) string {
	if text == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r == utf8.RuneError || r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, tabExpander.Replace(ansi.Strip(text)))
}

func visibleWidth(text string) int {
	return ansi.StringWidth(text)
}

func trimANSIToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(text, width, "")
}

// renderInputLines lays out the prompt and the editor contents. Continuation
// lines are indented to the prompt width. The returned cursor position is
// 1-based relative to the first input line.
func renderInputLines(prefix, input string, cursor, width int) ([]string, int, int) {
	runes := []rune(input)
	cursor = min(max(cursor, 0), len(runes))
	prefixWidth := visibleWidth(prefix)
	if width <= 0 {
		width = prefixWidth + runewidth.StringWidth(input) + 1
	}
	if prefixWidth > width {
		prefix = trimANSIToWidth(prefix, width)
		prefixWidth = visibleWidth(prefix)
	}
	indent := strings.Repeat(" ", prefixWidth)
	available := max(width-prefixWidth, 1)

	var lines []string
	var line strings.Builder
	col := 0
	cursorRow, cursorCol := 1, prefixWidth+1
	flush := func() {
		lead := prefix
		if len(lines) > 0 {
			lead = indent
		}
		lines = append(lines, lead+line.String())
		line.Reset()
		col = 0
	}
	for i, r := range runes {
		if i == cursor {
			cursorRow, cursorCol = len(lines)+1, prefixWidth+col+1
		}
		if r == '\n' {
			flush()
			continue
		}
		w := runewidth.RuneWidth(r)
		if col > 0 && col+w > available {
			flush()
			if i == cursor {
				cursorRow, cursorCol = len(lines)+1, prefixWidth+1
			}
		}
		line.WriteRune(r)
		col += w
	}
	if cursor == len(runes) {
		cursorRow, cursorCol = len(lines)+1, prefixWidth+col+1
	}
	flush()
	return lines, cursorRow, min(cursorCol, width)
}
