// Package format turns transcript segments into terminal text.
package format

import "pkt.systems/jrepl/schema"

// Clip returns the part of segs covering runes [start, end) of the
// document they were taken from. Out of range bounds are clamped.
func Clip(segs []schema.Segment, start, end int) []schema.Segment {
	if start < 0 {
		start = 0
	}
	if end <= start {
		return nil
	}
	var out []schema.Segment
	pos := 0
	for _, seg := range segs {
		runes := []rune(seg.Text)
		segStart, segEnd := pos, pos+len(runes)
		pos = segEnd
		if segEnd <= start {
			continue
		}
		if segStart >= end {
			break
		}
		lo := max(start, segStart) - segStart
		hi := min(end, segEnd) - segStart
		out = append(out, schema.Segment{Text: string(runes[lo:hi]), Style: seg.Style})
	}
	return out
}

// Renderer formats segments for output.
type Renderer interface {
	Render(segs []schema.Segment) string
}

// ForTheme returns the renderer for a theme name. Unknown names and the
// plain theme yield a PlainRenderer.
func ForTheme(name schema.ThemeName, styled *StyledRenderer) Renderer {
	if !name.Styled() || styled == nil {
		return PlainRenderer{}
	}
	return styled
}
