package format

import (
	"strings"

	"pkt.systems/jrepl/schema"
)

// PlainRenderer drops styles.
type PlainRenderer struct{}

// Render implements Renderer.
func (PlainRenderer) Render(segs []schema.Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		b.WriteString(seg.Text)
	}
	return b.String()
}
