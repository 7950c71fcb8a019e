package sshserver

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// screen paints full frames on an SSH terminal. Rows that did not change
// since the previous frame are not rewritten.
type screen struct {
	out  io.Writer
	prev []string
}

func newScreen(out io.Writer) *screen {
	return &screen{out: out}
}

func (s *screen) frame(draw func(o *termenv.Output)) error {
	var b strings.Builder
	draw(termenv.NewOutput(&b, termenv.WithProfile(termenv.Ascii)))
	_, err := io.WriteString(s.out, b.String())
	return err
}

func (s *screen) EnterAltScreen() {
	s.prev = nil
	_ = s.frame(func(o *termenv.Output) {
		o.AltScreen()
		o.ClearScreen()
	})
}

func (s *screen) ExitAltScreen() {
	_ = s.frame(func(o *termenv.Output) {
		o.ExitAltScreen()
		o.ShowCursor()
	})
}

func (s *screen) Bell() {
	_, _ = io.WriteString(s.out, string(termenv.BEL))
}

// Invalidate forces the next Render to repaint every row.
func (s *screen) Invalidate() {
	s.prev = nil
}

// Render paints lines from the top row and places the cursor at the 1-based
// cursorRow and cursorCol.
func (s *screen) Render(lines []string, cursorRow, cursorCol int) error {
	cursorRow = max(cursorRow, 1)
	cursorCol = max(cursorCol, 1)
	full := s.prev == nil
	err := s.frame(func(o *termenv.Output) {
		o.HideCursor()
		if full {
			o.ClearScreen()
		}
		for i, line := range lines {
			if !full && i < len(s.prev) && s.prev[i] == line {
				continue
			}
			o.MoveCursor(i+1, 1)
			_, _ = o.WriteString(line)
			o.ClearLineRight()
		}
		if len(lines) < len(s.prev) {
			o.MoveCursor(len(lines)+1, 1)
			_, _ = fmt.Fprintf(o, termenv.CSI+termenv.EraseDisplaySeq, 0)
		}
		o.MoveCursor(cursorRow, cursorCol)
		o.ShowCursor()
	})
	if err != nil {
		s.prev = nil
		return err
	}
	s.prev = append(s.prev[:0], lines...)
	return nil
}
