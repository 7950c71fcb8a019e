package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gliderssh "github.com/gliderlabs/ssh"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/command"
	"pkt.systems/jrepl/internal/format"
	"pkt.systems/jrepl/internal/logx"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// terminalSession draws one orchestrator's transcript on a full-screen
// terminal with an editable input area under it.
type terminalSession struct {
	in       io.Reader
	screen   *screen
	orch     *core.Orchestrator
	handler  *command.Handler
	renderer format.Renderer
	events   <-chan schema.Event
	ctx      context.Context

	width  int
	height int

	editor     lineEditor
	draft      string
	browsing   bool
	scroll     int
	spinnerIdx int
	dirty      bool
}

func newTerminalSession(in io.Reader, out io.Writer, orch *core.Orchestrator, handler *command.Handler, renderer format.Renderer, events <-chan schema.Event) *terminalSession {
	if renderer == nil {
		renderer = format.PlainRenderer{}
	}
	return &terminalSession{
		in:       in,
		screen:   newScreen(out),
		orch:     orch,
		handler:  handler,
		renderer: renderer,
		events:   events,
	}
}

func (t *terminalSession) log() pslog.Logger {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return logx.WithSession(ctx, t.orch.Session())
}

func (t *terminalSession) SetSize(width, height int) {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	t.width = width
	t.height = height
}

// Run processes keys and orchestrator events until the user quits, the
// input ends, or ctx is canceled.
func (t *terminalSession) Run(ctx context.Context, winCh <-chan gliderssh.Window) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.ctx = ctx
	t.screen.EnterAltScreen()
	defer t.screen.ExitAltScreen()
	t.render()
	t.log().Info("tui session start", "width", t.width, "height", t.height)

	keys := make(chan key, 16)
	go readKeys(t.in, keys)

	spinnerTicker := time.NewTicker(250 * time.Millisecond)
	defer spinnerTicker.Stop()

	events := t.events
	for {
		select {
		case <-ctx.Done():
			return nil
		case k, ok := <-keys:
			if !ok {
				t.log().Info("tui exit", "reason", "input closed")
				return nil
			}
			if t.handleKey(k) {
				return nil
			}
		case win, ok := <-winCh:
			if ok {
				t.SetSize(win.Width, win.Height)
				t.screen.Invalidate()
				t.dirty = true
				t.log().Debug("tui resize", "width", t.width, "height", t.height)
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				break
			}
			t.handleEvent(ev)
		case <-spinnerTicker.C:
			if t.orch.Busy() {
				t.spinnerIdx = (t.spinnerIdx + 1) % len(spinnerFrames)
				t.dirty = true
			}
		}
		if t.dirty {
			t.render()
			t.dirty = false
		}
	}
}

func (t *terminalSession) handleEvent(ev schema.Event) {
	switch ev.Type {
	case schema.EventInterpreterResetFailed:
		t.log().Warn("tui evaluator reset failed", "cause", ev.Cause)
	case schema.EventInterpreterExited:
		t.log().Info("tui evaluator exited", "status", ev.Status)
	}
	t.dirty = true
}

// handleKey applies one key and reports whether the session should end.
func (t *terminalSession) handleKey(k key) bool {
	t.dirty = true
	switch k.kind {
	case keyCtrlD:
		if t.editor.Len() == 0 {
			t.log().Info("tui exit", "reason", "ctrl-d")
			return true
		}
		t.editor.Delete()
	case keyCtrlC:
		if t.orch.Busy() {
			if err := t.orch.Abort(t.ctx); err != nil {
				t.orch.NoticeError(fmt.Sprintf("error: %v\n", err))
			}
			return false
		}
		t.editor.Clear()
		t.browsing = false
	case keyEnter:
		return t.submit()
	case keyCtrlJ:
		t.edit(t.editor.Newline)
	case keyTab:
		t.edit(t.editor.Indent)
	case keyRune:
		t.edit(func() { t.editor.InsertRune(k.r) })
	case keyBackspace:
		t.edit(t.editor.Backspace)
	case keyDelete:
		t.edit(t.editor.Delete)
	case keyCtrlW:
		t.edit(t.editor.DeleteWordBackward)
	case keyCtrlU:
		t.edit(t.editor.KillLineStart)
	case keyCtrlK:
		t.edit(t.editor.KillLineEnd)
	case keyLeft:
		t.editor.MoveLeft()
	case keyRight:
		t.editor.MoveRight()
	case keyHome, keyCtrlA:
		t.editor.MoveStart()
	case keyEnd, keyCtrlE:
		t.editor.MoveEnd()
	case keyAltB:
		t.editor.MoveWordLeft()
	case keyAltF:
		t.editor.MoveWordRight()
	case keyUp:
		if t.editor.OnFirstLine() {
			t.historyPrevious()
		} else {
			t.editor.MoveUp()
		}
	case keyDown:
		if t.editor.OnLastLine() {
			t.historyNext()
		} else {
			t.editor.MoveDown()
		}
	case keyCtrlP:
		t.historyPrevious()
	case keyCtrlN:
		t.historyNext()
	case keyPageUp:
		t.scroll += t.pageSize()
	case keyPageDown:
		t.scroll -= t.pageSize()
		if t.scroll < 0 {
			t.scroll = 0
		}
	case keyCtrlL:
		t.screen.Invalidate()
	}
	return false
}

func (t *terminalSession) edit(fn func()) {
	t.scroll = 0
	t.browsing = false
	fn()
}

func (t *terminalSession) pageSize() int {
	if page := t.height / 2; page > 0 {
		return page
	}
	return 1
}

// submit runs a slash command or hands the input to the orchestrator.
// Incomplete input stays in the editor on a new, indented line.
func (t *terminalSession) submit() bool {
	line := t.editor.String()
	t.scroll = 0
	t.browsing = false
	if cmd, ok := command.Parse(line); ok {
		t.orch.SetCurrentInput("")
		handled, err := t.handler.Handle(t.ctx, line)
		if handled {
			if errors.Is(err, command.ErrQuit) {
				t.log().Info("tui exit", "reason", "/"+cmd.Name)
				return true
			}
			if err != nil {
				t.orch.NoticeError(fmt.Sprintf("error: %v\n", err))
			}
			t.editor.SetString(t.orch.CurrentInput())
			return false
		}
	}
	if t.orch.Busy() {
		t.screen.Bell()
		return false
	}
	t.orch.SetCurrentInput(line)
	err := t.orch.SubmitCurrentInput(t.ctx)
	switch {
	case errors.Is(err, schema.ErrInteractionInProgress):
		t.screen.Bell()
		return false
	case err != nil:
		t.log().Warn("tui submit failed", "err", err)
	}
	if strings.TrimSpace(line) != "" && t.orch.CurrentInput() == line {
		t.editor.MoveEnd()
		t.editor.Newline()
		return false
	}
	t.editor.Clear()
	return false
}

func (t *terminalSession) historyPrevious() {
	if !t.browsing {
		t.draft = t.editor.String()
	}
	if err := t.orch.MovePrevious(); err != nil {
		t.screen.Bell()
		return
	}
	t.browsing = true
	t.editor.SetString(t.orch.CurrentInput())
}

func (t *terminalSession) historyNext() {
	if !t.browsing {
		t.screen.Bell()
		return
	}
	if err := t.orch.MoveNext(); err != nil {
		t.screen.Bell()
		return
	}
	recalled := t.orch.CurrentInput()
	if recalled == "" {
		t.browsing = false
		recalled = t.draft
	}
	t.editor.SetString(recalled)
}

// visibleSegments returns the transcript part drawn above the input area.
// While idle the trailing prompt and input belong to the input area.
func (t *terminalSession) visibleSegments() []schema.Segment {
	tr := t.orch.Transcript()
	segs := tr.Segments()
	if tr.InProgress() {
		return segs
	}
	end := tr.PromptPos() - len([]rune(tr.Prompt()))
	return format.Clip(segs, 0, end)
}

func (t *terminalSession) promptPrefix() string {
	if t.orch.Busy() {
		return fmt.Sprintf("%c ", spinnerFrames[t.spinnerIdx])
	}
	return t.orch.Transcript().Prompt()
}

func (t *terminalSession) render() {
	width, height := t.width, t.height
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	inputLines, cursorRow, cursorCol := renderInputLines(t.promptPrefix(), t.editor.String(), t.editor.cursor, width)
	status := t.statusLine(width)
	viewHeight := height - 1 - len(inputLines)
	if viewHeight < 0 {
		viewHeight = 0
	}
	lines, scroll := renderRows(t.renderer, t.visibleSegments(), width, viewHeight, t.scroll)
	t.scroll = scroll
	lines = append(lines, inputLines...)
	lines = append(lines, status)
	cursorRow += viewHeight
	if err := t.screen.Render(lines, cursorRow, cursorCol); err != nil {
		t.log().Warn("tui render failed", "err", err)
	}
}

func (t *terminalSession) statusLine(width int) string {
	active := t.orch.ActiveInterpreter()
	parts := []string{"jrepl", string(active.Name)}
	if active.Debug {
		parts = append(parts, "debug "+active.EnclosingClass)
	}
	parts = append(parts, t.orch.State().String())
	if t.scroll > 0 {
		parts = append(parts, fmt.Sprintf("scrolled %d", t.scroll))
	}
	line := strings.Join(parts, " | ")
	return "\x1b[7m" + trimANSIToWidth(line+strings.Repeat(" ", max(0, width-len([]rune(line)))), width) + "\x1b[0m"
}

var spinnerFrames = []rune{'|', '/', '-', '\\'}
