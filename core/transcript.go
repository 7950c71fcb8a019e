package core

import (
	"strings"
	"sync"

	"pkt.systems/jrepl/schema"
)

// Transcript is the REPL document: a rune buffer with one prompt position
// below which user edits are rejected, plus the style spans recorded for
// every insertion.
//
// Removing text does not retract spans. Spans that outlive their text are
// clamped to the buffer length by Spans and Segments, and may cover text
// inserted later at the same offsets until that text gets its own span.
type Transcript struct {
	mu         sync.Mutex
	text       []rune
	spans      []schema.StyleSpan
	boundary   int
	prompt     string
	inProgress bool
	history    *History
	beep       func()
}

// NewTranscript returns an empty transcript. history may be nil; beep is
// invoked once per rejected edit and may be nil.
func NewTranscript(prompt string, history *History, beep func()) *Transcript {
	return &Transcript{prompt: prompt, history: history, beep: beep}
}

// Insert inserts text at offset unless offset lies below the prompt position.
func (t *Transcript) Insert(offset int, text string, style schema.StyleTag) error {
	t.mu.Lock()
	if offset < t.boundary {
		t.mu.Unlock()
		t.notifyIllegalEdit()
		return schema.ErrProtectedRegion
	}
	err := t.insertLocked(offset, text, style)
	t.mu.Unlock()
	return err
}

// ForceInsert inserts text at any offset. Text inserted below the prompt
// position shifts the prompt position forward.
func (t *Transcript) ForceInsert(offset int, text string, style schema.StyleTag) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.insertLocked(offset, text, style); err != nil {
		return err
	}
	if offset < t.boundary {
		t.boundary += runeLen(text)
	}
	return nil
}

// Remove deletes length runes at offset unless offset lies below the prompt position.
func (t *Transcript) Remove(offset, length int) error {
	t.mu.Lock()
	if offset < t.boundary {
		t.mu.Unlock()
		t.notifyIllegalEdit()
		return schema.ErrProtectedRegion
	}
	err := t.removeLocked(offset, length)
	t.mu.Unlock()
	return err
}

// ForceRemove deletes length runes at any offset.
func (t *Transcript) ForceRemove(offset, length int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.removeLocked(offset, length); err != nil {
		return err
	}
	if offset < t.boundary {
		end := offset + length
		if end > t.boundary {
			end = t.boundary
		}
		t.boundary -= end - offset
	}
	return nil
}

// Reset replaces the whole document with banner followed by a fresh prompt.
func (t *Transcript) Reset(banner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text = t.text[:0]
	t.spans = t.spans[:0]
	t.boundary = 0
	t.inProgress = false
	if banner != "" {
		_ = t.insertLocked(0, banner, schema.StyleDefault)
	}
	t.insertPromptLocked()
	if t.history != nil {
		t.history.MoveEnd()
	}
}

// CurrentInput returns the editable text after the prompt position.
func (t *Transcript) CurrentInput() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.text[t.boundary:])
}

// ClearCurrentInput removes the editable text.
func (t *Transcript) ClearCurrentInput() {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.removeLocked(t.boundary, len(t.text)-t.boundary)
}

// SetCurrentInput replaces the editable text.
func (t *Transcript) SetCurrentInput(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.removeLocked(t.boundary, len(t.text)-t.boundary)
	_ = t.insertLocked(t.boundary, text, schema.StyleDefault)
}

// InsertBeforeLastPrompt inserts text above the live prompt, or at the end
// of the document while an interaction is in progress. The prompt position
// advances by the inserted length so the input region is preserved.
func (t *Transcript) InsertBeforeLastPrompt(text string, style schema.StyleTag) {
	if text == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	pos := len(t.text)
	if !t.inProgress {
		pos = t.boundary - runeLen(t.prompt)
		if pos < 0 {
			pos = 0
		}
	}
	_ = t.insertLocked(pos, text, style)
	t.boundary += runeLen(text)
	if t.boundary > len(t.text) {
		t.boundary = len(t.text)
	}
}

// InsertPrompt appends the prompt and moves the prompt position past it.
func (t *Transcript) InsertPrompt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.insertPromptLocked()
}

// AppendNewline appends a line break in the default style.
func (t *Transcript) AppendNewline() {
	t.Append("\n", schema.StyleDefault)
}

// Append force-inserts text at the end of the document. While an interaction
// is in progress the prompt position follows the end of the document.
func (t *Transcript) Append(text string, style schema.StyleTag) {
	if text == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.insertLocked(len(t.text), text, style)
	if t.inProgress {
		t.boundary = len(t.text)
	}
}

// beginInteraction protects the submitted input, appends a newline and marks
// the transcript busy. It returns the offset where the input started.
func (t *Transcript) beginInteraction() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := t.boundary
	_ = t.insertLocked(len(t.text), "\n", schema.StyleDefault)
	t.boundary = len(t.text)
	t.inProgress = true
	return start
}

func (t *Transcript) endsWithNewline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.text) == 0 || t.text[len(t.text)-1] == '\n'
}

// SetInProgress marks whether an interaction or reset is outstanding.
func (t *Transcript) SetInProgress(inProgress bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inProgress = inProgress
}

// InProgress reports whether an interaction or reset is outstanding.
func (t *Transcript) InProgress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inProgress
}

// Prompt returns the prompt string used for the next InsertPrompt.
func (t *Transcript) Prompt() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prompt
}

// SetPrompt changes the prompt string. A prompt already on screen is left as is.
func (t *Transcript) SetPrompt(prompt string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prompt = prompt
}

// PromptPos returns the prompt position.
func (t *Transcript) PromptPos() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.boundary
}

// Len returns the document length in runes.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.text)
}

// Text returns the whole document.
func (t *Transcript) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.text)
}

// Lines returns the document split on newlines.
func (t *Transcript) Lines() []string {
	return strings.Split(t.Text(), "\n")
}

// StyleAt returns the style of the most recently added span containing
// offset, or schema.StyleNone.
func (t *Transcript) StyleAt(offset int) schema.StyleTag {
	t.mu.Lock()
	defer t.mu.Unlock()
	if offset < 0 || offset >= len(t.text) {
		return schema.StyleNone
	}
	for i := len(t.spans) - 1; i >= 0; i-- {
		if t.spans[i].Contains(offset) {
			return t.spans[i].Style
		}
	}
	return schema.StyleNone
}

// Spans returns the recorded spans clamped to the current document length.
// Spans that no longer cover any text are dropped.
func (t *Transcript) Spans() []schema.StyleSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]schema.StyleSpan, 0, len(t.spans))
	for _, span := range t.spans {
		if clamped, ok := clampSpan(span, len(t.text)); ok {
			out = append(out, clamped)
		}
	}
	return out
}

// Segments splits the document into runs of equal style, resolving overlaps
// in favour of the most recently added span.
func (t *Transcript) Segments() []schema.Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.text) == 0 {
		return nil
	}
	styles := make([]schema.StyleTag, len(t.text))
	for _, span := range t.spans {
		clamped, ok := clampSpan(span, len(t.text))
		if !ok {
			continue
		}
		for i := clamped.Start; i < clamped.End; i++ {
			styles[i] = clamped.Style
		}
	}
	var out []schema.Segment
	start := 0
	for i := 1; i <= len(t.text); i++ {
		if i < len(t.text) && styles[i] == styles[start] {
			continue
		}
		out = append(out, schema.Segment{Text: string(t.text[start:i]), Style: styles[start]})
		start = i
	}
	return out
}

func (t *Transcript) insertLocked(offset int, text string, style schema.StyleTag) error {
	if offset < 0 || offset > len(t.text) {
		return schema.ErrOffsetOutOfRange
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	next := make([]rune, 0, len(t.text)+len(runes))
	next = append(next, t.text[:offset]...)
	next = append(next, runes...)
	next = append(next, t.text[offset:]...)
	t.text = next
	t.spans = append(t.spans, schema.StyleSpan{Start: offset, End: offset + len(runes), Style: style})
	return nil
}

func (t *Transcript) removeLocked(offset, length int) error {
	if length < 0 || offset < 0 || offset+length > len(t.text) {
		return schema.ErrOffsetOutOfRange
	}
	if length == 0 {
		return nil
	}
	t.text = append(t.text[:offset], t.text[offset+length:]...)
	return nil
}

func (t *Transcript) insertPromptLocked() {
	_ = t.insertLocked(len(t.text), t.prompt, schema.StyleDefault)
	t.boundary = len(t.text)
}

func (t *Transcript) notifyIllegalEdit() {
	if t.beep != nil {
		t.beep()
	}
}

func clampSpan(span schema.StyleSpan, length int) (schema.StyleSpan, bool) {
	if span.End > length {
		span.End = length
	}
	if span.Start < 0 {
		span.Start = 0
	}
	if span.Start >= span.End {
		return span, false
	}
	return span, true
}

func runeLen(s string) int {
	return len([]rune(s))
}
