package sshserver

import (
	"bufio"
	"io"
	"unicode"
	"unicode/utf8"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyHome
	keyEnd
	keyPageUp
	keyPageDown
	keyCtrlA
	keyCtrlE
	keyCtrlW
	keyCtrlD
	keyCtrlC
	keyCtrlL
	keyCtrlP
	keyCtrlN
	keyTab
	keyAltB
	keyAltF
	keyUp
	keyDown
	keyCtrlJ
	keyCtrlU
	keyCtrlK
)

type key struct {
	kind keyKind
	r    rune
}

var controlKeys = map[byte]keyKind{
	'\r': keyEnter,
	'\n': keyCtrlJ,
	0x7f: keyBackspace,
	0x08: keyBackspace,
	0x01: keyCtrlA,
	0x05: keyCtrlE,
	0x15: keyCtrlU,
	0x0b: keyCtrlK,
	0x17: keyCtrlW,
	0x04: keyCtrlD,
	0x03: keyCtrlC,
	0x09: keyTab,
	0x0c: keyCtrlL,
	0x10: keyCtrlP,
	0x0e: keyCtrlN,
}

// csiKeys maps the parameter and final bytes after ESC [ to keys. The
// "1;5" and "1;3" forms are ctrl and alt modified arrows.
var csiKeys = map[string]keyKind{
	"A": keyUp, "B": keyDown, "C": keyRight, "D": keyLeft,
	"H": keyHome, "F": keyEnd,
	"1~": keyHome, "7~": keyHome, "4~": keyEnd, "8~": keyEnd,
	"3~": keyDelete, "5~": keyPageUp, "6~": keyPageDown,
	"1;5C": keyAltF, "1;5D": keyAltB, "1;3C": keyAltF, "1;3D": keyAltB,
}

var ss3Keys = map[byte]keyKind{
	'A': keyUp, 'B': keyDown, 'C': keyRight, 'D': keyLeft,
	'H': keyHome, 'F': keyEnd,
}

var altKeys = map[byte]keyKind{
	'b': keyAltB, 'B': keyAltB, 'f': keyAltF, 'F': keyAltF,
}

const maxCSILen = 8

// keyDecoder turns raw terminal bytes into keys.
type keyDecoder struct {
	br *bufio.Reader
	// afterCR swallows the LF of a CRLF pair.
	afterCR bool
}

// next returns the next key. ok is false for sequences that map to no key.
func (d *keyDecoder) next() (k key, ok bool, err error) {
	b, err := d.br.ReadByte()
	if err != nil {
		return key{}, false, err
	}
	if d.afterCR {
		d.afterCR = false
		if b == '\n' {
			return key{}, false, nil
		}
	}
	if b == 0x1b {
		return d.escape()
	}
	if kind, found := controlKeys[b]; found {
		d.afterCR = b == '\r'
		return key{kind: kind}, true, nil
	}
	if b < utf8.RuneSelf {
		return key{kind: keyRune, r: rune(b)}, true, nil
	}
	if err := d.br.UnreadByte(); err != nil {
		return key{}, false, err
	}
	r, _, err := d.br.ReadRune()
	if err != nil {
		return key{}, false, err
	}
	return key{kind: keyRune, r: r}, true, nil
}

func (d *keyDecoder) escape() (key, bool, error) {
	b, err := d.br.ReadByte()
	if err != nil {
		return key{}, false, err
	}
	var kind keyKind
	var found bool
	switch b {
	case '[':
		seq, err := d.csi()
		if err != nil {
			return key{}, false, err
		}
		kind, found = csiKeys[seq]
	case 'O':
		final, err := d.br.ReadByte()
		if err != nil {
			return key{}, false, err
		}
		kind, found = ss3Keys[final]
	default:
		kind, found = altKeys[b]
	}
	return key{kind: kind}, found, nil
}

// csi reads parameter bytes up to and including the final byte. Overlong
// sequences come back empty.
func (d *keyDecoder) csi() (string, error) {
	var seq []byte
	for {
		b, err := d.br.ReadByte()
		if err != nil {
			return "", err
		}
		seq = append(seq, b)
		if b == '~' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') {
			return string(seq), nil
		}
		if len(seq) > maxCSILen {
			return "", nil
		}
	}
}

// readKeys decodes terminal input into keys until r fails, then closes out.
func readKeys(r io.Reader, out chan<- key) {
	defer close(out)
	d := &keyDecoder{br: bufio.NewReader(r)}
	for {
		k, ok, err := d.next()
		if err != nil {
			return
		}
		if ok {
			out <- k
		}
	}
}

const indentWidth = 4

// lineEditor is the input area below the transcript. Input may span lines;
// words are Java identifier runs.
type lineEditor struct {
	buf    []rune
	cursor int
}

func (e *lineEditor) String() string { return string(e.buf) }

func (e *lineEditor) Len() int { return len(e.buf) }

func (e *lineEditor) Clear() {
	e.buf = nil
	e.cursor = 0
}

func (e *lineEditor) SetString(value string) {
	e.buf = []rune(value)
	e.cursor = len(e.buf)
}

func (e *lineEditor) InsertRune(r rune) {
	e.insert([]rune{r})
}

func (e *lineEditor) insert(rs []rune) {
	e.cursor = min(max(e.cursor, 0), len(e.buf))
	tail := append([]rune(nil), e.buf[e.cursor:]...)
	e.buf = append(append(e.buf[:e.cursor], rs...), tail...)
	e.cursor += len(rs)
}

// Newline breaks the line and carries the current indentation over, one
// level deeper after an opening brace.
func (e *lineEditor) Newline() {
	start, _ := e.lineBounds()
	indent := 0
	for i := start; i < e.cursor && (e.buf[i] == ' ' || e.buf[i] == '\t'); i++ {
		indent++
	}
	if last, ok := e.lastNonSpaceBefore(e.cursor, start); ok && (last == '{' || last == '(') {
		indent += indentWidth
	}
	rs := make([]rune, 0, indent+1)
	rs = append(rs, '\n')
	for range indent {
		rs = append(rs, ' ')
	}
	e.insert(rs)
}

// Indent pads with spaces to the next indentation stop.
func (e *lineEditor) Indent() {
	start, _ := e.lineBounds()
	n := indentWidth - (e.cursor-start)%indentWidth
	rs := make([]rune, n)
	for i := range rs {
		rs[i] = ' '
	}
	e.insert(rs)
}

func (e *lineEditor) lastNonSpaceBefore(pos, floor int) (rune, bool) {
	for i := pos - 1; i >= floor; i-- {
		if !unicode.IsSpace(e.buf[i]) {
			return e.buf[i], true
		}
	}
	return 0, false
}

func (e *lineEditor) deleteRange(from, to int) {
	if from >= to {
		return
	}
	e.buf = append(e.buf[:from], e.buf[to:]...)
	e.cursor = from
}

func (e *lineEditor) Backspace() {
	if e.cursor > 0 {
		e.deleteRange(e.cursor-1, e.cursor)
	}
}

func (e *lineEditor) Delete() {
	if e.cursor >= 0 && e.cursor < len(e.buf) {
		e.deleteRange(e.cursor, e.cursor+1)
	}
}

func (e *lineEditor) MoveLeft()  { e.cursor = max(e.cursor-1, 0) }
func (e *lineEditor) MoveRight() { e.cursor = min(e.cursor+1, len(e.buf)) }
func (e *lineEditor) MoveStart() { e.cursor = 0 }
func (e *lineEditor) MoveEnd()   { e.cursor = len(e.buf) }

// OnFirstLine reports whether the cursor is on the first input line.
func (e *lineEditor) OnFirstLine() bool {
	start, _ := e.lineBounds()
	return start == 0
}

// OnLastLine reports whether the cursor is on the last input line.
func (e *lineEditor) OnLastLine() bool {
	_, end := e.lineBounds()
	return end == len(e.buf)
}

func (e *lineEditor) MoveWordLeft()  { e.cursor = e.wordStart() }
func (e *lineEditor) MoveWordRight() { e.cursor = e.wordEnd() }

func (e *lineEditor) DeleteWordBackward() {
	e.deleteRange(e.wordStart(), e.cursor)
}

func (e *lineEditor) wordStart() int {
	i := e.cursor
	for i > 0 && !isWordRune(e.buf[i-1]) {
		i--
	}
	for i > 0 && isWordRune(e.buf[i-1]) {
		i--
	}
	return i
}

func (e *lineEditor) wordEnd() int {
	i := e.cursor
	for i < len(e.buf) && !isWordRune(e.buf[i]) {
		i++
	}
	for i < len(e.buf) && isWordRune(e.buf[i]) {
		i++
	}
	return i
}

func (e *lineEditor) MoveUp() {
	start, _ := e.lineBounds()
	if start == 0 {
		return
	}
	col := e.cursor - start
	e.cursor = start - 1
	prevStart, prevEnd := e.lineBounds()
	e.cursor = prevStart + min(col, prevEnd-prevStart)
}

func (e *lineEditor) MoveDown() {
	start, end := e.lineBounds()
	if end == len(e.buf) {
		return
	}
	col := e.cursor - start
	e.cursor = end + 1
	nextStart, nextEnd := e.lineBounds()
	e.cursor = nextStart + min(col, nextEnd-nextStart)
}

func (e *lineEditor) KillLineStart() {
	start, _ := e.lineBounds()
	e.deleteRange(start, e.cursor)
}

func (e *lineEditor) KillLineEnd() {
	_, end := e.lineBounds()
	cursor := e.cursor
	e.deleteRange(cursor, end)
	e.cursor = cursor
}

// lineBounds returns the start offset and the newline (or buffer end)
// offset of the line holding the cursor.
func (e *lineEditor) lineBounds() (start, end int) {
	for start = e.cursor; start > 0 && e.buf[start-1] != '\n'; start-- {
	}
	for end = e.cursor; end < len(e.buf) && e.buf[end] != '\n'; end++ {
	}
	return start, end
}

func isWordRune(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
