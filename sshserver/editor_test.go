package sshserver

import (
	"strings"
	"testing"
)

func collectKeys(t *testing.T, input string) []key {
	t.Helper()
	keys := make(chan key, 32)
	go readKeys(strings.NewReader(input), keys)
	var out []key
	for k := range keys {
		out = append(out, k)
	}
	return out
}

func TestReadKeysDecodesControlAndEscapes(t *testing.T) {
	got := collectKeys(t, "a\x1b[A\x1b[3~\x0c\x10\x0e\r\n\x03")
	want := []keyKind{keyRune, keyUp, keyDelete, keyCtrlL, keyCtrlP, keyCtrlN, keyEnter, keyCtrlC}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d: %+v", len(want), len(got), got)
	}
	for i, k := range got {
		if k.kind != want[i] {
			t.Fatalf("key %d: expected %v, got %v", i, want[i], k.kind)
		}
	}
	if got[0].r != 'a' {
		t.Fatalf("expected rune a, got %q", got[0].r)
	}
}

func TestReadKeysMultibyteRune(t *testing.T) {
	got := collectKeys(t, "é")
	if len(got) != 1 || got[0].kind != keyRune || got[0].r != 'é' {
		t.Fatalf("unexpected keys %+v", got)
	}
}

func TestLineEditorMultilineNavigation(t *testing.T) {
	var e lineEditor
	e.SetString("int x = 1;\nx + 1")
	if !e.OnLastLine() || e.OnFirstLine() {
		t.Fatalf("expected cursor on last line")
	}
	e.MoveUp()
	if !e.OnFirstLine() {
		t.Fatalf("expected cursor on first line")
	}
	e.MoveStart()
	e.InsertRune('/')
	e.InsertRune('/')
	if got := e.String(); got != "//int x = 1;\nx + 1" {
		t.Fatalf("unexpected buffer %q", got)
	}
	e.MoveEnd()
	e.DeleteWordBackward()
	if got := e.String(); got != "//int x = 1;\nx + " {
		t.Fatalf("unexpected buffer after word delete %q", got)
	}
}

func TestReadKeysModifiedArrowsAndUnknownSequences(t *testing.T) {
	got := collectKeys(t, "\x1b[1;5D\x1b[1;3C\x1b[99~\x1bOA")
	want := []keyKind{keyAltB, keyAltF, keyUp}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %+v", len(want), got)
	}
	for i, k := range got {
		if k.kind != want[i] {
			t.Fatalf("key %d: expected %v, got %v", i, want[i], k.kind)
		}
	}
}

func TestLineEditorNewlineKeepsIndentation(t *testing.T) {
	var e lineEditor
	e.SetString("for (int i = 0; i < 3; i++) {")
	e.Newline()
	if got := e.String(); got != "for (int i = 0; i < 3; i++) {\n    " {
		t.Fatalf("expected indented line after brace, got %q", got)
	}
	for _, r := range "sum += i;" {
		e.InsertRune(r)
	}
	e.Newline()
	if got := e.String(); !strings.HasSuffix(got, "sum += i;\n    ") {
		t.Fatalf("expected indentation carried over, got %q", got)
	}
	e.KillLineStart()
	e.InsertRune('x')
	e.Indent()
	if got := e.String(); !strings.HasSuffix(got, "\nx   ") {
		t.Fatalf("expected padding to the next stop, got %q", got)
	}
}

func TestLineEditorWordsAreIdentifiers(t *testing.T) {
	var e lineEditor
	e.SetString("Foo$Inner.my_field")
	e.MoveWordLeft()
	if e.cursor != len("Foo$Inner.") {
		t.Fatalf("expected cursor after the dot, got %d", e.cursor)
	}
	e.DeleteWordBackward()
	if got := e.String(); got != ".my_field" {
		t.Fatalf("expected identifier with $ removed, got %q", got)
	}
	e.MoveStart()
	e.MoveWordRight()
	if e.cursor != e.Len() {
		t.Fatalf("expected cursor at end, got %d", e.cursor)
	}
	e.MoveStart()
	e.KillLineEnd()
	if e.Len() != 0 || e.cursor != 0 {
		t.Fatalf("expected empty buffer, got %q", e.String())
	}
}
