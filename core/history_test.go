package core

import (
	"errors"
	"testing"

	"pkt.systems/jrepl/schema"
)

func TestHistoryAddMovesCursorToEnd(t *testing.T) {
	h := NewHistory(10)
	for i, entry := range []string{"a", "b", "c"} {
		h.Add(entry)
		if h.Cursor() != h.Size() || h.Size() != i+1 {
			t.Fatalf("expected cursor == size == %d, got cursor=%d size=%d", i+1, h.Cursor(), h.Size())
		}
	}
	_ = h.MovePrevious()
	_ = h.MovePrevious()
	h.Add("d")
	if h.Cursor() != 4 {
		t.Fatalf("expected cursor 4 after add, got %d", h.Cursor())
	}
	if h.Current() != "" {
		t.Fatalf("expected empty current past end, got %q", h.Current())
	}
}

func TestHistoryNavigationBounds(t *testing.T) {
	h := NewHistory(10)
	if err := h.MovePrevious(); !errors.Is(err, schema.ErrNoSuchEntry) {
		t.Fatalf("expected ErrNoSuchEntry on empty history, got %v", err)
	}
	h.Add("5")
	h.Add("6")
	if h.HasNext() {
		t.Fatalf("expected no next at end")
	}
	if err := h.MoveNext(); !errors.Is(err, schema.ErrNoSuchEntry) {
		t.Fatalf("expected ErrNoSuchEntry at end, got %v", err)
	}
	if err := h.MovePrevious(); err != nil {
		t.Fatalf("move previous: %v", err)
	}
	if h.Current() != "6" {
		t.Fatalf("expected 6, got %q", h.Current())
	}
	if err := h.MovePrevious(); err != nil {
		t.Fatalf("move previous: %v", err)
	}
	if h.Current() != "5" {
		t.Fatalf("expected 5, got %q", h.Current())
	}
	if h.HasPrevious() {
		t.Fatalf("expected no previous at start")
	}
	if err := h.MoveNext(); err != nil {
		t.Fatalf("move next: %v", err)
	}
	if err := h.MovePrevious(); err != nil {
		t.Fatalf("move previous: %v", err)
	}
	if h.Current() != "5" {
		t.Fatalf("expected previous then next to round trip, got %q", h.Current())
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for _, entry := range []string{"1", "2", "3", "4", "5"} {
		h.Add(entry)
	}
	got := h.Entries()
	if len(got) != 3 || got[0] != "3" || got[2] != "5" {
		t.Fatalf("unexpected entries: %v", got)
	}
}

func TestHistorySetMaxSize(t *testing.T) {
	h := NewHistory(10)
	for _, entry := range []string{"1", "2", "3", "4"} {
		h.Add(entry)
	}
	if err := h.SetMaxSize(-1); !errors.Is(err, schema.ErrInvalidHistorySize) {
		t.Fatalf("expected ErrInvalidHistorySize, got %v", err)
	}
	if h.Size() != 4 || h.MaxSize() != 10 {
		t.Fatalf("negative size must not change history, size=%d max=%d", h.Size(), h.MaxSize())
	}
	if err := h.SetMaxSize(2); err != nil {
		t.Fatalf("set max: %v", err)
	}
	if got := h.Entries(); len(got) != 2 || got[0] != "3" {
		t.Fatalf("unexpected entries after shrink: %v", got)
	}
	if h.Cursor() != 2 {
		t.Fatalf("expected cursor clamped to 2, got %d", h.Cursor())
	}
	if err := h.SetMaxSize(0); err != nil {
		t.Fatalf("set max 0: %v", err)
	}
	if h.Size() != 0 || h.Cursor() != 0 {
		t.Fatalf("expected cleared history, size=%d cursor=%d", h.Size(), h.Cursor())
	}
	h.Add("x")
	if h.Size() != 0 {
		t.Fatalf("expected zero-sized history to stay empty")
	}
}

func TestHistorySkipsBlankEntries(t *testing.T) {
	h := NewHistory(10)
	h.Add("a")
	_ = h.MovePrevious()
	if h.Add("   ") {
		t.Fatalf("expected blank entry to be skipped")
	}
	if h.Size() != 1 || h.Cursor() != 1 {
		t.Fatalf("unexpected state size=%d cursor=%d", h.Size(), h.Cursor())
	}
	h.Add("a")
	if h.Size() != 2 {
		t.Fatalf("expected duplicate entries to be kept, size=%d", h.Size())
	}
}

func TestHistoriesDoNotShareStorage(t *testing.T) {
	seed := []string{"a", "b"}
	h1 := NewHistoryFromEntries(5, seed)
	h2 := NewHistoryFromEntries(5, seed)
	h1.Add("c")
	if h2.Size() != 2 {
		t.Fatalf("expected independent histories, got %v", h2.Entries())
	}
	entries := h1.Entries()
	entries[0] = "mutated"
	if h1.Entries()[0] != "a" {
		t.Fatalf("Entries must return a copy")
	}
}
