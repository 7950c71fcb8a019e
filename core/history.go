package core

import (
	"strings"

	"pkt.systems/jrepl/schema"
)

// History is a bounded log of submitted interactions with a navigation
// cursor. Cursor == Size() means past the end (the blank input line).
// History is not safe for concurrent use; the orchestrator guards it.
type History struct {
	entries []string
	cursor  int
	max     int
}

// NewHistory returns an empty history bounded to max entries.
// A non-positive max selects schema.DefaultHistoryMaxSize.
func NewHistory(max int) *History {
	if max <= 0 {
		max = schema.DefaultHistoryMaxSize
	}
	return &History{max: max}
}

// NewHistoryFromEntries seeds a history with persisted entries, keeping the newest.
func NewHistoryFromEntries(max int, entries []string) *History {
	h := NewHistory(max)
	for _, entry := range entries {
		h.Add(entry)
	}
	return h
}

// Add appends entry and moves the cursor past the end. Blank entries are
// not recorded but still reset the cursor.
func (h *History) Add(entry string) bool {
	if h == nil {
		return false
	}
	defer h.MoveEnd()
	if strings.TrimSpace(entry) == "" || h.max == 0 {
		return false
	}
	h.entries = append(h.entries, entry)
	h.evict()
	return true
}

// MovePrevious moves the cursor one entry back.
func (h *History) MovePrevious() error {
	if !h.HasPrevious() {
		return schema.ErrNoSuchEntry
	}
	h.cursor--
	return nil
}

// MoveNext moves the cursor one entry forward.
func (h *History) MoveNext() error {
	if !h.HasNext() {
		return schema.ErrNoSuchEntry
	}
	h.cursor++
	return nil
}

// HasPrevious reports whether MovePrevious would succeed.
func (h *History) HasPrevious() bool {
	return h != nil && h.cursor > 0
}

// HasNext reports whether MoveNext would succeed.
func (h *History) HasNext() bool {
	return h != nil && h.cursor < len(h.entries)
}

// Current returns the entry under the cursor, or "" past the end.
func (h *History) Current() string {
	if h == nil || h.cursor >= len(h.entries) {
		return ""
	}
	return h.entries[h.cursor]
}

// MoveEnd moves the cursor past the last entry.
func (h *History) MoveEnd() {
	if h == nil {
		return
	}
	h.cursor = len(h.entries)
}

// Cursor returns the cursor position.
func (h *History) Cursor() int {
	if h == nil {
		return 0
	}
	return h.cursor
}

// SetMaxSize rebounds the history. Zero clears it; negative sizes are rejected.
func (h *History) SetMaxSize(max int) error {
	if max < 0 {
		return schema.ErrInvalidHistorySize
	}
	if h == nil {
		return nil
	}
	h.max = max
	h.evict()
	return nil
}

// MaxSize returns the current bound.
func (h *History) MaxSize() int {
	if h == nil {
		return 0
	}
	return h.max
}

// Size returns the number of entries.
func (h *History) Size() int {
	if h == nil {
		return 0
	}
	return len(h.entries)
}

// Entries returns a copy of all entries, oldest first.
func (h *History) Entries() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.entries...)
}

func (h *History) evict() {
	if len(h.entries) <= h.max {
		return
	}
	drop := len(h.entries) - h.max
	h.entries = append([]string(nil), h.entries[drop:]...)
	h.cursor -= drop
	if h.cursor < 0 {
		h.cursor = 0
	}
	if h.cursor > len(h.entries) {
		h.cursor = len(h.entries)
	}
}
