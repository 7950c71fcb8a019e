package core

import (
	"context"
	"os"
	"strings"

	"pkt.systems/jrepl/internal/persist"
	"pkt.systems/jrepl/schema"
)

type historyLog struct {
	interactions []string
	versioned    bool
}

// parseHistoryLog splits one stored log. Versioned logs start with
// schema.HistoryVersionMarker and end each interaction with a line equal to
// schema.InteractionSeparator; other logs hold one interaction per line.
func parseHistoryLog(content string) historyLog {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == schema.HistoryVersionMarker {
		out := historyLog{versioned: true}
		var current []string
		flush := func() {
			text := strings.TrimRight(strings.Join(current, "\n"), "\n")
			if strings.TrimSpace(text) != "" {
				out.interactions = append(out.interactions, text)
			}
			current = current[:0]
		}
		for _, line := range lines[1:] {
			if strings.TrimSpace(line) == schema.InteractionSeparator {
				flush()
				continue
			}
			current = append(current, line)
		}
		flush()
		return out
	}
	var out historyLog
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out.interactions = append(out.interactions, line)
	}
	return out
}

// ParseHistory concatenates stored logs into independently replayable
// interactions.
func ParseHistory(contents ...string) []string {
	var out []string
	for _, content := range contents {
		out = append(out, parseHistoryLog(content).interactions...)
	}
	return out
}

// BatchHistory concatenates stored logs into one submission. Lines of
// unversioned logs get a trailing ';' unless they already end in ';' or '}'.
func BatchHistory(contents ...string) string {
	var parts []string
	for _, content := range contents {
		log := parseHistoryLog(content)
		for _, interaction := range log.interactions {
			if !log.versioned && !strings.HasSuffix(interaction, ";") && !strings.HasSuffix(interaction, "}") {
				interaction += ";"
			}
			parts = append(parts, interaction)
		}
	}
	return strings.Join(parts, "\n")
}

// FormatHistory renders entries as a versioned log.
func FormatHistory(entries []string) string {
	var b strings.Builder
	b.WriteString(schema.HistoryVersionMarker)
	b.WriteString("\n")
	for _, entry := range entries {
		b.WriteString(entry)
		b.WriteString("\n")
		b.WriteString(schema.InteractionSeparator)
		b.WriteString("\n")
	}
	return b.String()
}

func readHistoryFiles(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, schema.ErrInvalidRequest
	}
	contents := make([]string, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		contents = append(contents, string(data))
	}
	return contents, nil
}

// LoadHistory replays history files as one batched interaction.
func (o *Orchestrator) LoadHistory(ctx context.Context, paths ...string) error {
	contents, err := readHistoryFiles(paths)
	if err != nil {
		return err
	}
	batch := BatchHistory(contents...)
	if strings.TrimSpace(batch) == "" {
		return nil
	}
	o.mu.Lock()
	if o.busyLocked() {
		o.mu.Unlock()
		return schema.ErrInteractionInProgress
	}
	o.transcript.SetCurrentInput(batch)
	o.mu.Unlock()
	o.logger.Info("history load", "files", len(paths))
	return o.SubmitCurrentInput(ctx)
}

// LoadHistoryScript prepares history files for step-by-step replay.
func (o *Orchestrator) LoadHistoryScript(paths ...string) (*HistoryScript, error) {
	contents, err := readHistoryFiles(paths)
	if err != nil {
		return nil, err
	}
	script := &HistoryScript{o: o, interactions: ParseHistory(contents...), index: -1}
	o.mu.Lock()
	o.script = script
	o.mu.Unlock()
	o.logger.Info("history script loaded", "files", len(paths), "interactions", len(script.interactions))
	return script, nil
}

// Script returns the loaded history script, or nil.
func (o *Orchestrator) Script() *HistoryScript {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.script
}

// CloseScript drops the loaded history script.
func (o *Orchestrator) CloseScript() {
	o.mu.Lock()
	o.script = nil
	o.mu.Unlock()
}

// SaveHistory writes the history as a versioned log.
func (o *Orchestrator) SaveHistory(path string) error {
	if strings.TrimSpace(path) == "" {
		return schema.ErrInvalidRequest
	}
	entries := o.HistoryEntries()
	if err := persist.WriteFile(path, []byte(FormatHistory(entries)), 0o644); err != nil {
		o.logger.Warn("history save failed", "path", path, "err", err)
		return err
	}
	o.logger.Info("history saved", "path", path, "entries", len(entries))
	return nil
}

// HistoryScript steps through loaded interactions. Stepping only shows an
// interaction as the current input; Execute submits it. After Execute,
// stepping forward is blocked until the interaction completes.
type HistoryScript struct {
	o             *Orchestrator
	interactions  []string
	index         int
	passedCurrent bool
	executing     bool
}

// Len returns the number of interactions.
func (s *HistoryScript) Len() int {
	return len(s.interactions)
}

// Index returns the position of the shown interaction, -1 before the first.
func (s *HistoryScript) Index() int {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	return s.index
}

// HasNext reports whether Next would succeed.
func (s *HistoryScript) HasNext() bool {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	return s.hasNextLocked()
}

// HasPrevious reports whether Previous would succeed.
func (s *HistoryScript) HasPrevious() bool {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	return s.hasPreviousLocked()
}

// Next shows the next interaction without executing it.
func (s *HistoryScript) Next() error {
	s.o.mu.Lock()
	if !s.hasNextLocked() {
		s.o.mu.Unlock()
		return schema.ErrNoSuchEntry
	}
	s.index++
	s.passedCurrent = false
	s.o.transcript.SetCurrentInput(s.interactions[s.index])
	s.o.mu.Unlock()
	s.o.emit(s.o.outputEvent())
	return nil
}

// Previous shows the previous interaction without executing it. Right after
// Execute it shows the executed interaction again.
func (s *HistoryScript) Previous() error {
	s.o.mu.Lock()
	if !s.hasPreviousLocked() {
		s.o.mu.Unlock()
		return schema.ErrNoSuchEntry
	}
	if !s.passedCurrent {
		s.index--
	}
	s.passedCurrent = false
	s.o.transcript.SetCurrentInput(s.interactions[s.index])
	s.o.mu.Unlock()
	s.o.emit(s.o.outputEvent())
	return nil
}

// Execute submits the current input, which Next or Previous filled in.
func (s *HistoryScript) Execute(ctx context.Context) error {
	s.o.mu.Lock()
	if s.index < 0 || s.index >= len(s.interactions) {
		s.o.mu.Unlock()
		return schema.ErrNoSuchEntry
	}
	if s.o.busyLocked() {
		s.o.mu.Unlock()
		return schema.ErrInteractionInProgress
	}
	s.executing = true
	s.passedCurrent = true
	s.o.mu.Unlock()
	err := s.o.SubmitCurrentInput(ctx)
	s.o.mu.Lock()
	if err != nil || !s.o.busyLocked() {
		s.executing = false
	}
	s.o.mu.Unlock()
	return err
}

func (s *HistoryScript) hasNextLocked() bool {
	return !s.executing && s.index < len(s.interactions)-1
}

func (s *HistoryScript) hasPreviousLocked() bool {
	idx := s.index
	if s.passedCurrent {
		idx++
	}
	return idx > 0
}

func (s *HistoryScript) interactionDone() {
	s.executing = false
}
