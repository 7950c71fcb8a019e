package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pkt.systems/jrepl/internal/logx"
	"pkt.systems/jrepl/internal/persist"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// State is the orchestrator state for the active interpreter.
type State int

const (
	// StateIdle accepts a new submission.
	StateIdle State = iota
	// StateSubmitting is between accepting input and dispatching it.
	StateSubmitting
	// StateAwaitingOutcome waits for the evaluator callback.
	StateAwaitingOutcome
	// StateResetting waits for the evaluator to come back after a reset.
	StateResetting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateAwaitingOutcome:
		return "awaiting_outcome"
	case StateResetting:
		return "resetting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Interaction is one accepted submission.
type Interaction struct {
	ID          schema.InteractionID
	Interpreter schema.InterpreterName
	Source      string
	Processed   string
	// Start is the transcript offset where the submitted input begins.
	Start     int
	StartedAt time.Time
}

// Orchestrator is the REPL state machine. It owns the history, the
// transcript and the interpreter registry, and allows at most one
// outstanding interaction or reset.
type Orchestrator struct {
	cfg       schema.ServiceConfig
	evaluator Evaluator
	pre       Preprocessor
	sink      EventSink
	deps      ServiceDeps
	store     *persist.Store
	logger    pslog.Logger

	mu              sync.Mutex
	state           State
	history         *History
	transcript      *Transcript
	interpreters    map[schema.InterpreterName]schema.Interpreter
	active          schema.InterpreterName
	pending         map[schema.InterpreterName]*Interaction
	waitingFirst    bool
	debugPort       int
	debugPortErr    error
	resetSeq        uint64
	resetTimer      *time.Timer
	resetFromBusy   bool
	links           []TraceLink
	classpath       []schema.ClasspathEntry
	allowAssertions bool
	privateAccess   bool
	script          *HistoryScript
}

var (
	outputSleep = time.Sleep
	afterFunc   = time.AfterFunc
)

// NewOrchestrator constructs an orchestrator. Start must be called before
// input is submitted.
func NewOrchestrator(cfg schema.ServiceConfig, deps ServiceDeps) (*Orchestrator, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Evaluator == nil {
		return nil, schema.ErrEvaluatorUnavailable
	}
	if deps.Preprocessor == nil {
		deps.Preprocessor = BalancePreprocessor{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	logger = logger.With("session", cfg.SessionID)
	var store *persist.Store
	if cfg.StateDir != "" {
		store, err = persist.NewStoreWithLogger(cfg.StateDir, logger)
		if err != nil {
			return nil, err
		}
	}
	history := NewHistory(cfg.HistoryMaxSize)
	o := &Orchestrator{
		cfg:             cfg,
		evaluator:       deps.Evaluator,
		pre:             deps.Preprocessor,
		sink:            deps.EventSink,
		deps:            deps,
		store:           store,
		logger:          logger,
		history:         history,
		transcript:      NewTranscript(cfg.Prompt, history, deps.Beep),
		pending:         make(map[schema.InterpreterName]*Interaction),
		waitingFirst:    true,
		classpath:       append([]schema.ClasspathEntry(nil), cfg.Classpath...),
		allowAssertions: cfg.AllowAssertions,
		privateAccess:   cfg.PrivateAccess,
	}
	o.resetRegistryLocked()
	o.restoreSession()
	o.transcript.Reset(cfg.Banner)
	return o, nil
}

// Start allocates a debug port and launches the evaluator. The evaluator
// reports readiness through the ready callback.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.rotateDebugPortLocked()
	req := ResetRequest{WorkingDir: o.cfg.WorkingDir, DebugPort: o.debugPort}
	o.waitingFirst = true
	o.mu.Unlock()
	log := logx.WithSession(ctx, o.cfg.SessionID)
	log.Info("orchestrator start", "working_dir", req.WorkingDir, "debug_port", req.DebugPort)
	if err := o.evaluator.Start(ctx, o, req); err != nil {
		log.Warn("orchestrator start failed", "err", err)
		o.mu.Lock()
		o.waitingFirst = false
		o.mu.Unlock()
		return err
	}
	return nil
}

// Close stops the evaluator and persists the session.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
	o.mu.Unlock()
	o.persistSession()
	return o.evaluator.Close()
}

// Transcript returns the transcript. Front-ends may read it and edit the
// input region; all other mutation goes through the orchestrator.
func (o *Orchestrator) Transcript() *Transcript {
	return o.transcript
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Busy reports whether input would be rejected right now.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busyLocked()
}

func (o *Orchestrator) busyLocked() bool {
	return o.state != StateIdle || o.transcript.InProgress()
}

// Session returns the session id.
func (o *Orchestrator) Session() schema.SessionID {
	return o.cfg.SessionID
}

// HistoryEntries returns a copy of the history.
func (o *Orchestrator) HistoryEntries() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.Entries()
}

// SetHistoryMaxSize rebounds the history.
func (o *Orchestrator) SetHistoryMaxSize(max int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.SetMaxSize(max)
}

// TraceLinks returns the navigable locations of the last exception.
func (o *Orchestrator) TraceLinks() []TraceLink {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]TraceLink(nil), o.links...)
}

// CurrentInput returns the editable input.
func (o *Orchestrator) CurrentInput() string {
	return o.transcript.CurrentInput()
}

// SetCurrentInput replaces the editable input.
func (o *Orchestrator) SetCurrentInput(text string) {
	o.mu.Lock()
	o.transcript.SetCurrentInput(text)
	o.mu.Unlock()
	o.emit(o.outputEvent())
}

// MovePrevious shows the previous history entry as the current input.
func (o *Orchestrator) MovePrevious() error {
	return o.recall(o.history.MovePrevious)
}

// MoveNext shows the next history entry as the current input.
func (o *Orchestrator) MoveNext() error {
	return o.recall(o.history.MoveNext)
}

func (o *Orchestrator) recall(move func() error) error {
	o.mu.Lock()
	if err := move(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.transcript.SetCurrentInput(o.history.Current())
	o.mu.Unlock()
	o.emit(o.outputEvent())
	return nil
}

// SubmitCurrentInput submits the editable input as a new interaction. It
// returns schema.ErrInteractionInProgress without side effects unless the
// orchestrator is idle.
func (o *Orchestrator) SubmitCurrentInput(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	o.mu.Lock()
	if o.busyLocked() {
		o.mu.Unlock()
		return schema.ErrInteractionInProgress
	}
	interp := o.active
	log := logx.WithSessionInterpreter(ctx, o.cfg.SessionID, interp)
	input := strings.TrimSpace(o.transcript.CurrentInput())
	if input == "" {
		o.transcript.AppendNewline()
		o.transcript.InsertPrompt()
		o.history.MoveEnd()
		o.mu.Unlock()
		o.emit(o.outputEvent())
		return nil
	}
	source, _, err := rewriteJavaCommand(input)
	if err == nil {
		source, err = o.pre.Preprocess(ctx, source)
	}
	var perr *schema.ParseError
	if errors.As(err, &perr) && perr.Incomplete() {
		o.mu.Unlock()
		log.Debug("interaction incomplete", "reason", perr.Message)
		o.emit(o.event(schema.EventInteractionIncomplete))
		return nil
	}
	if err != nil {
		o.history.Add(input)
		start := o.transcript.beginInteraction()
		interaction := &Interaction{ID: newInteractionID(), Interpreter: interp, Source: input, Start: start, StartedAt: time.Now()}
		outcome := schema.SyntaxErrorOutcome{Message: err.Error()}
		if perr != nil {
			outcome.Span = perr.Span
		}
		log.Debug("interaction syntax error", "err", err)
		events := o.completeLocked(interaction, outcome)
		o.mu.Unlock()
		o.emit(events...)
		o.persistSession()
		return nil
	}
	start := o.transcript.beginInteraction()
	o.history.Add(input)
	interaction := &Interaction{
		ID:          newInteractionID(),
		Interpreter: interp,
		Source:      input,
		Processed:   source,
		Start:       start,
		StartedAt:   time.Now(),
	}
	o.pending[interp] = interaction
	o.state = StateSubmitting
	debug := o.interpreters[interp]
	started := o.event(schema.EventInteractionStarted)
	started.Interaction = interaction.ID
	o.mu.Unlock()
	o.emit(started, o.outputEvent())
	log = logx.WithInteraction(log, interaction.ID)
	log.Info("interaction start", "chars", len(input))

	if debug.Debug {
		interaction.Processed = o.qualifyForDebug(ctx, debug, interaction.Processed)
	}

	o.mu.Lock()
	if o.pending[interp] != interaction {
		o.mu.Unlock()
		log.Debug("interaction abandoned before dispatch")
		return nil
	}
	o.state = StateAwaitingOutcome
	o.mu.Unlock()

	if err := o.evaluator.Interpret(ctx, interaction.Processed); err != nil {
		log.Warn("interaction dispatch failed", "err", err)
		o.dispatchFailed(interaction, err)
		return err
	}
	log.Trace("interaction dispatched", "processed", interaction.Processed)
	return nil
}

// dispatchFailed ends an interaction the evaluator never accepted.
func (o *Orchestrator) dispatchFailed(interaction *Interaction, err error) {
	o.mu.Lock()
	if o.pending[interaction.Interpreter] != interaction {
		o.mu.Unlock()
		return
	}
	delete(o.pending, interaction.Interpreter)
	line := fmt.Sprintf("error: %v", err)
	var hints []string
	var evalErr *EvaluatorError
	if errors.As(err, &evalErr) {
		line, hints = evaluatorErrorLines(evalErr)
	}
	o.transcript.Append(line+"\n", schema.StyleError)
	for _, hint := range hints {
		o.transcript.Append(hint+"\n", schema.StyleError)
	}
	events := o.finishLocked(interaction)
	o.mu.Unlock()
	o.emit(events...)
}

// completeLocked applies a terminal outcome for interaction, which must be
// the interaction of the active interpreter.
func (o *Orchestrator) completeLocked(interaction *Interaction, outcome schema.Outcome) []schema.Event {
	var events []schema.Event
	text, style, links := renderOutcome(outcome)
	if _, ok := outcome.(schema.ExceptionOutcome); ok {
		base := o.transcript.Len()
		o.links = o.links[:0]
		for _, link := range links {
			link.Offset += base
			o.links = append(o.links, link)
		}
	}
	o.transcript.Append(text, style)
	if v, ok := outcome.(schema.SyntaxErrorOutcome); ok {
		offset, length := spanOffsets(interaction.Source, v.Span)
		ev := o.event(schema.EventInteractionErrorOccurred)
		ev.Interaction = interaction.ID
		ev.Offset = interaction.Start + offset
		ev.Length = length
		events = append(events, ev)
	}
	return append(events, o.finishLocked(interaction)...)
}

// finishLocked clears the in-progress marker, restores the prompt and
// returns the interaction ended event.
func (o *Orchestrator) finishLocked(interaction *Interaction) []schema.Event {
	o.transcript.SetInProgress(false)
	if !o.transcript.endsWithNewline() {
		o.transcript.AppendNewline()
	}
	o.transcript.InsertPrompt()
	o.state = StateIdle
	if o.script != nil {
		o.script.interactionDone()
	}
	ended := o.event(schema.EventInteractionEnded)
	if interaction != nil {
		ended.Interaction = interaction.ID
	}
	return []schema.Event{ended, o.outputEvent()}
}

func (o *Orchestrator) event(kind schema.EventType) schema.Event {
	return schema.Event{
		Type:        kind,
		Session:     o.cfg.SessionID,
		Interpreter: o.active,
		At:          time.Now(),
	}
}

func (o *Orchestrator) outputEvent() schema.Event {
	return schema.Event{Type: schema.EventOutput, Session: o.cfg.SessionID, At: time.Now()}
}

func (o *Orchestrator) emit(events ...schema.Event) {
	if o.sink == nil {
		return
	}
	for _, event := range events {
		o.sink.OnEvent(event)
	}
}

func (o *Orchestrator) restoreSession() {
	if o.store == nil {
		return
	}
	snapshot, ok, err := o.store.Load(o.cfg.SessionID)
	if err != nil || !ok {
		return
	}
	for _, entry := range snapshot.History {
		o.history.Add(entry)
	}
	for _, entry := range snapshot.Classpath {
		if !containsClasspath(o.classpath, entry) {
			o.classpath = append(o.classpath, entry)
		}
	}
}

func (o *Orchestrator) persistSession() {
	if o.store == nil {
		return
	}
	o.mu.Lock()
	snapshot := persist.SessionSnapshot{
		History:     o.history.Entries(),
		Classpath:   append([]schema.ClasspathEntry(nil), o.classpath...),
		Interpreter: o.active,
		SavedAt:     time.Now().UTC(),
	}
	o.mu.Unlock()
	// Save logs its own failures.
	_ = o.store.Save(o.cfg.SessionID, snapshot)
}

func containsClasspath(entries []schema.ClasspathEntry, entry schema.ClasspathEntry) bool {
	for _, existing := range entries {
		if existing.URL == entry.URL {
			return true
		}
	}
	return false
}
