package core

import (
	"context"
	"fmt"

	"pkt.systems/jrepl/schema"
)

func (o *Orchestrator) resetRegistryLocked() {
	o.interpreters = map[schema.InterpreterName]schema.Interpreter{
		schema.DefaultInterpreter: {Name: schema.DefaultInterpreter, Prompt: o.cfg.Prompt},
	}
	o.active = schema.DefaultInterpreter
	o.transcript.SetPrompt(o.cfg.Prompt)
}

// Interpreters returns the registered interpreter contexts.
func (o *Orchestrator) Interpreters() []schema.Interpreter {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]schema.Interpreter, 0, len(o.interpreters))
	for _, interp := range o.interpreters {
		out = append(out, interp)
	}
	return out
}

// ActiveInterpreter returns the active interpreter.
func (o *Orchestrator) ActiveInterpreter() schema.Interpreter {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interpreters[o.active]
}

// AddInterpreter registers a plain interpreter context.
func (o *Orchestrator) AddInterpreter(ctx context.Context, name string) error {
	return o.addInterpreter(ctx, name, "")
}

// AddDebugInterpreter registers an interpreter bound to a suspended frame of
// enclosingClass. Bare identifiers typed into it are qualified against the
// enclosing-instance chain.
func (o *Orchestrator) AddDebugInterpreter(ctx context.Context, name, enclosingClass string) error {
	if enclosingClass == "" {
		return fmt.Errorf("%w: enclosing class is required", schema.ErrInvalidRequest)
	}
	return o.addInterpreter(ctx, name, enclosingClass)
}

func (o *Orchestrator) addInterpreter(ctx context.Context, raw, enclosingClass string) error {
	name, err := schema.NormalizeInterpreterName(raw)
	if err != nil {
		return err
	}
	o.mu.Lock()
	if _, ok := o.interpreters[name]; ok {
		o.mu.Unlock()
		return schema.ErrInterpreterExists
	}
	o.mu.Unlock()
	debug := enclosingClass != ""
	if debug {
		err = o.evaluator.AddDebugInterpreter(ctx, name, enclosingClass)
	} else {
		err = o.evaluator.AddInterpreter(ctx, name)
	}
	if err != nil {
		return err
	}
	interp := schema.Interpreter{Name: name, Debug: debug, EnclosingClass: enclosingClass, Prompt: o.cfg.Prompt}
	if debug {
		interp.Prompt = fmt.Sprintf("[%s] %s", name, o.cfg.Prompt)
	}
	o.mu.Lock()
	o.interpreters[name] = interp
	o.mu.Unlock()
	o.logger.Debug("interpreter added", "interpreter", name, "debug", debug)
	return nil
}

// RemoveInterpreter unregisters an interpreter. The active interpreter
// cannot be removed.
func (o *Orchestrator) RemoveInterpreter(ctx context.Context, raw string) error {
	name, err := schema.NormalizeInterpreterName(raw)
	if err != nil {
		return err
	}
	o.mu.Lock()
	if _, ok := o.interpreters[name]; !ok {
		o.mu.Unlock()
		return schema.ErrInterpreterNotFound
	}
	if name == o.active {
		o.mu.Unlock()
		return schema.ErrInterpreterBusy
	}
	o.mu.Unlock()
	if err := o.evaluator.RemoveInterpreter(ctx, name); err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.interpreters, name)
	delete(o.pending, name)
	o.mu.Unlock()
	o.logger.Debug("interpreter removed", "interpreter", name)
	return nil
}

// SetActiveInterpreter switches the active interpreter and its prompt. The
// transcript becomes busy when the interpreter still has an interaction
// outstanding.
func (o *Orchestrator) SetActiveInterpreter(ctx context.Context, raw string) error {
	name, err := schema.NormalizeInterpreterName(raw)
	if err != nil {
		return err
	}
	o.mu.Lock()
	interp, ok := o.interpreters[name]
	if !ok {
		o.mu.Unlock()
		return schema.ErrInterpreterNotFound
	}
	if o.state == StateResetting || o.state == StateSubmitting {
		o.mu.Unlock()
		return schema.ErrInteractionInProgress
	}
	o.mu.Unlock()
	wasInProgress, err := o.evaluator.SetActiveInterpreter(ctx, name)
	if err != nil {
		return err
	}
	o.mu.Lock()
	inProgress := wasInProgress || o.pending[name] != nil
	o.active = name
	o.transcript.SetPrompt(interp.Prompt)
	o.transcript.SetInProgress(inProgress)
	if inProgress {
		o.state = StateAwaitingOutcome
	} else {
		o.state = StateIdle
		if !o.transcript.endsWithNewline() {
			o.transcript.AppendNewline()
		}
		o.transcript.InsertPrompt()
	}
	ev := o.event(schema.EventInterpreterChanged)
	ev.InProgress = inProgress
	o.mu.Unlock()
	o.logger.Info("interpreter changed", "interpreter", name, "in_progress", inProgress)
	o.emit(ev, o.outputEvent())
	return nil
}

// AddClasspathEntry adds a location to the evaluator classpath. Entries are
// replayed after every reset.
func (o *Orchestrator) AddClasspathEntry(ctx context.Context, entry schema.ClasspathEntry) error {
	if entry.URL == "" {
		return fmt.Errorf("%w: classpath url is required", schema.ErrInvalidRequest)
	}
	if entry.Kind == "" {
		entry.Kind = schema.ClasspathExternal
	}
	if err := o.evaluator.AddClasspathEntry(ctx, entry); err != nil {
		return err
	}
	o.mu.Lock()
	if !containsClasspath(o.classpath, entry) {
		o.classpath = append(o.classpath, entry)
	}
	o.mu.Unlock()
	o.persistSession()
	return nil
}

// Classpath returns the entries replayed after a reset.
func (o *Orchestrator) Classpath() []schema.ClasspathEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]schema.ClasspathEntry(nil), o.classpath...)
}

// SetAllowAssertions toggles Java assertions in the evaluator.
func (o *Orchestrator) SetAllowAssertions(ctx context.Context, allow bool) error {
	if err := o.evaluator.SetAllowAssertions(ctx, allow); err != nil {
		return err
	}
	o.mu.Lock()
	o.allowAssertions = allow
	o.mu.Unlock()
	return nil
}

// SetPrivateAccessEnabled toggles access to private members in the evaluator.
func (o *Orchestrator) SetPrivateAccessEnabled(ctx context.Context, enabled bool) error {
	if err := o.evaluator.SetPrivateAccessEnabled(ctx, enabled); err != nil {
		return err
	}
	o.mu.Lock()
	o.privateAccess = enabled
	o.mu.Unlock()
	return nil
}

// VariableAsString returns the printed value of a variable in the active interpreter.
func (o *Orchestrator) VariableAsString(ctx context.Context, name string) (string, error) {
	return o.evaluator.VariableAsString(ctx, name)
}

// VariableClassName returns the runtime class of a variable in the active interpreter.
func (o *Orchestrator) VariableClassName(ctx context.Context, name string) (string, error) {
	return o.evaluator.VariableClassName(ctx, name)
}
