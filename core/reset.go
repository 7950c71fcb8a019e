package core

import (
	"context"
	"fmt"
	"net"

	"pkt.systems/jrepl/internal/logx"
	"pkt.systems/jrepl/schema"
)

// allocateDebugPort asks the OS for an ephemeral port by opening and
// immediately closing a listener.
var allocateDebugPort = func() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	addr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address %T", ln.Addr())
	}
	return addr.Port, nil
}

// DebugPort returns the port a debugger should attach to.
func (o *Orchestrator) DebugPort() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.debugPort == 0 {
		if o.debugPortErr != nil {
			return 0, o.debugPortErr
		}
		return 0, schema.ErrDebugPortUnavailable
	}
	return o.debugPort, nil
}

// rotateDebugPortLocked picks a new debug port. A failure keeps the old one.
func (o *Orchestrator) rotateDebugPortLocked() {
	port, err := allocateDebugPort()
	if err != nil {
		o.logger.Warn("debug port allocation failed", "err", err, "port", o.debugPort)
		if o.debugPort == 0 {
			o.debugPortErr = fmt.Errorf("%w: %v", schema.ErrDebugPortUnavailable, err)
		}
		return
	}
	o.debugPort = port
	o.debugPortErr = nil
}

// ResetEvaluator discards evaluator state and requests a fresh evaluator.
// It is ignored while the first evaluator is still starting or a reset is
// already outstanding.
func (o *Orchestrator) ResetEvaluator(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logx.WithSession(ctx, o.cfg.SessionID)
	o.mu.Lock()
	if o.waitingFirst || o.state == StateResetting {
		waiting := o.waitingFirst
		o.mu.Unlock()
		log.Debug("evaluator reset ignored", "waiting_first", waiting)
		return nil
	}
	events := o.beginResetLocked()
	req := ResetRequest{WorkingDir: o.cfg.WorkingDir, DebugPort: o.debugPort}
	o.mu.Unlock()
	log.Info("evaluator reset start", "debug_port", req.DebugPort)
	o.emit(events...)
	if err := o.evaluator.ResetInterpreter(ctx, req); err != nil {
		log.Warn("evaluator reset request failed", "err", err)
		o.InterpreterResetFailed(err.Error())
		return err
	}
	return nil
}

// InterpreterResetting handles a reset initiated by the evaluator side.
func (o *Orchestrator) InterpreterResetting() {
	o.mu.Lock()
	if o.state == StateResetting {
		o.mu.Unlock()
		return
	}
	events := o.beginResetLocked()
	o.mu.Unlock()
	o.logger.Info("evaluator resetting")
	o.emit(events...)
}

func (o *Orchestrator) beginResetLocked() []schema.Event {
	o.resetFromBusy = o.transcript.InProgress()
	o.transcript.InsertBeforeLastPrompt(schema.ResettingBanner, schema.StyleError)
	o.transcript.SetInProgress(true)
	o.rotateDebugPortLocked()
	o.pending = make(map[schema.InterpreterName]*Interaction)
	o.state = StateResetting
	o.resetSeq++
	o.armResetTimerLocked(o.resetSeq)
	ev := o.event(schema.EventInterpreterResetting)
	ev.InProgress = true
	return []schema.Event{ev, o.outputEvent()}
}

func (o *Orchestrator) armResetTimerLocked(seq uint64) {
	if o.resetTimer != nil {
		o.resetTimer.Stop()
	}
	o.resetTimer = afterFunc(o.cfg.ResetTimeout, func() {
		o.resetTimedOut(seq)
	})
}

func (o *Orchestrator) stopResetTimerLocked() {
	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
}

// resetTimedOut fails a reset that did not complete in time. The transcript
// stays busy until the user resets again.
func (o *Orchestrator) resetTimedOut(seq uint64) {
	o.mu.Lock()
	if o.state != StateResetting || seq != o.resetSeq {
		o.mu.Unlock()
		return
	}
	o.resetTimer = nil
	o.state = StateIdle
	o.transcript.InsertBeforeLastPrompt(fmt.Sprintf("Evaluator did not restart within %s. Reset again to retry.\n", o.cfg.ResetTimeout), schema.StyleError)
	ev := o.event(schema.EventInterpreterResetFailed)
	ev.Cause = schema.ErrResetTimeout.Error()
	ev.InProgress = true
	o.mu.Unlock()
	o.logger.Error("evaluator reset timed out", "timeout", o.cfg.ResetTimeout.String())
	o.emit(ev, o.outputEvent())
}

// InterpreterReady handles the evaluator ready callback. The first one only
// ends the startup wait; later ones complete a reset.
func (o *Orchestrator) InterpreterReady() {
	o.mu.Lock()
	o.stopResetTimerLocked()
	if o.waitingFirst {
		o.waitingFirst = false
		var events []schema.Event
		if o.state == StateResetting {
			// A remote reset raced the first ready.
			o.state = StateIdle
			o.transcript.SetInProgress(false)
			o.resetFromBusy = false
			events = append(events, o.event(schema.EventInterpreterReady), o.outputEvent())
		}
		o.mu.Unlock()
		o.logger.Info("evaluator ready")
		o.emit(events...)
		o.replaySettings(context.Background())
		return
	}
	o.pending = make(map[schema.InterpreterName]*Interaction)
	o.resetRegistryLocked()
	o.transcript.Reset(o.cfg.Banner)
	o.links = nil
	o.state = StateIdle
	o.resetFromBusy = false
	if o.script != nil {
		o.script.interactionDone()
	}
	ev := o.event(schema.EventInterpreterReady)
	o.mu.Unlock()
	o.logger.Info("evaluator reset complete")
	o.emit(ev, o.outputEvent())
	o.replaySettings(context.Background())
}

// InterpreterResetFailed handles a failed reset. The failure banner stays
// visible and input is accepted again.
func (o *Orchestrator) InterpreterResetFailed(cause string) {
	o.mu.Lock()
	o.stopResetTimerLocked()
	o.waitingFirst = false
	o.transcript.SetInProgress(false)
	if o.resetFromBusy {
		if !o.transcript.endsWithNewline() {
			o.transcript.AppendNewline()
		}
		o.transcript.InsertPrompt()
		o.resetFromBusy = false
	}
	o.state = StateIdle
	ev := o.event(schema.EventInterpreterResetFailed)
	ev.Cause = cause
	o.mu.Unlock()
	o.logger.Warn("evaluator reset failed", "cause", cause)
	o.emit(ev, o.outputEvent())
}

// InterpreterExited handles an unexpected evaluator death. The transcript
// stays busy until the user resets.
func (o *Orchestrator) InterpreterExited(status int) {
	o.mu.Lock()
	o.stopResetTimerLocked()
	o.waitingFirst = false
	o.pending = make(map[schema.InterpreterName]*Interaction)
	o.state = StateIdle
	o.transcript.InsertBeforeLastPrompt(fmt.Sprintf("Evaluator exited with status %d. Reset to continue.\n", status), schema.StyleError)
	o.transcript.SetInProgress(true)
	ev := o.event(schema.EventInterpreterExited)
	ev.Status = status
	ev.InProgress = true
	o.mu.Unlock()
	o.logger.Warn("evaluator exited", "status", status)
	o.emit(ev, o.outputEvent())
}

// Abort interrupts the interaction of the active interpreter, if any. The
// evaluator answers with an interrupted outcome.
func (o *Orchestrator) Abort(ctx context.Context) error {
	o.mu.Lock()
	interaction := o.pending[o.active]
	o.mu.Unlock()
	if interaction == nil {
		return nil
	}
	logx.WithInteraction(logx.WithSession(ctx, o.cfg.SessionID), interaction.ID).Info("interaction abort requested")
	return o.evaluator.Abort(ctx)
}

func (o *Orchestrator) replaySettings(ctx context.Context) {
	o.mu.Lock()
	allow := o.allowAssertions
	private := o.privateAccess
	classpath := append([]schema.ClasspathEntry(nil), o.classpath...)
	o.mu.Unlock()
	if err := o.evaluator.SetAllowAssertions(ctx, allow); err != nil {
		o.logger.Warn("evaluator settings replay failed", "setting", "allow_assertions", "err", err)
	}
	if err := o.evaluator.SetPrivateAccessEnabled(ctx, private); err != nil {
		o.logger.Warn("evaluator settings replay failed", "setting", "private_access", "err", err)
	}
	for _, entry := range classpath {
		if err := o.evaluator.AddClasspathEntry(ctx, entry); err != nil {
			o.logger.Warn("evaluator classpath replay failed", "url", entry.URL, "err", err)
		}
	}
}
