package core

import (
	"time"

	"pkt.systems/jrepl/internal/logx"
	"pkt.systems/jrepl/schema"
)

// Deliver dispatches an evaluator callback. It implements CallbackHandler.
func (o *Orchestrator) Deliver(cb schema.Callback) {
	switch cb.Kind {
	case schema.CallbackStdout:
		o.SystemOut(cb.Text)
	case schema.CallbackStderr:
		o.SystemErr(cb.Text)
	case schema.CallbackResetting:
		o.InterpreterResetting()
	case schema.CallbackReady:
		o.InterpreterReady()
	case schema.CallbackResetFailed:
		o.InterpreterResetFailed(cb.Cause)
	case schema.CallbackExited:
		o.InterpreterExited(cb.Status)
	case schema.CallbackSystemExit:
		o.ReplCalledSystemExit(cb.Interpreter, cb.Status)
	default:
		outcome, err := cb.Outcome()
		if err != nil {
			o.logger.Warn("evaluator callback rejected", "kind", cb.Kind, "err", err)
			return
		}
		o.applyOutcome(cb.Interpreter, outcome)
	}
}

// ReplReturnedVoid completes the interaction without output.
func (o *Orchestrator) ReplReturnedVoid(interp schema.InterpreterName) {
	o.applyOutcome(interp, schema.VoidOutcome{})
}

// ReplReturnedResult completes the interaction with a printed value.
func (o *Orchestrator) ReplReturnedResult(interp schema.InterpreterName, text string, style schema.StyleTag) {
	o.applyOutcome(interp, schema.ResultOutcome{Text: text, Style: style})
}

// ReplThrewException completes the interaction with an exception report.
func (o *Orchestrator) ReplThrewException(interp schema.InterpreterName, className, message string, trace []string) {
	o.applyOutcome(interp, schema.ExceptionOutcome{ClassName: className, Message: message, StackTrace: trace})
}

// ReplReturnedSyntaxError completes the interaction with a diagnostic.
func (o *Orchestrator) ReplReturnedSyntaxError(interp schema.InterpreterName, message string, span schema.SourceSpan) {
	o.applyOutcome(interp, schema.SyntaxErrorOutcome{Message: message, Span: span})
}

// ReplInterrupted completes an aborted interaction.
func (o *Orchestrator) ReplInterrupted(interp schema.InterpreterName, message string, span schema.SourceSpan) {
	o.applyOutcome(interp, schema.InterruptedOutcome{Message: message, Span: span})
}

// ReplCalledSystemExit reports that user code exited the evaluator. The
// interaction does not end normally; the transcript stays busy until a reset.
func (o *Orchestrator) ReplCalledSystemExit(interp schema.InterpreterName, status int) {
	o.mu.Lock()
	name := o.interpreterOrActive(interp)
	delete(o.pending, name)
	if name == o.active {
		o.state = StateIdle
	}
	o.transcript.SetInProgress(true)
	ev := o.event(schema.EventInterpreterExited)
	ev.Status = status
	ev.InProgress = true
	o.mu.Unlock()
	o.logger.Info("interpreter called system exit", "interpreter", name, "status", status)
	o.emit(ev, o.outputEvent())
}

// SystemOut prints program output above the prompt.
func (o *Orchestrator) SystemOut(text string) {
	o.print(text, schema.StyleSystemOut)
}

// SystemErr prints program error output above the prompt.
func (o *Orchestrator) SystemErr(text string) {
	o.print(text, schema.StyleSystemErr)
}

// PrintDebug prints debugger output above the prompt.
func (o *Orchestrator) PrintDebug(text string) {
	o.print(text, schema.StyleDebugger)
}

// Notice prints front-end messages, such as slash command replies, above the prompt.
func (o *Orchestrator) Notice(text string) {
	o.print(text, schema.StyleDefault)
}

// NoticeError prints a front-end error above the prompt.
func (o *Orchestrator) NoticeError(text string) {
	o.print(text, schema.StyleError)
}

func (o *Orchestrator) print(text string, style schema.StyleTag) {
	if text == "" {
		return
	}
	o.mu.Lock()
	o.transcript.InsertBeforeLastPrompt(text, style)
	o.mu.Unlock()
	o.emit(o.outputEvent())
	if o.cfg.OutputDelay > 0 {
		outputSleep(o.cfg.OutputDelay)
	}
}

func (o *Orchestrator) applyOutcome(interp schema.InterpreterName, outcome schema.Outcome) {
	o.mu.Lock()
	name := o.interpreterOrActive(interp)
	interaction := o.pending[name]
	if interaction == nil {
		o.mu.Unlock()
		o.logger.Debug("evaluator outcome without interaction", "interpreter", name, "outcome", schema.OutcomeName(outcome))
		return
	}
	delete(o.pending, name)
	var events []schema.Event
	if name == o.active {
		events = o.completeLocked(interaction, outcome)
	} else {
		text, style, _ := renderOutcome(outcome)
		o.transcript.InsertBeforeLastPrompt(text, style)
		ended := o.event(schema.EventInteractionEnded)
		ended.Interpreter = name
		ended.Interaction = interaction.ID
		events = []schema.Event{ended, o.outputEvent()}
	}
	o.mu.Unlock()
	log := logx.WithInteraction(o.logger.With("interpreter", name), interaction.ID)
	log.Info("interaction end", "outcome", schema.OutcomeName(outcome), "elapsed_ms", time.Since(interaction.StartedAt).Milliseconds())
	o.emit(events...)
	o.persistSession()
}

func (o *Orchestrator) interpreterOrActive(name schema.InterpreterName) schema.InterpreterName {
	if name == "" {
		return o.active
	}
	return name
}

// renderOutcome returns the transcript text for an outcome. Exception
// locations are relative to the start of the text.
func renderOutcome(outcome schema.Outcome) (string, schema.StyleTag, []TraceLink) {
	switch v := outcome.(type) {
	case schema.VoidOutcome:
		return "", schema.StyleDefault, nil
	case schema.ResultOutcome:
		style := v.Style
		if style == schema.StyleNone {
			style = schema.StyleObjectReturn
		}
		return v.Text + "\n", style, nil
	case schema.ExceptionOutcome:
		text, links := formatException(v)
		return text, schema.StyleError, links
	case schema.SyntaxErrorOutcome:
		return v.Message + "\n", schema.StyleError, nil
	case schema.InterruptedOutcome:
		msg := v.Message
		if msg == "" {
			msg = "Interrupted"
		}
		return msg + formatPosition(v.Span) + "\n", schema.StyleError, nil
	case schema.SystemExitOutcome:
		return "", schema.StyleDefault, nil
	default:
		return "", schema.StyleDefault, nil
	}
}
