package schema

import "fmt"

// CallbackKind names an evaluator to orchestrator message.
type CallbackKind string

const (
	CallbackVoid        CallbackKind = "void"
	CallbackResult      CallbackKind = "result"
	CallbackException   CallbackKind = "exception"
	CallbackSyntaxError CallbackKind = "syntax_error"
	CallbackSystemExit  CallbackKind = "system_exit"
	CallbackInterrupted CallbackKind = "interrupted"
	CallbackStdout      CallbackKind = "stdout"
	CallbackStderr      CallbackKind = "stderr"
	CallbackResetting   CallbackKind = "resetting"
	CallbackReady       CallbackKind = "ready"
	CallbackResetFailed CallbackKind = "reset_failed"
	CallbackExited      CallbackKind = "exited"
)

// Callback is one asynchronous message from the evaluator. Only the fields
// relevant to Kind are set.
type Callback struct {
	Kind        CallbackKind    `json:"kind"`
	Interpreter InterpreterName `json:"interpreter,omitempty"`
	Text        string          `json:"text,omitempty"`
	Style       StyleTag        `json:"style,omitempty"`
	ClassName   string          `json:"class_name,omitempty"`
	Message     string          `json:"message,omitempty"`
	StackTrace  []string        `json:"stack_trace,omitempty"`
	Span        SourceSpan      `json:"span,omitempty"`
	Status      int             `json:"status,omitempty"`
	Cause       string          `json:"cause,omitempty"`
}

// IsOutcome reports whether the callback terminates an interaction.
func (c Callback) IsOutcome() bool {
	switch c.Kind {
	case CallbackVoid, CallbackResult, CallbackException, CallbackSyntaxError, CallbackSystemExit, CallbackInterrupted:
		return true
	default:
		return false
	}
}

// Outcome converts an outcome callback into its sum-type value.
func (c Callback) Outcome() (Outcome, error) {
	switch c.Kind {
	case CallbackVoid:
		return VoidOutcome{}, nil
	case CallbackResult:
		return ResultOutcome{Text: c.Text, Style: c.Style}, nil
	case CallbackException:
		return ExceptionOutcome{ClassName: c.ClassName, Message: c.Message, StackTrace: append([]string(nil), c.StackTrace...)}, nil
	case CallbackSyntaxError:
		return SyntaxErrorOutcome{Message: c.Message, Span: c.Span}, nil
	case CallbackSystemExit:
		return SystemExitOutcome{Status: c.Status}, nil
	case CallbackInterrupted:
		return InterruptedOutcome{Message: c.Message, Span: c.Span}, nil
	default:
		return nil, fmt.Errorf("%w: callback %q carries no outcome", ErrInvalidCallback, c.Kind)
	}
}

// CallbackFromOutcome builds the callback that carries o.
func CallbackFromOutcome(o Outcome) Callback {
	switch v := o.(type) {
	case VoidOutcome:
		return Callback{Kind: CallbackVoid}
	case ResultOutcome:
		return Callback{Kind: CallbackResult, Text: v.Text, Style: v.Style}
	case ExceptionOutcome:
		return Callback{Kind: CallbackException, ClassName: v.ClassName, Message: v.Message, StackTrace: v.StackTrace}
	case SyntaxErrorOutcome:
		return Callback{Kind: CallbackSyntaxError, Message: v.Message, Span: v.Span}
	case SystemExitOutcome:
		return Callback{Kind: CallbackSystemExit, Status: v.Status}
	case InterruptedOutcome:
		return Callback{Kind: CallbackInterrupted, Message: v.Message, Span: v.Span}
	default:
		return Callback{Kind: CallbackVoid}
	}
}
