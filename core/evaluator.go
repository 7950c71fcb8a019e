package core

import (
	"context"

	"pkt.systems/jrepl/schema"
)

// ResetRequest describes the evaluator to (re)create.
type ResetRequest struct {
	WorkingDir string
	// DebugPort is 0 when no debug port could be allocated.
	DebugPort int
}

// Evaluator is the request side of the evaluator protocol. Outcomes and
// lifecycle notifications arrive asynchronously through the CallbackHandler
// passed to Start; request methods only report transport failures.
type Evaluator interface {
	Start(ctx context.Context, handler CallbackHandler, req ResetRequest) error
	Interpret(ctx context.Context, source string) error
	ResetInterpreter(ctx context.Context, req ResetRequest) error
	AddInterpreter(ctx context.Context, name schema.InterpreterName) error
	AddDebugInterpreter(ctx context.Context, name schema.InterpreterName, enclosingClass string) error
	RemoveInterpreter(ctx context.Context, name schema.InterpreterName) error
	SetActiveInterpreter(ctx context.Context, name schema.InterpreterName) (wasInProgress bool, err error)
	AddClasspathEntry(ctx context.Context, entry schema.ClasspathEntry) error
	VariableAsString(ctx context.Context, name string) (string, error)
	VariableClassName(ctx context.Context, name string) (string, error)
	// CheckExpression type-checks expr in the active interpreter without
	// evaluating it. A nil error means expr compiles there.
	CheckExpression(ctx context.Context, expr string) error
	// FieldNames lists the declared fields of a loaded class.
	FieldNames(ctx context.Context, className string) ([]string, error)
	SetAllowAssertions(ctx context.Context, allow bool) error
	SetPrivateAccessEnabled(ctx context.Context, enabled bool) error
	Abort(ctx context.Context) error
	Close() error
}

// CallbackHandler receives evaluator callbacks. Transports must deliver
// callbacks in order and must not hold their reply path while delivering.
type CallbackHandler interface {
	Deliver(cb schema.Callback)
}

// CallbackFunc adapts a function to CallbackHandler.
type CallbackFunc func(cb schema.Callback)

// Deliver implements CallbackHandler.
func (f CallbackFunc) Deliver(cb schema.Callback) {
	f(cb)
}
