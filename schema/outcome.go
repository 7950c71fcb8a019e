package schema

// Outcome is the terminal result of an interaction. The set of
// implementations is closed; switch over the concrete types.
type Outcome interface {
	outcome()
}

// VoidOutcome means the interaction completed without a value.
type VoidOutcome struct{}

// ResultOutcome carries the printed value of an expression.
type ResultOutcome struct {
	Text  string
	Style StyleTag
}

// ExceptionOutcome carries an exception thrown by user code.
type ExceptionOutcome struct {
	ClassName  string
	Message    string
	StackTrace []string
}

// SyntaxErrorOutcome carries a parse or compile diagnostic.
type SyntaxErrorOutcome struct {
	Message string
	Span    SourceSpan
}

// SystemExitOutcome means user code called System.exit.
type SystemExitOutcome struct {
	Status int
}

// InterruptedOutcome means the evaluation was aborted.
type InterruptedOutcome struct {
	Message string
	Span    SourceSpan
}

func (VoidOutcome) outcome()        {}
func (ResultOutcome) outcome()      {}
func (ExceptionOutcome) outcome()   {}
func (SyntaxErrorOutcome) outcome() {}
func (SystemExitOutcome) outcome()  {}
func (InterruptedOutcome) outcome() {}

// OutcomeName returns a short label for logs.
func OutcomeName(o Outcome) string {
	switch o.(type) {
	case VoidOutcome:
		return "void"
	case ResultOutcome:
		return "result"
	case ExceptionOutcome:
		return "exception"
	case SyntaxErrorOutcome:
		return "syntax_error"
	case SystemExitOutcome:
		return "system_exit"
	case InterruptedOutcome:
		return "interrupted"
	default:
		return "unknown"
	}
}
