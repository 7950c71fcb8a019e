package core

import "fmt"

// EvaluatorErrorKind classifies evaluator transport failures for user-facing hints.
type EvaluatorErrorKind string

const (
	// EvaluatorErrorUnknown is an uncategorized evaluator failure.
	EvaluatorErrorUnknown EvaluatorErrorKind = "unknown"
	// EvaluatorErrorUnavailable indicates the evaluator is unreachable.
	EvaluatorErrorUnavailable EvaluatorErrorKind = "unavailable"
	// EvaluatorErrorTimeout indicates the evaluator did not answer in time.
	EvaluatorErrorTimeout EvaluatorErrorKind = "timeout"
	// EvaluatorErrorCanceled indicates the request was canceled.
	EvaluatorErrorCanceled EvaluatorErrorKind = "canceled"
	// EvaluatorErrorStart indicates the evaluator process failed to start.
	EvaluatorErrorStart EvaluatorErrorKind = "start"
	// EvaluatorErrorProtocol indicates a malformed message on the wire.
	EvaluatorErrorProtocol EvaluatorErrorKind = "protocol"
	// EvaluatorErrorRejected indicates the evaluator refused the request.
	EvaluatorErrorRejected EvaluatorErrorKind = "rejected"
)

// EvaluatorError wraps evaluator failures with a stable classification.
type EvaluatorError struct {
	Kind    EvaluatorErrorKind
	Op      string
	Message string
	Err     error
}

// NewEvaluatorError constructs a classified evaluator error.
func NewEvaluatorError(kind EvaluatorErrorKind, op string, err error) *EvaluatorError {
	return &EvaluatorError{Kind: kind, Op: op, Err: err}
}

func (e *EvaluatorError) Error() string {
	if e == nil {
		return "evaluator error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("evaluator %s failed", e.Op)
	}
	return "evaluator error"
}

func (e *EvaluatorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func evaluatorErrorLines(err *EvaluatorError) (string, []string) {
	if err == nil {
		return "error: evaluator failed", nil
	}
	switch err.Kind {
	case EvaluatorErrorUnavailable:
		return "error: evaluator unavailable", []string{
			"hint: use /reset to restart the evaluator",
		}
	case EvaluatorErrorTimeout:
		return "error: evaluator timed out", []string{
			"hint: use /abort to interrupt a long running interaction",
		}
	case EvaluatorErrorCanceled:
		return "error: evaluator request canceled", nil
	case EvaluatorErrorStart:
		return "error: evaluator failed to start", []string{
			"hint: check evaluator.binary and evaluator.args in the config",
		}
	case EvaluatorErrorProtocol:
		return "error: evaluator sent a malformed message", nil
	case EvaluatorErrorRejected:
		return fmt.Sprintf("error: %v", err), nil
	default:
		return fmt.Sprintf("error: %v", err), nil
	}
}
