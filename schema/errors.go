package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidCallback indicates a callback that does not fit the current state.
	ErrInvalidCallback = errors.New("invalid callback")
	// ErrNoSuchEntry indicates history navigation past either end.
	ErrNoSuchEntry = errors.New("no such history entry")
	// ErrInvalidHistorySize indicates a negative history size.
	ErrInvalidHistorySize = errors.New("history size must not be negative")
	// ErrProtectedRegion indicates an edit below the prompt position.
	ErrProtectedRegion = errors.New("edit in protected region")
	// ErrOffsetOutOfRange indicates an offset outside the transcript.
	ErrOffsetOutOfRange = errors.New("offset out of range")
	// ErrInteractionInProgress indicates a submission while another is outstanding.
	ErrInteractionInProgress = errors.New("interaction in progress")
	// ErrInterpreterNotFound indicates an unknown interpreter name.
	ErrInterpreterNotFound = errors.New("interpreter not found")
	// ErrInterpreterExists indicates a duplicate interpreter name.
	ErrInterpreterExists = errors.New("interpreter already exists")
	// ErrInterpreterBusy indicates removal of the active interpreter.
	ErrInterpreterBusy = errors.New("interpreter is active")
	// ErrResetTimeout indicates the evaluator did not come back after a reset.
	ErrResetTimeout = errors.New("evaluator reset timed out")
	// ErrDebugPortUnavailable indicates no debug port could be allocated.
	ErrDebugPortUnavailable = errors.New("debug port unavailable")
	// ErrEvaluatorUnavailable indicates no evaluator is connected.
	ErrEvaluatorUnavailable = errors.New("evaluator not configured")
	// ErrEvaluatorExited indicates the evaluator process is gone.
	ErrEvaluatorExited = errors.New("evaluator exited")
	// ErrNoHistoryScript indicates a step command without a loaded script.
	ErrNoHistoryScript = errors.New("no history script loaded")
	// ErrUnknownVariable indicates a variable lookup miss.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrUnknownClass indicates a class lookup miss.
	ErrUnknownClass = errors.New("unknown class")
)
