package schema

import "time"

// EventType names a listener event raised by the orchestrator.
type EventType string

const (
	// EventInteractionStarted fires after input was accepted and dispatched.
	EventInteractionStarted EventType = "interactionStarted"
	// EventInteractionEnded fires after an outcome was applied and the prompt restored.
	EventInteractionEnded EventType = "interactionEnded"
	// EventInteractionErrorOccurred points at the offending region of the transcript.
	EventInteractionErrorOccurred EventType = "interactionErrorOccurred"
	// EventInteractionIncomplete fires when input ended mid-construct.
	EventInteractionIncomplete EventType = "interactionIncomplete"
	// EventInterpreterResetting fires when a reset starts.
	EventInterpreterResetting EventType = "interpreterResetting"
	// EventInterpreterReady fires when a reset completed.
	EventInterpreterReady EventType = "interpreterReady"
	// EventInterpreterResetFailed fires when a reset failed or timed out.
	EventInterpreterResetFailed EventType = "interpreterResetFailed"
	// EventInterpreterExited fires when the evaluator process died or user code exited.
	EventInterpreterExited EventType = "interpreterExited"
	// EventInterpreterChanged fires when the active interpreter switched.
	EventInterpreterChanged EventType = "interpreterChanged"
	// EventOutput fires whenever the transcript changed and front-ends should redraw.
	EventOutput EventType = "output"
)

// Event is delivered to listeners after the orchestrator released its locks.
type Event struct {
	Type        EventType       `json:"type"`
	Session     SessionID       `json:"session,omitempty"`
	Interpreter InterpreterName `json:"interpreter,omitempty"`
	Interaction InteractionID   `json:"interaction,omitempty"`
	Offset      int             `json:"offset,omitempty"`
	Length      int             `json:"length,omitempty"`
	Status      int             `json:"status,omitempty"`
	Cause       string          `json:"cause,omitempty"`
	InProgress  bool            `json:"in_progress,omitempty"`
	At          time.Time       `json:"at"`
}
