package core

import "pkt.systems/pslog"

// ServiceDeps captures dependencies for an orchestrator. Evaluator is required.
type ServiceDeps struct {
	Evaluator    Evaluator
	Preprocessor Preprocessor
	EventSink    EventSink
	// Beep is invoked when the user edits the protected transcript region.
	Beep   func()
	Logger pslog.Logger
}
