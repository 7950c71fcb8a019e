package core

import "pkt.systems/jrepl/schema"

// EventSink receives listener events from an orchestrator. Events are
// delivered without orchestrator locks held.
type EventSink interface {
	OnEvent(event schema.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(event schema.Event)

// OnEvent implements EventSink.
func (f EventSinkFunc) OnEvent(event schema.Event) {
	f(event)
}
