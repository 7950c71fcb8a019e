package jrepl

import (
	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnEvent(event schema.Event) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnEvent(event)
	}
}

// eventLog records lifecycle events. Output events are too frequent to log.
type eventLog struct {
	log pslog.Logger
}

func (l eventLog) OnEvent(event schema.Event) {
	if event.Type == schema.EventOutput {
		return
	}
	log := l.log.With("session", event.Session, "event", event.Type)
	switch event.Type {
	case schema.EventInterpreterResetFailed:
		log.Warn("session event", "cause", event.Cause)
	case schema.EventInterpreterExited:
		log.Info("session event", "status", event.Status)
	case schema.EventInteractionStarted, schema.EventInteractionEnded:
		log.Debug("session event", "interaction", event.Interaction, "interpreter", event.Interpreter)
	default:
		log.Debug("session event", "interpreter", event.Interpreter)
	}
}
