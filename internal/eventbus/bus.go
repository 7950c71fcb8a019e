package eventbus

import (
	"context"
	"sync"

	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

const defaultDepth = 256

// Bus fans orchestrator events out to the front-ends attached to each
// session. It implements core.EventSink.
//
// Publishing never blocks. When a subscriber queue is full, output events
// (pure redraw hints) are dropped, while lifecycle events evict the oldest
// queued event so that a slow front-end still learns that an interaction
// ended or the interpreter came back.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.SessionID][]*subscriber
	log   pslog.Logger
	depth int
}

type subscriber struct {
	ch      chan schema.Event
	dropped int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.SessionID][]*subscriber),
		log:   logger,
		depth: defaultDepth,
	}
}

// Subscribe attaches a front-end to session. The returned cancel function
// detaches it and closes the channel; calling it again is a no-op.
func (b *Bus) Subscribe(session schema.SessionID) (<-chan schema.Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	sub := &subscriber{ch: make(chan schema.Event, b.depth)}
	b.mu.Lock()
	b.subs[session] = append(b.subs[session], sub)
	count := len(b.subs[session])
	b.mu.Unlock()
	log := b.log.With("session", session)
	log.Debug("eventbus subscribe", "subs", count)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			b.remove(session, sub)
			dropped := sub.dropped
			close(sub.ch)
			b.mu.Unlock()
			log.Debug("eventbus unsubscribe", "dropped", dropped)
		})
	}
}

// Subscribers returns the number of front-ends attached to session.
func (b *Bus) Subscribers(session schema.SessionID) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[session])
}

func (b *Bus) remove(session schema.SessionID, target *subscriber) {
	subs := b.subs[session]
	for i, sub := range subs {
		if sub == target {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, session)
		return
	}
	b.subs[session] = subs
}

// OnEvent publishes event to the subscribers of its session.
func (b *Bus) OnEvent(event schema.Event) {
	if b == nil {
		return
	}
	dropped := 0
	b.mu.Lock()
	for _, sub := range b.subs[event.Session] {
		if !sub.offer(event) {
			sub.dropped++
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("session", event.Session).Trace("eventbus dropped", "count", dropped, "type", event.Type)
	}
}

// offer queues event and reports whether nothing was lost.
func (s *subscriber) offer(event schema.Event) bool {
	select {
	case s.ch <- event:
		return true
	default:
	}
	if event.Type == schema.EventOutput {
		return false
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- event:
	default:
	}
	return false
}
