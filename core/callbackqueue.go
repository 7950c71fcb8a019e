package core

import (
	"sync"

	"pkt.systems/jrepl/schema"
)

// CallbackQueue delivers callbacks to a handler in order on its own
// goroutine. Push never blocks, so transports may push from their reply
// readers while the handler calls back into the evaluator.
type CallbackQueue struct {
	handler CallbackHandler

	mu     sync.Mutex
	items  []schema.Callback
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

// NewCallbackQueue starts a queue delivering to handler.
func NewCallbackQueue(handler CallbackHandler) *CallbackQueue {
	q := &CallbackQueue{
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Push enqueues a callback. Callbacks pushed after Close are dropped.
func (q *CallbackQueue) Push(cb schema.Callback) {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, cb)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Close stops the queue after the pending callbacks are delivered.
func (q *CallbackQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the queue has stopped.
func (q *CallbackQueue) Done() <-chan struct{} {
	return q.done
}

func (q *CallbackQueue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		items := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()
		for _, cb := range items {
			if q.handler != nil {
				q.handler.Deliver(cb)
			}
		}
		if len(items) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}
