package jrepl

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// sessionRegistry opens one orchestrator per front-end session and closes
// whatever is still open on shutdown. It implements sshserver.SessionOpener.
type sessionRegistry struct {
	template     schema.ServiceConfig
	newEvaluator EvaluatorFactory
	sink         core.EventSink
	logger       pslog.Logger

	mu   sync.Mutex
	open map[*core.Orchestrator]struct{}
}

func newSessionRegistry(template schema.ServiceConfig, factory EvaluatorFactory, logger pslog.Logger) *sessionRegistry {
	return &sessionRegistry{
		template:     template,
		newEvaluator: factory,
		logger:       logger,
		open:         make(map[*core.Orchestrator]struct{}),
	}
}

func (r *sessionRegistry) OpenSession(ctx context.Context, id schema.SessionID, beep func()) (*core.Orchestrator, error) {
	if r.newEvaluator == nil {
		return nil, schema.ErrEvaluatorUnavailable
	}
	evaluator, err := r.newEvaluator(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg := r.template
	cfg.SessionID = id
	cfg.Classpath = append([]schema.ClasspathEntry(nil), r.template.Classpath...)
	o, err := core.NewOrchestrator(cfg, core.ServiceDeps{
		Evaluator: evaluator,
		EventSink: r.sink,
		Beep:      beep,
		Logger:    r.logger,
	})
	if err != nil {
		_ = evaluator.Close()
		return nil, err
	}
	if err := o.Start(ctx); err != nil {
		_ = o.Close()
		return nil, err
	}
	r.mu.Lock()
	r.open[o] = struct{}{}
	count := len(r.open)
	r.mu.Unlock()
	r.logger.Info("session opened", "session", id, "open", count)
	return o, nil
}

func (r *sessionRegistry) CloseSession(_ context.Context, o *core.Orchestrator) error {
	r.mu.Lock()
	_, ok := r.open[o]
	delete(r.open, o)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	r.logger.Info("session closed", "session", o.Session())
	return o.Close()
}

// CloseAll closes every open session and returns how many were closed.
func (r *sessionRegistry) CloseAll(ctx context.Context) (int, error) {
	r.mu.Lock()
	open := make([]*core.Orchestrator, 0, len(r.open))
	for o := range r.open {
		open = append(open, o)
	}
	r.mu.Unlock()
	var errs []error
	for _, o := range open {
		if err := r.CloseSession(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return len(open), errors.Join(errs...)
}
