// Package jrepl composes the REPL front-end servers: one orchestrator per
// SSH session and, optionally, a gRPC evaluator daemon.
package jrepl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/command"
	"pkt.systems/jrepl/internal/evalgrpc"
	"pkt.systems/jrepl/internal/eventbus"
	"pkt.systems/jrepl/schema"
	"pkt.systems/jrepl/sshserver"
	"pkt.systems/pslog"
)

// Server composes the SSH and evaluator services.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	// Service is the template for every session; SessionID is set per session.
	Service             schema.ServiceConfig
	SSH                 sshserver.Config
	Evaluator           evalgrpc.Config
	DisableAuditLogging bool
}

// EvaluatorFactory builds the evaluator behind one session.
type EvaluatorFactory func(ctx context.Context, session schema.SessionID) (core.Evaluator, error)

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	NewEvaluator EvaluatorFactory
	// EventSink receives the events of every session next to the front-ends.
	EventSink core.EventSink
	// Backend is the evaluator hosted by the evaluator daemon.
	Backend core.Evaluator
	// SSHListener replaces listening on SSH.Addr when set.
	SSHListener net.Listener
	Logger      pslog.Logger
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableSSH       bool
	enableEvaluator bool
}

// WithSSH enables the SSH server.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// WithEvaluatorDaemon enables the gRPC evaluator daemon.
func WithEvaluatorDaemon() ServerOption {
	return func(o *serverOptions) { o.enableEvaluator = true }
}

// New constructs a composable jrepl server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableSSH && !options.enableEvaluator {
		return nil, errors.New("no services enabled")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	s := &compositeServer{
		cfg:      cfg,
		options:  options,
		sessions: newSessionRegistry(cfg.Service, deps.NewEvaluator, logger),
	}
	if options.enableSSH {
		if deps.NewEvaluator == nil {
			return nil, errors.New("evaluator factory is required for SSH")
		}
		normalized, err := schema.NormalizeServiceConfig(cfg.Service)
		if err != nil {
			return nil, err
		}
		s.sessions.template = normalized
		bus := eventbus.New(logger)
		sinks := []core.EventSink{bus, eventLog{log: logger}}
		if deps.EventSink != nil {
			sinks = append(sinks, deps.EventSink)
		}
		s.sessions.sink = eventFanout{sinks: sinks}
		s.sshSrv = &sshserver.Server{
			Config:   cfg.SSH,
			Listener: deps.SSHListener,
			Sessions: s.sessions,
			EventBus: bus,
			Commands: command.HandlerConfig{
				HistoryFile:         cfg.SSH.HistoryFile,
				DisableAuditLogging: cfg.DisableAuditLogging,
			},
		}
	}
	if options.enableEvaluator {
		if deps.Backend == nil {
			return nil, errors.New("evaluator backend is required for the evaluator daemon")
		}
		s.evalSrv = evalgrpc.NewServer(cfg.Evaluator, deps.Backend)
	}
	return s, nil
}

// service is one listener run by the compositor.
type service struct {
	name string
	run  func(ctx context.Context) error
}

type compositeServer struct {
	cfg      ServerConfig
	options  serverOptions
	sshSrv   *sshserver.Server
	evalSrv  *evalgrpc.Server
	sessions *sessionRegistry
	logger   pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	running sync.WaitGroup
	started bool
}

func (s *compositeServer) services() []service {
	var out []service
	if s.sshSrv != nil {
		out = append(out, service{name: "ssh", run: s.sshSrv.ListenAndServe})
	}
	if s.evalSrv != nil {
		out = append(out, service{name: "evaluator", run: s.evalSrv.ListenAndServe})
	}
	return out
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	services := s.services()
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, len(services))
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	s.logger.Info(
		"server start",
		"ssh", s.options.enableSSH,
		"evaluator", s.options.enableEvaluator,
		"ssh_addr", s.cfg.SSH.Addr,
		"evaluator_socket", s.cfg.Evaluator.SocketPath,
	)
	for _, svc := range services {
		s.running.Add(1)
		go func() {
			defer s.running.Done()
			if err := svc.run(s.ctx); err != nil {
				s.logger.Error("server component failed", "component", svc.name, "err", err)
				s.errCh <- fmt.Errorf("%s: %w", svc.name, err)
			}
		}()
	}
	return nil
}

// Wait blocks until the server is stopped or a component fails. A failing
// component stops the others.
func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx, errCh, started := s.ctx, s.errCh, s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		_ = s.Stop(context.Background())
		return err
	}
}

// Stop closes every session, cancels the listeners and waits for them to
// return or for ctx to end.
func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, started, log := s.cancel, s.started, s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log.Info("server stop requested")
	if n, err := s.sessions.CloseAll(context.WithoutCancel(ctx)); err != nil {
		log.Warn("server session close failed", "err", err)
	} else {
		log.Info("server session close ok", "sessions", n)
	}
	cancel()
	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		log.Info("server stopped")
		return nil
	}
}
