package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"pkt.systems/jrepl"
	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/appconfig"
	"pkt.systems/jrepl/internal/evalgrpc"
	"pkt.systems/jrepl/internal/evalmock"
	"pkt.systems/jrepl/internal/evalproc"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// evaluatorFactory returns the per-session evaluator constructor for the
// configured mode.
func evaluatorFactory(cfg appconfig.EvaluatorConfig) (jrepl.EvaluatorFactory, error) {
	switch cfg.Mode {
	case appconfig.EvaluatorMock:
		return func(ctx context.Context, session schema.SessionID) (core.Evaluator, error) {
			return evalmock.New(evalmock.Options{
				RestartOnExit: true,
				Logger:        pslog.Ctx(ctx).With("session", session),
			}), nil
		}, nil
	case appconfig.EvaluatorProcess:
		procCfg, err := processConfig(cfg)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, session schema.SessionID) (core.Evaluator, error) {
			c := procCfg
			c.Logger = pslog.Ctx(ctx).With("session", session)
			return evalproc.New(c)
		}, nil
	case appconfig.EvaluatorGRPC:
		grpcCfg := evalgrpc.Config{SocketPath: cfg.SocketPath, RequestTimeout: cfg.RequestTimeout()}
		return func(ctx context.Context, _ schema.SessionID) (core.Evaluator, error) {
			return evalgrpc.Dial(ctx, grpcCfg)
		}, nil
	default:
		return nil, fmt.Errorf("unknown evaluator mode %q", cfg.Mode)
	}
}

// processConfig builds the child process settings. Without a configured
// binary the child is this executable running evaluator-mock.
func processConfig(cfg appconfig.EvaluatorConfig) (evalproc.Config, error) {
	binary := cfg.Binary
	args := append([]string(nil), cfg.Args...)
	if binary == "" {
		self, err := os.Executable()
		if err != nil {
			return evalproc.Config{}, fmt.Errorf("locate evaluator binary: %w", err)
		}
		binary = self
		if len(args) == 0 {
			args = []string{"evaluator-mock"}
		}
	}
	return evalproc.Config{
		Binary:         binary,
		Args:           args,
		Env:            envList(cfg.Env),
		RequestTimeout: cfg.RequestTimeout(),
	}, nil
}

// envList renders env in a stable KEY=value order.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
