package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"pkt.systems/jrepl"
	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/appconfig"
	"pkt.systems/jrepl/internal/evalgrpc"
	"pkt.systems/jrepl/internal/evalmock"
	"pkt.systems/jrepl/internal/evalproc"
	"pkt.systems/pslog"
)

func newEvaluatorCmd() *cobra.Command {
	var cfgPath string
	var socketPath string
	var backendMode string
	cmd := &cobra.Command{
		Use:   "evaluator",
		Short: "Host an evaluator behind a gRPC unix socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if socketPath != "" {
				cfg.Evaluator.SocketPath = socketPath
			}
			backend, err := daemonBackend(cfg.Evaluator, backendMode, logger)
			if err != nil {
				return err
			}
			logger.Info("evaluator backend selected", "backend", backendMode, "socket", cfg.Evaluator.SocketPath)
			serverCfg := jrepl.ServerConfig{
				Evaluator: evalgrpc.Config{SocketPath: cfg.Evaluator.SocketPath, RequestTimeout: cfg.Evaluator.RequestTimeout()},
			}
			server, err := jrepl.New(serverCfg, jrepl.ServerDeps{Backend: backend, Logger: logger}, jrepl.WithEvaluatorDaemon())
			if err != nil {
				_ = backend.Close()
				return err
			}
			return runServer(cmd.Context(), server, logger)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&socketPath, "socket", "", "override the evaluator socket path")
	cmd.Flags().StringVar(&backendMode, "backend", appconfig.EvaluatorProcess, "hosted evaluator: process or mock")
	return cmd
}

// daemonBackend builds the evaluator hosted by the daemon. The grpc mode
// would point the daemon at itself and is rejected.
func daemonBackend(cfg appconfig.EvaluatorConfig, mode string, logger pslog.Logger) (core.Evaluator, error) {
	switch mode {
	case appconfig.EvaluatorMock:
		return evalmock.New(evalmock.Options{RestartOnExit: true, Logger: logger}), nil
	case appconfig.EvaluatorProcess:
		procCfg, err := processConfig(cfg)
		if err != nil {
			return nil, err
		}
		procCfg.Logger = logger
		return evalproc.New(procCfg)
	default:
		return nil, &unsupportedBackendError{mode: mode}
	}
}

type unsupportedBackendError struct {
	mode string
}

func (e *unsupportedBackendError) Error() string {
	return "unsupported evaluator backend " + strconv.Quote(e.mode)
}

func newEvaluatorMockCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "evaluator-mock",
		Short:  "Run the goja mock evaluator over stdin/stdout",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx).With("role", "evaluator-child")
			backend := evalmock.New(evalmock.Options{Logger: logger})
			req := core.ResetRequest{}
			if wd, err := os.Getwd(); err == nil {
				req.WorkingDir = wd
			}
			if port, err := strconv.Atoi(os.Getenv(evalproc.DebugPortEnv)); err == nil {
				req.DebugPort = port
			}

			// SIGINT from the supervisor interrupts evaluation only; the
			// child lives until its stdin closes.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, unix.SIGINT)
			defer signal.Stop(sigCh)
			ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			defer cancel()
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-sigCh:
						if err := backend.Abort(ctx); err != nil {
							logger.Debug("evaluator abort ignored", "err", err)
						}
					}
				}
			}()
			return evalproc.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), backend, req)
		},
	}
}
