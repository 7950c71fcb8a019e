package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/jrepl"
	"pkt.systems/jrepl/internal/appconfig"
	"pkt.systems/jrepl/schema"
	"pkt.systems/jrepl/sshserver"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var disableAuditTrails bool
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a REPL per SSH session",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.SSH.Addr = addr
			}
			factory, err := evaluatorFactory(cfg.Evaluator)
			if err != nil {
				return err
			}
			logger.Info("evaluator selected", "evaluator", describeEvaluator(cfg.Evaluator))

			serverCfg := jrepl.ServerConfig{
				Service:             cfg.ServiceConfigFor(""),
				SSH:                 toSSHConfig(cfg),
				DisableAuditLogging: disableAuditTrails,
			}
			server, err := jrepl.New(serverCfg, jrepl.ServerDeps{NewEvaluator: factory, Logger: logger}, jrepl.WithSSH())
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), server, logger)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable audit trail logging for slash commands")
	cmd.Flags().StringVar(&addr, "addr", "", "override the SSH listen address")
	return cmd
}

// runServer starts server and blocks until it stops or a signal arrives.
func runServer(ctx context.Context, server jrepl.Server, logger pslog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Stop(stopCtx); err != nil {
			logger.Warn("server stop failed", "err", err)
		}
	}()
	if err := server.Start(ctx); err != nil {
		return err
	}
	return server.Wait()
}

func toSSHConfig(cfg appconfig.Config) sshserver.Config {
	theme, ok := schema.NormalizeThemeName(cfg.Theme)
	if !ok {
		theme = schema.DefaultTheme
	}
	return sshserver.Config{
		Addr:               cfg.SSH.Addr,
		HostKeyPath:        cfg.SSH.HostKeyPath,
		AuthorizedKeysPath: cfg.SSH.AuthorizedKeysPath,
		IdleTimeout:        time.Duration(cfg.SSH.IdleTimeoutMinutes) * time.Minute,
		Theme:              theme,
		HistoryFile:        cfg.Service.HistoryFile,
	}
}

func describeEvaluator(cfg appconfig.EvaluatorConfig) string {
	switch cfg.Mode {
	case appconfig.EvaluatorGRPC:
		return fmt.Sprintf("%s (%s)", cfg.Mode, cfg.SocketPath)
	case appconfig.EvaluatorProcess:
		if cfg.Binary == "" {
			return cfg.Mode + " (evaluator-mock)"
		}
		return fmt.Sprintf("%s (%s)", cfg.Mode, cfg.Binary)
	default:
		return cfg.Mode
	}
}
