package main

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/jrepl/internal/evalproc"
	"pkt.systems/psi"
	"pkt.systems/pslog"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	args := applyArgv0Alias(os.Args)
	root := newRootCmd()
	root.SetArgs(args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		return exitCode(ctx, err)
	}
	return 0
}

// exitCode maps a command error to the process status. A System.exit in
// the evaluator child is passed through as is.
func exitCode(ctx context.Context, err error) int {
	var exitErr *evalproc.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Status
	}
	pslog.Ctx(ctx).With("err", err).Error("jrepl command failed")
	return 1
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jrepl",
		Short:         "Interactive Java REPL with console and SSH front-ends",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newReplCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newEvaluatorCmd())
	root.AddCommand(newEvaluatorMockCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// argv0Aliases maps installed binary names to the subcommand they run.
var argv0Aliases = map[string]string{
	"jrepl-evaluator-mock": "evaluator-mock",
	"jrepl-evaluator":      "evaluator",
	"jrepld":               "serve",
}

func argv0Alias(base string) string {
	return argv0Aliases[strings.TrimSuffix(base, ".exe")]
}

// applyArgv0Alias inserts the aliased subcommand after the program name.
func applyArgv0Alias(args []string) []string {
	if len(args) == 0 {
		return args
	}
	alias := argv0Alias(filepath.Base(args[0]))
	if alias == "" {
		return args
	}
	return slices.Insert(slices.Clone(args), 1, alias)
}
