package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/appconfig"
	"pkt.systems/jrepl/internal/command"
	"pkt.systems/jrepl/internal/format"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

const consoleSession schema.SessionID = "local"

func newReplCmd() *cobra.Command {
	var cfgPath string
	var mode string
	var theme string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive console REPL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Evaluator.Mode = mode
			}
			if theme != "" {
				cfg.Theme = theme
			}
			logger := pslog.Ctx(cmd.Context())
			if !verbose {
				logger = quietLogger()
			}
			// Ctrl-C interrupts evaluation; only SIGTERM and SIGHUP end the console.
			ctx, stop := signal.NotifyContext(context.WithoutCancel(cmd.Context()), syscall.SIGTERM, syscall.SIGHUP)
			defer stop()
			ctx = pslog.ContextWithLogger(ctx, logger)
			return runConsole(ctx, cfg, os.Stdout)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&mode, "evaluator", "", "override the evaluator mode (process, mock, grpc)")
	cmd.Flags().StringVar(&theme, "theme", "", "override the color theme")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at the LOG_LEVEL from the environment")
	return cmd
}

// quietLogger keeps lifecycle logging off the console unless LOG_LEVEL
// asks for it.
func quietLogger() pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.ErrorLevel}),
	)
}

func runConsole(ctx context.Context, cfg appconfig.Config, out io.Writer) error {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetMultiLineMode(true)

	c, err := newConsole(ctx, cfg, out, ln, consoleRenderer(cfg.Theme, out))
	if err != nil {
		return err
	}
	defer c.close(ctx)
	return c.run(ctx)
}

// newConsole starts the session orchestrator and seeds the editor history
// from the persisted session.
func newConsole(ctx context.Context, cfg appconfig.Config, out io.Writer, line lineReader, renderer format.Renderer) (*console, error) {
	factory, err := evaluatorFactory(cfg.Evaluator)
	if err != nil {
		return nil, err
	}
	evaluator, err := factory(ctx, consoleSession)
	if err != nil {
		return nil, err
	}
	events := make(chan schema.Event, 64)
	orch, err := core.NewOrchestrator(cfg.ServiceConfigFor(consoleSession), core.ServiceDeps{
		Evaluator: evaluator,
		EventSink: core.EventSinkFunc(func(ev schema.Event) {
			select {
			case events <- ev:
			default:
			}
		}),
		Beep:   func() { _, _ = io.WriteString(out, "\a") },
		Logger: pslog.Ctx(ctx),
	})
	if err != nil {
		_ = evaluator.Close()
		return nil, err
	}
	if err := orch.Start(ctx); err != nil {
		_ = orch.Close()
		return nil, err
	}
	for _, entry := range orch.HistoryEntries() {
		line.AppendHistory(flattenEntry(entry))
	}
	return &console{
		orch:    orch,
		handler: command.NewHandler(orch, command.HandlerConfig{HistoryFile: cfg.Service.HistoryFile}),
		printer: &transcriptPrinter{renderer: renderer},
		out:     out,
		events:  events,
		line:    line,
	}, nil
}

func consoleRenderer(theme string, out io.Writer) format.Renderer {
	name, ok := schema.NormalizeThemeName(theme)
	if !ok {
		name = schema.DefaultTheme
	}
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) || !liner.TerminalSupported() {
		return format.PlainRenderer{}
	}
	return format.ForTheme(name, format.NewTermRenderer(out, os.Getenv("TERM"), name))
}

// lineReader is the part of liner the console uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	PromptWithSuggestion(prompt, text string, pos int) (string, error)
	AppendHistory(item string)
}

// console drives one orchestrator from a line editor. Transcript output is
// printed between prompts; the editor owns the terminal while reading.
type console struct {
	orch    *core.Orchestrator
	handler *command.Handler
	printer *transcriptPrinter
	out     io.Writer
	events  <-chan schema.Event
	line    lineReader
}

func (c *console) close(ctx context.Context) {
	if err := c.orch.Close(); err != nil {
		pslog.Ctx(ctx).Warn("console close failed", "err", err)
	}
}

func (c *console) run(ctx context.Context) error {
	c.waitIdle(ctx)
	var buf string
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		prompt := c.orch.Transcript().Prompt()
		var line string
		var err error
		switch {
		case buf != "":
			line, err = c.line.Prompt(continuationPrompt(prompt))
		case c.orch.CurrentInput() != "":
			line, err = c.line.PromptWithSuggestion(prompt, c.orch.CurrentInput(), -1)
		default:
			line, err = c.line.Prompt(prompt)
		}
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			buf = ""
			c.orch.SetCurrentInput("")
			continue
		case errors.Is(err, io.EOF):
			_, _ = fmt.Fprintln(c.out)
			return nil
		case err != nil:
			return err
		}

		if buf == "" {
			if _, ok := command.Parse(line); ok {
				c.orch.SetCurrentInput("")
				if quit := c.command(ctx, line); quit {
					return nil
				}
				c.waitIdle(ctx)
				continue
			}
			buf = line
		} else {
			buf += "\n" + line
		}

		if !c.submit(ctx, buf) {
			continue
		}
		if strings.TrimSpace(buf) != "" {
			c.line.AppendHistory(flattenEntry(buf))
		}
		buf = ""
		c.waitIdle(ctx)
	}
}

// command runs a slash command and reports whether the console should end.
func (c *console) command(ctx context.Context, line string) bool {
	_, err := c.handler.Handle(ctx, line)
	if errors.Is(err, command.ErrQuit) {
		return true
	}
	if err != nil {
		c.orch.NoticeError(fmt.Sprintf("error: %v\n", err))
	}
	return false
}

// submit hands input to the orchestrator. It reports false when the input
// is incomplete and more lines are needed.
func (c *console) submit(ctx context.Context, input string) bool {
	if c.orch.Busy() {
		c.orch.NoticeError("busy: wait for the current interaction or use /abort\n")
		return true
	}
	tr := c.orch.Transcript()
	c.orch.SetCurrentInput(input)
	before := tr.Len()
	err := c.orch.SubmitCurrentInput(ctx)
	switch {
	case errors.Is(err, schema.ErrInteractionInProgress):
		c.orch.NoticeError("busy: wait for the current interaction or use /abort\n")
		return true
	case err != nil:
		pslog.Ctx(ctx).Warn("console submit failed", "err", err)
	}
	if strings.TrimSpace(input) != "" && c.orch.CurrentInput() == input {
		return false
	}
	// The editor already echoed the input and its newline.
	c.printer.skipTo(before + 1)
	return true
}

// waitIdle prints transcript output until the orchestrator accepts input
// again. SIGINT aborts the running interaction.
func (c *console) waitIdle(ctx context.Context) {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.printer.flush(c.orch.Transcript(), c.out)
		if c.orch.State() == core.StateIdle {
			return
		}
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			if ev.Type == schema.EventInterpreterReady {
				c.printer.skipTo(0)
			}
		case <-interrupts:
			if err := c.orch.Abort(ctx); err != nil {
				c.orch.NoticeError(fmt.Sprintf("error: %v\n", err))
			}
		case <-ticker.C:
		}
	}
}

// transcriptPrinter writes the transcript as it grows. While idle the
// trailing prompt and input are left to the line editor.
type transcriptPrinter struct {
	renderer format.Renderer
	shown    int
}

func (p *transcriptPrinter) skipTo(offset int) {
	p.shown = offset
}

func (p *transcriptPrinter) flush(tr *core.Transcript, w io.Writer) {
	end := tr.Len()
	if !tr.InProgress() {
		end = tr.PromptPos() - len([]rune(tr.Prompt()))
	}
	if end < p.shown {
		// The transcript was reset under us.
		p.shown = 0
	}
	if end <= p.shown {
		return
	}
	segs := format.Clip(tr.Segments(), p.shown, end)
	p.shown = end
	_, _ = io.WriteString(w, p.renderer.Render(segs))
}

func continuationPrompt(prompt string) string {
	n := len([]rune(prompt))
	if n < 2 {
		return "| "
	}
	return strings.Repeat(".", n-1) + " "
}

// flattenEntry turns a multi-line interaction into one editor history line.
func flattenEntry(entry string) string {
	return strings.ReplaceAll(strings.TrimSpace(entry), "\n", " ")
}
