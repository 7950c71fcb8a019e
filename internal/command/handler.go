// Package command implements the slash commands front-ends offer next to
// Java input.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/logx"
	"pkt.systems/jrepl/internal/version"
	"pkt.systems/jrepl/schema"
)

// Session is the orchestrator surface the handler drives.
type Session interface {
	Session() schema.SessionID
	ResetEvaluator(ctx context.Context) error
	Abort(ctx context.Context) error
	LoadHistory(ctx context.Context, paths ...string) error
	LoadHistoryScript(paths ...string) (*core.HistoryScript, error)
	Script() *core.HistoryScript
	CloseScript()
	SaveHistory(path string) error
	HistoryEntries() []string
	Interpreters() []schema.Interpreter
	ActiveInterpreter() schema.Interpreter
	AddInterpreter(ctx context.Context, name string) error
	AddDebugInterpreter(ctx context.Context, name, enclosingClass string) error
	RemoveInterpreter(ctx context.Context, name string) error
	SetActiveInterpreter(ctx context.Context, name string) error
	AddClasspathEntry(ctx context.Context, entry schema.ClasspathEntry) error
	SetAllowAssertions(ctx context.Context, allow bool) error
	SetPrivateAccessEnabled(ctx context.Context, enabled bool) error
	DebugPort() (int, error)
	Notice(text string)
}

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	// HistoryFile is used by /save and /load without a path.
	HistoryFile         string
	DisableAuditLogging bool
}

// Handler routes slash commands to orchestrator operations.
type Handler struct {
	session Session
	cfg     HandlerConfig
}

// ErrQuit is returned for /quit and /exit; front-ends end the session.
var ErrQuit = errors.New("quit")

// NewHandler constructs a command handler.
func NewHandler(session Session, cfg HandlerConfig) *Handler {
	return &Handler{session: session, cfg: cfg}
}

// Handle inspects input and executes slash commands. It reports false when
// input is not a command and should be submitted as Java.
func (h *Handler) Handle(ctx context.Context, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return false, nil
	}
	log := logx.WithSession(ctx, h.session.Session())
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log = log.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	var err error
	switch cmd.Name {
	case "":
		log.Warn("command slash rejected", "reason", "empty")
		return true, fmt.Errorf("invalid command")
	case "help", "?":
		h.notice(helpLines()...)
	case "reset":
		err = h.session.ResetEvaluator(ctx)
	case "abort", "z":
		err = h.session.Abort(ctx)
	case "load":
		err = h.handleLoad(ctx, cmd)
	case "script":
		err = h.handleScript(cmd)
	case "next":
		err = h.stepScript(func(s *core.HistoryScript) error { return s.Next() })
	case "prev":
		err = h.stepScript(func(s *core.HistoryScript) error { return s.Previous() })
	case "run":
		err = h.stepScript(func(s *core.HistoryScript) error { return s.Execute(ctx) })
	case "save":
		err = h.handleSave(cmd)
	case "history":
		h.handleHistory()
	case "interpreter", "i":
		err = h.handleInterpreter(ctx, cmd)
	case "classpath", "cp":
		err = h.handleClasspath(ctx, cmd)
	case "assertions":
		err = h.toggle(cmd, "assertions", func(on bool) error { return h.session.SetAllowAssertions(ctx, on) })
	case "private":
		err = h.toggle(cmd, "private access", func(on bool) error { return h.session.SetPrivateAccessEnabled(ctx, on) })
	case "debugport":
		err = h.handleDebugPort()
	case "version":
		h.notice(version.Read().String())
	case "quit", "exit":
		return true, ErrQuit
	default:
		log.Warn("command slash rejected", "reason", "unknown")
		return true, fmt.Errorf("unknown command: /%s", cmd.Name)
	}
	if err != nil {
		log.Warn("command slash failed", "err", err)
		return true, err
	}
	log.Info("command slash completed")
	return true, nil
}

func (h *Handler) notice(lines ...string) {
	if len(lines) == 0 {
		return
	}
	h.session.Notice(strings.Join(lines, "\n") + "\n")
}

func (h *Handler) paths(cmd Command) ([]string, error) {
	if len(cmd.Args) > 0 {
		return cmd.Args, nil
	}
	if h.cfg.HistoryFile != "" {
		return []string{h.cfg.HistoryFile}, nil
	}
	return nil, fmt.Errorf("usage: /%s <file>...", cmd.Name)
}

func (h *Handler) handleLoad(ctx context.Context, cmd Command) error {
	paths, err := h.paths(cmd)
	if err != nil {
		return err
	}
	return h.session.LoadHistory(ctx, paths...)
}

func (h *Handler) handleScript(cmd Command) error {
	if len(cmd.Args) == 1 && strings.EqualFold(cmd.Args[0], "close") {
		h.session.CloseScript()
		h.notice("history script closed")
		return nil
	}
	if len(cmd.Args) == 0 {
		script := h.session.Script()
		if script == nil {
			return schema.ErrNoHistoryScript
		}
		h.notice(fmt.Sprintf("history script at %d of %d", script.Index()+1, script.Len()))
		return nil
	}
	script, err := h.session.LoadHistoryScript(cmd.Args...)
	if err != nil {
		return err
	}
	h.notice(fmt.Sprintf("history script loaded: %d interactions (/next, /prev, /run)", script.Len()))
	return nil
}

func (h *Handler) stepScript(step func(*core.HistoryScript) error) error {
	script := h.session.Script()
	if script == nil {
		return schema.ErrNoHistoryScript
	}
	return step(script)
}

func (h *Handler) handleSave(cmd Command) error {
	paths, err := h.paths(cmd)
	if err != nil {
		return err
	}
	if len(paths) != 1 {
		return fmt.Errorf("usage: /save [file]")
	}
	if err := h.session.SaveHistory(paths[0]); err != nil {
		return err
	}
	h.notice("history saved to " + paths[0])
	return nil
}

func (h *Handler) handleHistory() {
	entries := h.session.HistoryEntries()
	if len(entries) == 0 {
		h.notice("history is empty")
		return
	}
	lines := make([]string, 0, len(entries))
	for i, entry := range entries {
		lines = append(lines, fmt.Sprintf("%3d  %s", i+1, strings.ReplaceAll(entry, "\n", "\n     ")))
	}
	h.notice(lines...)
}

func (h *Handler) handleInterpreter(ctx context.Context, cmd Command) error {
	if len(cmd.Args) == 0 || cmd.Args[0] == "list" {
		h.notice(h.interpreterLines()...)
		return nil
	}
	sub, args := strings.ToLower(cmd.Args[0]), cmd.Args[1:]
	usage := fmt.Errorf("usage: /interpreter [list|add <name>|debug <name> <class>|rm <name>|use <name>|<name>]")
	switch sub {
	case "add":
		if len(args) != 1 {
			return usage
		}
		return h.session.AddInterpreter(ctx, args[0])
	case "debug":
		if len(args) != 2 {
			return usage
		}
		return h.session.AddDebugInterpreter(ctx, args[0], args[1])
	case "rm", "remove":
		if len(args) != 1 {
			return usage
		}
		return h.session.RemoveInterpreter(ctx, args[0])
	case "use":
		if len(args) != 1 {
			return usage
		}
		return h.session.SetActiveInterpreter(ctx, args[0])
	default:
		if len(args) != 0 {
			return usage
		}
		return h.session.SetActiveInterpreter(ctx, cmd.Args[0])
	}
}

func (h *Handler) interpreterLines() []string {
	interps := h.session.Interpreters()
	active := h.session.ActiveInterpreter().Name
	sort.Slice(interps, func(i, j int) bool { return interps[i].Name < interps[j].Name })
	lines := make([]string, 0, len(interps))
	for _, interp := range interps {
		marker := "  "
		if interp.Name == active {
			marker = "* "
		}
		line := marker + string(interp.Name)
		if interp.Debug {
			line += " (debug " + interp.EnclosingClass + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

func (h *Handler) handleClasspath(ctx context.Context, cmd Command) error {
	if len(cmd.Args) == 0 {
		return fmt.Errorf("usage: /classpath <url>...")
	}
	for _, url := range cmd.Args {
		entry := schema.ClasspathEntry{URL: url, Kind: schema.ClasspathExtra}
		if err := h.session.AddClasspathEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) toggle(cmd Command, what string, set func(bool) error) error {
	if len(cmd.Args) != 1 {
		return fmt.Errorf("usage: /%s on|off", cmd.Name)
	}
	on, err := parseSwitch(cmd.Args[0])
	if err != nil {
		return fmt.Errorf("usage: /%s on|off", cmd.Name)
	}
	if err := set(on); err != nil {
		return err
	}
	state := "disabled"
	if on {
		state = "enabled"
	}
	h.notice(what + " " + state)
	return nil
}

func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(value)
}

func (h *Handler) handleDebugPort() error {
	port, err := h.session.DebugPort()
	if err != nil {
		return err
	}
	h.notice(fmt.Sprintf("debug port %d", port))
	return nil
}

func helpLines() []string {
	return []string{
		"Commands",
		"  /reset                   reset the evaluator",
		"  /abort, /z               interrupt the running interaction",
		"  /load [file]...          replay history files as one interaction",
		"  /script <file>...        load history files for stepping",
		"  /script [close]          show or close the loaded script",
		"  /next, /prev, /run       step through and run the loaded script",
		"  /save [file]             save history",
		"  /history                 list history entries",
		"  /interpreter [...]       list, add, debug, rm or use interpreters",
		"  /classpath <url>...      add classpath entries",
		"  /assertions on|off       toggle assert statements",
		"  /private on|off          toggle private member access",
		"  /debugport               show the debugger port",
		"  /version                 show version information",
		"  /quit, /exit             end the session",
		"Java commands: java Foo a b c",
	}
}
