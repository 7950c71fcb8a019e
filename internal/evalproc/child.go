package evalproc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sys/unix"

	"pkt.systems/jrepl/core"
)

// DebugPortEnv names the environment variable carrying the debug port to
// the evaluator child.
const DebugPortEnv = "JREPL_DEBUG_PORT"

// child is one running evaluator. Requests are matched to replies by id.
type child struct {
	pid       int
	in        io.WriteCloser
	writer    *lineWriter
	out       io.Reader
	stderr    io.Reader
	wait      func() int
	interrupt func() error
	kill      func() error

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan Message
	gone    bool

	expected   atomic.Bool
	systemExit atomic.Bool
	readers    sync.WaitGroup
	exited     chan struct{}
	status     int
}

func newChild(in io.WriteCloser, out, stderr io.Reader, wait func() int, interrupt, kill func() error) *child {
	return &child{
		in:        in,
		writer:    newLineWriter(in),
		out:       out,
		stderr:    stderr,
		wait:      wait,
		interrupt: interrupt,
		kill:      kill,
		pending:   make(map[uint64]chan Message),
		exited:    make(chan struct{}),
	}
}

func (c *child) register(id uint64) (chan Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gone {
		return nil, false
	}
	ch := make(chan Message, 1)
	c.pending[id] = ch
	return ch, true
}

func (c *child) unregister(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *child) resolve(msg Message) bool {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
	return ok
}

// failPending closes every outstanding reply channel.
func (c *child) failPending() {
	c.mu.Lock()
	c.gone = true
	pending := c.pending
	c.pending = make(map[uint64]chan Message)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

func (c *child) terminate() {
	c.expected.Store(true)
	if c.kill != nil {
		_ = c.kill()
	}
}

// spawnProcess starts the evaluator binary in its own process group.
func spawnProcess(cfg Config, req core.ResetRequest) (*child, error) {
	if cfg.Binary == "" {
		return nil, core.NewEvaluatorError(core.EvaluatorErrorStart, "start", errors.New("evaluator binary is required"))
	}
	cmd := exec.Command(cfg.Binary, cfg.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	cmd.Env = append(os.Environ(), cfg.Env...)
	if req.DebugPort > 0 {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%d", DebugPortEnv, req.DebugPort))
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, core.NewEvaluatorError(core.EvaluatorErrorStart, "stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, core.NewEvaluatorError(core.EvaluatorErrorStart, "stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, core.NewEvaluatorError(core.EvaluatorErrorStart, "stderr", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, core.NewEvaluatorError(core.EvaluatorErrorStart, "start", err)
	}
	pid := cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		pgid = pid
	}
	signal := func(sig unix.Signal) error {
		if err := unix.Kill(-pgid, sig); err == nil {
			return nil
		}
		return unix.Kill(pid, sig)
	}
	c := newChild(stdin, stdout, stderr,
		func() int { return exitStatus(cmd.Wait()) },
		func() error { return signal(unix.SIGINT) },
		func() error { return signal(unix.SIGKILL) },
	)
	c.pid = pid
	return c, nil
}

// exitStatus maps a Wait error to a shell-style exit status.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return -1
}

func (c *child) String() string {
	if c.pid > 0 {
		return strconv.Itoa(c.pid)
	}
	return "in-process"
}
