package evalproc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// DefaultRequestTimeout bounds a request/reply round trip.
const DefaultRequestTimeout = 10 * time.Second

// Config controls how the evaluator child process is invoked.
type Config struct {
	Binary         string
	Args           []string
	Env            []string
	RequestTimeout time.Duration
	Logger         pslog.Logger
}

// Evaluator implements core.Evaluator on top of a child process speaking
// the JSONL stdio protocol. A reset replaces the child. A child that exits
// after reporting System.exit is restarted and reports resetting and
// ready; any other exit is reported as exited.
type Evaluator struct {
	cfg   Config
	log   pslog.Logger
	spawn func(ctx context.Context, req core.ResetRequest) (*child, error)

	mu     sync.Mutex
	queue  *core.CallbackQueue
	child  *child
	req    core.ResetRequest
	closed bool
}

// New constructs a process evaluator.
func New(cfg Config) (*Evaluator, error) {
	if cfg.Binary == "" {
		return nil, errors.New("evaluator binary is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	e := &Evaluator{cfg: cfg, log: logger.With("evaluator", "process")}
	e.spawn = func(_ context.Context, req core.ResetRequest) (*child, error) {
		return spawnProcess(e.cfg, req)
	}
	return e, nil
}

// Start launches the first child.
func (e *Evaluator) Start(ctx context.Context, handler core.CallbackHandler, req core.ResetRequest) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return core.NewEvaluatorError(core.EvaluatorErrorUnavailable, "start", schema.ErrEvaluatorExited)
	}
	if e.child != nil {
		e.mu.Unlock()
		return errors.New("evaluator already started")
	}
	if e.queue == nil {
		e.queue = core.NewCallbackQueue(handler)
	}
	e.req = req
	e.mu.Unlock()
	c, err := e.spawn(ctx, req)
	if err != nil {
		e.log.Warn("evaluator start failed", "err", err)
		return err
	}
	e.log.Info("evaluator started", "child", c.String(), "working_dir", req.WorkingDir, "debug_port", req.DebugPort)
	return e.attach(c)
}

// attach makes c the current child and starts its readers.
func (e *Evaluator) attach(c *child) error {
	e.mu.Lock()
	if e.closed || e.child != nil {
		e.mu.Unlock()
		c.terminate()
		return core.NewEvaluatorError(core.EvaluatorErrorUnavailable, "start", schema.ErrEvaluatorExited)
	}
	e.child = c
	e.mu.Unlock()
	c.readers.Add(1)
	go e.readReplies(c)
	if c.stderr != nil {
		c.readers.Add(1)
		go e.readStderr(c)
	}
	go e.monitor(c)
	return nil
}

func (e *Evaluator) readReplies(c *child) {
	defer c.readers.Done()
	defer c.failPending()
	reader := newLineReader(c.out)
	for {
		msg, err := reader.Next()
		if err != nil {
			var decodeErr *lineDecodeError
			if errors.As(err, &decodeErr) {
				e.log.Warn("evaluator jsonl decode failed", "child", c.String(), "err", err)
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				e.log.Debug("evaluator stream closed", "child", c.String(), "err", err)
			}
			return
		}
		switch msg.Type {
		case TypeCallback:
			if msg.Callback == nil {
				continue
			}
			if msg.Callback.Kind == schema.CallbackSystemExit {
				c.systemExit.Store(true)
			}
			e.log.Trace("evaluator callback", "kind", msg.Callback.Kind, "interpreter", msg.Callback.Interpreter)
			e.queue.Push(*msg.Callback)
		case TypeReply:
			if !c.resolve(msg) {
				e.log.Debug("evaluator reply without request", "id", msg.ID)
			}
		default:
			e.log.Warn("evaluator message ignored", "type", msg.Type)
		}
	}
}

// readStderr forwards diagnostics the child writes outside the protocol.
func (e *Evaluator) readStderr(c *child) {
	defer c.readers.Done()
	scanner := bufio.NewScanner(c.stderr)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		e.queue.Push(schema.Callback{Kind: schema.CallbackStderr, Text: text + "\n"})
	}
}

func (e *Evaluator) monitor(c *child) {
	c.readers.Wait()
	c.status = c.wait()
	close(c.exited)
	e.childExited(c)
}

func (e *Evaluator) childExited(c *child) {
	e.mu.Lock()
	if e.child == c {
		e.child = nil
	}
	if e.closed || c.expected.Load() {
		e.mu.Unlock()
		e.log.Debug("evaluator child stopped", "child", c.String(), "status", c.status)
		return
	}
	req := e.req
	e.mu.Unlock()
	if !c.systemExit.Load() {
		e.log.Warn("evaluator exited", "child", c.String(), "status", c.status)
		e.queue.Push(schema.Callback{Kind: schema.CallbackExited, Status: c.status})
		return
	}
	e.log.Info("evaluator restarting after system exit", "status", c.status)
	e.queue.Push(schema.Callback{Kind: schema.CallbackResetting})
	next, err := e.spawn(context.Background(), req)
	if err == nil {
		err = e.attach(next)
	}
	if err != nil {
		e.log.Warn("evaluator restart failed", "err", err)
		e.queue.Push(schema.Callback{Kind: schema.CallbackResetFailed, Cause: err.Error()})
	}
}

// ResetInterpreter replaces the child. The new child reports ready.
func (e *Evaluator) ResetInterpreter(ctx context.Context, req core.ResetRequest) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return core.NewEvaluatorError(core.EvaluatorErrorUnavailable, "reset", schema.ErrEvaluatorExited)
	}
	e.req = req
	old := e.child
	e.child = nil
	e.mu.Unlock()
	if old != nil {
		old.terminate()
		select {
		case <-old.exited:
		case <-time.After(e.cfg.RequestTimeout):
			e.log.Warn("evaluator child did not stop", "child", old.String())
		case <-ctx.Done():
			return core.NewEvaluatorError(core.EvaluatorErrorCanceled, "reset", ctx.Err())
		}
	}
	c, err := e.spawn(ctx, req)
	if err != nil {
		e.log.Warn("evaluator reset failed", "err", err)
		return err
	}
	e.log.Info("evaluator reset", "child", c.String(), "debug_port", req.DebugPort)
	return e.attach(c)
}

func (e *Evaluator) current(op string) (*child, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.child == nil {
		return nil, core.NewEvaluatorError(core.EvaluatorErrorUnavailable, op, schema.ErrEvaluatorExited)
	}
	return e.child, nil
}

// call sends a request and waits for its reply.
func (e *Evaluator) call(ctx context.Context, op string, msg Message) (Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := e.current(op)
	if err != nil {
		return Message{}, err
	}
	id := c.nextID.Add(1)
	ch, ok := c.register(id)
	if !ok {
		return Message{}, core.NewEvaluatorError(core.EvaluatorErrorUnavailable, op, schema.ErrEvaluatorExited)
	}
	msg.Type = TypeRequest
	msg.ID = id
	msg.Op = op
	if err := c.writer.Write(msg); err != nil {
		c.unregister(id)
		return Message{}, core.NewEvaluatorError(core.EvaluatorErrorUnavailable, op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()
	select {
	case reply, ok := <-ch:
		if !ok {
			return Message{}, core.NewEvaluatorError(core.EvaluatorErrorUnavailable, op, schema.ErrEvaluatorExited)
		}
		if err := DecodeError(op, reply.Error); err != nil {
			return reply, err
		}
		return reply, nil
	case <-ctx.Done():
		c.unregister(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Message{}, core.NewEvaluatorError(core.EvaluatorErrorTimeout, op, ctx.Err())
		}
		return Message{}, core.NewEvaluatorError(core.EvaluatorErrorCanceled, op, ctx.Err())
	}
}

// Interpret dispatches source to the active interpreter.
func (e *Evaluator) Interpret(ctx context.Context, source string) error {
	_, err := e.call(ctx, OpInterpret, Message{Source: source})
	return err
}

// AddInterpreter creates a named interpreter in the child.
func (e *Evaluator) AddInterpreter(ctx context.Context, name schema.InterpreterName) error {
	_, err := e.call(ctx, OpAddInterpreter, Message{Interpreter: name})
	return err
}

// AddDebugInterpreter creates an interpreter bound to a suspended frame.
func (e *Evaluator) AddDebugInterpreter(ctx context.Context, name schema.InterpreterName, enclosingClass string) error {
	_, err := e.call(ctx, OpAddDebugInterpreter, Message{Interpreter: name, EnclosingClass: enclosingClass})
	return err
}

// RemoveInterpreter drops a named interpreter.
func (e *Evaluator) RemoveInterpreter(ctx context.Context, name schema.InterpreterName) error {
	_, err := e.call(ctx, OpRemoveInterpreter, Message{Interpreter: name})
	return err
}

// SetActiveInterpreter switches the interpreter used by Interpret.
func (e *Evaluator) SetActiveInterpreter(ctx context.Context, name schema.InterpreterName) (bool, error) {
	reply, err := e.call(ctx, OpSetActive, Message{Interpreter: name})
	if err != nil {
		return false, err
	}
	return reply.InProgress, nil
}

// AddClasspathEntry extends the child classpath.
func (e *Evaluator) AddClasspathEntry(ctx context.Context, entry schema.ClasspathEntry) error {
	_, err := e.call(ctx, OpAddClasspath, Message{Entry: &entry})
	return err
}

// VariableAsString prints a variable of the active interpreter.
func (e *Evaluator) VariableAsString(ctx context.Context, name string) (string, error) {
	reply, err := e.call(ctx, OpVariableAsString, Message{Name: name})
	if err != nil {
		return "", err
	}
	return reply.Value, nil
}

// VariableClassName returns the runtime class of a variable.
func (e *Evaluator) VariableClassName(ctx context.Context, name string) (string, error) {
	reply, err := e.call(ctx, OpVariableClassName, Message{Name: name})
	if err != nil {
		return "", err
	}
	return reply.Value, nil
}

// CheckExpression type-checks an expression without running it.
func (e *Evaluator) CheckExpression(ctx context.Context, expr string) error {
	_, err := e.call(ctx, OpCheckExpression, Message{Source: expr})
	return err
}

// FieldNames lists the declared fields of a loaded class.
func (e *Evaluator) FieldNames(ctx context.Context, className string) ([]string, error) {
	reply, err := e.call(ctx, OpFieldNames, Message{Name: className})
	if err != nil {
		return nil, err
	}
	return reply.Values, nil
}

// SetAllowAssertions toggles assertions.
func (e *Evaluator) SetAllowAssertions(ctx context.Context, allow bool) error {
	_, err := e.call(ctx, OpSetAllowAssertions, Message{Enabled: allow})
	return err
}

// SetPrivateAccessEnabled toggles private member access.
func (e *Evaluator) SetPrivateAccessEnabled(ctx context.Context, enabled bool) error {
	_, err := e.call(ctx, OpSetPrivateAccess, Message{Enabled: enabled})
	return err
}

// Abort interrupts the running interaction. Process children get SIGINT;
// others receive an abort request.
func (e *Evaluator) Abort(ctx context.Context) error {
	c, err := e.current(OpAbort)
	if err != nil {
		return err
	}
	if c.interrupt != nil {
		if err := c.interrupt(); err != nil {
			return core.NewEvaluatorError(core.EvaluatorErrorUnavailable, OpAbort, err)
		}
		return nil
	}
	_, err = e.call(ctx, OpAbort, Message{})
	return err
}

// Close stops the child and the callback queue.
func (e *Evaluator) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	c := e.child
	e.child = nil
	queue := e.queue
	e.mu.Unlock()
	if c != nil {
		c.expected.Store(true)
		_ = c.in.Close()
		select {
		case <-c.exited:
		case <-time.After(2 * time.Second):
			c.terminate()
			<-c.exited
		}
		e.log.Info("evaluator closed", "status", c.status)
	}
	queue.Close()
	return nil
}
