// Package evalmock is an evaluator backend that runs JavaScript with a few
// Java-flavoured shims (System.out, System.err, System.exit, typed local
// declarations, common exception classes). It stands in for a JVM in tests
// and demos.
package evalmock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// Options configures the mock evaluator.
type Options struct {
	// RestartOnExit makes System.exit report resetting and ready itself,
	// as an in-process evaluator must. A child process leaves that to its
	// supervisor.
	RestartOnExit bool
	Logger        pslog.Logger
}

type exitRequest struct {
	status int
}

const abortMessage = "Interrupted"

type interpreter struct {
	name           schema.InterpreterName
	enclosingClass string
	vm             *goja.Runtime
	busy           bool
}

// Evaluator implements core.Evaluator on goja.
type Evaluator struct {
	opts Options
	log  pslog.Logger

	mu              sync.Mutex
	queue           *core.CallbackQueue
	interps         map[schema.InterpreterName]*interpreter
	active          schema.InterpreterName
	req             core.ResetRequest
	classpath       []schema.ClasspathEntry
	privateAccess   bool
	generation      uint64
	allowAssertions atomic.Bool
}

// New constructs a mock evaluator.
func New(opts Options) *Evaluator {
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Evaluator{opts: opts, log: logger.With("evaluator", "mock")}
}

// Start creates the default interpreter and reports ready.
func (e *Evaluator) Start(_ context.Context, handler core.CallbackHandler, req core.ResetRequest) error {
	e.mu.Lock()
	if e.queue != nil {
		e.mu.Unlock()
		return errors.New("evaluator already started")
	}
	e.queue = core.NewCallbackQueue(handler)
	e.req = req
	e.resetLocked()
	e.mu.Unlock()
	e.log.Info("mock evaluator started", "working_dir", req.WorkingDir, "debug_port", req.DebugPort)
	e.queue.Push(schema.Callback{Kind: schema.CallbackReady})
	return nil
}

func (e *Evaluator) resetLocked() {
	for _, it := range e.interps {
		it.vm.Interrupt(abortMessage)
	}
	e.generation++
	e.interps = make(map[schema.InterpreterName]*interpreter)
	e.active = schema.DefaultInterpreter
	e.interps[schema.DefaultInterpreter] = e.newInterpreter(schema.DefaultInterpreter, "")
}

func (e *Evaluator) newInterpreter(name schema.InterpreterName, enclosingClass string) *interpreter {
	vm := goja.New()
	it := &interpreter{name: name, enclosingClass: enclosingClass, vm: vm}
	if err := e.installShims(vm); err != nil {
		e.log.Warn("mock evaluator shims failed", "interpreter", name, "err", err)
	}
	return it
}

func (e *Evaluator) installShims(vm *goja.Runtime) error {
	printer := func(kind schema.CallbackKind, newline bool) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = formatPlain(arg)
			}
			text := strings.Join(args, " ")
			if newline {
				text += "\n"
			}
			e.queue.Push(schema.Callback{Kind: kind, Text: text})
			return goja.Undefined()
		}
	}
	stream := func(kind schema.CallbackKind) (*goja.Object, error) {
		obj := vm.NewObject()
		if err := obj.Set("println", printer(kind, true)); err != nil {
			return nil, err
		}
		if err := obj.Set("print", printer(kind, false)); err != nil {
			return nil, err
		}
		return obj, nil
	}
	out, err := stream(schema.CallbackStdout)
	if err != nil {
		return err
	}
	errStream, err := stream(schema.CallbackStderr)
	if err != nil {
		return err
	}
	system := vm.NewObject()
	if err := system.Set("out", out); err != nil {
		return err
	}
	if err := system.Set("err", errStream); err != nil {
		return err
	}
	exit := func(call goja.FunctionCall) goja.Value {
		vm.Interrupt(exitRequest{status: int(call.Argument(0).ToInteger())})
		return goja.Undefined()
	}
	if err := system.Set("exit", exit); err != nil {
		return err
	}
	if err := vm.Set("System", system); err != nil {
		return err
	}
	assert := func(call goja.FunctionCall) goja.Value {
		if e.allowAssertions.Load() && !call.Argument(0).ToBoolean() {
			obj, err := vm.New(vm.Get("AssertionError"), call.Argument(1))
			if err != nil {
				panic(vm.NewGoError(errors.New("assertion failed")))
			}
			panic(obj)
		}
		return goja.Undefined()
	}
	if err := vm.Set("assert", assert); err != nil {
		return err
	}
	_, err = vm.RunString(prelude)
	return err
}

// ResetInterpreter discards all interpreters and reports ready.
func (e *Evaluator) ResetInterpreter(_ context.Context, req core.ResetRequest) error {
	e.mu.Lock()
	if e.queue == nil {
		e.mu.Unlock()
		return core.NewEvaluatorError(core.EvaluatorErrorUnavailable, "reset", errors.New("evaluator not started"))
	}
	e.req = req
	e.resetLocked()
	e.mu.Unlock()
	e.log.Info("mock evaluator reset", "debug_port", req.DebugPort)
	e.queue.Push(schema.Callback{Kind: schema.CallbackReady})
	return nil
}

// Interpret runs source on the active interpreter in the background.
func (e *Evaluator) Interpret(_ context.Context, source string) error {
	e.mu.Lock()
	it, err := e.interpreterLocked(e.active)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if it.busy {
		e.mu.Unlock()
		return schema.ErrInterpreterBusy
	}
	it.busy = true
	generation := e.generation
	e.mu.Unlock()
	go e.run(it, generation, source)
	return nil
}

func (e *Evaluator) run(it *interpreter, generation uint64, source string) {
	var val goja.Value
	translated := translate(source)
	prog, err := compile(translated)
	if err == nil {
		val, err = it.vm.RunProgram(prog)
	}
	it.vm.ClearInterrupt()
	e.mu.Lock()
	it.busy = false
	stale := generation != e.generation
	e.mu.Unlock()
	if stale {
		return
	}
	cb := e.outcome(source, translated, val, err)
	cb.Interpreter = it.name
	e.log.Trace("mock evaluator outcome", "interpreter", it.name, "kind", cb.Kind)
	e.queue.Push(cb)
	if cb.Kind == schema.CallbackSystemExit && e.opts.RestartOnExit {
		e.mu.Lock()
		e.resetLocked()
		e.mu.Unlock()
		e.queue.Push(schema.Callback{Kind: schema.CallbackResetting})
		e.queue.Push(schema.Callback{Kind: schema.CallbackReady})
	}
}

func (e *Evaluator) outcome(source, translated string, val goja.Value, err error) schema.Callback {
	var interrupted *goja.InterruptedError
	var exception *goja.Exception
	if err == nil {
		return resultCallback(val)
	}
	if pos, ok := errorPosition(err); ok {
		return schema.Callback{
			Kind:    schema.CallbackSyntaxError,
			Message: syntaxMessage(err),
			Span:    pointSpan(source, translated, pos),
		}
	}
	switch {
	case errors.As(err, &interrupted):
		if exit, ok := interrupted.Value().(exitRequest); ok {
			return schema.Callback{Kind: schema.CallbackSystemExit, Status: exit.status}
		}
		cb := schema.Callback{Kind: schema.CallbackInterrupted, Message: abortMessage}
		if pos, ok := runningPosition(interrupted.Stack()); ok {
			cb.Span = lineSpan(source, pos)
		}
		return cb
	case errors.As(err, &exception):
		return exceptionCallback(exception)
	default:
		return schema.Callback{Kind: schema.CallbackException, ClassName: "java.lang.Error", Message: err.Error()}
	}
}

func resultCallback(val goja.Value) schema.Callback {
	if val == nil || goja.IsUndefined(val) {
		return schema.Callback{Kind: schema.CallbackVoid}
	}
	if goja.IsNull(val) {
		return schema.Callback{Kind: schema.CallbackResult, Text: "null", Style: schema.StyleObjectReturn}
	}
	switch v := val.Export().(type) {
	case string:
		return schema.Callback{Kind: schema.CallbackResult, Text: strconv.Quote(v), Style: schema.StyleStringReturn}
	case int64:
		return schema.Callback{Kind: schema.CallbackResult, Text: strconv.FormatInt(v, 10), Style: schema.StyleNumberReturn}
	case float64:
		return schema.Callback{Kind: schema.CallbackResult, Text: formatFloat(v), Style: schema.StyleNumberReturn}
	default:
		return schema.Callback{Kind: schema.CallbackResult, Text: val.String(), Style: schema.StyleObjectReturn}
	}
}

func exceptionCallback(exception *goja.Exception) schema.Callback {
	cb := schema.Callback{Kind: schema.CallbackException, ClassName: "java.lang.RuntimeException"}
	if value := exception.Value(); value != nil {
		if obj, ok := value.(*goja.Object); ok {
			if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
				cb.ClassName = name.String()
			}
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				cb.Message = msg.String()
			}
		} else {
			cb.Message = value.String()
		}
	}
	lines := strings.Split(exception.String(), "\n")
	for _, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line != "" {
			cb.StackTrace = append(cb.StackTrace, line)
		}
	}
	return cb
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatPlain(val goja.Value) string {
	if val == nil || goja.IsUndefined(val) {
		return "undefined"
	}
	if goja.IsNull(val) {
		return "null"
	}
	if f, ok := val.Export().(float64); ok {
		return formatFloat(f)
	}
	return val.String()
}

func (e *Evaluator) interpreterLocked(name schema.InterpreterName) (*interpreter, error) {
	if e.interps == nil {
		return nil, core.NewEvaluatorError(core.EvaluatorErrorUnavailable, "interpret", errors.New("evaluator not started"))
	}
	it, ok := e.interps[name]
	if !ok {
		return nil, schema.ErrInterpreterNotFound
	}
	return it, nil
}

// AddInterpreter creates an isolated interpreter.
func (e *Evaluator) AddInterpreter(_ context.Context, name schema.InterpreterName) error {
	return e.add(name, "")
}

// AddDebugInterpreter creates an interpreter tagged with the enclosing class
// of the frame it stands for.
func (e *Evaluator) AddDebugInterpreter(_ context.Context, name schema.InterpreterName, enclosingClass string) error {
	return e.add(name, enclosingClass)
}

func (e *Evaluator) add(name schema.InterpreterName, enclosingClass string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.interps == nil {
		return core.NewEvaluatorError(core.EvaluatorErrorUnavailable, "add_interpreter", errors.New("evaluator not started"))
	}
	if _, ok := e.interps[name]; ok {
		return schema.ErrInterpreterExists
	}
	e.interps[name] = e.newInterpreter(name, enclosingClass)
	return nil
}

// RemoveInterpreter drops an interpreter, interrupting it if busy.
func (e *Evaluator) RemoveInterpreter(_ context.Context, name schema.InterpreterName) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, err := e.interpreterLocked(name)
	if err != nil {
		return err
	}
	if name == e.active {
		return schema.ErrInterpreterBusy
	}
	it.vm.Interrupt(abortMessage)
	delete(e.interps, name)
	return nil
}

// SetActiveInterpreter switches the interpreter Interpret runs on.
func (e *Evaluator) SetActiveInterpreter(_ context.Context, name schema.InterpreterName) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, err := e.interpreterLocked(name)
	if err != nil {
		return false, err
	}
	e.active = name
	return it.busy, nil
}

// AddClasspathEntry records the entry; the mock has nothing to load.
func (e *Evaluator) AddClasspathEntry(_ context.Context, entry schema.ClasspathEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.classpath = append(e.classpath, entry)
	return nil
}

// VariableAsString prints a variable of the active interpreter.
func (e *Evaluator) VariableAsString(_ context.Context, name string) (string, error) {
	val, err := e.peek(name)
	if err != nil {
		return "", err
	}
	return formatPlain(val), nil
}

// VariableClassName maps the value of a variable onto a Java type name.
func (e *Evaluator) VariableClassName(_ context.Context, name string) (string, error) {
	val, err := e.peek(name)
	if err != nil {
		return "", err
	}
	if goja.IsNull(val) {
		return "null", nil
	}
	switch val.Export().(type) {
	case int64:
		return "int", nil
	case float64:
		return "double", nil
	case string:
		return "java.lang.String", nil
	case bool:
		return "boolean", nil
	}
	if obj, ok := val.(*goja.Object); ok {
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) && strings.Contains(name.String(), ".") {
			return name.String(), nil
		}
	}
	return "java.lang.Object", nil
}

// peek reads a variable or member path of the active interpreter. No user
// code runs.
func (e *Evaluator) peek(name string) (goja.Value, error) {
	parsed, err := parseExpression(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownVariable, name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	it, err := e.idleActiveLocked()
	if err != nil {
		return nil, err
	}
	val, err := lookup(it.vm, parsed)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(val) {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownVariable, name)
	}
	return val, nil
}

// SetAllowAssertions toggles the assert shim.
func (e *Evaluator) SetAllowAssertions(_ context.Context, allow bool) error {
	e.allowAssertions.Store(allow)
	return nil
}

// SetPrivateAccessEnabled records the flag; JavaScript has no private members.
func (e *Evaluator) SetPrivateAccessEnabled(_ context.Context, enabled bool) error {
	e.mu.Lock()
	e.privateAccess = enabled
	e.mu.Unlock()
	return nil
}

// Abort interrupts the active interpreter.
func (e *Evaluator) Abort(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	it, err := e.interpreterLocked(e.active)
	if err != nil {
		return err
	}
	if it.busy {
		it.vm.Interrupt(abortMessage)
	}
	return nil
}

// Close interrupts every interpreter and stops callback delivery.
func (e *Evaluator) Close() error {
	e.mu.Lock()
	for _, it := range e.interps {
		it.vm.Interrupt(abortMessage)
	}
	e.generation++
	queue := e.queue
	e.mu.Unlock()
	queue.Close()
	return nil
}
