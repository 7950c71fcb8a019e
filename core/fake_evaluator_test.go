package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pkt.systems/jrepl/schema"
)

type fakeEvaluator struct {
	mu           sync.Mutex
	handler      CallbackHandler
	starts       []ResetRequest
	interpreted  []string
	resets       []ResetRequest
	added        []schema.InterpreterName
	debugAdded   map[schema.InterpreterName]string
	removed      []schema.InterpreterName
	active       schema.InterpreterName
	busy         map[schema.InterpreterName]bool
	classpath    []schema.ClasspathEntry
	assertions   []bool
	private      []bool
	aborts       int
	closed       bool
	classNames   map[string]string
	fields       map[string][]string
	fieldQueries []string
	values       map[string]string
	interpretErr error
	resetErr     error
	onInterpret  func(source string)
}

func newFakeEvaluator() *fakeEvaluator {
	return &fakeEvaluator{
		debugAdded: make(map[schema.InterpreterName]string),
		busy:       make(map[schema.InterpreterName]bool),
		classNames: make(map[string]string),
		values:     make(map[string]string),
		active:     schema.DefaultInterpreter,
	}
}

func (f *fakeEvaluator) Start(_ context.Context, handler CallbackHandler, req ResetRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	f.starts = append(f.starts, req)
	return nil
}

func (f *fakeEvaluator) Interpret(_ context.Context, source string) error {
	f.mu.Lock()
	if f.interpretErr != nil {
		err := f.interpretErr
		f.mu.Unlock()
		return err
	}
	f.interpreted = append(f.interpreted, source)
	hook := f.onInterpret
	f.mu.Unlock()
	if hook != nil {
		hook(source)
	}
	return nil
}

func (f *fakeEvaluator) ResetInterpreter(_ context.Context, req ResetRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, req)
	return f.resetErr
}

func (f *fakeEvaluator) AddInterpreter(_ context.Context, name schema.InterpreterName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, name)
	return nil
}

func (f *fakeEvaluator) AddDebugInterpreter(_ context.Context, name schema.InterpreterName, enclosingClass string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debugAdded[name] = enclosingClass
	return nil
}

func (f *fakeEvaluator) RemoveInterpreter(_ context.Context, name schema.InterpreterName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeEvaluator) SetActiveInterpreter(_ context.Context, name schema.InterpreterName) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = name
	return f.busy[name], nil
}

func (f *fakeEvaluator) AddClasspathEntry(_ context.Context, entry schema.ClasspathEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classpath = append(f.classpath, entry)
	return nil
}

func (f *fakeEvaluator) VariableAsString(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[name]
	if !ok {
		return "", schema.ErrUnknownVariable
	}
	return v, nil
}

func (f *fakeEvaluator) VariableClassName(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.classNames[name]
	if !ok {
		return "", errors.New("cannot find symbol: " + name)
	}
	return v, nil
}

// CheckExpression accepts the expressions listed in classNames.
func (f *fakeEvaluator) CheckExpression(_ context.Context, expr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.classNames[expr]; !ok {
		return errors.New("cannot find symbol: " + expr)
	}
	return nil
}

func (f *fakeEvaluator) FieldNames(_ context.Context, className string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fieldQueries = append(f.fieldQueries, className)
	names, ok := f.fields[className]
	if !ok {
		return nil, schema.ErrUnknownClass
	}
	return names, nil
}

func (f *fakeEvaluator) SetAllowAssertions(_ context.Context, allow bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assertions = append(f.assertions, allow)
	return nil
}

func (f *fakeEvaluator) SetPrivateAccessEnabled(_ context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.private = append(f.private, enabled)
	return nil
}

func (f *fakeEvaluator) Abort(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts++
	return nil
}

func (f *fakeEvaluator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEvaluator) interpretedSources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.interpreted...)
}

func (f *fakeEvaluator) resetRequests() []ResetRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ResetRequest(nil), f.resets...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []schema.Event
	notify chan schema.Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{notify: make(chan schema.Event, 256)}
}

func (r *eventRecorder) OnEvent(event schema.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	select {
	case r.notify <- event:
	default:
	}
}

func (r *eventRecorder) ofType(kind schema.EventType) []schema.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schema.Event
	for _, event := range r.events {
		if event.Type == kind {
			out = append(out, event)
		}
	}
	return out
}

func (r *eventRecorder) waitFor(t *testing.T, kind schema.EventType, timeout time.Duration) schema.Event {
	t.Helper()
	if events := r.ofType(kind); len(events) > 0 {
		return events[0]
	}
	deadline := time.After(timeout)
	for {
		select {
		case event := <-r.notify:
			if event.Type == kind {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return schema.Event{}
		}
	}
}

type testHarness struct {
	o      *Orchestrator
	eval   *fakeEvaluator
	events *eventRecorder
	beeps  *beepCounter
}

const testBanner = "Welcome\n"

func newTestHarness(t *testing.T, mutate func(*schema.ServiceConfig)) *testHarness {
	t.Helper()
	cfg := schema.ServiceConfig{
		SessionID:   "test",
		StateDir:    t.TempDir(),
		WorkingDir:  t.TempDir(),
		Banner:      testBanner,
		Prompt:      "> ",
		OutputDelay: time.Microsecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h := &testHarness{eval: newFakeEvaluator(), events: newEventRecorder(), beeps: &beepCounter{}}
	o, err := NewOrchestrator(cfg, ServiceDeps{Evaluator: h.eval, EventSink: h.events, Beep: h.beeps.beep})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.Deliver(schema.Callback{Kind: schema.CallbackReady})
	h.o = o
	return h
}

func (h *testHarness) submit(t *testing.T, input string) {
	t.Helper()
	h.o.SetCurrentInput(input)
	if err := h.o.SubmitCurrentInput(context.Background()); err != nil {
		t.Fatalf("submit %q: %v", input, err)
	}
}
