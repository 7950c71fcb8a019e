package evalmock

import (
	"context"
	"errors"
	"testing"
	"time"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
)

type recorder struct {
	ch chan schema.Callback
}

func (r *recorder) Deliver(cb schema.Callback) {
	r.ch <- cb
}

func (r *recorder) next(t *testing.T) schema.Callback {
	t.Helper()
	select {
	case cb := <-r.ch:
		return cb
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for callback")
		return schema.Callback{}
	}
}

func (r *recorder) expect(t *testing.T, kind schema.CallbackKind) schema.Callback {
	t.Helper()
	cb := r.next(t)
	if cb.Kind != kind {
		t.Fatalf("expected %s, got %+v", kind, cb)
	}
	return cb
}

func startMock(t *testing.T, opts Options) (*Evaluator, *recorder) {
	t.Helper()
	e := New(opts)
	rec := &recorder{ch: make(chan schema.Callback, 64)}
	if err := e.Start(context.Background(), rec, core.ResetRequest{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	rec.expect(t, schema.CallbackReady)
	return e, rec
}

func interpret(t *testing.T, e *Evaluator, source string) {
	t.Helper()
	if err := e.Interpret(context.Background(), source); err != nil {
		t.Fatalf("interpret %q: %v", source, err)
	}
}

func TestDeclarationThenValue(t *testing.T) {
	e, rec := startMock(t, Options{})
	interpret(t, e, "int x = 3;")
	rec.expect(t, schema.CallbackVoid)
	interpret(t, e, "x + 4")
	cb := rec.expect(t, schema.CallbackResult)
	if cb.Text != "7" || cb.Style != schema.StyleNumberReturn || cb.Interpreter != schema.DefaultInterpreter {
		t.Fatalf("unexpected result %+v", cb)
	}
	interpret(t, e, `"hi"`)
	if cb := rec.expect(t, schema.CallbackResult); cb.Text != `"hi"` || cb.Style != schema.StyleStringReturn {
		t.Fatalf("unexpected string result %+v", cb)
	}
}

func TestSystemOutBeforeOutcome(t *testing.T) {
	e, rec := startMock(t, Options{})
	interpret(t, e, `System.out.println("a", 1); System.err.print("b");`)
	if cb := rec.expect(t, schema.CallbackStdout); cb.Text != "a 1\n" {
		t.Fatalf("unexpected stdout %+v", cb)
	}
	if cb := rec.expect(t, schema.CallbackStderr); cb.Text != "b" {
		t.Fatalf("unexpected stderr %+v", cb)
	}
	rec.expect(t, schema.CallbackVoid)
}

func TestExceptionAndSyntaxError(t *testing.T) {
	e, rec := startMock(t, Options{})
	interpret(t, e, `throw new RuntimeException("boom");`)
	cb := rec.expect(t, schema.CallbackException)
	if cb.ClassName != "java.lang.RuntimeException" || cb.Message != "boom" {
		t.Fatalf("unexpected exception %+v", cb)
	}
	interpret(t, e, "var = ;")
	if cb := rec.expect(t, schema.CallbackSyntaxError); cb.Message == "" {
		t.Fatalf("expected a diagnostic, got %+v", cb)
	}
}

func TestAbortInterruptsLoop(t *testing.T) {
	e, rec := startMock(t, Options{})
	interpret(t, e, "while (true) {}")
	if err := e.Interpret(context.Background(), "1"); !errors.Is(err, schema.ErrInterpreterBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if err := e.Abort(context.Background()); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if cb := rec.expect(t, schema.CallbackInterrupted); cb.Message != abortMessage {
		t.Fatalf("unexpected interrupted %+v", cb)
	}
}

func TestSystemExit(t *testing.T) {
	e, rec := startMock(t, Options{})
	interpret(t, e, "System.exit(2);")
	if cb := rec.expect(t, schema.CallbackSystemExit); cb.Status != 2 {
		t.Fatalf("unexpected exit %+v", cb)
	}
	select {
	case cb := <-rec.ch:
		t.Fatalf("child mode should not restart itself, got %+v", cb)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSystemExitRestartsInProcess(t *testing.T) {
	e, rec := startMock(t, Options{RestartOnExit: true})
	interpret(t, e, "int y = 1;")
	rec.expect(t, schema.CallbackVoid)
	interpret(t, e, "System.exit(0);")
	rec.expect(t, schema.CallbackSystemExit)
	rec.expect(t, schema.CallbackResetting)
	rec.expect(t, schema.CallbackReady)
	if _, err := e.VariableAsString(context.Background(), "y"); !errors.Is(err, schema.ErrUnknownVariable) {
		t.Fatalf("restart should drop state, got %v", err)
	}
}

func TestInterpretersAreIsolated(t *testing.T) {
	e, rec := startMock(t, Options{})
	ctx := context.Background()
	interpret(t, e, "int x = 1;")
	rec.expect(t, schema.CallbackVoid)
	if err := e.AddDebugInterpreter(ctx, "dbg", "Foo$Bar"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := e.AddInterpreter(ctx, "dbg"); !errors.Is(err, schema.ErrInterpreterExists) {
		t.Fatalf("expected exists, got %v", err)
	}
	busy, err := e.SetActiveInterpreter(ctx, "dbg")
	if err != nil || busy {
		t.Fatalf("unexpected switch busy=%v err=%v", busy, err)
	}
	if _, err := e.VariableClassName(ctx, "x"); !errors.Is(err, schema.ErrUnknownVariable) {
		t.Fatalf("x should not leak into dbg, got %v", err)
	}
	interpret(t, e, "x")
	if cb := rec.expect(t, schema.CallbackException); cb.Interpreter != "dbg" {
		t.Fatalf("expected exception from dbg, got %+v", cb)
	}
	if _, err := e.SetActiveInterpreter(ctx, schema.DefaultInterpreter); err != nil {
		t.Fatalf("switch back: %v", err)
	}
	if name, err := e.VariableClassName(ctx, "x"); err != nil || name != "int" {
		t.Fatalf("unexpected class %q err=%v", name, err)
	}
	if err := e.RemoveInterpreter(ctx, "dbg"); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

func TestAssertionsFollowSetting(t *testing.T) {
	e, rec := startMock(t, Options{})
	interpret(t, e, `assert(false, "nope");`)
	rec.expect(t, schema.CallbackVoid)
	if err := e.SetAllowAssertions(context.Background(), true); err != nil {
		t.Fatalf("assertions: %v", err)
	}
	interpret(t, e, `assert(false, "nope");`)
	cb := rec.expect(t, schema.CallbackException)
	if cb.ClassName != "java.lang.AssertionError" || cb.Message != "nope" {
		t.Fatalf("unexpected assertion failure %+v", cb)
	}
}

func TestResetDropsState(t *testing.T) {
	e, rec := startMock(t, Options{})
	interpret(t, e, "int z = 9;")
	rec.expect(t, schema.CallbackVoid)
	if err := e.ResetInterpreter(context.Background(), core.ResetRequest{DebugPort: 9000}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	rec.expect(t, schema.CallbackReady)
	if _, err := e.VariableAsString(context.Background(), "z"); !errors.Is(err, schema.ErrUnknownVariable) {
		t.Fatalf("expected state dropped, got %v", err)
	}
}

func TestTranslate(t *testing.T) {
	cases := map[string]string{
		"int x = 3;":                         "var x = 3;",
		"final String s;":                    "var s ;",
		"for (int i = 0; i < 3; i++) {}":     "for (var i = 0; i < 3; i++) {}",
		`String[] a = new String[]{"a","b"};`: `var a = ["a","b"];`,
		"x = 4;":                             "x = 4;",
	}
	for in, want := range cases {
		if got := translate(in); got != want {
			t.Fatalf("translate(%q) = %q, want %q", in, got, want)
		}
	}
}
