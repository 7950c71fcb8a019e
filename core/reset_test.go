package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pkt.systems/jrepl/schema"
)

// stubPorts replaces the debug port allocator with a sequence of results.
func stubPorts(t *testing.T, results ...any) {
	t.Helper()
	prev := allocateDebugPort
	i := 0
	allocateDebugPort = func() (int, error) {
		if i >= len(results) {
			return 0, errors.New("no ports left")
		}
		r := results[i]
		i++
		switch v := r.(type) {
		case int:
			return v, nil
		case error:
			return 0, v
		}
		return 0, errors.New("bad stub")
	}
	t.Cleanup(func() { allocateDebugPort = prev })
}

// captureResetTimers records reset timer callbacks instead of arming them.
func captureResetTimers(t *testing.T) *[]func() {
	t.Helper()
	prev := afterFunc
	var fns []func()
	afterFunc = func(_ time.Duration, fn func()) *time.Timer {
		fns = append(fns, fn)
		return time.NewTimer(time.Hour)
	}
	t.Cleanup(func() { afterFunc = prev })
	return &fns
}

func TestResetIgnoredBeforeFirstReady(t *testing.T) {
	eval := newFakeEvaluator()
	o, err := NewOrchestrator(schema.ServiceConfig{StateDir: t.TempDir(), WorkingDir: t.TempDir()}, ServiceDeps{Evaluator: eval})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.ResetEvaluator(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(eval.resetRequests()) != 0 {
		t.Fatalf("reset before ready should be ignored")
	}
	if len(eval.starts) != 1 || eval.starts[0].DebugPort == 0 {
		t.Fatalf("expected start with a debug port, got %+v", eval.starts)
	}
}

func TestResetLifecycle(t *testing.T) {
	stubPorts(t, 5000, 5001)
	timers := captureResetTimers(t)
	h := newTestHarness(t, nil)
	h.submit(t, "while (true) {}")

	if err := h.o.ResetEvaluator(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if h.o.State() != StateResetting {
		t.Fatalf("expected resetting, got %s", h.o.State())
	}
	if !strings.Contains(h.o.Transcript().Text(), schema.ResettingBanner) {
		t.Fatalf("missing resetting banner in %q", h.o.Transcript().Text())
	}
	reqs := h.eval.resetRequests()
	if len(reqs) != 1 || reqs[0].DebugPort != 5001 {
		t.Fatalf("unexpected reset requests %+v", reqs)
	}
	if port, err := h.o.DebugPort(); err != nil || port != 5001 {
		t.Fatalf("expected rotated port 5001, got %d err=%v", port, err)
	}
	if err := h.o.ResetEvaluator(context.Background()); err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if len(h.eval.resetRequests()) != 1 {
		t.Fatalf("reset while resetting should be ignored")
	}

	h.o.Deliver(schema.Callback{Kind: schema.CallbackReady})

	if got := h.o.Transcript().Text(); got != testBanner+"> " {
		t.Fatalf("expected fresh transcript, got %q", got)
	}
	if h.o.State() != StateIdle || h.o.Busy() {
		t.Fatalf("expected idle after ready")
	}
	if len(h.events.ofType(schema.EventInterpreterResetting)) != 1 || len(h.events.ofType(schema.EventInterpreterReady)) != 1 {
		t.Fatalf("expected resetting and ready events")
	}
	if len(h.eval.assertions) != 2 {
		t.Fatalf("settings should replay after each ready, got %v", h.eval.assertions)
	}

	// A timer from a completed reset must not fire a failure.
	(*timers)[0]()
	if len(h.events.ofType(schema.EventInterpreterResetFailed)) != 0 {
		t.Fatalf("stale reset timer reported a failure")
	}
}

func TestResetTimeoutLeavesTranscriptBusy(t *testing.T) {
	timers := captureResetTimers(t)
	h := newTestHarness(t, nil)
	if err := h.o.ResetEvaluator(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(*timers) != 1 {
		t.Fatalf("expected reset timer to be armed")
	}
	(*timers)[0]()

	failed := h.events.ofType(schema.EventInterpreterResetFailed)
	if len(failed) != 1 || failed[0].Cause != schema.ErrResetTimeout.Error() {
		t.Fatalf("unexpected reset failure events %+v", failed)
	}
	if h.o.State() != StateIdle || !h.o.Busy() {
		t.Fatalf("timeout should leave the transcript busy, state=%s", h.o.State())
	}
	if err := h.o.ResetEvaluator(context.Background()); err != nil {
		t.Fatalf("retry reset: %v", err)
	}
	if len(h.eval.resetRequests()) != 2 {
		t.Fatalf("expected a retried reset")
	}
}

func TestResetRequestFailureRestoresInput(t *testing.T) {
	h := newTestHarness(t, nil)
	h.eval.resetErr = errors.New("spawn failed")
	if err := h.o.ResetEvaluator(context.Background()); err == nil {
		t.Fatalf("expected reset error")
	}
	failed := h.events.ofType(schema.EventInterpreterResetFailed)
	if len(failed) != 1 || failed[0].Cause != "spawn failed" {
		t.Fatalf("unexpected failure events %+v", failed)
	}
	if h.o.Busy() {
		t.Fatalf("failed reset should accept input again")
	}
	want := testBanner + schema.ResettingBanner + "> "
	if got := h.o.Transcript().Text(); got != want {
		t.Fatalf("unexpected transcript %q", got)
	}
}

func TestResetFailedWhileBusyReinsertsPrompt(t *testing.T) {
	h := newTestHarness(t, nil)
	h.submit(t, "while (true) {}")
	if err := h.o.ResetEvaluator(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	h.o.Deliver(schema.Callback{Kind: schema.CallbackResetFailed, Cause: "jvm crashed"})
	if h.o.Busy() {
		t.Fatalf("expected idle after reset failure")
	}
	if got := h.o.Transcript().Text(); !strings.HasSuffix(got, schema.ResettingBanner+"> ") {
		t.Fatalf("expected prompt after banner, got %q", got)
	}
	h.submit(t, "1")
	if got := h.eval.interpretedSources(); got[len(got)-1] != "1" {
		t.Fatalf("expected new submission, got %v", got)
	}
}

func TestSystemExitRequiresReset(t *testing.T) {
	h := newTestHarness(t, nil)
	h.submit(t, "System.exit(3);")
	h.o.Deliver(schema.Callback{Kind: schema.CallbackSystemExit, Status: 3})

	exited := h.events.ofType(schema.EventInterpreterExited)
	if len(exited) != 1 || exited[0].Status != 3 || !exited[0].InProgress {
		t.Fatalf("unexpected exit events %+v", exited)
	}
	h.o.SetCurrentInput("1")
	if err := h.o.SubmitCurrentInput(context.Background()); !errors.Is(err, schema.ErrInteractionInProgress) {
		t.Fatalf("expected in progress after exit, got %v", err)
	}

	h.o.Deliver(schema.Callback{Kind: schema.CallbackResetting})
	h.o.Deliver(schema.Callback{Kind: schema.CallbackReady})
	if h.o.Busy() || h.o.Transcript().Text() != testBanner+"> " {
		t.Fatalf("expected fresh transcript after restart, got %q", h.o.Transcript().Text())
	}
}

func TestUnexpectedExitKeepsTranscriptBusy(t *testing.T) {
	h := newTestHarness(t, nil)
	h.submit(t, "crash();")
	h.o.Deliver(schema.Callback{Kind: schema.CallbackExited, Status: 137})
	if !strings.Contains(h.o.Transcript().Text(), "Evaluator exited with status 137") {
		t.Fatalf("missing exit notice in %q", h.o.Transcript().Text())
	}
	if !h.o.Busy() {
		t.Fatalf("expected busy transcript after exit")
	}
	if err := h.o.ResetEvaluator(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(h.eval.resetRequests()) != 1 {
		t.Fatalf("reset after exit should reach the evaluator")
	}
}

func TestDebugPortFailureKeepsPreviousPort(t *testing.T) {
	stubPorts(t, 6000, errors.New("no ports"))
	h := newTestHarness(t, nil)
	if err := h.o.ResetEvaluator(context.Background()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if port, err := h.o.DebugPort(); err != nil || port != 6000 {
		t.Fatalf("expected previous port 6000, got %d err=%v", port, err)
	}
}

func TestDebugPortUnavailable(t *testing.T) {
	stubPorts(t, errors.New("no ports"))
	h := newTestHarness(t, nil)
	if _, err := h.o.DebugPort(); !errors.Is(err, schema.ErrDebugPortUnavailable) {
		t.Fatalf("expected debug port unavailable, got %v", err)
	}
}

func TestRemoteResettingBeforeFirstReadyUnlocksInput(t *testing.T) {
	captureResetTimers(t)
	eval := newFakeEvaluator()
	events := newEventRecorder()
	o, err := NewOrchestrator(schema.ServiceConfig{StateDir: t.TempDir(), WorkingDir: t.TempDir(), Banner: testBanner}, ServiceDeps{Evaluator: eval, EventSink: events})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.Deliver(schema.Callback{Kind: schema.CallbackResetting})
	if !o.Transcript().InProgress() {
		t.Fatalf("remote reset should lock input")
	}
	o.Deliver(schema.Callback{Kind: schema.CallbackReady})
	if o.Busy() {
		t.Fatalf("first ready after a remote reset should unlock input, state %s", o.State())
	}
	if ready := events.ofType(schema.EventInterpreterReady); len(ready) != 1 {
		t.Fatalf("expected one ready event, got %+v", ready)
	}
	text := o.Transcript().Text()
	if !strings.HasSuffix(text, "> ") || !strings.Contains(text, schema.ResettingBanner) {
		t.Fatalf("expected the banner above a live prompt, got %q", text)
	}
	o.SetCurrentInput("1")
	if err := o.SubmitCurrentInput(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
}
