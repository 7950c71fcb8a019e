package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pkt.systems/jrepl/schema"
)

func TestDebugInterpreterQualifiesOuterFields(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	if err := h.o.AddDebugInterpreter(ctx, "dbg", "Shop$Cart"); err != nil {
		t.Fatalf("add debug interpreter: %v", err)
	}
	if h.eval.debugAdded["dbg"] != "Shop$Cart" {
		t.Fatalf("evaluator did not receive debug interpreter: %+v", h.eval.debugAdded)
	}
	if err := h.o.SetActiveInterpreter(ctx, "dbg"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	changed := h.events.ofType(schema.EventInterpreterChanged)
	if len(changed) != 1 || changed[0].Interpreter != "dbg" || changed[0].InProgress {
		t.Fatalf("unexpected change events %+v", changed)
	}
	if got := h.o.Transcript().Prompt(); got != "[dbg] > " {
		t.Fatalf("unexpected prompt %q", got)
	}

	h.eval.classNames["this"] = "Shop$Cart"
	h.eval.classNames["this.this$0.total"] = "int"
	h.submit(t, "total")
	got := h.eval.interpretedSources()
	if len(got) != 1 || got[0] != "this.this$0.total" {
		t.Fatalf("unexpected dispatch %v", got)
	}
	if entries := h.o.HistoryEntries(); entries[len(entries)-1] != "total" {
		t.Fatalf("history should keep the typed text, got %v", entries)
	}
}

func TestDebugInterpreterListsAnonymousClassFields(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	if err := h.o.AddDebugInterpreter(ctx, "dbg", "Shop$1"); err != nil {
		t.Fatalf("add debug interpreter: %v", err)
	}
	if err := h.o.SetActiveInterpreter(ctx, "dbg"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	h.eval.fields = map[string][]string{"Shop$1": {"this$1", "val$limit"}}
	h.eval.classNames["this"] = "Shop$1"
	h.eval.classNames["this.this$1.this$0.total"] = "int"
	h.submit(t, "total")
	if got := h.eval.interpretedSources(); len(got) != 1 || got[0] != "this.this$1.this$0.total" {
		t.Fatalf("expected two outer hops from the listed this$1, got %v", got)
	}
	h.eval.mu.Lock()
	defer h.eval.mu.Unlock()
	if len(h.eval.fieldQueries) == 0 || h.eval.fieldQueries[0] != "Shop$1" {
		t.Fatalf("expected a field lookup of Shop$1, got %v", h.eval.fieldQueries)
	}
}

func TestDebugInterpreterLeavesUnresolvedSource(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	if err := h.o.AddDebugInterpreter(ctx, "dbg", "Shop$Cart"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := h.o.SetActiveInterpreter(ctx, "dbg"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	h.submit(t, "missing + 1")
	if got := h.eval.interpretedSources(); got[0] != "missing + 1" {
		t.Fatalf("unresolved names should pass through, got %v", got)
	}
}

func TestSwitchingAwayFromBusyInterpreter(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	h.submit(t, "Thread.sleep(5000); 42")
	if err := h.o.AddInterpreter(ctx, "other"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := h.o.SetActiveInterpreter(ctx, "other"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if h.o.Busy() {
		t.Fatalf("other interpreter should accept input")
	}

	h.o.ReplReturnedResult(schema.DefaultInterpreter, "42", schema.StyleNumberReturn)
	ended := h.events.ofType(schema.EventInteractionEnded)
	if len(ended) != 1 || ended[0].Interpreter != schema.DefaultInterpreter {
		t.Fatalf("expected ended event for default, got %+v", ended)
	}
	text := h.o.Transcript().Text()
	if !strings.Contains(text, "42\n> ") {
		t.Fatalf("background result should land above the prompt, got %q", text)
	}

	if err := h.o.SetActiveInterpreter(ctx, string(schema.DefaultInterpreter)); err != nil {
		t.Fatalf("switch back: %v", err)
	}
	if h.o.Busy() {
		t.Fatalf("default interpreter finished, expected idle")
	}
}

func TestSwitchingToBusyInterpreterMarksInProgress(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	if err := h.o.AddInterpreter(ctx, "worker"); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.eval.busy["worker"] = true
	if err := h.o.SetActiveInterpreter(ctx, "worker"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	changed := h.events.ofType(schema.EventInterpreterChanged)
	if len(changed) != 1 || !changed[0].InProgress {
		t.Fatalf("expected in progress change event, got %+v", changed)
	}
	if !h.o.Busy() {
		t.Fatalf("expected busy transcript")
	}
}

func TestInterpreterRegistryErrors(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	if err := h.o.AddInterpreter(ctx, "a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := h.o.AddInterpreter(ctx, "a"); !errors.Is(err, schema.ErrInterpreterExists) {
		t.Fatalf("expected exists, got %v", err)
	}
	if err := h.o.SetActiveInterpreter(ctx, "nope"); !errors.Is(err, schema.ErrInterpreterNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := h.o.RemoveInterpreter(ctx, string(schema.DefaultInterpreter)); !errors.Is(err, schema.ErrInterpreterBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if err := h.o.AddDebugInterpreter(ctx, "d", ""); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if err := h.o.RemoveInterpreter(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(h.o.Interpreters()) != 1 {
		t.Fatalf("expected only default left, got %+v", h.o.Interpreters())
	}
}

func TestReadyResetsInterpreterRegistry(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	if err := h.o.AddInterpreter(ctx, "a"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := h.o.SetActiveInterpreter(ctx, "a"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := h.o.ResetEvaluator(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	h.o.Deliver(schema.Callback{Kind: schema.CallbackReady})
	if active := h.o.ActiveInterpreter(); active.Name != schema.DefaultInterpreter {
		t.Fatalf("expected default interpreter after reset, got %+v", active)
	}
	if len(h.o.Interpreters()) != 1 {
		t.Fatalf("expected registry reset, got %+v", h.o.Interpreters())
	}
}

func TestSettingsForwardedToEvaluator(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()
	if err := h.o.SetAllowAssertions(ctx, true); err != nil {
		t.Fatalf("assertions: %v", err)
	}
	if err := h.o.SetPrivateAccessEnabled(ctx, true); err != nil {
		t.Fatalf("private: %v", err)
	}
	if err := h.o.AddClasspathEntry(ctx, schema.ClasspathEntry{}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("expected invalid classpath entry, got %v", err)
	}
	h.eval.values["x"] = "3"
	if v, err := h.o.VariableAsString(ctx, "x"); err != nil || v != "3" {
		t.Fatalf("unexpected variable %q err=%v", v, err)
	}
	if last := h.eval.assertions[len(h.eval.assertions)-1]; !last {
		t.Fatalf("assertions not forwarded")
	}
	if last := h.eval.private[len(h.eval.private)-1]; !last {
		t.Fatalf("private access not forwarded")
	}
}
