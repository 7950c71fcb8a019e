package evalgrpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
)

func TestWrapEvaluatorErrorUnavailable(t *testing.T) {
	wrapped := wrapEvaluatorError("interpret", status.Error(codes.Unavailable, "down"))
	var evalErr *core.EvaluatorError
	if !errors.As(wrapped, &evalErr) {
		t.Fatalf("expected EvaluatorError, got %T", wrapped)
	}
	if evalErr.Kind != core.EvaluatorErrorUnavailable {
		t.Fatalf("expected unavailable, got %s", evalErr.Kind)
	}
}

func TestWrapEvaluatorErrorCanceled(t *testing.T) {
	wrapped := wrapEvaluatorError("interpret", context.Canceled)
	var evalErr *core.EvaluatorError
	if !errors.As(wrapped, &evalErr) || evalErr.Kind != core.EvaluatorErrorCanceled {
		t.Fatalf("expected canceled, got %v", wrapped)
	}
}

func TestStatusRestoresSentinels(t *testing.T) {
	cases := []error{
		schema.ErrUnknownVariable,
		fmt.Errorf("%w: frobnicate", schema.ErrInterpreterNotFound),
		schema.ErrInterpreterExists,
		schema.ErrInterpreterBusy,
		schema.ErrInvalidRequest,
	}
	for _, want := range cases {
		got := wrapEvaluatorError("op", toStatus(want))
		if !errors.Is(got, errors.Unwrap(want)) && !errors.Is(got, want) {
			t.Fatalf("expected %v to survive the round trip, got %v", want, got)
		}
	}
}

func TestStatusForTransportKinds(t *testing.T) {
	err := toStatus(core.NewEvaluatorError(core.EvaluatorErrorTimeout, "interpret", errors.New("slow")))
	if status.Code(err) != codes.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	rejected := wrapEvaluatorError("interpret", toStatus(errors.New("nope")))
	var evalErr *core.EvaluatorError
	if !errors.As(rejected, &evalErr) || evalErr.Kind != core.EvaluatorErrorRejected || evalErr.Message != "nope" {
		t.Fatalf("expected rejected error, got %#v", rejected)
	}
}
