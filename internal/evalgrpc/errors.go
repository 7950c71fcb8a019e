package evalgrpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/evalproc"
	"pkt.systems/pslog"
)

var wireCodeStatus = map[string]codes.Code{
	"unknown_variable":      codes.NotFound,
	"unknown_class":         codes.NotFound,
	"interpreter_not_found": codes.NotFound,
	"interpreter_exists":    codes.AlreadyExists,
	"interpreter_busy":      codes.FailedPrecondition,
	"invalid_request":       codes.InvalidArgument,
	"evaluator_exited":      codes.Unavailable,
	"rejected":              codes.Aborted,
}

// toStatus converts a backend error into a status whose message carries
// the wire error code, so the client can restore the sentinel.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var evalErr *core.EvaluatorError
	if errors.As(err, &evalErr) {
		switch evalErr.Kind {
		case core.EvaluatorErrorUnavailable, core.EvaluatorErrorStart:
			return status.Error(codes.Unavailable, err.Error())
		case core.EvaluatorErrorTimeout:
			return status.Error(codes.DeadlineExceeded, err.Error())
		case core.EvaluatorErrorCanceled:
			return status.Error(codes.Canceled, err.Error())
		}
	}
	we := evalproc.EncodeError(err)
	code, ok := wireCodeStatus[we.Code]
	if !ok {
		code = codes.Unknown
	}
	return status.Error(code, we.Code+": "+we.Message)
}

func wrapEvaluatorError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *core.EvaluatorError
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return core.NewEvaluatorError(core.EvaluatorErrorCanceled, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewEvaluatorError(core.EvaluatorErrorTimeout, op, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return core.NewEvaluatorError(core.EvaluatorErrorUnknown, op, err)
	}
	switch st.Code() {
	case codes.Unavailable:
		if we, ok := parseWireError(st.Message()); ok {
			return evalproc.DecodeError(op, we)
		}
		return core.NewEvaluatorError(core.EvaluatorErrorUnavailable, op, err)
	case codes.DeadlineExceeded:
		return core.NewEvaluatorError(core.EvaluatorErrorTimeout, op, err)
	case codes.Canceled:
		return core.NewEvaluatorError(core.EvaluatorErrorCanceled, op, err)
	case codes.NotFound, codes.AlreadyExists, codes.FailedPrecondition, codes.InvalidArgument, codes.Aborted:
		if we, ok := parseWireError(st.Message()); ok {
			return evalproc.DecodeError(op, we)
		}
		return core.NewEvaluatorError(core.EvaluatorErrorRejected, op, err)
	default:
		return core.NewEvaluatorError(core.EvaluatorErrorUnknown, op, err)
	}
}

func parseWireError(message string) (*evalproc.WireError, bool) {
	code, rest, ok := strings.Cut(message, ": ")
	if !ok {
		return nil, false
	}
	if _, known := wireCodeStatus[code]; !known {
		return nil, false
	}
	return &evalproc.WireError{Code: code, Message: rest}, true
}

func logGRPCError(log pslog.Logger, msg string, err error) {
	if log == nil || err == nil {
		return
	}
	if st, ok := status.FromError(err); ok {
		log.Warn(msg, "err", err, "code", st.Code().String(), "message", st.Message())
		return
	}
	log.Warn(msg, "err", err)
}
