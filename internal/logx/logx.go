package logx

import (
	"context"

	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	interpreterKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithSessionInterpreter annotates the logger with session and interpreter names.
func WithSessionInterpreter(ctx context.Context, sessionID schema.SessionID, name schema.InterpreterName) pslog.Logger {
	log := WithSession(ctx, sessionID)
	if name != "" {
		if current, ok := ctx.Value(interpreterKey).(schema.InterpreterName); ok && current == name {
			return log
		}
		log = log.With("interpreter", name)
	}
	return log
}

// WithInteraction annotates the logger with an interaction id when available.
func WithInteraction(log pslog.Logger, id schema.InteractionID) pslog.Logger {
	if id != "" {
		log = log.With("interaction", id)
	}
	return log
}

// WithEvaluator annotates the logger with evaluator transport details.
func WithEvaluator(log pslog.Logger, mode, target string) pslog.Logger {
	if mode != "" {
		log = log.With("evaluator", mode)
	}
	if target != "" {
		log = log.With("evaluator_target", target)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithInterpreter stores the interpreter marker on the context for log de-duplication.
func ContextWithInterpreter(ctx context.Context, name schema.InterpreterName) context.Context {
	if ctx == nil || name == "" {
		return ctx
	}
	return context.WithValue(ctx, interpreterKey, name)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// CopyContextFields copies session/interpreter markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if session, ok := src.Value(sessionKey).(schema.SessionID); ok && session != "" {
		dst = ContextWithSession(dst, session)
	}
	if name, ok := src.Value(interpreterKey).(schema.InterpreterName); ok && name != "" {
		dst = ContextWithInterpreter(dst, name)
	}
	return dst
}
