package evalproc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// ExitError reports that user code asked the evaluator to exit.
type ExitError struct {
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("system exit %d", e.Status)
}

// Serve runs the child side of the stdio protocol: requests read from in
// are applied to backend, and replies and callbacks are written to out.
// It returns nil when in is closed and *ExitError after a System.exit.
func Serve(ctx context.Context, in io.Reader, out io.Writer, backend core.Evaluator, req core.ResetRequest) error {
	log := pslog.Ctx(ctx)
	writer := newLineWriter(out)
	exitCh := make(chan int, 1)
	handler := core.CallbackFunc(func(cb schema.Callback) {
		if err := writer.Write(Message{Type: TypeCallback, Callback: &cb}); err != nil {
			log.Warn("evaluator callback write failed", "kind", cb.Kind, "err", err)
		}
		if cb.Kind == schema.CallbackSystemExit {
			select {
			case exitCh <- cb.Status:
			default:
			}
		}
	})
	if err := backend.Start(ctx, handler, req); err != nil {
		return err
	}
	defer backend.Close()

	requests := make(chan Message)
	readErr := make(chan error, 1)
	go func() {
		reader := newLineReader(in)
		for {
			msg, err := reader.Next()
			if err != nil {
				var decodeErr *lineDecodeError
				if errors.As(err, &decodeErr) {
					log.Warn("evaluator request decode failed", "err", err)
					continue
				}
				readErr <- err
				return
			}
			select {
			case requests <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case status := <-exitCh:
			return &ExitError{Status: status}
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case msg := <-requests:
			if msg.Type != TypeRequest {
				log.Debug("evaluator message ignored", "type", msg.Type)
				continue
			}
			reply := dispatch(ctx, backend, msg)
			if err := writer.Write(reply); err != nil {
				return err
			}
		}
	}
}

func dispatch(ctx context.Context, backend core.Evaluator, msg Message) Message {
	reply := Message{Type: TypeReply, ID: msg.ID}
	var err error
	switch msg.Op {
	case OpInterpret:
		err = backend.Interpret(ctx, msg.Source)
	case OpAddInterpreter:
		err = backend.AddInterpreter(ctx, msg.Interpreter)
	case OpAddDebugInterpreter:
		err = backend.AddDebugInterpreter(ctx, msg.Interpreter, msg.EnclosingClass)
	case OpRemoveInterpreter:
		err = backend.RemoveInterpreter(ctx, msg.Interpreter)
	case OpSetActive:
		reply.InProgress, err = backend.SetActiveInterpreter(ctx, msg.Interpreter)
	case OpAddClasspath:
		if msg.Entry == nil {
			err = fmt.Errorf("%w: classpath entry is required", schema.ErrInvalidRequest)
			break
		}
		err = backend.AddClasspathEntry(ctx, *msg.Entry)
	case OpVariableAsString:
		reply.Value, err = backend.VariableAsString(ctx, msg.Name)
	case OpVariableClassName:
		reply.Value, err = backend.VariableClassName(ctx, msg.Name)
	case OpCheckExpression:
		err = backend.CheckExpression(ctx, msg.Source)
	case OpFieldNames:
		reply.Values, err = backend.FieldNames(ctx, msg.Name)
	case OpSetAllowAssertions:
		err = backend.SetAllowAssertions(ctx, msg.Enabled)
	case OpSetPrivateAccess:
		err = backend.SetPrivateAccessEnabled(ctx, msg.Enabled)
	case OpAbort:
		err = backend.Abort(ctx)
	default:
		err = fmt.Errorf("%w: unknown op %q", schema.ErrInvalidRequest, msg.Op)
	}
	reply.Error = EncodeError(err)
	return reply
}
