package evalgrpc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/evalproc"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

var errSubscriberReplaced = errors.New("callback stream replaced by a newer client")

// Server exposes a core.Evaluator over gRPC. One client at a time receives
// callbacks; a newer Callbacks stream replaces the previous one. Callbacks
// raised while no client listens are held until one subscribes.
type Server struct {
	cfg     Config
	backend core.Evaluator
	logger  pslog.Logger

	mu      sync.Mutex
	started bool
	sub     *subscriber
	backlog []schema.Callback
}

type subscriber struct {
	queue *core.CallbackQueue
	once  sync.Once
	done  chan error
}

func (s *subscriber) fail(err error) {
	s.once.Do(func() {
		s.done <- err
		close(s.done)
	})
}

// NewServer constructs an evaluator gRPC server around backend.
func NewServer(cfg Config, backend core.Evaluator) *Server {
	return &Server{cfg: cfg, backend: backend}
}

// ListenAndServe serves until ctx is canceled, then closes the backend.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.SocketPath == "" {
		return errors.New("evaluator socket path is required")
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx).With("evaluator", "grpc")
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(&serviceDesc, s)
	s.logger.Info("evaluator grpc listening", "socket", s.cfg.SocketPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.mu.Lock()
		sub := s.sub
		s.sub = nil
		s.mu.Unlock()
		if sub != nil {
			sub.fail(ctx.Err())
		}
		grpcServer.GracefulStop()
		s.logger.Info("evaluator grpc stopped")
		return s.backend.Close()
	case err := <-errCh:
		_ = s.backend.Close()
		return err
	}
}

// Deliver implements core.CallbackHandler for the backend.
func (s *Server) Deliver(cb schema.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		s.backlog = append(s.backlog, cb)
		return
	}
	s.sub.queue.Push(cb)
}

func (s *Server) callbacks(_ *structpb.Struct, stream grpc.ServerStream) error {
	log := s.log(stream.Context())
	sub := &subscriber{done: make(chan error, 1)}
	sub.queue = core.NewCallbackQueue(core.CallbackFunc(func(cb schema.Callback) {
		msg, err := toStruct(streamMessage{Type: messageCallback, Callback: &cb})
		if err == nil {
			err = stream.SendMsg(msg)
		}
		if err != nil {
			log.Warn("evaluator grpc callback send failed", "kind", cb.Kind, "err", err)
			sub.fail(err)
		}
	}))
	defer sub.queue.Close()

	ack, err := toStruct(streamMessage{Type: messageSubscribed})
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	// Deliver blocks on s.mu until the ack is out, so it precedes every callback.
	s.mu.Lock()
	if err := stream.SendMsg(ack); err != nil {
		s.mu.Unlock()
		return err
	}
	old := s.sub
	s.sub = sub
	for _, cb := range s.backlog {
		sub.queue.Push(cb)
	}
	s.backlog = nil
	s.mu.Unlock()
	if old != nil {
		old.fail(errSubscriberReplaced)
	}
	log.Info("evaluator grpc client subscribed")

	var result error
	select {
	case <-stream.Context().Done():
	case err := <-sub.done:
		if errors.Is(err, errSubscriberReplaced) {
			result = status.Error(codes.Aborted, err.Error())
		}
	}
	s.mu.Lock()
	if s.sub == sub {
		s.sub = nil
	}
	s.mu.Unlock()
	log.Info("evaluator grpc client unsubscribed")
	return result
}

func (s *Server) call(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	log := s.log(ctx).With("op", req.Op)
	log.Trace("evaluator grpc call")
	out, err := s.dispatch(ctx, req)
	if err != nil {
		log.Debug("evaluator grpc call failed", "err", err)
		return nil, toStatus(err)
	}
	resp, err := toStruct(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func (s *Server) dispatch(ctx context.Context, req request) (reply, error) {
	name := schema.InterpreterName(req.Name)
	switch req.Op {
	case opPing:
		return reply{}, nil
	case opStart:
		s.mu.Lock()
		started := s.started
		s.started = true
		s.mu.Unlock()
		if !started {
			// The backend outlives this call; its callbacks go to s.
			return reply{}, s.backend.Start(context.WithoutCancel(ctx), s, req.resetRequest())
		}
		return reply{}, s.backend.ResetInterpreter(ctx, req.resetRequest())
	case opReset:
		return reply{}, s.backend.ResetInterpreter(ctx, req.resetRequest())
	case evalproc.OpInterpret:
		return reply{}, s.backend.Interpret(ctx, req.Source)
	case evalproc.OpAddInterpreter:
		return reply{}, s.backend.AddInterpreter(ctx, name)
	case evalproc.OpAddDebugInterpreter:
		return reply{}, s.backend.AddDebugInterpreter(ctx, name, req.EnclosingClass)
	case evalproc.OpRemoveInterpreter:
		return reply{}, s.backend.RemoveInterpreter(ctx, name)
	case evalproc.OpSetActive:
		busy, err := s.backend.SetActiveInterpreter(ctx, name)
		return reply{InProgress: busy}, err
	case evalproc.OpAddClasspath:
		if req.Entry == nil {
			return reply{}, schema.ErrInvalidRequest
		}
		return reply{}, s.backend.AddClasspathEntry(ctx, *req.Entry)
	case evalproc.OpVariableAsString:
		value, err := s.backend.VariableAsString(ctx, req.Name)
		return reply{Value: value}, err
	case evalproc.OpVariableClassName:
		value, err := s.backend.VariableClassName(ctx, req.Name)
		return reply{Value: value}, err
	case evalproc.OpCheckExpression:
		return reply{}, s.backend.CheckExpression(ctx, req.Source)
	case evalproc.OpFieldNames:
		values, err := s.backend.FieldNames(ctx, req.Name)
		return reply{Values: values}, err
	case evalproc.OpSetAllowAssertions:
		return reply{}, s.backend.SetAllowAssertions(ctx, req.Enabled)
	case evalproc.OpSetPrivateAccess:
		return reply{}, s.backend.SetPrivateAccessEnabled(ctx, req.Enabled)
	case evalproc.OpAbort:
		return reply{}, s.backend.Abort(ctx)
	default:
		return reply{}, schema.ErrInvalidRequest
	}
}

func (s *Server) log(ctx context.Context) pslog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return pslog.Ctx(ctx)
}
