package evalgrpc

import (
	"context"
	"errors"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"pkt.systems/jrepl/core"
	"pkt.systems/jrepl/internal/evalproc"
	"pkt.systems/jrepl/schema"
	"pkt.systems/pslog"
)

// Client implements core.Evaluator against an evaluator gRPC server.
type Client struct {
	cfg  Config
	conn *grpc.ClientConn
	log  pslog.Logger

	mu     sync.Mutex
	queue  *core.CallbackQueue
	cancel context.CancelFunc
	closed bool
}

// Dial creates a new evaluator client over a Unix domain socket. The
// connection is established lazily by the first call.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("evaluator socket path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultCallTimeout
	}
	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", addr)
	}
	conn, err := grpc.NewClient(
		"passthrough:///"+cfg.SocketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(dialer),
	)
	if err != nil {
		return nil, err
	}
	log := pslog.Ctx(ctx).With("evaluator", "grpc", "socket", cfg.SocketPath)
	return &Client{cfg: cfg, conn: conn, log: log}, nil
}

// Start subscribes to callbacks and starts the remote evaluator. The
// subscription is acknowledged before the start request goes out, so the
// ready callback cannot be missed.
func (c *Client) Start(ctx context.Context, handler core.CallbackHandler, req core.ResetRequest) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.NewEvaluatorError(core.EvaluatorErrorUnavailable, "start", errors.New("client closed"))
	}
	if c.queue != nil {
		c.mu.Unlock()
		return errors.New("evaluator already started")
	}
	queue := core.NewCallbackQueue(handler)
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.queue = queue
	c.cancel = cancel
	c.mu.Unlock()

	stream, err := c.conn.NewStream(streamCtx, &serviceDesc.Streams[0], callbacksMethod)
	if err == nil {
		err = c.subscribe(stream)
	}
	if err != nil {
		logGRPCError(c.log, "evaluator grpc subscribe failed", err)
		c.abandon()
		return wrapEvaluatorError("start", err)
	}
	go c.receive(stream)
	_, err = c.call(ctx, request{Op: opStart, WorkingDir: req.WorkingDir, DebugPort: req.DebugPort})
	if err != nil {
		c.abandon()
		return err
	}
	c.log.Info("evaluator grpc started", "working_dir", req.WorkingDir, "debug_port", req.DebugPort)
	return nil
}

func (c *Client) subscribe(stream grpc.ClientStream) error {
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	var msg streamMessage
	if err := fromStruct(in, &msg); err != nil {
		return err
	}
	if msg.Type != messageSubscribed {
		return core.NewEvaluatorError(core.EvaluatorErrorProtocol, "start", errors.New("missing subscription acknowledgement"))
	}
	return nil
}

func (c *Client) abandon() {
	c.mu.Lock()
	queue, cancel := c.queue, c.cancel
	c.queue, c.cancel = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	queue.Close()
}

func (c *Client) receive(stream grpc.ClientStream) {
	for {
		in := new(structpb.Struct)
		if err := stream.RecvMsg(in); err != nil {
			c.mu.Lock()
			closed, queue := c.closed, c.queue
			c.mu.Unlock()
			if closed {
				return
			}
			logGRPCError(c.log, "evaluator grpc callback stream failed", err)
			queue.Push(schema.Callback{Kind: schema.CallbackExited, Status: -1})
			return
		}
		var msg streamMessage
		if err := fromStruct(in, &msg); err != nil || msg.Callback == nil {
			c.log.Warn("evaluator grpc callback dropped", "type", msg.Type, "err", err)
			continue
		}
		c.log.Trace("evaluator grpc callback", "kind", msg.Callback.Kind)
		c.mu.Lock()
		queue := c.queue
		c.mu.Unlock()
		queue.Push(*msg.Callback)
	}
}

func (c *Client) call(ctx context.Context, req request) (reply, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	in, err := toStruct(req)
	if err != nil {
		return reply{}, core.NewEvaluatorError(core.EvaluatorErrorProtocol, req.Op, err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, callMethod, in, out); err != nil {
		wrapped := wrapEvaluatorError(req.Op, err)
		var evalErr *core.EvaluatorError
		if errors.As(wrapped, &evalErr) {
			logGRPCError(c.log.With("op", req.Op), "evaluator grpc call failed", err)
		}
		return reply{}, wrapped
	}
	var resp reply
	if err := fromStruct(out, &resp); err != nil {
		return reply{}, core.NewEvaluatorError(core.EvaluatorErrorProtocol, req.Op, err)
	}
	return resp, nil
}

// Ping checks that the server answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, request{Op: opPing})
	return err
}

// Interpret implements core.Evaluator.
func (c *Client) Interpret(ctx context.Context, source string) error {
	_, err := c.call(ctx, request{Op: evalproc.OpInterpret, Source: source})
	return err
}

// ResetInterpreter implements core.Evaluator.
func (c *Client) ResetInterpreter(ctx context.Context, req core.ResetRequest) error {
	_, err := c.call(ctx, request{Op: opReset, WorkingDir: req.WorkingDir, DebugPort: req.DebugPort})
	return err
}

// AddInterpreter implements core.Evaluator.
func (c *Client) AddInterpreter(ctx context.Context, name schema.InterpreterName) error {
	_, err := c.call(ctx, request{Op: evalproc.OpAddInterpreter, Name: string(name)})
	return err
}

// AddDebugInterpreter implements core.Evaluator.
func (c *Client) AddDebugInterpreter(ctx context.Context, name schema.InterpreterName, enclosingClass string) error {
	_, err := c.call(ctx, request{Op: evalproc.OpAddDebugInterpreter, Name: string(name), EnclosingClass: enclosingClass})
	return err
}

// RemoveInterpreter implements core.Evaluator.
func (c *Client) RemoveInterpreter(ctx context.Context, name schema.InterpreterName) error {
	_, err := c.call(ctx, request{Op: evalproc.OpRemoveInterpreter, Name: string(name)})
	return err
}

// SetActiveInterpreter implements core.Evaluator.
func (c *Client) SetActiveInterpreter(ctx context.Context, name schema.InterpreterName) (bool, error) {
	resp, err := c.call(ctx, request{Op: evalproc.OpSetActive, Name: string(name)})
	return resp.InProgress, err
}

// AddClasspathEntry implements core.Evaluator.
func (c *Client) AddClasspathEntry(ctx context.Context, entry schema.ClasspathEntry) error {
	_, err := c.call(ctx, request{Op: evalproc.OpAddClasspath, Entry: &entry})
	return err
}

// VariableAsString implements core.Evaluator.
func (c *Client) VariableAsString(ctx context.Context, name string) (string, error) {
	resp, err := c.call(ctx, request{Op: evalproc.OpVariableAsString, Name: name})
	return resp.Value, err
}

// VariableClassName implements core.Evaluator.
func (c *Client) VariableClassName(ctx context.Context, name string) (string, error) {
	resp, err := c.call(ctx, request{Op: evalproc.OpVariableClassName, Name: name})
	return resp.Value, err
}

// CheckExpression implements core.Evaluator.
func (c *Client) CheckExpression(ctx context.Context, expr string) error {
	_, err := c.call(ctx, request{Op: evalproc.OpCheckExpression, Source: expr})
	return err
}

// FieldNames implements core.Evaluator.
func (c *Client) FieldNames(ctx context.Context, className string) ([]string, error) {
	resp, err := c.call(ctx, request{Op: evalproc.OpFieldNames, Name: className})
	return resp.Values, err
}

// SetAllowAssertions implements core.Evaluator.
func (c *Client) SetAllowAssertions(ctx context.Context, allow bool) error {
	_, err := c.call(ctx, request{Op: evalproc.OpSetAllowAssertions, Enabled: allow})
	return err
}

// SetPrivateAccessEnabled implements core.Evaluator.
func (c *Client) SetPrivateAccessEnabled(ctx context.Context, enabled bool) error {
	_, err := c.call(ctx, request{Op: evalproc.OpSetPrivateAccess, Enabled: enabled})
	return err
}

// Abort implements core.Evaluator.
func (c *Client) Abort(ctx context.Context) error {
	_, err := c.call(ctx, request{Op: evalproc.OpAbort})
	return err
}

// Close drops the callback subscription and the connection. The remote
// evaluator keeps running for the next client.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	queue, cancel := c.queue, c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	queue.Close()
	return c.conn.Close()
}
