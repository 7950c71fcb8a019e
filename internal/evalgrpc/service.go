// Package evalgrpc carries the evaluator protocol over gRPC on a Unix
// domain socket. Messages are google.protobuf.Struct values holding the
// same fields as the stdio protocol, so no generated stubs are needed.
package evalgrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName        = "jrepl.evaluator.v1.Evaluator"
	callMethod         = "/" + serviceName + "/Call"
	callbacksMethod    = "/" + serviceName + "/Callbacks"
	messageSubscribed  = "subscribed"
	messageCallback    = "callback"
	opStart            = "start"
	opReset            = "reset"
	opPing             = "ping"
	defaultCallTimeout = 10 * time.Second
)

// Config controls the evaluator gRPC server and client setup.
type Config struct {
	SocketPath string
	// RequestTimeout bounds unary calls made by the client.
	RequestTimeout time.Duration
}

// evaluatorService is the server side of the hand-written service
// description.
type evaluatorService interface {
	call(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	callbacks(in *structpb.Struct, stream grpc.ServerStream) error
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(evaluatorService).call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(evaluatorService).call(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func callbacksHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(evaluatorService).callbacks(in, stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*evaluatorService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Callbacks", Handler: callbacksHandler, ServerStreams: true},
	},
	Metadata: "jrepl/evaluator/v1/evaluator.proto",
}
