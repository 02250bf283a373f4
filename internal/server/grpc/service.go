package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chatrelay.v1.RelayService"

// Full method names.
const (
	MethodAuth    = "/" + ServiceName + "/Auth"
	MethodSend    = "/" + ServiceName + "/Send"
	MethodHistory = "/" + ServiceName + "/History"
	MethodLogout  = "/" + ServiceName + "/Logout"
)

// RelayServiceServer is implemented by GRPCServer. Requests and replies are
// generic structs carrying the same fields as the JSON envelope.
type RelayServiceServer interface {
	Auth(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Send(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(RelayServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RelayServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RelayServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RelayServiceDesc describes the service for grpc.Server.RegisterService.
var RelayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Auth",
			Handler: unaryHandler(MethodAuth, func(s RelayServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Auth(ctx, in)
			}),
		},
		{
			MethodName: "Send",
			Handler: unaryHandler(MethodSend, func(s RelayServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Send(ctx, in)
			}),
		},
		{
			MethodName: "History",
			Handler: unaryHandler(MethodHistory, func(s RelayServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.History(ctx, in)
			}),
		},
		{
			MethodName: "Logout",
			Handler: unaryHandler(MethodLogout, func(s RelayServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return s.Logout(ctx, in)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chatrelay/v1/relay.proto",
}

func RegisterRelayServiceServer(s grpc.ServiceRegistrar, srv RelayServiceServer) {
	s.RegisterService(&RelayServiceDesc, srv)
}
