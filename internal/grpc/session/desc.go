// Package sessiongrpc serves the session lifecycle over gRPC.
//
// Messages are protobuf well-known types, so the service is described by hand
// instead of from generated code.
package sessiongrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "portal.session.v1.Sessions"

// Full method names, as seen by interceptors.
const (
	MethodIssue        = "/" + ServiceName + "/Issue"
	MethodRefresh      = "/" + ServiceName + "/Refresh"
	MethodValidate     = "/" + ServiceName + "/Validate"
	MethodRevoke       = "/" + ServiceName + "/Revoke"
	MethodRevokeAll    = "/" + ServiceName + "/RevokeAll"
	MethodListSessions = "/" + ServiceName + "/ListSessions"
	MethodSweep        = "/" + ServiceName + "/Sweep"
)

type sessionsServer interface {
	Issue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Validate(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Revoke(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	RevokeAll(context.Context, *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
	ListSessions(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Sweep(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*sessionsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Issue", sessionsServer.Issue),
		unary("Refresh", sessionsServer.Refresh),
		unary("Validate", sessionsServer.Validate),
		unary("Revoke", sessionsServer.Revoke),
		unary("RevokeAll", sessionsServer.RevokeAll),
		unary("ListSessions", sessionsServer.ListSessions),
		unary("Sweep", sessionsServer.Sweep),
	},
	Streams: []grpc.StreamDesc{},
}

func unary[Req any, PReq interface {
	*Req
	proto.Message
}, Resp any](name string, call func(sessionsServer, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}

			server := srv.(sessionsServer)
			if interceptor == nil {
				resp, err := call(server, ctx, in)
				return resp, err
			}

			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(server, ctx, req.(PReq))
				return resp, err
			}

			return interceptor(ctx, in, info, handler)
		},
	}
}
