package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "threads.v1.ThreadService"

// ThreadServiceServer is the server API for threads.v1.ThreadService. Every
// request and response is a google.protobuf.Struct.
type ThreadServiceServer interface {
	CreateReply(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteComment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetComment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DecorateThread(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ThreadServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ThreadServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ThreadServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ThreadServiceDesc describes threads.v1.ThreadService for grpc.Server.
var ThreadServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ThreadServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateReply", Handler: unaryHandler("CreateReply", ThreadServiceServer.CreateReply)},
		{MethodName: "DeleteComment", Handler: unaryHandler("DeleteComment", ThreadServiceServer.DeleteComment)},
		{MethodName: "GetComment", Handler: unaryHandler("GetComment", ThreadServiceServer.GetComment)},
		{MethodName: "DecorateThread", Handler: unaryHandler("DecorateThread", ThreadServiceServer.DecorateThread)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "threads/v1/threads.proto",
}

func RegisterThreadServiceServer(s grpc.ServiceRegistrar, srv ThreadServiceServer) {
	s.RegisterService(&ThreadServiceDesc, srv)
}
