// Package rpcapi describes the gRPC API service. Requests and responses
// are google.protobuf.Struct messages shaped like JSON-RPC objects:
//
//	request:  {"method": "host.get", "params": {...}, "auth": "..."}
//	response: {"result": ...} or {"error": {"code", "message", "data", "debug"}}
package rpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName    = "sentinel.api.v1.APIService"
	CallFullMethod = "/" + ServiceName + "/Call"
)

// APIServiceServer is the server API for the API service.
type APIServiceServer interface {
	Call(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAPIServiceServer registers srv with s.
func RegisterAPIServiceServer(s grpc.ServiceRegistrar, srv APIServiceServer) {
	s.RegisterService(&APIServiceDesc, srv)
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(APIServiceServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CallFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(APIServiceServer).Call(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// APIServiceDesc is the grpc.ServiceDesc for the API service.
var APIServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*APIServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sentinel/api/v1/api.proto",
}

// APIServiceClient is the client API for the API service.
type APIServiceClient interface {
	Call(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type apiServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAPIServiceClient(cc grpc.ClientConnInterface) APIServiceClient {
	return &apiServiceClient{cc: cc}
}

func (c *apiServiceClient) Call(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, CallFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
