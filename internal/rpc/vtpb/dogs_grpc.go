package vtpb

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	DogService_All_FullMethodName   = "/vt.v1.DogService/All"
	DogService_Delay_FullMethodName = "/vt.v1.DogService/Delay"
)

// DogServiceServer is the server API for vt.v1.DogService.
type DogServiceServer interface {
	All(context.Context, *emptypb.Empty) (*DogsResponse, error)
	Delay(context.Context, *DelayRequest) (*DelayResponse, error)
}

func RegisterDogServiceServer(s grpc.ServiceRegistrar, srv DogServiceServer) {
	s.RegisterService(&DogService_ServiceDesc, srv)
}

// Interceptors see the wire messages; conversion to the typed structs
// happens inside the innermost handler.
func _DogService_All_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		out, err := srv.(DogServiceServer).All(ctx, req.(*emptypb.Empty))
		if err != nil {
			return nil, err
		}
		return out.ToProto(), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DogService_All_FullMethodName}
	return interceptor(ctx, in, info, handler)
}

func _DogService_Delay_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := newDelayRequest()
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		m, ok := req.(protoreflect.ProtoMessage)
		if !ok {
			return nil, fmt.Errorf("vtpb: unexpected request type %T", req)
		}
		out, err := srv.(DogServiceServer).Delay(ctx, delayRequestFromProto(m.ProtoReflect()))
		if err != nil {
			return nil, err
		}
		return out.ToProto(), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DogService_Delay_FullMethodName}
	return interceptor(ctx, in, info, handler)
}

var DogService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DogServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "All", Handler: _DogService_All_Handler},
		{MethodName: "Delay", Handler: _DogService_Delay_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: FileName,
}

// DogServiceClient is the client API for vt.v1.DogService.
type DogServiceClient interface {
	All(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*DogsResponse, error)
	Delay(ctx context.Context, in *DelayRequest, opts ...grpc.CallOption) (*DelayResponse, error)
}

type dogServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewDogServiceClient(cc grpc.ClientConnInterface) DogServiceClient {
	return &dogServiceClient{cc: cc}
}

func (c *dogServiceClient) All(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*DogsResponse, error) {
	if in == nil {
		in = new(emptypb.Empty)
	}
	out := newDogsResponse()
	if err := c.cc.Invoke(ctx, DogService_All_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return dogsResponseFromProto(out), nil
}

func (c *dogServiceClient) Delay(ctx context.Context, in *DelayRequest, opts ...grpc.CallOption) (*DelayResponse, error) {
	out := newDelayResponse()
	if err := c.cc.Invoke(ctx, DogService_Delay_FullMethodName, in.ToProto(), out, opts...); err != nil {
		return nil, err
	}
	return delayResponseFromProto(out), nil
}
