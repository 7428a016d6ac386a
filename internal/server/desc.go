package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName   = "docextract.v1.DocumentService"
	ProcessMethod = "/" + ServiceName + "/Process"
)

// DocumentServiceServer is the server API for docextract.v1.DocumentService.
// Messages are google.protobuf.Struct so no generated code is needed.
type DocumentServiceServer interface {
	Process(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterDocumentServiceServer(s grpc.ServiceRegistrar, srv DocumentServiceServer) {
	s.RegisterService(&DocumentServiceDesc, srv)
}

func processHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DocumentServiceServer).Process(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ProcessMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DocumentServiceServer).Process(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var DocumentServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocumentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Process", Handler: processHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docextract/v1/document.proto",
}

// Process calls DocumentService/Process on cc.
func Process(ctx context.Context, cc grpc.ClientConnInterface, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, ProcessMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
