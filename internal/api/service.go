// Package api is the gRPC contract between the comicsync client and the
// library server. Payloads are google.protobuf.Struct values carrying the
// JSON row shape, so the service is declared by hand instead of generated.
package api

import (
	"context"

	"github.com/dmitrijs2005/comicsync/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Full method names.
const (
	MethodPing         = "/" + common.ServiceName + "/Ping"
	MethodRegister     = "/" + common.ServiceName + "/Register"
	MethodLogin        = "/" + common.ServiceName + "/Login"
	MethodRefreshToken = "/" + common.ServiceName + "/RefreshToken"
	MethodList         = "/" + common.ServiceName + "/List"
	MethodUpdate       = "/" + common.ServiceName + "/Update"
	MethodUpdateUser   = "/" + common.ServiceName + "/UpdateUser"
	MethodDelete       = "/" + common.ServiceName + "/Delete"
	MethodDownloadURL  = "/" + common.ServiceName + "/DownloadURL"
)

// LibraryServer is implemented by the server.
type LibraryServer interface {
	Ping(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DownloadURL(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// LibraryClient is the client stub.
type LibraryClient interface {
	Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type libraryClient struct {
	cc grpc.ClientConnInterface
}

func NewLibraryClient(cc grpc.ClientConnInterface) LibraryClient {
	return &libraryClient{cc: cc}
}

func (c *libraryClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type serverCall func(LibraryServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call serverCall) grpc.MethodDesc {
	full := "/" + common.ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LibraryServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LibraryServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes comicsync.v1.Library.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: common.ServiceName,
	HandlerType: (*LibraryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", LibraryServer.Ping),
		unary("Register", LibraryServer.Register),
		unary("Login", LibraryServer.Login),
		unary("RefreshToken", LibraryServer.RefreshToken),
		unary("List", LibraryServer.List),
		unary("Update", LibraryServer.Update),
		unary("UpdateUser", LibraryServer.UpdateUser),
		unary("Delete", LibraryServer.Delete),
		unary("DownloadURL", LibraryServer.DownloadURL),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "comicsync/v1/library",
}

func RegisterLibraryServer(s grpc.ServiceRegistrar, srv LibraryServer) {
	s.RegisterService(&ServiceDesc, srv)
}
