package server

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// WatchServiceName is the gRPC service exposed by the daemon. Requests and
// replies are google.protobuf.Struct values.
const WatchServiceName = "jobwatch.v1.WatchService"

// WatchServer is implemented by WatchService.
type WatchServer interface {
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IngestPath(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IngestDirectory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unary(call func(WatchServer, context.Context, *structpb.Struct) (*structpb.Struct, error), name string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(WatchServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + WatchServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(WatchServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var watchServiceDesc = grpc.ServiceDesc{
	ServiceName: WatchServiceName,
	HandlerType: (*WatchServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(WatchServer.ListSessions, "ListSessions"),
		unary(WatchServer.GetSession, "GetSession"),
		unary(WatchServer.ExportSessions, "ExportSessions"),
		unary(WatchServer.IngestPath, "IngestPath"),
		unary(WatchServer.IngestDirectory, "IngestDirectory"),
	},
	Metadata: "jobwatch/v1/watch.proto",
}

// RegisterWatchServer registers srv on s.
func RegisterWatchServer(s grpc.ServiceRegistrar, srv WatchServer) {
	s.RegisterService(&watchServiceDesc, srv)
}

// NewGRPCServer builds the daemon's server with the health service and, when
// srv is non-nil, the watch service. The returned health server starts
// SERVING for the overall server, and for WatchServiceName only when the
// watch service is registered.
func NewGRPCServer(srv *WatchService, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(loggingInterceptor(logger))}, opts...)
	gs := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if srv != nil {
		RegisterWatchServer(gs, srv)
		hs.SetServingStatus(WatchServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	return gs, hs
}
