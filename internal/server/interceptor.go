package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/joseph-ayodele/jobwatch/internal/common"
)

// loggingInterceptor tags each call with a request id and logs its outcome.
func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		reqID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 {
				reqID = v[0]
			}
		}
		if reqID == "" {
			reqID = uuid.New().String()
		}
		ctx = common.WithRequestID(ctx, reqID)

		start := time.Now()
		resp, err := handler(ctx, req)
		code := common.GRPCCode(err)
		attrs := []any{"method", info.FullMethod, "req_id", reqID, "code", code.String(), "elapsed_ms", time.Since(start).Milliseconds()}
		if err != nil {
			logger.Warn("server.grpc.call", append(attrs, "error", err)...)
		} else {
			logger.Debug("server.grpc.call", attrs...)
		}
		return resp, err
	}
}
