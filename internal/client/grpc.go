package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
)

// Full method names of the job service. Requests and replies are
// google.protobuf.Struct values carrying the same fields as the HTTP API.
const (
	MethodSubmit    = "/jobwatch.v1.JobService/Submit"
	MethodGetStatus = "/jobwatch.v1.JobService/GetStatus"
)

// GRPCCaller speaks to the service over gRPC.
type GRPCCaller struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
	apiKey string
	logger *slog.Logger
}

// DialGRPC opens a client connection to target. Without options the
// connection is plaintext.
func DialGRPC(target, apiKey string, logger *slog.Logger, opts ...grpc.DialOption) (*GRPCCaller, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc client %s: %w", target, err)
	}
	c := NewGRPCCaller(conn, apiKey, logger)
	c.closer = conn
	return c, nil
}

func NewGRPCCaller(conn grpc.ClientConnInterface, apiKey string, logger *slog.Logger) *GRPCCaller {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCCaller{conn: conn, apiKey: apiKey, logger: logger}
}

// Close releases the connection when the caller owns it.
func (c *GRPCCaller) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *GRPCCaller) Submit(ctx context.Context, in entity.JobInput) (Reply, error) {
	fields := make(map[string]any, len(in.Fields))
	for k, v := range in.Fields {
		fields[k] = v
	}
	files := make([]any, 0, len(in.Files))
	for _, f := range in.Files {
		r, err := f.Open()
		if err != nil {
			return Reply{}, fmt.Errorf("open %s: %w", f.Name(), err)
		}
		b, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			return Reply{}, fmt.Errorf("read %s: %w", f.Name(), err)
		}
		files = append(files, map[string]any{
			"field":    f.Field,
			"filename": f.Name(),
			"content":  base64.StdEncoding.EncodeToString(b),
		})
	}

	req, err := structpb.NewStruct(map[string]any{
		"kind":   string(in.Kind),
		"fields": fields,
		"files":  files,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("encode request: %w", err)
	}
	return c.invoke(ctx, MethodSubmit, req)
}

func (c *GRPCCaller) Status(ctx context.Context, handle entity.TaskHandle) (Reply, error) {
	req, err := structpb.NewStruct(map[string]any{"task_id": string(handle)})
	if err != nil {
		return Reply{}, fmt.Errorf("encode request: %w", err)
	}
	return c.invoke(ctx, MethodGetStatus, req)
}

// invoke performs one unary call. Connection-level failures come back as
// errors; application statuses become non-2xx replies, like the HTTP caller.
func (c *GRPCCaller) invoke(ctx context.Context, method string, req *structpb.Struct) (Reply, error) {
	start := time.Now()
	if c.apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.apiKey)
	}

	resp := &structpb.Struct{}
	err := c.conn.Invoke(ctx, method, req, resp)
	code := common.GRPCCode(err)
	c.logger.Debug("client.grpc.call",
		"method", method,
		"code", code.String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if err != nil {
		if common.IsTransientCode(code) || ctx.Err() != nil {
			return Reply{}, err
		}
		reply := Reply{StatusCode: httpStatusFromCode(code)}
		if st, ok := status.FromError(err); ok && st.Message() != "" {
			reply.Body = map[string]any{"detail": st.Message()}
		}
		return reply, nil
	}

	raw, _ := protojson.Marshal(resp)
	return Reply{StatusCode: http.StatusOK, Body: resp.AsMap(), Raw: raw}, nil
}

func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
