package client

import (
	"context"

	"github.com/joseph-ayodele/jobwatch/internal/entity"
)

// Reply is the transport-neutral answer to one call. StatusCode follows HTTP
// semantics (gRPC status codes are mapped onto it); Body is nil when the
// reply was not a JSON object.
type Reply struct {
	StatusCode int
	Body       map[string]any
	Raw        []byte
}

// OK reports a 2xx reply.
func (r Reply) OK() bool {
	return r.StatusCode/100 == 2
}

// Caller is the request/response primitive the submitter and the status
// fetcher are built on. An error means the call did not complete (network,
// connection, deadline); a completed call with a bad status comes back as a
// non-2xx Reply.
type Caller interface {
	Submit(ctx context.Context, in entity.JobInput) (Reply, error)
	Status(ctx context.Context, handle entity.TaskHandle) (Reply, error)
}
