package client

import (
	"context"
	"fmt"

	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
)

// StatusFetcher adapts a Caller to poll.Fetcher. Anything short of a 2xx JSON
// object is a transport error, which the engine treats as transient.
type StatusFetcher struct {
	caller Caller
}

func NewStatusFetcher(caller Caller) *StatusFetcher {
	return &StatusFetcher{caller: caller}
}

func (f *StatusFetcher) FetchStatus(ctx context.Context, handle entity.TaskHandle) (poll.RawStatus, error) {
	reply, err := f.caller.Status(ctx, handle)
	if err != nil {
		return nil, common.TransportError("status call failed", err)
	}
	if !reply.OK() {
		return nil, common.TransportError(fmt.Sprintf("status call returned %d", reply.StatusCode), nil)
	}
	if reply.Body == nil {
		return nil, common.TransportError("status reply is not a JSON object", nil)
	}
	return poll.RawStatus(reply.Body), nil
}
