package engine

import (
	"context"

	"github.com/whileendless/go-rawhttp-core/pkg/transport"
)

// AsyncHandle is a cooperative-async handle for a single request. Go has no
// stackless coroutines, so there is no "suspend only at I/O points" state
// machine to drive: Send starts a goroutine that performs the blocking
// dial/write/read sequence and publishes its outcome on a buffered channel,
// and the caller "drives" the computation by waiting on that channel (or on
// ctx.Done()) instead of polling. Canceling ctx propagates through the same
// context used for the dial and every subsequent read/write, which is the
// only cancellation point Go's net.Conn actually exposes mid-read.
type AsyncHandle struct {
	cfg *Config
	tr  *transport.Transport
}

// Result carries Send's outcome across the goroutine boundary.
type Result struct {
	Resp *Response
	Err  error
}

// Send returns a channel that receives exactly one Result once the send
// completes or ctx is canceled. The caller's "driving" is simply receiving
// from the channel (directly, or inside a select alongside other work).
func (h *AsyncHandle) Send(ctx context.Context) <-chan Result {
	if h.tr == nil {
		h.tr = transport.New()
	}
	out := make(chan Result, 1)

	sendCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	go func() {
		defer cancel()
		resp, err := doSend(sendCtx, h.tr, h.cfg)
		out <- Result{Resp: resp, Err: err}
	}()

	return out
}

// Await blocks until Send's result is ready or ctx is canceled, whichever
// comes first — a convenience for callers without their own scheduler loop.
func (h *AsyncHandle) Await(ctx context.Context) (*Response, error) {
	ch := h.Send(ctx)
	select {
	case r := <-ch:
		return r.Resp, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
