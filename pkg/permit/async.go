package permit

import (
	"context"
	"fmt"

	"github.com/go-permit/permit/pkg/errors"
	"github.com/go-permit/permit/pkg/host"
)

// Resolution is the pending result of one AsyncHandler invocation. It
// settles exactly once, before any callback slots run, so waiting on it
// cannot be wedged by a misbehaving callback.
type Resolution struct {
	done chan struct{}
	out  Outcome
}

// Done returns a channel closed when the invocation settles.
func (r *Resolution) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the invocation settles or ctx expires. Granted, prompt
// and denied outcomes resolve with a nil error; unsupported and invalid
// outcomes reject with the outcome's *StateError. An expired ctx yields a
// zero outcome and an error wrapping host.ErrTimeout or host.ErrCanceled.
func (r *Resolution) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.out, r.out.Err()
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Outcome{}, fmt.Errorf("%w: %v", host.ErrTimeout, ctx.Err())
		}
		return Outcome{}, fmt.Errorf("%w: %v", host.ErrCanceled, ctx.Err())
	}
}

// AsyncHandler is a Handler whose invocations additionally hand back a
// Resolution, for callers that want to await the result instead of (or on
// top of) routing it through callbacks. Unlike NewHandler it takes no
// constructor callbacks; completion routing uses the slots alone.
type AsyncHandler struct {
	h Handler
}

// NewAsyncHandler builds an async handler for req.
func NewAsyncHandler(req Request) *AsyncHandler {
	return &AsyncHandler{h: Handler{req: req}}
}

// OnChange registers the change slot. See Handler.OnChange.
func (a *AsyncHandler) OnChange(fn func(*Status)) *AsyncHandler {
	a.h.OnChange(fn)
	return a
}

// OnGranted registers the granted slot. See Handler.OnGranted.
func (a *AsyncHandler) OnGranted(fn func(*Status)) *AsyncHandler {
	a.h.OnGranted(fn)
	return a
}

// OnDenied registers the denied slot. See Handler.OnDenied.
func (a *AsyncHandler) OnDenied(fn func()) *AsyncHandler {
	a.h.OnDenied(fn)
	return a
}

// OnError registers the error slot. See Handler.OnError.
func (a *AsyncHandler) OnError(fn func(error)) *AsyncHandler {
	a.h.OnError(fn)
	return a
}

// Invoke runs the query on a fresh goroutine and returns the Resolution it
// will settle. The Resolution settles before the callback slots fire.
func (a *AsyncHandler) Invoke(ctx context.Context) *Resolution {
	res := &Resolution{done: make(chan struct{})}
	go func() {
		defer errors.Recover("permit.AsyncHandler.Invoke")
		out := Query(ctx, a.h.req)
		res.out = out
		close(res.done)
		a.h.complete(out)
	}()
	return res
}

// Close cancels the underlying change subscription, if any.
func (a *AsyncHandler) Close() {
	a.h.Close()
}
