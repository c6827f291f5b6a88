package permit

import (
	"context"
	"sync"

	"github.com/go-permit/permit/pkg/errors"
	"github.com/go-permit/permit/pkg/host"
)

// Option configures the completion callbacks a handler is constructed with.
// Constructor callbacks fire only for query completion; change notifications
// go exclusively through the registered slots.
type Option func(*options)

type options struct {
	granted func(*Status)
	denied  func()
	errFn   func(error)
}

// WithGranted sets the constructor callback fired when a query completes
// granted or prompt.
func WithGranted(fn func(*Status)) Option {
	return func(o *options) { o.granted = fn }
}

// WithDenied sets the constructor callback fired when a query completes
// denied.
func WithDenied(fn func()) Option {
	return func(o *options) { o.denied = fn }
}

// WithError sets the constructor callback fired when a query fails. Without
// it a failing handler invocation is dropped silently.
func WithError(fn func(error)) Option {
	return func(o *options) { o.errFn = fn }
}

// registration holds the four callback slots and the live change
// subscription for one handler. Slot writes overwrite; there is at most one
// subscription per handler at a time.
type registration struct {
	mu      sync.Mutex
	change  func(*Status)
	granted func(*Status)
	denied  func()
	errFn   func(error)
	sub     *host.Subscription
}

// Handler runs permission queries for a fixed request and routes the results
// to callbacks instead of return values. Construct one with NewHandler, set
// slots as needed, then call Invoke from the code path that must not block.
//
// The request is fixed at construction. Callback slots can be replaced at
// any time; each setter overwrites the previous function in that slot. A
// handler never surfaces errors to its caller: failures route to the error
// slot, then the WithError callback, and are otherwise dropped.
type Handler struct {
	req  Request
	opts options
	reg  registration
}

// NewHandler builds a handler for req. Options supply completion callbacks;
// slots registered afterwards run before them on each completion.
func NewHandler(req Request, opts ...Option) *Handler {
	h := &Handler{req: req}
	for _, opt := range opts {
		opt(&h.opts)
	}
	return h
}

// OnChange registers the change slot, overwriting any previous one. With
// the slot set, a completing invocation starts watching the capability and
// subsequent provider notifications fire the slot with the updated
// descriptor. Without it no change subscription is ever attached.
func (h *Handler) OnChange(fn func(*Status)) *Handler {
	h.reg.mu.Lock()
	h.reg.change = fn
	h.reg.mu.Unlock()
	return h
}

// OnGranted registers the granted slot, overwriting any previous one. At
// completion it fires before the WithGranted callback.
func (h *Handler) OnGranted(fn func(*Status)) *Handler {
	h.reg.mu.Lock()
	h.reg.granted = fn
	h.reg.mu.Unlock()
	return h
}

// OnDenied registers the denied slot, overwriting any previous one. It fires
// on denied completions and on changes to denied.
func (h *Handler) OnDenied(fn func()) *Handler {
	h.reg.mu.Lock()
	h.reg.denied = fn
	h.reg.mu.Unlock()
	return h
}

// OnError registers the error slot, overwriting any previous one. At
// completion it fires before the WithError callback.
func (h *Handler) OnError(fn func(error)) *Handler {
	h.reg.mu.Lock()
	h.reg.errFn = fn
	h.reg.mu.Unlock()
	return h
}

// Invoke runs the handler's query on a fresh goroutine and returns
// immediately. Completion routes through the callback slots; a panic inside
// a callback is reported through the error handler rather than crashing the
// process. Invoking again replaces the change subscription of the previous
// run, so each provider notification reaches the change slot once.
func (h *Handler) Invoke(ctx context.Context) {
	go func() {
		defer errors.Recover("permit.Handler.Invoke")
		h.complete(Query(ctx, h.req))
	}()
}

// Close cancels the handler's change subscription, if any. The handler
// stays usable; the next Invoke attaches a new subscription.
func (h *Handler) Close() {
	h.reg.mu.Lock()
	sub := h.reg.sub
	h.reg.sub = nil
	h.reg.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

// complete routes a finished query. The change subscription is attached
// before the completion callbacks run, so a caller observing completion can
// rely on notifications being live.
func (h *Handler) complete(out Outcome) {
	h.reg.mu.Lock()
	watching := h.reg.change != nil
	granted := h.reg.granted
	denied := h.reg.denied
	errFn := h.reg.errFn
	h.reg.mu.Unlock()

	if watching && out.Status != nil {
		h.watch(out.Status)
	}

	dispatch(func() {
		switch {
		case out.Granted():
			deliver(granted, h.opts.granted, out.Status)
		case out.Denied():
			if denied != nil {
				denied()
			}
			if h.opts.denied != nil {
				h.opts.denied()
			}
		default:
			deliver(errFn, h.opts.errFn, out.Err())
		}
	})
}

// watch replaces the handler's change subscription with one on s.
func (h *Handler) watch(s *Status) {
	h.reg.mu.Lock()
	old := h.reg.sub
	h.reg.sub = nil
	h.reg.mu.Unlock()
	if old != nil {
		old.Cancel()
	}

	sub := s.subscribe(func(state State) { h.notify(s, state) })
	h.reg.mu.Lock()
	h.reg.sub = sub
	h.reg.mu.Unlock()
}

// notify fires the change slot for a provider notification, then the denied
// slot when the capability moved to denied. Constructor callbacks do not
// participate in the change path.
func (h *Handler) notify(s *Status, state State) {
	h.reg.mu.Lock()
	change := h.reg.change
	denied := h.reg.denied
	h.reg.mu.Unlock()

	dispatch(func() {
		if change != nil {
			change(s)
		}
		if state == Denied && denied != nil {
			denied()
		}
	})
}

// dispatch runs fn on the application's callback goroutine when one is
// registered, and inline otherwise. Handler callbacks all funnel through
// here, so an application that registers a dispatcher sees them serialized.
func dispatch(fn func()) {
	if !host.Dispatch(fn) {
		fn()
	}
}

// deliver calls the slot callback and then the constructor callback, skipping
// whichever is unset. The value is dropped when neither exists.
func deliver[T any](slot, option func(T), value T) {
	if slot != nil {
		slot(value)
	}
	if option != nil {
		option(value)
	}
}
