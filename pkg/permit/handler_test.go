package permit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	permiterrors "github.com/go-permit/permit/pkg/errors"
	"github.com/go-permit/permit/pkg/host"
)

// streamBridge is a queryBridge that records which event streams the host
// was asked to start.
type streamBridge struct {
	queryBridge

	mu      sync.Mutex
	streams []string
}

func (b *streamBridge) StartEventStream(channel string) error {
	b.mu.Lock()
	b.streams = append(b.streams, channel)
	b.mu.Unlock()
	return nil
}

func (b *streamBridge) startedStreams() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.streams...)
}

func pushChange(t *testing.T, name Name, state State) {
	t.Helper()
	data, err := host.DefaultCodec.Encode(map[string]any{
		"name":  string(name),
		"state": string(state),
	})
	if err != nil {
		t.Fatalf("encode change: %v", err)
	}
	if err := host.HandleEvent(ChangesChannelName, data); err != nil {
		t.Fatalf("push change: %v", err)
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestHandlerGranted(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "granted", "id": "h-1"}})

	got := make(chan *Status, 1)
	wrongPath := make(chan string, 2)
	h := NewHandler(Request{Name: Camera},
		WithGranted(func(s *Status) { got <- s }),
		WithDenied(func() { wrongPath <- "denied" }),
		WithError(func(error) { wrongPath <- "error" }))
	h.Invoke(context.Background())

	select {
	case s := <-got:
		if s == nil {
			t.Fatal("granted callback received nil status")
		}
		if s.State() != Granted {
			t.Errorf("expected state %q, got %q", Granted, s.State())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for granted callback")
	}
	select {
	case which := <-wrongPath:
		t.Errorf("%s callback fired on a granted completion", which)
	default:
	}
}

func TestHandlerSlotThenOptionOrder(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "prompt"}})

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 1)
	h := NewHandler(Request{Name: Push}, WithGranted(func(*Status) {
		mu.Lock()
		order = append(order, "option")
		mu.Unlock()
		done <- struct{}{}
	}))
	h.OnGranted(func(*Status) {
		mu.Lock()
		order = append(order, "slot")
		mu.Unlock()
	})
	h.Invoke(context.Background())

	waitSignal(t, done, "completion")
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "slot" || order[1] != "option" {
		t.Errorf("expected slot before option, got %v", order)
	}
}

func TestHandlerDenied(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "denied"}})

	fired := make(chan struct{}, 1)
	h := NewHandler(Request{Name: Microphone}, WithDenied(func() { fired <- struct{}{} }))
	h.Invoke(context.Background())

	waitSignal(t, fired, "denied callback")
}

func TestHandlerErrorSlot(t *testing.T) {
	installBridge(t, &queryBridge{err: host.NewChannelError(CodeUnsupportedPermission, "not here")})

	got := make(chan error, 1)
	h := NewHandler(Request{Name: NFC})
	h.OnError(func(err error) { got <- err })
	h.Invoke(context.Background())

	select {
	case err := <-got:
		var stateErr *StateError
		if !errors.As(err, &stateErr) {
			t.Fatalf("expected *StateError, got %T", err)
		}
		if stateErr.State != Unsupported {
			t.Errorf("expected state %q, got %q", Unsupported, stateErr.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
}

func TestHandlerDropsFailureSilently(t *testing.T) {
	bridge := &queryBridge{err: host.NewChannelError(CodeInvalidRequest, "bad request")}
	invoked := make(chan struct{}, 1)
	bridge.onInvoke = func() { invoked <- struct{}{} }
	installBridge(t, bridge)

	var fired sync.Map
	h := NewHandler(Request{Name: Camera},
		WithGranted(func(*Status) { fired.Store("granted", true) }),
		WithDenied(func() { fired.Store("denied", true) }))
	h.Invoke(context.Background())

	waitSignal(t, invoked, "provider call")
	time.Sleep(50 * time.Millisecond)

	fired.Range(func(key, _ any) bool {
		t.Errorf("callback %v fired on a dropped failure", key)
		return true
	})
}

func TestHandlerChangeThenDeniedOrder(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "granted"}})

	var mu sync.Mutex
	var order []string
	completed := make(chan struct{}, 1)
	optionDenied := 0

	h := NewHandler(Request{Name: Camera}, WithDenied(func() { optionDenied++ }))
	h.OnChange(func(s *Status) {
		mu.Lock()
		order = append(order, "change:"+string(s.State()))
		mu.Unlock()
	})
	h.OnDenied(func() {
		mu.Lock()
		order = append(order, "denied")
		mu.Unlock()
	})
	h.OnGranted(func(*Status) { completed <- struct{}{} })
	h.Invoke(context.Background())
	waitSignal(t, completed, "completion")

	pushChange(t, Camera, Denied)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"change:denied", "denied"}
	if len(order) != len(want) {
		t.Fatalf("expected callbacks %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected callbacks %v, got %v", want, order)
		}
	}
	if optionDenied != 0 {
		t.Errorf("constructor denied callback fired %d times on the change path", optionDenied)
	}
}

func TestHandlerChangeToGrantedSkipsDeniedSlot(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "denied"}})

	var mu sync.Mutex
	deniedCount := 0
	changes := make(chan State, 1)
	completed := make(chan struct{}, 2)

	h := NewHandler(Request{Name: Notifications})
	h.OnChange(func(s *Status) { changes <- s.State() })
	h.OnDenied(func() {
		mu.Lock()
		deniedCount++
		mu.Unlock()
		completed <- struct{}{}
	})
	h.Invoke(context.Background())
	waitSignal(t, completed, "denied completion")

	pushChange(t, Notifications, Granted)

	select {
	case state := <-changes:
		if state != Granted {
			t.Errorf("expected change to %q, got %q", Granted, state)
		}
	default:
		t.Fatal("change slot did not fire")
	}
	mu.Lock()
	defer mu.Unlock()
	if deniedCount != 1 {
		t.Errorf("denied slot fired %d times; a change to granted must not fire it", deniedCount)
	}
}

func TestHandlerFiltersOtherCapabilities(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "granted"}})

	changes := make(chan Name, 2)
	completed := make(chan struct{}, 1)
	h := NewHandler(Request{Name: Camera})
	h.OnChange(func(s *Status) { changes <- s.Name() })
	h.OnGranted(func(*Status) { completed <- struct{}{} })
	h.Invoke(context.Background())
	waitSignal(t, completed, "completion")

	pushChange(t, Microphone, Denied)
	pushChange(t, Camera, Denied)

	if got := len(changes); got != 1 {
		t.Fatalf("expected exactly one change callback, got %d", got)
	}
	if name := <-changes; name != Camera {
		t.Errorf("expected change for %q, got %q", Camera, name)
	}
}

func TestHandlerSubscriptionReplacedOnReinvoke(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "granted"}})

	var changeCount int
	var mu sync.Mutex
	completed := make(chan struct{}, 2)

	h := NewHandler(Request{Name: Camera})
	h.OnChange(func(*Status) {
		mu.Lock()
		changeCount++
		mu.Unlock()
	})
	h.OnGranted(func(*Status) { completed <- struct{}{} })

	h.Invoke(context.Background())
	waitSignal(t, completed, "first completion")
	h.Invoke(context.Background())
	waitSignal(t, completed, "second completion")

	pushChange(t, Camera, Denied)

	mu.Lock()
	defer mu.Unlock()
	if changeCount != 1 {
		t.Errorf("expected one change callback after re-invocation, got %d", changeCount)
	}
}

func TestHandlerWithoutChangeSlotNeverSubscribes(t *testing.T) {
	bridge := &streamBridge{queryBridge: queryBridge{response: map[string]any{"state": "granted"}}}
	installBridge(t, bridge)

	completed := make(chan struct{}, 1)
	h := NewHandler(Request{Name: Camera}, WithGranted(func(*Status) { completed <- struct{}{} }))
	h.Invoke(context.Background())
	waitSignal(t, completed, "completion")

	for _, name := range bridge.startedStreams() {
		if name == ChangesChannelName {
			t.Error("change stream started without a change slot")
		}
	}
}

func TestHandlerSlotOverwrite(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "granted"}})

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	h := NewHandler(Request{Name: Camera})
	h.OnGranted(func(*Status) { first <- struct{}{} })
	h.OnGranted(func(*Status) { second <- struct{}{} })
	h.Invoke(context.Background())

	waitSignal(t, second, "second slot")
	select {
	case <-first:
		t.Error("overwritten slot still fired")
	default:
	}
}

func TestHandlersAreIndependent(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "granted"}})

	aChanges := make(chan struct{}, 2)
	bChanges := make(chan struct{}, 2)
	aDone := make(chan struct{}, 1)
	bDone := make(chan struct{}, 1)

	a := NewHandler(Request{Name: Camera})
	a.OnChange(func(*Status) { aChanges <- struct{}{} })
	a.OnGranted(func(*Status) { aDone <- struct{}{} })
	b := NewHandler(Request{Name: Camera})
	b.OnChange(func(*Status) { bChanges <- struct{}{} })
	b.OnGranted(func(*Status) { bDone <- struct{}{} })

	a.Invoke(context.Background())
	b.Invoke(context.Background())
	waitSignal(t, aDone, "first handler completion")
	waitSignal(t, bDone, "second handler completion")

	pushChange(t, Camera, Prompt)

	if got := len(aChanges); got != 1 {
		t.Errorf("expected one change on first handler, got %d", got)
	}
	if got := len(bChanges); got != 1 {
		t.Errorf("expected one change on second handler, got %d", got)
	}
}

func TestHandlerCloseStopsNotifications(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "granted"}})

	changes := make(chan struct{}, 2)
	completed := make(chan struct{}, 1)
	h := NewHandler(Request{Name: Camera})
	h.OnChange(func(*Status) { changes <- struct{}{} })
	h.OnGranted(func(*Status) { completed <- struct{}{} })
	h.Invoke(context.Background())
	waitSignal(t, completed, "completion")

	h.Close()
	pushChange(t, Camera, Denied)

	if got := len(changes); got != 0 {
		t.Errorf("expected no change callbacks after Close, got %d", got)
	}
}

// panicHandler records reported panics.
type panicHandler struct {
	panics chan *permiterrors.PanicError
}

func (h *panicHandler) HandleError(*permiterrors.PermitError) {}
func (h *panicHandler) HandlePanic(p *permiterrors.PanicError) {
	h.panics <- p
}

func TestHandlerRecoversCallbackPanic(t *testing.T) {
	installBridge(t, &queryBridge{response: map[string]any{"state": "granted"}})

	ph := &panicHandler{panics: make(chan *permiterrors.PanicError, 1)}
	permiterrors.SetHandler(ph)
	t.Cleanup(func() { permiterrors.SetHandler(nil) })

	h := NewHandler(Request{Name: Camera}, WithGranted(func(*Status) { panic("callback exploded") }))
	h.Invoke(context.Background())

	select {
	case p := <-ph.panics:
		if p.Value != "callback exploded" {
			t.Errorf("unexpected panic value %v", p.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not reported")
	}
}
