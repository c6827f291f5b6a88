package host

import (
	"fmt"
	"sync"

	"github.com/go-permit/permit/pkg/errors"
)

// channelRegistry manages all registered bridge channels.
type channelRegistry struct {
	methodChannels map[string]*MethodChannel
	eventChannels  map[string]*EventChannel
	mu             sync.RWMutex
}

var registry = &channelRegistry{
	methodChannels: make(map[string]*MethodChannel),
	eventChannels:  make(map[string]*EventChannel),
}

func (r *channelRegistry) registerMethod(name string, ch *MethodChannel) {
	r.mu.Lock()
	r.methodChannels[name] = ch
	r.mu.Unlock()
}

func (r *channelRegistry) registerEvent(name string, ch *EventChannel) {
	r.mu.Lock()
	r.eventChannels[name] = ch
	r.mu.Unlock()
}

func (r *channelRegistry) getMethodChannel(name string) *MethodChannel {
	r.mu.RLock()
	ch := r.methodChannels[name]
	r.mu.RUnlock()
	return ch
}

func (r *channelRegistry) getEventChannel(name string) *EventChannel {
	r.mu.RLock()
	ch := r.eventChannels[name]
	r.mu.RUnlock()
	return ch
}

// bridge is the installed host bridge, nil until SetBridge accepts one.
var bridge Bridge

// Bridge defines the interface for calling host-side capability services.
type Bridge interface {
	// InvokeMethod calls a method on the host side.
	InvokeMethod(channel, method string, args []byte) ([]byte, error)

	// StartEventStream tells the host to start sending events for a channel.
	StartEventStream(channel string) error

	// StopEventStream tells the host to stop sending events for a channel.
	StopEventStream(channel string) error
}

// SetBridge installs the host bridge implementation. Called by the embedding
// application during initialization; pass nil to detach.
//
// A bridge implementing VersionedBridge is checked against the supported
// protocol range first. An incompatible bridge is not installed: the mismatch
// is reported, recorded for ProtocolError, and the library behaves as if no
// bridge were present.
//
// After installing the bridge, SetBridge starts event streams for any event
// channels that acquired subscriptions before the bridge was available. This
// ensures early Listen calls are not silently lost. Startup errors are
// dispatched to subscribers' error handlers.
func SetBridge(b Bridge) {
	protocolErr = nil
	if vb, ok := b.(VersionedBridge); ok {
		if err := checkProtocol(vb.ProtocolVersion()); err != nil {
			protocolErr = err
			bridge = nil
			errors.Report(&errors.PermitError{
				Op:   "host.SetBridge",
				Kind: errors.KindInit,
				Err:  err,
			})
			return
		}
	}
	bridge = b
	if b == nil {
		return
	}

	// Start event streams for channels that subscribed before the bridge was set.
	registry.mu.RLock()
	channels := make([]*EventChannel, 0, len(registry.eventChannels))
	for _, ch := range registry.eventChannels {
		channels = append(channels, ch)
	}
	registry.mu.RUnlock()

	for _, ch := range channels {
		ch.mu.Lock()
		shouldStart := len(ch.subscriptions) > 0 && !ch.started
		if shouldStart {
			ch.started = true
		}
		ch.mu.Unlock()

		if shouldStart {
			if err := startEventStream(ch.name); err != nil {
				ch.mu.Lock()
				ch.started = false
				ch.mu.Unlock()
				ch.dispatchError(err)
			}
		}
	}
}

// invokeBridge calls a method on the host side.
func invokeBridge(channel, method string, args any) (any, error) {
	if bridge == nil {
		return nil, ErrBridgeUnavailable
	}

	// Encode arguments
	argsData, err := DefaultCodec.Encode(args)
	if err != nil {
		return nil, err
	}

	// Call the host
	resultData, err := bridge.InvokeMethod(channel, method, argsData)
	if err != nil {
		return nil, err
	}

	// Decode result
	return DefaultCodec.Decode(resultData)
}

// startEventStream notifies the host to start sending events.
func startEventStream(channel string) error {
	if bridge == nil {
		errors.Report(&errors.PermitError{
			Op:      "host.startEventStream",
			Kind:    errors.KindHost,
			Channel: channel,
			Err:     ErrBridgeUnavailable,
		})
		return ErrBridgeUnavailable
	}
	if err := bridge.StartEventStream(channel); err != nil {
		errors.Report(&errors.PermitError{
			Op:      "host.startEventStream",
			Kind:    errors.KindHost,
			Channel: channel,
			Err:     err,
		})
		return err
	}
	return nil
}

// stopEventStream notifies the host to stop sending events.
func stopEventStream(channel string) error {
	if bridge == nil {
		errors.Report(&errors.PermitError{
			Op:      "host.stopEventStream",
			Kind:    errors.KindHost,
			Channel: channel,
			Err:     ErrBridgeUnavailable,
		})
		return ErrBridgeUnavailable
	}
	if err := bridge.StopEventStream(channel); err != nil {
		errors.Report(&errors.PermitError{
			Op:      "host.stopEventStream",
			Kind:    errors.KindHost,
			Channel: channel,
			Err:     err,
		})
		return err
	}
	return nil
}

// HandleMethodCall is called from the bridge when the host invokes a Go method.
func HandleMethodCall(channel, method string, argsData []byte) ([]byte, error) {
	ch := registry.getMethodChannel(channel)
	if ch == nil {
		return nil, ErrChannelNotFound
	}

	// Decode arguments
	args, err := DefaultCodec.Decode(argsData)
	if err != nil {
		return nil, err
	}

	// Handle the call
	result, err := ch.handleCall(method, args)
	if err != nil {
		return nil, err
	}

	// Encode result
	return DefaultCodec.Encode(result)
}

// ErrChannelNotRegistered is returned when an event is received for an unregistered channel.
var ErrChannelNotRegistered = fmt.Errorf("event channel not registered")

// HandleEvent is called from the bridge when the host sends an event.
func HandleEvent(channel string, eventData []byte) error {
	ch := registry.getEventChannel(channel)
	if ch == nil {
		err := fmt.Errorf("%w: %s", ErrChannelNotRegistered, channel)
		errors.Report(&errors.PermitError{
			Op:      "host.HandleEvent",
			Kind:    errors.KindHost,
			Channel: channel,
			Err:     err,
		})
		return err
	}

	data, err := DefaultCodec.Decode(eventData)
	if err != nil {
		ch.dispatchError(err)
		return err
	}

	ch.dispatchEvent(data)
	return nil
}

// HandleEventError is called from the bridge when an event stream errors.
func HandleEventError(channel string, code, message string) error {
	ch := registry.getEventChannel(channel)
	if ch == nil {
		err := fmt.Errorf("%w: %s", ErrChannelNotRegistered, channel)
		errors.Report(&errors.PermitError{
			Op:      "host.HandleEventError",
			Kind:    errors.KindHost,
			Channel: channel,
			Err:     err,
		})
		return err
	}

	ch.dispatchError(NewChannelError(code, message))
	return nil
}

// HandleEventDone is called from the bridge when an event stream ends.
func HandleEventDone(channel string) error {
	ch := registry.getEventChannel(channel)
	if ch == nil {
		err := fmt.Errorf("%w: %s", ErrChannelNotRegistered, channel)
		errors.Report(&errors.PermitError{
			Op:      "host.HandleEventDone",
			Kind:    errors.KindHost,
			Channel: channel,
			Err:     err,
		})
		return err
	}

	ch.dispatchDone()
	return nil
}

// ResetForTest resets all global bridge state for test isolation.
// It clears the bridge and any recorded protocol error, removes all event
// subscriptions, and resets the dispatch function so that the package
// behaves as if freshly initialized. This should only be called from tests.
func ResetForTest() {
	bridge = nil
	protocolErr = nil

	// Clear all event channel subscriptions and started flags
	registry.mu.RLock()
	channels := make([]*EventChannel, 0, len(registry.eventChannels))
	for _, ch := range registry.eventChannels {
		channels = append(channels, ch)
	}
	registry.mu.RUnlock()

	for _, ch := range channels {
		ch.mu.Lock()
		ch.subscriptions = ch.subscriptions[:0]
		ch.started = false
		ch.mu.Unlock()
	}

	// Reset dispatch function
	dispatchMu.Lock()
	dispatchFunc = nil
	dispatchMu.Unlock()
}
