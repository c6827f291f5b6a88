// Package simhost provides an in-process permission provider for development
// and testing. It implements the host bridge contract end to end: queries
// arrive through the method channel, decisions resolve against configured
// states and rules, and decision changes flow back out as change events.
//
// Install a host, drive it from test code, and the permit package behaves
// exactly as it would against a native provider:
//
//	sim := simhost.New(simhost.WithDefaultState(permit.Prompt))
//	sim.Install()
//	sim.Grant(permit.Camera)
//
// State can also live in a YAML file shared between processes; see Load,
// Save and Watch.
package simhost

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/go-permit/permit/pkg/host"
	"github.com/go-permit/permit/pkg/permit"
)

// protocolVersion is what the simulated provider reports to the bridge
// version gate unless overridden with WithProtocolVersion.
const protocolVersion = "v1.0.0"

// validate is a package-level singleton; constructing a validator per call
// is expensive.
var validate = validator.New()

// Host is a simulated permission provider. The zero value is not usable;
// construct with New. All methods are safe for concurrent use.
type Host struct {
	mu        sync.Mutex
	version   string
	fallback  permit.State
	states    map[permit.Name]permit.State
	rules     []rule
	ids       map[permit.Name]string
	streams   map[string]bool
	statePath string
	log       *slog.Logger
}

// New builds a host. Without options every standard capability resolves to
// the prompt state and logging is discarded.
func New(opts ...Option) *Host {
	h := &Host{
		version:  protocolVersion,
		fallback: permit.Prompt,
		states:   make(map[permit.Name]permit.State),
		ids:      make(map[permit.Name]string),
		streams:  make(map[string]bool),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Install registers the host as the process-wide bridge. Tests should pair
// it with host.ResetForTest.
func (h *Host) Install() {
	host.SetBridge(h)
}

// ProtocolVersion implements host.VersionedBridge.
func (h *Host) ProtocolVersion() string {
	return h.version
}

// queryArgs is the wire shape of a query. Pointer fields distinguish absent
// variant members from explicit false.
type queryArgs struct {
	Name            string `json:"name" validate:"required"`
	Sysex           *bool  `json:"sysex"`
	UserVisibleOnly *bool  `json:"userVisibleOnly"`
}

// InvokeMethod implements host.Bridge. Only the query method on the
// permissions channel is served.
func (h *Host) InvokeMethod(channel, method string, args []byte) ([]byte, error) {
	if channel != permit.ChannelName {
		return nil, fmt.Errorf("%w: %s", host.ErrChannelNotFound, channel)
	}
	if method != "query" {
		return nil, fmt.Errorf("%w: %s", host.ErrMethodNotFound, method)
	}
	return h.query(args)
}

func (h *Host) query(args []byte) ([]byte, error) {
	var q queryArgs
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&q); err != nil {
		return nil, host.NewChannelError(permit.CodeInvalidRequest, err.Error())
	}
	if err := validate.Struct(q); err != nil {
		return nil, host.NewChannelError(permit.CodeInvalidRequest, err.Error())
	}
	if q.Sysex != nil && q.Name != string(permit.MIDI) {
		return nil, host.NewChannelError(permit.CodeInvalidRequest, "sysex applies to midi only")
	}
	if q.UserVisibleOnly != nil && q.Name != string(permit.Push) {
		return nil, host.NewChannelError(permit.CodeInvalidRequest, "userVisibleOnly applies to push only")
	}

	name := permit.Name(q.Name)
	h.mu.Lock()
	state, supported := h.resolveLocked(name)
	var id string
	if supported {
		id = h.idLocked(name)
	}
	h.mu.Unlock()

	if !supported {
		h.log.Debug("query refused", "name", q.Name)
		return nil, host.NewChannelError(permit.CodeUnsupportedPermission,
			fmt.Sprintf("unknown capability %q", q.Name))
	}
	h.log.Debug("query", "name", q.Name, "state", string(state))
	return host.DefaultCodec.Encode(map[string]any{
		"state": string(state),
		"id":    id,
	})
}

// StartEventStream implements host.Bridge.
func (h *Host) StartEventStream(channel string) error {
	h.mu.Lock()
	h.streams[channel] = true
	h.mu.Unlock()
	return nil
}

// StopEventStream implements host.Bridge.
func (h *Host) StopEventStream(channel string) error {
	h.mu.Lock()
	delete(h.streams, channel)
	h.mu.Unlock()
	return nil
}

// idLocked returns the stable descriptor id for a capability, minting one on
// first use.
func (h *Host) idLocked(name permit.Name) string {
	id, ok := h.ids[name]
	if !ok {
		id = uuid.NewString()
		h.ids[name] = id
	}
	return id
}

// SetState records an explicit decision for a capability. When the decision
// visibly changes what a query would answer, a change event goes out to any
// running change stream.
func (h *Host) SetState(name permit.Name, state permit.State) {
	h.mu.Lock()
	before, wasSupported := h.resolveLocked(name)
	h.states[name] = state
	after, _ := h.resolveLocked(name)
	emit := !wasSupported || before != after
	h.mu.Unlock()

	if emit {
		h.log.Info("decision changed", "name", string(name), "state", string(after))
		h.emit(name, after)
	}
}

// Grant records a granted decision for a capability.
func (h *Host) Grant(name permit.Name) {
	h.SetState(name, permit.Granted)
}

// Deny records a denied decision for a capability.
func (h *Host) Deny(name permit.Name) {
	h.SetState(name, permit.Denied)
}

// Clear removes the explicit decision for a capability, letting rules and
// the default answer again.
func (h *Host) Clear(name permit.Name) {
	h.mu.Lock()
	before, _ := h.resolveLocked(name)
	delete(h.states, name)
	after, supported := h.resolveLocked(name)
	emit := supported && before != after
	h.mu.Unlock()

	if emit {
		h.log.Info("decision changed", "name", string(name), "state", string(after))
		h.emit(name, after)
	}
}

// State answers what a query for the capability would currently resolve to.
// The second result is false when the capability is unsupported.
func (h *Host) State(name permit.Name) (permit.State, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resolveLocked(name)
}

// emit pushes one change event through the bridge when the change stream is
// running. Called without the host lock held: event delivery can re-enter
// the provider through a listener issuing a fresh query.
func (h *Host) emit(name permit.Name, state permit.State) {
	h.mu.Lock()
	running := h.streams[permit.ChangesChannelName]
	h.mu.Unlock()
	if !running {
		return
	}

	data, err := host.DefaultCodec.Encode(map[string]any{
		"name":  string(name),
		"state": string(state),
	})
	if err != nil {
		return
	}
	_ = host.HandleEvent(permit.ChangesChannelName, data)
}
