package permit

import (
	"sync"

	"github.com/go-permit/permit/pkg/errors"
	"github.com/go-permit/permit/pkg/host"
)

// Status is the live descriptor for one capability's permission state. It is
// owned by the provider: holding one keeps change notifications flowing for
// its capability, potentially indefinitely. Do not copy a Status into
// long-term storage; read its fields and let it go.
type Status struct {
	name Name
	id   string

	mu    sync.Mutex
	state State
}

func newStatus(name Name, id string, state State) *Status {
	return &Status{name: name, id: id, state: state}
}

// Name returns the capability this descriptor tracks.
func (s *Status) Name() Name {
	return s.name
}

// ID returns the provider's handle for this descriptor. It is empty when the
// provider does not issue handles.
func (s *Status) ID() string {
	return s.id
}

// State returns the last state observed through this descriptor. It starts
// at the queried state and follows provider transitions while a change
// subscription is active.
func (s *Status) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnChange subscribes to provider state transitions for this capability.
// The callback runs after the descriptor has been updated to the new state.
// The returned function cancels the subscription.
func (s *Status) OnChange(fn func(State)) (cancel func()) {
	return s.subscribe(fn).Cancel
}

// subscribe attaches a change listener and returns the raw subscription so
// handlers can swap theirs out on re-invocation.
func (s *Status) subscribe(fn func(State)) *host.Subscription {
	return changesChannel().Listen(host.EventHandler{
		OnEvent: func(data any) {
			change, ok := parseChange(data)
			if !ok {
				errors.Report(&errors.PermitError{
					Op:      "permit.parseChange",
					Kind:    errors.KindParsing,
					Channel: ChangesChannelName,
					Err: &errors.ParseError{
						Channel:  ChangesChannelName,
						DataType: "Change",
						Got:      data,
					},
				})
				return
			}
			if change.Name != s.name {
				return
			}
			s.mu.Lock()
			s.state = change.State
			s.mu.Unlock()
			fn(change.State)
		},
		OnError: func(err error) {
			errors.Report(&errors.PermitError{
				Op:      "permit.changeStream",
				Kind:    errors.KindHost,
				Channel: ChangesChannelName,
				Err:     err,
			})
		},
	})
}
