package permit

import (
	"sync"

	"github.com/go-permit/permit/pkg/errors"
	"github.com/go-permit/permit/pkg/host"
)

// Change is one provider notification that the recorded decision for a
// capability moved to a new state.
type Change struct {
	Name  Name
	State State
}

var (
	changesOnce sync.Once
	changesCh   *host.EventChannel
)

func changesChannel() *host.EventChannel {
	changesOnce.Do(func() {
		changesCh = host.NewEventChannel(ChangesChannelName)
	})
	return changesCh
}

// parseChange decodes a change-event payload. Only the three provider states
// are accepted; anything else is a malformed event.
func parseChange(data any) (Change, bool) {
	m := parseMap(data)
	if m == nil {
		return Change{}, false
	}
	name := parseString(m["name"])
	state := State(parseString(m["state"]))
	if name == "" {
		return Change{}, false
	}
	switch state {
	case Granted, Prompt, Denied:
		return Change{Name: Name(name), State: state}, true
	default:
		return Change{}, false
	}
}

// Listen subscribes to state transitions for a single capability,
// independent of any handler or descriptor. The returned function cancels
// the subscription.
func Listen(name Name, fn func(State)) (unsubscribe func()) {
	sub := changesChannel().Listen(host.EventHandler{
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
			if change.Name == name {
				fn(change.State)
			}
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
	return sub.Cancel
}

// Changes returns the firehose of change notifications across every
// capability. Each listener receives every transition the provider reports;
// filter by Name where one capability matters.
func Changes() *host.Stream[Change] {
	return host.NewStream(ChangesChannelName, changesChannel(), func(data any) (Change, error) {
		change, ok := parseChange(data)
		if !ok {
			return Change{}, &errors.ParseError{
				Channel:  ChangesChannelName,
				DataType: "Change",
				Got:      data,
			}
		}
		return change, nil
	})
}
