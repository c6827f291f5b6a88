package permit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-permit/permit/pkg/host"
)

// Channel names shared with the host bridge.
const (
	// ChannelName is the method channel carrying permission queries.
	ChannelName = "permit/permissions"

	// ChangesChannelName is the event channel carrying state-change
	// notifications.
	ChangesChannelName = "permit/permissions/changes"
)

// Provider error codes recognized by the outcome classifier. A provider
// failure carrying any other code reads as an invalid request.
const (
	// CodeUnsupportedPermission signals a capability name the provider does
	// not recognize in this environment.
	CodeUnsupportedPermission = "unsupported_permission"

	// CodeInvalidRequest signals a request that failed shape or type
	// validation at the provider boundary.
	CodeInvalidRequest = "invalid_request"
)

// ErrUnsupported is returned by EnsureSupported when no compatible host
// bridge is installed.
var ErrUnsupported = errors.New("permit: permission queries unsupported in this host")

var (
	channelOnce sync.Once
	channel     *host.MethodChannel
)

func methodChannel() *host.MethodChannel {
	channelOnce.Do(func() {
		channel = host.NewMethodChannel(ChannelName)
	})
	return channel
}

// Query asks the provider for the current state of the capability req names.
// The call blocks while the provider resolves; the first query for a
// capability may prompt the user, so callers that must not block should go
// through a handler. ctx is accepted for API consistency but not used to
// cancel the provider call.
//
// Query never returns a raw provider error: every failure is classified
// into an outcome whose state is Unsupported or Invalid. Requests are passed
// through as-is, including names outside the standard vocabulary; the
// provider decides what it recognizes.
func Query(ctx context.Context, req Request) Outcome {
	result, err := methodChannel().Invoke("query", req.toArgs())
	if err != nil {
		return failureOutcome(err)
	}

	state, id, ok := parseQueryResult(result)
	if !ok {
		return Outcome{State: Invalid, Message: fmt.Sprintf("malformed provider response of type %T", result)}
	}
	switch state {
	case Granted, Prompt, Denied:
		return Outcome{State: state, Status: newStatus(req.Name, id, state)}
	default:
		return Outcome{State: Invalid, Message: fmt.Sprintf("unrecognized provider state %q", state)}
	}
}

// failureOutcome maps a provider failure onto the two error states. Absence
// of a bridge reads as unsupported, a provider-signaled unsupported
// capability reads as unsupported, and everything else as invalid.
func failureOutcome(err error) Outcome {
	var chErr *host.ChannelError
	if errors.As(err, &chErr) {
		msg := chErr.Message
		if msg == "" {
			msg = chErr.Code
		}
		switch chErr.Code {
		case CodeUnsupportedPermission:
			return Outcome{State: Unsupported, Message: msg}
		case CodeInvalidRequest:
			return Outcome{State: Invalid, Message: msg}
		default:
			return Outcome{State: Invalid, Message: msg}
		}
	}
	if errors.Is(err, host.ErrBridgeUnavailable) {
		return Outcome{State: Unsupported, Message: err.Error()}
	}
	return Outcome{State: Invalid, Message: err.Error()}
}

// parseQueryResult pulls the state and optional descriptor id out of a
// provider response.
func parseQueryResult(result any) (state State, id string, ok bool) {
	m := parseMap(result)
	if m == nil {
		return "", "", false
	}
	raw := parseString(m["state"])
	if raw == "" {
		return "", "", false
	}
	return State(raw), parseString(m["id"]), true
}

// Supported reports whether a compatible host bridge is installed. There is
// no local fallback: querying without one yields an unsupported outcome.
func Supported() bool {
	return host.Available()
}

// EnsureSupported returns nil when permission queries are available and
// ErrUnsupported otherwise. When the bridge was refused over its protocol
// version, the detail is attached to the returned error.
func EnsureSupported() error {
	if host.Available() {
		return nil
	}
	if perr := host.ProtocolError(); perr != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, perr)
	}
	return ErrUnsupported
}

// IsGranted reports whether the capability is currently granted.
// Best-effort convenience: returns false on any failure. Use Query when the
// distinction between denied and failed matters.
func IsGranted(ctx context.Context, name Name) bool {
	return Query(ctx, Request{Name: name}).State == Granted
}

// IsDenied reports whether the capability is currently denied.
// Best-effort convenience: returns false on any failure. Use Query when the
// distinction between denied and failed matters.
func IsDenied(ctx context.Context, name Name) bool {
	return Query(ctx, Request{Name: name}).State == Denied
}
