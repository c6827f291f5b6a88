package simhost

import (
	"log/slog"

	"github.com/go-permit/permit/pkg/permit"
)

// Option configures a Host at construction.
type Option func(*Host)

// WithDefaultState sets the answer for capabilities with no explicit
// decision and no matching rule. New hosts default to prompt.
func WithDefaultState(state permit.State) Option {
	return func(h *Host) {
		if validTransition(state) == nil {
			h.fallback = state
		}
	}
}

// WithStates seeds explicit decisions.
func WithStates(states map[permit.Name]permit.State) Option {
	return func(h *Host) {
		for name, state := range states {
			if validTransition(state) == nil {
				h.states[name] = state
			}
		}
	}
}

// WithRule appends a pattern rule. The pattern must be a valid doublestar
// glob; WithRule panics on a malformed one, so it suits literal patterns
// the way regexp.MustCompile does. Use AddRule for patterns built at
// runtime.
func WithRule(pattern string, state permit.State) Option {
	return func(h *Host) {
		if err := h.AddRule(pattern, state); err != nil {
			panic(err)
		}
	}
}

// WithStateFile records the YAML file Load, Save and Watch operate on.
func WithStateFile(path string) Option {
	return func(h *Host) { h.statePath = path }
}

// WithProtocolVersion overrides the protocol version the host reports,
// which is how tests exercise the bridge version gate.
func WithProtocolVersion(version string) Option {
	return func(h *Host) { h.version = version }
}

// WithLogger routes the host's logging through l. By default everything is
// discarded; wire a text handler to watch queries and decisions go by.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.log = l
		}
	}
}
