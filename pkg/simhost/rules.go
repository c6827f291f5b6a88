package simhost

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/go-permit/permit/pkg/permit"
)

// rule maps a capability-name pattern to a decision. Patterns use doublestar
// glob syntax, so "clipboard-*" covers both clipboard capabilities and
// "**" covers everything.
type rule struct {
	pattern string
	state   permit.State
}

// AddRule appends a pattern rule. Rules apply in insertion order after
// explicit decisions and before the default; the first match wins. A rule
// also makes otherwise unknown capability names supported, which is how a
// simulated provider grows a nonstandard vocabulary.
func (h *Host) AddRule(pattern string, state permit.State) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("simhost: invalid rule pattern %q", pattern)
	}
	if err := validTransition(state); err != nil {
		return err
	}
	h.mu.Lock()
	h.rules = append(h.rules, rule{pattern: pattern, state: state})
	h.mu.Unlock()
	return nil
}

// validTransition checks that a configured state is one of the three the
// provider may answer with. Unsupported and invalid are query failures, not
// decisions, and cannot be assigned.
func validTransition(state permit.State) error {
	switch state {
	case permit.Granted, permit.Prompt, permit.Denied:
		return nil
	default:
		return fmt.Errorf("simhost: %q is not an assignable state", state)
	}
}

// resolveLocked answers a query for name. Explicit decisions win over
// rules, rules over the default; names outside the standard vocabulary are
// unsupported unless a decision or rule covers them. Callers hold h.mu.
func (h *Host) resolveLocked(name permit.Name) (permit.State, bool) {
	if state, ok := h.states[name]; ok {
		return state, true
	}
	for _, r := range h.rules {
		if ok, err := doublestar.Match(r.pattern, string(name)); err == nil && ok {
			return r.state, true
		}
	}
	if name.Valid() {
		return h.fallback, true
	}
	return "", false
}
