package simhost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/go-permit/permit/pkg/permit"
)

const lockTimeout = 5 * time.Second

var (
	// ErrNoStateFile is returned by Load, Save and Watch when the host was
	// built without WithStateFile.
	ErrNoStateFile = errors.New("simhost: no state file configured")

	// ErrLockTimeout is returned when another process holds the state file
	// lock for longer than the lock timeout.
	ErrLockTimeout = errors.New("simhost: timed out waiting for state file lock")
)

// fileState is the YAML shape of a host's persistent configuration:
//
//	default: prompt
//	rules:
//	  - pattern: "clipboard-*"
//	    state: denied
//	states:
//	  camera: granted
type fileState struct {
	Default permit.State            `yaml:"default,omitempty"`
	Rules   []fileRule              `yaml:"rules,omitempty"`
	States  map[string]permit.State `yaml:"states,omitempty"`
}

type fileRule struct {
	Pattern string       `yaml:"pattern"`
	State   permit.State `yaml:"state"`
}

func (fs fileState) validate() error {
	if fs.Default != "" {
		if err := validTransition(fs.Default); err != nil {
			return fmt.Errorf("default: %w", err)
		}
	}
	for i, r := range fs.Rules {
		if !doublestar.ValidatePattern(r.Pattern) {
			return fmt.Errorf("rule %d: invalid pattern %q", i, r.Pattern)
		}
		if err := validTransition(r.State); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	for name, state := range fs.States {
		if err := validTransition(state); err != nil {
			return fmt.Errorf("state %s: %w", name, err)
		}
	}
	return nil
}

// Load replaces the host's decisions, rules and default with the contents
// of the state file. The file lock is held across the read so a concurrent
// Save from another process cannot interleave. Capabilities whose resolved
// answer changed get change events, in name order.
func (h *Host) Load(ctx context.Context) error {
	if h.statePath == "" {
		return ErrNoStateFile
	}
	unlock, err := h.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := os.ReadFile(h.statePath)
	if err != nil {
		return err
	}
	var fs fileState
	if err := yaml.Unmarshal(data, &fs); err != nil {
		return fmt.Errorf("simhost: parse %s: %w", h.statePath, err)
	}
	if err := fs.validate(); err != nil {
		return fmt.Errorf("simhost: %s: %w", h.statePath, err)
	}

	changes := h.apply(fs)
	h.log.Info("state file loaded", "path", h.statePath, "changes", len(changes))
	for _, c := range changes {
		h.emit(c.name, c.state)
	}
	return nil
}

// Save writes the host's current decisions, rules and default to the state
// file under the file lock.
func (h *Host) Save(ctx context.Context) error {
	if h.statePath == "" {
		return ErrNoStateFile
	}
	unlock, err := h.lockFile(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	h.mu.Lock()
	fs := fileState{
		Default: h.fallback,
		States:  make(map[string]permit.State, len(h.states)),
	}
	for name, state := range h.states {
		fs.States[string(name)] = state
	}
	for _, r := range h.rules {
		fs.Rules = append(fs.Rules, fileRule{Pattern: r.pattern, State: r.state})
	}
	h.mu.Unlock()

	data, err := yaml.Marshal(fs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(h.statePath, data, 0644); err != nil {
		return err
	}
	h.log.Info("state file saved", "path", h.statePath)
	return nil
}

type stateChange struct {
	name  permit.Name
	state permit.State
}

// apply swaps in a new configuration and reports which capabilities now
// resolve differently. The diff covers the standard vocabulary plus every
// name with an explicit decision on either side.
func (h *Host) apply(fs fileState) []stateChange {
	h.mu.Lock()
	defer h.mu.Unlock()

	names := make(map[permit.Name]struct{})
	for _, n := range permit.Names() {
		names[n] = struct{}{}
	}
	for n := range h.states {
		names[n] = struct{}{}
	}
	for n := range fs.States {
		names[permit.Name(n)] = struct{}{}
	}

	before := make(map[permit.Name]permit.State, len(names))
	for n := range names {
		if state, ok := h.resolveLocked(n); ok {
			before[n] = state
		}
	}

	if fs.Default != "" {
		h.fallback = fs.Default
	}
	h.rules = nil
	for _, r := range fs.Rules {
		h.rules = append(h.rules, rule{pattern: r.Pattern, state: r.State})
	}
	h.states = make(map[permit.Name]permit.State, len(fs.States))
	for name, state := range fs.States {
		h.states[permit.Name(name)] = state
	}

	var changes []stateChange
	for n := range names {
		after, ok := h.resolveLocked(n)
		if !ok {
			continue
		}
		if prev, had := before[n]; !had || prev != after {
			changes = append(changes, stateChange{name: n, state: after})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].name < changes[j].name })
	return changes
}

func (h *Host) lockFile(ctx context.Context) (func(), error) {
	fl := flock.New(h.statePath + ".lock")
	lctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lctx, 50*time.Millisecond)
	if err != nil || !locked {
		return nil, ErrLockTimeout
	}
	return func() { _ = fl.Unlock() }, nil
}
