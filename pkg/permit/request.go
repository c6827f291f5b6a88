package permit

// Request identifies the capability being queried.
//
// Sysex and UserVisibleOnly are variant fields: Sysex is forwarded to the
// provider only for MIDI, UserVisibleOnly only for Push. For every other
// name they are omitted from the query payload entirely.
type Request struct {
	Name Name

	// Sysex asks for system-exclusive message access (MIDI only).
	Sysex bool

	// UserVisibleOnly restricts the subscription to pushes whose delivery is
	// visible to the user (Push only).
	UserVisibleOnly bool
}

// toArgs builds the wire payload for the query method. Variant fields ride
// along only for the capability they belong to, and only when set.
func (r Request) toArgs() map[string]any {
	args := map[string]any{"name": string(r.Name)}
	switch r.Name {
	case MIDI:
		if r.Sysex {
			args["sysex"] = true
		}
	case Push:
		if r.UserVisibleOnly {
			args["userVisibleOnly"] = true
		}
	}
	return args
}
