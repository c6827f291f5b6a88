package permit

// State is a provider answer for one capability, or the way a query failed.
type State string

const (
	// Granted means access is currently allowed.
	Granted State = "granted"

	// Prompt means the provider will ask the user interactively the first
	// time the capability is used.
	Prompt State = "prompt"

	// Denied means access is currently refused.
	Denied State = "denied"

	// Unsupported means the provider does not recognize the capability in
	// this host environment.
	Unsupported State = "unsupported"

	// Invalid means the request failed validation at the provider boundary,
	// or the provider failed in a way it did not classify.
	Invalid State = "invalid"
)

// Outcome is the normalized result of one permission query. Exactly one of
// three shapes applies, keyed by State:
//
//   - granted shape: State is Granted or Prompt, Status is live
//   - denied shape: State is Denied, Status is live
//   - error shape: State is Unsupported or Invalid, Status is nil and
//     Message carries the provider's text
type Outcome struct {
	State   State
	Status  *Status
	Message string
}

// Granted reports whether the outcome has the granted shape, covering both
// the granted and prompt states. Check State directly when prompt must be
// distinguished from settled consent.
func (o Outcome) Granted() bool {
	return o.State == Granted || o.State == Prompt
}

// Denied reports whether access is currently refused.
func (o Outcome) Denied() bool {
	return o.State == Denied
}

// Failed reports whether the query produced no usable answer.
func (o Outcome) Failed() bool {
	return o.State == Unsupported || o.State == Invalid
}

// Err returns the failure as a *StateError, or nil for granted, prompt, and
// denied outcomes.
func (o Outcome) Err() error {
	if !o.Failed() {
		return nil
	}
	return &StateError{State: o.State, Message: o.Message}
}

// StateError is the error form of an unsupported or invalid outcome. The
// async handler rejects with it; the callback handler feeds it to the error
// slot.
type StateError struct {
	State   State
	Message string
}

func (e *StateError) Error() string {
	if e.Message != "" {
		return "permission " + string(e.State) + ": " + e.Message
	}
	return "permission " + string(e.State)
}
