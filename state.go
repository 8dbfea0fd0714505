package rideAuth

// StateKind enumerates the variants of [AttemptState].
type StateKind uint8

const (
	// StateInitial means no attempt is in progress and there is no error to show.
	StateInitial StateKind = iota
	// StateLoading means an operation was dispatched and has not returned yet.
	StateLoading
	// StateSuccess means the collaborator confirmed the operation.
	StateSuccess
	// StateError means the last attempt failed; Message carries the user-facing text.
	StateError
)

// String returns the lower-case name of the kind.
func (k StateKind) String() string {
	switch k {
	case StateInitial:
		return "initial"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// AttemptState is the lifecycle status of one authentication attempt as
// observed by the presentation layer.
//
// Message is non-empty only for StateError. The zero value is the initial state.
type AttemptState struct {
	Kind    StateKind
	Message string
}

// Initial returns the idle state.
func Initial() AttemptState { return AttemptState{Kind: StateInitial} }

// Loading returns the in-flight state.
func Loading() AttemptState { return AttemptState{Kind: StateLoading} }

// Success returns the confirmed state.
func Success() AttemptState { return AttemptState{Kind: StateSuccess} }

// Failed returns an error state carrying a displayable message.
func Failed(message string) AttemptState {
	return AttemptState{Kind: StateError, Message: message}
}

// IsLoading reports whether an operation is in flight.
func (s AttemptState) IsLoading() bool { return s.Kind == StateLoading }

// IsError reports whether the state carries an error message.
func (s AttemptState) IsError() bool { return s.Kind == StateError }

func (s AttemptState) String() string {
	if s.Kind == StateError {
		return "error(" + s.Message + ")"
	}
	return s.Kind.String()
}

// Snapshot is the pair of values published by a [Controller] on every change.
type Snapshot struct {
	State AttemptState
	// SelectedIdentity is the email chosen in the federated account picker,
	// empty when absent.
	SelectedIdentity string
}

// HasSelectedIdentity reports whether a federated account choice is present.
func (s Snapshot) HasSelectedIdentity() bool { return s.SelectedIdentity != "" }
