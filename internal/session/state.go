package session

import "github.com/Bforsyth1234/customer-loyalty-rewards/internal/backend"

// Status is the coarse session state.
type Status int

const (
	// StatusUnknown holds from construction until the backend has been asked for a session.
	StatusUnknown Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Identity is the signed-in operator.
type Identity struct {
	ID    string
	Email string
	Phone string
}

// State is a session status plus the identity when authenticated. States compare with ==.
type State struct {
	Status   Status
	Identity Identity
}

// IsAuthenticated reports whether s carries an identity.
func (s State) IsAuthenticated() bool {
	return s.Status == StatusAuthenticated
}

// Unknown is the initial state.
func Unknown() State { return State{Status: StatusUnknown} }

// Anonymous is the signed-out state.
func Anonymous() State { return State{Status: StatusAnonymous} }

// Authenticated is the signed-in state for id.
func Authenticated(id Identity) State {
	return State{Status: StatusAuthenticated, Identity: id}
}

func identityOf(user backend.User) Identity {
	return Identity{ID: user.ID, Email: user.Email, Phone: user.Phone}
}
