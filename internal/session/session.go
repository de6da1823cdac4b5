// Package session owns the authenticated/unauthenticated state machine. It
// validates credentials by probing a protected endpoint and collapses back to
// LoggedOut whenever the server rejects the credentials.
package session

import "errors"

// State is the authentication state.
type State int

const (
	LoggedOut State = iota
	Validating
	LoggedIn
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Validating:
		return "validating"
	case LoggedIn:
		return "logged_in"
	}
	return "unknown"
}

// User-facing messages.
const (
	MsgMissingFields      = "Please enter both username and password."
	MsgInvalidCredentials = "Invalid username or password."
	MsgSessionExpired     = "Session expired. Please log in again."
	MsgConnectionFailed   = "Connection failed."
)

var (
	// ErrMissingFields is returned by Login when either field is empty. No
	// request is made.
	ErrMissingFields = errors.New(MsgMissingFields)
	// ErrLoginInProgress is returned by Login while a probe is in flight.
	ErrLoginInProgress = errors.New("login already in progress")
	// ErrNotLoggedIn is returned when authorization is requested outside
	// LoggedIn.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Session is a point-in-time copy of the controller's state.
type Session struct {
	State     State  `json:"state"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	AuthError string `json:"auth_error,omitempty"` // login-form error
	Notice    string `json:"notice,omitempty"`     // forced-logout message
}

// IsAuthenticated reports whether the last probe succeeded and no logout
// happened since.
func (s Session) IsAuthenticated() bool {
	return s.State == LoggedIn
}

// IsValidating reports whether a login probe is in flight.
func (s Session) IsValidating() bool {
	return s.State == Validating
}
