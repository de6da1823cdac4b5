package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/fakeyudi/chemvis/internal/credential"
	"github.com/fakeyudi/chemvis/internal/transport"
)

// Doer performs API requests. *transport.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Controller drives LoggedOut → Validating → LoggedIn and back. It is safe
// for concurrent use; no lock is held across network calls.
type Controller struct {
	client Doer
	creds  credential.Store
	logger *log.Logger

	mu        sync.Mutex
	state     State
	authError string
	notice    string
	gen       uint64 // bumped on every login attempt and logout
	onChange  func(Session)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// OnChange registers fn to run after every state transition.
func OnChange(fn func(Session)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// NewController returns a controller in LoggedOut with no credentials.
func NewController(client Doer, opts ...Option) *Controller {
	c := &Controller{client: client, logger: log.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login validates username/password by probing the history endpoint. The
// probe's payload is discarded. On failure the controller is LoggedOut with
// an auth error describing why, and the returned error is the cause.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	if c.state == Validating {
		c.mu.Unlock()
		return ErrLoginInProgress
	}
	if username == "" || password == "" {
		c.gen++
		c.state = LoggedOut
		c.creds.Clear()
		c.authError = MsgMissingFields
		c.mu.Unlock()
		c.changed()
		return ErrMissingFields
	}
	c.gen++
	gen := c.gen
	c.state = Validating
	c.authError = ""
	c.notice = ""
	c.creds.Set(username, password)
	c.mu.Unlock()
	c.changed()

	c.logger.Info("validating credentials", "username", username)
	_, err := c.client.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   transport.HistoryPath,
		Header: credential.Header(username, password),
	})

	c.mu.Lock()
	if c.gen != gen {
		// Logged out (or a new attempt started) while the probe was in flight.
		c.mu.Unlock()
		if err == nil {
			return ErrNotLoggedIn
		}
		return err
	}
	if err == nil {
		c.state = LoggedIn
		c.authError = ""
		c.mu.Unlock()
		c.logger.Info("logged in", "username", username)
		c.changed()
		return nil
	}
	c.state = LoggedOut
	c.creds.Clear()
	c.authError = loginError(err)
	c.mu.Unlock()
	c.logger.Warn("login failed", "username", username, "kind", transport.KindOf(err), "err", err)
	c.changed()
	return err
}

// loginError maps a probe failure to the login form's message.
func loginError(err error) string {
	switch transport.KindOf(err) {
	case transport.Unauthorized:
		return MsgInvalidCredentials
	case transport.NetworkUnreachable:
		return err.Error()
	case transport.ServerError:
		return transport.MessageOf(err, MsgConnectionFailed)
	}
	return MsgConnectionFailed
}

// ForceLogout collapses the session after the server rejected its
// credentials. It reports whether a session was actually ended.
func (c *Controller) ForceLogout() bool {
	c.mu.Lock()
	if c.state != LoggedIn {
		c.mu.Unlock()
		return false
	}
	c.gen++
	c.state = LoggedOut
	c.creds.Clear()
	c.authError = ""
	c.notice = MsgSessionExpired
	c.mu.Unlock()
	c.logger.Warn("session expired, forced logout")
	c.changed()
	return true
}

// Logout ends the session and forgets the credentials immediately.
func (c *Controller) Logout() {
	c.mu.Lock()
	c.gen++
	c.state = LoggedOut
	c.creds.Clear()
	c.authError = ""
	c.notice = ""
	c.mu.Unlock()
	c.logger.Info("logged out")
	c.changed()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authorized returns the Authorization header for the current session.
func (c *Controller) Authorized() (http.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != LoggedIn {
		return nil, ErrNotLoggedIn
	}
	return c.creds.AuthorizationHeader(), nil
}

// Credentials returns the raw pair while logged in.
func (c *Controller) Credentials() (username, password string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != LoggedIn {
		return "", "", false
	}
	return c.creds.Username(), c.creds.Password(), true
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Session {
	return Session{
		State:     c.state,
		Username:  c.creds.Username(),
		Password:  c.creds.Password(),
		AuthError: c.authError,
		Notice:    c.notice,
	}
}

func (c *Controller) changed() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.Snapshot())
}
