package dataset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fakeyudi/chemvis/internal/session"
	"github.com/fakeyudi/chemvis/internal/transport"
)

// User-facing fallbacks for failures that carry no server message.
const (
	MsgUploadFailed   = "Upload failed"
	MsgUnexpected     = "An unexpected error occurred."
	MsgReportFailed   = "Could not download report."
	DefaultUploadWait = 60 * time.Second
)

// ErrNoFile is returned by UploadFile when no file was chosen.
var ErrNoFile = errors.New("no file selected")

// API is the subset of *transport.Client the controller needs.
type API interface {
	Do(ctx context.Context, req transport.Request) (*transport.Response, error)
	URL(path string, query url.Values) string
}

// Session is the subset of *session.Controller the controller needs.
type Session interface {
	Authorized() (http.Header, error)
	Credentials() (username, password string, ok bool)
	ForceLogout() bool
}

// State is a copy of everything the presentation layer renders.
type State struct {
	Current   *EquipmentSummary  `json:"current,omitempty" yaml:"current,omitempty"`
	History   []EquipmentSummary `json:"history" yaml:"history"`
	APIError  string             `json:"api_error,omitempty" yaml:"api_error,omitempty"`
	Uploading bool               `json:"uploading" yaml:"uploading"`
	Selection string             `json:"selection,omitempty" yaml:"selection,omitempty"`
}

// Controller owns the current dataset and the history list.
type Controller struct {
	api           API
	session       Session
	logger        *log.Logger
	opener        Opener
	uploadTimeout time.Duration
	onChange      func(State)

	mu        sync.Mutex
	current   *EquipmentSummary
	history   []EquipmentSummary
	apiError  string
	uploading bool
	selection string
	issued    uint64 // history fetches started
	applied   uint64 // sequence of the fetch whose result is displayed
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithOpener replaces the system browser used by DownloadReport.
func WithOpener(o Opener) Option {
	return func(c *Controller) { c.opener = o }
}

// WithUploadTimeout bounds upload and report requests. Negative disables it.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Controller) { c.uploadTimeout = d }
}

// OnChange registers fn to run after every state change.
func OnChange(fn func(State)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// NewController returns a controller with no dataset and an empty history.
func NewController(api API, sess Session, opts ...Option) *Controller {
	c := &Controller{
		api:           api,
		session:       sess,
		logger:        log.Default(),
		opener:        SystemBrowser{},
		uploadTimeout: DefaultUploadWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnLogin runs the single history fetch that follows a successful login.
func (c *Controller) OnLogin(ctx context.Context) error {
	return c.FetchHistory(ctx)
}

// FetchHistory replaces the history list with the server's. On failure the
// previous list stays visible and APIError explains what went wrong.
func (c *Controller) FetchHistory(ctx context.Context) error {
	c.mu.Lock()
	c.apiError = ""
	c.issued++
	seq := c.issued
	c.mu.Unlock()
	c.changed()

	header, err := c.session.Authorized()
	if err != nil {
		return c.fail(err, MsgUnexpected)
	}
	resp, err := c.api.Do(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   transport.HistoryPath,
		Header: header,
	})
	var list []EquipmentSummary
	if err == nil {
		err = resp.Decode(&list)
	}
	if err != nil {
		return c.fail(err, MsgUnexpected)
	}

	c.mu.Lock()
	if seq < c.applied {
		c.mu.Unlock()
		c.logger.Debug("discarding stale history response", "seq", seq, "applied", c.applied)
		return nil
	}
	c.applied = seq
	c.history = list
	c.mu.Unlock()
	c.logger.Debug("history refreshed", "entries", len(list))
	c.changed()
	return nil
}

// SelectFile records the file chosen for the next upload.
func (c *Controller) SelectFile(path string) {
	c.mu.Lock()
	c.selection = path
	c.mu.Unlock()
	c.changed()
}

// Selection returns the chosen file, if any.
func (c *Controller) Selection() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// UploadFile sends path as the upload payload. Success replaces the current
// dataset and triggers exactly one history fetch; failure leaves the current
// dataset alone. Either way Uploading is reset and the selection cleared.
func (c *Controller) UploadFile(ctx context.Context, path string) (*EquipmentSummary, error) {
	if path == "" {
		return nil, ErrNoFile
	}
	c.mu.Lock()
	c.uploading = true
	c.apiError = ""
	c.selection = path
	c.mu.Unlock()
	c.changed()

	sum, err := c.upload(ctx, path)

	c.mu.Lock()
	c.uploading = false
	c.selection = ""
	if err == nil {
		c.current = &sum
	}
	c.mu.Unlock()

	if err != nil {
		return nil, c.fail(err, MsgUploadFailed)
	}
	c.logger.Info("dataset processed", "id", sum.ID, "filename", sum.Filename, "total", sum.TotalCount)
	c.changed()

	// The history error, if any, is reported through APIError; the upload
	// itself succeeded.
	_ = c.FetchHistory(ctx)
	out := sum.clone()
	return &out, nil
}

func (c *Controller) upload(ctx context.Context, path string) (EquipmentSummary, error) {
	header, err := c.session.Authorized()
	if err != nil {
		return EquipmentSummary{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return EquipmentSummary{}, err
	}
	defer f.Close()

	body, contentType, err := transport.NewMultipartFile(transport.UploadField, filepath.Base(path), f)
	if err != nil {
		return EquipmentSummary{}, err
	}
	header.Set("Content-Type", contentType)

	resp, err := c.api.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		Path:    transport.UploadPath,
		Body:    body,
		Header:  header,
		Timeout: c.uploadTimeout,
	})
	if err != nil {
		return EquipmentSummary{}, err
	}
	var sum EquipmentSummary
	if err := resp.Decode(&sum); err != nil {
		return EquipmentSummary{}, err
	}
	return sum, nil
}

// fail records err in APIError. A 401 ends the session regardless of which
// operation received it.
func (c *Controller) fail(err error, fallback string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var msg string
	switch {
	case transport.IsUnauthorized(err):
		c.session.ForceLogout()
		msg = session.MsgSessionExpired
	case transport.KindOf(err) != 0:
		msg = transport.MessageOf(err, fallback)
	case errors.Is(err, session.ErrNotLoggedIn):
		msg = session.MsgSessionExpired
	default:
		msg = fmt.Sprintf("%s: %v", fallback, err)
	}
	c.mu.Lock()
	c.apiError = msg
	c.mu.Unlock()
	c.logger.Warn("request failed", "kind", transport.KindOf(err), "err", err)
	c.changed()
	return err
}

// DismissError clears APIError without retrying.
func (c *Controller) DismissError() {
	c.mu.Lock()
	c.apiError = ""
	c.mu.Unlock()
	c.changed()
}

// Current returns a copy of the current dataset, or nil.
func (c *Controller) Current() *EquipmentSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	cur := c.current.clone()
	return &cur
}

// History returns a copy of the history list.
func (c *Controller) History() []EquipmentSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.history)
}

// Snapshot returns a copy of the whole view state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		History:   cloneAll(c.history),
		APIError:  c.apiError,
		Uploading: c.uploading,
		Selection: c.selection,
	}
	if c.current != nil {
		cur := c.current.clone()
		st.Current = &cur
	}
	return st
}

func (c *Controller) changed() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.Snapshot())
}
