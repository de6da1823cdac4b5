// Package tui provides the Bubble Tea dashboard: a login screen and a view of
// the current dataset and upload history.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/chemvis/internal/dataset"
	"github.com/fakeyudi/chemvis/internal/session"
)

type screen int

const (
	screenLogin screen = iota
	screenDashboard
)

type field int

const (
	fieldUsername field = iota
	fieldPassword
)

// Options carries the settings the dashboard shows or uses.
type Options struct {
	BaseURL   string
	Username  string // prefilled on the login screen
	ReportDir string // where `s` saves reports
}

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	ctx  context.Context
	auth *session.Controller
	data *dataset.Controller
	opts Options

	screen   screen
	focus    field
	username textinput.Model
	password textinput.Model
	path     textinput.Model
	choosing bool // upload path prompt is open
	spinner  spinner.Model

	// In-flight commands; the controllers only report these once the
	// command has started running.
	loggingIn bool
	uploading bool

	// Snapshots taken after every message; View reads only these.
	sess session.Session
	st   dataset.State

	cursor int
	flash  string
	width  int
	height int
}

// New creates a dashboard model over the two controllers. If the session is
// already logged in the dashboard opens directly.
func New(ctx context.Context, auth *session.Controller, data *dataset.Controller, opts Options) Model {
	m := Model{
		ctx:      ctx,
		auth:     auth,
		data:     data,
		opts:     opts,
		username: newInput("username", false),
		password: newInput("password", true),
		path:     newInput("path/to/equipment.csv", false),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
	}
	m.username.SetValue(opts.Username)
	m.sync()
	if m.sess.IsAuthenticated() {
		m.screen = screenDashboard
	} else {
		m.focusLogin(fieldUsername)
		if opts.Username != "" {
			m.focusLogin(fieldPassword)
		}
	}
	return m
}

func newInput(placeholder string, secret bool) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = ""
	ti.CharLimit = 256
	ti.Cursor.SetMode(cursor.CursorStatic)
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return ti
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	if m.screen == screenDashboard {
		return m.fetchHistory()
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.screen == screenLogin {
			m, cmd = m.updateLogin(msg)
		} else {
			m, cmd = m.updateDashboard(msg)
		}

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginDoneMsg:
		m.loggingIn = false
		if msg.err == nil {
			m.password.SetValue("")
			m.cursor = 0
			m.flash = ""
			cmd = m.fetchHistory()
		}

	case uploadDoneMsg:
		m.uploading = false
		if msg.err == nil && msg.summary != nil {
			m.flash = "Uploaded " + msg.summary.Filename
		}

	case reportSavedMsg:
		if msg.err == nil {
			m.flash = "Report saved to " + msg.path
		}

	case reportOpenedMsg:
		if msg.err != nil {
			m.flash = dataset.MsgReportFailed + " " + msg.err.Error()
		} else {
			m.flash = "Report opened in browser"
		}
	}

	m.sync()
	return m, cmd
}

// sync refreshes the snapshots and follows the session between screens.
func (m *Model) sync() {
	m.sess = m.auth.Snapshot()
	m.st = m.data.Snapshot()
	switch {
	case m.screen == screenDashboard && m.sess.State == session.LoggedOut:
		m.screen = screenLogin
		m.choosing = false
		m.path.SetValue("")
		m.password.SetValue("")
		m.flash = ""
		m.focusLogin(fieldPassword)
		if m.username.Value() == "" {
			m.focusLogin(fieldUsername)
		}
	case m.screen == screenLogin && m.sess.State == session.LoggedIn:
		m.screen = screenDashboard
		m.username.Blur()
		m.password.Blur()
	}
	if m.cursor >= len(m.st.History) {
		m.cursor = max(len(m.st.History)-1, 0)
	}
}

func (m Model) busy() bool {
	return m.loggingIn || m.uploading || m.sess.IsValidating() || m.st.Uploading
}

func (m *Model) focusLogin(f field) {
	m.focus = f
	if f == fieldUsername {
		m.username.Focus()
		m.password.Blur()
	} else {
		m.password.Focus()
		m.username.Blur()
	}
}

func (m Model) updateLogin(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.loggingIn || m.sess.IsValidating() {
		return m, nil
	}
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		m.focusLogin(1 - m.focus)
		return m, nil
	case "enter":
		if m.focus == fieldUsername && m.password.Value() == "" {
			m.focusLogin(fieldPassword)
			return m, nil
		}
		m.loggingIn = true
		return m, tea.Batch(m.spinner.Tick, m.login(m.username.Value(), m.password.Value()))
	}
	var cmd tea.Cmd
	if m.focus == fieldUsername {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) updateDashboard(msg tea.KeyMsg) (Model, tea.Cmd) {
	if m.choosing {
		return m.updatePathPrompt(msg)
	}
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "u":
		if m.uploading || m.st.Uploading {
			return m, nil
		}
		m.choosing = true
		m.flash = ""
		m.path.Focus()
		return m, nil
	case "r":
		m.flash = ""
		return m, m.fetchHistory()
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.st.History)-1 {
			m.cursor++
		}
	case "enter", "o":
		if id, ok := m.selectedID(); ok {
			return m, m.openReport(id)
		}
	case "s":
		if id, ok := m.selectedID(); ok {
			return m, m.saveReport(id)
		}
	case "x", "esc":
		m.data.DismissError()
		m.flash = ""
	case "L":
		m.auth.Logout()
	}
	return m, nil
}

func (m Model) updatePathPrompt(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.choosing = false
		m.path.Blur()
		return m, nil
	case "enter":
		p := strings.TrimSpace(m.path.Value())
		if p == "" {
			return m, nil
		}
		m.choosing = false
		m.path.Blur()
		m.path.SetValue("")
		m.data.SelectFile(p)
		m.uploading = true
		return m, tea.Batch(m.spinner.Tick, m.upload(p))
	}
	var cmd tea.Cmd
	m.path, cmd = m.path.Update(msg)
	return m, cmd
}

func (m Model) selectedID() (int, bool) {
	if m.cursor < 0 || m.cursor >= len(m.st.History) {
		return 0, false
	}
	return m.st.History[m.cursor].ID, true
}

// Run starts the dashboard and blocks until the user quits.
func Run(ctx context.Context, auth *session.Controller, data *dataset.Controller, opts Options) error {
	p := tea.NewProgram(New(ctx, auth, data, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
