package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/chemvis/internal/dataset"
	"github.com/fakeyudi/chemvis/internal/render"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	authErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	flashStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1).
			Width(20)

	cardValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	loginBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 3)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

const (
	defaultWidth = 80
	barWidth     = 30
	timeLayout   = "2006-01-02 15:04:05"
)

func (m Model) View() string {
	if m.screen == screenLogin {
		return m.viewLogin()
	}
	return m.viewDashboard()
}

func (m Model) viewWidth() int {
	if m.width <= 0 {
		return defaultWidth
	}
	return m.width
}

func (m Model) titleBar(right string) string {
	text := "  chemvis  Chemical Equipment Visualizer"
	if right != "" {
		text += "  " + right
	}
	return titleStyle.Width(m.viewWidth()).Render(text)
}

func (m Model) statusBar(hint string) string {
	return statusBarStyle.Width(m.viewWidth()).Render(hint)
}

// ── Login screen ───────────────

func (m Model) viewLogin() string {
	var sb strings.Builder
	if m.opts.BaseURL != "" {
		sb.WriteString(dimStyle.Render("Sign in to "+m.opts.BaseURL) + "\n\n")
	}
	sb.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", "Username")) + "  " + m.username.View() + "\n")
	sb.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", "Password")) + "  " + m.password.View() + "\n\n")

	switch {
	case m.loggingIn || m.sess.IsValidating():
		sb.WriteString(m.spinner.View() + " Connecting...")
	case m.sess.AuthError != "":
		sb.WriteString(authErrorStyle.Render(m.sess.AuthError))
	case m.sess.Notice != "":
		sb.WriteString(noticeStyle.Render(m.sess.Notice))
	default:
		sb.WriteString(dimStyle.Render("Enter your credentials."))
	}

	box := loginBoxStyle.Render(sb.String())
	return lipgloss.JoinVertical(lipgloss.Left,
		m.titleBar(""),
		"",
		box,
		"",
		m.statusBar("enter sign in  tab switch field  esc quit"),
	)
}

// ── Dashboard ───────────────

func (m Model) viewDashboard() string {
	parts := []string{m.titleBar(m.sess.Username + " @ " + m.opts.BaseURL)}

	if m.st.APIError != "" {
		parts = append(parts, errorStyle.Width(m.viewWidth()).Render("⚠ "+m.st.APIError+"   r retry  x dismiss"))
	}

	switch {
	case m.choosing:
		parts = append(parts, labelStyle.Render("Upload file: ")+m.path.View())
	case m.uploading || m.st.Uploading:
		name := m.st.Selection
		parts = append(parts, m.spinner.View()+" Uploading "+name+"...")
	case m.flash != "":
		parts = append(parts, flashStyle.Render(m.flash))
	}

	if cur := m.st.Current; cur != nil {
		parts = append(parts,
			"",
			sectionHeader.Render(fmt.Sprintf("Dataset #%d  %s", cur.ID, cur.Filename))+"  "+timeStyle.Render(cur.Timestamp.Format(timeLayout)),
			statCards(cur),
			sectionHeader.Render("Type Distribution"),
			render.Distribution(cur.Breakdown()),
			sectionHeader.Render("Averages"),
			averageBars(cur.Averages()),
		)
	} else {
		parts = append(parts, "", dimStyle.Render("No dataset loaded. Press u to upload a CSV file."), "")
	}

	parts = append(parts, sectionHeader.Render(fmt.Sprintf("Recent Uploads (%d)", len(m.st.History))), m.historyTable())

	hint := "u upload  r refresh  ↑/↓ select  enter open report  s save report  L logout  q quit"
	if m.choosing {
		hint = "enter upload  esc cancel"
	}
	parts = append(parts, m.statusBar(hint))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func statCards(s *dataset.EquipmentSummary) string {
	card := func(label, value string) string {
		return cardStyle.Render(dimStyle.Render(label) + "\n" + cardValueStyle.Render(value))
	}
	cards := []string{card("Total Equipment", fmt.Sprintf("%d", s.TotalCount))}
	for _, b := range s.Averages() {
		cards = append(cards, card("Avg "+b.Name, fmt.Sprintf("%.2f %s", b.Value, b.Unit)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

// averageBars draws the averages scaled against the largest one.
func averageBars(bars []dataset.Bar) string {
	top := 0.0
	for _, b := range bars {
		top = math.Max(top, math.Abs(b.Value))
	}
	var sb strings.Builder
	for _, b := range bars {
		n := 0
		if top > 0 {
			n = int(math.Round(math.Abs(b.Value) / top * barWidth))
		}
		fmt.Fprintf(&sb, "  %-12s %10s  %s\n", b.Name, fmt.Sprintf("%.2f %s", b.Value, b.Unit), barStyle.Render(strings.Repeat("█", n)))
	}
	return sb.String()
}

func (m Model) historyTable() string {
	if len(m.st.History) == 0 {
		return dimStyle.Render("  No datasets uploaded yet.") + "\n"
	}
	var sb strings.Builder
	sb.WriteString(dimStyle.Render(fmt.Sprintf("  %-5s %-28s %6s  %s", "ID", "FILE", "TOTAL", "UPLOADED")) + "\n")
	for i, s := range m.st.History {
		name := []rune(s.Filename)
		if len(name) > 28 {
			name = append(name[:27], '…')
		}
		row := fmt.Sprintf("  %-5d %-28s %6d  %s", s.ID, string(name), s.TotalCount, s.Timestamp.Format(timeLayout))
		if i == m.cursor {
			row = selectedRowStyle.Width(m.viewWidth() - 2).Render(row)
		}
		sb.WriteString(row + "\n")
	}
	return sb.String()
}
