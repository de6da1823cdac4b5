package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/chemvis/internal/dataset"
)

// Results of background work. The controllers have already recorded the
// outcome; the messages only tell Update which flash line to show.
type (
	loginDoneMsg   struct{ err error }
	historyDoneMsg struct{ err error }
	uploadDoneMsg  struct {
		summary *dataset.EquipmentSummary
		err     error
	}
	reportSavedMsg struct {
		path string
		err  error
	}
	reportOpenedMsg struct{ err error }
)

func (m Model) login(username, password string) tea.Cmd {
	ctx, auth := m.ctx, m.auth
	return func() tea.Msg {
		return loginDoneMsg{err: auth.Login(ctx, username, password)}
	}
}

func (m Model) fetchHistory() tea.Cmd {
	ctx, data := m.ctx, m.data
	return func() tea.Msg {
		return historyDoneMsg{err: data.FetchHistory(ctx)}
	}
}

func (m Model) upload(path string) tea.Cmd {
	ctx, data := m.ctx, m.data
	return func() tea.Msg {
		sum, err := data.UploadFile(ctx, path)
		return uploadDoneMsg{summary: sum, err: err}
	}
}

func (m Model) saveReport(id int) tea.Cmd {
	ctx, data, dir := m.ctx, m.data, m.opts.ReportDir
	return func() tea.Msg {
		path, err := data.SaveReport(ctx, id, dir)
		return reportSavedMsg{path: path, err: err}
	}
}

func (m Model) openReport(id int) tea.Cmd {
	data := m.data
	return func() tea.Msg {
		return reportOpenedMsg{err: data.DownloadReport(id)}
	}
}
