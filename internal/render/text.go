package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/chemvis/internal/dataset"
)

var (
	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))
)

// barWidth is the length of a 100% distribution bar.
const barWidth = 30

// TextRenderer renders styled terminal text. Styles degrade to plain text
// when the output is not a terminal.
type TextRenderer struct{}

func (r *TextRenderer) Summary(s *dataset.EquipmentSummary) ([]byte, error) {
	if s == nil {
		return []byte(dimStyle.Render("No dataset.") + "\n"), nil
	}
	var sb strings.Builder
	sb.WriteString(sectionHeader.Render(fmt.Sprintf("Dataset #%d  %s", s.ID, s.Filename)) + "\n\n")

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-13s", label)) + "  " + value + "\n")
	}
	row("Uploaded:", s.Timestamp.Format(timeLayout))
	row("Total:", fmt.Sprintf("%d", s.TotalCount))
	for _, b := range s.Averages() {
		row(b.Name+":", fmt.Sprintf("%.2f %s", b.Value, b.Unit))
	}

	sb.WriteString("\n" + sectionHeader.Render("Type Distribution") + "\n\n")
	sb.WriteString(Distribution(s.Breakdown()))
	return []byte(sb.String()), nil
}

func (r *TextRenderer) History(list []dataset.EquipmentSummary) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString(sectionHeader.Render(fmt.Sprintf("Recent Uploads (%d)", len(list))) + "\n\n")
	if len(list) == 0 {
		sb.WriteString(dimStyle.Render("  No datasets uploaded yet.") + "\n")
		return []byte(sb.String()), nil
	}
	sb.WriteString(dimStyle.Render(fmt.Sprintf("  %-5s %-28s %6s  %s", "ID", "FILE", "TOTAL", "UPLOADED")) + "\n")
	for _, s := range list {
		fmt.Fprintf(&sb, "  %-5d %-28s %6d  %s\n", s.ID, truncate(s.Filename, 28), s.TotalCount, s.Timestamp.Format(timeLayout))
	}
	return []byte(sb.String()), nil
}

// Distribution draws one bar per equipment type with its count and share.
// The dashboard reuses it for its distribution panel.
func Distribution(slices []dataset.Slice) string {
	if len(slices) == 0 {
		return dimStyle.Render("  (none)") + "\n"
	}
	width := 0
	for _, sl := range slices {
		if w := lipgloss.Width(sl.Name); w > width {
			width = w
		}
	}
	shares := dataset.Share(slices)
	var sb strings.Builder
	for i, sl := range slices {
		n := int(math.Round(shares[i] / 100 * barWidth))
		fmt.Fprintf(&sb, "  %-*s %5d %6.1f%%  %s\n", width, sl.Name, sl.Value, shares[i], barStyle.Render(strings.Repeat("█", n)))
	}
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
