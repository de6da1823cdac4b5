// Package render serializes datasets for the one-shot CLI commands.
package render

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"github.com/fakeyudi/chemvis/internal/dataset"
)

// Output formats accepted by For.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// Formats lists every supported format, default first.
var Formats = []string{FormatText, FormatMarkdown, FormatJSON, FormatYAML}

const timeLayout = "2006-01-02 15:04:05"

// Renderer serializes a dataset summary or the history list to bytes.
type Renderer interface {
	Summary(s *dataset.EquipmentSummary) ([]byte, error)
	History(list []dataset.EquipmentSummary) ([]byte, error)
}

// For returns the renderer for format. An empty format means text.
func For(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		return &TextRenderer{}, nil
	case FormatMarkdown, "md":
		return &MarkdownRenderer{}, nil
	case FormatJSON:
		return &JSONRenderer{}, nil
	case FormatYAML, "yml":
		return &YAMLRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
}

// JSONRenderer renders indented JSON.
type JSONRenderer struct{}

func (r *JSONRenderer) Summary(s *dataset.EquipmentSummary) ([]byte, error) {
	return marshalJSON(s)
}

func (r *JSONRenderer) History(list []dataset.EquipmentSummary) ([]byte, error) {
	if list == nil {
		list = []dataset.EquipmentSummary{}
	}
	return marshalJSON(list)
}

func marshalJSON(v any) ([]byte, error) {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return append(b, '\n'), nil
}

// YAMLRenderer renders YAML documents.
type YAMLRenderer struct{}

func (r *YAMLRenderer) Summary(s *dataset.EquipmentSummary) ([]byte, error) {
	return marshalYAML(s)
}

func (r *YAMLRenderer) History(list []dataset.EquipmentSummary) ([]byte, error) {
	if list == nil {
		list = []dataset.EquipmentSummary{}
	}
	return marshalYAML(list)
}

func marshalYAML(v any) ([]byte, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return b, nil
}

// MarkdownRenderer renders headings and pipe tables.
type MarkdownRenderer struct{}

func (r *MarkdownRenderer) Summary(s *dataset.EquipmentSummary) ([]byte, error) {
	if s == nil {
		return []byte("_No dataset._\n"), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Dataset %d: %s\n\n", s.ID, s.Filename)
	fmt.Fprintf(&sb, "- Uploaded: %s\n", s.Timestamp.Format(timeLayout))
	fmt.Fprintf(&sb, "- Total equipment: %d\n", s.TotalCount)
	for _, b := range s.Averages() {
		fmt.Fprintf(&sb, "- Avg %s: %.2f %s\n", strings.ToLower(b.Name), b.Value, b.Unit)
	}
	sb.WriteString("\n## Type Distribution\n\n")
	slices := s.Breakdown()
	if len(slices) == 0 {
		sb.WriteString("_No equipment types._\n")
		return []byte(sb.String()), nil
	}
	shares := dataset.Share(slices)
	sb.WriteString("| Type | Count | Share |\n")
	sb.WriteString("|------|-------|-------|\n")
	for i, sl := range slices {
		fmt.Fprintf(&sb, "| %s | %d | %.1f%% |\n", escapeCell(sl.Name), sl.Value, shares[i])
	}
	return []byte(sb.String()), nil
}

func (r *MarkdownRenderer) History(list []dataset.EquipmentSummary) ([]byte, error) {
	var sb strings.Builder
	sb.WriteString("## Recent Uploads\n\n")
	if len(list) == 0 {
		sb.WriteString("_No datasets uploaded yet._\n")
		return []byte(sb.String()), nil
	}
	sb.WriteString("| ID | File | Total | Uploaded |\n")
	sb.WriteString("|----|------|-------|----------|\n")
	for _, s := range list {
		fmt.Fprintf(&sb, "| %d | %s | %d | %s |\n",
			s.ID, escapeCell(s.Filename), s.TotalCount, s.Timestamp.Format(timeLayout))
	}
	return []byte(sb.String()), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
