// Package dataset keeps the "current dataset" and "upload history" views in
// step with the server: uploads, history refreshes and report downloads.
package dataset

import (
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// HistoryLimit is the server's declared retention. The client does not
// enforce it.
const HistoryLimit = 5

// EquipmentSummary is the aggregate statistics record the server produces
// for one uploaded file. Values are never modified after decoding.
type EquipmentSummary struct {
	ID               int            `json:"id" yaml:"id"`
	Filename         string         `json:"filename" yaml:"filename"`
	TotalCount       int            `json:"total_count" yaml:"total_count"`
	AvgFlowrate      float64        `json:"avg_flowrate" yaml:"avg_flowrate"`
	AvgPressure      float64        `json:"avg_pressure" yaml:"avg_pressure"`
	AvgTemperature   float64        `json:"avg_temperature" yaml:"avg_temperature"`
	TypeDistribution map[string]int `json:"type_distribution" yaml:"type_distribution"`
	Timestamp        Timestamp      `json:"timestamp" yaml:"timestamp"`
}

// Timestamp is an upload time. A server running without time zone support
// sends ISO 8601 without an offset; those values are read as UTC.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := sonic.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v
		return nil
	}
	for _, layout := range naiveLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("timestamp %q is not ISO 8601", s)
}

func (t Timestamp) MarshalYAML() (any, error) {
	return t.Time, nil
}

func (t *Timestamp) UnmarshalYAML(n *yaml.Node) error {
	return n.Decode(&t.Time)
}

// Slice is one category of the type distribution (pie data).
type Slice struct {
	Name  string
	Value int
}

// Bar is one named average (bar chart data).
type Bar struct {
	Name  string
	Value float64
	Unit  string
}

// Breakdown returns the type distribution ordered by category name.
func (s EquipmentSummary) Breakdown() []Slice {
	out := make([]Slice, 0, len(s.TypeDistribution))
	for name, v := range s.TypeDistribution {
		out = append(out, Slice{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Share returns each slice's percentage of the distribution total.
func Share(slices []Slice) []float64 {
	total := 0
	for _, sl := range slices {
		total += sl.Value
	}
	out := make([]float64, len(slices))
	if total == 0 {
		return out
	}
	for i, sl := range slices {
		out[i] = float64(sl.Value) * 100 / float64(total)
	}
	return out
}

// Averages returns flowrate, pressure and temperature in that order.
func (s EquipmentSummary) Averages() []Bar {
	return []Bar{
		{Name: "Flowrate", Value: s.AvgFlowrate, Unit: "m³/h"},
		{Name: "Pressure", Value: s.AvgPressure, Unit: "bar"},
		{Name: "Temperature", Value: s.AvgTemperature, Unit: "°C"},
	}
}

// clone returns a copy that shares no map with s.
func (s EquipmentSummary) clone() EquipmentSummary {
	if s.TypeDistribution != nil {
		dist := make(map[string]int, len(s.TypeDistribution))
		for k, v := range s.TypeDistribution {
			dist[k] = v
		}
		s.TypeDistribution = dist
	}
	return s
}

func cloneAll(in []EquipmentSummary) []EquipmentSummary {
	if in == nil {
		return nil
	}
	out := make([]EquipmentSummary, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}
