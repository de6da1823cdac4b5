package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SampleCSV is a small equipment file the fake backend can summarize.
const SampleCSV = `Equipment Name,Type,Flowrate,Pressure,Temperature
P-101,pump,30,2,80
V-201,valve,39,2.2,80
`

// WriteCSV writes content into dir/name and returns the full path.
func WriteCSV(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// EquipmentRecord is the record used across scenario tests.
func EquipmentRecord() Record {
	return Record{
		ID:               7,
		Filename:         "equipment.csv",
		TotalCount:       12,
		AvgFlowrate:      34.5,
		AvgPressure:      2.1,
		AvgTemperature:   80.0,
		TypeDistribution: map[string]int{"pump": 5, "valve": 7},
		Timestamp:        "2024-01-01T00:00:00Z",
	}
}
