package file

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ericogr/ina260-logger/pkg/output"
	"github.com/ericogr/ina260-logger/pkg/sensor"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestFileOutputLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BattLog.txt")
	o, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	start := time.Date(2023, 3, 4, 10, 0, 0, 0, time.UTC)
	_ = o.Begin(output.Start{Time: start, StopVoltage: 5.8})
	_ = o.Publish(sensor.Sample{Timestamp: start.Add(15 * time.Second), Voltage: 8.1, Current: 0.81234})
	_ = o.Publish(sensor.Sample{Timestamp: start.Add(30 * time.Second), Voltage: 8.0, Current: 0.8, Temperature: 24.5, TemperatureState: sensor.TemperatureValid})
	_ = o.Publish(sensor.Sample{Timestamp: start.Add(45 * time.Second), Voltage: 7.9, Current: 0.8, TemperatureState: sensor.TemperatureInvalid})
	_ = o.End(output.Summary{Samples: 3, Duration: 90 * time.Minute, CapacityMAh: 1200})
	if err := o.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []string{
		"04-Mar-23 10:00:00, Battery profiling started: Ending at 5.8V",
		"04-Mar-23 10:00:15, 8.100, 0.8123",
		"04-Mar-23 10:00:30, 8.000, 0.8000, 24.50",
		"04-Mar-23 10:00:45, 7.900, 0.8000, ",
		`04-Mar-23 11:30:00, "Samples", "3"`,
		`04-Mar-23 11:30:00, "Total time", "1.50 hours"`,
		`04-Mar-23 11:30:00, "Capacity", "1200.00 mAH"`,
	}
	got := readLines(t, path)
	if len(got) != len(want) {
		t.Fatalf("lines: got %d want %d: %q", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d:\n got: %q\nwant: %q", i, got[i], want[i])
		}
	}
}

func TestFileOutputAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	o, err := NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	_ = o.Publish(sensor.Sample{Timestamp: time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC), Voltage: 4, Current: 1})
	_ = o.Close()
	if err := o.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := o.Publish(sensor.Sample{}); err == nil {
		t.Fatalf("expected error writing to closed file")
	}
	got := readLines(t, path)
	if len(got) != 2 || got[0] != "previous run" {
		t.Fatalf("unexpected contents %q", got)
	}
}
