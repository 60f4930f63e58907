package temperature

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const (
	goodFile = "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"
	badCRC   = "72 01 4b 46 7f ff 0e 10 57 : crc=00 NO\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"
)

func writeDevice(t *testing.T, dir, id, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, id), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, id, "w1_slave"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseW1Slave(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		err  error
	}{
		{goodFile, 23.125, nil},
		{"aa : crc=57 YES\naa t=-1250\n", -1.25, nil},
		{badCRC, 0, ErrNotReady},
		{"", 0, ErrNotReady},
		{"aa : crc=57 YES\naa t=85000\n", 0, ErrNoConversion},
	}
	for _, tt := range tests {
		got, err := parseW1Slave(tt.in)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Fatalf("parseW1Slave(%q) err=%v want %v", tt.in, err, tt.err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseW1Slave(%q): %v", tt.in, err)
		}
		if c := celsius(got); math.Abs(c-tt.want) > 1e-9 {
			t.Fatalf("parseW1Slave(%q) = %f want %f", tt.in, c, tt.want)
		}
	}
}

func TestFindDevice(t *testing.T) {
	dir := t.TempDir()
	if _, err := FindDevice(dir); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	writeDevice(t, dir, "28-000005e2fdc3", goodFile)
	writeDevice(t, dir, "28-000005e2fdc2", goodFile)
	if err := os.MkdirAll(filepath.Join(dir, "w1_bus_master1"), 0o755); err != nil {
		t.Fatal(err)
	}
	id, err := FindDevice(dir)
	if err != nil {
		t.Fatalf("FindDevice: %v", err)
	}
	if id != "28-000005e2fdc2" {
		t.Fatalf("FindDevice: got %q", id)
	}
}

func TestReadTemperature(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-01", goodFile)
	s := NewW1Sensor(dir)
	c, err := s.ReadTemperature("28-01")
	if err != nil {
		t.Fatalf("ReadTemperature: %v", err)
	}
	if math.Abs(c-23.125) > 1e-9 {
		t.Fatalf("got %f", c)
	}
}

func TestReadTemperatureRetriesCRC(t *testing.T) {
	dir := t.TempDir()
	writeDevice(t, dir, "28-01", badCRC)
	s := NewW1Sensor(dir)
	sleeps := 0
	s.sleep = func(time.Duration) {
		sleeps++
		if sleeps == 2 {
			writeDevice(t, dir, "28-01", goodFile)
		}
	}
	c, err := s.ReadTemperature("28-01")
	if err != nil {
		t.Fatalf("ReadTemperature: %v", err)
	}
	if sleeps != 2 || math.Abs(c-23.125) > 1e-9 {
		t.Fatalf("sleeps=%d temp=%f", sleeps, c)
	}

	writeDevice(t, dir, "28-01", badCRC)
	sleeps = 10
	if _, err := s.ReadTemperature("28-01"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady after retries, got %v", err)
	}
}

func TestReadTemperatureMissingDevice(t *testing.T) {
	s := NewW1Sensor(t.TempDir())
	if _, err := s.ReadTemperature("28-missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
