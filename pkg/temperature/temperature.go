// Package temperature reads DS18B20 one-wire temperature probes through the
// Linux w1 sysfs interface.
package temperature

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"
)

const (
	DefaultBaseDir = "/sys/bus/w1/devices"

	// Family code prefix of DS18B20 devices in sysfs.
	familyPrefix = "28-"
)

var (
	ErrNoDevice = errors.New("temperature: no DS18B20 device found")
	ErrNotReady = errors.New("temperature: CRC check did not pass")
	// The device powers up with 85C in its scratchpad.
	ErrNoConversion = errors.New("temperature: device has not performed a conversion")
)

// Sensor reads a temperature in degrees Celsius from the device with the
// given id.
type Sensor interface {
	ReadTemperature(deviceID string) (float64, error)
}

// W1Sensor reads w1_slave files below a sysfs base directory.
type W1Sensor struct {
	baseDir    string
	retries    int
	retryDelay time.Duration
	sleep      func(time.Duration)
}

func NewW1Sensor(baseDir string) *W1Sensor {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return &W1Sensor{baseDir: baseDir, retries: 5, retryDelay: 200 * time.Millisecond, sleep: time.Sleep}
}

// FindDevice returns the id of the first DS18B20 under baseDir.
func FindDevice(baseDir string) (string, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	matches, err := filepath.Glob(filepath.Join(baseDir, familyPrefix+"*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", ErrNoDevice
	}
	sort.Strings(matches)
	return filepath.Base(matches[0]), nil
}

// ReadTemperature re-reads the device file while the kernel reports a failed
// CRC, up to a fixed number of attempts.
func (s *W1Sensor) ReadTemperature(deviceID string) (float64, error) {
	path := filepath.Join(s.baseDir, deviceID, "w1_slave")
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			s.sleep(s.retryDelay)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", deviceID, err)
		}
		t, err := parseW1Slave(string(b))
		if errors.Is(err, ErrNotReady) {
			lastErr = err
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%s: %w", deviceID, err)
		}
		return celsius(t), nil
	}
	return 0, fmt.Errorf("%s: %w", deviceID, lastErr)
}

// parseW1Slave parses the two line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(s string) (physic.Temperature, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: short read", ErrNotReady)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrNotReady
	}
	i := strings.Index(lines[1], "t=")
	if i == -1 {
		return 0, errors.New("temperature: missing t= field")
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(lines[1][i+2:]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("temperature: parse %q: %w", lines[1][i+2:], err)
	}
	if milli == 85000 {
		return 0, ErrNoConversion
	}
	return physic.Temperature(milli)*physic.MilliKelvin + physic.ZeroCelsius, nil
}

func celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Kelvin)
}

// FakeSensor returns a fixed temperature for any device id.
type FakeSensor struct {
	Celsius float64
	Err     error
}

func (f *FakeSensor) ReadTemperature(string) (float64, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Celsius, nil
}
