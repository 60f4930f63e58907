package sensor

import (
	"errors"
	"fmt"
)

// Sensor reads the instrumentation values of a power monitor.
type Sensor interface {
	ReadVoltage() (float64, error)
	ReadCurrent() (float64, error)
	Close() error
}

// ErrDeviceNotFound is returned when nothing answers at the configured
// bus address, or the device that answers is not the expected part.
var ErrDeviceNotFound = errors.New("sensor: device not found")

// ReadError wraps a failed voltage or current read.
type ReadError struct {
	Quantity string
	Err      error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Quantity, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }
