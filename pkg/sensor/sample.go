package sensor

import "time"

// TemperatureState tells whether a Sample carries a temperature.
type TemperatureState int

const (
	// NoTemperature means no temperature probe is configured.
	NoTemperature TemperatureState = iota
	TemperatureValid
	// TemperatureInvalid means the probe is configured but the read failed.
	TemperatureInvalid
)

// Sample is one timestamped reading. Current is in amps and Temperature in
// degrees Celsius.
type Sample struct {
	Timestamp        time.Time        `json:"timestamp"`
	Elapsed          time.Duration    `json:"-"`
	Voltage          float64          `json:"voltage"`
	Current          float64          `json:"current"`
	Temperature      float64          `json:"temperature"`
	TemperatureState TemperatureState `json:"-"`
}

// HasTemperature reports whether Temperature holds a valid reading.
func (s Sample) HasTemperature() bool { return s.TemperatureState == TemperatureValid }
