// Package logger runs the sampling loop: read the power monitor at a fixed
// rate, write each sample to the outputs and stop at a voltage cutoff or on
// interrupt, switching the load relays off on every exit path.
package logger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ericogr/ina260-logger/pkg/metrics"
	"github.com/ericogr/ina260-logger/pkg/output"
	"github.com/ericogr/ina260-logger/pkg/relay"
	"github.com/ericogr/ina260-logger/pkg/sensor"
	"github.com/ericogr/ina260-logger/pkg/temperature"
)

type State int

const (
	Init State = iota
	Running
	StoppingNormal
	StoppingInterrupted
	Stopped
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Running:
		return "running"
	case StoppingNormal:
		return "stopping"
	case StoppingInterrupted:
		return "stopping-interrupted"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StartupError is returned when the run cannot start. Nothing has been
// switched on when it is returned.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string { return "startup: " + e.Err.Error() }

func (e *StartupError) Unwrap() error { return e.Err }

// Clock abstracts time for the loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Config struct {
	// Interval between the start of two samples.
	Interval time.Duration
	// Average is the number of reads, spread over Interval, averaged into
	// one sample. Zero means one.
	Average int
	// StopVoltage ends the run after the first sample below it. Zero
	// disables the cutoff.
	StopVoltage float64

	Sensor sensor.Sensor
	Output output.Output

	// Temperature is optional.
	Temperature       temperature.Sensor
	TemperatureDevice string

	// Relays is optional. LoadRelays are switched on once the run starts.
	Relays     relay.Driver
	LoadRelays []int

	Metrics *metrics.Metrics
	Clock   Clock
	Log     *log.Entry
}

type Logger struct {
	cfg Config
	log *log.Entry

	mu    sync.Mutex
	state State
}

func New(cfg Config) (*Logger, error) {
	if cfg.Sensor == nil {
		return nil, &StartupError{Err: errors.New("no sensor")}
	}
	if cfg.Output == nil {
		return nil, &StartupError{Err: errors.New("no output")}
	}
	if cfg.Interval <= 0 {
		return nil, &StartupError{Err: fmt.Errorf("invalid interval %s", cfg.Interval)}
	}
	if cfg.Average <= 0 {
		cfg.Average = 1
	}
	if cfg.StopVoltage < 0 {
		return nil, &StartupError{Err: fmt.Errorf("invalid stop voltage %g", cfg.StopVoltage)}
	}
	if cfg.Temperature != nil && cfg.TemperatureDevice == "" {
		return nil, &StartupError{Err: errors.New("temperature sensor without device id")}
	}
	for _, idx := range cfg.LoadRelays {
		if cfg.Relays == nil || idx < 0 || idx >= cfg.Relays.Len() {
			return nil, &StartupError{Err: fmt.Errorf("load relay %d not available", idx)}
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	l := cfg.Log
	if l == nil {
		l = log.WithField("component", "logger")
	}
	return &Logger{cfg: cfg, log: l, state: Init}, nil
}

// State returns the current lifecycle state.
func (l *Logger) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Logger) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	l.log.WithField("state", s).Debug("state change")
}
