package output

import (
	"errors"
	"time"

	"github.com/ericogr/ina260-logger/pkg/sensor"
)

// Start describes a run that is about to record samples.
type Start struct {
	Time          time.Time
	StopVoltage   float64 // zero when no cutoff is configured
	Interval      time.Duration
	LoadRelays    []int
	HasTempSensor bool
}

// Summary is reported once when a run ends.
type Summary struct {
	Samples        int
	Duration       time.Duration
	FinalVoltage   float64
	AverageCurrent float64 // amps
	CapacityMAh    float64
	Interrupted    bool
}

// Hours returns the run duration in hours.
func (s Summary) Hours() float64 { return s.Duration.Hours() }

type Output interface {
	Begin(Start) error
	Publish(sensor.Sample) error
	End(Summary) error
	Close() error
}

// Multi fans every call out to all outputs and joins their errors.
type Multi []Output

func (m Multi) Begin(st Start) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.Begin(st))
	}
	return errors.Join(errs...)
}

func (m Multi) Publish(s sensor.Sample) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.Publish(s))
	}
	return errors.Join(errs...)
}

func (m Multi) End(sum Summary) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.End(sum))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.Close())
	}
	return errors.Join(errs...)
}
