package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ericogr/ina260-logger/pkg/output"
	"github.com/ericogr/ina260-logger/pkg/sensor"
)

// session is the mutable state of one run.
type session struct {
	start        time.Time
	last         time.Time
	samples      int
	sumCurrent   float64
	finalVoltage float64
}

func (ss *session) record(s sensor.Sample) {
	ss.samples++
	ss.sumCurrent += s.Current
	ss.finalVoltage = s.Voltage
	ss.last = s.Timestamp
}

func (ss *session) summary(now time.Time, interrupted bool) output.Summary {
	sum := output.Summary{
		Samples:      ss.samples,
		Duration:     now.Sub(ss.start),
		FinalVoltage: ss.finalVoltage,
		Interrupted:  interrupted,
	}
	if sum.Duration < 0 {
		sum.Duration = 0
	}
	if ss.samples > 0 {
		sum.AverageCurrent = ss.sumCurrent / float64(ss.samples)
	}
	sum.CapacityMAh = sum.AverageCurrent * 1000 * sum.Hours()
	return sum
}

// Run samples until the voltage falls below the cutoff or ctx is cancelled.
// Cancellation is a clean stop and returns a nil error. A *StartupError is
// returned when the outputs or relays cannot be brought up. Run may only be
// called once.
func (l *Logger) Run(ctx context.Context) (sum output.Summary, err error) {
	if l.State() != Init {
		return sum, errors.New("logger: already started")
	}
	c := l.cfg
	start := c.Clock.Now()

	if err := c.Output.Begin(output.Start{
		Time:          start,
		StopVoltage:   c.StopVoltage,
		Interval:      c.Interval,
		LoadRelays:    c.LoadRelays,
		HasTempSensor: c.Temperature != nil,
	}); err != nil {
		_ = c.Output.Close()
		l.setState(Stopped)
		return sum, &StartupError{Err: fmt.Errorf("output: %w", err)}
	}
	for _, idx := range c.LoadRelays {
		if err := c.Relays.Set(idx, true); err != nil {
			_ = c.Relays.AllOff()
			_ = c.Output.Close()
			l.setState(Stopped)
			return sum, &StartupError{Err: fmt.Errorf("load: %w", err)}
		}
	}

	ss := &session{start: start, last: start}
	defer func() {
		sum = ss.summary(c.Clock.Now(), l.State() == StoppingInterrupted)
		err = errors.Join(err, l.shutdown(sum))
		l.setState(Stopped)
	}()

	l.setState(Running)
	l.log.WithFields(log.Fields{
		"interval":     c.Interval,
		"average":      c.Average,
		"stop_voltage": c.StopVoltage,
		"load":         c.LoadRelays,
	}).Info("battery profiling started")

	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			l.setState(StoppingInterrupted)
			return sum, nil
		}
		iterStart := c.Clock.Now()
		s, ok := l.sample(ctx, iterStart, iteration)
		if ok {
			l.emit(ss, s, iterStart)
			if c.StopVoltage > 0 && s.Voltage < c.StopVoltage {
				l.log.WithFields(log.Fields{"voltage": s.Voltage, "stop_voltage": c.StopVoltage}).Info("cutoff voltage reached")
				l.setState(StoppingNormal)
				return sum, nil
			}
		}
		if !l.sleepUntil(ctx, iterStart.Add(c.Interval)) {
			l.setState(StoppingInterrupted)
			return sum, nil
		}
	}
}

// sample takes Average reads spread evenly from iterStart. Any voltage or
// current failure skips the whole sample; a temperature failure only marks
// the temperature invalid.
func (l *Logger) sample(ctx context.Context, iterStart time.Time, iteration int) (sensor.Sample, bool) {
	c := l.cfg
	n := c.Average
	step := c.Interval / time.Duration(n)
	var vSum, aSum, tSum float64
	tCount := 0
	for i := 0; i < n; i++ {
		if i > 0 && !l.sleepUntil(ctx, iterStart.Add(time.Duration(i)*step)) {
			return sensor.Sample{}, false
		}
		v, err := c.Sensor.ReadVoltage()
		if err != nil {
			l.readFailed("voltage", iteration, err)
			return sensor.Sample{}, false
		}
		a, err := c.Sensor.ReadCurrent()
		if err != nil {
			l.readFailed("current", iteration, err)
			return sensor.Sample{}, false
		}
		vSum += v
		aSum += a
		if c.Temperature != nil {
			t, err := c.Temperature.ReadTemperature(c.TemperatureDevice)
			if err != nil {
				c.Metrics.ReadFailed("temperature")
				l.log.WithError(err).WithFields(log.Fields{"iteration": iteration, "device": c.TemperatureDevice}).
					Warn("temperature read failed, recording sample without temperature")
				continue
			}
			tSum += t
			tCount++
		}
	}
	s := sensor.Sample{Voltage: vSum / float64(n), Current: aSum / float64(n)}
	if c.Temperature != nil {
		s.TemperatureState = sensor.TemperatureInvalid
		if tCount > 0 {
			s.Temperature = tSum / float64(tCount)
			s.TemperatureState = sensor.TemperatureValid
		}
	}
	return s, true
}

func (l *Logger) readFailed(quantity string, iteration int, err error) {
	l.cfg.Metrics.ReadFailed(quantity)
	l.log.WithError(err).WithFields(log.Fields{"iteration": iteration, "quantity": quantity}).
		Warn("sensor read failed, sample skipped")
}

// emit stamps the sample, never earlier than the previous one, and hands it
// to the outputs.
func (l *Logger) emit(ss *session, s sensor.Sample, ts time.Time) {
	if ts.Before(ss.last) {
		ts = ss.last
	}
	s.Timestamp = ts
	s.Elapsed = ts.Sub(ss.start)
	if err := l.cfg.Output.Publish(s); err != nil {
		l.log.WithError(err).Warn("output publish failed")
	}
	ss.record(s)
	if m := l.cfg.Metrics; m != nil {
		m.ObserveSample(s)
		m.SetCapacity(ss.summary(ts, false).CapacityMAh)
		if err := m.Flush(); err != nil {
			l.log.WithError(err).Warn("metrics flush failed")
		}
	}
}

// sleepUntil waits until t and reports false if ctx was cancelled first.
func (l *Logger) sleepUntil(ctx context.Context, t time.Time) bool {
	d := t.Sub(l.cfg.Clock.Now())
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-l.cfg.Clock.After(d):
		return true
	}
}

// shutdown releases the relays and outputs. Only a relay failure is
// returned since a load left switched on keeps discharging the battery.
func (l *Logger) shutdown(sum output.Summary) error {
	c := l.cfg
	var relayErr error
	if c.Relays != nil {
		if err := c.Relays.AllOff(); err != nil {
			relayErr = fmt.Errorf("relays off: %w", err)
			l.log.WithError(err).Error("switching relays off failed")
		}
	}
	if err := c.Output.End(sum); err != nil {
		l.log.WithError(err).Warn("writing summary failed")
	}
	if err := c.Output.Close(); err != nil {
		l.log.WithError(err).Warn("closing outputs failed")
	}
	c.Metrics.SetCapacity(sum.CapacityMAh)
	if err := c.Metrics.Flush(); err != nil {
		l.log.WithError(err).Warn("metrics flush failed")
	}
	l.log.WithFields(log.Fields{
		"samples":       sum.Samples,
		"duration":      sum.Duration.Round(time.Second),
		"final_voltage": sum.FinalVoltage,
		"capacity_mah":  sum.CapacityMAh,
		"interrupted":   sum.Interrupted,
	}).Info("run finished")
	return relayErr
}
