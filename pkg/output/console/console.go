package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/ina260-logger/pkg/output"
	"github.com/ericogr/ina260-logger/pkg/sensor"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{} }

// NewConsoleWriter writes to w instead of standard output.
func NewConsoleWriter(w io.Writer) output.Output { return &ConsoleOutput{w: w} }

func (c *ConsoleOutput) out() io.Writer {
	if c.w == nil {
		return os.Stdout
	}
	return c.w
}

func (c *ConsoleOutput) Begin(st output.Start) error {
	msg := "Battery profiling started"
	if st.StopVoltage > 0 {
		msg += fmt.Sprintf(": Ending at %.2fV", st.StopVoltage)
	}
	_, err := fmt.Fprintf(c.out(), "%s (interval %s)\n", msg, st.Interval)
	return err
}

func (c *ConsoleOutput) Publish(s sensor.Sample) error {
	line := fmt.Sprintf("Time: %.0fs, %.2f V, %.3f A", s.Elapsed.Seconds(), s.Voltage, s.Current)
	switch s.TemperatureState {
	case sensor.TemperatureValid:
		line += fmt.Sprintf(", %.1f degC", s.Temperature)
	case sensor.TemperatureInvalid:
		line += ", n/a degC"
	}
	_, err := fmt.Fprintln(c.out(), line)
	return err
}

func (c *ConsoleOutput) End(sum output.Summary) error {
	reason := "Run ended"
	if sum.Interrupted {
		reason = "Run interrupted"
	}
	_, err := fmt.Fprintf(c.out(), "%s. Samples: %d; Final voltage: %.2f V; Average current: %.2f mA; Total time: %.2f hours (%s); Calculated capacity: %.2f mAH\n",
		reason, sum.Samples, sum.FinalVoltage, sum.AverageCurrent*1000, sum.Hours(), sum.Duration.Round(time.Second), sum.CapacityMAh)
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
