// Package file appends samples to a comma separated log file that can be
// loaded straight into a spreadsheet.
package file

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ericogr/ina260-logger/pkg/output"
	"github.com/ericogr/ina260-logger/pkg/sensor"
)

// TimeLayout is the timestamp prefix of every line, e.g. 17-Oct-26 14:03:05.
const TimeLayout = "02-Jan-06 15:04:05"

type FileOutput struct {
	mu    sync.Mutex
	f     *os.File
	path  string
	start output.Start
}

// NewFile opens path for appending, creating it if needed.
func NewFile(path string) (*FileOutput, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileOutput{f: f, path: path}, nil
}

func (o *FileOutput) Begin(st output.Start) error {
	o.mu.Lock()
	o.start = st
	o.mu.Unlock()
	msg := "Battery profiling started"
	if st.StopVoltage > 0 {
		msg += fmt.Sprintf(": Ending at %gV", st.StopVoltage)
	}
	return o.writeLine(st.Time.Format(TimeLayout), msg)
}

func (o *FileOutput) Publish(s sensor.Sample) error {
	fields := []string{
		s.Timestamp.Format(TimeLayout),
		fmt.Sprintf("%.3f", s.Voltage),
		fmt.Sprintf("%.4f", s.Current),
	}
	switch s.TemperatureState {
	case sensor.TemperatureValid:
		fields = append(fields, fmt.Sprintf("%.2f", s.Temperature))
	case sensor.TemperatureInvalid:
		fields = append(fields, "")
	}
	return o.writeLine(fields...)
}

func (o *FileOutput) End(sum output.Summary) error {
	o.mu.Lock()
	ts := o.start.Time.Add(sum.Duration).Format(TimeLayout)
	o.mu.Unlock()
	lines := [][]string{
		{ts, `"Samples"`, fmt.Sprintf(`"%d"`, sum.Samples)},
		{ts, `"Total time"`, fmt.Sprintf(`"%.2f hours"`, sum.Hours())},
		{ts, `"Capacity"`, fmt.Sprintf(`"%.2f mAH"`, sum.CapacityMAh)},
	}
	for _, l := range lines {
		if err := o.writeLine(l...); err != nil {
			return err
		}
	}
	return nil
}

// Close is safe to call more than once.
func (o *FileOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.f == nil {
		return nil
	}
	err := o.f.Close()
	o.f = nil
	return err
}

func (o *FileOutput) writeLine(fields ...string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.f == nil {
		return fmt.Errorf("log file %s is closed", o.path)
	}
	_, err := o.f.WriteString(strings.Join(fields, ", ") + "\n")
	return err
}
