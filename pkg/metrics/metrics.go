// Package metrics tracks a logging run as Prometheus metrics and writes them
// to a node_exporter textfile collector file.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ericogr/ina260-logger/pkg/sensor"
)

type Metrics struct {
	reg          *prometheus.Registry
	samples      prometheus.Counter
	readFailures *prometheus.CounterVec
	voltage      prometheus.Gauge
	current      prometheus.Gauge
	temperature  prometheus.Gauge
	capacity     prometheus.Gauge
	textfile     string
}

// New registers the metrics on a private registry. When textfile is empty
// Flush does nothing.
func New(textfile string) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battery_samples_recorded_total",
			Help: "Samples written to the outputs.",
		}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "battery_sensor_read_failures_total",
			Help: "Sensor reads that failed, by quantity.",
		}, []string{"quantity"}),
		voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battery_voltage_volts",
			Help: "Voltage of the last sample.",
		}),
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battery_current_amperes",
			Help: "Current of the last sample.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battery_temperature_celsius",
			Help: "Temperature of the last sample with a valid probe reading.",
		}),
		capacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battery_discharged_capacity_mah",
			Help: "Capacity discharged since the run started.",
		}),
		textfile: textfile,
	}
	m.reg.MustRegister(m.samples, m.readFailures, m.voltage, m.current, m.temperature, m.capacity)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ObserveSample(s sensor.Sample) {
	if m == nil {
		return
	}
	m.samples.Inc()
	m.voltage.Set(s.Voltage)
	m.current.Set(s.Current)
	if s.HasTemperature() {
		m.temperature.Set(s.Temperature)
	}
}

func (m *Metrics) ReadFailed(quantity string) {
	if m == nil {
		return
	}
	m.readFailures.WithLabelValues(quantity).Inc()
}

func (m *Metrics) SetCapacity(mAh float64) {
	if m == nil {
		return
	}
	m.capacity.Set(mAh)
}

// Flush writes the textfile atomically.
func (m *Metrics) Flush() error {
	if m == nil || m.textfile == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.textfile, m.reg)
}
