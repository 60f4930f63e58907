package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/ericogr/ina260-logger/pkg/config"
	"github.com/ericogr/ina260-logger/pkg/logger"
	"github.com/ericogr/ina260-logger/pkg/metrics"
	"github.com/ericogr/ina260-logger/pkg/output"
	"github.com/ericogr/ina260-logger/pkg/output/console"
	"github.com/ericogr/ina260-logger/pkg/output/file"
	"github.com/ericogr/ina260-logger/pkg/output/mqtt"
	"github.com/ericogr/ina260-logger/pkg/relay"
	"github.com/ericogr/ina260-logger/pkg/sensor"
	"github.com/ericogr/ina260-logger/pkg/temperature"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code: 0 on a clean stop, 1 on a startup or
// shutdown failure and 2 on a configuration error.
func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return 2
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lcfg, cleanup, err := buildLoggerConfig(cfg)
	if err != nil {
		log.WithError(err).Error("startup failed")
		return 1
	}
	defer cleanup()

	l, err := logger.New(lcfg)
	if err != nil {
		_ = lcfg.Output.Close()
		log.WithError(err).Error("startup failed")
		return 1
	}
	if _, err := l.Run(ctx); err != nil {
		log.WithError(err).Error("run failed")
		return 1
	}
	return 0
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithError(err).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// buildLoggerConfig acquires the hardware and outputs. The returned cleanup
// releases the sensor bus; outputs are closed by the logger.
func buildLoggerConfig(cfg config.Config) (logger.Config, func(), error) {
	lcfg := logger.Config{
		Interval:    cfg.Interval(),
		Average:     cfg.Average,
		StopVoltage: cfg.StopVoltage,
		LoadRelays:  cfg.LoadRelays,
		Log:         log.WithField("component", "logger"),
	}

	s, err := openSensor(cfg)
	if err != nil {
		return lcfg, nil, &logger.StartupError{Err: err}
	}
	lcfg.Sensor = s
	cleanup := func() {
		if err := s.Close(); err != nil {
			log.WithError(err).Warn("closing sensor failed")
		}
	}

	relays, err := openRelays(cfg)
	if err != nil {
		cleanup()
		return lcfg, nil, &logger.StartupError{Err: err}
	}
	if relays != nil {
		lcfg.Relays = relays
	}

	if cfg.Temperature.Device != "" {
		ts, dev, err := openTemperature(cfg)
		if err != nil {
			cleanup()
			return lcfg, nil, &logger.StartupError{Err: err}
		}
		lcfg.Temperature, lcfg.TemperatureDevice = ts, dev
	}

	out, err := buildOutputs(cfg, lcfg.Temperature != nil)
	if err != nil {
		cleanup()
		return lcfg, nil, &logger.StartupError{Err: err}
	}
	lcfg.Output = out

	if cfg.MetricsFile != "" {
		lcfg.Metrics = metrics.New(cfg.MetricsFile)
	}
	return lcfg, cleanup, nil
}

func openSensor(cfg config.Config) (sensor.Sensor, error) {
	if cfg.SensorType == config.SensorSimulation {
		sim := cfg.Simulation
		return sensor.NewFakeSensor(sim.StartVoltage, sim.Step, sim.Current), nil
	}
	s, err := sensor.OpenINA260(cfg.I2C.Bus, uint16(cfg.I2C.Address))
	if err != nil {
		return nil, err
	}
	log.WithField("device", s.String()).Info("INA260 found")
	return s, nil
}

// openRelays returns nil when no relay pins are configured.
func openRelays(cfg config.Config) (relay.Driver, error) {
	if len(cfg.RelayPins) == 0 {
		return nil, nil
	}
	if cfg.SensorType == config.SensorSimulation {
		return relay.NewBank(len(cfg.RelayPins)), nil
	}
	return relay.OpenGPIO(cfg.RelayPins)
}

func openTemperature(cfg config.Config) (temperature.Sensor, string, error) {
	if cfg.SensorType == config.SensorSimulation {
		return &temperature.FakeSensor{Celsius: 20}, cfg.Temperature.Device, nil
	}
	dev := cfg.Temperature.Device
	if dev == config.TemperatureAuto {
		found, err := temperature.FindDevice(cfg.Temperature.BaseDir)
		if err != nil {
			return nil, "", err
		}
		dev = found
	}
	ts := temperature.NewW1Sensor(cfg.Temperature.BaseDir)
	c, err := ts.ReadTemperature(dev)
	if err != nil {
		return nil, "", fmt.Errorf("temperature probe %s: %w", dev, err)
	}
	log.WithFields(log.Fields{"device": dev, "celsius": c}).Info("starting temperature")
	return ts, dev, nil
}

func buildOutputs(cfg config.Config, withTemperature bool) (output.Multi, error) {
	outs := make(output.Multi, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		var (
			o   output.Output
			err error
		)
		switch oc.Type {
		case config.OutputConsole:
			o = console.NewConsole()
		case config.OutputFile:
			o, err = file.NewFile(oc.Path)
		case config.OutputMQTT:
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err = mqtt.NewMQTT(mc, withTemperature)
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			_ = outs.Close()
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		outs = append(outs, o)
	}
	return outs, nil
}
