package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	SensorReal       = "real"
	SensorSimulation = "simulation"

	OutputConsole = "console"
	OutputFile    = "file"
	OutputMQTT    = "mqtt"

	// TemperatureAuto selects the first DS18B20 found on the w1 bus.
	TemperatureAuto = "auto"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic" yaml:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" yaml:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" yaml:"discovery_unique_id"`
}

type OutputConfig struct {
	Type string      `json:"type" yaml:"type"`
	Path string      `json:"path,omitempty" yaml:"path,omitempty"`
	MQTT *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type I2CConfig struct {
	Bus     string `json:"bus" yaml:"bus"`
	Address int    `json:"address" yaml:"address"`
}

type TemperatureConfig struct {
	// Device is a w1 device id such as 28-000005e2fdc3, "auto" or empty
	// for no temperature probe.
	Device  string `json:"device" yaml:"device"`
	BaseDir string `json:"base_dir" yaml:"base_dir"`
}

// SimulationConfig shapes the simulated battery used with sensor_type
// "simulation".
type SimulationConfig struct {
	StartVoltage float64 `json:"start_voltage" yaml:"start_voltage"`
	Step         float64 `json:"step" yaml:"step"`
	Current      float64 `json:"current" yaml:"current"`
}

type Config struct {
	SensorType  string            `json:"sensor_type" yaml:"sensor_type"`
	I2C         I2CConfig         `json:"i2c" yaml:"i2c"`
	IntervalMs  int               `json:"interval_ms" yaml:"interval_ms"`
	Average     int               `json:"average" yaml:"average"`
	StopVoltage float64           `json:"stop_voltage" yaml:"stop_voltage"`
	RelayPins   []int             `json:"relay_pins" yaml:"relay_pins"`
	LoadRelays  []int             `json:"load_relays" yaml:"load_relays"`
	Temperature TemperatureConfig `json:"temperature" yaml:"temperature"`
	LogFile     string            `json:"log_file" yaml:"log_file"`
	Outputs     []OutputConfig    `json:"outputs" yaml:"outputs"`
	MetricsFile string            `json:"metrics_file" yaml:"metrics_file"`
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Simulation  SimulationConfig  `json:"simulation" yaml:"simulation"`
}

func DefaultConfig() Config {
	return Config{
		SensorType:  SensorReal,
		I2C:         I2CConfig{Bus: "1", Address: 0x40},
		IntervalMs:  15000,
		Average:     1,
		StopVoltage: 2.7,
		RelayPins:   []int{6, 13, 19, 26},
		LoadRelays:  []int{1},
		Temperature: TemperatureConfig{BaseDir: "/sys/bus/w1/devices"},
		LogFile:     "BattLog.txt",
		Outputs:     []OutputConfig{{Type: OutputConsole}, {Type: OutputFile}},
		LogLevel:    "info",
		Simulation:  SimulationConfig{StartVoltage: 4.2, Step: 0.01, Current: 0.8},
	}
}

// Interval returns the sampling interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Load loads configuration from a JSON or YAML file (optional) and flags.
// Flags override values present in the file.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("ina260-logger", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagI2CAddStr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagInterval := fs.Int("interval-ms", -1, "Sampling interval in ms")
	flagAverage := fs.Int("average", -1, "Number of reads averaged into each sample")
	flagStopVoltage := fs.Float64("stop-voltage", math.NaN(), "Stop when the voltage falls below this value (0 disables)")
	flagRelayPins := fs.String("relay-pins", "", "Comma-separated BCM pins of the relay board e.g. 6,13,19,26")
	flagLoad := fs.String("load", "", "Comma-separated relay indexes switched on during the run e.g. 0,2 (or none)")
	flagTempDevice := fs.String("temp-device", "", "DS18B20 device id, 'auto' or 'none'")
	flagW1Dir := fs.String("w1-dir", "", "w1 sysfs devices directory")
	flagLogFile := fs.String("log-file", "", "Path of the append-only sample log")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,file,mqtt)")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagDiscovery := fs.String("mqtt-discovery-topic", "", "Home Assistant discovery topic, %s is replaced by the quantity")
	flagMetricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	flagLogLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := readFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagI2CBus != "" {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagAverage != -1 {
		cfg.Average = *flagAverage
	}
	if !math.IsNaN(*flagStopVoltage) {
		cfg.StopVoltage = *flagStopVoltage
	}
	if *flagRelayPins != "" {
		pins, err := parseInts(*flagRelayPins)
		if err != nil {
			return cfg, fmt.Errorf("relay-pins: %w", err)
		}
		cfg.RelayPins = pins
	}
	if strings.EqualFold(*flagLoad, "none") {
		cfg.LoadRelays = nil
	} else if *flagLoad != "" {
		load, err := parseInts(*flagLoad)
		if err != nil {
			return cfg, fmt.Errorf("load: %w", err)
		}
		cfg.LoadRelays = load
	}
	if *flagTempDevice != "" {
		cfg.Temperature.Device = *flagTempDevice
		if strings.EqualFold(cfg.Temperature.Device, "none") {
			cfg.Temperature.Device = ""
		}
	}
	if *flagW1Dir != "" {
		cfg.Temperature.BaseDir = *flagW1Dir
	}
	if *flagLogFile != "" {
		cfg.LogFile = *flagLogFile
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	// map mqtt flags into every mqtt output (create one if missing)
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" || *flagDiscovery != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.StateTopic = *flagTopic
			}
			if *flagDiscovery != "" {
				m.DiscoveryTopic = *flagDiscovery
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == OutputMQTT {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			mqttOut := OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{}}
			apply(mqttOut.MQTT)
			cfg.Outputs = append(cfg.Outputs, mqttOut)
		}
	}
	if *flagMetricsFile != "" {
		cfg.MetricsFile = *flagMetricsFile
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	// file outputs without their own path share the log file
	for i := range cfg.Outputs {
		if cfg.Outputs[i].Type == OutputFile && cfg.Outputs[i].Path == "" {
			cfg.Outputs[i].Path = cfg.LogFile
		}
	}

	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.SensorType {
	case SensorReal, SensorSimulation:
	default:
		return fmt.Errorf("sensor-type must be %q or %q, got %q", SensorReal, SensorSimulation, c.SensorType)
	}
	if c.I2C.Address < 0 || c.I2C.Address > 0x7f {
		return fmt.Errorf("i2c-address 0x%X out of range", c.I2C.Address)
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	if c.Average < 1 {
		return errors.New("average must be >= 1")
	}
	if c.StopVoltage < 0 {
		return errors.New("stop-voltage must be >= 0")
	}
	for _, idx := range c.LoadRelays {
		if idx < 0 || idx >= len(c.RelayPins) {
			return fmt.Errorf("load relay %d out of range, %d relays configured", idx, len(c.RelayPins))
		}
	}
	if len(c.Outputs) == 0 {
		return errors.New("at least one output is required")
	}
	for _, o := range c.Outputs {
		switch o.Type {
		case OutputConsole, OutputMQTT:
		case OutputFile:
			if o.Path == "" {
				return errors.New("file output needs a path or log-file")
			}
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

func readFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseInts(s string) ([]int, error) {
	parts := parseCSV(s)
	out := make([]int, 0, len(parts))
	for _, t := range parts {
		v, err := strconv.Atoi(t)
		if err != nil {
			return nil, fmt.Errorf("invalid number '%s': %w", t, err)
		}
		out = append(out, v)
	}
	return out, nil
}
