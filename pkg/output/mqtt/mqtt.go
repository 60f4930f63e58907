package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ericogr/ina260-logger/pkg/config"
	"github.com/ericogr/ina260-logger/pkg/output"
	"github.com/ericogr/ina260-logger/pkg/sensor"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "ina260-logger"
	DefaultStateTopic = "ina260"
	statusSuffix      = "/status"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	stateClassMeasurement  = "measurement"
)

// quantity is one value of a sample exposed as a Home Assistant sensor.
type quantity struct {
	key         string
	unit        string
	deviceClass string
}

var (
	quantityVoltage     = quantity{"voltage", "V", "voltage"}
	quantityCurrent     = quantity{"current", "A", "current"}
	quantityTemperature = quantity{"temperature", "°C", "temperature"}
)

// publisher is the subset of mqtt.Client used by the output.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type MQTTOutput struct {
	client         publisher
	stateTopic     string
	discoveryTopic string
}

func NewMQTT(cfg config.MQTTConfig, withTemperature bool) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return newMQTTOutput(client, cfg, withTemperature), nil
}

func newMQTTOutput(client publisher, cfg config.MQTTConfig, withTemperature bool) *MQTTOutput {
	st := cfg.StateTopic
	if st == "" {
		st = DefaultStateTopic
	}
	m := &MQTTOutput{client: client, stateTopic: st, discoveryTopic: cfg.DiscoveryTopic}

	// Publish Home Assistant discovery payload(s) if requested
	if m.discoveryTopic != "" {
		quantities := []quantity{quantityVoltage, quantityCurrent}
		if withTemperature {
			quantities = append(quantities, quantityTemperature)
		}
		// per-quantity discovery when discoveryTopic contains a formatter
		if !strings.Contains(m.discoveryTopic, "%s") {
			quantities = quantities[:1]
		}
		for _, q := range quantities {
			dTopic := m.discoveryTopic
			if strings.Contains(dTopic, "%s") {
				dTopic = fmt.Sprintf(dTopic, q.key)
			}
			payload := baseDiscoveryPayload(discoveryName(cfg, q), m.stateTopic, discoveryUniqueID(cfg, q), q)
			if err := publishJSON(client, dTopic, true, payload); err != nil {
				log.WithError(err).WithField("topic", dTopic).Warn("mqtt discovery publish failed")
			}
		}
	}
	return m
}

func (m *MQTTOutput) Begin(st output.Start) error {
	payload := map[string]interface{}{
		"state":        "running",
		"started_at":   st.Time.Format(time.RFC3339),
		"stop_voltage": st.StopVoltage,
		"interval_s":   st.Interval.Seconds(),
	}
	return publishJSON(m.client, m.stateTopic+statusSuffix, true, payload)
}

func (m *MQTTOutput) Publish(s sensor.Sample) error {
	return publishJSON(m.client, m.stateTopic, false, samplePayload(s))
}

func (m *MQTTOutput) End(sum output.Summary) error {
	state := "stopped"
	if sum.Interrupted {
		state = "interrupted"
	}
	payload := map[string]interface{}{
		"state":           state,
		"samples":         sum.Samples,
		"hours":           sum.Hours(),
		"final_voltage":   sum.FinalVoltage,
		"average_current": sum.AverageCurrent,
		"capacity_mah":    sum.CapacityMAh,
	}
	return publishJSON(m.client, m.stateTopic+statusSuffix, true, payload)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

func samplePayload(s sensor.Sample) map[string]interface{} {
	payload := map[string]interface{}{
		"timestamp": s.Timestamp.Format(time.RFC3339),
		"voltage":   s.Voltage,
		"current":   s.Current,
	}
	if s.HasTemperature() {
		payload["temperature"] = s.Temperature
	}
	return payload
}

// helper: build a human-friendly discovery name
func discoveryName(cfg config.MQTTConfig, q quantity) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = fmt.Sprintf("INA260 %s", cfg.ClientID)
	}
	return fmt.Sprintf("%s %s", name, q.key)
}

// helper: build a unique id for discovery
func discoveryUniqueID(cfg config.MQTTConfig, q quantity) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", uid, q.key)
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID string, q quantity) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   q.unit,
		keyDeviceClass:         q.deviceClass,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       fmt.Sprintf("{{ value_json.%s }}", q.key),
		keyJSONAttributesTopic: stateTopic,
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client publisher, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
