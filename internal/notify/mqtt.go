package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oszuidwest/zwfm-silencewatch/internal/types"
	"github.com/oszuidwest/zwfm-silencewatch/internal/util"
)

const (
	mqttConnectTimeout = 30 * time.Second
	mqttPublishTimeout = 10 * time.Second
	mqttDisconnectMs   = 250

	defaultMQTTClientID = "zwfm-silencewatch"
)

// ErrMQTTNotConfigured is returned by the MQTT test without a broker.
var ErrMQTTNotConfigured = errors.New("MQTT broker not configured")

// MQTTTopic returns the topic a payload is published on.
func MQTTTopic(prefix string, p *Payload) string {
	prefix = strings.TrimSuffix(prefix, "/")
	switch p.Event {
	case EventSilenceAlert:
		return prefix + "/alert"
	case EventSilenceEnded:
		return prefix + "/silence"
	default:
		return prefix + "/test"
	}
}

// MQTTPublisher keeps one broker connection and reconnects when the broker
// settings change.
type MQTTPublisher struct {
	mu     sync.Mutex
	client mqtt.Client
	cfg    types.MQTTConfig
}

// NewMQTTPublisher returns a publisher that connects on first use.
func NewMQTTPublisher() *MQTTPublisher {
	return &MQTTPublisher{}
}

// Publish sends payload as JSON to the topic for its event.
func (p *MQTTPublisher) Publish(cfg types.MQTTConfig, payload *Payload) error {
	if cfg.Broker == "" {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal MQTT payload", err)
	}

	client, err := p.connected(cfg)
	if err != nil {
		return err
	}

	token := client.Publish(MQTTTopic(cfg.TopicPrefix, payload), 0, false, data)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("MQTT publish timed out after %s", mqttPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return util.WrapError("publish MQTT message", err)
	}
	return nil
}

// connected returns a live client for cfg, dialing when needed.
func (p *MQTTPublisher) connected(cfg types.MQTTConfig) (mqtt.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil && p.cfg == cfg && p.client.IsConnected() {
		return p.client, nil
	}
	if p.client != nil {
		p.client.Disconnect(mqttDisconnectMs)
		p.client = nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = defaultMQTTClientID
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("MQTT connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, util.WrapError("connect to MQTT broker", err)
	}

	p.client = client
	p.cfg = cfg
	return client, nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(mqttDisconnectMs)
		p.client = nil
	}
}

// SendTestMQTT connects with cfg and publishes a test message.
func SendTestMQTT(cfg types.MQTTConfig, stationName string) error {
	if cfg.Broker == "" {
		return ErrMQTTNotConfigured
	}
	pub := NewMQTTPublisher()
	defer pub.Close()
	return pub.Publish(cfg, TestPayload(stationName))
}
