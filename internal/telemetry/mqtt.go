// Package telemetry publishes session lifecycle events to an MQTT broker,
// for deployments running several synchronized recorders that want a
// single monitoring feed. Squelch-state changes are not published. Ported from the publisher
// pattern in kiwi_wspr/mqtt_publisher.go.
package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config configures the optional MQTT telemetry publisher.
type Config struct {
	Enabled  bool
	Broker   string
	Username string
	Password string
	Topic    string
}

// Event is one lifecycle notification.
type Event struct {
	Session   string    `json:"session"`
	Kind      string    `json:"kind"` // connected|disconnected|reconnecting
	Host      string    `json:"host"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Publisher publishes Events to an MQTT broker. A nil *Publisher is valid
// and Publish becomes a no-op, so callers don't need to branch on whether
// telemetry is enabled.
type Publisher struct {
	client mqtt.Client
	topic  string
}

func generateClientID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "kiwirecorder_" + hex.EncodeToString(b)
}

// NewPublisher connects to the configured broker. Returns (nil, nil) when
// telemetry is disabled.
func NewPublisher(cfg Config) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		return nil, fmt.Errorf("telemetry: mqtt connect: %w", tok.Error())
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "kiwirecorder/events"
	}
	return &Publisher{client: client, topic: topic}, nil
}

// Publish sends one Event as JSON, best-effort (publish failures are
// swallowed; telemetry must never block or fail a recording session).
func (p *Publisher) Publish(ev Event) {
	if p == nil || p.client == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	p.client.Publish(p.topic, 0, false, data)
}

// Close disconnects the publisher, if any.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(250)
}
