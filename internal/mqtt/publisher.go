// Package mqtt publishes hub state to an MQTT broker so other home
// automation consumers can react to waterings without polling the API.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Topics for hub messages.
const (
	TopicWatering = "home/bonsai/watering"
	TopicStatus   = "home/bonsai/status"
)

// WateringPayload is the JSON body published after each completed run.
type WateringPayload struct {
	RunID      string   `json:"run_id"`
	Timestamp  string   `json:"timestamp"`
	Duration   float64  `json:"duration_seconds"`
	Before     *float64 `json:"moisture_before"`
	After      *float64 `json:"moisture_after"`
	Mode       string   `json:"mode"`
	StopReason string   `json:"stop_reason"`
}

// StatusPayload is the retained status snapshot published each monitor cycle.
type StatusPayload struct {
	Timestamp   string   `json:"timestamp"`
	Moisture    *float64 `json:"moisture"`
	PumpRunning bool     `json:"pump_running"`
	AutoEnabled bool     `json:"auto_enabled"`
}

// Publisher publishes hub events to a broker.
type Publisher interface {
	// PublishWatering sends a watering event. Errors must not crash the
	// pump teardown path.
	PublishWatering(p WateringPayload) error

	// PublishStatus sends a retained status snapshot.
	PublishStatus(p StatusPayload) error

	// Close disconnects from the broker.
	Close() error
}

// PahoPublisher publishes over a real MQTT connection.
type PahoPublisher struct {
	client paho.Client
}

// NewPahoPublisher connects to the broker. A failed initial connection is an
// error; the paho client reconnects on its own afterwards.
func NewPahoPublisher(brokerURL, clientID string) (*PahoPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout to %s", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &PahoPublisher{client: client}, nil
}

func (p *PahoPublisher) PublishWatering(payload WateringPayload) error {
	return p.publish(TopicWatering, payload, false)
}

func (p *PahoPublisher) PublishStatus(payload StatusPayload) error {
	return p.publish(TopicStatus, payload, true)
}

func (p *PahoPublisher) publish(topic string, payload interface{}, retained bool) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	token := p.client.Publish(topic, 0, retained, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout on %s", topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *PahoPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

// NopPublisher drops all messages. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishWatering(WateringPayload) error { return nil }
func (NopPublisher) PublishStatus(StatusPayload) error     { return nil }
func (NopPublisher) Close() error                          { return nil }
