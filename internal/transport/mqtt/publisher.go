// Package mqtt publishes device state and availability to an MQTT broker
// so home-automation consumers can follow the device without polling the
// bridge.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/achupryn/atvbridge/internal/tv"
)

// Sentinel errors returned by the publisher.
var (
	ErrNotConnected  = errors.New("mqtt: not connected")
	ErrPublishFailed = errors.New("mqtt: publish failed")
)

const (
	defaultQoS            = 1
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

// Publisher wraps a paho MQTT client. State topics are retained so new
// subscribers immediately receive the last known state.
type Publisher struct {
	client      pahomqtt.Client
	topicPrefix string
}

// NewPublisher creates a publisher for brokerURL. topicPrefix roots every
// topic, typically "atvbridge/<bridge-name>". The broker's last-will marks
// the bridge offline when the process dies uncleanly.
func NewPublisher(brokerURL, clientID, topicPrefix string) *Publisher {
	p := &Publisher{topicPrefix: topicPrefix}

	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetWill(p.statusTopic(), "offline", defaultQoS, true).
		SetOnConnectHandler(func(pahomqtt.Client) {
			log.Info().Str("broker", brokerURL).Msg("MQTT connected")
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost, reconnecting")
		})

	p.client = pahomqtt.NewClient(opts)
	return p
}

// Connect establishes the broker connection and marks the bridge online.
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: connect timeout after %v", ErrPublishFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return p.publish(p.statusTopic(), []byte("online"))
}

// PublishUpdate publishes one refresh result: the JSON state document and
// the availability flag on their own topics, both retained.
func (p *Publisher) PublishUpdate(update tv.Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := p.publish(p.stateTopic(), payload); err != nil {
		return err
	}

	availability := "offline"
	if update.Available {
		availability = "online"
	}
	return p.publish(p.availabilityTopic(), []byte(availability))
}

// Close marks the bridge offline and disconnects.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		_ = p.publish(p.statusTopic(), []byte("offline"))
		p.client.Disconnect(250)
	}
}

// publish sends a retained message and waits for broker acknowledgment.
func (p *Publisher) publish(topic string, payload []byte) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	token := p.client.Publish(topic, defaultQoS, true, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (p *Publisher) stateTopic() string        { return p.topicPrefix + "/state" }
func (p *Publisher) availabilityTopic() string { return p.topicPrefix + "/availability" }
func (p *Publisher) statusTopic() string       { return p.topicPrefix + "/bridge/status" }
