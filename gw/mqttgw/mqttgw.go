// Package mqttgw implements the gateway transport over MQTT.
package mqttgw

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iqrfcloud/gwcmd/gw"
	"github.com/iqrfcloud/gwcmd/logkeys"

	"github.com/micromdm/nanolib/log"
)

// Default gateway request and response topics.
const (
	DefaultRequestTopic  = "Iqrf/DpaRequest"
	DefaultResponseTopic = "Iqrf/DpaResponse"
)

// Transport publishes commands to and receives responses from an MQTT
// broker the gateway is connected to.
type Transport struct {
	client        mqtt.Client
	requestTopic  string
	responseTopic string
	qos           byte
	logger        log.Logger
}

type Option func(*Transport)

func WithLogger(logger log.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithRequestTopic overrides the outbound command topic.
func WithRequestTopic(topic string) Option {
	return func(t *Transport) {
		t.requestTopic = topic
	}
}

// WithResponseTopic overrides the inbound response topic.
func WithResponseTopic(topic string) Option {
	return func(t *Transport) {
		t.responseTopic = topic
	}
}

// WithQOS sets the MQTT quality of service for both directions.
// Defaults to 1 (at least once).
func WithQOS(qos byte) Option {
	return func(t *Transport) {
		t.qos = qos
	}
}

// New connects to the MQTT broker at brokerURL as clientID.
func New(brokerURL, clientID string, opts ...Option) (*Transport, error) {
	t := &Transport{
		requestTopic:  DefaultRequestTopic,
		responseTopic: DefaultResponseTopic,
		qos:           1,
		logger:        log.NopLogger,
	}
	for _, opt := range opts {
		opt(t)
	}
	mqttOpts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true)
	t.client = mqtt.NewClient(mqttOpts)
	token := t.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to broker: %w", err)
	}
	return t, nil
}

// Publish implements the gateway publisher interface method.
func (t *Transport) Publish(ctx context.Context, rawCmd []byte) error {
	token := t.client.Publish(t.requestTopic, t.qos, false, rawCmd)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe routes inbound messages on the response topic to recv.
func (t *Transport) Subscribe(recv gw.ResponseReceiver) error {
	token := t.client.Subscribe(t.responseTopic, t.qos, func(_ mqtt.Client, m mqtt.Message) {
		if err := recv.GatewayResponseEvent(context.Background(), m.Payload()); err != nil {
			t.logger.Info(
				logkeys.Message, "receiving gateway response",
				logkeys.Error, err,
			)
		}
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribing to %s: %w", t.responseTopic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (t *Transport) Close() {
	t.client.Disconnect(250)
}
