package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/svitlobot/svitlo/core/logger"
	"github.com/svitlobot/svitlo/core/notify"
)

// MQTTConfig defines the connection parameters for the MQTT channel.
type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         byte   `json:"qos"`
}

// SetDefaults applies the standard topic layout.
func (c *MQTTConfig) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "svitlo/notify"
	}
	if c.ClientID == "" {
		c.ClientID = "svitlo"
	}
}

// Validate checks mandatory fields.
func (c MQTTConfig) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt broker is required")
	}
	return nil
}

// pahoClient is the slice of the Paho API the channel uses; tests inject
// a fake.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// MQTTChannel publishes notification payloads to a per-recipient topic.
type MQTTChannel struct {
	cli    pahoClient
	prefix string
	qos    byte
	log    logger.Logger
}

// notifyPayload is the wire shape of one published notification.
type notifyPayload struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text"`
	Escaped   bool      `json:"escaped"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMQTTChannel connects to the broker.
func NewMQTTChannel(cfg MQTTConfig, log logger.Logger) (*MQTTChannel, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(paho.Client) { log.Infof("MQTT connected") }
	opts.OnConnectionLost = func(_ paho.Client, err error) { log.Errorf("MQTT connection lost: %v", err) }

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTChannel{cli: cli, prefix: cfg.TopicPrefix, qos: cfg.QoS, log: log}, nil
}

// Send implements notify.Channel by publishing a JSON payload to
// <prefix>/<recipient>. Escaping applies before publication so consumers
// see exactly what strict renderers would receive.
func (m *MQTTChannel) Send(ctx context.Context, recipientID, text string, escape bool) error {
	if escape {
		text = notify.Escape(text)
	}
	payload, err := json.Marshal(notifyPayload{
		ID:        uuid.NewString(),
		Recipient: recipientID,
		Text:      text,
		Escaped:   escape,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s", m.prefix, recipientID)
	token := m.cli.Publish(topic, m.qos, false, payload)

	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return token.Error()
	}
}

// Close disconnects from the broker.
func (m *MQTTChannel) Close() error {
	if m.cli.IsConnected() {
		m.cli.Disconnect(250)
	}
	return nil
}
