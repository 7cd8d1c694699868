package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eddielth/mesh-trans/config"
	"github.com/eddielth/mesh-trans/logger"
	"github.com/eddielth/mesh-trans/metrics"
	"github.com/eddielth/mesh-trans/transformer"
)

const storeTimeout = 10 * time.Second

// Client represents an MQTT client
type Client struct {
	client  mqtt.Client
	config  config.MQTTConfig
	handler MessageHandler
}

// MessageHandler is the callback function type for handling MQTT messages
type MessageHandler func(topic string, payload []byte)

// RecordStore persists classified records
type RecordStore interface {
	Store(ctx context.Context, records []transformer.Record) error
}

// Manager ties the broker subscription to classification and storage
type Manager struct {
	client *Client
}

// NewManager creates a new MQTT manager
func NewManager(cfg config.MQTTConfig, classifier *transformer.Classifier, store RecordStore, m *metrics.Metrics) (*Manager, error) {
	messageHandler := createMessageHandler(classifier, store, m)

	mqttClient, err := newClient(cfg, messageHandler)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MQTT client: %w", err)
	}

	return &Manager{
		client: mqttClient,
	}, nil
}

// Start connects to the broker and subscribes to the configured topics
func (m *Manager) Start() error {
	if err := m.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	for _, topic := range m.client.config.Topics {
		if err := m.client.Subscribe(topic); err != nil {
			logger.Warn("failed to subscribe to topic %s: %v", topic, err)
		}
	}

	return nil
}

// Stop stops the MQTT service
func (m *Manager) Stop() {
	m.client.Disconnect()
}

// createMessageHandler decodes, classifies and stores one mesh message.
// Every failure ends in a log line and a dropped message.
func createMessageHandler(classifier *transformer.Classifier, store RecordStore, m *metrics.Metrics) MessageHandler {
	return func(topic string, payload []byte) {
		info, _ := ParseTopic(topic)

		env, err := transformer.DecodeEnvelope(payload)
		if err != nil {
			m.DecodeError()
			logger.Warn("dropping undecodable message on %s: %v", topic, err)
			return
		}
		m.Received(env.Type)

		out := classifier.Apply(env)
		if logOut, err := json.Marshal(out); err == nil {
			logger.Debug("gateway %s channel %s: %s", info.Gateway, info.Channel, logOut)
		}

		if !out.Valid {
			m.Discarded(env.Type)
			logger.Debug("discarding %s message from %d", env.Type, env.From)
			return
		}
		m.Classified(out.DataType)

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		if err := store.Store(ctx, out.Payload); err != nil {
			m.StoreError()
			logger.Error("failed to store %s records: %v", out.DataType, err)
			return
		}
		logger.Info("stored %s record %s", out.DataType, out.Payload[0].Measurement)
	}
}

// newClient creates a new MQTT client
func newClient(config config.MQTTConfig, handler MessageHandler) (*Client, error) {
	if config.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)

	if config.ClientID == "" {
		config.ClientID = fmt.Sprintf("mesh-trans-%d", time.Now().Unix())
	}
	opts.SetClientID(config.ClientID)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error("MQTT connection lost: %v", err)
	})

	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("trying to reconnect to MQTT broker...")
	})

	client := mqtt.NewClient(opts)

	return &Client{
		client:  client,
		config:  config,
		handler: handler,
	}, nil
}

// Connect connects to the MQTT broker
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection to MQTT broker timed out")
	}

	if err := token.Error(); err != nil {
		return err
	}

	logger.Info("successfully connected to MQTT broker: %s", c.config.Broker)
	return nil
}

// Subscribe subscribes to the specified topic
func (c *Client) Subscribe(topic string) error {
	token := c.client.Subscribe(topic, byte(c.config.QoS), func(_ mqtt.Client, msg mqtt.Message) {
		c.handler(msg.Topic(), msg.Payload())
	})

	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscription to topic %s timed out", topic)
	}

	if err := token.Error(); err != nil {
		return err
	}

	logger.Info("successfully subscribed to topic: %s", topic)
	return nil
}

// Disconnect disconnects from the MQTT broker
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	logger.Info("disconnected from MQTT broker")
}

// TopicInfo is what a meshtasticd JSON topic says about its message
type TopicInfo struct {
	Root    string
	Channel string
	Gateway string
}

// ParseTopic splits a topic of the form
// <root...>/2/json/<channel>/<gateway id>, e.g. msh/EU_868/2/json/LongFast/!abcd0001
func ParseTopic(topic string) (TopicInfo, bool) {
	parts := strings.Split(topic, "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] != "2" || parts[i+1] != "json" {
			continue
		}
		info := TopicInfo{Root: strings.Join(parts[:i], "/")}
		if i+2 < len(parts) {
			info.Channel = parts[i+2]
		}
		if i+3 < len(parts) {
			info.Gateway = parts[i+3]
		}
		return info, true
	}
	return TopicInfo{}, false
}
