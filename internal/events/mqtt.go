package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/CerneaMihnea/smart-valve-control/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// tokenPublisher the slice of the MQTT client the publisher needs
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// Client MQTT客户端封装
type Client struct {
	client mqtt.Client
}

// NewClient 创建MQTT客户端并连接
func NewClient(cfg *config.MQTTConfig) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Client{client: client}, nil
}

// Publish 发布消息
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(250) // 250ms等待时间
}

// MQTTPublisher publishes events as JSON to <topic>/<kind suffix>.
type MQTTPublisher struct {
	client tokenPublisher
	topic  string
	qos    byte
	logger *zap.Logger
}

func NewMQTTPublisher(client tokenPublisher, topic string, qos byte, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos, logger: logger}
}

// Topic e.g. valve-panel/simulation/started
func (p *MQTTPublisher) Topic(k Kind) string {
	switch k {
	case SimulationStarted:
		return p.topic + "/started"
	case SimulationStopped:
		return p.topic + "/stopped"
	default:
		return p.topic
	}
}

func (p *MQTTPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := p.Topic(e.Kind)
	if err := p.client.Publish(topic, p.qos, false, payload); err != nil {
		p.logger.Warn("Publish simulation event failed",
			zap.String("topic", topic),
			zap.String("run_id", e.RunID),
			zap.Error(err),
		)
		return err
	}
	p.logger.Debug("Simulation event published", zap.String("topic", topic), zap.String("run_id", e.RunID))
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect()
}
