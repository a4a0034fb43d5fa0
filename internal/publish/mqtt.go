package publish

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/plantops/telemetry-pipeline/pkg/config"
)

// Publisher pushes significant telemetry and alarm payloads to the real-time
// transport. Every publish applies a bounded timeout; failures are returned
// for the caller to log, never fatal.
type Publisher struct {
	client         mqtt.Client
	telemetryTopic string
	alarmTopic     string
	timeout        time.Duration
}

func NewPublisher(cfg config.MQTTConfig, timeout time.Duration) (*Publisher, error) {
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
	if token := client.Connect(); !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.Broker)
	} else if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:         client,
		telemetryTopic: cfg.TopicTelemetry,
		alarmTopic:     cfg.TopicAlarms,
		timeout:        timeout,
	}, nil
}

// PublishTelemetry broadcasts a telemetry payload on the telemetry channel.
func (p *Publisher) PublishTelemetry(payload []byte) error {
	return p.publish(p.telemetryTopic, payload)
}

// PublishAlarm broadcasts an alarm payload on the alarm channel.
func (p *Publisher) PublishAlarm(payload []byte) error {
	return p.publish(p.alarmTopic, payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight publishes to finish.
func (p *Publisher) Close() {
	p.client.Disconnect(uint(p.timeout / time.Millisecond))
}
