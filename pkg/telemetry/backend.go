// Package telemetry mirrors sensor snapshots and camera frames to a message
// broker (MQTT or Kafka).
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/teslashibe/go-epuck/internal/config"
	"github.com/teslashibe/go-epuck/internal/log"
)

// Backend names accepted in the configuration.
const (
	BackendNone  = "none"
	BackendMQTT  = "mqtt"
	BackendKafka = "kafka"
)

var (
	// ErrDisabled is returned by NewBackend when telemetry is turned off.
	ErrDisabled = errors.New("telemetry: disabled")

	// ErrNotConnected is returned when publishing before Connect.
	ErrNotConnected = errors.New("telemetry: not connected")
)

// Backend publishes raw payloads to a topic.
type Backend interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

var (
	_ Backend = (*MQTTBackend)(nil)
	_ Backend = (*KafkaBackend)(nil)
)

// NewBackend builds the backend selected by cfg.Backend. It returns
// ErrDisabled for "" and "none".
func NewBackend(cfg config.TelemetryConfig) (Backend, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, ErrDisabled
	case BackendMQTT:
		return NewMQTTBackend(cfg.MQTT), nil
	case BackendKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("telemetry: kafka backend needs at least one broker")
		}
		return NewKafkaBackend(cfg.Kafka), nil
	default:
		return nil, fmt.Errorf("telemetry: unknown backend %q", cfg.Backend)
	}
}

// MQTTBackend publishes with QoS 0. Telemetry is lossy by nature and a
// newer snapshot always follows.
type MQTTBackend struct {
	cfg config.MQTTConfig

	mu     sync.RWMutex
	client mqtt.Client
}

// NewMQTTBackend creates an unconnected MQTT backend.
func NewMQTTBackend(cfg config.MQTTConfig) *MQTTBackend {
	return &MQTTBackend{cfg: cfg}
}

// Connect dials the broker. The client reconnects on its own afterwards.
func (b *MQTTBackend) Connect(ctx context.Context) error {
	broker := fmt.Sprintf("tcp://%s:%d", b.cfg.Broker, b.cfg.Port)
	logger := log.With("component", "telemetry", "backend", BackendMQTT, "broker", broker)

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	b.mu.Lock()
	b.client = client
	b.mu.Unlock()
	return nil
}

// Publish sends payload to topic.
func (b *MQTTBackend) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	token := client.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (b *MQTTBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Disconnect(250)
		b.client = nil
	}
	return nil
}

// KafkaBackend writes each payload as one Kafka message.
type KafkaBackend struct {
	cfg config.KafkaConfig

	mu     sync.RWMutex
	writer *kafkago.Writer
}

// NewKafkaBackend creates an unconnected Kafka backend.
func NewKafkaBackend(cfg config.KafkaConfig) *KafkaBackend {
	return &KafkaBackend{cfg: cfg}
}

// Connect prepares the writer. Kafka connects lazily on the first write.
func (b *KafkaBackend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writer = &kafkago.Writer{
		Addr:                   kafkago.TCP(b.cfg.Brokers...),
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	log.Info("kafka writer ready", "component", "telemetry", "brokers", b.cfg.Brokers)
	return nil
}

// Publish writes payload to the Kafka topic derived from topic.
func (b *KafkaBackend) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	w := b.writer
	b.mu.RUnlock()
	if w == nil {
		return ErrNotConnected
	}
	return w.WriteMessages(ctx, kafkago.Message{
		Topic: KafkaTopic(topic),
		Value: payload,
	})
}

// Close flushes and closes the writer.
func (b *KafkaBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer == nil {
		return nil
	}
	err := b.writer.Close()
	b.writer = nil
	return err
}

// KafkaTopic maps an MQTT style topic to a legal Kafka topic name:
// "epuck/sensors" becomes "epuck.sensors".
func KafkaTopic(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}
