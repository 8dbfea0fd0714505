package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const schemaVersion = "1.0"

// KafkaConfig configures the verification producer.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
	// Service and Environment are copied into every envelope's metadata.
	Service     string
	Environment string
}

// KafkaNotifier publishes verification requests to Kafka with a synchronous
// producer, so a failed publish fails the sign-up step that requested it.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	cfg      KafkaConfig
	logger   *zap.Logger
}

type envelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewSaramaConfig returns the producer settings KafkaNotifier expects.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Metadata.Retry.Max = 3
	cfg.Metadata.Retry.Backoff = 250 * time.Millisecond
	return cfg
}

// NewKafkaNotifier dials the brokers and returns a notifier.
func NewKafkaNotifier(cfg KafkaConfig, logger *zap.Logger) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier: no brokers configured")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	n := NewKafkaNotifierWithProducer(producer, cfg, logger)
	n.logger.Info("kafka notifier initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", n.Topic()),
	)
	return n, nil
}

// NewKafkaNotifierWithProducer wraps an existing producer.
func NewKafkaNotifierWithProducer(producer sarama.SyncProducer, cfg KafkaConfig, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{producer: producer, cfg: cfg, logger: logger}
}

// Topic returns the prefixed topic verification requests are sent to.
func (n *KafkaNotifier) Topic() string {
	if n.cfg.TopicPrefix == "" {
		return VerificationRequestedEvent
	}
	return strings.TrimSuffix(n.cfg.TopicPrefix, ".") + "." + VerificationRequestedEvent
}

// NotifyVerification implements Notifier. The message is keyed by account id
// so requests for one account stay ordered.
func (n *KafkaNotifier) NotifyVerification(ctx context.Context, msg VerificationMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	metadata := map[string]string{
		"service":     n.cfg.Service,
		"environment": n.cfg.Environment,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(envelope{
		EventID:   uuid.NewString(),
		EventType: VerificationRequestedEvent,
		UserID:    msg.AccountID,
		Timestamp: time.Now().UTC(),
		Version:   schemaVersion,
		Payload:   msg,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal verification envelope: %w", err)
	}

	partition, offset, err := n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: n.Topic(),
		Key:   sarama.StringEncoder(msg.AccountID),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		n.logger.Error("kafka publish failed", zap.String("topic", n.Topic()), zap.Error(err))
		return fmt.Errorf("publish verification request: %w", err)
	}

	n.logger.Debug("verification request published",
		zap.String("topic", n.Topic()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (n *KafkaNotifier) Close() error {
	if err := n.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
