// Package kafka publishes aggregation notifications to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
)

// ErrNoBrokers is returned when no broker address is configured.
var ErrNoBrokers = errors.New("kafka: brokers are required")

// Config holds the publisher settings.
type Config struct {
	Brokers      []string
	Topic        string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	BatchTimeout time.Duration
	Async        bool
}

// Option mutates Config.
type Option func(*Config)

// WithBrokers sets the bootstrap brokers.
func WithBrokers(brokers ...string) Option {
	return func(c *Config) { c.Brokers = brokers }
}

// WithTopic sets the destination topic.
func WithTopic(topic string) Option {
	return func(c *Config) { c.Topic = topic }
}

// WithCompression selects gzip, snappy, lz4 or zstd.
func WithCompression(name string) Option {
	return func(c *Config) { c.Compression = name }
}

// WithRequiredAcks sets the ack level (-1 all, 1 leader, 0 none).
func WithRequiredAcks(acks int) Option {
	return func(c *Config) { c.RequiredAcks = acks }
}

// WithWriteTimeout bounds a single write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) { c.WriteTimeout = d }
}

// WithAsync makes writes fire-and-forget.
func WithAsync(async bool) Option {
	return func(c *Config) { c.Async = async }
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per notification, keyed by symbol so that
// a symbol's records stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *logging.Logger
}

// NewPublisher creates a publisher backed by a kafka-go writer.
func NewPublisher(logger *logging.Logger, opts ...Option) (*Publisher, error) {
	cfg := &Config{
		Topic:        "fee-oracle.aggregated",
		RequiredAcks: -1,
		Compression:  "zstd",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	return newPublisher(writer, cfg.Topic, logger), nil
}

func newPublisher(w messageWriter, topic string, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Publisher{writer: w, topic: topic, logger: logger.With("component", "kafka")}
}

// Name labels the sink in metrics.
func (p *Publisher) Name() string { return "kafka" }

// Notify publishes n as JSON.
func (p *Publisher) Notify(ctx context.Context, n fees.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(n.Symbol),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(n.Event)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish notification", "topic", p.topic, "symbol", n.Symbol, "error", err)
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
