package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MessageWriter is the subset of kafka.Writer the producer needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes messages to a single topic
type Producer struct {
	writer  MessageWriter
	logger  ectologger.Logger
	topic   string
	brokers []string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	p := NewProducerWithWriter(writer, cfg.Topic, logger)
	p.brokers = cfg.Brokers
	return p
}

// NewProducerWithWriter creates a producer on top of an existing writer
func NewProducerWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// GetName implements startup.Dependency
func (p *Producer) GetName() string {
	return "kafka"
}

// DependsOn implements startup.Dependency
func (p *Producer) DependsOn() []string {
	return nil
}

// Start checks that the first broker accepts connections
func (p *Producer) Start(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return nil
	}
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to reach kafka broker %s: %w", p.brokers[0], err)
	}
	p.logger.Infof("Connected to kafka broker %s", p.brokers[0])
	return conn.Close()
}

// Stop flushes and closes the writer
func (p *Producer) Stop(_ context.Context) error {
	return p.Close()
}

// Publish writes one message keyed by key
func (p *Producer) Publish(ctx context.Context, key string, value []byte, headers map[string]string) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Publish")
	defer span.End()

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).WithField("topic", p.topic).Error("Failed to publish message")
		return err
	}
	return nil
}
