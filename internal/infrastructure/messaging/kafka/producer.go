// Package kafka publishes the platform's integration events: one event per
// research item entering the Pool and one per completed pipeline run. The
// platform is producer-only; consumption belongs to downstream systems.
package kafka

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Message types
// ─────────────────────────────────────────────────────────────────────────────

// Message is the transport-agnostic outbound message handed to the producer.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// BatchPublishResult reports the per-message outcome of a batch publish.
type BatchPublishResult struct {
	Total         int
	Succeeded     int
	Failed        int
	FailedIndexes []int
}

// WriterInterface is the slice of kafka.Writer the producer uses; tests
// substitute a capture writer.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ─────────────────────────────────────────────────────────────────────────────
// Producer
// ─────────────────────────────────────────────────────────────────────────────

// Producer wraps a kafka-go writer with lifecycle guards and the platform
// error taxonomy.
type Producer struct {
	writer WriterInterface
	closed atomic.Bool
	logger logging.Logger
}

// NewProducer builds a producer from the kafka configuration. The writer is
// lazy; the first publish establishes connections.
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           requiredAcks(cfg.RequiredAcks),
		Compression:            compression(cfg.Compression),
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		MaxAttempts:            maxAttempts(cfg.MaxRetries),
		Async:                  cfg.Async,
		AllowAutoTopicCreation: true,
		Transport:              &kafka.Transport{ClientID: cfg.ClientID},
	}
	return &Producer{writer: writer, logger: logger}
}

// NewProducerWithWriter builds a producer over an existing writer. Used by
// tests.
func NewProducerWithWriter(writer WriterInterface, logger logging.Logger) *Producer {
	return &Producer{writer: writer, logger: logger}
}

// Publish sends a single message.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	if p.closed.Load() {
		return appErrors.New(appErrors.CodeUnavailable, "kafka producer is closed")
	}
	if msg.Topic == "" {
		return appErrors.InvalidParam("message topic must not be empty")
	}

	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		p.logger.Error("kafka publish failed",
			logging.String("topic", msg.Topic), logging.Err(err))
		return appErrors.Wrap(err, appErrors.CodeUnavailable, "kafka publish failed")
	}
	return nil
}

// PublishBatch sends messages in one write. A partial failure is reported in
// the result with per-index detail and a nil error; only a transport-level
// failure of the whole write returns an error.
func (p *Producer) PublishBatch(ctx context.Context, msgs []Message) (*BatchPublishResult, error) {
	result := &BatchPublishResult{Total: len(msgs)}
	if len(msgs) == 0 {
		return result, nil
	}
	if p.closed.Load() {
		return result, appErrors.New(appErrors.CodeUnavailable, "kafka producer is closed")
	}

	kmsgs := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		if m.Topic == "" {
			return result, appErrors.InvalidParam("message topic must not be empty")
		}
		kmsgs[i] = toKafkaMessage(m)
	}

	err := p.writer.WriteMessages(ctx, kmsgs...)
	if err == nil {
		result.Succeeded = len(msgs)
		return result, nil
	}

	var writeErrs kafka.WriteErrors
	if stderrors.As(err, &writeErrs) {
		for i, werr := range writeErrs {
			if werr != nil {
				result.Failed++
				result.FailedIndexes = append(result.FailedIndexes, i)
			} else {
				result.Succeeded++
			}
		}
		p.logger.Warn("kafka batch publish partially failed",
			logging.Int("total", result.Total), logging.Int("failed", result.Failed))
		return result, nil
	}

	result.Failed = len(msgs)
	p.logger.Error("kafka batch publish failed", logging.Err(err))
	return result, appErrors.Wrap(err, appErrors.CodeUnavailable, "kafka batch publish failed")
}

// Close flushes and shuts down the writer. Subsequent publishes fail fast.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func toKafkaMessage(m Message) kafka.Message {
	km := kafka.Message{
		Topic: m.Topic,
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now().UTC(),
	}
	for k, v := range m.Headers {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return km
}

func requiredAcks(mode string) kafka.RequiredAcks {
	switch mode {
	case "none":
		return kafka.RequireNone
	case "one":
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

func compression(codec string) kafka.Compression {
	switch codec {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}

func maxAttempts(retries int) int {
	if retries <= 0 {
		return 3
	}
	return retries + 1
}
