// Package kafka drains OTLP span batches from a Kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	otlpcollectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	otlptrace "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Config holds the reader settings.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer reads ExportTraceServiceRequest payloads from a topic.
type Consumer struct {
	reader MessageReader
	topic  string
	logger *slog.Logger
}

// DecodeError describes a message whose payload is not an OTLP export request.
type DecodeError struct {
	Partition int
	Offset    int64
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("partition %d offset %d: %v", e.Partition, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DrainResult is everything read by a single Drain call.
type DrainResult struct {
	Messages      int
	ResourceSpans []*otlptrace.ResourceSpans
	Failures      []*DecodeError
}

// NewConsumer creates a consumer backed by a kafka-go reader.
func NewConsumer(cfg Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		StartOffset: kafka.FirstOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxWait:     1 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka")
		}),
	})

	return NewConsumerWithReader(r, cfg.Topic, logger)
}

// NewConsumerWithReader wraps an existing reader.
func NewConsumerWithReader(reader MessageReader, topic string, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader: reader,
		topic:  topic,
		logger: logger,
	}
}

// Topic returns the topic being consumed.
func (c *Consumer) Topic() string {
	return c.topic
}

// Drain reads messages until maxMessages have been consumed (0 means no
// limit) or no message arrives within idle. Messages that fail to decode are
// reported in the result rather than aborting the drain.
func (c *Consumer) Drain(ctx context.Context, maxMessages int, idle time.Duration) (*DrainResult, error) {
	c.logger.Info("Draining kafka topic", "topic", c.topic, "max_messages", maxMessages, "idle_timeout", idle)

	result := &DrainResult{}
	for maxMessages <= 0 || result.Messages < maxMessages {
		readCtx, cancel := context.WithTimeout(ctx, idle)
		msg, err := c.reader.ReadMessage(readCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				c.logger.Debug("Kafka topic idle, stopping drain", "topic", c.topic, "messages", result.Messages)
				break
			}
			return result, fmt.Errorf("reading from %s: %w", c.topic, err)
		}

		result.Messages++
		spans, err := decodeMessage(msg)
		if err != nil {
			c.logger.Warn("Error processing message", "topic", c.topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
			result.Failures = append(result.Failures, &DecodeError{Partition: msg.Partition, Offset: msg.Offset, Err: err})
			continue
		}
		result.ResourceSpans = append(result.ResourceSpans, spans...)
	}

	return result, nil
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func decodeMessage(message kafka.Message) ([]*otlptrace.ResourceSpans, error) {
	var traceData otlpcollectortrace.ExportTraceServiceRequest
	if err := proto.Unmarshal(message.Value, &traceData); err != nil {
		return nil, fmt.Errorf("failed to parse kafka message: %w", err)
	}
	return traceData.GetResourceSpans(), nil
}
