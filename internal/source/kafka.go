package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tracecollapse/internal/clients/kafka"
)

// KafkaSource drains OTLP batches from a topic and regroups them into traces.
type KafkaSource struct {
	Consumer    *kafka.Consumer
	MaxMessages int
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Name implements Source.
func (k *KafkaSource) Name() string {
	return "kafka:" + k.Consumer.Topic()
}

// Load drains the topic once. Undecodable messages become error records.
func (k *KafkaSource) Load(ctx context.Context) ([]Record, error) {
	logger := k.Logger
	if logger == nil {
		logger = slog.Default()
	}

	result, err := k.Consumer.Drain(ctx, k.MaxMessages, k.IdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("kafka drain: %w", err)
	}

	traces := TracesFromResourceSpans(result.ResourceSpans)
	logger.Info("Drained kafka topic", "topic", k.Consumer.Topic(), "messages", result.Messages, "traces", len(traces), "bad_messages", len(result.Failures))

	records := make([]Record, 0, len(result.Failures)+len(traces))
	for _, failure := range result.Failures {
		records = append(records, Record{
			Origin: fmt.Sprintf("%s:%d@%d", k.Name(), failure.Partition, failure.Offset),
			Err:    failure,
		})
	}
	for _, trace := range traces {
		records = append(records, Record{Origin: k.Name() + "/" + trace.TraceID, Trace: trace})
	}

	return records, nil
}

// Close releases the consumer.
func (k *KafkaSource) Close() error {
	return k.Consumer.Close()
}
