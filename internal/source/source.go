// Package source loads decoded trace records from the configured backend.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tracecollapse/internal/clients/kafka"
	"tracecollapse/internal/clients/tempo"
	"tracecollapse/internal/config"
	"tracecollapse/internal/models"
)

// Record is one loaded trace, or the reason it could not be decoded.
type Record struct {
	Origin string
	Trace  models.TraceRecord
	Err    error
}

// Source establishes the common contract for every trace backend.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
	Name() string
}

// Kind represents a supported trace backend.
type Kind string

const (
	KindDir   Kind = "dir"
	KindTempo Kind = "tempo"
	KindKafka Kind = "kafka"
)

// New evaluates the configuration to instantiate the matching source.
func New(cfg *config.Config, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch Kind(strings.ToLower(cfg.Source.Kind)) {
	case KindDir:
		return NewDirSource(cfg.Source.Dir, cfg.Source.Pattern, logger), nil
	case KindTempo:
		client := tempo.NewClient(cfg.Tempo.URL, cfg.Tempo.GetTimeoutDuration(), logger)
		return &TempoSource{
			Client:   client,
			TraceIDs: cfg.Tempo.TraceIDs,
			Service:  cfg.Tempo.Service,
			Lookback: cfg.Tempo.GetLookbackDuration(),
			Limit:    cfg.Tempo.SearchLimit,
			Logger:   logger,
		}, nil
	case KindKafka:
		consumer := kafka.NewConsumer(kafka.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, logger)
		return &KafkaSource{
			Consumer:    consumer,
			MaxMessages: cfg.Kafka.MaxMessages,
			IdleTimeout: cfg.Kafka.GetIdleTimeoutDuration(),
			Logger:      logger,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported source: %s", cfg.Source.Kind)
	}
}

// Errors returns the records that failed to decode.
func Errors(records []Record) []Record {
	var failed []Record
	for _, r := range records {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// now is swapped in tests.
var now = time.Now
