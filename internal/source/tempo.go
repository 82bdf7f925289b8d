package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	otlptrace "go.opentelemetry.io/proto/otlp/trace/v1"
)

// TraceFetcher is the part of the Tempo client the source uses.
type TraceFetcher interface {
	SearchTraceIDs(ctx context.Context, service string, start, end time.Time, limit int) ([]string, error)
	GetTraceByID(ctx context.Context, traceID string) ([]*otlptrace.ResourceSpans, error)
}

// TempoSource fetches traces from Tempo, either by explicit ID or by
// searching the lookback window for a service.
type TempoSource struct {
	Client   TraceFetcher
	TraceIDs []string
	Service  string
	Lookback time.Duration
	Limit    int
	Logger   *slog.Logger
}

// Name implements Source.
func (t *TempoSource) Name() string {
	return "tempo"
}

// Load resolves the trace IDs and fetches each trace. A failed fetch yields a
// Record carrying the error; a failed search fails the whole load.
func (t *TempoSource) Load(ctx context.Context) ([]Record, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ids := t.TraceIDs
	if len(ids) == 0 {
		end := now()
		found, err := t.Client.SearchTraceIDs(ctx, t.Service, end.Add(-t.Lookback), end, t.Limit)
		if err != nil {
			return nil, fmt.Errorf("tempo search: %w", err)
		}
		ids = found
	}

	logger.Info("Fetching traces from tempo", "count", len(ids), "service", t.Service)

	var records []Record
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		origin := "tempo:" + id
		spans, err := t.Client.GetTraceByID(ctx, id)
		if err != nil {
			records = append(records, Record{Origin: origin, Err: err})
			continue
		}

		traces := TracesFromResourceSpans(spans)
		if len(traces) == 0 {
			records = append(records, Record{Origin: origin, Err: fmt.Errorf("trace %s has no spans", id)})
			continue
		}
		for _, trace := range traces {
			records = append(records, Record{Origin: origin, Trace: trace})
		}
	}

	return records, nil
}
