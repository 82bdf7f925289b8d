// Package orchestrator coordinates loading, aggregation, reporting and publication.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"tracecollapse/internal/aggregate"
	"tracecollapse/internal/metrics"
	"tracecollapse/internal/report"
	"tracecollapse/internal/source"
)

// Skip reasons recorded on the traces_skipped_total counter.
const (
	ReasonDecode    = "decode"
	ReasonMalformed = "malformed"
)

// Sink receives every finished report.
type Sink interface {
	Publish(ctx context.Context, sourceName string, r *report.Report) error
	Name() string
}

// Options configures a Pipeline.
type Options struct {
	Report        report.Options
	SkipMalformed bool
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Sinks         []Sink
}

// Pipeline runs one aggregation pass over a source.
type Pipeline struct {
	source source.Source
	opts   Options
	logger *slog.Logger
}

// Result summarises a completed run.
type Result struct {
	Report   *report.Report
	Loaded   int
	Ingested int
	Skipped  int
	// Errors combines every skipped record's error; nil when nothing was skipped.
	Errors  error
	Elapsed time.Duration
}

// New creates a pipeline reading from src.
func New(src source.Source, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source: src,
		opts:   opts,
		logger: logger,
	}
}

// Run loads every trace, aggregates it into a fresh state and builds the
// report. With SkipMalformed unset the first bad record aborts the run.
// Sink failures are logged and never fail the run.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	p.logger.Info("Starting aggregation run", "source", p.source.Name())

	records, err := p.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading traces from %s: %w", p.source.Name(), err)
	}

	state := aggregate.New()
	result := &Result{Loaded: len(records)}

	for _, rec := range records {
		if err := p.ingest(state, rec); err != nil {
			if !p.opts.SkipMalformed {
				return nil, err
			}
			p.logger.Warn("Skipping trace", "origin", rec.Origin, "error", err)
			result.Skipped++
			result.Errors = multierr.Append(result.Errors, err)
			continue
		}
		result.Ingested++
	}

	result.Report = report.Build(state, p.opts.Report)
	result.Elapsed = time.Since(started)
	p.opts.Metrics.ReportBuilt(result.Report.NodeCount, result.Report.FailureCount(), result.Elapsed)

	p.logger.Info("Aggregation run complete",
		"traces", result.Report.TotalTraces,
		"spans", result.Report.TotalSpans,
		"nodes", result.Report.NodeCount,
		"skipped", result.Skipped,
		"node_failures", result.Report.FailureCount(),
		"elapsed", result.Elapsed,
	)

	p.publish(ctx, result.Report)

	return result, nil
}

func (p *Pipeline) ingest(state *aggregate.State, rec source.Record) error {
	if rec.Err != nil {
		p.opts.Metrics.TraceSkipped(ReasonDecode)
		return fmt.Errorf("%s: %w", rec.Origin, rec.Err)
	}

	if err := state.IngestTrace(rec.Trace); err != nil {
		if errors.Is(err, aggregate.ErrMalformedTrace) {
			p.opts.Metrics.TraceSkipped(ReasonMalformed)
		}
		return fmt.Errorf("%s: %w", rec.Origin, err)
	}

	p.opts.Metrics.TraceIngested(len(rec.Trace.Spans))
	return nil
}

func (p *Pipeline) publish(ctx context.Context, r *report.Report) {
	for _, sink := range p.opts.Sinks {
		if err := sink.Publish(ctx, p.source.Name(), r); err != nil {
			p.logger.Error("Failed to publish report", "sink", sink.Name(), "error", err)
			continue
		}
		p.logger.Debug("Published report", "sink", sink.Name())
	}
}
