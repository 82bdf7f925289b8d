// Package report turns an aggregated call-path tree into per-node latency rows and renders them.
package report

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"tracecollapse/internal/aggregate"
	"tracecollapse/internal/stats"
)

// Options controls how rows are computed.
type Options struct {
	Buckets     int
	Percentiles []float64
	RootPolicy  aggregate.RootPolicy
}

// DefaultOptions returns 20 histogram buckets, t50/t75/t90/t99 and every root.
func DefaultOptions() Options {
	return Options{
		Buckets:     20,
		Percentiles: []float64{50, 75, 90, 99},
		RootPolicy:  aggregate.RootsAll,
	}
}

// URICount is the number of traces whose root span carried a given URI.
type URICount struct {
	URI   string `json:"uri"`
	Count int    `json:"count"`
}

// Row is the latency summary of one aggregated node.
type Row struct {
	Name      string        `json:"name"`
	Label     string        `json:"label"`
	Depth     int           `json:"depth"`
	SpanCount int           `json:"span_count"`
	PerTrace  float64       `json:"per_trace"`
	Summary   stats.Summary `json:"summary"`
	Histogram []int         `json:"histogram"`
}

// Failure records a node whose statistics could not be computed.
type Failure struct {
	Name   string `json:"name"`
	Depth  int    `json:"depth"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Report is the full aggregation result in preorder.
type Report struct {
	TotalTraces int        `json:"total_traces"`
	TotalSpans  int        `json:"total_spans"`
	NodeCount   int        `json:"node_count"`
	RootURIs    []URICount `json:"root_uris"`
	Rows        []Row      `json:"rows"`
	Failures    []Failure  `json:"failures,omitempty"`
	Percentiles []float64  `json:"percentiles"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Build walks the state in preorder and summarizes every visited node.
// A node whose statistics fail is recorded as a Failure and the walk continues.
func Build(state *aggregate.State, opts Options) *Report {
	if opts.Buckets <= 0 {
		opts.Buckets = DefaultOptions().Buckets
	}
	if len(opts.Percentiles) == 0 {
		opts.Percentiles = DefaultOptions().Percentiles
	}

	r := &Report{
		TotalTraces: state.TotalTraces,
		TotalSpans:  state.SpanCount(),
		NodeCount:   state.Len(),
		RootURIs:    sortURIs(state.RootURIs),
		Rows:        []Row{},
		Percentiles: opts.Percentiles,
		GeneratedAt: time.Now().UTC(),
	}

	for node, depth := range state.Walk(opts.RootPolicy) {
		row, err := buildRow(node, depth, state.TotalTraces, opts)
		if err != nil {
			r.Failures = append(r.Failures, Failure{
				Name:   node.Name,
				Depth:  depth,
				Reason: err.Error(),
				Err:    err,
			})
			continue
		}
		r.Rows = append(r.Rows, row)
	}

	return r
}

func buildRow(node *aggregate.Node, depth, totalTraces int, opts Options) (Row, error) {
	durations := node.Durations()

	summary, err := stats.Summarize(durations, opts.Percentiles)
	if err != nil {
		return Row{}, fmt.Errorf("summarize %s: %w", node.Name, err)
	}

	histogram, err := stats.Bucketize(opts.Buckets, summary.Min, summary.Max, durations)
	if err != nil {
		return Row{}, fmt.Errorf("bucketize %s: %w", node.Name, err)
	}

	return Row{
		Name:      node.Name,
		Label:     node.ServicePath,
		Depth:     depth,
		SpanCount: node.SpanCount(),
		PerTrace:  perTrace(node.SpanCount(), totalTraces),
		Summary:   summary,
		Histogram: histogram,
	}, nil
}

// perTrace is the average number of occurrences of a node per trace.
func perTrace(spans, traces int) float64 {
	if traces == 0 {
		return 0
	}
	return float64(spans) / float64(traces)
}

func sortURIs(counts map[string]int) []URICount {
	out := make([]URICount, 0, len(counts))
	for uri, count := range counts {
		out = append(out, URICount{URI: uri, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].URI < out[j].URI
	})
	return out
}

// Percentile returns the row's value for p.
func (r Row) Percentile(p float64) float64 {
	v, _ := r.Summary.Percentile(p)
	return v
}

// FailureCount returns how many nodes could not be summarized.
func (r *Report) FailureCount() int {
	return len(r.Failures)
}

// Slowest returns up to n rows ordered by descending value of percentile p.
func (r *Report) Slowest(p float64, n int) []Row {
	rows := make([]Row, len(r.Rows))
	copy(rows, r.Rows)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Percentile(p) > rows[j].Percentile(p)
	})
	if n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

// HasFailure reports whether any failure wraps target.
func (r *Report) HasFailure(target error) bool {
	for _, f := range r.Failures {
		if errors.Is(f.Err, target) {
			return true
		}
	}
	return false
}
