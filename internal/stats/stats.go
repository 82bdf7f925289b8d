// Package stats computes latency summaries and histograms for a set of span durations.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	mstats "github.com/montanaflynn/stats"
)

var (
	// ErrEmptyDurations is returned for any computation over zero durations.
	ErrEmptyDurations = errors.New("stats: empty duration set")
	// ErrPercentileRange is returned for percentiles outside [0, 100].
	ErrPercentileRange = errors.New("stats: percentile out of range")
	// ErrBucketCount is returned when a histogram is requested with no buckets.
	ErrBucketCount = errors.New("stats: bucket count must be positive")
)

// Description holds the descriptive statistics of a duration set.
// StdDev is the population standard deviation.
type Description struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Quantile pairs a percentile with its value.
type Quantile struct {
	P     float64 `json:"p"`
	Value float64 `json:"value"`
}

// Summary is a Description plus the requested percentiles.
type Summary struct {
	Description
	Percentiles []Quantile `json:"percentiles"`
}

// Describe computes count, mean, population standard deviation, min and max.
func Describe(durations []float64) (Description, error) {
	if len(durations) == 0 {
		return Description{}, ErrEmptyDurations
	}

	mean, err := mstats.Mean(durations)
	if err != nil {
		return Description{}, fmt.Errorf("mean: %w", err)
	}
	stddev, err := mstats.StandardDeviationPopulation(durations)
	if err != nil {
		return Description{}, fmt.Errorf("stddev: %w", err)
	}
	lo, err := mstats.Min(durations)
	if err != nil {
		return Description{}, fmt.Errorf("min: %w", err)
	}
	hi, err := mstats.Max(durations)
	if err != nil {
		return Description{}, fmt.Errorf("max: %w", err)
	}

	return Description{
		Count:  len(durations),
		Mean:   mean,
		StdDev: stddev,
		Min:    lo,
		Max:    hi,
	}, nil
}

// Percentile returns the p-th percentile using linear interpolation between
// closest ranks: rank = p/100 * (n-1).
func Percentile(p float64, durations []float64) (float64, error) {
	if len(durations) == 0 {
		return 0, ErrEmptyDurations
	}
	if p < 0 || p > 100 || math.IsNaN(p) {
		return 0, fmt.Errorf("%w: %v", ErrPercentileRange, p)
	}
	return percentileSorted(p, sortedCopy(durations)), nil
}

// Summarize describes the durations and evaluates every percentile in ps
// over a single sorted copy.
func Summarize(durations []float64, ps []float64) (Summary, error) {
	desc, err := Describe(durations)
	if err != nil {
		return Summary{}, err
	}

	sorted := sortedCopy(durations)
	quantiles := make([]Quantile, 0, len(ps))
	for _, p := range ps {
		if p < 0 || p > 100 || math.IsNaN(p) {
			return Summary{}, fmt.Errorf("%w: %v", ErrPercentileRange, p)
		}
		quantiles = append(quantiles, Quantile{P: p, Value: percentileSorted(p, sorted)})
	}

	return Summary{Description: desc, Percentiles: quantiles}, nil
}

// Percentile returns the value recorded for p, if it was requested.
func (s Summary) Percentile(p float64) (float64, bool) {
	for _, q := range s.Percentiles {
		if q.P == p {
			return q.Value, true
		}
	}
	return 0, false
}

func percentileSorted(p float64, sorted []float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

func sortedCopy(durations []float64) []float64 {
	sorted := make([]float64, len(durations))
	copy(sorted, durations)
	sort.Float64s(sorted)
	return sorted
}
