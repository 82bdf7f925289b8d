package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracecollapse/internal/aggregate"
	"tracecollapse/internal/models"
	"tracecollapse/internal/stats"
)

func span(id, parentID string, micros int64, services ...string) models.SpanRecord {
	return models.SpanRecord{ID: id, ParentID: parentID, Duration: models.Micros(micros), Services: services}
}

// sampleState ingests three web traces (two with a db child) and one cron trace.
func sampleState(t *testing.T) *aggregate.State {
	t.Helper()
	s := aggregate.New()

	for i, d := range []int64{1000, 2000, 3000} {
		root := span("1", "", d*10, "web")
		root.BinaryAnnotations = []models.BinaryAnnotation{models.NewBinaryAnnotation("http.uri", "/home")}
		spans := []models.SpanRecord{root}
		if i < 2 {
			spans = append(spans, span("2", "1", d, "db"), span("3", "1", d, "db"))
		}
		require.NoError(t, s.IngestTrace(models.TraceRecord{TraceID: string(rune('a' + i)), Spans: spans}))
	}

	cron := span("1", "", 4000, "cron")
	cron.BinaryAnnotations = []models.BinaryAnnotation{models.NewBinaryAnnotation("http.uri", "/tick")}
	require.NoError(t, s.IngestTrace(models.TraceRecord{TraceID: "z", Spans: []models.SpanRecord{cron}}))
	return s
}

func TestBuild(t *testing.T) {
	r := Build(sampleState(t), DefaultOptions())

	assert.Equal(t, 4, r.TotalTraces)
	assert.Equal(t, 8, r.TotalSpans)
	assert.Equal(t, 3, r.NodeCount)
	assert.Empty(t, r.Failures)
	assert.Equal(t, []URICount{{URI: "/home", Count: 3}, {URI: "/tick", Count: 1}}, r.RootURIs)

	require.Len(t, r.Rows, 3)

	web := r.Rows[0]
	assert.Equal(t, ":web", web.Name)
	assert.Equal(t, "web", web.Label)
	assert.Equal(t, 0, web.Depth)
	assert.Equal(t, 3, web.SpanCount)
	assert.InDelta(t, 0.75, web.PerTrace, 1e-9)
	assert.InDelta(t, 20.0, web.Summary.Mean, 1e-9)
	assert.InDelta(t, 20.0, web.Percentile(50), 1e-9)
	assert.Len(t, web.Histogram, 20)

	db := r.Rows[1]
	assert.Equal(t, ":web:db", db.Name)
	assert.Equal(t, 1, db.Depth)
	assert.Equal(t, 4, db.SpanCount)
	assert.InDelta(t, 1.0, db.PerTrace, 1e-9)
	assert.Equal(t, 1.0, db.Summary.Min)
	assert.Equal(t, 2.0, db.Summary.Max)

	histTotal := 0
	for _, c := range db.Histogram {
		histTotal += c
	}
	assert.Equal(t, 4, histTotal)

	assert.Equal(t, ":cron", r.Rows[2].Name)
}

func TestBuildFirstRootPolicy(t *testing.T) {
	opts := DefaultOptions()
	opts.RootPolicy = aggregate.RootsFirst

	r := Build(sampleState(t), opts)
	require.Len(t, r.Rows, 2)
	assert.Equal(t, ":web", r.Rows[0].Name)
	assert.Equal(t, ":web:db", r.Rows[1].Name)
}

func TestBuildNoTraces(t *testing.T) {
	r := Build(aggregate.New(), DefaultOptions())

	assert.Equal(t, 0, r.TotalTraces)
	assert.Empty(t, r.Rows)
	assert.Empty(t, r.RootURIs)
	assert.Empty(t, r.Failures)
}

func TestBuildIsolatesNodeFailures(t *testing.T) {
	opts := DefaultOptions()
	opts.Percentiles = []float64{50, 150}

	r := Build(sampleState(t), opts)

	assert.Empty(t, r.Rows)
	require.Len(t, r.Failures, 3)
	assert.Equal(t, ":web", r.Failures[0].Name)
	assert.Equal(t, 1, r.Failures[1].Depth)
	assert.Contains(t, r.Failures[0].Reason, "percentile out of range")
	assert.True(t, r.HasFailure(stats.ErrPercentileRange))
	assert.False(t, r.HasFailure(stats.ErrEmptyDurations))
	assert.Equal(t, 3, r.FailureCount())
}

func TestPerTrace(t *testing.T) {
	assert.Equal(t, 0.0, perTrace(5, 0))
	assert.Equal(t, 2.5, perTrace(5, 2))
}

func TestSlowest(t *testing.T) {
	r := Build(sampleState(t), DefaultOptions())

	slowest := r.Slowest(99, 2)
	require.Len(t, slowest, 2)
	assert.Equal(t, ":web", slowest[0].Name)
	assert.Equal(t, ":cron", slowest[1].Name)

	assert.Len(t, r.Slowest(99, 10), 3)
}
