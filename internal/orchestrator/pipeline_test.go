package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"tracecollapse/internal/aggregate"
	"tracecollapse/internal/metrics"
	"tracecollapse/internal/models"
	"tracecollapse/internal/report"
	"tracecollapse/internal/source"
)

type staticSource struct {
	records []source.Record
	err     error
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Load(context.Context) ([]source.Record, error) {
	return s.records, s.err
}

type recordingSink struct {
	name    string
	err     error
	reports []*report.Report
	sources []string
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Publish(_ context.Context, sourceName string, rep *report.Report) error {
	r.reports = append(r.reports, rep)
	r.sources = append(r.sources, sourceName)
	return r.err
}

type fakeSaver struct {
	source string
	calls  int
	err    error
}

func (f *fakeSaver) SaveReport(_ context.Context, source string, _ *report.Report) (string, error) {
	f.calls++
	f.source = source
	return "run-1", f.err
}

func goodTrace(id string, micros int64) source.Record {
	return source.Record{
		Origin: id + ".json",
		Trace: models.TraceRecord{
			TraceID: id,
			Spans: []models.SpanRecord{
				{
					ID:                "1",
					Duration:          models.Micros(micros),
					Services:          []string{"web"},
					BinaryAnnotations: []models.BinaryAnnotation{models.NewBinaryAnnotation(models.AnnotationHTTPURI, "/checkout")},
				},
				{ID: "2", ParentID: "1", Duration: models.Micros(micros / 2), Services: []string{"db"}},
			},
		},
	}
}

func malformedTrace(id string) source.Record {
	return source.Record{
		Origin: id + ".json",
		Trace: models.TraceRecord{
			TraceID: id,
			Spans:   []models.SpanRecord{{ID: "1", Services: []string{"web"}}},
		},
	}
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestRunBuildsReport(t *testing.T) {
	m := metrics.New()
	sink := &recordingSink{name: "rec"}
	src := &staticSource{records: []source.Record{goodTrace("t1", 10000), goodTrace("t2", 30000)}}

	result, err := New(src, Options{Report: report.DefaultOptions(), Metrics: m, Sinks: []Sink{sink}}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Loaded)
	assert.Equal(t, 2, result.Ingested)
	assert.Zero(t, result.Skipped)
	assert.NoError(t, result.Errors)

	rep := result.Report
	assert.Equal(t, 2, rep.TotalTraces)
	assert.Equal(t, 2, rep.NodeCount)
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, ":web", rep.Rows[0].Name)
	assert.Equal(t, 20.0, rep.Rows[0].Summary.Mean)
	assert.Equal(t, []report.URICount{{URI: "/checkout", Count: 2}}, rep.RootURIs)

	require.Len(t, sink.reports, 1)
	assert.Same(t, rep, sink.reports[0])
	assert.Equal(t, []string{"static"}, sink.sources)

	body := scrape(t, m)
	assert.Contains(t, body, "tracecollapse_traces_ingested_total 2")
	assert.Contains(t, body, "tracecollapse_spans_filed_total 4")
	assert.Contains(t, body, "tracecollapse_aggregated_nodes 2")
}

func TestRunFailPolicyAborts(t *testing.T) {
	sink := &recordingSink{name: "rec"}
	src := &staticSource{records: []source.Record{goodTrace("t1", 1000), malformedTrace("bad")}}

	_, err := New(src, Options{Report: report.DefaultOptions(), Sinks: []Sink{sink}}).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, aggregate.ErrMalformedTrace)
	assert.Contains(t, err.Error(), "bad.json")
	assert.Empty(t, sink.reports)
}

func TestRunSkipPolicyContinues(t *testing.T) {
	m := metrics.New()
	decodeErr := errors.New("unexpected end of JSON input")
	src := &staticSource{records: []source.Record{
		goodTrace("t1", 1000),
		malformedTrace("bad"),
		{Origin: "broken.json", Err: decodeErr},
		goodTrace("t2", 3000),
	}}

	result, err := New(src, Options{Report: report.DefaultOptions(), SkipMalformed: true, Metrics: m}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.Loaded)
	assert.Equal(t, 2, result.Ingested)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 2, result.Report.TotalTraces)

	errs := multierr.Errors(result.Errors)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], aggregate.ErrMalformedTrace)
	assert.ErrorIs(t, errs[1], decodeErr)

	body := scrape(t, m)
	assert.Contains(t, body, `tracecollapse_traces_skipped_total{reason="malformed"} 1`)
	assert.Contains(t, body, `tracecollapse_traces_skipped_total{reason="decode"} 1`)
}

func TestRunDecodeErrorFailsByDefault(t *testing.T) {
	src := &staticSource{records: []source.Record{{Origin: "broken.json", Err: errors.New("bad json")}}}

	_, err := New(src, Options{Report: report.DefaultOptions()}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.json: bad json")
}

func TestRunSourceError(t *testing.T) {
	src := &staticSource{err: errors.New("connection refused")}

	_, err := New(src, Options{Report: report.DefaultOptions()}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading traces from static")
}

func TestRunEmptySource(t *testing.T) {
	result, err := New(&staticSource{}, Options{Report: report.DefaultOptions()}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Report.TotalTraces)
	assert.Empty(t, result.Report.Rows)
}

func TestSinkFailuresAreNotFatal(t *testing.T) {
	failing := &recordingSink{name: "broken", err: errors.New("webhook down")}
	after := &recordingSink{name: "after"}
	src := &staticSource{records: []source.Record{goodTrace("t1", 1000)}}

	result, err := New(src, Options{Report: report.DefaultOptions(), Sinks: []Sink{failing, after}}).Run(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, result.Report)
	assert.Len(t, failing.reports, 1)
	assert.Len(t, after.reports, 1)
}

func TestStoreSink(t *testing.T) {
	saver := &fakeSaver{}
	sink := NewStoreSink(saver, nil)
	assert.Equal(t, "store", sink.Name())

	require.NoError(t, sink.Publish(context.Background(), "tempo", &report.Report{}))
	assert.Equal(t, 1, saver.calls)
	assert.Equal(t, "tempo", saver.source)

	saver.err = errors.New("disk full")
	assert.Error(t, sink.Publish(context.Background(), "tempo", &report.Report{}))
}
