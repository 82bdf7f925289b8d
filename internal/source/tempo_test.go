package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otlptrace "go.opentelemetry.io/proto/otlp/trace/v1"
)

type fakeFetcher struct {
	searchIDs   []string
	searchErr   error
	traces      map[string][]*otlptrace.ResourceSpans
	gotService  string
	gotStart    time.Time
	gotEnd      time.Time
	gotLimit    int
	fetchedIDs  []string
	searchCalls int
}

func (f *fakeFetcher) SearchTraceIDs(_ context.Context, service string, start, end time.Time, limit int) ([]string, error) {
	f.searchCalls++
	f.gotService, f.gotStart, f.gotEnd, f.gotLimit = service, start, end, limit
	return f.searchIDs, f.searchErr
}

func (f *fakeFetcher) GetTraceByID(_ context.Context, traceID string) ([]*otlptrace.ResourceSpans, error) {
	f.fetchedIDs = append(f.fetchedIDs, traceID)
	spans, ok := f.traces[traceID]
	if !ok {
		return nil, errors.New("unexpected status code from tempo: 404")
	}
	return spans, nil
}

func TestTempoSourceSearchesWindow(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	prev := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = prev })

	fetcher := &fakeFetcher{
		searchIDs: []string{"01", "02", "03"},
		traces: map[string][]*otlptrace.ResourceSpans{
			"01": {resourceSpans("web", otlpSpan(1, 1, 0, 0, 1000))},
			"02": {},
		},
	}

	src := &TempoSource{Client: fetcher, Service: "web", Lookback: time.Hour, Limit: 10}
	records, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "web", fetcher.gotService)
	assert.Equal(t, fixed.Add(-time.Hour), fetcher.gotStart)
	assert.Equal(t, fixed, fetcher.gotEnd)
	assert.Equal(t, 10, fetcher.gotLimit)

	require.Len(t, records, 3)
	assert.Equal(t, "tempo:01", records[0].Origin)
	assert.NoError(t, records[0].Err)
	assert.Equal(t, "00000000000000000000000000000001", records[0].Trace.TraceID)
	assert.Contains(t, records[1].Err.Error(), "no spans")
	assert.Contains(t, records[2].Err.Error(), "404")
}

func TestTempoSourceExplicitIDs(t *testing.T) {
	fetcher := &fakeFetcher{
		traces: map[string][]*otlptrace.ResourceSpans{
			"aa": {resourceSpans("web", otlpSpan(1, 1, 0, 0, 1000))},
		},
	}

	src := &TempoSource{Client: fetcher, TraceIDs: []string{"aa"}}
	records, err := src.Load(context.Background())
	require.NoError(t, err)

	assert.Zero(t, fetcher.searchCalls)
	assert.Equal(t, []string{"aa"}, fetcher.fetchedIDs)
	assert.Len(t, records, 1)
}

func TestTempoSourceSearchFailure(t *testing.T) {
	src := &TempoSource{Client: &fakeFetcher{searchErr: errors.New("boom")}}
	_, err := src.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tempo search")
}
