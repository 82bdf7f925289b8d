package tempo

import "encoding/json"

// SearchResult represents a Tempo /api/search response.
type SearchResult struct {
	Traces []TraceSummary `json:"traces"`
}

// TraceSummary is the per-trace overview returned by a search.
type TraceSummary struct {
	TraceID           string `json:"traceID"`
	RootServiceName   string `json:"rootServiceName"`
	RootTraceName     string `json:"rootTraceName"`
	StartTimeUnixNano string `json:"startTimeUnixNano"`
	DurationMs        int64  `json:"durationMs"`
}

// traceResponse covers both the v1 ("batches") and v2 ("trace.resourceSpans")
// shapes of /api/traces, plus a bare OTLP TracesData document.
type traceResponse struct {
	Batches       []json.RawMessage `json:"batches"`
	ResourceSpans []json.RawMessage `json:"resourceSpans"`
	Trace         *struct {
		ResourceSpans []json.RawMessage `json:"resourceSpans"`
	} `json:"trace"`
}

func (r traceResponse) resourceSpans() []json.RawMessage {
	switch {
	case len(r.Batches) > 0:
		return r.Batches
	case len(r.ResourceSpans) > 0:
		return r.ResourceSpans
	case r.Trace != nil:
		return r.Trace.ResourceSpans
	}
	return nil
}
