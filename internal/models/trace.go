// Package models defines the decoded trace records shared by every trace source and the aggregator.
package models

import (
	"encoding/json"
	"strings"
)

// AnnotationHTTPURI is the binary annotation key holding the request URI of a root span.
const AnnotationHTTPURI = "http.uri"

// TraceFile is the envelope of a single trace file: { "trace": { ... } }.
type TraceFile struct {
	Trace TraceRecord `json:"trace"`
}

// TraceRecord is one decoded trace: a forest of spans sharing a trace ID.
type TraceRecord struct {
	TraceID string       `json:"traceId"`
	Spans   []SpanRecord `json:"spans"`
}

// SpanRecord is a raw span as produced by a trace source.
type SpanRecord struct {
	ID                string             `json:"id"`
	ParentID          string             `json:"parentId,omitempty"`
	Duration          *int64             `json:"duration,omitempty"` // microseconds
	Services          []string           `json:"services"`
	BinaryAnnotations []BinaryAnnotation `json:"binaryAnnotations,omitempty"`
}

// BinaryAnnotation is a key/value tag attached to a span.
type BinaryAnnotation struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// NewBinaryAnnotation builds a string-valued annotation.
func NewBinaryAnnotation(key, value string) BinaryAnnotation {
	raw, _ := json.Marshal(value)
	return BinaryAnnotation{Key: key, Value: raw}
}

// StringValue returns the annotation value as a string. Non-string JSON values
// are returned in their literal form.
func (a BinaryAnnotation) StringValue() string {
	var s string
	if err := json.Unmarshal(a.Value, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(a.Value))
}

// IsRoot returns true if the span has no parent reference.
func (s *SpanRecord) IsRoot() bool {
	return s.ParentID == ""
}

// DurationMillis converts the microsecond duration to milliseconds.
func (s *SpanRecord) DurationMillis() float64 {
	if s.Duration == nil {
		return 0
	}
	return float64(*s.Duration) / 1000.0
}

// Annotation returns the value of the first binary annotation with the given key.
func (s *SpanRecord) Annotation(key string) (string, bool) {
	for _, a := range s.BinaryAnnotations {
		if a.Key == key {
			return a.StringValue(), true
		}
	}
	return "", false
}

// Micros is a convenience for building span durations.
func Micros(v int64) *int64 {
	return &v
}
