package aggregate

import (
	"sort"
	"strings"
)

const (
	pathSeparator    = ":"
	serviceSeparator = "|"
)

// SpanKey addresses a span inside the trace it belongs to. Span IDs are only
// unique within a trace.
type SpanKey struct {
	TraceID string
	SpanID  string
}

// ServicePath joins the span's service labels in sorted order so that label
// order never distinguishes two spans.
func ServicePath(services []string) string {
	sorted := make([]string, len(services))
	copy(sorted, services)
	sort.Strings(sorted)
	return strings.Join(sorted, serviceSeparator)
}

// NodeName appends a service path to the name of the parent node. Roots have
// an empty parent name.
func NodeName(parentName, servicePath string) string {
	return parentName + pathSeparator + servicePath
}
