package source

import (
	"encoding/hex"
	"fmt"
	"sort"

	otlpcommon "go.opentelemetry.io/proto/otlp/common/v1"
	otlpresource "go.opentelemetry.io/proto/otlp/resource/v1"
	otlptrace "go.opentelemetry.io/proto/otlp/trace/v1"

	"tracecollapse/internal/models"
)

// uriAttributes are checked in order for the value recorded as http.uri.
var uriAttributes = []string{"http.uri", "http.target", "url.path", "http.url", "url.full"}

type flatSpan struct {
	start  uint64
	record models.SpanRecord
}

// TracesFromResourceSpans groups OTLP spans by trace ID, in first-seen order,
// and converts each group into a trace record whose spans are ordered so that
// every parent precedes its children.
func TracesFromResourceSpans(resourceSpans []*otlptrace.ResourceSpans) []models.TraceRecord {
	var order []string
	groups := make(map[string][]flatSpan)

	for _, rs := range resourceSpans {
		serviceName := extractServiceName(rs.GetResource())

		// spans may be batched from a single service
		for _, scopeSpan := range rs.GetScopeSpans() {
			for _, span := range scopeSpan.GetSpans() {
				traceID := hex.EncodeToString(span.GetTraceId())
				if _, seen := groups[traceID]; !seen {
					order = append(order, traceID)
				}
				groups[traceID] = append(groups[traceID], flatSpan{
					start:  span.GetStartTimeUnixNano(),
					record: parseSpan(span, serviceName),
				})
			}
		}
	}

	traces := make([]models.TraceRecord, 0, len(order))
	for _, traceID := range order {
		traces = append(traces, models.TraceRecord{
			TraceID: traceID,
			Spans:   parentsFirst(groups[traceID]),
		})
	}
	return traces
}

func parseSpan(span *otlptrace.Span, serviceName string) models.SpanRecord {
	// Convert binary IDs to hex strings
	rec := models.SpanRecord{
		ID:       hex.EncodeToString(span.GetSpanId()),
		Services: []string{serviceName},
	}
	if len(span.GetParentSpanId()) > 0 {
		rec.ParentID = hex.EncodeToString(span.GetParentSpanId())
	}

	var micros int64
	if end, start := span.GetEndTimeUnixNano(), span.GetStartTimeUnixNano(); end > start {
		micros = int64((end - start) / 1000)
	}
	rec.Duration = models.Micros(micros)

	tags := make(map[string]string, len(span.GetAttributes()))
	for _, attr := range span.GetAttributes() {
		tags[attr.GetKey()] = getAttributeValue(attr.GetValue())
	}

	if peer := tags["peer.service"]; peer != "" && peer != serviceName {
		rec.Services = append(rec.Services, peer)
	}

	for _, key := range uriAttributes {
		if uri := tags[key]; uri != "" {
			rec.BinaryAnnotations = append(rec.BinaryAnnotations, models.NewBinaryAnnotation(models.AnnotationHTTPURI, uri))
			break
		}
	}

	return rec
}

// parentsFirst orders spans by start time and emits them in preorder, so a
// child is always filed after its parent. Spans whose parent is absent are
// treated as roots.
func parentsFirst(spans []flatSpan) []models.SpanRecord {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].record.ID < spans[j].record.ID
	})

	present := make(map[string]bool, len(spans))
	for _, s := range spans {
		present[s.record.ID] = true
	}

	children := make(map[string][]int)
	var roots []int
	for i, s := range spans {
		if s.record.IsRoot() || !present[s.record.ParentID] {
			roots = append(roots, i)
			continue
		}
		children[s.record.ParentID] = append(children[s.record.ParentID], i)
	}

	out := make([]models.SpanRecord, 0, len(spans))
	emitted := make([]bool, len(spans))
	var emit func(i int)
	emit = func(i int) {
		if emitted[i] {
			return
		}
		emitted[i] = true
		out = append(out, spans[i].record)
		for _, c := range children[spans[i].record.ID] {
			emit(c)
		}
	}
	for _, i := range roots {
		emit(i)
	}
	// parent cycles have no root; keep their spans in start order
	for i := range spans {
		emit(i)
	}
	return out
}

func extractServiceName(rs *otlpresource.Resource) string {
	if rs == nil {
		return "unknown"
	}

	for _, attr := range rs.GetAttributes() {
		if attr.GetKey() == "service.name" && attr.GetValue().GetStringValue() != "" {
			return attr.GetValue().GetStringValue()
		}
	}
	return "unknown"
}

func getAttributeValue(value *otlpcommon.AnyValue) string {
	if value == nil {
		return ""
	}

	switch v := value.Value.(type) {
	case *otlpcommon.AnyValue_StringValue:
		return v.StringValue
	case *otlpcommon.AnyValue_IntValue:
		return fmt.Sprintf("%d", v.IntValue)
	case *otlpcommon.AnyValue_DoubleValue:
		return fmt.Sprintf("%g", v.DoubleValue)
	case *otlpcommon.AnyValue_BoolValue:
		return fmt.Sprintf("%t", v.BoolValue)
	case *otlpcommon.AnyValue_BytesValue:
		return hex.EncodeToString(v.BytesValue)
	default:
		return ""
	}
}
