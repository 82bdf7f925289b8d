package aggregate

import (
	"errors"
	"fmt"

	"tracecollapse/internal/models"
)

// ErrMalformedTrace is matched by every MalformedTraceError.
var ErrMalformedTrace = errors.New("malformed trace")

// MalformedTraceError reports a trace record missing a required field.
type MalformedTraceError struct {
	TraceID   string
	SpanIndex int // -1 when the trace itself is at fault
	Field     string
}

func (e *MalformedTraceError) Error() string {
	if e.SpanIndex < 0 {
		return fmt.Sprintf("malformed trace %q: missing %s", e.TraceID, e.Field)
	}
	return fmt.Sprintf("malformed trace %q: span %d missing %s", e.TraceID, e.SpanIndex, e.Field)
}

// Is lets errors.Is match ErrMalformedTrace.
func (e *MalformedTraceError) Is(target error) bool {
	return target == ErrMalformedTrace
}

// Validate checks that a trace carries every field ingestion relies on.
func Validate(trace models.TraceRecord) error {
	if trace.TraceID == "" {
		return &MalformedTraceError{SpanIndex: -1, Field: "traceId"}
	}
	if trace.Spans == nil {
		return &MalformedTraceError{TraceID: trace.TraceID, SpanIndex: -1, Field: "spans"}
	}
	for i, span := range trace.Spans {
		switch {
		case span.ID == "":
			return &MalformedTraceError{TraceID: trace.TraceID, SpanIndex: i, Field: "id"}
		case span.Duration == nil:
			return &MalformedTraceError{TraceID: trace.TraceID, SpanIndex: i, Field: "duration"}
		case len(span.Services) == 0:
			return &MalformedTraceError{TraceID: trace.TraceID, SpanIndex: i, Field: "services"}
		}
	}
	return nil
}
