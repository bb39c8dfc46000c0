package inspect

import (
	"strings"

	"github.com/funnyzak/gqltap/pkg/entry"
)

// TraceHeader is the W3C trace-context propagation header.
const TraceHeader = "traceparent"

// DefaultTraceURLTemplate points at the trace viewer; {traceId} is substituted.
const DefaultTraceURLTemplate = "https://app.datadoghq.eu/apm/trace/{traceId}"

const traceIDPlaceholder = "{traceId}"

// ExtractTraceID returns the trace id field of the traceparent header
// (version-traceId-parentId-flags).
func ExtractTraceID(rec *entry.Record) (string, bool) {
	value, ok := rec.Header(TraceHeader)
	if !ok {
		return "", false
	}
	fields := strings.Split(strings.TrimSpace(value), "-")
	if len(fields) < 2 || fields[1] == "" {
		return "", false
	}
	return fields[1], true
}

// TraceURL renders the trace viewer link for id.
func TraceURL(template, id string) string {
	if id == "" {
		return ""
	}
	if template == "" {
		template = DefaultTraceURLTemplate
	}
	return strings.ReplaceAll(template, traceIDPlaceholder, id)
}
