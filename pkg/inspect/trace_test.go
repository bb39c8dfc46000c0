package inspect

import (
	"testing"

	"github.com/funnyzak/gqltap/pkg/entry"
)

func TestExtractTraceID(t *testing.T) {
	rec := &entry.Record{Headers: []entry.Header{
		{Name: "Accept", Value: "*/*"},
		{Name: "TraceParent", Value: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
	}}
	id, ok := ExtractTraceID(rec)
	if !ok || id != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected trace id %q (ok=%v)", id, ok)
	}

	cases := map[string][]entry.Header{
		"missing":      {{Name: "Accept", Value: "*/*"}},
		"single field": {{Name: "traceparent", Value: "garbage"}},
		"empty trace":  {{Name: "traceparent", Value: "00--abc-01"}},
		"empty value":  {{Name: "traceparent", Value: ""}},
		"no headers":   nil,
	}
	for name, headers := range cases {
		if id, ok := ExtractTraceID(&entry.Record{Headers: headers}); ok {
			t.Errorf("%s: expected absent trace id, got %q", name, id)
		}
	}

	if _, ok := ExtractTraceID(nil); ok {
		t.Fatalf("nil record should not carry a trace id")
	}
}

func TestTraceURL(t *testing.T) {
	if got := TraceURL("", "abc"); got != "https://app.datadoghq.eu/apm/trace/abc" {
		t.Fatalf("unexpected default url %s", got)
	}
	if got := TraceURL("https://traces.local/t/{traceId}?x={traceId}", "abc"); got != "https://traces.local/t/abc?x=abc" {
		t.Fatalf("unexpected templated url %s", got)
	}
	if got := TraceURL("https://x/{traceId}", ""); got != "" {
		t.Fatalf("empty id should produce no url, got %s", got)
	}
}
