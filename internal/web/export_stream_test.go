package web

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/funnyzak/gqltap/pkg/inspect"
)

func exportFixture() []*inspect.Row {
	return []*inspect.Row{
		{
			ID:          "ROW1",
			CompletedAt: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
			URL:         "https://api.example.com/graphql",
			Domain:      "api.example.com",
			Path:        "/graphql",
			DisplayPath: "/graphql (GetUser)",
			Method:      "POST",
			Status:      200,
			DurationMs:  812.5,
			Duration:    "813 ms",
			Bucket:      inspect.BucketCritical,
			Category:    inspect.CategoryGraphQL,
			GraphQL:     &inspect.GraphQLInfo{OperationName: "GetUser", HasName: true, NormalizedPayload: "{\n  \"query\": \"query GetUser { a<b }\"\n}"},
			Popup:       "{\n  \"query\": \"query GetUser { a<b }\"\n}",
			TraceID:     "abc",
			TraceURL:    "https://trace.example/abc",
		},
		{
			ID:          "ROW2",
			CompletedAt: time.Date(2026, 10, 17, 9, 0, 1, 0, time.UTC),
			URL:         "https://cdn.example.com/app.js",
			Domain:      "cdn.example.com",
			Path:        "/app.js",
			DisplayPath: "/app.js",
			Method:      "GET",
			Status:      304,
			DurationMs:  12,
			Duration:    "12 ms",
			Bucket:      inspect.BucketNormal,
			Category:    inspect.CategoryOther,
		},
	}
}

func TestStreamExportJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	ct, ext, err := StreamExport(buf, SliceIterator(exportFixture()), "JSON")
	if err != nil {
		t.Fatalf("stream export failed: %v", err)
	}
	if ct != "application/json" || ext != "json" {
		t.Fatalf("unexpected metadata: %s %s", ct, ext)
	}

	var decoded []inspect.Row
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("export is not a JSON array: %v\n%s", err, buf.String())
	}
	if len(decoded) != 2 || decoded[0].GraphQL.OperationName != "GetUser" {
		t.Fatalf("unexpected rows %+v", decoded)
	}
	if strings.Contains(buf.String(), `\u003c`) {
		t.Fatalf("HTML characters should not be escaped")
	}
}

func TestStreamExportJSONEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	if _, _, err := StreamExport(buf, SliceIterator(nil), "json"); err != nil {
		t.Fatalf("stream export failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", buf.String())
	}
}

func TestStreamExportCSV(t *testing.T) {
	buf := &bytes.Buffer{}
	if _, _, err := StreamExport(buf, SliceIterator(exportFixture()), "csv"); err != nil {
		t.Fatalf("csv export failed: %v", err)
	}
	records, err := csv.NewReader(buf).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(records) != 3 || records[0][0] != "id" {
		t.Fatalf("unexpected csv %v", records)
	}
	if records[1][6] != "GetUser" || records[1][8] != "812.5" || records[1][9] != "critical" {
		t.Fatalf("unexpected first row %v", records[1])
	}
	if records[2][6] != "" || records[2][7] != "other" {
		t.Fatalf("unexpected second row %v", records[2])
	}
}

func TestStreamExportText(t *testing.T) {
	buf := &bytes.Buffer{}
	if _, _, err := StreamExport(buf, SliceIterator(exportFixture()), "txt"); err != nil {
		t.Fatalf("txt export failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Row 1", "api.example.com/graphql (GetUser)", "Trace: https://trace.example/abc", `"query": "query GetUser { a<b }"`, "Row 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("text export missing %q:\n%s", want, out)
		}
	}
}

func TestDescribeFormatInvalid(t *testing.T) {
	if _, _, err := StreamExport(&bytes.Buffer{}, SliceIterator(nil), "xml"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
	if _, _, err := DescribeFormat("txt"); err != nil {
		t.Fatalf("txt should be supported: %v", err)
	}
}

func TestAllowedFormats(t *testing.T) {
	got := AllowedFormats([]string{" CSV", "json", "", "csv"})
	if len(got) != 2 || got[0] != "csv" || got[1] != "json" {
		t.Fatalf("unexpected formats %v", got)
	}
}
