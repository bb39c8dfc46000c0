package inspect

import (
	"fmt"
	"time"

	"github.com/funnyzak/gqltap/pkg/entry"
)

// UnnamedOperation is appended to GraphQL paths without an operation name.
const UnnamedOperation = "unnamed"

// Options tunes the presentation fields of a Row.
type Options struct {
	PathMaxLength    int
	TraceURLTemplate string
	UnnamedLabel     string
	FallbackLabel    string
}

// Row is an enriched request ready for presentation.
type Row struct {
	ID          string       `json:"id"`
	CompletedAt time.Time    `json:"completed_at"`
	URL         string       `json:"url"`
	Domain      string       `json:"domain"`
	Path        string       `json:"path"`
	DisplayPath string       `json:"display_path"`
	Method      string       `json:"method"`
	Status      int          `json:"status"`
	DurationMs  float64      `json:"duration_ms"`
	Duration    string       `json:"duration"`
	BodySize    int          `json:"body_size"`
	Bucket      Bucket       `json:"bucket"`
	Category    Category     `json:"category"`
	GraphQL     *GraphQLInfo `json:"graphql,omitempty"`
	Popup       string       `json:"popup,omitempty"`
	TraceID     string       `json:"trace_id,omitempty"`
	TraceURL    string       `json:"trace_url,omitempty"`
	Visible     bool         `json:"visible"`
}

// Enrich runs rec through the parser, classifier and extractors.
func Enrich(rec *entry.Record, opts Options) *Row {
	if opts.PathMaxLength <= 0 {
		opts.PathMaxLength = DefaultPathMaxLength
	}
	if opts.UnnamedLabel == "" {
		opts.UnnamedLabel = UnnamedOperation
	}
	if opts.FallbackLabel == "" {
		opts.FallbackLabel = PayloadFallback
	}

	parsed := ParseURL(rec.URL)
	category := CategoryOf(rec)
	truncated := TruncatePath(parsed.Path, opts.PathMaxLength)

	completed := rec.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}

	row := &Row{
		ID:          entry.NewID(),
		CompletedAt: completed,
		URL:         rec.URL,
		Domain:      parsed.Domain,
		Path:        parsed.Path,
		DisplayPath: truncated,
		Method:      rec.Method,
		Status:      rec.Status,
		DurationMs:  rec.DurationMs,
		Duration:    FormatDuration(rec.DurationMs),
		BodySize:    bodySize(rec),
		Bucket:      BucketOf(rec.DurationMs),
		Category:    category,
		Visible:     true,
	}

	if category == CategoryGraphQL {
		if info, ok := ExtractGraphQLInfo(rec); ok {
			row.GraphQL = info
			row.DisplayPath = fmt.Sprintf("%s (%s)", truncated, info.Name(opts.UnnamedLabel))
			row.Popup = info.NormalizedPayload
		} else {
			row.Popup = opts.FallbackLabel
		}
	} else if truncated != parsed.Path {
		row.Popup = parsed.Path
	}

	if id, ok := ExtractTraceID(rec); ok {
		row.TraceID = id
		row.TraceURL = TraceURL(opts.TraceURLTemplate, id)
	}
	return row
}

func bodySize(rec *entry.Record) int {
	if !rec.HasBody() {
		return 0
	}
	return len(rec.Body.Text)
}
