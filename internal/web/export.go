package web

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/funnyzak/gqltap/pkg/inspect"
)

// RowIterator yields rows in order until yield returns false.
type RowIterator func(yield func(*inspect.Row) bool)

// SliceIterator iterates over rows.
func SliceIterator(rows []*inspect.Row) RowIterator {
	return func(yield func(*inspect.Row) bool) {
		for _, row := range rows {
			if !yield(row) {
				return
			}
		}
	}
}

var csvHeader = []string{
	"id", "completed_at", "method", "status", "domain", "path", "operation",
	"category", "duration_ms", "bucket", "trace_id", "trace_url", "url",
}

// StreamExport writes rows to w in format and returns the content type and
// file extension.
func StreamExport(w io.Writer, rows RowIterator, format string) (string, string, error) {
	contentType, ext, err := DescribeFormat(format)
	if err != nil {
		return "", "", err
	}
	switch ext {
	case "json":
		err = exportJSON(w, rows)
	case "csv":
		err = exportCSV(w, rows)
	default:
		err = exportText(w, rows)
	}
	return contentType, ext, err
}

// DescribeFormat returns the content type and extension of format.
func DescribeFormat(format string) (string, string, error) {
	switch strings.ToLower(format) {
	case "json":
		return "application/json", "json", nil
	case "csv":
		return "text/csv", "csv", nil
	case "txt":
		return "text/plain; charset=utf-8", "txt", nil
	default:
		return "", "", fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportJSON(w io.Writer, rows RowIterator) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("["); err != nil {
		return err
	}
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	var err error
	first := true
	rows(func(row *inspect.Row) bool {
		if !first {
			if _, err = bw.WriteString(","); err != nil {
				return false
			}
		}
		first = false
		err = enc.Encode(row)
		return err == nil
	})
	if err != nil {
		return err
	}
	if _, err := bw.WriteString("]\n"); err != nil {
		return err
	}
	return bw.Flush()
}

func exportCSV(w io.Writer, rows RowIterator) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	var err error
	rows(func(row *inspect.Row) bool {
		err = writer.Write([]string{
			row.ID,
			row.CompletedAt.Format(time.RFC3339Nano),
			row.Method,
			strconv.Itoa(row.Status),
			row.Domain,
			row.Path,
			operationName(row),
			string(row.Category),
			strconv.FormatFloat(row.DurationMs, 'f', -1, 64),
			string(row.Bucket),
			row.TraceID,
			row.TraceURL,
			row.URL,
		})
		return err == nil
	})
	if err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}

func exportText(w io.Writer, rows RowIterator) error {
	bw := bufio.NewWriter(w)
	var err error
	n := 0
	rows(func(row *inspect.Row) bool {
		n++
		_, err = fmt.Fprintf(bw, "Row %d  %s  %s %d  %s  [%s/%s]\n%s%s\n",
			n,
			row.CompletedAt.Format(time.RFC3339),
			row.Method,
			row.Status,
			row.Duration,
			row.Category,
			row.Bucket,
			row.Domain,
			row.DisplayPath,
		)
		if err != nil {
			return false
		}
		if row.TraceURL != "" {
			if _, err = fmt.Fprintf(bw, "Trace: %s\n", row.TraceURL); err != nil {
				return false
			}
		}
		if row.Popup != "" {
			if _, err = fmt.Fprintf(bw, "%s\n", row.Popup); err != nil {
				return false
			}
		}
		_, err = bw.WriteString("\n")
		return err == nil
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

func operationName(row *inspect.Row) string {
	if row.GraphQL == nil || !row.GraphQL.HasName {
		return ""
	}
	return row.GraphQL.OperationName
}

// AllowedFormats normalizes configured export formats.
func AllowedFormats(formats []string) []string {
	set := make(map[string]struct{})
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		set[f] = struct{}{}
	}

	result := make([]string, 0, len(set))
	for f := range set {
		result = append(result, f)
	}
	sort.Strings(result)
	return result
}
