package entry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNoEntries is returned when a payload decodes but carries no request entries.
var ErrNoEntries = errors.New("no request entries in payload")

// HAREntry is the subset of a HAR 1.2 entry the inspector consumes. Devtools
// onRequestFinished events use the same shape.
type HAREntry struct {
	PageRef         string      `json:"pageref,omitempty"`
	StartedDateTime string      `json:"startedDateTime"`
	Time            float64     `json:"time"`
	Request         HARRequest  `json:"request"`
	Response        HARResponse `json:"response"`
}

// HARRequest is the request half of a HAR entry.
type HARRequest struct {
	Method   string       `json:"method"`
	URL      string       `json:"url"`
	Headers  []Header     `json:"headers"`
	PostData *HARPostData `json:"postData,omitempty"`
}

// HARPostData is the request body of a HAR entry.
type HARPostData struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// HARResponse is the response half of a HAR entry.
type HARResponse struct {
	Status int `json:"status"`
}

type harEnvelope struct {
	Log *struct {
		Entries []HAREntry `json:"entries"`
	} `json:"log"`
	Entries []HAREntry `json:"entries"`
}

// Record converts a HAR entry into a Record. The completion time is the start
// time plus the elapsed duration; unparsable start times fall back to now.
func (e HAREntry) Record() Record {
	duration := e.Time
	if duration < 0 {
		duration = 0
	}

	completed := time.Now()
	if started, err := time.Parse(time.RFC3339Nano, e.StartedDateTime); err == nil {
		completed = started.Add(time.Duration(duration * float64(time.Millisecond)))
	}

	rec := Record{
		URL:         e.Request.URL,
		Method:      e.Request.Method,
		DurationMs:  duration,
		Headers:     append([]Header(nil), e.Request.Headers...),
		Status:      e.Response.Status,
		CompletedAt: completed,
		PageRef:     e.PageRef,
	}
	if e.Request.PostData != nil {
		rec.Body = &Body{
			MimeType: e.Request.PostData.MimeType,
			Text:     e.Request.PostData.Text,
		}
	}
	return rec
}

// DecodeEvents reads a single HAR entry, an {"entries": [...]} batch or a full
// HAR document and returns the records in input order.
func DecodeEvents(r io.Reader) ([]Record, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrNoEntries
	}

	var env harEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}

	entries := env.Entries
	if env.Log != nil {
		entries = append(entries, env.Log.Entries...)
	}
	if len(entries) == 0 {
		var single HAREntry
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		if single.Request.URL == "" {
			return nil, ErrNoEntries
		}
		entries = []HAREntry{single}
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.Record())
	}
	return records, nil
}
