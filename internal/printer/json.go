package printer

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/pkg/i18n"
	"github.com/funnyzak/gqltap/pkg/inspect"
	"github.com/funnyzak/gqltap/pkg/stats"
)

// JSONPrinter writes one JSON object per line.
type JSONPrinter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	logger  logger.Logger
	labels  i18n.Labels
}

// NewJSONPrinter creates a JSON-lines printer writing to stdout.
func NewJSONPrinter(log logger.Logger, labels i18n.Labels) *JSONPrinter {
	p := &JSONPrinter{logger: log, labels: labels}
	p.SetOutput(os.Stdout)
	return p
}

// SetOutput replaces the output target.
func (p *JSONPrinter) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	p.encoder = encoder
}

type jsonRowEnvelope struct {
	Type          string       `json:"type"`
	Row           *inspect.Row `json:"row"`
	Slow          bool         `json:"slow"`
	BodySizeHuman string       `json:"body_size_human,omitempty"`
}

type jsonStatsEnvelope struct {
	Type    string         `json:"type"`
	Stats   stats.Snapshot `json:"stats"`
	Elapsed string         `json:"elapsed"`
}

type jsonNoticeEnvelope struct {
	Type    string `json:"type"`
	Event   Notice `json:"event"`
	Message string `json:"message"`
}

// PrintRow implements Printer.
func (p *JSONPrinter) PrintRow(row *inspect.Row) error {
	env := jsonRowEnvelope{Type: "row", Row: row, Slow: row.Bucket.Slow()}
	if row.BodySize > 0 {
		env.BodySizeHuman = humanize.Bytes(uint64(row.BodySize))
	}
	return p.encode(env)
}

// PrintStats implements Printer.
func (p *JSONPrinter) PrintStats(snap stats.Snapshot) error {
	return p.encode(jsonStatsEnvelope{Type: "stats", Stats: snap, Elapsed: FormatElapsed(snap.ElapsedSeconds)})
}

// PrintNotice implements Printer.
func (p *JSONPrinter) PrintNotice(n Notice) error {
	return p.encode(jsonNoticeEnvelope{Type: "notice", Event: n, Message: p.labels.Text(keyNoticePrefix + string(n))})
}

func (p *JSONPrinter) encode(v interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.encoder.Encode(v); err != nil {
		if p.logger != nil {
			p.logger.Error("Failed to encode JSON output", "error", err)
		}
		return err
	}
	return nil
}
