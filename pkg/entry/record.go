package entry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Header is a single request header. Order of headers is preserved.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Body is the captured request body.
type Body struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

// Record is one finished request as reported by the host integration.
// It is treated as immutable once handed to the inspector.
type Record struct {
	URL         string    `json:"url"`
	Method      string    `json:"method"`
	DurationMs  float64   `json:"duration_ms"`
	Headers     []Header  `json:"headers"`
	Body        *Body     `json:"body,omitempty"`
	Status      int       `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
	// PageRef names the page a recorded entry belonged to, when known.
	PageRef     string    `json:"page_ref,omitempty"`
}

// Header returns the value of the first header matching name case-insensitively.
func (r *Record) Header(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// HasBody reports whether the record carries a request body with text.
func (r *Record) HasBody() bool {
	return r != nil && r.Body != nil && r.Body.Text != ""
}

// NewID creates a random, URL-safe row identifier.
func NewID() string {
	const idBytes = 12
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("ROW-%d", time.Now().UnixNano())
	}
	return strings.ToUpper(hex.EncodeToString(b))
}
