package inspect

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/funnyzak/gqltap/pkg/entry"
)

// PayloadFallback is shown in place of the payload when extraction fails.
const PayloadFallback = "Unable to parse GraphQL payload"

var operationNamePattern = regexp.MustCompile(`(?:query|mutation)\s+(\w+)`)

// GraphQLInfo is the metadata extracted from a GraphQL request body.
type GraphQLInfo struct {
	OperationName     string `json:"operation_name,omitempty"`
	HasName           bool   `json:"has_name"`
	NormalizedPayload string `json:"normalized_payload"`
}

// Name returns the operation name or fallback for anonymous operations.
func (g *GraphQLInfo) Name(fallback string) string {
	if g == nil || !g.HasName {
		return fallback
	}
	return g.OperationName
}

// normalizedPayload fixes the key order to query, variables.
type normalizedPayload struct {
	Query     json.RawMessage `json:"query,omitempty"`
	Variables json.RawMessage `json:"variables,omitempty"`
}

// ExtractOperationName returns the word following the first query or mutation
// keyword. Anonymous selections such as "{ user { id } }" yield false.
func ExtractOperationName(query string) (string, bool) {
	match := operationNamePattern.FindStringSubmatch(query)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// ExtractGraphQLInfo parses the body of rec. It returns false when the body is
// missing, is not JSON, is not a JSON object or carries a non-string query.
func ExtractGraphQLInfo(rec *entry.Record) (*GraphQLInfo, bool) {
	if !rec.HasBody() {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(rec.Body.Text), &fields); err != nil || fields == nil {
		return nil, false
	}

	info := &GraphQLInfo{}
	if raw, ok := fields["query"]; ok {
		var query string
		if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) || json.Unmarshal(raw, &query) != nil {
			return nil, false
		}
		info.OperationName, info.HasName = ExtractOperationName(query)
	}
	if !info.HasName {
		var name string
		if raw, ok := fields["operationName"]; ok && json.Unmarshal(raw, &name) == nil && name != "" {
			info.OperationName, info.HasName = name, true
		}
	}

	var normalized normalizedPayload
	for key, dst := range map[string]*json.RawMessage{"query": &normalized.Query, "variables": &normalized.Variables} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		canonical, err := canonicalJSON(raw)
		if err != nil {
			return nil, false
		}
		*dst = canonical
	}
	payload, err := formatPayload(normalized)
	if err != nil {
		return nil, false
	}
	info.NormalizedPayload = payload
	return info, true
}

func formatPayload(p normalizedPayload) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// canonicalJSON re-encodes raw keeping object key order: numbers take their
// shortest form and string escapes are decoded, so 1.50 becomes 1.5 and
// "\u00e9" becomes "é".
func canonicalJSON(raw []byte) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var buf bytes.Buffer
	if err := writeCanonical(dec, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(dec *json.Decoder, buf *bytes.Buffer) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch v := tok.(type) {
	case json.Delim:
		closing := byte(']')
		if v == '{' {
			closing = '}'
		}
		buf.WriteByte(byte(v))
		for i := 0; dec.More(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			if v == '{' {
				key, err := dec.Token()
				if err != nil {
					return err
				}
				if err := writeScalar(buf, key); err != nil {
					return err
				}
				buf.WriteByte(':')
			}
			if err := writeCanonical(dec, buf); err != nil {
				return err
			}
		}
		if _, err := dec.Token(); err != nil {
			return err
		}
		buf.WriteByte(closing)
		return nil
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return writeScalar(buf, f)
		}
		buf.WriteString(v.String())
		return nil
	default:
		return writeScalar(buf, v)
	}
}

func writeScalar(buf *bytes.Buffer, v interface{}) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(out.Bytes(), "\n"))
	return nil
}
