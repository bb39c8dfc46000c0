package inspect

import (
	"testing"

	"github.com/funnyzak/gqltap/pkg/entry"
)

func graphqlRecord(text string) *entry.Record {
	return &entry.Record{
		URL:    "https://api.example.com/graphql",
		Method: "POST",
		Body:   &entry.Body{MimeType: "application/json", Text: text},
	}
}

func TestExtractOperationName(t *testing.T) {
	tests := []struct {
		query  string
		name   string
		hasKey bool
	}{
		{query: "query GetUser { user { id } }", name: "GetUser", hasKey: true},
		{query: "mutation  UpdateUser($id: ID!) { update(id: $id) }", name: "UpdateUser", hasKey: true},
		{query: "query\n\tMultiLine {\n a \n}", name: "MultiLine", hasKey: true},
		{query: "{ user { id } }", hasKey: false},
		{query: "query { user { id } }", hasKey: false},
		{query: "", hasKey: false},
	}

	for _, tt := range tests {
		name, ok := ExtractOperationName(tt.query)
		if ok != tt.hasKey {
			t.Errorf("%q: expected ok=%v, got %v", tt.query, tt.hasKey, ok)
			continue
		}
		if name != tt.name {
			t.Errorf("%q: expected %q, got %q", tt.query, tt.name, name)
		}
	}
}

func TestExtractGraphQLInfo_NamedQuery(t *testing.T) {
	rec := graphqlRecord(`{"variables":{"id":"1"},"query":"query GetUser($id: ID!) { user(id: $id) { id } }"}`)
	info, ok := ExtractGraphQLInfo(rec)
	if !ok {
		t.Fatalf("expected info to be extracted")
	}
	if !info.HasName || info.OperationName != "GetUser" {
		t.Fatalf("unexpected operation name: %#v", info)
	}

	want := "{\n  \"query\": \"query GetUser($id: ID!) { user(id: $id) { id } }\",\n  \"variables\": {\n    \"id\": \"1\"\n  }\n}"
	if info.NormalizedPayload != want {
		t.Fatalf("unexpected payload:\n%s\nwant:\n%s", info.NormalizedPayload, want)
	}
}

func TestExtractGraphQLInfo_OperationNameField(t *testing.T) {
	rec := graphqlRecord(`{"operationName":"Fallback","query":"{ me { id } }","variables":null}`)
	info, ok := ExtractGraphQLInfo(rec)
	if !ok {
		t.Fatalf("expected info to be extracted")
	}
	if info.OperationName != "Fallback" {
		t.Fatalf("expected operationName field to be used, got %q", info.OperationName)
	}

	rec = graphqlRecord(`{"operationName":"Ignored","query":"mutation Winner { x }"}`)
	info, _ = ExtractGraphQLInfo(rec)
	if info.OperationName != "Winner" {
		t.Fatalf("query text should win over operationName, got %q", info.OperationName)
	}
}

func TestExtractGraphQLInfo_Anonymous(t *testing.T) {
	info, ok := ExtractGraphQLInfo(graphqlRecord(`{"query":"{ user { id } }"}`))
	if !ok {
		t.Fatalf("anonymous operation is a successful parse")
	}
	if info.HasName {
		t.Fatalf("expected no operation name, got %q", info.OperationName)
	}
	if got := info.Name("unnamed"); got != "unnamed" {
		t.Fatalf("expected fallback name, got %q", got)
	}
	if info.NormalizedPayload != "{\n  \"query\": \"{ user { id } }\"\n}" {
		t.Fatalf("missing variables should be omitted, got %s", info.NormalizedPayload)
	}
}

func TestExtractGraphQLInfo_Invalid(t *testing.T) {
	cases := map[string]*entry.Record{
		"not json":     graphqlRecord("not json"),
		"json array":   graphqlRecord(`[{"query":"{a}"}]`),
		"json null":    graphqlRecord("null"),
		"no body":      {URL: "https://api.example.com/graphql"},
		"empty text":   graphqlRecord(""),
		"number query": graphqlRecord(`{"query":5,"variables":{}}`),
		"null query":   graphqlRecord(`{"query":null}`),
	}
	for name, rec := range cases {
		if info, ok := ExtractGraphQLInfo(rec); ok || info != nil {
			t.Errorf("%s: expected absent result, got %#v", name, info)
		}
	}
}

func TestExtractGraphQLInfo_NoHTMLEscaping(t *testing.T) {
	info, ok := ExtractGraphQLInfo(graphqlRecord(`{"query":"query A { x(filter: \"a<b&c>d\") }","variables":{}}`))
	if !ok {
		t.Fatalf("expected info")
	}
	want := "{\n  \"query\": \"query A { x(filter: \\\"a<b&c>d\\\") }\",\n  \"variables\": {}\n}"
	if info.NormalizedPayload != want {
		t.Fatalf("unexpected payload:\n%s", info.NormalizedPayload)
	}
}

func TestExtractGraphQLInfo_CanonicalVariables(t *testing.T) {
	info, ok := ExtractGraphQLInfo(graphqlRecord(`{"query":"query A { a }","variables":{"z":1.50,"a":"caf\u00e9","list":[1e2,-0.250,true,null]}}`))
	if !ok {
		t.Fatalf("expected info")
	}
	want := "{\n  \"query\": \"query A { a }\",\n  \"variables\": {\n    \"z\": 1.5,\n    \"a\": \"café\",\n    \"list\": [\n      100,\n      -0.25,\n      true,\n      null\n    ]\n  }\n}"
	if info.NormalizedPayload != want {
		t.Fatalf("unexpected payload:\n%s\nwant:\n%s", info.NormalizedPayload, want)
	}
}
