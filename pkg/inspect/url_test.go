package inspect

import (
	"strings"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		domain string
		path   string
	}{
		{name: "https with query", raw: "https://api.example.com/v1/users?id=1#top", domain: "api.example.com", path: "/v1/users"},
		{name: "host with port", raw: "http://localhost:8080/graphql", domain: "localhost:8080", path: "/graphql"},
		{name: "empty path", raw: "https://example.com", domain: "example.com", path: "/"},
		{name: "upper-case host", raw: "https://API.Example.com/x", domain: "api.example.com", path: "/x"},
		{name: "data uri", raw: "data:text/plain;base64,abcd", domain: "data:", path: "text/plain"},
		{name: "data uri without params", raw: "data:,hello", domain: "data:", path: ",hello"},
		{name: "not a url", raw: "not a url", domain: "", path: "not a url"},
		{name: "relative path", raw: "/just/a/path", domain: "", path: "/just/a/path"},
		{name: "bad escape", raw: "http://example.com/%zz", domain: "", path: "http://example.com/%zz"},
		{name: "empty", raw: "", domain: "", path: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseURL(tt.raw)
			if got.Domain != tt.domain {
				t.Errorf("domain: expected %q, got %q", tt.domain, got.Domain)
			}
			if got.Path != tt.path {
				t.Errorf("path: expected %q, got %q", tt.path, got.Path)
			}
		})
	}
}

func TestTruncatePath(t *testing.T) {
	short := "/short"
	if got := TruncatePath(short, 100); got != short {
		t.Fatalf("short path should be untouched, got %q", got)
	}

	long := "/" + strings.Repeat("a", 120)
	got := TruncatePath(long, 100)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	if len(got) != 103 {
		t.Fatalf("expected 100 chars plus ellipsis, got %d", len(got))
	}

	if got := TruncatePath(long, 0); got != TruncatePath(long, DefaultPathMaxLength) {
		t.Fatalf("zero max should use the default length")
	}
}
