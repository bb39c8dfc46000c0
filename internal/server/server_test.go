package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/funnyzak/gqltap/internal/config"
)

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Fatal(string, ...interface{}) {}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 38889, CORSAllowOrigin: "*"},
		Log:    config.LogConfig{Level: "info"},
		Session: config.SessionConfig{
			IgnoreMethods:    []string{"OPTIONS"},
			PathMaxLength:    100,
			TraceURLTemplate: "https://app.datadoghq.eu/apm/trace/{traceId}",
			Filters:          []string{"all"},
		},
		Storage: config.StorageConfig{Driver: "memory", MaxRows: 100},
		Output:  config.OutputConfig{Mode: "console", Silence: true, Locale: "en"},
		Web: config.WebConfig{
			Enable:    true,
			AdminPath: "/api",
			Export:    config.WebExportConfig{Enable: true, Formats: []string{"json", "csv", "txt"}},
		},
		Metrics: config.MetricsConfig{Enable: true, Path: "/metrics"},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := New(cfg, noopLogger{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

const graphQLEvent = `{"startedDateTime":"2026-10-17T09:00:00Z","time":420,` +
	`"request":{"method":"POST","url":"https://api.example.com/graphql","headers":[],` +
	`"postData":{"mimeType":"application/json","text":"{\"query\":\"query GetUser { a }\",\"variables\":{}}"}},` +
	`"response":{"status":200}}`

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	if code, body := get(t, ts.URL+"/healthz"); code != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Fatalf("unexpected health response %d %s", code, body)
	}

	resp, err := http.Post(ts.URL+"/api/events", "application/json", strings.NewReader(graphQLEvent))
	if err != nil {
		t.Fatalf("post event: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from events, got %d", resp.StatusCode)
	}

	code, body := get(t, ts.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("metrics status %d", code)
	}
	if !strings.Contains(body, `gqltap_requests_total{bucket="warning",category="graphql"} 1`) {
		t.Fatalf("metrics missing request counter:\n%s", body)
	}

	snap := srv.Controller().Stats()
	if snap.GraphQL.Count != 1 || snap.Slow.WarningCount != 1 {
		t.Fatalf("unexpected stats %+v", snap)
	}
}

func TestMetricsDisabled(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Metrics.Enable = false })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	if code, _ := get(t, ts.URL+"/metrics"); code != http.StatusNotFound {
		t.Fatalf("expected 404 when metrics disabled, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Server.CORSAllowOrigin = "chrome-extension://abc" })
	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abc" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if srv.Controller().Stats().GraphQL.Count != 0 {
		t.Fatalf("preflight must not be recorded")
	}
}

func TestLiveFeedThroughMiddleware(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var hello map[string]interface{}
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello["type"] != "hello" {
		t.Fatalf("expected hello, got %v", hello)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, body := get(t, ts.URL+"/metrics")
		if strings.Contains(body, "gqltap_live_clients 1") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("live clients gauge never reached 1:\n%s", body)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestReplayNavigatesBetweenPages(t *testing.T) {
	srv := newTestServer(t, nil)
	har := `{"log":{"entries":[
		{"pageref":"page_1","startedDateTime":"2026-10-17T09:00:00Z","time":900,"request":{"method":"GET","url":"https://auth.example.com/oauth/token","headers":[]},"response":{"status":200}},
		{"pageref":"page_1","startedDateTime":"2026-10-17T09:00:01Z","time":1,"request":{"method":"OPTIONS","url":"https://api.example.com/graphql","headers":[]},"response":{"status":204}},
		{"pageref":"page_2","startedDateTime":"2026-10-17T09:00:02Z","time":20,"request":{"method":"GET","url":"https://api.example.com/user/access","headers":[]},"response":{"status":200}}
	]}}`

	summary, err := srv.Replay(context.Background(), strings.NewReader(har))
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if summary.Entries != 3 || summary.Accepted != 2 || summary.Dropped != 1 || summary.Navigations != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Stats.Token.Count != 0 || summary.Stats.Slow.CriticalCount != 0 {
		t.Fatalf("navigation should have reset stats, got %+v", summary.Stats)
	}
	if summary.Stats.Access.Count != 1 {
		t.Fatalf("expected one access request after navigation, got %+v", summary.Stats.Access)
	}
}

func TestReplayRejectsEmptyInput(t *testing.T) {
	srv := newTestServer(t, nil)
	if _, err := srv.Replay(context.Background(), strings.NewReader("  ")); err == nil {
		t.Fatalf("expected error for empty replay input")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.Server.Port = 0 })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}
