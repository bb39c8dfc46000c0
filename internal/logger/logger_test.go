package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/funnyzak/gqltap/internal/config"
)

func TestJSONLoggerFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newLogger(&config.LogConfig{Level: "debug"}, "json", buf)

	log.Info("Request handled",
		"category", "graphql",
		"duration_ms", 812.5,
		"count", 3,
		"slow", true,
		"elapsed", 2*time.Second,
		"error", errors.New("boom"),
		"dangling",
	)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "Request handled" || line["level"] != "info" {
		t.Fatalf("unexpected envelope %v", line)
	}
	if line["category"] != "graphql" || line["count"] != float64(3) || line["slow"] != true {
		t.Fatalf("unexpected fields %v", line)
	}
	if line["error"] != "boom" {
		t.Fatalf("error field not rendered: %v", line["error"])
	}
	if _, ok := line["dangling"]; ok {
		t.Fatalf("odd trailing key should be ignored")
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := newLogger(&config.LogConfig{Level: "warn"}, "json", buf)
	log.Info("hidden")
	log.Debug("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	log = newLogger(&config.LogConfig{Level: "nonsense"}, "json", buf)
	log.Debug("hidden")
	log.Info("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("invalid level should fall back to info")
	}
}

func TestFileLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gqltap.log")
	log := newLogger(&config.LogConfig{
		Level: "info",
		FileLogging: config.FileLogConfig{
			Enable:    true,
			Path:      path,
			MaxSizeMB: 1,
		},
	}, "console", &bytes.Buffer{})
	log.Info("to file", "row_id", "ABC")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"row_id":"ABC"`) {
		t.Fatalf("file log missing field: %s", data)
	}
}
