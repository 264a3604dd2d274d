package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panoguide.log")

	logger, closeFn, err := New(Config{Level: "debug", File: path, MaxSizeMB: 1}, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("Tool call finished", zap.String("tool", "rotate_view"))
	closeFn()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("log entry is not JSON: %s", data)
	}
	if entry["msg"] != "Tool call finished" || entry["tool"] != "rotate_view" || entry["level"] != "debug" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panoguide.log")

	logger, closeFn, err := New(Config{Level: "warn", File: path}, true)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	closeFn()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
		t.Errorf("log file = %s", data)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, _, err := New(Config{Level: "loud"}, false); err == nil {
		t.Error("New() expected error for an unknown level")
	}
}
