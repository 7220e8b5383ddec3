package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWritesJSONToStderrSink(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "debug", Stderr: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Debug("phase entered", zap.String("phase", "validating"))
	_ = log.Sync()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "phase entered" || entry["phase"] != "validating" || entry["level"] != "debug" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestLevelFiltersAndFileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "bera.log")
	log, err := New(Config{Level: "warn", File: path, Stderr: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	log.Info("dropped")
	log.Warn("kept")
	_ = log.Sync()

	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected stderr output: %q", buf.String())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "kept") {
		t.Fatalf("expected file sink to receive entry, got %q", raw)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected unknown level error")
	}
}
