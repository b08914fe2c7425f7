package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToPipes(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo)
	log.Debug("hidden")
	log.Info("session started", slog.Int("block_size", 2048))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["msg"] != "session started" || rec["block_size"] != float64(2048) {
		t.Errorf("record = %v", rec)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunecoach.log")
	log, closer, err := Open(path, slog.LevelDebug)
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("stall", slog.String("session", "1"))
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"stall"`) {
		t.Errorf("log file = %q", data)
	}
}

func TestOpenEmptyPathDiscards(t *testing.T) {
	log, closer, err := Open("", slog.LevelDebug)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("nowhere")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
}
