package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUninitializedIsSilent(t *testing.T) {
	Close()
	if GetWriter() != io.Discard {
		t.Error("expected io.Discard before Init")
	}
	// Must not panic
	Info("hello %s", "world")
	Error("boom")
}

func TestInit_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "droid-agent.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	Info("connected to %s", "emulator-5554")
	Warn("slow command")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if entry["message"] != "connected to emulator-5554" {
		t.Errorf("unexpected message: %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("unexpected level: %v", entry["level"])
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(Options{Console: &buf, Level: "info"}); err != nil {
		t.Fatal(err)
	}
	defer Close()

	Debug("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug line written at info level")
	}

	SetLevel("debug")
	Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected debug line after SetLevel, got %q", buf.String())
	}

	SetLevel("bogus")
	Debug("still visible")
	if !strings.Contains(buf.String(), "still visible") {
		t.Error("unknown level name should be ignored")
	}
	SetLevel("info")
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(Options{Console: &buf}); err != nil {
		t.Fatal(err)
	}
	defer Close()

	log := Component("visual")
	log.Info().Msg("matched")
	if !strings.Contains(buf.String(), "visual") || !strings.Contains(buf.String(), "matched") {
		t.Errorf("expected module field, got %q", buf.String())
	}
}

func TestInit_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := Init(filepath.Join(blocker, "sub", "x.log")); err == nil {
		t.Error("expected error for a path under a regular file")
	}
}
