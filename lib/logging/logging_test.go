// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening log: %v", err)
	}
	defer file.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("log line %q is not JSON: %v", scanner.Text(), err)
		}
		records = append(records, record)
	}
	return records
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ptyshim.log")
	logger, closer, err := New(Config{File: path, Level: "info"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("child started", "pid", 42)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records := readRecords(t, path)
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1: %v", len(records), records)
	}
	if records[0]["msg"] != "child started" || records[0]["pid"] != float64(42) {
		t.Errorf("record = %v", records[0])
	}
}

func TestDebugOverridesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptyshim.log")
	logger, closer, err := New(Config{File: path, Level: "error", Debug: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("visible")
	closer.Close()

	if records := readRecords(t, path); len(records) != 1 {
		t.Errorf("got %d records, want the debug record", len(records))
	}
}

func TestTextFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptyshim.log")
	logger, closer, err := New(Config{File: path, Format: "text"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Warn("stream stopped", "stream", "stdout")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), `msg="stream stopped" stream=stdout`) {
		t.Errorf("text log = %q", data)
	}
}

func TestDisabledWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ptyshim.log")
	logger, closer, err := New(Config{File: path, Disabled: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Error("dropped")
	closer.Close()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("disabled logger created %s (stat err %v)", path, err)
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := New(Config{File: filepath.Join(dir, "a.log"), Level: "loud"}); err == nil {
		t.Error("unknown level accepted")
	}
	if _, _, err := New(Config{File: filepath.Join(dir, "b.log"), Format: "xml"}); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, test := range tests {
		got, err := ParseLevel(test.name)
		if err != nil || got != test.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", test.name, got, err, test.want)
		}
	}
}

func TestDefaultFileUsesCacheDirectory(t *testing.T) {
	cache := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cache)
	path, err := DefaultFile()
	if err != nil {
		t.Fatalf("DefaultFile: %v", err)
	}
	if want := filepath.Join(cache, "ptyshim", "ptyshim.log"); path != want {
		t.Errorf("DefaultFile = %q, want %q", path, want)
	}
}
