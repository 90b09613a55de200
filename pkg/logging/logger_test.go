// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewWritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Dir: dir, Service: "runner", Quiet: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Slog().Info("trend row appended", "task", "TrendTracks", "rows", 3)
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("log files = %d, want 1", len(entries))
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, "runner_") || !strings.HasSuffix(name, ".log") {
		t.Fatalf("log file name = %q", name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"msg":"trend row appended"`) {
		t.Fatalf("log entry missing message: %s", content)
	}
	if !strings.Contains(content, `"service":"runner"`) {
		t.Fatalf("log entry missing service attribute: %s", content)
	}
}

func TestNewBadDirFails(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(file, []byte("x"), 0640); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	if _, err := New(Config{Dir: file}); err == nil {
		t.Fatal("New with a file as log dir should fail")
	}
}

func TestCloseWithoutFile(t *testing.T) {
	logger, err := New(Config{Quiet: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
