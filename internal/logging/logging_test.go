package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
)

func newTestHandler(console, file *strings.Builder, level slog.Level) *Handler {
	return &Handler{
		mu:      &sync.Mutex{},
		console: console,
		file:    file,
		level:   level,
	}
}

func TestLineFormat(t *testing.T) {
	var console, file strings.Builder
	log := slog.New(newTestHandler(&console, &file, slog.LevelInfo))

	log.Info("endpoint is healthy", slog.Int("attempt", 3))

	line := console.String()
	pattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} \[INFO\] endpoint is healthy attempt=3\n$`)
	if !pattern.MatchString(line) {
		t.Fatalf("unexpected line format: %q", line)
	}
	if file.String() != line {
		t.Fatalf("file and console lines differ: %q vs %q", file.String(), line)
	}
}

func TestSuccessLevel(t *testing.T) {
	var console, file strings.Builder
	log := slog.New(newTestHandler(&console, &file, slog.LevelInfo))

	Success(log, "batch complete")

	if !strings.Contains(console.String(), "[SUCCESS] batch complete") {
		t.Fatalf("expected SUCCESS line, got %q", console.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var console, file strings.Builder
	log := slog.New(newTestHandler(&console, &file, slog.LevelWarn))

	log.Info("quiet")
	Success(log, "also quiet")
	log.Warn("loud")

	out := console.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("expected info and success suppressed, got %q", out)
	}
	if !strings.Contains(out, "[WARN] loud") {
		t.Fatalf("expected warn line, got %q", out)
	}
}

func TestWithAttrsCarriesComponent(t *testing.T) {
	var console, file strings.Builder
	log := slog.New(newTestHandler(&console, &file, slog.LevelInfo))

	log.With(slog.String("component", "health")).Warn("endpoint not ready")

	if !strings.Contains(console.String(), "component=health") {
		t.Fatalf("expected component attr, got %q", console.String())
	}
}

func TestNewAppendsToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voxbatch.log")

	log, closeLog, err := New("info", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info("first run")
	closeLog()

	log, closeLog, err = New("info", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Info("second run")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "first run") || !strings.Contains(string(data), "second run") {
		t.Fatalf("expected both runs appended, got %q", string(data))
	}
}
