// Package logging provides the dual-destination log sink used by every
// component: one human-readable line per event, mirrored to the console and
// to an append-only file. Writes are best-effort; a sink failure never
// propagates to the caller.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LevelSuccess sits between INFO and WARN so that a level filter admitting
// INFO also admits SUCCESS.
const LevelSuccess = slog.Level(2)

type Handler struct {
	mu      *sync.Mutex
	console io.Writer
	file    io.Writer
	level   slog.Leveler
	attrs   []slog.Attr
}

// New builds a logger writing to stderr and to the append-only file at path.
// If the file cannot be opened the logger degrades to console-only rather
// than failing startup. The returned close func releases the file.
func New(level, path string) (*slog.Logger, func(), error) {
	h := &Handler{
		mu:      &sync.Mutex{},
		console: os.Stderr,
		level:   parseLevel(level),
	}

	closeFile := func() {}
	if path != "" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "voxbatch: cannot open log file %s: %v (console only)\n", path, err)
		} else {
			h.file = f
			closeFile = func() { _ = f.Close() }
		}
	}

	return slog.New(h), closeFile, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelName(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= LevelSuccess:
		return "SUCCESS"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	b.WriteString(" [")
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, a)
		return true
	})
	b.WriteByte('\n')
	line := b.String()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.console != nil {
		_, _ = io.WriteString(h.console, line)
	}
	if h.file != nil {
		_, _ = io.WriteString(h.file, line)
	}
	return nil
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteByte(' ')
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(a.Value.String())
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup is accepted but flattened; the line format has no nesting.
func (h *Handler) WithGroup(string) slog.Handler { return h }

// Success logs at the SUCCESS severity.
func Success(log *slog.Logger, msg string, args ...any) {
	log.Log(context.Background(), LevelSuccess, msg, args...)
}
