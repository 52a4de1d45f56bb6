package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"groupsync/internal/config"
	"groupsync/internal/gs"
)

// gsHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
type gsHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	opID  string
	level slog.Leveler
	attrs []slog.Attr
}

func newHandler(w io.Writer, opID string, level slog.Leveler) *gsHandler {
	return &gsHandler{mu: &sync.Mutex{}, w: w, opID: opID, level: level}
}

func (h *gsHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *gsHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(&b, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.opID, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&b, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, "\t%s=%v", a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')

	// Sessions log from several goroutines; keep lines whole.
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *gsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &gsHandler{
		mu:    h.mu,
		w:     h.w,
		opID:  h.opID,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *gsHandler) WithGroup(string) slog.Handler { return h }

// parseLevel maps a config level name onto a slog level. Unknown names
// mean info.
func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// newLogger creates a structured logger that writes to stderr and to a
// size-rotated logDir/fileName. The returned closer releases the log file.
func newLogger(logDir, fileName, opID string, cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, fileName),
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
	}

	w := io.MultiWriter(rotating, os.Stderr)
	handler := newHandler(w, opID, parseLevel(cfg.MinLevel))
	return slog.New(handler), rotating, nil
}

// slogAdapter wraps *slog.Logger to satisfy the gs.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

func (a *slogAdapter) With(args ...any) gs.Logger {
	return &slogAdapter{l: a.l.With(args...)}
}
