package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"groupsync/internal/config"
)

func TestGsHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "server-1",
			level:   slog.LevelInfo,
			message: "event appended",
			want:    "2024-06-15T14:30:45Z\tINFO\tserver-1\tevent appended\n",
		},
		{
			name:    "debug level",
			opID:    "client-2",
			level:   slog.LevelDebug,
			message: "sync cycle completed",
			want:    "2024-06-15T14:30:45Z\tDEBUG\tclient-2\tsync cycle completed\n",
		},
		{
			name:    "with record attrs",
			opID:    "client-3",
			level:   slog.LevelInfo,
			message: "file pulled",
			attrs:   []slog.Attr{slog.String("path", "notes/a.md"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\tclient-3\tfile pulled\tpath=notes/a.md\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := newHandler(&buf, tt.opID, slog.LevelDebug)

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestGsHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newHandler(&buf, "op-1", slog.LevelInfo)

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "vault")}).(*gsHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=vault") {
		t.Errorf("expected pre-set attr component=vault, got: %q", got)
	}
	if !strings.Contains(got, "key=abc") {
		t.Errorf("expected record attr key=abc, got: %q", got)
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestGsHandler_Enabled(t *testing.T) {
	h := newHandler(nil, "op", parseLevel("warn"))

	for level, want := range map[slog.Level]bool{
		slog.LevelDebug: false,
		slog.LevelInfo:  false,
		slog.LevelWarn:  true,
		slog.LevelError: true,
	} {
		if got := h.Enabled(context.Background(), level); got != want {
			t.Errorf("Enabled(%v) = %v, want %v", level, got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, closer, err := newLogger(dir, "gs-test.log", "test-op", config.LogConfig{MinLevel: "info"})
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	adapter := &slogAdapter{l: logger}
	adapter.With("group", 1).Info("hello", "k", "v")
	adapter.Debug("filtered")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "gs-test.log"))
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, "\ttest-op\thello\tgroup=1\tk=v\n") {
		t.Errorf("log file = %q", got)
	}
	if strings.Contains(got, "filtered") {
		t.Errorf("debug record written at info level: %q", got)
	}
}
