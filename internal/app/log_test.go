package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"dstash/internal/config"
)

func TestTabHandler_Handle(t *testing.T) {
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
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "file stored",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tfile stored\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "binding skipped",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\tbinding skipped\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "directory created",
			attrs:   []slog.Attr{slog.String("path", "/docs"), slog.Int64("dir_id", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tdirectory created\tpath=/docs\tdir_id=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &tabHandler{file: &buf, opID: tt.opID}

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

func TestTabHandler_EchoThreshold(t *testing.T) {
	var file, echo bytes.Buffer
	h := &tabHandler{file: &file, echo: &echo, echoMin: slog.LevelWarn, opID: "op-1"}

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, r := range []slog.Record{
		slog.NewRecord(ts, slog.LevelInfo, "quiet", 0),
		slog.NewRecord(ts, slog.LevelWarn, "loud", 0),
	} {
		if err := h.Handle(context.Background(), r); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	if got := strings.Count(file.String(), "\n"); got != 2 {
		t.Errorf("file got %d lines, want 2", got)
	}
	if strings.Contains(echo.String(), "quiet") {
		t.Errorf("echo received a record below the threshold: %q", echo.String())
	}
	if !strings.Contains(echo.String(), "loud") {
		t.Errorf("echo missing the warn record: %q", echo.String())
	}
}

func TestTabHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &tabHandler{file: &buf, opID: "op-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "transfer")}).(*tabHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("locator", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=transfer") {
		t.Errorf("expected pre-set attr component=transfer, got: %q", got)
	}
	if !strings.Contains(got, "locator=abc") {
		t.Errorf("expected record attr locator=abc, got: %q", got)
	}
}

func TestTabHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &tabHandler{file: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*tabHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestTabHandler_Enabled(t *testing.T) {
	h := &tabHandler{}
	// The log file gets every record, so every level is enabled.
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{name: "", want: slog.LevelInfo},
		{name: "debug", want: slog.LevelDebug},
		{name: "info", want: slog.LevelInfo},
		{name: "warn", want: slog.LevelWarn},
		{name: "error", want: slog.LevelError},
		{name: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("level "+tt.name, func(t *testing.T) {
			got, err := parseLevel(tt.name)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseLevel(%q) expected error", tt.name)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLevel(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.LogConfig{Dir: t.TempDir(), StderrLevel: "warn"}

	logger, f, err := newLogger(cfg, "test-op")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	cfg := config.LogConfig{Dir: t.TempDir(), StderrLevel: "shout"}

	if _, _, err := newLogger(cfg, "test-op"); err == nil {
		t.Fatal("newLogger() expected error for unknown level")
	}
}
