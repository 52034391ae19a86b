package logger

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"companion/internal/config"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		if err != nil {
			t.Fatalf("parseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestSetupRejectsBadFormat(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	if err := Setup(config.LogConfig{Level: "info", Format: "xml", Output: "stdout"}); err == nil {
		t.Fatalf("expected error for xml format")
	}
	if err := Setup(config.LogConfig{Level: "info", Format: "json", Output: "file"}); err == nil {
		t.Fatalf("expected error for file output without path")
	}
	path := filepath.Join(t.TempDir(), "companion.log")
	if err := Setup(config.LogConfig{Level: "debug", Format: "json", Output: "file", FilePath: path}); err != nil {
		t.Fatalf("setup file logger: %v", err)
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger for bare context")
	}
	l := slog.Default().With("request_id", "abc")
	ctx := WithContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatalf("expected stored logger")
	}
}
