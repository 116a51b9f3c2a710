package app

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"WARN", slog.LevelWarn},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		got := parseLogLevel(&Config{LogLevel: tc.in})
		if got != tc.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseLogLevelNilConfig(t *testing.T) {
	if got := parseLogLevel(nil); got != slog.LevelInfo {
		t.Fatalf("nil config should default to info, got %v", got)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	logger := NewLogger(&Config{LogFormat: "json", LogLevel: "error"})
	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Fatal("info records should be dropped when LOG_LEVEL=error")
	}
	if !logger.Enabled(ctx, slog.LevelError) {
		t.Fatal("error records must pass when LOG_LEVEL=error")
	}
}
