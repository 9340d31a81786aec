package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wasteops/wasteops/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      config.LogLevel
		want    zapcore.Level
		wantErr bool
	}{
		{config.LogLevelDebug, zapcore.DebugLevel, false},
		{config.LogLevelInfo, zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{config.LogLevelWarn, zapcore.WarnLevel, false},
		{config.LogLevelError, zapcore.ErrorLevel, false},
		{"trace", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wasteops.log")

	log, err := New(config.LoggingConfig{Level: config.LogLevelWarn, File: path}, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	log.Info("suppressed")
	log.Warn("kept", zap.String("lot", "L-PRK01-2026-0001"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	out := string(data)

	if strings.Contains(out, "suppressed") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "kept") || !strings.Contains(out, `"timestamp"`) {
		t.Errorf("expected warn entry with timestamp key, got %q", out)
	}
}

func TestNew_DebugOverride(t *testing.T) {
	log, err := New(config.LoggingConfig{Level: config.LogLevelError}, true)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug flag should enable debug level")
	}
}

func TestNamed_NilBase(t *testing.T) {
	if Named(nil, "lots") == nil {
		t.Fatal("Named(nil) should return a no-op logger")
	}
}
