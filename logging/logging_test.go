package logging

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewZapLoggerPresets(t *testing.T) {
	for _, preset := range []string{"console", "console-nocolor", "console-notime", "systemd", "production", "development"} {
		logger, err := NewZapLogger(preset, zapcore.DebugLevel)
		if err != nil {
			t.Errorf("NewZapLogger(%q) failed: %v", preset, err)
			continue
		}
		if preset == "console" && !logger.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("NewZapLogger(%q) did not enable debug level", preset)
		}
	}
}

func TestNewZapLoggerConsoleLevel(t *testing.T) {
	logger, err := NewZapLogger("systemd", zapcore.WarnLevel)
	if err != nil {
		t.Fatalf("NewZapLogger failed: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info level enabled, want disabled")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn level disabled, want enabled")
	}
}

func TestNewZapLoggerConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zap.json")
	conf := `{"level": "error", "encoding": "json", "outputPaths": ["stderr"], "errorOutputPaths": ["stderr"]}`
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		t.Fatalf("os.WriteFile failed: %v", err)
	}

	logger, err := NewZapLogger(path, zapcore.DebugLevel)
	if err != nil {
		t.Fatalf("NewZapLogger failed: %v", err)
	}
	if logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn level enabled, want disabled")
	}

	if _, err = NewZapLogger(filepath.Join(t.TempDir(), "missing.json"), zapcore.InfoLevel); err == nil {
		t.Error("NewZapLogger() succeeded with missing config file")
	}
}
