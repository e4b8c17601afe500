// Package logging builds zap loggers from presets or JSON configuration files.
package logging

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapLogger returns a new [*zap.Logger] built from the named preset or
// from the JSON zap configuration file at the given path.
//
// Available presets: console, console-nocolor, console-notime, systemd, production, development.
// The level only applies to the console and systemd presets.
func NewZapLogger(preset string, level zapcore.Level) (*zap.Logger, error) {
	switch preset {
	case "console":
		return newConsoleLogger(level, zapcore.CapitalColorLevelEncoder, zapcore.ISO8601TimeEncoder), nil
	case "console-nocolor":
		return newConsoleLogger(level, zapcore.CapitalLevelEncoder, zapcore.ISO8601TimeEncoder), nil
	case "console-notime", "systemd":
		return newConsoleLogger(level, zapcore.CapitalLevelEncoder, nil), nil
	case "production":
		return zap.NewProduction()
	case "development":
		return zap.NewDevelopment()
	}

	data, err := os.ReadFile(preset)
	if err != nil {
		return nil, fmt.Errorf("unknown preset or unreadable zap config file %q: %w", preset, err)
	}

	var zc zap.Config
	if err = json.Unmarshal(data, &zc); err != nil {
		return nil, fmt.Errorf("failed to parse zap config %s: %w", preset, err)
	}
	return zc.Build()
}

func newConsoleLogger(level zapcore.Level, levelEncoder zapcore.LevelEncoder, timeEncoder zapcore.TimeEncoder) *zap.Logger {
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = levelEncoder
	ec.EncodeTime = timeEncoder
	if timeEncoder == nil {
		ec.TimeKey = zapcore.OmitKey
	}
	ec.CallerKey = zapcore.OmitKey
	ec.StacktraceKey = zapcore.OmitKey

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}
