package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
		{"bogus", zapcore.InfoLevel, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			core := build(zap.NewAtomicLevelAt(parseLevel(tt.level)), "json").Core()
			if !core.Enabled(tt.enabled) {
				t.Errorf("level %s should enable %v", tt.level, tt.enabled)
			}
			if core.Enabled(tt.muted) {
				t.Errorf("level %s should not enable %v", tt.level, tt.muted)
			}
		})
	}
}

func TestLoggingBeforeInit(t *testing.T) {
	defaultLogger = nil
	Debug("ignored %d", 1)
	Info("ignored")
	Warn("ignored")
	Error("ignored")
	Sync()
}

func TestInitText(t *testing.T) {
	Init("debug", "text")
	defer func() { defaultLogger = nil }()
	if defaultLogger == nil {
		t.Fatal("Init did not set the default logger")
	}
	Debug("text logger ready: %s", "ok")
}

func TestSetLevel(t *testing.T) {
	Init("info", "json")
	defer func() { defaultLogger = nil }()
	core := defaultLogger.Desugar().Core()
	if core.Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be muted at info")
	}
	SetLevel("debug")
	if !core.Enabled(zapcore.DebugLevel) {
		t.Error("SetLevel should enable debug on the existing logger")
	}
	SetLevel("error")
	if core.Enabled(zapcore.WarnLevel) {
		t.Error("SetLevel(error) should mute warn")
	}
}
