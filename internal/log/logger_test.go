package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"firestige.xyz/ledping/internal/config"
)

func TestParseLevelValid(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := parseLevel(tt.input)
			if err != nil {
				t.Errorf("parseLevel(%q) returned error: %v", tt.input, err)
			}
			if level != tt.expected {
				t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, level, tt.expected)
			}
		})
	}
}

func TestParseLevelInvalid(t *testing.T) {
	for _, input := range []string{"invalid", "trace", "fatal", ""} {
		t.Run(input, func(t *testing.T) {
			if _, err := parseLevel(input); err == nil {
				t.Errorf("parseLevel(%q) should return error, got nil", input)
			}
		})
	}
}

func TestInitStdoutOnly(t *testing.T) {
	err := Init(config.LogConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	if Get() == nil {
		t.Fatal("Expected logger to be set, got nil")
	}
	if Get() != slog.Default() {
		t.Error("Init should install the logger as slog default")
	}
}

func TestInitWithFileOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ledping.log")

	cfg := config.LogConfig{
		Level:  "debug",
		Format: "text",
		Outputs: config.LogOutputsConfig{
			File: config.FileOutputConfig{
				Enabled: true,
				Path:    logPath,
				Rotation: config.RotationConfig{
					MaxSizeMB:  1,
					MaxBackups: 1,
					MaxAgeDays: 1,
				},
			},
		},
	}

	if err := Init(cfg); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(Flush)

	Get().Info("received message", "from", "127.0.0.1:5000")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Log file was not created at %s: %v", logPath, err)
	}
	if !strings.Contains(string(data), "received message") {
		t.Errorf("Log file should contain the message, got %q", data)
	}
}

func TestInitErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr string
	}{
		{"invalid level", config.LogConfig{Level: "invalid", Format: "json"}, "invalid log level"},
		{"invalid format", config.LogConfig{Level: "info", Format: "xml"}, "unsupported log format"},
		{
			"missing file path",
			config.LogConfig{
				Level:   "info",
				Format:  "json",
				Outputs: config.LogOutputsConfig{File: config.FileOutputConfig{Enabled: true}},
			},
			"path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Init(tt.cfg)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuildLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger, err := build("json", &buf, slog.LevelWarn)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message", "reply_to", "10.0.0.2:9999")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("Messages below warn should be filtered out, got %q", output)
	}
	if !strings.Contains(output, `"msg":"warn message"`) {
		t.Error("JSON output should contain warn message")
	}
	if !strings.Contains(output, `"reply_to":"10.0.0.2:9999"`) {
		t.Error("JSON output should contain reply_to field")
	}
}

func TestBuildTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger, err := build("TEXT", &buf, slog.LevelInfo)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	logger.Info("led on", "state", "pulsing")

	if !strings.Contains(buf.String(), "state=pulsing") {
		t.Errorf("Text output should contain key=value, got %q", buf.String())
	}
}

func TestSetLevelReachesExistingLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := build("text", &buf, level)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(func() { level.Set(slog.LevelInfo) })

	if err := SetLevel("error"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	logger.Warn("hidden")
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	logger.Debug("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("warn message should be filtered at error level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("debug message should pass after SetLevel(debug)")
	}

	if err := SetLevel("verbose"); err == nil {
		t.Error("SetLevel should reject unknown levels")
	}
}

func TestFlushWithoutFile(t *testing.T) {
	if err := Init(config.LogConfig{Level: "info", Format: "text"}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Flush()
}
