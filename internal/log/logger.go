// Package log implements structured logging using slog.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/ledping/internal/config"
)

var (
	mu      sync.Mutex
	current = slog.Default()
	file    *lumberjack.Logger

	// level is shared by every logger Init builds, so SetLevel reaches loggers already handed out.
	level = new(slog.LevelVar)
)

// Init initializes the global logger based on configuration.
func Init(cfg config.LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	lvl, err := parseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	// stdout is always included.
	writers := []io.Writer{os.Stdout}

	var fw *lumberjack.Logger
	if cfg.Outputs.File.Enabled {
		w, err := createFileWriter(cfg.Outputs.File)
		if err != nil {
			return fmt.Errorf("failed to create file output: %w", err)
		}
		fw = w
		writers = append(writers, w)
	}

	logger, err := build(cfg.Format, io.MultiWriter(writers...), level)
	if err != nil {
		if fw != nil {
			fw.Close()
		}
		return err
	}

	// Release the previous file before swapping it out
	if file != nil {
		file.Close()
	}
	file = fw
	level.Set(lvl)
	current = logger
	slog.SetDefault(logger)

	return nil
}

// Get returns the logger configured by the last successful Init.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return current
}

// Flush closes the rotating file output, if any. Later writes reopen it.
func Flush() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
	}
}

// SetLevel changes the level of every logger built by Init.
func SetLevel(levelStr string) error {
	lvl, err := parseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	level.Set(lvl)
	return nil
}

// build creates a logger writing to w in the given format.
func build(format string, w io.Writer, leveler slog.Leveler) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: leveler,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be json or text)", format)
	}

	return slog.New(handler), nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", levelStr)
	}
}

// createFileWriter creates a lumberjack file writer for log rotation.
func createFileWriter(fc config.FileOutputConfig) (*lumberjack.Logger, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxBackups: fc.Rotation.MaxBackups,
		MaxAge:     fc.Rotation.MaxAgeDays,
		Compress:   fc.Rotation.Compress,
	}, nil
}
