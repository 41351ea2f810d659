// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging configures structured logging for fixchain components.
//
// The package is built on Go's standard library slog package. Library
// code throughout the repository logs through the process-default
// slog.Logger; this package owns constructing and installing that
// default so the CLI (and tests) control destinations in one place:
//
//   - Default: stderr output in text format (Unix CLI convention)
//   - Optional: file logging, always JSON, with automatic directory
//     creation and per-day file rotation by name
//
// # Basic Usage
//
//	logger, err := logging.Setup(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.fixchain/logs",
//	    Service: "fixchain",
//	})
//	if err != nil { ... }
//	defer logger.Close()
//
// After Setup, every slog.Info / slog.Warn / slog.Error call in the
// process goes to the configured destinations with the service
// attribute attached.
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers
// must ensure tokens and secrets are not logged:
//
//	// BAD: logs sensitive data
//	slog.Info("auth", "api_key", key)
//
//	// GOOD: log metadata only
//	slog.Info("auth", "api_key_present", key != "")
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity. Levels follow the slog convention and
// are ordered Debug < Info < Warn < Error; setting a minimum level
// filters out everything below it.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages: session start,
	// round commits, terminal reasons.
	LevelInfo

	// LevelWarn is for soft failures the session survives: analyzer
	// drops, retrieval degradation, skipped persistence.
	LevelWarn

	// LevelError is for operation failures. The process continues.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error",
// case-insensitive) to a Level. Unknown names fall back to LevelInfo.
func ParseLevel(name string) Level {
	switch name {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures logging destinations. The zero value logs Info+
// messages to stderr in text format.
type Config struct {
	// Level sets the minimum log level. Messages below it are
	// discarded. Default: LevelInfo.
	Level Level

	// LogDir enables file logging to the given directory. Logs then go
	// to both stderr and a "{Service}_{YYYY-MM-DD}.log" JSON file. The
	// directory is created with 0750 permissions if absent. A leading
	// ~ expands to the user's home directory.
	LogDir string

	// Service names the component generating logs. Included in every
	// entry as the "service" attribute. Default: "" (no attribute).
	Service string

	// JSON switches stderr output from human-readable text to JSON.
	// File logs are always JSON regardless of this setting.
	JSON bool

	// Quiet disables stderr output. Logs then only go to file (if
	// LogDir is set). Useful when stdout carries machine output that
	// must stay clean.
	Quiet bool
}

// =============================================================================
// Logger
// =============================================================================

// Logger owns the logging destinations built by Setup. Close releases
// the log file handle; the logger itself is the standard slog.Logger
// and is safe for concurrent use.
type Logger struct {
	slog *slog.Logger
	file *os.File
}

// Setup builds the logger described by config and installs it as the
// process default via slog.SetDefault.
//
// Inputs:
//
//	config - Destination and level configuration.
//
// Outputs:
//
//	*Logger - Must be closed when the process finishes if file logging
//	is enabled.
//	error - Non-nil when the log directory or file cannot be created.
//	stderr logging is never the error source.
func Setup(config Config) (*Logger, error) {
	logger, err := build(config)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger.slog)
	return logger, nil
}

// build constructs a Logger without touching process globals. Split
// from Setup so tests can exercise destination wiring in isolation.
func build(config Config) (*Logger, error) {
	var handlers []slog.Handler
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	logger := &Logger{}

	if config.LogDir != "" {
		logDir := expandPath(config.LogDir)
		if err := os.MkdirAll(logDir, 0750); err != nil {
			return nil, fmt.Errorf("creating log directory %s: %w", logDir, err)
		}
		serviceName := config.Service
		if serviceName == "" {
			serviceName = "fixchain"
		}
		filename := fmt.Sprintf("%s_%s.log", serviceName, time.Now().Format("2006-01-02"))
		logPath := filepath.Join(logDir, filename)

		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", logPath, err)
		}
		logger.file = file
		// File logs are always JSON: they exist for machines.
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		// Quiet with no file still needs a sink for Enabled checks.
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.Level(100),
		})
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", config.Service),
		})
	}

	logger.slog = slog.New(handler)
	return logger, nil
}

// Slog returns the constructed slog.Logger. Setup has already
// installed it as the default; this accessor exists for callers that
// want an explicit handle instead.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close syncs and closes the log file, if file logging is enabled.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans out log records to multiple slog handlers, which
// enables simultaneous stderr text and file JSON output.
type multiHandler struct {
	handlers []slog.Handler
}

// Enabled returns true if any handler is enabled for the level.
func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle sends the record to all enabled handlers.
func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WithAttrs returns a new handler with additional attributes.
func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

// WithGroup returns a new handler with a group name.
func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
