// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the shim's slog logger.
//
// The shim's stdout and stderr belong to the terminal, so logs go to a
// size-rotated file instead (via lumberjack), or nowhere when logging
// is disabled.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the log destination and verbosity.
type Config struct {
	// File is the log path. Empty selects DefaultFile.
	File string

	// Level is "debug", "info", "warn", or "error". Empty means info.
	Level string

	// Format is "json" (default) or "text".
	Format string

	// Rotation limits, passed to lumberjack. Zero uses its defaults.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	// Disabled discards all records.
	Disabled bool

	// Debug forces the debug level regardless of Level.
	Debug bool
}

// DefaultFile returns the default log path under the user cache
// directory ($XDG_CACHE_HOME/ptyshim/ptyshim.log on Linux).
func DefaultFile() (string, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache directory: %w", err)
	}
	return filepath.Join(cache, "ptyshim", "ptyshim.log"), nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger for cfg and the closer for its file. The closer
// must be called before the process exits.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	if cfg.Disabled {
		return slog.New(slog.DiscardHandler), nopCloser{}, nil
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}

	path := cfg.File
	if path == "" {
		if path, err = DefaultFile(); err != nil {
			return nil, nil, err
		}
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "", "json":
		handler = slog.NewJSONHandler(writer, options)
	case "text":
		handler = slog.NewTextHandler(writer, options)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(handler), writer, nil
}
