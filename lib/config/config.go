// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/ptyshim/backchannel"
)

// EnvPrefix prefixes every environment variable the shim reads.
const EnvPrefix = "PTYSHIM"

// Streams that may be listed in Config.Streams.
var knownStreams = []string{"stdout", "stderr"}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"json", "text"}
)

// Config is the complete shim configuration.
type Config struct {
	// Streams lists the child output streams that are filtered. Streams
	// not listed are inherited by the child unchanged.
	Streams []string `yaml:"streams"`

	// OSC52 configures clipboard capture.
	OSC52 OSC52Config `yaml:"osc52"`

	// Buffer configures the shared buffer pool.
	Buffer BufferConfig `yaml:"buffer"`

	// Queue configures the pipeline queues.
	Queue QueueConfig `yaml:"queue"`

	// DrainTimeout bounds the wait for the relays after the child exits.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// MetricsFile, when set, receives a Prometheus text-format snapshot
	// of the counters when the shim exits.
	MetricsFile string `yaml:"metrics_file"`

	// Log configures the shim's own log file.
	Log LogConfig `yaml:"log"`

	// Debug forces debug-level logging.
	Debug bool `yaml:"debug"`
}

// OSC52Config configures clipboard capture.
type OSC52Config struct {
	// Limit is the largest payload, in bytes, that is reported.
	Limit int `yaml:"limit"`

	// Rate is the sustained number of captures per second reported per
	// stream. Zero disables rate limiting.
	Rate float64 `yaml:"rate"`

	// Burst is the number of captures that may be reported back to back.
	Burst int `yaml:"burst"`
}

// BufferConfig configures the buffer pool.
type BufferConfig struct {
	Size         int `yaml:"size"`
	MinChunk     int `yaml:"min_chunk"`
	PoolCapacity int `yaml:"pool_capacity"`
}

// QueueConfig configures queue capacities.
type QueueConfig struct {
	Length            int `yaml:"length"`
	BackChannelLength int `yaml:"back_channel_length"`
}

// LogConfig configures the rotating log file.
type LogConfig struct {
	// File is the log path. Empty selects the default under the user
	// cache directory.
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Disabled   bool   `yaml:"disabled"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Streams: []string{"stdout", "stderr"},
		OSC52: OSC52Config{
			Limit: 1 << 20,
			Rate:  8,
			Burst: 16,
		},
		Buffer: BufferConfig{
			Size:         16384,
			MinChunk:     256,
			PoolCapacity: 32,
		},
		Queue: QueueConfig{
			Length:            16,
			BackChannelLength: 8,
		},
		DrainTimeout: 5 * time.Second,
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// environment holds the variables that override file values. Pointer
// and slice fields stay nil when the variable is unset.
//
// The tags carry the full names and Process runs without a prefix:
// with a prefix, envconfig falls back to the bare tag name, and bare
// DEBUG or LOG_LEVEL in a user's shell must not reach the shim.
type environment struct {
	Config      string   `envconfig:"PTYSHIM_CONFIG"`
	Streams     []string `envconfig:"PTYSHIM_STREAMS"`
	OSC52Limit  *int     `envconfig:"PTYSHIM_OSC52_LIMIT"`
	LogLevel    string   `envconfig:"PTYSHIM_LOG_LEVEL"`
	LogFile     string   `envconfig:"PTYSHIM_LOG_FILE"`
	MetricsFile string   `envconfig:"PTYSHIM_METRICS_FILE"`
	Debug       *bool    `envconfig:"PTYSHIM_DEBUG"`
}

// Load builds the configuration from defaults, an optional YAML file,
// and PTYSHIM_* environment variables, in increasing precedence.
//
// The file is path if non-empty, otherwise PTYSHIM_CONFIG. With
// neither set, no file is read. A named file that cannot be read is an
// error. The result is not validated; callers apply command-line
// overrides first and then call Validate.
func Load(path string) (*Config, error) {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("reading %s_* environment: %w", EnvPrefix, err)
	}
	if path == "" {
		path = env.Config
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnvironment(env)
	return cfg, nil
}

// LoadFile loads defaults overlaid with the YAML file at path. The
// environment is not consulted.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironment(env environment) {
	if env.Streams != nil {
		c.Streams = env.Streams
	}
	if env.OSC52Limit != nil {
		c.OSC52.Limit = *env.OSC52Limit
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.LogFile != "" {
		c.Log.File = env.LogFile
	}
	if env.MetricsFile != "" {
		c.MetricsFile = env.MetricsFile
	}
	if env.Debug != nil {
		c.Debug = *env.Debug
	}
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	for index, name := range c.Streams {
		if !slices.Contains(knownStreams, name) {
			errs = append(errs, fmt.Errorf("streams: unknown stream %q (want one of %v)", name, knownStreams))
		} else if slices.Contains(c.Streams[:index], name) {
			errs = append(errs, fmt.Errorf("streams: %q listed twice", name))
		}
	}

	if c.OSC52.Limit <= 0 {
		errs = append(errs, fmt.Errorf("osc52.limit must be positive, got %d", c.OSC52.Limit))
	} else if c.OSC52.Limit > backchannel.MaxClipboardPayload {
		errs = append(errs, fmt.Errorf("osc52.limit must not exceed %d (one back-channel frame), got %d",
			backchannel.MaxClipboardPayload, c.OSC52.Limit))
	}
	if c.OSC52.Rate < 0 {
		errs = append(errs, fmt.Errorf("osc52.rate must not be negative, got %g", c.OSC52.Rate))
	}
	if c.OSC52.Burst < 0 {
		errs = append(errs, fmt.Errorf("osc52.burst must not be negative, got %d", c.OSC52.Burst))
	}

	if c.Buffer.Size <= 0 {
		errs = append(errs, fmt.Errorf("buffer.size must be positive, got %d", c.Buffer.Size))
	}
	if c.Buffer.MinChunk <= 0 || c.Buffer.MinChunk >= c.Buffer.Size {
		errs = append(errs, fmt.Errorf("buffer.min_chunk must be between 1 and buffer.size-1, got %d", c.Buffer.MinChunk))
	}
	if c.Buffer.PoolCapacity < 0 {
		errs = append(errs, fmt.Errorf("buffer.pool_capacity must not be negative, got %d", c.Buffer.PoolCapacity))
	}

	if c.Queue.Length < 1 {
		errs = append(errs, fmt.Errorf("queue.length must be at least 1, got %d", c.Queue.Length))
	}
	if c.Queue.BackChannelLength < 1 {
		errs = append(errs, fmt.Errorf("queue.back_channel_length must be at least 1, got %d", c.Queue.BackChannelLength))
	}

	if c.DrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("drain_timeout must be positive, got %s", c.DrainTimeout))
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of %v, got %q", logLevels, c.Log.Level))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of %v, got %q", logFormats, c.Log.Format))
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		errs = append(errs, errors.New("log rotation limits must not be negative"))
	}

	return errors.Join(errs...)
}
