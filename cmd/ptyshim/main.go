// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/ptyshim/lib/arena"
	"github.com/bureau-foundation/ptyshim/lib/config"
	"github.com/bureau-foundation/ptyshim/lib/logging"
	"github.com/bureau-foundation/ptyshim/lib/metrics"
	"github.com/bureau-foundation/ptyshim/lib/process"
	"github.com/bureau-foundation/ptyshim/lib/version"
	"github.com/bureau-foundation/ptyshim/supervisor"
)

const usageLine = "usage: ptyshim [flags] <fd> [--] <command> [args...]"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// options is the parsed command line.
type options struct {
	configPath  string
	showVersion bool

	// Overrides, applied only when the flag was given.
	streams     []string
	osc52Limit  int
	logLevel    string
	logFile     string
	metricsFile string
	changed     func(name string) bool

	backChannelFD int
	command       []string
}

// parseArgs parses the command line. Flags must precede the
// back-channel descriptor; everything after the descriptor (and an
// optional "--") is the child command, passed through untouched.
func parseArgs(args []string, help io.Writer) (*options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("ptyshim", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(help)
	flagSet.Usage = func() {
		fmt.Fprintf(help, "%s\n\nFlags:\n%s", usageLine, flagSet.FlagUsages())
	}
	flagSet.StringVar(&opts.configPath, "config", "", "YAML configuration file (default: $PTYSHIM_CONFIG)")
	flagSet.StringSliceVar(&opts.streams, "streams", nil, "child streams to filter: stdout, stderr, or both")
	flagSet.IntVar(&opts.osc52Limit, "osc52-limit", 0, "largest clipboard payload reported, in bytes")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&opts.logFile, "log-file", "", "log file path")
	flagSet.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus text metrics here on exit")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	opts.changed = flagSet.Changed
	if opts.showVersion {
		return &opts, nil
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return nil, errors.New("missing back-channel descriptor")
	}
	fd, err := strconv.Atoi(rest[0])
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("back-channel descriptor %q is not a non-negative integer", rest[0])
	}
	opts.backChannelFD = fd

	rest = rest[1:]
	if len(rest) > 0 && rest[0] == "--" {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return nil, errors.New("no command specified")
	}
	opts.command = rest
	return &opts, nil
}

// apply overlays the flags that were given onto cfg.
func (opts *options) apply(cfg *config.Config) {
	if opts.changed("streams") {
		cfg.Streams = opts.streams
	}
	if opts.changed("osc52-limit") {
		cfg.OSC52.Limit = opts.osc52Limit
	}
	if opts.changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if opts.changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if opts.changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}
}

// openBackChannel adopts fd as the back-channel and marks it
// close-on-exec so the child does not inherit it.
func openBackChannel(fd int) (*os.File, error) {
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return nil, fmt.Errorf("back-channel descriptor %d: %w", fd, err)
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), "ptyshim-backchannel"), nil
}

// run executes the shim and returns its exit code. Errors before the
// logger exists are reported on stderr.
func run(args []string, help io.Writer) int {
	opts, err := parseArgs(args, help)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		process.Report(err)
		fmt.Fprintln(os.Stderr, usageLine)
		return process.ExitUsage
	}
	if opts.showVersion {
		version.Print(help, "ptyshim")
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		process.Report(err)
		return process.ExitFailure
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		process.Report(fmt.Errorf("invalid configuration: %w", err))
		return process.ExitUsage
	}

	backChannel, err := openBackChannel(opts.backChannelFD)
	if err != nil {
		process.Report(err)
		return process.ExitUsage
	}
	defer backChannel.Close()

	logger, logCloser, err := logging.New(logging.Config{
		File:       cfg.Log.File,
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Disabled:   cfg.Log.Disabled,
		Debug:      cfg.Debug,
	})
	if err != nil {
		process.Report(err)
		return process.ExitFailure
	}
	defer logCloser.Close()
	logger = logger.With("session", uuid.NewString())
	logger.Info("ptyshim starting", version.Attr(), "streams", cfg.Streams)

	pool, err := arena.NewPool(cfg.Buffer.Size, cfg.Buffer.MinChunk, cfg.Buffer.PoolCapacity)
	if err != nil {
		logger.Error("creating buffer pool", "error", err)
		return process.ExitFailure
	}
	counters := metrics.New()

	code, err := supervisor.Run(context.Background(), supervisor.Config{
		Command:                opts.command,
		Streams:                cfg.Streams,
		Stdin:                  os.Stdin,
		Stdout:                 os.Stdout,
		Stderr:                 os.Stderr,
		BackChannel:            backChannel,
		QueueLength:            cfg.Queue.Length,
		BackChannelQueueLength: cfg.Queue.BackChannelLength,
		Osc52Limit:             cfg.OSC52.Limit,
		CaptureRate:            cfg.OSC52.Rate,
		CaptureBurst:           cfg.OSC52.Burst,
		DrainTimeout:           cfg.DrainTimeout,
		Pool:                   pool,
		Logger:                 logger,
		Metrics:                counters,
	})
	if err != nil {
		logger.Error("supervisor reported an error", "exit_code", code, "error", err)
	}

	if cfg.MetricsFile != "" {
		if err := counters.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("writing metrics", "error", err)
		}
	}
	logger.Info("ptyshim exiting", "exit_code", code)
	return code
}
