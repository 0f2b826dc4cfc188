// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/bureau-foundation/ptyshim/backchannel"
	"github.com/bureau-foundation/ptyshim/lib/arena"
	"github.com/bureau-foundation/ptyshim/lib/clock"
	"github.com/bureau-foundation/ptyshim/lib/metrics"
	"github.com/bureau-foundation/ptyshim/lib/process"
	"github.com/bureau-foundation/ptyshim/stream"
)

// Stream names accepted in Config.Streams.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// DefaultDrainTimeout bounds the wait for pipelines after the child
// exits.
const DefaultDrainTimeout = 5 * time.Second

// DefaultSignals are forwarded to the child when Config.Signals is nil.
// SIGWINCH is absent: the child shares the terminal and receives it
// directly.
var DefaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

// Config describes one supervised child.
type Config struct {
	// Command is the program and its arguments. The program is looked
	// up in PATH when it contains no slash.
	Command []string

	// Env is the child's environment. Nil inherits the shim's.
	Env []string

	// Dir is the child's working directory. Empty inherits the shim's.
	Dir string

	// Streams lists which of the child's output streams are filtered.
	// Streams not listed are inherited directly.
	Streams []string

	// Stdin, Stdout, and Stderr are the terminal-facing descriptors.
	// Stdin is always passed straight to the child.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// BackChannel receives framed status and capture messages.
	BackChannel io.Writer

	// QueueLength and BackChannelQueueLength bound the pipeline and
	// back-channel queues. Zero selects the package defaults.
	QueueLength            int
	BackChannelQueueLength int

	// Osc52Limit, CaptureRate, and CaptureBurst are passed to every
	// stream processor.
	Osc52Limit   int
	CaptureRate  float64
	CaptureBurst int

	// DrainTimeout bounds the wait for the pipelines after the child
	// exits. Negative waits indefinitely; zero selects
	// DefaultDrainTimeout.
	DrainTimeout time.Duration

	// Signals are forwarded to the child. Nil selects DefaultSignals;
	// an empty non-nil slice disables forwarding.
	Signals []os.Signal

	// Pool supplies buffers to every stream. Required.
	Pool *arena.Pool

	// Logger, Metrics, and Clock are optional.
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   clock.Clock
}

func (c *Config) validate() error {
	if len(c.Command) == 0 || c.Command[0] == "" {
		return errors.New("no command given")
	}
	if c.Pool == nil {
		return errors.New("buffer pool is required")
	}
	if c.BackChannel == nil {
		return errors.New("back-channel writer is required")
	}
	for index, name := range c.Streams {
		if name != StreamStdout && name != StreamStderr {
			return fmt.Errorf("unknown stream %q", name)
		}
		if slices.Contains(c.Streams[:index], name) {
			return fmt.Errorf("stream %q listed twice", name)
		}
	}
	return nil
}

// Run starts config.Command, relays its filtered output until it exits
// and the pipelines have drained, and returns the exit code the shim
// should exit with.
//
// The code is meaningful even when err is non-nil: a start failure
// yields 126 or 127, and a setup failure 1. Errors from the relay after
// a successful start (a failed terminal write, a broken back-channel)
// are returned alongside the child's own exit code.
func Run(ctx context.Context, config Config) (int, error) {
	if err := config.validate(); err != nil {
		return process.ExitUsage, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.DrainTimeout == 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}
	if config.Signals == nil {
		config.Signals = DefaultSignals
	}

	sender := backchannel.NewSender(config.BackChannel, config.BackChannelQueueLength,
		logger.With("component", "backchannel"), config.Metrics)
	sender.Start()

	supervisor := &supervisor{config: config, logger: logger, sender: sender}
	code, runErr := supervisor.run(ctx)

	sender.Stop()
	if err := sender.Wait(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("back-channel: %w", err))
	}
	config.Metrics.RecordPool(config.Pool.Stats())
	return code, runErr
}

type supervisor struct {
	config Config
	logger *slog.Logger
	sender *backchannel.Sender
}

func (s *supervisor) run(ctx context.Context) (int, error) {
	pipes, err := s.createPipes()
	if err != nil {
		s.reportSetupFailure(err)
		return process.ExitFailure, err
	}
	defer func() {
		for _, pipe := range pipes {
			pipe.Close()
		}
	}()

	child := exec.Command(s.config.Command[0], s.config.Command[1:]...)
	child.Env = s.config.Env
	child.Dir = s.config.Dir
	child.Stdin = s.config.Stdin
	child.Stdout = s.config.Stdout
	child.Stderr = s.config.Stderr
	for _, pipe := range pipes {
		switch pipe.Stream() {
		case StreamStdout:
			child.Stdout = pipe.ChildEnd()
		case StreamStderr:
			child.Stderr = pipe.ChildEnd()
		}
	}

	if err := child.Start(); err != nil {
		s.reportStartFailure(err)
		return process.StartFailureCode(err), fmt.Errorf("starting %s: %w", s.config.Command[0], err)
	}
	pid := child.Process.Pid
	logger := s.logger.With("pid", pid)
	logger.Info("child started", "command", s.config.Command)

	for _, pipe := range pipes {
		if err := pipe.CloseChildEnd(); err != nil {
			logger.Warn("closing child pipe end", "error", err)
		}
	}

	processors, err := s.createProcessors(pipes)
	if err != nil {
		logger.Error("creating stream relays failed, killing child", "error", err)
		child.Process.Kill()
		child.Wait()
		s.reportSetupFailure(err)
		return process.ExitFailure, err
	}
	// OK goes out before any relay can queue a capture.
	s.sender.Send(backchannel.Started(pid))
	for _, processor := range processors {
		processor.Start()
	}

	stopForwarding := s.forwardSignals(ctx, child.Process)
	waitErr := child.Wait()
	stopForwarding()

	code := process.ExitCode(child.ProcessState)
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			logger.Error("waiting for child failed", "error", waitErr)
		}
	}
	logger.Info("child exited", "exit_code", code, "state", child.ProcessState.String())
	s.config.Metrics.SetChildExitCode(code)

	pipelines := make([]pipeline, len(processors))
	for index, processor := range processors {
		pipelines[index] = processor
	}
	drainErr := drain(pipelines, s.config.DrainTimeout, s.config.Clock, logger)
	s.sender.Send(backchannel.End())
	return code, drainErr
}

func (s *supervisor) createPipes() ([]*PipePair, error) {
	pipes := make([]*PipePair, 0, len(s.config.Streams))
	for _, name := range s.config.Streams {
		pipe, err := NewPipePair(name)
		if err != nil {
			for _, created := range pipes {
				created.Close()
			}
			return nil, err
		}
		pipes = append(pipes, pipe)
	}
	return pipes, nil
}

// createProcessors hands each pipe's read end to a new stream
// processor. On failure, the processors already created are started
// and stopped at once so they release their descriptors.
func (s *supervisor) createProcessors(pipes []*PipePair) ([]*stream.Processor, error) {
	var processors []*stream.Processor
	for _, pipe := range pipes {
		output, err := s.terminalFor(pipe.Stream())
		if err != nil {
			abandon(processors)
			return nil, err
		}
		processor, err := stream.New(stream.Config{
			Name:         pipe.Stream(),
			InputFD:      pipe.parentEnd,
			OutputFD:     output,
			QueueLength:  s.config.QueueLength,
			Osc52Limit:   s.config.Osc52Limit,
			CaptureRate:  s.config.CaptureRate,
			CaptureBurst: s.config.CaptureBurst,
			Pool:         s.config.Pool,
			Sender:       s.sender,
			Logger:       s.logger,
			Metrics:      s.config.Metrics,
			Clock:        s.config.Clock,
		})
		if err != nil {
			abandon(processors)
			return nil, err
		}
		pipe.TakeParentEnd()
		processors = append(processors, processor)
	}
	return processors, nil
}

func (s *supervisor) terminalFor(name string) (int, error) {
	var file *os.File
	switch name {
	case StreamStdout:
		file = s.config.Stdout
	case StreamStderr:
		file = s.config.Stderr
	}
	if file == nil {
		return -1, fmt.Errorf("no terminal descriptor for %s", name)
	}
	return int(file.Fd()), nil
}

func abandon(processors []*stream.Processor) {
	for _, processor := range processors {
		processor.Start()
		processor.Stop()
	}
	for _, processor := range processors {
		processor.Wait()
	}
}

// forwardSignals relays config.Signals to the child and sends SIGTERM
// when ctx is cancelled. The returned function stops forwarding.
func (s *supervisor) forwardSignals(ctx context.Context, child *os.Process) func() {
	signals := make(chan os.Signal, 4)
	if len(s.config.Signals) > 0 {
		signal.Notify(signals, s.config.Signals...)
	}
	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		cancelled := ctx.Done()
		for {
			select {
			case received := <-signals:
				s.logger.Debug("forwarding signal to child", "signal", received)
				// The child may already have exited.
				_ = child.Signal(received)
			case <-cancelled:
				s.logger.Info("context cancelled, terminating child")
				_ = child.Signal(syscall.SIGTERM)
				cancelled = nil
			case <-stop:
				return
			}
		}
	}()
	return func() {
		signal.Stop(signals)
		close(stop)
		<-finished
	}
}

func (s *supervisor) reportStartFailure(err error) {
	s.logger.Error("starting child failed", "command", s.config.Command, "error", err)
	if errno, ok := process.Errno(err); ok {
		s.sender.Send(backchannel.SpawnFailed(backchannel.DomainErrno, int(errno), err.Error()))
		return
	}
	code := backchannel.CodeStart
	if process.IsNotFound(err) {
		code = backchannel.CodeNotFound
	}
	s.sender.Send(backchannel.SpawnFailed(backchannel.DomainShim, code, err.Error()))
}

func (s *supervisor) reportSetupFailure(err error) {
	s.logger.Error("preparing child failed", "error", err)
	if errno, ok := process.Errno(err); ok {
		s.sender.Send(backchannel.SpawnFailed(backchannel.DomainErrno, int(errno), err.Error()))
		return
	}
	s.sender.Send(backchannel.SpawnFailed(backchannel.DomainShim, backchannel.CodeSetup, err.Error()))
}
