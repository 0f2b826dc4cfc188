// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/ptyshim/backchannel"
	"github.com/bureau-foundation/ptyshim/lib/arena"
	"github.com/bureau-foundation/ptyshim/lib/clock"
	"github.com/bureau-foundation/ptyshim/lib/metrics"
	"github.com/bureau-foundation/ptyshim/lib/queue"
	"github.com/bureau-foundation/ptyshim/osc52"
)

// DefaultQueueLength is the capacity of each of a processor's two
// internal queues.
const DefaultQueueLength = 16

// Discard reasons recorded by the processor itself, in addition to
// those reported by the state machine.
const (
	reasonReadRequest = "read-request"
	reasonRateLimited = "rate-limited"
)

// digestLength is how many bytes of the BLAKE3 digest are logged to
// identify a capture without logging its contents.
const digestLength = 8

// CaptureSender accepts back-channel messages. *backchannel.Sender
// implements it.
type CaptureSender interface {
	Send(message backchannel.Message)
}

// Config describes one relayed stream and the shared components it
// uses.
type Config struct {
	// Name labels the stream in logs and metrics ("stdout", "stderr").
	Name string

	// InputFD is the read end of the child-facing pipe. The processor
	// takes ownership and closes it when the reader exits.
	InputFD int

	// OutputFD is the terminal-facing descriptor. Not closed.
	OutputFD int

	// QueueLength bounds each internal queue. Zero selects
	// DefaultQueueLength.
	QueueLength int

	// Osc52Limit is the largest clipboard payload reported. Zero
	// selects osc52.DefaultLimit.
	Osc52Limit int

	// CaptureRate limits clipboard reports per second. Zero disables
	// the limit. CaptureBurst is the limiter's burst size.
	CaptureRate  float64
	CaptureBurst int

	// Pool supplies buffers. Shared between processors.
	Pool *arena.Pool

	// Sender receives clipboard captures.
	Sender CaptureSender

	// Logger, Metrics, and Clock are optional.
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   clock.Clock
}

// Stats is a snapshot of a processor's counters.
type Stats struct {
	BytesRead    int64
	BytesWritten int64
	Captures     int64
	Discards     int64
}

// Processor relays one stream. Create it with New, then Start it.
type Processor struct {
	config  Config
	logger  *slog.Logger
	limiter *rate.Limiter
	machine *osc52.Machine

	unprocessed *queue.Queue[arena.Slice]
	processed   *queue.Queue[arena.Slice]

	// The wake pipe interrupts the reader's poll when Stop is called.
	wakeMu     sync.Mutex
	wakeRead   int
	wakeWrite  int
	wakeClosed bool

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	// err is the first stage error. Written before done is closed.
	err error

	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	captures     atomic.Int64
	discards     atomic.Int64
}

// New validates config and prepares a processor. On success the
// processor owns config.InputFD.
func New(config Config) (*Processor, error) {
	if config.Name == "" {
		return nil, errors.New("stream name is required")
	}
	if config.Pool == nil {
		return nil, fmt.Errorf("stream %s: buffer pool is required", config.Name)
	}
	if config.Sender == nil {
		return nil, fmt.Errorf("stream %s: back-channel sender is required", config.Name)
	}
	if config.InputFD < 0 || config.OutputFD < 0 {
		return nil, fmt.Errorf("stream %s: invalid descriptors in=%d out=%d", config.Name, config.InputFD, config.OutputFD)
	}
	if config.QueueLength <= 0 {
		config.QueueLength = DefaultQueueLength
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var wake [2]int
	if err := unix.Pipe2(wake[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("stream %s: creating wake pipe: %w", config.Name, err)
	}

	processor := &Processor{
		config:      config,
		logger:      logger.With("stream", config.Name),
		unprocessed: queue.New[arena.Slice](config.QueueLength),
		processed:   queue.New[arena.Slice](config.QueueLength),
		wakeRead:    wake[0],
		wakeWrite:   wake[1],
		done:        make(chan struct{}),
	}
	if config.CaptureRate > 0 {
		burst := config.CaptureBurst
		if burst <= 0 {
			burst = 1
		}
		processor.limiter = rate.NewLimiter(rate.Limit(config.CaptureRate), burst)
	}
	processor.machine = osc52.NewMachine(filterSink{processor: processor}, config.Osc52Limit)
	return processor, nil
}

// Name returns the stream's name.
func (p *Processor) Name() string { return p.config.Name }

// Start launches the reader, filter, and writer goroutines. Calling
// it again has no effect.
func (p *Processor) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("stream relay starting",
			"input_fd", p.config.InputFD,
			"output_fd", p.config.OutputFD,
			"output_is_terminal", term.IsTerminal(p.config.OutputFD),
		)
		var group errgroup.Group
		group.Go(p.read)
		group.Go(p.filter)
		group.Go(p.write)
		go func() {
			p.err = group.Wait()
			p.closeWakePipe()
			stats := p.Stats()
			p.logger.Info("stream relay finished",
				"bytes_read", stats.BytesRead,
				"bytes_written", stats.BytesWritten,
				"captures", stats.Captures,
				"discards", stats.Discards,
			)
			close(p.done)
		}()
	})
}

// Stop asks the reader to stop even though the input has not reached
// EOF. Bytes already read still flow through the filter and writer.
// Safe to call at any time, any number of times.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.wakeMu.Lock()
		defer p.wakeMu.Unlock()
		if p.wakeClosed {
			return
		}
		if _, err := unix.Write(p.wakeWrite, []byte{1}); err != nil && err != unix.EAGAIN {
			p.logger.Warn("signalling reader to stop", "error", err)
		}
	})
}

// Done is closed once all three stages have exited.
func (p *Processor) Done() <-chan struct{} { return p.done }

// Wait blocks until all stages have exited and returns the first
// stage error. Start must have been called.
func (p *Processor) Wait() error {
	<-p.done
	return p.err
}

// Stats returns a snapshot of the processor's counters.
func (p *Processor) Stats() Stats {
	return Stats{
		BytesRead:    p.bytesRead.Load(),
		BytesWritten: p.bytesWritten.Load(),
		Captures:     p.captures.Load(),
		Discards:     p.discards.Load(),
	}
}

func (p *Processor) closeWakePipe() {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()
	p.wakeClosed = true
	unix.Close(p.wakeRead)
	unix.Close(p.wakeWrite)
}

// read is the reader stage.
func (p *Processor) read() error {
	defer func() {
		if err := unix.Close(p.config.InputFD); err != nil {
			p.logger.Debug("closing input descriptor", "error", err)
		}
		p.unprocessed.Push(arena.Slice{})
	}()
	for {
		buffer := p.config.Pool.Acquire()
		finished, err := p.fill(buffer)
		buffer.Release()
		if finished {
			return err
		}
	}
}

// fill reads into buffer until it is full (false) or the stream has
// ended (true).
func (p *Processor) fill(buffer *arena.Buffer) (bool, error) {
	for {
		slice, ok := buffer.NextFillableSlice()
		if !ok {
			return false, nil
		}

		readable, err := p.awaitInput()
		if err != nil || !readable {
			slice.Release()
			if err != nil {
				p.logger.Warn("waiting for child output failed", "error", err)
				return true, fmt.Errorf("stream %s: %w", p.config.Name, err)
			}
			p.logger.Debug("reader stopped before end of stream")
			return true, nil
		}

		if err := slice.ReadFD(p.config.InputFD); err != nil {
			slice.Release()
			if errors.Is(err, arena.ErrEndOfStream) {
				p.logger.Debug("end of stream")
				return true, nil
			}
			p.logger.Warn("reading child output failed", "error", err)
			return true, fmt.Errorf("stream %s: %w", p.config.Name, err)
		}

		p.bytesRead.Add(int64(slice.Len()))
		p.config.Metrics.AddBytesRead(p.config.Name, slice.Len())
		p.unprocessed.Push(slice)
	}
}

// awaitInput blocks until the input is readable (true) or Stop has
// been called (false). Hangup and error conditions count as readable
// so the following read observes them.
func (p *Processor) awaitInput() (bool, error) {
	descriptors := []unix.PollFd{
		{Fd: int32(p.config.InputFD), Events: unix.POLLIN},
		{Fd: int32(p.wakeRead), Events: unix.POLLIN},
	}
	for {
		_, err := unix.Poll(descriptors, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll: %w", err)
		}
		if descriptors[1].Revents != 0 {
			return false, nil
		}
		if descriptors[0].Revents != 0 {
			return true, nil
		}
	}
}

// filter is the filter stage.
func (p *Processor) filter() error {
	for {
		slice := p.unprocessed.Pop()
		if slice.IsSentinel() {
			if state := p.machine.Abandon(); state != osc52.Filtering {
				p.logger.Debug("dropping partial escape sequence at end of stream", "state", state)
			}
			p.processed.Push(arena.Slice{})
			return nil
		}
		p.machine.Feed(slice)
	}
}

// write is the writer stage.
func (p *Processor) write() error {
	var failure error
	for {
		slice := p.processed.Pop()
		if slice.IsSentinel() {
			return failure
		}
		if failure == nil {
			if err := slice.WriteFD(p.config.OutputFD); err != nil {
				failure = fmt.Errorf("stream %s: %w", p.config.Name, err)
				p.logger.Error("writing to terminal failed, stopping stream", "error", err)
				p.Stop()
			} else {
				p.bytesWritten.Add(int64(slice.Len()))
				p.config.Metrics.AddBytesWritten(p.config.Name, slice.Len())
			}
		}
		slice.Release()
	}
}

// capture reports a complete OSC 52 sequence on the back-channel,
// unless it is a read request or over the rate limit.
func (p *Processor) capture(capture osc52.Capture) {
	if capture.IsReadRequest() {
		capture.Release()
		p.recordDiscard(reasonReadRequest, capture.Size)
		return
	}
	if p.limiter != nil && !p.limiter.AllowN(p.config.Clock.Now(), 1) {
		capture.Release()
		p.recordDiscard(reasonRateLimited, capture.Size)
		return
	}
	p.captures.Add(1)
	p.config.Metrics.CountCapture(p.config.Name)
	p.logger.Info("clipboard write captured", "bytes", capture.Size, "digest", digest(capture))
	p.config.Sender.Send(backchannel.Clipboard(capture.Payload))
}

func (p *Processor) recordDiscard(reason string, size int) {
	p.discards.Add(1)
	p.config.Metrics.CountDiscard(p.config.Name, reason)
	p.logger.Info("clipboard sequence discarded", "reason", reason, "bytes", size)
}

// digest returns a short hex BLAKE3 digest of the capture payload.
func digest(capture osc52.Capture) string {
	hasher := blake3.New()
	for _, slice := range capture.Payload {
		hasher.Write(slice.Bytes())
	}
	return hex.EncodeToString(hasher.Sum(nil)[:digestLength])
}

// filterSink routes state machine output into the processor.
type filterSink struct {
	processor *Processor
}

func (s filterSink) Forward(slice arena.Slice) { s.processor.processed.Push(slice) }

func (s filterSink) Capture(capture osc52.Capture) { s.processor.capture(capture) }

func (s filterSink) Discard(reason osc52.DiscardReason, size int) {
	s.processor.recordDiscard(reason.String(), size)
}
