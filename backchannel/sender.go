// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package backchannel

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/ptyshim/lib/metrics"
	"github.com/bureau-foundation/ptyshim/lib/queue"
)

// DefaultQueueLength is the number of messages that may wait for the
// pipe before Send blocks.
const DefaultQueueLength = 8

// Sender owns the write end of the back-channel. Messages are queued
// by Send and written, in order, by a single goroutine.
//
// A write failure is logged and remembered; later messages are still
// dequeued and released so that producers never block on a dead pipe.
// A message too large to frame is dropped on its own: nothing reached
// the pipe, so the messages behind it are still written.
type Sender struct {
	writer  io.Writer
	queue   *queue.Queue[Message]
	logger  *slog.Logger
	metrics *metrics.Metrics

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	// writeError is the first write failure. Written by the sender
	// goroutine, read after done is closed.
	writeError error
}

// NewSender creates a Sender writing frames to writer. queueLength
// bounds the number of pending messages.
func NewSender(writer io.Writer, queueLength int, logger *slog.Logger, counters *metrics.Metrics) *Sender {
	if queueLength <= 0 {
		queueLength = DefaultQueueLength
	}
	return &Sender{
		writer:  writer,
		queue:   queue.New[Message](queueLength),
		logger:  logger,
		metrics: counters,
		done:    make(chan struct{}),
	}
}

// Start launches the writer goroutine. Calling it again has no effect.
func (s *Sender) Start() {
	s.startOnce.Do(func() { go s.run() })
}

// Send queues message for writing, blocking while the queue is full.
// The Sender takes ownership of the message. Send must not be called
// after Stop.
func (s *Sender) Send(message Message) {
	if message.Len() == 0 {
		s.logger.Warn("dropping empty back-channel message", "kind", message.Kind())
		return
	}
	s.queue.Push(message)
}

// Stop queues the shutdown sentinel behind any pending messages. The
// writer goroutine exits once everything ahead of it is written.
func (s *Sender) Stop() {
	s.stopOnce.Do(func() { s.queue.Push(Message{}) })
}

// Wait blocks until the writer goroutine has exited and returns the
// first write error, if any.
func (s *Sender) Wait() error {
	<-s.done
	return s.writeError
}

func (s *Sender) run() {
	defer close(s.done)
	for {
		message := s.queue.Pop()
		if message.Len() == 0 {
			return
		}
		s.write(message)
		message.Release()
	}
}

func (s *Sender) write(message Message) {
	if s.writeError != nil {
		s.logger.Debug("back-channel closed, dropping message", "kind", message.Kind())
		return
	}
	if err := WriteMessage(s.writer, message); err != nil {
		if errors.Is(err, ErrFrameTooLarge) {
			s.metrics.CountBackChannelDrop(message.Kind().String(), "too-large")
			s.logger.Warn("dropping back-channel message too large to frame",
				"kind", message.Kind(), "length", message.Len(), "max", MaxFrameLength)
			return
		}
		s.writeError = err
		s.metrics.CountBackChannelError()
		s.logger.Error("back-channel write failed", "kind", message.Kind(), "error", err)
		return
	}
	s.metrics.CountMessage(message.Kind().String())
	s.logger.Debug("back-channel message sent", "kind", message.Kind(), "length", message.Len())
}
