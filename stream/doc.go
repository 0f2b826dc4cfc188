// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream relays one output stream of the child (stdout or
// stderr) to the terminal, removing OSC 52 clipboard sequences on the
// way.
//
// A [Processor] runs three goroutines connected by bounded queues:
//
//	input fd ──reader──▶ unprocessed ──filter──▶ processed ──writer──▶ output fd
//	                                        │
//	                                        └──▶ back-channel (captures)
//
// The reader fills arena buffers from the child-facing pipe. The
// filter runs each chunk through an [osc52.Machine], queueing the
// pass-through sub-slices and handing complete captures to the
// back-channel. The writer copies the pass-through bytes to the
// terminal-facing descriptor.
//
// Shutdown travels down the pipeline as a sentinel. The reader emits
// one on EOF, on a read error, or when [Processor.Stop] wakes it; each
// later stage forwards it before exiting, so the queues never hold a
// stage hostage. A write failure is fatal to the stream: the writer
// stops the reader and discards everything still in flight until the
// sentinel arrives.
//
// The processor owns its input descriptor and closes it when the
// reader exits, so a child still writing to a stopped stream gets
// EPIPE instead of blocking forever. The output descriptor belongs to
// the caller.
package stream
