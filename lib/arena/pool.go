// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Default sizes used when a Pool is built from configuration that
// leaves them unset.
const (
	DefaultBufferSize   = 16 * 1024
	DefaultMinChunkSize = 256
	DefaultPoolCapacity = 32
)

// Pool is a capped free list of Buffers. A single Pool is created at
// process start and shared by every pipeline; it is safe for
// concurrent use.
type Pool struct {
	bufferSize   int
	minChunkSize int
	capacity     int

	mu   sync.Mutex
	free []*Buffer

	allocated atomic.Int64
	reused    atomic.Int64
	dropped   atomic.Int64
	live      atomic.Int64
}

// Stats is a snapshot of pool activity.
type Stats struct {
	// Allocated counts buffers created because the free list was empty.
	Allocated int64

	// Reused counts acquisitions satisfied from the free list.
	Reused int64

	// Dropped counts released buffers discarded because the free list
	// was already at capacity.
	Dropped int64

	// Live is the number of buffers currently acquired and not yet
	// fully released.
	Live int64

	// Free is the current length of the free list.
	Free int
}

// NewPool creates a Pool of buffers with bufferSize bytes each. A
// buffer counts as full once fewer than minChunkSize bytes remain
// unfilled. At most capacity released buffers are kept for reuse.
func NewPool(bufferSize, minChunkSize, capacity int) (*Pool, error) {
	if bufferSize <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", bufferSize)
	}
	if minChunkSize <= 0 || minChunkSize > bufferSize {
		return nil, fmt.Errorf("minimum chunk size %d must be in (0, %d]", minChunkSize, bufferSize)
	}
	if capacity < 0 {
		return nil, fmt.Errorf("pool capacity must not be negative, got %d", capacity)
	}
	return &Pool{
		bufferSize:   bufferSize,
		minChunkSize: minChunkSize,
		capacity:     capacity,
		free:         make([]*Buffer, 0, capacity),
	}, nil
}

// BufferSize returns the capacity of every buffer in the pool.
func (p *Pool) BufferSize() int { return p.bufferSize }

// Acquire returns an empty buffer holding one reference, owned by the
// caller. Release it when no more slices will be carved from it.
func (p *Pool) Acquire() *Buffer {
	p.mu.Lock()
	var buffer *Buffer
	if count := len(p.free); count > 0 {
		buffer = p.free[count-1]
		p.free[count-1] = nil
		p.free = p.free[:count-1]
	}
	p.mu.Unlock()

	if buffer == nil {
		buffer = &Buffer{
			pool: p,
			data: make([]byte, p.bufferSize),
		}
		p.allocated.Add(1)
	} else {
		p.reused.Add(1)
	}
	buffer.references.Store(1)
	p.live.Add(1)
	return buffer
}

// recycle is called when the last reference to buffer is released.
func (p *Pool) recycle(buffer *Buffer) {
	p.live.Add(-1)
	buffer.filled = 0
	buffer.generation++

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.capacity {
		p.dropped.Add(1)
		return
	}
	p.free = append(p.free, buffer)
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	free := len(p.free)
	p.mu.Unlock()
	return Stats{
		Allocated: p.allocated.Load(),
		Reused:    p.reused.Load(),
		Dropped:   p.dropped.Load(),
		Live:      p.live.Load(),
		Free:      free,
	}
}
