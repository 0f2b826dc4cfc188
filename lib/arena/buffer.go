// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package arena

import (
	"fmt"
	"sync/atomic"
)

// Buffer is a fixed-capacity byte array shared by reference between
// the goroutine filling it and the slices viewing its filled region.
type Buffer struct {
	pool *Pool
	data []byte

	// filled is the fill cursor: bytes [0, filled) have been written
	// and are immutable until the buffer is recycled. Only the
	// goroutine that acquired the buffer advances it.
	filled int

	references atomic.Int32

	// generation increments each time the buffer returns to the pool,
	// so a slice can be tied to one lifetime of the underlying array.
	generation uint64
}

// Capacity returns the total size of the buffer.
func (b *Buffer) Capacity() int { return len(b.data) }

// Filled returns the position of the fill cursor.
func (b *Buffer) Filled() int { return b.filled }

// Generation returns how many times the buffer has been recycled.
func (b *Buffer) Generation() uint64 { return b.generation }

// Full reports whether the unfilled tail is smaller than the pool's
// minimum chunk size.
func (b *Buffer) Full() bool {
	return len(b.data)-b.filled < b.pool.minChunkSize
}

// NextFillableSlice returns a slice spanning the unfilled tail of the
// buffer, or false if the buffer is full. The slice holds its own
// reference.
func (b *Buffer) NextFillableSlice() (Slice, bool) {
	if b.Full() {
		return Slice{}, false
	}
	b.retain()
	return Slice{buffer: b, offset: b.filled, length: len(b.data) - b.filled}, true
}

// Append copies data into the unfilled tail and returns a slice over
// the copy. It fails without modifying the buffer if data is empty or
// does not fit.
func (b *Buffer) Append(data []byte) (Slice, error) {
	if len(data) == 0 {
		return Slice{}, fmt.Errorf("append: empty data")
	}
	if spare := len(b.data) - b.filled; len(data) > spare {
		return Slice{}, fmt.Errorf("append: %d bytes do not fit in %d spare bytes", len(data), spare)
	}
	offset := b.filled
	copy(b.data[offset:], data)
	b.filled += len(data)
	b.retain()
	return Slice{buffer: b, offset: offset, length: len(data)}, nil
}

// Release drops the reference obtained from Pool.Acquire.
func (b *Buffer) Release() { b.release() }

func (b *Buffer) retain() {
	if b.references.Add(1) <= 1 {
		panic("arena: retain of a released buffer")
	}
}

func (b *Buffer) release() {
	remaining := b.references.Add(-1)
	switch {
	case remaining == 0:
		b.pool.recycle(b)
	case remaining < 0:
		panic("arena: buffer released more times than it was retained")
	}
}
