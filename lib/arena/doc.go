// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package arena provides the pooled byte buffers that carry relayed
// terminal output through the shim's pipelines.
//
// A [Pool] hands out fixed-capacity [Buffer] values and takes them back
// once nothing refers to them. The pool keeps a capped free list, so a
// burst of output can allocate extra buffers but the steady state
// never holds more than the cap in reserve.
//
// A [Slice] is a bounded view (offset and length) into one buffer and
// is the unit moved between pipeline stages. Every Slice that refers
// to a buffer holds one reference; the buffer goes back to the pool
// when the last reference is released. Slices are values: copying one
// does not add a reference, so exactly one copy must be released.
// [Slice.Sub] and [Slice.Retain] create additional owned references.
//
// Filling follows a single-writer discipline. The goroutine that
// acquired a buffer carves successive slices from its unfilled tail
// with [Buffer.NextFillableSlice] and reads into them with
// [Slice.ReadFD]. Once a filled slice is handed to a queue, the bytes
// it covers are never written again until the buffer is recycled, so
// downstream stages can read them without locking.
//
// The zero Slice has length zero and is the end-of-stream sentinel.
package arena
