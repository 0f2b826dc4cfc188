// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package osc52

import (
	"bytes"

	"github.com/bureau-foundation/ptyshim/lib/arena"
)

// readRequestProbeLimit is the largest payload inspected when checking
// for a clipboard read request. A read request is a selection list
// plus ";?", so anything longer is a write.
const readRequestProbeLimit = 64

// Capture is the payload of one complete OSC 52 sequence: the bytes
// after "52;" and before the terminator, typically
// "<selections>;<base64 data>". The holder owns the slices.
type Capture struct {
	Payload []arena.Slice
	Size    int
}

// Bytes returns a copy of the payload as one contiguous slice.
func (c Capture) Bytes() []byte {
	joined := make([]byte, 0, c.Size)
	for _, slice := range c.Payload {
		joined = append(joined, slice.Bytes()...)
	}
	return joined
}

// IsReadRequest reports whether the capture asks the terminal to
// report the clipboard contents (data field "?") rather than set them.
func (c Capture) IsReadRequest() bool {
	if c.Size == 0 || c.Size > readRequestProbeLimit {
		return false
	}
	payload := c.Bytes()
	data := payload
	if separator := bytes.LastIndexByte(payload, ';'); separator >= 0 {
		data = payload[separator+1:]
	}
	return string(data) == "?"
}

// Release drops the capture's references.
func (c Capture) Release() {
	for _, slice := range c.Payload {
		slice.Release()
	}
}
