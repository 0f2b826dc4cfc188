// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package backchannel implements the side pipe the shim uses to talk
// to the application that launched it.
//
// The wire format is a sequence of frames. Each frame is a 4-byte
// little-endian length followed by that many bytes of message:
//
//	[uint32 length, little-endian] [prefix] [payload...]
//
// The length counts the message only, not itself. Messages are text:
//
//   - "OK <pid>" once the child has started.
//   - "ERR <domain>,<code>,<message>" if the child could not be started.
//   - "END" once the child has exited and every relayed stream has
//     drained.
//   - "OSC52 <selections>;<data>" for each clipboard write intercepted
//     from the child's output. data is the base64 text exactly as the
//     child sent it.
//
// The shim side is [Message] (a tagged variant whose payload is a list
// of arena slices, so captured bytes are never copied) and [Sender],
// the goroutine that drains a bounded queue of messages onto the pipe.
// The reading side, used by embedders and by tests, is [ReadFrame],
// [ParseEvent], and [Decoder].
package backchannel
