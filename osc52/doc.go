// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package osc52 implements the streaming filter that removes OSC 52
// clipboard sequences from relayed terminal output.
//
// OSC 52 lets any program that can write to a terminal set (and, on
// some terminals, read) the user's clipboard. The shim sits between
// the child and the terminal widget so that these sequences never
// reach the widget directly: the [Machine] recognizes them, suppresses
// every byte of them from the output, and hands the payload to a
// [Sink] so the embedding application can decide what to do with it.
//
// The machine is fed arbitrary chunks of output as [arena.Slice]
// values. A sequence may be split across any number of chunks; all
// partial state (the held-back introducer, the numeric parameter, the
// payload collected so far) survives between calls to [Machine.Feed].
// Output is produced as sub-slices of the input, so ordinary text is
// forwarded without copying.
//
// States, in the order a matching sequence visits them:
//
//   - Filtering: copy through, watching for ESC or the 8-bit OSC
//     introducer 0x9D.
//   - PotentialMatch: saw ESC, waiting for ']'.
//   - ProcessingMatchedSequence: inside an OSC introducer, reading the
//     numeric parameter up to ';'. The introducer is held back until
//     the parameter is known.
//   - CollectingOsc52: parameter was 52; payload bytes are collected
//     up to the configured limit.
//   - Discarding: the payload exceeded the limit; bytes are dropped
//     until the terminator.
//   - CopyingIgnoredEsc: some other OSC; the held introducer is
//     flushed and bytes are copied until the terminator.
//
// A sequence ends at BEL (0x07), the 8-bit string terminator 0x9C, or
// the 7-bit string terminator ESC '\'. An ESC inside a sequence that
// is not followed by '\' aborts the sequence and starts a new
// potential match, so a malformed sequence cannot hide a following
// OSC 52 from the filter.
package osc52
