// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for ptyshim packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. [RequireEventually] polls
// a condition for the same purpose when the state under test is not a
// channel, such as the number of producers parked on a full queue.
// These are the only place in the test suite where real wall-clock
// timeouts are used.
//
// [Pipe] creates a close-on-exec pipe whose ends are closed when the
// test completes, and [ReadAll] drains the read end of one.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package depends only on golang.org/x/sys/unix.
package testutil
