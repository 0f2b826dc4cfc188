// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that deadlines
// and rate limits can be tested without sleeping.
//
// The shim reads time in two places: the supervisor's drain deadline
// after the child exits, and the per-stream OSC 52 rate limiter. Both
// take a Clock. In production, Real() provides the standard library
// behavior. In tests, Fake() provides a clock that advances only when
// Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go supervisor.drain(...)     // registers a deadline with c.After
//	c.WaitForTimers(1)           // wait until it has
//	c.Advance(5 * time.Second)   // fire it deterministically
package clock
