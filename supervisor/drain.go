// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"log/slog"
	"time"

	"github.com/bureau-foundation/ptyshim/lib/clock"
)

// pipeline is the part of *stream.Processor the drain logic needs.
type pipeline interface {
	Name() string
	Done() <-chan struct{}
	Stop()
	Wait() error
}

// drain waits for every pipeline to finish on its own. Once timeout
// elapses, pipelines still running are stopped. A negative timeout
// waits indefinitely. Returns the pipelines' errors joined.
func drain(pipelines []pipeline, timeout time.Duration, clk clock.Clock, logger *slog.Logger) error {
	var deadline <-chan time.Time
	if timeout >= 0 {
		deadline = clk.After(timeout)
	}

	timedOut := false
waiting:
	for _, each := range pipelines {
		select {
		case <-each.Done():
		case <-deadline:
			timedOut = true
			break waiting
		}
	}

	if timedOut {
		for _, each := range pipelines {
			select {
			case <-each.Done():
			default:
				logger.Warn("stream still open after child exit, stopping it",
					"stream", each.Name(), "timeout", timeout)
				each.Stop()
			}
		}
	}

	var errs []error
	for _, each := range pipelines {
		if err := each.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
