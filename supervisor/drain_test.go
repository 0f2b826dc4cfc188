// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/ptyshim/lib/clock"
	"github.com/bureau-foundation/ptyshim/lib/testutil"
)

type fakePipeline struct {
	name    string
	err     error
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

func newFakePipeline(name string, err error) *fakePipeline {
	return &fakePipeline{name: name, err: err, done: make(chan struct{})}
}

func (p *fakePipeline) Name() string          { return p.name }
func (p *fakePipeline) Done() <-chan struct{} { return p.done }
func (p *fakePipeline) finish()               { p.once.Do(func() { close(p.done) }) }

func (p *fakePipeline) Stop() {
	p.stopped.Store(true)
	p.finish()
}

func (p *fakePipeline) Wait() error {
	<-p.done
	return p.err
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestDrainWaitsForPipelines(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(0, 0))
	stdout := newFakePipeline("stdout", nil)
	stderr := newFakePipeline("stderr", nil)

	result := make(chan error, 1)
	go func() {
		result <- drain([]pipeline{stdout, stderr}, time.Second, fakeClock, discardLogger())
	}()

	fakeClock.WaitForTimers(1)
	stdout.finish()
	stderr.finish()

	if err := testutil.RequireReceive(t, result, 5*time.Second, "drain result"); err != nil {
		t.Fatalf("drain = %v", err)
	}
	if stdout.stopped.Load() || stderr.stopped.Load() {
		t.Error("drain stopped a pipeline that finished on its own")
	}
}

func TestDrainStopsStragglersAfterTimeout(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(0, 0))
	finished := newFakePipeline("stdout", nil)
	straggler := newFakePipeline("stderr", errors.New("stream stderr: broken"))
	finished.finish()

	result := make(chan error, 1)
	go func() {
		result <- drain([]pipeline{finished, straggler}, time.Second, fakeClock, discardLogger())
	}()

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(999 * time.Millisecond)
	select {
	case <-result:
		t.Fatal("drain returned before the timeout")
	case <-time.After(20 * time.Millisecond):
	}

	fakeClock.Advance(time.Millisecond)
	err := testutil.RequireReceive(t, result, 5*time.Second, "drain result")
	if err == nil || err.Error() != "stream stderr: broken" {
		t.Fatalf("drain = %v, want the straggler's error", err)
	}
	if !straggler.stopped.Load() {
		t.Error("straggler was not stopped")
	}
	if finished.stopped.Load() {
		t.Error("finished pipeline was stopped")
	}
}

func TestDrainNegativeTimeoutWaitsIndefinitely(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(0, 0))
	relay := newFakePipeline("stdout", nil)

	result := make(chan error, 1)
	go func() {
		result <- drain([]pipeline{relay}, -1, fakeClock, discardLogger())
	}()

	select {
	case <-result:
		t.Fatal("drain returned with the pipeline still running")
	case <-time.After(20 * time.Millisecond):
	}
	if pending := fakeClock.PendingCount(); pending != 0 {
		t.Errorf("negative timeout registered %d timers", pending)
	}
	relay.finish()
	if err := testutil.RequireReceive(t, result, 5*time.Second, "drain result"); err != nil {
		t.Fatalf("drain = %v", err)
	}
}
