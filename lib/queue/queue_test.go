// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import (
	"testing"
	"time"

	"github.com/bureau-foundation/ptyshim/lib/testutil"
)

type item string

func (i item) Len() int { return len(i) }

const testTimeout = 5 * time.Second

func TestFIFOOrder(t *testing.T) {
	queue := New[item](4)
	for _, value := range []item{"a", "b", "c"} {
		queue.Push(value)
	}
	for _, want := range []item{"a", "b", "c"} {
		if got := queue.Pop(); got != want {
			t.Fatalf("Pop = %q, want %q", got, want)
		}
	}
	if queue.Len() != 0 {
		t.Errorf("Len = %d after draining, want 0", queue.Len())
	}
}

func TestCapacityClampedToOne(t *testing.T) {
	if capacity := New[item](0).Capacity(); capacity != 1 {
		t.Errorf("Capacity = %d, want 1", capacity)
	}
}

func TestPushBlocksWhenFull(t *testing.T) {
	queue := New[item](2)
	queue.Push("one")
	queue.Push("two")

	pushed := make(chan struct{})
	go func() {
		queue.Push("three")
		close(pushed)
	}()

	testutil.RequireEventually(t, func() bool { return queue.waitingProducers() == 1 },
		testTimeout, "producer should park on a full queue")
	select {
	case <-pushed:
		t.Fatal("push completed while the queue was full")
	default:
	}

	if got := queue.Pop(); got != "one" {
		t.Fatalf("Pop = %q, want %q", got, "one")
	}
	testutil.RequireClosed(t, pushed, testTimeout, "producer should resume after a pop")

	for _, want := range []item{"two", "three"} {
		if got := queue.Pop(); got != want {
			t.Fatalf("Pop = %q, want %q", got, want)
		}
	}
}

func TestSentinelBypassesCapacity(t *testing.T) {
	queue := New[item](1)
	queue.Push("full")

	done := make(chan struct{})
	go func() {
		queue.Push("")
		close(done)
	}()
	testutil.RequireClosed(t, done, testTimeout, "sentinel push must not block")

	if got := queue.Pop(); got != "full" {
		t.Fatalf("Pop = %q, want %q", got, "full")
	}
	if got := queue.Pop(); got.Len() != 0 {
		t.Fatalf("Pop = %q, want sentinel", got)
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	queue := New[item](1)
	results := make(chan item, 1)
	go func() { results <- queue.Pop() }()

	select {
	case <-results:
		t.Fatal("Pop returned from an empty queue")
	default:
	}
	queue.Push("late")
	if got := testutil.RequireReceive(t, results, testTimeout, "consumer should wake"); got != "late" {
		t.Errorf("Pop = %q, want %q", got, "late")
	}
}

func TestConcurrentProducerConsumerPreservesOrder(t *testing.T) {
	const count = 1000
	queue := New[item](3)
	go func() {
		for index := range count {
			queue.Push(item(string(rune('a' + index%26))))
		}
		queue.Push("")
	}()

	received := 0
	for {
		value := queue.Pop()
		if value.Len() == 0 {
			break
		}
		if want := item(string(rune('a' + received%26))); value != want {
			t.Fatalf("item %d = %q, want %q", received, value, want)
		}
		received++
	}
	if received != count {
		t.Errorf("received %d items, want %d", received, count)
	}
}
