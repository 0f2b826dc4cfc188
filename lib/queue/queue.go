// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue provides the bounded blocking FIFO that connects the
// stages of a relay pipeline.
//
// Items report their size through Len. An item of length zero is a
// sentinel: it is always admitted, even when the queue is full, so a
// stage shutting down can never block on a stalled consumer. Ordinary
// items block the producer while the queue holds capacity items or
// more.
package queue

import "sync"

// Item is anything that can travel through a Queue. Len() == 0 marks
// a sentinel.
type Item interface {
	Len() int
}

// Queue is a bounded FIFO safe for one producer and one consumer (and
// in practice any number of either).
type Queue[T Item] struct {
	capacity int

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []T

	// blockedProducers counts producers parked in Push. Tests use it
	// to observe backpressure without sleeping.
	blockedProducers int
}

// New creates a Queue holding at most capacity non-sentinel items.
// Capacity below one is raised to one.
func New[T Item](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	queue := &Queue[T]{
		capacity: capacity,
		items:    make([]T, 0, capacity),
	}
	queue.notEmpty = sync.NewCond(&queue.mu)
	queue.notFull = sync.NewCond(&queue.mu)
	return queue
}

// Capacity returns the configured capacity.
func (q *Queue[T]) Capacity() int { return q.capacity }

// Push appends item, blocking while the queue is full unless item is
// a sentinel.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item.Len() != 0 {
		for len(q.items) >= q.capacity {
			q.blockedProducers++
			q.notFull.Wait()
			q.blockedProducers--
		}
	}
	q.items = append(q.items, item)
	q.notEmpty.Signal()
}

// Pop removes and returns the oldest item, blocking while the queue is
// empty.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.notEmpty.Wait()
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) < q.capacity {
		q.notFull.Signal()
	}
	return item
}

// Len returns the number of queued items, sentinels included.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) waitingProducers() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.blockedProducers
}
