// Copyright © 2018 One Concern

// Package queue provides a bounded FIFO with blocking semantics.
//
// A Bounded queue has a capacity and a high-water (drain-out) threshold:
// once the queue has filled up to its capacity, producers remain blocked until
// consumers have drained it below the high-water mark. This hysteresis avoids
// waking up producers for every single dequeued item when a consumer lags behind.
package queue

import (
	"sync"
)

// Bounded is a thread-safe FIFO with a capacity and a high-water mark.
//
// The zero value is not usable: use New.
type Bounded[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items     []T
	capacity  int
	highWater int
	draining  bool // set when capacity is reached, cleared when below highWater
	closed    bool
}

// New builds a bounded queue.
//
// A capacity lower than 1 is set to 1. The high-water mark is clamped to [1, capacity].
func New[T any](capacity, highWater int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	if highWater < 1 || highWater > capacity {
		highWater = capacity
	}
	q := &Bounded[T]{
		items:     make([]T, 0, capacity),
		capacity:  capacity,
		highWater: highWater,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *Bounded[T]) full() bool {
	return q.draining || len(q.items) >= q.capacity
}

// Enqueue appends an item, blocking while the queue is full.
//
// It returns false if the queue is closed.
func (q *Bounded[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.full() {
		q.notFull.Wait()
	}
	if q.closed {
		return false
	}
	q.push(item)
	return true
}

// TryEnqueue appends an item if this can be done without blocking
func (q *Bounded[T]) TryEnqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.full() {
		return false
	}
	q.push(item)
	return true
}

func (q *Bounded[T]) push(item T) {
	q.items = append(q.items, item)
	if len(q.items) >= q.capacity {
		q.draining = true
	}
	q.notEmpty.Signal()
}

// Dequeue removes the oldest item, blocking while the queue is empty.
//
// It returns false if the queue is closed and has been drained.
func (q *Bounded[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && len(q.items) == 0 {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// TryDequeue removes the oldest item if there is one
func (q *Bounded[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

func (q *Bounded[T]) pop() T {
	var zero T
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// reclaim the backing array
		q.items = make([]T, 0, q.capacity)
	}

	if q.draining && len(q.items) < q.highWater {
		q.draining = false
		q.notFull.Broadcast()
	} else if !q.draining {
		q.notFull.Signal()
	}
	return item
}

// Drop discards all queued items and reopens a closed queue
func (q *Bounded[T]) Drop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = make([]T, 0, q.capacity)
	q.draining = false
	q.closed = false
	q.notFull.Broadcast()
}

// Close wakes up all blocked producers and consumers.
//
// Items still queued may be dequeued after Close. Enqueue fails after Close.
func (q *Bounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Len yields the number of queued items
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// IsEmpty tells if the queue has no item
func (q *Bounded[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Capacity of the queue
func (q *Bounded[T]) Capacity() int {
	return q.capacity
}

// HighWater is the threshold under which blocked producers resume after the queue has been full
func (q *Bounded[T]) HighWater() int {
	return q.highWater
}
