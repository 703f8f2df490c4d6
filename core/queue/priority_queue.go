// SPDX-FileCopyrightText: Copyright (C) 2017, 2018  David Anthony Stainton, Yawning Angel
// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package queue implements a min-heap priority queue keyed by int64.
package queue

import (
	"container/heap"
)

// Entry is a queued value.
type Entry[T any] struct {
	Value    T
	Priority int64
}

type entries[T any] []*Entry[T]

func (h entries[T]) Len() int { return len(h) }

func (h entries[T]) Less(i, j int) bool { return h[i].Priority < h[j].Priority }

func (h entries[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entries[T]) Push(x interface{}) {
	*h = append(*h, x.(*Entry[T]))
}

func (h *entries[T]) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// PriorityQueue returns its entries lowest priority first.  Entries of
// equal priority come out in no particular order.  It is not safe for
// concurrent use.
type PriorityQueue[T any] struct {
	heap entries[T]
}

// New returns an empty queue.
func New[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

// Enqueue adds value with the given priority.
func (q *PriorityQueue[T]) Enqueue(priority int64, value T) {
	heap.Push(&q.heap, &Entry[T]{Value: value, Priority: priority})
}

// Peek returns the lowest priority entry without removing it, or nil.
func (q *PriorityQueue[T]) Peek() *Entry[T] {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// Dequeue removes and returns the lowest priority entry, or nil.
func (q *PriorityQueue[T]) Dequeue() *Entry[T] {
	if len(q.heap) == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*Entry[T])
}

// Len returns the number of queued entries.
func (q *PriorityQueue[T]) Len() int {
	return len(q.heap)
}

// Clear drops every entry.
func (q *PriorityQueue[T]) Clear() {
	for i := range q.heap {
		q.heap[i] = nil
	}
	q.heap = q.heap[:0]
}
