// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package updates

import (
	"sync"
)

// inbox is an unbounded FIFO.  Producers never block, which lets the
// network read loop hand updates over.
type inbox struct {
	sync.Mutex
	items []interface{}
	ch    chan struct{}
}

func newInbox() *inbox {
	return &inbox{ch: make(chan struct{}, 1)}
}

func (q *inbox) push(v interface{}) {
	q.Lock()
	q.items = append(q.items, v)
	q.Unlock()
	select {
	case q.ch <- struct{}{}:
	default:
	}
}

func (q *inbox) drain() []interface{} {
	q.Lock()
	defer q.Unlock()
	items := q.items
	q.items = nil
	return items
}
