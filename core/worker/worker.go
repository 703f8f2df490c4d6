// SPDX-FileCopyrightText: Copyright (C) 2017  Yawning Angel.
// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package worker provides background worker tasks.
package worker

import (
	"context"
	"sync"
)

// Worker is a set of managed background go routines.
type Worker struct {
	sync.WaitGroup
	initOnce sync.Once
	haltOnce sync.Once

	// goLock orders Go against Halt, so no Add follows the final Wait.
	goLock sync.Mutex

	haltCh chan interface{}
	ctx    context.Context
	cancel context.CancelFunc
}

// Go excutes the function fn in a new Go routine.  Multiple Go routines may
// be started under the same Worker.  It is the function's responsiblity to
// monitor the channel returned by `Worker.HaltCh()` and to return.  Once
// Halt has been called fn is not run.
func (w *Worker) Go(fn func()) {
	w.initOnce.Do(w.init)
	w.goLock.Lock()
	defer w.goLock.Unlock()
	if w.IsHalted() {
		return
	}
	w.Add(1)
	go func() {
		defer w.Done()
		fn()
	}()
}

// Halt signals all Go routines started under a Worker to terminate, and waits
// till all go routines have returned.  It may be called more than once.
func (w *Worker) Halt() {
	w.initOnce.Do(w.init)
	w.goLock.Lock()
	w.haltOnce.Do(func() {
		close(w.haltCh)
		w.cancel()
	})
	w.goLock.Unlock()
	w.Wait()
}

// HaltCh returns the channel that will be closed on a call to Halt.
func (w *Worker) HaltCh() <-chan interface{} {
	w.initOnce.Do(w.init)
	return w.haltCh
}

// HaltCtx returns a context that is cancelled on a call to Halt.
func (w *Worker) HaltCtx() context.Context {
	w.initOnce.Do(w.init)
	return w.ctx
}

// IsHalted reports whether Halt has been called.
func (w *Worker) IsHalted() bool {
	select {
	case <-w.HaltCh():
		return true
	default:
		return false
	}
}

func (w *Worker) init() {
	w.haltCh = make(chan interface{})
	w.ctx, w.cancel = context.WithCancel(context.Background())
}
