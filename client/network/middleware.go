// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/katzenpost/mtproto/core/retry"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/internal/instrument"
)

// CallContext describes one call as it travels through the middleware
// chain.  Middlewares may change DC before calling the next handler.
type CallContext struct {
	Request tl.Object
	Method  string

	DC         int
	Kind       Kind
	NoCoalesce bool
	Registry   *tl.Registry

	m *Manager
}

// Handler sends a call and waits for its result.
type Handler func(ctx context.Context, cc *CallContext) (tl.Object, error)

// Middleware wraps the handling of a call.
type Middleware interface {
	Handle(ctx context.Context, cc *CallContext, next Handler) (tl.Object, error)
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(ctx context.Context, cc *CallContext, next Handler) (tl.Object, error)

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(ctx context.Context, cc *CallContext, next Handler) (tl.Object, error) {
	return f(ctx, cc, next)
}

// Chain composes mws around final.  The first middleware is the outermost.
func Chain(final Handler, mws ...Middleware) Handler {
	h := final
	for i := len(mws) - 1; i >= 0; i-- {
		mw, next := mws[i], h
		h = func(ctx context.Context, cc *CallContext) (tl.Object, error) {
			return mw.Handle(ctx, cc, next)
		}
	}
	return h
}

// DefaultMiddlewares returns the flood waiter, the internal error handler
// and the migrate handler, in that order.
func DefaultMiddlewares() []Middleware {
	return []Middleware{
		&FloodWaiter{},
		&InternalErrorHandler{},
		&MigrateHandler{},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const (
	defaultFloodMaxWait = 10 * time.Second

	// floodStoreThreshold is the shortest wait remembered for later
	// calls of the same method.
	floodStoreThreshold = 2 * time.Second
)

// FloodWaiter handles FLOOD_WAIT_n style errors.  Waits up to MaxWait
// are slept through and the call is retried; longer ones are returned to
// the caller.  The wait is remembered per method so that later calls of
// the same method are held back before being sent.
type FloodWaiter struct {
	// MaxWait is the longest wait slept through.  Defaults to 10s.
	MaxWait time.Duration
	// MaxRetries is the number of retries after a wait.  Defaults to 1.
	MaxRetries int

	Now   func() time.Time
	Sleep func(context.Context, time.Duration) error

	sync.Mutex
	until map[string]time.Time
}

func (f *FloodWaiter) maxWait() time.Duration {
	if f.MaxWait <= 0 {
		return defaultFloodMaxWait
	}
	return f.MaxWait
}

func (f *FloodWaiter) maxRetries() int {
	if f.MaxRetries <= 0 {
		return 1
	}
	return f.MaxRetries
}

func (f *FloodWaiter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *FloodWaiter) sleep(ctx context.Context, d time.Duration) error {
	instrument.FloodWait(d.Seconds())
	if f.Sleep != nil {
		return f.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func (f *FloodWaiter) remember(method string, d time.Duration) {
	f.Lock()
	defer f.Unlock()
	if f.until == nil {
		f.until = make(map[string]time.Time)
	}
	f.until[method] = f.now().Add(d)
}

func (f *FloodWaiter) pending(method string) time.Duration {
	f.Lock()
	defer f.Unlock()
	t, ok := f.until[method]
	if !ok {
		return 0
	}
	d := t.Sub(f.now())
	if d <= 0 {
		delete(f.until, method)
		return 0
	}
	return d
}

// Handle implements Middleware.
func (f *FloodWaiter) Handle(ctx context.Context, cc *CallContext, next Handler) (tl.Object, error) {
	if d := f.pending(cc.Method); d > floodStoreThreshold {
		if d > f.maxWait() {
			secs := int(math.Ceil(d.Seconds()))
			return nil, &RPCError{Code: 420, Message: fmt.Sprintf("FLOOD_WAIT_%d", secs), Method: cc.Method}
		}
		if err := f.sleep(ctx, d); err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		res, err := next(ctx, cc)
		var rerr *RPCError
		if !errors.As(err, &rerr) {
			return res, err
		}
		d, ok := rerr.FloodWait()
		if !ok {
			return res, err
		}
		if !rerr.SlowMode() && d >= floodStoreThreshold {
			f.remember(cc.Method, d)
		}
		if attempt >= f.maxRetries() || d > f.maxWait() {
			return nil, err
		}
		if err := f.sleep(ctx, d); err != nil {
			return nil, err
		}
	}
}

// InternalErrorHandler retries calls that failed with a transient server
// error, with exponential backoff.
type InternalErrorHandler struct {
	// MaxRetries defaults to retry.DefaultMaxAttempts.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	Sleep func(context.Context, time.Duration) error
}

// Handle implements Middleware.
func (h *InternalErrorHandler) Handle(ctx context.Context, cc *CallContext, next Handler) (tl.Object, error) {
	maxRetries := h.MaxRetries
	if maxRetries <= 0 {
		maxRetries = retry.DefaultMaxAttempts
	}
	base, max := h.BaseDelay, h.MaxDelay
	if base <= 0 {
		base = retry.DefaultBaseDelay
	}
	if max <= 0 {
		max = retry.DefaultMaxDelay
	}
	sleep := h.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 0; ; attempt++ {
		res, err := next(ctx, cc)
		var rerr *RPCError
		if !errors.As(err, &rerr) || !rerr.Transient() || attempt >= maxRetries {
			return res, err
		}
		if cc.m != nil {
			cc.m.log.Debugf("%s: transient error %v, retry %d", cc.Method, rerr, attempt+1)
		}
		if err := sleep(ctx, retry.Delay(base, max, retry.DefaultJitter, attempt)); err != nil {
			return nil, err
		}
	}
}

// MigrateHandler reissues calls rejected with a *_MIGRATE_n error on data
// center n.  A PHONE, NETWORK or USER migrate also moves the primary data
// center of the Manager.
type MigrateHandler struct{}

// Handle implements Middleware.
func (MigrateHandler) Handle(ctx context.Context, cc *CallContext, next Handler) (tl.Object, error) {
	for i := 0; ; i++ {
		res, err := next(ctx, cc)
		var rerr *RPCError
		if !errors.As(err, &rerr) || i >= maxMigrations {
			return res, err
		}
		dc, primary, ok := rerr.Migrate()
		if !ok || dc == cc.DC {
			return res, err
		}
		if cc.m != nil {
			cc.m.log.Noticef("%s: migrating from DC %d to DC %d", cc.Method, cc.DC, dc)
			if primary {
				cc.m.SetPrimaryDC(dc)
			}
		}
		cc.DC = dc
	}
}
