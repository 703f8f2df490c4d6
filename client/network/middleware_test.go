// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/api"
)

// fakeClock is advanced by the sleeps of the middlewares under test.
type fakeClock struct {
	now   time.Time
	slept time.Duration
	naps  int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	c.slept += d
	c.naps++
	return nil
}

// scripted returns a handler answering with errs in turn, then with a
// result.
func scripted(calls *int, errs ...error) Handler {
	return func(_ context.Context, cc *CallContext) (tl.Object, error) {
		i := *calls
		*calls++
		if i < len(errs) && errs[i] != nil {
			return nil, errs[i]
		}
		return &api.UpdatesState{Pts: int32(cc.DC)}, nil
	}
}

func testCall(method string) *CallContext {
	return &CallContext{Request: &api.UpdatesGetState{}, Method: method, DC: 2}
}

func TestFloodWaiter(t *testing.T) {
	t.Parallel()

	t.Run("short wait is slept through", func(t *testing.T) {
		require := require.New(t)
		clock := newFakeClock()
		fw := &FloodWaiter{Now: clock.Now, Sleep: clock.Sleep}

		calls := 0
		h := Chain(scripted(&calls, &RPCError{Code: 420, Message: "FLOOD_WAIT_5"}), fw)
		res, err := h(context.Background(), testCall("messages.sendMessage"))
		require.NoError(err)
		require.NotNil(res)
		require.Equal(2, calls)
		require.Equal(1, clock.naps)
		require.GreaterOrEqual(clock.slept, 5*time.Second)

		// The wait is over: the next call goes straight through.
		calls = 0
		_, err = h(context.Background(), testCall("messages.sendMessage"))
		require.NoError(err)
		require.Equal(1, calls)
		require.Equal(1, clock.naps)
	})

	t.Run("retried once", func(t *testing.T) {
		require := require.New(t)
		clock := newFakeClock()
		fw := &FloodWaiter{Now: clock.Now, Sleep: clock.Sleep}

		flood := &RPCError{Code: 420, Message: "FLOOD_WAIT_1"}
		calls := 0
		h := Chain(scripted(&calls, flood, flood, flood), fw)
		_, err := h(context.Background(), testCall("help.getConfig"))
		require.ErrorIs(err, flood)
		require.Equal(2, calls)
	})

	t.Run("long wait is returned and remembered", func(t *testing.T) {
		require := require.New(t)
		clock := newFakeClock()
		fw := &FloodWaiter{Now: clock.Now, Sleep: clock.Sleep}

		calls := 0
		h := Chain(scripted(&calls, &RPCError{Code: 420, Message: "FLOOD_WAIT_30"}), fw)
		_, err := h(context.Background(), testCall("contacts.resolveUsername"))
		var rerr *RPCError
		require.True(errors.As(err, &rerr))
		require.Equal("FLOOD_WAIT_30", rerr.Message)
		require.Equal(1, calls)
		require.Zero(clock.naps)

		// Held back locally without reaching the server.
		_, err = h(context.Background(), testCall("contacts.resolveUsername"))
		require.True(errors.As(err, &rerr))
		require.Equal(int32(420), rerr.Code)
		require.Equal("FLOOD_WAIT_30", rerr.Message)
		require.Equal(1, calls)

		// Other methods are not affected.
		_, err = h(context.Background(), testCall("help.getConfig"))
		require.NoError(err)
		require.Equal(2, calls)
	})

	t.Run("remembered wait delays the next call", func(t *testing.T) {
		require := require.New(t)
		clock := newFakeClock()
		fw := &FloodWaiter{MaxWait: time.Minute, MaxRetries: 1, Now: clock.Now, Sleep: clock.Sleep}
		fw.remember("upload.saveFilePart", 20*time.Second)

		calls := 0
		h := Chain(scripted(&calls), fw)
		_, err := h(context.Background(), testCall("upload.saveFilePart"))
		require.NoError(err)
		require.Equal(1, calls)
		require.Equal(20*time.Second, clock.slept)
	})

	t.Run("slow mode is not remembered", func(t *testing.T) {
		require := require.New(t)
		clock := newFakeClock()
		fw := &FloodWaiter{Now: clock.Now, Sleep: clock.Sleep}

		calls := 0
		h := Chain(scripted(&calls, &RPCError{Code: 420, Message: "SLOWMODE_WAIT_60"}), fw)
		_, err := h(context.Background(), testCall("messages.sendMessage"))
		require.Error(err)
		_, err = h(context.Background(), testCall("messages.sendMessage"))
		require.NoError(err)
		require.Equal(2, calls)
	})
}

func TestInternalErrorHandler(t *testing.T) {
	t.Parallel()

	t.Run("transient errors are retried", func(t *testing.T) {
		require := require.New(t)
		clock := newFakeClock()
		calls := 0
		internal := &RPCError{Code: 500, Message: "INTERNAL_SERVER_ERROR"}
		h := Chain(scripted(&calls, internal, internal), &InternalErrorHandler{Sleep: clock.Sleep})
		_, err := h(context.Background(), testCall("help.getConfig"))
		require.NoError(err)
		require.Equal(3, calls)
		require.Equal(2, clock.naps)
	})

	t.Run("gives up", func(t *testing.T) {
		require := require.New(t)
		clock := newFakeClock()
		calls := 0
		internal := &RPCError{Code: -500, Message: "No workers running"}
		h := Chain(scripted(&calls, internal, internal, internal, internal),
			&InternalErrorHandler{MaxRetries: 2, Sleep: clock.Sleep})
		_, err := h(context.Background(), testCall("help.getConfig"))
		require.ErrorIs(err, internal)
		require.Equal(3, calls)
	})

	t.Run("other errors are returned", func(t *testing.T) {
		require := require.New(t)
		clock := newFakeClock()
		calls := 0
		bad := &RPCError{Code: 400, Message: "PEER_ID_INVALID"}
		h := Chain(scripted(&calls, bad), &InternalErrorHandler{Sleep: clock.Sleep})
		_, err := h(context.Background(), testCall("messages.getHistory"))
		require.ErrorIs(err, bad)
		require.Equal(1, calls)
		require.Zero(clock.naps)
	})
}

func TestMigrateHandler(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var dcs []int
	final := func(_ context.Context, cc *CallContext) (tl.Object, error) {
		dcs = append(dcs, cc.DC)
		if cc.DC == 2 {
			return nil, &RPCError{Code: 303, Message: "USER_MIGRATE_4"}
		}
		return &api.UpdatesState{Pts: int32(cc.DC)}, nil
	}
	res, err := Chain(final, MigrateHandler{})(context.Background(), testCall("auth.sendCode"))
	require.NoError(err)
	require.Equal(int32(4), res.(*api.UpdatesState).Pts)
	require.Equal([]int{2, 4}, dcs)

	// A server insisting on migrating forever is given up on.
	calls := 0
	loop := func(_ context.Context, cc *CallContext) (tl.Object, error) {
		calls++
		return nil, &RPCError{Code: 303, Message: "FILE_MIGRATE_" + itoa(cc.DC+1)}
	}
	_, err = Chain(loop, MigrateHandler{})(context.Background(), testCall("upload.getFile"))
	require.Error(err)
	require.Equal(maxMigrations+1, calls)
}

func TestChainOrder(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	var trace []string
	mw := func(name string) Middleware {
		return MiddlewareFunc(func(ctx context.Context, cc *CallContext, next Handler) (tl.Object, error) {
			trace = append(trace, name+">")
			res, err := next(ctx, cc)
			trace = append(trace, "<"+name)
			return res, err
		})
	}
	final := func(context.Context, *CallContext) (tl.Object, error) {
		trace = append(trace, "call")
		return &api.UpdatesState{}, nil
	}
	_, err := Chain(final, mw("a"), mw("b"))(context.Background(), testCall("help.getConfig"))
	require.NoError(err)
	require.Equal([]string{"a>", "b>", "call", "<b", "<a"}, trace)
}
