// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRPCErrorFloodWait(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		msg  string
		wait time.Duration
		ok   bool
		slow bool
	}{
		{"FLOOD_WAIT_5", 5 * time.Second, true, false},
		{"FLOOD_WAIT_0", time.Second, true, false},
		{"SLOWMODE_WAIT_30", 30 * time.Second, true, true},
		{"FLOOD_PREMIUM_WAIT_2", 2 * time.Second, true, false},
		{"FLOOD_WAIT_X", 0, false, false},
		{"PEER_ID_INVALID", 0, false, false},
	} {
		tc := tc
		t.Run(tc.msg, func(t *testing.T) {
			require := require.New(t)
			e := &RPCError{Code: 420, Message: tc.msg}
			d, ok := e.FloodWait()
			require.Equal(tc.ok, ok)
			require.Equal(tc.wait, d)
			require.Equal(tc.slow, e.SlowMode())
		})
	}
}

func TestRPCErrorMigrate(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	dc, primary, ok := (&RPCError{Code: 303, Message: "PHONE_MIGRATE_4"}).Migrate()
	require.True(ok)
	require.True(primary)
	require.Equal(4, dc)

	dc, primary, ok = (&RPCError{Code: 303, Message: "FILE_MIGRATE_5"}).Migrate()
	require.True(ok)
	require.False(primary)
	require.Equal(5, dc)

	_, _, ok = (&RPCError{Code: 303, Message: "USER_MIGRATE_0"}).Migrate()
	require.False(ok)

	_, _, ok = (&RPCError{Code: 400, Message: "FLOOD_WAIT_5"}).Migrate()
	require.False(ok)
}

func TestRPCErrorTransient(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	require.True((&RPCError{Code: 500, Message: "WHATEVER"}).Transient())
	require.True((&RPCError{Code: -503, Message: "Timeout"}).Transient())
	require.True((&RPCError{Code: 400, Message: "WORKER_BUSY_TOO_LONG_RETRY"}).Transient())
	require.True((&RPCError{Code: 400, Message: "MSG_WAIT_INTERNAL"}).Transient())
	require.False((&RPCError{Code: 400, Message: "PEER_ID_INVALID"}).Transient())
	require.False((&RPCError{Code: 420, Message: "FLOOD_WAIT_3"}).Transient())
}

func TestRPCErrorMatching(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	err := fmt.Errorf("wrapped: %w", &RPCError{Code: 420, Message: "FLOOD_WAIT_31", Method: "messages.sendMessage"})
	require.ErrorIs(err, &RPCError{Code: 420})
	require.ErrorIs(err, &RPCError{Message: "FLOOD_WAIT_31"})
	require.False(errors.Is(err, &RPCError{Code: 400}))
	require.False(errors.Is(err, &RPCError{Code: 420, Message: "FLOOD_WAIT_30"}))
	require.Contains(err.Error(), "caused by messages.sendMessage")

	var rerr *RPCError
	require.True(errors.As(err, &rerr))
	require.Equal("FLOOD_WAIT", rerr.Kind())
	n, ok := rerr.Argument()
	require.True(ok)
	require.Equal(31, n)

	plain := &RPCError{Code: 400, Message: "PEER_ID_INVALID"}
	require.Equal("PEER_ID_INVALID", plain.Kind())
	_, ok = plain.Argument()
	require.False(ok)
}
