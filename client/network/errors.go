// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrShutdown is the error returned when the manager is closed.
	ErrShutdown = errors.New("network: shutdown requested")

	// ErrPayloadTooBig is returned for requests the server would refuse
	// by closing the connection.
	ErrPayloadTooBig = errors.New("network: payload too big")

	// ErrReconnectDisabled is returned to pending calls when the
	// reconnect strategy gives up on a connection.
	ErrReconnectDisabled = errors.New("network: reconnect strategy gave up")

	errBadMsg = errors.New("network: unrecoverable bad_msg_notification")
)

var floodPrefixes = []string{
	"FLOOD_WAIT_",
	"SLOWMODE_WAIT_",
	"FLOOD_TEST_PHONE_WAIT_",
	"FLOOD_PREMIUM_WAIT_",
}

var migratePrefixes = []struct {
	prefix  string
	primary bool
}{
	{"PHONE_MIGRATE_", true},
	{"NETWORK_MIGRATE_", true},
	{"USER_MIGRATE_", true},
	{"FILE_MIGRATE_", false},
	{"STATS_MIGRATE_", false},
}

// RPCError is an error returned by the server for a call.  Code and
// Message are the server's values, unmodified.
type RPCError struct {
	Code    int32
	Message string

	// Method is the name of the request that failed.
	Method string
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s (caused by %s)", e.Code, e.Message, e.Method)
}

// Is matches another *RPCError with the same message, or the same code
// when the target message is empty.
func (e *RPCError) Is(target error) bool {
	t, ok := target.(*RPCError)
	if !ok {
		return false
	}
	if t.Message == "" {
		return t.Code == e.Code
	}
	return t.Message == e.Message
}

// Argument returns the trailing integer of messages such as FLOOD_WAIT_5.
func (e *RPCError) Argument() (int, bool) {
	i := strings.LastIndexByte(e.Message, '_')
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(e.Message[i+1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Kind returns the message without its trailing integer argument.
func (e *RPCError) Kind() string {
	if _, ok := e.Argument(); ok {
		return e.Message[:strings.LastIndexByte(e.Message, '_')]
	}
	return e.Message
}

// FloodWait returns the wait a rate limit error asks for.  A zero wait
// is reported as one second.
func (e *RPCError) FloodWait() (time.Duration, bool) {
	for _, p := range floodPrefixes {
		if !strings.HasPrefix(e.Message, p) {
			continue
		}
		n, ok := e.Argument()
		if !ok {
			return 0, false
		}
		if n == 0 {
			n = 1
		}
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

// SlowMode returns true for per-chat rate limits, which must not delay
// other calls of the same method.
func (e *RPCError) SlowMode() bool {
	return strings.HasPrefix(e.Message, "SLOWMODE_WAIT_")
}

// Migrate returns the data center a call must be reissued on, and
// whether the account's primary data center moved with it.
func (e *RPCError) Migrate() (dc int, primary, ok bool) {
	for _, p := range migratePrefixes {
		if !strings.HasPrefix(e.Message, p.prefix) {
			continue
		}
		n, ok := e.Argument()
		if !ok || n == 0 {
			return 0, false, false
		}
		return n, p.primary, true
	}
	return 0, false, false
}

// Transient returns true for server side failures that are expected to
// go away when the call is repeated.
func (e *RPCError) Transient() bool {
	switch e.Code {
	case 500, -500, -503:
		return true
	}
	switch {
	case e.Message == "Timeout",
		e.Message == "RPC_CALL_FAIL",
		strings.Contains(e.Message, "INTERNAL"),
		strings.HasPrefix(e.Message, "WORKER_BUSY"),
		strings.HasSuffix(e.Message, "_TOO_LONG_RETRY"):
		return true
	}
	return false
}

// ConnectError is the error used to indicate that a connect attempt has failed.
type ConnectError struct {
	// Err is the original error that caused the connect attempt to fail.
	Err error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("network: connect error: %v", e.Err)
}

// Unwrap returns the original error.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

func newConnectError(f string, a ...interface{}) error {
	return &ConnectError{Err: fmt.Errorf(f, a...)}
}

// ProtocolError is the error used to indicate that the connection was closed
// due to wire protocol related reasons.
type ProtocolError struct {
	// Err is the original error that triggered connection termination.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("network: protocol error: %v", e.Err)
}

// Unwrap returns the original error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func newProtocolError(f string, a ...interface{}) error {
	return &ProtocolError{Err: fmt.Errorf(f, a...)}
}
