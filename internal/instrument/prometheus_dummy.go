// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !prometheus

// Package instrument exports the client metrics.  Build with the
// prometheus tag to collect them.
package instrument

import "log"

// Init instrumentation
func Init(address string, errLog *log.Logger) {}

// RPCCall increments the counter of sent RPC calls
func RPCCall(method string) {}

// RPCError increments the counter of RPC errors by kind
func RPCError(kind string) {}

// FloodWait observes a flood wait honoured by the client
func FloodWait(seconds float64) {}

// Reconnect increments the counter of reconnect attempts
func Reconnect(dc int, kind string) {}

// Handshake increments the counter of auth key exchanges
func Handshake(dc int, temporary bool, err error) {}

// IntegrityFailure increments the counter of dropped envelopes
func IntegrityFailure() {}

// TransportError increments the counter of transport error codes
func TransportError(code int32) {}

// ContainerSize observes the number of messages in an outgoing packet
func ContainerSize(n int) {}

// UpdateGap increments the counter of detected update gaps
func UpdateGap(scope string) {}

// DifferenceFetch increments the counter of difference requests
func DifferenceFetch(scope string) {}
