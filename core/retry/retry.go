// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package retry provides backoff policies shared by the connection and
// call layers.
package retry

import (
	"errors"
	"math"
	"net"
	"strings"
	"time"

	"github.com/katzenpost/hpqc/rand"
)

const (
	// DefaultMaxAttempts is the default maximum number of retry attempts
	DefaultMaxAttempts = 5

	// DefaultBaseDelay is the default base delay between retries
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultMaxDelay is the default maximum delay between retries
	DefaultMaxDelay = 10 * time.Second

	// DefaultJitter is the default jitter factor (0.0 to 1.0)
	DefaultJitter = 0.2

	// FloodBaseDelay and FloodMaxDelay bound the backoff applied after
	// the server refused a connection with a flood transport error.
	FloodBaseDelay = time.Second
	FloodMaxDelay  = 16 * time.Second
)

// Delay calculates the delay for a given retry attempt using exponential
// backoff with jitter.
func Delay(baseDelay, maxDelay time.Duration, jitter float64, attempt int) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	if jitter > 0 {
		r := rand.NewMath()
		delay *= 1 - jitter + r.Float64()*2*jitter
	}

	return time.Duration(delay)
}

// FloodDelay returns the wait before reconnecting after the n-th
// consecutive flood transport error, starting at zero: 1s doubling to 16s.
func FloodDelay(n int) time.Duration {
	return Delay(FloodBaseDelay, FloodMaxDelay, 0, n)
}

// ReconnectParams identifies the connection being reconnected.
type ReconnectParams struct {
	DC   int
	Kind string
}

// ReconnectStrategy decides how long to wait before the next reconnect
// attempt, or that no attempt should be made.  failures counts
// consecutive failed attempts; previous is the last wait returned.
type ReconnectStrategy func(p ReconnectParams, lastErr error, failures int, previous time.Duration) (time.Duration, bool)

// DefaultReconnect retries immediately once, then waits 1s more on every
// further failure up to 5s.
func DefaultReconnect(_ ReconnectParams, _ error, failures int, previous time.Duration) (time.Duration, bool) {
	if failures <= 1 {
		return 0, true
	}
	next := previous + time.Second
	if next > 5*time.Second {
		next = 5 * time.Second
	}
	return next, true
}

// IsTransientError returns true if the error is likely transient and worth
// retrying.  This includes network timeouts, connection refused, connection
// reset, etc.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timed out",
		"timeout",
		"temporary failure",
		"no route to host",
		"network is unreachable",
		"eof",
		"broken pipe",
		"closed pipe",
		"connection closed",
		"closed network connection",
	}

	lowerErr := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(lowerErr, pattern) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// FilterUsableAddresses drops "host:port" addresses of a disabled address
// family.  Hostnames are always kept; when nothing is left the input is
// returned unchanged.
func FilterUsableAddresses(addresses []string, disableIPv4, disableIPv6 bool) []string {
	var filtered []string
	for _, addr := range addresses {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		ip := net.ParseIP(host)
		switch {
		case ip == nil:
			filtered = append(filtered, addr)
		case ip.To4() != nil:
			if !disableIPv4 {
				filtered = append(filtered, addr)
			}
		default:
			if !disableIPv6 {
				filtered = append(filtered, addr)
			}
		}
	}
	if len(filtered) == 0 {
		return addresses
	}
	return filtered
}
