// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package authkey

import (
	"fmt"
	"strings"
)

// State is a step of the key exchange.
type State string

const (
	StateRequestPQ       State = "request_pq"
	StateDecomposePQ     State = "decompose_pq"
	StateRequestDHParams State = "request_dh_params"
	StateVerifyDH        State = "decrypt_and_verify_dh"
	StateComputeDHGen    State = "compute_dh_gen_key"
	StateConfirmed       State = "confirmed"
)

// HandshakeError describes a failed key exchange.  Security failures are
// never retried; Transport marks failures of the underlying connection,
// after which a fresh attempt may succeed.
type HandshakeError struct {
	State   State
	Message string
	Err     error

	DC        int
	Temporary bool
	Transport bool
	Attempt   int

	// ServerNonce is set once resPQ has been received.
	ServerNonce []byte
	// Fingerprints lists the server key fingerprints offered in resPQ.
	Fingerprints []int64
}

func (e *HandshakeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "authkey: handshake failed at %s", e.State)
	if e.Temporary {
		b.WriteString(" (temporary key)")
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// Verbose returns a multi line report suitable for debug logs.
func (e *HandshakeError) Verbose() string {
	var b strings.Builder
	b.WriteString("=== AUTH KEY EXCHANGE FAILURE ===\n")
	fmt.Fprintf(&b, "State: %s\n", e.State)
	fmt.Fprintf(&b, "DC: %d\n", e.DC)
	fmt.Fprintf(&b, "Temporary: %v\n", e.Temporary)
	fmt.Fprintf(&b, "Attempt: %d\n", e.Attempt)
	fmt.Fprintf(&b, "Error Message: %s\n", e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, "Underlying Error: %v\n", e.Err)
	}
	if e.Transport {
		b.WriteString("Cause: transport (retryable)\n")
	} else {
		b.WriteString("Cause: protocol or security check (fatal)\n")
	}
	if e.ServerNonce != nil {
		fmt.Fprintf(&b, "Server Nonce: %x\n", e.ServerNonce)
	}
	if len(e.Fingerprints) > 0 {
		b.WriteString("Server Key Fingerprints:")
		for _, fp := range e.Fingerprints {
			fmt.Fprintf(&b, " %016x", uint64(fp))
		}
		b.WriteString("\n")
	}
	b.WriteString("=== END AUTH KEY EXCHANGE FAILURE ===")
	return b.String()
}

func newError(state State, msg string, err error) *HandshakeError {
	return &HandshakeError{
		State:   state,
		Message: msg,
		Err:     err,
	}
}
