// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import "errors"

// IntegrityFailureThreshold is the number of consecutive integrity
// failures after which a connection is torn down and re-established.
const IntegrityFailureThreshold = 5

// ErrIntegrity matches every error returned for an envelope that failed
// validation.  Such envelopes are dropped.
var ErrIntegrity = errors.New("wire: envelope integrity failure")

type integrityError string

func (e integrityError) Error() string {
	return "wire: " + string(e)
}

func (e integrityError) Is(target error) bool {
	return target == ErrIntegrity
}

var (
	ErrUnknownAuthKey  error = integrityError("unknown auth key id")
	ErrMsgKeyMismatch  error = integrityError("msg_key mismatch")
	ErrSessionMismatch error = integrityError("session id mismatch")
	ErrBadLength       error = integrityError("invalid message length")
	ErrBadPadding      error = integrityError("invalid padding size")
	ErrMsgIDParity     error = integrityError("server msg_id is even")
	ErrMsgIDWindow     error = integrityError("msg_id outside of the time window")
	ErrDuplicate       error = integrityError("duplicate msg_id")
	ErrSeqNoRegression error = integrityError("seq_no went backwards")
	ErrShortEnvelope   error = integrityError("envelope too short")

	errInvalidKeySize = errors.New("wire: auth key must be 256 bytes")
	errPlainTooShort  = errors.New("wire: plain envelope too short")
	errPlainKeyID     = errors.New("wire: plain envelope has non-zero auth key id")
	errPlainLength    = errors.New("wire: plain envelope length mismatch")
	errPayloadTooBig  = errors.New("wire: payload too big")
)
