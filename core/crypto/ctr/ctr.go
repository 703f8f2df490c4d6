// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package ctr provides an incremental AES-CTR stream, as used by the
// obfuscated transport.
package ctr

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

var errInvalidIV = errors.New("ctr: IV must be 16 bytes")

// Stream is an AES-256-CTR keystream.  Successive calls to XORKeyStream
// continue where the previous one stopped, so a large payload may be
// processed in arbitrary chunks.
type Stream struct {
	s cipher.Stream
}

// New returns a Stream for key and iv.
func New(key, iv []byte) (*Stream, error) {
	if len(iv) != aes.BlockSize {
		return nil, errInvalidIV
	}
	b, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Stream{s: cipher.NewCTR(b, iv)}, nil
}

// XORKeyStream XORs src with the keystream into dst.  dst and src may
// overlap entirely.
func (s *Stream) XORKeyStream(dst, src []byte) {
	s.s.XORKeyStream(dst, src)
}

// Process returns src XORed with the keystream in a new slice.
func (s *Stream) Process(src []byte) []byte {
	dst := make([]byte, len(src))
	s.s.XORKeyStream(dst, src)
	return dst
}
