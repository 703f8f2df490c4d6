// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package tl implements the TL binary serialization used by MTProto.
//
// Integers are fixed width little-endian, byte strings are length
// prefixed and padded to a four byte boundary, and every boxed object is
// preceded by its 32-bit constructor id which the Decoder uses to dispatch
// through a Registry.
package tl

import (
	"encoding/hex"
)

const (
	// VectorID is the constructor id of the boxed vector type.
	VectorID uint32 = 0x1cb5c415

	BoolTrueID  uint32 = 0x997275b5
	BoolFalseID uint32 = 0xbc799737
)

// Object is a TL schema object.  EncodeBare and DecodeBare handle the
// body only; the constructor id is written and consumed by the caller.
type Object interface {
	CRC() uint32
	EncodeBare(e *Encoder) error
	DecodeBare(d *Decoder) error
}

// Int128 is a raw 128-bit value (nonces).
type Int128 [16]byte

// Int256 is a raw 256-bit value (new_nonce).
type Int256 [32]byte

func (v Int128) String() string {
	return hex.EncodeToString(v[:])
}

func (v Int256) String() string {
	return hex.EncodeToString(v[:])
}

// Raw is an already encoded boxed object.  It lets callers forward
// objects whose schema is not compiled into the registry.
type Raw struct {
	ID   uint32
	Body []byte
}

func (r *Raw) CRC() uint32 {
	return r.ID
}

func (r *Raw) EncodeBare(e *Encoder) error {
	e.PutRaw(r.Body)
	return nil
}

// DecodeBare consumes the rest of the decoder.  It is only correct for
// top-level objects or objects with an outer length prefix.
func (r *Raw) DecodeBare(d *Decoder) error {
	r.Body = append([]byte(nil), d.Rest()...)
	return nil
}

// TypeName returns a printable name for the constructor of o.
func TypeName(o Object) string {
	if n, ok := o.(interface{ TypeName() string }); ok {
		return n.TypeName()
	}
	var b [4]byte
	id := o.CRC()
	b[0], b[1], b[2], b[3] = byte(id>>24), byte(id>>16), byte(id>>8), byte(id)
	return "#" + hex.EncodeToString(b[:])
}
