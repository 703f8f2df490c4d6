// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package tl

import (
	"encoding/binary"
	"math"
	"math/big"
)

// Encoder appends TL encoded values to a growing buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with capacity for sizeHint bytes.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the encoded buffer.  The slice aliases the Encoder's
// internal storage until the next write.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Reset discards the buffer contents, keeping the allocation.
func (e *Encoder) Reset() {
	e.buf = e.buf[:0]
}

func (e *Encoder) PutID(id uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, id)
}

func (e *Encoder) PutUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) PutInt32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
}

func (e *Encoder) PutUint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) PutInt64(v int64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v))
}

func (e *Encoder) PutDouble(v float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v))
}

// PutBool writes boolTrue or boolFalse.
func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutID(BoolTrueID)
	} else {
		e.PutID(BoolFalseID)
	}
}

func (e *Encoder) PutInt128(v Int128) {
	e.buf = append(e.buf, v[:]...)
}

func (e *Encoder) PutInt256(v Int256) {
	e.buf = append(e.buf, v[:]...)
}

// PutRaw appends b without any framing.
func (e *Encoder) PutRaw(b []byte) {
	e.buf = append(e.buf, b...)
}

// PutBytes writes a length prefixed byte string padded to 4 bytes.
func (e *Encoder) PutBytes(b []byte) {
	n := len(b)
	var hdr int
	if n < 254 {
		e.buf = append(e.buf, byte(n))
		hdr = 1
	} else {
		e.buf = append(e.buf, 254, byte(n), byte(n>>8), byte(n>>16))
		hdr = 4
	}
	e.buf = append(e.buf, b...)
	if pad := (hdr + n) % 4; pad != 0 {
		for i := 0; i < 4-pad; i++ {
			e.buf = append(e.buf, 0)
		}
	}
}

func (e *Encoder) PutString(s string) {
	e.PutBytes([]byte(s))
}

// PutBigInt writes v as a big-endian byte string of minimal length.
func (e *Encoder) PutBigInt(v *big.Int) {
	e.PutBytes(v.Bytes())
}

// PutBigIntFixed writes v as a big-endian byte string left padded with
// zeros to size bytes, as required for DH values.
func (e *Encoder) PutBigIntFixed(v *big.Int, size int) {
	b := make([]byte, size)
	v.FillBytes(b)
	e.PutBytes(b)
}

// PutVectorHeader writes the boxed vector constructor and element count.
func (e *Encoder) PutVectorHeader(n int) {
	e.PutID(VectorID)
	e.PutInt32(int32(n))
}

// PutObject writes o in its boxed form.
func (e *Encoder) PutObject(o Object) error {
	if o == nil {
		return errNilObject
	}
	e.PutID(o.CRC())
	return o.EncodeBare(e)
}

func (e *Encoder) PutLongVector(v []int64) {
	e.PutVectorHeader(len(v))
	for _, x := range v {
		e.PutInt64(x)
	}
}

func (e *Encoder) PutIntVector(v []int32) {
	e.PutVectorHeader(len(v))
	for _, x := range v {
		e.PutInt32(x)
	}
}

// PutObjectVector writes a boxed vector of boxed objects.
func (e *Encoder) PutObjectVector(v []Object) error {
	e.PutVectorHeader(len(v))
	for _, o := range v {
		if err := e.PutObject(o); err != nil {
			return err
		}
	}
	return nil
}

// Encode returns the boxed encoding of o.
func Encode(o Object) ([]byte, error) {
	e := NewEncoder(64)
	if err := e.PutObject(o); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}
