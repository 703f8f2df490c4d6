// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package tl

import (
	"encoding/binary"
	"math"
	"math/big"
)

// Decoder reads TL encoded values from a byte slice.
type Decoder struct {
	reg *Registry
	buf []byte
	off int
}

// NewDecoder returns a Decoder over b which resolves boxed objects through
// reg.  reg may be nil, in which case every Object call fails with
// ErrUnknownConstructor.
func NewDecoder(reg *Registry, b []byte) *Decoder {
	return &Decoder{reg: reg, buf: b}
}

// Registry returns the registry used for boxed objects.
func (d *Decoder) Registry() *Registry {
	return d.reg
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Rest consumes and returns every unread byte.
func (d *Decoder) Rest() []byte {
	b := d.buf[d.off:]
	d.off = len(d.buf)
	return b
}

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, ErrUnexpectedEOF
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// PeekID returns the next constructor id without consuming it.
func (d *Decoder) PeekID() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, ErrUnexpectedEOF
	}
	return binary.LittleEndian.Uint32(d.buf[d.off:]), nil
}

func (d *Decoder) ID() (uint32, error) {
	return d.Uint32()
}

// ExpectID consumes a constructor id and checks it against want.
func (d *Decoder) ExpectID(want uint32) error {
	id, err := d.ID()
	if err != nil {
		return err
	}
	if id != want {
		return &UnknownConstructorError{ID: id, Want: want}
	}
	return nil
}

func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) Int32() (int32, error) {
	v, err := d.Uint32()
	return int32(v), err
}

func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Double() (float64, error) {
	v, err := d.Uint64()
	return math.Float64frombits(v), err
}

func (d *Decoder) Bool() (bool, error) {
	id, err := d.ID()
	if err != nil {
		return false, err
	}
	switch id {
	case BoolTrueID:
		return true, nil
	case BoolFalseID:
		return false, nil
	default:
		return false, &UnknownConstructorError{ID: id, Want: BoolTrueID}
	}
}

func (d *Decoder) Int128() (Int128, error) {
	var v Int128
	b, err := d.take(len(v))
	if err != nil {
		return v, err
	}
	copy(v[:], b)
	return v, nil
}

func (d *Decoder) Int256() (Int256, error) {
	var v Int256
	b, err := d.take(len(v))
	if err != nil {
		return v, err
	}
	copy(v[:], b)
	return v, nil
}

// Raw consumes n bytes without interpretation.  The returned slice
// aliases the decoder's buffer.
func (d *Decoder) Raw(n int) ([]byte, error) {
	return d.take(n)
}

// Bytes reads a length prefixed byte string.  The result is a copy.
func (d *Decoder) Bytes() ([]byte, error) {
	first, err := d.take(1)
	if err != nil {
		return nil, err
	}
	n, hdr := int(first[0]), 1
	if n == 254 {
		l, err := d.take(3)
		if err != nil {
			return nil, err
		}
		n, hdr = int(l[0])|int(l[1])<<8|int(l[2])<<16, 4
	}
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	if pad := (hdr + n) % 4; pad != 0 {
		if _, err := d.take(4 - pad); err != nil {
			return nil, err
		}
	}
	return append([]byte(nil), b...), nil
}

func (d *Decoder) String() (string, error) {
	b, err := d.Bytes()
	return string(b), err
}

// BigInt reads a big-endian byte string as an unsigned integer.
func (d *Decoder) BigInt() (*big.Int, error) {
	b, err := d.Bytes()
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

// VectorHeader consumes a boxed vector header and returns the element
// count.  Counts that cannot possibly fit in the remaining buffer, given
// minSize bytes per element, are rejected as ErrUnexpectedEOF.
func (d *Decoder) VectorHeader(minSize int) (int, error) {
	if err := d.ExpectID(VectorID); err != nil {
		return 0, err
	}
	return d.BareVectorHeader(minSize)
}

// BareVectorHeader reads the element count of a bare vector.
func (d *Decoder) BareVectorHeader(minSize int) (int, error) {
	n, err := d.Int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errNegativeLength
	}
	if minSize > 0 && int(n) > d.Remaining()/minSize {
		return 0, ErrUnexpectedEOF
	}
	return int(n), nil
}

func (d *Decoder) LongVector() ([]int64, error) {
	n, err := d.VectorHeader(8)
	if err != nil {
		return nil, err
	}
	v := make([]int64, n)
	for i := range v {
		if v[i], err = d.Int64(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (d *Decoder) IntVector() ([]int32, error) {
	n, err := d.VectorHeader(4)
	if err != nil {
		return nil, err
	}
	v := make([]int32, n)
	for i := range v {
		if v[i], err = d.Int32(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Object reads a boxed object, dispatching on its constructor id.
func (d *Decoder) Object() (Object, error) {
	id, err := d.ID()
	if err != nil {
		return nil, err
	}
	o, ok := d.reg.New(id)
	if !ok {
		return nil, &UnknownConstructorError{ID: id}
	}
	if err := o.DecodeBare(d); err != nil {
		return nil, err
	}
	return o, nil
}

// ObjectVector reads a boxed vector of boxed objects.
func (d *Decoder) ObjectVector() ([]Object, error) {
	n, err := d.VectorHeader(4)
	if err != nil {
		return nil, err
	}
	v := make([]Object, 0, n)
	for i := 0; i < n; i++ {
		o, err := d.Object()
		if err != nil {
			return nil, err
		}
		v = append(v, o)
	}
	return v, nil
}

// DecodeBoxed reads a boxed object into o, checking the constructor id.
func (d *Decoder) DecodeBoxed(o Object) error {
	if err := d.ExpectID(o.CRC()); err != nil {
		return err
	}
	return o.DecodeBare(d)
}

// Decode decodes a single top-level boxed object from b.  Unlike the
// Decoder methods it fails with ErrTrailingBytes if b is not consumed.
func Decode(reg *Registry, b []byte) (Object, error) {
	d := NewDecoder(reg, b)
	o, err := d.Object()
	if err != nil {
		return nil, err
	}
	if n := d.Remaining(); n != 0 {
		return nil, &trailingBytesError{n: n}
	}
	return o, nil
}

// DecodeInto decodes b into o as a top-level boxed object.
func DecodeInto(reg *Registry, b []byte, o Object) error {
	d := NewDecoder(reg, b)
	if err := d.DecodeBoxed(o); err != nil {
		return err
	}
	if n := d.Remaining(); n != 0 {
		return &trailingBytesError{n: n}
	}
	return nil
}
