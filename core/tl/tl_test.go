// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package tl

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

type testPoint struct {
	Flags int32
	X     int64
	Name  string
	Tag   *string
}

func (p *testPoint) CRC() uint32 { return 0x11223344 }

func (p *testPoint) EncodeBare(e *Encoder) error {
	flags := p.Flags
	if p.Tag != nil {
		flags |= 1
	}
	e.PutInt32(flags)
	e.PutInt64(p.X)
	e.PutString(p.Name)
	if p.Tag != nil {
		e.PutString(*p.Tag)
	}
	return nil
}

func (p *testPoint) DecodeBare(d *Decoder) (err error) {
	if p.Flags, err = d.Int32(); err != nil {
		return err
	}
	if p.X, err = d.Int64(); err != nil {
		return err
	}
	if p.Name, err = d.String(); err != nil {
		return err
	}
	if p.Flags&1 != 0 {
		s, err := d.String()
		if err != nil {
			return err
		}
		p.Tag = &s
	}
	return nil
}

func TestBytesPadding(t *testing.T) {
	require := require.New(t)

	for _, n := range []int{0, 1, 2, 3, 4, 253, 254, 255, 1000} {
		e := NewEncoder(0)
		e.PutBytes(bytes.Repeat([]byte{0xaa}, n))
		require.Zero(e.Len()%4, "length %d", n)
		if n < 254 {
			require.Equal(byte(n), e.Bytes()[0])
		} else {
			require.Equal(byte(254), e.Bytes()[0])
		}

		d := NewDecoder(nil, e.Bytes())
		b, err := d.Bytes()
		require.NoError(err)
		require.Len(b, n)
		require.Zero(d.Remaining())
	}
}

func TestKnownEncodings(t *testing.T) {
	require := require.New(t)

	e := NewEncoder(0)
	e.PutInt32(-1)
	e.PutInt64(0x0102030405060708)
	e.PutBool(true)
	e.PutString("abc")
	require.Equal([]byte{
		0xff, 0xff, 0xff, 0xff,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0xb5, 0x75, 0x72, 0x99,
		0x03, 'a', 'b', 'c',
	}, e.Bytes())

	e.Reset()
	e.PutBigIntFixed(big.NewInt(0x0102), 4)
	require.Equal([]byte{4, 0, 0, 1, 2, 0, 0, 0}, e.Bytes())
}

func TestObjectFlags(t *testing.T) {
	require := require.New(t)
	reg := NewRegistry(func() Object { return new(testPoint) })

	tag := "optional"
	for _, p := range []*testPoint{
		{X: 42, Name: "no tag"},
		{X: -7, Name: "tagged", Tag: &tag},
	} {
		b, err := Encode(p)
		require.NoError(err)

		o, err := Decode(reg, b)
		require.NoError(err)
		got := o.(*testPoint)
		require.Equal(p.X, got.X)
		require.Equal(p.Name, got.Name)
		require.Equal(p.Tag != nil, got.Tag != nil)
		if p.Tag != nil {
			require.Equal(*p.Tag, *got.Tag)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	reg := NewRegistry(func() Object { return new(testPoint) })
	good, err := Encode(&testPoint{X: 1, Name: "x"})
	require.NoError(t, err)

	t.Run("unknown constructor", func(t *testing.T) {
		require := require.New(t)
		b := append([]byte{0xde, 0xad, 0xbe, 0xef}, good[4:]...)
		_, err := Decode(reg, b)
		require.ErrorIs(err, ErrUnknownConstructor)
		var uce *UnknownConstructorError
		require.True(errors.As(err, &uce))
		require.Equal(uint32(0xefbeadde), uce.ID)
		require.False(errors.Is(err, ErrUnexpectedEOF))
	})

	t.Run("truncated", func(t *testing.T) {
		require := require.New(t)
		for i := 0; i < len(good); i++ {
			_, err := Decode(reg, good[:i])
			require.ErrorIs(err, ErrUnexpectedEOF, "prefix %d", i)
		}
	})

	t.Run("trailing bytes", func(t *testing.T) {
		require := require.New(t)
		b := append(append([]byte(nil), good...), 0, 0, 0, 0)
		_, err := Decode(reg, b)
		require.ErrorIs(err, ErrTrailingBytes)
		require.False(errors.Is(err, ErrUnknownConstructor))
	})

	t.Run("huge vector", func(t *testing.T) {
		require := require.New(t)
		e := NewEncoder(0)
		e.PutVectorHeader(1 << 30)
		_, err := NewDecoder(nil, e.Bytes()).LongVector()
		require.ErrorIs(err, ErrUnexpectedEOF)
	})

	t.Run("nil registry", func(t *testing.T) {
		_, err := Decode(nil, good)
		require.ErrorIs(t, err, ErrUnknownConstructor)
	})
}

func TestVectors(t *testing.T) {
	require := require.New(t)

	e := NewEncoder(0)
	e.PutLongVector([]int64{1, -2, 3})
	e.PutIntVector(nil)

	d := NewDecoder(nil, e.Bytes())
	longs, err := d.LongVector()
	require.NoError(err)
	require.Equal([]int64{1, -2, 3}, longs)
	ints, err := d.IntVector()
	require.NoError(err)
	require.Empty(ints)
	require.Zero(d.Remaining())
}

func TestRegistryMerge(t *testing.T) {
	require := require.New(t)

	a := NewRegistry(func() Object { return new(testPoint) })
	b := NewRegistry(func() Object { return &Raw{ID: 0x55} })
	m := a.Merge(b, nil)
	require.Equal(2, m.Len())
	require.True(m.Has(0x11223344))
	require.True(m.Has(0x55))
	require.Panics(func() { a.Merge(a) })
}
