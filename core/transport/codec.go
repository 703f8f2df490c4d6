// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package transport frames MTProto packets over a byte stream.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/katzenpost/hpqc/rand"
)

// MaxPacketSize bounds the length of a single incoming packet.
const MaxPacketSize = 1 << 24

var (
	errPacketTooBig = errors.New("transport: packet too big")
	errBadLength    = errors.New("transport: packet length is not a multiple of 4")
)

// Codec frames packets.  A Codec instance carries per connection state and
// must not be shared between connections.
type Codec interface {
	// Tag returns the bytes sent once, right after connecting.
	Tag() ([]byte, error)

	// WritePacket frames and writes one packet.
	WritePacket(w io.Writer, packet []byte) error

	// ReadPacket reads and unframes one packet.
	ReadPacket(r io.Reader) ([]byte, error)
}

// CodecFactory returns a fresh Codec for a new connection to the given
// data center.
type CodecFactory func(dc int, media bool) Codec

// Error is a transport level error code sent by the server in place of a
// packet, e.g. -404 for an unknown auth key or -429 for too many
// connections.
type Error struct {
	Code int32
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: server error %d", e.Code)
}

// AuthKeyUnknown reports whether the server no longer knows the auth key.
func (e *Error) AuthKeyUnknown() bool {
	return e.Code == -404
}

// Flood reports whether the server is rate limiting connections.
func (e *Error) Flood() bool {
	return e.Code == -429
}

// checkError converts a 4 byte packet holding a negative int32 into an
// *Error.
func checkError(packet []byte) error {
	if len(packet) != 4 {
		return nil
	}
	code := int32(binary.LittleEndian.Uint32(packet))
	if code < 0 {
		return &Error{Code: code}
	}
	return nil
}

// Abridged is the abridged codec: a one byte length in 4 byte units, or
// 0x7f followed by a three byte length.
type Abridged struct{}

func (Abridged) Tag() ([]byte, error) {
	return []byte{0xef}, nil
}

func (Abridged) WritePacket(w io.Writer, packet []byte) error {
	if len(packet)%4 != 0 {
		return errBadLength
	}
	n := len(packet) / 4
	var hdr []byte
	if n < 0x7f {
		hdr = []byte{byte(n)}
	} else {
		hdr = []byte{0x7f, byte(n), byte(n >> 8), byte(n >> 16)}
	}
	_, err := w.Write(append(hdr, packet...))
	return err
}

func (Abridged) ReadPacket(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		return nil, err
	}
	n := int(hdr[0] & 0x7f)
	if n == 0x7f {
		if _, err := io.ReadFull(r, hdr[1:4]); err != nil {
			return nil, err
		}
		n = int(hdr[1]) | int(hdr[2])<<8 | int(hdr[3])<<16
	}
	return readN(r, n*4)
}

// Intermediate is the intermediate codec: a four byte little endian
// length followed by the packet.
type Intermediate struct{}

func (Intermediate) Tag() ([]byte, error) {
	return []byte{0xee, 0xee, 0xee, 0xee}, nil
}

func (Intermediate) WritePacket(w io.Writer, packet []byte) error {
	b := make([]byte, 4+len(packet))
	binary.LittleEndian.PutUint32(b, uint32(len(packet)))
	copy(b[4:], packet)
	_, err := w.Write(b)
	return err
}

func (Intermediate) ReadPacket(r io.Reader) ([]byte, error) {
	return readIntermediate(r)
}

// PaddedIntermediate is the intermediate codec with 0 to 15 random bytes
// appended to every packet.
type PaddedIntermediate struct {
	// Rand is the padding source, rand.Reader if nil.
	Rand io.Reader
}

func (PaddedIntermediate) Tag() ([]byte, error) {
	return []byte{0xdd, 0xdd, 0xdd, 0xdd}, nil
}

func (p PaddedIntermediate) WritePacket(w io.Writer, packet []byte) error {
	r := p.Rand
	if r == nil {
		r = rand.Reader
	}
	var pad [16]byte
	if _, err := io.ReadFull(r, pad[:]); err != nil {
		return err
	}
	padLen := int(pad[0] & 0x0f)

	b := make([]byte, 4+len(packet)+padLen)
	binary.LittleEndian.PutUint32(b, uint32(len(packet)+padLen))
	copy(b[4:], packet)
	copy(b[4+len(packet):], pad[:padLen])
	_, err := w.Write(b)
	return err
}

// ReadPacket strips padding down to a multiple of 4 bytes.  Any padding
// left over beyond that is ignored by the envelope decoders.
func (PaddedIntermediate) ReadPacket(r io.Reader) ([]byte, error) {
	b, err := readIntermediate(r)
	if err != nil {
		return nil, err
	}
	return b[:len(b)-len(b)%4], nil
}

func readIntermediate(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	return readN(r, int(binary.LittleEndian.Uint32(hdr[:])))
}

func readN(r io.Reader, n int) ([]byte, error) {
	if n < 0 || n > MaxPacketSize {
		return nil, errPacketTooBig
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
