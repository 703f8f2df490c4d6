// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package mt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/katzenpost/mtproto/core/tl"
)

const (
	MsgContainerID uint32 = 0x73f1f8dc
	GzipPackedID   uint32 = 0x3072cfa1

	// MaxContainerMessages is the exclusive upper bound on the number of
	// messages in one container.
	MaxContainerMessages = 1020

	// MaxContainerSize is the exclusive upper bound on the encoded size of
	// a container.
	MaxContainerSize = 32768

	// messageHeaderSize is msg_id + seqno + bytes.
	messageHeaderSize = 16

	maxUnpackedSize = 64 << 20
)

var errTooLarge = errors.New("mt: gzip_packed payload too large")

// Message is the bare message type carried inside msg_container.
type Message struct {
	MsgID int64
	SeqNo int32
	Body  []byte
}

// MsgContainer is msg_container.  It is never nested.
type MsgContainer struct {
	Messages []Message
}

func (*MsgContainer) CRC() uint32 { return MsgContainerID }

func (*MsgContainer) TypeName() string { return "msg_container" }

func (m *MsgContainer) EncodeBare(e *tl.Encoder) error {
	e.PutInt32(int32(len(m.Messages)))
	for _, msg := range m.Messages {
		e.PutInt64(msg.MsgID)
		e.PutInt32(msg.SeqNo)
		e.PutInt32(int32(len(msg.Body)))
		e.PutRaw(msg.Body)
	}
	return nil
}

func (m *MsgContainer) DecodeBare(d *tl.Decoder) error {
	n, err := d.BareVectorHeader(messageHeaderSize)
	if err != nil {
		return err
	}
	m.Messages = make([]Message, n)
	for i := range m.Messages {
		msg := &m.Messages[i]
		if msg.MsgID, err = d.Int64(); err != nil {
			return err
		}
		if msg.SeqNo, err = d.Int32(); err != nil {
			return err
		}
		l, err := d.Int32()
		if err != nil {
			return err
		}
		if l < 0 || l%4 != 0 {
			return fmt.Errorf("mt: container message 0x%x has invalid length %d", msg.MsgID, l)
		}
		body, err := d.Raw(int(l))
		if err != nil {
			return err
		}
		msg.Body = append([]byte(nil), body...)
	}
	return nil
}

// ContainerSize returns the encoded size of a container holding messages
// with the given body lengths, including the constructor id.
func ContainerSize(bodyLens ...int) int {
	n := 8
	for _, l := range bodyLens {
		n += messageHeaderSize + l
	}
	return n
}

// GzipPacked is gzip_packed.
type GzipPacked struct {
	PackedData []byte
}

func (*GzipPacked) CRC() uint32 { return GzipPackedID }

func (*GzipPacked) TypeName() string { return "gzip_packed" }

func (m *GzipPacked) EncodeBare(e *tl.Encoder) error {
	e.PutBytes(m.PackedData)
	return nil
}

func (m *GzipPacked) DecodeBare(d *tl.Decoder) (err error) {
	m.PackedData, err = d.Bytes()
	return err
}

// Gzip returns a boxed gzip_packed object wrapping the encoded object b.
func Gzip(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return tl.Encode(&GzipPacked{PackedData: buf.Bytes()})
}

// Gunzip returns the encoded object inside m.
func (m *GzipPacked) Gunzip() ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(m.PackedData))
	if err != nil {
		return nil, fmt.Errorf("mt: gzip_packed: %w", err)
	}
	defer r.Close()
	b, err := io.ReadAll(io.LimitReader(r, maxUnpackedSize+1))
	if err != nil {
		return nil, fmt.Errorf("mt: gzip_packed: %w", err)
	}
	if len(b) > maxUnpackedSize {
		return nil, errTooLarge
	}
	return b, nil
}

// Unpack returns b with any outer gzip_packed layers removed.
func Unpack(b []byte) ([]byte, error) {
	for {
		d := tl.NewDecoder(nil, b)
		id, err := d.PeekID()
		if err != nil || id != GzipPackedID {
			return b, nil
		}
		var g GzipPacked
		if err := d.DecodeBoxed(&g); err != nil {
			return nil, err
		}
		if b, err = g.Gunzip(); err != nil {
			return nil, err
		}
	}
}
