// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mtproto/core/crypto/ctr"
	"github.com/katzenpost/mtproto/core/crypto/kdf"
)

func TestAbridged(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	small := bytes.Repeat([]byte{1}, 8)
	require.NoError(Abridged{}.WritePacket(&buf, small))
	require.Equal(byte(2), buf.Bytes()[0])

	big := bytes.Repeat([]byte{2}, 0x7f*4)
	require.NoError(Abridged{}.WritePacket(&buf, big))
	require.Equal([]byte{0x7f, 0x7f, 0, 0}, buf.Bytes()[9:13])

	got, err := Abridged{}.ReadPacket(&buf)
	require.NoError(err)
	require.Equal(small, got)
	got, err = Abridged{}.ReadPacket(&buf)
	require.NoError(err)
	require.Equal(big, got)

	require.ErrorIs(Abridged{}.WritePacket(&buf, []byte{1, 2, 3}), errBadLength)
}

func TestIntermediate(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	pkt := []byte("0123456789ab")
	require.NoError(Intermediate{}.WritePacket(&buf, pkt))
	require.Equal(uint32(12), binary.LittleEndian.Uint32(buf.Bytes()))
	got, err := Intermediate{}.ReadPacket(&buf)
	require.NoError(err)
	require.Equal(pkt, got)

	buf.Reset()
	buf.Write([]byte{0xff, 0xff, 0xff, 0x7f})
	_, err = Intermediate{}.ReadPacket(&buf)
	require.ErrorIs(err, errPacketTooBig)
}

func TestPaddedIntermediate(t *testing.T) {
	require := require.New(t)

	codec := PaddedIntermediate{Rand: bytes.NewReader(bytes.Repeat([]byte{0x07}, 16))}
	var buf bytes.Buffer
	pkt := []byte("0123456789ab")
	require.NoError(codec.WritePacket(&buf, pkt))
	require.Equal(uint32(19), binary.LittleEndian.Uint32(buf.Bytes()))

	got, err := codec.ReadPacket(&buf)
	require.NoError(err)
	require.Len(got, 16)
	require.Equal(pkt, got[:12])
}

// obfuscatedServer is the server side of the obfuscation layer.
type obfuscatedServer struct {
	dec *ctr.Stream
	enc *ctr.Stream
	tag []byte
}

func newObfuscatedServer(t *testing.T, header, secret []byte) *obfuscatedServer {
	require := require.New(t)

	decKey, decIV := append([]byte{}, header[8:40]...), header[40:56]
	rev := make([]byte, 48)
	for i := range rev {
		rev[i] = header[55-i]
	}
	encKey, encIV := rev[:32], rev[32:48]
	if secret != nil {
		decKey = kdf.SHA256(decKey, secret)
		encKey = kdf.SHA256(encKey, secret)
	}
	dec, err := ctr.New(decKey, decIV)
	require.NoError(err)
	enc, err := ctr.New(encKey, encIV)
	require.NoError(err)

	plain := dec.Process(header)
	return &obfuscatedServer{dec: dec, enc: enc, tag: plain[56:64]}
}

func TestObfuscated(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		require := require.New(t)

		o := NewObfuscated(Abridged{}, nil)
		hdr, err := o.Tag()
		require.NoError(err)
		require.Len(hdr, 64)
		require.NotEqual(byte(0xef), hdr[0])

		srv := newObfuscatedServer(t, hdr, nil)
		require.Equal([]byte{0xef, 0xef, 0xef, 0xef}, srv.tag[:4])

		var up bytes.Buffer
		pkt := bytes.Repeat([]byte{0xaa}, 40)
		require.NoError(o.WritePacket(&up, pkt))
		framed := srv.dec.Process(up.Bytes())
		require.Equal(byte(10), framed[0])
		require.Equal(pkt, framed[1:])

		var down bytes.Buffer
		reply := bytes.Repeat([]byte{0x55}, 8)
		down.Write(srv.enc.Process(append([]byte{2}, reply...)))
		got, err := o.ReadPacket(&down)
		require.NoError(err)
		require.Equal(reply, got)
	})

	t.Run("proxy", func(t *testing.T) {
		require := require.New(t)

		secret := bytes.Repeat([]byte{0x11}, 16)
		o := NewObfuscated(Intermediate{}, &ProxyInfo{DC: 2, Secret: secret, Test: true, Media: true})
		hdr, err := o.Tag()
		require.NoError(err)

		srv := newObfuscatedServer(t, hdr, secret)
		require.Equal([]byte{0xee, 0xee, 0xee, 0xee}, srv.tag[:4])
		require.Equal(int16(-10002), int16(binary.LittleEndian.Uint16(srv.tag[4:6])))
	})

	t.Run("bad secret", func(t *testing.T) {
		o := NewObfuscated(Intermediate{}, &ProxyInfo{DC: 2, Secret: []byte{1}})
		_, err := o.Tag()
		require.ErrorIs(t, err, errSecretSize)
	})

	t.Run("uninitialized", func(t *testing.T) {
		o := NewObfuscated(Intermediate{}, nil)
		require.ErrorIs(t, o.WritePacket(&bytes.Buffer{}, []byte{1, 2, 3, 4}), errNotInitialized)
	})
}

func TestConn(t *testing.T) {
	require := require.New(t)

	client, server := net.Pipe()
	defer server.Close()

	tagCh := make(chan []byte, 1)
	go func() {
		b := make([]byte, 4)
		server.Read(b)
		tagCh <- b
	}()
	c, err := NewConn(context.Background(), client, Intermediate{})
	require.NoError(err)
	defer c.Close()
	require.Equal([]byte{0xee, 0xee, 0xee, 0xee}, <-tagCh)

	t.Run("send and receive", func(t *testing.T) {
		go func() {
			b := make([]byte, 12)
			server.Read(b)
			server.Write(b)
		}()
		require.NoError(c.Send(context.Background(), []byte("abcdefgh")))
		got, err := c.Recv(context.Background())
		require.NoError(err)
		require.Equal([]byte("abcdefgh"), got)
	})

	t.Run("transport error", func(t *testing.T) {
		go func() {
			var b [8]byte
			binary.LittleEndian.PutUint32(b[:], 4)
			binary.LittleEndian.PutUint32(b[4:], uint32(0xfffffe6c))
			server.Write(b[:])
		}()
		_, err := c.Recv(context.Background())
		var terr *Error
		require.True(errors.As(err, &terr))
		require.Equal(int32(-404), terr.Code)
		require.True(terr.AuthKeyUnknown())
		require.False(terr.Flood())
	})

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		_, err := c.Recv(ctx)
		require.ErrorIs(err, context.Canceled)
	})
}

func TestQuicConnNil(t *testing.T) {
	require.Panics(t, func() { NewQuicConn(nil, nil) })
}
