// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"
)

var aLongTimeAgo = time.Unix(1, 0)

// Conn is a framed MTProto connection.  Send and Recv may be called
// concurrently with each other, but not with themselves.
type Conn struct {
	conn  net.Conn
	codec Codec
	rd    *bufio.Reader

	wrLock sync.Mutex
	rdLock sync.Mutex

	closeOnce sync.Once
}

// NewConn writes the codec tag to c and returns the framed connection.
func NewConn(ctx context.Context, c net.Conn, codec Codec) (*Conn, error) {
	conn := &Conn{
		conn:  c,
		codec: codec,
		rd:    bufio.NewReader(c),
	}
	tag, err := codec.Tag()
	if err != nil {
		return nil, err
	}
	if len(tag) > 0 {
		if err := conn.withDeadline(ctx, c.SetWriteDeadline, func() error {
			_, err := c.Write(tag)
			return err
		}); err != nil {
			return nil, err
		}
	}
	return conn, nil
}

// withDeadline runs fn with the deadline of ctx applied through set and
// aborts it when ctx is cancelled.
func (c *Conn) withDeadline(ctx context.Context, set func(time.Time) error, fn func() error) error {
	deadline, _ := ctx.Deadline()
	if err := set(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		set(aLongTimeAgo)
	})
	err := fn()
	stop()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Send writes one packet.
func (c *Conn) Send(ctx context.Context, packet []byte) error {
	c.wrLock.Lock()
	defer c.wrLock.Unlock()
	return c.withDeadline(ctx, c.conn.SetWriteDeadline, func() error {
		return c.codec.WritePacket(c.conn, packet)
	})
}

// Recv reads one packet.  A transport error code sent by the server is
// returned as an *Error.  A Recv aborted by ctx may leave a partial packet
// behind, after which the Conn must be closed.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	c.rdLock.Lock()
	defer c.rdLock.Unlock()
	var packet []byte
	err := c.withDeadline(ctx, c.conn.SetReadDeadline, func() error {
		var err error
		packet, err = c.codec.ReadPacket(c.rd)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := checkError(packet); err != nil {
		return nil, err
	}
	return packet, nil
}

// RemoteAddr returns the address of the peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
