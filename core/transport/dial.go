// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/katzenpost/mtproto/internal/proxy"
)

// DefaultKeepAlive is the TCP keepalive period of direct connections.
const DefaultKeepAlive = 3 * time.Minute

// Dialer opens byte streams to data centers.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// TCPDialer dials TCP, optionally through an upstream SOCKS5 proxy.
type TCPDialer struct {
	// Proxy is the optional upstream proxy.  Each destination address
	// gets its own Tor isolation tag.
	Proxy *proxy.Config
}

func (d *TCPDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.Proxy != nil {
		if fn := d.Proxy.ToDialContext(addr); fn != nil {
			return fn(ctx, network, addr)
		}
	}
	nd := &net.Dialer{KeepAlive: DefaultKeepAlive}
	return nd.DialContext(ctx, network, addr)
}

// QUICDialer dials a QUIC relay and uses its first stream as the byte
// stream.
type QUICDialer struct {
	TLSConfig *tls.Config
	Config    *quic.Config
}

func (d *QUICDialer) tlsConfig(addr string) *tls.Config {
	if d.TLSConfig != nil {
		return d.TLSConfig
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	// ALPN is visible on the wire, so use the common HTTP/3 value.
	return &tls.Config{
		ServerName: host,
		NextProtos: []string{http3.NextProtoH3},
		MinVersion: tls.VersionTLS13,
	}
}

func (d *QUICDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := quic.DialAddr(ctx, addr, d.tlsConfig(addr), d.Config)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}
	return NewQuicConn(conn, stream), nil
}

// QuicConn wraps a conn and a single stream and implements net.Conn
type QuicConn struct {
	Stream *quic.Stream
	Conn   *quic.Conn
}

// NewQuicConn returns a QuicConn.  It panics if either argument is nil.
func NewQuicConn(conn *quic.Conn, stream *quic.Stream) *QuicConn {
	if conn == nil || stream == nil {
		panic("transport: NewQuicConn with nil connection or stream")
	}
	return &QuicConn{Stream: stream, Conn: conn}
}

// LocalAddr implements net.Conn
func (q *QuicConn) LocalAddr() net.Addr {
	return q.Conn.LocalAddr()
}

// RemoteAddr implements net.Conn
func (q *QuicConn) RemoteAddr() net.Addr {
	return q.Conn.RemoteAddr()
}

// SetDeadline implements net.Conn
func (q *QuicConn) SetDeadline(t time.Time) error {
	return q.Stream.SetDeadline(t)
}

// SetReadDeadline implements net.Conn
func (q *QuicConn) SetReadDeadline(t time.Time) error {
	return q.Stream.SetReadDeadline(t)
}

// SetWriteDeadline implements net.Conn
func (q *QuicConn) SetWriteDeadline(t time.Time) error {
	return q.Stream.SetWriteDeadline(t)
}

// Close implements net.Conn; the stream and the connection are closed.
func (q *QuicConn) Close() error {
	err := q.Stream.Close()
	q.Conn.CloseWithError(0, "")
	return err
}

// Read implements net.Conn
func (q *QuicConn) Read(b []byte) (n int, err error) {
	return q.Stream.Read(b)
}

// Write implements net.Conn
func (q *QuicConn) Write(b []byte) (n int, err error) {
	return q.Stream.Write(b)
}
