// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"errors"
	"io"
	"time"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/core/crypto/rsakey"
	"github.com/katzenpost/mtproto/core/log"
	"github.com/katzenpost/mtproto/core/retry"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/api"
	"github.com/katzenpost/mtproto/core/tl/mt"
	"github.com/katzenpost/mtproto/core/transport"
)

const (
	defaultPingInterval      = 60 * time.Second
	defaultAckInterval       = 30 * time.Second
	defaultContainerDelay    = 2 * time.Millisecond
	defaultDialTimeout       = 30 * time.Second
	defaultHandshakeAttempts = 3
	defaultHandshakeTimeout  = 15 * time.Second
	defaultTempKeyLifetime   = 24 * time.Hour
	defaultPaddingBlocks     = 15

	// ackFlushThreshold pending acks are flushed without waiting for the
	// ack interval.
	ackFlushThreshold = 100

	// maxAcksPerMessage bounds the ids carried by one msgs_ack.
	maxAcksPerMessage = 8192

	// maxMigrations bounds how often one call follows a MIGRATE error.
	maxMigrations = 3
)

// Kind is the purpose of a connection.  Each (data center, Kind) pair has
// its own connection and session.
type Kind int

const (
	// KindMain carries ordinary calls and receives updates.
	KindMain Kind = iota
	// KindUpload carries file upload chunks.
	KindUpload
	// KindDownload carries file download chunks from media data centers.
	KindDownload
	// KindDownloadSmall carries small downloads such as thumbnails.
	KindDownloadSmall
)

func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindUpload:
		return "upload"
	case KindDownload:
		return "download"
	case KindDownloadSmall:
		return "downloadSmall"
	}
	return "unknown"
}

func (k Kind) media() bool {
	return k == KindDownload || k == KindDownloadSmall
}

// UpdateHandler receives the updates pushed by the server outside of
// rpc_result.  HandleUpdates is called from the connection goroutine and
// must not block on calls made through the Manager.
type UpdateHandler interface {
	HandleUpdates(tl.Object)
}

// Config is the Manager configuration.
type Config struct {
	// DC is the initial primary data center.
	DC int
	// TestMode selects the test data centers for the key exchange.
	TestMode bool

	// Address returns the host:port of a data center.
	Address func(dc int, media bool) string
	// Dialer opens the raw connections.  Defaults to a TCPDialer.
	Dialer transport.Dialer
	// Codec returns the framing of new connections.  Defaults to the
	// intermediate codec.
	Codec transport.CodecFactory

	// Storage persists the auth keys.
	Storage storage.Storage
	// LogBackend is the log backend.  Defaults to discarding everything.
	LogBackend *log.Backend

	// Keys holds the server RSA keys.  Defaults to rsakey.Default().
	Keys *rsakey.Table

	// UsePFS binds a short lived temporary key to the permanent key of
	// every connection.
	UsePFS          bool
	TempKeyLifetime time.Duration

	PingInterval time.Duration
	AckInterval  time.Duration
	// ContainerDelay is how long small calls wait to be coalesced.  A
	// negative value sends every call as soon as it is submitted.
	ContainerDelay time.Duration
	DialTimeout    time.Duration

	// ExtraPaddingBlocks bounds the random 16 byte blocks added to each
	// envelope to obscure its length.  Zero selects a default of 15 and a
	// negative value disables the extra padding.
	ExtraPaddingBlocks int

	HandshakeAttempts int
	HandshakeTimeout  time.Duration

	// ReconnectStrategy decides the wait between reconnect attempts.
	// Defaults to retry.DefaultReconnect.
	ReconnectStrategy retry.ReconnectStrategy

	// Middlewares wrap every call, outermost first.  Defaults to
	// DefaultMiddlewares().
	Middlewares []Middleware

	UpdateHandler UpdateHandler

	// Registry decodes rpc results and updates.  Defaults to the
	// service and application registries.
	Registry *tl.Registry

	// Rand and Now override the entropy source and the clock.
	Rand io.Reader
	Now  func() time.Time
}

func (c *Config) fixup() {
	if c.Dialer == nil {
		c.Dialer = &transport.TCPDialer{}
	}
	if c.Codec == nil {
		c.Codec = func(int, bool) transport.Codec { return transport.Intermediate{} }
	}
	if c.LogBackend == nil {
		c.LogBackend = log.NewDiscard()
	}
	if c.TempKeyLifetime <= 0 {
		c.TempKeyLifetime = defaultTempKeyLifetime
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.AckInterval <= 0 {
		c.AckInterval = defaultAckInterval
	}
	switch {
	case c.ContainerDelay == 0:
		c.ContainerDelay = defaultContainerDelay
	case c.ContainerDelay < 0:
		c.ContainerDelay = 0
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	switch {
	case c.ExtraPaddingBlocks == 0:
		c.ExtraPaddingBlocks = defaultPaddingBlocks
	case c.ExtraPaddingBlocks < 0:
		c.ExtraPaddingBlocks = 0
	}
	if c.HandshakeAttempts <= 0 {
		c.HandshakeAttempts = defaultHandshakeAttempts
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.ReconnectStrategy == nil {
		c.ReconnectStrategy = retry.DefaultReconnect
	}
	if c.Middlewares == nil {
		c.Middlewares = DefaultMiddlewares()
	}
	if c.Registry == nil {
		c.Registry = mt.Registry.Merge(api.Registry)
	}
	if c.Rand == nil {
		c.Rand = rand.Reader
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

func (c *Config) validate() error {
	if c.DC <= 0 {
		return errors.New("network: invalid primary DC")
	}
	if c.Address == nil {
		return errors.New("network: no DC address resolver")
	}
	if c.Storage == nil {
		return errors.New("network: no storage")
	}
	return nil
}

// CallOption modifies a single call.
type CallOption func(*CallContext)

// WithDC sends the call to a data center other than the primary one.
func WithDC(dc int) CallOption {
	return func(cc *CallContext) {
		cc.DC = dc
	}
}

// WithKind sends the call over a connection of the given kind.
func WithKind(k Kind) CallOption {
	return func(cc *CallContext) {
		cc.Kind = k
	}
}

// WithoutCoalescing sends the call in its own envelope.
func WithoutCoalescing() CallOption {
	return func(cc *CallContext) {
		cc.NoCoalesce = true
	}
}

// WithRegistry decodes the result with reg.
func WithRegistry(reg *tl.Registry) CallOption {
	return func(cc *CallContext) {
		cc.Registry = reg
	}
}
