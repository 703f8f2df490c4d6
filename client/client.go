// SPDX-FileCopyrightText: Copyright (C) 2018  David Stainton.
// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package client ties the configuration, the storage backend, the network
// manager and the update sequencer together.
package client

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mtproto/client/config"
	"github.com/katzenpost/mtproto/client/network"
	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/client/storage/boltstore"
	"github.com/katzenpost/mtproto/client/storage/pgxstore"
	"github.com/katzenpost/mtproto/client/updates"
	"github.com/katzenpost/mtproto/core/log"
	"github.com/katzenpost/mtproto/core/retry"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/transport"
	"github.com/katzenpost/mtproto/core/worker"
	"github.com/katzenpost/mtproto/internal/instrument"
)

var metricsOnce sync.Once

// Client is an MTProto client session.
type Client struct {
	worker.Worker

	cfg        *config.Config
	logBackend *log.Backend
	log        *logging.Logger
	haltOnce   sync.Once

	store   storage.Storage
	net     *network.Manager
	updates *updates.Sequencer
}

// GetConfig returns the client configuration.
func (c *Client) GetConfig() *config.Config {
	return c.cfg
}

// New creates a Client.  Nothing is dialed until the first call.  When h
// is nil the updates pushed by the server are dropped.
func New(cfg *config.Config, h updates.Handler) (*Client, error) {
	c := &Client{cfg: cfg}
	if err := c.initLogging(); err != nil {
		return nil, err
	}

	if cfg.Metrics.Address != "" {
		metricsOnce.Do(func() {
			instrument.Init(cfg.Metrics.Address, c.logBackend.GetGoLogger("metrics", "ERROR"))
		})
	}

	var err error
	if c.store, err = c.openStorage(); err != nil {
		return nil, err
	}

	netCfg := c.networkConfig()
	if h != nil {
		netCfg.UpdateHandler = c
	}
	if c.net, err = network.New(netCfg); err != nil {
		c.store.Close()
		return nil, err
	}
	if h != nil {
		c.updates, err = updates.New(&updates.Config{
			Fetcher:    c.net,
			Handler:    h,
			Storage:    c.store,
			LogBackend: c.logBackend,
			CatchUp:    true,
		})
		if err != nil {
			c.net.Close()
			c.store.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) initLogging() error {
	f := c.cfg.Logging.File
	if !c.cfg.Logging.Disable && f != "" {
		if !filepath.IsAbs(f) {
			return errors.New("log file path must be absolute path")
		}
	}

	var err error
	c.logBackend, err = log.New(f, c.cfg.Logging.Level, c.cfg.Logging.Disable)
	if err == nil {
		c.log = c.logBackend.GetLogger("mtproto/client")
	}
	return err
}

func (c *Client) openStorage() (storage.Storage, error) {
	s := c.cfg.Session
	switch s.StorageBackend {
	case config.BackendBolt:
		var passphrase []byte
		if s.Passphrase != "" {
			passphrase = []byte(s.Passphrase)
		}
		return boltstore.New(s.StorageFile, passphrase)
	case config.BackendPostgres:
		return pgxstore.New(&pgxstore.Config{
			DSN:      s.StorageDSN,
			Session:  s.Name,
			LogLevel: c.cfg.Logging.Level,
		}, c.logBackend)
	default:
		c.log.Warningf("Using the memory backend, the session ends with the process.")
		return storage.NewMemory(), nil
	}
}

func (c *Client) networkConfig() *network.Config {
	n, d := c.cfg.Network, c.cfg.Debug
	return &network.Config{
		DC:              n.DefaultDC,
		TestMode:        n.TestMode,
		Address:         c.address,
		Dialer:          c.dialer(),
		Codec:           c.codec,
		Storage:         c.store,
		LogBackend:      c.logBackend,
		UsePFS:          n.UsePFS,
		TempKeyLifetime: config.Seconds(n.TempKeyLifetime),
		PingInterval:    config.Seconds(d.PingInterval),
		AckInterval:     config.Seconds(d.AckInterval),
		ContainerDelay:  config.Milliseconds(d.ContainerDelay),
		DialTimeout:     config.Seconds(d.DialTimeout),

		ExtraPaddingBlocks: d.ExtraPaddingBlocks,
		HandshakeAttempts:  d.HandshakeAttempts,
		HandshakeTimeout:   config.Seconds(d.HandshakeTimeout),

		Middlewares: []network.Middleware{
			&network.FloodWaiter{MaxWait: config.Seconds(d.FloodWaitMax)},
			&network.InternalErrorHandler{MaxRetries: d.InternalErrorRetries},
			network.MigrateHandler{},
		},
	}
}

func (c *Client) dialer() transport.Dialer {
	if c.cfg.Network.QUIC {
		return &transport.QUICDialer{}
	}
	return &transport.TCPDialer{Proxy: c.cfg.UpstreamProxyConfig()}
}

// address picks the endpoint of a data center.  Every data center is
// reached through the MTProxy when one is configured.
func (c *Client) address(dc int, media bool) string {
	n := c.cfg.Network
	if n.MTProxy != nil {
		return n.MTProxy.Address
	}
	var preferred, fallback []string
	for _, d := range n.DCs {
		switch {
		case d.ID != dc:
		case d.Media == media:
			preferred = append(preferred, d.Address)
		case !d.Media:
			fallback = append(fallback, d.Address)
		}
	}
	addrs := retry.FilterUsableAddresses(append(preferred, fallback...), n.DisableIPv4, n.DisableIPv6)
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

// codec returns a fresh codec for every connection: the obfuscated one
// carries per connection keystreams.
func (c *Client) codec(dc int, media bool) transport.Codec {
	n := c.cfg.Network
	var inner transport.Codec
	switch n.Transport {
	case config.TransportAbridged:
		inner = transport.Abridged{}
	case config.TransportPadded:
		inner = transport.PaddedIntermediate{}
	default:
		inner = transport.Intermediate{}
	}
	if !n.Obfuscated {
		return inner
	}
	var p *transport.ProxyInfo
	if n.MTProxy != nil {
		p = &transport.ProxyInfo{
			DC:     dc,
			Secret: n.MTProxy.SecretBytes(),
			Test:   n.TestMode,
			Media:  media,
		}
	}
	return transport.NewObfuscated(inner, p)
}

// HandleUpdates implements network.UpdateHandler.
func (c *Client) HandleUpdates(obj tl.Object) {
	if c.updates != nil {
		c.updates.HandleUpdates(obj)
	}
}

// Start loads or fetches the update state and starts sequencing updates.
func (c *Client) Start(ctx context.Context) error {
	if c.updates == nil {
		return nil
	}
	if err := c.updates.Start(ctx); err != nil {
		return fmt.Errorf("client: failed to start the update sequencer: %w", err)
	}
	return nil
}

// Call sends req through the network manager.
func (c *Client) Call(ctx context.Context, req tl.Object, opts ...network.CallOption) (tl.Object, error) {
	return c.net.Call(ctx, req, opts...)
}

// Network returns the network manager.
func (c *Client) Network() *network.Manager {
	return c.net
}

// GetBackendLog returns the log backend.
func (c *Client) GetBackendLog() *log.Backend {
	return c.logBackend
}

// GetLogger returns a new logger with the given name.
func (c *Client) GetLogger(name string) *logging.Logger {
	return c.logBackend.GetLogger(name)
}

// Shutdown cleanly shuts down a given Client instance.
func (c *Client) Shutdown() {
	c.haltOnce.Do(c.halt)
}

func (c *Client) halt() {
	c.log.Noticef("Starting graceful shutdown.")
	if c.updates != nil {
		c.updates.Close()
	}
	c.net.Close()
	if err := c.store.Close(); err != nil {
		c.log.Warningf("Failed to close the storage: %v", err)
	}
	c.Halt()
}

// Wait waits till the Client is terminated for any reason.
func (c *Client) Wait() {
	<-c.HaltCh()
}
