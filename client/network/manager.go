// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package network implements the MTProto connection manager: the
// connections to each data center, their sessions and auth keys, and the
// call path from a request to its result.
package network

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/core/tl"
	"github.com/katzenpost/mtproto/core/tl/mt"
	"github.com/katzenpost/mtproto/core/worker"
)

const primaryDCKey = "network.primary_dc"

type connKey struct {
	dc   int
	kind Kind
}

// Manager owns the connections of a client and routes calls to them.
type Manager struct {
	worker.Worker

	cfg   Config
	log   *logging.Logger
	chain Handler

	sync.RWMutex
	primary int
	dcs     map[int]*dcState
	conns   map[connKey]*connection
}

// New returns a Manager for cfg.  Connections are opened on first use.
func New(cfg *Config) (*Manager, error) {
	m := &Manager{
		cfg:   *cfg,
		dcs:   make(map[int]*dcState),
		conns: make(map[connKey]*connection),
	}
	m.cfg.fixup()
	if err := m.cfg.validate(); err != nil {
		return nil, err
	}
	m.log = m.cfg.LogBackend.GetLogger("network")
	m.chain = Chain(m.invoke, m.cfg.Middlewares...)

	m.primary = m.cfg.DC
	var dc int
	switch err := storage.LoadValue(m.cfg.Storage, primaryDCKey, &dc); {
	case err == nil && dc > 0:
		m.primary = dc
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	m.log.Debugf("Primary DC is %d.", m.primary)
	return m, nil
}

// PrimaryDC returns the data center calls go to by default.
func (m *Manager) PrimaryDC() int {
	m.RLock()
	defer m.RUnlock()
	return m.primary
}

// SetPrimaryDC changes and persists the primary data center.
func (m *Manager) SetPrimaryDC(dc int) {
	m.Lock()
	changed := m.primary != dc
	m.primary = dc
	m.Unlock()
	if !changed {
		return
	}
	m.log.Noticef("Primary DC is now %d.", dc)
	if err := storage.StoreValue(m.cfg.Storage, primaryDCKey, dc); err != nil {
		m.log.Warningf("Failed to persist primary DC: %v", err)
	}
}

// Call sends req and returns its result.  Server errors are returned as
// *RPCError after the middlewares had their go at them.
func (m *Manager) Call(ctx context.Context, req tl.Object, opts ...CallOption) (tl.Object, error) {
	if m.IsHalted() {
		return nil, ErrShutdown
	}
	cc := &CallContext{
		Request: req,
		Method:  tl.TypeName(req),
		DC:      m.PrimaryDC(),
		Kind:    KindMain,
		m:       m,
	}
	for _, opt := range opts {
		opt(cc)
	}
	return m.chain(ctx, cc)
}

// Ping sends a ping over the main connection of the primary data center
// and returns the round trip time.
func (m *Manager) Ping(ctx context.Context) (time.Duration, error) {
	start := m.cfg.Now()
	res, err := m.Call(ctx, &mt.Ping{PingID: start.UnixNano()})
	if err != nil {
		return 0, err
	}
	if _, ok := res.(*mt.Pong); !ok {
		return 0, fmt.Errorf("network: unexpected answer to ping: %s", tl.TypeName(res))
	}
	return m.cfg.Now().Sub(start), nil
}

func (m *Manager) invoke(ctx context.Context, cc *CallContext) (tl.Object, error) {
	c, err := m.connection(cc.DC, cc.Kind)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, cc)
}

func (m *Manager) connection(dc int, kind Kind) (*connection, error) {
	m.Lock()
	defer m.Unlock()
	if m.IsHalted() {
		return nil, ErrShutdown
	}
	key := connKey{dc: dc, kind: kind}
	if c, ok := m.conns[key]; ok {
		return c, nil
	}
	if m.cfg.Address(dc, false) == "" && m.cfg.Address(dc, true) == "" {
		return nil, fmt.Errorf("network: unknown DC %d", dc)
	}
	st, ok := m.dcs[dc]
	if !ok {
		st = newDCState(m, dc)
		m.dcs[dc] = st
	}
	c := newConnection(m, st, kind)
	m.conns[key] = c
	c.start()
	return c, nil
}

func (m *Manager) removeConn(c *connection) {
	m.Lock()
	defer m.Unlock()
	key := connKey{dc: c.dc.id, kind: c.kind}
	if m.conns[key] == c {
		delete(m.conns, key)
	}
}

func (m *Manager) address(dc int, media bool) string {
	if addr := m.cfg.Address(dc, media); addr != "" || !media {
		return addr
	}
	return m.cfg.Address(dc, false)
}

// Close tears down every connection.  Pending calls fail with ErrShutdown.
func (m *Manager) Close() {
	m.Lock()
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[connKey]*connection)
	m.Unlock()

	m.Halt()
	for _, c := range conns {
		c.Halt()
	}
	m.log.Debugf("Closed %d connection(s).", len(conns))
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}

func tempExpiryKey(dc int, kind Kind) string {
	return "network.temp_key_expiry." + storage.TempKeyName(dc, int(kind))
}
