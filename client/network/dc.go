// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"context"
	"errors"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/mtproto/client/storage"
	"github.com/katzenpost/mtproto/core/authkey"
	"github.com/katzenpost/mtproto/core/wire"
	"github.com/katzenpost/mtproto/internal/instrument"
)

// dcState holds what the connections of one data center share: the
// permanent auth key and the lock serializing its creation.
type dcState struct {
	sync.Mutex

	m   *Manager
	id  int
	log *logging.Logger

	key *wire.AuthKey
}

func newDCState(m *Manager, id int) *dcState {
	return &dcState{
		m:   m,
		id:  id,
		log: m.cfg.LogBackend.GetLogger("network/dc" + itoa(id)),
	}
}

func (d *dcState) exchanger(media bool, temporary bool) *authkey.Exchanger {
	cfg := &authkey.Config{
		DC:          d.id,
		TestMode:    d.m.cfg.TestMode,
		Media:       media,
		Keys:        d.m.cfg.Keys,
		Rand:        d.m.cfg.Rand,
		Now:         d.m.cfg.Now,
		Attempts:    d.m.cfg.HandshakeAttempts,
		StepTimeout: d.m.cfg.HandshakeTimeout,
		Log:         d.log,
	}
	if temporary {
		cfg.ExpiresIn = d.m.cfg.TempKeyLifetime
	}
	return authkey.New(cfg)
}

// permanentKey returns the permanent key of the data center, creating it
// over conn if neither memory nor storage holds one.  Concurrent callers
// wait for the first one's exchange.
func (d *dcState) permanentKey(ctx context.Context, conn authkey.Conn, media bool) (*wire.AuthKey, *authkey.Result, error) {
	d.Lock()
	defer d.Unlock()

	if d.key != nil {
		return d.key, nil, nil
	}
	b, err := d.m.cfg.Storage.AuthKey(d.id)
	switch {
	case err == nil:
		if d.key, err = wire.NewAuthKey(b); err != nil {
			return nil, nil, err
		}
		d.log.Debugf("Loaded permanent key %x.", d.key.ID())
		return d.key, nil, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, nil, err
	}

	d.log.Noticef("No permanent key, starting key exchange.")
	res, err := d.exchanger(media, false).Run(ctx, conn)
	instrument.Handshake(d.id, false, err)
	if err != nil {
		return nil, nil, err
	}
	if err := d.m.cfg.Storage.SetAuthKey(d.id, res.Key.Bytes()); err != nil {
		return nil, nil, err
	}
	d.key = res.Key
	d.log.Noticef("Created permanent key %x.", d.key.ID())
	return d.key, res, nil
}

// tempKey returns the temporary key of a connection slot, creating it over
// conn when the stored one is missing or expired.  A fresh key needs to be
// bound before use.
func (d *dcState) tempKey(ctx context.Context, conn authkey.Conn, kind Kind) (*wire.AuthKey, *authkey.Result, error) {
	now := d.m.cfg.Now()
	b, err := d.m.cfg.Storage.TempAuthKey(d.id, int(kind), now)
	switch {
	case err == nil:
		var rec storage.TempKeyRecord
		if err := storage.LoadValue(d.m.cfg.Storage, tempExpiryKey(d.id, kind), &rec); err == nil && rec.Valid(now) {
			k, err := wire.NewAuthKey(b)
			if err != nil {
				return nil, nil, err
			}
			k.ExpiresAt = unixTime(rec.ExpiresAt)
			return k, nil, nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, nil, err
	}

	res, err := d.exchanger(kind.media(), true).Run(ctx, conn)
	instrument.Handshake(d.id, true, err)
	if err != nil {
		return nil, nil, err
	}
	if err := d.m.cfg.Storage.SetTempAuthKey(d.id, int(kind), res.Key.Bytes(), res.Key.ExpiresAt); err != nil {
		return nil, nil, err
	}
	rec := &storage.TempKeyRecord{ExpiresAt: res.Key.ExpiresAt.Unix()}
	if err := storage.StoreValue(d.m.cfg.Storage, tempExpiryKey(d.id, kind), rec); err != nil {
		return nil, nil, err
	}
	return res.Key, res, nil
}

// dropKey forgets k after the server reported it unknown.
func (d *dcState) dropKey(k *wire.AuthKey, kind Kind) {
	if k == nil {
		return
	}
	if k.Temporary() {
		if err := d.m.cfg.Storage.SetTempAuthKey(d.id, int(kind), nil, unixTime(0)); err != nil {
			d.log.Warningf("Failed to drop temporary key: %v", err)
		}
		return
	}

	d.Lock()
	defer d.Unlock()
	if !k.Equal(d.key) {
		return
	}
	d.log.Warningf("Dropping permanent key %x.", k.ID())
	d.key = nil
	if err := d.m.cfg.Storage.SetAuthKey(d.id, nil); err != nil {
		d.log.Warningf("Failed to drop permanent key: %v", err)
	}
}
