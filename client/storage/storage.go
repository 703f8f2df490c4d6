// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package storage defines what the client core persists and an in-memory
// implementation of it.
package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ErrNotFound is returned when a key or value is absent (or expired).
var ErrNotFound = errors.New("storage: not found")

// Storage is the persistence contract of the client core.  Every write
// is applied before the method returns.
type Storage interface {
	// AuthKey returns the permanent auth key of a data center.
	AuthKey(dc int) ([]byte, error)

	// SetAuthKey stores the permanent auth key of a data center, or
	// removes it if key is nil.
	SetAuthKey(dc int, key []byte) error

	// TempAuthKey returns temporary key number idx of a data center if it
	// has not expired at now.
	TempAuthKey(dc, idx int, now time.Time) ([]byte, error)

	// SetTempAuthKey stores temporary key number idx of a data center, or
	// removes it if key is nil.
	SetTempAuthKey(dc, idx int, key []byte, expiresAt time.Time) error

	// Get returns a session blob.
	Get(key string) ([]byte, error)

	// Set stores a session blob.
	Set(key string, value []byte) error

	// Delete removes a session blob.  Deleting an absent key is not an
	// error.
	Delete(key string) error

	// Close releases the backend.
	Close() error
}

// TempKeyRecord is the stored form of a temporary auth key.
type TempKeyRecord struct {
	Key       []byte `cbor:"1,keyasint"`
	ExpiresAt int64  `cbor:"2,keyasint"`
}

// Valid reports whether the record is usable at now.
func (r *TempKeyRecord) Valid(now time.Time) bool {
	return len(r.Key) > 0 && now.Unix() < r.ExpiresAt
}

// TempKeyName returns the canonical name of a temporary key slot.
func TempKeyName(dc, idx int) string {
	return fmt.Sprintf("%d:%d", dc, idx)
}

// Marshal encodes v with CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

// Unmarshal decodes CBOR b into v.
func Unmarshal(b []byte, v interface{}) error {
	return cbor.Unmarshal(b, v)
}

// LoadValue reads the blob at key into v.
func LoadValue(s Storage, key string, v interface{}) error {
	b, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := Unmarshal(b, v); err != nil {
		return fmt.Errorf("storage: failed to decode %q: %w", key, err)
	}
	return nil
}

// StoreValue writes v as the blob at key.
func StoreValue(s Storage, key string, v interface{}) error {
	b, err := Marshal(v)
	if err != nil {
		return err
	}
	return s.Set(key, b)
}

// Memory is a Storage kept in process memory.
type Memory struct {
	sync.RWMutex

	authKeys map[int][]byte
	tempKeys map[string]TempKeyRecord
	kv       map[string][]byte
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		authKeys: make(map[int][]byte),
		tempKeys: make(map[string]TempKeyRecord),
		kv:       make(map[string][]byte),
	}
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}

func (m *Memory) AuthKey(dc int) ([]byte, error) {
	m.RLock()
	defer m.RUnlock()
	k, ok := m.authKeys[dc]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(k), nil
}

func (m *Memory) SetAuthKey(dc int, key []byte) error {
	m.Lock()
	defer m.Unlock()
	if key == nil {
		delete(m.authKeys, dc)
		return nil
	}
	m.authKeys[dc] = clone(key)
	return nil
}

func (m *Memory) TempAuthKey(dc, idx int, now time.Time) ([]byte, error) {
	m.RLock()
	defer m.RUnlock()
	r, ok := m.tempKeys[TempKeyName(dc, idx)]
	if !ok || !r.Valid(now) {
		return nil, ErrNotFound
	}
	return clone(r.Key), nil
}

func (m *Memory) SetTempAuthKey(dc, idx int, key []byte, expiresAt time.Time) error {
	m.Lock()
	defer m.Unlock()
	name := TempKeyName(dc, idx)
	if key == nil {
		delete(m.tempKeys, name)
		return nil
	}
	m.tempKeys[name] = TempKeyRecord{Key: clone(key), ExpiresAt: expiresAt.Unix()}
	return nil
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.RLock()
	defer m.RUnlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.Lock()
	defer m.Unlock()
	m.kv[key] = clone(value)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.Lock()
	defer m.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
