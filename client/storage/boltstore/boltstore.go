// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package boltstore implements the client storage with a bolt database,
// optionally sealing every value under a passphrase.
package boltstore

import (
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/katzenpost/hpqc/rand"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/katzenpost/mtproto/client/storage"
)

const (
	metadataBucket = "metadata"
	authKeysBucket = "auth_keys"
	tempKeysBucket = "temp_auth_keys"
	kvBucket       = "kv"

	versionKey = "version"
	saltKey    = "salt"
	checkKey   = "check"

	saltSize = 16

	argonTime    = 3
	argonMemory  = 32 * 1024
	argonThreads = 4
)

var (
	errBadPassphrase = errors.New("boltstore: wrong passphrase or corrupted database")
	errSealedNoPass  = errors.New("boltstore: database is sealed but no passphrase was given")
	errOpen          = errors.New("boltstore: failed to open sealed value")
)

// Store is a bolt backed storage.Storage.
type Store struct {
	db   *bolt.DB
	aead cipher.AEAD
}

// New creates (or loads) a store in the file f.  A non empty passphrase
// seals every value with XChaCha20-Poly1305 under a key derived with
// Argon2id; a store created with a passphrase can only be opened with it.
func New(f string, passphrase []byte) (*Store, error) {
	db, err := bolt.Open(f, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}

	if err = db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		for _, name := range []string{authKeysBucket, tempKeysBucket, kvBucket} {
			if _, err = tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != 0 {
				return fmt.Errorf("boltstore: incompatible version: %d", uint(b[0]))
			}
			return s.loadSeal(bkt, passphrase)
		}

		if err = bkt.Put([]byte(versionKey), []byte{0}); err != nil {
			return err
		}
		return s.initSeal(bkt, passphrase)
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func deriveAEAD(passphrase, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	return chacha20poly1305.NewX(key)
}

func (s *Store) initSeal(bkt *bolt.Bucket, passphrase []byte) error {
	if len(passphrase) == 0 {
		return nil
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	aead, err := deriveAEAD(passphrase, salt)
	if err != nil {
		return err
	}
	s.aead = aead
	check, err := s.seal([]byte(metadataBucket), []byte(checkKey), []byte(checkKey))
	if err != nil {
		return err
	}
	if err := bkt.Put([]byte(saltKey), salt); err != nil {
		return err
	}
	return bkt.Put([]byte(checkKey), check)
}

func (s *Store) loadSeal(bkt *bolt.Bucket, passphrase []byte) error {
	salt := bkt.Get([]byte(saltKey))
	if salt == nil {
		return nil
	}
	if len(passphrase) == 0 {
		return errSealedNoPass
	}
	aead, err := deriveAEAD(passphrase, salt)
	if err != nil {
		return err
	}
	s.aead = aead
	if _, err := s.open([]byte(metadataBucket), []byte(checkKey), bkt.Get([]byte(checkKey))); err != nil {
		return errBadPassphrase
	}
	return nil
}

// seal binds the value to its bucket and key through the additional data.
func (s *Store) seal(bucket, key, value []byte) ([]byte, error) {
	if s.aead == nil {
		return append([]byte{}, value...), nil
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, value, ad(bucket, key)), nil
}

func (s *Store) open(bucket, key, value []byte) ([]byte, error) {
	if s.aead == nil {
		return append([]byte{}, value...), nil
	}
	if len(value) < s.aead.NonceSize() {
		return nil, errOpen
	}
	ns := s.aead.NonceSize()
	pt, err := s.aead.Open(nil, value[:ns], value[ns:], ad(bucket, key))
	if err != nil {
		return nil, errOpen
	}
	return pt, nil
}

func ad(bucket, key []byte) []byte {
	b := append([]byte{}, bucket...)
	b = append(b, '/')
	return append(b, key...)
}

func (s *Store) get(bucket, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if v == nil {
			return storage.ErrNotFound
		}
		var err error
		out, err = s.open([]byte(bucket), []byte(key), v)
		return err
	})
	return out, err
}

func (s *Store) put(bucket, key string, value []byte) error {
	sealed, err := s.seal([]byte(bucket), []byte(key), value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), sealed)
	})
}

func (s *Store) del(bucket, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(key))
	})
}

func (s *Store) AuthKey(dc int) ([]byte, error) {
	return s.get(authKeysBucket, strconv.Itoa(dc))
}

func (s *Store) SetAuthKey(dc int, key []byte) error {
	if key == nil {
		return s.del(authKeysBucket, strconv.Itoa(dc))
	}
	return s.put(authKeysBucket, strconv.Itoa(dc), key)
}

func (s *Store) TempAuthKey(dc, idx int, now time.Time) ([]byte, error) {
	b, err := s.get(tempKeysBucket, storage.TempKeyName(dc, idx))
	if err != nil {
		return nil, err
	}
	var r storage.TempKeyRecord
	if err := storage.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	if !r.Valid(now) {
		return nil, storage.ErrNotFound
	}
	return r.Key, nil
}

func (s *Store) SetTempAuthKey(dc, idx int, key []byte, expiresAt time.Time) error {
	name := storage.TempKeyName(dc, idx)
	if key == nil {
		return s.del(tempKeysBucket, name)
	}
	b, err := storage.Marshal(&storage.TempKeyRecord{Key: key, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return err
	}
	return s.put(tempKeysBucket, name, b)
}

func (s *Store) Get(key string) ([]byte, error) {
	return s.get(kvBucket, key)
}

func (s *Store) Set(key string, value []byte) error {
	return s.put(kvBucket, key, value)
}

func (s *Store) Delete(key string) error {
	return s.del(kvBucket, key)
}

func (s *Store) Close() error {
	s.db.Sync()
	return s.db.Close()
}
