// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package rsakey holds the server RSA public keys used to encrypt the
// key exchange inner data, indexed by their MTProto fingerprint.
package rsakey

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/mtproto/core/crypto/ige"
	"github.com/katzenpost/mtproto/core/crypto/kdf"
	"github.com/katzenpost/mtproto/core/tl"
)

const (
	// MaxPadInput is the largest plaintext accepted by EncryptPad.
	MaxPadInput = 144

	padBlockSize = 192
	blockSize    = 256
	oldMaxInput  = 235
)

var (
	// ErrTooBig is returned when the plaintext does not fit the padding
	// scheme.
	ErrTooBig = errors.New("rsakey: plaintext too big")

	errNotRSA = errors.New("rsakey: PEM block is not an RSA public key")
)

// PublicKey is a server RSA public key.
type PublicKey struct {
	Key *rsa.PublicKey

	// Fingerprint is the lower 64 bits of SHA1 over the TL serialized
	// modulus and exponent.
	Fingerprint uint64

	// Old marks keys that predate RSA_PAD and use the legacy
	// SHA1 || data || random encryption.
	Old bool
}

// Fingerprint computes the MTProto fingerprint of k.
func Fingerprint(k *rsa.PublicKey) uint64 {
	enc := tl.NewEncoder(blockSize + 16)
	enc.PutBigInt(k.N)
	enc.PutBigInt(big.NewInt(int64(k.E)))
	sum := kdf.SHA1(enc.Bytes())
	return binary.LittleEndian.Uint64(sum[12:20])
}

// New wraps an RSA public key.
func New(k *rsa.PublicKey, old bool) *PublicKey {
	return &PublicKey{
		Key:         k,
		Fingerprint: Fingerprint(k),
		Old:         old,
	}
}

// ParsePEM parses a PKCS#1 or PKIX encoded RSA public key.
func ParsePEM(b []byte, old bool) (*PublicKey, error) {
	blk, _ := pem.Decode(b)
	if blk == nil {
		return nil, errNotRSA
	}
	switch blk.Type {
	case "RSA PUBLIC KEY":
		k, err := x509.ParsePKCS1PublicKey(blk.Bytes)
		if err != nil {
			return nil, err
		}
		return New(k, old), nil
	case "PUBLIC KEY":
		k, err := x509.ParsePKIXPublicKey(blk.Bytes)
		if err != nil {
			return nil, err
		}
		rk, ok := k.(*rsa.PublicKey)
		if !ok {
			return nil, errNotRSA
		}
		return New(rk, old), nil
	}
	return nil, errNotRSA
}

// String returns the fingerprint in hex.
func (k *PublicKey) String() string {
	return fmt.Sprintf("%016x", k.Fingerprint)
}

// Encrypt encrypts data with whichever scheme the key calls for.
func (k *PublicKey) Encrypt(r io.Reader, data []byte) ([]byte, error) {
	if k.Old {
		return k.EncryptOld(r, data)
	}
	return k.EncryptPad(r, data)
}

// EncryptPad implements RSA_PAD: the data is padded to 192 bytes, hashed
// with a temporary AES key, encrypted with AES-IGE under a zero IV, and
// the masked key plus ciphertext is raised to the public exponent.  A
// candidate that is not below the modulus is discarded and regenerated.
func (k *PublicKey) EncryptPad(r io.Reader, data []byte) ([]byte, error) {
	if len(data) > MaxPadInput {
		return nil, ErrTooBig
	}
	if r == nil {
		r = rand.Reader
	}

	padded := make([]byte, padBlockSize)
	copy(padded, data)
	if _, err := io.ReadFull(r, padded[len(data):]); err != nil {
		return nil, err
	}

	var zeroIV [ige.IVSize]byte
	aesKey := make([]byte, 32)
	for {
		if _, err := io.ReadFull(r, aesKey); err != nil {
			return nil, err
		}

		withHash := make([]byte, 0, padBlockSize+32)
		withHash = append(withHash, reverse(padded)...)
		withHash = append(withHash, kdf.SHA256(aesKey, padded)...)

		encrypted, err := ige.Encrypt(aesKey, zeroIV[:], withHash)
		if err != nil {
			return nil, err
		}
		h := kdf.SHA256(encrypted)
		tmpKeyXor := make([]byte, 32)
		for i := range tmpKeyXor {
			tmpKeyXor[i] = aesKey[i] ^ h[i]
		}

		m := new(big.Int).SetBytes(append(tmpKeyXor, encrypted...))
		if m.Cmp(k.Key.N) >= 0 {
			continue
		}
		return k.raw(m), nil
	}
}

// EncryptOld is the pre-2021 scheme: SHA1(data) || data || random,
// 255 bytes, raised to the public exponent.
func (k *PublicKey) EncryptOld(r io.Reader, data []byte) ([]byte, error) {
	if len(data) > oldMaxInput {
		return nil, ErrTooBig
	}
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, 0, 255)
	buf = append(buf, kdf.SHA1(data)...)
	buf = append(buf, data...)
	pad := make([]byte, oldMaxInput-len(data))
	if _, err := io.ReadFull(r, pad); err != nil {
		return nil, err
	}
	buf = append(buf, pad...)
	return k.raw(new(big.Int).SetBytes(buf)), nil
}

func (k *PublicKey) raw(m *big.Int) []byte {
	c := new(big.Int).Exp(m, big.NewInt(int64(k.Key.E)), k.Key.N)
	out := make([]byte, blockSize)
	c.FillBytes(out)
	return out
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// Table is a set of keys indexed by fingerprint.  It is safe for
// concurrent use.
type Table struct {
	sync.RWMutex
	keys map[uint64]*PublicKey
}

// NewTable returns a table holding keys.
func NewTable(keys ...*PublicKey) *Table {
	t := &Table{keys: make(map[uint64]*PublicKey)}
	for _, k := range keys {
		t.keys[k.Fingerprint] = k
	}
	return t
}

// Add inserts or replaces a key.
func (t *Table) Add(k *PublicKey) {
	t.Lock()
	defer t.Unlock()
	t.keys[k.Fingerprint] = k
}

// Len returns the number of keys.
func (t *Table) Len() int {
	t.RLock()
	defer t.RUnlock()
	return len(t.keys)
}

// Find returns the first key matching one of the server fingerprints.
// Keys using RSA_PAD are preferred over old keys.
func (t *Table) Find(fingerprints []uint64) (*PublicKey, bool) {
	t.RLock()
	defer t.RUnlock()

	var fallback *PublicKey
	for _, fp := range fingerprints {
		k, ok := t.keys[fp]
		if !ok {
			continue
		}
		if !k.Old {
			return k, true
		}
		if fallback == nil {
			fallback = k
		}
	}
	return fallback, fallback != nil
}
