// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package kdf implements the MTProto key derivations: the message key,
// the per-message AES key and IV, and the nonce based temporary key used
// during the key exchange.
package kdf

import (
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"math/big"
)

const (
	// MessageKeySize is the size of an MTProto 2.0 msg_key.
	MessageKeySize = 16

	dhBits = 2048
)

var (
	errDHRange = errors.New("kdf: DH value out of the safe range")

	one = big.NewInt(1)

	// dhSafeLower is 2^(2048-64).
	dhSafeLower = new(big.Int).Lsh(one, dhBits-64)
)

// SHA1 returns the SHA-1 digest of the concatenation of parts.
func SHA1(parts ...[]byte) []byte {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// SHA256 returns the SHA-256 digest of the concatenation of parts.
func SHA256(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func direction(fromServer bool) int {
	if fromServer {
		return 8
	}
	return 0
}

// MessageKey computes msg_key for plaintext, which must already include
// its padding.
func MessageKey(authKey, plaintext []byte, fromServer bool) [MessageKeySize]byte {
	x := direction(fromServer)
	var k [MessageKeySize]byte
	sum := SHA256(authKey[88+x:88+x+32], plaintext)
	copy(k[:], sum[8:24])
	return k
}

// MessageKeyIV derives the AES-256-IGE key and IV for a message.
func MessageKeyIV(authKey, msgKey []byte, fromServer bool) (key, iv []byte) {
	x := direction(fromServer)
	a := SHA256(msgKey, authKey[x:x+36])
	b := SHA256(authKey[40+x:40+x+36], msgKey)

	key = make([]byte, 0, 32)
	key = append(key, a[0:8]...)
	key = append(key, b[8:24]...)
	key = append(key, a[24:32]...)

	iv = make([]byte, 0, 32)
	iv = append(iv, b[0:8]...)
	iv = append(iv, a[8:24]...)
	iv = append(iv, b[24:32]...)
	return key, iv
}

// MessageKeyIVv1 is the MTProto 1.0 derivation, still required to encrypt
// bind_auth_key_inner.
func MessageKeyIVv1(authKey, msgKey []byte, fromServer bool) (key, iv []byte) {
	x := direction(fromServer)
	a := SHA1(msgKey, authKey[x:x+32])
	b := SHA1(authKey[32+x:48+x], msgKey, authKey[48+x:64+x])
	c := SHA1(authKey[64+x:96+x], msgKey)
	d := SHA1(msgKey, authKey[96+x:128+x])

	key = make([]byte, 0, 32)
	key = append(key, a[0:8]...)
	key = append(key, b[8:20]...)
	key = append(key, c[4:16]...)

	iv = make([]byte, 0, 32)
	iv = append(iv, a[8:20]...)
	iv = append(iv, b[0:8]...)
	iv = append(iv, c[16:20]...)
	iv = append(iv, d[0:8]...)
	return key, iv
}

// NonceKeyIV derives tmp_aes_key and tmp_aes_iv from the server nonce
// and the client new_nonce.
func NonceKeyIV(serverNonce, newNonce []byte) (key, iv []byte) {
	ns := SHA1(newNonce, serverNonce)
	sn := SHA1(serverNonce, newNonce)
	nn := SHA1(newNonce, newNonce)

	key = make([]byte, 0, 32)
	key = append(key, ns...)
	key = append(key, sn[:12]...)

	iv = make([]byte, 0, 32)
	iv = append(iv, sn[12:20]...)
	iv = append(iv, nn...)
	iv = append(iv, newNonce[:4]...)
	return key, iv
}

// ModExp returns b^e mod m.
func ModExp(b, e, m *big.Int) *big.Int {
	return new(big.Int).Exp(b, e, m)
}

// CheckDHRange checks 1 < v < p-1 and, when strict is set, that v lies in
// [2^(2048-64), p - 2^(2048-64)].
func CheckDHRange(v, p *big.Int, strict bool) error {
	pMinusOne := new(big.Int).Sub(p, one)
	if v.Cmp(one) <= 0 || v.Cmp(pMinusOne) >= 0 {
		return errDHRange
	}
	if !strict {
		return nil
	}
	upper := new(big.Int).Sub(p, dhSafeLower)
	if v.Cmp(dhSafeLower) < 0 || v.Cmp(upper) > 0 {
		return errDHRange
	}
	return nil
}
