// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package ige implements AES in Infinite Garble Extension mode.
package ige

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
)

// IVSize is the size of an IGE IV: two AES blocks.
const IVSize = 2 * aes.BlockSize

var (
	// ErrNotBlockAligned is returned when the input is not a whole number
	// of AES blocks.
	ErrNotBlockAligned = errors.New("ige: input not a multiple of the block size")

	errInvalidIV = errors.New("ige: invalid IV size")
)

func newCipher(key, iv []byte, src []byte) (cipher.Block, error) {
	if len(iv) != IVSize {
		return nil, errInvalidIV
	}
	if len(src)%aes.BlockSize != 0 {
		return nil, ErrNotBlockAligned
	}
	return aes.NewCipher(key)
}

// Encrypt encrypts src with key and iv and returns the ciphertext.
func Encrypt(key, iv, src []byte) ([]byte, error) {
	b, err := newCipher(key, iv, src)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, len(src))
	encryptBlocks(b, iv, dst, src)
	return dst, nil
}

// Decrypt decrypts src with key and iv and returns the plaintext.
func Decrypt(key, iv, src []byte) ([]byte, error) {
	b, err := newCipher(key, iv, src)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, len(src))
	decryptBlocks(b, iv, dst, src)
	return dst, nil
}

// c_i = E(p_i ^ c_{i-1}) ^ p_{i-1}, with iv = c_0 || p_0.
func encryptBlocks(b cipher.Block, iv, dst, src []byte) {
	const bs = aes.BlockSize
	var cPrev, pPrev, tmp [bs]byte
	copy(cPrev[:], iv[:bs])
	copy(pPrev[:], iv[bs:])

	for off := 0; off < len(src); off += bs {
		p := src[off : off+bs]
		subtle.XORBytes(tmp[:], p, cPrev[:])
		b.Encrypt(tmp[:], tmp[:])
		subtle.XORBytes(tmp[:], tmp[:], pPrev[:])
		copy(pPrev[:], p)
		copy(cPrev[:], tmp[:])
		copy(dst[off:], tmp[:])
	}
}

// p_i = D(c_i ^ p_{i-1}) ^ c_{i-1}.
func decryptBlocks(b cipher.Block, iv, dst, src []byte) {
	const bs = aes.BlockSize
	var cPrev, pPrev, tmp [bs]byte
	copy(cPrev[:], iv[:bs])
	copy(pPrev[:], iv[bs:])

	for off := 0; off < len(src); off += bs {
		c := src[off : off+bs]
		subtle.XORBytes(tmp[:], c, pPrev[:])
		b.Decrypt(tmp[:], tmp[:])
		subtle.XORBytes(tmp[:], tmp[:], cPrev[:])
		copy(cPrev[:], c)
		copy(pPrev[:], tmp[:])
		copy(dst[off:], tmp[:])
	}
}
