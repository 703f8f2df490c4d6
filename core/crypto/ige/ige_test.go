// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package ige

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func unhex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestVectors(t *testing.T) {
	vectors := []struct {
		key, iv, plaintext, ciphertext string
	}{
		{
			key:        "000102030405060708090a0b0c0d0e0f",
			iv:         "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
			plaintext:  "0000000000000000000000000000000000000000000000000000000000000000",
			ciphertext: "1a8519a6557be652e9da8e43da4ef4453cf456b4ca488aa383c79c98b34797cb",
		},
		{
			key:        "5468697320697320616e20696d706c65",
			iv:         "6d656e746174696f6e206f6620494745206d6f646520666f72204f70656e5353",
			plaintext:  "99706487a1cde613bc6de0b6f24b1c7aa448c8b9c3403e3467a8cad89340f53b",
			ciphertext: "4c2e204c6574277320686f70652042656e20676f74206974207269676874210a",
		},
	}

	for i, v := range vectors {
		require := require.New(t)

		ct, err := Encrypt(unhex(v.key), unhex(v.iv), unhex(v.plaintext))
		require.NoError(err, "vector %d", i)
		require.Equal(v.ciphertext, hex.EncodeToString(ct), "vector %d", i)

		pt, err := Decrypt(unhex(v.key), unhex(v.iv), ct)
		require.NoError(err)
		require.Equal(v.plaintext, hex.EncodeToString(pt))
	}
}

func TestErrors(t *testing.T) {
	require := require.New(t)

	key := make([]byte, 32)
	iv := make([]byte, IVSize)

	_, err := Encrypt(key, iv, make([]byte, 17))
	require.ErrorIs(err, ErrNotBlockAligned)
	_, err = Decrypt(key, iv[:16], make([]byte, 16))
	require.Error(err)
	_, err = Encrypt(key[:5], iv, make([]byte, 16))
	require.Error(err)
}
