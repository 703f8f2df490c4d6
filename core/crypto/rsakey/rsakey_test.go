// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package rsakey

import (
	"bytes"
	"crypto/rsa"
	"math/big"
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mtproto/core/crypto/ige"
	"github.com/katzenpost/mtproto/core/crypto/kdf"
)

// unpad reverses EncryptPad with the private key, as a server would.
func unpad(t *testing.T, priv *rsa.PrivateKey, ct []byte) []byte {
	require := require.New(t)

	m := new(big.Int).Exp(new(big.Int).SetBytes(ct), priv.D, priv.N)
	buf := make([]byte, blockSize)
	m.FillBytes(buf)

	tmpKeyXor, encrypted := buf[:32], buf[32:]
	h := kdf.SHA256(encrypted)
	aesKey := make([]byte, 32)
	for i := range aesKey {
		aesKey[i] = tmpKeyXor[i] ^ h[i]
	}

	var zeroIV [ige.IVSize]byte
	withHash, err := ige.Decrypt(aesKey, zeroIV[:], encrypted)
	require.NoError(err)

	padded := reverse(withHash[:padBlockSize])
	require.Equal(kdf.SHA256(aesKey, padded), withHash[padBlockSize:])
	return padded
}

func TestEncryptPad(t *testing.T) {
	require := require.New(t)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	k := New(&priv.PublicKey, false)

	data := bytes.Repeat([]byte("pq_inner_data"), 11)
	ct, err := k.Encrypt(nil, data)
	require.NoError(err)
	require.Len(ct, blockSize)

	padded := unpad(t, priv, ct)
	require.Equal(data, padded[:len(data)])

	_, err = k.EncryptPad(nil, make([]byte, MaxPadInput+1))
	require.ErrorIs(err, ErrTooBig)
}

func TestEncryptOld(t *testing.T) {
	require := require.New(t)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	k := New(&priv.PublicKey, true)

	data := []byte("legacy inner data")
	ct, err := k.Encrypt(nil, data)
	require.NoError(err)
	require.Len(ct, blockSize)

	m := new(big.Int).Exp(new(big.Int).SetBytes(ct), priv.D, priv.N)
	buf := make([]byte, 255)
	m.FillBytes(buf)
	require.Equal(kdf.SHA1(data), buf[:20])
	require.Equal(data, buf[20:20+len(data)])
}

func TestDefaultTable(t *testing.T) {
	require := require.New(t)

	tbl := Default()
	require.Equal(1, tbl.Len())

	k, ok := tbl.Find([]uint64{1, 0xd09d1d85de64fd85})
	require.True(ok)
	require.Equal("d09d1d85de64fd85", k.String())
	require.Equal(65537, k.Key.E)

	_, ok = tbl.Find([]uint64{1, 2})
	require.False(ok)
}

func TestTablePrefersPad(t *testing.T) {
	require := require.New(t)

	a, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	b, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)

	old := New(&a.PublicKey, true)
	cur := New(&b.PublicKey, false)
	tbl := NewTable(old)
	tbl.Add(cur)

	k, ok := tbl.Find([]uint64{old.Fingerprint, cur.Fingerprint})
	require.True(ok)
	require.Equal(cur, k)

	k, ok = tbl.Find([]uint64{old.Fingerprint})
	require.True(ok)
	require.Equal(old, k)
}
