// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package boltstore

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/katzenpost/mtproto/client/storage/storagetest"
)

func TestContract(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		s, err := New(filepath.Join(t.TempDir(), "session.db"), nil)
		require.NoError(t, err)
		defer s.Close()
		storagetest.Run(t, s)
	})

	t.Run("sealed", func(t *testing.T) {
		s, err := New(filepath.Join(t.TempDir(), "session.db"), []byte("hunter2"))
		require.NoError(t, err)
		defer s.Close()
		storagetest.Run(t, s)
	})
}

func TestSealedReopen(t *testing.T) {
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "session.db")
	key := bytes.Repeat([]byte{0x99}, 256)

	s, err := New(f, []byte("correct horse"))
	require.NoError(err)
	require.NoError(s.SetAuthKey(2, key))
	require.NoError(s.Close())

	_, err = New(f, []byte("wrong"))
	require.ErrorIs(err, errBadPassphrase)

	_, err = New(f, nil)
	require.ErrorIs(err, errSealedNoPass)

	s, err = New(f, []byte("correct horse"))
	require.NoError(err)
	got, err := s.AuthKey(2)
	require.NoError(err)
	require.Equal(key, got)

	// Values are not stored in the clear.
	require.NoError(s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(authKeysBucket)).Get([]byte("2"))
		require.False(bytes.Contains(raw, key[:32]))
		return nil
	}))
	require.NoError(s.Close())
}

func TestPlainReopen(t *testing.T) {
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "session.db")
	s, err := New(f, nil)
	require.NoError(err)
	require.NoError(s.Set("dc", []byte{2}))
	require.NoError(s.Close())

	s, err = New(f, nil)
	require.NoError(err)
	v, err := s.Get("dc")
	require.NoError(err)
	require.Equal([]byte{2}, v)
	require.NoError(s.Close())
}
