// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package storagetest checks a storage.Storage implementation against the
// contract the client core relies on.
package storagetest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/mtproto/client/storage"
)

type blob struct {
	Pts  int32
	Date int32
	Name string
}

// Run exercises s.  s must be empty.
func Run(t *testing.T, s storage.Storage) {
	now := time.Unix(1700000000, 0)

	t.Run("auth keys", func(t *testing.T) {
		require := require.New(t)

		_, err := s.AuthKey(2)
		require.ErrorIs(err, storage.ErrNotFound)

		key := bytes.Repeat([]byte{0x42}, 256)
		require.NoError(s.SetAuthKey(2, key))
		got, err := s.AuthKey(2)
		require.NoError(err)
		require.Equal(key, got)

		_, err = s.AuthKey(4)
		require.ErrorIs(err, storage.ErrNotFound)

		require.NoError(s.SetAuthKey(2, nil))
		_, err = s.AuthKey(2)
		require.ErrorIs(err, storage.ErrNotFound)
	})

	t.Run("temp keys", func(t *testing.T) {
		require := require.New(t)

		key := bytes.Repeat([]byte{0x17}, 256)
		require.NoError(s.SetTempAuthKey(2, 1, key, now.Add(time.Hour)))

		got, err := s.TempAuthKey(2, 1, now)
		require.NoError(err)
		require.Equal(key, got)

		_, err = s.TempAuthKey(2, 0, now)
		require.ErrorIs(err, storage.ErrNotFound)

		_, err = s.TempAuthKey(2, 1, now.Add(2*time.Hour))
		require.ErrorIs(err, storage.ErrNotFound)

		require.NoError(s.SetTempAuthKey(2, 1, nil, time.Time{}))
		_, err = s.TempAuthKey(2, 1, now)
		require.ErrorIs(err, storage.ErrNotFound)
	})

	t.Run("values", func(t *testing.T) {
		require := require.New(t)

		var v blob
		require.ErrorIs(storage.LoadValue(s, "updates:state", &v), storage.ErrNotFound)

		in := blob{Pts: 100, Date: 1700000000, Name: "main"}
		require.NoError(storage.StoreValue(s, "updates:state", &in))
		require.NoError(storage.LoadValue(s, "updates:state", &v))
		require.Equal(in, v)

		require.NoError(s.Delete("updates:state"))
		require.NoError(s.Delete("updates:state"))
		_, err := s.Get("updates:state")
		require.ErrorIs(err, storage.ErrNotFound)
	})
}
