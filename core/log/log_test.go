// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"
)

func TestFileBackend(t *testing.T) {
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "mtclient.log")
	b, err := New(f, "notice", false)
	require.NoError(err)

	l := b.GetLogger("network/dc2")
	l.Debug("hidden")
	l.Notice("reconnecting in %v", "1s")
	b.GetGoLogger("quic", "WARNING").Println("from the go logger")
	require.NoError(b.Rotate())
	l.Error("after rotate")

	raw, err := os.ReadFile(f)
	require.NoError(err)
	out := string(raw)
	require.NotContains(out, "hidden")
	require.Contains(out, "NOTI network/dc2: reconnecting in 1s")
	require.Contains(out, "WARN quic: from the go logger")
	require.Contains(out, "ERRO network/dc2: after rotate")
	require.Equal(3, strings.Count(out, "\n"))
}

func TestParseLevel(t *testing.T) {
	require := require.New(t)

	lvl, err := ParseLevel("Debug")
	require.NoError(err)
	require.Equal(logging.DEBUG, lvl)

	_, err = ParseLevel("verbose")
	require.Error(err)

	_, err = New("", "verbose", false)
	require.Error(err)

	b := NewDiscard()
	require.True(b.IsEnabledFor(logging.DEBUG, "x"))
}
