// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package proxy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixupAndValidate(t *testing.T) {
	require := require.New(t)

	cfg := &Config{}
	require.NoError(cfg.FixupAndValidate())
	require.Equal(TypeNone, cfg.Type)
	require.Nil(cfg.ToDialContext("dc2"))

	cfg = &Config{Type: "SOCKS5", Address: "127.0.0.1:9050"}
	require.NoError(cfg.FixupAndValidate())
	require.Equal(netTCP, cfg.Network)
	require.NotNil(cfg.ToDialContext("dc2"))

	cfg = &Config{Type: "socks5", Network: "tcp", Address: "localhost:9050"}
	require.Error(cfg.FixupAndValidate())

	cfg = &Config{Type: "socks5", Network: "tcp", Address: "127.0.0.1:0"}
	require.Error(cfg.FixupAndValidate())

	cfg = &Config{Type: "socks5", Network: "tcp", Address: "127.0.0.1:1080", User: "u"}
	require.Error(cfg.FixupAndValidate())

	cfg = &Config{Type: "socks5", Network: "tcp", Address: "127.0.0.1:1080", User: strings.Repeat("u", 256), Password: "p"}
	require.Error(cfg.FixupAndValidate())

	cfg = &Config{Type: "tor+socks5", Network: "tcp", Address: "127.0.0.1:9050", User: "u", Password: "p"}
	require.Error(cfg.FixupAndValidate())

	cfg = &Config{Type: "socks5", Network: "udp", Address: "127.0.0.1:1080"}
	require.Error(cfg.FixupAndValidate())

	cfg = &Config{Type: "http"}
	require.Error(cfg.FixupAndValidate())
}

func TestIsolationTag(t *testing.T) {
	require := require.New(t)

	a := isolationTag("dc1")
	require.Equal(a, isolationTag("dc1"))
	require.NotEqual(a, isolationTag("dc2"))
	require.True(strings.HasPrefix(a, "mtproto/mtclient:"))
}
