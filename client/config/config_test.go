// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := Load([]byte(""))
	require.NoError(err)
	require.Equal(defaultLogLevel, cfg.Logging.Level)
	require.Equal(TransportIntermediate, cfg.Network.Transport)
	require.Equal(2, cfg.Network.DefaultDC)
	require.Equal("149.154.167.51:443", cfg.Network.Address(2, false))
	require.Equal(BackendMemory, cfg.Session.StorageBackend)
	require.Equal(defaultSessionName, cfg.Session.Name)
	require.Equal(defaultPingInterval, cfg.Debug.PingInterval)
	require.Equal(defaultContainerDelay, cfg.Debug.ContainerDelay)
	require.Nil(cfg.UpstreamProxyConfig())
}

func TestLoad(t *testing.T) {
	require := require.New(t)

	const body = `
[Logging]
  Level = "debug"

[Network]
  TestMode = true
  Transport = "Abridged"
  UsePFS = true
  DefaultDC = 1

  [[Network.DCs]]
    ID = 1
    Address = "Bücher.example:443"

  [[Network.DCs]]
    ID = 1
    Address = "10.0.0.2:443"
    Media = true

[Session]
  Name = "Alice"
  StorageBackend = "bolt"
  StorageFile = "/tmp/alice.db"

[UpstreamProxy]
  Type = "socks5"
  Address = "127.0.0.1:9050"

[Debug]
  FloodWaitMax = 30
  ExtraPaddingBlocks = 40
`
	cfg, err := Load([]byte(body))
	require.NoError(err)
	require.Equal("DEBUG", cfg.Logging.Level)
	require.Equal(TransportAbridged, cfg.Network.Transport)
	require.Equal("xn--bcher-kva.example:443", cfg.Network.Address(1, false))
	require.Equal("10.0.0.2:443", cfg.Network.Address(1, true))
	require.Equal("", cfg.Network.Address(3, false))
	require.Equal("alice", cfg.Session.Name)
	require.Equal(BackendBolt, cfg.Session.StorageBackend)
	require.Equal(30, cfg.Debug.FloodWaitMax)
	require.Equal(40, cfg.Debug.ExtraPaddingBlocks)
	require.Equal(defaultAckInterval, cfg.Debug.AckInterval)
	require.NotNil(cfg.UpstreamProxyConfig())
	require.Equal("tcp", cfg.UpstreamProxyConfig().Network)
}

func TestMTProxy(t *testing.T) {
	require := require.New(t)

	cfg, err := Load([]byte(`
[Network.MTProxy]
  Address = "10.1.1.1:8888"
  Secret = "dd000102030405060708090a0b0c0d0e0f"
`))
	require.NoError(err)
	require.True(cfg.Network.Obfuscated)
	require.Equal(TransportPadded, cfg.Network.Transport)
	require.Len(cfg.Network.MTProxy.SecretBytes(), 16)
	require.Equal(byte(0x0f), cfg.Network.MTProxy.SecretBytes()[15])
}

func TestInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"undecoded":    "[Logging]\nColour = true\n",
		"level":        "[Logging]\nLevel = \"LOUD\"\n",
		"transport":    "[Network]\nTransport = \"carrier-pigeon\"\n",
		"default dc":   "[Network]\nDefaultDC = 9\n",
		"dc port":      "[[Network.DCs]]\nID = 2\nAddress = \"10.0.0.1:0\"\n",
		"dc id":        "[[Network.DCs]]\nID = 0\nAddress = \"10.0.0.1:443\"\n",
		"no ip":        "[Network]\nDisableIPv4 = true\nDisableIPv6 = true\n",
		"secret":       "[Network.MTProxy]\nAddress = \"10.1.1.1:1\"\nSecret = \"ee00\"\n",
		"backend":      "[Session]\nStorageBackend = \"floppy\"\n",
		"bolt file":    "[Session]\nStorageBackend = \"bolt\"\n",
		"postgres dsn": "[Session]\nStorageBackend = \"postgres\"\n",
		"proxy":        "[UpstreamProxy]\nType = \"socks5\"\nAddress = \"localhost:9050\"\n",
		"metrics":      "[Metrics]\nAddress = \"nope\"\n",
		"session name": "[Session]\nName = \"\"\"a b\"\"\"\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(os.WriteFile(f, []byte("[Network]\nDefaultDC = 4\n"), 0600))
	cfg, err := LoadFile(f)
	require.NoError(err)
	require.Equal(4, cfg.Network.DefaultDC)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(err)
}
