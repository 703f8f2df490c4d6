// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package kdf

import (
	"bytes"
	"encoding/hex"
	"math/big"
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

var (
	testAuthKey = bytes.Repeat(unhex("98cb29c6ffa89e79da695a54f572e6cb101e81c688b63a4bf73c3622dec230e0"), 8)
	testMsgKey  = unhex("25d701f2a29205526757825a99eb2d32")
)

func TestMessageKeyIV(t *testing.T) {
	require := require.New(t)

	key, iv := MessageKeyIV(testAuthKey, testMsgKey, false)
	require.Equal("af3f8e1ffa75f4c981eec33a3e5bbaa2ea48f9bb93e91597627eb1f67960a0c9", hex.EncodeToString(key))
	require.Equal("9874d77f95155b35221bff94b7df4594c6996e2a62e44fcb7d93c8c4e41b79ee", hex.EncodeToString(iv))

	key, iv = MessageKeyIV(testAuthKey, testMsgKey, true)
	require.Equal("d4b378e1e0525f10ff9d4c42807ccce5b30a033a8088c0b922b5259421751648", hex.EncodeToString(key))
	require.Equal("4d7194f42f0135d2fd83050b403265b4c40ee3e9e9fba56f0f4d8ea6bcb121f5", hex.EncodeToString(iv))
}

func TestMessageKeyIVv1(t *testing.T) {
	require := require.New(t)

	key, iv := MessageKeyIVv1(testAuthKey, testMsgKey, false)
	require.Equal("1fc7b40b1d9ffbdaf4d652525a748864259698f89214abf27c0d36cb9d4cd5db", hex.EncodeToString(key))
	require.Equal("7251fbda39ec5e6e089f15ded5963b03d6d8d0f7078898431fc7b40b1d9ffbda", hex.EncodeToString(iv))

	key, iv = MessageKeyIVv1(testAuthKey, testMsgKey, true)
	require.Equal("af0e4e01318654be40ab42b125909d43b44bdeef571ff1a5dfb81474ae26d467", hex.EncodeToString(key))
	require.Equal("15c9ba6021d2c5cf04f0842540ae216a970b4eac8f46ef01af0e4e01318654be", hex.EncodeToString(iv))
}

func TestNonceKeyIV(t *testing.T) {
	require := require.New(t)

	key, iv := NonceKeyIV(unhex("8af24c551836e5ed7002f5857e6e71b2"), unhex("3bf48b2d3152f383d82d1f2b32ac7fb5"))
	require.Equal("b0b5ffeadff0249fa6292f5ae0351556fd6619ba5dd4809601669292456d3e5a", hex.EncodeToString(key))
	require.Equal("13fef5bfd8c46b12dfd1753013b86cc012e1ce8ed6f8ecdd7bf36f3a3bf48b2d", hex.EncodeToString(iv))
}

func TestCheckDHRange(t *testing.T) {
	require := require.New(t)

	p := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 2048), big.NewInt(1))
	require.Error(CheckDHRange(big.NewInt(1), p, false))
	require.NoError(CheckDHRange(big.NewInt(2), p, false))
	require.Error(CheckDHRange(big.NewInt(2), p, true))
	require.Error(CheckDHRange(new(big.Int).Sub(p, big.NewInt(1)), p, false))

	mid := new(big.Int).Rsh(p, 1)
	require.NoError(CheckDHRange(mid, p, true))
	require.Equal(big.NewInt(4), ModExp(big.NewInt(2), big.NewInt(10), big.NewInt(1020)))
}
