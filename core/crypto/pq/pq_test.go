// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package pq

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFactorize(t *testing.T) {
	vectors := []struct {
		name string
		p, q uint64
	}{
		{"trivial", 3, 5},
		{"small prime factor", 499, 1000003},
		{"rho", 1000003, 1000033},
		{"key exchange example", 1229739323, 1402015859},
		{"near 32 bits", 4294967291, 4294967279},
	}

	for _, v := range vectors {
		t.Run(v.name, func(t *testing.T) {
			require := require.New(t)
			f := &Factorizer{Rand: rand.New(rand.NewSource(1))}
			p, q, err := f.Factorize(v.p * v.q)
			require.NoError(err)
			require.Equal(min(v.p, v.q), p)
			require.Equal(max(v.p, v.q), q)
		})
	}

	t.Run("known pq", func(t *testing.T) {
		require := require.New(t)
		p, q, err := Factorize(0x17ed48941a08f981)
		require.NoError(err)
		require.Equal(uint64(0x494c553b), p)
		require.Equal(uint64(0x53911073), q)
	})
}

func TestFactorizeRejects(t *testing.T) {
	require := require.New(t)

	_, _, err := Factorize(1)
	require.Error(err)
	_, _, err = Factorize(1000003)
	require.Error(err)

	// Three prime factors: the split is found but fails the primality check.
	_, _, err = Factorize(1000003 * 1000033 * 7)
	require.ErrorIs(err, ErrFactorize)
}

func TestIsProbablePrime(t *testing.T) {
	require := require.New(t)
	rng := rand.New(rand.NewSource(42))

	for n := uint64(0); n < 2000; n++ {
		require.Equal(big.NewInt(int64(n)).ProbablyPrime(20), IsProbablePrime(n, DefaultRounds, rng), "n = %d", n)
	}
	require.True(IsProbablePrime(18446744073709551557, DefaultRounds, rng))
	// Carmichael number.
	require.False(IsProbablePrime(561, DefaultRounds, rng))
	require.False(IsProbablePrime(3215031751, DefaultRounds, rng))
}
