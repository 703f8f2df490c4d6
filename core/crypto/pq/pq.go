// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package pq factorizes the 64-bit semiprime sent by the server during the
// key exchange.
package pq

import (
	"errors"
	"math/bits"
	"math/rand"

	hrand "github.com/katzenpost/hpqc/rand"
)

const (
	// DefaultRounds is the default number of Miller-Rabin rounds.
	DefaultRounds = 20

	// DefaultAttempts is the default number of Pollard-Brent runs, each
	// with fresh random parameters.
	DefaultAttempts = 64

	brentBatch    = 128
	brentMaxRange = 1 << 22
)

var (
	// ErrFactorize is returned when no factorization was found within the
	// retry budget.
	ErrFactorize = errors.New("pq: failed to factorize")

	errInvalid = errors.New("pq: input is not a composite number")
)

var smallPrimes = []uint64{
	2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37, 41, 43, 47, 53, 59, 61, 67,
	71, 73, 79, 83, 89, 97, 101, 103, 107, 109, 113, 127, 131, 137, 139, 149,
	151, 157, 163, 167, 173, 179, 181, 191, 193, 197, 199, 211, 223, 227, 229,
	233, 239, 241, 251, 257, 263, 269, 271, 277, 281, 283, 293, 307, 311, 313,
	317, 331, 337, 347, 349, 353, 359, 367, 373, 379, 383, 389, 397, 401, 409,
	419, 421, 431, 433, 439, 443, 449, 457, 461, 463, 467, 479, 487, 491, 499,
}

// Factorizer splits semiprimes.  The zero value uses the defaults.
type Factorizer struct {
	// Rounds is the number of Miller-Rabin rounds used to validate
	// candidate factors.
	Rounds int

	// Attempts bounds the number of randomized factorization runs.
	Attempts int

	// Rand is the source of random parameters.  If nil, a CSPRNG seeded
	// math/rand instance is used.
	Rand *rand.Rand
}

// Factorize splits n with the default Factorizer.
func Factorize(n uint64) (p, q uint64, err error) {
	var f Factorizer
	return f.Factorize(n)
}

// Factorize returns the two factors of n with p <= q.  Both factors are
// checked for primality.
func (f *Factorizer) Factorize(n uint64) (p, q uint64, err error) {
	if n < 4 {
		return 0, 0, errInvalid
	}
	rng := f.rng()
	rounds := f.rounds()

	for _, sp := range smallPrimes {
		if n%sp == 0 {
			return f.order(sp, n/sp, rng)
		}
	}
	if IsProbablePrime(n, rounds, rng) {
		return 0, 0, errInvalid
	}

	attempts := f.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for i := 0; i < attempts; i++ {
		d, ok := brent(n, rng)
		if !ok {
			continue
		}
		p, q, err = f.order(d, n/d, rng)
		if err == nil {
			return p, q, nil
		}
	}
	return 0, 0, ErrFactorize
}

func (f *Factorizer) order(a, b uint64, rng *rand.Rand) (uint64, uint64, error) {
	if a > b {
		a, b = b, a
	}
	rounds := f.rounds()
	if !IsProbablePrime(a, rounds, rng) || !IsProbablePrime(b, rounds, rng) {
		return 0, 0, ErrFactorize
	}
	return a, b, nil
}

func (f *Factorizer) rounds() int {
	if f.Rounds <= 0 {
		return DefaultRounds
	}
	return f.Rounds
}

func (f *Factorizer) rng() *rand.Rand {
	if f.Rand != nil {
		return f.Rand
	}
	return hrand.NewMath()
}

// IsProbablePrime runs rounds iterations of Miller-Rabin with random
// bases.
func IsProbablePrime(n uint64, rounds int, rng *rand.Rand) bool {
	switch {
	case n < 2:
		return false
	case n < 4:
		return true
	case n%2 == 0:
		return false
	}
	for _, sp := range smallPrimes[1:] {
		if n == sp {
			return true
		}
		if n%sp == 0 {
			return false
		}
	}

	d, s := n-1, 0
	for d%2 == 0 {
		d /= 2
		s++
	}

witness:
	for i := 0; i < rounds; i++ {
		a := 2 + rng.Uint64()%(n-3)
		x := powMod(a, d, n)
		if x == 1 || x == n-1 {
			continue
		}
		for r := 1; r < s; r++ {
			x = mulMod(x, x, n)
			if x == n-1 {
				continue witness
			}
		}
		return false
	}
	return true
}

// brent is Brent's variant of Pollard's rho.  It returns a non-trivial
// divisor of n, or false if this run failed.
func brent(n uint64, rng *rand.Rand) (uint64, bool) {
	y := 1 + rng.Uint64()%(n-1)
	c := 1 + rng.Uint64()%(n-1)
	step := func(v uint64) uint64 {
		return addMod(mulMod(v, v, n), c, n)
	}

	var x, ys uint64
	g, r, q := uint64(1), uint64(1), uint64(1)
	for g == 1 {
		x = y
		for i := uint64(0); i < r; i++ {
			y = step(y)
		}
		for k := uint64(0); k < r && g == 1; k += brentBatch {
			ys = y
			for i := uint64(0); i < min(brentBatch, r-k); i++ {
				y = step(y)
				q = mulMod(q, absDiff(x, y), n)
			}
			g = gcd(q, n)
		}
		r *= 2
		if r > brentMaxRange {
			return 0, false
		}
	}

	if g == n {
		// The batch overshot; walk it again one step at a time.
		for i := 0; i < brentBatch+1; i++ {
			ys = step(ys)
			if g = gcd(absDiff(x, ys), n); g > 1 {
				break
			}
		}
	}
	if g == 1 || g == n {
		return 0, false
	}
	return g, true
}

func mulMod(a, b, m uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return bits.Rem64(hi, lo, m)
}

func addMod(a, b, m uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	return bits.Rem64(carry, sum, m)
}

func powMod(b, e, m uint64) uint64 {
	r := uint64(1)
	b %= m
	for e > 0 {
		if e&1 == 1 {
			r = mulMod(r, b, m)
		}
		b = mulMod(b, b, m)
		e >>= 1
	}
	return r
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
