// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package authkey

import (
	"errors"
	"math/big"
	"sync"
)

const knownPrimeHex = "c71caeb9c6b1c9048e6c522f70f13f73980d40238e3e21c14934d037563d930f" +
	"48198a0aa7c14058229493d22530f4dbfa336f6e0ac925139543aed44cce7c37" +
	"20fd51f69458705ac68cd4fe6b6b13abdc9746512969328454f18faf8c595f64" +
	"2477fe96bb2a941d5bcd1d4ac8cc49880708fa9b378e3c4f3a9060bee67cf9a4" +
	"a4a695811051907e162753b56b0f6b410dba74d8a84b2a14b3144e0ef1284754" +
	"fd17ed950d5965b4b9dd46582db1178d169c6bc465b0d6ff9ca3928fef5b9ae4" +
	"e418fc15e83ebea0f87fa9ff5eed70050ded2849f47bf959d956850ce929851f" +
	"0d8115f635b105ee2e4e15d04b2454bf6f4fadf034b10403119cd8e3b92fcc5b"

const primeRounds = 30

var (
	// KnownPrime is the DH prime used by the production servers.
	KnownPrime, _ = new(big.Int).SetString(knownPrimeHex, 16)

	errPrimeSize     = errors.New("dh_prime is not a 2048-bit number")
	errPrimeNotPrime = errors.New("dh_prime is not prime")
	errPrimeNotSafe  = errors.New("dh_prime is not a safe prime")
	errBadGenerator  = errors.New("g does not generate a subgroup of prime order")
)

// primeCache remembers validated primes and generators, since the
// primality test is expensive and servers reuse one prime.
type primeCache struct {
	sync.Mutex
	checked map[string]map[int32]struct{}
}

var checkedPrimes = &primeCache{checked: make(map[string]map[int32]struct{})}

func (c *primeCache) check(p *big.Int, g int32) error {
	key := p.Text(16)

	c.Lock()
	gens, ok := c.checked[key]
	if ok {
		if _, ok := gens[g]; ok {
			c.Unlock()
			return nil
		}
	}
	c.Unlock()

	if !ok && p.Cmp(KnownPrime) != 0 {
		if err := checkSafePrime(p); err != nil {
			return err
		}
	}
	if err := checkGenerator(p, g); err != nil {
		return err
	}

	c.Lock()
	defer c.Unlock()
	if c.checked[key] == nil {
		c.checked[key] = make(map[int32]struct{})
	}
	c.checked[key][g] = struct{}{}
	return nil
}

// CheckDHParams validates a server supplied prime and generator: p must
// be a 2048-bit safe prime and g must satisfy the quadratic residue
// condition for p.
func CheckDHParams(p *big.Int, g int32) error {
	return checkedPrimes.check(p, g)
}

func checkSafePrime(p *big.Int) error {
	if p.BitLen() != 2048 {
		return errPrimeSize
	}
	if !p.ProbablyPrime(primeRounds) {
		return errPrimeNotPrime
	}
	q := new(big.Int).Rsh(p, 1)
	if !q.ProbablyPrime(primeRounds) {
		return errPrimeNotSafe
	}
	return nil
}

func mod(p *big.Int, m int64) int64 {
	return new(big.Int).Mod(p, big.NewInt(m)).Int64()
}

func checkGenerator(p *big.Int, g int32) error {
	switch g {
	case 2:
		if mod(p, 8) == 7 {
			return nil
		}
	case 3:
		if mod(p, 3) == 2 {
			return nil
		}
	case 4:
		return nil
	case 5:
		if r := mod(p, 5); r == 1 || r == 4 {
			return nil
		}
	case 6:
		if r := mod(p, 24); r == 19 || r == 23 {
			return nil
		}
	case 7:
		if r := mod(p, 7); r == 3 || r == 5 || r == 6 {
			return nil
		}
	}
	return errBadGenerator
}
