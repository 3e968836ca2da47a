// Package shamir implements Shamir secret sharing over GF(256), the
// same field AES's S-box arithmetic uses, so a share is split and
// reconstructed one byte at a time.
package shamir

import (
	"crypto/rand"
	"fmt"
)

// Share is one of the n pieces produced by Split. X is the share's
// evaluation point (1..n); Y is the polynomial's value at X for every
// byte of the secret, one byte per secret byte.
type Share struct {
	X byte
	Y []byte
}

// Split divides secret into n shares such that any k of them
// reconstruct it, while any k-1 reveal nothing about it. Both k and n
// must be in [1, 255] and k <= n.
func Split(secret []byte, k, n int) ([]Share, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("shamir: secret must not be empty")
	}
	if k < 1 || n < 1 || k > n {
		return nil, fmt.Errorf("shamir: invalid threshold k=%d n=%d", k, n)
	}
	if n > 255 {
		return nil, fmt.Errorf("shamir: n must not exceed 255, got %d", n)
	}

	shares := make([]Share, n)
	for i := range shares {
		shares[i] = Share{X: byte(i + 1), Y: make([]byte, len(secret))}
	}

	coeffs := make([]byte, k)
	for byteIdx, secretByte := range secret {
		coeffs[0] = secretByte
		if _, err := rand.Read(coeffs[1:]); err != nil {
			return nil, fmt.Errorf("shamir: generating coefficients: %w", err)
		}
		for _, sh := range shares {
			sh.Y[byteIdx] = evalPoly(coeffs, sh.X)
		}
	}

	return shares, nil
}

// Combine reconstructs the original secret from k or more shares, via
// Lagrange interpolation at x=0. Shares must have distinct X values and
// equal-length Y slices; Combine does not itself know the threshold
// the secret was split with, so it trusts the caller to have gathered
// enough shares — callers drive that policy (see trustquorum).
func Combine(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("shamir: need at least one share")
	}

	secretLen := len(shares[0].Y)
	for _, sh := range shares {
		if len(sh.Y) != secretLen {
			return nil, fmt.Errorf("shamir: mismatched share lengths")
		}
	}
	if err := checkDistinctX(shares); err != nil {
		return nil, err
	}

	secret := make([]byte, secretLen)
	for byteIdx := range secret {
		secret[byteIdx] = interpolateAtZero(shares, byteIdx)
	}
	return secret, nil
}

func checkDistinctX(shares []Share) error {
	seen := make(map[byte]bool, len(shares))
	for _, sh := range shares {
		if sh.X == 0 {
			return fmt.Errorf("shamir: share with x=0 is invalid (that is the secret's own point)")
		}
		if seen[sh.X] {
			return fmt.Errorf("shamir: duplicate share x=%d", sh.X)
		}
		seen[sh.X] = true
	}
	return nil
}

// evalPoly evaluates the polynomial with the given coefficients
// (coeffs[0] is the constant term) at x, in GF(256).
func evalPoly(coeffs []byte, x byte) byte {
	var result byte
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = gfAdd(gfMul(result, x), coeffs[i])
	}
	return result
}

// interpolateAtZero computes the Lagrange interpolation of shares at
// x=0 for the given byte index, i.e. the reconstructed secret byte.
func interpolateAtZero(shares []Share, byteIdx int) byte {
	var result byte
	for i, si := range shares {
		num := byte(1)
		den := byte(1)
		for j, sj := range shares {
			if i == j {
				continue
			}
			num = gfMul(num, sj.X)
			den = gfMul(den, gfAdd(sj.X, si.X))
		}
		term := gfMul(si.Y[byteIdx], gfMul(num, gfInv(den)))
		result = gfAdd(result, term)
	}
	return result
}

func gfAdd(a, b byte) byte {
	return a ^ b
}

// gfMul multiplies two bytes in GF(256) under the AES reduction
// polynomial x^8 + x^4 + x^3 + x + 1 (0x11b).
func gfMul(a, b byte) byte {
	var result byte
	for b > 0 {
		if b&1 != 0 {
			result ^= a
		}
		hiBitSet := a & 0x80
		a <<= 1
		if hiBitSet != 0 {
			a ^= 0x1b
		}
		b >>= 1
	}
	return result
}

// gfInv returns the multiplicative inverse of a nonzero byte in
// GF(256), computed as a^254 by repeated squaring (a^255 == 1 for
// a != 0, so a^254 == a^-1).
func gfInv(a byte) byte {
	if a == 0 {
		panic("shamir: gfInv(0) is undefined")
	}
	var result byte = 1
	base := a
	exp := 254
	for exp > 0 {
		if exp&1 != 0 {
			result = gfMul(result, base)
		}
		base = gfMul(base, base)
		exp >>= 1
	}
	return result
}
