// Package rs implements a Reed–Solomon codec over GF(256) (primitive
// polynomial 0x11D, generator 2, first consecutive root α^0).
//
// Codewords are laid out highest degree first: the data symbols followed by
// the parity symbols. Decode corrects up to ParitySymbols()/2 symbol errors
// in place and never leaves a buffer half corrected.
package rs

import (
	"errors"
	"fmt"
)

const (
	// MinParity and MaxParity bound the number of parity symbols.
	MinParity = 2
	MaxParity = 128

	// MaxCodewordLength is the longest codeword GF(256) can address.
	MaxCodewordLength = 255
)

var (
	ErrInvalidParity   = errors.New("rs: parity symbol count out of range")
	ErrShortBuffer     = errors.New("rs: buffer too short for parity count")
	ErrLongBuffer      = errors.New("rs: buffer longer than 255 symbols")
	ErrUncorrectable   = errors.New("rs: uncorrectable codeword")
	ErrDegenerate      = fmt.Errorf("%w: zero locator derivative", ErrUncorrectable)
	ErrLocatorMismatch = fmt.Errorf("%w: root count does not match locator degree", ErrUncorrectable)
)

// Codec holds the parity count and the generator polynomial derived from it.
// A Codec is immutable after NewCodec and safe for concurrent use.
type Codec struct {
	nsym int
	gen  []byte // highest degree first, monic
}

// NewCodec returns a codec using nsym parity symbols (2..128).
func NewCodec(nsym int) (*Codec, error) {
	if nsym < MinParity || nsym > MaxParity {
		return nil, fmt.Errorf("%w: %d (want %d..%d)", ErrInvalidParity, nsym, MinParity, MaxParity)
	}
	gf := field()
	gen := []byte{1}
	for i := 0; i < nsym; i++ {
		// gen *= (x + α^i)
		next := make([]byte, len(gen)+1)
		root := gf.pow(i)
		for j, c := range gen {
			next[j] ^= c
			next[j+1] ^= gf.mul(c, root)
		}
		gen = next
	}
	return &Codec{nsym: nsym, gen: gen}, nil
}

// ParitySymbols returns the configured parity count.
func (c *Codec) ParitySymbols() int { return c.nsym }

// Encode returns msg followed by its parity symbols.
func (c *Codec) Encode(msg []byte) ([]byte, error) {
	if len(msg)+c.nsym > MaxCodewordLength {
		return nil, fmt.Errorf("%w: %d data + %d parity", ErrLongBuffer, len(msg), c.nsym)
	}
	gf := field()
	work := make([]byte, len(msg)+c.nsym)
	copy(work, msg)
	for i := 0; i < len(msg); i++ {
		coef := work[i]
		if coef == 0 {
			continue
		}
		for j := 1; j < len(c.gen); j++ {
			work[i+j] ^= gf.mul(c.gen[j], coef)
		}
	}
	out := make([]byte, len(msg)+c.nsym)
	copy(out, msg)
	copy(out[len(msg):], work[len(msg):])
	return out, nil
}

// Syndromes evaluates buf at α^0..α^(n-1).
func (c *Codec) Syndromes(buf []byte) []byte {
	gf := field()
	s := make([]byte, c.nsym)
	for i := range s {
		s[i] = gf.evalDesc(buf, gf.pow(i))
	}
	return s
}

// Check reports whether buf is a valid codeword.
func (c *Codec) Check(buf []byte) bool {
	for _, s := range c.Syndromes(buf) {
		if s != 0 {
			return false
		}
	}
	return true
}

// Decode corrects buf in place and returns the number of symbols fixed.
// On any error buf is left exactly as it was passed in.
func (c *Codec) Decode(buf []byte) (int, error) {
	if len(buf) <= c.nsym {
		return 0, fmt.Errorf("%w: %d symbols, %d parity", ErrShortBuffer, len(buf), c.nsym)
	}
	if len(buf) > MaxCodewordLength {
		return 0, fmt.Errorf("%w: %d symbols", ErrLongBuffer, len(buf))
	}

	synd := c.Syndromes(buf)
	clean := true
	for _, s := range synd {
		if s != 0 {
			clean = false
			break
		}
	}
	if clean {
		return 0, nil
	}

	gf := field()
	lambda := berlekampMassey(gf, synd)
	deg := len(lambda) - 1
	if deg == 0 || 2*deg > c.nsym {
		return 0, ErrUncorrectable
	}

	// Chien search: position j holds the coefficient of x^(n-1-j), so an
	// error there has locator α^(n-1-j) and root α^-(n-1-j).
	n := len(buf)
	positions := make([]int, 0, deg)
	for j := 0; j < n; j++ {
		d := n - 1 - j
		if gf.evalAsc(lambda, gf.pow(-d)) == 0 {
			positions = append(positions, j)
		}
	}
	if len(positions) != deg {
		return 0, ErrLocatorMismatch
	}

	// Ω(x) = S(x)Λ(x) mod x^n
	omega := make([]byte, c.nsym)
	for i, s := range synd {
		if s == 0 {
			continue
		}
		for j, l := range lambda {
			if i+j >= c.nsym {
				break
			}
			omega[i+j] ^= gf.mul(s, l)
		}
	}

	magnitudes, err := forney(gf, lambda, omega, positions, n)
	if err != nil {
		return 0, err
	}

	fixed := make([]byte, n)
	copy(fixed, buf)
	for k, j := range positions {
		fixed[j] ^= magnitudes[k]
	}
	if !c.Check(fixed) {
		return 0, ErrUncorrectable
	}
	copy(buf, fixed)
	return len(positions), nil
}

// forney returns the error magnitude at each position of an n-symbol
// codeword, given the locator and evaluator polynomials (lowest degree
// first).
func forney(gf *gfTables, lambda, omega []byte, positions []int, n int) ([]byte, error) {
	// Formal derivative: only odd powers survive in characteristic 2.
	deriv := make([]byte, max(len(lambda)-1, 1))
	for i := 1; i < len(lambda); i += 2 {
		deriv[i-1] = lambda[i]
	}

	magnitudes := make([]byte, len(positions))
	for k, j := range positions {
		d := n - 1 - j
		xInv := gf.pow(-d)
		den := gf.evalAsc(deriv, xInv)
		if den == 0 {
			return nil, ErrDegenerate
		}
		num := gf.evalAsc(omega, xInv)
		magnitudes[k] = gf.mul(gf.pow(d), gf.div(num, den))
	}
	return magnitudes, nil
}

// berlekampMassey returns the error locator Λ(x), lowest degree first,
// with trailing zero coefficients trimmed.
func berlekampMassey(gf *gfTables, synd []byte) []byte {
	lambda := []byte{1}
	prev := []byte{1}
	l := 0
	m := 1
	b := byte(1)

	for r := 0; r < len(synd); r++ {
		delta := synd[r]
		for i := 1; i <= l && i < len(lambda); i++ {
			delta ^= gf.mul(lambda[i], synd[r-i])
		}
		if delta == 0 {
			m++
			continue
		}

		size := len(lambda)
		if len(prev)+m > size {
			size = len(prev) + m
		}
		next := make([]byte, size)
		copy(next, lambda)
		coef := gf.div(delta, b)
		for i, p := range prev {
			next[i+m] ^= gf.mul(coef, p)
		}

		if 2*l <= r {
			prev = lambda
			l = r + 1 - l
			b = delta
			m = 1
		} else {
			m++
		}
		lambda = next
	}

	for len(lambda) > 1 && lambda[len(lambda)-1] == 0 {
		lambda = lambda[:len(lambda)-1]
	}
	return lambda
}
