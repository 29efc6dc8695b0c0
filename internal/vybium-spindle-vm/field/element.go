// Package field implements arithmetic over the 64-bit Goldilocks prime field
// p = 2^64 - 2^32 + 1. Elements are kept in canonical form (< p) at all
// times, so values are directly comparable and usable as map keys.
package field

import (
	"fmt"
	"math/bits"
)

const (
	// Modulus is the Goldilocks prime p = 2^64 - 2^32 + 1.
	Modulus uint64 = 0xFFFFFFFF00000001

	// epsilon = 2^32 - 1 satisfies 2^64 ≡ epsilon (mod p), which drives all
	// reductions below.
	epsilon uint64 = 0xFFFFFFFF

	// Generator is the smallest multiplicative generator of the field.
	Generator uint64 = 7

	// TwoAdicity is the largest k with 2^k dividing p-1.
	TwoAdicity = 32

	// twoAdicRoot is an element of multiplicative order 2^32,
	// computed as 7^((p-1)/2^32) mod p.
	twoAdicRoot uint64 = 1753635133440165772
)

// Element is a field element in canonical form.
type Element uint64

// New creates a field element from a uint64, reducing modulo p.
func New(v uint64) Element {
	if v >= Modulus {
		v -= Modulus
	}
	return Element(v)
}

// Zero returns the additive identity.
func Zero() Element {
	return Element(0)
}

// One returns the multiplicative identity.
func One() Element {
	return Element(1)
}

// Value returns the canonical uint64 representation.
func (a Element) Value() uint64 {
	return uint64(a)
}

// IsZero reports whether a is the additive identity.
func (a Element) IsZero() bool {
	return a == 0
}

// IsOne reports whether a is the multiplicative identity.
func (a Element) IsOne() bool {
	return a == 1
}

// Equal reports whether two elements are equal.
func (a Element) Equal(b Element) bool {
	return a == b
}

// Add returns a + b mod p.
func (a Element) Add(b Element) Element {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		// 2^64 ≡ epsilon, and the correction cannot overflow for
		// canonical inputs.
		sum += epsilon
	}
	if sum >= Modulus {
		sum -= Modulus
	}
	return Element(sum)
}

// Sub returns a - b mod p.
func (a Element) Sub(b Element) Element {
	diff, borrow := bits.Sub64(uint64(a), uint64(b), 0)
	if borrow != 0 {
		diff -= epsilon
	}
	return Element(diff)
}

// Neg returns -a mod p.
func (a Element) Neg() Element {
	if a == 0 {
		return 0
	}
	return Element(Modulus - uint64(a))
}

// Double returns 2a mod p.
func (a Element) Double() Element {
	return a.Add(a)
}

// Mul returns a * b mod p.
func (a Element) Mul(b Element) Element {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	return reduce128(hi, lo)
}

// Square returns a^2 mod p.
func (a Element) Square() Element {
	return a.Mul(a)
}

// reduce128 reduces a 128-bit product hi*2^64 + lo modulo p using
// 2^64 ≡ 2^32 - 1 and 2^96 ≡ -1 (mod p).
func reduce128(hi, lo uint64) Element {
	hiHi := hi >> 32
	hiLo := hi & epsilon

	t0, borrow := bits.Sub64(lo, hiHi, 0)
	if borrow != 0 {
		t0 -= epsilon
	}
	t1 := hiLo * epsilon

	sum, carry := bits.Add64(t0, t1, 0)
	if carry != 0 {
		sum += epsilon
	}
	if sum >= Modulus {
		sum -= Modulus
	}
	return Element(sum)
}

// Exp returns a^e mod p by square and multiply.
func (a Element) Exp(e uint64) Element {
	result := One()
	base := a
	for e > 0 {
		if e&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Square()
		e >>= 1
	}
	return result
}

// Inverse returns the multiplicative inverse via Fermat's little theorem.
// The inverse of zero is defined as zero.
func (a Element) Inverse() Element {
	if a == 0 {
		return 0
	}
	return a.Exp(Modulus - 2)
}

// Div returns a / b mod p. Division by zero yields zero.
func (a Element) Div(b Element) Element {
	return a.Mul(b.Inverse())
}

// String returns the canonical decimal representation.
func (a Element) String() string {
	return fmt.Sprintf("%d", uint64(a))
}

// Bytes returns the canonical little-endian encoding.
func (a Element) Bytes() [8]byte {
	var out [8]byte
	v := uint64(a)
	for i := 0; i < 8; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

// FromBytes decodes a little-endian encoding, reducing modulo p.
func FromBytes(b [8]byte) Element {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return New(v)
}

// PrimitiveRootOfUnity returns a generator of the order-n multiplicative
// subgroup. n must be a power of two not exceeding 2^32.
func PrimitiveRootOfUnity(n uint64) (Element, error) {
	if n == 0 || n&(n-1) != 0 {
		return 0, fmt.Errorf("subgroup order %d is not a power of 2", n)
	}
	log := bits.TrailingZeros64(n)
	if log > TwoAdicity {
		return 0, fmt.Errorf("subgroup order 2^%d exceeds the field's two-adicity %d", log, TwoAdicity)
	}

	root := Element(twoAdicRoot)
	for i := TwoAdicity; i > log; i-- {
		root = root.Square()
	}
	return root, nil
}

// BatchInversion inverts all elements with a single field inversion using
// Montgomery's trick. Zero entries stay zero.
func BatchInversion(elements []Element) []Element {
	result := make([]Element, len(elements))
	prefix := make([]Element, len(elements))

	acc := One()
	for i, e := range elements {
		prefix[i] = acc
		if !e.IsZero() {
			acc = acc.Mul(e)
		}
	}

	inv := acc.Inverse()
	for i := len(elements) - 1; i >= 0; i-- {
		if elements[i].IsZero() {
			result[i] = Zero()
			continue
		}
		result[i] = inv.Mul(prefix[i])
		inv = inv.Mul(elements[i])
	}
	return result
}
