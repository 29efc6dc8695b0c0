package field

import "testing"

// testRand is a small deterministic generator (splitmix64) so tests never
// depend on the global rand state.
type testRand struct{ state uint64 }

func (r *testRand) next() uint64 {
	r.state += 0x9E3779B97F4A7C15
	z := r.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func (r *testRand) element() Element {
	return New(r.next())
}

// TestNewReduces tests that New reduces values modulo p
func TestNewReduces(t *testing.T) {
	tests := []struct {
		name     string
		input    uint64
		expected uint64
	}{
		{"zero", 0, 0},
		{"small", 42, 42},
		{"modulus", Modulus, 0},
		{"modulus plus five", Modulus + 5, 5},
		{"max uint64", ^uint64(0), ^uint64(0) - Modulus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := New(tt.input).Value(); got != tt.expected {
				t.Errorf("New(%d).Value() = %d, expected %d", tt.input, got, tt.expected)
			}
		})
	}
}

// TestAdd tests addition including wrap-around at the modulus
func TestAdd(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint64
		expected uint64
	}{
		{"small", 3, 5, 8},
		{"wrap to zero", Modulus - 1, 1, 0},
		{"wrap past zero", Modulus - 1, 9, 8},
		{"both near max", Modulus - 1, Modulus - 1, Modulus - 2},
		{"zero identity", 0, 12345, 12345},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.a).Add(New(tt.b))
			if got.Value() != tt.expected {
				t.Errorf("%d + %d = %d, expected %d", tt.a, tt.b, got.Value(), tt.expected)
			}
		})
	}
}

// TestSub tests subtraction including borrow
func TestSub(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint64
		expected uint64
	}{
		{"small", 8, 5, 3},
		{"to zero", 7, 7, 0},
		{"borrow", 0, 1, Modulus - 1},
		{"borrow large", 5, Modulus - 1, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.a).Sub(New(tt.b))
			if got.Value() != tt.expected {
				t.Errorf("%d - %d = %d, expected %d", tt.a, tt.b, got.Value(), tt.expected)
			}
		})
	}
}

// TestMulKnownValues pins multiplication against hand-checked identities:
// 2^64 ≡ 2^32 - 1 and 2^96 ≡ -1 (mod p).
func TestMulKnownValues(t *testing.T) {
	twoTo32 := New(1 << 32)

	twoTo64 := twoTo32.Mul(twoTo32)
	if twoTo64.Value() != (1<<32)-1 {
		t.Errorf("2^64 mod p = %d, expected %d", twoTo64.Value(), uint64(1<<32)-1)
	}

	twoTo96 := twoTo64.Mul(twoTo32)
	if twoTo96.Value() != Modulus-1 {
		t.Errorf("2^96 mod p = %d, expected %d", twoTo96.Value(), Modulus-1)
	}

	if got := New(0).Mul(New(12345)); !got.IsZero() {
		t.Errorf("0 * 12345 = %d, expected 0", got.Value())
	}
	if got := New(1).Mul(New(Modulus - 1)); got.Value() != Modulus-1 {
		t.Errorf("1 * (p-1) = %d, expected %d", got.Value(), Modulus-1)
	}
}

// TestMulDistributes tests a(b+c) = ab + ac over pseudo-random samples
func TestMulDistributes(t *testing.T) {
	r := &testRand{state: 1}
	for i := 0; i < 200; i++ {
		a, b, c := r.element(), r.element(), r.element()
		left := a.Mul(b.Add(c))
		right := a.Mul(b).Add(a.Mul(c))
		if !left.Equal(right) {
			t.Fatalf("distributivity failed for a=%v b=%v c=%v: %v != %v", a, b, c, left, right)
		}
	}
}

// TestNeg tests that a + (-a) = 0
func TestNeg(t *testing.T) {
	r := &testRand{state: 2}
	for i := 0; i < 100; i++ {
		a := r.element()
		if sum := a.Add(a.Neg()); !sum.IsZero() {
			t.Fatalf("a + (-a) = %v for a = %v, expected 0", sum, a)
		}
	}
	if !Zero().Neg().IsZero() {
		t.Error("-0 should be 0")
	}
}

// TestInverse tests a * a^-1 = 1 and the zero convention
func TestInverse(t *testing.T) {
	r := &testRand{state: 3}
	for i := 0; i < 50; i++ {
		a := r.element()
		if a.IsZero() {
			continue
		}
		if prod := a.Mul(a.Inverse()); !prod.IsOne() {
			t.Fatalf("a * a^-1 = %v for a = %v, expected 1", prod, a)
		}
	}

	if !Zero().Inverse().IsZero() {
		t.Error("inverse of 0 should be 0 by convention")
	}
	if !One().Inverse().IsOne() {
		t.Error("inverse of 1 should be 1")
	}
}

// TestExpFermat tests g^(p-1) = 1 for the multiplicative generator
func TestExpFermat(t *testing.T) {
	g := New(Generator)
	if got := g.Exp(Modulus - 1); !got.IsOne() {
		t.Errorf("7^(p-1) = %v, expected 1", got)
	}
	if got := g.Exp(0); !got.IsOne() {
		t.Errorf("7^0 = %v, expected 1", got)
	}
	if got := g.Exp(2); got.Value() != 49 {
		t.Errorf("7^2 = %v, expected 49", got)
	}
}

// TestPrimitiveRootOfUnity tests root orders for several subgroup sizes
func TestPrimitiveRootOfUnity(t *testing.T) {
	for _, n := range []uint64{2, 4, 16, 1024, 1 << 20} {
		root, err := PrimitiveRootOfUnity(n)
		if err != nil {
			t.Fatalf("Failed to compute root of unity for n=%d: %v", n, err)
		}
		if got := root.Exp(n); !got.IsOne() {
			t.Errorf("root^%d = %v, expected 1", n, got)
		}
		if got := root.Exp(n / 2); got.IsOne() {
			t.Errorf("root^%d = 1 for n=%d, root has too small an order", n/2, n)
		}
	}

	if _, err := PrimitiveRootOfUnity(3); err == nil {
		t.Error("expected error for non-power-of-2 order")
	}
	if _, err := PrimitiveRootOfUnity(0); err == nil {
		t.Error("expected error for zero order")
	}
}

// TestBatchInversion tests that batch inversion matches individual inverses
func TestBatchInversion(t *testing.T) {
	r := &testRand{state: 4}
	elements := make([]Element, 32)
	for i := range elements {
		elements[i] = r.element()
	}
	elements[5] = Zero()
	elements[20] = Zero()

	inverted := BatchInversion(elements)
	if len(inverted) != len(elements) {
		t.Fatalf("batch inversion returned %d elements, expected %d", len(inverted), len(elements))
	}
	for i, e := range elements {
		expected := e.Inverse()
		if !inverted[i].Equal(expected) {
			t.Errorf("batch inverse mismatch at %d: got %v, expected %v", i, inverted[i], expected)
		}
	}
}

// TestBytesRoundTrip tests the little-endian encoding
func TestBytesRoundTrip(t *testing.T) {
	r := &testRand{state: 5}
	for i := 0; i < 100; i++ {
		a := r.element()
		if got := FromBytes(a.Bytes()); !got.Equal(a) {
			t.Fatalf("byte round trip failed for %v: got %v", a, got)
		}
	}

	one := One().Bytes()
	if one[0] != 1 {
		t.Error("encoding should be little-endian")
	}
	for i := 1; i < 8; i++ {
		if one[i] != 0 {
			t.Errorf("byte %d of One() encoding = %d, expected 0", i, one[i])
		}
	}
}
