package field

import "fmt"

// fftInPlace runs an iterative radix-2 Cooley-Tukey transform. On return,
// a[i] holds the evaluation of the input coefficients at root^i. root must
// have multiplicative order len(a).
func fftInPlace(a []Element, root Element) {
	n := len(a)
	if n <= 1 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		// Generator of the order-`length` subgroup.
		w := root.Exp(uint64(n / length))
		half := length / 2
		for start := 0; start < n; start += length {
			wn := One()
			for k := 0; k < half; k++ {
				u := a[start+k]
				v := a[start+k+half].Mul(wn)
				a[start+k] = u.Add(v)
				a[start+k+half] = u.Sub(v)
				wn = wn.Mul(w)
			}
		}
	}
}

// EvaluatePoly evaluates the polynomial given by coeffs over the coset
// offset * <g> where g generates the subgroup of size domainSize. The result
// index i holds the value at offset * g^i. domainSize must be a power of two
// no smaller than len(coeffs).
func EvaluatePoly(coeffs []Element, domainSize int, offset Element) ([]Element, error) {
	if domainSize < len(coeffs) {
		return nil, fmt.Errorf("domain size %d is smaller than coefficient count %d", domainSize, len(coeffs))
	}
	root, err := PrimitiveRootOfUnity(uint64(domainSize))
	if err != nil {
		return nil, err
	}

	values := make([]Element, domainSize)
	copy(values, coeffs)

	// Shift onto the coset: c_i <- c_i * offset^i.
	if !offset.IsOne() {
		pow := One()
		for i := range values {
			values[i] = values[i].Mul(pow)
			pow = pow.Mul(offset)
		}
	}

	fftInPlace(values, root)
	return values, nil
}

// InterpolatePoly is the inverse of EvaluatePoly: it recovers the unique
// polynomial of degree < len(evals) whose evaluations over the coset
// offset * <g> are the given values.
func InterpolatePoly(evals []Element, offset Element) ([]Element, error) {
	n := len(evals)
	if n == 0 || n&(n-1) != 0 {
		return nil, fmt.Errorf("evaluation count %d is not a power of 2", n)
	}
	root, err := PrimitiveRootOfUnity(uint64(n))
	if err != nil {
		return nil, err
	}

	coeffs := make([]Element, n)
	copy(coeffs, evals)
	fftInPlace(coeffs, root.Inverse())

	nInv := New(uint64(n)).Inverse()
	for i := range coeffs {
		coeffs[i] = coeffs[i].Mul(nInv)
	}

	// Undo the coset shift: c_i <- c_i * offset^-i.
	if !offset.IsOne() {
		offInv := offset.Inverse()
		pow := One()
		for i := range coeffs {
			coeffs[i] = coeffs[i].Mul(pow)
			pow = pow.Mul(offInv)
		}
	}
	return coeffs, nil
}

// EvaluatePolyAt evaluates the polynomial given by coeffs at a single point
// using Horner's rule.
func EvaluatePolyAt(coeffs []Element, x Element) Element {
	result := Zero()
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = result.Mul(x).Add(coeffs[i])
	}
	return result
}
