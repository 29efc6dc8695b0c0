package protocols

import (
	"testing"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
)

func TestStarkDomains(t *testing.T) {
	domains, err := NewStarkDomains(64, 8)
	if err != nil {
		t.Fatalf("Failed to build domains: %v", err)
	}
	if domains.Trace.Length != 64 || domains.LDE.Length != 512 {
		t.Fatalf("domain sizes are %d/%d, expected 64/512", domains.Trace.Length, domains.LDE.Length)
	}
	if !domains.Trace.Offset.IsOne() {
		t.Error("trace domain must sit on the subgroup itself")
	}
	if !domains.LDE.Offset.Equal(field.New(field.Generator)) {
		t.Errorf("LDE offset is %s, expected the field generator", domains.LDE.Offset)
	}

	// The trace generator is the blowup-th power of the LDE generator.
	if !domains.LDE.Generator.Exp(8).Equal(domains.Trace.Generator) {
		t.Error("trace generator is not lde generator to the blowup power")
	}

	// g^(n/2) = -1 pairs index j with j + n/2.
	half := domains.LDE.At(domains.LDE.Length / 2)
	if !half.Equal(domains.LDE.At(0).Neg()) {
		t.Error("second half of the domain does not negate the first")
	}
}

func TestDomainHalve(t *testing.T) {
	domain, err := NewDomain(32)
	if err != nil {
		t.Fatalf("Failed to build domain: %v", err)
	}
	domain = domain.WithOffset(field.New(field.Generator))
	halved := domain.Halve()
	if halved.Length != 16 {
		t.Fatalf("halved length is %d, expected 16", halved.Length)
	}
	for _, j := range []int{0, 1, 7, 15} {
		if !halved.At(j).Equal(domain.At(j).Square()) {
			t.Errorf("halved point %d is not the square of the original", j)
		}
	}
}

func TestExtendColumns(t *testing.T) {
	domains, err := NewStarkDomains(16, 8)
	if err != nil {
		t.Fatalf("Failed to build domains: %v", err)
	}
	columns := make([][]field.Element, 3)
	for c := range columns {
		columns[c] = make([]field.Element, 16)
		for r := range columns[c] {
			columns[c][r] = field.New(uint64(c*100 + r*r + 1))
		}
	}

	coeffs, lde, err := extendColumns(columns, domains)
	if err != nil {
		t.Fatalf("Failed to extend columns: %v", err)
	}
	for c := range columns {
		if len(coeffs[c]) != 16 || len(lde[c]) != 128 {
			t.Fatalf("column %d extended to %d/%d, expected 16/128", c, len(coeffs[c]), len(lde[c]))
		}
		// The low-degree extension agrees with direct evaluation.
		for _, j := range []int{0, 1, 63, 127} {
			want := field.EvaluatePolyAt(coeffs[c], domains.LDE.At(j))
			if !lde[c][j].Equal(want) {
				t.Fatalf("column %d LDE value %d does not match the polynomial", c, j)
			}
		}
		// Interpolation reproduces the trace values over the trace domain.
		for _, r := range []int{0, 5, 15} {
			want := field.EvaluatePolyAt(coeffs[c], domains.Trace.At(r))
			if !want.Equal(columns[c][r]) {
				t.Fatalf("column %d interpolation does not pass through row %d", c, r)
			}
		}
	}
}

func TestCommitMatrixOpenings(t *testing.T) {
	const numRows = 64
	columns := make([][]field.Element, 5)
	for c := range columns {
		columns[c] = make([]field.Element, numRows)
		for r := range columns[c] {
			columns[c][r] = field.New(uint64(c*numRows + r))
		}
	}

	commitment, err := CommitMatrix(columns, crypto.HashSHA3)
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	if commitment.NumRows() != numRows {
		t.Fatalf("commitment has %d rows, expected %d", commitment.NumRows(), numRows)
	}

	for _, r := range []int{0, 1, 31, 63} {
		opening, err := commitment.Open(r)
		if err != nil {
			t.Fatalf("Failed to open row %d: %v", r, err)
		}
		for c := range columns {
			if !opening.Values[c].Equal(columns[c][r]) {
				t.Fatalf("opening of row %d returned wrong value in column %d", r, c)
			}
		}
		if !VerifyRowOpening(commitment.Root(), r, numRows, opening, crypto.HashSHA3) {
			t.Errorf("valid opening of row %d rejected", r)
		}
	}
}

func TestVerifyRowOpeningRejections(t *testing.T) {
	const numRows = 32
	columns := [][]field.Element{make([]field.Element, numRows)}
	for r := range columns[0] {
		columns[0][r] = field.New(uint64(r * 7))
	}
	commitment, err := CommitMatrix(columns, crypto.HashSHA3)
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	opening, err := commitment.Open(5)
	if err != nil {
		t.Fatalf("Failed to open row: %v", err)
	}

	t.Run("tampered value", func(t *testing.T) {
		bad := RowOpening{Values: []field.Element{opening.Values[0].Add(field.One())}, Path: opening.Path}
		if VerifyRowOpening(commitment.Root(), 5, numRows, bad, crypto.HashSHA3) {
			t.Error("tampered value accepted")
		}
	})
	t.Run("wrong index", func(t *testing.T) {
		if VerifyRowOpening(commitment.Root(), 6, numRows, opening, crypto.HashSHA3) {
			t.Error("opening accepted for the wrong index")
		}
	})
	t.Run("wrong root", func(t *testing.T) {
		root := make([]byte, len(commitment.Root()))
		copy(root, commitment.Root())
		root[0] ^= 1
		if VerifyRowOpening(root, 5, numRows, opening, crypto.HashSHA3) {
			t.Error("opening accepted against a different root")
		}
	})
	t.Run("truncated path", func(t *testing.T) {
		bad := RowOpening{Values: opening.Values, Path: opening.Path[:len(opening.Path)-1]}
		if VerifyRowOpening(commitment.Root(), 5, numRows, bad, crypto.HashSHA3) {
			t.Error("truncated path accepted")
		}
	})
}
