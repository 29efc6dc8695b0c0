package protocols

import (
	"strings"
	"testing"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
)

// testCodeword evaluates a deterministic polynomial of the given degree
// bound over the domain.
func testCodeword(t *testing.T, domain Domain, numCoeffs int) ([]field.Element, []field.Element) {
	t.Helper()
	coeffs := make([]field.Element, numCoeffs)
	for i := range coeffs {
		coeffs[i] = field.New(uint64(i*i + 3*i + 7))
	}
	evals, err := field.EvaluatePoly(coeffs, domain.Length, domain.Offset)
	if err != nil {
		t.Fatalf("Failed to evaluate codeword: %v", err)
	}
	return coeffs, evals
}

func ldeDomain(t *testing.T, length int) Domain {
	t.Helper()
	domain, err := NewDomain(length)
	if err != nil {
		t.Fatalf("Failed to build domain: %v", err)
	}
	return domain.WithOffset(field.New(field.Generator))
}

func TestFoldCodeword(t *testing.T) {
	domain := ldeDomain(t, 512)
	coeffs, codeword := testCodeword(t, domain, 64)
	beta := field.New(987654321)

	folded := foldCodeword(codeword, domain, beta)

	// Folding f yields even(f) + beta*odd(f) over the squared domain.
	foldedCoeffs := make([]field.Element, len(coeffs)/2)
	for i := range foldedCoeffs {
		foldedCoeffs[i] = coeffs[2*i].Add(beta.Mul(coeffs[2*i+1]))
	}
	half := domain.Halve()
	want, err := field.EvaluatePoly(foldedCoeffs, half.Length, half.Offset)
	if err != nil {
		t.Fatalf("Failed to evaluate folded polynomial: %v", err)
	}
	for j := range folded {
		if !folded[j].Equal(want[j]) {
			t.Fatalf("folded value %d is %s, expected %s", j, folded[j], want[j])
		}
	}
}

func TestFriCommitAndVerify(t *testing.T) {
	options := DefaultProofOptions()
	domain := ldeDomain(t, 2048)
	_, codeword := testCodeword(t, domain, 2048/options.BlowupFactor)

	proverSide := NewTranscript(options.HashFunction)
	proverSide.AppendUint64(17)
	prover, err := friCommit(codeword, domain, proverSide, options)
	if err != nil {
		t.Fatalf("Failed to run FRI commit: %v", err)
	}
	if len(prover.layers) != 3 {
		t.Fatalf("committed %d layers, expected 3 for 2048 -> 256", len(prover.layers))
	}
	if len(prover.remainder) != 256/options.BlowupFactor {
		t.Fatalf("remainder has %d coefficients, expected %d", len(prover.remainder), 256/options.BlowupFactor)
	}

	proof := FRIProof{LayerRoots: prover.layerRoots(), Remainder: prover.remainder}
	verifierSide := NewTranscript(options.HashFunction)
	verifierSide.AppendUint64(17)
	verifier, err := newFriVerifier(&proof, domain, verifierSide, options)
	if err != nil {
		t.Fatalf("Failed to build FRI verifier: %v", err)
	}

	// Both transcripts must agree after the replay.
	qs := proverSide.DrawIndices(8, domain.Length)
	replayed := verifierSide.DrawIndices(8, domain.Length)
	for i := range qs {
		if qs[i] != replayed[i] {
			t.Fatalf("transcripts diverged: query %d is %d vs %d", i, qs[i], replayed[i])
		}
	}

	for _, q := range append(qs, 0, 1, domain.Length-1) {
		qp, err := prover.queryProof(q)
		if err != nil {
			t.Fatalf("Failed to open query %d: %v", q, err)
		}
		if err := verifier.verifyQuery(q, codeword[q], &qp); err != nil {
			t.Errorf("query %d rejected: %v", q, err)
		}
	}
}

func TestFriSmallCodewordSkipsLayers(t *testing.T) {
	options := DefaultProofOptions()
	domain := ldeDomain(t, 128)
	_, codeword := testCodeword(t, domain, 128/options.BlowupFactor)

	proverSide := NewTranscript(options.HashFunction)
	prover, err := friCommit(codeword, domain, proverSide, options)
	if err != nil {
		t.Fatalf("Failed to run FRI commit: %v", err)
	}
	if len(prover.layers) != 0 {
		t.Fatalf("committed %d layers, expected none for a 128-point codeword", len(prover.layers))
	}

	proof := FRIProof{Remainder: prover.remainder}
	verifierSide := NewTranscript(options.HashFunction)
	verifier, err := newFriVerifier(&proof, domain, verifierSide, options)
	if err != nil {
		t.Fatalf("Failed to build FRI verifier: %v", err)
	}
	for _, q := range []int{0, 13, 127} {
		qp := FRIQueryProof{}
		if err := verifier.verifyQuery(q, codeword[q], &qp); err != nil {
			t.Errorf("query %d rejected: %v", q, err)
		}
	}
}

func TestFriRejectsHighDegree(t *testing.T) {
	options := DefaultProofOptions()
	domain := ldeDomain(t, 512)
	_, codeword := testCodeword(t, domain, 512/options.BlowupFactor+1)

	transcript := NewTranscript(options.HashFunction)
	if _, err := friCommit(codeword, domain, transcript, options); err == nil {
		t.Fatal("expected the degree bound to reject the codeword")
	} else if !strings.Contains(err.Error(), "degree bound") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFriVerifierRejectsTamper(t *testing.T) {
	options := DefaultProofOptions()
	domain := ldeDomain(t, 1024)
	_, codeword := testCodeword(t, domain, 1024/options.BlowupFactor)

	proverSide := NewTranscript(options.HashFunction)
	prover, err := friCommit(codeword, domain, proverSide, options)
	if err != nil {
		t.Fatalf("Failed to run FRI commit: %v", err)
	}
	proof := FRIProof{LayerRoots: prover.layerRoots(), Remainder: prover.remainder}
	verifierSide := NewTranscript(options.HashFunction)
	verifier, err := newFriVerifier(&proof, domain, verifierSide, options)
	if err != nil {
		t.Fatalf("Failed to build FRI verifier: %v", err)
	}

	const q = 77
	qp, err := prover.queryProof(q)
	if err != nil {
		t.Fatalf("Failed to open query: %v", err)
	}

	t.Run("wrong entry value", func(t *testing.T) {
		if err := verifier.verifyQuery(q, codeword[q].Add(field.One()), &qp); err == nil {
			t.Error("accepted a DEEP value the layer does not commit to")
		}
	})
	t.Run("tampered opening", func(t *testing.T) {
		bad := FRIQueryProof{Layers: make([]RowOpening, len(qp.Layers))}
		copy(bad.Layers, qp.Layers)
		bad.Layers[1] = RowOpening{
			Values: []field.Element{qp.Layers[1].Values[0].Add(field.One()), qp.Layers[1].Values[1]},
			Path:   qp.Layers[1].Path,
		}
		if err := verifier.verifyQuery(q, codeword[q], &bad); err == nil {
			t.Error("accepted a tampered layer opening")
		}
	})
	t.Run("missing layer", func(t *testing.T) {
		bad := FRIQueryProof{Layers: qp.Layers[:len(qp.Layers)-1]}
		if err := verifier.verifyQuery(q, codeword[q], &bad); err == nil {
			t.Error("accepted a query with a missing layer")
		}
	})
}
