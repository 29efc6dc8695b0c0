package protocols

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
)

// friLayer is one committed codeword. Leaf j of the commitment holds the
// pair (f[j], f[j+M/2]), so a single opening provides both points needed
// to fold at position j.
type friLayer struct {
	commitment *MatrixCommitment
	length     int
}

// friProver runs the FRI commit phase: fold the codeword by two until it
// fits in MaxRemainderSize evaluations, committing every intermediate
// layer, then send the remainder as plain coefficients.
type friProver struct {
	options   *ProofOptions
	layers    []*friLayer
	remainder []field.Element
}

// friCommit folds the codeword down to the remainder, absorbing each layer
// root into the transcript and drawing the folding challenge from it.
func friCommit(codeword []field.Element, domain Domain, transcript *Transcript, options *ProofOptions) (*friProver, error) {
	if len(codeword) != domain.Length {
		return nil, fmt.Errorf("codeword length %d does not match domain length %d", len(codeword), domain.Length)
	}

	p := &friProver{options: options}
	for len(codeword) > MaxRemainderSize {
		half := len(codeword) / 2
		commitment, err := CommitMatrix([][]field.Element{codeword[:half], codeword[half:]}, options.HashFunction)
		if err != nil {
			return nil, fmt.Errorf("failed to commit FRI layer %d: %w", len(p.layers), err)
		}
		p.layers = append(p.layers, &friLayer{commitment: commitment, length: len(codeword)})

		transcript.AppendBytes(commitment.Root())
		beta := transcript.DrawElement()
		codeword = foldCodeword(codeword, domain, beta)
		domain = domain.Halve()
	}

	coeffs, err := field.InterpolatePoly(codeword, domain.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to interpolate FRI remainder: %w", err)
	}
	bound := len(codeword) / options.BlowupFactor
	for i := bound; i < len(coeffs); i++ {
		if !coeffs[i].IsZero() {
			return nil, fmt.Errorf("FRI remainder exceeds degree bound %d", bound)
		}
	}
	p.remainder = coeffs[:bound]
	transcript.AppendElements(p.remainder)
	return p, nil
}

// foldCodeword maps f to f'(x^2) = (f(x) + f(-x))/2 + beta*(f(x) - f(-x))/(2x).
// On a coset of even order, -x sits half the domain away.
func foldCodeword(codeword []field.Element, domain Domain, beta field.Element) []field.Element {
	half := len(codeword) / 2
	xs := make([]field.Element, half)
	cur := domain.Offset
	for j := 0; j < half; j++ {
		xs[j] = cur
		cur = cur.Mul(domain.Generator)
	}
	xInv := field.BatchInversion(xs)

	twoInv := field.New(2).Inverse()
	out := make([]field.Element, half)
	utils.ParallelRange(half, func(start, end int) {
		for j := start; j < end; j++ {
			a := codeword[j]
			b := codeword[j+half]
			odd := a.Sub(b).Mul(xInv[j])
			out[j] = a.Add(b).Add(beta.Mul(odd)).Mul(twoInv)
		}
	})
	return out
}

// layerRoots returns the commitment root of every folded layer.
func (p *friProver) layerRoots() [][]byte {
	roots := make([][]byte, len(p.layers))
	for i, layer := range p.layers {
		roots[i] = layer.commitment.Root()
	}
	return roots
}

// queryProof opens every layer at the positions the query descends through.
func (p *friProver) queryProof(q int) (FRIQueryProof, error) {
	openings := make([]RowOpening, len(p.layers))
	for i, layer := range p.layers {
		pos := q % layer.length
		leaf := pos % (layer.length / 2)
		opening, err := layer.commitment.Open(leaf)
		if err != nil {
			return FRIQueryProof{}, fmt.Errorf("failed to open FRI layer %d: %w", i, err)
		}
		openings[i] = opening
	}
	return FRIQueryProof{Layers: openings}, nil
}

// friVerifier replays the commit phase from the proof and checks the fold
// chain of each query down to the remainder polynomial.
type friVerifier struct {
	options     *ProofOptions
	roots       [][]byte
	betas       []field.Element
	remainder   []field.Element
	domains     []Domain
	finalDomain Domain
}

func newFriVerifier(proof *FRIProof, domain Domain, transcript *Transcript, options *ProofOptions) (*friVerifier, error) {
	expectedLayers := 0
	for length := domain.Length; length > MaxRemainderSize; length /= 2 {
		expectedLayers++
	}
	if len(proof.LayerRoots) != expectedLayers {
		return nil, fmt.Errorf("proof has %d FRI layers, expected %d", len(proof.LayerRoots), expectedLayers)
	}

	v := &friVerifier{
		options:   options,
		roots:     proof.LayerRoots,
		betas:     make([]field.Element, expectedLayers),
		remainder: proof.Remainder,
		domains:   make([]Domain, expectedLayers),
	}
	for i, root := range proof.LayerRoots {
		v.domains[i] = domain
		transcript.AppendBytes(root)
		v.betas[i] = transcript.DrawElement()
		domain = domain.Halve()
	}
	v.finalDomain = domain

	if len(proof.Remainder) != domain.Length/options.BlowupFactor {
		return nil, fmt.Errorf("FRI remainder has %d coefficients, expected %d",
			len(proof.Remainder), domain.Length/options.BlowupFactor)
	}
	transcript.AppendElements(proof.Remainder)
	return v, nil
}

// verifyQuery walks one query through every layer. The value entering layer
// zero is the DEEP composition recomputed from the trace and segment
// openings; each committed layer must agree with the running value before
// folding it, and the last fold must land on the remainder polynomial.
func (v *friVerifier) verifyQuery(q int, value field.Element, qp *FRIQueryProof) error {
	if len(qp.Layers) != len(v.roots) {
		return fmt.Errorf("query has %d layer openings, expected %d", len(qp.Layers), len(v.roots))
	}

	twoInv := field.New(2).Inverse()
	for i := range v.roots {
		length := v.domains[i].Length
		half := length / 2
		pos := q % length
		leaf := pos % half

		opening := qp.Layers[i]
		if len(opening.Values) != 2 {
			return fmt.Errorf("FRI layer %d opening has %d values, expected 2", i, len(opening.Values))
		}
		if !VerifyRowOpening(v.roots[i], leaf, half, opening, v.options.HashFunction) {
			return fmt.Errorf("FRI layer %d opening failed authentication at position %d", i, leaf)
		}

		a := opening.Values[0]
		b := opening.Values[1]
		committed := a
		if pos >= half {
			committed = b
		}
		if !committed.Equal(value) {
			return fmt.Errorf("FRI layer %d value mismatch at position %d", i, pos)
		}

		x := v.domains[i].At(leaf)
		odd := a.Sub(b).Mul(x.Inverse())
		value = a.Add(b).Add(v.betas[i].Mul(odd)).Mul(twoInv)
	}

	pos := q % v.finalDomain.Length
	want := field.EvaluatePolyAt(v.remainder, v.finalDomain.At(pos))
	if !want.Equal(value) {
		return fmt.Errorf("FRI remainder mismatch at position %d", pos)
	}
	return nil
}
