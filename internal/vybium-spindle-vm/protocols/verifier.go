package protocols

import (
	"errors"
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/air"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
)

var (
	// ErrProofStructure reports a malformed proof, rejected before any
	// cryptographic work.
	ErrProofStructure = errors.New("malformed proof")

	// ErrClaimMismatch reports a proof generated for a different statement.
	ErrClaimMismatch = errors.New("claim mismatch")

	// ErrConstraintCheck reports a failed out-of-domain constraint identity.
	ErrConstraintCheck = errors.New("constraint check failed")

	// ErrOpeningCheck reports a commitment opening that does not authenticate.
	ErrOpeningCheck = errors.New("commitment opening check failed")

	// ErrFriCheck reports an inconsistent FRI fold chain.
	ErrFriCheck = errors.New("low-degree check failed")
)

// Verify checks a proof against the claim that the program with the given
// hash, run on the public inputs, terminates with the given outputs. It
// replays the prover's transcript from public data and the proof's
// commitments, then checks the out-of-domain constraint identity, every
// opening, and the FRI fold chain. The program itself is never needed.
func Verify(programHash crypto.Digest, publicInputs, outputs []field.Element, proof *StarkProof) error {
	if proof == nil {
		return fmt.Errorf("%w: proof cannot be nil", ErrProofStructure)
	}
	if err := proof.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrProofStructure, err)
	}

	c := &proof.Context
	if !c.ProgramHash.Equal(programHash) {
		return fmt.Errorf("%w: proof binds a different program hash", ErrClaimMismatch)
	}
	if !elementsEqual(c.Inputs, publicInputs) {
		return fmt.Errorf("%w: proof binds different public inputs", ErrClaimMismatch)
	}
	if !elementsEqual(c.Outputs, outputs) {
		return fmt.Errorf("%w: proof binds different outputs", ErrClaimMismatch)
	}

	layout, err := c.Layout()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrProofStructure, err)
	}
	options, err := c.Options()
	if err != nil {
		return fmt.Errorf("%w: %s", ErrProofStructure, err)
	}
	a, err := air.New(layout, c.TraceLength(), programHash, publicInputs, outputs)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrProofStructure, err)
	}
	domains, err := NewStarkDomains(c.TraceLength(), options.BlowupFactor)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrProofStructure, err)
	}

	// Replay the transcript in the prover's exact order.
	transcript := NewTranscript(options.HashFunction)
	absorbContext(transcript, c)
	transcript.AppendBytes(proof.TraceRoot)
	coeffs := drawCompositionCoeffs(transcript, a.NumConstraints())
	transcript.AppendBytes(proof.SegmentRoot)
	z := transcript.DrawElement()
	transcript.AppendElements(proof.OOD.TraceAtZ)
	transcript.AppendElements(proof.OOD.TraceAtZg)
	transcript.AppendElements(proof.OOD.Segments)
	width := layout.Width()
	deepCoeffs := transcript.DrawElements(2*width + NumSegments)
	friVerify, err := newFriVerifier(&proof.FRI, domains.LDE, transcript, options)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrProofStructure, err)
	}
	queries := transcript.DrawIndices(options.NumQueries, domains.LDE.Length)

	// The constraint composition at z must match the committed segments.
	evaluator, err := newCompositionEvaluator(a, domains)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrProofStructure, err)
	}
	compAtZ := evaluator.valueAt(z, proof.OOD.TraceAtZ, proof.OOD.TraceAtZg, coeffs)
	segAtZ := field.Zero()
	zPow := field.One()
	for i := 0; i < NumSegments; i++ {
		segAtZ = segAtZ.Add(zPow.Mul(proof.OOD.Segments[i]))
		zPow = zPow.Mul(z)
	}
	if !compAtZ.Equal(segAtZ) {
		return fmt.Errorf("%w: out-of-domain composition does not match the segments", ErrConstraintCheck)
	}

	// Check every queried position: authenticate the trace and segment rows,
	// recompute the DEEP value, and walk the FRI fold chain.
	zg := z.Mul(domains.Trace.Generator)
	z8 := z.Exp(uint64(NumSegments))
	numRows := domains.LDE.Length
	for i, q := range queries {
		traceOpen := proof.TraceQueries[i]
		if !VerifyRowOpening(proof.TraceRoot, q, numRows, traceOpen, options.HashFunction) {
			return fmt.Errorf("%w: trace row %d", ErrOpeningCheck, q)
		}
		segOpen := proof.SegmentQueries[i]
		if !VerifyRowOpening(proof.SegmentRoot, q, numRows, segOpen, options.HashFunction) {
			return fmt.Errorf("%w: segment row %d", ErrOpeningCheck, q)
		}

		x := domains.LDE.At(q)
		deepValue := deepValueAt(x, traceOpen.Values, segOpen.Values, &proof.OOD, z, zg, z8, deepCoeffs)
		if err := friVerify.verifyQuery(q, deepValue, &proof.FRI.Queries[i]); err != nil {
			return fmt.Errorf("%w: %s", ErrFriCheck, err)
		}
	}
	return nil
}

func elementsEqual(a, b []field.Element) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
