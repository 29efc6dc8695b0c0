package protocols

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/air"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/program"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/vm"
)

// Prove executes the program and produces a STARK proof that it terminates
// on the given inputs with the returned outputs on top of the stack. The
// proof binds the program hash, the public inputs and the outputs; tape
// values stay secret.
func Prove(p *program.Program, inputs *vm.ProgramInputs, numOutputs int, options *ProofOptions) ([]field.Element, *StarkProof, error) {
	if p == nil {
		return nil, nil, fmt.Errorf("program cannot be nil")
	}
	if inputs == nil {
		inputs = vm.NoInputs()
	}
	if options == nil {
		options = DefaultProofOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid proof options: %w", err)
	}
	if numOutputs < 0 || numOutputs > vm.MaxOutputs {
		return nil, nil, fmt.Errorf("output count %d is outside [0, %d]", numOutputs, vm.MaxOutputs)
	}

	trace, stack, err := vm.Run(p, inputs, options.MaxTraceLength)
	if err != nil {
		return nil, nil, err
	}
	if len(stack) < numOutputs {
		return nil, nil, fmt.Errorf("program left %d values on the stack, %d outputs requested", len(stack), numOutputs)
	}
	outputs := make([]field.Element, numOutputs)
	copy(outputs, stack[:numOutputs])

	proof, err := ProveTrace(trace, p.HashElements(), inputs.PublicInputs(), outputs, options)
	if err != nil {
		return nil, nil, err
	}
	return outputs, proof, nil
}

// ProveTrace proves an already-executed trace. The transcript order is
// normative: context, trace root, composition coefficients, segment root,
// out-of-domain point and frames, DEEP coefficients, FRI layers, remainder,
// query positions. The verifier replays it verbatim.
func ProveTrace(trace *vm.ExecutionTrace, programHash crypto.Digest, publicInputs, outputs []field.Element, options *ProofOptions) (*StarkProof, error) {
	if err := trace.Validate(); err != nil {
		return nil, fmt.Errorf("invalid execution trace: %w", err)
	}
	if trace.Length() > options.MaxTraceLength {
		return nil, fmt.Errorf("trace length %d exceeds the %d limit", trace.Length(), options.MaxTraceLength)
	}

	a, err := air.New(trace.Layout(), trace.Length(), programHash, publicInputs, outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to build constraint system: %w", err)
	}
	domains, err := NewStarkDomains(trace.Length(), options.BlowupFactor)
	if err != nil {
		return nil, err
	}
	context, err := newProofContext(trace.Layout(), trace.Length(), programHash, publicInputs, outputs, options)
	if err != nil {
		return nil, err
	}

	transcript := NewTranscript(options.HashFunction)
	absorbContext(transcript, &context)

	// Commit to the trace columns over the LDE coset.
	traceCoeffs, traceLDE, err := extendColumns(trace.Columns(), domains)
	if err != nil {
		return nil, fmt.Errorf("failed to extend trace: %w", err)
	}
	traceCommit, err := CommitMatrix(traceLDE, options.HashFunction)
	if err != nil {
		return nil, fmt.Errorf("failed to commit trace: %w", err)
	}
	transcript.AppendBytes(traceCommit.Root())

	// Randomized constraint composition, split into degree-n segments.
	coeffs := drawCompositionCoeffs(transcript, a.NumConstraints())
	evaluator, err := newCompositionEvaluator(a, domains)
	if err != nil {
		return nil, err
	}
	points := domains.LDE.Elements()
	comp, err := evaluator.accumulateLDE(traceLDE, points, domains, coeffs)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate composition: %w", err)
	}
	segCoeffs, segLDE, err := splitComposition(comp, domains)
	if err != nil {
		return nil, err
	}
	segCommit, err := CommitMatrix(segLDE, options.HashFunction)
	if err != nil {
		return nil, fmt.Errorf("failed to commit composition segments: %w", err)
	}
	transcript.AppendBytes(segCommit.Root())

	// Out-of-domain evaluations at z, z*g and z^NumSegments.
	z := transcript.DrawElement()
	zg := z.Mul(domains.Trace.Generator)
	z8 := z.Exp(uint64(NumSegments))
	width := trace.Width()
	ood := OODFrame{
		TraceAtZ:  make([]field.Element, width),
		TraceAtZg: make([]field.Element, width),
		Segments:  make([]field.Element, NumSegments),
	}
	utils.ParallelFor(width, func(c int) {
		ood.TraceAtZ[c] = field.EvaluatePolyAt(traceCoeffs[c], z)
		ood.TraceAtZg[c] = field.EvaluatePolyAt(traceCoeffs[c], zg)
	})
	utils.ParallelFor(NumSegments, func(i int) {
		ood.Segments[i] = field.EvaluatePolyAt(segCoeffs[i], z8)
	})
	transcript.AppendElements(ood.TraceAtZ)
	transcript.AppendElements(ood.TraceAtZg)
	transcript.AppendElements(ood.Segments)

	// DEEP composition ties the openings to the out-of-domain frame.
	deepCoeffs := transcript.DrawElements(2*width + NumSegments)
	deep := buildDeepCodeword(traceLDE, segLDE, &ood, z, zg, z8, deepCoeffs, points)
	fri, err := friCommit(deep, domains.LDE, transcript, options)
	if err != nil {
		return nil, err
	}

	queries := transcript.DrawIndices(options.NumQueries, domains.LDE.Length)
	proof := &StarkProof{
		Context:     context,
		TraceRoot:   traceCommit.Root(),
		SegmentRoot: segCommit.Root(),
		OOD:         ood,
		FRI: FRIProof{
			LayerRoots: fri.layerRoots(),
			Remainder:  fri.remainder,
			Queries:    make([]FRIQueryProof, 0, len(queries)),
		},
		TraceQueries:   make([]RowOpening, 0, len(queries)),
		SegmentQueries: make([]RowOpening, 0, len(queries)),
	}
	for _, q := range queries {
		traceOpen, err := traceCommit.Open(q)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace row %d: %w", q, err)
		}
		segOpen, err := segCommit.Open(q)
		if err != nil {
			return nil, fmt.Errorf("failed to open segment row %d: %w", q, err)
		}
		friOpen, err := fri.queryProof(q)
		if err != nil {
			return nil, err
		}
		proof.TraceQueries = append(proof.TraceQueries, traceOpen)
		proof.SegmentQueries = append(proof.SegmentQueries, segOpen)
		proof.FRI.Queries = append(proof.FRI.Queries, friOpen)
	}
	return proof, nil
}

func newProofContext(layout vm.TraceLayout, traceLength int, programHash crypto.Digest,
	inputs, outputs []field.Element, options *ProofOptions) (ProofContext, error) {

	kind, err := hashKindCode(options.HashFunction)
	if err != nil {
		return ProofContext{}, err
	}
	c := ProofContext{
		LogTraceLength: uint8(utils.Log2(traceLength)),
		CtxDepth:       uint8(layout.ContextDepth()),
		StackWidth:     uint8(layout.StackWidth()),
		BlowupFactor:   uint8(options.BlowupFactor),
		NumQueries:     uint8(options.NumQueries),
		HashKind:       kind,
		ProgramHash:    programHash,
		Inputs:         make([]field.Element, len(inputs)),
		Outputs:        make([]field.Element, len(outputs)),
	}
	copy(c.Inputs, inputs)
	copy(c.Outputs, outputs)
	return c, nil
}

// absorbContext seeds the transcript with the public statement. Both sides
// call this before any commitment.
func absorbContext(t *Transcript, c *ProofContext) {
	hash := c.ProgramHash.Bytes()
	t.AppendBytes(hash[:])
	t.AppendElements(c.Inputs)
	t.AppendElements(c.Outputs)
	t.AppendBytes([]byte{c.LogTraceLength, c.CtxDepth, c.StackWidth, c.BlowupFactor, c.NumQueries, c.HashKind})
}

// buildDeepCodeword evaluates the DEEP composition over the LDE domain:
// quotients of (column - out-of-domain value) by (x - point) for the trace
// at z and z*g and the segments at z^NumSegments, combined with the drawn
// coefficients. The result has degree below the trace length.
func buildDeepCodeword(traceLDE, segLDE [][]field.Element, ood *OODFrame,
	z, zg, z8 field.Element, coeffs []field.Element, points []field.Element) []field.Element {

	n := len(points)
	denoms := make([]field.Element, 3*n)
	for j, x := range points {
		denoms[j] = x.Sub(z)
		denoms[n+j] = x.Sub(zg)
		denoms[2*n+j] = x.Sub(z8)
	}
	invs := field.BatchInversion(denoms)

	width := len(traceLDE)
	out := make([]field.Element, n)
	utils.ParallelRange(n, func(start, end int) {
		for j := start; j < end; j++ {
			acc := field.Zero()
			for c := 0; c < width; c++ {
				v := traceLDE[c][j]
				acc = acc.Add(coeffs[2*c].Mul(v.Sub(ood.TraceAtZ[c])).Mul(invs[j]))
				acc = acc.Add(coeffs[2*c+1].Mul(v.Sub(ood.TraceAtZg[c])).Mul(invs[n+j]))
			}
			for i := range segLDE {
				acc = acc.Add(coeffs[2*width+i].Mul(segLDE[i][j].Sub(ood.Segments[i])).Mul(invs[2*n+j]))
			}
			out[j] = acc
		}
	})
	return out
}

// deepValueAt recomputes the DEEP composition at a single domain point from
// opened rows. The verifier checks it against the first FRI layer.
func deepValueAt(x field.Element, traceRow, segmentRow []field.Element, ood *OODFrame,
	z, zg, z8 field.Element, coeffs []field.Element) field.Element {

	xzInv := x.Sub(z).Inverse()
	xgInv := x.Sub(zg).Inverse()
	x8Inv := x.Sub(z8).Inverse()
	acc := field.Zero()
	for c := range traceRow {
		acc = acc.Add(coeffs[2*c].Mul(traceRow[c].Sub(ood.TraceAtZ[c])).Mul(xzInv))
		acc = acc.Add(coeffs[2*c+1].Mul(traceRow[c].Sub(ood.TraceAtZg[c])).Mul(xgInv))
	}
	for i := range segmentRow {
		acc = acc.Add(coeffs[2*len(traceRow)+i].Mul(segmentRow[i].Sub(ood.Segments[i])).Mul(x8Inv))
	}
	return acc
}
