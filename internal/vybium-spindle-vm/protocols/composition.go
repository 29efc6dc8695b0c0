package protocols

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/air"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
)

// ConstraintCoeffs is the random pair combining one constraint into the
// composition polynomial.
type ConstraintCoeffs struct {
	Alpha field.Element
	Beta  field.Element
}

// drawCompositionCoeffs samples the pairs in constraint order, transitions
// before boundaries.
func drawCompositionCoeffs(t *Transcript, count int) []ConstraintCoeffs {
	flat := t.DrawElements(2 * count)
	coeffs := make([]ConstraintCoeffs, count)
	for i := range coeffs {
		coeffs[i] = ConstraintCoeffs{Alpha: flat[2*i], Beta: flat[2*i+1]}
	}
	return coeffs
}

// compositionEvaluator computes the randomized constraint composition. The
// prover runs it over the whole LDE domain; the verifier runs the identical
// arithmetic at the single out-of-domain point. Every quotient is degree-
// adjusted to the common target 8*(n-1) with x^(n-1) powers.
type compositionEvaluator struct {
	air        *air.Air
	n          int
	lastPoint  field.Element
	cyclePolys [][]field.Element
}

func newCompositionEvaluator(a *air.Air, domains *StarkDomains) (*compositionEvaluator, error) {
	cycles := a.PeriodicCycles()
	polys := make([][]field.Element, len(cycles))
	for i, cycle := range cycles {
		coeffs, err := field.InterpolatePoly(cycle, field.One())
		if err != nil {
			return nil, fmt.Errorf("failed to interpolate periodic column %d: %w", i, err)
		}
		polys[i] = coeffs
	}
	n := a.TraceLength()
	return &compositionEvaluator{
		air:        a,
		n:          n,
		lastPoint:  domains.Trace.Generator.Exp(uint64(n - 1)),
		cyclePolys: polys,
	}, nil
}

// periodicAt evaluates all periodic columns at an arbitrary point.
func (e *compositionEvaluator) periodicAt(x field.Element) []field.Element {
	y := x.Exp(uint64(e.n / air.PeriodicCycleLength))
	per := make([]field.Element, len(e.cyclePolys))
	for i := range e.cyclePolys {
		per[i] = field.EvaluatePolyAt(e.cyclePolys[i], y)
	}
	return per
}

// value combines every constraint at one point. The caller supplies the
// divisor inverses and y = x^(n-1) so the prover can batch them across the
// domain; the formula itself is shared verbatim with the verifier.
func (e *compositionEvaluator) value(x field.Element, cur, next, per []field.Element,
	y, ztInv, firstInv, lastInv field.Element, coeffs []ConstraintCoeffs) field.Element {

	var yPows [air.MaxConstraintDegree]field.Element
	yPows[0] = field.One()
	for i := 1; i < len(yPows); i++ {
		yPows[i] = yPows[i-1].Mul(y)
	}

	acc := field.Zero()
	transitions := e.air.Transitions()
	for k := range transitions {
		ek := transitions[k].Eval(cur, next, per)
		if ek.IsZero() {
			continue
		}
		adj := yPows[air.MaxConstraintDegree+1-transitions[k].Degree]
		cc := coeffs[k]
		acc = acc.Add(cc.Alpha.Add(cc.Beta.Mul(adj)).Mul(ek).Mul(ztInv))
	}

	boundAdj := yPows[air.MaxConstraintDegree-1].Mul(x)
	for i, bc := range e.air.Boundaries() {
		ev := cur[bc.Column].Sub(bc.Value)
		if ev.IsZero() {
			continue
		}
		div := firstInv
		if bc.Last {
			div = lastInv
		}
		cc := coeffs[len(transitions)+i]
		acc = acc.Add(cc.Alpha.Add(cc.Beta.Mul(boundAdj)).Mul(ev).Mul(div))
	}
	return acc
}

// valueAt runs the composition at a single out-of-domain point from a trace
// frame, computing the divisor inverses directly.
func (e *compositionEvaluator) valueAt(x field.Element, cur, next []field.Element, coeffs []ConstraintCoeffs) field.Element {
	n := uint64(e.n)
	ztInv := x.Sub(e.lastPoint).Mul(x.Exp(n).Sub(field.One()).Inverse())
	firstInv := x.Sub(field.One()).Inverse()
	lastInv := x.Sub(e.lastPoint).Inverse()
	y := x.Exp(n - 1)
	return e.value(x, cur, next, e.periodicAt(x), y, ztInv, firstInv, lastInv, coeffs)
}

// accumulateLDE evaluates the composition over the whole LDE domain. The
// next-row frame at index j sits blowup steps ahead; the trace-domain
// zerofier and y powers are stepped incrementally instead of recomputed.
func (e *compositionEvaluator) accumulateLDE(lde [][]field.Element, points []field.Element,
	domains *StarkDomains, coeffs []ConstraintCoeffs) ([]field.Element, error) {

	n := uint64(e.n)
	N := domains.LDE.Length
	blowup := domains.Blowup
	width := len(lde)
	if len(points) != N {
		return nil, fmt.Errorf("domain points length %d, expected %d", len(points), N)
	}

	// (x^n - 1) repeats with period blowup across the coset.
	xnDiffs := make([]field.Element, blowup)
	genN := domains.LDE.Generator.Exp(n)
	cur := domains.LDE.Offset.Exp(n)
	for r := 0; r < blowup; r++ {
		xnDiffs[r] = cur.Sub(field.One())
		cur = cur.Mul(genN)
	}
	xnInv := field.BatchInversion(xnDiffs)

	firstDiffs := make([]field.Element, N)
	lastDiffs := make([]field.Element, N)
	for j := 0; j < N; j++ {
		firstDiffs[j] = points[j].Sub(field.One())
		lastDiffs[j] = points[j].Sub(e.lastPoint)
	}
	firstInv := field.BatchInversion(firstDiffs)
	lastInv := field.BatchInversion(lastDiffs)

	yVec := make([]field.Element, N)
	yCur := domains.LDE.Offset.Exp(n - 1)
	yStep := domains.LDE.Generator.Exp(n - 1)
	for j := 0; j < N; j++ {
		yVec[j] = yCur
		yCur = yCur.Mul(yStep)
	}

	// Periodic values repeat with period 8*blowup across the coset.
	period := air.PeriodicCycleLength * blowup
	perTable := make([][]field.Element, period)
	for j := 0; j < period; j++ {
		perTable[j] = e.periodicAt(points[j])
	}

	out := make([]field.Element, N)
	utils.ParallelRange(N, func(start, end int) {
		curRow := make([]field.Element, width)
		nextRow := make([]field.Element, width)
		for j := start; j < end; j++ {
			nj := (j + blowup) % N
			for c := 0; c < width; c++ {
				curRow[c] = lde[c][j]
				nextRow[c] = lde[c][nj]
			}
			ztInv := points[j].Sub(e.lastPoint).Mul(xnInv[j%blowup])
			out[j] = e.value(points[j], curRow, nextRow, perTable[j%period],
				yVec[j], ztInv, firstInv[j], lastInv[j], coeffs)
		}
	})
	return out, nil
}

// splitComposition interpolates the composition evaluations and splits the
// coefficients into NumSegments columns of degree < n: segment i collects
// the coefficients of x^(NumSegments*t + i). Returns the segment coefficient
// vectors and their LDE evaluations.
func splitComposition(comp []field.Element, domains *StarkDomains) ([][]field.Element, [][]field.Element, error) {
	coeffs, err := field.InterpolatePoly(comp, domains.LDE.Offset)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to interpolate composition: %w", err)
	}

	n := domains.Trace.Length
	segCoeffs := make([][]field.Element, NumSegments)
	for i := 0; i < NumSegments; i++ {
		segCoeffs[i] = make([]field.Element, n)
		for t := 0; t < n; t++ {
			segCoeffs[i][t] = coeffs[NumSegments*t+i]
		}
	}

	segLDE := make([][]field.Element, NumSegments)
	errs := make([]error, NumSegments)
	utils.ParallelFor(NumSegments, func(i int) {
		evals, err := field.EvaluatePoly(segCoeffs[i], domains.LDE.Length, domains.LDE.Offset)
		if err != nil {
			errs[i] = fmt.Errorf("failed to extend segment %d: %w", i, err)
			return
		}
		segLDE[i] = evals
	})
	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}
	return segCoeffs, segLDE, nil
}
