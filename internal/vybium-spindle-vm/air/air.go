// Package air defines the algebraic constraint system a Spindle VM trace
// must satisfy. Constraints come in two shapes: transition constraints over
// pairs of adjacent rows, and boundary constraints pinning single columns on
// the first or last row. Prover and verifier build the identical ordered
// list from public data alone; nothing about the list is negotiated.
package air

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/vm"
)

// MaxConstraintDegree bounds every transition constraint. The composition
// target degree is MaxConstraintDegree*(n-1) for a trace of length n.
const MaxConstraintDegree = 8

// NumPeriodicColumns counts the periodic value streams feeding transition
// evaluation: the two Rescue constant vectors for the hashr instruction.
const NumPeriodicColumns = 2 * crypto.StateWidth

// PeriodicCycleLength is the row period of the periodic columns.
const PeriodicCycleLength = crypto.CycleLength

// Transition is one constraint over adjacent rows. Eval returns zero on
// every valid step; periodic carries the NumPeriodicColumns values for the
// current row.
type Transition struct {
	Name   string
	Degree int
	Eval   func(cur, next, periodic []field.Element) field.Element
}

// Boundary pins one column to a value on the first or last row.
type Boundary struct {
	Name   string
	Column int
	Value  field.Element
	Last   bool
}

// Air is the full constraint system for one execution shape: a trace layout,
// a length, and the public claim (program hash, inputs, outputs).
type Air struct {
	layout      vm.TraceLayout
	traceLength int
	programHash crypto.Digest
	inputs      []field.Element
	outputs     []field.Element

	transitions []Transition
	boundaries  []Boundary
}

// New builds the constraint system. The same arguments produce the same
// ordered constraint lists on every call.
func New(layout vm.TraceLayout, traceLength int, programHash crypto.Digest, publicInputs, outputs []field.Element) (*Air, error) {
	if traceLength < vm.MinTraceLength || !utils.IsPowerOfTwo(traceLength) {
		return nil, fmt.Errorf("trace length %d is not a power of two >= %d", traceLength, vm.MinTraceLength)
	}
	if len(publicInputs) > vm.MaxPublicInputs {
		return nil, fmt.Errorf("too many public inputs: %d exceeds %d", len(publicInputs), vm.MaxPublicInputs)
	}
	if len(outputs) > vm.MaxOutputs {
		return nil, fmt.Errorf("too many outputs: %d exceeds %d", len(outputs), vm.MaxOutputs)
	}

	a := &Air{
		layout:      layout,
		traceLength: traceLength,
		programHash: programHash,
		inputs:      make([]field.Element, len(publicInputs)),
		outputs:     make([]field.Element, len(outputs)),
	}
	copy(a.inputs, publicInputs)
	copy(a.outputs, outputs)

	a.buildTransitions()
	a.buildBoundaries()
	return a, nil
}

// Layout returns the trace layout the constraints index into.
func (a *Air) Layout() vm.TraceLayout {
	return a.layout
}

// TraceLength returns the padded trace height.
func (a *Air) TraceLength() int {
	return a.traceLength
}

// Transitions returns the ordered transition constraint list.
func (a *Air) Transitions() []Transition {
	return a.transitions
}

// Boundaries returns the ordered boundary constraint list.
func (a *Air) Boundaries() []Boundary {
	return a.boundaries
}

// NumConstraints returns the total count across both lists; the transcript
// draws two composition coefficients per constraint.
func (a *Air) NumConstraints() int {
	return len(a.transitions) + len(a.boundaries)
}

// PeriodicCycles returns the periodic column templates: one cycle of
// PeriodicCycleLength values per column. Columns 0..5 hold the first hashr
// constant vector, 6..11 the second; the idle phase contributes zeros.
func (a *Air) PeriodicCycles() [][]field.Element {
	cycles := make([][]field.Element, NumPeriodicColumns)
	for c := range cycles {
		cycles[c] = make([]field.Element, PeriodicCycleLength)
	}
	for phase := 0; phase < PeriodicCycleLength; phase++ {
		c0, c1 := crypto.ScheduleConstants(phase)
		for k := 0; k < crypto.StateWidth; k++ {
			cycles[k][phase] = c0[k]
			cycles[crypto.StateWidth+k][phase] = c1[k]
		}
	}
	return cycles
}

// buildBoundaries pins the first row to a clean machine seeded with the
// public inputs, and the last row to the program hash and declared outputs.
func (a *Air) buildBoundaries() {
	l := a.layout

	for i := 0; i < vm.SpongeWidth; i++ {
		a.boundaries = append(a.boundaries, Boundary{
			Name:   fmt.Sprintf("first.sponge%d", i),
			Column: l.Sponge(i),
		})
	}
	for i := 0; i < vm.DigestWidth; i++ {
		a.boundaries = append(a.boundaries, Boundary{
			Name:   fmt.Sprintf("first.bd%d", i),
			Column: l.Digest(i),
		})
	}
	for slot := 0; slot < l.ContextDepth(); slot++ {
		for reg := 0; reg < vm.SpongeWidth; reg++ {
			a.boundaries = append(a.boundaries, Boundary{
				Name:   fmt.Sprintf("first.ctx%d.%d", slot, reg),
				Column: l.Context(slot, reg),
			})
		}
	}
	for i := 0; i < l.StackWidth(); i++ {
		value := field.Zero()
		if i < len(a.inputs) {
			value = a.inputs[i]
		}
		a.boundaries = append(a.boundaries, Boundary{
			Name:   fmt.Sprintf("first.st%d", i),
			Column: l.Stack(i),
			Value:  value,
		})
	}

	for i := 0; i < vm.DigestWidth; i++ {
		a.boundaries = append(a.boundaries, Boundary{
			Name:   fmt.Sprintf("last.sponge%d", i),
			Column: l.Sponge(i),
			Value:  a.programHash[i],
			Last:   true,
		})
	}
	for i := range a.outputs {
		a.boundaries = append(a.boundaries, Boundary{
			Name:   fmt.Sprintf("last.st%d", i),
			Column: l.Stack(i),
			Value:  a.outputs[i],
			Last:   true,
		})
	}
}
