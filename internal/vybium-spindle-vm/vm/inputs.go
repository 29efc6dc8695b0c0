// Package vm runs programs on the Spindle stack machine and records the
// execution as a trace of register columns. The trace is the witness the
// proving pipeline commits to; its layout and transition rules must agree
// exactly with the constraint system.
package vm

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
)

const (
	// MaxPublicInputs bounds how many values may seed the stack.
	MaxPublicInputs = 8

	// MaxOutputs bounds how many values may be read back from the stack.
	MaxOutputs = 8
)

// ProgramInputs carries everything a program consumes: up to 8 public
// inputs that initialize the operand stack, plus two independent secret
// tapes read by the read and read2 instructions. Public inputs appear in
// the proof statement; tape values never do.
type ProgramInputs struct {
	public []field.Element
	tapeA  []field.Element
	tapeB  []field.Element
}

// NewProgramInputs creates inputs from public values and two secret tapes.
func NewProgramInputs(public, tapeA, tapeB []field.Element) (*ProgramInputs, error) {
	if len(public) > MaxPublicInputs {
		return nil, fmt.Errorf("too many public inputs: %d exceeds %d", len(public), MaxPublicInputs)
	}
	pi := &ProgramInputs{
		public: make([]field.Element, len(public)),
		tapeA:  make([]field.Element, len(tapeA)),
		tapeB:  make([]field.Element, len(tapeB)),
	}
	copy(pi.public, public)
	copy(pi.tapeA, tapeA)
	copy(pi.tapeB, tapeB)
	return pi, nil
}

// FromPublic creates inputs with public values and empty tapes.
func FromPublic(public []field.Element) (*ProgramInputs, error) {
	return NewProgramInputs(public, nil, nil)
}

// NoInputs creates empty inputs.
func NoInputs() *ProgramInputs {
	return &ProgramInputs{}
}

// PublicInputs returns a copy of the public input values.
func (pi *ProgramInputs) PublicInputs() []field.Element {
	out := make([]field.Element, len(pi.public))
	copy(out, pi.public)
	return out
}

// TapeA returns a copy of secret tape A.
func (pi *ProgramInputs) TapeA() []field.Element {
	out := make([]field.Element, len(pi.tapeA))
	copy(out, pi.tapeA)
	return out
}

// TapeB returns a copy of secret tape B.
func (pi *ProgramInputs) TapeB() []field.Element {
	out := make([]field.Element, len(pi.tapeB))
	copy(out, pi.tapeB)
	return out
}
