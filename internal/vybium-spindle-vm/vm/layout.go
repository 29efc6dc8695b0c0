package vm

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/program"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
)

// Register file, one column per register:
//
//	sponge[0..5]    program-hash accumulator (Rescue sponge state)
//	bd[0..3]        digest buffer for branch and block digests
//	ctx[0..6d-1]    saved sponge states, d = context depth, slot 0 innermost
//	cf0..cf2        control-flow bits selecting the row kind
//	ib0..ib5        instruction bits of the executing user instruction
//	op              immediate operand, or an untaken branch digest element
//	aux0, aux1      values injected by this row's accumulator round
//	hlp             inverse witness for the eq instruction
//	st0..st(w-1)    operand stack, w = stack width, st0 on top
//
// The layout is fixed per program: d and w are recorded in the proof context
// and absorbed into the transcript, so prover and verifier agree on column
// indices without exchanging anything else.

const (
	// SpongeWidth is the number of program-hash accumulator registers.
	SpongeWidth = crypto.StateWidth

	// DigestWidth is the number of digest buffer registers.
	DigestWidth = crypto.DigestSize

	// NumFlowBits is the number of control-flow bit registers.
	NumFlowBits = 3

	// NumInstrBits is the number of instruction bit registers.
	NumInstrBits = program.NumOpBits

	// MinStackWidth and MaxStackWidth bound the operand stack register count.
	MinStackWidth = 8
	MaxStackWidth = 32

	// MinContextDepth and MaxContextDepth bound the saved-sponge slots.
	MinContextDepth = 1
	MaxContextDepth = program.MaxBlockDepth
)

// FlowOp identifies the control-flow kind of a trace row. The low bit marks
// rows on which the sponge advances by one accumulator round.
type FlowOp uint8

const (
	// FlowVoid pads the trace; every register copies to the next row.
	FlowVoid FlowOp = 0
	// FlowHacc executes one user instruction and absorbs it into the sponge.
	FlowHacc FlowOp = 1
	// FlowBegin enters a switch branch: saves the sponge to the context,
	// seeds a fresh sponge with the popped condition.
	FlowBegin FlowOp = 2
	// FlowMerg folds the taken (true) branch digest with the untaken one.
	FlowMerg FlowOp = 3
	// FlowTend ends a branch: moves the sponge digest to the buffer and
	// clears the sponge for the merge that follows.
	FlowTend FlowOp = 4
	// FlowMergf is FlowMerg with the operand in the true slot, used when
	// the false branch executed.
	FlowMergf FlowOp = 5
	// FlowSpop restores the parent sponge and buffers the block digest.
	FlowSpop FlowOp = 6
	// FlowAbsb absorbs one block digest element into the parent sponge.
	FlowAbsb FlowOp = 7
)

// Bit returns bit i of the control-flow encoding.
func (f FlowOp) Bit(i int) uint64 {
	return (uint64(f) >> i) & 1
}

// IsRound reports whether rows of this kind advance the sponge.
func (f FlowOp) IsRound() bool {
	return f.Bit(0) == 1
}

func (f FlowOp) String() string {
	switch f {
	case FlowVoid:
		return "void"
	case FlowHacc:
		return "hacc"
	case FlowBegin:
		return "begin"
	case FlowMerg:
		return "merg"
	case FlowTend:
		return "tend"
	case FlowMergf:
		return "mergf"
	case FlowSpop:
		return "spop"
	case FlowAbsb:
		return "absb"
	}
	return fmt.Sprintf("flow(%d)", uint8(f))
}

// TraceLayout maps register names to column indices for a given context
// depth and stack width. All column bookkeeping in the executor, the
// constraint system, and the verifier goes through this type.
type TraceLayout struct {
	ctxDepth   int
	stackWidth int
}

// NewTraceLayout creates a layout, validating both dimensions.
func NewTraceLayout(ctxDepth, stackWidth int) (TraceLayout, error) {
	if ctxDepth < MinContextDepth || ctxDepth > MaxContextDepth {
		return TraceLayout{}, fmt.Errorf("context depth %d outside [%d, %d]", ctxDepth, MinContextDepth, MaxContextDepth)
	}
	if stackWidth < MinStackWidth || stackWidth > MaxStackWidth || !utils.IsPowerOfTwo(stackWidth) {
		return TraceLayout{}, fmt.Errorf("stack width %d is not a power of two in [%d, %d]", stackWidth, MinStackWidth, MaxStackWidth)
	}
	return TraceLayout{ctxDepth: ctxDepth, stackWidth: stackWidth}, nil
}

// StackWidthFor rounds an observed maximum stack depth up to a valid width.
func StackWidthFor(maxDepth int) (int, error) {
	if maxDepth > MaxStackWidth {
		return 0, fmt.Errorf("stack depth %d exceeds the %d-register ceiling", maxDepth, MaxStackWidth)
	}
	if maxDepth < MinStackWidth {
		return MinStackWidth, nil
	}
	return utils.NextPowerOfTwo(maxDepth), nil
}

// ContextDepth returns the number of saved-sponge slots.
func (l TraceLayout) ContextDepth() int {
	return l.ctxDepth
}

// StackWidth returns the number of operand stack registers.
func (l TraceLayout) StackWidth() int {
	return l.stackWidth
}

// Width returns the total number of columns.
func (l TraceLayout) Width() int {
	return l.StackStart() + l.stackWidth
}

// Sponge returns the column of sponge register i.
func (l TraceLayout) Sponge(i int) int {
	return i
}

// Digest returns the column of digest buffer register i.
func (l TraceLayout) Digest(i int) int {
	return SpongeWidth + i
}

// Context returns the column of register reg within saved-sponge slot.
func (l TraceLayout) Context(slot, reg int) int {
	return SpongeWidth + DigestWidth + slot*SpongeWidth + reg
}

// FlowBit returns the column of control-flow bit i.
func (l TraceLayout) FlowBit(i int) int {
	return SpongeWidth + DigestWidth + l.ctxDepth*SpongeWidth + i
}

// InstrBit returns the column of instruction bit i.
func (l TraceLayout) InstrBit(i int) int {
	return l.FlowBit(NumFlowBits) + i
}

// OpValue returns the operand column.
func (l TraceLayout) OpValue() int {
	return l.InstrBit(NumInstrBits)
}

// Aux returns the column of absorption register i (0 or 1).
func (l TraceLayout) Aux(i int) int {
	return l.OpValue() + 1 + i
}

// Helper returns the equality inverse witness column.
func (l TraceLayout) Helper() int {
	return l.Aux(2)
}

// Stack returns the column of operand stack register i.
func (l TraceLayout) Stack(i int) int {
	return l.StackStart() + i
}

// StackStart returns the first operand stack column.
func (l TraceLayout) StackStart() int {
	return l.Helper() + 1
}
