// Package program defines the block-structured program graph, its builder,
// and the static program hash. Programs are immutable after Build; blocks
// live in an arena and reference each other by index, so the graph contains
// no pointers and hashing never recurses.
package program

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
)

// OpCode identifies a VM instruction. Codes fit in 6 bits; code 32 is the
// single high-degree instruction (one hash round), all others keep bit 5
// clear.
type OpCode uint8

// NumOpBits is the width of the opcode encoding. The trace carries one
// binary register per bit.
const NumOpBits = 6

const (
	OpNoop    OpCode = 0
	OpAssert  OpCode = 1
	OpPush    OpCode = 2
	OpRead    OpCode = 3
	OpRead2   OpCode = 4
	OpDup     OpCode = 5
	OpDup2    OpCode = 6
	OpDup4    OpCode = 7
	OpPad2    OpCode = 8
	OpDrop    OpCode = 9
	OpDrop4   OpCode = 10
	OpSwap    OpCode = 11
	OpSwap2   OpCode = 12
	OpSwap4   OpCode = 13
	OpRoll4   OpCode = 14
	OpRoll8   OpCode = 15
	OpChoose  OpCode = 16
	OpChoose2 OpCode = 17
	OpAdd     OpCode = 18
	OpMul     OpCode = 19
	OpNeg     OpCode = 20
	OpInv     OpCode = 21
	OpNot     OpCode = 22
	OpEq      OpCode = 23
	OpHashR   OpCode = 32
)

// OpInfo describes the static shape of an instruction.
type OpInfo struct {
	Name string
	// HasArg marks instructions carrying an immediate operand.
	HasArg bool
	// Requires is the minimum stack depth the instruction reads.
	Requires int
	// Net is the stack depth change after execution.
	Net int
}

// opInfoTable maps every opcode to its metadata.
var opInfoTable = map[OpCode]OpInfo{
	OpNoop:    {Name: "noop", Requires: 0, Net: 0},
	OpAssert:  {Name: "assert", Requires: 1, Net: -1},
	OpPush:    {Name: "push", HasArg: true, Requires: 0, Net: 1},
	OpRead:    {Name: "read", Requires: 0, Net: 1},
	OpRead2:   {Name: "read2", Requires: 0, Net: 2},
	OpDup:     {Name: "dup", Requires: 1, Net: 1},
	OpDup2:    {Name: "dup2", Requires: 2, Net: 2},
	OpDup4:    {Name: "dup4", Requires: 4, Net: 4},
	OpPad2:    {Name: "pad2", Requires: 0, Net: 2},
	OpDrop:    {Name: "drop", Requires: 1, Net: -1},
	OpDrop4:   {Name: "drop4", Requires: 4, Net: -4},
	OpSwap:    {Name: "swap", Requires: 2, Net: 0},
	OpSwap2:   {Name: "swap2", Requires: 4, Net: 0},
	OpSwap4:   {Name: "swap4", Requires: 8, Net: 0},
	OpRoll4:   {Name: "roll4", Requires: 4, Net: 0},
	OpRoll8:   {Name: "roll8", Requires: 8, Net: 0},
	OpChoose:  {Name: "choose", Requires: 3, Net: -2},
	OpChoose2: {Name: "choose2", Requires: 6, Net: -4},
	OpAdd:     {Name: "add", Requires: 2, Net: -1},
	OpMul:     {Name: "mul", Requires: 2, Net: -1},
	OpNeg:     {Name: "neg", Requires: 1, Net: 0},
	OpInv:     {Name: "inv", Requires: 1, Net: 0},
	OpNot:     {Name: "not", Requires: 1, Net: 0},
	OpEq:      {Name: "eq", Requires: 2, Net: -1},
	OpHashR:   {Name: "hashr", Requires: 6, Net: 0},
}

// opOrder lists every opcode in ascending code order. Constraint
// construction iterates this list so its output never depends on map order.
var opOrder = []OpCode{
	OpNoop, OpAssert, OpPush, OpRead, OpRead2, OpDup, OpDup2, OpDup4,
	OpPad2, OpDrop, OpDrop4, OpSwap, OpSwap2, OpSwap4, OpRoll4, OpRoll8,
	OpChoose, OpChoose2, OpAdd, OpMul, OpNeg, OpInv, OpNot, OpEq, OpHashR,
}

// AllOpCodes returns every opcode in ascending code order.
func AllOpCodes() []OpCode {
	out := make([]OpCode, len(opOrder))
	copy(out, opOrder)
	return out
}

// Info returns the metadata for an opcode.
func (op OpCode) Info() (OpInfo, bool) {
	info, ok := opInfoTable[op]
	return info, ok
}

// IsValid reports whether the opcode is part of the instruction set.
func (op OpCode) IsValid() bool {
	_, ok := opInfoTable[op]
	return ok
}

// String returns the assembly-style name of the opcode.
func (op OpCode) String() string {
	if info, ok := opInfoTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Instruction is an opcode with an optional immediate operand. Only push
// carries an operand; for all other instructions Value is zero and is still
// absorbed into the program hash as zero.
type Instruction struct {
	Op    OpCode
	Value field.Element
}

// NewInstruction creates an instruction without an operand.
func NewInstruction(op OpCode) (Instruction, error) {
	info, ok := op.Info()
	if !ok {
		return Instruction{}, fmt.Errorf("unknown opcode %d", uint8(op))
	}
	if info.HasArg {
		return Instruction{}, fmt.Errorf("%s requires an immediate operand", info.Name)
	}
	return Instruction{Op: op}, nil
}

// NewPushInstruction creates a push with the given immediate.
func NewPushInstruction(value field.Element) Instruction {
	return Instruction{Op: OpPush, Value: value}
}

// String renders the instruction in dotted assembly style, e.g. "push.5".
func (in Instruction) String() string {
	if info, ok := in.Op.Info(); ok && info.HasArg {
		return fmt.Sprintf("%s.%s", info.Name, in.Value.String())
	}
	return in.Op.String()
}
