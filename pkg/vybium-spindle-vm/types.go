package vybiumspindlevm

import (
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/program"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/protocols"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/vm"
)

// Element represents an element of the 64-bit prime field
// This is the public type for field elements used throughout Vybium Spindle VM
type Element = field.Element

// Program represents an immutable block-structured VM program
type Program = program.Program

// Builder assembles a program from spans, groups, switches and repeats
type Builder = program.Builder

// Instruction represents a single VM instruction
type Instruction = program.Instruction

// OpCode identifies a VM instruction
type OpCode = program.OpCode

// BlockID references a block inside a program under construction
type BlockID = program.BlockID

// ProgramInputs carries the public inputs and the two secret input tapes
type ProgramInputs = vm.ProgramInputs

// ProofOptions configures proof generation
type ProofOptions = protocols.ProofOptions

// StarkProof represents a zkSTARK execution proof
type StarkProof = protocols.StarkProof

// HashFunc names the hash behind Merkle commitments and the transcript
type HashFunc = crypto.HashFunc

// Supported hash functions.
const (
	HashSHA3    = crypto.HashSHA3
	HashBLAKE2b = crypto.HashBLAKE2b
	HashSHA256  = crypto.HashSHA256
)

// Re-exported instruction set, in ascending code order.
const (
	OpNoop    = program.OpNoop
	OpAssert  = program.OpAssert
	OpPush    = program.OpPush
	OpRead    = program.OpRead
	OpRead2   = program.OpRead2
	OpDup     = program.OpDup
	OpDup2    = program.OpDup2
	OpDup4    = program.OpDup4
	OpPad2    = program.OpPad2
	OpDrop    = program.OpDrop
	OpDrop4   = program.OpDrop4
	OpSwap    = program.OpSwap
	OpSwap2   = program.OpSwap2
	OpSwap4   = program.OpSwap4
	OpRoll4   = program.OpRoll4
	OpRoll8   = program.OpRoll8
	OpChoose  = program.OpChoose
	OpChoose2 = program.OpChoose2
	OpAdd     = program.OpAdd
	OpMul     = program.OpMul
	OpNeg     = program.OpNeg
	OpInv     = program.OpInv
	OpNot     = program.OpNot
	OpEq      = program.OpEq
	OpHashR   = program.OpHashR
)

// MaxPublicInputs bounds how many values may seed the stack.
const MaxPublicInputs = vm.MaxPublicInputs

// MaxOutputs bounds how many values a claim may read back from the stack.
const MaxOutputs = vm.MaxOutputs

// NewElement creates a field element from a canonical integer.
func NewElement(v uint64) Element {
	return field.New(v)
}

// NewBuilder starts an empty program builder.
func NewBuilder() *Builder {
	return program.NewBuilder()
}

// NewInstruction creates an instruction without an immediate operand.
func NewInstruction(op OpCode) (Instruction, error) {
	return program.NewInstruction(op)
}

// NewPushInstruction creates a push with the given immediate.
func NewPushInstruction(value Element) Instruction {
	return program.NewPushInstruction(value)
}

// NewProgramInputs builds the input bundle: public values seed the stack,
// the two tapes feed read and read2.
func NewProgramInputs(public, tapeA, tapeB []Element) (*ProgramInputs, error) {
	inputs, err := vm.NewProgramInputs(public, tapeA, tapeB)
	if err != nil {
		return nil, newError(ErrCodeInvalidInputs, "invalid program inputs", err)
	}
	return inputs, nil
}

// DefaultProofOptions returns the standard proof parameters.
func DefaultProofOptions() *ProofOptions {
	return protocols.DefaultProofOptions()
}

// DeserializeProof decodes a proof produced by StarkProof.Serialize.
func DeserializeProof(data []byte) (*StarkProof, error) {
	proof, err := protocols.Deserialize(data)
	if err != nil {
		return nil, newError(ErrCodeInvalidProof, "failed to decode proof", err)
	}
	return proof, nil
}
