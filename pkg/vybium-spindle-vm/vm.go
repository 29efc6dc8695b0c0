package vybiumspindlevm

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/protocols"
)

// Execute runs a program on the VM and generates a STARK proof of the
// execution. The returned outputs are the top numOutputs stack values after
// termination, as canonical integers. A nil inputs bundle means no inputs;
// nil options mean defaults. The proof binds the program hash, the public
// inputs and the outputs; tape contents stay secret.
func Execute(p *Program, inputs *ProgramInputs, numOutputs int, options *ProofOptions) ([]uint64, *StarkProof, error) {
	if p == nil {
		return nil, nil, newError(ErrCodeMalformedGraph, "program cannot be nil", nil)
	}
	if numOutputs < 0 || numOutputs > MaxOutputs {
		return nil, nil, newError(ErrCodeInvalidInputs,
			fmt.Sprintf("output count %d is outside [0, %d]", numOutputs, MaxOutputs), nil)
	}
	if options != nil {
		if err := options.Validate(); err != nil {
			return nil, nil, newError(ErrCodeInvalidOptions, "invalid proof options", err)
		}
	}

	outputs, proof, err := protocols.Prove(p, inputs, numOutputs, options)
	if err != nil {
		if code := executionCode(err); code != ErrCodeUnknown {
			return nil, nil, newError(code, "program execution failed", err)
		}
		return nil, nil, newError(ErrCodeProverFailed, "proof generation failed", err)
	}
	return toUint64(outputs), proof, nil
}

// Verify checks a proof against the claim that the program with the given
// hash, run on the public inputs, terminates with the given outputs. It
// returns (true, nil) when the proof holds and (false, *VMError) naming the
// failed check otherwise. The program itself is never needed.
func Verify(programHash [32]byte, publicInputs, outputs []uint64, proof *StarkProof) (bool, error) {
	if len(publicInputs) > MaxPublicInputs {
		return false, newError(ErrCodeInvalidInputs,
			fmt.Sprintf("too many public inputs: %d exceeds %d", len(publicInputs), MaxPublicInputs), nil)
	}
	if len(outputs) > MaxOutputs {
		return false, newError(ErrCodeInvalidInputs,
			fmt.Sprintf("too many outputs: %d exceeds %d", len(outputs), MaxOutputs), nil)
	}
	if proof == nil {
		return false, newError(ErrCodeInvalidProof, "proof cannot be nil", nil)
	}

	err := protocols.Verify(crypto.DigestFromBytes(programHash), toElements(publicInputs), toElements(outputs), proof)
	if err == nil {
		return true, nil
	}
	code := verificationCode(err)
	message := "proof verification failed"
	if code == ErrCodeInvalidProof {
		message = "invalid proof"
	}
	return false, newError(code, message, err)
}

func toElements(values []uint64) []Element {
	out := make([]Element, len(values))
	for i, v := range values {
		out[i] = field.New(v)
	}
	return out
}

func toUint64(values []Element) []uint64 {
	out := make([]uint64, len(values))
	for i, v := range values {
		out[i] = v.Value()
	}
	return out
}
