// Package vybiumspindlevm provides a zero-knowledge stack VM with Vybium Spindle VM.
//
// Vybium Spindle VM executes block-structured stack programs and produces a
// zkSTARK certifying that a program with a known hash, run on public inputs,
// terminated with the claimed outputs. Verification needs the program hash,
// the public inputs and outputs, and the proof; never the program itself and
// never a re-execution.
//
// # Features
//
// - Complete zkSTARK prover and verifier over the 64-bit Goldilocks field
// - Stack VM with a 25-instruction ISA and two secret input tapes
// - Block-structured programs: spans, groups, binary switches and repeats
// - Rescue-based program attestation accumulated inside the trace
// - DEEP composition and FRI low-degree testing with configurable blowup
// - SHA3-256, BLAKE2b-256 or SHA-256 commitments and Fiat-Shamir transcript
//
// # Quick Start
//
// Building a program, executing it and generating a proof:
//
//	b := vybiumspindlevm.NewBuilder()
//	add, _ := vybiumspindlevm.NewInstruction(vybiumspindlevm.OpAdd)
//	span, err := b.Span(
//		vybiumspindlevm.NewPushInstruction(vybiumspindlevm.NewElement(3)),
//		vybiumspindlevm.NewPushInstruction(vybiumspindlevm.NewElement(4)),
//		add,
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	program, err := b.Build(span)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	outputs, proof, err := vybiumspindlevm.Execute(program, nil, 1, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(outputs[0]) // 7
//
// Verifying the proof against the public claim:
//
//	ok, err := vybiumspindlevm.Verify(program.Hash(), nil, outputs, proof)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if ok {
//		fmt.Println("Proof is valid!")
//	}
//
// Secret inputs go on the tapes and never appear in the proof:
//
//	inputs, err := vybiumspindlevm.NewProgramInputs(nil, tapeA, tapeB)
//
// # Architecture
//
// Vybium Spindle VM uses a hybrid public/private architecture:
//
// - pkg/vybium-spindle-vm/: Public API (this package)
// - internal/vybium-spindle-vm/: Private implementation (not importable)
//
// The public API provides stable interfaces for:
// - Program construction and hashing
// - VM execution with proof generation
// - Proof verification and serialization
//
// Implementation details in internal/ can be refactored without breaking the public API.
//
// # References
//
// - STARK Paper: https://eprint.iacr.org/2018/046
// - DEEP-FRI Paper: https://eprint.iacr.org/2019/336
// - Rescue Paper: https://eprint.iacr.org/2019/426
//
// # License
//
// See LICENSE file in the repository root.
package vybiumspindlevm
