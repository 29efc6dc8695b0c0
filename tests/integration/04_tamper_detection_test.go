package integration_test

import (
	"testing"

	vybiumspindlevm "github.com/vybium/vybium-spindle-vm/pkg/vybium-spindle-vm"
)

// Test04_TamperDetection tests that forged claims and corrupted proofs are
// rejected:
// 1. A flipped output claim fails
// 2. A wrong program hash fails
// 3. Corrupted proof bytes fail to decode or to verify
func Test04_TamperDetection(t *testing.T) {
	t.Log("=== Test 04: Tamper Detection ===")

	t.Log("Step 1: Producing an honest proof...")
	builder := vybiumspindlevm.NewBuilder()
	mul, err := vybiumspindlevm.NewInstruction(vybiumspindlevm.OpMul)
	if err != nil {
		t.Fatalf("Failed to create mul instruction: %v", err)
	}
	span, err := builder.Span(
		vybiumspindlevm.NewPushInstruction(vybiumspindlevm.NewElement(6)),
		vybiumspindlevm.NewPushInstruction(vybiumspindlevm.NewElement(7)),
		mul,
	)
	if err != nil {
		t.Fatalf("Failed to create span: %v", err)
	}
	program, err := builder.Build(span)
	if err != nil {
		t.Fatalf("Failed to build program: %v", err)
	}
	outputs, proof, err := vybiumspindlevm.Execute(program, nil, 1, nil)
	if err != nil {
		t.Fatalf("Failed to execute: %v", err)
	}
	if outputs[0] != 42 {
		t.Fatalf("program returned %d, expected 42", outputs[0])
	}

	t.Log("Step 2: Flipped output claim must fail...")
	ok, err := vybiumspindlevm.Verify(program.Hash(), nil, []uint64{43}, proof)
	if ok || err == nil {
		t.Fatal("forged output claim accepted")
	}
	t.Logf("  ✓ Rejected: %v", err)

	t.Log("Step 3: Wrong program hash must fail...")
	var wrongHash [32]byte
	wrongHash[5] = 0xAA
	ok, err = vybiumspindlevm.Verify(wrongHash, nil, outputs, proof)
	if ok || err == nil {
		t.Fatal("wrong program hash accepted")
	}
	t.Logf("  ✓ Rejected: %v", err)

	t.Log("Step 4: Corrupted proof bytes must fail...")
	data, err := proof.Serialize()
	if err != nil {
		t.Fatalf("Failed to serialize proof: %v", err)
	}
	corrupted := 0
	for _, offset := range []int{1, len(data) / 4, len(data) / 2, len(data) - 2} {
		mangled := make([]byte, len(data))
		copy(mangled, data)
		mangled[offset] ^= 0xFF

		decoded, err := vybiumspindlevm.DeserializeProof(mangled)
		if err != nil {
			corrupted++
			continue
		}
		ok, err := vybiumspindlevm.Verify(program.Hash(), nil, outputs, decoded)
		if ok || err == nil {
			t.Fatalf("corrupted proof at offset %d accepted", offset)
		}
		corrupted++
	}
	t.Logf("  ✓ All %d corrupted variants rejected", corrupted)
}
