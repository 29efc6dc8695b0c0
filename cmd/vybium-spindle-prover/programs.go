package main

import (
	"fmt"

	vybiumspindlevm "github.com/vybium/vybium-spindle-vm/pkg/vybium-spindle-vm"
)

// demoProgram bundles a built-in program with its inputs and claim shape.
type demoProgram struct {
	name       string
	program    *vybiumspindlevm.Program
	inputs     *vybiumspindlevm.ProgramInputs
	public     []uint64
	numOutputs int
}

// builtinProgram returns one of the built-in demo programs.
func builtinProgram(name string, condition bool) (*demoProgram, error) {
	switch name {
	case "add":
		return addProgram()
	case "branch":
		return branchProgram(condition)
	case "fibonacci":
		return fibonacciProgram()
	default:
		return nil, fmt.Errorf("unknown program %q, expected add, branch or fibonacci", name)
	}
}

// addProgram computes 3 + 5.
func addProgram() (*demoProgram, error) {
	b := vybiumspindlevm.NewBuilder()
	add, err := vybiumspindlevm.NewInstruction(vybiumspindlevm.OpAdd)
	if err != nil {
		return nil, err
	}
	span, err := b.Span(
		vybiumspindlevm.NewPushInstruction(vybiumspindlevm.NewElement(3)),
		vybiumspindlevm.NewPushInstruction(vybiumspindlevm.NewElement(5)),
		add,
	)
	if err != nil {
		return nil, err
	}
	p, err := b.Build(span)
	if err != nil {
		return nil, err
	}
	return &demoProgram{name: "add", program: p, numOutputs: 1}, nil
}

// branchProgram computes x+5 or x*7 depending on the condition on top of the
// stack. Both executions verify against the same program hash.
func branchProgram(condition bool) (*demoProgram, error) {
	b := vybiumspindlevm.NewBuilder()
	add, err := vybiumspindlevm.NewInstruction(vybiumspindlevm.OpAdd)
	if err != nil {
		return nil, err
	}
	mul, err := vybiumspindlevm.NewInstruction(vybiumspindlevm.OpMul)
	if err != nil {
		return nil, err
	}
	trueBranch, err := b.Span(vybiumspindlevm.NewPushInstruction(vybiumspindlevm.NewElement(5)), add)
	if err != nil {
		return nil, err
	}
	falseBranch, err := b.Span(vybiumspindlevm.NewPushInstruction(vybiumspindlevm.NewElement(7)), mul)
	if err != nil {
		return nil, err
	}
	root, err := b.Switch(trueBranch, falseBranch)
	if err != nil {
		return nil, err
	}
	p, err := b.Build(root)
	if err != nil {
		return nil, err
	}

	cond := uint64(0)
	if condition {
		cond = 1
	}
	public := []uint64{cond, 10}
	inputs, err := vybiumspindlevm.NewProgramInputs(
		[]vybiumspindlevm.Element{vybiumspindlevm.NewElement(cond), vybiumspindlevm.NewElement(10)},
		nil, nil,
	)
	if err != nil {
		return nil, err
	}
	return &demoProgram{name: "branch", program: p, inputs: inputs, public: public, numOutputs: 1}, nil
}

// fibonacciProgram iterates the Fibonacci step 49 times over the seeded
// stack [1, 0], leaving F(50) = 12586269025 on top.
func fibonacciProgram() (*demoProgram, error) {
	b := vybiumspindlevm.NewBuilder()
	ops := make([]vybiumspindlevm.Instruction, 0, 4)
	for _, op := range []vybiumspindlevm.OpCode{
		vybiumspindlevm.OpSwap,
		vybiumspindlevm.OpDup2,
		vybiumspindlevm.OpDrop,
		vybiumspindlevm.OpAdd,
	} {
		in, err := vybiumspindlevm.NewInstruction(op)
		if err != nil {
			return nil, err
		}
		ops = append(ops, in)
	}
	body, err := b.Span(ops...)
	if err != nil {
		return nil, err
	}
	root, err := b.Repeat(body, 49)
	if err != nil {
		return nil, err
	}
	p, err := b.Build(root)
	if err != nil {
		return nil, err
	}

	public := []uint64{1, 0}
	inputs, err := vybiumspindlevm.NewProgramInputs(
		[]vybiumspindlevm.Element{vybiumspindlevm.NewElement(1), vybiumspindlevm.NewElement(0)},
		nil, nil,
	)
	if err != nil {
		return nil, err
	}
	return &demoProgram{name: "fibonacci", program: p, inputs: inputs, public: public, numOutputs: 1}, nil
}
