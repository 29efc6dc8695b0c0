package air

import (
	"testing"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/program"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/vm"
)

const testMaxLength = 1024

func instr(t *testing.T, op program.OpCode) program.Instruction {
	t.Helper()
	in, err := program.NewInstruction(op)
	if err != nil {
		t.Fatalf("Failed to create instruction: %v", err)
	}
	return in
}

func push(v uint64) program.Instruction {
	return program.NewPushInstruction(field.New(v))
}

func spanProgram(t *testing.T, ops ...program.Instruction) *program.Program {
	t.Helper()
	b := program.NewBuilder()
	span, err := b.Span(ops...)
	if err != nil {
		t.Fatalf("Failed to create span: %v", err)
	}
	p, err := b.Build(span)
	if err != nil {
		t.Fatalf("Failed to build program: %v", err)
	}
	return p
}

func switchProgram(t *testing.T, trueVal, falseVal uint64) *program.Program {
	t.Helper()
	b := program.NewBuilder()
	tb, err := b.Span(push(trueVal))
	if err != nil {
		t.Fatalf("Failed to create true branch: %v", err)
	}
	fb, err := b.Span(push(falseVal))
	if err != nil {
		t.Fatalf("Failed to create false branch: %v", err)
	}
	sw, err := b.Switch(tb, fb)
	if err != nil {
		t.Fatalf("Failed to create switch: %v", err)
	}
	p, err := b.Build(sw)
	if err != nil {
		t.Fatalf("Failed to build program: %v", err)
	}
	return p
}

func publicInputs(t *testing.T, values ...uint64) *vm.ProgramInputs {
	t.Helper()
	elems := make([]field.Element, len(values))
	for i, v := range values {
		elems[i] = field.New(v)
	}
	inputs, err := vm.FromPublic(elems)
	if err != nil {
		t.Fatalf("Failed to create inputs: %v", err)
	}
	return inputs
}

// airFor builds the constraint system for a completed run.
func airFor(t *testing.T, p *program.Program, inputs *vm.ProgramInputs, trace *vm.ExecutionTrace, outputs []field.Element) *Air {
	t.Helper()
	if len(outputs) > vm.MaxOutputs {
		outputs = outputs[:vm.MaxOutputs]
	}
	a, err := New(trace.Layout(), trace.Length(), p.HashElements(), inputs.PublicInputs(), outputs)
	if err != nil {
		t.Fatalf("Failed to build constraint system: %v", err)
	}
	return a
}

// periodicAt returns the periodic column values for row r.
func periodicAt(cycles [][]field.Element, r int) []field.Element {
	vals := make([]field.Element, len(cycles))
	for c := range cycles {
		vals[c] = cycles[c][r%len(cycles[c])]
	}
	return vals
}

// checkSatisfied evaluates every transition over all adjacent row pairs and
// every boundary against its pinned row.
func checkSatisfied(t *testing.T, a *Air, trace *vm.ExecutionTrace) {
	t.Helper()
	cycles := a.PeriodicCycles()
	n := trace.Length()
	for r := 0; r+1 < n; r++ {
		cur := trace.Row(r)
		next := trace.Row(r + 1)
		per := periodicAt(cycles, r)
		for _, tr := range a.Transitions() {
			if got := tr.Eval(cur, next, per); !got.IsZero() {
				t.Fatalf("constraint %q = %s at row %d, expected zero", tr.Name, got, r)
			}
		}
	}
	for _, bc := range a.Boundaries() {
		row := 0
		if bc.Last {
			row = n - 1
		}
		if got := trace.Get(bc.Column, row); !got.Equal(bc.Value) {
			t.Fatalf("boundary %q: trace has %s, claim pins %s", bc.Name, got, bc.Value)
		}
	}
}

func countViolations(a *Air, trace *vm.ExecutionTrace) int {
	cycles := a.PeriodicCycles()
	n := trace.Length()
	count := 0
	for r := 0; r+1 < n; r++ {
		cur := trace.Row(r)
		next := trace.Row(r + 1)
		per := periodicAt(cycles, r)
		for _, tr := range a.Transitions() {
			if !tr.Eval(cur, next, per).IsZero() {
				count++
			}
		}
	}
	for _, bc := range a.Boundaries() {
		row := 0
		if bc.Last {
			row = n - 1
		}
		if !trace.Get(bc.Column, row).Equal(bc.Value) {
			count++
		}
	}
	return count
}

func runAndCheck(t *testing.T, p *program.Program, inputs *vm.ProgramInputs) (*vm.ExecutionTrace, *Air) {
	t.Helper()
	trace, outputs, err := vm.Run(p, inputs, testMaxLength)
	if err != nil {
		t.Fatalf("Failed to run program: %v", err)
	}
	a := airFor(t, p, inputs, trace, outputs)
	checkSatisfied(t, a, trace)
	return trace, a
}

// TestConstraintsAddProgram tests a straight-line arithmetic trace
func TestConstraintsAddProgram(t *testing.T) {
	p := spanProgram(t, push(3), push(5), instr(t, program.OpAdd))
	runAndCheck(t, p, vm.NoInputs())
}

// TestConstraintsFibonacci tests a long repeat-driven trace
func TestConstraintsFibonacci(t *testing.T) {
	b := program.NewBuilder()
	body, err := b.Span(
		instr(t, program.OpSwap),
		instr(t, program.OpDup2),
		instr(t, program.OpDrop),
		instr(t, program.OpAdd),
	)
	if err != nil {
		t.Fatalf("Failed to create body: %v", err)
	}
	rep, err := b.Repeat(body, 49)
	if err != nil {
		t.Fatalf("Failed to create repeat: %v", err)
	}
	p, err := b.Build(rep)
	if err != nil {
		t.Fatalf("Failed to build program: %v", err)
	}
	runAndCheck(t, p, publicInputs(t, 1, 0))
}

// TestConstraintsSwitchPaths tests both branches of one switch program
func TestConstraintsSwitchPaths(t *testing.T) {
	p := switchProgram(t, 10, 20)
	t.Run("true", func(t *testing.T) {
		runAndCheck(t, p, publicInputs(t, 1))
	})
	t.Run("false", func(t *testing.T) {
		runAndCheck(t, p, publicInputs(t, 0))
	})
}

// TestConstraintsNestedSwitch tests two context slots in flight
func TestConstraintsNestedSwitch(t *testing.T) {
	b := program.NewBuilder()
	head, err := b.Span(push(1), push(1))
	if err != nil {
		t.Fatalf("Failed to create head: %v", err)
	}
	it, err := b.Span(push(100))
	if err != nil {
		t.Fatalf("Failed to create inner true branch: %v", err)
	}
	ifb, err := b.Span(push(200))
	if err != nil {
		t.Fatalf("Failed to create inner false branch: %v", err)
	}
	inner, err := b.Switch(it, ifb)
	if err != nil {
		t.Fatalf("Failed to create inner switch: %v", err)
	}
	ofb, err := b.Span(instr(t, program.OpDrop), push(300))
	if err != nil {
		t.Fatalf("Failed to create outer false branch: %v", err)
	}
	outer, err := b.Switch(inner, ofb)
	if err != nil {
		t.Fatalf("Failed to create outer switch: %v", err)
	}
	root, err := b.Group(head, outer)
	if err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}
	p, err := b.Build(root)
	if err != nil {
		t.Fatalf("Failed to build program: %v", err)
	}
	runAndCheck(t, p, vm.NoInputs())
}

// TestConstraintsHashr tests the gated permutation round at both a real
// schedule phase and the idle all-zero phase
func TestConstraintsHashr(t *testing.T) {
	t.Run("phase6", func(t *testing.T) {
		p := spanProgram(t,
			push(1), push(2), push(3), push(4), push(5), push(6),
			instr(t, program.OpHashR),
		)
		runAndCheck(t, p, vm.NoInputs())
	})
	t.Run("phase7", func(t *testing.T) {
		p := spanProgram(t,
			push(1), push(2), push(3), push(4), push(5), push(6), push(7),
			instr(t, program.OpHashR),
		)
		runAndCheck(t, p, vm.NoInputs())
	})
}

// TestConstraintsTapes tests nondeterministic tape reads: the read target
// registers carry witness values and stay unconstrained
func TestConstraintsTapes(t *testing.T) {
	p := spanProgram(t,
		instr(t, program.OpRead),
		instr(t, program.OpRead2),
		instr(t, program.OpAdd),
	)
	inputs, err := vm.NewProgramInputs(nil,
		[]field.Element{field.New(11)},
		[]field.Element{field.New(13), field.New(17)},
	)
	if err != nil {
		t.Fatalf("Failed to create inputs: %v", err)
	}
	runAndCheck(t, p, inputs)
}

// TestConstraintsOpsMix runs most of the instruction set in one span,
// growing the stack past eight registers
func TestConstraintsOpsMix(t *testing.T) {
	p := spanProgram(t,
		push(7), push(7), instr(t, program.OpEq),
		instr(t, program.OpNot), instr(t, program.OpNot),
		push(2), push(3), push(4), push(5),
		instr(t, program.OpDup4),
		instr(t, program.OpSwap4),
		instr(t, program.OpRoll8),
		instr(t, program.OpRoll4),
		instr(t, program.OpSwap2),
		instr(t, program.OpDrop4),
		instr(t, program.OpDrop), instr(t, program.OpDrop),
		instr(t, program.OpDrop), instr(t, program.OpDrop),
		push(1), push(9), push(8),
		instr(t, program.OpChoose),
		instr(t, program.OpSwap),
		push(44), push(43), push(34), push(33),
		instr(t, program.OpChoose2),
		instr(t, program.OpNeg),
		instr(t, program.OpAdd),
		instr(t, program.OpDup2),
		instr(t, program.OpDrop), instr(t, program.OpDrop),
		instr(t, program.OpInv),
		instr(t, program.OpAssert),
		instr(t, program.OpPad2),
		instr(t, program.OpDrop), instr(t, program.OpDrop),
		instr(t, program.OpDup),
		instr(t, program.OpMul),
		push(64), instr(t, program.OpEq),
		instr(t, program.OpNoop),
		instr(t, program.OpAssert),
	)
	trace, _ := runAndCheck(t, p, vm.NoInputs())
	if trace.Layout().StackWidth() != 16 {
		t.Errorf("stack width = %d, expected 16", trace.Layout().StackWidth())
	}
}

// TestConstraintsRepeatWithSwitch tests context churn inside a loop
func TestConstraintsRepeatWithSwitch(t *testing.T) {
	b := program.NewBuilder()
	double, err := b.Span(instr(t, program.OpDup), instr(t, program.OpAdd), push(1))
	if err != nil {
		t.Fatalf("Failed to create doubling span: %v", err)
	}
	tb, err := b.Span(push(1), instr(t, program.OpAdd))
	if err != nil {
		t.Fatalf("Failed to create true branch: %v", err)
	}
	fb, err := b.Span(instr(t, program.OpNoop), instr(t, program.OpNoop))
	if err != nil {
		t.Fatalf("Failed to create false branch: %v", err)
	}
	sw, err := b.Switch(tb, fb)
	if err != nil {
		t.Fatalf("Failed to create switch: %v", err)
	}
	body, err := b.Group(double, sw)
	if err != nil {
		t.Fatalf("Failed to create body: %v", err)
	}
	rep, err := b.Repeat(body, 3)
	if err != nil {
		t.Fatalf("Failed to create repeat: %v", err)
	}
	p, err := b.Build(rep)
	if err != nil {
		t.Fatalf("Failed to build program: %v", err)
	}

	trace, outputs, err := vm.Run(p, publicInputs(t, 1), testMaxLength)
	if err != nil {
		t.Fatalf("Failed to run program: %v", err)
	}
	if outputs[0].Value() != 15 {
		t.Fatalf("output = %d, expected 15", outputs[0].Value())
	}
	a := airFor(t, p, publicInputs(t, 1), trace, outputs)
	checkSatisfied(t, a, trace)
}

// TestTamperedTraceViolates flips single cells and expects the system to
// notice every time
func TestTamperedTraceViolates(t *testing.T) {
	build := func() (*vm.ExecutionTrace, *Air) {
		p := switchProgram(t, 10, 20)
		trace, outputs, err := vm.Run(p, publicInputs(t, 1), testMaxLength)
		if err != nil {
			t.Fatalf("Failed to run program: %v", err)
		}
		return trace, airFor(t, p, publicInputs(t, 1), trace, outputs)
	}

	t.Run("clean", func(t *testing.T) {
		trace, a := build()
		if n := countViolations(a, trace); n != 0 {
			t.Fatalf("clean trace has %d violations", n)
		}
	})
	t.Run("stack", func(t *testing.T) {
		trace, a := build()
		col := trace.Column(trace.Layout().Stack(0))
		col[1] = col[1].Add(field.One())
		if countViolations(a, trace) == 0 {
			t.Fatal("tampered stack register went unnoticed")
		}
	})
	t.Run("sponge", func(t *testing.T) {
		trace, a := build()
		col := trace.Column(trace.Layout().Sponge(0))
		col[4] = col[4].Add(field.One())
		if countViolations(a, trace) == 0 {
			t.Fatal("tampered sponge register went unnoticed")
		}
	})
	t.Run("flow", func(t *testing.T) {
		trace, a := build()
		col := trace.Column(trace.Layout().FlowBit(0))
		col[3] = field.One().Sub(col[3])
		if countViolations(a, trace) == 0 {
			t.Fatal("tampered flow bit went unnoticed")
		}
	})
	t.Run("digest", func(t *testing.T) {
		trace, a := build()
		col := trace.Column(trace.Layout().Digest(0))
		col[4] = col[4].Add(field.One())
		if countViolations(a, trace) == 0 {
			t.Fatal("tampered digest buffer went unnoticed")
		}
	})
}

// TestBoundaryClaimMismatch pins a wrong output and expects a boundary miss
func TestBoundaryClaimMismatch(t *testing.T) {
	p := spanProgram(t, push(3), push(5), instr(t, program.OpAdd))
	trace, outputs, err := vm.Run(p, vm.NoInputs(), testMaxLength)
	if err != nil {
		t.Fatalf("Failed to run program: %v", err)
	}
	wrong := []field.Element{outputs[0].Add(field.One())}
	a, err := New(trace.Layout(), trace.Length(), p.HashElements(), nil, wrong)
	if err != nil {
		t.Fatalf("Failed to build constraint system: %v", err)
	}
	if countViolations(a, trace) == 0 {
		t.Fatal("wrong output claim went unnoticed")
	}
}

// TestAirValidation tests constructor rejection of malformed claims
func TestAirValidation(t *testing.T) {
	layout, err := vm.NewTraceLayout(1, 8)
	if err != nil {
		t.Fatalf("Failed to create layout: %v", err)
	}
	var hash crypto.Digest

	if _, err := New(layout, 100, hash, nil, nil); err == nil {
		t.Error("expected error for non power of two length")
	}
	if _, err := New(layout, 8, hash, nil, nil); err == nil {
		t.Error("expected error for undersized trace")
	}
	long := make([]field.Element, vm.MaxPublicInputs+1)
	if _, err := New(layout, 16, hash, long, nil); err == nil {
		t.Error("expected error for too many public inputs")
	}
	if _, err := New(layout, 16, hash, nil, long); err == nil {
		t.Error("expected error for too many outputs")
	}
}

// TestPeriodicCycleValues pins the hashr constant stream
func TestPeriodicCycleValues(t *testing.T) {
	layout, err := vm.NewTraceLayout(1, 8)
	if err != nil {
		t.Fatalf("Failed to create layout: %v", err)
	}
	a, err := New(layout, 16, crypto.Digest{}, nil, nil)
	if err != nil {
		t.Fatalf("Failed to build constraint system: %v", err)
	}

	cycles := a.PeriodicCycles()
	if len(cycles) != NumPeriodicColumns {
		t.Fatalf("periodic columns = %d, expected %d", len(cycles), NumPeriodicColumns)
	}
	for c, cycle := range cycles {
		if len(cycle) != PeriodicCycleLength {
			t.Fatalf("cycle %d length = %d, expected %d", c, len(cycle), PeriodicCycleLength)
		}
	}
	c0, c1 := crypto.ScheduleConstants(3)
	for k := 0; k < crypto.StateWidth; k++ {
		if !cycles[k][3].Equal(c0[k]) {
			t.Errorf("cycle[%d][3] does not match the first constant vector", k)
		}
		if !cycles[crypto.StateWidth+k][3].Equal(c1[k]) {
			t.Errorf("cycle[%d][3] does not match the second constant vector", crypto.StateWidth+k)
		}
	}
	for k := 0; k < NumPeriodicColumns; k++ {
		if !cycles[k][PeriodicCycleLength-1].IsZero() {
			t.Errorf("cycle[%d] idle phase is nonzero", k)
		}
	}
}

// TestConstraintInventory pins the deterministic constraint count and the
// degree bound the composition relies on
func TestConstraintInventory(t *testing.T) {
	p := switchProgram(t, 10, 20)
	trace, outputs, err := vm.Run(p, publicInputs(t, 1), testMaxLength)
	if err != nil {
		t.Fatalf("Failed to run program: %v", err)
	}
	a := airFor(t, p, publicInputs(t, 1), trace, outputs)
	l := trace.Layout()

	wantTransitions := 86 + 18*l.ContextDepth() + l.StackWidth()
	if len(a.Transitions()) != wantTransitions {
		t.Errorf("transitions = %d, expected %d", len(a.Transitions()), wantTransitions)
	}
	wantBoundaries := 14 + 6*l.ContextDepth() + l.StackWidth() + len(outputs)
	if len(a.Boundaries()) != wantBoundaries {
		t.Errorf("boundaries = %d, expected %d", len(a.Boundaries()), wantBoundaries)
	}
	if a.NumConstraints() != wantTransitions+wantBoundaries {
		t.Errorf("NumConstraints() = %d, expected %d", a.NumConstraints(), wantTransitions+wantBoundaries)
	}

	seen := make(map[string]bool)
	for _, tr := range a.Transitions() {
		if tr.Degree < 1 || tr.Degree > MaxConstraintDegree {
			t.Errorf("constraint %q has degree %d outside [1, %d]", tr.Name, tr.Degree, MaxConstraintDegree)
		}
		if seen[tr.Name] {
			t.Errorf("duplicate constraint name %q", tr.Name)
		}
		seen[tr.Name] = true
	}
}
