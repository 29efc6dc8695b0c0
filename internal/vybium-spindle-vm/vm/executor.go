package vm

import (
	"errors"
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/program"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/utils"
)

// Execution errors. All are detected during trace generation; no partial
// trace is ever returned alongside one of these.
var (
	ErrStackUnderflow   = errors.New("stack underflow")
	ErrStackOverflow    = errors.New("stack overflow")
	ErrTapeExhausted    = errors.New("tape exhausted")
	ErrStepLimit        = errors.New("step limit exceeded")
	ErrAssertionFailed  = errors.New("assertion failed")
	ErrDivideByZero     = errors.New("divide by zero")
	ErrInvalidCondition = errors.New("invalid condition")
)

// stepRecord captures the machine state at one step plus the control-flow
// and instruction annotations of the step. Records are materialized into
// trace columns once the final stack width is known.
type stepRecord struct {
	sponge [SpongeWidth]field.Element
	bd     [DigestWidth]field.Element
	ctx    [][SpongeWidth]field.Element
	flow   FlowOp
	op     program.OpCode
	opVal  field.Element
	aux0   field.Element
	aux1   field.Element
	helper field.Element
	stack  []field.Element
}

// machine is the interpreter state. The operand stack keeps its top at the
// end of the slice; records store it top first, matching the st registers.
type machine struct {
	prog   *program.Program
	inputs *ProgramInputs
	limit  int

	sponge [SpongeWidth]field.Element
	bd     [DigestWidth]field.Element
	ctx    [][SpongeWidth]field.Element
	stack  []field.Element
	posA   int
	posB   int

	steps    []stepRecord
	step     int
	maxDepth int
}

// ctlFrame tracks progress through one block during the iterative walk.
type ctlFrame struct {
	id        program.BlockID
	pos       int
	iter      int
	entered   bool
	takenTrue bool
}

// Run executes a program and records the execution trace. It returns the
// trace padded to a power-of-two height and the final stack, top first.
// maxLength bounds the padded height.
func Run(p *program.Program, inputs *ProgramInputs, maxLength int) (*ExecutionTrace, []field.Element, error) {
	if p == nil {
		return nil, nil, fmt.Errorf("program cannot be nil")
	}
	if inputs == nil {
		inputs = NoInputs()
	}
	if maxLength < MinTraceLength || !utils.IsPowerOfTwo(maxLength) {
		return nil, nil, fmt.Errorf("invalid max trace length %d: must be a power of two >= %d", maxLength, MinTraceLength)
	}

	m := newMachine(p, inputs, maxLength)
	if err := m.run(); err != nil {
		return nil, nil, err
	}
	trace, err := m.buildTrace()
	if err != nil {
		return nil, nil, err
	}
	return trace, m.outputs(), nil
}

func newMachine(p *program.Program, inputs *ProgramInputs, limit int) *machine {
	m := &machine{prog: p, inputs: inputs, limit: limit}
	// Public inputs seed the stack with the first input on top.
	for i := len(inputs.public) - 1; i >= 0; i-- {
		m.stack = append(m.stack, inputs.public[i])
	}
	m.maxDepth = len(m.stack)
	return m
}

func (m *machine) run() error {
	ctl := []ctlFrame{{id: m.prog.Root()}}

	for len(ctl) > 0 {
		top := &ctl[len(ctl)-1]
		blk, err := m.prog.BlockAt(top.id)
		if err != nil {
			return err
		}

		switch blk.Kind {
		case program.KindSpan:
			for _, in := range blk.Ops {
				if err := m.executeInstruction(in); err != nil {
					return err
				}
			}
			ctl = ctl[:len(ctl)-1]

		case program.KindGroup:
			if top.pos < len(blk.Children) {
				child := blk.Children[top.pos]
				top.pos++
				ctl = append(ctl, ctlFrame{id: child})
				continue
			}
			ctl = ctl[:len(ctl)-1]

		case program.KindRepeat:
			if top.iter < blk.Count {
				top.iter++
				ctl = append(ctl, ctlFrame{id: blk.Body})
				continue
			}
			ctl = ctl[:len(ctl)-1]

		case program.KindSwitch:
			if !top.entered {
				taken, err := m.enterSwitch()
				if err != nil {
					return err
				}
				top.entered = true
				top.takenTrue = taken
				branch := blk.TrueBranch
				if !taken {
					branch = blk.FalseBranch
				}
				ctl = append(ctl, ctlFrame{id: branch})
				continue
			}
			if err := m.leaveSwitch(top.id, top.takenTrue); err != nil {
				return err
			}
			ctl = ctl[:len(ctl)-1]

		default:
			return fmt.Errorf("block %d has unknown kind %d", top.id, blk.Kind)
		}
	}

	// Final state row. Void rows copy every register, so padding repeats it.
	m.step = len(m.steps)
	return m.record(stepRecord{flow: FlowVoid})
}

// record snapshots the machine state into a step row. The annotations in
// rec describe the step; the state fields are filled here.
func (m *machine) record(rec stepRecord) error {
	if len(m.steps)+1 > m.limit {
		return fmt.Errorf("%w: trace would exceed %d steps", ErrStepLimit, m.limit)
	}
	rec.sponge = m.sponge
	rec.bd = m.bd
	rec.ctx = make([][SpongeWidth]field.Element, len(m.ctx))
	for i := range m.ctx {
		rec.ctx[i] = m.ctx[len(m.ctx)-1-i]
	}
	rec.stack = make([]field.Element, len(m.stack))
	for i := range m.stack {
		rec.stack[i] = m.stack[len(m.stack)-1-i]
	}
	m.steps = append(m.steps, rec)
	return nil
}

func (m *machine) peek(i int) field.Element {
	return m.stack[len(m.stack)-1-i]
}

func (m *machine) setTop(i int, v field.Element) {
	m.stack[len(m.stack)-1-i] = v
}

func (m *machine) drop(n int) {
	m.stack = m.stack[:len(m.stack)-n]
}

func (m *machine) push(v field.Element) error {
	m.stack = append(m.stack, v)
	if len(m.stack) > MaxStackWidth {
		return fmt.Errorf("%w at step %d: depth %d exceeds %d registers", ErrStackOverflow, m.step, len(m.stack), MaxStackWidth)
	}
	if len(m.stack) > m.maxDepth {
		m.maxDepth = len(m.stack)
	}
	return nil
}

func (m *machine) readTapeA() (field.Element, error) {
	if m.posA >= len(m.inputs.tapeA) {
		return field.Zero(), fmt.Errorf("%w at step %d: tape A has no element %d", ErrTapeExhausted, m.step, m.posA)
	}
	v := m.inputs.tapeA[m.posA]
	m.posA++
	return v, nil
}

func (m *machine) readTapeB() (field.Element, error) {
	if m.posB >= len(m.inputs.tapeB) {
		return field.Zero(), fmt.Errorf("%w at step %d: tape B has no element %d", ErrTapeExhausted, m.step, m.posB)
	}
	v := m.inputs.tapeB[m.posB]
	m.posB++
	return v, nil
}

func (m *machine) requireBinary(v field.Element, what string) error {
	if !v.IsZero() && !v.IsOne() {
		return fmt.Errorf("%w at step %d: %s value %s is not binary", ErrInvalidCondition, m.step, what, v)
	}
	return nil
}

// executeInstruction records one hacc row and applies the instruction. The
// sponge absorbs (opcode, operand) on every user instruction, which is how
// the program hash accumulates in the trace.
func (m *machine) executeInstruction(in program.Instruction) error {
	info, ok := in.Op.Info()
	if !ok {
		return fmt.Errorf("unknown opcode %d at step %d", uint8(in.Op), len(m.steps))
	}
	m.step = len(m.steps)
	if len(m.stack) < info.Requires {
		return fmt.Errorf("%w at step %d: %s requires %d operands, have %d",
			ErrStackUnderflow, m.step, in, info.Requires, len(m.stack))
	}

	rec := stepRecord{
		flow:  FlowHacc,
		op:    in.Op,
		opVal: in.Value,
		aux0:  field.New(uint64(in.Op)),
		aux1:  in.Value,
	}
	if in.Op == program.OpEq {
		if diff := m.peek(0).Sub(m.peek(1)); !diff.IsZero() {
			rec.helper = diff.Inverse()
		}
	}
	// hashr round constants follow the row's position in the 8-row cycle.
	phase := len(m.steps) % crypto.CycleLength
	if err := m.record(rec); err != nil {
		return err
	}

	crypto.AccumulatorRound(&m.sponge, field.New(uint64(in.Op)), in.Value)
	return m.applyOp(in, phase)
}

func (m *machine) applyOp(in program.Instruction, phase int) error {
	switch in.Op {
	case program.OpNoop:

	case program.OpAssert:
		v := m.peek(0)
		m.drop(1)
		if !v.IsOne() {
			return fmt.Errorf("%w at step %d: top of stack is %s", ErrAssertionFailed, m.step, v)
		}

	case program.OpPush:
		return m.push(in.Value)

	case program.OpRead:
		v, err := m.readTapeA()
		if err != nil {
			return err
		}
		return m.push(v)

	case program.OpRead2:
		a, err := m.readTapeA()
		if err != nil {
			return err
		}
		b, err := m.readTapeB()
		if err != nil {
			return err
		}
		if err := m.push(b); err != nil {
			return err
		}
		return m.push(a)

	case program.OpDup:
		return m.push(m.peek(0))

	case program.OpDup2:
		a, b := m.peek(0), m.peek(1)
		if err := m.push(b); err != nil {
			return err
		}
		return m.push(a)

	case program.OpDup4:
		a, b, c, d := m.peek(0), m.peek(1), m.peek(2), m.peek(3)
		for _, v := range []field.Element{d, c, b, a} {
			if err := m.push(v); err != nil {
				return err
			}
		}

	case program.OpPad2:
		if err := m.push(field.Zero()); err != nil {
			return err
		}
		return m.push(field.Zero())

	case program.OpDrop:
		m.drop(1)

	case program.OpDrop4:
		m.drop(4)

	case program.OpSwap:
		a, b := m.peek(0), m.peek(1)
		m.setTop(0, b)
		m.setTop(1, a)

	case program.OpSwap2:
		a, b, c, d := m.peek(0), m.peek(1), m.peek(2), m.peek(3)
		m.setTop(0, c)
		m.setTop(1, d)
		m.setTop(2, a)
		m.setTop(3, b)

	case program.OpSwap4:
		for i := 0; i < 4; i++ {
			a, b := m.peek(i), m.peek(i+4)
			m.setTop(i, b)
			m.setTop(i+4, a)
		}

	case program.OpRoll4:
		a, b, c, d := m.peek(0), m.peek(1), m.peek(2), m.peek(3)
		m.setTop(0, d)
		m.setTop(1, a)
		m.setTop(2, b)
		m.setTop(3, c)

	case program.OpRoll8:
		last := m.peek(7)
		for i := 7; i >= 1; i-- {
			m.setTop(i, m.peek(i-1))
		}
		m.setTop(0, last)

	case program.OpChoose:
		x, y, cond := m.peek(0), m.peek(1), m.peek(2)
		if err := m.requireBinary(cond, "choose condition"); err != nil {
			return err
		}
		m.drop(3)
		return m.push(cond.Mul(x).Add(field.One().Sub(cond).Mul(y)))

	case program.OpChoose2:
		x0, x1 := m.peek(0), m.peek(1)
		y0, y1 := m.peek(2), m.peek(3)
		cond := m.peek(4)
		if err := m.requireBinary(cond, "choose2 condition"); err != nil {
			return err
		}
		m.drop(6)
		notCond := field.One().Sub(cond)
		if err := m.push(cond.Mul(x1).Add(notCond.Mul(y1))); err != nil {
			return err
		}
		return m.push(cond.Mul(x0).Add(notCond.Mul(y0)))

	case program.OpAdd:
		a, b := m.peek(0), m.peek(1)
		m.drop(2)
		return m.push(a.Add(b))

	case program.OpMul:
		a, b := m.peek(0), m.peek(1)
		m.drop(2)
		return m.push(a.Mul(b))

	case program.OpNeg:
		m.setTop(0, m.peek(0).Neg())

	case program.OpInv:
		v := m.peek(0)
		if v.IsZero() {
			return fmt.Errorf("%w at step %d: inv of zero", ErrDivideByZero, m.step)
		}
		m.setTop(0, v.Inverse())

	case program.OpNot:
		v := m.peek(0)
		if err := m.requireBinary(v, "not operand"); err != nil {
			return err
		}
		m.setTop(0, field.One().Sub(v))

	case program.OpEq:
		a, b := m.peek(0), m.peek(1)
		m.drop(2)
		if a.Equal(b) {
			return m.push(field.One())
		}
		return m.push(field.Zero())

	case program.OpHashR:
		var state [crypto.StateWidth]field.Element
		for i := 0; i < crypto.StateWidth; i++ {
			state[i] = m.peek(i)
		}
		c0, c1 := crypto.ScheduleConstants(phase)
		crypto.ApplyRound(&state, c0, c1)
		for i := 0; i < crypto.StateWidth; i++ {
			m.setTop(i, state[i])
		}

	default:
		return fmt.Errorf("unhandled opcode %s at step %d", in.Op, m.step)
	}
	return nil
}

// enterSwitch records a begin row: the parent sponge moves into the context,
// a fresh sponge is seeded with the branch condition, and the condition is
// dropped from the stack. Returns which branch executes.
func (m *machine) enterSwitch() (bool, error) {
	m.step = len(m.steps)
	if len(m.stack) < 1 {
		return false, fmt.Errorf("%w at step %d: switch requires a condition on the stack", ErrStackUnderflow, m.step)
	}
	cond := m.peek(0)
	if err := m.requireBinary(cond, "switch condition"); err != nil {
		return false, err
	}
	if err := m.record(stepRecord{flow: FlowBegin, op: program.OpDrop}); err != nil {
		return false, err
	}

	m.ctx = append(m.ctx, m.sponge)
	m.sponge = [SpongeWidth]field.Element{cond}
	m.drop(1)
	return cond.IsOne(), nil
}

// leaveSwitch records the tail of a switch: the executed branch's digest
// moves to the buffer, the two branch digests fold in canonical order (true
// before false) into the block digest, the parent sponge is restored, and
// the block digest is absorbed. Both paths produce identical sponge values;
// only the row kinds and the operand column differ.
func (m *machine) leaveSwitch(id program.BlockID, takenTrue bool) error {
	hTrue, hFalse, err := m.prog.SwitchBranchDigests(id)
	if err != nil {
		return err
	}
	untaken := hFalse
	flow := FlowMerg
	if !takenTrue {
		untaken = hTrue
		flow = FlowMergf
	}

	m.step = len(m.steps)
	if err := m.record(stepRecord{flow: FlowTend}); err != nil {
		return err
	}
	m.bd = [DigestWidth]field.Element{m.sponge[0], m.sponge[1], m.sponge[2], m.sponge[3]}
	m.sponge = [SpongeWidth]field.Element{}

	for i := 0; i < DigestWidth; i++ {
		trueElem, falseElem := m.bd[0], untaken[i]
		if !takenTrue {
			trueElem, falseElem = untaken[i], m.bd[0]
		}
		m.step = len(m.steps)
		if err := m.record(stepRecord{flow: flow, opVal: untaken[i], aux0: trueElem, aux1: falseElem}); err != nil {
			return err
		}
		crypto.AccumulatorRound(&m.sponge, trueElem, falseElem)
		m.bd = [DigestWidth]field.Element{m.bd[1], m.bd[2], m.bd[3], field.Zero()}
	}

	m.step = len(m.steps)
	if err := m.record(stepRecord{flow: FlowSpop}); err != nil {
		return err
	}
	blockDigest := [DigestWidth]field.Element{m.sponge[0], m.sponge[1], m.sponge[2], m.sponge[3]}
	m.sponge = m.ctx[len(m.ctx)-1]
	m.ctx = m.ctx[:len(m.ctx)-1]
	m.bd = blockDigest

	for i := 0; i < DigestWidth; i++ {
		elem := m.bd[0]
		m.step = len(m.steps)
		if err := m.record(stepRecord{flow: FlowAbsb, aux0: elem}); err != nil {
			return err
		}
		crypto.AccumulatorRound(&m.sponge, elem, field.Zero())
		m.bd = [DigestWidth]field.Element{m.bd[1], m.bd[2], m.bd[3], field.Zero()}
	}
	return nil
}

// buildTrace materializes the recorded steps into padded register columns.
func (m *machine) buildTrace() (*ExecutionTrace, error) {
	ctxDepth := m.prog.SwitchDepth()
	if ctxDepth < MinContextDepth {
		ctxDepth = MinContextDepth
	}
	stackWidth, err := StackWidthFor(m.maxDepth)
	if err != nil {
		return nil, err
	}
	layout, err := NewTraceLayout(ctxDepth, stackWidth)
	if err != nil {
		return nil, err
	}

	length := utils.NextPowerOfTwo(len(m.steps))
	if length < MinTraceLength {
		length = MinTraceLength
	}
	trace := newExecutionTrace(layout, length)
	trace.steps = len(m.steps)

	for r := 0; r < length; r++ {
		rec := &m.steps[len(m.steps)-1]
		if r < len(m.steps) {
			rec = &m.steps[r]
		}
		m.fillRow(trace, layout, r, rec)
	}
	return trace, nil
}

func (m *machine) fillRow(trace *ExecutionTrace, layout TraceLayout, r int, rec *stepRecord) {
	cols := trace.columns
	for i := 0; i < SpongeWidth; i++ {
		cols[layout.Sponge(i)][r] = rec.sponge[i]
	}
	for i := 0; i < DigestWidth; i++ {
		cols[layout.Digest(i)][r] = rec.bd[i]
	}
	for slot := 0; slot < layout.ContextDepth(); slot++ {
		if slot < len(rec.ctx) {
			for reg := 0; reg < SpongeWidth; reg++ {
				cols[layout.Context(slot, reg)][r] = rec.ctx[slot][reg]
			}
		}
	}
	for i := 0; i < NumFlowBits; i++ {
		cols[layout.FlowBit(i)][r] = field.New(rec.flow.Bit(i))
	}
	for i := 0; i < NumInstrBits; i++ {
		cols[layout.InstrBit(i)][r] = field.New((uint64(rec.op) >> i) & 1)
	}
	cols[layout.OpValue()][r] = rec.opVal
	cols[layout.Aux(0)][r] = rec.aux0
	cols[layout.Aux(1)][r] = rec.aux1
	cols[layout.Helper()][r] = rec.helper
	for i := 0; i < layout.StackWidth(); i++ {
		if i < len(rec.stack) {
			cols[layout.Stack(i)][r] = rec.stack[i]
		}
	}
}

// outputs returns the final stack, top first.
func (m *machine) outputs() []field.Element {
	out := make([]field.Element, len(m.stack))
	for i := range out {
		out[i] = m.stack[len(m.stack)-1-i]
	}
	return out
}
