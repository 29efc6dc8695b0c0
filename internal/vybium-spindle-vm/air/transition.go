package air

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/program"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/vm"
)

// pow7 computes v^7 with three squarings and two products.
func pow7(v field.Element) field.Element {
	s2 := v.Square()
	s4 := s2.Square()
	return s4.Mul(s2).Mul(v)
}

// flowSelector evaluates to one exactly when the three control-flow bits
// spell f, assuming the bits are binary. Degree 3.
func flowSelector(f vm.FlowOp, l vm.TraceLayout, row []field.Element) field.Element {
	sel := field.One()
	for i := 0; i < vm.NumFlowBits; i++ {
		b := row[l.FlowBit(i)]
		if f.Bit(i) == 1 {
			sel = sel.Mul(b)
		} else {
			sel = sel.Mul(field.One().Sub(b))
		}
	}
	return sel
}

// opSelector matches the five low opcode bits and requires the hashr bit
// clear, so the hashr pattern cannot alias noop. Degree 6.
func opSelector(op program.OpCode, l vm.TraceLayout, row []field.Element) field.Element {
	sel := field.One().Sub(row[l.InstrBit(program.NumOpBits-1)])
	for i := 0; i < program.NumOpBits-1; i++ {
		b := row[l.InstrBit(i)]
		if (uint8(op)>>i)&1 == 1 {
			sel = sel.Mul(b)
		} else {
			sel = sel.Mul(field.One().Sub(b))
		}
	}
	return sel
}

func (a *Air) addTransition(name string, degree int, eval func(cur, next, periodic []field.Element) field.Element) {
	a.transitions = append(a.transitions, Transition{Name: name, Degree: degree, Eval: eval})
}

// buildTransitions assembles the ordered transition list: bit constraints,
// instruction-bit forcing, terminal flow, sponge round and per-kind sponge
// management, digest buffer and context handling, absorption bindings, and
// finally the stack register family.
func (a *Air) buildTransitions() {
	l := a.layout
	mds := crypto.MDS()
	invMDS := crypto.InvMDS()
	rc0, rc1 := crypto.RoundConstants(0)

	// Flow and instruction bits are binary; the hashr bit excludes all
	// low opcode bits.
	for i := 0; i < vm.NumFlowBits; i++ {
		col := l.FlowBit(i)
		a.addTransition(fmt.Sprintf("bits.flow%d", i), 2, func(cur, next, periodic []field.Element) field.Element {
			b := cur[col]
			return b.Mul(field.One().Sub(b))
		})
	}
	for i := 0; i < vm.NumInstrBits; i++ {
		col := l.InstrBit(i)
		a.addTransition(fmt.Sprintf("bits.instr%d", i), 2, func(cur, next, periodic []field.Element) field.Element {
			b := cur[col]
			return b.Mul(field.One().Sub(b))
		})
	}
	hashrBit := l.InstrBit(vm.NumInstrBits - 1)
	for i := 0; i < vm.NumInstrBits-1; i++ {
		col := l.InstrBit(i)
		a.addTransition(fmt.Sprintf("bits.excl%d", i), 2, func(cur, next, periodic []field.Element) field.Element {
			return cur[hashrBit].Mul(cur[col])
		})
	}

	// Instruction bits carry meaning only on hacc rows; begin rows force
	// the drop pattern, every other kind forces noop.
	for i := 0; i < vm.NumInstrBits; i++ {
		col := l.InstrBit(i)
		a.addTransition(fmt.Sprintf("instr.idle%d", i), 4, func(cur, next, periodic []field.Element) field.Element {
			gate := field.One().
				Sub(flowSelector(vm.FlowHacc, l, cur)).
				Sub(flowSelector(vm.FlowBegin, l, cur))
			return gate.Mul(cur[col])
		})
	}
	for i := 0; i < vm.NumInstrBits; i++ {
		col := l.InstrBit(i)
		want := field.New((uint64(program.OpDrop) >> i) & 1)
		a.addTransition(fmt.Sprintf("instr.begin%d", i), 4, func(cur, next, periodic []field.Element) field.Element {
			sel := flowSelector(vm.FlowBegin, l, cur)
			return sel.Mul(cur[col].Sub(want))
		})
	}

	// Once the machine parks in a void row it stays there.
	a.addTransition("flow.terminal", 6, func(cur, next, periodic []field.Element) field.Element {
		stop := flowSelector(vm.FlowVoid, l, cur)
		stay := flowSelector(vm.FlowVoid, l, next)
		return stop.Mul(field.One().Sub(stay))
	})

	// Sponge round: on absorbing kinds (round bit set) the sponge advances
	// by one accumulator round over the injected state. The round is checked
	// in its two-sided form so both halves stay at degree seven.
	for k := 0; k < vm.SpongeWidth; k++ {
		reg := k
		a.addTransition(fmt.Sprintf("sponge.round%d", reg), 8, func(cur, next, periodic []field.Element) field.Element {
			var inj [crypto.StateWidth]field.Element
			for j := 0; j < crypto.StateWidth; j++ {
				inj[j] = cur[l.Sponge(j)]
			}
			inj[0] = inj[0].Add(cur[l.Aux(0)])
			inj[1] = inj[1].Add(cur[l.Aux(1)])

			lhs := rc0[reg]
			for j := 0; j < crypto.StateWidth; j++ {
				lhs = lhs.Add(mds[reg][j].Mul(pow7(inj[j])))
			}
			acc := field.Zero()
			for j := 0; j < crypto.StateWidth; j++ {
				acc = acc.Add(invMDS[reg][j].Mul(next[l.Sponge(j)].Sub(rc1[j])))
			}
			return cur[l.FlowBit(0)].Mul(lhs.Sub(pow7(acc)))
		})
	}

	// Non-absorbing kinds manage the sponge directly: void freezes it,
	// begin reseeds it with the branch condition, tend clears it, spop
	// restores the saved caller state.
	for k := 0; k < vm.SpongeWidth; k++ {
		reg := k
		a.addTransition(fmt.Sprintf("sponge.void%d", reg), 4, func(cur, next, periodic []field.Element) field.Element {
			sel := flowSelector(vm.FlowVoid, l, cur)
			return sel.Mul(next[l.Sponge(reg)].Sub(cur[l.Sponge(reg)]))
		})
		a.addTransition(fmt.Sprintf("sponge.begin%d", reg), 4, func(cur, next, periodic []field.Element) field.Element {
			sel := flowSelector(vm.FlowBegin, l, cur)
			got := next[l.Sponge(reg)]
			if reg == 0 {
				got = got.Sub(cur[l.Stack(0)])
			}
			return sel.Mul(got)
		})
		a.addTransition(fmt.Sprintf("sponge.tend%d", reg), 4, func(cur, next, periodic []field.Element) field.Element {
			sel := flowSelector(vm.FlowTend, l, cur)
			return sel.Mul(next[l.Sponge(reg)])
		})
		a.addTransition(fmt.Sprintf("sponge.spop%d", reg), 4, func(cur, next, periodic []field.Element) field.Element {
			sel := flowSelector(vm.FlowSpop, l, cur)
			return sel.Mul(next[l.Sponge(reg)].Sub(cur[l.Context(0, reg)]))
		})
	}

	// Digest buffer: frozen on void/hacc/begin, rotated one slot per merge
	// or absorb row, captured from the sponge on tend and spop.
	for i := 0; i < vm.DigestWidth; i++ {
		reg := i
		a.addTransition(fmt.Sprintf("bd.hold%d", reg), 4, func(cur, next, periodic []field.Element) field.Element {
			gate := flowSelector(vm.FlowVoid, l, cur).
				Add(flowSelector(vm.FlowHacc, l, cur)).
				Add(flowSelector(vm.FlowBegin, l, cur))
			return gate.Mul(next[l.Digest(reg)].Sub(cur[l.Digest(reg)]))
		})
		a.addTransition(fmt.Sprintf("bd.rotate%d", reg), 4, func(cur, next, periodic []field.Element) field.Element {
			gate := flowSelector(vm.FlowMerg, l, cur).
				Add(flowSelector(vm.FlowMergf, l, cur)).
				Add(flowSelector(vm.FlowAbsb, l, cur))
			got := next[l.Digest(reg)]
			if reg < vm.DigestWidth-1 {
				got = got.Sub(cur[l.Digest(reg + 1)])
			}
			return gate.Mul(got)
		})
		a.addTransition(fmt.Sprintf("bd.capture%d", reg), 4, func(cur, next, periodic []field.Element) field.Element {
			gate := flowSelector(vm.FlowTend, l, cur).
				Add(flowSelector(vm.FlowSpop, l, cur))
			return gate.Mul(next[l.Digest(reg)].Sub(cur[l.Sponge(reg)]))
		})
	}

	// Context stack: held except across begin (push) and spop (pop).
	for slot := 0; slot < l.ContextDepth(); slot++ {
		for k := 0; k < vm.SpongeWidth; k++ {
			s, reg := slot, k
			a.addTransition(fmt.Sprintf("ctx.hold%d.%d", s, reg), 4, func(cur, next, periodic []field.Element) field.Element {
				gate := field.One().
					Sub(flowSelector(vm.FlowBegin, l, cur)).
					Sub(flowSelector(vm.FlowSpop, l, cur))
				return gate.Mul(next[l.Context(s, reg)].Sub(cur[l.Context(s, reg)]))
			})
			a.addTransition(fmt.Sprintf("ctx.push%d.%d", s, reg), 4, func(cur, next, periodic []field.Element) field.Element {
				sel := flowSelector(vm.FlowBegin, l, cur)
				got := next[l.Context(s, reg)]
				if s == 0 {
					got = got.Sub(cur[l.Sponge(reg)])
				} else {
					got = got.Sub(cur[l.Context(s-1, reg)])
				}
				return sel.Mul(got)
			})
			a.addTransition(fmt.Sprintf("ctx.pop%d.%d", s, reg), 4, func(cur, next, periodic []field.Element) field.Element {
				sel := flowSelector(vm.FlowSpop, l, cur)
				got := next[l.Context(s, reg)]
				if s < l.ContextDepth()-1 {
					got = got.Sub(cur[l.Context(s+1, reg)])
				}
				return sel.Mul(got)
			})
		}
	}

	// Absorption registers: each absorbing kind pins aux0/aux1 to the pair
	// it feeds the sponge, so the round constraint hashes exactly the
	// values the flow demands. Idle kinds pin them to zero.
	a.addTransition("aux.hacc0", 4, func(cur, next, periodic []field.Element) field.Element {
		sel := flowSelector(vm.FlowHacc, l, cur)
		code := field.Zero()
		for i := 0; i < vm.NumInstrBits; i++ {
			code = code.Add(cur[l.InstrBit(i)].Mul(field.New(uint64(1) << i)))
		}
		return sel.Mul(cur[l.Aux(0)].Sub(code))
	})
	a.addTransition("aux.hacc1", 4, func(cur, next, periodic []field.Element) field.Element {
		sel := flowSelector(vm.FlowHacc, l, cur)
		return sel.Mul(cur[l.Aux(1)].Sub(cur[l.OpValue()]))
	})
	a.addTransition("aux.merg0", 4, func(cur, next, periodic []field.Element) field.Element {
		sel := flowSelector(vm.FlowMerg, l, cur)
		return sel.Mul(cur[l.Aux(0)].Sub(cur[l.Digest(0)]))
	})
	a.addTransition("aux.merg1", 4, func(cur, next, periodic []field.Element) field.Element {
		sel := flowSelector(vm.FlowMerg, l, cur)
		return sel.Mul(cur[l.Aux(1)].Sub(cur[l.OpValue()]))
	})
	a.addTransition("aux.mergf0", 4, func(cur, next, periodic []field.Element) field.Element {
		sel := flowSelector(vm.FlowMergf, l, cur)
		return sel.Mul(cur[l.Aux(0)].Sub(cur[l.OpValue()]))
	})
	a.addTransition("aux.mergf1", 4, func(cur, next, periodic []field.Element) field.Element {
		sel := flowSelector(vm.FlowMergf, l, cur)
		return sel.Mul(cur[l.Aux(1)].Sub(cur[l.Digest(0)]))
	})
	a.addTransition("aux.absb0", 4, func(cur, next, periodic []field.Element) field.Element {
		sel := flowSelector(vm.FlowAbsb, l, cur)
		return sel.Mul(cur[l.Aux(0)].Sub(cur[l.Digest(0)]))
	})
	a.addTransition("aux.absb1", 4, func(cur, next, periodic []field.Element) field.Element {
		sel := flowSelector(vm.FlowAbsb, l, cur)
		return sel.Mul(cur[l.Aux(1)])
	})
	for i := 0; i < 2; i++ {
		reg := i
		a.addTransition(fmt.Sprintf("aux.idle%d", reg), 4, func(cur, next, periodic []field.Element) field.Element {
			gate := flowSelector(vm.FlowVoid, l, cur).
				Add(flowSelector(vm.FlowBegin, l, cur)).
				Add(flowSelector(vm.FlowTend, l, cur)).
				Add(flowSelector(vm.FlowSpop, l, cur))
			return gate.Mul(cur[l.Aux(reg)])
		})
	}
	a.addTransition("opval.idle", 4, func(cur, next, periodic []field.Element) field.Element {
		gate := flowSelector(vm.FlowVoid, l, cur).
			Add(flowSelector(vm.FlowBegin, l, cur)).
			Add(flowSelector(vm.FlowTend, l, cur)).
			Add(flowSelector(vm.FlowSpop, l, cur)).
			Add(flowSelector(vm.FlowAbsb, l, cur))
		return gate.Mul(cur[l.OpValue()])
	})

	// A switch condition sits on top of the stack when a begin row fires
	// and must be a bit.
	a.addTransition("begin.condition", 5, func(cur, next, periodic []field.Element) field.Element {
		sel := flowSelector(vm.FlowBegin, l, cur)
		top := cur[l.Stack(0)]
		return sel.Mul(top).Mul(field.One().Sub(top))
	})

	a.buildStackTransitions()
}
