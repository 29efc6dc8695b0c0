package air

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/program"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/vm"
)

// shiftDefect checks stack register i against the stack shifted by net
// positions: positive net pushes (the bottom register falls off), negative
// net drops (zeros fill in from the bottom).
func shiftDefect(l vm.TraceLayout, net, i int, cur, next []field.Element) field.Element {
	src := i - net
	got := next[l.Stack(i)]
	if src >= l.StackWidth() {
		return got
	}
	return got.Sub(cur[l.Stack(src)])
}

// opDefect returns the defect of stack register i under op, zero when the
// register carries a nondeterministic tape value. Degree at most 2.
func opDefect(l vm.TraceLayout, op program.OpCode, i int, cur, next []field.Element) field.Element {
	st := func(j int) field.Element { return cur[l.Stack(j)] }
	nx := func(j int) field.Element { return next[l.Stack(j)] }

	switch op {
	case program.OpNoop:
		return shiftDefect(l, 0, i, cur, next)
	case program.OpAssert:
		return shiftDefect(l, -1, i, cur, next)
	case program.OpPush:
		if i == 0 {
			return nx(0).Sub(cur[l.OpValue()])
		}
		return shiftDefect(l, 1, i, cur, next)
	case program.OpRead:
		if i == 0 {
			return field.Zero()
		}
		return shiftDefect(l, 1, i, cur, next)
	case program.OpRead2:
		if i < 2 {
			return field.Zero()
		}
		return shiftDefect(l, 2, i, cur, next)
	case program.OpDup:
		if i == 0 {
			return nx(0).Sub(st(0))
		}
		return shiftDefect(l, 1, i, cur, next)
	case program.OpDup2:
		if i < 2 {
			return nx(i).Sub(st(i))
		}
		return shiftDefect(l, 2, i, cur, next)
	case program.OpDup4:
		if i < 4 {
			return nx(i).Sub(st(i))
		}
		return shiftDefect(l, 4, i, cur, next)
	case program.OpPad2:
		if i < 2 {
			return nx(i)
		}
		return shiftDefect(l, 2, i, cur, next)
	case program.OpDrop:
		return shiftDefect(l, -1, i, cur, next)
	case program.OpDrop4:
		return shiftDefect(l, -4, i, cur, next)
	case program.OpSwap:
		switch i {
		case 0:
			return nx(0).Sub(st(1))
		case 1:
			return nx(1).Sub(st(0))
		}
		return shiftDefect(l, 0, i, cur, next)
	case program.OpSwap2:
		switch i {
		case 0:
			return nx(0).Sub(st(2))
		case 1:
			return nx(1).Sub(st(3))
		case 2:
			return nx(2).Sub(st(0))
		case 3:
			return nx(3).Sub(st(1))
		}
		return shiftDefect(l, 0, i, cur, next)
	case program.OpSwap4:
		if i < 4 {
			return nx(i).Sub(st(i + 4))
		}
		if i < 8 {
			return nx(i).Sub(st(i - 4))
		}
		return shiftDefect(l, 0, i, cur, next)
	case program.OpRoll4:
		if i == 0 {
			return nx(0).Sub(st(3))
		}
		if i < 4 {
			return nx(i).Sub(st(i - 1))
		}
		return shiftDefect(l, 0, i, cur, next)
	case program.OpRoll8:
		if i == 0 {
			return nx(0).Sub(st(7))
		}
		if i < 8 {
			return nx(i).Sub(st(i - 1))
		}
		return shiftDefect(l, 0, i, cur, next)
	case program.OpChoose:
		if i == 0 {
			cond := st(2)
			want := cond.Mul(st(0)).Add(field.One().Sub(cond).Mul(st(1)))
			return nx(0).Sub(want)
		}
		return shiftDefect(l, -2, i, cur, next)
	case program.OpChoose2:
		if i < 2 {
			cond := st(4)
			want := cond.Mul(st(i)).Add(field.One().Sub(cond).Mul(st(i + 2)))
			return nx(i).Sub(want)
		}
		return shiftDefect(l, -4, i, cur, next)
	case program.OpAdd:
		if i == 0 {
			return nx(0).Sub(st(0).Add(st(1)))
		}
		return shiftDefect(l, -1, i, cur, next)
	case program.OpMul:
		if i == 0 {
			return nx(0).Sub(st(0).Mul(st(1)))
		}
		return shiftDefect(l, -1, i, cur, next)
	case program.OpNeg:
		if i == 0 {
			return nx(0).Add(st(0))
		}
		return shiftDefect(l, 0, i, cur, next)
	case program.OpInv:
		if i == 0 {
			return nx(0).Mul(st(0)).Sub(field.One())
		}
		return shiftDefect(l, 0, i, cur, next)
	case program.OpNot:
		if i == 0 {
			return nx(0).Sub(field.One().Sub(st(0)))
		}
		return shiftDefect(l, 0, i, cur, next)
	case program.OpEq:
		if i == 0 {
			diff := st(0).Sub(st(1))
			return nx(0).Sub(field.One()).Add(diff.Mul(cur[l.Helper()]))
		}
		return shiftDefect(l, -1, i, cur, next)
	}
	return shiftDefect(l, 0, i, cur, next)
}

// buildStackTransitions adds one constraint per stack register summing the
// selected opcode's defect, a gated hashr round over the top six registers,
// and the handful of per-opcode side conditions.
func (a *Air) buildStackTransitions() {
	l := a.layout
	mds := crypto.MDS()
	invMDS := crypto.InvMDS()
	hashrBit := l.InstrBit(vm.NumInstrBits - 1)

	lowOps := make([]program.OpCode, 0, len(program.AllOpCodes()))
	for _, op := range program.AllOpCodes() {
		if op != program.OpHashR {
			lowOps = append(lowOps, op)
		}
	}

	for i := 0; i < l.StackWidth(); i++ {
		reg := i
		a.addTransition(fmt.Sprintf("stack.reg%d", reg), 8, func(cur, next, periodic []field.Element) field.Element {
			acc := field.Zero()
			for _, op := range lowOps {
				d := opDefect(l, op, reg, cur, next)
				if d.IsZero() {
					continue
				}
				acc = acc.Add(opSelector(op, l, cur).Mul(d))
			}

			var d field.Element
			if reg < crypto.StateWidth {
				lhs := periodic[reg]
				for j := 0; j < crypto.StateWidth; j++ {
					lhs = lhs.Add(mds[reg][j].Mul(pow7(cur[l.Stack(j)])))
				}
				sum := field.Zero()
				for j := 0; j < crypto.StateWidth; j++ {
					sum = sum.Add(invMDS[reg][j].Mul(next[l.Stack(j)].Sub(periodic[crypto.StateWidth+j])))
				}
				d = lhs.Sub(pow7(sum))
			} else {
				d = next[l.Stack(reg)].Sub(cur[l.Stack(reg)])
			}
			return acc.Add(cur[hashrBit].Mul(d))
		})
	}

	a.addTransition("op.assert", 7, func(cur, next, periodic []field.Element) field.Element {
		sel := opSelector(program.OpAssert, l, cur)
		return sel.Mul(cur[l.Stack(0)].Sub(field.One()))
	})
	a.addTransition("op.eq.zero", 8, func(cur, next, periodic []field.Element) field.Element {
		sel := opSelector(program.OpEq, l, cur)
		diff := cur[l.Stack(0)].Sub(cur[l.Stack(1)])
		return sel.Mul(diff).Mul(next[l.Stack(0)])
	})
	a.addTransition("op.not.bit", 8, func(cur, next, periodic []field.Element) field.Element {
		sel := opSelector(program.OpNot, l, cur)
		top := cur[l.Stack(0)]
		return sel.Mul(top).Mul(field.One().Sub(top))
	})
	a.addTransition("op.choose.bit", 8, func(cur, next, periodic []field.Element) field.Element {
		sel := opSelector(program.OpChoose, l, cur)
		cond := cur[l.Stack(2)]
		return sel.Mul(cond).Mul(field.One().Sub(cond))
	})
	a.addTransition("op.choose2.bit", 8, func(cur, next, periodic []field.Element) field.Element {
		sel := opSelector(program.OpChoose2, l, cur)
		cond := cur[l.Stack(4)]
		return sel.Mul(cond).Mul(field.One().Sub(cond))
	})
}
