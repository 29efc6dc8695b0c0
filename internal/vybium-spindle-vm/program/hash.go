package program

import (
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/field"
)

// The program hash is the result of running the decoder's hash accumulator
// over the program's canonical instruction stream. Straight-line code absorbs
// one (opcode, operand) pair per instruction. A switch never absorbs the
// executed path directly: each branch has a digest computed from a seeded
// sponge (the seed is the branch condition), the two branch digests are
// merged in canonical order into the block digest, and only the block digest
// is absorbed by the parent. Execution reproduces the same values on either
// path, which is what makes the hash independent of the path taken.

// computeBranchDigests fills the per-switch branch digest tables. Arena
// order is children-first, so ascending order sees every inner switch before
// its enclosing one.
func computeBranchDigests(blocks []Block) ([]crypto.Digest, []crypto.Digest) {
	bt := make([]crypto.Digest, len(blocks))
	bf := make([]crypto.Digest, len(blocks))

	for id, blk := range blocks {
		if blk.Kind != KindSwitch {
			continue
		}
		bt[id] = branchDigest(blocks, bt, bf, blk.TrueBranch, field.One())
		bf[id] = branchDigest(blocks, bt, bf, blk.FalseBranch, field.Zero())
	}
	return bt, bf
}

// branchDigest accumulates a branch from a sponge seeded with the branch
// condition, mirroring how a BEGIN row seeds the in-trace sponge.
func branchDigest(blocks []Block, bt, bf []crypto.Digest, id BlockID, cond field.Element) crypto.Digest {
	var state [crypto.StateWidth]field.Element
	state[0] = cond
	accumulateStream(blocks, bt, bf, &state, id)
	return crypto.AccumulatorDigest(state)
}

// mergeBranchDigests folds the two branch digests into the switch block
// digest, true branch in slot 0, false branch in slot 1.
func mergeBranchDigests(hTrue, hFalse crypto.Digest) crypto.Digest {
	var state [crypto.StateWidth]field.Element
	for i := 0; i < crypto.DigestSize; i++ {
		crypto.AccumulatorRound(&state, hTrue[i], hFalse[i])
	}
	return crypto.AccumulatorDigest(state)
}

// computeProgramHash accumulates the root stream from the zero sponge.
func computeProgramHash(blocks []Block, root BlockID, bt, bf []crypto.Digest) crypto.Digest {
	var state [crypto.StateWidth]field.Element
	accumulateStream(blocks, bt, bf, &state, root)
	return crypto.AccumulatorDigest(state)
}

// streamFrame tracks progress through one block during the iterative walk.
type streamFrame struct {
	id   BlockID
	pos  int // next child for groups
	iter int // completed iterations for repeats
}

// accumulateStream absorbs the canonical stream of a block subtree into
// state. The walk is iterative; nesting depth is bounded by validation.
func accumulateStream(blocks []Block, bt, bf []crypto.Digest, state *[crypto.StateWidth]field.Element, id BlockID) {
	stack := []streamFrame{{id: id}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		blk := &blocks[top.id]

		switch blk.Kind {
		case KindSpan:
			for _, in := range blk.Ops {
				crypto.AccumulatorRound(state, field.New(uint64(in.Op)), in.Value)
			}
			stack = stack[:len(stack)-1]

		case KindGroup:
			if top.pos < len(blk.Children) {
				child := blk.Children[top.pos]
				top.pos++
				stack = append(stack, streamFrame{id: child})
				continue
			}
			stack = stack[:len(stack)-1]

		case KindRepeat:
			if top.iter < blk.Count {
				top.iter++
				stack = append(stack, streamFrame{id: blk.Body})
				continue
			}
			stack = stack[:len(stack)-1]

		case KindSwitch:
			d := mergeBranchDigests(bt[top.id], bf[top.id])
			for i := 0; i < crypto.DigestSize; i++ {
				crypto.AccumulatorRound(state, d[i], field.Zero())
			}
			stack = stack[:len(stack)-1]
		}
	}
}
