package program

import (
	"fmt"

	"github.com/vybium/vybium-spindle-vm/internal/vybium-spindle-vm/crypto"
)

// BlockID indexes a block inside the program arena.
type BlockID int

// BlockKind tags the block variants.
type BlockKind uint8

const (
	// KindSpan is a straight-line sequence of instructions.
	KindSpan BlockKind = iota
	// KindGroup is a sequence of child blocks.
	KindGroup
	// KindSwitch selects one of two branches from the popped stack top.
	KindSwitch
	// KindRepeat executes its body a fixed number of times.
	KindRepeat
)

const (
	// MaxBlockDepth bounds switch nesting; the trace carries one context
	// register bank per level.
	MaxBlockDepth = 8
	// MaxRepeatCount bounds statically unrolled repetition.
	MaxRepeatCount = 1 << 16
)

// String returns the kind name.
func (k BlockKind) String() string {
	switch k {
	case KindSpan:
		return "span"
	case KindGroup:
		return "group"
	case KindSwitch:
		return "switch"
	case KindRepeat:
		return "repeat"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Block is one node of the program graph. Exactly the fields of its kind are
// meaningful.
type Block struct {
	Kind BlockKind

	// Span
	Ops []Instruction

	// Group
	Children []BlockID

	// Switch
	TrueBranch  BlockID
	FalseBranch BlockID

	// Repeat
	Body  BlockID
	Count int
}

// blockStats holds the static stack analysis of a block: the depth it reads
// below its entry point and the net depth change it leaves behind.
type blockStats struct {
	req         int
	net         int
	switchDepth int
}

// Program is an immutable, validated program graph with its hash cache.
type Program struct {
	blocks []Block
	root   BlockID

	// branchTrue/branchFalse hold the per-switch branch digests; entries
	// for non-switch blocks are zero.
	branchTrue  []crypto.Digest
	branchFalse []crypto.Digest

	hash  crypto.Digest
	stats blockStats
}

// Builder assembles a program arena. Child blocks must be created before the
// blocks that reference them, so arena order is always children-first.
type Builder struct {
	blocks []Block
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) checkChild(id BlockID) error {
	if id < 0 || int(id) >= len(b.blocks) {
		return fmt.Errorf("block %d does not exist", id)
	}
	return nil
}

// Span adds a straight-line instruction block.
func (b *Builder) Span(ops ...Instruction) (BlockID, error) {
	if len(ops) == 0 {
		return 0, fmt.Errorf("malformed graph: span must contain at least one instruction")
	}
	for i, in := range ops {
		info, ok := in.Op.Info()
		if !ok {
			return 0, fmt.Errorf("malformed graph: unknown opcode %d at span position %d", uint8(in.Op), i)
		}
		if !info.HasArg && !in.Value.IsZero() {
			return 0, fmt.Errorf("malformed graph: %s carries an unexpected operand at span position %d", info.Name, i)
		}
	}
	b.blocks = append(b.blocks, Block{Kind: KindSpan, Ops: append([]Instruction(nil), ops...)})
	return BlockID(len(b.blocks) - 1), nil
}

// Group adds a sequential composition of existing blocks.
func (b *Builder) Group(children ...BlockID) (BlockID, error) {
	if len(children) == 0 {
		return 0, fmt.Errorf("malformed graph: group must contain at least one block")
	}
	for _, id := range children {
		if err := b.checkChild(id); err != nil {
			return 0, fmt.Errorf("malformed graph: %w", err)
		}
	}
	b.blocks = append(b.blocks, Block{Kind: KindGroup, Children: append([]BlockID(nil), children...)})
	return BlockID(len(b.blocks) - 1), nil
}

// Switch adds a two-way branch block. At runtime the stack top is popped;
// one selects the true branch, zero the false branch.
func (b *Builder) Switch(trueBranch, falseBranch BlockID) (BlockID, error) {
	if err := b.checkChild(trueBranch); err != nil {
		return 0, fmt.Errorf("malformed graph: true branch: %w", err)
	}
	if err := b.checkChild(falseBranch); err != nil {
		return 0, fmt.Errorf("malformed graph: false branch: %w", err)
	}
	if trueBranch == falseBranch {
		return 0, fmt.Errorf("malformed graph: switch branches must be distinct blocks")
	}
	b.blocks = append(b.blocks, Block{Kind: KindSwitch, TrueBranch: trueBranch, FalseBranch: falseBranch})
	return BlockID(len(b.blocks) - 1), nil
}

// Repeat adds a block executing body a fixed number of times. The count is
// static: a repeat contributes count copies of its body to both execution
// and the program hash, which keeps the hash a pure function of the graph.
func (b *Builder) Repeat(body BlockID, count int) (BlockID, error) {
	if err := b.checkChild(body); err != nil {
		return 0, fmt.Errorf("malformed graph: repeat body: %w", err)
	}
	if count < 1 || count > MaxRepeatCount {
		return 0, fmt.Errorf("malformed graph: repeat count %d outside [1, %d]", count, MaxRepeatCount)
	}
	b.blocks = append(b.blocks, Block{Kind: KindRepeat, Body: body, Count: count})
	return BlockID(len(b.blocks) - 1), nil
}

// Build validates the graph rooted at root and returns the immutable
// program with its hash precomputed.
func (b *Builder) Build(root BlockID) (*Program, error) {
	if len(b.blocks) == 0 {
		return nil, fmt.Errorf("malformed graph: program has no blocks")
	}
	if root < 0 || int(root) >= len(b.blocks) {
		return nil, fmt.Errorf("malformed graph: root block %d does not exist", root)
	}

	if err := checkTreeShape(b.blocks, root); err != nil {
		return nil, err
	}

	stats, err := analyzeBlocks(b.blocks)
	if err != nil {
		return nil, err
	}
	if stats[root].switchDepth > MaxBlockDepth {
		return nil, fmt.Errorf("malformed graph: switch nesting depth %d exceeds %d", stats[root].switchDepth, MaxBlockDepth)
	}

	blocks := append([]Block(nil), b.blocks...)
	bt, bf := computeBranchDigests(blocks)
	hash := computeProgramHash(blocks, root, bt, bf)

	return &Program{
		blocks:      blocks,
		root:        root,
		branchTrue:  bt,
		branchFalse: bf,
		hash:        hash,
		stats:       stats[root],
	}, nil
}

// checkTreeShape verifies that every block is referenced exactly once and
// that all blocks are reachable from the root.
func checkTreeShape(blocks []Block, root BlockID) error {
	refs := make([]int, len(blocks))
	stack := []BlockID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch blocks[id].Kind {
		case KindGroup:
			for _, c := range blocks[id].Children {
				refs[c]++
				stack = append(stack, c)
			}
		case KindSwitch:
			refs[blocks[id].TrueBranch]++
			refs[blocks[id].FalseBranch]++
			stack = append(stack, blocks[id].TrueBranch, blocks[id].FalseBranch)
		case KindRepeat:
			refs[blocks[id].Body]++
			stack = append(stack, blocks[id].Body)
		}

		if refs[id] > 1 {
			return fmt.Errorf("malformed graph: block %d referenced more than once", id)
		}
	}

	for id, n := range refs {
		if BlockID(id) == root {
			if n != 0 {
				return fmt.Errorf("malformed graph: root block %d referenced as a child", id)
			}
			continue
		}
		if n == 0 {
			return fmt.Errorf("malformed graph: block %d is unreachable from the root", id)
		}
	}
	return nil
}

// analyzeBlocks computes stack requirements per block. Arena order is
// children-first, so a single ascending pass suffices. Switch branches must
// agree on their net stack effect; otherwise the stack depth after the block
// would depend on the taken branch and could not be bounded statically.
func analyzeBlocks(blocks []Block) ([]blockStats, error) {
	stats := make([]blockStats, len(blocks))

	combine := func(a, b blockStats) blockStats {
		req := a.req
		if need := b.req - a.net; need > req {
			req = need
		}
		depth := a.switchDepth
		if b.switchDepth > depth {
			depth = b.switchDepth
		}
		return blockStats{req: req, net: a.net + b.net, switchDepth: depth}
	}

	for id, blk := range blocks {
		switch blk.Kind {
		case KindSpan:
			depth, req := 0, 0
			for _, in := range blk.Ops {
				info, _ := in.Op.Info()
				if need := info.Requires - depth; need > req {
					req = need
				}
				depth += info.Net
			}
			stats[id] = blockStats{req: req, net: depth}

		case KindGroup:
			acc := stats[blk.Children[0]]
			for _, c := range blk.Children[1:] {
				acc = combine(acc, stats[c])
			}
			stats[id] = acc

		case KindRepeat:
			body := stats[blk.Body]
			req := body.req
			if body.net < 0 {
				req += (blk.Count - 1) * -body.net
			}
			stats[id] = blockStats{req: req, net: blk.Count * body.net, switchDepth: body.switchDepth}

		case KindSwitch:
			tb := stats[blk.TrueBranch]
			fb := stats[blk.FalseBranch]
			if tb.net != fb.net {
				return nil, fmt.Errorf("malformed graph: switch block %d has mismatched branch arity (true %+d, false %+d)", id, tb.net, fb.net)
			}
			req := tb.req
			if fb.req > req {
				req = fb.req
			}
			depth := tb.switchDepth
			if fb.switchDepth > depth {
				depth = fb.switchDepth
			}
			stats[id] = blockStats{req: 1 + req, net: tb.net - 1, switchDepth: 1 + depth}
		}
	}
	return stats, nil
}

// Root returns the root block ID.
func (p *Program) Root() BlockID {
	return p.root
}

// NumBlocks returns the arena size.
func (p *Program) NumBlocks() int {
	return len(p.blocks)
}

// BlockAt returns the block with the given ID. The returned value shares the
// arena's instruction slices and must not be modified.
func (p *Program) BlockAt(id BlockID) (Block, error) {
	if id < 0 || int(id) >= len(p.blocks) {
		return Block{}, fmt.Errorf("block %d does not exist", id)
	}
	return p.blocks[id], nil
}

// SwitchDepth returns the maximum switch nesting depth of the program.
// The trace generator sizes its context registers from this.
func (p *Program) SwitchDepth() int {
	return p.stats.switchDepth
}

// StackRequirement returns how many stack positions the program reads below
// its entry depth.
func (p *Program) StackRequirement() int {
	return p.stats.req
}

// StackNet returns the overall stack depth change of the program.
func (p *Program) StackNet() int {
	return p.stats.net
}

// SwitchBranchDigests returns the true and false branch digests of a switch
// block. The trace generator absorbs the untaken digest as immediates.
func (p *Program) SwitchBranchDigests(id BlockID) (crypto.Digest, crypto.Digest, error) {
	if id < 0 || int(id) >= len(p.blocks) {
		return crypto.Digest{}, crypto.Digest{}, fmt.Errorf("block %d does not exist", id)
	}
	if p.blocks[id].Kind != KindSwitch {
		return crypto.Digest{}, crypto.Digest{}, fmt.Errorf("block %d is a %s, not a switch", id, p.blocks[id].Kind)
	}
	return p.branchTrue[id], p.branchFalse[id], nil
}

// HashElements returns the program hash as four field elements.
func (p *Program) HashElements() crypto.Digest {
	return p.hash
}

// Hash returns the 32-byte program hash.
func (p *Program) Hash() [32]byte {
	return p.hash.Bytes()
}
