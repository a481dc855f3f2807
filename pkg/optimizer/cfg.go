// Package optimizer implements the TAC optimizer (component §4.E): a
// fixed 16-pass pipeline over each function's control-flow graph,
// gated by config.OptimizationLevel the way the teacher's AST-level
// Optimizer gated its passes by level.
package optimizer

import (
	"github.com/udon-lang/udonc/pkg/tac"
)

// Block is a maximal straight-line run of instructions with a single
// entry and a single exit. Its terminating jump or return, if any, is the
// last element of Instr. Label is empty for a block that starts right
// after a jump or return without a label of its own.
type Block struct {
	Label string
	Instr []tac.Instruction
	Preds []*Block
	Succs []*Block
}

// CFG is one function's control-flow graph, plus its dominator tree.
type CFG struct {
	Fn       *tac.Function
	Entry    *Block
	Blocks   []*Block
	idom     map[*Block]*Block
	domKids  map[*Block][]*Block
}

// BuildCFG splits a function's flat instruction stream into basic
// blocks at labels and jumps/returns, and wires predecessor/successor
// edges (§4.E "construct the CFG").
func BuildCFG(fn *tac.Function) *CFG {
	labelIndex := make(map[string]int)
	for i, instr := range fn.Instructions {
		if l, ok := instr.(*tac.LabelInstr); ok {
			labelIndex[l.Label.Name] = i
		}
	}

	var blocks []*Block
	byLabel := make(map[string]*Block)
	cur := &Block{Label: "entry"}
	blocks = append(blocks, cur)
	byLabel["entry"] = cur

	split := false
	for _, instr := range fn.Instructions {
		switch v := instr.(type) {
		case *tac.LabelInstr:
			split = false
			if len(cur.Instr) == 0 && cur == blocks[len(blocks)-1] {
				// the block so far is empty (label immediately follows a
				// jump, or this is the very first instruction): rename it
				// in place instead of emitting a spurious empty block.
				delete(byLabel, cur.Label)
				cur.Label = v.Label.Name
				byLabel[cur.Label] = cur
				continue
			}
			cur = &Block{Label: v.Label.Name}
			blocks = append(blocks, cur)
			byLabel[cur.Label] = cur
		default:
			if split {
				// the previous instruction was a jump or return: this one
				// starts an unlabelled block reached only by fallthrough.
				cur = &Block{}
				blocks = append(blocks, cur)
				split = false
			}
			cur.Instr = append(cur.Instr, instr)
			switch instr.(type) {
			case *tac.UnconditionalJump, *tac.ConditionalJump, *tac.Return:
				split = true
			}
		}
	}

	cfg := &CFG{Fn: fn, Entry: blocks[0], Blocks: blocks}

	for i, b := range blocks {
		if len(b.Instr) == 0 {
			if i+1 < len(blocks) {
				cfg.link(b, blocks[i+1])
			}
			continue
		}
		last := b.Instr[len(b.Instr)-1]
		switch t := last.(type) {
		case *tac.UnconditionalJump:
			if target, ok := byLabel[t.Target.Name]; ok {
				cfg.link(b, target)
			}
		case *tac.ConditionalJump:
			if target, ok := byLabel[t.Target.Name]; ok {
				cfg.link(b, target)
			}
			if i+1 < len(blocks) {
				cfg.link(b, blocks[i+1])
			}
		case *tac.Return:
			// no successors
		default:
			if i+1 < len(blocks) {
				cfg.link(b, blocks[i+1])
			}
		}
	}

	cfg.computeDominators()
	return cfg
}

func (c *CFG) link(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// Reassemble flattens the CFG's blocks back into a single instruction
// stream in their current order, re-emitting each block's label
// (unlabelled blocks and the synthetic first-block name "entry" emit none).
func (c *CFG) Reassemble() []tac.Instruction {
	var out []tac.Instruction
	for i, b := range c.Blocks {
		if b.Label != "" && (i != 0 || b.Label != "entry") {
			out = append(out, &tac.LabelInstr{Label: &tac.Label{Name: b.Label}})
		}
		out = append(out, b.Instr...)
	}
	return out
}

// computeDominators runs the standard iterative dominator algorithm
// (Cooper/Harvey/Kennedy), used by SCCP-driven unreachable pruning and
// LICM's loop-header detection (§4.E).
func (c *CFG) computeDominators() {
	order := c.reversePostorder()
	idx := make(map[*Block]int, len(order))
	for i, b := range order {
		idx[b] = i
	}

	idom := make(map[*Block]*Block)
	idom[c.Entry] = c.Entry
	changed := true
	for changed {
		changed = false
		for _, b := range order {
			if b == c.Entry {
				continue
			}
			var newIdom *Block
			for _, p := range b.Preds {
				if idom[p] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(idom, idx, newIdom, p)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	c.idom = idom
	c.domKids = make(map[*Block][]*Block)
	for b, d := range idom {
		if b != c.Entry {
			c.domKids[d] = append(c.domKids[d], b)
		}
	}
}

func intersect(idom map[*Block]*Block, idx map[*Block]int, a, b *Block) *Block {
	for a != b {
		for idx[a] > idx[b] {
			a = idom[a]
		}
		for idx[b] > idx[a] {
			b = idom[b]
		}
	}
	return a
}

func (c *CFG) reversePostorder() []*Block {
	visited := make(map[*Block]bool)
	var order []*Block
	var visit func(b *Block)
	visit = func(b *Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		order = append(order, b)
	}
	visit(c.Entry)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Dominates reports whether a dominates b.
func (c *CFG) Dominates(a, b *Block) bool {
	for b != c.Entry {
		if b == a {
			return true
		}
		b = c.idom[b]
	}
	return a == c.Entry
}

// IsLoopHeader reports whether b has a predecessor it dominates (a
// back edge), the standard natural-loop-header test LICM uses.
func (c *CFG) IsLoopHeader(b *Block) bool {
	for _, p := range b.Preds {
		if c.Dominates(b, p) {
			return true
		}
	}
	return false
}

// Reachable returns the set of blocks reachable from entry, used by
// the unreachable-code pruning pass.
func (c *CFG) Reachable() map[*Block]bool {
	seen := make(map[*Block]bool)
	var walk func(b *Block)
	walk = func(b *Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, s := range b.Succs {
			walk(s)
		}
	}
	walk(c.Entry)
	return seen
}
