package optimizer

import (
	"fmt"
	"strings"
)

// DumpCFG renders a CFG as a text listing of blocks, their
// predecessor/successor edges, and immediate dominators, in the
// spirit of the teacher's OptimizationStats reporting struct. Used
// for debugging the pass pipeline, not part of any compile output.
func DumpCFG(cfg *CFG) string {
	var b strings.Builder
	for _, blk := range cfg.Blocks {
		b.WriteString(fmt.Sprintf("block %s", blk.Label))
		if blk == cfg.Entry {
			b.WriteString(" (entry)")
		}
		b.WriteString("\n")

		b.WriteString(fmt.Sprintf("  preds: %s\n", blockNames(blk.Preds)))
		b.WriteString(fmt.Sprintf("  succs: %s\n", blockNames(blk.Succs)))
		if idom, ok := cfg.idom[blk]; ok && idom != nil {
			b.WriteString(fmt.Sprintf("  idom:  %s\n", idom.Label))
		}
		for _, instr := range blk.Instr {
			b.WriteString(fmt.Sprintf("    %s\n", instr.String()))
		}
	}
	return b.String()
}

func blockNames(blocks []*Block) string {
	if len(blocks) == 0 {
		return "-"
	}
	names := make([]string, len(blocks))
	for i, b := range blocks {
		names[i] = b.Label
	}
	return strings.Join(names, ", ")
}
