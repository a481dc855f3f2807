package optimizer

import (
	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/tac"
)

// Pipeline runs the fixed 16-pass optimizer pipeline over a TAC
// Program, gated by config.OptimizationLevel the way the teacher's
// Optimizer gated AST-level passes by level (pkg/compiler/optimizer.go).
type Pipeline struct {
	Level config.OptimizationLevel

	// AliasedArrays names arrays the lowerer could not prove
	// single-owner (e.g. passed by value into more than one binding);
	// populated by the caller from lowerer-side escape tracking, or
	// left nil to treat every array as potentially aliased.
	AliasedArrays map[string]bool
}

// NewPipeline constructs a Pipeline at the given level.
func NewPipeline(level config.OptimizationLevel) *Pipeline {
	return &Pipeline{Level: level}
}

// Optimize runs every function in prog through the CFG-based pass
// pipeline in place and returns the same Program with optimized
// function bodies.
func (p *Pipeline) Optimize(prog *tac.Program) *tac.Program {
	if p.Level == config.OptNone {
		return prog
	}
	for _, fn := range prog.Functions {
		p.optimizeFunction(fn)
	}
	return prog
}

func (p *Pipeline) optimizeFunction(fn *tac.Function) {
	cfg := BuildCFG(fn)

	// Passes 1-10 repeat until a round changes nothing (at most 8
	// rounds) since later passes (DSE, jump
	// simplification) regularly re-expose folding/CSE opportunities
	// earlier passes in the same sweep already passed over.
	for round := 0; round < 8; round++ {
		changed := false
		changed = foldConstants(cfg) || changed
		changed = sccpAndPruneUnreachable(cfg) || changed
		changed = simplifyBooleans(cfg) || changed
		changed = simplifyAlgebra(cfg) || changed
		if p.Level >= config.OptAggressive {
			changed = gvnCSE(cfg) || changed
			changed = elideSingleUseTemps(cfg) || changed
		}
		changed = removeNoOpCopies(cfg) || changed
		changed = deadStoreElimination(cfg) || changed
		changed = removeDeadCode(cfg) || changed
		changed = simplifyJumps(cfg) || changed
		if !changed {
			break
		}
	}

	if p.Level >= config.OptAggressive {
		hoistInvariants(cfg)
		strengthReduceInductionVars(cfg)
	}

	eliminateDeadTemps(cfg)

	if p.Level >= config.OptAggressive {
		aliased := p.AliasedArrays
		if aliased == nil {
			aliased = defaultAliasedEverything(cfg)
		}
		expandCopyOnWrite(cfg, aliased)
	}

	LinearScanAllocate(cfg)
	reuseLocalVariables(cfg)

	fn.Instructions = cfg.Reassemble()
}

// defaultAliasedEverything is the conservative fallback used when the
// lowerer provides no escape analysis: every array variable is treated
// as potentially aliased, so copy-on-write expansion never silently
// corrupts a caller's array (§9 "prefer a correct, conservative
// rewrite to a precise, unsafe one").
func defaultAliasedEverything(cfg *CFG) map[string]bool {
	out := make(map[string]bool)
	for _, b := range cfg.Blocks {
		for _, instr := range b.Instr {
			if aa, ok := instr.(*tac.ArrayAssignment); ok {
				out[aa.Array.String()] = true
			}
		}
	}
	return out
}
