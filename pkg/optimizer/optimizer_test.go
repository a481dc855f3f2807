package optimizer

import (
	"testing"

	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/tac"
)

func TestFoldConstants_Arithmetic(t *testing.T) {
	dest := &tac.Temporary{ID: 0, Typ: tac.NumberConstant(0).Type()}
	fn := &tac.Function{
		Name: "f",
		Instructions: []tac.Instruction{
			&tac.BinaryOp{Dest: dest, Op: "+", Left: tac.NumberConstant(2), Right: tac.NumberConstant(3)},
			&tac.Return{Value: dest},
		},
	}
	cfg := BuildCFG(fn)
	if !foldConstants(cfg) {
		t.Fatal("expected constant folding to fire")
	}
	instrs := cfg.Reassemble()
	a, ok := instrs[0].(*tac.Assignment)
	if !ok {
		t.Fatalf("expected Assignment, got %T", instrs[0])
	}
	c, ok := a.Src.(*tac.Constant)
	if !ok || c.Number != 5 {
		t.Fatalf("expected folded constant 5, got %v", a.Src)
	}
}

func TestSimplifyAlgebra_Identities(t *testing.T) {
	dest := &tac.Temporary{ID: 0}
	v := &tac.Variable{Name: "x"}
	fn := &tac.Function{Name: "f", Instructions: []tac.Instruction{
		&tac.BinaryOp{Dest: dest, Op: "+", Left: v, Right: tac.NumberConstant(0)},
	}}
	cfg := BuildCFG(fn)
	if !simplifyAlgebra(cfg) {
		t.Fatal("expected x+0 to simplify")
	}
	a := cfg.Reassemble()[0].(*tac.Assignment)
	if a.Src.String() != "x" {
		t.Fatalf("expected identity on x, got %v", a.Src)
	}
}

func TestSCCPPrunesUnreachableBranch(t *testing.T) {
	elseLabel := &tac.Label{Name: "else"}
	endLabel := &tac.Label{Name: "end"}
	fn := &tac.Function{Name: "f", Instructions: []tac.Instruction{
		&tac.ConditionalJump{Cond: tac.BoolConstant(true), Target: elseLabel},
		&tac.Return{Value: tac.NumberConstant(1)},
		&tac.UnconditionalJump{Target: endLabel},
		&tac.LabelInstr{Label: elseLabel},
		&tac.Return{Value: tac.NumberConstant(2)},
		&tac.LabelInstr{Label: endLabel},
	}}
	cfg := BuildCFG(fn)
	sccpAndPruneUnreachable(cfg)
	for _, b := range cfg.Blocks {
		if b.Label == "else" {
			t.Fatal("else branch should have been pruned as unreachable")
		}
	}
}

func TestRemoveNoOpCopies(t *testing.T) {
	v := &tac.Variable{Name: "x"}
	fn := &tac.Function{Name: "f", Instructions: []tac.Instruction{
		&tac.Copy{Dest: v, Src: v},
		&tac.Return{},
	}}
	cfg := BuildCFG(fn)
	if !removeNoOpCopies(cfg) {
		t.Fatal("expected x=x to be removed")
	}
	if len(cfg.Reassemble()) != 1 {
		t.Fatalf("expected only the return instruction to remain")
	}
}

func TestPipeline_OptNoneIsNoOp(t *testing.T) {
	dest := &tac.Temporary{ID: 0}
	fn := &tac.Function{Name: "f", Instructions: []tac.Instruction{
		&tac.BinaryOp{Dest: dest, Op: "+", Left: tac.NumberConstant(2), Right: tac.NumberConstant(3)},
	}}
	prog := &tac.Program{Functions: []*tac.Function{fn}}
	p := NewPipeline(config.OptNone)
	before := len(fn.Instructions)
	p.Optimize(prog)
	if len(fn.Instructions) != before {
		t.Fatal("OptNone must leave instructions untouched")
	}
}

func TestExpandCopyOnWrite_ClonesGetDistinctFreshTempIDs(t *testing.T) {
	arr := &tac.Variable{Name: "arr"}
	existing := &tac.Temporary{ID: 3}
	fn := &tac.Function{Name: "f", Instructions: []tac.Instruction{
		&tac.Assignment{Dest: existing, Src: tac.NumberConstant(0)},
		&tac.ArrayAssignment{Array: arr, Index: tac.NumberConstant(0), Value: tac.NumberConstant(1)},
		&tac.ArrayAssignment{Array: arr, Index: tac.NumberConstant(1), Value: tac.NumberConstant(2)},
	}}
	cfg := BuildCFG(fn)
	if !expandCopyOnWrite(cfg, map[string]bool{"arr": true}) {
		t.Fatal("expected the aliased writes to trigger COW expansion")
	}

	var cloneIDs []int
	for _, instr := range cfg.Reassemble() {
		call, ok := instr.(*tac.Call)
		if !ok {
			continue
		}
		temp, ok := call.Dest.(*tac.Temporary)
		if !ok {
			t.Fatalf("expected the clone destination to be a Temporary, got %T", call.Dest)
		}
		cloneIDs = append(cloneIDs, temp.ID)
	}
	if len(cloneIDs) != 2 {
		t.Fatalf("expected two clone temps, got %d", len(cloneIDs))
	}
	if cloneIDs[0] == cloneIDs[1] {
		t.Fatalf("expected distinct clone temp IDs, both got %d", cloneIDs[0])
	}
	for _, id := range cloneIDs {
		if id <= existing.ID {
			t.Fatalf("expected clone temp ID %d to be fresh (greater than existing ID %d)", id, existing.ID)
		}
	}
}

func TestPipeline_Aggressive_FoldsAndAllocates(t *testing.T) {
	dest := &tac.Temporary{ID: 0}
	ret := &tac.Temporary{ID: 1}
	fn := &tac.Function{Name: "f", Instructions: []tac.Instruction{
		&tac.BinaryOp{Dest: dest, Op: "+", Left: tac.NumberConstant(2), Right: tac.NumberConstant(3)},
		&tac.Assignment{Dest: ret, Src: dest},
		&tac.Return{Value: ret},
	}}
	prog := &tac.Program{Functions: []*tac.Function{fn}}
	p := NewPipeline(config.OptAggressive)
	p.Optimize(prog)
	if len(fn.Instructions) == 0 {
		t.Fatal("expected a non-empty optimized instruction stream")
	}
}
