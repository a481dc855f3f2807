package optimizer

import (
	"strings"
	"testing"

	"github.com/udon-lang/udonc/pkg/tac"
)

func TestDumpCFG_RendersBlocksAndEdges(t *testing.T) {
	cond := &tac.Temporary{ID: 0}
	fn := &tac.Function{
		Name: "f",
		Instructions: []tac.Instruction{
			&tac.ConditionalJump{Cond: cond, Target: &tac.Label{Name: "join"}},
			&tac.Return{Value: tac.NumberConstant(1)},
			&tac.LabelInstr{Label: &tac.Label{Name: "join"}},
			&tac.Return{Value: tac.NumberConstant(2)},
		},
	}
	cfg := BuildCFG(fn)

	dump := DumpCFG(cfg)
	if !strings.Contains(dump, "entry") {
		t.Errorf("expected entry block marker, got:\n%s", dump)
	}
	if !strings.Contains(dump, "preds:") || !strings.Contains(dump, "succs:") {
		t.Errorf("expected pred/succ lines, got:\n%s", dump)
	}
	if !strings.Contains(dump, "idom:") {
		t.Errorf("expected an idom line, got:\n%s", dump)
	}
}
