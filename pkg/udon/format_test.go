package udon

import (
	"strings"
	"testing"

	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/types"
)

func TestFormatProgram_RendersDataAndOffsets(t *testing.T) {
	x := &tac.Variable{Name: "x", Typ: types.Prim(types.Single), IsExported: true}
	fn := &tac.Function{Name: "_start", Instructions: []tac.Instruction{
		&tac.Assignment{Dest: x, Src: tac.NumberConstant(10)},
		&tac.Return{},
	}}
	prog := &tac.Program{Functions: []*tac.Function{fn}}

	l := New(config.Default())
	out, err := l.Lower(prog)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}

	listing := FormatProgram(out)
	if !strings.Contains(listing, "; function _start") {
		t.Errorf("expected function header, got:\n%s", listing)
	}
	if !strings.Contains(listing, "PUSH") || !strings.Contains(listing, "COPY") {
		t.Errorf("expected PUSH/COPY in listing, got:\n%s", listing)
	}
	if !strings.Contains(listing, "0000") {
		t.Errorf("expected a zero-based offset column, got:\n%s", listing)
	}
}
