package udon

import (
	"strings"
	"testing"

	"github.com/udon-lang/udonc/pkg/config"
	"github.com/udon-lang/udonc/pkg/tac"
	"github.com/udon-lang/udonc/pkg/types"
	"github.com/udon-lang/udonc/pkg/vrcevent"
)

func TestLower_SimpleAssignment(t *testing.T) {
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
	a := NewAssembler(vrcevent.NewReference())
	text, warnings, err := a.Assemble(out)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings for a fully resolved program, got %v", warnings)
	}
	if !strings.Contains(text, "x: %Single, 10.0") {
		t.Errorf("expected x data entry with decimal float, got:\n%s", text)
	}
	if !strings.Contains(text, "PUSH, x") || !strings.Contains(text, "COPY") {
		t.Errorf("expected PUSH x / COPY sequence, got:\n%s", text)
	}
}

func TestRestrictedBooleanLowering(t *testing.T) {
	flag := &tac.Variable{Name: "flag", Typ: types.Prim(types.Boolean), IsExported: true}
	fn := &tac.Function{Name: "_start", Instructions: []tac.Instruction{
		&tac.Assignment{Dest: flag, Src: tac.BoolConstant(true)},
	}}
	prog := &tac.Program{Functions: []*tac.Function{fn}}

	l := New(config.Default())
	out, err := l.Lower(prog)
	if err != nil {
		t.Fatalf("Lower: %v", err)
	}
	a := NewAssembler(vrcevent.NewReference())
	text, _, err := a.Assemble(out)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !strings.Contains(text, "flag: %Boolean, null") {
		t.Errorf("expected flag data entry lowered to null, got:\n%s", text)
	}
	if !strings.Contains(text, "__asm_restrict_int32_0") {
		t.Errorf("expected restricted-type init helpers, got:\n%s", text)
	}
}

func TestAddressFormat(t *testing.T) {
	if got := formatAddress(10); got != "0x0000000A" {
		t.Fatalf("expected 10-char address, got %q (len %d)", got, len(got))
	}
	if len(formatAddress(0)) != 10 {
		t.Fatalf("address literal must be exactly 10 characters")
	}
}

func TestUnresolvedLabelFallsBackToHalt(t *testing.T) {
	fn := &tac.Function{Name: "_start", Instructions: []tac.Instruction{
		&tac.UnconditionalJump{Target: &tac.Label{Name: "nowhere"}},
	}}
	prog := &tac.Program{Functions: []*tac.Function{fn}}
	l := New(config.Default())
	out, _ := l.Lower(prog)
	a := NewAssembler(vrcevent.NewReference())
	text, warnings, _ := a.Assemble(out)
	if !strings.Contains(text, haltAddress) {
		t.Errorf("expected unresolved jump to fall back to halt address, got:\n%s", text)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one unresolved-label warning, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "nowhere") {
		t.Errorf("expected the warning to name the unresolved label, got %q", warnings[0])
	}
}
