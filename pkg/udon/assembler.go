package udon

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/udon-lang/udonc/pkg/compileerrors"
	"github.com/udon-lang/udonc/pkg/vrcevent"
)

const haltAddress = "0xFFFFFFFC"

// Assembler turns an udon.Program into the final .uasm text (§4.G).
type Assembler struct {
	events vrcevent.Registry
}

// NewAssembler constructs an Assembler. events is consulted for the
// VRChat-event priority tier of label canonicalisation (§4.G step 2).
func NewAssembler(events vrcevent.Registry) *Assembler {
	return &Assembler{events: events}
}

// Assemble runs the full pipeline: restricted-type lowering, address
// resolution, and text emission. Returned warnings are unresolved-label
// fallbacks (§7 UnresolvedLabel) the caller should surface to its logger;
// an empty slice means every jump target resolved cleanly.
func (a *Assembler) Assemble(prog *Program) (string, []string, error) {
	a.lowerRestrictedTypes(prog)

	instrs, labelAddr, canonical := a.resolveLabels(prog)

	var b strings.Builder
	var warnings []string
	a.emitDataSection(&b, prog)
	a.emitCodeSection(&b, instrs, labelAddr, canonical, &warnings)
	return b.String(), warnings, nil
}

// lowerRestrictedTypes implements §4.G step 1: Boolean is the only
// null-only restricted type. Any non-default (true) initial value is
// replaced with null in the data section, and a runtime init sequence
// is appended after `_start` that computes `true` via `0 == 0` and
// copies it into the target.
func (a *Assembler) lowerRestrictedTypes(prog *Program) {
	zeroName := "__asm_restrict_int32_0"
	eqExternName := "__asm_restrict_eq_extern"
	var needsInit []string

	for i := range prog.Data {
		d := &prog.Data[i]
		if d.UdonType != "Boolean" {
			continue
		}
		if d.Value.Kind == ValueBool && d.Value.Bool {
			needsInit = append(needsInit, d.Name)
		}
		d.Value = Value{Kind: ValueNull}
	}
	if len(needsInit) == 0 {
		return
	}

	a.ensureDataEntry(prog, zeroName, "Int32", Value{Kind: ValueInt, Int: 0}, true)
	a.ensureDataEntry(prog, eqExternName, "String", Value{Kind: ValueString, Str: "SystemInt32.__op_Equality__SystemInt32_SystemInt32__SystemBoolean"}, true)

	var initInstrs []Instr
	for _, name := range needsInit {
		initInstrs = append(initInstrs,
			Instr{Op: OpPush, Operand: zeroName},
			Instr{Op: OpPush, Operand: zeroName},
			Instr{Op: OpExtern, Signature: eqExternName, Pure: true},
			Instr{Op: OpPush, Operand: name},
			Instr{Op: OpCopy},
		)
	}

	for _, fn := range prog.Functions {
		if fn.EntryLabel == "_start" {
			fn.Instr = append(fn.Instr, initInstrs...)
			return
		}
	}
	// No _start found: synthesize one so the init sequence still runs.
	prog.Functions = append(prog.Functions, &Function{
		EntryLabel: "_start",
		Instr:      append([]Instr{{Op: OpLabel, Label: "_start"}}, initInstrs...),
	})
}

func (a *Assembler) ensureDataEntry(prog *Program, name, udonType string, v Value, internal bool) {
	for _, d := range prog.Data {
		if d.Name == name {
			return
		}
	}
	prog.Data = append(prog.Data, DataEntry{Name: name, UdonType: udonType, Value: v, Internal: internal})
}

// resolveLabels implements §4.G step 2: a single byte-cursor walk over
// the concatenated instruction stream. Labels sharing an address are
// grouped; the canonical name for the group is chosen by priority
// (VRChat event label > `_start` > user-export > other).
func (a *Assembler) resolveLabels(prog *Program) ([]Instr, map[string]int, map[string]string) {
	var instrs []Instr
	for _, fn := range prog.Functions {
		instrs = append(instrs, fn.Instr...)
	}

	addrOfLabel := make(map[string]int)
	labelsAtAddr := make(map[int][]string)
	cursor := 0
	for _, instr := range instrs {
		if instr.Op == OpLabel {
			addrOfLabel[instr.Label] = cursor
			labelsAtAddr[cursor] = append(labelsAtAddr[cursor], instr.Label)
			continue
		}
		cursor += instr.Size()
	}

	canonical := make(map[string]string)
	for _, names := range labelsAtAddr {
		best := names[0]
		for _, n := range names[1:] {
			if labelPriority(a.events, n) > labelPriority(a.events, best) {
				best = n
			}
		}
		for _, n := range names {
			canonical[n] = best
		}
	}

	return instrs, addrOfLabel, canonical
}

func labelPriority(events vrcevent.Registry, name string) int {
	switch {
	case events != nil && events.IsVrcEventLabel(name):
		return 3
	case name == "_start":
		return 2
	case !strings.HasPrefix(name, "__"):
		return 1
	default:
		return 0
	}
}

func (a *Assembler) emitDataSection(b *strings.Builder, prog *Program) {
	b.WriteString(".data_start\n")
	for _, d := range prog.Data {
		b.WriteString(fmt.Sprintf("    %s: %%%s, %s\n", d.Name, d.UdonType, serializeValue(d.Value)))
		if !d.Internal {
			b.WriteString(fmt.Sprintf("    .export %s\n", d.Name))
			b.WriteString(fmt.Sprintf("    .sync %s, %s\n", d.Name, syncOrDefault(d)))
		}
	}
	b.WriteString(".data_end\n")
}

func syncOrDefault(d DataEntry) string {
	if d.SyncMode == "" {
		return "none"
	}
	return d.SyncMode
}

func (a *Assembler) emitCodeSection(b *strings.Builder, instrs []Instr, labelAddr map[string]int, canonical map[string]string, warnings *[]string) {
	b.WriteString(".code_start\n")

	emittedLabel := make(map[string]bool)
	cursor := 0
	for _, instr := range instrs {
		switch instr.Op {
		case OpLabel:
			canon := canonical[instr.Label]
			if emittedLabel[canon] {
				continue
			}
			emittedLabel[canon] = true
			b.WriteString(fmt.Sprintf("    %s:\n", canon))
			if isExportableLabel(a.events, canon) {
				b.WriteString(fmt.Sprintf("    .export %s\n", canon))
			}
		case OpPush:
			b.WriteString(fmt.Sprintf("    PUSH, %s\n", instr.Operand))
			cursor += instr.Size()
		case OpPop:
			b.WriteString("    POP\n")
			cursor += instr.Size()
		case OpCopy:
			b.WriteString("    COPY\n")
			cursor += instr.Size()
		case OpExtern:
			b.WriteString(fmt.Sprintf("    EXTERN, %s\n", instr.Signature))
			cursor += instr.Size()
		case OpJump:
			b.WriteString(fmt.Sprintf("    JUMP, %s\n", resolveAddress(instr.Target, labelAddr, canonical, warnings)))
			cursor += instr.Size()
		case OpJumpIfFalse:
			b.WriteString(fmt.Sprintf("    JUMP_IF_FALSE, %s\n", resolveAddress(instr.Target, labelAddr, canonical, warnings)))
			cursor += instr.Size()
		case OpAnnotation:
			b.WriteString(fmt.Sprintf("    ANNOTATION, %s\n", instr.Note))
			cursor += instr.Size()
		}
	}
	b.WriteString(".code_end\n")
}

func isExportableLabel(events vrcevent.Registry, name string) bool {
	if name == "_start" {
		return true
	}
	return events != nil && events.IsVrcEventLabel(name)
}

// resolveAddress formats a jump target as the 10-character address
// literal (§3.4, §8 invariant 2 and 4): the `__halt` target a TAC Return
// lowers to maps to the halt address directly; unresolved labels append
// to warnings and fall back to the halt address (§7 UnresolvedLabel).
func resolveAddress(target string, labelAddr map[string]int, canonical map[string]string, warnings *[]string) string {
	if target == "__halt" {
		return haltAddress
	}
	name := target
	if c, ok := canonical[target]; ok {
		name = c
	}
	addr, ok := labelAddr[name]
	if !ok {
		warn := &compileerrors.UnresolvedLabelWarning{Label: target}
		*warnings = append(*warnings, warn.Error())
		return haltAddress
	}
	return formatAddress(addr)
}

func formatAddress(addr int) string {
	return fmt.Sprintf("0x%08X", addr)
}

// serializeValue implements §4.G step 4. Floats always carry a decimal
// point (no scientific notation); integers are written in decimal as
// stored, with no clamping to their type's range; ValueVerbatim entries
// and strings already prefixed with 0x are written as-is; everything else,
// including type-name string constants, is JSON-stringified.
func serializeValue(v Value) string {
	switch v.Kind {
	case ValueNull:
		return "null"
	case ValueBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case ValueNumber:
		return formatFloat(v.Number)
	case ValueInt:
		return strconv.FormatInt(v.Int, 10)
	case ValueVerbatim:
		return v.Raw
	case ValueString:
		if strings.HasPrefix(v.Str, "0x") {
			return v.Str
		}
		return jsonString(v.Str)
	default:
		return "null"
	}
}

// formatFloat expands scientific notation and guarantees a decimal
// point even for whole numbers (§4.G step 4, §8 invariant 7 round-trip).
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func jsonString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
