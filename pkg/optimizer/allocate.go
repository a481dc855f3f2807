package optimizer

import (
	"sort"

	"github.com/udon-lang/udonc/pkg/tac"
)

// liveRange is a temporary's first-def to last-use instruction index
// within its function's linearized instruction stream.
type liveRange struct {
	id         int
	start, end int
	typ        *tac.Temporary
}

// LinearScanAllocate implements pass 15: linear-scan register
// allocation over temporaries, assigning each live range a slot name
// and reusing a slot once its live range ends, the way a linear
// scanner reuses physical registers. Udon has no registers, only named
// data-section/local slots, so a "slot" here is a synthesized variable
// name (`__slot_a`, `__slot_b`, ..., `__slot_z`, `__slot_aa`, ...)
// temporaries are rewritten to use.
func LinearScanAllocate(cfg *CFG) map[int]string {
	instrs := cfg.Reassemble()
	ranges := computeLiveRanges(instrs)

	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	assignment := make(map[int]string)
	type active struct {
		r    liveRange
		slot string
	}
	var activeList []active
	var freeSlots []string
	slotCounter := 0

	for _, r := range ranges {
		var stillActive []active
		for _, a := range activeList {
			if a.r.end < r.start {
				freeSlots = append(freeSlots, a.slot)
			} else {
				stillActive = append(stillActive, a)
			}
		}
		activeList = stillActive

		var slot string
		if len(freeSlots) > 0 {
			slot = freeSlots[len(freeSlots)-1]
			freeSlots = freeSlots[:len(freeSlots)-1]
		} else {
			slot = slotName(slotCounter)
			slotCounter++
		}
		assignment[r.id] = slot
		activeList = append(activeList, active{r: r, slot: slot})
	}

	applySlotAssignment(cfg, assignment)
	return assignment
}

func slotName(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	s := ""
	for {
		s = string(letters[n%26]) + s
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return "__slot_" + s
}

func computeLiveRanges(instrs []tac.Instruction) []liveRange {
	first := make(map[int]int)
	last := make(map[int]int)
	var byID map[int]*tac.Temporary = make(map[int]*tac.Temporary)

	for i, instr := range instrs {
		if d := destOf(instr); d != nil {
			if t, ok := d.(*tac.Temporary); ok {
				if _, seen := first[t.ID]; !seen {
					first[t.ID] = i
				}
				last[t.ID] = i
				byID[t.ID] = t
			}
		}
		for _, o := range operandsOf(instr) {
			if t, ok := o.(*tac.Temporary); ok {
				if _, seen := first[t.ID]; !seen {
					first[t.ID] = i
				}
				last[t.ID] = i
				byID[t.ID] = t
			}
		}
	}

	ranges := make([]liveRange, 0, len(first))
	for id, start := range first {
		ranges = append(ranges, liveRange{id: id, start: start, end: last[id], typ: byID[id]})
	}
	return ranges
}

func applySlotAssignment(cfg *CFG, assignment map[int]string) {
	rename := func(o tac.Operand) tac.Operand {
		t, ok := o.(*tac.Temporary)
		if !ok {
			return o
		}
		slot, ok := assignment[t.ID]
		if !ok {
			return o
		}
		return &tac.Variable{Name: slot, Typ: t.Typ, IsLocal: true}
	}
	for _, b := range cfg.Blocks {
		for i, instr := range b.Instr {
			b.Instr[i] = rewriteOperands(instr, rename)
		}
	}
}

func rewriteOperands(instr tac.Instruction, rename func(tac.Operand) tac.Operand) tac.Instruction {
	switch v := instr.(type) {
	case *tac.Assignment:
		v.Dest, v.Src = rename(v.Dest), rename(v.Src)
	case *tac.Copy:
		v.Dest, v.Src = rename(v.Dest), rename(v.Src)
	case *tac.BinaryOp:
		v.Dest, v.Left, v.Right = rename(v.Dest), rename(v.Left), rename(v.Right)
	case *tac.UnaryOp:
		v.Dest, v.Operand = rename(v.Dest), rename(v.Operand)
	case *tac.Cast:
		v.Dest, v.Src = rename(v.Dest), rename(v.Src)
	case *tac.ConditionalJump:
		v.Cond = rename(v.Cond)
	case *tac.Call:
		if v.Dest != nil {
			v.Dest = rename(v.Dest)
		}
		for i, a := range v.Args {
			v.Args[i] = rename(a)
		}
	case *tac.MethodCall:
		v.Receiver = rename(v.Receiver)
		if v.Dest != nil {
			v.Dest = rename(v.Dest)
		}
		for i, a := range v.Args {
			v.Args[i] = rename(a)
		}
	case *tac.PropertyGet:
		v.Receiver = rename(v.Receiver)
		if v.Dest != nil {
			v.Dest = rename(v.Dest)
		}
	case *tac.PropertySet:
		v.Receiver, v.Value = rename(v.Receiver), rename(v.Value)
	case *tac.Return:
		if v.Value != nil {
			v.Value = rename(v.Value)
		}
	case *tac.ArrayAccess:
		v.Dest, v.Array, v.Index = rename(v.Dest), rename(v.Array), rename(v.Index)
	case *tac.ArrayAssignment:
		v.Array, v.Index, v.Value = rename(v.Array), rename(v.Index), rename(v.Value)
	}
	return instr
}

// reuseLocalVariables implements pass 16: distinct surface-level local
// variables with disjoint live ranges and identical Udon type share one
// data-section slot, the same reuse linear-scan already does for
// temporaries, extended here to named Variables.
func reuseLocalVariables(cfg *CFG) bool {
	instrs := cfg.Reassemble()
	type varRange struct {
		name       string
		start, end int
		typ        string
	}
	first := make(map[string]int)
	last := make(map[string]int)
	typeOf := make(map[string]string)
	for i, instr := range instrs {
		for _, o := range append(operandsOf(instr), destOf(instr)) {
			if o == nil {
				continue
			}
			v, ok := o.(*tac.Variable)
			if !ok || !v.IsLocal || v.IsParameter || v.IsExported {
				continue
			}
			if _, seen := first[v.Name]; !seen {
				first[v.Name] = i
			}
			last[v.Name] = i
			typeOf[v.Name] = v.Type().String()
		}
	}

	var ranges []varRange
	for name, s := range first {
		ranges = append(ranges, varRange{name: name, start: s, end: last[name], typ: typeOf[name]})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	rename := make(map[string]string)
	type occupant struct{ r varRange }
	var active []occupant
	changed := false
	for _, r := range ranges {
		var stillActive []occupant
		var freed *varRange
		for _, a := range active {
			if a.r.end < r.start {
				if freed == nil && a.r.typ == r.typ {
					f := a.r
					freed = &f
				}
			} else {
				stillActive = append(stillActive, a)
			}
		}
		active = stillActive
		if freed != nil {
			canonical := freed.name
			if c, ok := rename[canonical]; ok {
				canonical = c
			}
			rename[r.name] = canonical
			changed = true
		}
		active = append(active, occupant{r: r})
	}

	if !changed {
		return false
	}
	renameOp := func(o tac.Operand) tac.Operand {
		v, ok := o.(*tac.Variable)
		if !ok {
			return o
		}
		if newName, ok := rename[v.Name]; ok {
			return &tac.Variable{Name: newName, Typ: v.Typ, IsLocal: v.IsLocal}
		}
		return o
	}
	for _, b := range cfg.Blocks {
		for i, instr := range b.Instr {
			b.Instr[i] = rewriteOperands(instr, renameOp)
		}
	}
	return true
}
