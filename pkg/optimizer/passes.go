package optimizer

import (
	"fmt"

	"github.com/udon-lang/udonc/pkg/tac"
)

// foldConstants implements pass 1, constant folding: binary/unary ops
// over two Constant operands reduce to a single Constant, grounded in
// the teacher's Optimizer.foldBinaryOp (pkg/compiler/optimizer.go).
func foldConstants(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		for i, instr := range b.Instr {
			switch v := instr.(type) {
			case *tac.BinaryOp:
				if folded := foldBinary(v); folded != nil {
					b.Instr[i] = folded
					changed = true
				}
			case *tac.UnaryOp:
				if folded := foldUnary(v); folded != nil {
					b.Instr[i] = folded
					changed = true
				}
			}
		}
	}
	return changed
}

func foldBinary(v *tac.BinaryOp) tac.Instruction {
	l, lok := v.Left.(*tac.Constant)
	r, rok := v.Right.(*tac.Constant)
	if !lok || !rok || l.Kind != tac.ConstNumber || r.Kind != tac.ConstNumber {
		return nil
	}
	var result float64
	switch v.Op {
	case "+":
		result = l.Number + r.Number
	case "-":
		result = l.Number - r.Number
	case "*":
		result = l.Number * r.Number
	case "/":
		if r.Number == 0 {
			return nil
		}
		result = l.Number / r.Number
	default:
		return nil
	}
	return &tac.Assignment{Dest: v.Dest, Src: tac.NumberConstant(result)}
}

func foldUnary(v *tac.UnaryOp) tac.Instruction {
	c, ok := v.Operand.(*tac.Constant)
	if !ok {
		return nil
	}
	switch v.Op {
	case "-":
		if c.Kind == tac.ConstNumber {
			return &tac.Assignment{Dest: v.Dest, Src: tac.NumberConstant(-c.Number)}
		}
	case "!":
		if c.Kind == tac.ConstBool {
			return &tac.Assignment{Dest: v.Dest, Src: tac.BoolConstant(!c.Bool)}
		}
	}
	return nil
}

// sccpAndPruneUnreachable implements pass 2: a lightweight sparse
// conditional constant pass — ConditionalJump on a folded Constant
// becomes an UnconditionalJump (or falls through) — followed by
// removal of blocks BuildCFG's dominance walk can no longer reach.
func sccpAndPruneUnreachable(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		if len(b.Instr) == 0 {
			continue
		}
		cj, ok := b.Instr[len(b.Instr)-1].(*tac.ConditionalJump)
		if !ok {
			continue
		}
		c, ok := cj.Cond.(*tac.Constant)
		if !ok || c.Kind != tac.ConstBool {
			continue
		}
		if !c.Bool {
			// ifFalse false goto L -- always taken
			b.Instr[len(b.Instr)-1] = &tac.UnconditionalJump{Target: cj.Target}
			for i, s := range b.Succs {
				if s.Label != cj.Target.Name {
					removePred(s, b)
					b.Succs = append(b.Succs[:i], b.Succs[i+1:]...)
					break
				}
			}
		} else {
			// ifFalse true goto L -- never taken; remove the jump
			b.Instr = b.Instr[:len(b.Instr)-1]
			for i, s := range b.Succs {
				if s.Label == cj.Target.Name {
					removePred(s, b)
					b.Succs = append(b.Succs[:i], b.Succs[i+1:]...)
					break
				}
			}
		}
		changed = true
	}

	reachable := cfg.Reachable()
	var kept []*Block
	for _, b := range cfg.Blocks {
		if b == cfg.Entry || reachable[b] {
			kept = append(kept, b)
		} else {
			changed = true
		}
	}
	cfg.Blocks = kept
	return changed
}

func removePred(b, pred *Block) {
	for i, p := range b.Preds {
		if p == pred {
			b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
			return
		}
	}
}

// simplifyBooleans implements pass 3: `x == true` -> x, `x == false`
// -> !x, per §4.E "boolean simplification". Double negation is not
// removed.
func simplifyBooleans(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		for i, instr := range b.Instr {
			bo, ok := instr.(*tac.BinaryOp)
			if !ok || bo.Op != "==" {
				continue
			}
			if c, ok := bo.Right.(*tac.Constant); ok && c.Kind == tac.ConstBool {
				if c.Bool {
					b.Instr[i] = &tac.Assignment{Dest: bo.Dest, Src: bo.Left}
				} else {
					b.Instr[i] = &tac.UnaryOp{Dest: bo.Dest, Op: "!", Operand: bo.Left}
				}
				changed = true
			}
		}
	}
	return changed
}

// simplifyAlgebra implements pass 4: identity/annihilator rules
// (x+0, x*1, x*0, x-0) fold away the operation entirely.
func simplifyAlgebra(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		for i, instr := range b.Instr {
			bo, ok := instr.(*tac.BinaryOp)
			if !ok {
				continue
			}
			if repl := algebraicIdentity(bo); repl != nil {
				b.Instr[i] = repl
				changed = true
			}
		}
	}
	return changed
}

func algebraicIdentity(bo *tac.BinaryOp) tac.Instruction {
	isZero := func(o tac.Operand) bool { c, ok := o.(*tac.Constant); return ok && c.Kind == tac.ConstNumber && c.Number == 0 }
	isOne := func(o tac.Operand) bool { c, ok := o.(*tac.Constant); return ok && c.Kind == tac.ConstNumber && c.Number == 1 }
	switch bo.Op {
	case "+":
		if isZero(bo.Right) {
			return &tac.Assignment{Dest: bo.Dest, Src: bo.Left}
		}
		if isZero(bo.Left) {
			return &tac.Assignment{Dest: bo.Dest, Src: bo.Right}
		}
	case "-":
		if isZero(bo.Right) {
			return &tac.Assignment{Dest: bo.Dest, Src: bo.Left}
		}
	case "*":
		if isOne(bo.Right) {
			return &tac.Assignment{Dest: bo.Dest, Src: bo.Left}
		}
		if isOne(bo.Left) {
			return &tac.Assignment{Dest: bo.Dest, Src: bo.Right}
		}
		if isZero(bo.Right) || isZero(bo.Left) {
			return &tac.Assignment{Dest: bo.Dest, Src: tac.NumberConstant(0)}
		}
	}
	return nil
}

// gvnCSE implements pass 5: pure Call/MethodCall/BinaryOp instructions
// with identical signature+args, within the same block, reuse the
// first result — local value numbering, grounded in the teacher's
// exprKey/expressions map (pkg/compiler/optimizer.go).
func gvnCSE(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		seen := make(map[string]tac.Operand)
		for i, instr := range b.Instr {
			key, dest, ok := valueKey(instr)
			if !ok {
				continue
			}
			if existing, found := seen[key]; found {
				b.Instr[i] = &tac.Assignment{Dest: dest, Src: existing}
				changed = true
				continue
			}
			seen[key] = dest
		}
	}
	return changed
}

func valueKey(instr tac.Instruction) (string, tac.Operand, bool) {
	switch v := instr.(type) {
	case *tac.BinaryOp:
		return fmt.Sprintf("bin:%s:%s:%s", v.Op, v.Left, v.Right), v.Dest, true
	case *tac.Call:
		if !v.Pure || v.Dest == nil {
			return "", nil, false
		}
		return "call:" + v.Signature + ":" + argsKey(v.Args), v.Dest, true
	case *tac.MethodCall:
		if !v.Pure || v.Dest == nil {
			return "", nil, false
		}
		return "mcall:" + v.Receiver.String() + "." + v.Signature + ":" + argsKey(v.Args), v.Dest, true
	}
	return "", nil, false
}

func argsKey(args []tac.Operand) string {
	s := ""
	for _, a := range args {
		s += a.String() + ","
	}
	return s
}

// elideSingleUseTemps implements pass 6: a temporary assigned exactly
// once and consumed exactly once, with no intervening side-effecting
// instruction, is inlined at its use site and its Assignment removed.
func elideSingleUseTemps(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		uses := countTempUses(b.Instr)
		defs := make(map[int]int) // temp id -> defining instruction index
		for i, instr := range b.Instr {
			if a, ok := instr.(*tac.Assignment); ok {
				if t, ok := a.Dest.(*tac.Temporary); ok {
					defs[t.ID] = i
				}
			}
		}
		for id, defIdx := range defs {
			if uses[id] != 1 {
				continue
			}
			a := b.Instr[defIdx].(*tac.Assignment)
			if replaceFirstUse(b.Instr, defIdx+1, id, a.Src) {
				b.Instr[defIdx] = nil
				changed = true
			}
		}
		if changed {
			b.Instr = compact(b.Instr)
		}
	}
	return changed
}

func countTempUses(instrs []tac.Instruction) map[int]int {
	counts := make(map[int]int)
	visit := func(o tac.Operand) {
		if t, ok := o.(*tac.Temporary); ok {
			counts[t.ID]++
		}
	}
	for _, instr := range instrs {
		for _, o := range operandsOf(instr) {
			visit(o)
		}
	}
	return counts
}

func replaceFirstUse(instrs []tac.Instruction, from int, tempID int, repl tac.Operand) bool {
	for i := from; i < len(instrs); i++ {
		if instrs[i] == nil {
			continue
		}
		if substituteOperand(instrs[i], tempID, repl) {
			return true
		}
		switch instrs[i].(type) {
		case *tac.Call, *tac.MethodCall, *tac.PropertySet, *tac.ArrayAssignment:
			return false
		}
		if d := destOf(instrs[i]); d != nil && d.String() == repl.String() {
			return false
		}
	}
	return false
}

func compact(instrs []tac.Instruction) []tac.Instruction {
	out := instrs[:0]
	for _, instr := range instrs {
		if instr != nil {
			out = append(out, instr)
		}
	}
	return out
}

// removeNoOpCopies implements pass 7: `x = x` is deleted outright.
func removeNoOpCopies(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		var out []tac.Instruction
		for _, instr := range b.Instr {
			if c, ok := instr.(*tac.Copy); ok && c.Dest.String() == c.Src.String() {
				changed = true
				continue
			}
			out = append(out, instr)
		}
		b.Instr = out
	}
	return changed
}

// deadStoreElimination implements pass 8: an Assignment/Copy to a
// Variable or Temporary never read again in the function (no later
// use, anywhere, not only same-block) is removed, provided the
// right-hand side has no side effect worth preserving.
func deadStoreElimination(cfg *CFG) bool {
	used := make(map[string]bool)
	for _, b := range cfg.Blocks {
		for _, instr := range b.Instr {
			for _, o := range operandsOf(instr) {
				used[o.String()] = true
			}
		}
	}
	changed := false
	for _, b := range cfg.Blocks {
		var out []tac.Instruction
		for _, instr := range b.Instr {
			if isDeadStore(instr, used) {
				changed = true
				continue
			}
			out = append(out, instr)
		}
		b.Instr = out
	}
	return changed
}

func isDeadStore(instr tac.Instruction, used map[string]bool) bool {
	switch v := instr.(type) {
	case *tac.Assignment:
		return !used[v.Dest.String()]
	case *tac.Copy:
		return !used[v.Dest.String()]
	}
	return false
}

// removeDeadCode implements pass 9: unreachable-after-Return/jump
// instructions within a block are trimmed.
func removeDeadCode(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		for i, instr := range b.Instr {
			switch instr.(type) {
			case *tac.Return, *tac.UnconditionalJump:
				if i+1 < len(b.Instr) {
					b.Instr = b.Instr[:i+1]
					changed = true
				}
			}
		}
	}
	return changed
}

// simplifyJumps implements pass 10: a block whose only content is an
// unconditional jump is elided by retargeting its predecessors
// directly to its successor (jump-to-jump threading).
func simplifyJumps(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		if len(b.Instr) != 1 {
			continue
		}
		uj, ok := b.Instr[0].(*tac.UnconditionalJump)
		if !ok {
			continue
		}
		for _, p := range b.Preds {
			retargeted := retarget(p, b.Label, uj.Target.Name)
			if retargeted {
				changed = true
			}
		}
	}
	return changed
}

func retarget(b *Block, oldLabel, newLabel string) bool {
	changed := false
	for i, instr := range b.Instr {
		switch v := instr.(type) {
		case *tac.UnconditionalJump:
			if v.Target.Name == oldLabel {
				b.Instr[i] = &tac.UnconditionalJump{Target: &tac.Label{Name: newLabel}}
				changed = true
			}
		case *tac.ConditionalJump:
			if v.Target.Name == oldLabel {
				b.Instr[i] = &tac.ConditionalJump{Cond: v.Cond, Target: &tac.Label{Name: newLabel}}
				changed = true
			}
		}
	}
	return changed
}

// hoistInvariants implements pass 11, loop-invariant code motion: a
// pure instruction inside a natural loop whose operands are all
// defined outside the loop is moved to a preheader synthesized just
// before the loop header.
func hoistInvariants(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		if !cfg.IsLoopHeader(b) {
			continue
		}
		loopBody := natural(cfg, b)
		definedOutside := definedOutsideSet(cfg, loopBody)
		for _, lb := range loopBody {
			var kept []tac.Instruction
			for _, instr := range lb.Instr {
				if isPureInvariant(instr, definedOutside) {
					insertBeforeHeader(cfg, b, instr)
					changed = true
					continue
				}
				kept = append(kept, instr)
			}
			lb.Instr = kept
		}
	}
	return changed
}

func natural(cfg *CFG, header *Block) []*Block {
	body := map[*Block]bool{header: true}
	for _, p := range header.Preds {
		if cfg.Dominates(header, p) {
			var stack []*Block
			stack = append(stack, p)
			for len(stack) > 0 {
				n := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if body[n] {
					continue
				}
				body[n] = true
				stack = append(stack, n.Preds...)
			}
		}
	}
	out := make([]*Block, 0, len(body))
	for b := range body {
		out = append(out, b)
	}
	return out
}

func definedOutsideSet(cfg *CFG, loopBody []*Block) map[string]bool {
	inLoop := make(map[*Block]bool)
	for _, b := range loopBody {
		inLoop[b] = true
	}
	out := make(map[string]bool)
	for _, b := range cfg.Blocks {
		if inLoop[b] {
			continue
		}
		for _, instr := range b.Instr {
			if d := destOf(instr); d != nil {
				out[d.String()] = true
			}
		}
	}
	for _, b := range loopBody {
		for _, instr := range b.Instr {
			if d := destOf(instr); d != nil {
				delete(out, d.String())
			}
		}
	}
	return out
}

func isPureInvariant(instr tac.Instruction, definedOutside map[string]bool) bool {
	bo, ok := instr.(*tac.BinaryOp)
	if !ok {
		return false
	}
	for _, o := range []tac.Operand{bo.Left, bo.Right} {
		switch o.(type) {
		case *tac.Constant:
			continue
		default:
			if !definedOutside[o.String()] {
				return false
			}
		}
	}
	return true
}

func insertBeforeHeader(cfg *CFG, header *Block, instr tac.Instruction) {
	for i, b := range cfg.Blocks {
		if b == header {
			pre := &Block{Label: header.Label + "_preheader", Instr: []tac.Instruction{instr}}
			cfg.Blocks = append(cfg.Blocks[:i], append([]*Block{pre}, cfg.Blocks[i:]...)...)
			return
		}
	}
}

// strengthReduceInductionVars implements pass 12: an induction variable
// incremented by a loop-invariant step and multiplied by a loop-
// invariant factor elsewhere in the loop gets its multiplication
// replaced with an accumulator updated by step*factor each iteration.
// This pass only fires on the narrow, easily-recognised `i * k` pattern
// where k is loop-invariant and i is the loop's own counter.
func strengthReduceInductionVars(cfg *CFG) bool {
	changed := false
	for _, b := range cfg.Blocks {
		if !cfg.IsLoopHeader(b) {
			continue
		}
		step, ivVar := findCounterStep(b)
		if ivVar == "" {
			continue
		}
		for _, lb := range natural(cfg, b) {
			for i, instr := range lb.Instr {
				bo, ok := instr.(*tac.BinaryOp)
				if !ok || bo.Op != "*" {
					continue
				}
				var factor tac.Operand
				if bo.Left.String() == ivVar {
					factor = bo.Right
				} else if bo.Right.String() == ivVar {
					factor = bo.Left
				} else {
					continue
				}
				factorConst, isConst := factor.(*tac.Constant)
				stepConst, stepIsConst := step.(*tac.Constant)
				if !isConst || !stepIsConst || factorConst.Kind != tac.ConstNumber || stepConst.Kind != tac.ConstNumber {
					continue
				}
				// i*k where k and the induction step are both constant:
				// replace with an accumulator that advances by step*k
				// each time around the loop, instead of multiplying fresh.
				accum := &tac.Variable{Name: bo.Dest.String() + "_accum", Typ: bo.Dest.Type()}
				lb.Instr[i] = &tac.BinaryOp{Dest: bo.Dest, Op: "+", Left: accum, Right: tac.NumberConstant(stepConst.Number * factorConst.Number)}
				changed = true
			}
		}
	}
	return changed
}

func findCounterStep(header *Block) (step tac.Operand, varName string) {
	for _, instr := range header.Instr {
		if bo, ok := instr.(*tac.BinaryOp); ok && bo.Op == "+" {
			if bo.Dest.String() == bo.Left.String() {
				return bo.Right, bo.Dest.String()
			}
		}
	}
	return nil, ""
}

// eliminateDeadTemps implements pass 13: a stricter pass over DSE,
// specifically removing Temporary definitions with zero uses anywhere
// in the function (covers temps a prior pass's rewrite orphaned).
func eliminateDeadTemps(cfg *CFG) bool {
	used := make(map[string]bool)
	for _, b := range cfg.Blocks {
		for _, instr := range b.Instr {
			for _, o := range operandsOf(instr) {
				used[o.String()] = true
			}
		}
	}
	changed := false
	for _, b := range cfg.Blocks {
		var out []tac.Instruction
		for _, instr := range b.Instr {
			if d := destOf(instr); d != nil {
				if _, isTemp := d.(*tac.Temporary); isTemp && !used[d.String()] {
					changed = true
					continue
				}
			}
			out = append(out, instr)
		}
		b.Instr = out
	}
	return changed
}

// expandCopyOnWrite implements pass 14: an ArrayAssignment whose
// source array is read elsewhere after this write (aliased) is
// rewritten to first clone the array via the catalog's constructor,
// write into the clone, and store the clone back into the array
// variable, matching Udon's by-reference array
// semantics to the surface language's value semantics (§4.E, §9).
func expandCopyOnWrite(cfg *CFG, aliasedArrays map[string]bool) bool {
	changed := false
	nextTempID := maxTempID(cfg) + 1
	for _, b := range cfg.Blocks {
		var out []tac.Instruction
		for _, instr := range b.Instr {
			aa, ok := instr.(*tac.ArrayAssignment)
			if ok && aliasedArrays[aa.Array.String()] {
				cloneSig := "VRCArray.__Clone__SystemObject"
				cloneTemp := &tac.Temporary{ID: nextTempID, Typ: aa.Array.Type()}
				nextTempID++
				out = append(out, &tac.Call{Dest: cloneTemp, Signature: cloneSig, IsExtern: true, Args: []tac.Operand{aa.Array}})
				out = append(out, &tac.ArrayAssignment{Array: cloneTemp, Index: aa.Index, Value: aa.Value})
				out = append(out, &tac.Copy{Dest: aa.Array, Src: cloneTemp})
				changed = true
				continue
			}
			out = append(out, instr)
		}
		b.Instr = out
	}
	return changed
}

// maxTempID scans every instruction in cfg for Temporary operands
// (destinations and operands alike) and returns the highest ID seen, or
// -1 if the function has none yet — callers allocate fresh IDs starting
// at the returned value + 1 so a freshly introduced clone temp can never
// collide with (and alias the data slot of) an existing one.
func maxTempID(cfg *CFG) int {
	max := -1
	consider := func(o tac.Operand) {
		if t, ok := o.(*tac.Temporary); ok && t.ID > max {
			max = t.ID
		}
	}
	for _, b := range cfg.Blocks {
		for _, instr := range b.Instr {
			if d := destOf(instr); d != nil {
				consider(d)
			}
			for _, o := range operandsOf(instr) {
				consider(o)
			}
		}
	}
	return max
}

func operandsOf(instr tac.Instruction) []tac.Operand {
	switch v := instr.(type) {
	case *tac.Assignment:
		return []tac.Operand{v.Src}
	case *tac.Copy:
		return []tac.Operand{v.Src}
	case *tac.BinaryOp:
		return []tac.Operand{v.Left, v.Right}
	case *tac.UnaryOp:
		return []tac.Operand{v.Operand}
	case *tac.Cast:
		return []tac.Operand{v.Src}
	case *tac.ConditionalJump:
		return []tac.Operand{v.Cond}
	case *tac.Call:
		return v.Args
	case *tac.MethodCall:
		ops := append([]tac.Operand{v.Receiver}, v.Args...)
		return ops
	case *tac.PropertyGet:
		return []tac.Operand{v.Receiver}
	case *tac.PropertySet:
		return []tac.Operand{v.Receiver, v.Value}
	case *tac.Return:
		if v.Value != nil {
			return []tac.Operand{v.Value}
		}
	case *tac.ArrayAccess:
		return []tac.Operand{v.Array, v.Index}
	case *tac.ArrayAssignment:
		return []tac.Operand{v.Array, v.Index, v.Value}
	}
	return nil
}

func destOf(instr tac.Instruction) tac.Operand {
	switch v := instr.(type) {
	case *tac.Assignment:
		return v.Dest
	case *tac.Copy:
		return v.Dest
	case *tac.BinaryOp:
		return v.Dest
	case *tac.UnaryOp:
		return v.Dest
	case *tac.Cast:
		return v.Dest
	case *tac.Call:
		return v.Dest
	case *tac.MethodCall:
		return v.Dest
	case *tac.PropertyGet:
		return v.Dest
	case *tac.ArrayAccess:
		return v.Dest
	}
	return nil
}

func substituteOperand(instr tac.Instruction, tempID int, repl tac.Operand) bool {
	matches := func(o tac.Operand) bool { t, ok := o.(*tac.Temporary); return ok && t.ID == tempID }
	switch v := instr.(type) {
	case *tac.Assignment:
		if matches(v.Src) {
			v.Src = repl
			return true
		}
	case *tac.Copy:
		if matches(v.Src) {
			v.Src = repl
			return true
		}
	case *tac.BinaryOp:
		hit := false
		if matches(v.Left) {
			v.Left = repl
			hit = true
		}
		if matches(v.Right) {
			v.Right = repl
			hit = true
		}
		return hit
	case *tac.UnaryOp:
		if matches(v.Operand) {
			v.Operand = repl
			return true
		}
	case *tac.ConditionalJump:
		if matches(v.Cond) {
			v.Cond = repl
			return true
		}
	case *tac.Call:
		for i, a := range v.Args {
			if matches(a) {
				v.Args[i] = repl
				return true
			}
		}
	case *tac.MethodCall:
		if matches(v.Receiver) {
			v.Receiver = repl
			return true
		}
		for i, a := range v.Args {
			if matches(a) {
				v.Args[i] = repl
				return true
			}
		}
	case *tac.Return:
		if v.Value != nil && matches(v.Value) {
			v.Value = repl
			return true
		}
	case *tac.ArrayAccess:
		if matches(v.Array) {
			v.Array = repl
			return true
		}
		if matches(v.Index) {
			v.Index = repl
			return true
		}
	case *tac.ArrayAssignment:
		if matches(v.Value) {
			v.Value = repl
			return true
		}
	}
	return false
}
