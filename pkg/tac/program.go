package tac

import "strings"

// Function is a flat TAC instruction stream for one lowered
// method/function, plus the data the optimizer and Udon lowerer need
// downstream.
type Function struct {
	Name         string
	Instructions []Instruction
	Variables    []*Variable
	DataSectionOnly bool // true for free-standing entry points with no receiver
}

// Program is the complete lowered unit handed to the optimizer.
type Program struct {
	Functions []*Function
}

// Print renders a Function as the contract-level text form used for
// debugging and golden tests (not the final .uasm — that's pkg/udon).
func (f *Function) Print() string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteString(":\n")
	for _, instr := range f.Instructions {
		if _, ok := instr.(*LabelInstr); ok {
			b.WriteString(instr.String())
			b.WriteString("\n")
			continue
		}
		b.WriteString("  ")
		b.WriteString(instr.String())
		b.WriteString("\n")
	}
	return b.String()
}

// AppendLabel appends a LabelInstr wrapping l.
func (f *Function) AppendLabel(l *Label) {
	f.Instructions = append(f.Instructions, &LabelInstr{Label: l})
}
