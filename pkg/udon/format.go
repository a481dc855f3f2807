package udon

import (
	"fmt"
	"strings"
)

// FormatProgram renders prog as an annotated disassembly listing for
// `udonc compile --dump-udon` and golden tests, distinct from
// Assemble's wire-format .uasm output: each function gets a header line
// naming its entry label, and each instruction is prefixed with its byte
// offset from the start of that function, so the listing reads like a
// disassembler trace rather than assembler input.
func FormatProgram(prog *Program) string {
	var b strings.Builder

	b.WriteString("; data\n")
	for _, d := range prog.Data {
		tag := ""
		if d.Internal {
			tag = " internal"
		} else if d.Exported {
			tag = " exported"
		}
		b.WriteString(fmt.Sprintf("%-28s %%%s = %s%s\n", d.Name, d.UdonType, serializeValue(d.Value), tag))
	}

	for _, fn := range prog.Functions {
		b.WriteString(fmt.Sprintf("\n; function %s\n", fn.EntryLabel))
		offset := 0
		for _, instr := range fn.Instr {
			b.WriteString(formatInstr(offset, instr))
			offset += instr.Size()
		}
	}
	return b.String()
}

func formatInstr(offset int, instr Instr) string {
	switch instr.Op {
	case OpLabel:
		return fmt.Sprintf("%s:\n", instr.Label)
	case OpPush:
		return fmt.Sprintf("  %04X  PUSH           %s\n", offset, instr.Operand)
	case OpPop:
		return fmt.Sprintf("  %04X  POP\n", offset)
	case OpCopy:
		return fmt.Sprintf("  %04X  COPY\n", offset)
	case OpExtern:
		pure := ""
		if instr.Pure {
			pure = "  ; pure"
		}
		return fmt.Sprintf("  %04X  EXTERN         %s%s\n", offset, instr.Signature, pure)
	case OpJump:
		return fmt.Sprintf("  %04X  JUMP           -> %s\n", offset, instr.Target)
	case OpJumpIfFalse:
		return fmt.Sprintf("  %04X  JUMP_IF_FALSE  -> %s\n", offset, instr.Target)
	case OpAnnotation:
		return fmt.Sprintf("  %04X  ANNOTATION     %s\n", offset, instr.Note)
	default:
		return fmt.Sprintf("  %04X  ???\n", offset)
	}
}
