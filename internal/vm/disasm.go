package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// DisasmOptions controls the textual disassembly.
type DisasmOptions struct {
	ShowLines     bool
	ShowConstants bool
}

// Disassemble renders a chunk with line markers and a trailing
// constant listing.
func Disassemble(chunk *Chunk, name string) string {
	return DisassembleWith(chunk, name, DisasmOptions{ShowLines: true, ShowConstants: true})
}

// DisassembleWith renders a chunk according to opts.
func DisassembleWith(chunk *Chunk, name string, opts DisasmOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)

	for offset := 0; offset < chunk.Len(); {
		text, next := DisassembleInstruction(chunk, offset, opts.ShowLines)
		b.WriteString(text)
		b.WriteByte('\n')
		offset = next
	}

	if opts.ShowConstants && len(chunk.Constants) > 0 {
		fmt.Fprintf(&b, "-- constants (%d) --\n", len(chunk.Constants))
		for i, c := range chunk.Constants {
			fmt.Fprintf(&b, "%4d  %s\n", i, formatConstant(c))
		}
	}
	return b.String()
}

// DisassembleInstruction renders one instruction and returns its text
// plus the offset of the next instruction.
func DisassembleInstruction(chunk *Chunk, offset int, showLines bool) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d ", offset)

	if showLines {
		if offset > 0 && chunk.Line(offset) == chunk.Line(offset-1) {
			b.WriteString("   | ")
		} else {
			fmt.Fprintf(&b, "%4d ", chunk.Line(offset))
		}
	}

	op := Opcode(chunk.Code[offset])
	switch OperandWidth(op) {
	case 0:
		b.WriteString(op.String())
	case 1:
		operand := chunk.Code[offset+1]
		fmt.Fprintf(&b, "%-16s %4d", op, operand)
		if constantOperand(op) && int(operand) < len(chunk.Constants) {
			fmt.Fprintf(&b, " (%s)", formatConstant(chunk.Constants[operand]))
		}
	case 2:
		operand := chunk.ReadOperand16(offset + 1)
		target := offset + 3 + operand
		if op == OP_LOOP {
			target = offset + 3 - operand
		}
		fmt.Fprintf(&b, "%-16s %4d -> %04d", op, operand, target)
	}
	return b.String(), offset + chunk.InstructionSize(offset)
}

// constantOperand reports whether op's 1-byte operand indexes the
// constant pool.
func constantOperand(op Opcode) bool {
	switch op {
	case OP_CONSTANT, OP_GET_GLOBAL, OP_SET_GLOBAL, OP_DEFINE_GLOBAL, OP_CLOSURE:
		return true
	}
	return false
}

func formatConstant(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Num != 0 {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.Num)
	case KindString:
		return strconv.Quote(v.Str)
	case KindFunction:
		if v.Handle == PlaceholderHandle {
			return "<fn>"
		}
		return fmt.Sprintf("<fn @%d>", v.Handle)
	case KindClosure:
		return fmt.Sprintf("<closure @%d>", v.Handle)
	case KindNative:
		return "<native fn " + v.Native.Name + ">"
	}
	return "<?>"
}
