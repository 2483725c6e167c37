package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble renders every instruction in chunk as text, one line per
// instruction, in the format DisassembleInstruction produces. It is not
// part of normal execution; the lumen CLI calls it only when its -trace
// flag is given, to dump the compiled script before running it.
func Disassemble(chunk *Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	offset := 0
	for offset < len(chunk.Code) {
		line, next := DisassembleInstruction(chunk, offset)
		b.WriteString(line)
		b.WriteByte('\n')
		offset = next
	}
	return b.String()
}

// DisassembleInstruction renders the single instruction at offset and
// returns its text plus the offset of the following instruction.
func DisassembleInstruction(chunk *Chunk, offset int) (string, int) {
	op := Opcode(chunk.Code[offset])
	line := chunk.LineAt(offset)

	switch op {
	case OpConstant:
		idx := int(chunk.Code[offset+1])
		return fmt.Sprintf("%04d %4d %-18s %4d '%s'", offset, line, op.Name(), idx, stringizeValue(chunk.Constants[idx])), offset + 2

	case OpConstantLong:
		idx := read24(chunk.Code, offset+1)
		return fmt.Sprintf("%04d %4d %-18s %4d '%s'", offset, line, op.Name(), idx, stringizeValue(chunk.Constants[idx])), offset + 4

	case OpGetLocal, OpSetLocal, OpGetGlobal, OpSetGlobal, OpDefineGlobal, OpCall:
		operand := int(chunk.Code[offset+1])
		return fmt.Sprintf("%04d %4d %-18s %4d", offset, line, op.Name(), operand), offset + 2

	case OpGetLocalShort, OpSetLocalShort:
		operand := int(binary.LittleEndian.Uint16(chunk.Code[offset+1:]))
		return fmt.Sprintf("%04d %4d %-18s %4d", offset, line, op.Name(), operand), offset + 3

	case OpGetGlobalLong, OpSetGlobalLong, OpDefineGlobalLong:
		operand := read24(chunk.Code, offset+1)
		return fmt.Sprintf("%04d %4d %-18s %4d", offset, line, op.Name(), operand), offset + 4

	case OpJump, OpJumpIfFalse, OpJumpIfTrue:
		delta := int(binary.LittleEndian.Uint16(chunk.Code[offset+1:]))
		target := offset + 3 + delta
		return fmt.Sprintf("%04d %4d %-18s %4d -> %d", offset, line, op.Name(), delta, target), offset + 3

	case OpJumpBack:
		delta := int(binary.LittleEndian.Uint16(chunk.Code[offset+1:]))
		target := offset + 3 - delta
		return fmt.Sprintf("%04d %4d %-18s %4d -> %d", offset, line, op.Name(), delta, target), offset + 3

	default:
		return fmt.Sprintf("%04d %4d %-18s", offset, line, op.Name()), offset + 1 + op.OperandBytes()
	}
}

func read24(code []byte, offset int) int {
	return int(code[offset]) | int(code[offset+1])<<8 | int(code[offset+2])<<16
}
