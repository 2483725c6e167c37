package vm

import "fmt"

// Opcode identifies a single bytecode instruction. Each opcode is one byte;
// its operand width (if any) is fixed per opcode and described below.
type Opcode byte

const (
	OpConstant     Opcode = iota // 1-byte constant index
	OpConstantLong               // 3-byte (24-bit) constant index
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpDup
	OpGetLocal      // 1-byte stack slot
	OpGetLocalShort // 2-byte stack slot
	OpSetLocal      // 1-byte stack slot
	OpSetLocalShort // 2-byte stack slot
	OpGetGlobal     // 1-byte global slot
	OpGetGlobalLong // 3-byte global slot
	OpSetGlobal     // 1-byte global slot
	OpSetGlobalLong // 3-byte global slot
	OpDefineGlobal     // 1-byte global slot
	OpDefineGlobalLong // 3-byte global slot
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpNot
	OpNegate
	OpPrint
	OpJump         // 2-byte (16-bit) forward offset
	OpJumpIfFalse  // 2-byte forward offset; does not pop
	OpJumpIfTrue   // 2-byte forward offset; does not pop
	OpJumpBack     // 2-byte backward offset
	OpCall         // 1-byte argument count
	OpReturn
)

// opcodeInfo mirrors the metadata tables the teacher's bytecode package
// keeps alongside its opcode set: a human name and operand width, used by
// the disassembler and by the compiler's width-selection logic.
type opcodeInfo struct {
	Name         string
	OperandBytes int
}

var opcodeTable = map[Opcode]opcodeInfo{
	OpConstant:         {"CONSTANT", 1},
	OpConstantLong:     {"CONSTANT_LONG", 3},
	OpNil:              {"NIL", 0},
	OpTrue:             {"TRUE", 0},
	OpFalse:            {"FALSE", 0},
	OpPop:              {"POP", 0},
	OpDup:              {"DUP", 0},
	OpGetLocal:         {"GET_LOCAL", 1},
	OpGetLocalShort:    {"GET_LOCAL_SHORT", 2},
	OpSetLocal:         {"SET_LOCAL", 1},
	OpSetLocalShort:    {"SET_LOCAL_SHORT", 2},
	OpGetGlobal:        {"GET_GLOBAL", 1},
	OpGetGlobalLong:    {"GET_GLOBAL_LONG", 3},
	OpSetGlobal:        {"SET_GLOBAL", 1},
	OpSetGlobalLong:    {"SET_GLOBAL_LONG", 3},
	OpDefineGlobal:     {"DEFINE_GLOBAL", 1},
	OpDefineGlobalLong: {"DEFINE_GLOBAL_LONG", 3},
	OpEqual:            {"EQUAL", 0},
	OpGreater:          {"GREATER", 0},
	OpLess:             {"LESS", 0},
	OpAdd:              {"ADD", 0},
	OpSubtract:         {"SUBTRACT", 0},
	OpMultiply:         {"MULTIPLY", 0},
	OpDivide:           {"DIVIDE", 0},
	OpModulo:           {"MODULO", 0},
	OpNot:              {"NOT", 0},
	OpNegate:           {"NEGATE", 0},
	OpPrint:            {"PRINT", 0},
	OpJump:             {"JUMP", 2},
	OpJumpIfFalse:      {"JUMP_IF_FALSE", 2},
	OpJumpIfTrue:       {"JUMP_IF_TRUE", 2},
	OpJumpBack:         {"JUMP_BACK", 2},
	OpCall:             {"CALL", 1},
	OpReturn:           {"RETURN", 0},
}

// Name returns the disassembly mnemonic for op.
func (op Opcode) Name() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("UNKNOWN_%02X", byte(op))
}

// OperandBytes returns the number of operand bytes that follow op in a
// bytecode stream.
func (op Opcode) OperandBytes() int {
	return opcodeTable[op].OperandBytes
}

func (op Opcode) String() string { return op.Name() }
