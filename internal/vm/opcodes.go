package vm

// Opcode is a single VM instruction tag. Every opcode has a fixed
// operand width (0, 1 or 2 bytes) determined by the opcode alone.
type Opcode byte

const (
	// Constants
	OP_CONSTANT Opcode = iota
	OP_NIL
	OP_TRUE
	OP_FALSE

	// Arithmetic
	OP_ADD
	OP_SUBTRACT
	OP_MULTIPLY
	OP_DIVIDE
	OP_MODULO
	OP_NEGATE

	// Comparison
	OP_EQUAL
	OP_NOT_EQUAL
	OP_LESS
	OP_LESS_EQUAL
	OP_GREATER
	OP_GREATER_EQUAL
	OP_NOT

	// Variables
	OP_GET_LOCAL
	OP_SET_LOCAL
	OP_GET_GLOBAL
	OP_SET_GLOBAL
	OP_DEFINE_GLOBAL

	// Control flow
	OP_JUMP
	OP_JUMP_IF_FALSE
	OP_LOOP

	// Functions
	OP_CALL
	OP_RETURN

	// Stack manipulation
	OP_POP

	// Closures
	OP_CLOSURE
	OP_GET_UPVALUE
	OP_SET_UPVALUE
	OP_CLOSE_UPVALUE

	// Statements
	OP_PRINT
)

// OpcodeNames maps opcodes to their mnemonic names for disassembly.
var OpcodeNames = map[Opcode]string{
	OP_CONSTANT:      "OP_CONSTANT",
	OP_NIL:           "OP_NIL",
	OP_TRUE:          "OP_TRUE",
	OP_FALSE:         "OP_FALSE",
	OP_ADD:           "OP_ADD",
	OP_SUBTRACT:      "OP_SUBTRACT",
	OP_MULTIPLY:      "OP_MULTIPLY",
	OP_DIVIDE:        "OP_DIVIDE",
	OP_MODULO:        "OP_MODULO",
	OP_NEGATE:        "OP_NEGATE",
	OP_EQUAL:         "OP_EQUAL",
	OP_NOT_EQUAL:     "OP_NOT_EQUAL",
	OP_LESS:          "OP_LESS",
	OP_LESS_EQUAL:    "OP_LESS_EQUAL",
	OP_GREATER:       "OP_GREATER",
	OP_GREATER_EQUAL: "OP_GREATER_EQUAL",
	OP_NOT:           "OP_NOT",
	OP_GET_LOCAL:     "OP_GET_LOCAL",
	OP_SET_LOCAL:     "OP_SET_LOCAL",
	OP_GET_GLOBAL:    "OP_GET_GLOBAL",
	OP_SET_GLOBAL:    "OP_SET_GLOBAL",
	OP_DEFINE_GLOBAL: "OP_DEFINE_GLOBAL",
	OP_JUMP:          "OP_JUMP",
	OP_JUMP_IF_FALSE: "OP_JUMP_IF_FALSE",
	OP_LOOP:          "OP_LOOP",
	OP_CALL:          "OP_CALL",
	OP_RETURN:        "OP_RETURN",
	OP_POP:           "OP_POP",
	OP_CLOSURE:       "OP_CLOSURE",
	OP_GET_UPVALUE:   "OP_GET_UPVALUE",
	OP_SET_UPVALUE:   "OP_SET_UPVALUE",
	OP_CLOSE_UPVALUE: "OP_CLOSE_UPVALUE",
	OP_PRINT:         "OP_PRINT",
}

func (op Opcode) String() string {
	if name, ok := OpcodeNames[op]; ok {
		return name
	}
	return "OP_UNKNOWN"
}

// OperandWidth returns the number of operand bytes following op.
func OperandWidth(op Opcode) int {
	switch op {
	case OP_CONSTANT, OP_GET_LOCAL, OP_SET_LOCAL,
		OP_GET_GLOBAL, OP_SET_GLOBAL, OP_DEFINE_GLOBAL,
		OP_CALL, OP_CLOSURE, OP_GET_UPVALUE, OP_SET_UPVALUE,
		OP_PRINT:
		return 1
	case OP_JUMP, OP_JUMP_IF_FALSE, OP_LOOP:
		return 2
	default:
		return 0
	}
}
