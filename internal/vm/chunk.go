package vm

import (
	"fmt"
)

// MaxConstants is the constant pool capacity. Pool indices are encoded
// in one byte, so exceeding this is a compile error, never truncation.
const MaxConstants = 256

// Chunk is one function's compiled code: the instruction byte stream,
// its constant pool, and a line table parallel to the byte stream
// (one entry per code byte).
type Chunk struct {
	Code      []byte
	Constants []Value
	Lines     []int
	Name      string
}

func NewChunk(name string) *Chunk {
	return &Chunk{Name: name}
}

func (c *Chunk) Len() int {
	return len(c.Code)
}

// Write appends a raw byte with its source line.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp appends an opcode byte.
func (c *Chunk) WriteOp(op Opcode, line int) {
	c.Write(byte(op), line)
}

// WriteOperand16 appends a 2-byte little-endian operand.
func (c *Chunk) WriteOperand16(v int, line int) {
	c.Write(byte(v&0xff), line)
	c.Write(byte(v>>8), line)
}

// ReadOperand16 reads the 2-byte little-endian operand at offset.
func (c *Chunk) ReadOperand16(offset int) int {
	return int(c.Code[offset]) | int(c.Code[offset+1])<<8
}

// PatchOperand16 overwrites the 2-byte operand at offset in place.
func (c *Chunk) PatchOperand16(offset, v int) {
	c.Code[offset] = byte(v & 0xff)
	c.Code[offset+1] = byte(v >> 8)
}

// AddConstant appends v to the pool and returns its index. Existing
// equal constants are reused. Functions and closures are compared by
// identity, so distinct functions never collapse.
func (c *Chunk) AddConstant(v Value) (int, error) {
	for i, existing := range c.Constants {
		if existing.Kind == v.Kind && existing.Equals(v) {
			return i, nil
		}
	}
	if len(c.Constants) >= MaxConstants {
		return 0, fmt.Errorf("too many constants in one chunk (max %d)", MaxConstants)
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1, nil
}

// Validate checks that the instruction stream is structurally sound:
// known opcodes, complete operands, a line table parallel to the code,
// constant operands inside the pool, jumps landing on instruction
// boundaries, and a final return so execution cannot run off the end.
// Compiled chunks satisfy this by construction; chunks read from disk
// are checked before they run.
func (c *Chunk) Validate() error {
	if len(c.Code) == 0 {
		return fmt.Errorf("chunk %s: empty code stream", c.Name)
	}
	if len(c.Lines) != len(c.Code) {
		return fmt.Errorf("chunk %s: line table has %d entries for %d code bytes", c.Name, len(c.Lines), len(c.Code))
	}

	starts := make(map[int]bool)
	last := OP_RETURN
	for off := 0; off < len(c.Code); {
		op := Opcode(c.Code[off])
		if _, known := OpcodeNames[op]; !known {
			return fmt.Errorf("chunk %s: unknown opcode %d at offset %d", c.Name, byte(op), off)
		}
		size := 1 + OperandWidth(op)
		if off+size > len(c.Code) {
			return fmt.Errorf("chunk %s: truncated instruction at offset %d", c.Name, off)
		}
		switch op {
		case OP_CONSTANT, OP_GET_GLOBAL, OP_SET_GLOBAL, OP_DEFINE_GLOBAL, OP_CLOSURE:
			if idx := int(c.Code[off+1]); idx >= len(c.Constants) {
				return fmt.Errorf("chunk %s: constant index %d at offset %d outside pool of %d", c.Name, idx, off, len(c.Constants))
			}
		}
		starts[off] = true
		last = op
		off += size
	}
	if last != OP_RETURN {
		return fmt.Errorf("chunk %s: code does not end in a return", c.Name)
	}

	for _, off := range c.InstructionOffsets() {
		if target, ok := c.JumpTarget(off); ok && !starts[target] {
			return fmt.Errorf("chunk %s: jump at offset %d targets %d, not an instruction boundary", c.Name, off, target)
		}
	}
	return nil
}

// Line returns the source line for the code byte at offset.
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}

// InstructionSize returns the full encoded size of the instruction
// starting at offset.
func (c *Chunk) InstructionSize(offset int) int {
	return 1 + OperandWidth(Opcode(c.Code[offset]))
}

// InstructionOffsets returns the start offset of every instruction.
func (c *Chunk) InstructionOffsets() []int {
	var offsets []int
	for off := 0; off < len(c.Code); off += c.InstructionSize(off) {
		offsets = append(offsets, off)
	}
	return offsets
}

// JumpTarget returns the absolute target of the jump instruction at
// offset, and whether the instruction is a jump at all.
func (c *Chunk) JumpTarget(offset int) (int, bool) {
	switch Opcode(c.Code[offset]) {
	case OP_JUMP, OP_JUMP_IF_FALSE:
		return offset + 3 + c.ReadOperand16(offset + 1), true
	case OP_LOOP:
		return offset + 3 - c.ReadOperand16(offset+1), true
	default:
		return 0, false
	}
}

// JumpTargets returns the set of absolute offsets some jump lands on.
func (c *Chunk) JumpTargets() map[int]bool {
	targets := make(map[int]bool)
	for _, off := range c.InstructionOffsets() {
		if t, ok := c.JumpTarget(off); ok {
			targets[t] = true
		}
	}
	return targets
}

// RemoveInstruction deletes the instruction at offset, relocating
// every jump whose source or target lies beyond the removed bytes.
func (c *Chunk) RemoveInstruction(offset int) error {
	return c.editRange(offset, offset+c.InstructionSize(offset), nil, 0)
}

// InsertInstruction inserts raw instruction bytes at offset,
// relocating affected jumps.
func (c *Chunk) InsertInstruction(offset int, data []byte, line int) error {
	return c.editRange(offset, offset, data, line)
}

// ReplaceInstruction swaps the instruction at offset for the given
// bytes, relocating affected jumps.
func (c *Chunk) ReplaceInstruction(offset int, data []byte, line int) error {
	return c.editRange(offset, offset+c.InstructionSize(offset), data, line)
}

type jumpRef struct {
	pos    int
	target int
}

// editRange replaces Code[start:end] (and the matching line entries)
// with repl, then re-derives and re-patches the operand of every jump
// instruction crossing the edit. Jumps inside the replaced region are
// dropped with it. The edit fails if a jump targets the interior of
// the replaced region or if a relocated offset no longer fits in its
// 2-byte operand; the chunk is unchanged on failure.
func (c *Chunk) editRange(start, end int, repl []byte, line int) error {
	delta := len(repl) - (end - start)

	var jumps []jumpRef
	for _, off := range c.InstructionOffsets() {
		target, ok := c.JumpTarget(off)
		if !ok {
			continue
		}
		if off >= start && off < end {
			continue // the jump itself is being removed
		}
		if target > start && target < end {
			return fmt.Errorf("edit at %d..%d strands jump target %d", start, end, target)
		}
		jumps = append(jumps, jumpRef{pos: off, target: target})
	}

	adjust := func(p int) int {
		if p >= end {
			return p + delta
		}
		return p
	}

	// Validate every relocation before mutating anything.
	for _, j := range jumps {
		pos, target := adjust(j.pos), adjust(j.target)
		operand := target - (pos + 3)
		if Opcode(c.Code[j.pos]) == OP_LOOP {
			operand = (pos + 3) - target
		}
		if operand < 0 || operand > 0xffff {
			return fmt.Errorf("edit at %d..%d puts jump at %d out of range", start, end, j.pos)
		}
	}

	newCode := make([]byte, 0, len(c.Code)+delta)
	newCode = append(newCode, c.Code[:start]...)
	newCode = append(newCode, repl...)
	newCode = append(newCode, c.Code[end:]...)

	newLines := make([]int, 0, len(c.Lines)+delta)
	newLines = append(newLines, c.Lines[:start]...)
	for range repl {
		newLines = append(newLines, line)
	}
	newLines = append(newLines, c.Lines[end:]...)

	c.Code = newCode
	c.Lines = newLines

	for _, j := range jumps {
		pos, target := adjust(j.pos), adjust(j.target)
		operand := target - (pos + 3)
		if Opcode(c.Code[pos]) == OP_LOOP {
			operand = (pos + 3) - target
		}
		c.PatchOperand16(pos+1, operand)
	}
	return nil
}
