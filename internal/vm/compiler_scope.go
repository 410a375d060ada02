package vm

// MaxLocals bounds locals per function; slot operands are one byte.
const MaxLocals = 256

// Local is a compile-time record of one block-scoped variable.
// Depth -1 marks a declared-but-uninitialized local, so a variable
// cannot be read inside its own initializer.
type Local struct {
	Name       string
	Depth      int
	IsCaptured bool
}

// LoopContext tracks the innermost enclosing loop for break/continue.
type LoopContext struct {
	start         int   // offset of the condition, for backward jumps
	breakJumps    []int // operand offsets patched to after the loop
	continueJumps []int // operand offsets patched to the increment
	isFor         bool  // continue jumps forward to the increment
	localCount    int   // locals live at loop entry
}

func (c *Compiler) beginScope() {
	c.scopeDepth++
}

// endScope discards every local declared in the closing scope, in
// reverse declaration order, emitting the matching stack pops.
// Captured locals are closed instead of popped so live closures keep
// their cells.
func (c *Compiler) endScope(line int) {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].Depth > c.scopeDepth {
		if c.locals[len(c.locals)-1].IsCaptured {
			c.emit(OP_CLOSE_UPVALUE, line)
		} else {
			c.emit(OP_POP, line)
		}
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// emitScopeExits emits the pops for an early exit (break/continue)
// down to targetCount locals, without discarding the compile-time
// records; the code after the jump still needs them.
func (c *Compiler) emitScopeExits(targetCount, line int) {
	for i := len(c.locals) - 1; i >= targetCount; i-- {
		if c.locals[i].IsCaptured {
			c.emit(OP_CLOSE_UPVALUE, line)
		} else {
			c.emit(OP_POP, line)
		}
	}
}

func (c *Compiler) addLocal(name string, line, column int) {
	if len(c.locals) >= MaxLocals {
		c.errorAt(line, column, "too many local variables in function (max %d)", MaxLocals)
		return
	}
	for i := len(c.locals) - 1; i >= 0; i-- {
		local := c.locals[i]
		if local.Depth != -1 && local.Depth < c.scopeDepth {
			break
		}
		if local.Name == name {
			c.errorAt(line, column, "duplicate local variable %q in this scope", name)
			return
		}
	}
	c.locals = append(c.locals, Local{Name: name, Depth: -1})
}

// markInitialized makes the most recent local readable.
func (c *Compiler) markInitialized() {
	if len(c.locals) == 0 {
		return
	}
	c.locals[len(c.locals)-1].Depth = c.scopeDepth
}

// resolveLocal returns the slot of name in this function, or -1.
func (c *Compiler) resolveLocal(name string, line, column int) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].Name == name {
			if c.locals[i].Depth == -1 {
				c.errorAt(line, column, "cannot read local variable %q in its own initializer", name)
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue resolves name through the chain of enclosing
// compilers, adding capture descriptors along the way. Returns the
// upvalue index in this function, or -1 if name is not a local of any
// enclosing function (and therefore a global).
func (c *Compiler) resolveUpvalue(name string, line, column int) int {
	if c.enclosing == nil {
		return -1
	}

	if slot := c.enclosing.resolveLocal(name, line, column); slot != -1 {
		c.enclosing.locals[slot].IsCaptured = true
		return c.addUpvalue(UpvalueDesc{IsLocal: true, Index: slot}, line, column)
	}

	if idx := c.enclosing.resolveUpvalue(name, line, column); idx != -1 {
		return c.addUpvalue(UpvalueDesc{IsLocal: false, Index: idx}, line, column)
	}

	return -1
}

// addUpvalue memoizes descriptors so capturing the same variable
// twice reuses one slot.
func (c *Compiler) addUpvalue(desc UpvalueDesc, line, column int) int {
	for i, existing := range c.function.UpvalueDescs {
		if existing == desc {
			return i
		}
	}
	if len(c.function.UpvalueDescs) >= MaxLocals {
		c.errorAt(line, column, "too many captured variables in function (max %d)", MaxLocals)
		return 0
	}
	c.function.UpvalueDescs = append(c.function.UpvalueDescs, desc)
	return len(c.function.UpvalueDescs) - 1
}

// Emit helpers.

func (c *Compiler) currentChunk() *Chunk {
	return c.function.Chunk
}

func (c *Compiler) emit(op Opcode, line int) {
	c.currentChunk().WriteOp(op, line)
}

func (c *Compiler) emitByte(op Opcode, operand byte, line int) {
	c.currentChunk().WriteOp(op, line)
	c.currentChunk().Write(operand, line)
}

// emitConstant loads v, specializing nil/true/false to their
// dedicated opcodes.
func (c *Compiler) emitConstant(v Value, line, column int) {
	switch {
	case v.Kind == KindNil:
		c.emit(OP_NIL, line)
	case v.Kind == KindBool && v.Num != 0:
		c.emit(OP_TRUE, line)
	case v.Kind == KindBool:
		c.emit(OP_FALSE, line)
	default:
		idx, err := c.currentChunk().AddConstant(v)
		if err != nil {
			c.errorAt(line, column, "%v", err)
			return
		}
		c.emitByte(OP_CONSTANT, byte(idx), line)
	}
}

// nameConstant interns name and adds it to the constant pool.
func (c *Compiler) nameConstant(name string, line, column int) byte {
	idx, err := c.currentChunk().AddConstant(StringValue(c.shared.interner.Intern(name)))
	if err != nil {
		c.errorAt(line, column, "%v", err)
		return 0
	}
	return byte(idx)
}

// emitJump writes op with a placeholder operand and returns the
// operand's offset for patchJump.
func (c *Compiler) emitJump(op Opcode, line int) int {
	c.emit(op, line)
	c.currentChunk().Write(0xff, line)
	c.currentChunk().Write(0xff, line)
	return c.currentChunk().Len() - 2
}

// patchJump points the placeholder written by emitJump at the next
// instruction to be emitted.
func (c *Compiler) patchJump(operandOffset, line, column int) {
	jump := c.currentChunk().Len() - operandOffset - 2
	if jump > 0xffff {
		c.errorAt(line, column, "too much code to jump over")
		return
	}
	c.currentChunk().PatchOperand16(operandOffset, jump)
}

// emitLoop writes a backward jump to loopStart.
func (c *Compiler) emitLoop(loopStart, line, column int) {
	c.emit(OP_LOOP, line)
	offset := c.currentChunk().Len() - loopStart + 2
	if offset > 0xffff {
		c.errorAt(line, column, "loop body too large")
		offset = 0
	}
	c.currentChunk().WriteOperand16(offset, line)
}
