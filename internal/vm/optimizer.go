package vm

import (
	"math"
)

// maxOptimizePasses bounds the fixed-point loop. Every accepted
// structural rewrite strictly shrinks the stream and retargeting is
// monotone, so the bound is never hit in practice.
const maxOptimizePasses = 256

// Optimizer is a fixed-point peephole rewriter over finished chunks.
// It runs after compilation and before execution, and recurses into
// function constants so nested chunks are optimized too.
type Optimizer struct {
	heap    *Heap
	visited map[Handle]bool
}

func NewOptimizer(heap *Heap) *Optimizer {
	return &Optimizer{heap: heap, visited: make(map[Handle]bool)}
}

// OptimizeFunction rewrites the function behind handle and every
// function reachable from its constant pool.
func (o *Optimizer) OptimizeFunction(handle Handle) {
	if o.visited[handle] {
		return
	}
	o.visited[handle] = true
	fn := o.heap.Function(handle)
	if fn == nil {
		return
	}
	o.Optimize(fn.Chunk)
	for _, c := range fn.Chunk.Constants {
		if c.Kind == KindFunction {
			o.OptimizeFunction(c.Handle)
		}
	}
}

// Optimize applies the rewrite set until a full pass changes nothing.
func (o *Optimizer) Optimize(chunk *Chunk) {
	for pass := 0; pass < maxOptimizePasses; pass++ {
		changed := false
		changed = o.removeRedundantPushPop(chunk) || changed
		changed = o.foldConstantArithmetic(chunk) || changed
		changed = o.collapseJumpChains(chunk) || changed
		changed = o.specializeConstants(chunk) || changed
		if !changed {
			return
		}
	}
}

// pushesInertValue reports whether op pushes exactly one value with
// no side effects, making a following pop a pure no-op. Global reads
// are excluded: they can fail on undefined names.
func pushesInertValue(op Opcode) bool {
	switch op {
	case OP_CONSTANT, OP_NIL, OP_TRUE, OP_FALSE, OP_GET_LOCAL:
		return true
	}
	return false
}

// removeRedundantPushPop deletes push/pop pairs whose push has no
// side effects. Both instructions go in one edit so every other
// jump is relocated consistently; pairs whose pop is itself a jump
// target are left alone.
func (o *Optimizer) removeRedundantPushPop(chunk *Chunk) bool {
	changed := false
	for {
		targets := chunk.JumpTargets()
		edited := false
		for _, off := range chunk.InstructionOffsets() {
			if !pushesInertValue(Opcode(chunk.Code[off])) {
				continue
			}
			popOff := off + chunk.InstructionSize(off)
			if popOff >= chunk.Len() || Opcode(chunk.Code[popOff]) != OP_POP {
				continue
			}
			if targets[popOff] {
				continue
			}
			if err := chunk.editRange(off, popOff+1, nil, 0); err != nil {
				continue
			}
			changed, edited = true, true
			break
		}
		if !edited {
			return changed
		}
	}
}

// foldConstantArithmetic turns two adjacent constant loads plus a
// binary arithmetic instruction into one load of the precomputed
// result. Division and modulus by a constant zero are left for the
// runtime to fail on.
func (o *Optimizer) foldConstantArithmetic(chunk *Chunk) bool {
	changed := false
	for {
		targets := chunk.JumpTargets()
		edited := false
		for _, off := range chunk.InstructionOffsets() {
			if off+5 > chunk.Len() {
				break
			}
			if Opcode(chunk.Code[off]) != OP_CONSTANT || Opcode(chunk.Code[off+2]) != OP_CONSTANT {
				continue
			}
			opOff := off + 4
			result, ok := foldArithmetic(
				Opcode(chunk.Code[opOff]),
				chunk.Constants[chunk.Code[off+1]],
				chunk.Constants[chunk.Code[off+3]],
			)
			if !ok || targets[off+2] || targets[opOff] {
				continue
			}
			idx, err := chunk.AddConstant(result)
			if err != nil {
				continue
			}
			line := chunk.Line(off)
			if err := chunk.editRange(off, opOff+1, []byte{byte(OP_CONSTANT), byte(idx)}, line); err != nil {
				continue
			}
			changed, edited = true, true
			break
		}
		if !edited {
			return changed
		}
	}
}

func foldArithmetic(op Opcode, a, b Value) (Value, bool) {
	if a.IsString() && b.IsString() && op == OP_ADD {
		return StringValue(a.Str + b.Str), true
	}
	if !a.IsNumber() || !b.IsNumber() {
		return Value{}, false
	}
	switch op {
	case OP_ADD:
		return NumberValue(a.Num + b.Num), true
	case OP_SUBTRACT:
		return NumberValue(a.Num - b.Num), true
	case OP_MULTIPLY:
		return NumberValue(a.Num * b.Num), true
	case OP_DIVIDE:
		if b.Num == 0 {
			return Value{}, false
		}
		return NumberValue(a.Num / b.Num), true
	case OP_MODULO:
		if b.Num == 0 {
			return Value{}, false
		}
		return NumberValue(math.Mod(a.Num, b.Num)), true
	}
	return Value{}, false
}

// collapseJumpChains redirects a jump whose target is an
// unconditional jump straight to the final destination. Pure operand
// patching; the stream layout never changes.
func (o *Optimizer) collapseJumpChains(chunk *Chunk) bool {
	changed := false
	for _, off := range chunk.InstructionOffsets() {
		target, ok := chunk.JumpTarget(off)
		if !ok || target >= chunk.Len() || target == off {
			continue
		}
		if Opcode(chunk.Code[target]) != OP_JUMP {
			continue
		}
		final, _ := chunk.JumpTarget(target)
		if final == target {
			continue // jump-to-self, nothing to gain
		}

		var operand int
		if Opcode(chunk.Code[off]) == OP_LOOP {
			operand = (off + 3) - final
		} else {
			operand = final - (off + 3)
		}
		if operand < 0 || operand > 0xffff {
			continue
		}
		old := chunk.ReadOperand16(off + 1)
		if operand == old {
			continue
		}
		chunk.PatchOperand16(off+1, operand)
		changed = true
	}
	return changed
}

// specializeConstants rewrites constant-pool loads of nil, true and
// false to their dedicated zero-operand opcodes.
func (o *Optimizer) specializeConstants(chunk *Chunk) bool {
	changed := false
	for {
		edited := false
		for _, off := range chunk.InstructionOffsets() {
			if Opcode(chunk.Code[off]) != OP_CONSTANT {
				continue
			}
			v := chunk.Constants[chunk.Code[off+1]]
			var repl Opcode
			switch {
			case v.Kind == KindNil:
				repl = OP_NIL
			case v.Kind == KindBool && v.Num != 0:
				repl = OP_TRUE
			case v.Kind == KindBool:
				repl = OP_FALSE
			default:
				continue
			}
			if err := chunk.ReplaceInstruction(off, []byte{byte(repl)}, chunk.Line(off)); err != nil {
				continue
			}
			changed, edited = true, true
			break
		}
		if !edited {
			return changed
		}
	}
}
