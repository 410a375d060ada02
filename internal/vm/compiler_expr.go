package vm

import (
	"math"

	"github.com/tinylang/tl/internal/ast"
	"github.com/tinylang/tl/internal/token"
)

func (c *Compiler) compileExpression(expr ast.Expr) {
	// Constant folding first: a foldable subtree compiles to one load.
	if v, ok := c.foldExpr(expr); ok {
		pos := expr.Pos()
		c.emitConstant(v, pos.Line, pos.Column)
		return
	}

	switch e := expr.(type) {
	case *ast.Literal:
		c.compileLiteral(e)
	case *ast.Variable:
		c.compileVariableGet(e)
	case *ast.Assign:
		c.compileAssign(e)
	case *ast.Unary:
		c.compileUnary(e)
	case *ast.Binary:
		switch e.Token.Type {
		case token.AND, token.OR:
			c.compileLogical(e)
		default:
			c.compileBinary(e)
		}
	case *ast.Call:
		c.compileCall(e)
	case *ast.FunctionLit:
		c.compileFunctionLit(e)
	default:
		pos := expr.Pos()
		c.errorAt(pos.Line, pos.Column, "unsupported expression")
	}
}

func (c *Compiler) compileLiteral(e *ast.Literal) {
	line, col := e.Token.Line, e.Token.Column
	switch e.Token.Type {
	case token.NIL:
		c.emit(OP_NIL, line)
	case token.TRUE:
		c.emit(OP_TRUE, line)
	case token.FALSE:
		c.emit(OP_FALSE, line)
	case token.NUMBER:
		c.emitConstant(NumberValue(e.Number), line, col)
	case token.STRING:
		c.emitConstant(StringValue(c.shared.interner.Intern(e.Str)), line, col)
	default:
		c.errorAt(line, col, "malformed literal")
	}
}

func (c *Compiler) compileVariableGet(e *ast.Variable) {
	line, col := e.Token.Line, e.Token.Column
	if slot := c.resolveLocal(e.Name, line, col); slot != -1 {
		c.emitByte(OP_GET_LOCAL, byte(slot), line)
		return
	}
	if idx := c.resolveUpvalue(e.Name, line, col); idx != -1 {
		c.emitByte(OP_GET_UPVALUE, byte(idx), line)
		return
	}
	c.emitByte(OP_GET_GLOBAL, c.nameConstant(e.Name, line, col), line)
}

func (c *Compiler) compileAssign(e *ast.Assign) {
	line, col := e.Token.Line, e.Token.Column
	c.compileExpression(e.Value)

	if slot := c.resolveLocal(e.Name, line, col); slot != -1 {
		c.emitByte(OP_SET_LOCAL, byte(slot), line)
		return
	}
	if idx := c.resolveUpvalue(e.Name, line, col); idx != -1 {
		c.emitByte(OP_SET_UPVALUE, byte(idx), line)
		return
	}
	c.emitByte(OP_SET_GLOBAL, c.nameConstant(e.Name, line, col), line)
}

func (c *Compiler) compileUnary(e *ast.Unary) {
	line := e.Token.Line
	c.compileExpression(e.Right)
	switch e.Token.Type {
	case token.MINUS:
		c.emit(OP_NEGATE, line)
	case token.BANG:
		c.emit(OP_NOT, line)
	default:
		c.errorAt(line, e.Token.Column, "malformed unary operator %q", e.Token.Lexeme)
	}
}

var binaryOps = map[token.Type]Opcode{
	token.PLUS:       OP_ADD,
	token.MINUS:      OP_SUBTRACT,
	token.STAR:       OP_MULTIPLY,
	token.SLASH:      OP_DIVIDE,
	token.PERCENT:    OP_MODULO,
	token.EQ:         OP_EQUAL,
	token.BANG_EQ:    OP_NOT_EQUAL,
	token.LESS:       OP_LESS,
	token.LESS_EQ:    OP_LESS_EQUAL,
	token.GREATER:    OP_GREATER,
	token.GREATER_EQ: OP_GREATER_EQUAL,
}

func (c *Compiler) compileBinary(e *ast.Binary) {
	c.compileExpression(e.Left)
	c.compileExpression(e.Right)
	op, ok := binaryOps[e.Token.Type]
	if !ok {
		c.errorAt(e.Token.Line, e.Token.Column, "malformed binary operator %q", e.Token.Lexeme)
		return
	}
	c.emit(op, e.Token.Line)
}

// compileLogical short-circuits && and || with conditional jumps
// instead of evaluating both operands.
func (c *Compiler) compileLogical(e *ast.Binary) {
	line, col := e.Token.Line, e.Token.Column
	c.compileExpression(e.Left)

	if e.Token.Type == token.AND {
		endJump := c.emitJump(OP_JUMP_IF_FALSE, line)
		c.emit(OP_POP, line)
		c.compileExpression(e.Right)
		c.patchJump(endJump, line, col)
		return
	}

	// ||: a false left falls through to the right operand.
	elseJump := c.emitJump(OP_JUMP_IF_FALSE, line)
	endJump := c.emitJump(OP_JUMP, line)
	c.patchJump(elseJump, line, col)
	c.emit(OP_POP, line)
	c.compileExpression(e.Right)
	c.patchJump(endJump, line, col)
}

func (c *Compiler) compileCall(e *ast.Call) {
	c.compileExpression(e.Callee)
	for _, arg := range e.Args {
		c.compileExpression(arg)
	}
	c.emitByte(OP_CALL, byte(len(e.Args)), e.Token.Line)
}

// foldExpr evaluates a compile-time-constant expression. Division or
// modulus by a constant zero is never folded so the failure surfaces
// at run time like any other.
func (c *Compiler) foldExpr(expr ast.Expr) (Value, bool) {
	switch e := expr.(type) {
	case *ast.Literal:
		switch e.Token.Type {
		case token.NIL:
			return NilValue(), true
		case token.TRUE:
			return BoolValue(true), true
		case token.FALSE:
			return BoolValue(false), true
		case token.NUMBER:
			return NumberValue(e.Number), true
		case token.STRING:
			return StringValue(c.shared.interner.Intern(e.Str)), true
		}
		return Value{}, false

	case *ast.Unary:
		right, ok := c.foldExpr(e.Right)
		if !ok {
			return Value{}, false
		}
		switch e.Token.Type {
		case token.MINUS:
			if right.IsNumber() {
				return NumberValue(-right.Num), true
			}
		case token.BANG:
			return BoolValue(!right.Truthy()), true
		}
		return Value{}, false

	case *ast.Binary:
		return c.foldBinary(e)
	}
	return Value{}, false
}

func (c *Compiler) foldBinary(e *ast.Binary) (Value, bool) {
	left, ok := c.foldExpr(e.Left)
	if !ok {
		return Value{}, false
	}

	// Short-circuit operators fold on the left operand alone when it
	// decides the result.
	if e.Token.Type == token.AND || e.Token.Type == token.OR {
		if e.Token.Type == token.AND && !left.Truthy() {
			return left, true
		}
		if e.Token.Type == token.OR && left.Truthy() {
			return left, true
		}
		return c.foldExpr(e.Right)
	}

	right, ok := c.foldExpr(e.Right)
	if !ok {
		return Value{}, false
	}

	switch e.Token.Type {
	case token.EQ:
		return BoolValue(left.Equals(right)), true
	case token.BANG_EQ:
		return BoolValue(!left.Equals(right)), true
	}

	if left.IsString() && right.IsString() {
		switch e.Token.Type {
		case token.PLUS:
			return StringValue(c.shared.interner.Intern(left.Str + right.Str)), true
		case token.LESS:
			return BoolValue(left.Str < right.Str), true
		case token.LESS_EQ:
			return BoolValue(left.Str <= right.Str), true
		case token.GREATER:
			return BoolValue(left.Str > right.Str), true
		case token.GREATER_EQ:
			return BoolValue(left.Str >= right.Str), true
		}
		return Value{}, false
	}

	if !left.IsNumber() || !right.IsNumber() {
		return Value{}, false
	}
	a, b := left.Num, right.Num

	switch e.Token.Type {
	case token.PLUS:
		return NumberValue(a + b), true
	case token.MINUS:
		return NumberValue(a - b), true
	case token.STAR:
		return NumberValue(a * b), true
	case token.SLASH:
		if b == 0 {
			return Value{}, false
		}
		return NumberValue(a / b), true
	case token.PERCENT:
		if b == 0 {
			return Value{}, false
		}
		return NumberValue(math.Mod(a, b)), true
	case token.LESS:
		return BoolValue(a < b), true
	case token.LESS_EQ:
		return BoolValue(a <= b), true
	case token.GREATER:
		return BoolValue(a > b), true
	case token.GREATER_EQ:
		return BoolValue(a >= b), true
	}
	return Value{}, false
}
