package vm

import (
	"errors"

	"github.com/tinylang/tl/internal/ast"
	"github.com/tinylang/tl/internal/diag"
)

// ErrCompileFailed is returned when compilation recorded diagnostics;
// the reporter holds the details.
var ErrCompileFailed = errors.New("compilation failed")

type funcType uint8

const (
	typeScript funcType = iota
	typeFunction
)

// sharedState is the per-compilation state common to the whole chain
// of nested function compilers.
type sharedState struct {
	heap     *Heap
	interner *Interner
	reporter *diag.Reporter
}

// Compiler emits bytecode for one function. Nested function literals
// get their own Compiler linked through enclosing, which is how
// upvalue resolution walks the lexical chain.
type Compiler struct {
	enclosing  *Compiler
	function   *Function
	fnType     funcType
	locals     []Local
	scopeDepth int
	loops      []LoopContext
	shared     *sharedState
}

// Compile turns a program into a script Function allocated on heap.
// All diagnostics go through reporter; the returned handle is only
// valid when err is nil.
func Compile(prog *ast.Program, heap *Heap, interner *Interner, reporter *diag.Reporter) (Handle, error) {
	before := reporter.Count()
	shared := &sharedState{
		heap:     heap,
		interner: interner,
		reporter: reporter,
	}
	c := &Compiler{
		function: &Function{Chunk: NewChunk("script")},
		fnType:   typeScript,
		shared:   shared,
	}

	for _, stmt := range prog.Statements {
		c.compileStatement(stmt)
	}

	line := 0
	if n := len(c.currentChunk().Lines); n > 0 {
		line = c.currentChunk().Lines[n-1]
	}
	c.emit(OP_NIL, line)
	c.emit(OP_RETURN, line)

	if reporter.Count() > before {
		return 0, ErrCompileFailed
	}
	return heap.AllocFunction(c.function), nil
}

func newFunctionCompiler(enclosing *Compiler, name string) *Compiler {
	return &Compiler{
		enclosing:  enclosing,
		function:   &Function{Name: name, Chunk: NewChunk(name)},
		fnType:     typeFunction,
		scopeDepth: 1,
		shared:     enclosing.shared,
	}
}

func (c *Compiler) errorAt(line, column int, format string, args ...interface{}) {
	c.shared.reporter.Report(diag.Semantic, line, column, format, args...)
}

func (c *Compiler) compileStatement(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		c.compileVarDecl(s)
	case *ast.FunctionDecl:
		c.compileFunctionDecl(s)
	case *ast.ExprStmt:
		pos := s.Expression.Pos()
		c.compileExpression(s.Expression)
		c.emit(OP_POP, pos.Line)
	case *ast.PrintStmt:
		for _, arg := range s.Args {
			c.compileExpression(arg)
		}
		c.emitByte(OP_PRINT, byte(len(s.Args)), s.Token.Line)
	case *ast.Block:
		c.beginScope()
		for _, inner := range s.Statements {
			c.compileStatement(inner)
		}
		c.endScope(c.blockEndLine(s))
	case *ast.If:
		c.compileIf(s)
	case *ast.While:
		c.compileWhile(s)
	case *ast.For:
		c.compileFor(s)
	case *ast.Break:
		c.compileBreak(s)
	case *ast.Continue:
		c.compileContinue(s)
	case *ast.Return:
		c.compileReturn(s)
	default:
		pos := stmt.Pos()
		c.errorAt(pos.Line, pos.Column, "unsupported statement")
	}
}

// blockEndLine picks the line for scope-exit pops: the last statement
// in the block, or the brace itself for empty blocks.
func (c *Compiler) blockEndLine(b *ast.Block) int {
	if n := len(b.Statements); n > 0 {
		return b.Statements[n-1].Pos().Line
	}
	return b.Token.Line
}

func (c *Compiler) compileVarDecl(s *ast.VarDecl) {
	if c.scopeDepth > 0 {
		c.addLocal(s.Name, s.Token.Line, s.Token.Column)
		c.compileExpression(s.Initializer)
		c.markInitialized()
		return
	}

	// Depth 0 is a global, defined by name at run time.
	c.compileExpression(s.Initializer)
	idx := c.nameConstant(s.Name, s.Token.Line, s.Token.Column)
	c.emitByte(OP_DEFINE_GLOBAL, idx, s.Token.Line)
}

func (c *Compiler) compileFunctionDecl(s *ast.FunctionDecl) {
	if c.scopeDepth > 0 {
		// Declare before compiling the body so the function can
		// recurse through its own name.
		c.addLocal(s.Name, s.Token.Line, s.Token.Column)
		c.markInitialized()
		c.compileFunctionLit(s.Lit)
		return
	}

	c.compileFunctionLit(s.Lit)
	idx := c.nameConstant(s.Name, s.Token.Line, s.Token.Column)
	c.emitByte(OP_DEFINE_GLOBAL, idx, s.Token.Line)
}

// compileFunctionLit compiles a nested function and emits the closure
// instruction in the enclosing chunk. The capture descriptors
// resolved during body compilation travel on the Function itself.
func (c *Compiler) compileFunctionLit(lit *ast.FunctionLit) {
	fc := newFunctionCompiler(c, lit.Name)
	fc.function.Arity = len(lit.Params)
	for _, param := range lit.Params {
		fc.addLocal(param.Lexeme, param.Line, param.Column)
		fc.markInitialized()
	}

	for _, stmt := range lit.Body {
		fc.compileStatement(stmt)
	}

	endLine := lit.Token.Line
	if n := len(lit.Body); n > 0 {
		endLine = lit.Body[n-1].Pos().Line
	}
	fc.emit(OP_NIL, endLine)
	fc.emit(OP_RETURN, endLine)

	handle := c.shared.heap.AllocFunction(fc.function)
	idx, err := c.currentChunk().AddConstant(FunctionValue(handle))
	if err != nil {
		c.errorAt(lit.Token.Line, lit.Token.Column, "%v", err)
		return
	}
	c.emitByte(OP_CLOSURE, byte(idx), lit.Token.Line)
}

func (c *Compiler) compileIf(s *ast.If) {
	line, col := s.Token.Line, s.Token.Column
	c.compileExpression(s.Cond)

	thenJump := c.emitJump(OP_JUMP_IF_FALSE, line)
	c.emit(OP_POP, line)
	c.compileStatement(s.Then)

	elseJump := c.emitJump(OP_JUMP, line)
	c.patchJump(thenJump, line, col)
	c.emit(OP_POP, line)

	if s.Else != nil {
		c.compileStatement(s.Else)
	}
	c.patchJump(elseJump, line, col)
}

func (c *Compiler) compileWhile(s *ast.While) {
	line, col := s.Token.Line, s.Token.Column
	loopStart := c.currentChunk().Len()

	c.loops = append(c.loops, LoopContext{
		start:      loopStart,
		localCount: len(c.locals),
	})

	c.compileExpression(s.Cond)
	exitJump := c.emitJump(OP_JUMP_IF_FALSE, line)
	c.emit(OP_POP, line)

	c.compileStatement(s.Body)
	c.emitLoop(loopStart, line, col)

	c.patchJump(exitJump, line, col)
	c.emit(OP_POP, line)

	c.finishLoop(line, col)
}

// compileFor desugars for(init; cond; incr) into a while loop inside
// a fresh block: the initializer runs once, the increment runs after
// the body (continue lands on it).
func (c *Compiler) compileFor(s *ast.For) {
	line, col := s.Token.Line, s.Token.Column

	c.beginScope()
	if s.Init != nil {
		c.compileStatement(s.Init)
	}

	loopStart := c.currentChunk().Len()
	c.loops = append(c.loops, LoopContext{
		start:      loopStart,
		isFor:      true,
		localCount: len(c.locals),
	})

	if s.Cond != nil {
		c.compileExpression(s.Cond)
	} else {
		c.emit(OP_TRUE, line)
	}
	exitJump := c.emitJump(OP_JUMP_IF_FALSE, line)
	c.emit(OP_POP, line)

	c.compileStatement(s.Body)

	// Increment: continue statements jump here.
	loop := &c.loops[len(c.loops)-1]
	for _, operandOffset := range loop.continueJumps {
		c.patchJump(operandOffset, line, col)
	}
	loop.continueJumps = nil

	if s.Incr != nil {
		c.compileExpression(s.Incr)
		c.emit(OP_POP, line)
	}
	c.emitLoop(loopStart, line, col)

	c.patchJump(exitJump, line, col)
	c.emit(OP_POP, line)

	c.finishLoop(line, col)
	c.endScope(line)
}

// finishLoop patches the pending break jumps and pops the context.
func (c *Compiler) finishLoop(line, col int) {
	loop := c.loops[len(c.loops)-1]
	for _, operandOffset := range loop.breakJumps {
		c.patchJump(operandOffset, line, col)
	}
	c.loops = c.loops[:len(c.loops)-1]
}

func (c *Compiler) compileBreak(s *ast.Break) {
	if len(c.loops) == 0 {
		c.errorAt(s.Token.Line, s.Token.Column, "'break' outside of a loop")
		return
	}
	loop := &c.loops[len(c.loops)-1]
	c.emitScopeExits(loop.localCount, s.Token.Line)
	loop.breakJumps = append(loop.breakJumps, c.emitJump(OP_JUMP, s.Token.Line))
}

func (c *Compiler) compileContinue(s *ast.Continue) {
	if len(c.loops) == 0 {
		c.errorAt(s.Token.Line, s.Token.Column, "'continue' outside of a loop")
		return
	}
	loop := &c.loops[len(c.loops)-1]
	c.emitScopeExits(loop.localCount, s.Token.Line)
	if loop.isFor {
		loop.continueJumps = append(loop.continueJumps, c.emitJump(OP_JUMP, s.Token.Line))
	} else {
		c.emitLoop(loop.start, s.Token.Line, s.Token.Column)
	}
}

func (c *Compiler) compileReturn(s *ast.Return) {
	if c.fnType == typeScript {
		c.errorAt(s.Token.Line, s.Token.Column, "'return' outside of a function")
		return
	}
	if s.Value != nil {
		c.compileExpression(s.Value)
	} else {
		c.emit(OP_NIL, s.Token.Line)
	}
	c.emit(OP_RETURN, s.Token.Line)
}
