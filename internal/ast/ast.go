// Package ast defines the syntax tree the parser produces and the
// compiler consumes. Nodes form a closed set; consumers dispatch with
// a type switch rather than a visitor.
package ast

import (
	"github.com/tinylang/tl/internal/token"
)

// Node is the base interface for all AST nodes.
type Node interface {
	// Pos returns the token that anchors the node for error reporting.
	Pos() token.Token
}

// Expr is a Node that produces a value.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a Node executed for effect.
type Stmt interface {
	Node
	stmtNode()
}

// Program is the root of a parsed source file.
type Program struct {
	File       string
	Statements []Stmt
}

// Expressions

// Literal is a number, string, boolean or nil literal.
type Literal struct {
	Token  token.Token
	Number float64 // valid when Token.Type == token.NUMBER
	Str    string  // valid when Token.Type == token.STRING
}

// Variable is a bare identifier reference.
type Variable struct {
	Token token.Token
	Name  string
}

// Unary is !expr or -expr.
type Unary struct {
	Token token.Token // the operator
	Right Expr
}

// Binary covers arithmetic, comparison, equality and the
// short-circuiting && and || operators.
type Binary struct {
	Token token.Token // the operator
	Left  Expr
	Right Expr
}

// Assign is name = value.
type Assign struct {
	Token token.Token // the '=' token
	Name  string
	Value Expr
}

// Call is callee(args...).
type Call struct {
	Token  token.Token // the '(' token
	Callee Expr
	Args   []Expr
}

// FunctionLit is a function literal. Declarations reuse it with Name
// set; anonymous functions leave Name empty.
type FunctionLit struct {
	Token  token.Token // the 'fn' token
	Name   string
	Params []token.Token
	Body   []Stmt
}

func (*Literal) exprNode()     {}
func (*Variable) exprNode()    {}
func (*Unary) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Assign) exprNode()      {}
func (*Call) exprNode()        {}
func (*FunctionLit) exprNode() {}

func (e *Literal) Pos() token.Token     { return e.Token }
func (e *Variable) Pos() token.Token    { return e.Token }
func (e *Unary) Pos() token.Token       { return e.Token }
func (e *Binary) Pos() token.Token      { return e.Token }
func (e *Assign) Pos() token.Token      { return e.Token }
func (e *Call) Pos() token.Token        { return e.Token }
func (e *FunctionLit) Pos() token.Token { return e.Token }

// Statements

// VarDecl is a let or var declaration. Mutable is false for let.
type VarDecl struct {
	Token       token.Token // the 'let' or 'var' token
	Name        string
	Mutable     bool
	Initializer Expr
}

// FunctionDecl is fn name(params) { body }.
type FunctionDecl struct {
	Token token.Token // the 'fn' token
	Name  string
	Lit   *FunctionLit
}

// ExprStmt is an expression evaluated for effect, result discarded.
type ExprStmt struct {
	Expression Expr
}

// PrintStmt is the print statement: print expr; or print(a, b, ...);
type PrintStmt struct {
	Token token.Token
	Args  []Expr
}

// Block is { stmts... }.
type Block struct {
	Token      token.Token // the '{' token
	Statements []Stmt
}

// If is if (cond) then else other. Else may be nil.
type If struct {
	Token token.Token
	Cond  Expr
	Then  Stmt
	Else  Stmt
}

// While is while (cond) body.
type While struct {
	Token token.Token
	Cond  Expr
	Body  Stmt
}

// For is for (init; cond; incr) body. Any of the three clauses may be
// nil; the compiler desugars it to a while loop in a fresh block.
type For struct {
	Token token.Token
	Init  Stmt // VarDecl or ExprStmt
	Cond  Expr
	Incr  Expr
	Body  Stmt
}

// Break exits the innermost enclosing loop.
type Break struct {
	Token token.Token
}

// Continue jumps to the next iteration of the innermost loop.
type Continue struct {
	Token token.Token
}

// Return exits the current function. Value may be nil.
type Return struct {
	Token token.Token
	Value Expr
}

func (*VarDecl) stmtNode()      {}
func (*FunctionDecl) stmtNode() {}
func (*ExprStmt) stmtNode()     {}
func (*PrintStmt) stmtNode()    {}
func (*Block) stmtNode()        {}
func (*If) stmtNode()           {}
func (*While) stmtNode()        {}
func (*For) stmtNode()          {}
func (*Break) stmtNode()        {}
func (*Continue) stmtNode()     {}
func (*Return) stmtNode()       {}

func (s *VarDecl) Pos() token.Token      { return s.Token }
func (s *FunctionDecl) Pos() token.Token { return s.Token }
func (s *ExprStmt) Pos() token.Token     { return s.Expression.Pos() }
func (s *PrintStmt) Pos() token.Token    { return s.Token }
func (s *Block) Pos() token.Token        { return s.Token }
func (s *If) Pos() token.Token           { return s.Token }
func (s *While) Pos() token.Token        { return s.Token }
func (s *For) Pos() token.Token          { return s.Token }
func (s *Break) Pos() token.Token        { return s.Token }
func (s *Continue) Pos() token.Token     { return s.Token }
func (s *Return) Pos() token.Token       { return s.Token }
