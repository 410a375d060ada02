// Package parser turns a token stream into an AST. Errors are
// collected through a diag.Reporter with resynchronization at
// statement boundaries, so a single parse reports as many independent
// problems as it can.
package parser

import (
	"strconv"

	"github.com/tinylang/tl/internal/ast"
	"github.com/tinylang/tl/internal/diag"
	"github.com/tinylang/tl/internal/token"
)

const maxParams = 255

// parseError unwinds to the nearest synchronization point. Carries no
// payload; the diagnostic is already recorded by the time it is thrown.
type parseError struct{}

type Parser struct {
	tokens   []token.Token
	current  int
	reporter *diag.Reporter
}

func New(tokens []token.Token, reporter *diag.Reporter) *Parser {
	return &Parser{tokens: tokens, reporter: reporter}
}

// Parse consumes the whole token stream and returns the program. The
// result is usable only if the reporter collected no errors.
func (p *Parser) Parse(file string) *ast.Program {
	prog := &ast.Program{File: file}
	for !p.isAtEnd() {
		if stmt := p.declaration(); stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
	}
	return prog
}

func (p *Parser) declaration() (stmt ast.Stmt) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(parseError); !ok {
				panic(r)
			}
			p.synchronize()
			stmt = nil
		}
	}()

	switch {
	case p.match(token.LET):
		return p.varDeclaration(false)
	case p.match(token.VAR):
		return p.varDeclaration(true)
	case p.check(token.FN) && p.checkNext(token.IDENT):
		p.advance()
		return p.functionDeclaration()
	default:
		return p.statement()
	}
}

func (p *Parser) varDeclaration(mutable bool) ast.Stmt {
	kw := p.previous()
	name := p.consume(token.IDENT, "expected variable name")
	p.consume(token.ASSIGN, "expected '=' after variable name")
	init := p.expression()
	p.consume(token.SEMICOLON, "expected ';' after variable declaration")
	return &ast.VarDecl{Token: kw, Name: name.Lexeme, Mutable: mutable, Initializer: init}
}

func (p *Parser) functionDeclaration() ast.Stmt {
	fnTok := p.previous()
	name := p.consume(token.IDENT, "expected function name")
	lit := p.functionBody(fnTok, name.Lexeme)
	return &ast.FunctionDecl{Token: fnTok, Name: name.Lexeme, Lit: lit}
}

func (p *Parser) functionBody(fnTok token.Token, name string) *ast.FunctionLit {
	p.consume(token.LPAREN, "expected '(' after function name")
	var params []token.Token
	if !p.check(token.RPAREN) {
		for {
			if len(params) >= maxParams {
				p.errorAt(p.peek(), "too many parameters (max %d)", maxParams)
			}
			params = append(params, p.consume(token.IDENT, "expected parameter name"))
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume(token.RPAREN, "expected ')' after parameters")
	lbrace := p.consume(token.LBRACE, "expected '{' before function body")
	body := p.blockStatements(lbrace)
	return &ast.FunctionLit{Token: fnTok, Name: name, Params: params, Body: body}
}

func (p *Parser) statement() ast.Stmt {
	switch {
	case p.match(token.PRINT):
		return p.printStatement()
	case p.match(token.LBRACE):
		lbrace := p.previous()
		return &ast.Block{Token: lbrace, Statements: p.blockStatements(lbrace)}
	case p.match(token.IF):
		return p.ifStatement()
	case p.match(token.WHILE):
		return p.whileStatement()
	case p.match(token.FOR):
		return p.forStatement()
	case p.match(token.BREAK):
		tok := p.previous()
		p.consume(token.SEMICOLON, "expected ';' after 'break'")
		return &ast.Break{Token: tok}
	case p.match(token.CONTINUE):
		tok := p.previous()
		p.consume(token.SEMICOLON, "expected ';' after 'continue'")
		return &ast.Continue{Token: tok}
	case p.match(token.RETURN):
		return p.returnStatement()
	default:
		return p.expressionStatement()
	}
}

// printStatement accepts both forms: print expr; and the call-style
// print(a, b, ...); which writes its arguments space-separated.
func (p *Parser) printStatement() ast.Stmt {
	tok := p.previous()
	var args []ast.Expr
	if p.match(token.LPAREN) {
		if !p.check(token.RPAREN) {
			for {
				args = append(args, p.expression())
				if !p.match(token.COMMA) {
					break
				}
			}
		}
		p.consume(token.RPAREN, "expected ')' after print arguments")
	} else {
		args = append(args, p.expression())
	}
	p.consume(token.SEMICOLON, "expected ';' after value")
	return &ast.PrintStmt{Token: tok, Args: args}
}

func (p *Parser) blockStatements(lbrace token.Token) []ast.Stmt {
	var stmts []ast.Stmt
	for !p.check(token.RBRACE) && !p.isAtEnd() {
		if stmt := p.declaration(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	p.consume(token.RBRACE, "expected '}' after block")
	return stmts
}

func (p *Parser) ifStatement() ast.Stmt {
	tok := p.previous()
	p.consume(token.LPAREN, "expected '(' after 'if'")
	cond := p.expression()
	p.consume(token.RPAREN, "expected ')' after condition")
	then := p.statement()
	var other ast.Stmt
	if p.match(token.ELSE) {
		other = p.statement()
	}
	return &ast.If{Token: tok, Cond: cond, Then: then, Else: other}
}

func (p *Parser) whileStatement() ast.Stmt {
	tok := p.previous()
	p.consume(token.LPAREN, "expected '(' after 'while'")
	cond := p.expression()
	p.consume(token.RPAREN, "expected ')' after condition")
	body := p.statement()
	return &ast.While{Token: tok, Cond: cond, Body: body}
}

func (p *Parser) forStatement() ast.Stmt {
	tok := p.previous()
	p.consume(token.LPAREN, "expected '(' after 'for'")

	var init ast.Stmt
	switch {
	case p.match(token.SEMICOLON):
		// no initializer
	case p.match(token.LET):
		init = p.varDeclaration(false)
	case p.match(token.VAR):
		init = p.varDeclaration(true)
	default:
		init = p.expressionStatement()
	}

	var cond ast.Expr
	if !p.check(token.SEMICOLON) {
		cond = p.expression()
	}
	p.consume(token.SEMICOLON, "expected ';' after loop condition")

	var incr ast.Expr
	if !p.check(token.RPAREN) {
		incr = p.expression()
	}
	p.consume(token.RPAREN, "expected ')' after for clauses")

	body := p.statement()
	return &ast.For{Token: tok, Init: init, Cond: cond, Incr: incr, Body: body}
}

func (p *Parser) returnStatement() ast.Stmt {
	tok := p.previous()
	var value ast.Expr
	if !p.check(token.SEMICOLON) {
		value = p.expression()
	}
	p.consume(token.SEMICOLON, "expected ';' after return value")
	return &ast.Return{Token: tok, Value: value}
}

func (p *Parser) expressionStatement() ast.Stmt {
	expr := p.expression()
	p.consume(token.SEMICOLON, "expected ';' after expression")
	return &ast.ExprStmt{Expression: expr}
}

// Expressions, by ascending precedence.

func (p *Parser) expression() ast.Expr {
	return p.assignment()
}

func (p *Parser) assignment() ast.Expr {
	expr := p.or()

	if p.match(token.ASSIGN) {
		equals := p.previous()
		value := p.assignment()
		if v, ok := expr.(*ast.Variable); ok {
			return &ast.Assign{Token: equals, Name: v.Name, Value: value}
		}
		// Report but keep parsing; the expression is still well formed.
		p.reporter.Report(diag.Semantic, equals.Line, equals.Column, "invalid assignment target")
	}

	return expr
}

func (p *Parser) or() ast.Expr {
	expr := p.and()
	for p.match(token.OR) {
		op := p.previous()
		right := p.and()
		expr = &ast.Binary{Token: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) and() ast.Expr {
	expr := p.equality()
	for p.match(token.AND) {
		op := p.previous()
		right := p.equality()
		expr = &ast.Binary{Token: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) equality() ast.Expr {
	expr := p.comparison()
	for p.match(token.EQ, token.BANG_EQ) {
		op := p.previous()
		right := p.comparison()
		expr = &ast.Binary{Token: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) comparison() ast.Expr {
	expr := p.term()
	for p.match(token.LESS, token.LESS_EQ, token.GREATER, token.GREATER_EQ) {
		op := p.previous()
		right := p.term()
		expr = &ast.Binary{Token: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) term() ast.Expr {
	expr := p.factor()
	for p.match(token.PLUS, token.MINUS) {
		op := p.previous()
		right := p.factor()
		expr = &ast.Binary{Token: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) factor() ast.Expr {
	expr := p.unary()
	for p.match(token.STAR, token.SLASH, token.PERCENT) {
		op := p.previous()
		right := p.unary()
		expr = &ast.Binary{Token: op, Left: expr, Right: right}
	}
	return expr
}

func (p *Parser) unary() ast.Expr {
	if p.match(token.BANG, token.MINUS) {
		op := p.previous()
		right := p.unary()
		return &ast.Unary{Token: op, Right: right}
	}
	return p.call()
}

func (p *Parser) call() ast.Expr {
	expr := p.primary()
	for p.check(token.LPAREN) {
		lparen := p.advance()
		expr = p.finishCall(lparen, expr)
	}
	return expr
}

func (p *Parser) finishCall(lparen token.Token, callee ast.Expr) ast.Expr {
	var args []ast.Expr
	if !p.check(token.RPAREN) {
		for {
			if len(args) >= maxParams {
				p.errorAt(p.peek(), "too many arguments (max %d)", maxParams)
			}
			args = append(args, p.expression())
			if !p.match(token.COMMA) {
				break
			}
		}
	}
	p.consume(token.RPAREN, "expected ')' after arguments")
	return &ast.Call{Token: lparen, Callee: callee, Args: args}
}

func (p *Parser) primary() ast.Expr {
	switch {
	case p.match(token.FALSE, token.TRUE, token.NIL):
		return &ast.Literal{Token: p.previous()}
	case p.match(token.NUMBER):
		tok := p.previous()
		n, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			p.errorAt(tok, "invalid number literal %q", tok.Lexeme)
		}
		return &ast.Literal{Token: tok, Number: n}
	case p.match(token.STRING):
		tok := p.previous()
		return &ast.Literal{Token: tok, Str: tok.Lexeme}
	case p.match(token.IDENT):
		tok := p.previous()
		return &ast.Variable{Token: tok, Name: tok.Lexeme}
	case p.match(token.FN):
		return p.functionBody(p.previous(), "")
	case p.match(token.LPAREN):
		expr := p.expression()
		p.consume(token.RPAREN, "expected ')' after expression")
		return expr
	case p.check(token.ILLEGAL):
		tok := p.advance()
		p.reporter.Report(diag.Lexical, tok.Line, tok.Column, "%s", tok.Lexeme)
		panic(parseError{})
	default:
		p.errorAt(p.peek(), "expected expression")
		panic("unreachable")
	}
}

// Token stream helpers.

func (p *Parser) peek() token.Token {
	return p.tokens[p.current]
}

func (p *Parser) previous() token.Token {
	return p.tokens[p.current-1]
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == token.EOF
}

func (p *Parser) advance() token.Token {
	if !p.isAtEnd() {
		p.current++
	}
	return p.previous()
}

func (p *Parser) check(t token.Type) bool {
	return p.peek().Type == t
}

func (p *Parser) checkNext(t token.Type) bool {
	if p.isAtEnd() {
		return false
	}
	return p.tokens[p.current+1].Type == t
}

func (p *Parser) match(types ...token.Type) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) consume(t token.Type, message string) token.Token {
	if p.check(t) {
		return p.advance()
	}
	p.errorAt(p.peek(), "%s", message)
	panic("unreachable")
}

func (p *Parser) errorAt(tok token.Token, format string, args ...interface{}) {
	kind := diag.Syntax
	if tok.Type == token.ILLEGAL {
		kind = diag.Lexical
		p.reporter.Report(kind, tok.Line, tok.Column, "%s", tok.Lexeme)
	} else {
		p.reporter.Report(kind, tok.Line, tok.Column, format, args...)
	}
	panic(parseError{})
}

// synchronize skips tokens until a likely statement boundary so one
// syntax error does not cascade into dozens of spurious ones.
func (p *Parser) synchronize() {
	p.advance()
	for !p.isAtEnd() {
		if p.previous().Type == token.SEMICOLON {
			return
		}
		switch p.peek().Type {
		case token.LET, token.VAR, token.FN, token.IF, token.WHILE,
			token.FOR, token.RETURN, token.PRINT, token.LBRACE:
			return
		}
		p.advance()
	}
}
