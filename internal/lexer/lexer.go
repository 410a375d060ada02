package lexer

import (
	"github.com/tinylang/tl/internal/token"
)

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int  // current line number
	column       int  // current column number
}

func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// NextToken scans and returns the next token in the input.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()

	var tok token.Token

	switch l.ch {
	case '+':
		tok = l.newToken(token.PLUS)
	case '-':
		tok = l.newToken(token.MINUS)
	case '*':
		tok = l.newToken(token.STAR)
	case '%':
		tok = l.newToken(token.PERCENT)
	case '/':
		// Comments are handled in skipWhitespace, so this is division.
		tok = l.newToken(token.SLASH)
	case '(':
		tok = l.newToken(token.LPAREN)
	case ')':
		tok = l.newToken(token.RPAREN)
	case '{':
		tok = l.newToken(token.LBRACE)
	case '}':
		tok = l.newToken(token.RBRACE)
	case ',':
		tok = l.newToken(token.COMMA)
	case ';':
		tok = l.newToken(token.SEMICOLON)
	case '=':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(token.EQ)
		} else {
			tok = l.newToken(token.ASSIGN)
		}
	case '!':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(token.BANG_EQ)
		} else {
			tok = l.newToken(token.BANG)
		}
	case '<':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(token.LESS_EQ)
		} else {
			tok = l.newToken(token.LESS)
		}
	case '>':
		if l.peekChar() == '=' {
			tok = l.twoCharToken(token.GREATER_EQ)
		} else {
			tok = l.newToken(token.GREATER)
		}
	case '&':
		if l.peekChar() == '&' {
			tok = l.twoCharToken(token.AND)
		} else {
			tok = token.Token{Type: token.ILLEGAL, Lexeme: "unexpected character '&'", Line: l.line, Column: l.column}
		}
	case '|':
		if l.peekChar() == '|' {
			tok = l.twoCharToken(token.OR)
		} else {
			tok = token.Token{Type: token.ILLEGAL, Lexeme: "unexpected character '|'", Line: l.line, Column: l.column}
		}
	case '"':
		return l.readString()
	case 0:
		tok = token.Token{Type: token.EOF, Line: l.line, Column: l.column}
	default:
		if isDigit(l.ch) {
			return l.readNumber()
		}
		if isLetter(l.ch) {
			return l.readIdentifier()
		}
		tok = token.Token{Type: token.ILLEGAL, Lexeme: "unexpected character '" + string(l.ch) + "'", Line: l.line, Column: l.column}
	}

	l.readChar()
	return tok
}

// Tokenize scans the whole input through EOF (inclusive).
func (l *Lexer) Tokenize() []token.Token {
	var tokens []token.Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens
		}
	}
}

func (l *Lexer) newToken(t token.Type) token.Token {
	return token.Token{Type: t, Lexeme: string(l.ch), Line: l.line, Column: l.column}
}

func (l *Lexer) twoCharToken(t token.Type) token.Token {
	col := l.column
	first := l.ch
	l.readChar()
	return token.Token{Type: t, Lexeme: string(first) + string(l.ch), Line: l.line, Column: col}
}

func (l *Lexer) skipWhitespace() {
	for {
		switch l.ch {
		case ' ', '\t', '\r', '\n':
			l.readChar()
		case '/':
			if l.peekChar() != '/' {
				return
			}
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readIdentifier() token.Token {
	start := l.position
	line, col := l.line, l.column
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lexeme := l.input[start:l.position]
	return token.Token{Type: token.LookupIdent(lexeme), Lexeme: lexeme, Line: line, Column: col}
}

func (l *Lexer) readNumber() token.Token {
	start := l.position
	line, col := l.line, l.column
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return token.Token{Type: token.NUMBER, Lexeme: l.input[start:l.position], Line: line, Column: col}
}

func (l *Lexer) readString() token.Token {
	line, col := l.line, l.column
	l.readChar() // opening quote
	var out []byte
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return token.Token{Type: token.ILLEGAL, Lexeme: "unterminated string", Line: line, Column: col}
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '\\':
				out = append(out, '\\')
			case '"':
				out = append(out, '"')
			case '0':
				out = append(out, 0)
			default:
				return token.Token{Type: token.ILLEGAL, Lexeme: "invalid escape sequence '\\" + string(l.ch) + "'", Line: l.line, Column: l.column}
			}
			l.readChar()
			continue
		}
		out = append(out, l.ch)
		l.readChar()
	}
	l.readChar() // closing quote
	return token.Token{Type: token.STRING, Lexeme: string(out), Line: line, Column: col}
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
