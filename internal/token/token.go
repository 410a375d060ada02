package token

// Type identifies the lexical class of a token.
type Type uint8

const (
	ILLEGAL Type = iota
	EOF

	// Literals
	IDENT
	NUMBER
	STRING

	// Operators
	PLUS
	MINUS
	STAR
	SLASH
	PERCENT
	BANG
	BANG_EQ
	ASSIGN
	EQ
	LESS
	LESS_EQ
	GREATER
	GREATER_EQ
	AND
	OR

	// Delimiters
	LPAREN
	RPAREN
	LBRACE
	RBRACE
	COMMA
	SEMICOLON

	// Keywords
	LET
	VAR
	FN
	IF
	ELSE
	WHILE
	FOR
	BREAK
	CONTINUE
	RETURN
	TRUE
	FALSE
	NIL
	PRINT
)

var names = map[Type]string{
	ILLEGAL:    "ILLEGAL",
	EOF:        "EOF",
	IDENT:      "IDENT",
	NUMBER:     "NUMBER",
	STRING:     "STRING",
	PLUS:       "+",
	MINUS:      "-",
	STAR:       "*",
	SLASH:      "/",
	PERCENT:    "%",
	BANG:       "!",
	BANG_EQ:    "!=",
	ASSIGN:     "=",
	EQ:         "==",
	LESS:       "<",
	LESS_EQ:    "<=",
	GREATER:    ">",
	GREATER_EQ: ">=",
	AND:        "&&",
	OR:         "||",
	LPAREN:     "(",
	RPAREN:     ")",
	LBRACE:     "{",
	RBRACE:     "}",
	COMMA:      ",",
	SEMICOLON:  ";",
	LET:        "let",
	VAR:        "var",
	FN:         "fn",
	IF:         "if",
	ELSE:       "else",
	WHILE:      "while",
	FOR:        "for",
	BREAK:      "break",
	CONTINUE:   "continue",
	RETURN:     "return",
	TRUE:       "true",
	FALSE:      "false",
	NIL:        "nil",
	PRINT:      "print",
}

func (t Type) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Token is one lexeme with its source position.
type Token struct {
	Type   Type
	Lexeme string
	Line   int
	Column int
}

var keywords = map[string]Type{
	"let":      LET,
	"var":      VAR,
	"fn":       FN,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"for":      FOR,
	"break":    BREAK,
	"continue": CONTINUE,
	"return":   RETURN,
	"true":     TRUE,
	"false":    FALSE,
	"nil":      NIL,
	"print":    PRINT,
}

// LookupIdent returns the keyword type for ident, or IDENT.
func LookupIdent(ident string) Type {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return IDENT
}
