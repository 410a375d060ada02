// Package diag collects and formats diagnostics produced by the
// lexer, parser, compiler and VM.
package diag

import (
	"fmt"
	"strings"
)

// Kind classifies a diagnostic by the stage that produced it.
type Kind uint8

const (
	Lexical Kind = iota
	Syntax
	Semantic
	Runtime
)

func (k Kind) String() string {
	switch k {
	case Lexical:
		return "lexical error"
	case Syntax:
		return "syntax error"
	case Semantic:
		return "compile error"
	case Runtime:
		return "runtime error"
	}
	return "error"
}

// Diagnostic is one reported problem with its source position.
// Column may be 0 when the producer only tracks lines.
type Diagnostic struct {
	Kind    Kind
	Message string
	Line    int
	Column  int
}

func (d Diagnostic) String() string {
	if d.Column > 0 {
		return fmt.Sprintf("%d:%d: %s: %s", d.Line, d.Column, d.Kind, d.Message)
	}
	return fmt.Sprintf("%d: %s: %s", d.Line, d.Kind, d.Message)
}

// Reporter accumulates diagnostics for one compilation or run.
// The zero value is not usable; call New.
type Reporter struct {
	file  string
	lines []string
	diags []Diagnostic
}

// New creates a Reporter for the given file name and source text.
// Source may be empty, in which case no snippet lines are rendered.
func New(file, source string) *Reporter {
	var lines []string
	if source != "" {
		lines = strings.Split(source, "\n")
	}
	return &Reporter{file: file, lines: lines}
}

// Report records a diagnostic.
func (r *Reporter) Report(kind Kind, line, column int, format string, args ...interface{}) {
	r.diags = append(r.diags, Diagnostic{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Line:    line,
		Column:  column,
	})
}

// HasErrors reports whether anything has been recorded.
func (r *Reporter) HasErrors() bool {
	return len(r.diags) > 0
}

// Count returns the number of recorded diagnostics.
func (r *Reporter) Count() int {
	return len(r.diags)
}

// Diagnostics returns the recorded diagnostics in report order.
func (r *Reporter) Diagnostics() []Diagnostic {
	return r.diags
}

// Format renders every diagnostic, one per line, each followed by the
// offending source line and a caret when the position is known.
func (r *Reporter) Format() string {
	var b strings.Builder
	for _, d := range r.diags {
		if r.file != "" {
			b.WriteString(r.file)
			b.WriteByte(':')
		}
		b.WriteString(d.String())
		b.WriteByte('\n')
		if d.Line >= 1 && d.Line <= len(r.lines) && d.Column >= 1 {
			src := r.lines[d.Line-1]
			b.WriteString("    ")
			b.WriteString(src)
			b.WriteByte('\n')
			b.WriteString("    ")
			for i := 0; i < d.Column-1 && i < len(src); i++ {
				if src[i] == '\t' {
					b.WriteByte('\t')
				} else {
					b.WriteByte(' ')
				}
			}
			b.WriteString("^\n")
		}
	}
	return b.String()
}
