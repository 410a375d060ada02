// Package repl implements the interactive read-eval-print loop.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/tinylang/tl/internal/vm"
)

const prompt = "tl> "

// IsInteractive reports whether stdin is attached to a terminal.
func IsInteractive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// REPL evaluates lines against one persistent VM, so globals survive
// across inputs. Errors are printed and the loop keeps going.
type REPL struct {
	machine *vm.VM
	in      io.Reader
	out     io.Writer
}

func New(machine *vm.VM) *REPL {
	return &REPL{machine: machine, in: os.Stdin, out: os.Stdout}
}

// NewWithIO is the testable constructor.
func NewWithIO(machine *vm.VM, in io.Reader, out io.Writer) *REPL {
	return &REPL{machine: machine, in: in, out: out}
}

// Run reads and evaluates lines until EOF or :quit.
func (r *REPL) Run() error {
	scanner := bufio.NewScanner(r.in)
	line := 0
	for {
		fmt.Fprint(r.out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line++

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case ":quit", ":exit":
			return nil
		}

		if err := r.machine.Interpret(fmt.Sprintf("repl:%d", line), input); err != nil {
			fmt.Fprintln(r.out, err)
		}
	}
}
