// Command tlc compiles a TinyLang source file to a persisted
// bytecode file.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/tinylang/tl/internal/config"
	"github.com/tinylang/tl/internal/diag"
	"github.com/tinylang/tl/internal/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tlc")

func main() {
	output := flag.String("o", "", "output path (default: input with "+config.BytecodeFileExt+")")
	noOptimize := flag.Bool("O0", false, "disable the peephole optimizer")
	dump := flag.Bool("d", false, "dump disassembly after compiling")
	verbose := flag.Int("v", 0, "log verbosity (0-2)")
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tlc [flags] file"+config.SourceFileExt)
		os.Exit(64)
	}
	input := flag.Arg(0)

	source, err := os.ReadFile(input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(66)
	}

	opts := config.Default()
	opts.Optimize = !*noOptimize
	machine := vm.New(opts)

	reporter := diag.New(input, string(source))
	handle, err := machine.CompileSource(input, string(source), reporter)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(65)
	}
	chunk := machine.Heap().Function(handle).Chunk

	out := *output
	if out == "" {
		out = strings.TrimSuffix(input, config.SourceFileExt) + config.BytecodeFileExt
	}
	if err := vm.WriteChunkFile(out, chunk); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(74)
	}
	log.Infof("compiled %s -> %s (%d bytes of code, %d constants)",
		input, out, chunk.Len(), len(chunk.Constants))

	if *dump {
		fmt.Print(vm.Disassemble(chunk, input))
	}
}
