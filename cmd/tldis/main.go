// Command tldis prints the textual disassembly of a persisted
// bytecode file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tinylang/tl/internal/config"
	"github.com/tinylang/tl/internal/vm"
)

func main() {
	noConstants := flag.Bool("no-constants", false, "omit the constant pool listing")
	noLines := flag.Bool("no-lines", false, "omit source line markers")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: tldis [flags] file"+config.BytecodeFileExt)
		os.Exit(64)
	}
	path := flag.Arg(0)

	chunk, err := vm.ReadChunkFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(65)
	}

	fmt.Print(vm.DisassembleWith(chunk, path, vm.DisasmOptions{
		ShowLines:     !*noLines,
		ShowConstants: !*noConstants,
	}))
}
