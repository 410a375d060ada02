// Command tl runs TinyLang programs: a script file when given one,
// otherwise an interactive REPL on a terminal or a batch read of stdin.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/tinylang/tl/internal/config"
	"github.com/tinylang/tl/internal/repl"
	"github.com/tinylang/tl/internal/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tl")

func main() {
	configPath := flag.String("config", "", "path to a YAML options file")
	verbose := flag.Int("v", 0, "log verbosity (0-2)")
	trace := flag.Bool("trace", false, "log every executed instruction")
	gcStress := flag.Bool("gc-stress", false, "collect on every allocation")
	noOptimize := flag.Bool("O0", false, "disable the peephole optimizer")
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	opts, err := loadOptions(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *trace {
		opts.TraceExecution = true
	}
	if *gcStress {
		opts.GCStress = true
	}
	if *noOptimize {
		opts.Optimize = false
	}

	machine := vm.New(opts)
	log.Debugf("vm %s ready", machine.ID())

	switch {
	case flag.NArg() >= 1:
		runFile(machine, flag.Arg(0))
	case repl.IsInteractive():
		if err := repl.New(machine).Run(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	default:
		runStdin(machine)
	}
}

func loadOptions(path string) (config.Options, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadIfExists(".tl.yaml")
}

func runFile(machine *vm.VM, path string) {
	var err error
	if strings.HasSuffix(path, config.BytecodeFileExt) {
		var chunk *vm.Chunk
		chunk, err = vm.ReadChunkFile(path)
		if err == nil {
			err = machine.RunChunk(chunk)
		}
	} else {
		err = machine.InterpretFile(path)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(70)
	}
}

func runStdin(machine *vm.VM) {
	source, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := machine.Interpret("stdin", string(source)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(70)
	}
}
