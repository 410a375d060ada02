package vm

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tinylang/tl/internal/diag"
	"github.com/tinylang/tl/internal/lexer"
	"github.com/tinylang/tl/internal/parser"
)

// Interpret compiles and runs source. Lexical, syntax and compile
// errors are collected and returned together; a runtime error carries
// its frame trace. The VM stays reusable after any failure.
func (vm *VM) Interpret(file, source string) error {
	reporter := diag.New(file, source)
	handle, err := vm.CompileSource(file, source, reporter)
	if err != nil {
		return err
	}
	return vm.RunFunction(handle)
}

// InterpretFile reads path and interprets its contents.
func (vm *VM) InterpretFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return vm.Interpret(path, string(data))
}

// CompileSource runs the front end and the optimizer, producing the
// script function. Diagnostics accumulate in reporter; the returned
// error summarizes them.
func (vm *VM) CompileSource(file, source string, reporter *diag.Reporter) (Handle, error) {
	tokens := lexer.New(source).Tokenize()
	prog := parser.New(tokens, reporter).Parse(file)
	if reporter.HasErrors() {
		return 0, errors.New(strings.TrimRight(reporter.Format(), "\n"))
	}

	// Functions allocated during compilation are unreachable from any
	// root until the script starts, so collection pauses here.
	vm.heap.Pause()
	defer vm.heap.Resume()

	handle, err := Compile(prog, vm.heap, vm.interner, reporter)
	if err != nil {
		return 0, errors.New(strings.TrimRight(reporter.Format(), "\n"))
	}

	if vm.options.Optimize {
		NewOptimizer(vm.heap).OptimizeFunction(handle)
	}
	return handle, nil
}

// RunFunction executes a compiled script function on a fresh stack.
// Any panic escaping the dispatch loop, such as an out-of-range access
// driven by a hostile persisted chunk, is converted into a runtime
// error rather than crashing the process.
func (vm *VM) RunFunction(handle Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = vm.runtimeError("%v", r)
		}
		if err != nil {
			vm.resetStacks()
		}
	}()

	vm.resetStacks()

	// Keep the script function rooted until its closure is on the stack.
	vm.heap.AddRoot(FunctionValue(handle))
	cl := vm.heap.AllocClosure(&Closure{Function: handle})
	vm.push(ClosureValue(cl))
	vm.heap.PopRoot()

	if err := vm.callClosure(cl, 0); err != nil {
		return err
	}
	return vm.run()
}

// RunChunk executes a bare chunk, typically one loaded from a
// persisted bytecode file. The chunk is validated first so malformed
// input is reported instead of derailing the dispatch loop.
func (vm *VM) RunChunk(chunk *Chunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}
	vm.heap.Pause()
	handle := vm.heap.AllocFunction(&Function{Chunk: chunk})
	vm.heap.Resume()
	return vm.RunFunction(handle)
}

func (vm *VM) resetStacks() {
	vm.sp = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// Introspection surface.

// InstructionCount returns the number of instructions dispatched over
// the VM's lifetime.
func (vm *VM) InstructionCount() uint64 {
	return vm.instructions
}

// MemoryUsage returns the tracked bytes of live heap objects.
func (vm *VM) MemoryUsage() int {
	return vm.heap.TrackedBytes()
}

// StackSnapshot copies the live operand stack, bottom first.
func (vm *VM) StackSnapshot() []Value {
	snapshot := make([]Value, vm.sp)
	copy(snapshot, vm.stack[:vm.sp])
	return snapshot
}

// GlobalBinding is one entry of a globals snapshot.
type GlobalBinding struct {
	Name  string
	Value Value
}

// Global returns the value bound to name in the global table.
func (vm *VM) Global(name string) (Value, bool) {
	return vm.globals.Get(name)
}

// DefineGlobal binds name in the global table, shadowing any builtin
// of the same name. Embedders use this to expose host values.
func (vm *VM) DefineGlobal(name string, v Value) {
	vm.globals.Set(vm.interner.Intern(name), v)
}

// RemoveGlobal unbinds name from the global table. It reports whether
// the name was bound.
func (vm *VM) RemoveGlobal(name string) bool {
	return vm.globals.Delete(name)
}

// GlobalsSnapshot lists the global table in first-definition order.
func (vm *VM) GlobalsSnapshot() []GlobalBinding {
	snapshot := make([]GlobalBinding, 0, vm.globals.Len())
	vm.globals.Each(func(name string, v Value) {
		snapshot = append(snapshot, GlobalBinding{Name: name, Value: v})
	})
	return snapshot
}

// CollectGarbage forces a full mark-and-sweep cycle and returns the
// number of objects freed.
func (vm *VM) CollectGarbage() int {
	return vm.heap.Collect()
}

// Heap exposes the arena, mainly to tooling and tests.
func (vm *VM) Heap() *Heap {
	return vm.heap
}
