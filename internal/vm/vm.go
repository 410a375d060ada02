package vm

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/tinylang/tl/internal/config"
)

var errStackUnderflow = errors.New("operand stack underflow")

// CallFrame is one active invocation: the running closure, an
// instruction pointer into its function's chunk, and the stack offset
// where its local slots begin.
type CallFrame struct {
	closure Handle
	fn      *Function // cached lookup of the frame's function
	ip      int
	base    int
}

// VM executes compiled chunks. One VM owns its operand stack, frame
// stack, global table and heap outright; independent instances never
// share state.
type VM struct {
	id      string
	options config.Options

	stack      []Value
	sp         int
	frames     []CallFrame
	frameCount int

	globals  *Table
	heap     *Heap
	interner *Interner

	// openUpvalues is the intrusive list of capture cells still
	// pointing into the stack, sorted by descending slot.
	openUpvalues *Upvalue

	stdout       io.Writer
	startTime    time.Time
	instructions uint64

	log commonlog.Logger
}

// New creates a VM with the given options and registers the builtins.
func New(opts config.Options) *VM {
	vm := &VM{
		id:        uuid.NewString(),
		options:   opts,
		stack:     make([]Value, 0, opts.StackSize),
		frames:    make([]CallFrame, opts.MaxFrames),
		globals:   NewTable(),
		heap:      NewHeap(opts.GCThreshold, opts.GCStress),
		interner:  NewInterner(),
		stdout:    os.Stdout,
		startTime: time.Now(),
		log:       commonlog.GetLogger("tl.vm"),
	}
	vm.heap.SetRootMarker(vm.markRoots)
	vm.registerBuiltins()
	return vm
}

// SetStdout redirects print output, mainly for tests.
func (vm *VM) SetStdout(w io.Writer) {
	vm.stdout = w
}

// ID returns the VM instance identifier used to tag trace output.
func (vm *VM) ID() string {
	return vm.id
}

// markRoots enumerates the GC root set: the live operand stack, every
// active frame's closure, and the global table.
func (vm *VM) markRoots(mark func(Value)) {
	for i := 0; i < vm.sp; i++ {
		mark(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(ClosureValue(vm.frames[i].closure))
	}
	vm.globals.Each(func(_ string, v Value) {
		mark(v)
	})
}

// Stack primitives. Underflow panics with a sentinel recovered at the
// interpret boundary; it indicates corrupted bytecode, not user error.

func (vm *VM) push(v Value) {
	if vm.sp == len(vm.stack) {
		vm.stack = append(vm.stack, v)
	} else {
		vm.stack[vm.sp] = v
	}
	vm.sp++
}

func (vm *VM) pop() Value {
	if vm.sp == 0 {
		panic(errStackUnderflow)
	}
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) Value {
	if vm.sp-1-distance < 0 {
		panic(errStackUnderflow)
	}
	return vm.stack[vm.sp-1-distance]
}

// runtimeError formats a failure with a frame-by-frame trace,
// innermost first.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	var b strings.Builder
	fmt.Fprintf(&b, format, args...)
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		line := frame.fn.Chunk.Line(frame.ip - 1)
		fmt.Fprintf(&b, "\n  [line %d] in %s", line, frame.fn.DisplayName())
	}
	return errors.New(b.String())
}

// captureUpvalue returns the open cell for a stack slot, creating it
// if no closure has captured that slot yet.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	var prev *Upvalue
	uv := vm.openUpvalues
	for uv != nil && uv.Slot > slot {
		prev = uv
		uv = uv.Next
	}
	if uv != nil && uv.Slot == slot {
		return uv
	}

	created := &Upvalue{Slot: slot, Next: uv}
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open cell at or above the given stack
// slot, copying the variable into the cell before it leaves the stack.
func (vm *VM) closeUpvalues(from int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= from {
		uv := vm.openUpvalues
		uv.Closed = vm.stack[uv.Slot]
		uv.IsClosed = true
		vm.openUpvalues = uv.Next
		uv.Next = nil
	}
}

func (vm *VM) upvalueGet(uv *Upvalue) Value {
	if uv.IsClosed {
		return uv.Closed
	}
	return vm.stack[uv.Slot]
}

func (vm *VM) upvalueSet(uv *Upvalue, v Value) {
	if uv.IsClosed {
		uv.Closed = v
	} else {
		vm.stack[uv.Slot] = v
	}
}

// run is the fetch-decode-execute loop.
func (vm *VM) run() error {
	frame := &vm.frames[vm.frameCount-1]
	chunk := frame.fn.Chunk

	readByte := func() byte {
		b := chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readOperand16 := func() int {
		v := chunk.ReadOperand16(frame.ip)
		frame.ip += 2
		return v
	}
	reload := func() {
		frame = &vm.frames[vm.frameCount-1]
		chunk = frame.fn.Chunk
	}

	for {
		if vm.options.TraceExecution {
			vm.traceInstruction(frame, chunk)
		}
		vm.instructions++

		op := Opcode(readByte())
		switch op {
		case OP_CONSTANT:
			vm.push(chunk.Constants[readByte()])
		case OP_NIL:
			vm.push(NilValue())
		case OP_TRUE:
			vm.push(BoolValue(true))
		case OP_FALSE:
			vm.push(BoolValue(false))
		case OP_POP:
			vm.pop()

		case OP_ADD:
			b, a := vm.pop(), vm.pop()
			switch {
			case a.IsNumber() && b.IsNumber():
				vm.push(NumberValue(a.Num + b.Num))
			case a.IsString() && b.IsString():
				vm.push(StringValue(vm.interner.Intern(a.Str + b.Str)))
			default:
				return vm.runtimeError("operands to '+' must be two numbers or two strings, got %s and %s", a.Kind, b.Kind)
			}
		case OP_SUBTRACT:
			b, a, err := vm.popNumbers("-")
			if err != nil {
				return err
			}
			vm.push(NumberValue(a - b))
		case OP_MULTIPLY:
			b, a, err := vm.popNumbers("*")
			if err != nil {
				return err
			}
			vm.push(NumberValue(a * b))
		case OP_DIVIDE:
			b, a, err := vm.popNumbers("/")
			if err != nil {
				return err
			}
			if b == 0 {
				return vm.runtimeError("division by zero")
			}
			vm.push(NumberValue(a / b))
		case OP_MODULO:
			b, a, err := vm.popNumbers("%")
			if err != nil {
				return err
			}
			if b == 0 {
				return vm.runtimeError("modulo by zero")
			}
			vm.push(NumberValue(math.Mod(a, b)))
		case OP_NEGATE:
			v := vm.pop()
			if !v.IsNumber() {
				return vm.runtimeError("operand to '-' must be a number, got %s", v.Kind)
			}
			vm.push(NumberValue(-v.Num))

		case OP_EQUAL:
			b, a := vm.pop(), vm.pop()
			vm.push(BoolValue(a.Equals(b)))
		case OP_NOT_EQUAL:
			b, a := vm.pop(), vm.pop()
			vm.push(BoolValue(!a.Equals(b)))
		case OP_LESS, OP_LESS_EQUAL, OP_GREATER, OP_GREATER_EQUAL:
			if err := vm.compare(op); err != nil {
				return err
			}
		case OP_NOT:
			vm.push(BoolValue(!vm.pop().Truthy()))

		case OP_GET_LOCAL:
			vm.push(vm.stack[frame.base+int(readByte())])
		case OP_SET_LOCAL:
			vm.stack[frame.base+int(readByte())] = vm.peek(0)
		case OP_GET_GLOBAL:
			name := chunk.Constants[readByte()].Str
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("undefined variable '%s'", name)
			}
			vm.push(v)
		case OP_SET_GLOBAL:
			name := chunk.Constants[readByte()].Str
			if !vm.globals.Has(name) {
				return vm.runtimeError("undefined variable '%s'", name)
			}
			vm.globals.Set(name, vm.peek(0))
		case OP_DEFINE_GLOBAL:
			name := chunk.Constants[readByte()].Str
			vm.globals.Set(name, vm.pop())

		case OP_GET_UPVALUE:
			cl := vm.heap.Closure(frame.closure)
			vm.push(vm.upvalueGet(cl.Upvalues[readByte()]))
		case OP_SET_UPVALUE:
			cl := vm.heap.Closure(frame.closure)
			vm.upvalueSet(cl.Upvalues[readByte()], vm.peek(0))
		case OP_CLOSE_UPVALUE:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case OP_JUMP:
			frame.ip += readOperand16()
		case OP_JUMP_IF_FALSE:
			offset := readOperand16()
			if !vm.peek(0).Truthy() {
				frame.ip += offset
			}
		case OP_LOOP:
			frame.ip -= readOperand16()

		case OP_CLOSURE:
			fnVal := chunk.Constants[readByte()]
			fn := vm.heap.Function(fnVal.Handle)
			if fn == nil {
				return vm.runtimeError("cannot instantiate function placeholder from persisted bytecode")
			}
			closure := &Closure{
				Function: fnVal.Handle,
				Upvalues: make([]*Upvalue, len(fn.UpvalueDescs)),
			}
			for i, desc := range fn.UpvalueDescs {
				if desc.IsLocal {
					closure.Upvalues[i] = vm.captureUpvalue(frame.base + desc.Index)
				} else {
					parent := vm.heap.Closure(frame.closure)
					closure.Upvalues[i] = parent.Upvalues[desc.Index]
				}
			}
			vm.push(ClosureValue(vm.heap.AllocClosure(closure)))

		case OP_CALL:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			reload()

		case OP_RETURN:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.sp = 0
				return nil
			}
			vm.sp = frame.base - 1
			vm.push(result)
			reload()

		case OP_PRINT:
			argCount := int(readByte())
			parts := make([]string, argCount)
			for i := argCount - 1; i >= 0; i-- {
				parts[i] = vm.ValueString(vm.pop())
			}
			fmt.Fprintln(vm.stdout, strings.Join(parts, " "))

		default:
			return vm.runtimeError("unknown opcode %d", byte(op))
		}
	}
}

func (vm *VM) popNumbers(op string) (b, a float64, err error) {
	bv, av := vm.pop(), vm.pop()
	if !av.IsNumber() || !bv.IsNumber() {
		return 0, 0, vm.runtimeError("operands to '%s' must be numbers, got %s and %s", op, av.Kind, bv.Kind)
	}
	return bv.Num, av.Num, nil
}

// compare handles the four ordering opcodes over two numbers or two
// strings; anything else is a type error.
func (vm *VM) compare(op Opcode) error {
	b, a := vm.pop(), vm.pop()
	var result bool
	switch {
	case a.IsNumber() && b.IsNumber():
		switch op {
		case OP_LESS:
			result = a.Num < b.Num
		case OP_LESS_EQUAL:
			result = a.Num <= b.Num
		case OP_GREATER:
			result = a.Num > b.Num
		case OP_GREATER_EQUAL:
			result = a.Num >= b.Num
		}
	case a.IsString() && b.IsString():
		switch op {
		case OP_LESS:
			result = a.Str < b.Str
		case OP_LESS_EQUAL:
			result = a.Str <= b.Str
		case OP_GREATER:
			result = a.Str > b.Str
		case OP_GREATER_EQUAL:
			result = a.Str >= b.Str
		}
	default:
		return vm.runtimeError("comparison operands must be two numbers or two strings, got %s and %s", a.Kind, b.Kind)
	}
	vm.push(BoolValue(result))
	return nil
}

// ValueString renders v the way print does.
func (vm *VM) ValueString(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Num != 0 {
			return "true"
		}
		return "false"
	case KindNumber:
		return FormatNumber(v.Num)
	case KindString:
		return v.Str
	case KindFunction:
		if fn := vm.heap.Function(v.Handle); fn != nil {
			return fn.DisplayName()
		}
		return "<fn ?>"
	case KindClosure:
		if cl := vm.heap.Closure(v.Handle); cl != nil {
			if fn := vm.heap.Function(cl.Function); fn != nil {
				return fn.DisplayName()
			}
		}
		return "<fn ?>"
	case KindNative:
		return "<native fn " + v.Native.Name + ">"
	}
	return "<?>"
}

func (vm *VM) traceInstruction(frame *CallFrame, chunk *Chunk) {
	if frame.ip >= chunk.Len() {
		return
	}
	op := Opcode(chunk.Code[frame.ip])
	vm.log.Debugf("vm=%s %04d %-16s sp=%d depth=%d", vm.id, frame.ip, op, vm.sp, vm.frameCount)
}
