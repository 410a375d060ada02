package vm

// Handle is a stable index into the heap arena. Handles stay valid
// across collections; a freed slot is only reused after its object is
// unreachable.
type Handle int

// UpvalueDesc records, at compile time, where a captured variable
// lives: in the enclosing function's locals (IsLocal) or in the
// enclosing function's own upvalue list. Descriptors are part of the
// Function so the closure instruction needs no inline operands.
type UpvalueDesc struct {
	IsLocal bool
	Index   int
}

// Function is an immutable compiled unit: a name, an arity and one
// chunk, plus the capture descriptors the VM uses to build closures
// over it.
type Function struct {
	Arity        int
	Name         string
	Chunk        *Chunk
	UpvalueDescs []UpvalueDesc
}

func (f *Function) size() int {
	return 96 + len(f.Chunk.Code) + 8*len(f.Chunk.Lines) +
		48*len(f.Chunk.Constants) + 16*len(f.UpvalueDescs)
}

// DisplayName renders the function for traces and printing.
func (f *Function) DisplayName() string {
	if f.Name == "" {
		return "<script>"
	}
	return "<fn " + f.Name + ">"
}

// Upvalue is a capture cell. While the captured variable is still on
// the operand stack the cell is open and Slot indexes that stack
// position; once the variable's scope ends the cell closes over a
// copy. Open cells form an intrusive list sorted by descending slot.
type Upvalue struct {
	Slot     int
	Closed   Value
	IsClosed bool
	Next     *Upvalue
}

// Closure pairs a shared Function with the capture cells for one
// activation. The cell list is owned by the closure; the Function is
// shared, possibly by many closures.
type Closure struct {
	Function Handle
	Upvalues []*Upvalue
}

func (c *Closure) size() int {
	return 32 + 48*len(c.Upvalues)
}

// Native is a builtin function implemented in Go. Arity -1 means
// variadic; builtins validate their own argument types.
type Native struct {
	Name  string
	Arity int
	Fn    func(vm *VM, args []Value) (Value, error)
}
