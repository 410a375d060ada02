package vm

// object is anything the collector tracks. Only functions and
// closures live in the arena; strings and numbers are plain values.
type object interface {
	size() int
}

// Heap is an arena of collectable objects addressed by stable
// handles. Collection is mark-and-sweep: the VM supplies the root
// marker, the heap walks the object graph from there and frees every
// slot left unmarked.
type Heap struct {
	slots []object
	marks []bool
	free  []Handle

	bytes        int // tracked bytes currently allocated
	threshold    int // next collection trigger
	minThreshold int
	stress       bool

	roots     []Value // embedder-registered extra roots
	markRoots func(mark func(Value))
	paused    bool

	collections int
	lastFreed   int
}

// growFactor scales the collection threshold after every cycle.
const growFactor = 2

func NewHeap(threshold int, stress bool) *Heap {
	return &Heap{threshold: threshold, minThreshold: threshold, stress: stress}
}

// SetRootMarker installs the VM's root enumeration. Until a marker is
// installed (e.g. while compiling), allocation never collects.
func (h *Heap) SetRootMarker(f func(mark func(Value))) {
	h.markRoots = f
}

// AllocFunction places fn in the arena and returns its handle.
func (h *Heap) AllocFunction(fn *Function) Handle {
	return h.alloc(fn)
}

// AllocClosure places cl in the arena and returns its handle.
func (h *Heap) AllocClosure(cl *Closure) Handle {
	return h.alloc(cl)
}

// Pause suspends automatic collection; allocations still track bytes.
// Used while the compiler holds functions no root can reach yet.
func (h *Heap) Pause() {
	h.paused = true
}

// Resume re-enables automatic collection.
func (h *Heap) Resume() {
	h.paused = false
}

// PopRoot removes the most recently added extra root.
func (h *Heap) PopRoot() {
	if n := len(h.roots); n > 0 {
		h.roots = h.roots[:n-1]
	}
}

func (h *Heap) alloc(obj object) Handle {
	if !h.paused && h.markRoots != nil && (h.stress || h.bytes+obj.size() > h.threshold) {
		h.Collect()
	}
	h.bytes += obj.size()

	if n := len(h.free); n > 0 {
		handle := h.free[n-1]
		h.free = h.free[:n-1]
		h.slots[handle] = obj
		h.marks[handle] = false
		return handle
	}
	h.slots = append(h.slots, obj)
	h.marks = append(h.marks, false)
	return Handle(len(h.slots) - 1)
}

// Function returns the function behind h, or nil if the handle does
// not refer to a live function. Negative handles (such as the
// placeholder for function constants read from disk) resolve to nil.
func (h *Heap) Function(handle Handle) *Function {
	if int(handle) < 0 || int(handle) >= len(h.slots) {
		return nil
	}
	fn, _ := h.slots[handle].(*Function)
	return fn
}

// Closure returns the closure behind h, or nil.
func (h *Heap) Closure(handle Handle) *Closure {
	if int(handle) < 0 || int(handle) >= len(h.slots) {
		return nil
	}
	cl, _ := h.slots[handle].(*Closure)
	return cl
}

// Live reports whether handle refers to an allocated object.
func (h *Heap) Live(handle Handle) bool {
	return int(handle) >= 0 && int(handle) < len(h.slots) && h.slots[handle] != nil
}

// AddRoot registers an extra root that keeps its referents alive
// across collections until ClearRoots.
func (h *Heap) AddRoot(v Value) {
	h.roots = append(h.roots, v)
}

// ClearRoots drops all embedder-registered roots.
func (h *Heap) ClearRoots() {
	h.roots = h.roots[:0]
}

// TrackedBytes returns the byte estimate of all live arena objects.
func (h *Heap) TrackedBytes() int {
	return h.bytes
}

// ObjectCount returns the number of live arena objects.
func (h *Heap) ObjectCount() int {
	n := 0
	for _, obj := range h.slots {
		if obj != nil {
			n++
		}
	}
	return n
}

// Collections returns how many collection cycles have run.
func (h *Heap) Collections() int {
	return h.collections
}

// LastFreed returns how many objects the previous cycle freed.
func (h *Heap) LastFreed() int {
	return h.lastFreed
}

// Collect runs one full mark-and-sweep cycle and returns the number
// of objects freed.
func (h *Heap) Collect() int {
	for i := range h.marks {
		h.marks[i] = false
	}

	if h.markRoots != nil {
		h.markRoots(h.MarkValue)
	}
	for _, v := range h.roots {
		h.MarkValue(v)
	}

	freed := 0
	for i, obj := range h.slots {
		if obj == nil || h.marks[i] {
			continue
		}
		h.bytes -= obj.size()
		h.slots[i] = nil
		h.free = append(h.free, Handle(i))
		freed++
	}

	h.collections++
	h.lastFreed = freed
	h.threshold = h.bytes * growFactor
	if h.threshold < h.minThreshold {
		h.threshold = h.minThreshold
	}
	return freed
}

// MarkValue marks the heap object referenced by v, if any, and
// everything reachable from it.
func (h *Heap) MarkValue(v Value) {
	switch v.Kind {
	case KindFunction, KindClosure:
		h.markHandle(v.Handle)
	}
}

func (h *Heap) markHandle(handle Handle) {
	if !h.Live(handle) || h.marks[handle] {
		return
	}
	h.marks[handle] = true

	switch obj := h.slots[handle].(type) {
	case *Function:
		// Nested functions appear in the constant pool.
		for _, c := range obj.Chunk.Constants {
			h.MarkValue(c)
		}
	case *Closure:
		h.markHandle(obj.Function)
		for _, uv := range obj.Upvalues {
			if uv.IsClosed {
				h.MarkValue(uv.Closed)
			}
		}
	}
}
