package vm

// callValue dispatches a call on the callee's runtime kind. Closures
// push a frame; natives run synchronously in the current one.
func (vm *VM) callValue(callee Value, argCount int) error {
	switch callee.Kind {
	case KindClosure:
		return vm.callClosure(callee.Handle, argCount)
	case KindFunction:
		// Bare functions only occur as constants; wrap on the fly so
		// the frame always carries a closure.
		cl := vm.heap.AllocClosure(&Closure{Function: callee.Handle})
		vm.stack[vm.sp-argCount-1] = ClosureValue(cl)
		return vm.callClosure(cl, argCount)
	case KindNative:
		return vm.callNative(callee.Native, argCount)
	default:
		return vm.runtimeError("can only call functions, got %s", callee.Kind)
	}
}

// callClosure verifies arity and pushes a frame whose base is the
// first argument's stack slot.
func (vm *VM) callClosure(handle Handle, argCount int) error {
	cl := vm.heap.Closure(handle)
	fn := vm.heap.Function(cl.Function)

	if argCount != fn.Arity {
		return vm.runtimeError("expected %d arguments but got %d in call to %s",
			fn.Arity, argCount, fn.DisplayName())
	}
	if vm.frameCount >= vm.options.MaxFrames {
		return vm.runtimeError("stack overflow")
	}

	vm.frames[vm.frameCount] = CallFrame{
		closure: handle,
		fn:      fn,
		ip:      0,
		base:    vm.sp - argCount,
	}
	vm.frameCount++
	return nil
}

// callNative pops the arguments and the callee, runs the builtin, and
// pushes its result.
func (vm *VM) callNative(native *Native, argCount int) error {
	if native.Arity >= 0 && argCount != native.Arity {
		return vm.runtimeError("expected %d arguments but got %d in call to %s",
			native.Arity, argCount, native.Name)
	}
	args := make([]Value, argCount)
	copy(args, vm.stack[vm.sp-argCount:vm.sp])

	result, err := native.Fn(vm, args)
	if err != nil {
		return vm.runtimeError("%s: %v", native.Name, err)
	}

	vm.sp -= argCount + 1
	vm.push(result)
	return nil
}
