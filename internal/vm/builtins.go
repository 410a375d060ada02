package vm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tinylang/tl/internal/config"
)

// registerBuiltins installs the native functions in the global table.
// Each builtin validates its own argument types; arity -1 is variadic
// and checked by the call machinery otherwise.
func (vm *VM) registerBuiltins() {
	builtins := []*Native{
		{Name: config.PrintFuncName, Arity: -1, Fn: nativePrint},
		{Name: config.ClockFuncName, Arity: 0, Fn: nativeClock},
		{Name: config.LenFuncName, Arity: 1, Fn: nativeLen},
		{Name: config.AssertFuncName, Arity: 1, Fn: nativeAssert},
		{Name: config.ToNumberFuncName, Arity: 1, Fn: nativeToNumber},
		{Name: config.ToStringFuncName, Arity: 1, Fn: nativeToString},
		{Name: config.RangeFuncName, Arity: 1, Fn: nativeRange},
	}
	for _, b := range builtins {
		vm.globals.Set(b.Name, NativeValue(b))
	}
}

// nativePrint writes its arguments space-separated with a trailing
// newline and returns nil.
func nativePrint(vm *VM, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = vm.ValueString(arg)
	}
	fmt.Fprintln(vm.stdout, strings.Join(parts, " "))
	return NilValue(), nil
}

// nativeClock returns wall-clock seconds elapsed since the VM started.
func nativeClock(vm *VM, _ []Value) (Value, error) {
	return NumberValue(time.Since(vm.startTime).Seconds()), nil
}

func nativeLen(_ *VM, args []Value) (Value, error) {
	if !args[0].IsString() {
		return Value{}, fmt.Errorf("argument must be a string, got %s", args[0].Kind)
	}
	return NumberValue(float64(len(args[0].Str))), nil
}

func nativeAssert(vm *VM, args []Value) (Value, error) {
	if !args[0].Truthy() {
		return Value{}, errors.New("assertion failed")
	}
	return NilValue(), nil
}

func nativeToNumber(_ *VM, args []Value) (Value, error) {
	v := args[0]
	switch v.Kind {
	case KindNumber:
		return v, nil
	case KindBool:
		return NumberValue(v.Num), nil
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return Value{}, fmt.Errorf("cannot convert %q to number", v.Str)
		}
		return NumberValue(n), nil
	default:
		return Value{}, fmt.Errorf("cannot convert %s to number", v.Kind)
	}
}

func nativeToString(vm *VM, args []Value) (Value, error) {
	return StringValue(vm.interner.Intern(vm.ValueString(args[0]))), nil
}

// nativeRange returns the textual listing "0 1 ... n-1".
func nativeRange(vm *VM, args []Value) (Value, error) {
	if !args[0].IsNumber() {
		return Value{}, fmt.Errorf("argument must be a number, got %s", args[0].Kind)
	}
	n := int(args[0].Num)
	if n < 0 {
		return Value{}, fmt.Errorf("argument must not be negative, got %s", FormatNumber(args[0].Num))
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = strconv.Itoa(i)
	}
	return StringValue(vm.interner.Intern(strings.Join(parts, " "))), nil
}
