// Package tinylang provides a high-level embedding API over the
// interpreter: evaluate source, bind Go values and functions into the
// global scope, and read globals back as Go values.
package tinylang

import (
	"fmt"
	"io"
	"reflect"

	"github.com/tinylang/tl/internal/config"
	"github.com/tinylang/tl/internal/vm"
)

// VM wraps the underlying interpreter with host-value marshalling.
type VM struct {
	machine    *vm.VM
	marshaller *Marshaller
}

// New creates a VM with default options.
func New() *VM {
	return NewWithOptions(config.Default())
}

// NewWithOptions creates a VM with explicit options.
func NewWithOptions(opts config.Options) *VM {
	return &VM{
		machine:    vm.New(opts),
		marshaller: NewMarshaller(),
	}
}

// SetOutput redirects print output.
func (v *VM) SetOutput(w io.Writer) {
	v.machine.SetStdout(w)
}

// Eval compiles and runs source. Globals persist across calls.
func (v *VM) Eval(name, source string) error {
	return v.machine.Interpret(name, source)
}

// EvalFile runs the script at path.
func (v *VM) EvalFile(path string) error {
	return v.machine.InterpretFile(path)
}

// Bind exposes a Go value or function as a script global. Functions
// are wrapped so scripts can call them directly; their parameters and
// results are converted through the marshaller.
func (v *VM) Bind(name string, val interface{}) error {
	if val != nil && reflect.TypeOf(val).Kind() == reflect.Func {
		return v.bindFunction(name, reflect.ValueOf(val))
	}
	sv, err := v.marshaller.ToValue(val)
	if err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	v.machine.DefineGlobal(name, sv)
	return nil
}

// Unbind removes a global previously created by Bind or by a script.
// It reports whether the name was bound.
func (v *VM) Unbind(name string) bool {
	return v.machine.RemoveGlobal(name)
}

// Global reads a script global back as a plain Go value.
func (v *VM) Global(name string) (interface{}, bool) {
	sv, ok := v.machine.Global(name)
	if !ok {
		return nil, false
	}
	out, err := v.marshaller.FromValue(sv, nil)
	if err != nil {
		return nil, false
	}
	return out, true
}

// bindFunction wraps fn as a native. Supported signatures take
// marshallable parameters and return nothing, one value, or one value
// plus an error.
func (v *VM) bindFunction(name string, fn reflect.Value) error {
	fnType := fn.Type()
	if fnType.IsVariadic() {
		return fmt.Errorf("bind %s: variadic functions are not supported", name)
	}

	switch fnType.NumOut() {
	case 0, 1:
	case 2:
		if !fnType.Out(1).Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			return fmt.Errorf("bind %s: second return value must be error", name)
		}
	default:
		return fmt.Errorf("bind %s: too many return values", name)
	}

	marshaller := v.marshaller
	native := &vm.Native{
		Name:  name,
		Arity: fnType.NumIn(),
		Fn: func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
			goArgs := make([]reflect.Value, len(args))
			for i, arg := range args {
				converted, err := marshaller.FromValue(arg, fnType.In(i))
				if err != nil {
					return vm.Value{}, fmt.Errorf("argument %d: %w", i+1, err)
				}
				goArgs[i] = reflect.ValueOf(converted)
			}

			results := fn.Call(goArgs)

			if fnType.NumOut() == 2 {
				if errVal := results[1].Interface(); errVal != nil {
					return vm.Value{}, errVal.(error)
				}
				results = results[:1]
			}
			if len(results) == 0 || fnType.NumOut() == 0 {
				return vm.NilValue(), nil
			}
			return marshaller.ToValue(results[0].Interface())
		},
	}
	v.machine.DefineGlobal(name, vm.NativeValue(native))
	return nil
}
