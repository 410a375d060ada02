package tinylang

import (
	"fmt"
	"reflect"

	"github.com/tinylang/tl/internal/vm"
)

// Marshaller converts between Go values and script values. Only the
// scalar types the language has are supported: nil, booleans, numbers
// and strings.
type Marshaller struct{}

func NewMarshaller() *Marshaller {
	return &Marshaller{}
}

// ToValue converts a Go value to a script value.
func (m *Marshaller) ToValue(val interface{}) (vm.Value, error) {
	if val == nil {
		return vm.NilValue(), nil
	}

	switch v := val.(type) {
	case bool:
		return vm.BoolValue(v), nil
	case string:
		return vm.StringValue(v), nil
	case float64:
		return vm.NumberValue(v), nil
	case float32:
		return vm.NumberValue(float64(v)), nil
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return vm.NumberValue(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return vm.NumberValue(float64(rv.Uint())), nil
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return vm.NilValue(), nil
		}
	}
	return vm.Value{}, fmt.Errorf("cannot convert %T to a script value", val)
}

// FromValue converts a script value to the given Go type. A nil
// target type means "whatever fits": nil, bool, float64 or string.
func (m *Marshaller) FromValue(v vm.Value, target reflect.Type) (interface{}, error) {
	if target == nil || target.Kind() == reflect.Interface {
		switch v.Kind {
		case vm.KindNil:
			return nil, nil
		case vm.KindBool:
			return v.AsBool(), nil
		case vm.KindNumber:
			return v.AsNumber(), nil
		case vm.KindString:
			return v.AsString(), nil
		default:
			return nil, fmt.Errorf("cannot convert %s to a Go value", v.Kind)
		}
	}

	switch target.Kind() {
	case reflect.Bool:
		if !v.IsBool() {
			return nil, fmt.Errorf("expected bool, got %s", v.Kind)
		}
		return v.AsBool(), nil
	case reflect.String:
		if !v.IsString() {
			return nil, fmt.Errorf("expected string, got %s", v.Kind)
		}
		return v.AsString(), nil
	case reflect.Float32, reflect.Float64,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if !v.IsNumber() {
			return nil, fmt.Errorf("expected number, got %s", v.Kind)
		}
		out := reflect.New(target).Elem()
		switch target.Kind() {
		case reflect.Float32, reflect.Float64:
			out.SetFloat(v.AsNumber())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out.SetInt(int64(v.AsNumber()))
		default:
			out.SetUint(uint64(v.AsNumber()))
		}
		return out.Interface(), nil
	}
	return nil, fmt.Errorf("unsupported Go target type %s", target)
}
