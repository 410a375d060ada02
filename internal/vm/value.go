package vm

import (
	"math"
	"strconv"
)

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindFunction
	KindClosure
	KindNative
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindClosure:
		return "function"
	case KindNative:
		return "native function"
	}
	return "unknown"
}

// Value is a stack-allocated tagged union. Numbers and booleans are
// held inline; functions and closures are referenced by heap handle;
// builtins carry their native implementation directly.
type Value struct {
	Kind   Kind
	Num    float64 // number, or 0/1 for bool
	Str    string
	Handle Handle  // function/closure arena handle
	Native *Native // builtin implementation
}

// Constructors

func NilValue() Value {
	return Value{Kind: KindNil}
}

func BoolValue(b bool) Value {
	v := Value{Kind: KindBool}
	if b {
		v.Num = 1
	}
	return v
}

func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

func StringValue(s string) Value {
	return Value{Kind: KindString, Str: s}
}

func FunctionValue(h Handle) Value {
	return Value{Kind: KindFunction, Handle: h}
}

func ClosureValue(h Handle) Value {
	return Value{Kind: KindClosure, Handle: h}
}

func NativeValue(n *Native) Value {
	return Value{Kind: KindNative, Native: n}
}

// Predicates and accessors

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsString() bool { return v.Kind == KindString }

func (v Value) AsBool() bool      { return v.Num != 0 }
func (v Value) AsNumber() float64 { return v.Num }
func (v Value) AsString() string  { return v.Str }

// Truthy implements condition semantics: nil is false, booleans are
// themselves, numbers are true unless zero, strings unless empty.
// Functions, closures and natives are always true.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.Num != 0
	case KindNumber:
		return v.Num != 0
	case KindString:
		return v.Str != ""
	default:
		return true
	}
}

// Equals implements language equality: numbers by value with
// NaN == NaN, strings by content, functions and closures by identity.
func (v Value) Equals(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return (v.Num != 0) == (other.Num != 0)
	case KindNumber:
		if math.IsNaN(v.Num) && math.IsNaN(other.Num) {
			return true
		}
		return v.Num == other.Num
	case KindString:
		return v.Str == other.Str
	case KindFunction, KindClosure:
		return v.Handle == other.Handle
	case KindNative:
		return v.Native == other.Native
	}
	return false
}

// FormatNumber renders a number the way print does: integral values
// without a decimal point, non-finite values as nan/inf/-inf.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "nan"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	case n == math.Trunc(n) && math.Abs(n) < 1e17:
		return strconv.FormatFloat(n, 'f', 0, 64)
	default:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
}
