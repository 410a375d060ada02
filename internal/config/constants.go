package config

const SourceFileExt = ".tl"

// BytecodeFileExt is the extension of persisted bytecode files.
const BytecodeFileExt = ".tbc"

// Built-in function names
const (
	PrintFuncName    = "print"
	ClockFuncName    = "clock"
	LenFuncName      = "len"
	AssertFuncName   = "assert"
	ToNumberFuncName = "toNumber"
	ToStringFuncName = "toString"
	RangeFuncName    = "range"
)
