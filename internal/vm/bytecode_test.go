package vm

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinylang/tl/internal/diag"
)

func sampleChunk() *Chunk {
	chunk := NewChunk("sample")
	idx, _ := chunk.AddConstant(NumberValue(3.25))
	chunk.AddConstant(StringValue("héllo"))
	chunk.AddConstant(BoolValue(true))
	chunk.AddConstant(NilValue())
	chunk.WriteOp(OP_CONSTANT, 1)
	chunk.Write(byte(idx), 1)
	chunk.WriteOp(OP_PRINT, 2)
	chunk.Write(1, 2)
	chunk.WriteOp(OP_NIL, 3)
	chunk.WriteOp(OP_RETURN, 3)
	return chunk
}

func TestMarshalRoundTrip(t *testing.T) {
	chunk := sampleChunk()
	data, err := MarshalChunk(chunk)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}

	back, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}

	if !bytes.Equal(back.Code, chunk.Code) {
		t.Errorf("code: got %v, want %v", back.Code, chunk.Code)
	}
	if len(back.Lines) != len(chunk.Lines) {
		t.Fatalf("line count: got %d, want %d", len(back.Lines), len(chunk.Lines))
	}
	for i := range chunk.Lines {
		if back.Lines[i] != chunk.Lines[i] {
			t.Errorf("line %d: got %d, want %d", i, back.Lines[i], chunk.Lines[i])
		}
	}
	if len(back.Constants) != len(chunk.Constants) {
		t.Fatalf("constant count: got %d, want %d", len(back.Constants), len(chunk.Constants))
	}
	for i, want := range chunk.Constants {
		if got := back.Constants[i]; got.Kind != want.Kind || !got.Equals(want) {
			t.Errorf("constant %d: got %v, want %v", i, got, want)
		}
	}

	// Re-marshaling the decoded chunk is byte-exact.
	again, err := MarshalChunk(back)
	if err != nil {
		t.Fatalf("second MarshalChunk: %v", err)
	}
	if !bytes.Equal(again, data) {
		t.Error("round trip is not byte-exact")
	}
}

func TestMarshalSpecialNumbers(t *testing.T) {
	chunk := NewChunk("nums")
	chunk.AddConstant(NumberValue(math.NaN()))
	chunk.AddConstant(NumberValue(math.Inf(1)))
	chunk.AddConstant(NumberValue(math.Inf(-1)))
	chunk.WriteOp(OP_RETURN, 1)

	data, err := MarshalChunk(chunk)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	back, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}
	if !math.IsNaN(back.Constants[0].Num) {
		t.Error("NaN did not survive")
	}
	if !math.IsInf(back.Constants[1].Num, 1) || !math.IsInf(back.Constants[2].Num, -1) {
		t.Error("infinities did not survive")
	}
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	good, err := MarshalChunk(sampleChunk())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "too short"},
		{"short", []byte("TB"), "too short"},
		{"bad magic", append([]byte("XYZ"), good[3:]...), "invalid bytecode magic"},
		{"bad version", append([]byte(BytecodeMagic+"\x63"), good[4:]...), "unsupported bytecode version"},
		{"truncated body", good[:len(good)-3], "truncated"},
		{"trailing garbage", append(append([]byte(nil), good...), 0xaa), "trailing garbage"},
	}
	for _, tt := range tests {
		if _, err := UnmarshalChunk(tt.data); err == nil {
			t.Errorf("%s: expected error", tt.name)
		} else if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %q, want substring %q", tt.name, err, tt.want)
		}
	}
}

func TestFunctionConstantsBecomePlaceholders(t *testing.T) {
	heap := NewHeap(1<<20, false)
	inner := heap.AllocFunction(&Function{Name: "inner", Chunk: NewChunk("inner")})

	chunk := NewChunk("outer")
	idx, _ := chunk.AddConstant(FunctionValue(inner))
	chunk.WriteOp(OP_CLOSURE, 1)
	chunk.Write(byte(idx), 1)
	chunk.WriteOp(OP_POP, 1)
	chunk.WriteOp(OP_NIL, 1)
	chunk.WriteOp(OP_RETURN, 1)

	data, err := MarshalChunk(chunk)
	if err != nil {
		t.Fatalf("MarshalChunk: %v", err)
	}
	back, err := UnmarshalChunk(data)
	if err != nil {
		t.Fatalf("UnmarshalChunk: %v", err)
	}
	if got := back.Constants[idx]; got.Kind != KindFunction || got.Handle != PlaceholderHandle {
		t.Fatalf("constant: got %v, want function placeholder", got)
	}

	// Executing a closure instruction over a placeholder fails cleanly.
	machine, _ := newTestVM()
	err = machine.RunChunk(back)
	if err == nil || !strings.Contains(err.Error(), "placeholder") {
		t.Errorf("RunChunk: got %v, want placeholder error", err)
	}
}

func TestChunkFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tbc")
	chunk := sampleChunk()

	if err := WriteChunkFile(path, chunk); err != nil {
		t.Fatalf("WriteChunkFile: %v", err)
	}
	back, err := ReadChunkFile(path)
	if err != nil {
		t.Fatalf("ReadChunkFile: %v", err)
	}
	if !bytes.Equal(back.Code, chunk.Code) {
		t.Errorf("code after file round trip: got %v, want %v", back.Code, chunk.Code)
	}
	if back.Name != path {
		t.Errorf("chunk name: got %q, want %q", back.Name, path)
	}
}

func TestCompiledScriptRunsFromDisk(t *testing.T) {
	machine, _ := newTestVM()
	reporter := diag.New("script.tl", `print(2 + 3);`)
	handle, err := machine.CompileSource("script.tl", `print(2 + 3);`, reporter)
	if err != nil {
		t.Fatalf("CompileSource: %v", err)
	}
	chunk := machine.Heap().Function(handle).Chunk

	path := filepath.Join(t.TempDir(), "script.tbc")
	if err := WriteChunkFile(path, chunk); err != nil {
		t.Fatalf("WriteChunkFile: %v", err)
	}
	back, err := ReadChunkFile(path)
	if err != nil {
		t.Fatalf("ReadChunkFile: %v", err)
	}

	fresh, out := newTestVM()
	if err := fresh.RunChunk(back); err != nil {
		t.Fatalf("RunChunk: %v", err)
	}
	if got := out.String(); got != "5\n" {
		t.Errorf("output: got %q, want %q", got, "5\n")
	}
}

func TestRunChunkRejectsMalformedCode(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Chunk
		want  string
	}{
		{"no trailing return", func() *Chunk {
			chunk := NewChunk("bad")
			chunk.WriteOp(OP_NIL, 1)
			return chunk
		}, "does not end in a return"},
		{"truncated operand", func() *Chunk {
			chunk := NewChunk("bad")
			chunk.WriteOp(OP_CONSTANT, 1)
			return chunk
		}, "truncated instruction"},
		{"constant outside pool", func() *Chunk {
			chunk := NewChunk("bad")
			chunk.WriteOp(OP_CONSTANT, 1)
			chunk.Write(5, 1)
			chunk.WriteOp(OP_RETURN, 1)
			return chunk
		}, "constant index"},
		{"unknown opcode", func() *Chunk {
			chunk := NewChunk("bad")
			chunk.Write(0xc8, 1)
			chunk.WriteOp(OP_NIL, 1)
			chunk.WriteOp(OP_RETURN, 1)
			return chunk
		}, "unknown opcode"},
		{"jump off the end", func() *Chunk {
			chunk := NewChunk("bad")
			chunk.WriteOp(OP_JUMP, 1)
			chunk.WriteOperand16(0x4000, 1)
			chunk.WriteOp(OP_NIL, 1)
			chunk.WriteOp(OP_RETURN, 1)
			return chunk
		}, "instruction boundary"},
		{"jump into an operand", func() *Chunk {
			chunk := NewChunk("bad")
			chunk.WriteOp(OP_LOOP, 2)
			chunk.WriteOperand16(2, 2)
			chunk.WriteOp(OP_NIL, 2)
			chunk.WriteOp(OP_RETURN, 2)
			return chunk
		}, "instruction boundary"},
	}
	for _, tt := range tests {
		machine, _ := newTestVM()
		err := machine.RunChunk(tt.build())
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
		} else if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: got %q, want substring %q", tt.name, err, tt.want)
		}
	}
}

func TestRunChunkRecoversFromInternalFaults(t *testing.T) {
	// Structurally sound, but the script closure has no upvalues, so
	// the upvalue access blows up inside the dispatch loop. The fault
	// must surface as an error and leave the VM reusable.
	chunk := NewChunk("bad")
	chunk.WriteOp(OP_GET_UPVALUE, 1)
	chunk.Write(0, 1)
	chunk.WriteOp(OP_RETURN, 1)

	machine, out := newTestVM()
	if err := machine.RunChunk(chunk); err == nil {
		t.Fatal("expected a runtime error")
	}
	if err := machine.Interpret("after.tl", `print("ok");`); err != nil {
		t.Fatalf("VM unusable after fault: %v", err)
	}
	if got := out.String(); got != "ok\n" {
		t.Errorf("output: got %q, want %q", got, "ok\n")
	}
}
