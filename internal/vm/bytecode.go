package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Persisted bytecode format: a 3-byte magic, a 1-byte version, then
// one serialized chunk. All multi-byte integers are little-endian.
// Constants are tagged: 0 nil, 1 bool, 2 number (IEEE-754 double),
// 3 string (length-prefixed UTF-8), 4 function placeholder with no
// payload. Writing and re-reading a chunk is byte-exact.
const (
	BytecodeMagic   = "TBC"
	BytecodeVersion = 1
)

const (
	tagNil      = 0
	tagBool     = 1
	tagNumber   = 2
	tagString   = 3
	tagFunction = 4
)

// PlaceholderHandle marks function constants read back from disk;
// they cannot be instantiated.
const PlaceholderHandle = Handle(-1)

// MarshalChunk encodes chunk in the persisted bytecode format.
func MarshalChunk(chunk *Chunk) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(BytecodeMagic)
	buf.WriteByte(BytecodeVersion)

	writeU32 := func(v int) {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(v))
		buf.Write(tmp[:])
	}

	writeU32(len(chunk.Code))
	buf.Write(chunk.Code)

	writeU32(len(chunk.Lines))
	for _, line := range chunk.Lines {
		writeU32(line)
	}

	writeU32(len(chunk.Constants))
	for _, c := range chunk.Constants {
		switch c.Kind {
		case KindNil:
			buf.WriteByte(tagNil)
		case KindBool:
			buf.WriteByte(tagBool)
			if c.Num != 0 {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case KindNumber:
			buf.WriteByte(tagNumber)
			var tmp [8]byte
			binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(c.Num))
			buf.Write(tmp[:])
		case KindString:
			buf.WriteByte(tagString)
			writeU32(len(c.Str))
			buf.WriteString(c.Str)
		case KindFunction, KindClosure:
			buf.WriteByte(tagFunction)
		default:
			return nil, fmt.Errorf("constant kind %s cannot be persisted", c.Kind)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalChunk decodes persisted bytecode. Function constants come
// back as placeholders; chunks containing them disassemble fine but
// cannot execute a closure instruction.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	if len(data) < len(BytecodeMagic)+1 {
		return nil, fmt.Errorf("bytecode too short (%d bytes)", len(data))
	}
	if string(data[:len(BytecodeMagic)]) != BytecodeMagic {
		return nil, fmt.Errorf("invalid bytecode magic %q", data[:len(BytecodeMagic)])
	}
	if version := data[len(BytecodeMagic)]; version != BytecodeVersion {
		return nil, fmt.Errorf("unsupported bytecode version %d", version)
	}

	r := &byteReader{data: data, pos: len(BytecodeMagic) + 1}
	chunk := NewChunk("chunk")

	codeLen, err := r.u32()
	if err != nil {
		return nil, err
	}
	chunk.Code, err = r.bytes(codeLen)
	if err != nil {
		return nil, err
	}

	lineCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	chunk.Lines = make([]int, lineCount)
	for i := 0; i < lineCount; i++ {
		line, err := r.u32()
		if err != nil {
			return nil, err
		}
		chunk.Lines[i] = line
	}

	constCount, err := r.u32()
	if err != nil {
		return nil, err
	}
	for i := 0; i < constCount; i++ {
		tag, err := r.byte()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagNil:
			chunk.Constants = append(chunk.Constants, NilValue())
		case tagBool:
			b, err := r.byte()
			if err != nil {
				return nil, err
			}
			chunk.Constants = append(chunk.Constants, BoolValue(b != 0))
		case tagNumber:
			raw, err := r.bytes(8)
			if err != nil {
				return nil, err
			}
			n := math.Float64frombits(binary.LittleEndian.Uint64(raw))
			chunk.Constants = append(chunk.Constants, NumberValue(n))
		case tagString:
			strLen, err := r.u32()
			if err != nil {
				return nil, err
			}
			raw, err := r.bytes(strLen)
			if err != nil {
				return nil, err
			}
			chunk.Constants = append(chunk.Constants, StringValue(string(raw)))
		case tagFunction:
			chunk.Constants = append(chunk.Constants, FunctionValue(PlaceholderHandle))
		default:
			return nil, fmt.Errorf("unknown constant tag %d", tag)
		}
	}

	if r.pos != len(data) {
		return nil, fmt.Errorf("trailing garbage after bytecode (%d bytes)", len(data)-r.pos)
	}
	return chunk, nil
}

// WriteChunkFile writes chunk to path in the persisted format.
func WriteChunkFile(path string, chunk *Chunk) error {
	data, err := MarshalChunk(chunk)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadChunkFile reads a persisted chunk from path.
func ReadChunkFile(path string) (*Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	chunk, err := UnmarshalChunk(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	chunk.Name = path
	return chunk, nil
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("truncated bytecode at offset %d", r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, fmt.Errorf("truncated bytecode at offset %d", r.pos)
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *byteReader) u32() (int, error) {
	raw, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint32(raw)), nil
}
