package host

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Reader for interpretation and disassembly
// ---------------------------------------------------------------------------

// Reader reads host code.
type Reader struct {
	bytes []byte
	pos   int
}

// NewReader creates a reader for code.
func NewReader(code []byte) *Reader {
	return &Reader{bytes: code}
}

// Position returns the current read position.
func (r *Reader) Position() int {
	return r.pos
}

// HasMore returns true if there are more bytes to read.
func (r *Reader) HasMore() bool {
	return r.pos < len(r.bytes)
}

// ReadOpcode reads and returns the next opcode.
func (r *Reader) ReadOpcode() Opcode {
	if r.pos >= len(r.bytes) {
		panic("code underflow")
	}
	op := Opcode(r.bytes[r.pos])
	r.pos++
	return op
}

// ReadInt8 reads a signed 8-bit operand.
func (r *Reader) ReadInt8() int8 {
	if r.pos >= len(r.bytes) {
		panic("code underflow")
	}
	v := int8(r.bytes[r.pos])
	r.pos++
	return v
}

// ReadUint16 reads a 16-bit operand (little-endian).
func (r *Reader) ReadUint16() uint16 {
	if r.pos+2 > len(r.bytes) {
		panic("code underflow")
	}
	v := binary.LittleEndian.Uint16(r.bytes[r.pos:])
	r.pos += 2
	return v
}

// ReadInt16 reads a signed 16-bit operand (little-endian).
func (r *Reader) ReadInt16() int16 {
	return int16(r.ReadUint16())
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) {
	r.pos += n
}

// Seek sets the read position.
func (r *Reader) Seek(pos int) {
	r.pos = pos
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles a single instruction at the reader's
// position. Pool operands are rendered symbolically when pool is non-nil.
func DisassembleInstruction(r *Reader, pool []Constant) string {
	pos := r.Position()
	op := r.ReadOpcode()
	info := op.Info()

	switch {
	case info.OperandBytes == 0:
		return fmt.Sprintf("%04d  %s", pos, info.Name)

	case op == OpSIPUSH:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadInt16())

	case op == OpIINC:
		idx := r.ReadUint16()
		delta := r.ReadInt8()
		return fmt.Sprintf("%04d  %s %d %d", pos, info.Name, idx, delta)

	case op >= OpALOAD && op <= OpDSTORE:
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, r.ReadUint16())

	case op.IsBranch():
		offset := r.ReadInt16()
		target := r.Position() + int(offset)
		return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, offset, target)

	case info.OperandBytes == 2:
		idx := r.ReadUint16()
		if int(idx) < len(pool) {
			return fmt.Sprintf("%04d  %s %s", pos, info.Name, pool[idx])
		}
		return fmt.Sprintf("%04d  %s #%d", pos, info.Name, idx)

	default:
		r.Skip(info.OperandBytes)
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of code without pool resolution.
func Disassemble(code []byte) string {
	return DisassembleWithPool(code, nil)
}

// DisassembleWithPool returns a full disassembly of code, rendering pool
// operands symbolically.
func DisassembleWithPool(code []byte, pool []Constant) string {
	r := NewReader(code)
	var lines []string
	for r.HasMore() {
		lines = append(lines, DisassembleInstruction(r, pool))
	}
	return strings.Join(lines, "\n")
}

// Opcodes returns the opcode sequence of code, ignoring operands.
func Opcodes(code []byte) []Opcode {
	r := NewReader(code)
	var ops []Opcode
	for r.HasMore() {
		op := r.ReadOpcode()
		r.Skip(op.OperandBytes())
		ops = append(ops, op)
	}
	return ops
}
