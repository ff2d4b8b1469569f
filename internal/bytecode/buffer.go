package bytecode

import (
	"encoding/binary"
	"math"

	"github.com/decisionlang/decision/internal/ir"
)

// ValueInfo maps an instruction offset to the node/socket whose evaluation
// produced the value sitting on the stack at that point, for a `-D` debug
// build's value inspector.
type ValueInfo struct {
	Ins    int
	Socket ir.NodeSocket
}

// ExecInfo maps an instruction offset to the source line that generated it,
// the "line-number mapping" debugging spec.md §1's Non-goals allow.
type ExecInfo struct {
	Ins  int
	Line int
}

// NodeInfo maps an instruction offset to the node index it was generated
// from, used by the disassembler's `-D` annotated listing.
type NodeInfo struct {
	Ins       int
	NodeIndex int
}

// Buffer is a growable text stream plus its sidecar arrays. Concatenation
// (Concat) is the only structural operation: appending shifts every sidecar
// record in the appended buffer by the base's current length, exactly as
// d_concat_bytecode does.
type Buffer struct {
	Text      []byte
	InsLinks  []ir.InstructionToLink
	ValueInfo []ValueInfo
	ExecInfo  []ExecInfo
	NodeInfo  []NodeInfo
}

// New returns an empty buffer.
func New() *Buffer { return &Buffer{} }

// Len returns the current size of the text stream in bytes.
func (b *Buffer) Len() int { return len(b.Text) }

// Opcode appends a single opcode byte and returns its offset.
func (b *Buffer) Opcode(op Op) int {
	off := len(b.Text)
	b.Text = append(b.Text, byte(op))
	return off
}

// Byte appends a raw byte immediate.
func (b *Buffer) Byte(v byte) { b.Text = append(b.Text, v) }

// Half appends a 2-byte immediate, native byte order.
func (b *Buffer) Half(v int16) {
	var buf [HalfSize]byte
	binary.NativeEndian.PutUint16(buf[:], uint16(v))
	b.Text = append(b.Text, buf[:]...)
}

// Full appends an 8-byte immediate, native byte order, and returns the
// offset of its first byte — the offset InstructionToLink records for
// relocation.
func (b *Buffer) Full(v int64) int {
	off := len(b.Text)
	var buf [FullSize]byte
	binary.NativeEndian.PutUint64(buf[:], uint64(v))
	b.Text = append(b.Text, buf[:]...)
	return off
}

// FullF appends a float64's bit pattern as a full immediate.
func (b *Buffer) FullF(v float64) int { return b.Full(int64(math.Float64bits(v))) }

// LinkFull appends a placeholder full immediate and records a relocation
// against it pointing at linkMetaIndex. internal/link rewrites the
// placeholder once the symbol resolves.
func (b *Buffer) LinkFull(linkMetaIndex int) {
	off := b.Full(0)
	b.InsLinks = append(b.InsLinks, ir.InstructionToLink{InsOffset: off, LinkMetaIndex: linkMetaIndex})
}

// SetFull overwrites the 8 bytes at index with v. internal/codegen uses it to
// patch a forward jump's displacement once the jump target is known.
func (b *Buffer) SetFull(index int, v int64) {
	binary.NativeEndian.PutUint64(b.Text[index:index+FullSize], uint64(v))
}

// ReadFull reads the 8-byte immediate starting at index.
func (b *Buffer) ReadFull(index int) int64 {
	return int64(binary.NativeEndian.Uint64(b.Text[index : index+FullSize]))
}

// Concat appends after's text and sidecars onto b, shifting every sidecar
// offset in after by b's pre-append length. Mirrors d_concat_bytecode.
func (b *Buffer) Concat(after *Buffer) {
	if after == nil || len(after.Text) == 0 {
		return
	}
	base := len(b.Text)
	b.Text = append(b.Text, after.Text...)

	for _, l := range after.InsLinks {
		b.InsLinks = append(b.InsLinks, ir.InstructionToLink{InsOffset: l.InsOffset + base, LinkMetaIndex: l.LinkMetaIndex})
	}
	for _, v := range after.ValueInfo {
		b.ValueInfo = append(b.ValueInfo, ValueInfo{Ins: v.Ins + base, Socket: v.Socket})
	}
	for _, e := range after.ExecInfo {
		b.ExecInfo = append(b.ExecInfo, ExecInfo{Ins: e.Ins + base, Line: e.Line})
	}
	for _, n := range after.NodeInfo {
		b.NodeInfo = append(b.NodeInfo, NodeInfo{Ins: n.Ins + base, NodeIndex: n.NodeIndex})
	}
}

// MarkNode records that the instructions generated from offset onward (up
// to the next MarkNode/end of buffer) belong to nodeIndex at the given
// source line, for the disassembler's debug-annotated listing.
func (b *Buffer) MarkNode(nodeIndex, line int) {
	off := len(b.Text)
	b.NodeInfo = append(b.NodeInfo, NodeInfo{Ins: off, NodeIndex: nodeIndex})
	b.ExecInfo = append(b.ExecInfo, ExecInfo{Ins: off, Line: line})
}

// MarkValue records that the value sitting on top of the stack once
// execution reaches offset off was produced by socket.
func (b *Buffer) MarkValue(off int, socket ir.NodeSocket) {
	b.ValueInfo = append(b.ValueInfo, ValueInfo{Ins: off, Socket: socket})
}
