package codegen

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/decisionlang/decision/internal/bytecode"
	"github.com/decisionlang/decision/internal/ir"
)

// This file is the size-reduction pass. Generation always emits full-width
// immediates: inserting bytecode mid-stream while smaller immediates are in
// flight would force a re-encode the moment one overflowed. The pass runs
// afterwards, over a finished stream, shrinking every immediate that fits a
// smaller encoding and recomputing everything that moves with it: relative
// jump displacements, unlinked absolute targets, relocation sites, debug
// sidecars, the entry offsets. Shrinking one jump can pull another's target
// close enough to shrink too, so the pass iterates to a fixed point; a
// second run finds every immediate already in its smallest encoding and
// reproduces the stream byte for byte.
//
// Relocated immediates (sheet.InsLinks) stay full-width no matter their
// current value: internal/link rewrites all eight bytes with a final
// absolute address. Absolute-address opcodes likewise keep their width (an
// address is pointer-sized by construction); their operands are only
// remapped, never narrowed.

// Reduce applies the size-reduction pass to sheet's generated code,
// rewriting sheet.Text, every relocation offset in sheet.InsLinks,
// sheet.Main and each owned function's CodeOffset. It runs between
// Generate and internal/link, while every offset is still sheet-local.
func Reduce(sheet *ir.Sheet) error {
	buf := &bytecode.Buffer{Text: sheet.Text, InsLinks: sheet.InsLinks}
	remap, err := ReduceBuffer(buf)
	if err != nil {
		return errors.Wrapf(err, "reduce %s", sheet.FilePath)
	}
	sheet.Text = buf.Text
	sheet.InsLinks = buf.InsLinks
	if sheet.Main != ir.Unresolved {
		sheet.Main = remap[sheet.Main]
	}
	for _, f := range sheet.Functions {
		if f.Sheet == sheet {
			f.CodeOffset = remap[f.CodeOffset]
		}
	}
	return nil
}

// rins is one decoded instruction while the pass runs: its place in the
// incoming stream, the encoding chosen so far, and what its immediate
// means (a pinned relocation site, a jump target, or a plain value).
type rins struct {
	off    int         // offset in the incoming stream
	op     bytecode.Op // opcode as read
	newOp  bytecode.Op // chosen encoding; starts equal to op, only shrinks
	newOff int         // offset in the outgoing stream
	imm    int64       // decoded immediate operand, if any
	link   int         // index into InsLinks pinning imm full-width, or -1
	target int         // instruction index a jump lands on, or -1
	args   [2]byte     // SYSCALL's table index and argument count
}

// ReduceBuffer shrinks buf in place and returns the map from old
// instruction-boundary offsets (including the old length, for markers
// recorded at end of stream) to new ones. A stream containing a
// stack-addressed jump is returned untouched under an identity map: such
// a target is a value pushed at run time that the pass cannot find, let
// alone keep valid while instructions move.
func ReduceBuffer(buf *bytecode.Buffer) (map[int]int, error) {
	ins, index, err := decodeStream(buf)
	if err != nil {
		return nil, err
	}

	for i := range ins {
		if isStackJump(ins[i].op) {
			ident := make(map[int]int, len(index))
			for off := range index {
				ident[off] = off
			}
			return ident, nil
		}
	}

	// Bind every jump to the instruction it lands on, so targets survive
	// as indices while byte offsets shift underneath them.
	for i := range ins {
		r := &ins[i]
		if r.link >= 0 {
			continue
		}
		switch {
		case isRelJump(r.op):
			t, ok := index[r.off+int(r.imm)]
			if !ok {
				return nil, errors.Errorf("relative jump at offset %d targets mid-instruction offset %d", r.off, r.off+int(r.imm))
			}
			r.target = t
		case isAbsTarget(r.op):
			t, ok := index[int(r.imm)]
			if !ok {
				return nil, errors.Errorf("absolute jump at offset %d targets mid-instruction offset %d", r.off, r.imm)
			}
			r.target = t
		}
	}

	// Plain value immediates are layout-independent: decide their
	// encoding once, before any offset moves.
	for i := range ins {
		r := &ins[i]
		if r.link < 0 && r.target < 0 {
			r.newOp = pickOp(r.op, r.imm)
		}
	}

	// Jump displacements depend on the layout the jumps themselves are
	// part of. Iterate: lay out, shrink what now fits, lay out again. A
	// shrink only ever moves a jump and its target closer together, so the
	// loop is monotone and terminates.
	newEnd := 0
	recalc := func() {
		off := 0
		for i := range ins {
			ins[i].newOff = off
			off += bytecode.InsSize(ins[i].newOp)
		}
		newEnd = off
	}
	offOf := func(t int) int {
		if t == len(ins) {
			return newEnd
		}
		return ins[t].newOff
	}
	for {
		recalc()
		changed := false
		for i := range ins {
			r := &ins[i]
			if r.target < 0 || !isRelJump(r.op) {
				continue
			}
			cand := pickOp(r.op, int64(offOf(r.target)-r.newOff))
			if bytecode.InsSize(cand) < bytecode.InsSize(r.newOp) {
				r.newOp = cand
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	out := make([]byte, 0, newEnd)
	for i := range ins {
		r := &ins[i]
		out = append(out, byte(r.newOp))
		if r.op == bytecode.SYSCALL {
			out = append(out, r.args[0], r.args[1])
			continue
		}
		v := r.imm
		if r.target >= 0 {
			if isRelJump(r.op) {
				v = int64(offOf(r.target) - r.newOff)
			} else {
				v = int64(offOf(r.target))
			}
		}
		switch bytecode.Imm(r.newOp) {
		case bytecode.ImmByte:
			out = append(out, byte(v))
		case bytecode.ImmHalf:
			var b [bytecode.HalfSize]byte
			binary.NativeEndian.PutUint16(b[:], uint16(v))
			out = append(out, b[:]...)
		case bytecode.ImmFull:
			var b [bytecode.FullSize]byte
			binary.NativeEndian.PutUint64(b[:], uint64(v))
			out = append(out, b[:]...)
		}
	}

	remap := make(map[int]int, len(index))
	for oldOff, idx := range index {
		if idx == len(ins) {
			remap[oldOff] = len(out)
		} else {
			remap[oldOff] = ins[idx].newOff
		}
	}

	buf.Text = out
	for i := range ins {
		if ins[i].link >= 0 {
			buf.InsLinks[ins[i].link].InsOffset = ins[i].newOff + 1
		}
	}
	for i := range buf.ValueInfo {
		if buf.ValueInfo[i].Ins, err = remapped(remap, buf.ValueInfo[i].Ins); err != nil {
			return nil, err
		}
	}
	for i := range buf.ExecInfo {
		if buf.ExecInfo[i].Ins, err = remapped(remap, buf.ExecInfo[i].Ins); err != nil {
			return nil, err
		}
	}
	for i := range buf.NodeInfo {
		if buf.NodeInfo[i].Ins, err = remapped(remap, buf.NodeInfo[i].Ins); err != nil {
			return nil, err
		}
	}
	return remap, nil
}

func remapped(remap map[int]int, off int) (int, error) {
	n, ok := remap[off]
	if !ok {
		return 0, errors.Errorf("sidecar offset %d is not an instruction boundary", off)
	}
	return n, nil
}

func decodeStream(buf *bytecode.Buffer) ([]rins, map[int]int, error) {
	linked := make(map[int]int, len(buf.InsLinks))
	for i, l := range buf.InsLinks {
		linked[l.InsOffset] = i
	}

	var ins []rins
	index := map[int]int{}
	text := buf.Text
	for i := 0; i < len(text); {
		op := bytecode.Op(text[i])
		size := bytecode.InsSize(op)
		if i+size > len(text) {
			return nil, nil, errors.Errorf("truncated instruction at offset %d", i)
		}
		r := rins{off: i, op: op, newOp: op, link: -1, target: -1}
		if op == bytecode.SYSCALL {
			r.args[0], r.args[1] = text[i+1], text[i+2]
		} else if kind := bytecode.Imm(op); kind != bytecode.ImmNone {
			r.imm = readImmAt(text, i+1, kind)
			if j, ok := linked[i+1]; ok {
				r.link = j
			}
		}
		index[i] = len(ins)
		ins = append(ins, r)
		i += size
	}
	index[len(text)] = len(ins)
	return ins, index, nil
}

func readImmAt(text []byte, off int, kind bytecode.ImmKind) int64 {
	switch kind {
	case bytecode.ImmByte:
		return int64(int8(text[off]))
	case bytecode.ImmHalf:
		return int64(int16(binary.NativeEndian.Uint16(text[off : off+bytecode.HalfSize])))
	default:
		return int64(binary.NativeEndian.Uint64(text[off : off+bytecode.FullSize]))
	}
}

func isRelJump(op bytecode.Op) bool {
	switch op {
	case bytecode.JRBI, bytecode.JRHI, bytecode.JRFI,
		bytecode.JRCONBI, bytecode.JRCONHI, bytecode.JRCONFI,
		bytecode.CALLRB, bytecode.CALLRH, bytecode.CALLRF:
		return true
	default:
		return false
	}
}

// isAbsTarget reports whether op's immediate is an absolute text offset.
// CALLCI is excluded: its immediate is a LinkMetas index, which no amount
// of instruction movement invalidates.
func isAbsTarget(op bytecode.Op) bool {
	switch op {
	case bytecode.JI, bytecode.JCONI, bytecode.CALLI:
		return true
	default:
		return false
	}
}

func isStackJump(op bytecode.Op) bool {
	switch op {
	case bytecode.J, bytecode.JCON, bytecode.JR, bytecode.JRCON, bytecode.CALL:
		return true
	default:
		return false
	}
}

// pickOp returns the smallest encoding of op's family that holds v, or op
// itself when the family has no smaller member. Only full-width forms
// shrink: a byte or half form in the incoming stream is already the fixed
// point of a previous run and is left exactly as found.
func pickOp(op bytecode.Op, v int64) bytecode.Op {
	byteOp, halfOp, byteUnsigned, ok := smallerForms(op)
	if !ok {
		return op
	}
	fitsByte := v >= -128 && v <= 127
	if byteUnsigned {
		fitsByte = v >= 0 && v <= 255
	}
	if fitsByte {
		return byteOp
	}
	if v >= -32768 && v <= 32767 {
		return halfOp
	}
	return op
}

// smallerForms returns the byte- and half-immediate siblings of a
// full-immediate opcode, plus whether internal/vm decodes the byte form as
// an unsigned raw byte (the PUSH/POP/PUSHN families) rather than
// sign-extending it (the jump and arithmetic families).
func smallerForms(op bytecode.Op) (byteOp, halfOp bytecode.Op, byteUnsigned, ok bool) {
	switch op {
	case bytecode.JRFI:
		return bytecode.JRBI, bytecode.JRHI, false, true
	case bytecode.JRCONFI:
		return bytecode.JRCONBI, bytecode.JRCONHI, false, true
	case bytecode.CALLRF:
		return bytecode.CALLRB, bytecode.CALLRH, false, true
	case bytecode.PUSHF:
		return bytecode.PUSHB, bytecode.PUSHH, true, true
	case bytecode.POPF:
		return bytecode.POPB, bytecode.POPH, true, true
	case bytecode.PUSHNF:
		return bytecode.PUSHNB, bytecode.PUSHNH, true, true
	case bytecode.ADDFI:
		return bytecode.ADDBI, bytecode.ADDHI, false, true
	case bytecode.SUBFI:
		return bytecode.SUBBI, bytecode.SUBHI, false, true
	case bytecode.MULFI:
		return bytecode.MULBI, bytecode.MULHI, false, true
	case bytecode.DIVFI:
		return bytecode.DIVBI, bytecode.DIVHI, false, true
	case bytecode.MODFI:
		return bytecode.MODBI, bytecode.MODHI, false, true
	case bytecode.ANDFI:
		return bytecode.ANDBI, bytecode.ANDHI, false, true
	case bytecode.ORFI:
		return bytecode.ORBI, bytecode.ORHI, false, true
	case bytecode.XORFI:
		return bytecode.XORBI, bytecode.XORHI, false, true
	default:
		return 0, 0, false, false
	}
}
