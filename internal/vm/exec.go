package vm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/decisionlang/decision/internal/builtin"
	"github.com/decisionlang/decision/internal/bytecode"
	"github.com/decisionlang/decision/internal/types"
)

var errDivideByZero = errors.New("division by zero")

// exec runs sheet.Text starting at pc until a RET/RETN unwinds the
// outermost frame (an empty call stack), returning nil, or a trap occurs.
func (m *Machine) exec(ctx context.Context, pc int) error {
	text := m.sheet.Text

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if pc < 0 || pc >= len(text) {
			return trap(pc, "program counter out of range")
		}

		op := bytecode.Op(text[pc])
		start := pc
		pc++

		switch op {
		case bytecode.RET, bytecode.RETN:
			if op == bytecode.RETN {
				pc++ // skip the byte immediate; frame size is tracked by m.frame itself
			}
			if len(m.calls) == 0 {
				return nil
			}
			top := m.calls[len(m.calls)-1]
			m.calls = m.calls[:len(m.calls)-1]
			m.frame = top.caller
			pc = top.returnPC
			continue

		case bytecode.ADD, bytecode.SUB, bytecode.MUL, bytecode.DIV, bytecode.MOD,
			bytecode.AND, bytecode.OR, bytecode.XOR,
			bytecode.ADDF, bytecode.SUBF, bytecode.MULF, bytecode.DIVF:
			b := m.pop()
			a := m.pop()
			v, err := binaryOp(op, a, b)
			if err != nil {
				return trap(start, "%s", err)
			}
			m.push(v)

		case bytecode.ADDBI, bytecode.ADDHI, bytecode.ADDFI,
			bytecode.SUBBI, bytecode.SUBHI, bytecode.SUBFI,
			bytecode.MULBI, bytecode.MULHI, bytecode.MULFI,
			bytecode.DIVBI, bytecode.DIVHI, bytecode.DIVFI,
			bytecode.MODBI, bytecode.MODHI, bytecode.MODFI,
			bytecode.ANDBI, bytecode.ANDHI, bytecode.ANDFI,
			bytecode.ORBI, bytecode.ORHI, bytecode.ORFI,
			bytecode.XORBI, bytecode.XORHI, bytecode.XORFI:
			// Immediate-operand arithmetic: not emitted by internal/codegen
			// today (every binaryNumber builtin lowers both operands
			// through the eval stack), kept for opcode-family completeness.
			// The immediate is folded in as the right-hand operand.
			imm, nextPC := readImm(text, pc, bytecode.Imm(op))
			pc = nextPC
			a := m.pop()
			v, err := binaryOp(baseFamily(op), a, builtin.Value{Type: a.Type, Int: imm, Flt: float64(imm)})
			if err != nil {
				return trap(start, "%s", err)
			}
			m.push(v)

		case bytecode.NOT:
			a := m.pop()
			m.push(builtin.Value{Type: types.Bool, Bool: !a.Bool})

		case bytecode.INV:
			a := m.pop()
			if a.Type == types.Float {
				m.push(builtin.Value{Type: types.Float, Flt: -a.Flt})
			} else {
				m.push(builtin.Value{Type: types.Int, Int: -a.Int})
			}

		case bytecode.CEQ, bytecode.CEQF:
			b, a := m.pop(), m.pop()
			m.push(builtin.Value{Type: types.Bool, Bool: valuesEqual(a, b)})
		case bytecode.CLT, bytecode.CLTF:
			b, a := m.pop(), m.pop()
			m.push(builtin.Value{Type: types.Bool, Bool: numLess(a, b)})
		case bytecode.CLEQ, bytecode.CLEQF:
			b, a := m.pop(), m.pop()
			m.push(builtin.Value{Type: types.Bool, Bool: !numLess(b, a)})
		case bytecode.CMT, bytecode.CMTF:
			b, a := m.pop(), m.pop()
			m.push(builtin.Value{Type: types.Bool, Bool: numLess(b, a)})
		case bytecode.CMEQ, bytecode.CMEQF:
			b, a := m.pop(), m.pop()
			m.push(builtin.Value{Type: types.Bool, Bool: !numLess(a, b)})

		case bytecode.CVTI:
			a := m.pop()
			m.push(builtin.Value{Type: types.Int, Int: toInt(a)})
		case bytecode.CVTF:
			a := m.pop()
			m.push(builtin.Value{Type: types.Float, Flt: toFloat(a)})

		case bytecode.DEREF, bytecode.DEREFB:
			addr := m.pop()
			slot := int(addr.Int) / 8
			if slot < 0 || slot >= len(m.data) {
				return trap(start, "data dereference out of range: slot %d", slot)
			}
			m.push(m.data[slot])

		case bytecode.DEREFI, bytecode.DEREFBI:
			slot := int(readFull(text, pc))
			pc += bytecode.FullSize
			if slot < 0 || slot >= len(m.frame.data) {
				return trap(start, "local dereference out of range: slot %d", slot)
			}
			m.push(m.frame.data[slot])

		case bytecode.SETADR, bytecode.SETADRB:
			addr := readFull(text, pc)
			pc += bytecode.FullSize
			v := m.pop()
			slot := int(addr) / 8
			if slot < 0 || slot >= len(m.data) {
				return trap(start, "data store out of range: slot %d", slot)
			}
			m.data[slot] = v

		case bytecode.J:
			target := m.pop()
			pc = int(target.Int)
		case bytecode.JR:
			off := m.pop()
			pc = start + int(off.Int)
		case bytecode.JI:
			pc = int(readFull(text, pc))
		case bytecode.JCON:
			cond := m.pop()
			target := m.pop()
			if cond.Bool {
				pc = int(target.Int)
			}
		case bytecode.JCONI:
			target := readFull(text, pc)
			pc += bytecode.FullSize
			cond := m.pop()
			if cond.Bool {
				pc = int(target)
			}
		case bytecode.JRBI, bytecode.JRHI, bytecode.JRFI:
			off, _ := readImm(text, pc, bytecode.Imm(op))
			pc = start + int(off)
		case bytecode.JRCON:
			cond := m.pop()
			off := m.pop()
			if cond.Bool {
				pc = start + int(off.Int)
			}
		case bytecode.JRCONBI, bytecode.JRCONHI, bytecode.JRCONFI:
			off, nextPC := readImm(text, pc, bytecode.Imm(op))
			cond := m.pop()
			pc = nextPC
			if cond.Bool {
				pc = start + int(off)
			}

		case bytecode.PUSHB:
			m.push(builtin.Value{Type: types.Int, Int: int64(text[pc])})
			pc += bytecode.ByteSize
		case bytecode.PUSHH:
			m.push(builtin.Value{Type: types.Int, Int: int64(readHalf(text, pc))})
			pc += bytecode.HalfSize
		case bytecode.PUSHF:
			m.push(builtin.Value{Type: types.Int, Int: readFull(text, pc)})
			pc += bytecode.FullSize

		case bytecode.POP:
			m.pop()
		case bytecode.POPB:
			v := m.pop()
			m.frame.data[int(text[pc])] = v
			pc += bytecode.ByteSize
		case bytecode.POPH:
			v := m.pop()
			slot := int(readHalf(text, pc))
			m.frame.data[slot] = v
			pc += bytecode.HalfSize
		case bytecode.POPF:
			v := m.pop()
			slot := int(readFull(text, pc))
			pc += bytecode.FullSize
			if slot < 0 || slot >= len(m.frame.data) {
				return trap(start, "local store out of range: slot %d", slot)
			}
			m.frame.data[slot] = v

		case bytecode.PUSHNB:
			m.frame = newFrame(m.frame, int(text[pc]))
			pc += bytecode.ByteSize
		case bytecode.PUSHNH:
			m.frame = newFrame(m.frame, int(readHalf(text, pc)))
			pc += bytecode.HalfSize
		case bytecode.PUSHNF:
			n := int(readFull(text, pc))
			pc += bytecode.FullSize
			m.frame = newFrame(m.frame, n)

		case bytecode.CALL:
			target := m.pop()
			pc = m.call(int(target.Int), pc)
		case bytecode.CALLI:
			target := readFull(text, pc)
			pc += bytecode.FullSize
			pc = m.call(int(target), pc)
		case bytecode.CALLRF, bytecode.CALLRB, bytecode.CALLRH:
			off, nextPC := readImm(text, pc, bytecode.Imm(op))
			pc = m.call(start+int(off), nextPC)

		case bytecode.CALLC, bytecode.CALLCI:
			// Unlike every other absolute-address opcode, a CALLC/CALLCI
			// immediate is a LinkMetas index rather than a Text offset: a
			// host-native call has no code in this sheet's arena to jump
			// to, only a name to resolve against Machine.RegisterCFunction
			// at run time. internal/link does not emit these yet (no
			// node kind lowers to KindCFunction-by-name today), so this
			// path is currently only reachable from a hand-built program.
			var idx int64
			if op == bytecode.CALLCI {
				idx = readFull(text, pc)
				pc += bytecode.FullSize
			} else {
				idx = m.pop().Int
			}
			if idx < 0 || int(idx) >= len(m.sheet.LinkMetas) {
				return trap(start, "CALLC: link meta index %d out of range", idx)
			}
			name := m.sheet.LinkMetas[idx].Name
			fn, ok := m.cfuncs[name]
			if !ok {
				return trap(start, "no host binding registered for C-function %q", name)
			}
			argc := m.pop()
			args := make([]builtin.Value, argc.Int)
			for i := int64(0); i < argc.Int; i++ {
				args[argc.Int-1-i] = m.pop()
			}
			results, err := fn(m.stdoutCtx(), args)
			if err != nil {
				return trap(start, "%s", err)
			}
			for _, r := range results {
				m.push(r)
			}

		case bytecode.SYSCALL:
			idx := text[pc]
			argc := int(text[pc+1])
			pc += 2
			entry := (*builtin.Entry)(nil)
			if int(idx) < len(syscalls) {
				entry = syscalls[idx]
			}
			if entry == nil {
				return trap(start, "no SYSCALL registered at table index %d", idx)
			}
			args := make([]builtin.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = m.pop()
			}
			results, err := entry.Call(m.stdoutCtx(), args)
			if err != nil {
				return trap(start, "%s", err)
			}
			for _, r := range results {
				m.push(r)
			}

		default:
			return trap(start, "unhandled opcode %s", bytecode.Mnemonic(op))
		}
	}
}

// call pushes a callRecord returning to returnPC and jumps to target; the
// callee's own PUSHNF establishes its frame, chained to the caller's
// current one so trap reporting can walk the chain.
func (m *Machine) call(target, returnPC int) int {
	m.calls = append(m.calls, callRecord{returnPC: returnPC, caller: m.frame})
	return target
}

func (m *Machine) push(v builtin.Value) { m.eval = append(m.eval, v) }

func (m *Machine) pop() builtin.Value {
	if len(m.eval) == 0 {
		return builtin.Value{}
	}
	v := m.eval[len(m.eval)-1]
	m.eval = m.eval[:len(m.eval)-1]
	return v
}

func readFull(text []byte, off int) int64 {
	return int64(binary.NativeEndian.Uint64(text[off : off+8]))
}

func readHalf(text []byte, off int) int16 {
	return int16(binary.NativeEndian.Uint16(text[off : off+2]))
}

func readImm(text []byte, pc int, kind bytecode.ImmKind) (int64, int) {
	switch kind {
	case bytecode.ImmByte:
		return int64(int8(text[pc])), pc + bytecode.ByteSize
	case bytecode.ImmHalf:
		return int64(readHalf(text, pc)), pc + bytecode.HalfSize
	case bytecode.ImmFull:
		return readFull(text, pc), pc + bytecode.FullSize
	default:
		return 0, pc
	}
}

// baseFamily maps an immediate-form opcode back to its register-form
// sibling so binaryOp's switch (which only knows the register forms) can
// still compute the result.
func baseFamily(op bytecode.Op) bytecode.Op {
	switch {
	case op >= bytecode.ADDBI && op <= bytecode.ADDFI:
		return bytecode.ADD
	case op >= bytecode.SUBBI && op <= bytecode.SUBFI:
		return bytecode.SUB
	case op >= bytecode.MULBI && op <= bytecode.MULFI:
		return bytecode.MUL
	case op >= bytecode.DIVBI && op <= bytecode.DIVFI:
		return bytecode.DIV
	case op >= bytecode.MODBI && op <= bytecode.MODFI:
		return bytecode.MOD
	case op >= bytecode.ANDBI && op <= bytecode.ANDFI:
		return bytecode.AND
	case op >= bytecode.ORBI && op <= bytecode.ORFI:
		return bytecode.OR
	case op >= bytecode.XORBI && op <= bytecode.XORFI:
		return bytecode.XOR
	default:
		return op
	}
}

func binaryOp(op bytecode.Op, a, b builtin.Value) (builtin.Value, error) {
	float := op == bytecode.ADDF || op == bytecode.SUBF || op == bytecode.MULF || op == bytecode.DIVF ||
		a.Type == types.Float || b.Type == types.Float

	if float {
		x, y := toFloat(a), toFloat(b)
		switch baseFamily(op) {
		case bytecode.ADD:
			return builtin.Value{Type: types.Float, Flt: x + y}, nil
		case bytecode.SUB:
			return builtin.Value{Type: types.Float, Flt: x - y}, nil
		case bytecode.MUL:
			return builtin.Value{Type: types.Float, Flt: x * y}, nil
		case bytecode.DIV:
			if y == 0 {
				return builtin.Value{}, divideByZero()
			}
			return builtin.Value{Type: types.Float, Flt: x / y}, nil
		}
	}

	x, y := toInt(a), toInt(b)
	switch baseFamily(op) {
	case bytecode.ADD:
		return builtin.Value{Type: types.Int, Int: x + y}, nil
	case bytecode.SUB:
		return builtin.Value{Type: types.Int, Int: x - y}, nil
	case bytecode.MUL:
		return builtin.Value{Type: types.Int, Int: x * y}, nil
	case bytecode.DIV:
		if y == 0 {
			return builtin.Value{}, divideByZero()
		}
		return builtin.Value{Type: types.Int, Int: x / y}, nil
	case bytecode.MOD:
		if y == 0 {
			return builtin.Value{}, divideByZero()
		}
		return builtin.Value{Type: types.Int, Int: x % y}, nil
	case bytecode.AND:
		return builtin.Value{Type: types.Bool, Bool: a.Bool && b.Bool}, nil
	case bytecode.OR:
		return builtin.Value{Type: types.Bool, Bool: a.Bool || b.Bool}, nil
	case bytecode.XOR:
		return builtin.Value{Type: types.Bool, Bool: a.Bool != b.Bool}, nil
	}
	return builtin.Value{}, fmt.Errorf("unhandled arithmetic opcode %s", bytecode.Mnemonic(op))
}

func divideByZero() error { return errDivideByZero }

func toInt(v builtin.Value) int64 {
	if v.Type == types.Float {
		return int64(v.Flt)
	}
	return v.Int
}

func toFloat(v builtin.Value) float64 {
	if v.Type == types.Float {
		return v.Flt
	}
	return float64(v.Int)
}

func numLess(a, b builtin.Value) bool {
	if a.Type == types.Float || b.Type == types.Float {
		return toFloat(a) < toFloat(b)
	}
	return toInt(a) < toInt(b)
}

func valuesEqual(a, b builtin.Value) bool {
	switch {
	case a.Type == types.Float || b.Type == types.Float:
		return toFloat(a) == toFloat(b)
	case a.Type == types.String || b.Type == types.String:
		return a.Str == b.Str
	case a.Type == types.Bool || b.Type == types.Bool:
		return a.Bool == b.Bool
	default:
		return toInt(a) == toInt(b)
	}
}
