package bytecode

import (
	"testing"

	"github.com/decisionlang/decision/internal/ir"
	"github.com/stretchr/testify/require"
)

func TestOpcodeTableComplete(t *testing.T) {
	// Every opcode from RET up to the last defined one must round-trip
	// through Mnemonic/InsSize without hitting the UNDEFINED fallback.
	for op := RET; op < numOps; op++ {
		require.NotEqual(t, "UNDEFINED", Mnemonic(op), "opcode %d missing a mnemonic", op)
		require.GreaterOrEqual(t, InsSize(op), 1)
	}
	require.Equal(t, "UNDEFINED", Mnemonic(numOps))
}

func TestFamilyImmediateWidths(t *testing.T) {
	require.Equal(t, ImmNone, Imm(ADD))
	require.Equal(t, ImmNone, Imm(ADDF))
	require.Equal(t, ImmByte, Imm(ADDBI))
	require.Equal(t, ImmHalf, Imm(ADDHI))
	require.Equal(t, ImmFull, Imm(ADDFI))
	require.Equal(t, ImmNone, Imm(MOD))
	require.Equal(t, ImmByte, Imm(MODBI))
	require.True(t, IsAbsoluteJump(JI))
	require.False(t, IsAbsoluteJump(JRFI))
}

func TestBufferConcatShiftsSidecarOffsets(t *testing.T) {
	a := New()
	a.Opcode(PUSHF)
	a.Full(1)

	b := New()
	b.MarkNode(3, 12)
	pushOff := b.Opcode(PUSHF)
	b.Full(2)
	b.MarkValue(pushOff, ir.NodeSocket{NodeIndex: 3, SocketIndex: 0})
	b.InsLinks = append(b.InsLinks, ir.InstructionToLink{InsOffset: pushOff + 1, LinkMetaIndex: 0})

	baseLen := a.Len()
	a.Concat(b)

	require.Equal(t, baseLen+b.Len(), a.Len())
	require.Len(t, a.ValueInfo, 1)
	require.Equal(t, baseLen+pushOff, a.ValueInfo[0].Ins)
	require.Len(t, a.NodeInfo, 1)
	require.Equal(t, baseLen+pushOff, a.NodeInfo[0].Ins)
	require.Len(t, a.InsLinks, 1)
	require.Equal(t, baseLen+pushOff+1, a.InsLinks[0].InsOffset)
}

func TestBufferFullImmediateRoundTrip(t *testing.T) {
	buf := New()
	buf.Opcode(PUSHF)
	off := buf.Full(0)
	buf.SetFull(off, 424242)
	require.Equal(t, int64(424242), buf.ReadFull(off))
}

func TestConcatOfEmptyBufferIsNoop(t *testing.T) {
	a := New()
	a.Opcode(RET)
	a.Concat(New())
	require.Equal(t, 1, a.Len())
}
