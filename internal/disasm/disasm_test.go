package disasm

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decisionlang/decision/internal/bytecode"
)

func appendFull(text []byte, v int64) []byte {
	b := make([]byte, bytecode.FullSize)
	binary.NativeEndian.PutUint64(b, uint64(v))
	return append(text, b...)
}

func TestTextFormatsRegisterAndImmediateInstructions(t *testing.T) {
	var text []byte
	text = append(text, byte(bytecode.PUSHF))
	text = appendFull(text, 5)
	text = append(text, byte(bytecode.ADD))
	text = append(text, byte(bytecode.RETN), 0)

	var out bytes.Buffer
	require.NoError(t, Text(&out, text, nil))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "PUSHF")
	require.Contains(t, lines[0], "5")
	require.Contains(t, lines[1], "ADD")
	require.Contains(t, lines[2], "RETN")
}

func TestTextFormatsSyscallWithTableIndexAndArgc(t *testing.T) {
	text := []byte{byte(bytecode.SYSCALL), 2, 1}

	var out bytes.Buffer
	require.NoError(t, Text(&out, text, nil))
	require.Contains(t, out.String(), "SYSCALL")
	require.Contains(t, out.String(), "2, 1")
}

func TestTextInvokesSymbolicatorForAbsoluteJump(t *testing.T) {
	var text []byte
	text = append(text, byte(bytecode.JI))
	text = appendFull(text, 64)

	sym := func(op bytecode.Op, offset int, value int64) string {
		if op == bytecode.JI && value == 64 {
			return "loop_start"
		}
		return ""
	}

	var out bytes.Buffer
	require.NoError(t, Text(&out, text, sym))
	require.Contains(t, out.String(), "0x40")
	require.Contains(t, out.String(), "loop_start")
}

func TestTextErrorsOnTruncatedInstruction(t *testing.T) {
	text := []byte{byte(bytecode.PUSHF), 1, 2, 3} // PUSHF needs 8 bytes, only 3 given

	var out bytes.Buffer
	require.Error(t, Text(&out, text, nil))
}

func TestDataRendersSixteenColumnHexViewWithAsciiGutter(t *testing.T) {
	data := []byte("Hello, world!!!!") // exactly 16 bytes

	var out bytes.Buffer
	require.NoError(t, Data(&out, data))

	line := strings.TrimRight(out.String(), "\n")
	require.True(t, strings.HasPrefix(line, "00000000"))
	require.Contains(t, line, "48 65 6c 6c 6f")
	require.Contains(t, line, "|Hello, world!!!!|")
}

func TestDataPadsShortFinalRow(t *testing.T) {
	data := []byte{0x01, 0x02}

	var out bytes.Buffer
	require.NoError(t, Data(&out, data))

	line := strings.TrimRight(out.String(), "\n")
	require.Contains(t, line, "01 02")
	require.Contains(t, line, "|..")
}

func TestDataRendersNonPrintableBytesAsDot(t *testing.T) {
	data := []byte{0x00, 0x7f, 0x41}

	var out bytes.Buffer
	require.NoError(t, Data(&out, data))
	require.Contains(t, out.String(), "|..A")
}
