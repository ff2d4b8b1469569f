// Package disasm is a pure formatter over a compiled text buffer: it never
// executes an instruction, only renders one. Text walks the opcode stream
// internal/bytecode defines, emitting one line per instruction (offset,
// mnemonic, typed immediate); Data renders a byte slice as the 16-column
// hex view with an ASCII gutter spec.md §4.8 describes for a sheet's data
// section. Both are used only by the CLI's -d flag.
package disasm

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/decisionlang/decision/internal/bytecode"
)

// Symbolicator annotates the full-immediate operand of an instruction at
// the given text offset with a human name, or returns "" if it has none --
// e.g. resolving a CALLI/JI target back to the function it lands on, or a
// CALLCI operand (a LinkMetas index, not an address) back to the
// C-function name it names. A nil Symbolicator renders bare numbers.
type Symbolicator func(op bytecode.Op, offset int, value int64) string

// Text walks text from offset 0, writing one line per instruction to w. A
// corrupt or truncated stream stops the walk and returns an error rather
// than guessing past the damage.
func Text(w io.Writer, text []byte, sym Symbolicator) error {
	i := 0
	for i < len(text) {
		op := bytecode.Op(text[i])
		size := bytecode.InsSize(op)
		if i+size > len(text) {
			return fmt.Errorf("disasm: truncated instruction at offset %d", i)
		}
		line, err := formatIns(op, text, i, sym)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		i += size
	}
	return nil
}

func formatIns(op bytecode.Op, text []byte, off int, sym Symbolicator) (string, error) {
	mnem := bytecode.Mnemonic(op)

	if op == bytecode.SYSCALL {
		idx := text[off+1]
		argc := text[off+2]
		return fmt.Sprintf("%08x  %-10s %d, %d", off, mnem, idx, argc), nil
	}

	switch bytecode.Imm(op) {
	case bytecode.ImmNone:
		return fmt.Sprintf("%08x  %s", off, mnem), nil

	case bytecode.ImmByte:
		return fmt.Sprintf("%08x  %-10s %d", off, mnem, int8(text[off+1])), nil

	case bytecode.ImmHalf:
		v := int16(binary.NativeEndian.Uint16(text[off+1 : off+1+bytecode.HalfSize]))
		return fmt.Sprintf("%08x  %-10s %d", off, mnem, v), nil

	case bytecode.ImmFull:
		v := int64(binary.NativeEndian.Uint64(text[off+1 : off+1+bytecode.FullSize]))
		annot := ""
		if sym != nil {
			if name := sym(op, off+1, v); name != "" {
				annot = "  ; " + name
			}
		}
		if bytecode.IsAbsoluteJump(op) {
			return fmt.Sprintf("%08x  %-10s 0x%x%s", off, mnem, v, annot), nil
		}
		return fmt.Sprintf("%08x  %-10s %d%s", off, mnem, v, annot), nil

	default:
		return "", fmt.Errorf("disasm: opcode %d (%s) has no registered immediate kind", op, mnem)
	}
}

const dataColumns = 16

// Data renders data as a 16-column hex view with an ASCII gutter: each row
// is an 8-digit hex offset, sixteen space-separated hex byte pairs (padded
// with blanks for a short final row), then the same sixteen bytes rendered
// as ASCII with non-printable bytes shown as '.'.
func Data(w io.Writer, data []byte) error {
	for off := 0; off < len(data); off += dataColumns {
		end := off + dataColumns
		if end > len(data) {
			end = len(data)
		}
		row := data[off:end]

		hexCols := make([]string, dataColumns)
		gutter := make([]byte, dataColumns)
		for i := 0; i < dataColumns; i++ {
			if i < len(row) {
				hexCols[i] = fmt.Sprintf("%02x", row[i])
				if row[i] >= 0x20 && row[i] < 0x7f {
					gutter[i] = row[i]
				} else {
					gutter[i] = '.'
				}
			} else {
				hexCols[i] = "  "
				gutter[i] = ' '
			}
		}

		if _, err := fmt.Fprintf(w, "%08x  %s  |%s|\n", off, strings.Join(hexCols, " "), string(gutter)); err != nil {
			return err
		}
	}
	return nil
}
