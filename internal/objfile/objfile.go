// Package objfile reads and writes the on-disk object file format spec.md
// §6 defines: a fixed sequence of length-prefixed sections holding a
// linked sheet's bytecode, data, and relocation/symbol tables. It is a
// pure serialization layer -- nothing here runs bytecode or re-links
// anything; internal/vm only ever executes a freshly linked *ir.Sheet, and
// an Object read back by this package exists for internal/disasm and for
// archival, not for a second run.
package objfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/decisionlang/decision/internal/ir"
)

// LinkMeta mirrors ir.LinkMeta's on-disk shape: a type tag, a
// NUL-terminated name, and the absolute offset the linker resolved it to.
type LinkMeta struct {
	Type   ir.LinkType
	Name   string
	Offset int64
}

// Reloc mirrors ir.InstructionToLink: the byte offset of a relocated
// instruction operand, paired with the LinkMetas index it resolved
// against.
type Reloc struct {
	InsOffset     int64
	LinkMetaIndex int64
}

// Symbol is one .func or .var entry: a name and the absolute offset the
// linker assigned it.
type Symbol struct {
	Name   string
	Offset int64
}

// Object is a linked sheet's contents as read back from an object file.
// It holds exactly what the section list in spec.md §6 defines -- Text,
// Main, Data, and the relocation/symbol/include manifests -- which is
// enough to disassemble or inspect a build but not enough to run it:
// there is no section for a sheet's DataTypes or Strings, so an Object
// cannot feed internal/vm directly. Only a sheet freshly produced by
// internal/sema, internal/codegen and internal/link carries those.
type Object struct {
	Text      []byte
	Main      int64
	Data      []byte
	LinkMetas []LinkMeta
	Relocs    []Reloc
	Funcs     []Symbol
	Vars      []Symbol
	Includes  []string
}

// Write serializes sheet, which must already be linked, as the section
// sequence spec.md §6 names: .text, .main, .data, .lmeta, .link, .func,
// .var, .incl, each prefixed by its own byte length. Byte order throughout
// is native, matching internal/bytecode's own full-immediate encoding, so
// an object file is not portable across architectures -- a deliberate
// simplification, documented rather than abstracted away, per the
// host-pointer-width decision recorded in DESIGN.md.
func Write(w io.Writer, sheet *ir.Sheet) error {
	if !sheet.Linked {
		return errors.Errorf("objfile: sheet %q has not been linked", sheet.FilePath)
	}

	bw := &sectionWriter{w: bufio.NewWriter(w)}

	bw.write(sheet.Text)
	bw.write(encodeInt64(int64(sheet.Main)))
	bw.write(sheet.Data)
	bw.write(encodeLMeta(sheet))
	bw.write(encodeRelocs(sheet.InsLinks))
	var fns []*ir.Function
	var vars []*ir.Variable
	seen := map[*ir.Sheet]bool{}
	var visit func(s *ir.Sheet)
	visit = func(s *ir.Sheet) {
		if s == nil || seen[s] {
			return
		}
		seen[s] = true
		fns = append(fns, s.Functions...)
		vars = append(vars, s.Variables...)
		for _, inc := range s.Includes {
			visit(inc)
		}
	}
	visit(sheet)
	bw.write(encodeFuncs(fns))
	bw.write(encodeVars(vars))
	bw.write(encodeIncludes(sheet.Includes))

	if bw.err != nil {
		return errors.Wrap(bw.err, "objfile: write")
	}
	return bw.w.Flush()
}

// Read parses an object file previously produced by Write.
func Read(r io.Reader) (*Object, error) {
	br := &sectionReader{r: bufio.NewReader(r)}

	obj := &Object{}
	obj.Text = br.read()
	mainBytes := br.read()
	obj.Data = br.read()
	lmetaBytes := br.read()
	relocBytes := br.read()
	funcBytes := br.read()
	varBytes := br.read()
	inclBytes := br.read()

	if br.err != nil {
		return nil, errors.Wrap(br.err, "objfile: read")
	}

	if len(mainBytes) != 8 {
		return nil, errors.New("objfile: malformed .main section")
	}
	obj.Main = int64(binary.NativeEndian.Uint64(mainBytes))

	var err error
	if obj.LinkMetas, err = decodeLMeta(lmetaBytes); err != nil {
		return nil, errors.Wrap(err, "objfile: .lmeta")
	}
	if obj.Relocs, err = decodeRelocs(relocBytes); err != nil {
		return nil, errors.Wrap(err, "objfile: .link")
	}
	if obj.Funcs, err = decodeSymbols(funcBytes); err != nil {
		return nil, errors.Wrap(err, "objfile: .func")
	}
	if obj.Vars, err = decodeSymbols(varBytes); err != nil {
		return nil, errors.Wrap(err, "objfile: .var")
	}
	obj.Includes = decodeIncludes(inclBytes)

	return obj, nil
}

// sectionWriter writes one length-prefixed section at a time, latching the
// first error so every call site after a failure is a no-op.
type sectionWriter struct {
	w   *bufio.Writer
	err error
}

func (s *sectionWriter) write(payload []byte) {
	if s.err != nil {
		return
	}
	if _, err := s.w.Write(encodeInt64(int64(len(payload)))); err != nil {
		s.err = err
		return
	}
	if _, err := s.w.Write(payload); err != nil {
		s.err = err
	}
}

type sectionReader struct {
	r   *bufio.Reader
	err error
}

func (s *sectionReader) read() []byte {
	if s.err != nil {
		return nil
	}
	lengthBytes := make([]byte, 8)
	if _, err := io.ReadFull(s.r, lengthBytes); err != nil {
		s.err = err
		return nil
	}
	n := binary.NativeEndian.Uint64(lengthBytes)
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(s.r, payload); err != nil {
			s.err = err
			return nil
		}
	}
	return payload
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.NativeEndian.PutUint64(b, uint64(v))
	return b
}

func encodeLMeta(sheet *ir.Sheet) []byte {
	var buf bytes.Buffer
	for _, m := range sheet.LinkMetas {
		buf.WriteByte(byte(m.Type))
		buf.WriteString(m.Name)
		buf.WriteByte(0)
		buf.Write(encodeInt64(int64(m.Ptr)))
	}
	return buf.Bytes()
}

func decodeLMeta(payload []byte) ([]LinkMeta, error) {
	var out []LinkMeta
	i := 0
	for i < len(payload) {
		if i+1 > len(payload) {
			return nil, errors.New("truncated type tag")
		}
		typ := ir.LinkType(payload[i])
		i++
		name, next, err := readCString(payload, i)
		if err != nil {
			return nil, err
		}
		i = next
		if i+8 > len(payload) {
			return nil, errors.New("truncated offset")
		}
		off := int64(binary.NativeEndian.Uint64(payload[i : i+8]))
		i += 8
		out = append(out, LinkMeta{Type: typ, Name: name, Offset: off})
	}
	return out, nil
}

func encodeRelocs(links []ir.InstructionToLink) []byte {
	buf := make([]byte, 0, len(links)*16)
	for _, l := range links {
		buf = append(buf, encodeInt64(int64(l.InsOffset))...)
		buf = append(buf, encodeInt64(int64(l.LinkMetaIndex))...)
	}
	return buf
}

func decodeRelocs(payload []byte) ([]Reloc, error) {
	if len(payload)%16 != 0 {
		return nil, errors.New("relocation table is not a multiple of 16 bytes")
	}
	var out []Reloc
	for i := 0; i < len(payload); i += 16 {
		out = append(out, Reloc{
			InsOffset:     int64(binary.NativeEndian.Uint64(payload[i : i+8])),
			LinkMetaIndex: int64(binary.NativeEndian.Uint64(payload[i+8 : i+16])),
		})
	}
	return out, nil
}

func encodeFuncs(fns []*ir.Function) []byte {
	var buf bytes.Buffer
	for _, f := range fns {
		buf.WriteString(f.Name)
		buf.WriteByte(0)
		buf.Write(encodeInt64(int64(f.CodeOffset)))
	}
	return buf.Bytes()
}

func encodeVars(vars []*ir.Variable) []byte {
	var buf bytes.Buffer
	for _, v := range vars {
		buf.WriteString(v.Meta.Name)
		buf.WriteByte(0)
		buf.Write(encodeInt64(int64(v.DataOffset)))
	}
	return buf.Bytes()
}

func decodeSymbols(payload []byte) ([]Symbol, error) {
	var out []Symbol
	i := 0
	for i < len(payload) {
		name, next, err := readCString(payload, i)
		if err != nil {
			return nil, err
		}
		i = next
		if i+8 > len(payload) {
			return nil, errors.New("truncated symbol offset")
		}
		off := int64(binary.NativeEndian.Uint64(payload[i : i+8]))
		i += 8
		out = append(out, Symbol{Name: name, Offset: off})
	}
	return out, nil
}

func encodeIncludes(includes []*ir.Sheet) []byte {
	var buf bytes.Buffer
	for _, inc := range includes {
		buf.WriteString(inc.FilePath)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func decodeIncludes(payload []byte) []string {
	var out []string
	i := 0
	for i < len(payload) {
		name, next, err := readCString(payload, i)
		if err != nil {
			break
		}
		i = next
		out = append(out, name)
	}
	return out
}

// readCString reads a NUL-terminated string starting at payload[start],
// returning the string and the offset just past its terminator.
func readCString(payload []byte, start int) (string, int, error) {
	end := bytes.IndexByte(payload[start:], 0)
	if end < 0 {
		return "", 0, errors.New("unterminated name")
	}
	return string(payload[start : start+end]), start + end + 1, nil
}
