// Package link flattens a sheet's include graph into one executable
// program: every sheet's bytecode and data are concatenated into the root
// sheet's own buffers and every relocation site is rewritten to its final
// offset in that merged arena.
//
// This is a deliberate divergence from dlink.c, which never concatenates:
// each sheet there keeps its own permanently allocated buffers and a
// resolved pointer is a real process address that can span any of them.
// Go slices carry no such cross-allocation guarantee, so Link walks the
// include graph once, lays every sheet's Text/Data/Strings end to end, and
// rewrites every instruction operand to point into that single arena
// before returning. See DESIGN.md's whole-program-flattening note for the
// full rationale; the four phases dlink.c names (findIncluded,
// precalculatePtr, self, linkIncludesRecursive) are all still present
// below, just writing into one arena instead of several.
package link

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/types"
)

// base records where one sheet's own Text/Data/Strings land in the merged
// arena, computed by precalculatePtr before any byte is actually copied.
type base struct {
	text    int
	data    int
	strings int
}

// Link flattens root's include graph into root's own Text/Data/DataTypes/
// Strings, resolving every InstructionToLink site (root's and every
// included sheet's) to an absolute offset in that merged arena, and sets
// root.Linked; on a root whose Linked is already set it returns nil and
// changes nothing. Every sheet must already have been compiled by
// internal/codegen.Generate; Link itself emits no instructions, only
// addresses.
func Link(root *ir.Sheet) error {
	if root.Linked {
		return nil
	}
	order := findIncluded(root)
	bases := precalculatePtr(order)
	self(root, order, bases)

	for _, sheet := range order {
		for _, l := range sheet.InsLinks {
			meta := sheet.LinkMetas[l.LinkMetaIndex]
			addr, err := resolve(meta, order, bases)
			if err != nil {
				return errors.Wrapf(err, "sheet %s", sheet.FilePath)
			}
			writeFull(root.Text, bases[sheet].text+l.InsOffset, addr)
		}
	}

	linkIncludesRecursive(order, bases)

	root.Main = bases[root].text + root.Main
	root.Linked = true
	return nil
}

// findIncluded walks root and every sheet transitively reachable through
// Includes, depth-first, each visited once by pointer identity (sema never
// caches across diamond includes, so the same file reached two different
// ways is two distinct *ir.Sheet values here — both still get a home in
// the merged arena). root is always first, so its own Main offset and any
// same-sheet relocation need no base adjustment beyond what precalculatePtr
// already assigns it (zero).
func findIncluded(root *ir.Sheet) []*ir.Sheet {
	var order []*ir.Sheet
	seen := map[*ir.Sheet]bool{}
	var visit func(s *ir.Sheet)
	visit = func(s *ir.Sheet) {
		if s == nil || seen[s] {
			return
		}
		seen[s] = true
		order = append(order, s)
		for _, inc := range s.Includes {
			visit(inc)
		}
	}
	visit(root)
	return order
}

// precalculatePtr assigns each sheet in order the running byte offset its
// own Text/Data/Strings will start at once concatenated, in traversal
// order — the dlink.c pass of the same name, computing addresses before
// any copy happens.
func precalculatePtr(order []*ir.Sheet) map[*ir.Sheet]base {
	bases := make(map[*ir.Sheet]base, len(order))
	var text, data, strs int
	for _, s := range order {
		bases[s] = base{text: text, data: data, strings: strs}
		text += len(s.Text)
		data += len(s.Data)
		strs += len(s.Strings)
	}
	return bases
}

// self concatenates every sheet's Text/Data/DataTypes/Strings into root's
// own fields, the flattening step standing in for dlink.c's "self" pass
// (there, resolving a sheet's own unresolved references against itself;
// here, additionally doing the concatenation dlink.c never needed). A
// String-typed Data slot holds an index into its owning sheet's Strings,
// not the text inline, so each sheet's slot values are shifted by that
// sheet's strings base as they're copied in — this subsumes dlink.c's
// separate VariableStringDefault fixup pass, since there's no longer a
// second Strings table to point into after merging.
func self(root *ir.Sheet, order []*ir.Sheet, bases map[*ir.Sheet]base) {
	var text, data []byte
	var dataTypes []types.T
	var strs []string

	for _, s := range order {
		text = append(text, s.Text...)
		dataTypes = append(dataTypes, s.DataTypes...)
		strs = append(strs, s.Strings...)

		shifted := append([]byte(nil), s.Data...)
		b := bases[s]
		for i, t := range s.DataTypes {
			if t != types.String {
				continue
			}
			off := i * 8
			idx := binary.NativeEndian.Uint64(shifted[off : off+8])
			binary.NativeEndian.PutUint64(shifted[off:off+8], idx+uint64(b.strings))
		}
		data = append(data, shifted...)
	}

	root.Text = text
	root.Data = data
	root.DataTypes = dataTypes
	root.Strings = strs
}

// resolve returns meta's absolute offset in the merged arena. A meta
// produced by internal/codegen carries the defining object in Ref, which
// is authoritative: a function's sheet-local CodeOffset is only final once
// every entry of its sheet has been generated, so it must be read here
// rather than snapshotted at call-site lowering time. The name search is
// the fallback for a meta rebuilt without its Ref (an objfile round-trip,
// a hand-assembled test sheet).
func resolve(meta ir.LinkMeta, order []*ir.Sheet, bases map[*ir.Sheet]base) (int64, error) {
	switch meta.Type {
	case ir.LinkDataStringLiteral, ir.LinkVariable, ir.LinkVariableStringDefault:
		if meta.Sheet != nil {
			return int64(bases[meta.Sheet].data + meta.Ptr), nil
		}
	case ir.LinkFunction:
		if f, ok := meta.Ref.(*ir.Function); ok {
			return int64(bases[f.Sheet].text + f.CodeOffset), nil
		}
		f, sheet, err := findFunction(order, meta.Name)
		if err != nil {
			return 0, err
		}
		return int64(bases[sheet].text + f.CodeOffset), nil
	case ir.LinkVariablePointer:
		if v, ok := meta.Ref.(*ir.Variable); ok {
			return int64(bases[v.Sheet].data + v.DataOffset), nil
		}
		v, sheet, err := findVariable(order, meta.Name)
		if err != nil {
			return 0, err
		}
		return int64(bases[sheet].data + v.DataOffset), nil
	case ir.LinkCFunction:
		return 0, errors.Errorf("C-function %q has no host binding registered", meta.Name)
	}
	return 0, errors.Errorf("link meta %q has no owning sheet and no fallback resolution", meta.Name)
}

func findFunction(order []*ir.Sheet, name string) (*ir.Function, *ir.Sheet, error) {
	for _, s := range order {
		for _, f := range s.Functions {
			if f.Name == name {
				return f, s, nil
			}
		}
	}
	return nil, nil, errors.Errorf("unresolved function %q", name)
}

func findVariable(order []*ir.Sheet, name string) (*ir.Variable, *ir.Sheet, error) {
	for _, s := range order {
		for _, v := range s.Variables {
			if v.GetterDefinition.Name == name {
				return v, s, nil
			}
		}
	}
	return nil, nil, errors.Errorf("unresolved variable %q", name)
}

// linkIncludesRecursive rewrites every Function.CodeOffset and
// Variable.DataOffset from sheet-local to absolute-in-the-merged-arena,
// the last of dlink.c's four passes. It runs after every relocation site
// has been resolved (resolve reads the sheet-local values directly from
// these fields) so it can safely overwrite them in place. It is not
// idempotent: once it has run, the offsets are no longer sheet-local, so
// Link returns early on a root whose Linked flag is already set.
func linkIncludesRecursive(order []*ir.Sheet, bases map[*ir.Sheet]base) {
	for _, s := range order {
		b := bases[s]
		for _, f := range s.Functions {
			f.CodeOffset = b.text + f.CodeOffset
		}
		for _, v := range s.Variables {
			v.DataOffset = b.data + v.DataOffset
		}
	}
}

func writeFull(text []byte, offset int, v int64) {
	binary.NativeEndian.PutUint64(text[offset:offset+8], uint64(v))
}
