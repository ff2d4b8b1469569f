package sema

import (
	"github.com/decisionlang/decision/internal/builtin"
	"github.com/decisionlang/decision/internal/diag"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/syntax"
)

// resolution is what a node instance's name looked up to, before the
// instance is built — the builtin/variable/function registry lookup,
// decoupled from node construction so infinite-input expansion (which
// needs the resolved definition) can run as its own pass.
type resolution struct {
	def *ir.NodeDefinition
	res ir.NameResolution
}

// scanNodes instantiates sheet.Nodes and sheet.Wires from tree, resolving
// every node's name against the sheet's own variables/functions, every
// included sheet's exported names (recursively, so an Include of an
// Include is visible too), and finally the process-wide builtin registry.
func scanNodes(sheet *ir.Sheet, tree *syntax.Tree, sink *diag.Sink) {
	names := buildNameTable(sheet)

	byIndex := make(map[int]syntax.NodeDecl, len(tree.Nodes))
	for _, n := range tree.Nodes {
		if _, dup := byIndex[n.Index]; dup {
			sink.Add(diag.RedefinedName, n.Pos.Line, n.Pos.Col, "duplicate node index %d", n.Index)
			continue
		}
		byIndex[n.Index] = n
	}

	ordered := make([]syntax.NodeDecl, len(byIndex))
	for i := 0; i < len(byIndex); i++ {
		decl, ok := byIndex[i]
		if !ok {
			sink.Add(diag.SyntaxError, 0, 0, "node index %d missing; node indices must be 0..N-1 without gaps", i)
			return
		}
		ordered[i] = decl
	}

	resolved := make([]resolution, len(ordered))
	for i, decl := range ordered {
		r, ok := names[decl.Name]
		if !ok {
			sink.Add(diag.NameNotFound, decl.Pos.Line, decl.Pos.Col, "unresolved node name %q", decl.Name)
			continue
		}
		resolved[i] = r
	}

	startCounts := make([]int, len(ordered))
	for _, w := range tree.Wires {
		if w.To.Node >= 0 && w.To.Node < len(startCounts) {
			startCounts[w.To.Node] = max(startCounts[w.To.Node], w.To.Index+1)
		}
	}
	for _, l := range tree.Literals {
		if l.Socket.Node >= 0 && l.Socket.Node < len(startCounts) {
			startCounts[l.Socket.Node] = max(startCounts[l.Socket.Node], l.Socket.Index+1)
		}
	}

	for i, decl := range ordered {
		r := resolved[i]
		if r.def == nil {
			continue
		}
		startOut := r.def.StartOutputIndex
		if r.def.InfiniteInputs {
			startOut = max(startOut, startCounts[i])
		}
		node := &ir.Node{
			Definition:       r.def,
			Line:             decl.Pos.Line,
			StartOutputIndex: startOut,
			Resolution:       r.res,
		}
		idx := ir.AddNode(sheet, node)
		if node.Definition.Name == "Start" {
			if sheet.StartNodeIndex < 0 {
				sheet.StartNodeIndex = idx
			} else {
				sink.Add(diag.RedundantNode, decl.Pos.Line, decl.Pos.Col, "sheet has more than one Start node; only the first (node %d) runs", sheet.StartNodeIndex)
			}
			sheet.NumStarts++
		}
		if r.res.Kind == ir.NameFunctionDefine {
			r.res.Function.DefineNodeIndex = idx
		}
		if r.res.Kind == ir.NameFunctionReturn {
			r.res.Function.ReturnNodeIndices = append(r.res.Function.ReturnNodeIndices, idx)
		}
	}

	for _, w := range tree.Wires {
		from := ir.NodeSocket{NodeIndex: w.From.Node, SocketIndex: w.From.Index}
		to := ir.NodeSocket{NodeIndex: w.To.Node, SocketIndex: w.To.Index}
		if !ir.AddWire(sheet, ir.Wire{From: from, To: to, Line: w.Pos.Line}) {
			sink.Add(diag.SyntaxError, w.Pos.Line, w.Pos.Col, "wire %d:%d -> %d:%d is invalid or duplicates an existing wire", w.From.Node, w.From.Index, w.To.Node, w.To.Index)
		}
	}

	applyLiteralOverrides(sheet, tree, sink)
}

// applyLiteralOverrides fills in Node.LiteralValues for any node that has
// at least one explicit Literal declaration, defaulting every other input
// socket to the definition's declared default.
func applyLiteralOverrides(sheet *ir.Sheet, tree *syntax.Tree, sink *diag.Sink) {
	byNode := make(map[int][]syntax.LiteralDecl)
	for _, l := range tree.Literals {
		byNode[l.Socket.Node] = append(byNode[l.Socket.Node], l)
	}
	for nodeIndex, lits := range byNode {
		if !ir.IsNodeIndexValid(sheet, nodeIndex) {
			for _, l := range lits {
				sink.Add(diag.SyntaxError, l.Pos.Line, l.Pos.Col, "literal override references unknown node %d", nodeIndex)
			}
			continue
		}
		node := sheet.Nodes[nodeIndex]
		values := make([]ir.LiteralValue, node.StartOutputIndex)
		for i := range values {
			values[i] = node.SocketMeta(i).Default
		}
		for _, l := range lits {
			if l.Socket.Index < 0 || l.Socket.Index >= node.StartOutputIndex {
				sink.Add(diag.SyntaxError, l.Pos.Line, l.Pos.Col, "literal override references invalid input socket %d", l.Socket.Index)
				continue
			}
			values[l.Socket.Index] = ir.LiteralValue{Type: l.Value.Type, Int: l.Value.Int, Flt: l.Value.Flt, Str: l.Value.Str, Bool: l.Value.Bool}
		}
		node.LiteralValues = values
	}
}

// buildNameTable flattens the sheet's own variables/functions and every
// transitively included sheet's exported names, plus the builtin registry
// fallback, into one lookup table keyed by the name a node declaration uses.
func buildNameTable(sheet *ir.Sheet) map[string]resolution {
	names := map[string]resolution{}

	var addSheet func(s *ir.Sheet)
	addSheet = func(s *ir.Sheet) {
		for _, v := range s.Variables {
			addOnce(names, v.GetterDefinition.Name, &v.GetterDefinition, ir.NameResolution{Kind: ir.NameVariableGetter, Variable: v})
			addOnce(names, v.SetterDefinition.Name, &v.SetterDefinition, ir.NameResolution{Kind: ir.NameVariableSetter, Variable: v})
		}
		for _, f := range s.Functions {
			addOnce(names, f.CallDefinition.Name, &f.CallDefinition, ir.NameResolution{Kind: ir.NameFunctionCall, Function: f})
			addOnce(names, f.DefineDefinition.Name, &f.DefineDefinition, ir.NameResolution{Kind: ir.NameFunctionDefine, Function: f})
			addOnce(names, f.ReturnDefinition.Name, &f.ReturnDefinition, ir.NameResolution{Kind: ir.NameFunctionReturn, Function: f})
		}
		for _, inc := range s.Includes {
			addSheet(inc)
		}
	}
	addSheet(sheet)

	for _, e := range builtin.All() {
		addOnce(names, e.Definition.Name, e.Definition, ir.NameResolution{Kind: ir.NameBuiltin, Definition: e.Definition})
	}

	return names
}

// addOnce inserts name into the table if not already claimed, so the first
// claim wins: addSheet walks depth-first (the sheet's own names, then each
// include's whole subtree in declaration order), and every sheet's names
// shadow the same name in the builtin registry.
func addOnce(names map[string]resolution, name string, def *ir.NodeDefinition, res ir.NameResolution) {
	if name == "" {
		return
	}
	if _, exists := names[name]; exists {
		return
	}
	names[name] = resolution{def: def, res: res}
}

