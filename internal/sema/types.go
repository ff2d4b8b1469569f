package sema

import (
	"github.com/decisionlang/decision/internal/builtin"
	"github.com/decisionlang/decision/internal/diag"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/types"
)

// reduceTypes narrows every node's vague sockets to concrete types by
// iterating wire-propagation to a fixed point, applying the arithmetic
// join-rule at every sweep, then checking what's left over.
func reduceTypes(sheet *ir.Sheet, sink *diag.Sink) {
	for _, n := range sheet.Nodes {
		if n.ReducedTypes != nil {
			continue
		}
		rt := make([]types.T, n.NumSockets())
		for i := range rt {
			t := n.SocketMeta(i).Type
			// An input fed by a literal or definition default rather than
			// a wire is anchored to that value's own concrete type:
			// nothing will ever narrow it by wire propagation, so the
			// default has to do that job.
			if i < n.NumInputs() {
				if lt := n.SocketMeta(i).Default.Type; lt != types.None {
					t = types.Intersect(t, lt)
				}
			}
			rt[i] = t
		}
		n.ReducedTypes = rt
	}

	reported := map[ir.Wire]bool{}

	for {
		changed := false

		for _, w := range sheet.Wires {
			fromNode := sheet.Nodes[w.From.NodeIndex]
			toNode := sheet.Nodes[w.To.NodeIndex]
			fromT := fromNode.ReducedTypes[w.From.SocketIndex]
			toT := toNode.ReducedTypes[w.To.SocketIndex]

			inter := types.Intersect(fromT, toT)
			if inter == types.None {
				if !reported[w] {
					reported[w] = true
					sink.Add(diag.TypeMismatch, w.Line, 0,
						"wire %d:%d -> %d:%d has incompatible types", w.From.NodeIndex, w.From.SocketIndex, w.To.NodeIndex, w.To.SocketIndex)
				}
				continue
			}
			if inter != fromT {
				fromNode.ReducedTypes[w.From.SocketIndex] = inter
				changed = true
			}
			if inter != toT {
				toNode.ReducedTypes[w.To.SocketIndex] = inter
				changed = true
			}
		}

		if applyJoinRule(sheet) {
			changed = true
		}

		if !changed {
			break
		}
	}

	for ni, n := range sheet.Nodes {
		for si := 0; si < n.NumSockets(); si++ {
			t := n.ReducedTypes[si]
			if t == types.Execution {
				continue
			}
			if types.IsVague(t) {
				sink.Add(diag.AmbiguousType, n.Line, 0,
					"node %d socket %d did not reduce to a concrete type (stuck at %#x)", ni, si, uint8(t))
			}
		}
	}
}

// applyJoinRule implements the special arithmetic/comparison rule: once any
// of a builtin's Number-typed sockets has reduced to a concrete type, every
// Number-typed socket on that node reduces to the narrowest concrete type
// that is at least the join of what's concrete so far — in practice, Float
// if anything reduced to Float, else Int. It reports whether it changed
// anything so the caller's fixed-point loop keeps sweeping.
func applyJoinRule(sheet *ir.Sheet) bool {
	changed := false
	for _, n := range sheet.Nodes {
		if n.Resolution.Kind != ir.NameBuiltin {
			continue
		}
		entry, ok := builtin.Lookup(n.Resolution.Definition.Name)
		if !ok || !entry.JoinInputs {
			continue
		}

		join := types.None
		for si := 0; si < n.NumSockets(); si++ {
			t := n.ReducedTypes[si]
			if t == types.Int || t == types.Float {
				join = types.Join(join, t)
			}
		}
		if join == types.None {
			continue
		}
		target := types.Int
		if join&types.Float != 0 {
			target = types.Float
		}

		for si := 0; si < n.NumSockets(); si++ {
			t := n.ReducedTypes[si]
			if t != target && (t == types.Number || t == types.Int) {
				n.ReducedTypes[si] = target
				changed = true
			}
		}
	}
	return changed
}
