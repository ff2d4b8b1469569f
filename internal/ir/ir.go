// Package ir is the graph intermediate representation: sheets, node
// definitions and instances, sockets, wires, variables and functions. It is
// pure data — every mutating operation a sheet needs lives in
// internal/sema, which is the only package allowed to call AddWire or grow
// a sheet's node/wire arenas.
package ir

import (
	"sort"

	"github.com/decisionlang/decision/internal/types"
)

// LiteralValue is a tagged default/override value for an unconnected input
// socket. It mirrors the lexical literal union: exactly one of the fields
// is meaningful, selected by Type.
type LiteralValue struct {
	Type types.T
	Int  int64
	Flt  float64
	Str  string
	Bool bool
}

// SocketMeta describes one input or output port of a node.
type SocketMeta struct {
	Name        string
	Description string
	Type        types.T
	Default     LiteralValue
}

// NodeDefinition describes a kind of node: its name, its sockets, and where
// the input run ends and the output run begins.
type NodeDefinition struct {
	Name        string
	Description string

	Sockets          []SocketMeta
	StartOutputIndex int // sockets [0, StartOutputIndex) are inputs

	// InfiniteInputs means a node instance of this definition may extend
	// the input portion beyond what Sockets declares (e.g. variadic
	// Print). The instance records its own StartOutputIndex once
	// expanded; the definition itself never mutates.
	InfiniteInputs bool
}

// NumInputs returns the number of input sockets a definition has.
func (d *NodeDefinition) NumInputs() int { return d.StartOutputIndex }

// NumOutputs returns the number of output sockets a definition has.
func (d *NodeDefinition) NumOutputs() int { return len(d.Sockets) - d.StartOutputIndex }

// IsExecutionDefinition reports whether the definition has at least one
// Execution socket, i.e. whether it participates in control flow.
func (d *NodeDefinition) IsExecutionDefinition() bool {
	for _, s := range d.Sockets {
		if s.Type == types.Execution {
			return true
		}
	}
	return false
}

// IsSocketIndexValid reports whether i addresses a socket on d.
func (d *NodeDefinition) IsSocketIndexValid(i int) bool {
	return i >= 0 && i < len(d.Sockets)
}

// NameKind classifies what a node instance's name resolved to during
// semantic analysis.
type NameKind int

const (
	NameUnresolved NameKind = iota
	NameVariableGetter
	NameVariableSetter
	NameFunctionDefine
	NameFunctionReturn
	NameFunctionCall
	NameBuiltin
	NameCFunction
)

// NameResolution binds a node instance to whatever its name referred to:
// a variable getter/setter, a function's Define/Return/call site, or a
// builtin/C-function.
type NameResolution struct {
	Kind       NameKind
	Variable   *Variable
	Function   *Function
	Definition *NodeDefinition // builtin/C-function/define/return definition
}

// Node is one node instance placed on a sheet.
type Node struct {
	Definition *NodeDefinition
	Line       int

	// ReducedTypes overrides Definition.Sockets[i].Type once type
	// reduction has run. nil means "use the definition's declared
	// types unchanged" (only possible before reduction, or for a node
	// with no variable sockets at all).
	ReducedTypes []types.T

	// LiteralValues overrides Definition.Sockets[i].Default for
	// unconnected inputs. nil means "use the definition's defaults".
	// Has StartOutputIndex elements when non-nil.
	LiteralValues []LiteralValue

	// StartOutputIndex is usually equal to Definition.StartOutputIndex,
	// but differs when Definition.InfiniteInputs caused the input
	// portion to be expanded for this instance.
	StartOutputIndex int

	Resolution NameResolution
}

// defIndex maps instance socket index i to the corresponding index into
// Definition.Sockets, folding any infinite-input expansion back onto the
// definition's last declared input (the variadic template socket).
func (n *Node) defIndex(i int) int {
	switch {
	case i < n.Definition.StartOutputIndex:
		return i
	case i < n.StartOutputIndex:
		return n.Definition.StartOutputIndex - 1
	default:
		return n.Definition.StartOutputIndex + (i - n.StartOutputIndex)
	}
}

// SocketMeta returns the effective metadata of socket i: the definition's
// metadata, overridden by ReducedTypes/LiteralValues where present.
func (n *Node) SocketMeta(i int) SocketMeta {
	meta := n.Definition.Sockets[n.defIndex(i)]
	if n.ReducedTypes != nil {
		meta.Type = n.ReducedTypes[i]
	}
	if i < n.StartOutputIndex && n.LiteralValues != nil {
		meta.Default = n.LiteralValues[i]
	}
	return meta
}

// NumInputs returns the number of input sockets this instance has (after
// any infinite-input expansion).
func (n *Node) NumInputs() int { return n.StartOutputIndex }

// NumOutputs returns the number of output sockets this instance has.
func (n *Node) NumOutputs() int { return n.Definition.NumOutputs() }

// NumSockets returns the total number of sockets this instance has.
func (n *Node) NumSockets() int { return n.StartOutputIndex + n.NumOutputs() }

// IsExecution reports whether the instance has at least one Execution
// socket, using reduced types if present.
func (n *Node) IsExecution() bool {
	for i := 0; i < n.NumSockets(); i++ {
		if n.SocketMeta(i).Type == types.Execution {
			return true
		}
	}
	return false
}

// NodeSocket addresses one socket of one node by index.
type NodeSocket struct {
	NodeIndex   int
	SocketIndex int
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compare orders NodeSockets first by node index, then by socket index.
func (s NodeSocket) Compare(o NodeSocket) int {
	if c := compareInt(s.NodeIndex, o.NodeIndex); c != 0 {
		return c
	}
	return compareInt(s.SocketIndex, o.SocketIndex)
}

// Wire connects an output socket to an input socket. Line is the source
// line the wire declaration appeared on, carried for diagnostics (type
// mismatches, cycle reports); it plays no part in Compare or equality, so
// sheets built without source positions (tests, synthesized sheets) are
// unaffected.
type Wire struct {
	From NodeSocket
	To   NodeSocket
	Line int
}

// Compare orders wires lexicographically by (From, To), matching the sort
// order the sheet's Wires slice is required to maintain.
func (w Wire) Compare(o Wire) int {
	if c := w.From.Compare(o.From); c != 0 {
		return c
	}
	return w.To.Compare(o.To)
}

// WireFindFirst returns the lowest index in sheet.Wires whose From socket
// equals socket, or -1 if there is none. Wires is sorted by From first, so
// this is a binary search.
func WireFindFirst(sheet *Sheet, socket NodeSocket) int {
	n := len(sheet.Wires)
	i := sort.Search(n, func(i int) bool {
		return sheet.Wires[i].From.Compare(socket) >= 0
	})
	if i < n && sheet.Wires[i].From == socket {
		return i
	}
	return -1
}

// NumConnections counts the wires originating at socket: the run of
// consecutive matching entries starting at WireFindFirst's result.
func NumConnections(sheet *Sheet, socket NodeSocket) int {
	first := WireFindFirst(sheet, socket)
	if first < 0 {
		return 0
	}
	count := 0
	for i := first; i < len(sheet.Wires) && sheet.Wires[i].From == socket; i++ {
		count++
	}
	return count
}

// IsNodeIndexValid reports whether i addresses a node on sheet.
func IsNodeIndexValid(sheet *Sheet, i int) bool {
	return i >= 0 && i < len(sheet.Nodes)
}

// IsNodeSocketValid reports whether ns addresses a real socket on sheet.
func IsNodeSocketValid(sheet *Sheet, ns NodeSocket) bool {
	if !IsNodeIndexValid(sheet, ns.NodeIndex) {
		return false
	}
	n := sheet.Nodes[ns.NodeIndex]
	return ns.SocketIndex >= 0 && ns.SocketIndex < n.NumSockets()
}

// IsInputSocket reports whether ns addresses an input socket.
func IsInputSocket(sheet *Sheet, ns NodeSocket) bool {
	n := sheet.Nodes[ns.NodeIndex]
	return ns.SocketIndex < n.StartOutputIndex
}

// AddWire inserts wire into sheet.Wires, maintaining sort order. It
// rejects wires that reference invalid nodes/sockets, connect two inputs
// or two outputs, or duplicate an existing wire.
func AddWire(sheet *Sheet, wire Wire) bool {
	if !IsNodeSocketValid(sheet, wire.From) || !IsNodeSocketValid(sheet, wire.To) {
		return false
	}
	if IsInputSocket(sheet, wire.From) || !IsInputSocket(sheet, wire.To) {
		return false
	}
	i := sort.Search(len(sheet.Wires), func(i int) bool {
		return sheet.Wires[i].Compare(wire) >= 0
	})
	if i < len(sheet.Wires) && sheet.Wires[i].Compare(wire) == 0 {
		return false // duplicate
	}
	sheet.Wires = append(sheet.Wires, Wire{})
	copy(sheet.Wires[i+1:], sheet.Wires[i:])
	sheet.Wires[i] = wire
	return true
}

// AddNode appends a node to the sheet and returns its index.
func AddNode(sheet *Sheet, n *Node) int {
	sheet.Nodes = append(sheet.Nodes, n)
	return len(sheet.Nodes) - 1
}
