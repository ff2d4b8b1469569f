package ir

import (
	"testing"

	"github.com/decisionlang/decision/internal/types"
	"github.com/stretchr/testify/require"
)

func printDefinition() *NodeDefinition {
	return &NodeDefinition{
		Name: "Print",
		Sockets: []SocketMeta{
			{Name: "", Type: types.Execution},
			{Name: "value", Type: types.VarAny},
			{Name: "", Type: types.Execution},
		},
		StartOutputIndex: 2,
		InfiniteInputs:   true,
	}
}

func addDefinition() *NodeDefinition {
	return &NodeDefinition{
		Name: "Add",
		Sockets: []SocketMeta{
			{Name: "a", Type: types.Number},
			{Name: "b", Type: types.Number},
			{Name: "result", Type: types.Number},
		},
		StartOutputIndex: 2,
	}
}

func TestNodeDefinitionCounts(t *testing.T) {
	def := addDefinition()
	require.Equal(t, 2, def.NumInputs())
	require.Equal(t, 1, def.NumOutputs())
	require.False(t, def.IsExecutionDefinition())

	p := printDefinition()
	require.True(t, p.IsExecutionDefinition())
}

func TestNodeSocketMetaWithInfiniteInputs(t *testing.T) {
	def := printDefinition()
	n := &Node{Definition: def, StartOutputIndex: 4} // expanded: 3 value inputs instead of 1
	require.Equal(t, 4, n.NumInputs())
	require.Equal(t, 1, n.NumOutputs())
	require.Equal(t, 5, n.NumSockets())

	require.Equal(t, types.Execution, n.SocketMeta(0).Type)
	require.Equal(t, "value", n.SocketMeta(1).Name)
	require.Equal(t, "value", n.SocketMeta(2).Name)
	require.Equal(t, "value", n.SocketMeta(3).Name)
	require.Equal(t, types.Execution, n.SocketMeta(4).Type)
}

func TestNodeSocketMetaOverrides(t *testing.T) {
	def := addDefinition()
	n := &Node{
		Definition:       def,
		StartOutputIndex: 2,
		ReducedTypes:     []types.T{types.Int, types.Int, types.Int},
		LiteralValues:    []LiteralValue{{Type: types.Int, Int: 1}, {Type: types.Int, Int: 2}},
	}
	require.Equal(t, types.Int, n.SocketMeta(0).Type)
	require.Equal(t, int64(1), n.SocketMeta(0).Default.Int)
	require.Equal(t, int64(2), n.SocketMeta(1).Default.Int)
}

func newTestSheet() *Sheet {
	sheet := NewSheet("test.dc")
	start := &Node{Definition: &NodeDefinition{Name: "Start", Sockets: []SocketMeta{{Type: types.Execution}}, StartOutputIndex: 0}}
	print := &Node{Definition: printDefinition(), StartOutputIndex: 2}
	AddNode(sheet, start)
	AddNode(sheet, print)
	return sheet
}

func TestAddWireAndLookup(t *testing.T) {
	sheet := newTestSheet()
	ok := AddWire(sheet, Wire{From: NodeSocket{0, 0}, To: NodeSocket{1, 0}})
	require.True(t, ok)

	// duplicate rejected
	require.False(t, AddWire(sheet, Wire{From: NodeSocket{0, 0}, To: NodeSocket{1, 0}}))

	// output->output rejected
	require.False(t, AddWire(sheet, Wire{From: NodeSocket{0, 0}, To: NodeSocket{1, 2}}))

	idx := WireFindFirst(sheet, NodeSocket{0, 0})
	require.Equal(t, 0, idx)
	require.Equal(t, 1, NumConnections(sheet, NodeSocket{0, 0}))
	require.Equal(t, -1, WireFindFirst(sheet, NodeSocket{5, 0}))
}

func TestAddWireSortOrder(t *testing.T) {
	sheet := newTestSheet()
	AddNode(sheet, &Node{Definition: printDefinition(), StartOutputIndex: 2})

	require.True(t, AddWire(sheet, Wire{From: NodeSocket{0, 0}, To: NodeSocket{2, 0}}))
	require.True(t, AddWire(sheet, Wire{From: NodeSocket{0, 0}, To: NodeSocket{1, 0}}))

	require.Len(t, sheet.Wires, 2)
	require.Equal(t, NodeSocket{1, 0}, sheet.Wires[0].To)
	require.Equal(t, NodeSocket{2, 0}, sheet.Wires[1].To)
	require.Equal(t, 2, NumConnections(sheet, NodeSocket{0, 0}))
}

func TestVariableSynthesizedDefinitions(t *testing.T) {
	getter := VariableGetterDefinition("Counter", types.Int)
	require.Equal(t, 0, getter.NumInputs())
	require.Equal(t, 1, getter.NumOutputs())

	setter := VariableSetterDefinition("Counter", types.Int)
	require.Equal(t, 2, setter.NumInputs())
	require.Equal(t, 1, setter.NumOutputs())
	require.True(t, setter.IsExecutionDefinition())
}
