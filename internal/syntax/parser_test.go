package syntax

import (
	"testing"

	"github.com/decisionlang/decision/internal/types"
	"github.com/stretchr/testify/require"
)

func TestParseHelloWorld(t *testing.T) {
	src := `
Node 0 Start
Node 1 Print
Wire 0:0 -> 1:0
Literal 1:1 "Hello, world!"
`
	tree, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, tree.Nodes, 2)
	require.Equal(t, "Start", tree.Nodes[0].Name)
	require.Equal(t, "Print", tree.Nodes[1].Name)
	require.Len(t, tree.Wires, 1)
	require.Equal(t, Socket{Node: 0, Index: 0}, tree.Wires[0].From)
	require.Equal(t, Socket{Node: 1, Index: 0}, tree.Wires[0].To)
	require.Len(t, tree.Literals, 1)
	require.Equal(t, "Hello, world!", tree.Literals[0].Value.Str)
}

func TestParseVariableAndFunction(t *testing.T) {
	src := `
Variable Counter Integer 0
Function Double (Integer n) -> (Integer result)
Subroutine Tick (Integer step) -> (Integer total)
`
	tree, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, tree.Variables, 1)
	require.Equal(t, "Counter", tree.Variables[0].Name)
	require.Equal(t, types.Int, tree.Variables[0].Type)
	require.NotNil(t, tree.Variables[0].Default)
	require.Equal(t, int64(0), tree.Variables[0].Default.Int)

	require.Len(t, tree.Functions, 2)
	require.False(t, tree.Functions[0].Subroutine)
	require.Equal(t, "Double", tree.Functions[0].Name)
	require.Len(t, tree.Functions[0].Inputs, 1)
	require.Len(t, tree.Functions[0].Outputs, 1)
	require.True(t, tree.Functions[1].Subroutine)
}

func TestParseInclude(t *testing.T) {
	tree, err := Parse(`Include "lib.dc"`)
	require.NoError(t, err)
	require.Len(t, tree.Includes, 1)
	require.Equal(t, "lib.dc", tree.Includes[0].Path)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse(`Node 0`)
	require.Error(t, err)
	var synErr *SyntaxError
	require.ErrorAs(t, err, &synErr)
}
