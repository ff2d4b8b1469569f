package builtin

import (
	"bytes"
	"io"
	"testing"

	"github.com/decisionlang/decision/internal/types"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownNodes(t *testing.T) {
	for _, name := range []string{"Start", "Print", "Add", "Subtract", "Multiply", "Divide",
		"Modulo", "Equal", "LessThan", "LessThanOrEqual", "MoreThan", "MoreThanOrEqual",
		"And", "Or", "Not", "Xor", "Branch", "If", "For", "While", "Concat", "ToString"} {
		e, ok := Lookup(name)
		require.Truef(t, ok, "expected %q to be registered", name)
		require.NotNil(t, e.Definition)
	}
}

func TestBranchIfAlias(t *testing.T) {
	branch, _ := Lookup("Branch")
	ifNode, _ := Lookup("If")
	require.Same(t, branch, ifNode)
}

func TestArithmeticDefinitionShape(t *testing.T) {
	add, ok := Lookup("Add")
	require.True(t, ok)
	require.Equal(t, KindOpcode, add.Kind)
	require.Equal(t, "ADD", add.Opcode)
	require.Equal(t, 2, add.Definition.NumInputs())
	require.Equal(t, 1, add.Definition.NumOutputs())
	require.False(t, add.Definition.IsExecutionDefinition())
}

func TestPrintInfiniteInputs(t *testing.T) {
	print, ok := Lookup("Print")
	require.True(t, ok)
	require.True(t, print.Definition.InfiniteInputs)
	require.True(t, print.Definition.IsExecutionDefinition())
}

func TestConcatFunc(t *testing.T) {
	entry, _ := Lookup("Concat")
	out, err := entry.Call(nil, []Value{
		{Type: types.String, Str: "foo"},
		{Type: types.String, Str: "bar"},
	})
	require.NoError(t, err)
	require.Equal(t, "foobar", out[0].Str)
}

func TestToStringFunc(t *testing.T) {
	entry, _ := Lookup("ToString")
	out, err := entry.Call(nil, []Value{{Type: types.Int, Int: 42}})
	require.NoError(t, err)
	require.Equal(t, "42", out[0].Str)

	out, err = entry.Call(nil, []Value{{Type: types.Bool, Bool: true}})
	require.NoError(t, err)
	require.Equal(t, "true", out[0].Str)
}

type bufContext struct{ buf *bytes.Buffer }

func (c bufContext) Stdout() io.Writer { return c.buf }

func TestPrintFunc(t *testing.T) {
	entry, _ := Lookup("Print")
	var buf bytes.Buffer
	_, err := entry.Call(bufContext{&buf}, []Value{
		{Type: types.String, Str: "hello"},
		{Type: types.Int, Int: 1},
	})
	require.NoError(t, err)
	require.Equal(t, "hello 1\n", buf.String())
}
