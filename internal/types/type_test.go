package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVague(t *testing.T) {
	cases := []struct {
		name string
		in   T
		want bool
	}{
		{"execution alone", Execution, false},
		{"single concrete int", Int, false},
		{"single concrete string", String, false},
		{"number is vague", Number, true},
		{"var-any is vague", VarAny, true},
		{"execution plus name is not vague", Execution | Name, false},
		{"int and name is not vague (name isn't a variable atom)", Int | Name, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsVague(c.in))
		})
	}
}

func TestIsConcrete(t *testing.T) {
	require.True(t, IsConcrete(Int))
	require.True(t, IsConcrete(Bool))
	require.False(t, IsConcrete(Number))
	require.False(t, IsConcrete(None))
}

func TestIntersectJoin(t *testing.T) {
	assert.Equal(t, Int, Intersect(Number, Int))
	assert.Equal(t, None, Intersect(Int, String))
	assert.Equal(t, Number, Join(Int, Float))
}

func TestName(t *testing.T) {
	assert.Equal(t, "Integer", NameOf(Int))
	assert.Equal(t, "Number", NameOf(Number))
	assert.Equal(t, "Variable", NameOf(VarAny))
	assert.Equal(t, "", NameOf(Int|String))
}

func TestFromLex(t *testing.T) {
	// Execution is offset 0 in the declared-type token run.
	assert.Equal(t, Execution, FromLex(0))
	assert.Equal(t, Int, FromLex(1))
	assert.Equal(t, Bool, FromLex(4))
}

func TestFromLexLiteral(t *testing.T) {
	assert.Equal(t, Int, FromLexLiteral(0))
	assert.Equal(t, Float, FromLexLiteral(1))
}
