package codegen

import (
	"testing"

	"github.com/decisionlang/decision/internal/bytecode"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/sema"
	"github.com/stretchr/testify/require"
)

type memSources map[string]string

func (m memSources) ReadSheet(path string) (string, error) {
	src, ok := m[path]
	if !ok {
		return "", &missingSourceError{path}
	}
	return src, nil
}

type missingSourceError struct{ path string }

func (e *missingSourceError) Error() string { return "no such sheet: " + e.path }

func scanOK(t *testing.T, src memSources, main string) *ir.Sheet {
	t.Helper()
	sheet, sink := sema.Scan(src, main, nil, false)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	return sheet
}

func decodeOpcodes(t *testing.T, text []byte) []bytecode.Op {
	t.Helper()
	var ops []bytecode.Op
	i := 0
	for i < len(text) {
		op := bytecode.Op(text[i])
		ops = append(ops, op)
		i += bytecode.InsSize(op)
	}
	return ops
}

func TestGenerateHelloWorld(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Print
Wire 0:0 -> 1:0
Literal 1:1 "Hello, world!"
`}
	sheet := scanOK(t, src, "main.dc")

	sink := Generate(sheet)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	require.NotEqual(t, ir.Unresolved, sheet.Main)
	require.NotEmpty(t, sheet.Text)
	require.Len(t, sheet.LinkMetas, 1) // the string literal
	require.Equal(t, []string{"Hello, world!"}, sheet.Strings)

	ops := decodeOpcodes(t, sheet.Text)
	require.Contains(t, ops, bytecode.SYSCALL)
	require.Contains(t, ops, bytecode.PUSHNF)
	require.Contains(t, ops, bytecode.RETN)
}

func TestGenerateArithmeticEmitsADD(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Add
Node 2 Print
Wire 0:0 -> 2:0
Wire 1:2 -> 2:1
Literal 1:0 3
Literal 1:1 4
`}
	sheet := scanOK(t, src, "main.dc")

	sink := Generate(sheet)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())

	ops := decodeOpcodes(t, sheet.Text)
	require.Contains(t, ops, bytecode.ADD)
	require.Contains(t, ops, bytecode.DEREFI)
}

func TestGenerateFloatArithmeticEmitsADDF(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Add
Node 2 Print
Wire 0:0 -> 2:0
Wire 1:2 -> 2:1
Literal 1:0 3
Literal 1:1 4.5
`}
	sheet := scanOK(t, src, "main.dc")

	sink := Generate(sheet)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())

	ops := decodeOpcodes(t, sheet.Text)
	require.Contains(t, ops, bytecode.ADDF)
}

func TestGenerateVariableGetSet(t *testing.T) {
	src := memSources{"main.dc": `
Variable Counter Integer 0
Node 0 Start
Node 1 Set Counter
Node 2 Get Counter
Node 3 Print
Wire 0:0 -> 1:0
Wire 1:2 -> 3:0
Wire 2:0 -> 3:1
Literal 1:1 42
`}
	sheet := scanOK(t, src, "main.dc")

	sink := Generate(sheet)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())

	ops := decodeOpcodes(t, sheet.Text)
	require.Contains(t, ops, bytecode.SETADR)
	require.Contains(t, ops, bytecode.DEREF)

	foundVar := false
	for _, m := range sheet.LinkMetas {
		if m.Name == "Counter" {
			foundVar = true
		}
	}
	require.True(t, foundVar)
	require.Len(t, sheet.Variables, 1)
	require.GreaterOrEqual(t, len(sheet.Data), 8, "Counter's default must have a Data slot")
}

func TestGenerateBranchEmitsConditionalJump(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Branch
Node 2 Print
Node 3 Print
Literal 1:1 true
Literal 2:1 "yes"
Literal 3:1 "no"
Wire 0:0 -> 1:0
Wire 1:2 -> 2:0
Wire 1:3 -> 3:0
`}
	sheet := scanOK(t, src, "main.dc")

	sink := Generate(sheet)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())

	ops := decodeOpcodes(t, sheet.Text)
	require.Contains(t, ops, bytecode.JRCONFI)
	require.Contains(t, ops, bytecode.JRFI)
}

func TestGenerateFunctionCallEmitsCALLI(t *testing.T) {
	src := memSources{
		"lib.dc": `
Function Double (Integer n) -> (Integer result)
Node 0 Define Double
Node 1 Return Double
Wire 0:0 -> 1:0
`,
		"main.dc": `
Include "lib.dc"
Node 0 Start
Node 1 Double
Node 2 Print
Literal 1:0 21
Wire 0:0 -> 2:0
Wire 1:1 -> 2:1
`,
	}
	sheet := scanOK(t, src, "main.dc")

	sink := Generate(sheet)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())

	ops := decodeOpcodes(t, sheet.Text)
	require.Contains(t, ops, bytecode.CALLI)

	foundFunc := false
	for _, m := range sheet.LinkMetas {
		if m.Name == "Double" {
			foundFunc = true
		}
	}
	require.True(t, foundFunc)

	// lib.dc is a separate sheet in its own right; generating it
	// independently must succeed and produce code for its Define entry.
	require.Len(t, sheet.Includes, 1)
	libSink := Generate(sheet.Includes[0])
	require.False(t, libSink.HasErrors(), "%v", libSink.Diagnostics())
	require.NotEmpty(t, sheet.Includes[0].Text)
}

func TestGenerateSubroutineCallSequencesExecutionAndValue(t *testing.T) {
	src := memSources{
		"lib.dc": `
Subroutine Tick (Integer step) -> (Integer total)
Node 0 Define Tick
Node 1 Return Tick
Wire 0:0 -> 1:0
Wire 0:1 -> 1:1
`,
		"main.dc": `
Include "lib.dc"
Node 0 Start
Node 1 Tick
Node 2 Print
Literal 1:1 5
Wire 0:0 -> 1:0
Wire 1:2 -> 2:0
Wire 1:3 -> 2:1
`,
	}
	sheet := scanOK(t, src, "main.dc")

	sink := Generate(sheet)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())

	ops := decodeOpcodes(t, sheet.Text)
	require.Contains(t, ops, bytecode.CALLI)
	require.Contains(t, ops, bytecode.SYSCALL)

	lib := sheet.Includes[0]
	libSink := Generate(lib)
	require.False(t, libSink.HasErrors(), "%v", libSink.Diagnostics())
	require.NotEmpty(t, lib.Text)

	// Tick's own body must actually contain code (the Define -> Return
	// prologue and value pass-through), not just a PUSHNF/RETN shell.
	libOps := decodeOpcodes(t, lib.Text)
	require.Contains(t, libOps, bytecode.POPF)
	require.Contains(t, libOps, bytecode.DEREFI)
}
