package sema

import (
	"testing"

	"github.com/decisionlang/decision/internal/diag"
	"github.com/decisionlang/decision/internal/types"
	"github.com/stretchr/testify/require"
)

// memSources is a SourceProvider backed by an in-memory map, for tests that
// have no filesystem to read from.
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

func TestScanHelloWorld(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Print
Wire 0:0 -> 1:0
Literal 1:1 "Hello, world!"
`}

	sheet, sink := Scan(src, "main.dc", nil, false)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	require.Equal(t, 0, sheet.StartNodeIndex)
	require.Equal(t, 1, sheet.NumStarts)
	require.Len(t, sheet.Nodes, 2)
	require.Equal(t, "Print", sheet.Nodes[1].Definition.Name)
	require.Equal(t, "Hello, world!", sheet.Nodes[1].LiteralValues[1].Str)
}

func TestScanArithmeticInfersInt(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Add
Node 2 Print
Wire 0:0 -> 2:0
Wire 1:2 -> 2:1
Literal 1:0 3
Literal 1:1 4
`}

	sheet, sink := Scan(src, "main.dc", nil, false)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	add := sheet.Nodes[1]
	require.Equal(t, types.Int, add.ReducedTypes[0])
	require.Equal(t, types.Int, add.ReducedTypes[1])
	require.Equal(t, types.Int, add.ReducedTypes[2])
}

func TestScanArithmeticPromotesToFloat(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Add
Node 2 Print
Wire 0:0 -> 2:0
Wire 1:2 -> 2:1
Literal 1:0 3
Literal 1:1 4.5
`}

	sheet, sink := Scan(src, "main.dc", nil, false)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	add := sheet.Nodes[1]
	require.Equal(t, types.Float, add.ReducedTypes[0])
	require.Equal(t, types.Float, add.ReducedTypes[1])
	require.Equal(t, types.Float, add.ReducedTypes[2])
}

func TestScanIncludeResolvesFunctionCall(t *testing.T) {
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
Node 1 Print
Wire 0:0 -> 1:0
Literal 1:1 "hi"
`,
	}

	sheet, sink := Scan(src, "main.dc", nil, false)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	require.Len(t, sheet.Includes, 1)
	require.Equal(t, "lib.dc", sheet.Includes[0].FilePath)
	require.Len(t, sheet.Includes[0].Functions, 1)
}

func TestScanCircularIncludeIsDiagnosed(t *testing.T) {
	src := memSources{
		"a.dc": `Include "b.dc"` + "\n" + `Node 0 Start`,
		"b.dc": `Include "a.dc"` + "\n" + `Node 0 Start`,
	}

	_, sink := Scan(src, "a.dc", nil, false)
	require.True(t, sink.HasErrors())
	found := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diag.CircularInclude {
			found = true
		}
	}
	require.True(t, found, "%v", sink.Diagnostics())
}

func TestScanTypeMismatchIsDiagnosed(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Not
Node 2 Add
Literal 1:0 true
Literal 2:1 2
Wire 1:1 -> 2:0
`}

	_, sink := Scan(src, "main.dc", nil, false)
	hasMismatch := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diag.TypeMismatch {
			hasMismatch = true
		}
	}
	require.True(t, hasMismatch, "%v", sink.Diagnostics())
}

func TestScanUnreachableNodeIsWarnedRedundant(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Print
Node 2 Add
Wire 0:0 -> 1:0
Literal 1:1 "hi"
Literal 2:0 1
Literal 2:1 2
`}

	sheet, sink := Scan(src, "main.dc", nil, false)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	found := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diag.RedundantNode {
			found = true
		}
	}
	require.True(t, found, "%v", sink.Diagnostics())
	_ = sheet
}

func TestScanExecutionCycleIsDiagnosed(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Branch
Literal 1:1 true
Wire 0:0 -> 1:0
Wire 1:2 -> 1:0
`}

	_, sink := Scan(src, "main.dc", nil, false)
	found := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diag.CycleDetected {
			found = true
		}
	}
	require.True(t, found, "%v", sink.Diagnostics())
}

func TestScanMissingStartIsNonFatal(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Print
Literal 0:1 "hi"
`}

	sheet, sink := Scan(src, "main.dc", nil, false)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	require.Equal(t, -1, sheet.StartNodeIndex)
	require.Equal(t, 0, sheet.NumStarts)
}

func TestScanDuplicateStartIsRedundantWarning(t *testing.T) {
	src := memSources{"main.dc": `
Node 0 Start
Node 1 Start
Node 2 Print
Wire 0:0 -> 2:0
Literal 2:1 "hi"
`}

	sheet, sink := Scan(src, "main.dc", nil, false)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())
	require.Equal(t, 0, sheet.StartNodeIndex)
	require.Equal(t, 2, sheet.NumStarts)
	foundRedundant := false
	for _, d := range sink.Diagnostics() {
		if d.Kind == diag.RedundantNode {
			foundRedundant = true
		}
	}
	require.True(t, foundRedundant)
}
