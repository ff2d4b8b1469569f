package objfile

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decisionlang/decision/internal/codegen"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/link"
	"github.com/decisionlang/decision/internal/sema"
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

func buildAndLink(t *testing.T, src memSources, main string) *ir.Sheet {
	t.Helper()
	sheet, sink := sema.Scan(src, main, nil, false)
	require.False(t, sink.HasErrors(), "%v", sink.Diagnostics())

	for _, s := range sheetsOf(sheet) {
		genSink := codegen.Generate(s)
		require.False(t, genSink.HasErrors(), "%v", genSink.Diagnostics())
	}

	require.NoError(t, link.Link(sheet))
	return sheet
}

func sheetsOf(root *ir.Sheet) []*ir.Sheet {
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

func TestWriteReadRoundTripsTextMainData(t *testing.T) {
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
	sheet := buildAndLink(t, src, "main.dc")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sheet))

	obj, err := Read(&buf)
	require.NoError(t, err)

	require.Equal(t, sheet.Text, obj.Text)
	require.Equal(t, int64(sheet.Main), obj.Main)
	require.Equal(t, sheet.Data, obj.Data)
	require.Len(t, obj.LinkMetas, len(sheet.LinkMetas))
	require.Len(t, obj.Relocs, len(sheet.InsLinks))
	require.Len(t, obj.Vars, 1)
	require.Equal(t, "Counter", obj.Vars[0].Name)
}

func TestWriteReadRoundTripsFunctionsAndIncludes(t *testing.T) {
	src := memSources{
		"lib.dc": `
Function Double (Integer n) -> (Integer result)
Node 0 Define Double
Node 1 Return Double
Node 2 Add
Wire 2:2 -> 1:0
Wire 0:0 -> 2:0
Wire 0:0 -> 2:1
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
	sheet := buildAndLink(t, src, "main.dc")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sheet))

	obj, err := Read(&buf)
	require.NoError(t, err)

	require.Equal(t, []string{"lib.dc"}, obj.Includes)

	foundDouble := false
	for _, f := range obj.Funcs {
		if f.Name == "Double" {
			foundDouble = true
		}
	}
	require.True(t, foundDouble)
}

func TestWriteRejectsUnlinkedSheet(t *testing.T) {
	sheet := ir.NewSheet("unlinked.dc")
	var buf bytes.Buffer
	require.Error(t, Write(&buf, sheet))
}

func TestReadRejectsTruncatedInput(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
}
