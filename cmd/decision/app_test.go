package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/decisionlang/decision/internal/objfile"
)

func writeSource(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.dc")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunHelloWorldExecutesAndPrints(t *testing.T) {
	path := writeSource(t, `
Node 0 Start
Node 1 Print
Wire 0:0 -> 1:0
Literal 1:1 "Hello, world!"
`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", path}, &stdout, &stderr)
	require.Equal(t, exitOK, code)
	require.Equal(t, "Hello, world!\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestRunMissingSourceIsUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"decision"}, &stdout, &stderr)
	require.Equal(t, exitUsageError, code)
	require.NotEmpty(t, stderr.String())
}

func TestRunUnknownFlagIsUsageError(t *testing.T) {
	path := writeSource(t, "Node 0 Start\n")
	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", "--not-a-real-flag", path}, &stdout, &stderr)
	require.Equal(t, exitUsageError, code)
}

func TestRunCompileErrorExitsWithCode1(t *testing.T) {
	path := writeSource(t, "Node 0 Bogus\n")
	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", path}, &stdout, &stderr)
	require.Equal(t, exitCompileError, code)
	require.Contains(t, stderr.String(), "NameNotFound")
}

func TestRunCircularIncludeExitsWithCode1(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dc"), []byte("Include \"b.dc\"\nNode 0 Start\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.dc"), []byte("Include \"a.dc\"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", filepath.Join(dir, "a.dc")}, &stdout, &stderr)
	require.Equal(t, exitCompileError, code)
	require.Contains(t, stderr.String(), "CircularInclude")
}

func TestRunDivideByZeroExitsWithCode3(t *testing.T) {
	path := writeSource(t, `
Node 0 Start
Node 1 Divide
Node 2 Print
Wire 0:0 -> 2:0
Wire 1:2 -> 2:1
Literal 1:0 1
Literal 1:1 0
`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", path}, &stdout, &stderr)
	require.Equal(t, exitRuntimeError, code)
	require.NotEmpty(t, stderr.String())
}

func TestRunCompileOnlyDoesNotExecute(t *testing.T) {
	path := writeSource(t, `
Node 0 Start
Node 1 Print
Wire 0:0 -> 1:0
Literal 1:1 "should not print"
`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", "-c", path}, &stdout, &stderr)
	require.Equal(t, exitOK, code)
	require.Empty(t, stdout.String())
}

func TestRunDisassembleFlagPrintsOpcodes(t *testing.T) {
	path := writeSource(t, `
Node 0 Start
Node 1 Print
Wire 0:0 -> 1:0
Literal 1:1 "Hello, world!"
`)
	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", "-c", "-d", path}, &stdout, &stderr)
	require.Equal(t, exitOK, code)
	require.Contains(t, stdout.String(), "SYSCALL")
	require.Contains(t, stdout.String(), "RETN")
}

func TestRunSizeReductionFlagShrinksAndStillExecutes(t *testing.T) {
	src := `
Node 0 Start
Node 1 Print
Wire 0:0 -> 1:0
Literal 1:1 "Hello, world!"
`
	path := writeSource(t, src)

	var plain, reduced bytes.Buffer
	require.Equal(t, exitOK, run([]string{"decision", path}, &plain, &bytes.Buffer{}))
	require.Equal(t, exitOK, run([]string{"decision", "-O1", path}, &reduced, &bytes.Buffer{}))
	require.Equal(t, plain.String(), reduced.String(), "size reduction must not change behavior")

	// The reduced listing shows the shrunk frame reservation.
	var disasmOut, stderr bytes.Buffer
	require.Equal(t, exitOK, run([]string{"decision", "-c", "-d", "-O1", path}, &disasmOut, &stderr))
	require.Contains(t, disasmOut.String(), "PUSHNB")
	require.NotContains(t, disasmOut.String(), "PUSHNF")
}

func TestRunConflictingOptimizationFlagsIsUsageError(t *testing.T) {
	path := writeSource(t, "Node 0 Start\n")
	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", "-O0", "-O1", path}, &stdout, &stderr)
	require.Equal(t, exitUsageError, code)
}

func TestRunWriteObjectFlagProducesReadableObject(t *testing.T) {
	path := writeSource(t, `
Node 0 Start
Node 1 Print
Wire 0:0 -> 1:0
Literal 1:1 "Hello, world!"
`)
	objPath := filepath.Join(filepath.Dir(path), "main.dco")

	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", "-c", "-o", objPath, path}, &stdout, &stderr)
	require.Equal(t, exitOK, code)

	f, err := os.Open(objPath)
	require.NoError(t, err)
	defer f.Close()

	obj, err := objfile.Read(f)
	require.NoError(t, err)
	require.NotEmpty(t, obj.Text)
}

func TestRunVersionFlagPrintsCanonicalSemver(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"decision", "--version"}, &stdout, &stderr)
	require.Equal(t, exitOK, code)
	require.True(t, strings.Contains(stdout.String(), "v0.1.0"))
}
