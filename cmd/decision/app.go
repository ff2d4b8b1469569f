// Package main is the decision CLI driver: a single urfave/cli/v2 command
// that loads a sheet from disk, runs it through internal/sema,
// internal/codegen and internal/link, then either disassembles, archives,
// or executes the result. It is deliberately the only place in the module
// that touches os.Args, a logger, or an exit code -- every lower layer
// returns a plain error or a *diag.Sink, matching the ambient stack's
// logging section recorded in DESIGN.md.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/decisionlang/decision/internal/bytecode"
	"github.com/decisionlang/decision/internal/codegen"
	"github.com/decisionlang/decision/internal/diag"
	"github.com/decisionlang/decision/internal/disasm"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/link"
	"github.com/decisionlang/decision/internal/loader"
	"github.com/decisionlang/decision/internal/objfile"
	"github.com/decisionlang/decision/internal/vm"
)

// buildVersion is canonicalized through golang.org/x/mod/semver before
// --version prints it, so a hand-edited valid tag missing its patch
// component (v0.1, say) prints as v0.1.0. A tag semver does not accept as
// valid is printed unchanged.
const buildVersion = "v0.1.0"

// Exit codes, exactly as spec.md §6: 0 success, 1 compile error, 2 link
// error, 3 runtime error, 4 usage error.
const (
	exitOK           = 0
	exitCompileError = 1
	exitLinkError    = 2
	exitRuntimeError = 3
	exitUsageError   = 4
)

// exitError pairs a failure with the exit code its phase of the pipeline
// maps to, so run can report the right code without re-deriving it from
// error text.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(code int, err error) *exitError { return &exitError{code: code, err: err} }

func versionString() string {
	if !semver.IsValid(buildVersion) {
		return buildVersion
	}
	return semver.Canonical(buildVersion)
}

// run builds and executes the CLI app against args, writing to stdout/
// stderr, and returns the process exit code. main's only job is handing
// run os.Args and os.Exit-ing its result.
func run(args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)

	err := app.Run(args)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if stderrors.As(err, &ee) {
		fmt.Fprintln(stderr, ee.err)
		return ee.code
	}
	fmt.Fprintln(stderr, err)
	return exitUsageError
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "decision",
		Usage:     "compile, link, disassemble or run a Decision sheet",
		ArgsUsage: "SOURCE",
		Version:   versionString(),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "c", Usage: "compile and link only; do not run"},
			&cli.BoolFlag{Name: "d", Usage: "disassemble the linked program to stdout"},
			&cli.StringFlag{Name: "o", Usage: "write the linked program as an object file to PATH"},
			&cli.BoolFlag{Name: "O0", Usage: "disable size reduction (default)"},
			&cli.BoolFlag{Name: "O1", Usage: "enable size reduction"},
			&cli.BoolFlag{Name: "D", Usage: "retain debug info; also selects development-mode logging"},
		},
		Action: func(c *cli.Context) error {
			return action(c, stdout)
		},
	}
}

func action(c *cli.Context, stdout io.Writer) error {
	path := c.Args().First()
	if path == "" {
		return fail(exitUsageError, errors.New("missing source path"))
	}
	if c.NArg() > 1 {
		return fail(exitUsageError, errors.Errorf("unexpected extra argument %q", c.Args().Get(1)))
	}
	if c.Bool("O1") && c.Bool("O0") {
		return fail(exitUsageError, errors.New("-O0 and -O1 are mutually exclusive"))
	}

	logger := newLogger(c.Bool("D"))
	defer func() { _ = logger.Sync() }()

	sheet, err := compileAndLink(path, c.Bool("D"), c.Bool("O1"), logger)
	if err != nil {
		return err
	}

	if c.Bool("d") {
		if err := disassemble(stdout, sheet); err != nil {
			return fail(exitLinkError, err)
		}
	}

	if objPath := c.String("o"); objPath != "" {
		if err := writeObject(objPath, sheet); err != nil {
			return fail(exitLinkError, err)
		}
	}

	if c.Bool("c") {
		return nil
	}

	machine, err := vm.New(sheet, stdout, logger)
	if err != nil {
		return fail(exitRuntimeError, err)
	}
	if err := machine.Run(context.Background()); err != nil {
		return fail(exitRuntimeError, err)
	}
	return nil
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		// zap's own construction failing means stderr/stdout is broken;
		// a no-op logger keeps the CLI usable rather than panicking.
		logger = zap.NewNop()
	}
	return logger
}

// compileAndLink runs the full pipeline -- loader.Load, then
// internal/codegen (with the -O1 size-reduction pass, when asked) over
// every reachable sheet, then internal/link -- and classifies the first
// failure into the compile-error or link-error exit code spec.md §6
// assigns its phase.
func compileAndLink(path string, debugIncluded, optimize bool, logger *zap.Logger) (*ir.Sheet, error) {
	sheet, sink := loader.Load(path, debugIncluded)
	if sink.HasErrors() {
		return nil, fail(exitCompileError, diagError(sink))
	}

	for _, s := range sheetsOf(sheet) {
		logger.Debug("generating", zap.String("sheet", s.FilePath))
		genSink := codegen.Generate(s)
		if genSink.HasErrors() {
			return nil, fail(exitCompileError, diagError(genSink))
		}
		if optimize {
			if err := codegen.Reduce(s); err != nil {
				return nil, fail(exitCompileError, errors.Wrap(err, "size reduction"))
			}
		}
	}

	if err := link.Link(sheet); err != nil {
		return nil, fail(exitLinkError, errors.Wrap(err, "link"))
	}
	return sheet, nil
}

// diagError renders every diagnostic in sink, one per line, as a single
// error value -- *diag.Sink already implements error this way.
func diagError(sink *diag.Sink) error { return sink }

// sheetsOf walks a sheet's Includes, matching internal/link's own
// findIncluded traversal, so every included sheet is generated before the
// root is linked.
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

func writeObject(path string, sheet *ir.Sheet) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create object file %q", path)
	}
	if err := objfile.Write(f, sheet); err != nil {
		f.Close()
		return errors.Wrapf(err, "write object file %q", path)
	}
	return errors.Wrapf(f.Close(), "close object file %q", path)
}

func disassemble(w io.Writer, sheet *ir.Sheet) error {
	sym := symbolicator(sheet)
	if err := disasm.Text(w, sheet.Text, sym); err != nil {
		return errors.Wrap(err, "disassemble text")
	}
	fmt.Fprintln(w)
	return errors.Wrap(disasm.Data(w, sheet.Data), "disassemble data")
}

// symbolicator resolves an absolute code/data address (or, for CALLCI, a
// LinkMetas index) back to the function or C-function name it belongs to,
// by walking every sheet reachable from the linked root: internal/link
// rewrites every Function.CodeOffset and Variable.DataOffset in place to
// an absolute offset for every sheet in the include graph, not just the
// root, so the lookup has to walk the whole graph too.
func symbolicator(root *ir.Sheet) disasm.Symbolicator {
	funcsByOffset := map[int64]string{}
	varsByOffset := map[int64]string{}
	for _, s := range sheetsOf(root) {
		for _, f := range s.Functions {
			funcsByOffset[int64(f.CodeOffset)] = f.Name
		}
		for _, v := range s.Variables {
			varsByOffset[int64(v.DataOffset)] = v.Meta.Name
		}
	}

	return func(op bytecode.Op, offset int, value int64) string {
		if op == bytecode.CALLCI {
			if value >= 0 && int(value) < len(root.LinkMetas) {
				return root.LinkMetas[value].Name
			}
			return ""
		}
		if name, ok := funcsByOffset[value]; ok {
			return name
		}
		if name, ok := varsByOffset[value]; ok {
			return name
		}
		return ""
	}
}
