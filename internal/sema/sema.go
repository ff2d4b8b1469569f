// Package sema performs semantic analysis: it turns a parsed syntax.Tree
// into a fully-resolved, type-reduced ir.Sheet. It runs in four passes --
// scanProperties, scanNodes, reduceTypes, detectLoops -- mirroring
// dsemantic.h's d_semantic_scan_properties/scan_nodes/reduce_types/
// detect_loops, in that exact order.
package sema

import (
	"github.com/decisionlang/decision/internal/diag"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/syntax"
)

// SourceProvider resolves an Include path to source text. internal/loader
// supplies the filesystem-backed implementation; tests can supply an
// in-memory one.
type SourceProvider interface {
	ReadSheet(path string) (string, error)
}

// Scan parses and semantically analyzes the sheet at path, recursively
// scanning its includes. priors is the chain of sheet paths currently
// being scanned, used to reject circular includes; pass nil for a
// top-level call. debugIncluded propagates unconditionally to every
// included sheet once set, per the decision recorded in DESIGN.md.
func Scan(sp SourceProvider, path string, priors []string, debugIncluded bool) (*ir.Sheet, *diag.Sink) {
	sink := diag.NewSink(path)

	for _, p := range priors {
		if p == path {
			sink.Add(diag.CircularInclude, 0, 0, "sheet includes itself, directly or indirectly: %s", p)
			return nil, sink
		}
	}

	src, err := sp.ReadSheet(path)
	if err != nil {
		sink.Add(diag.LexError, 0, 0, "%s", err.Error())
		return nil, sink
	}

	tree, perr := syntax.Parse(src)
	if perr != nil {
		sink.Add(diag.SyntaxError, 0, 0, "%s", perr.Error())
		return nil, sink
	}

	sheet := ir.NewSheet(path)
	sheet.DebugIncluded = debugIncluded

	scanProperties(sp, sheet, tree, append(append([]string{}, priors...), path), debugIncluded, sink)
	scanNodes(sheet, tree, sink)
	reduceTypes(sheet, sink)
	detectLoops(sheet, sink)

	return sheet, sink
}
