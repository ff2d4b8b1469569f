// Package diag defines the diagnostic kinds the toolchain reports, and a
// per-sheet sink that accumulates them across a compile phase.
package diag

import "fmt"

// Kind identifies a class of diagnostic, matching the error taxonomy in the
// specification's error-handling design.
type Kind int

const (
	_ Kind = iota

	// Lex/parse phase.
	LexError
	SyntaxError

	// Semantic scan phase.
	NameNotFound
	CircularInclude
	RedefinedName

	// Type reduction phase.
	TypeMismatch
	AmbiguousType

	// Loop detection phase.
	CycleDetected
	RedundantNode // warning, not fatal

	// Linker.
	UnresolvedSymbol

	// VM traps.
	Runtime
)

func (k Kind) String() string {
	switch k {
	case LexError:
		return "LexError"
	case SyntaxError:
		return "SyntaxError"
	case NameNotFound:
		return "NameNotFound"
	case CircularInclude:
		return "CircularInclude"
	case RedefinedName:
		return "RedefinedName"
	case TypeMismatch:
		return "TypeMismatch"
	case AmbiguousType:
		return "AmbiguousType"
	case CycleDetected:
		return "CycleDetected"
	case RedundantNode:
		return "RedundantNode"
	case UnresolvedSymbol:
		return "UnresolvedSymbol"
	case Runtime:
		return "Runtime"
	default:
		return "Unknown"
	}
}

// IsWarning reports whether diagnostics of this kind should not, by
// themselves, stop the pipeline from advancing to the next phase.
func (k Kind) IsWarning() bool { return k == RedundantNode }

// Diagnostic is a single, single-line, file/line-prefixed report.
type Diagnostic struct {
	Kind    Kind
	File    string
	Line    int
	Col     int
	Message string
}

func (d Diagnostic) String() string {
	if d.File == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	if d.Col > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Col, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, d.Kind, d.Message)
}

// Sink accumulates diagnostics for one sheet across one compile phase. It
// implements error so it can be returned directly from a phase function;
// callers that only care about fatal-vs-not should use HasErrors.
type Sink struct {
	File  string
	items []Diagnostic
}

// NewSink creates an empty sink scoped to the given source file path.
func NewSink(file string) *Sink { return &Sink{File: file} }

// Add reports a diagnostic at the given line/column.
func (s *Sink) Add(kind Kind, line, col int, format string, args ...interface{}) {
	s.items = append(s.items, Diagnostic{
		Kind:    kind,
		File:    s.File,
		Line:    line,
		Col:     col,
		Message: fmt.Sprintf(format, args...),
	})
}

// Diagnostics returns every diagnostic reported so far, in report order.
func (s *Sink) Diagnostics() []Diagnostic { return s.items }

// HasErrors reports whether any non-warning diagnostic was reported. A
// compile phase must not hand its sheet to the next phase when this is
// true.
func (s *Sink) HasErrors() bool {
	for _, d := range s.items {
		if !d.Kind.IsWarning() {
			return true
		}
	}
	return false
}

// Error renders every diagnostic, one per line, satisfying the error
// interface so a *Sink can be returned and checked with errors.As.
func (s *Sink) Error() string {
	out := ""
	for i, d := range s.items {
		if i > 0 {
			out += "\n"
		}
		out += d.String()
	}
	return out
}

// Merge appends another sink's diagnostics onto s, e.g. when a sheet pulls
// in diagnostics surfaced while scanning an Include.
func (s *Sink) Merge(other *Sink) {
	if other == nil {
		return
	}
	s.items = append(s.items, other.items...)
}
