// Package syntax implements the lexer and recursive-descent parser that
// turn Decision sheet source text into a syntax tree. It is a thin,
// out-of-scope collaborator per the specification: its only contract with
// the rest of the toolchain is the Tree it hands to internal/sema.
package syntax

import "github.com/decisionlang/decision/internal/types"

// Literal is a decoded literal value, tagged by its concrete type.
type Literal struct {
	Type types.T
	Int  int64
	Flt  float64
	Str  string
	Bool bool
}

// Param is one input or output of a Function/Subroutine declaration.
type Param struct {
	Name string
	Type types.T
	Pos  Position
}

// Include is an `Include "path"` declaration.
type Include struct {
	Path string
	Pos  Position
}

// VariableDecl declares a sheet-level variable, with an optional default
// literal (the zero value of its type is used when absent).
type VariableDecl struct {
	Name    string
	Type    types.T
	Default *Literal
	Pos     Position
}

// FunctionDecl declares a pure function or, if Subroutine is set, a
// subroutine (a function with implicit leading/trailing Execution
// sockets).
type FunctionDecl struct {
	Name       string
	Subroutine bool
	Inputs     []Param
	Outputs    []Param
	Pos        Position
}

// NodeDecl places one node instance on the sheet: Name resolves, during
// semantic analysis, against variables, functions, includes, and the
// builtin registry.
type NodeDecl struct {
	Index int
	Name  string
	Pos   Position
}

// Socket addresses one socket of one node by (node index, socket index).
type Socket struct {
	Node, Index int
}

// WireDecl connects an output socket to an input socket.
type WireDecl struct {
	From, To Socket
	Pos      Position
}

// LiteralDecl overrides the default literal value of one input socket that
// has no incoming wire.
type LiteralDecl struct {
	Socket Socket
	Value  Literal
	Pos    Position
}

// Tree is the parsed form of one sheet's source text.
type Tree struct {
	Includes  []Include
	Variables []VariableDecl
	Functions []FunctionDecl
	Nodes     []NodeDecl
	Wires     []WireDecl
	Literals  []LiteralDecl
}
