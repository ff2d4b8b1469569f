package ir

import "github.com/decisionlang/decision/internal/types"

// Variable is a sheet-scoped storage slot. It owns a getter definition (0
// inputs, 1 output of Meta.Type) and a setter definition (an Execution
// in/out pair plus one value input), both synthesized once during the
// property scan so that node-name resolution can treat "Get X"/"Set X"
// like any other node.
type Variable struct {
	Meta    SocketMeta
	Default LiteralValue

	GetterDefinition NodeDefinition
	SetterDefinition NodeDefinition

	Sheet *Sheet // owning sheet, for cross-sheet linking

	// DataOffset is this variable's byte offset within its owning
	// sheet's own Data section, assigned by internal/codegen.
	// internal/link adds the owning sheet's arena base once the whole
	// program is flattened; see DESIGN.md's whole-program-flattening
	// note for why that's a link-time, not codegen-time, computation.
	DataOffset int
}

// Function is a user-defined function or subroutine. A pure Function has
// no Execution sockets anywhere; a Subroutine adds a leading Execution
// input to DefineDefinition's outputs and ReturnDefinition's inputs (and
// a trailing Execution output to the call site) so it can be sequenced
// like any other action node.
type Function struct {
	Name       string
	Subroutine bool
	Inputs     []SocketMeta
	Outputs    []SocketMeta

	// CallDefinition is what a "Call F" node instance resolves to:
	// inputs = Inputs (+ leading Execution if Subroutine), outputs =
	// Outputs (+ trailing Execution if Subroutine).
	CallDefinition NodeDefinition

	// DefineDefinition is what the function's own "Define F" entry
	// node resolves to: 0 inputs, outputs = Inputs (+ leading
	// Execution if Subroutine).
	DefineDefinition NodeDefinition

	// ReturnDefinition is what a "Return F" node resolves to: inputs =
	// Outputs (+ leading Execution if Subroutine), 0 outputs.
	ReturnDefinition NodeDefinition

	DefineNodeIndex  int // index into Sheet.Nodes of the (unique) Define node
	ReturnNodeIndices []int

	Sheet *Sheet

	// CodeOffset is this function's entry point, assigned by
	// internal/codegen and rewritten to an absolute address by
	// internal/link.
	CodeOffset int
}

// LinkType classifies what a LinkMeta entry's Ptr ultimately resolves to.
type LinkType int

const (
	LinkDataStringLiteral LinkType = iota
	LinkVariable
	LinkVariablePointer
	LinkVariableStringDefault
	LinkFunction
	LinkCFunction
)

func (t LinkType) String() string {
	switch t {
	case LinkDataStringLiteral:
		return "DataStringLiteral"
	case LinkVariable:
		return "Variable"
	case LinkVariablePointer:
		return "VariablePointer"
	case LinkVariableStringDefault:
		return "VariableStringDefault"
	case LinkFunction:
		return "Function"
	case LinkCFunction:
		return "CFunction"
	default:
		return "Unknown"
	}
}

// Unresolved marks a LinkMeta.Ptr that has not yet been resolved by the
// linker.
const Unresolved = -1

// LinkMeta is one entry in a sheet's relocation table: a named external
// reference (variable, function, C-function, or literal constant) with a
// Ptr that the linker resolves to a final whole-program offset.
//
// LinkDataStringLiteral is reused for every literal constant a sheet
// emits (not just strings — see internal/codegen's literal lowering):
// each one lives in Data exactly like a Variable's default, so it goes
// through the same relocation machinery.
type LinkMeta struct {
	Type LinkType
	Name string

	// Sheet is the sheet that owns the byte Ptr is an offset into: the
	// sheet currently being generated, for a same-sheet Variable/
	// Function/literal reference resolved immediately at codegen time;
	// the sheet internal/link's findIncluded pass locates, for a name
	// pulled in through an Include.
	Sheet *Sheet

	// Ref is resolved by internal/link's findIncluded pass for
	// cross-sheet references: *Variable or *Function. nil for same-sheet
	// references and literal constants, which need no name search.
	Ref interface{}

	// Ptr is Sheet-local before linking (a Data or Text offset within
	// Sheet's own buffers) and an absolute whole-program offset after
	// internal/link flattens the include graph.
	Ptr int
}

// InstructionToLink records one relocation site: the byte offset of an
// instruction's immediate operand within Text, paired with the LinkMetas
// index describing what value belongs there.
type InstructionToLink struct {
	InsOffset     int
	LinkMetaIndex int
}

// Sheet is one compiled unit: the parsed and resolved graph, plus (after
// internal/codegen and internal/link run) its generated bytecode.
type Sheet struct {
	FilePath string

	// Includes holds the sheets this one names in an Include
	// declaration, in declaration order, deduplicated by path.
	Includes []*Sheet

	Variables []*Variable
	Functions []*Function
	Nodes     []*Node

	// Wires is sorted by Wire.Compare; internal/ir's search helpers
	// depend on this invariant.
	Wires []Wire

	// StartNodeIndex is the index of the first (lowest-index) Start
	// node, or -1 if the sheet has none. NumStarts counts all of them;
	// every Start beyond the first is flagged RedundantNode.
	StartNodeIndex int
	NumStarts      int

	// DebugIncluded marks that this sheet (or a sheet that includes it)
	// was compiled with debug info requested; it propagates down the
	// include graph unconditionally, see DESIGN.md.
	DebugIncluded bool

	// Generated code, filled in by internal/codegen then rewritten by
	// internal/link.
	Text     []byte
	Data     []byte
	// DataTypes tags each 8-byte slot of Data (slot i covers bytes
	// [8*i, 8*i+8)) with the type internal/vm should read it back as.
	// Data itself stays an untyped []byte so internal/objfile can
	// round-trip it verbatim; only the VM's in-memory read path needs
	// the tag.
	DataTypes []types.T
	// Strings holds the backing storage for every String-typed Data
	// slot: such a slot's 8 bytes hold an index into Strings rather
	// than the text inline, since Go strings aren't fixed-width.
	Strings   []string
	LinkMetas []LinkMeta
	InsLinks  []InstructionToLink
	Main      int // entry point: Text offset of the first Start's code, Unresolved if none

	Linked bool
}

// NewSheet returns an empty sheet rooted at path.
func NewSheet(path string) *Sheet {
	return &Sheet{FilePath: path, StartNodeIndex: -1, Main: Unresolved}
}

// VariableGetterDefinition returns a synthesized 0-input/1-output
// definition for reading v.
func VariableGetterDefinition(name string, typ types.T) NodeDefinition {
	return NodeDefinition{
		Name:             "Get " + name,
		Sockets:          []SocketMeta{{Name: name, Type: typ}},
		StartOutputIndex: 0,
	}
}

// VariableSetterDefinition returns a synthesized definition for writing
// v: an Execution in/out pair bracketing the value input, so a setter
// sequences like any other action node.
func VariableSetterDefinition(name string, typ types.T) NodeDefinition {
	return NodeDefinition{
		Name: "Set " + name,
		Sockets: []SocketMeta{
			{Name: "", Type: types.Execution},
			{Name: name, Type: typ},
			{Name: "", Type: types.Execution},
		},
		StartOutputIndex: 2,
	}
}
