// Package builtin is the process-wide registry of node definitions that
// every sheet's node-name resolution falls back to once a name fails to
// match a variable, function, or include. It mirrors dcfunc.h's CFunction:
// a node is either lowered straight to a core opcode by internal/codegen
// (arithmetic, comparison, boolean), handled as a codegen special form
// that emits its own jumps (Start and the control-flow nodes), or bridged
// to a Go function invoked through the VM's SYSCALL table (Print, Concat,
// ToString).
package builtin

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/types"
)

// Value is a runtime value passed to and returned from a bridged Func.
type Value struct {
	Type types.T
	Int  int64
	Flt  float64
	Str  string
	Bool bool
}

func (v Value) String() string {
	switch v.Type {
	case types.Int:
		return strconv.FormatInt(v.Int, 10)
	case types.Float:
		return strconv.FormatFloat(v.Flt, 'g', -1, 64)
	case types.Bool:
		return strconv.FormatBool(v.Bool)
	case types.String:
		return v.Str
	default:
		return ""
	}
}

// Context is what a bridged Func can see of the running machine. It is
// kept minimal and VM-agnostic so internal/builtin never imports
// internal/vm.
type Context interface {
	Stdout() io.Writer
}

// Func is the Go implementation behind a SYSCALL-bridged node.
type Func func(ctx Context, args []Value) ([]Value, error)

// Kind says how internal/codegen must lower a node bound to this entry.
type Kind int

const (
	// KindControlFlow nodes (Start, Branch/If, For, While) are codegen
	// special forms: their shape determines which jump opcodes are
	// emitted, and they never go through CALLC.
	KindControlFlow Kind = iota
	// KindOpcode nodes lower straight to one core opcode family, picked
	// by the node's reduced socket type (e.g. ADD vs ADDF).
	KindOpcode
	// KindCFunction nodes lower to a CALLC/SYSCALL invoking Call.
	KindCFunction
)

// Entry is one registered builtin node: its definition (for name
// resolution and type reduction) plus how to lower and, if applicable,
// execute it.
type Entry struct {
	Definition *ir.NodeDefinition
	Kind       Kind

	// Opcode names the core instruction family for KindOpcode entries,
	// e.g. "ADD", "CLT". internal/codegen appends the immediate-width
	// and float-ness suffix itself.
	Opcode string

	// JoinInputs marks a KindOpcode entry whose output type, once both
	// inputs are concrete, is the narrowest concrete type that is their
	// join rather than their intersection (so Int+Float reduces to
	// Float instead of failing to unify).
	JoinInputs bool

	// Call is the Go implementation for KindCFunction entries.
	Call Func

	// SyscallIndex is this entry's fixed slot in internal/vm's SYSCALL
	// table. internal/codegen reads it directly instead of guessing the
	// table layout from the node's name, so the table has exactly one
	// owner: this registration.
	SyscallIndex byte
}

var registry = map[string]*Entry{}

func register(e *Entry) {
	if _, dup := registry[e.Definition.Name]; dup {
		panic("builtin: duplicate registration for " + e.Definition.Name)
	}
	registry[e.Definition.Name] = e
}

func alias(name, target string) {
	e, ok := registry[target]
	if !ok {
		panic("builtin: alias target not registered: " + target)
	}
	registry[name] = e
}

// Lookup returns the registered entry for name, if any.
func Lookup(name string) (*Entry, bool) {
	e, ok := registry[name]
	return e, ok
}

// All returns every registered entry, sorted by node name, for
// deterministic iteration (diagnostics, `decision --list-nodes`-style
// tooling, tests).
func All() []*Entry {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Entry, 0, len(names))
	for _, n := range names {
		out = append(out, registry[n])
	}
	return out
}

func execSocket() ir.SocketMeta { return ir.SocketMeta{Type: types.Execution} }

func init() {
	registerControlFlow()
	registerArithmetic()
	registerComparison()
	registerBoolean()
	registerCFunctions()
}

func registerControlFlow() {
	register(&Entry{
		Kind: KindControlFlow,
		Definition: &ir.NodeDefinition{
			Name:             "Start",
			Description:      "Entry point: fires once when the sheet's VM starts.",
			Sockets:          []ir.SocketMeta{execSocket()},
			StartOutputIndex: 0,
		},
	})

	register(&Entry{
		Kind: KindControlFlow,
		Definition: &ir.NodeDefinition{
			Name:        "Branch",
			Description: "Runs the True or False execution output depending on Condition.",
			Sockets: []ir.SocketMeta{
				execSocket(),
				{Name: "Condition", Type: types.Bool},
				{Name: "True", Type: types.Execution},
				{Name: "False", Type: types.Execution},
			},
			StartOutputIndex: 2,
		},
	})
	alias("If", "Branch")

	register(&Entry{
		Kind: KindControlFlow,
		Definition: &ir.NodeDefinition{
			Name:        "For",
			Description: "Runs Loop Body once per integer in [From, To) stepping by Step, then runs Completed.",
			Sockets: []ir.SocketMeta{
				execSocket(),
				{Name: "From", Type: types.Int},
				{Name: "To", Type: types.Int},
				{Name: "Step", Type: types.Int, Default: ir.LiteralValue{Type: types.Int, Int: 1}},
				{Name: "Loop Body", Type: types.Execution},
				{Name: "Index", Type: types.Int},
				{Name: "Completed", Type: types.Execution},
			},
			StartOutputIndex: 4,
		},
	})

	register(&Entry{
		Kind: KindControlFlow,
		Definition: &ir.NodeDefinition{
			Name:        "While",
			Description: "Runs Loop Body while Condition evaluates true, then runs Completed.",
			Sockets: []ir.SocketMeta{
				execSocket(),
				{Name: "Condition", Type: types.Bool},
				{Name: "Loop Body", Type: types.Execution},
				{Name: "Completed", Type: types.Execution},
			},
			StartOutputIndex: 2,
		},
	})
}

func binaryNumber(name, opcode string) *Entry {
	return &Entry{
		Kind:       KindOpcode,
		Opcode:     opcode,
		JoinInputs: true,
		Definition: &ir.NodeDefinition{
			Name: name,
			Sockets: []ir.SocketMeta{
				{Name: "A", Type: types.Number},
				{Name: "B", Type: types.Number},
				{Name: "Result", Type: types.Number},
			},
			StartOutputIndex: 2,
		},
	}
}

func registerArithmetic() {
	register(binaryNumber("Add", "ADD"))
	register(binaryNumber("Subtract", "SUB"))
	register(binaryNumber("Multiply", "MUL"))
	register(binaryNumber("Divide", "DIV"))
	register(binaryNumber("Modulo", "MOD"))
}

func comparison(name, opcode string) *Entry {
	return &Entry{
		Kind:   KindOpcode,
		Opcode: opcode,
		Definition: &ir.NodeDefinition{
			Name: name,
			Sockets: []ir.SocketMeta{
				{Name: "A", Type: types.Number},
				{Name: "B", Type: types.Number},
				{Name: "Result", Type: types.Bool},
			},
			StartOutputIndex: 2,
		},
	}
}

func registerComparison() {
	register(&Entry{
		Kind:   KindOpcode,
		Opcode: "CEQ",
		Definition: &ir.NodeDefinition{
			Name: "Equal",
			Sockets: []ir.SocketMeta{
				{Name: "A", Type: types.VarAny},
				{Name: "B", Type: types.VarAny},
				{Name: "Result", Type: types.Bool},
			},
			StartOutputIndex: 2,
		},
	})
	register(comparison("LessThan", "CLT"))
	register(comparison("LessThanOrEqual", "CLEQ"))
	register(comparison("MoreThan", "CMT"))
	register(comparison("MoreThanOrEqual", "CMEQ"))
}

func binaryBool(name, opcode string) *Entry {
	return &Entry{
		Kind:   KindOpcode,
		Opcode: opcode,
		Definition: &ir.NodeDefinition{
			Name: name,
			Sockets: []ir.SocketMeta{
				{Name: "A", Type: types.Bool},
				{Name: "B", Type: types.Bool},
				{Name: "Result", Type: types.Bool},
			},
			StartOutputIndex: 2,
		},
	}
}

func registerBoolean() {
	register(binaryBool("And", "AND"))
	register(binaryBool("Or", "OR"))
	register(binaryBool("Xor", "XOR"))
	register(&Entry{
		Kind:   KindOpcode,
		Opcode: "NOT",
		Definition: &ir.NodeDefinition{
			Name: "Not",
			Sockets: []ir.SocketMeta{
				{Name: "A", Type: types.Bool},
				{Name: "Result", Type: types.Bool},
			},
			StartOutputIndex: 1,
		},
	})
}

func registerCFunctions() {
	register(&Entry{
		Kind:         KindCFunction,
		Call:         printFunc,
		SyscallIndex: 0,
		Definition: &ir.NodeDefinition{
			Name:        "Print",
			Description: "Writes every connected value, space-separated, followed by a newline.",
			Sockets: []ir.SocketMeta{
				execSocket(),
				{Name: "Value", Type: types.VarAny},
				execSocket(),
			},
			StartOutputIndex: 2,
			InfiniteInputs:   true,
		},
	})

	register(&Entry{
		Kind:         KindCFunction,
		Call:         concatFunc,
		SyscallIndex: 1,
		Definition: &ir.NodeDefinition{
			Name: "Concat",
			Sockets: []ir.SocketMeta{
				{Name: "A", Type: types.String},
				{Name: "B", Type: types.String},
				{Name: "Result", Type: types.String},
			},
			StartOutputIndex: 2,
		},
	})

	register(&Entry{
		Kind:         KindCFunction,
		Call:         toStringFunc,
		SyscallIndex: 2,
		Definition: &ir.NodeDefinition{
			Name: "ToString",
			Sockets: []ir.SocketMeta{
				{Name: "Value", Type: types.VarAny},
				{Name: "Result", Type: types.String},
			},
			StartOutputIndex: 1,
		},
	})

	register(&Entry{
		Kind:         KindCFunction,
		Call:         parseIntFunc,
		SyscallIndex: 3,
		Definition: &ir.NodeDefinition{
			Name: "ParseInt",
			Sockets: []ir.SocketMeta{
				{Name: "Value", Type: types.String},
				{Name: "Result", Type: types.Int},
			},
			StartOutputIndex: 1,
		},
	})

	register(&Entry{
		Kind:         KindCFunction,
		Call:         parseFloatFunc,
		SyscallIndex: 4,
		Definition: &ir.NodeDefinition{
			Name: "ParseFloat",
			Sockets: []ir.SocketMeta{
				{Name: "Value", Type: types.String},
				{Name: "Result", Type: types.Float},
			},
			StartOutputIndex: 1,
		},
	})
}

func printFunc(ctx Context, args []Value) ([]Value, error) {
	for i, a := range args {
		if i > 0 {
			if _, err := io.WriteString(ctx.Stdout(), " "); err != nil {
				return nil, err
			}
		}
		if _, err := io.WriteString(ctx.Stdout(), a.String()); err != nil {
			return nil, err
		}
	}
	_, err := io.WriteString(ctx.Stdout(), "\n")
	return nil, err
}

func concatFunc(_ Context, args []Value) ([]Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("builtin: Concat expects 2 arguments, got %d", len(args))
	}
	return []Value{{Type: types.String, Str: args[0].Str + args[1].Str}}, nil
}

func toStringFunc(_ Context, args []Value) ([]Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("builtin: ToString expects 1 argument, got %d", len(args))
	}
	return []Value{{Type: types.String, Str: args[0].String()}}, nil
}

func parseIntFunc(_ Context, args []Value) ([]Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("builtin: ParseInt expects 1 argument, got %d", len(args))
	}
	v, err := strconv.ParseInt(args[0].Str, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("builtin: ParseInt: %w", err)
	}
	return []Value{{Type: types.Int, Int: v}}, nil
}

func parseFloatFunc(_ Context, args []Value) ([]Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("builtin: ParseFloat expects 1 argument, got %d", len(args))
	}
	v, err := strconv.ParseFloat(args[0].Str, 64)
	if err != nil {
		return nil, fmt.Errorf("builtin: ParseFloat: %w", err)
	}
	return []Value{{Type: types.Float, Flt: v}}, nil
}
