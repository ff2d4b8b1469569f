package sema

import (
	"github.com/decisionlang/decision/internal/diag"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/syntax"
	"github.com/decisionlang/decision/internal/types"
)

// scanProperties populates sheet.Includes, sheet.Variables and
// sheet.Functions from tree. Includes are recursively scanned here so that
// name resolution in scanNodes can search a fully-built include graph.
func scanProperties(sp SourceProvider, sheet *ir.Sheet, tree *syntax.Tree, priors []string, debugIncluded bool, sink *diag.Sink) {
	for _, inc := range tree.Includes {
		childSheet, childSink := Scan(sp, inc.Path, priors, debugIncluded)
		sink.Merge(childSink)
		if childSheet == nil {
			continue
		}
		sheet.Includes = append(sheet.Includes, childSheet)
	}

	for _, v := range tree.Variables {
		def := literalDefault(v.Type, v.Default)
		sheet.Variables = append(sheet.Variables, &ir.Variable{
			Meta:             ir.SocketMeta{Name: v.Name, Type: v.Type, Default: def},
			Default:          def,
			GetterDefinition: namedGetter(v.Name, v.Type),
			SetterDefinition: namedSetter(v.Name, v.Type),
			Sheet:            sheet,
		})
	}

	for _, f := range tree.Functions {
		sheet.Functions = append(sheet.Functions, newFunction(sheet, f))
	}
}

func namedGetter(name string, typ types.T) ir.NodeDefinition {
	d := ir.VariableGetterDefinition(name, typ)
	return d
}

func namedSetter(name string, typ types.T) ir.NodeDefinition {
	d := ir.VariableSetterDefinition(name, typ)
	return d
}

func literalDefault(typ types.T, lit *syntax.Literal) ir.LiteralValue {
	if lit == nil {
		return ir.LiteralValue{Type: typ}
	}
	return ir.LiteralValue{Type: lit.Type, Int: lit.Int, Flt: lit.Flt, Str: lit.Str, Bool: lit.Bool}
}

func paramSockets(params []syntax.Param) []ir.SocketMeta {
	out := make([]ir.SocketMeta, len(params))
	for i, p := range params {
		out[i] = ir.SocketMeta{Name: p.Name, Type: p.Type}
	}
	return out
}

func execSocket() ir.SocketMeta { return ir.SocketMeta{Type: types.Execution} }

// newFunction builds the three synthesized NodeDefinitions (call site,
// Define entry, Return exit) a function or subroutine resolves to. A
// subroutine brackets the call with an Execution in/out pair and the
// Define/Return definitions with a matching leading Execution socket, so
// it sequences like any other action node; a pure function has none.
func newFunction(sheet *ir.Sheet, f syntax.FunctionDecl) *ir.Function {
	ins := paramSockets(f.Inputs)
	outs := paramSockets(f.Outputs)

	var callSockets, defineSockets, returnSockets []ir.SocketMeta
	callStart := len(ins)
	if f.Subroutine {
		callSockets = append([]ir.SocketMeta{execSocket()}, ins...)
		callSockets = append(callSockets, execSocket())
		callSockets = append(callSockets, outs...)
		callStart = len(ins) + 1 // leading Execution in precedes the outputs (Execution out, then outs)

		defineSockets = append([]ir.SocketMeta{execSocket()}, ins...)

		returnSockets = append([]ir.SocketMeta{execSocket()}, outs...)
	} else {
		callSockets = append(append([]ir.SocketMeta{}, ins...), outs...)
		defineSockets = append([]ir.SocketMeta{}, ins...)
		returnSockets = append([]ir.SocketMeta{}, outs...)
	}

	fn := &ir.Function{
		Name:       f.Name,
		Subroutine: f.Subroutine,
		Inputs:     ins,
		Outputs:    outs,
		Sheet:      sheet,
		CodeOffset: ir.Unresolved,
	}
	fn.CallDefinition = ir.NodeDefinition{Name: f.Name, Sockets: callSockets, StartOutputIndex: callStart}
	fn.DefineDefinition = ir.NodeDefinition{Name: "Define " + f.Name, Sockets: defineSockets, StartOutputIndex: 0}
	fn.ReturnDefinition = ir.NodeDefinition{Name: "Return " + f.Name, Sockets: returnSockets, StartOutputIndex: len(returnSockets)}
	return fn
}
