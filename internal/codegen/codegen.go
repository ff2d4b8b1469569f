// Package codegen lowers a semantically-checked sheet's node graph into
// bytecode: one entry sequence per Start node and per function Define node,
// pure-value sub-expressions threaded through frame-local slots, and a
// relocation table (ir.LinkMeta/InstructionToLink) for every Variable,
// Function and literal constant internal/link has to resolve.
//
// The lowering walks execution wires the way dasm.c's own code generator
// must have: depth-first from an entry node, recursing into a node's
// value inputs before emitting the node itself, and recursing into the
// next execution-wire target after. Branch/For/While are the only special
// forms; everything else either lowers straight to one opcode (KindOpcode)
// or to a SYSCALL (KindCFunction).
package codegen

import (
	"fmt"

	"github.com/decisionlang/decision/internal/builtin"
	"github.com/decisionlang/decision/internal/bytecode"
	"github.com/decisionlang/decision/internal/diag"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/types"
)

// Generate lowers every Start and Define entry of sheet into bytecode,
// filling sheet.Text, sheet.Data, sheet.DataTypes, sheet.Strings,
// sheet.LinkMetas, sheet.InsLinks, sheet.Main and each owned Function's
// CodeOffset. It does not recurse into sheet.Includes: each included sheet
// is generated independently (cmd/decision's compileAndLink drives the
// traversal) and internal/link is what stitches the resulting buffers
// together.
func Generate(sheet *ir.Sheet) *diag.Sink {
	sink := diag.NewSink(sheet.FilePath)

	g := &gen{
		sheet:    sheet,
		sink:     sink,
		wireFrom: buildWireFrom(sheet),
	}
	g.allocVariableStorage()

	text := bytecode.New()

	if sheet.StartNodeIndex >= 0 {
		body := g.genEntry(sheet.StartNodeIndex, nil)
		sheet.Main = text.Len()
		text.Concat(body)
	}

	for _, f := range sheet.Functions {
		if f.Sheet != sheet {
			continue // defined in an included sheet, generated there
		}
		body := g.genEntry(f.DefineNodeIndex, f)
		f.CodeOffset = text.Len()
		text.Concat(body)
	}

	sheet.Text = text.Text
	sheet.InsLinks = text.InsLinks
	return sink
}

// gen holds the state threaded through one sheet's generation: the
// producer lookup shared across every entry, plus the data-segment and
// link-table builders that every entry appends into.
type gen struct {
	sheet    *ir.Sheet
	sink     *diag.Sink
	wireFrom map[ir.NodeSocket]ir.NodeSocket
}

// buildWireFrom indexes sheet.Wires by their To socket, the lookup every
// value-producing recursion needs: "what feeds this input".
func buildWireFrom(sheet *ir.Sheet) map[ir.NodeSocket]ir.NodeSocket {
	m := make(map[ir.NodeSocket]ir.NodeSocket, len(sheet.Wires))
	for _, w := range sheet.Wires {
		m[w.To] = w.From
	}
	return m
}

// entry is the per-entry-point generation state: its own frame (locals are
// not shared across entries, matching PUSHNF/RETN bracketing one
// activation), its own body buffer, and the "already emitted" table that
// turns a converging execution wire into a GOTO instead of a duplicate.
type entry struct {
	g           *gen
	buf         *bytecode.Buffer
	nextSlot    int
	slotOf      map[ir.NodeSocket]int // output socket -> its frame slot
	emitted     map[int]int           // node index -> buf offset its code begins at
	callEmitted map[int]bool          // node index -> its CALLI has already run
}

// genEntry lowers one Start (fn nil) or function Define (fn set) into a
// complete, self-contained activation: PUSHNF reserving the frame, the
// entry's own code, RETN releasing it.
func (g *gen) genEntry(entryNode int, fn *ir.Function) *bytecode.Buffer {
	e := &entry{
		g:           g,
		buf:         bytecode.New(),
		slotOf:      map[ir.NodeSocket]int{},
		emitted:     map[int]int{},
		callEmitted: map[int]bool{},
	}

	body := bytecode.New()
	if fn != nil {
		e.emitParamPrologue(body, fn)
	}

	switch {
	case fn != nil && !fn.Subroutine:
		// A pure function has no execution wires at all: its single
		// Return node's inputs are the whole computation, reached by
		// demand-driven value recursion from the parameter slots the
		// prologue above just populated.
		if len(fn.ReturnNodeIndices) == 0 {
			g.sink.Add(diag.UnresolvedSymbol, 0, 0, "function %q has no Return node", fn.Name)
			break
		}
		e.emitReturn(body, fn.ReturnNodeIndices[0])
	default:
		e.emitExecFrom(body, entryNode)
	}

	full := bytecode.New()
	full.Opcode(bytecode.PUSHNF)
	full.Full(int64(e.nextSlot))
	full.Concat(body)
	full.Opcode(bytecode.RETN)
	full.Byte(byte(e.nextSlot))
	return full
}

// emitParamPrologue pops fn's arguments off the caller's eval stack (left
// there by emitCall, which pushes them in declared order right before
// CALLI) into their own frame slots, in reverse order since the last-pushed
// argument sits on top, and records each slot against the Define node's
// corresponding output socket so later value recursion finds it precomputed
// rather than trying to regenerate it.
func (e *entry) emitParamPrologue(buf *bytecode.Buffer, fn *ir.Function) {
	n := len(fn.Inputs)
	slots := make([]int, n)
	for i := 0; i < n; i++ {
		slots[i] = e.allocSlot()
	}
	for i := n - 1; i >= 0; i-- {
		buf.Opcode(bytecode.POPF)
		buf.Full(int64(slots[i]))
	}
	for i := 0; i < n; i++ {
		sock := ir.NodeSocket{NodeIndex: fn.DefineNodeIndex, SocketIndex: paramDefineSocket(fn, i)}
		e.slotOf[sock] = slots[i]
	}
}

// paramDefineSocket returns the Define node's output socket index for
// parameter i: a subroutine's Define sockets are [Execution, p0, ..., pn-1]
// (the leading Execution shifts every parameter up by one); a pure
// function's are just [p0, ..., pn-1].
func paramDefineSocket(fn *ir.Function, i int) int {
	if fn.Subroutine {
		return i + 1
	}
	return i
}

func (e *entry) allocSlot() int {
	s := e.nextSlot
	e.nextSlot++
	return s
}

// emitExecFrom emits node's own instructions (and its value inputs) into
// buf, then continues along its single execution-wire successor, if any.
// A node reached a second time (graph reconvergence) is emitted once and
// revisited with an unconditional jump, never duplicated.
func (e *entry) emitExecFrom(buf *bytecode.Buffer, nodeIdx int) {
	if off, ok := e.emitted[nodeIdx]; ok {
		emitRelJump(buf, bytecode.JRFI, off)
		return
	}
	e.emitted[nodeIdx] = buf.Len()

	n := e.g.sheet.Nodes[nodeIdx]
	buf.MarkNode(nodeIdx, n.Line)

	switch n.Resolution.Kind {
	case ir.NameBuiltin, ir.NameCFunction:
		entry, ok := builtin.Lookup(n.Definition.Name)
		if !ok {
			e.g.sink.Add(diag.UnresolvedSymbol, n.Line, 0, "node %d: unknown builtin %q", nodeIdx, n.Definition.Name)
			return
		}
		switch entry.Kind {
		case builtin.KindControlFlow:
			e.emitControlFlow(buf, nodeIdx, entry)
			return // control-flow forms own their own continuation wiring
		case builtin.KindOpcode:
			e.emitOpcodeNode(buf, nodeIdx, entry)
		case builtin.KindCFunction:
			e.emitSyscallNode(buf, nodeIdx, entry)
		}
	case ir.NameVariableSetter:
		e.emitSetter(buf, nodeIdx)
	case ir.NameFunctionCall:
		e.emitCallAndStoreOutputs(buf, nodeIdx)
	case ir.NameFunctionReturn:
		e.emitReturn(buf, nodeIdx)
		return // Return ends this activation; no successor to chain to
	case ir.NameFunctionDefine:
		// A subroutine's entry prologue (genEntry's emitParamPrologue)
		// already captured every parameter into its frame slot before
		// this walk started; the Define node itself emits nothing and
		// just hands off to its Execution output, found below like any
		// other action node. A pure function's Define is never reached
		// this way at all — genEntry evaluates its Return directly.
	default:
		e.g.sink.Add(diag.UnresolvedSymbol, n.Line, 0, "node %d has no executable resolution", nodeIdx)
		return
	}

	if out := execContinuationSocket(n); out >= 0 {
		e.continueExec(buf, nodeIdx, out)
	}
}

// execContinuationSocket returns the first Execution-typed output socket
// of n, the convention every action node's "what runs next" wire leaves
// from. For most nodes that's the socket right after the inputs end; a
// subroutine's CallDefinition instead puts it last, after its value
// outputs, so this scans rather than assuming a fixed position.
func execContinuationSocket(n *ir.Node) int {
	for i := n.StartOutputIndex; i < n.NumSockets(); i++ {
		if n.SocketMeta(i).Type == types.Execution {
			return i
		}
	}
	return -1
}

// continueExec follows the single execution-wire leaving outSocket
// to its target node, if any.
func (e *entry) continueExec(buf *bytecode.Buffer, nodeIdx, outSocket int) {
	sock := ir.NodeSocket{NodeIndex: nodeIdx, SocketIndex: outSocket}
	i := ir.WireFindFirst(e.g.sheet, sock)
	if i < 0 {
		return
	}
	next := e.g.sheet.Wires[i].To
	e.emitExecFrom(buf, next.NodeIndex)
}

// emitRelJump emits a relative jump to a target already present in buf.
// Every jump codegen emits is relative to its own opcode offset: the
// entry's body is concatenated after the PUSHNF prologue by genEntry and
// after other sheets' text by internal/link, and a relative displacement
// survives both shifts where a buffer-local absolute target would not.
func emitRelJump(buf *bytecode.Buffer, op bytecode.Op, target int) {
	at := buf.Opcode(op)
	buf.Full(int64(target - at))
}

// patchRelJump emits op with a zero displacement and returns the opcode
// offset; the caller lands the jump later with landRelJump once the
// forward target's offset is known.
func patchRelJump(buf *bytecode.Buffer, op bytecode.Op) int {
	at := buf.Opcode(op)
	buf.Full(0)
	return at
}

func landRelJump(buf *bytecode.Buffer, at int) {
	buf.SetFull(at+1, int64(buf.Len()-at))
}

// --- pure-value production -------------------------------------------------

// emitValue pushes the value feeding input socket (nodeIdx, socketIndex)
// onto buf's evaluation stack: either the literal/default for an
// unconnected input, or the already-computed (or freshly computed)
// producer output read back from its frame slot.
func (e *entry) emitValue(buf *bytecode.Buffer, nodeIdx, socketIndex int) {
	n := e.g.sheet.Nodes[nodeIdx]
	sock := ir.NodeSocket{NodeIndex: nodeIdx, SocketIndex: socketIndex}

	from, wired := e.g.wireFrom[sock]
	if !wired {
		e.pushLiteral(buf, n.SocketMeta(socketIndex).Default)
		return
	}

	slot, ok := e.slotOf[from]
	if !ok {
		slot = e.computeValue(buf, from)
	}
	buf.Opcode(bytecode.DEREFI)
	buf.Full(int64(slot))
}

// computeValue ensures the producer at socket from (an output socket) has
// been evaluated and stored to a frame slot, emitting its instructions if
// this is the first time it's needed, and returns that slot.
func (e *entry) computeValue(buf *bytecode.Buffer, from ir.NodeSocket) int {
	if slot, ok := e.slotOf[from]; ok {
		return slot
	}

	n := e.g.sheet.Nodes[from.NodeIndex]

	// A call pushes every declared output in order before RETN, so it
	// must run exactly once no matter how many of its outputs end up
	// wired to different consumers; every output gets its slot assigned
	// together, popped off in reverse declared order.
	if n.Resolution.Kind == ir.NameFunctionCall {
		return e.computeCallValue(buf, from)
	}

	slot := e.allocSlot()
	e.slotOf[from] = slot

	switch n.Resolution.Kind {
	case ir.NameVariableGetter:
		e.emitGetter(buf, from.NodeIndex)
	case ir.NameBuiltin, ir.NameCFunction:
		entry, ok := builtin.Lookup(n.Definition.Name)
		if !ok {
			e.g.sink.Add(diag.UnresolvedSymbol, n.Line, 0, "node %d: unknown builtin %q", from.NodeIndex, n.Definition.Name)
			return slot
		}
		switch entry.Kind {
		case builtin.KindOpcode:
			e.emitOpcodeValue(buf, from.NodeIndex, entry)
		case builtin.KindCFunction:
			e.emitSyscallValue(buf, from.NodeIndex, entry)
		default:
			e.g.sink.Add(diag.UnresolvedSymbol, n.Line, 0, "node %d is not a pure-value node", from.NodeIndex)
		}
	default:
		e.g.sink.Add(diag.UnresolvedSymbol, n.Line, 0, "node %d has no value-producing resolution", from.NodeIndex)
	}

	buf.Opcode(bytecode.POPF)
	buf.Full(int64(slot))
	buf.MarkValue(buf.Len(), from)
	return slot
}

// computeCallValue emits nodeIdx's call (once) and stores every one of its
// outputs into its own slot, then returns the slot for from specifically.
func (e *entry) computeCallValue(buf *bytecode.Buffer, from ir.NodeSocket) int {
	e.emitCallAndStoreOutputs(buf, from.NodeIndex)
	return e.slotOf[from]
}

// emitCallAndStoreOutputs emits nodeIdx's call exactly once (tracked by
// callEmitted, since the same call node may be reached both as an
// execution-wire statement and as a value producer for several different
// outputs) and pops every non-Execution output into its own frame slot.
func (e *entry) emitCallAndStoreOutputs(buf *bytecode.Buffer, nodeIdx int) {
	if e.callEmitted[nodeIdx] {
		return
	}
	e.callEmitted[nodeIdx] = true
	n := e.g.sheet.Nodes[nodeIdx]
	e.emitCall(buf, nodeIdx)
	for i := n.NumSockets() - 1; i >= n.StartOutputIndex; i-- {
		if n.SocketMeta(i).Type == types.Execution {
			continue // a subroutine's trailing exec output carries no value
		}
		sock := ir.NodeSocket{NodeIndex: nodeIdx, SocketIndex: i}
		slot := e.allocSlot()
		e.slotOf[sock] = slot
		buf.Opcode(bytecode.POPF)
		buf.Full(int64(slot))
		buf.MarkValue(buf.Len(), sock)
	}
}

// pushLiteral lowers a literal/default value as a Data-segment constant:
// PUSHF <linked address> followed by the register-form DEREF, which tags
// the loaded value using sheet.DataTypes. See DESIGN.md for why literals
// go through Data instead of an inline bit-pattern immediate.
func (e *entry) pushLiteral(buf *bytecode.Buffer, v ir.LiteralValue) {
	idx := e.g.addLiteral(v)
	buf.Opcode(bytecode.PUSHF)
	buf.LinkFull(idx)
	buf.Opcode(bytecode.DEREF)
}

func (g *gen) addLiteral(v ir.LiteralValue) int {
	off := g.appendData(v)
	meta := ir.LinkMeta{Type: ir.LinkDataStringLiteral, Sheet: g.sheet, Ptr: off}
	g.sheet.LinkMetas = append(g.sheet.LinkMetas, meta)
	return len(g.sheet.LinkMetas) - 1
}

// appendData writes v's 8-byte representation to the sheet's Data segment
// (backing a String-typed value with an index into Strings, since Go
// strings aren't fixed-width) and returns its offset. Shared by literal
// constants and Variable defaults: both are just named or anonymous slots
// in the same Data arena.
func (g *gen) appendData(v ir.LiteralValue) int {
	off := len(g.sheet.Data)
	var bits uint64
	switch v.Type {
	case types.Int:
		bits = uint64(v.Int)
	case types.Bool:
		if v.Bool {
			bits = 1
		}
	case types.Float:
		bits = float64bits(v.Flt)
	case types.String:
		bits = uint64(len(g.sheet.Strings))
		g.sheet.Strings = append(g.sheet.Strings, v.Str)
	}
	g.sheet.Data = append(g.sheet.Data, encodeUint64(bits)...)
	g.sheet.DataTypes = append(g.sheet.DataTypes, v.Type)
	return off
}

// allocVariableStorage lays out every sheet-owned Variable's default value
// in Data before any entry is generated, since a Get/Set node's lowering
// reads v.DataOffset directly (see addVariableMeta) rather than deferring
// the allocation to first use.
func (g *gen) allocVariableStorage() {
	for _, v := range g.sheet.Variables {
		v.DataOffset = g.appendData(v.Default)
	}
}

// --- opcode (arithmetic/comparison/boolean) nodes --------------------------

func opcodeFor(entry *builtin.Entry, resultType types.T) (bytecode.Op, error) {
	name := entry.Opcode
	op, ok := bytecode.ByName(name)
	if !ok {
		return 0, fmt.Errorf("codegen: opcode family %q is not registered", name)
	}
	if resultType != types.Float {
		return op, nil
	}
	// ADD/SUB/MUL/DIV and the ordered/equality comparisons each have a
	// float register form directly after the plain integer one. MOD has
	// none, so a Float-reduced Modulo keeps the integer MOD; boolean ops
	// never reduce to Float.
	switch name {
	case "ADD", "SUB", "MUL", "DIV":
		return op + 1, nil
	case "CEQ", "CLT", "CLEQ", "CMT", "CMEQ":
		return op + 1, nil
	default:
		return op, nil
	}
}

// emitOpcodeValue computes a KindOpcode node's result and leaves it on top
// of the evaluation stack (used from computeValue, which stores it itself).
func (e *entry) emitOpcodeValue(buf *bytecode.Buffer, nodeIdx int, entry *builtin.Entry) {
	n := e.g.sheet.Nodes[nodeIdx]
	for i := 0; i < n.NumInputs(); i++ {
		e.emitValue(buf, nodeIdx, i)
	}
	// Float-ness is a property of the operands, not the result (a
	// comparison's Result is always Bool even when A/B reduced to
	// Float), so it's always read off socket 0.
	operandType := n.SocketMeta(0).Type
	op, err := opcodeFor(entry, operandType)
	if err != nil {
		e.g.sink.Add(diag.UnresolvedSymbol, n.Line, 0, "%s", err)
		return
	}
	buf.Opcode(op)
}

// emitOpcodeNode is emitOpcodeValue wrapped for a node reached as a
// statement rather than as a value producer: a KindOpcode entry never has
// execution sockets, so this path is unused by current builtins but kept
// symmetrical with emitSyscallNode for a future stateful opcode node.
func (e *entry) emitOpcodeNode(buf *bytecode.Buffer, nodeIdx int, entry *builtin.Entry) {
	e.emitOpcodeValue(buf, nodeIdx, entry)
	buf.Opcode(bytecode.POP)
}

// --- SYSCALL (Print/Concat/ToString) nodes ---------------------------------

func (e *entry) emitSyscallValue(buf *bytecode.Buffer, nodeIdx int, entry *builtin.Entry) {
	n := e.g.sheet.Nodes[nodeIdx]
	argc := 0
	for i := 0; i < n.NumInputs(); i++ {
		// Print brackets its Value input(s) with a leading Execution pin
		// (the wire that triggers it); that pin carries no pushable value
		// and is handled by continueExec, not here.
		if n.SocketMeta(i).Type == types.Execution {
			continue
		}
		e.emitValue(buf, nodeIdx, i)
		argc++
	}
	buf.Opcode(bytecode.SYSCALL)
	buf.Byte(entry.SyscallIndex)
	buf.Byte(byte(argc))
}

// emitSyscallNode lowers a KindCFunction node reached as a statement
// (Print, which brackets its Value inputs with Execution sockets). Print
// has no result to discard; the SYSCALL itself is identical to the
// value-producing form.
func (e *entry) emitSyscallNode(buf *bytecode.Buffer, nodeIdx int, entry *builtin.Entry) {
	e.emitSyscallValue(buf, nodeIdx, entry)
}

// --- variable getter/setter -------------------------------------------------

func (e *entry) emitGetter(buf *bytecode.Buffer, nodeIdx int) {
	n := e.g.sheet.Nodes[nodeIdx]
	v := n.Resolution.Variable
	idx := e.g.addVariableMeta(v)
	buf.Opcode(bytecode.PUSHF)
	buf.LinkFull(idx)
	buf.Opcode(bytecode.DEREF)
}

func (e *entry) emitSetter(buf *bytecode.Buffer, nodeIdx int) {
	n := e.g.sheet.Nodes[nodeIdx]
	v := n.Resolution.Variable
	e.emitValue(buf, nodeIdx, 1) // socket 1 is the value input; 0/2 are Execution
	idx := e.g.addVariableMeta(v)
	buf.Opcode(bytecode.SETADR)
	buf.LinkFull(idx)
}

func (g *gen) addVariableMeta(v *ir.Variable) int {
	meta := ir.LinkMeta{Type: ir.LinkVariable, Name: v.GetterDefinition.Name, Sheet: v.Sheet, Ref: v}
	if v.Sheet == g.sheet {
		meta.Ptr = v.DataOffset
	} else {
		meta.Type = ir.LinkVariablePointer
		meta.Sheet = nil // placed by internal/link against its defining sheet's arena base
	}
	g.sheet.LinkMetas = append(g.sheet.LinkMetas, meta)
	return len(g.sheet.LinkMetas) - 1
}

// --- function call/define/return -------------------------------------------

func (e *entry) emitCall(buf *bytecode.Buffer, nodeIdx int) {
	n := e.g.sheet.Nodes[nodeIdx]
	f := n.Resolution.Function
	start := 0
	if f.Subroutine {
		start = 1 // leading Execution input isn't a value to push
	}
	for i := start; i < n.NumInputs(); i++ {
		e.emitValue(buf, nodeIdx, i)
	}
	idx := e.g.addFunctionMeta(f)
	buf.Opcode(bytecode.CALLI)
	buf.LinkFull(idx)
}

// addFunctionMeta records a call-site relocation against f by reference,
// never by a snapshotted offset: a same-sheet callee's CodeOffset is not
// assigned until Generate reaches its Define entry, which may be after the
// call site is lowered, so the linker reads CodeOffset through Ref once
// every entry of every sheet has been generated.
func (g *gen) addFunctionMeta(f *ir.Function) int {
	meta := ir.LinkMeta{Type: ir.LinkFunction, Name: f.Name, Sheet: f.Sheet, Ref: f, Ptr: ir.Unresolved}
	g.sheet.LinkMetas = append(g.sheet.LinkMetas, meta)
	return len(g.sheet.LinkMetas) - 1
}

// emitReturn pushes every Return input value onto the evaluation stack in
// declared order (skipping a subroutine's execution input) so RETN finds
// them on top when it hands control back to the caller.
func (e *entry) emitReturn(buf *bytecode.Buffer, nodeIdx int) {
	n := e.g.sheet.Nodes[nodeIdx]
	start := 0
	f := funcOwningReturn(e.g.sheet, nodeIdx)
	if f != nil && f.Subroutine {
		start = 1
	}
	for i := start; i < n.NumInputs(); i++ {
		e.emitValue(buf, nodeIdx, i)
	}
}

func funcOwningReturn(sheet *ir.Sheet, returnNode int) *ir.Function {
	for _, f := range sheet.Functions {
		for _, r := range f.ReturnNodeIndices {
			if r == returnNode {
				return f
			}
		}
	}
	return nil
}

// --- control flow ------------------------------------------------------

func (e *entry) emitControlFlow(buf *bytecode.Buffer, nodeIdx int, entry *builtin.Entry) {
	n := e.g.sheet.Nodes[nodeIdx]
	switch n.Definition.Name {
	case "Start":
		e.continueExec(buf, nodeIdx, 0)
	case "Branch", "If":
		e.emitBranch(buf, nodeIdx)
	case "For":
		e.emitFor(buf, nodeIdx)
	case "While":
		e.emitWhile(buf, nodeIdx)
	default:
		e.g.sink.Add(diag.UnresolvedSymbol, n.Line, 0, "node %d: unhandled control-flow builtin %q", nodeIdx, n.Definition.Name)
	}
}

// emitBranch lowers Branch to: evaluate Condition; JRCONFI over the False
// arm to the True arm if set; otherwise fall into the False arm, whose
// tail jumps past the True arm. JRCONFI's semantics (an internal/vm design
// choice, see DESIGN.md) are pop a bool, jump if it's true, fall through
// otherwise.
func (e *entry) emitBranch(buf *bytecode.Buffer, nodeIdx int) {
	e.emitValue(buf, nodeIdx, 1) // Condition

	trueJump := patchRelJump(buf, bytecode.JRCONFI)

	e.continueExecIfWired(buf, nodeIdx, 3) // False

	endJump := patchRelJump(buf, bytecode.JRFI)

	landRelJump(buf, trueJump)
	e.continueExecIfWired(buf, nodeIdx, 2) // True

	landRelJump(buf, endJump)
}

// continueExecIfWired is continueExec for a socket that may legitimately
// have no wire (an unused Branch/For/While arm).
func (e *entry) continueExecIfWired(buf *bytecode.Buffer, nodeIdx, outSocket int) {
	sock := ir.NodeSocket{NodeIndex: nodeIdx, SocketIndex: outSocket}
	if ir.WireFindFirst(e.g.sheet, sock) < 0 {
		return
	}
	e.continueExec(buf, nodeIdx, outSocket)
}

// emitFor lowers For to an index variable held in its own frame slot,
// counting from From to To (exclusive) by Step.
func (e *entry) emitFor(buf *bytecode.Buffer, nodeIdx int) {
	idxSlot := e.allocSlot()
	e.slotOf[ir.NodeSocket{NodeIndex: nodeIdx, SocketIndex: 5}] = idxSlot
	toSlot := e.allocSlot()
	stepSlot := e.allocSlot()

	e.emitValue(buf, nodeIdx, 1) // From
	buf.Opcode(bytecode.POPF)
	buf.Full(int64(idxSlot))

	e.emitValue(buf, nodeIdx, 2) // To
	buf.Opcode(bytecode.POPF)
	buf.Full(int64(toSlot))

	e.emitValue(buf, nodeIdx, 3) // Step
	buf.Opcode(bytecode.POPF)
	buf.Full(int64(stepSlot))

	loopStart := buf.Len()
	buf.Opcode(bytecode.DEREFI)
	buf.Full(int64(idxSlot))
	buf.Opcode(bytecode.DEREFI)
	buf.Full(int64(toSlot))
	buf.Opcode(bytecode.CLT)

	bodyJump := patchRelJump(buf, bytecode.JRCONFI)
	doneJump := patchRelJump(buf, bytecode.JRFI)

	landRelJump(buf, bodyJump)
	e.continueExecIfWired(buf, nodeIdx, 4) // Loop Body

	buf.Opcode(bytecode.DEREFI)
	buf.Full(int64(idxSlot))
	buf.Opcode(bytecode.DEREFI)
	buf.Full(int64(stepSlot))
	buf.Opcode(bytecode.ADD)
	buf.Opcode(bytecode.POPF)
	buf.Full(int64(idxSlot))
	emitRelJump(buf, bytecode.JRFI, loopStart)

	landRelJump(buf, doneJump)
	e.continueExecIfWired(buf, nodeIdx, 6) // Completed
}

func (e *entry) emitWhile(buf *bytecode.Buffer, nodeIdx int) {
	loopStart := buf.Len()
	e.emitValue(buf, nodeIdx, 1) // Condition

	bodyJump := patchRelJump(buf, bytecode.JRCONFI)
	doneJump := patchRelJump(buf, bytecode.JRFI)

	landRelJump(buf, bodyJump)
	e.continueExecIfWired(buf, nodeIdx, 2) // Loop Body
	emitRelJump(buf, bytecode.JRFI, loopStart)

	landRelJump(buf, doneJump)
	e.continueExecIfWired(buf, nodeIdx, 3) // Completed
}
