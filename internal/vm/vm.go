// Package vm executes linked bytecode: a data-pointer-free stack machine
// with two address spaces (a per-activation locals frame, a whole-program
// data arena) dispatching the opcode table internal/bytecode defines.
//
// The call-stack discipline is grounded on the teacher's frame/newFrame/
// clone idiom (interp.go's frame type): each activation is its own
// []builtin.Value slab chained to its caller by an ancestor pointer rather
// than a single shared array slice, so a panic/trap unwind never needs to
// know how many slots an arbitrary number of nested calls used. Unlike the
// teacher, a Decision activation's size is known exactly at link time
// (PUSHNF's immediate), so frames are sized once at push time rather than
// grown on demand.
package vm

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/decisionlang/decision/internal/builtin"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/types"
)

// Trap is a runtime fault: division by zero, an out-of-range jump, a
// CALLC to an unregistered name. It satisfies error and carries the
// instruction offset it occurred at for a trap report.
type Trap struct {
	Offset  int
	Message string
}

func (t *Trap) Error() string {
	return fmt.Sprintf("vm: trap at offset %d: %s", t.Offset, t.Message)
}

func trap(offset int, format string, args ...interface{}) *Trap {
	return &Trap{Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// frame is one activation's local storage: PUSHNF allocates it, RETN
// discards it. Chained to its caller purely for trap reporting — a
// Decision activation never reads an ancestor's locals directly, every
// cross-call value passes through the shared eval stack.
type frame struct {
	data []builtin.Value
	anc  *frame
}

func newFrame(anc *frame, size int) *frame {
	return &frame{data: make([]builtin.Value, size), anc: anc}
}

// callRecord is one entry on the VM's call stack: the return address and
// the frame CALLI's callee should unwind into on RETN.
type callRecord struct {
	returnPC int
	caller   *frame
}

// Machine is one independent execution of a linked sheet's bytecode. Every
// Machine owns its own eval stack, call stack and locals chain; the linked
// ir.Sheet itself (Text/Data/Strings) is read-only from Run onward, so many
// Machines may run the same Sheet concurrently, each on its own goroutine.
type Machine struct {
	ID uuid.UUID

	Stdout io.Writer
	Logger *zap.Logger

	sheet *ir.Sheet
	data  []builtin.Value // decoded, typed view of sheet.Data, one per 8-byte slot

	eval  []builtin.Value
	frame *frame
	calls []callRecord

	cfuncs map[string]builtin.Func

	// trapped is set once Run has returned a Trap, so a second Run call
	// on an already-faulted Machine fails fast instead of resuming from
	// undefined state.
	trapped bool
}

// New returns a Machine ready to run sheet, which must already be linked
// (sheet.Linked). Stdout defaults to io.Discard; logger defaults to a
// no-op zap.Logger if nil.
func New(sheet *ir.Sheet, stdout io.Writer, logger *zap.Logger) (*Machine, error) {
	if !sheet.Linked {
		return nil, fmt.Errorf("vm: sheet %q has not been linked", sheet.FilePath)
	}
	if stdout == nil {
		stdout = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		ID:     uuid.New(),
		Stdout: stdout,
		Logger: logger,
		sheet:  sheet,
		cfuncs: map[string]builtin.Func{},
	}
	m.data = decodeData(sheet)
	return m, nil
}

// decodeData builds the typed in-memory view of sheet.Data: one
// builtin.Value per 8-byte slot, tagged by sheet.DataTypes and, for a
// String slot, backed by sheet.Strings rather than the raw index bytes —
// idiomatic Go has no portable reinterpret-cast for a byte slice the way
// the original's untyped void* addressing did, so this decode happens once
// up front instead of at every DEREF.
func decodeData(sheet *ir.Sheet) []builtin.Value {
	n := len(sheet.DataTypes)
	out := make([]builtin.Value, n)
	for i, t := range sheet.DataTypes {
		bits := binary.NativeEndian.Uint64(sheet.Data[i*8 : i*8+8])
		switch t {
		case types.Int:
			out[i] = builtin.Value{Type: types.Int, Int: int64(bits)}
		case types.Float:
			out[i] = builtin.Value{Type: types.Float, Flt: math.Float64frombits(bits)}
		case types.Bool:
			out[i] = builtin.Value{Type: types.Bool, Bool: bits != 0}
		case types.String:
			out[i] = builtin.Value{Type: types.String, Str: sheet.Strings[bits]}
		}
	}
	return out
}

// RegisterCFunction binds name to fn for CALLC/CALLCI, the host-native
// extension point distinct from the fixed SYSCALL table: a sheet author
// can declare a C-function node whose implementation lives entirely on the
// host side, resolved by internal/link's ir.LinkCFunction the same way a
// Function or Variable reference is.
func (m *Machine) RegisterCFunction(name string, fn builtin.Func) {
	m.cfuncs[name] = fn
}

// stdoutCtx wraps m in a builtin.Context whose Stdout is m.Stdout, so the SYSCALL
// table's Print can write through the Machine without internal/builtin
// importing internal/vm.
func (m *Machine) stdoutCtx() builtin.Context { return machineContext{m} }

type machineContext struct{ m *Machine }

func (c machineContext) Stdout() io.Writer { return c.m.Stdout }

// syscalls is the fixed SYSCALL table; its order must match
// internal/builtin's SyscallIndex assignments exactly.
var syscalls = []*builtin.Entry{}

func init() {
	for _, e := range builtin.All() {
		if e.Kind != builtin.KindCFunction {
			continue
		}
		for len(syscalls) <= int(e.SyscallIndex) {
			syscalls = append(syscalls, nil)
		}
		syscalls[e.SyscallIndex] = e
	}
}

// Run executes sheet.Text starting at sheet.Main until RET/RETN unwinds
// the outermost frame; a sheet with no Start node (Main is ir.Unresolved)
// returns nil having executed nothing. ctx is checked between
// instructions so a long-running or runaway program can be cancelled.
func (m *Machine) Run(ctx context.Context) error {
	if m.sheet.Main == ir.Unresolved {
		return nil
	}
	return m.RunAt(ctx, m.sheet.Main)
}

// RunAt executes starting at text offset at. Exported separately from Run
// so a caller (or a test) can invoke a specific function's CodeOffset
// directly without needing a Start node.
func (m *Machine) RunAt(ctx context.Context, at int) error {
	if m.trapped {
		return fmt.Errorf("vm: machine %s already trapped, cannot resume", m.ID)
	}
	m.frame = newFrame(nil, 0)
	err := m.exec(ctx, at)
	if err != nil {
		m.trapped = true
		if t, ok := err.(*Trap); ok {
			m.Logger.Error("vm trap",
				zap.String("machine", m.ID.String()),
				zap.Int("offset", t.Offset),
				zap.String("message", t.Message))
		}
	}
	return err
}
