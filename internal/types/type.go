// Package types implements the Decision type lattice: a small bit-set over a
// fixed set of atoms, used to represent both concrete socket types and the
// "vague" (polymorphic) types that type reduction narrows down.
package types

// T is a bit-set over the fixed atom set. Values go up in powers of two so
// that vague types can be expressed as the union of the atoms they might
// resolve to, e.g. Number = Int|Float.
type T uint8

const (
	None      T = 0
	Execution T = 1 << 0 // 1
	Int       T = 1 << 1 // 2
	Float     T = 1 << 2 // 4
	String    T = 1 << 3 // 8
	Bool      T = 1 << 4 // 16
	Name      T = 1 << 5 // 32
)

const (
	// VarMin and VarMax bound the run of atoms that count as "variable"
	// (non-Execution, non-Name) types for the purposes of vagueness.
	VarMin = Int
	VarMax = Bool

	// Number is the vague type shared by every arithmetic builtin's inputs
	// before reduction.
	Number = Int | Float

	// VarAny is the vague type of anything that can sit in a variable or a
	// default-valued socket.
	VarAny = Int | Float | String | Bool
)

// IsVague reports whether t contains two or more of the variable atoms
// (Int, Float, String, Bool). Execution and Name never contribute to
// vagueness: Execution is control-flow only, Name is a standalone atom with
// no polymorphic partner.
func IsVague(t T) bool {
	found := false
	for test := VarMin; test <= VarMax; test <<= 1 {
		if t&test == test {
			if found {
				return true
			}
			found = true
		}
	}
	return false
}

// IsConcrete reports whether t contains exactly one variable atom. Pure
// Execution or Name types are not "concrete" in this sense — the predicate
// only makes sense for sockets that carry a value.
func IsConcrete(t T) bool {
	count := 0
	for test := VarMin; test <= VarMax; test <<= 1 {
		if t&test == test {
			count++
		}
	}
	return count == 1
}

// Intersect is the lattice meet: the set of atoms permissible on both sides
// of a wire. TYPE_NONE (the empty set) is the bottom element and signals
// TypeMismatch to the caller.
func Intersect(a, b T) T { return a & b }

// Join is the lattice union, used by the "output is the narrowest concrete
// type >= join of its inputs" rule for arithmetic/comparison builtins.
func Join(a, b T) T { return a | b }

// names gives the canonical string for every atom plus the two vague types
// that have names of their own; other bit combinations have no name.
var names = map[T]string{
	Execution: "Execution",
	Int:       "Integer",
	Float:     "Float",
	String:    "String",
	Bool:      "Boolean",
	Name:      "Name",
	Number:    "Number",
	VarAny:    "Variable",
}

// NameOf returns the canonical name of t, or "" if t has none (e.g. a
// partially-reduced vague type like Int|String that isn't one of the two
// named vague types).
func NameOf(t T) string { return names[t] }

// FromLex maps a declared-type lexical token into the lattice. Declared-type
// tokens are contiguous in the lexer's token enumeration starting at a fixed
// offset, so the mapping is a fixed bit shift: shift 0 gives Execution,
// shift 1 gives Int, and so on.
func FromLex(tokenOffset int) T {
	if tokenOffset < 0 {
		return None
	}
	return T(1) << uint(tokenOffset)
}

// FromLexLiteral maps a literal-token offset (int/float/string/bool
// literals, a separate contiguous run starting one atom later than the
// declared-type run) into the lattice.
func FromLexLiteral(tokenOffset int) T {
	if tokenOffset < 0 {
		return None
	}
	return T(2) << uint(tokenOffset)
}
