// Package tag defines the closed set of discriminants for store values.
//
// The same enumeration is consumed by the evaluator's rule dispatch and by
// the circuit's selector branches; adding a variant here requires updating
// both in lockstep.
package tag

import "github.com/consensys/gnark-crypto/ecc/bn254/fr"

// Tag discriminates the shape of a store value. The numeric values are part
// of the hashing scheme and must not be reordered.
type Tag uint8

const (
	// expressions and values
	Nil Tag = iota
	Cons
	Sym
	Num
	Str
	Fun
	Thunk
	Op
	Err

	// environments
	Env
	RecEnv

	// continuations
	Outermost
	CallK
	Call2K
	IfK
	LetK
	LetRecK
	Binop1K
	Binop2K
	UnopK
	Dummy
	Terminal

	nbTags
)

// NbTags is the number of defined tags.
const NbTags = int(nbTags)

var tagNames = [NbTags]string{
	"nil", "cons", "sym", "num", "str", "fun", "thunk", "op", "err",
	"env", "rec-env",
	"outermost", "call", "call2", "if", "let", "letrec",
	"binop", "binop2", "unop", "dummy", "terminal",
}

func (t Tag) String() string {
	if int(t) >= NbTags {
		return "invalid"
	}
	return tagNames[t]
}

// Field returns the tag encoded as a field element.
func (t Tag) Field() fr.Element {
	var e fr.Element
	e.SetUint64(uint64(t))
	return e
}

// IsValue reports whether an expression with this tag is already a value,
// i.e. it evaluates to itself.
func (t Tag) IsValue() bool {
	switch t {
	case Nil, Num, Str, Fun, Err:
		return true
	default:
		return false
	}
}

// IsCont reports whether the tag denotes a continuation variant.
func (t Tag) IsCont() bool {
	return t >= Outermost && t <= Terminal
}

// IsEnv reports whether the tag denotes an environment binding frame.
func (t Tag) IsEnv() bool {
	return t == Env || t == RecEnv
}

// ErrCode identifies an evaluation-terminal error condition. Error terminals
// are data: they halt a trace but are valid, provable final states.
type ErrCode uint8

const (
	ErrNone ErrCode = iota
	ErrUnboundVariable
	ErrArgument
	ErrDepthExceeded
	ErrDivByZero
)

func (c ErrCode) String() string {
	switch c {
	case ErrNone:
		return "ok"
	case ErrUnboundVariable:
		return "unbound variable"
	case ErrArgument:
		return "argument error"
	case ErrDepthExceeded:
		return "depth exceeded"
	case ErrDivByZero:
		return "division by zero"
	default:
		return "invalid"
	}
}

// Op1 enumerates the unary builtins.
type Op1 uint8

const (
	OpCar Op1 = iota + 1
	OpCdr
	OpAtom
	OpEmit
)

func (o Op1) String() string {
	switch o {
	case OpCar:
		return "car"
	case OpCdr:
		return "cdr"
	case OpAtom:
		return "atom"
	case OpEmit:
		return "emit"
	default:
		return "invalid"
	}
}

// Op2 enumerates the binary builtins.
type Op2 uint8

const (
	OpAdd Op2 = iota + 1
	OpSub
	OpMul
	OpDiv
	OpNumEq
	OpLess
	OpGreater
	OpEq
	OpCons
)

func (o Op2) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpNumEq:
		return "="
	case OpLess:
		return "<"
	case OpGreater:
		return ">"
	case OpEq:
		return "eq"
	case OpCons:
		return "cons"
	default:
		return "invalid"
	}
}
