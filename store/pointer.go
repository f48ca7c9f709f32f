package store

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/hnfgns/lurk-go/tag"
)

// Ptr is a content-addressed handle to a store value: a tag plus either the
// MiMC digest of the value's content or, for small values, the value itself.
//
// Two pointers are equal iff their (Tag, Val) pairs are equal; comparing
// pointers never dereferences the store, which makes pointer equality a
// correct proxy for deep structural equality.
type Ptr struct {
	Tag tag.Tag
	Val fr.Element
}

// Equal reports whether p and q address the same content.
func (p Ptr) Equal(q Ptr) bool {
	return p.Tag == q.Tag && p.Val.Equal(&q.Val)
}

// IsImmediate reports whether the pointer carries its value inline instead
// of a digest. Immediate pointers have no store entry.
func (p Ptr) IsImmediate() bool {
	switch p.Tag {
	case tag.Nil, tag.Num, tag.Op, tag.Err, tag.Outermost, tag.Dummy, tag.Terminal:
		return true
	default:
		return false
	}
}

// IsNil reports whether p is the nil value.
func (p Ptr) IsNil() bool {
	return p.Tag == tag.Nil
}

// IsTerminal reports whether p, used as a continuation, halts the machine.
func (p Ptr) IsTerminal() bool {
	return p.Tag == tag.Terminal
}

// ErrCode returns the error code carried by an Err pointer.
func (p Ptr) ErrCode() tag.ErrCode {
	if p.Tag != tag.Err {
		return tag.ErrNone
	}
	return tag.ErrCode(p.Val.Uint64())
}

// Node is a compound store entry: a tag plus up to four child pointers.
// Unused children hold the zero (nil) pointer. A node is keyed by the digest
// of its tag and children, so identical content always interns to the same
// pointer.
type Node struct {
	Tag      tag.Tag
	Children [4]Ptr
}

// IsZero reports whether n is the zero node, used as slot padding.
func (n Node) IsZero() bool {
	if n.Tag != tag.Nil {
		return false
	}
	for i := range n.Children {
		if !n.Children[i].IsNil() || !n.Children[i].Val.IsZero() {
			return false
		}
	}
	return true
}

// NilPtr is the nil value; it is also the empty environment and the empty
// tail of a proper list.
func NilPtr() Ptr { return Ptr{} }

// NumUint64 builds an immediate numeric pointer.
func NumUint64(v uint64) Ptr {
	var e fr.Element
	e.SetUint64(v)
	return Ptr{Tag: tag.Num, Val: e}
}

// NumField builds an immediate numeric pointer from a field element.
func NumField(e fr.Element) Ptr {
	return Ptr{Tag: tag.Num, Val: e}
}

// ErrPtr builds the error terminal value for the given code.
func ErrPtr(code tag.ErrCode) Ptr {
	var e fr.Element
	e.SetUint64(uint64(code))
	return Ptr{Tag: tag.Err, Val: e}
}

// Op1Ptr builds an immediate unary opcode pointer.
func Op1Ptr(op tag.Op1) Ptr {
	var e fr.Element
	e.SetUint64(uint64(op))
	return Ptr{Tag: tag.Op, Val: e}
}

// Op2Ptr builds an immediate binary opcode pointer. Binary opcodes are
// offset past the unary range so the two sets never collide.
func Op2Ptr(op tag.Op2) Ptr {
	var e fr.Element
	e.SetUint64(uint64(op) + op2Offset)
	return Ptr{Tag: tag.Op, Val: e}
}

const op2Offset = 16

// Op1Code extracts the unary opcode from an Op pointer.
func (p Ptr) Op1Code() tag.Op1 {
	v := p.Val.Uint64()
	if p.Tag != tag.Op || v >= op2Offset {
		return 0
	}
	return tag.Op1(v)
}

// Op2Code extracts the binary opcode from an Op pointer.
func (p Ptr) Op2Code() tag.Op2 {
	v := p.Val.Uint64()
	if p.Tag != tag.Op || v < op2Offset {
		return 0
	}
	return tag.Op2(v - op2Offset)
}

// OutermostK is the bottom of the continuation stack.
func OutermostK() Ptr { return Ptr{Tag: tag.Outermost} }

// DummyK is the continuation paired with a thunk expression.
func DummyK() Ptr { return Ptr{Tag: tag.Dummy} }

// TerminalK marks a halted machine; stepping a terminal state is the
// identity.
func TerminalK() Ptr { return Ptr{Tag: tag.Terminal} }
