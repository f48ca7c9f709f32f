// Package store implements the content-addressed, hash-consing arena backing
// the evaluator and the circuit.
//
// Every compound datum is keyed by the MiMC digest of its tag and children;
// interning identical content always yields the same pointer, in any insert
// order, so pointer equality is deep structural equality. The arena is
// append-only for the lifetime of one evaluation.
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/hnfgns/lurk-go/tag"
)

// ErrNotFound reports a dangling pointer. It can only be observed if a
// pointer was fabricated outside Intern, which is a bug in the producer, not
// a recoverable condition.
var ErrNotFound = errors.New("store: pointer not found")

// Store is a hash-consing arena. The zero value is not usable; construct
// with New or NewShared.
type Store struct {
	mu    *sync.RWMutex // nil for the single-trace variant
	nodes map[Ptr]Node
	text  map[Ptr]string // symbol / string payloads, for printing

	lang Lang
}

// Lang caches the interned special-form and builtin symbols of the surface
// language. The circuit embeds the same digests as constants.
type Lang struct {
	T, Quote, Lambda, If, Let, Letrec Ptr

	Op1s map[Ptr]tag.Op1
	Op2s map[Ptr]tag.Op2
}

// New returns a store for a single evaluation trace. It is not safe for
// concurrent use; independent traces get independent stores.
func New() *Store {
	s := &Store{
		nodes: make(map[Ptr]Node),
		text:  make(map[Ptr]string),
	}
	s.initLang()
	return s
}

// NewShared returns a store whose interning path is safe for concurrent use,
// for deployments that share structure across traces. Intern is atomic with
// respect to the digest-keyed lookup-or-insert: two goroutines interning
// equal content observe the same pointer.
func NewShared() *Store {
	s := New()
	s.mu = new(sync.RWMutex)
	return s
}

func (s *Store) initLang() {
	s.lang = Lang{
		T:      s.Sym("t"),
		Quote:  s.Sym("quote"),
		Lambda: s.Sym("lambda"),
		If:     s.Sym("if"),
		Let:    s.Sym("let"),
		Letrec: s.Sym("letrec"),
		Op1s:   make(map[Ptr]tag.Op1),
		Op2s:   make(map[Ptr]tag.Op2),
	}
	for _, op := range []tag.Op1{tag.OpCar, tag.OpCdr, tag.OpAtom, tag.OpEmit} {
		s.lang.Op1s[s.Sym(op.String())] = op
	}
	for _, op := range []tag.Op2{
		tag.OpAdd, tag.OpSub, tag.OpMul, tag.OpDiv,
		tag.OpNumEq, tag.OpLess, tag.OpGreater, tag.OpEq, tag.OpCons,
	} {
		s.lang.Op2s[s.Sym(op.String())] = op
	}
}

// Lang returns the interned language symbols of this store.
func (s *Store) Lang() Lang { return s.lang }

// Intern stores a compound node and returns its pointer. Interning is a pure
// function of content: equal nodes yield equal pointers regardless of insert
// order or store instance.
func (s *Store) Intern(n Node) Ptr {
	p := Ptr{Tag: n.Tag, Val: digestNode(n)}
	if s.mu != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if _, ok := s.nodes[p]; !ok {
		s.nodes[p] = n
	}
	return p
}

// Resolve dereferences a compound pointer.
func (s *Store) Resolve(p Ptr) (Node, error) {
	if s.mu != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	n, ok := s.nodes[p]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrNotFound, p.Tag)
	}
	return n, nil
}

// MustResolve dereferences a pointer known to come from Intern. A miss is an
// invariant violation and panics; silently continuing would corrupt the
// address space.
func (s *Store) MustResolve(p Ptr) Node {
	n, err := s.Resolve(p)
	if err != nil {
		panic(fmt.Sprintf("store: dangling pointer %s/%s", p.Tag, p.Val.String()))
	}
	return n
}

// Sym interns a symbol by name. The digest covers the tag and the name
// bytes, so the same name always yields the same pointer across stores and
// process runs.
func (s *Store) Sym(name string) Ptr {
	p := Ptr{Tag: tag.Sym, Val: digestText(tag.Sym, name)}
	s.rememberText(p, name)
	return p
}

// Str interns a string literal.
func (s *Store) Str(v string) Ptr {
	p := Ptr{Tag: tag.Str, Val: digestText(tag.Str, v)}
	s.rememberText(p, v)
	return p
}

func (s *Store) rememberText(p Ptr, v string) {
	if s.mu != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if _, ok := s.text[p]; !ok {
		s.text[p] = v
	}
}

// Text returns the payload of a symbol or string pointer, if this store has
// seen it.
func (s *Store) Text(p Ptr) (string, bool) {
	if s.mu != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	v, ok := s.text[p]
	return v, ok
}

// Cons interns a cons cell.
func (s *Store) Cons(car, cdr Ptr) Ptr {
	return s.Intern(Node{Tag: tag.Cons, Children: [4]Ptr{car, cdr}})
}

// Fun interns a closure over (parameter, body, captured environment).
func (s *Store) Fun(param, body, env Ptr) Ptr {
	return s.Intern(Node{Tag: tag.Fun, Children: [4]Ptr{param, body, env}})
}

// Thunk interns a deferred continuation application: a computed value
// paired with the continuation waiting for it.
func (s *Store) Thunk(value, cont Ptr) Ptr {
	return s.Intern(Node{Tag: tag.Thunk, Children: [4]Ptr{value, cont}})
}

// ExtendEnv pushes a binding onto an environment chain. The parent chain is
// never mutated, so environments share structure across divergent branches.
func (s *Store) ExtendEnv(env, sym, val Ptr) Ptr {
	return s.Intern(Node{Tag: tag.Env, Children: [4]Ptr{sym, val, env}})
}

// ExtendRecEnv pushes a recursive binding. Looking a closure up through a
// recursive binding re-closes it over the binding itself, which is how
// recursion works without reference cycles in a content-addressed arena.
func (s *Store) ExtendRecEnv(env, sym, val Ptr) Ptr {
	return s.Intern(Node{Tag: tag.RecEnv, Children: [4]Ptr{sym, val, env}})
}

// Num builds an immediate numeric pointer. Small values are embedded in the
// pointer and never touch the arena.
func (s *Store) Num(v uint64) Ptr { return NumUint64(v) }

// NumBig builds a numeric pointer from an arbitrary field element.
func (s *Store) NumBig(e fr.Element) Ptr { return NumField(e) }

// Len returns the number of interned compound entries.
func (s *Store) Len() int {
	if s.mu != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return len(s.nodes)
}
