package store

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// The reader parses surface s-expressions and lowers them into the unary
// core language the machine evaluates:
//
//	(lambda (a b) e)   -> (lambda a (lambda b e))
//	(let ((a x) (b y)) e) -> (let a x (let b y e))   likewise letrec
//	(f a b)            -> ((f a) b)
//	(if c t)           -> (if c t nil)
//
// Binary builtins take exactly two arguments, unary builtins exactly one.
// The printer shows core forms; lowering is not reversed.

type reader struct {
	src []rune
	pos int
}

// sexpr is the reader's intermediate form before lowering.
type sexpr interface{}

type sxNum struct{ v *big.Int }
type sxSym struct{ name string }
type sxStr struct{ v string }
type sxList struct{ items []sexpr }

// ReadString parses one expression from src and interns its lowered core
// form.
func (s *Store) ReadString(src string) (Ptr, error) {
	r := &reader{src: []rune(src)}
	sx, err := r.read()
	if err != nil {
		return Ptr{}, err
	}
	r.skipSpace()
	if r.pos < len(r.src) {
		return Ptr{}, fmt.Errorf("read: trailing input at offset %d", r.pos)
	}
	return s.lower(sx)
}

func (r *reader) skipSpace() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		if c == ';' {
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.pos++
			}
			continue
		}
		if !unicode.IsSpace(c) {
			return
		}
		r.pos++
	}
}

func (r *reader) read() (sexpr, error) {
	r.skipSpace()
	if r.pos >= len(r.src) {
		return nil, errors.New("read: unexpected end of input")
	}
	switch c := r.src[r.pos]; {
	case c == '(':
		r.pos++
		return r.readList()
	case c == ')':
		return nil, fmt.Errorf("read: unexpected ')' at offset %d", r.pos)
	case c == '\'':
		r.pos++
		inner, err := r.read()
		if err != nil {
			return nil, err
		}
		return sxList{items: []sexpr{sxSym{name: "quote"}, inner}}, nil
	case c == '"':
		return r.readString()
	default:
		return r.readAtom()
	}
}

func (r *reader) readList() (sexpr, error) {
	var items []sexpr
	for {
		r.skipSpace()
		if r.pos >= len(r.src) {
			return nil, errors.New("read: unterminated list")
		}
		if r.src[r.pos] == ')' {
			r.pos++
			return sxList{items: items}, nil
		}
		item, err := r.read()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (r *reader) readString() (sexpr, error) {
	r.pos++ // opening quote
	var b strings.Builder
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		if c == '"' {
			r.pos++
			return sxStr{v: b.String()}, nil
		}
		if c == '\\' && r.pos+1 < len(r.src) {
			r.pos++
			c = r.src[r.pos]
		}
		b.WriteRune(c)
		r.pos++
	}
	return nil, errors.New("read: unterminated string")
}

func isDelimiter(c rune) bool {
	return unicode.IsSpace(c) || c == '(' || c == ')' || c == '"' || c == ';'
}

func (r *reader) readAtom() (sexpr, error) {
	start := r.pos
	for r.pos < len(r.src) && !isDelimiter(r.src[r.pos]) {
		r.pos++
	}
	text := string(r.src[start:r.pos])
	if v, ok := new(big.Int).SetString(text, 10); ok && text != "-" && text != "+" {
		return sxNum{v: v}, nil
	}
	return sxSym{name: text}, nil
}

// lower interns the core form of a parsed expression.
func (s *Store) lower(sx sexpr) (Ptr, error) {
	switch x := sx.(type) {
	case sxNum:
		var e fr.Element
		e.SetBigInt(x.v)
		return NumField(e), nil
	case sxStr:
		return s.Str(x.v), nil
	case sxSym:
		if x.name == "nil" {
			return NilPtr(), nil
		}
		return s.Sym(x.name), nil
	case sxList:
		return s.lowerList(x.items)
	default:
		return Ptr{}, fmt.Errorf("read: unknown form %T", sx)
	}
}

func (s *Store) lowerList(items []sexpr) (Ptr, error) {
	if len(items) == 0 {
		return NilPtr(), nil
	}
	if head, ok := items[0].(sxSym); ok {
		switch head.name {
		case "quote":
			return s.lowerQuote(items)
		case "lambda":
			return s.lowerLambda(items)
		case "let", "letrec":
			return s.lowerLet(head.name, items)
		case "if":
			return s.lowerIf(items)
		default:
			if _, ok := s.lang.Op1s[s.Sym(head.name)]; ok {
				return s.lowerOp(head.name, items, 1)
			}
			if _, ok := s.lang.Op2s[s.Sym(head.name)]; ok {
				return s.lowerOp(head.name, items, 2)
			}
		}
	}
	return s.lowerApply(items)
}

// list interns a proper list from already-lowered pointers.
func (s *Store) list(ptrs ...Ptr) Ptr {
	out := NilPtr()
	for i := len(ptrs) - 1; i >= 0; i-- {
		out = s.Cons(ptrs[i], out)
	}
	return out
}

// lowerQuoted interns quoted data without lowering: inside a quote, lists
// stay lists.
func (s *Store) lowerQuoted(sx sexpr) (Ptr, error) {
	x, ok := sx.(sxList)
	if !ok {
		return s.lower(sx)
	}
	out := NilPtr()
	for i := len(x.items) - 1; i >= 0; i-- {
		item, err := s.lowerQuoted(x.items[i])
		if err != nil {
			return Ptr{}, err
		}
		out = s.Cons(item, out)
	}
	return out, nil
}

func (s *Store) lowerQuote(items []sexpr) (Ptr, error) {
	if len(items) != 2 {
		return Ptr{}, errors.New("read: quote takes exactly one argument")
	}
	quoted, err := s.lowerQuoted(items[1])
	if err != nil {
		return Ptr{}, err
	}
	return s.list(s.lang.Quote, quoted), nil
}

func (s *Store) lowerLambda(items []sexpr) (Ptr, error) {
	if len(items) != 3 {
		return Ptr{}, errors.New("read: lambda takes a parameter list and a body")
	}
	params, ok := items[1].(sxList)
	if !ok || len(params.items) == 0 {
		return Ptr{}, errors.New("read: lambda requires at least one parameter")
	}
	body, err := s.lower(items[2])
	if err != nil {
		return Ptr{}, err
	}
	for i := len(params.items) - 1; i >= 0; i-- {
		p, ok := params.items[i].(sxSym)
		if !ok {
			return Ptr{}, errors.New("read: lambda parameters must be symbols")
		}
		body = s.list(s.lang.Lambda, s.Sym(p.name), body)
	}
	return body, nil
}

func (s *Store) lowerLet(kind string, items []sexpr) (Ptr, error) {
	if len(items) != 3 {
		return Ptr{}, fmt.Errorf("read: %s takes a binding list and a body", kind)
	}
	binds, ok := items[1].(sxList)
	if !ok || len(binds.items) == 0 {
		return Ptr{}, fmt.Errorf("read: %s requires at least one binding", kind)
	}
	head := s.lang.Let
	if kind == "letrec" {
		head = s.lang.Letrec
	}
	body, err := s.lower(items[2])
	if err != nil {
		return Ptr{}, err
	}
	for i := len(binds.items) - 1; i >= 0; i-- {
		bind, ok := binds.items[i].(sxList)
		if !ok || len(bind.items) != 2 {
			return Ptr{}, fmt.Errorf("read: %s bindings have the form (sym expr)", kind)
		}
		sym, ok := bind.items[0].(sxSym)
		if !ok {
			return Ptr{}, fmt.Errorf("read: %s binds symbols", kind)
		}
		val, err := s.lower(bind.items[1])
		if err != nil {
			return Ptr{}, err
		}
		body = s.list(head, s.Sym(sym.name), val, body)
	}
	return body, nil
}

func (s *Store) lowerIf(items []sexpr) (Ptr, error) {
	if len(items) != 3 && len(items) != 4 {
		return Ptr{}, errors.New("read: if takes a condition and one or two branches")
	}
	cond, err := s.lower(items[1])
	if err != nil {
		return Ptr{}, err
	}
	then, err := s.lower(items[2])
	if err != nil {
		return Ptr{}, err
	}
	els := NilPtr()
	if len(items) == 4 {
		if els, err = s.lower(items[3]); err != nil {
			return Ptr{}, err
		}
	}
	return s.list(s.lang.If, cond, then, els), nil
}

func (s *Store) lowerOp(name string, items []sexpr, arity int) (Ptr, error) {
	if len(items) != arity+1 {
		return Ptr{}, fmt.Errorf("read: %s takes exactly %d argument(s)", name, arity)
	}
	args := make([]Ptr, 0, arity+1)
	args = append(args, s.Sym(name))
	for _, it := range items[1:] {
		p, err := s.lower(it)
		if err != nil {
			return Ptr{}, err
		}
		args = append(args, p)
	}
	return s.list(args...), nil
}

func (s *Store) lowerApply(items []sexpr) (Ptr, error) {
	if len(items) < 2 {
		return Ptr{}, errors.New("read: application requires at least one argument")
	}
	out, err := s.lower(items[0])
	if err != nil {
		return Ptr{}, err
	}
	for _, it := range items[1:] {
		arg, err := s.lower(it)
		if err != nil {
			return Ptr{}, err
		}
		out = s.list(out, arg)
	}
	return out, nil
}
