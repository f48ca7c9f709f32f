package store

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/hnfgns/lurk-go/tag"
)

// Fmt renders a pointer for diagnostics and the CLI. Compound data is
// followed through the arena; pointers this store cannot resolve render as
// their digest.
func (s *Store) Fmt(p Ptr) string {
	var b strings.Builder
	s.fmtPtr(&b, p, 0)
	return b.String()
}

const fmtMaxDepth = 64

func (s *Store) fmtPtr(b *strings.Builder, p Ptr, depth int) {
	if depth > fmtMaxDepth {
		b.WriteString("...")
		return
	}
	switch p.Tag {
	case tag.Nil:
		b.WriteString("nil")
	case tag.Num:
		v := new(big.Int)
		p.Val.BigInt(v)
		b.WriteString(v.String())
	case tag.Sym:
		if name, ok := s.Text(p); ok {
			b.WriteString(name)
		} else {
			fmt.Fprintf(b, "<sym #%s>", shortDigest(p))
		}
	case tag.Str:
		if v, ok := s.Text(p); ok {
			fmt.Fprintf(b, "%q", v)
		} else {
			fmt.Fprintf(b, "<str #%s>", shortDigest(p))
		}
	case tag.Cons:
		s.fmtList(b, p, depth)
	case tag.Fun:
		n, err := s.Resolve(p)
		if err != nil {
			fmt.Fprintf(b, "<fun #%s>", shortDigest(p))
			return
		}
		b.WriteString("<function (")
		s.fmtPtr(b, n.Children[0], depth+1)
		b.WriteString(") ")
		s.fmtPtr(b, n.Children[1], depth+1)
		b.WriteString(">")
	case tag.Thunk:
		b.WriteString("<thunk>")
	case tag.Op:
		if op := p.Op1Code(); op != 0 {
			b.WriteString(op.String())
		} else {
			b.WriteString(p.Op2Code().String())
		}
	case tag.Err:
		fmt.Fprintf(b, "<error: %s>", p.ErrCode())
	case tag.Env, tag.RecEnv:
		s.fmtEnv(b, p, depth)
	default:
		if p.Tag.IsCont() {
			fmt.Fprintf(b, "<cont %s>", p.Tag)
			return
		}
		fmt.Fprintf(b, "<%s #%s>", p.Tag, shortDigest(p))
	}
}

func (s *Store) fmtList(b *strings.Builder, p Ptr, depth int) {
	b.WriteString("(")
	first := true
	for p.Tag == tag.Cons {
		n, err := s.Resolve(p)
		if err != nil {
			b.WriteString("...")
			break
		}
		if !first {
			b.WriteString(" ")
		}
		s.fmtPtr(b, n.Children[0], depth+1)
		first = false
		p = n.Children[1]
	}
	if p.Tag != tag.Nil && p.Tag != tag.Cons {
		b.WriteString(" . ")
		s.fmtPtr(b, p, depth+1)
	}
	b.WriteString(")")
}

func (s *Store) fmtEnv(b *strings.Builder, p Ptr, depth int) {
	b.WriteString("{")
	first := true
	for p.Tag.IsEnv() {
		n, err := s.Resolve(p)
		if err != nil {
			b.WriteString("...")
			break
		}
		if !first {
			b.WriteString(" ")
		}
		s.fmtPtr(b, n.Children[0], depth+1)
		if n.Tag == tag.RecEnv {
			b.WriteString(" <-rec- ")
		} else {
			b.WriteString(" <- ")
		}
		s.fmtPtr(b, n.Children[1], depth+1)
		first = false
		p = n.Children[2]
	}
	b.WriteString("}")
}

func shortDigest(p Ptr) string {
	h := p.Val.Text(16)
	if len(h) > 8 {
		h = h[:8]
	}
	return h
}
