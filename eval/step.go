package eval

import (
	"fmt"

	"github.com/hnfgns/lurk-go/store"
	"github.com/hnfgns/lurk-go/tag"
)

// Continuation node layouts (children, fourth slot is the saved previous
// continuation unless noted):
//
//	CallK   [argExpr, savedEnv, -, prev]
//	Call2K  [fun, -, -, prev]
//	IfK     [then, else, savedEnv, prev]
//	LetK    [sym, body, savedEnv, prev]
//	LetRecK [sym, body, savedEnv, prev]
//	Binop1K [op, arg2, savedEnv, prev]
//	Binop2K [op, val1, -, prev]
//	UnopK   [op, -, -, prev]
//	Thunk   [value, cont, -, -]

// Step applies the machine's transition function once. It is pure and
// total: identical input states yield identical frames, and terminal states
// map to themselves.
func (ev *Evaluator) Step(st State) Frame {
	sp := &stepper{ev: ev, f: Frame{In: st}}
	sp.run(st)
	return sp.f
}

type stepper struct {
	ev *Evaluator
	f  Frame
}

func (sp *stepper) open(slot int, p store.Ptr) store.Node {
	n := sp.ev.s.MustResolve(p)
	sp.f.Aux.Open[slot] = n
	return n
}

func (sp *stepper) build(slot int, n store.Node) store.Ptr {
	p := sp.ev.s.Intern(n)
	sp.f.Aux.Build[slot] = n
	return p
}

func (sp *stepper) out(x ExprRule, k ContRule, o State) {
	sp.f.Rule = mkRule(x, k)
	sp.f.Out = o
}

// halt transitions into an error terminal. Error terminals are data, not
// failures: the trace remains provable.
func (sp *stepper) halt(x ExprRule, k ContRule, code tag.ErrCode, env store.Ptr) {
	sp.out(x, k, State{Expr: store.ErrPtr(code), Env: env, Cont: store.TerminalK()})
}

func (sp *stepper) run(st State) {
	if st.IsTerminal() {
		sp.out(XNoop, KNone, st)
		return
	}
	if st.Expr.Tag == tag.Err {
		sp.out(XErrHalt, KNone, State{Expr: st.Expr, Env: st.Env, Cont: store.TerminalK()})
		return
	}

	switch st.Expr.Tag {
	case tag.Num, tag.Str, tag.Nil, tag.Fun:
		sp.applyCont(XSelfEval, st.Expr, st.Cont, st)

	case tag.Sym:
		if st.Expr.Equal(sp.ev.s.Lang().T) {
			sp.applyCont(XSelfEval, st.Expr, st.Cont, st)
			return
		}
		sp.lookup(st)

	case tag.Thunk:
		n := sp.open(OpenExpr0, st.Expr)
		sp.applyCont(XThunk, n.Children[0], n.Children[1], st)

	case tag.Cons:
		sp.dispatchForm(st)

	default:
		// an environment or continuation in expression position is a
		// malformed state a pointer producer can only build by hand
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
	}
}

// lookup walks the environment chain, at most MaxEnvHops bindings per step.
// The circuit performs the same bounded walk; deeper chains are the
// DepthExceeded terminal, not more work inside one frame.
func (sp *stepper) lookup(st State) {
	env := st.Env
	for hops := 0; ; hops++ {
		if env.IsNil() {
			sp.halt(XSymUnbound, KNone, tag.ErrUnboundVariable, st.Env)
			return
		}
		if hops == sp.ev.maxHops {
			sp.halt(XSymDepth, KNone, tag.ErrDepthExceeded, st.Env)
			return
		}
		if !env.Tag.IsEnv() {
			panic(fmt.Sprintf("eval: malformed environment chain via %s", env.Tag))
		}
		n := sp.ev.s.MustResolve(env)
		sp.f.Aux.Walk = append(sp.f.Aux.Walk, n)
		if n.Children[0].Equal(st.Expr) {
			v := n.Children[1]
			if n.Tag == tag.RecEnv && v.Tag == tag.Fun {
				// re-close the function over its own recursive binding so a
				// self-reference in the body resolves without a cycle
				fn := sp.open(OpenExpr0, v)
				env2 := sp.build(BuildVal0, store.Node{
					Tag:      tag.RecEnv,
					Children: [4]store.Ptr{n.Children[0], v, fn.Children[2]},
				})
				v = sp.build(BuildVal1, store.Node{
					Tag:      tag.Fun,
					Children: [4]store.Ptr{fn.Children[0], fn.Children[1], env2},
				})
			}
			sp.applyCont(XSym, v, st.Cont, st)
			return
		}
		env = n.Children[2]
	}
}

// openCons opens a cons cell in an expression position; a non-cons is a
// malformed core form.
func (sp *stepper) openCons(slot int, p store.Ptr) (car, cdr store.Ptr, ok bool) {
	if p.Tag != tag.Cons {
		return store.Ptr{}, store.Ptr{}, false
	}
	n := sp.open(slot, p)
	return n.Children[0], n.Children[1], true
}

func (sp *stepper) dispatchForm(st State) {
	lang := sp.ev.s.Lang()
	head, rest, ok := sp.openCons(OpenExpr0, st.Expr)
	if !ok {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}

	if head.Tag == tag.Sym {
		switch {
		case head.Equal(lang.Quote):
			sp.formQuote(st, rest)
			return
		case head.Equal(lang.Lambda):
			sp.formLambda(st, rest)
			return
		case head.Equal(lang.If):
			sp.formIf(st, rest)
			return
		case head.Equal(lang.Let):
			sp.formLet(st, rest, tag.LetK, XLet)
			return
		case head.Equal(lang.Letrec):
			sp.formLet(st, rest, tag.LetRecK, XLetRec)
			return
		}
		if op, ok := lang.Op1s[head]; ok {
			sp.formUnop(st, rest, op)
			return
		}
		if op, ok := lang.Op2s[head]; ok {
			sp.formBinop(st, rest, op)
			return
		}
	}
	sp.formCall(st, head, rest)
}

func (sp *stepper) formQuote(st State, rest store.Ptr) {
	quoted, nilTail, ok := sp.openCons(OpenExpr1, rest)
	if !ok || !nilTail.IsNil() {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	sp.applyCont(XQuote, quoted, st.Cont, st)
}

func (sp *stepper) formLambda(st State, rest store.Ptr) {
	param, r2, ok := sp.openCons(OpenExpr1, rest)
	if !ok || param.Tag != tag.Sym {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	body, nilTail, ok := sp.openCons(OpenExpr2, r2)
	if !ok || !nilTail.IsNil() {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	fun := sp.build(BuildVal0, store.Node{
		Tag:      tag.Fun,
		Children: [4]store.Ptr{param, body, st.Env},
	})
	sp.applyCont(XLambda, fun, st.Cont, st)
}

func (sp *stepper) formIf(st State, rest store.Ptr) {
	cond, r2, ok := sp.openCons(OpenExpr1, rest)
	if !ok {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	then, r3, ok := sp.openCons(OpenExpr2, r2)
	if !ok {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	els, nilTail, ok := sp.openCons(OpenExpr3, r3)
	if !ok || !nilTail.IsNil() {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	k := sp.build(BuildCont, store.Node{
		Tag:      tag.IfK,
		Children: [4]store.Ptr{then, els, st.Env, st.Cont},
	})
	sp.out(XIf, KNone, State{Expr: cond, Env: st.Env, Cont: k})
}

func (sp *stepper) formLet(st State, rest store.Ptr, kTag tag.Tag, rule ExprRule) {
	sym, r2, ok := sp.openCons(OpenExpr1, rest)
	if !ok || sym.Tag != tag.Sym {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	val, r3, ok := sp.openCons(OpenExpr2, r2)
	if !ok {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	body, nilTail, ok := sp.openCons(OpenExpr3, r3)
	if !ok || !nilTail.IsNil() {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	k := sp.build(BuildCont, store.Node{
		Tag:      kTag,
		Children: [4]store.Ptr{sym, body, st.Env, st.Cont},
	})
	sp.out(rule, KNone, State{Expr: val, Env: st.Env, Cont: k})
}

func (sp *stepper) formUnop(st State, rest store.Ptr, op tag.Op1) {
	arg, nilTail, ok := sp.openCons(OpenExpr1, rest)
	if !ok || !nilTail.IsNil() {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	k := sp.build(BuildCont, store.Node{
		Tag:      tag.UnopK,
		Children: [4]store.Ptr{store.Op1Ptr(op), {}, {}, st.Cont},
	})
	sp.out(XUnop, KNone, State{Expr: arg, Env: st.Env, Cont: k})
}

func (sp *stepper) formBinop(st State, rest store.Ptr, op tag.Op2) {
	a, r2, ok := sp.openCons(OpenExpr1, rest)
	if !ok {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	b, nilTail, ok := sp.openCons(OpenExpr2, r2)
	if !ok || !nilTail.IsNil() {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	k := sp.build(BuildCont, store.Node{
		Tag:      tag.Binop1K,
		Children: [4]store.Ptr{store.Op2Ptr(op), b, st.Env, st.Cont},
	})
	sp.out(XBinop, KNone, State{Expr: a, Env: st.Env, Cont: k})
}

func (sp *stepper) formCall(st State, f, rest store.Ptr) {
	arg, nilTail, ok := sp.openCons(OpenExpr1, rest)
	if !ok || !nilTail.IsNil() {
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
		return
	}
	k := sp.build(BuildCont, store.Node{
		Tag:      tag.CallK,
		Children: [4]store.Ptr{arg, st.Env, {}, st.Cont},
	})
	sp.out(XCall, KNone, State{Expr: f, Env: st.Env, Cont: k})
}

// applyCont hands a produced value to a continuation. Continuations that in
// turn produce a value defer it through a thunk, so the next step applies
// the next continuation; values never re-enter expression dispatch.
func (sp *stepper) applyCont(x ExprRule, v, cont store.Ptr, st State) {
	sp.f.Aux.Value = v

	switch cont.Tag {
	case tag.Outermost:
		sp.out(x, KOutermost, State{Expr: v, Env: st.Env, Cont: store.TerminalK()})

	case tag.CallK:
		n := sp.open(OpenCont, cont)
		if v.Tag != tag.Fun {
			sp.halt(x, KCallErr, tag.ErrArgument, st.Env)
			return
		}
		k2 := sp.build(BuildCont, store.Node{
			Tag:      tag.Call2K,
			Children: [4]store.Ptr{v, {}, {}, n.Children[3]},
		})
		sp.out(x, KCallK, State{Expr: n.Children[0], Env: n.Children[1], Cont: k2})

	case tag.Call2K:
		n := sp.open(OpenCont, cont)
		fn := sp.open(OpenApply, n.Children[0])
		env2 := sp.build(BuildRes, store.Node{
			Tag:      tag.Env,
			Children: [4]store.Ptr{fn.Children[0], v, fn.Children[2]},
		})
		sp.out(x, KCall2K, State{Expr: fn.Children[1], Env: env2, Cont: n.Children[3]})

	case tag.IfK:
		n := sp.open(OpenCont, cont)
		branch := n.Children[0]
		if v.IsNil() {
			branch = n.Children[1]
		}
		sp.out(x, KIfK, State{Expr: branch, Env: n.Children[2], Cont: n.Children[3]})

	case tag.LetK, tag.LetRecK:
		n := sp.open(OpenCont, cont)
		envTag := tag.Env
		k := KLetK
		if cont.Tag == tag.LetRecK {
			envTag = tag.RecEnv
			k = KLetRecK
		}
		env2 := sp.build(BuildRes, store.Node{
			Tag:      envTag,
			Children: [4]store.Ptr{n.Children[0], v, n.Children[2]},
		})
		sp.out(x, k, State{Expr: n.Children[1], Env: env2, Cont: n.Children[3]})

	case tag.Binop1K:
		n := sp.open(OpenCont, cont)
		k2 := sp.build(BuildCont, store.Node{
			Tag:      tag.Binop2K,
			Children: [4]store.Ptr{n.Children[0], v, {}, n.Children[3]},
		})
		sp.out(x, KBinop1K, State{Expr: n.Children[1], Env: n.Children[2], Cont: k2})

	case tag.Binop2K:
		n := sp.open(OpenCont, cont)
		sp.applyBinop(x, n, v, st)

	case tag.UnopK:
		n := sp.open(OpenCont, cont)
		sp.applyUnop(x, n, v, st)

	default:
		// a value meeting a Dummy or malformed continuation can only be
		// built by hand
		sp.halt(XSyntax, KNone, tag.ErrArgument, st.Env)
	}
}

func (sp *stepper) yield(x ExprRule, k ContRule, r, prev store.Ptr, st State) {
	th := sp.build(BuildCont, store.Node{
		Tag:      tag.Thunk,
		Children: [4]store.Ptr{r, prev},
	})
	sp.out(x, k, State{Expr: th, Env: st.Env, Cont: store.DummyK()})
}

func (sp *stepper) applyBinop(x ExprRule, n store.Node, v2 store.Ptr, st State) {
	op := n.Children[0].Op2Code()
	v1 := n.Children[1]
	prev := n.Children[3]

	if op == tag.OpEq {
		r := sp.boolPtr(v1.Equal(v2))
		sp.yield(x, KBinop2K, r, prev, st)
		return
	}
	if op == tag.OpCons {
		r := sp.build(BuildRes, store.Node{
			Tag:      tag.Cons,
			Children: [4]store.Ptr{v1, v2},
		})
		sp.yield(x, KBinop2K, r, prev, st)
		return
	}

	// remaining operators are numeric
	if v1.Tag != tag.Num || v2.Tag != tag.Num {
		sp.halt(x, KBinopErr, tag.ErrArgument, st.Env)
		return
	}
	var r store.Ptr
	switch op {
	case tag.OpAdd:
		var e = v1.Val
		e.Add(&e, &v2.Val)
		r = store.NumField(e)
	case tag.OpSub:
		var e = v1.Val
		e.Sub(&e, &v2.Val)
		r = store.NumField(e)
	case tag.OpMul:
		var e = v1.Val
		e.Mul(&e, &v2.Val)
		r = store.NumField(e)
	case tag.OpDiv:
		if v2.Val.IsZero() {
			sp.halt(x, KBinopErr, tag.ErrDivByZero, st.Env)
			return
		}
		var e = v1.Val
		e.Div(&e, &v2.Val)
		r = store.NumField(e)
	case tag.OpNumEq:
		r = sp.boolPtr(v1.Val.Equal(&v2.Val))
	case tag.OpLess:
		r = sp.boolPtr(v1.Val.Cmp(&v2.Val) < 0)
	case tag.OpGreater:
		r = sp.boolPtr(v1.Val.Cmp(&v2.Val) > 0)
	default:
		sp.halt(x, KBinopErr, tag.ErrArgument, st.Env)
		return
	}
	sp.yield(x, KBinop2K, r, prev, st)
}

func (sp *stepper) applyUnop(x ExprRule, n store.Node, v store.Ptr, st State) {
	op := n.Children[0].Op1Code()
	prev := n.Children[3]

	var r store.Ptr
	switch op {
	case tag.OpCar, tag.OpCdr:
		switch v.Tag {
		case tag.Nil:
			r = store.NilPtr()
		case tag.Cons:
			cell := sp.open(OpenApply, v)
			if op == tag.OpCar {
				r = cell.Children[0]
			} else {
				r = cell.Children[1]
			}
		default:
			sp.halt(x, KUnopErr, tag.ErrArgument, st.Env)
			return
		}
	case tag.OpAtom:
		r = sp.boolPtr(v.Tag != tag.Cons)
	case tag.OpEmit:
		r = v
		sp.f.Emitted = &v
	default:
		sp.halt(x, KUnopErr, tag.ErrArgument, st.Env)
		return
	}
	sp.yield(x, KUnopK, r, prev, st)
}

func (sp *stepper) boolPtr(b bool) store.Ptr {
	if b {
		return sp.ev.s.Lang().T
	}
	return store.NilPtr()
}
