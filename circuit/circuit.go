// Package circuit encodes one evaluation frame as a fixed-shape gnark
// constraint system.
//
// Every frame synthesizes the same circuit: all hash slots are computed
// unconditionally and rule-specific constraints are gated by boolean
// selectors, so the constraint topology never depends on which rule fired.
// A satisfied instance attests that the machine's transition function,
// applied to the public input state with the public rule selected, produces
// the public output state.
package circuit

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash/mimc"

	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/tag"
)

// PtrVars is an in-circuit pointer: tag and digest-or-inline value.
type PtrVars struct {
	Tag, Val frontend.Variable
}

// StateVars is an in-circuit machine state triple.
type StateVars struct {
	Expr, Env, Cont PtrVars
}

// SlotVars is the preimage of one store entry: a tag and four child
// pointers, nine field elements hashed exactly as the store hashes them.
type SlotVars struct {
	Tag      frontend.Variable
	Children [4]PtrVars
}

// StepCircuit is the uniform per-frame relation. In, Out and Rule are
// public; the selectors and slots are the prover's auxiliary witness.
type StepCircuit struct {
	In   StateVars         `gnark:",public"`
	Out  StateVars         `gnark:",public"`
	Rule frontend.Variable `gnark:",public"`

	ExprSel [eval.NbExprRules]frontend.Variable
	ContSel [eval.NbContRules]frontend.Variable

	// Value is the value handed to the continuation, when the expression
	// branch produces one.
	Value PtrVars

	// Walk holds the environment nodes visited by symbol lookup, one per
	// permitted hop; Open and Build are the fixed-role entry openings and
	// constructions of eval's slot discipline.
	Walk  []SlotVars
	Open  [eval.NumOpenSlots]SlotVars
	Build [eval.NumBuildSlots]SlotVars

	Params StepParams `gnark:"-"`
}

// New returns a circuit template for the given parameters. The same
// template shape serves every frame of every trace proved under these
// parameters.
func New(params StepParams) *StepCircuit {
	return &StepCircuit{
		Walk:   make([]SlotVars, params.MaxEnvHops),
		Params: params,
	}
}

// builder carries the per-Define shared signals.
type builder struct {
	api frontend.API
	c   *StepCircuit

	walkD  []frontend.Variable
	openD  [eval.NumOpenSlots]frontend.Variable
	buildD [eval.NumBuildSlots]frontend.Variable

	// effective continuation: the thunk's saved continuation when the
	// thunk branch fired, the input continuation otherwise
	kPtr PtrVars
}

// Define declares the step relation.
func (c *StepCircuit) Define(api frontend.API) error {
	b := &builder{api: api, c: c}

	if err := b.hashSlots(); err != nil {
		return err
	}
	b.selectors()
	b.stateShape()
	b.envWalk()
	b.producers()
	b.syntaxHalt()
	b.descents()
	b.continuations()
	return nil
}

// hashSlots digests every slot preimage with the in-circuit MiMC, matching
// the store's native digests element for element.
func (b *builder) hashSlots() error {
	digest := func(s SlotVars) (frontend.Variable, error) {
		h, err := mimc.NewMiMC(b.api)
		if err != nil {
			return nil, err
		}
		h.Write(s.Tag)
		for _, ch := range s.Children {
			h.Write(ch.Tag, ch.Val)
		}
		return h.Sum(), nil
	}

	b.walkD = make([]frontend.Variable, len(b.c.Walk))
	for i, s := range b.c.Walk {
		d, err := digest(s)
		if err != nil {
			return err
		}
		b.walkD[i] = d
	}
	for i, s := range b.c.Open {
		d, err := digest(s)
		if err != nil {
			return err
		}
		b.openD[i] = d
	}
	for i, s := range b.c.Build {
		d, err := digest(s)
		if err != nil {
			return err
		}
		b.buildD[i] = d
	}
	return nil
}

// --- small constraint helpers ---

func (b *builder) eq(x, y frontend.Variable) frontend.Variable {
	return b.api.IsZero(b.api.Sub(x, y))
}

func (b *builder) eqc(x frontend.Variable, t tag.Tag) frontend.Variable {
	return b.eq(x, uint64(t))
}

// imply enforces x == y whenever sel is 1.
func (b *builder) imply(sel, x, y frontend.Variable) {
	b.api.AssertIsEqual(b.api.Mul(sel, b.api.Sub(x, y)), 0)
}

// implyPtr enforces pointer equality under sel.
func (b *builder) implyPtr(sel frontend.Variable, p, q PtrVars) {
	b.imply(sel, p.Tag, q.Tag)
	b.imply(sel, p.Val, q.Val)
}

// implyPtrConst enforces p == (t, val) under sel.
func (b *builder) implyPtrConst(sel frontend.Variable, p PtrVars, t tag.Tag, val interface{}) {
	b.imply(sel, p.Tag, uint64(t))
	b.imply(sel, p.Val, val)
}

func (b *builder) implyZeroPtr(sel frontend.Variable, p PtrVars) {
	b.implyPtrConst(sel, p, tag.Nil, 0)
}

func (b *builder) pickPtr(sel frontend.Variable, x, y PtrVars) PtrVars {
	return PtrVars{
		Tag: b.api.Select(sel, x.Tag, y.Tag),
		Val: b.api.Select(sel, x.Val, y.Val),
	}
}

func (b *builder) nilPtr() PtrVars { return PtrVars{Tag: 0, Val: 0} }

func (b *builder) tPtr() PtrVars {
	return PtrVars{Tag: uint64(tag.Sym), Val: b.c.Params.T}
}

func (b *builder) boolPtr(flag frontend.Variable) PtrVars {
	return b.pickPtr(flag, b.tPtr(), b.nilPtr())
}

// haltOut enforces the error-terminal output shape under sel.
func (b *builder) haltOut(sel frontend.Variable, code frontend.Variable) {
	c := b.c
	b.imply(sel, c.Out.Expr.Tag, uint64(tag.Err))
	b.imply(sel, c.Out.Expr.Val, code)
	b.implyPtr(sel, c.Out.Env, c.In.Env)
	b.implyPtrConst(sel, c.Out.Cont, tag.Terminal, 0)
}

// consOpen enforces, under sel, that open slot i is the cons cell behind p,
// and returns its (car, cdr).
func (b *builder) consOpen(sel frontend.Variable, i int, p PtrVars) (PtrVars, PtrVars) {
	b.imply(sel, p.Tag, uint64(tag.Cons))
	b.imply(sel, b.c.Open[i].Tag, uint64(tag.Cons))
	b.imply(sel, b.openD[i], p.Val)
	return b.c.Open[i].Children[0], b.c.Open[i].Children[1]
}

// --- selector block ---

func (b *builder) selectors() {
	api, c := b.api, b.c

	sumE := frontend.Variable(0)
	ruleE := frontend.Variable(0)
	for i, s := range c.ExprSel {
		api.AssertIsBoolean(s)
		sumE = api.Add(sumE, s)
		ruleE = api.Add(ruleE, api.Mul(s, i))
	}
	api.AssertIsEqual(sumE, 1)

	sumK := frontend.Variable(0)
	ruleK := frontend.Variable(0)
	for j, s := range c.ContSel {
		api.AssertIsBoolean(s)
		sumK = api.Add(sumK, s)
		ruleK = api.Add(ruleK, api.Mul(s, j))
	}
	api.AssertIsEqual(sumK, 1)

	api.AssertIsEqual(c.Rule, api.Add(api.Mul(ruleE, 256), ruleK))

	// branches that do not hand a value to a continuation pair with KNone
	noValue := frontend.Variable(0)
	for _, x := range []eval.ExprRule{
		eval.XNoop, eval.XSymUnbound, eval.XSymDepth,
		eval.XIf, eval.XLet, eval.XLetRec,
		eval.XBinop, eval.XUnop, eval.XCall,
		eval.XErrHalt, eval.XSyntax,
	} {
		noValue = api.Add(noValue, c.ExprSel[x])
	}
	api.AssertIsEqual(c.ContSel[eval.KNone], noValue)

	// effective continuation: the thunk carries its own
	b.kPtr = b.pickPtr(c.ExprSel[eval.XThunk], c.Open[0].Children[1], c.In.Cont)
}

// stateShape pins the input-state tags each branch requires, and the
// fixed-point and halting branches.
func (b *builder) stateShape() {
	c := b.c

	// only the fixed point runs on a terminal state
	notNoop := b.api.Sub(1, c.ExprSel[eval.XNoop])
	b.imply(notNoop, b.eqc(c.In.Cont.Tag, tag.Terminal), 0)

	// fixed point: output is the input, unchanged
	sel := c.ExprSel[eval.XNoop]
	b.imply(sel, c.In.Cont.Tag, uint64(tag.Terminal))
	b.implyPtr(sel, c.Out.Expr, c.In.Expr)
	b.implyPtr(sel, c.Out.Env, c.In.Env)
	b.implyPtr(sel, c.Out.Cont, c.In.Cont)

	// an error expression halts, preserving the error value
	sel = c.ExprSel[eval.XErrHalt]
	b.imply(sel, c.In.Expr.Tag, uint64(tag.Err))
	b.implyPtr(sel, c.Out.Expr, c.In.Expr)
	b.implyPtr(sel, c.Out.Env, c.In.Env)
	b.implyPtrConst(sel, c.Out.Cont, tag.Terminal, 0)

	// a malformed form halts in an argument error; syntaxHalt pins the
	// input shapes that justify selecting the branch
	b.haltOut(c.ExprSel[eval.XSyntax], frontend.Variable(uint64(tag.ErrArgument)))

	// compound dispatch requires a cons expression
	for _, x := range []eval.ExprRule{
		eval.XQuote, eval.XLambda, eval.XIf, eval.XLet, eval.XLetRec,
		eval.XBinop, eval.XUnop, eval.XCall,
	} {
		b.imply(c.ExprSel[x], c.In.Expr.Tag, uint64(tag.Cons))
	}
	for _, x := range []eval.ExprRule{eval.XSym, eval.XSymUnbound, eval.XSymDepth} {
		b.imply(c.ExprSel[x], c.In.Expr.Tag, uint64(tag.Sym))
	}
}

// envWalk constrains the bounded environment traversal shared by the three
// symbol branches. Chain nodes are opened through the walk slots while the
// walk is live; the walk ends by finding the symbol, hitting the empty
// environment, or exhausting the hop budget.
func (b *builder) envWalk() {
	api, c := b.api, b.c

	symSel := api.Add(
		c.ExprSel[eval.XSym],
		c.ExprSel[eval.XSymUnbound],
		c.ExprSel[eval.XSymDepth],
	)

	p := c.In.Env
	active := frontend.Variable(1)
	found := frontend.Variable(0)
	foundRec := frontend.Variable(0)
	nilHit := frontend.Variable(0)
	foundVal := b.nilPtr()

	for i, slot := range c.Walk {
		pNil := b.eqc(p.Tag, tag.Nil)
		walking := api.Mul(active, api.Sub(1, pNil))
		g := api.Mul(symSel, walking)

		// the slot opens the current chain pointer, which must be a binding
		isRec := b.eqc(slot.Tag, tag.RecEnv)
		envish := api.Add(b.eqc(slot.Tag, tag.Env), isRec)
		b.imply(g, envish, 1)
		b.imply(g, slot.Tag, p.Tag)
		b.imply(g, b.walkD[i], p.Val)
		b.imply(g, slot.Children[0].Tag, uint64(tag.Sym))

		hit := api.Mul(walking, b.eq(slot.Children[0].Val, c.In.Expr.Val))
		foundVal = b.pickPtr(hit, slot.Children[1], foundVal)
		foundRec = api.Add(foundRec, api.Mul(hit, isRec))
		found = api.Add(found, hit)
		nilHit = api.Add(nilHit, api.Mul(active, pNil))

		p = b.pickPtr(walking, slot.Children[2], p)
		active = api.Sub(walking, hit)
	}
	// a chain ending exactly at the budget is still unbound; only a live,
	// non-empty chain after the last hop exceeds the depth
	pNilEnd := b.eqc(p.Tag, tag.Nil)
	nilHit = api.Add(nilHit, api.Mul(active, pNilEnd))
	depthHit := api.Mul(active, api.Sub(1, pNilEnd))

	b.imply(c.ExprSel[eval.XSym], found, 1)
	b.imply(c.ExprSel[eval.XSymUnbound], nilHit, 1)
	b.imply(c.ExprSel[eval.XSymDepth], depthHit, 1)

	b.haltOut(c.ExprSel[eval.XSymUnbound], frontend.Variable(uint64(tag.ErrUnboundVariable)))
	b.haltOut(c.ExprSel[eval.XSymDepth], frontend.Variable(uint64(tag.ErrDepthExceeded)))

	// a function fetched through a recursive binding is re-closed over the
	// binding itself
	recFun := api.Mul(foundRec, b.eqc(foundVal.Tag, tag.Fun))
	sel := c.ExprSel[eval.XSym]
	g := api.Mul(sel, recFun)

	fn := c.Open[0]
	b.imply(g, fn.Tag, uint64(tag.Fun))
	b.imply(g, b.openD[0], foundVal.Val)

	ext := c.Build[eval.BuildVal0]
	b.imply(g, ext.Tag, uint64(tag.RecEnv))
	b.imply(g, ext.Children[0].Tag, uint64(tag.Sym))
	b.imply(g, ext.Children[0].Val, c.In.Expr.Val)
	b.implyPtr(g, ext.Children[1], foundVal)
	b.implyPtr(g, ext.Children[2], fn.Children[2])
	b.implyZeroPtr(g, ext.Children[3])

	reclosed := c.Build[eval.BuildVal1]
	b.imply(g, reclosed.Tag, uint64(tag.Fun))
	b.implyPtr(g, reclosed.Children[0], fn.Children[0])
	b.implyPtr(g, reclosed.Children[1], fn.Children[1])
	b.implyPtrConst(g, reclosed.Children[2], tag.RecEnv, b.buildD[eval.BuildVal0])
	b.implyZeroPtr(g, reclosed.Children[3])

	produced := b.pickPtr(recFun,
		PtrVars{Tag: uint64(tag.Fun), Val: b.buildD[eval.BuildVal1]},
		foundVal,
	)
	b.implyPtr(sel, c.Value, produced)
}

// producers constrains the remaining value-producing branches: literals,
// quote, lambda and thunk collapse.
func (b *builder) producers() {
	api, c := b.api, b.c

	// literals and t evaluate to themselves
	sel := c.ExprSel[eval.XSelfEval]
	isT := api.Mul(b.eqc(c.In.Expr.Tag, tag.Sym), b.eq(c.In.Expr.Val, c.Params.T))
	valueish := api.Add(
		b.eqc(c.In.Expr.Tag, tag.Nil),
		b.eqc(c.In.Expr.Tag, tag.Num),
		b.eqc(c.In.Expr.Tag, tag.Str),
		b.eqc(c.In.Expr.Tag, tag.Fun),
		isT,
	)
	b.imply(sel, valueish, 1)
	b.implyPtr(sel, c.Value, c.In.Expr)

	// quote passes its datum through untouched
	sel = c.ExprSel[eval.XQuote]
	head, r1 := b.consOpen(sel, 0, c.In.Expr)
	b.implyPtrConst(sel, head, tag.Sym, c.Params.Quote)
	quoted, r2 := b.consOpen(sel, 1, r1)
	b.implyZeroPtr(sel, r2)
	b.implyPtr(sel, c.Value, quoted)

	// lambda closes over the current environment
	sel = c.ExprSel[eval.XLambda]
	head, r1 = b.consOpen(sel, 0, c.In.Expr)
	b.implyPtrConst(sel, head, tag.Sym, c.Params.Lambda)
	param, r2 := b.consOpen(sel, 1, r1)
	b.imply(sel, param.Tag, uint64(tag.Sym))
	body, r3 := b.consOpen(sel, 2, r2)
	b.implyZeroPtr(sel, r3)

	fun := c.Build[eval.BuildVal0]
	b.imply(sel, fun.Tag, uint64(tag.Fun))
	b.implyPtr(sel, fun.Children[0], param)
	b.implyPtr(sel, fun.Children[1], body)
	b.implyPtr(sel, fun.Children[2], c.In.Env)
	b.implyZeroPtr(sel, fun.Children[3])
	b.implyPtrConst(sel, c.Value, tag.Fun, b.buildD[eval.BuildVal0])

	// a thunk re-applies its saved continuation to its saved value
	sel = c.ExprSel[eval.XThunk]
	b.imply(sel, c.In.Expr.Tag, uint64(tag.Thunk))
	b.imply(sel, c.In.Cont.Tag, uint64(tag.Dummy))
	th := c.Open[0]
	b.imply(sel, th.Tag, uint64(tag.Thunk))
	b.imply(sel, b.openD[0], c.In.Expr.Val)
	b.implyPtr(sel, c.Value, th.Children[0])
}

// syntaxHalt requires the malformed-form branch to exhibit one of the
// machine's actual failure shapes: an expression tag outside the dispatch
// table, a finished value meeting a continuation no rule applies, or a cons
// form whose spine is proven broken through the open slots. Spine breakage
// claims are positive: each one needs the verified opening of every cell up
// to the broken position, so a well-formed form admits no failure witness.
func (b *builder) syntaxHalt() {
	api, c := b.api, b.c
	sel := c.ExprSel[eval.XSyntax]
	e, k := c.In.Expr, c.In.Cont

	junk := frontend.Variable(1)
	for _, t := range []tag.Tag{
		tag.Nil, tag.Cons, tag.Sym, tag.Num, tag.Str, tag.Fun, tag.Thunk, tag.Err,
	} {
		junk = api.Sub(junk, b.eqc(e.Tag, t))
	}

	isT := api.Mul(b.eqc(e.Tag, tag.Sym), b.eq(e.Val, c.Params.T))
	valueish := api.Add(
		b.eqc(e.Tag, tag.Nil), b.eqc(e.Tag, tag.Num),
		b.eqc(e.Tag, tag.Str), b.eqc(e.Tag, tag.Fun), isT,
	)
	orphan := frontend.Variable(1)
	for _, t := range []tag.Tag{
		tag.Outermost, tag.CallK, tag.Call2K, tag.IfK,
		tag.LetK, tag.LetRecK, tag.Binop1K, tag.Binop2K, tag.UnopK,
	} {
		orphan = api.Sub(orphan, b.eqc(k.Tag, t))
	}

	// open the top cell and classify the head the way dispatch does
	isConsE := b.eqc(e.Tag, tag.Cons)
	g0 := api.Mul(sel, isConsE)
	top := c.Open[0]
	b.imply(g0, top.Tag, uint64(tag.Cons))
	b.imply(g0, b.openD[0], e.Val)
	head, rest := top.Children[0], top.Children[1]

	symHead := b.eqc(head.Tag, tag.Sym)
	formOf := func(d *big.Int) frontend.Variable {
		return api.Mul(symHead, b.eq(head.Val, d))
	}
	isQuote := formOf(c.Params.Quote)
	isLambda := formOf(c.Params.Lambda)
	isIf := formOf(c.Params.If)
	isLet := api.Add(formOf(c.Params.Let), formOf(c.Params.Letrec))
	isOp1 := frontend.Variable(0)
	for _, d := range c.Params.Op1Syms[1:] {
		isOp1 = api.Add(isOp1, formOf(d))
	}
	isOp2 := frontend.Variable(0)
	for _, d := range c.Params.Op2Syms[1:] {
		isOp2 = api.Add(isOp2, formOf(d))
	}
	isCall := api.Sub(1, api.Add(isQuote, isLambda, isIf, isLet, isOp1, isOp2))

	// openOf is 1 exactly when slot i is the verified cell behind p; the
	// slot's children are meaningful only under that flag
	openOf := func(i int, p PtrVars) (frontend.Variable, PtrVars, PtrVars) {
		o := api.Mul(
			b.eqc(p.Tag, tag.Cons),
			api.Mul(b.eqc(c.Open[i].Tag, tag.Cons), b.eq(b.openD[i], p.Val)),
		)
		return o, c.Open[i].Children[0], c.Open[i].Children[1]
	}
	notCons := func(p PtrVars) frontend.Variable { return api.Sub(1, b.eqc(p.Tag, tag.Cons)) }
	notNil := func(p PtrVars) frontend.Variable { return api.Sub(1, b.eqc(p.Tag, tag.Nil)) }

	// forms share one spine: slot i+1 opens the tail of slot i
	o1, first, t1 := openOf(1, rest)
	o2, _, t2 := openOf(2, t1)
	o3, _, t3 := openOf(3, t2)
	symFirst := b.eqc(first.Tag, tag.Sym)

	// (head x): quote, unary builtins and application
	oneBad := api.Add(notCons(rest), api.Mul(o1, notNil(t1)))
	// (head x y): binary builtins
	binBad := api.Add(
		notCons(rest),
		api.Mul(o1, notCons(t1)),
		api.Mul(o1, api.Mul(o2, notNil(t2))),
	)
	// (lambda sym body)
	lamBad := api.Add(
		notCons(rest),
		api.Mul(o1, api.Sub(1, symFirst)),
		api.Mul(o1, api.Mul(symFirst, notCons(t1))),
		api.Mul(o1, api.Mul(symFirst, api.Mul(o2, notNil(t2)))),
	)
	// (if cond then else)
	ifBad := api.Add(
		notCons(rest),
		api.Mul(o1, notCons(t1)),
		api.Mul(o1, api.Mul(o2, notCons(t2))),
		api.Mul(o1, api.Mul(o2, api.Mul(o3, notNil(t3)))),
	)
	// (let sym val body), likewise letrec
	letBad := api.Add(
		notCons(rest),
		api.Mul(o1, api.Sub(1, symFirst)),
		api.Mul(o1, api.Mul(symFirst, notCons(t1))),
		api.Mul(o1, api.Mul(symFirst, api.Mul(o2, notCons(t2)))),
		api.Mul(o1, api.Mul(symFirst, api.Mul(o2, api.Mul(o3, notNil(t3))))),
	)

	formBad := api.Add(
		api.Mul(api.Add(isQuote, isOp1, isCall), oneBad),
		api.Mul(isOp2, binBad),
		api.Mul(isLambda, lamBad),
		api.Mul(isIf, ifBad),
		api.Mul(isLet, letBad),
	)

	failure := api.Add(junk, api.Mul(valueish, orphan), api.Mul(isConsE, formBad))
	b.imply(sel, failure, 1)
}
