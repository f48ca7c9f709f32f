package circuit

import (
	"github.com/consensys/gnark/frontend"

	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/tag"
)

// descents constrains the branches that push a continuation and descend
// into a sub-expression without producing a value.
func (b *builder) descents() {
	b.descentIf()
	b.descentLet(eval.XLet, tag.LetK)
	b.descentLet(eval.XLetRec, tag.LetRecK)
	b.descentBinop()
	b.descentUnop()
	b.descentCall()
}

// pushOut pins the descent output: sub-expression, environment, and the
// freshly built continuation.
func (b *builder) pushOut(sel frontend.Variable, sub PtrVars, kTag tag.Tag) {
	c := b.c
	b.implyPtr(sel, c.Out.Expr, sub)
	b.implyPtr(sel, c.Out.Env, c.In.Env)
	b.implyPtrConst(sel, c.Out.Cont, kTag, b.buildD[eval.BuildCont])
}

func (b *builder) descentIf() {
	c := b.c
	sel := c.ExprSel[eval.XIf]

	head, r1 := b.consOpen(sel, 0, c.In.Expr)
	b.implyPtrConst(sel, head, tag.Sym, c.Params.If)
	cond, r2 := b.consOpen(sel, 1, r1)
	then, r3 := b.consOpen(sel, 2, r2)
	els, r4 := b.consOpen(sel, 3, r3)
	b.implyZeroPtr(sel, r4)

	k := c.Build[eval.BuildCont]
	b.imply(sel, k.Tag, uint64(tag.IfK))
	b.implyPtr(sel, k.Children[0], then)
	b.implyPtr(sel, k.Children[1], els)
	b.implyPtr(sel, k.Children[2], c.In.Env)
	b.implyPtr(sel, k.Children[3], c.In.Cont)

	b.pushOut(sel, cond, tag.IfK)
}

func (b *builder) descentLet(rule eval.ExprRule, kTag tag.Tag) {
	c := b.c
	sel := c.ExprSel[rule]

	headConst := c.Params.Let
	if kTag == tag.LetRecK {
		headConst = c.Params.Letrec
	}
	head, r1 := b.consOpen(sel, 0, c.In.Expr)
	b.implyPtrConst(sel, head, tag.Sym, headConst)
	sym, r2 := b.consOpen(sel, 1, r1)
	b.imply(sel, sym.Tag, uint64(tag.Sym))
	val, r3 := b.consOpen(sel, 2, r2)
	body, r4 := b.consOpen(sel, 3, r3)
	b.implyZeroPtr(sel, r4)

	k := c.Build[eval.BuildCont]
	b.imply(sel, k.Tag, uint64(kTag))
	b.implyPtr(sel, k.Children[0], sym)
	b.implyPtr(sel, k.Children[1], body)
	b.implyPtr(sel, k.Children[2], c.In.Env)
	b.implyPtr(sel, k.Children[3], c.In.Cont)

	b.pushOut(sel, val, kTag)
}

func (b *builder) descentBinop() {
	api, c := b.api, b.c
	sel := c.ExprSel[eval.XBinop]

	head, r1 := b.consOpen(sel, 0, c.In.Expr)
	b.imply(sel, head.Tag, uint64(tag.Sym))
	a, r2 := b.consOpen(sel, 1, r1)
	arg2, r3 := b.consOpen(sel, 2, r2)
	b.implyZeroPtr(sel, r3)

	k := c.Build[eval.BuildCont]
	b.imply(sel, k.Tag, uint64(tag.Binop1K))
	b.imply(sel, k.Children[0].Tag, uint64(tag.Op))

	// the claimed opcode must match the head symbol
	opv := k.Children[0].Val
	opHit := frontend.Variable(0)
	symExpect := frontend.Variable(0)
	for op := tag.OpAdd; op <= tag.OpCons; op++ {
		is := b.eq(opv, op2Val(op))
		opHit = api.Add(opHit, is)
		symExpect = api.Add(symExpect, api.Mul(is, c.Params.Op2Syms[op]))
	}
	b.imply(sel, opHit, 1)
	b.imply(sel, head.Val, symExpect)

	b.implyPtr(sel, k.Children[1], arg2)
	b.implyPtr(sel, k.Children[2], c.In.Env)
	b.implyPtr(sel, k.Children[3], c.In.Cont)

	b.pushOut(sel, a, tag.Binop1K)
}

func (b *builder) descentUnop() {
	api, c := b.api, b.c
	sel := c.ExprSel[eval.XUnop]

	head, r1 := b.consOpen(sel, 0, c.In.Expr)
	b.imply(sel, head.Tag, uint64(tag.Sym))
	a, r2 := b.consOpen(sel, 1, r1)
	b.implyZeroPtr(sel, r2)

	k := c.Build[eval.BuildCont]
	b.imply(sel, k.Tag, uint64(tag.UnopK))
	b.imply(sel, k.Children[0].Tag, uint64(tag.Op))

	opv := k.Children[0].Val
	opHit := frontend.Variable(0)
	symExpect := frontend.Variable(0)
	for op := tag.OpCar; op <= tag.OpEmit; op++ {
		is := b.eq(opv, op1Val(op))
		opHit = api.Add(opHit, is)
		symExpect = api.Add(symExpect, api.Mul(is, c.Params.Op1Syms[op]))
	}
	b.imply(sel, opHit, 1)
	b.imply(sel, head.Val, symExpect)

	b.implyZeroPtr(sel, k.Children[1])
	b.implyZeroPtr(sel, k.Children[2])
	b.implyPtr(sel, k.Children[3], c.In.Cont)

	b.pushOut(sel, a, tag.UnopK)
}

func (b *builder) descentCall() {
	api, c := b.api, b.c
	sel := c.ExprSel[eval.XCall]

	f, r1 := b.consOpen(sel, 0, c.In.Expr)
	arg, r2 := b.consOpen(sel, 1, r1)
	b.implyZeroPtr(sel, r2)

	// an operator in symbol position must not be a special form
	isSym := b.eqc(f.Tag, tag.Sym)
	notSpecial := frontend.Variable(1)
	for _, d := range c.Params.specialFormDigests() {
		notSpecial = api.Mul(notSpecial, api.Sub(1, b.eq(f.Val, d)))
	}
	b.imply(api.Mul(sel, isSym), notSpecial, 1)

	k := c.Build[eval.BuildCont]
	b.imply(sel, k.Tag, uint64(tag.CallK))
	b.implyPtr(sel, k.Children[0], arg)
	b.implyPtr(sel, k.Children[1], c.In.Env)
	b.implyZeroPtr(sel, k.Children[2])
	b.implyPtr(sel, k.Children[3], c.In.Cont)

	b.pushOut(sel, f, tag.CallK)
}

// continuations constrains the application of the effective continuation to
// the produced value.
func (b *builder) continuations() {
	b.contOutermost()
	b.contCall()
	b.contCall2()
	b.contIf()
	b.contLet(eval.KLetK, tag.LetK, tag.Env)
	b.contLet(eval.KLetRecK, tag.LetRecK, tag.RecEnv)
	b.contBinop1()
	b.contBinop2()
	b.contUnop()
}

// linkK enforces, under sel, that the effective continuation has the given
// tag and that the OpenCont slot is its node.
func (b *builder) linkK(sel frontend.Variable, kTag tag.Tag) SlotVars {
	k := b.c.Open[eval.OpenCont]
	b.imply(sel, b.kPtr.Tag, uint64(kTag))
	b.imply(sel, k.Tag, uint64(kTag))
	b.imply(sel, b.openD[eval.OpenCont], b.kPtr.Val)
	return k
}

// yieldOut enforces the deferred-value output: a fresh thunk carrying the
// result and the saved previous continuation, paired with the dummy
// continuation.
func (b *builder) yieldOut(sel frontend.Variable, r, prev PtrVars) {
	c := b.c
	th := c.Build[eval.BuildCont]
	b.imply(sel, th.Tag, uint64(tag.Thunk))
	b.implyPtr(sel, th.Children[0], r)
	b.implyPtr(sel, th.Children[1], prev)
	b.implyZeroPtr(sel, th.Children[2])
	b.implyZeroPtr(sel, th.Children[3])

	b.implyPtrConst(sel, c.Out.Expr, tag.Thunk, b.buildD[eval.BuildCont])
	b.implyPtr(sel, c.Out.Env, c.In.Env)
	b.implyPtrConst(sel, c.Out.Cont, tag.Dummy, 0)
}

func (b *builder) contOutermost() {
	c := b.c
	sel := c.ContSel[eval.KOutermost]
	b.imply(sel, b.kPtr.Tag, uint64(tag.Outermost))
	b.implyPtr(sel, c.Out.Expr, c.Value)
	b.implyPtr(sel, c.Out.Env, c.In.Env)
	b.implyPtrConst(sel, c.Out.Cont, tag.Terminal, 0)
}

func (b *builder) contCall() {
	c := b.c

	sel := c.ContSel[eval.KCallK]
	k := b.linkK(sel, tag.CallK)
	b.imply(sel, c.Value.Tag, uint64(tag.Fun))

	k2 := c.Build[eval.BuildCont]
	b.imply(sel, k2.Tag, uint64(tag.Call2K))
	b.implyPtr(sel, k2.Children[0], c.Value)
	b.implyZeroPtr(sel, k2.Children[1])
	b.implyZeroPtr(sel, k2.Children[2])
	b.implyPtr(sel, k2.Children[3], k.Children[3])

	b.implyPtr(sel, c.Out.Expr, k.Children[0])
	b.implyPtr(sel, c.Out.Env, k.Children[1])
	b.implyPtrConst(sel, c.Out.Cont, tag.Call2K, b.buildD[eval.BuildCont])

	// applying a non-function halts
	sel = c.ContSel[eval.KCallErr]
	b.linkK(sel, tag.CallK)
	b.imply(sel, b.eqc(c.Value.Tag, tag.Fun), 0)
	b.haltOut(sel, frontend.Variable(uint64(tag.ErrArgument)))
}

func (b *builder) contCall2() {
	c := b.c
	sel := c.ContSel[eval.KCall2K]
	k := b.linkK(sel, tag.Call2K)

	fnPtr := k.Children[0]
	b.imply(sel, fnPtr.Tag, uint64(tag.Fun))
	fn := c.Open[eval.OpenApply]
	b.imply(sel, fn.Tag, uint64(tag.Fun))
	b.imply(sel, b.openD[eval.OpenApply], fnPtr.Val)

	ext := c.Build[eval.BuildRes]
	b.imply(sel, ext.Tag, uint64(tag.Env))
	b.implyPtr(sel, ext.Children[0], fn.Children[0])
	b.implyPtr(sel, ext.Children[1], c.Value)
	b.implyPtr(sel, ext.Children[2], fn.Children[2])
	b.implyZeroPtr(sel, ext.Children[3])

	b.implyPtr(sel, c.Out.Expr, fn.Children[1])
	b.implyPtrConst(sel, c.Out.Env, tag.Env, b.buildD[eval.BuildRes])
	b.implyPtr(sel, c.Out.Cont, k.Children[3])
}

func (b *builder) contIf() {
	c := b.c
	sel := c.ContSel[eval.KIfK]
	k := b.linkK(sel, tag.IfK)

	condNil := b.eqc(c.Value.Tag, tag.Nil)
	branch := b.pickPtr(condNil, k.Children[1], k.Children[0])
	b.implyPtr(sel, c.Out.Expr, branch)
	b.implyPtr(sel, c.Out.Env, k.Children[2])
	b.implyPtr(sel, c.Out.Cont, k.Children[3])
}

func (b *builder) contLet(rule eval.ContRule, kTag, envTag tag.Tag) {
	c := b.c
	sel := c.ContSel[rule]
	k := b.linkK(sel, kTag)

	ext := c.Build[eval.BuildRes]
	b.imply(sel, ext.Tag, uint64(envTag))
	b.implyPtr(sel, ext.Children[0], k.Children[0])
	b.implyPtr(sel, ext.Children[1], c.Value)
	b.implyPtr(sel, ext.Children[2], k.Children[2])
	b.implyZeroPtr(sel, ext.Children[3])

	b.implyPtr(sel, c.Out.Expr, k.Children[1])
	b.implyPtrConst(sel, c.Out.Env, envTag, b.buildD[eval.BuildRes])
	b.implyPtr(sel, c.Out.Cont, k.Children[3])
}

func (b *builder) contBinop1() {
	c := b.c
	sel := c.ContSel[eval.KBinop1K]
	k := b.linkK(sel, tag.Binop1K)

	k2 := c.Build[eval.BuildCont]
	b.imply(sel, k2.Tag, uint64(tag.Binop2K))
	b.implyPtr(sel, k2.Children[0], k.Children[0])
	b.implyPtr(sel, k2.Children[1], c.Value)
	b.implyZeroPtr(sel, k2.Children[2])
	b.implyPtr(sel, k2.Children[3], k.Children[3])

	b.implyPtr(sel, c.Out.Expr, k.Children[1])
	b.implyPtr(sel, c.Out.Env, k.Children[2])
	b.implyPtrConst(sel, c.Out.Cont, tag.Binop2K, b.buildD[eval.BuildCont])
}

func (b *builder) contBinop2() {
	api, c := b.api, b.c
	selOK := c.ContSel[eval.KBinop2K]
	selErr := c.ContSel[eval.KBinopErr]
	either := api.Add(selOK, selErr)

	k := c.Open[eval.OpenCont]
	b.imply(either, b.kPtr.Tag, uint64(tag.Binop2K))
	b.imply(either, k.Tag, uint64(tag.Binop2K))
	b.imply(either, b.openD[eval.OpenCont], b.kPtr.Val)

	opv := k.Children[0].Val
	v1 := k.Children[1]
	v2 := c.Value
	prev := k.Children[3]

	var isOp [tag.OpCons + 1]frontend.Variable
	opHit := frontend.Variable(0)
	for op := tag.OpAdd; op <= tag.OpCons; op++ {
		isOp[op] = b.eq(opv, op2Val(op))
		opHit = api.Add(opHit, isOp[op])
	}
	bothNum := api.Mul(b.eqc(v1.Tag, tag.Num), b.eqc(v2.Tag, tag.Num))
	v2Zero := b.api.IsZero(v2.Val)

	// field arithmetic; division is active only on the concrete path
	sum := api.Add(v1.Val, v2.Val)
	dif := api.Sub(v1.Val, v2.Val)
	prd := api.Mul(v1.Val, v2.Val)
	divActive := api.Mul(selOK, api.Mul(isOp[tag.OpDiv], api.Sub(1, v2Zero)))
	den := api.Select(divActive, v2.Val, 1)
	num := api.Select(divActive, v1.Val, 0)
	quo := api.Div(num, den)

	cmp := api.Cmp(v1.Val, v2.Val)
	less := b.api.IsZero(api.Add(cmp, 1))
	greater := b.api.IsZero(api.Sub(cmp, 1))
	numEq := b.eq(v1.Val, v2.Val)
	ptrEq := api.Mul(b.eq(v1.Tag, v2.Tag), b.eq(v1.Val, v2.Val))

	// cons interns its cell
	cell := c.Build[eval.BuildRes]
	gCons := api.Mul(selOK, isOp[tag.OpCons])
	b.imply(gCons, cell.Tag, uint64(tag.Cons))
	b.implyPtr(gCons, cell.Children[0], v1)
	b.implyPtr(gCons, cell.Children[1], v2)
	b.implyZeroPtr(gCons, cell.Children[2])
	b.implyZeroPtr(gCons, cell.Children[3])

	numPtr := func(v frontend.Variable) PtrVars {
		return PtrVars{Tag: uint64(tag.Num), Val: v}
	}
	branches := [tag.OpCons + 1]PtrVars{
		tag.OpAdd:     numPtr(sum),
		tag.OpSub:     numPtr(dif),
		tag.OpMul:     numPtr(prd),
		tag.OpDiv:     numPtr(quo),
		tag.OpNumEq:   b.boolPtr(numEq),
		tag.OpLess:    b.boolPtr(less),
		tag.OpGreater: b.boolPtr(greater),
		tag.OpEq:      b.boolPtr(ptrEq),
		tag.OpCons:    {Tag: uint64(tag.Cons), Val: b.buildD[eval.BuildRes]},
	}
	r := PtrVars{Tag: frontend.Variable(0), Val: frontend.Variable(0)}
	for op := tag.OpAdd; op <= tag.OpCons; op++ {
		r.Tag = api.Add(r.Tag, api.Mul(isOp[op], branches[op].Tag))
		r.Val = api.Add(r.Val, api.Mul(isOp[op], branches[op].Val))
	}

	// every operator except eq and cons requires two numbers
	isNumeric := frontend.Variable(0)
	for op := tag.OpAdd; op <= tag.OpGreater; op++ {
		isNumeric = api.Add(isNumeric, isOp[op])
	}
	b.imply(selOK, opHit, 1)
	b.imply(api.Mul(selOK, isNumeric), bothNum, 1)
	b.imply(api.Mul(selOK, isOp[tag.OpDiv]), v2Zero, 0)

	b.yieldOut(selOK, r, prev)

	// the error branch fires on a type mismatch, division by zero, or an
	// opcode outside the table
	errCond := api.Add(
		api.Mul(isNumeric, api.Sub(1, bothNum)),
		api.Mul(isOp[tag.OpDiv], api.Mul(bothNum, v2Zero)),
		api.Sub(1, opHit),
	)
	b.imply(selErr, errCond, 1)
	code := api.Select(
		api.Mul(isOp[tag.OpDiv], api.Mul(bothNum, v2Zero)),
		uint64(tag.ErrDivByZero),
		uint64(tag.ErrArgument),
	)
	b.haltOut(selErr, code)
}

func (b *builder) contUnop() {
	api, c := b.api, b.c
	selOK := c.ContSel[eval.KUnopK]
	selErr := c.ContSel[eval.KUnopErr]
	either := api.Add(selOK, selErr)

	k := c.Open[eval.OpenCont]
	b.imply(either, b.kPtr.Tag, uint64(tag.UnopK))
	b.imply(either, k.Tag, uint64(tag.UnopK))
	b.imply(either, b.openD[eval.OpenCont], b.kPtr.Val)

	opv := k.Children[0].Val
	prev := k.Children[3]
	v := c.Value

	var isOp [tag.OpEmit + 1]frontend.Variable
	opHit := frontend.Variable(0)
	for op := tag.OpCar; op <= tag.OpEmit; op++ {
		isOp[op] = b.eq(opv, op1Val(op))
		opHit = api.Add(opHit, isOp[op])
	}
	carCdr := api.Add(isOp[tag.OpCar], isOp[tag.OpCdr])
	vNil := b.eqc(v.Tag, tag.Nil)
	vCons := b.eqc(v.Tag, tag.Cons)

	// car/cdr of a cons opens the cell; car/cdr of nil is nil
	cell := c.Open[eval.OpenApply]
	gOpen := api.Mul(selOK, api.Mul(carCdr, vCons))
	b.imply(gOpen, cell.Tag, uint64(tag.Cons))
	b.imply(gOpen, b.openD[eval.OpenApply], v.Val)

	rCar := b.pickPtr(vCons, cell.Children[0], b.nilPtr())
	rCdr := b.pickPtr(vCons, cell.Children[1], b.nilPtr())
	rAtom := b.boolPtr(api.Sub(1, vCons))

	branches := [tag.OpEmit + 1]PtrVars{
		tag.OpCar:  rCar,
		tag.OpCdr:  rCdr,
		tag.OpAtom: rAtom,
		tag.OpEmit: v,
	}
	r := PtrVars{Tag: frontend.Variable(0), Val: frontend.Variable(0)}
	for op := tag.OpCar; op <= tag.OpEmit; op++ {
		r.Tag = api.Add(r.Tag, api.Mul(isOp[op], branches[op].Tag))
		r.Val = api.Add(r.Val, api.Mul(isOp[op], branches[op].Val))
	}

	b.imply(selOK, opHit, 1)
	b.imply(api.Mul(selOK, carCdr), api.Add(vNil, vCons), 1)
	b.yieldOut(selOK, r, prev)

	errCond := api.Add(
		api.Mul(carCdr, api.Sub(1, api.Add(vNil, vCons))),
		api.Sub(1, opHit),
	)
	b.imply(selErr, errCond, 1)
	b.haltOut(selErr, frontend.Variable(uint64(tag.ErrArgument)))
}
