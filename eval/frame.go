package eval

import (
	"fmt"

	"github.com/hnfgns/lurk-go/store"
)

// State is one machine configuration: the expression under reduction, its
// environment, and the continuation stack, all as store pointers.
type State struct {
	Expr, Env, Cont store.Ptr
}

// Equal reports pointer-wise state equality.
func (st State) Equal(o State) bool {
	return st.Expr.Equal(o.Expr) && st.Env.Equal(o.Env) && st.Cont.Equal(o.Cont)
}

// IsTerminal reports whether stepping st is the identity.
func (st State) IsTerminal() bool {
	return st.Cont.IsTerminal()
}

// ExprRule identifies the dispatch branch taken on the input expression.
// The set is closed; the circuit mirrors it selector for selector.
type ExprRule uint8

const (
	XNoop ExprRule = iota // terminal fixed point
	XSelfEval
	XSym
	XSymUnbound
	XSymDepth
	XQuote
	XLambda
	XThunk
	XIf
	XLet
	XLetRec
	XBinop
	XUnop
	XCall
	XErrHalt
	XSyntax

	nbExprRules
)

// NbExprRules is the number of expression dispatch branches.
const NbExprRules = int(nbExprRules)

var exprRuleNames = [NbExprRules]string{
	"noop", "self-eval", "sym", "sym-unbound", "sym-depth",
	"quote", "lambda", "thunk", "if", "let", "letrec",
	"binop", "unop", "call", "err-halt", "syntax",
}

func (r ExprRule) String() string {
	if int(r) >= NbExprRules {
		return "invalid"
	}
	return exprRuleNames[r]
}

// ContRule identifies the continuation branch applied to a produced value.
// KNone marks steps that descend into a sub-expression without producing a
// value.
type ContRule uint8

const (
	KNone ContRule = iota
	KOutermost
	KCallK
	KCallErr
	KCall2K
	KIfK
	KLetK
	KLetRecK
	KBinop1K
	KBinop2K
	KBinopErr
	KUnopK
	KUnopErr

	nbContRules
)

// NbContRules is the number of continuation branches.
const NbContRules = int(nbContRules)

var contRuleNames = [NbContRules]string{
	"none", "outermost", "call", "call-err", "call2",
	"if", "let", "letrec", "binop", "binop2", "binop-err",
	"unop", "unop-err",
}

func (r ContRule) String() string {
	if int(r) >= NbContRules {
		return "invalid"
	}
	return contRuleNames[r]
}

// Rule is the full reduction rule of one frame: the expression branch in the
// high byte, the continuation branch in the low byte.
type Rule uint16

func mkRule(x ExprRule, k ContRule) Rule {
	return Rule(x)<<8 | Rule(k)
}

// Expr returns the expression dispatch branch.
func (r Rule) Expr() ExprRule { return ExprRule(r >> 8) }

// Cont returns the continuation branch.
func (r Rule) Cont() ContRule { return ContRule(r & 0xff) }

func (r Rule) String() string {
	if r.Cont() == KNone {
		return r.Expr().String()
	}
	return fmt.Sprintf("%s/%s", r.Expr(), r.Cont())
}

// Auxiliary witness slot roles. The step records every store entry it opens
// or constructs at a fixed position, and the circuit references the same
// positions in its gated constraints.
const (
	// open slots
	OpenExpr0 = iota // first expression open (or the thunk node)
	OpenExpr1
	OpenExpr2
	OpenExpr3
	OpenCont  // the applied continuation node
	OpenApply // continuation-specific open (closure node, car/cdr cell)

	NumOpenSlots
)

const (
	// build slots
	BuildVal0 = iota // value production (recursive env extension, closure)
	BuildVal1
	BuildCont // pushed continuation or result thunk
	BuildRes  // extra construction (env extension, cons result)

	NumBuildSlots
)

// Aux holds the witness data justifying one frame: the value handed to the
// continuation, the environment nodes visited by lookup, and the fixed-role
// open/build slots. Unused slots hold the zero node.
type Aux struct {
	Value store.Ptr
	Walk  []store.Node
	Open  [NumOpenSlots]store.Node
	Build [NumBuildSlots]store.Node
}

// Frame is one evaluation step: input and output state, the rule that
// fired, and the auxiliary witnesses the circuit needs to re-derive the
// transition. Frames are immutable once produced.
type Frame struct {
	In, Out State
	Rule    Rule
	Aux     Aux

	// Emitted is set when the step executed an emit builtin; it is the
	// prover-chosen disclosure channel.
	Emitted *store.Ptr
}

// TerminalReason reports why Evaluate stopped.
type TerminalReason uint8

const (
	// Completed: the trace reached a value with an empty continuation stack.
	Completed TerminalReason = iota + 1
	// ErrorHalted: the trace reached an error terminal; still provable.
	ErrorHalted
	// MaxStepsReached: the step budget ran out; the partial trace is valid.
	MaxStepsReached
	// Interrupted: the caller cancelled between frames.
	Interrupted
)

func (r TerminalReason) String() string {
	switch r {
	case Completed:
		return "completed"
	case ErrorHalted:
		return "error-halted"
	case MaxStepsReached:
		return "max-steps-reached"
	case Interrupted:
		return "interrupted"
	default:
		return "invalid"
	}
}

// Trace is the ordered frame sequence of one evaluation. Consecutive frames
// are contiguous: Frames[i].Out equals Frames[i+1].In.
type Trace struct {
	Frames []Frame
	Reason TerminalReason
}

// Result returns the final expression pointer of the trace.
func (t *Trace) Result() store.Ptr {
	if len(t.Frames) == 0 {
		return store.Ptr{}
	}
	return t.Frames[len(t.Frames)-1].Out.Expr
}

// Contiguous verifies the trace contiguity invariant.
func (t *Trace) Contiguous() bool {
	for i := 0; i+1 < len(t.Frames); i++ {
		if !t.Frames[i].Out.Equal(t.Frames[i+1].In) {
			return false
		}
	}
	return true
}
