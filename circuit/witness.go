package circuit

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/store"
)

// Compile builds the step constraint system for the given parameters.
func Compile(params StepParams) (constraint.ConstraintSystem, error) {
	return frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, New(params))
}

func ptrVars(p store.Ptr) PtrVars {
	v := p.Val
	return PtrVars{Tag: uint64(p.Tag), Val: v.BigInt(new(big.Int))}
}

func stateVars(s eval.State) StateVars {
	return StateVars{
		Expr: ptrVars(s.Expr),
		Env:  ptrVars(s.Env),
		Cont: ptrVars(s.Cont),
	}
}

func slotVars(n store.Node) SlotVars {
	s := SlotVars{Tag: uint64(n.Tag)}
	for i, ch := range n.Children {
		s.Children[i] = ptrVars(ch)
	}
	return s
}

// Assign builds a full witness assignment for one frame. The walk is padded
// with empty slots up to the hop budget.
func Assign(params StepParams, f eval.Frame) *StepCircuit {
	w := New(params)
	w.In = stateVars(f.In)
	w.Out = stateVars(f.Out)
	w.Rule = uint64(f.Rule)

	for i := range w.ExprSel {
		w.ExprSel[i] = 0
	}
	for j := range w.ContSel {
		w.ContSel[j] = 0
	}
	w.ExprSel[f.Rule.Expr()] = 1
	w.ContSel[f.Rule.Cont()] = 1

	w.Value = ptrVars(f.Aux.Value)
	for i := range w.Walk {
		var n store.Node
		if i < len(f.Aux.Walk) {
			n = f.Aux.Walk[i]
		}
		w.Walk[i] = slotVars(n)
	}
	for i, n := range f.Aux.Open {
		w.Open[i] = slotVars(n)
	}
	for i, n := range f.Aux.Build {
		w.Build[i] = slotVars(n)
	}
	return w
}
