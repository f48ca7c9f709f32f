// Package fold is the trace-folder boundary: it turns an evaluation trace
// into an ordered sequence of satisfiable step instances plus the two
// boundary commitments, and defines the interface a recursive folder
// implements. Frame synthesis is parallel; folding order is the caller's
// strict obligation.
package fold

import (
	"context"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/frontend"
	"golang.org/x/sync/errgroup"

	"github.com/hnfgns/lurk-go/circuit"
	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/store"
)

// Proof is the aggregate object a Folder produces. Its concrete type is the
// folder's own.
type Proof interface{}

// StepInstance is one frame's satisfied circuit instance: the full witness
// assignment and the public state vectors, in trace order.
type StepInstance struct {
	Index      int
	Assignment frontend.Circuit
	PublicIn   []fr.Element
	PublicOut  []fr.Element
}

// Boundary commits to a whole trace: digests of the first frame's input
// state and the last real frame's output state, and the real step count.
// Padding frames extend the trace without moving the final commitment.
type Boundary struct {
	Initial fr.Element
	Final   fr.Element
	Steps   int
}

// Folder consumes step instances strictly in trace order and combines them
// into one proof. Recursive composition lives behind this interface.
type Folder interface {
	Fold(ctx context.Context, inst StepInstance) error
	Finalize(ctx context.Context) (Proof, error)
}

// Verifier checks an aggregate proof against a trace boundary.
type Verifier interface {
	Verify(p Proof, b Boundary) (bool, error)
}

// ErrDiscontiguous reports a trace whose consecutive frames do not chain.
// This is a broken invariant in the producer, never a terminal outcome.
var ErrDiscontiguous = errors.New("fold: trace frames are not contiguous")

func stateVec(st eval.State) []fr.Element {
	out := make([]fr.Element, 6)
	out[0] = st.Expr.Tag.Field()
	out[1] = st.Expr.Val
	out[2] = st.Env.Tag.Field()
	out[3] = st.Env.Val
	out[4] = st.Cont.Tag.Field()
	out[5] = st.Cont.Val
	return out
}

// realSteps counts the frames that precede any terminal padding.
func realSteps(frames []eval.Frame) int {
	n := 0
	for _, f := range frames {
		if f.In.IsTerminal() {
			break
		}
		n++
	}
	return n
}

// Synthesize builds one step instance per frame, in parallel, and the trace
// boundary. The contiguity of the trace is checked first: instance i+1's
// public input must be instance i's public output for a folder to chain
// them.
func Synthesize(ctx context.Context, params circuit.StepParams, tr *eval.Trace) ([]StepInstance, Boundary, error) {
	if len(tr.Frames) == 0 {
		return nil, Boundary{}, errors.New("fold: empty trace")
	}
	if !tr.Contiguous() {
		return nil, Boundary{}, ErrDiscontiguous
	}

	insts := make([]StepInstance, len(tr.Frames))
	g, _ := errgroup.WithContext(ctx)
	for i, f := range tr.Frames {
		g.Go(func() error {
			insts[i] = StepInstance{
				Index:      i,
				Assignment: circuit.Assign(params, f),
				PublicIn:   stateVec(f.In),
				PublicOut:  stateVec(f.Out),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Boundary{}, err
	}

	n := realSteps(tr.Frames)
	if n == 0 {
		return nil, Boundary{}, fmt.Errorf("fold: trace opens on a terminal state")
	}
	last := tr.Frames[n-1].Out
	b := Boundary{
		Initial: store.HashState(tr.Frames[0].In.Expr, tr.Frames[0].In.Env, tr.Frames[0].In.Cont),
		Final:   store.HashState(last.Expr, last.Env, last.Cont),
		Steps:   n,
	}
	return insts, b, nil
}

// Pad extends a trace to n frames by stepping its terminal state, which is a
// fixed point. Folders that require a power-of-two or otherwise uniform
// length pad before folding; the boundary commitments are unaffected.
func Pad(ev *eval.Evaluator, tr *eval.Trace, n int) *eval.Trace {
	if len(tr.Frames) >= n {
		return tr
	}
	frames := make([]eval.Frame, len(tr.Frames), n)
	copy(frames, tr.Frames)
	st := frames[len(frames)-1].Out
	for len(frames) < n {
		f := ev.Step(st)
		frames = append(frames, f)
		st = f.Out
	}
	return &eval.Trace{Frames: frames, Reason: tr.Reason}
}
