package fold

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnfgns/lurk-go/circuit"
	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/store"
)

func traceOf(t *testing.T, src string) (*store.Store, *eval.Evaluator, circuit.StepParams, *eval.Trace) {
	t.Helper()
	s := store.New()
	expr, err := s.ReadString(src)
	require.NoError(t, err)
	ev, err := eval.New(s)
	require.NoError(t, err)
	tr, err := ev.Evaluate(context.Background(), expr, 10000)
	require.NoError(t, err)
	return s, ev, circuit.NewParams(s, ev.MaxEnvHops()), tr
}

func TestSynthesize(t *testing.T) {
	_, _, params, tr := traceOf(t, "((lambda (x) x) 5)")
	insts, b, err := Synthesize(context.Background(), params, tr)
	require.NoError(t, err)
	require.Len(t, insts, len(tr.Frames))
	assert.Equal(t, len(tr.Frames), b.Steps)

	first := tr.Frames[0].In
	assert.Equal(t, store.HashState(first.Expr, first.Env, first.Cont), b.Initial)
	last := tr.Frames[len(tr.Frames)-1].Out
	assert.Equal(t, store.HashState(last.Expr, last.Env, last.Cont), b.Final)

	for i, inst := range insts {
		assert.Equal(t, i, inst.Index)
		require.Len(t, inst.PublicIn, 6)
		require.Len(t, inst.PublicOut, 6)
		if i > 0 {
			assert.Equal(t, insts[i-1].PublicOut, inst.PublicIn, "instances must chain")
		}
	}
}

func TestSynthesizeRejectsDiscontiguous(t *testing.T) {
	_, _, params, tr := traceOf(t, "(+ 1 2)")
	require.Greater(t, len(tr.Frames), 1)
	tr.Frames[1].In.Expr = store.NumUint64(1234)
	_, _, err := Synthesize(context.Background(), params, tr)
	assert.ErrorIs(t, err, ErrDiscontiguous)
}

func TestSynthesizeRejectsEmpty(t *testing.T) {
	_, _, params, _ := traceOf(t, "42")
	_, _, err := Synthesize(context.Background(), params, &eval.Trace{})
	assert.Error(t, err)
}

func TestPad(t *testing.T) {
	_, ev, params, tr := traceOf(t, "42")
	require.Len(t, tr.Frames, 1)
	realBoundary, err := boundaryOf(params, tr)
	require.NoError(t, err)

	padded := Pad(ev, tr, 4)
	require.Len(t, padded.Frames, 4)
	require.True(t, padded.Contiguous())
	for _, f := range padded.Frames[1:] {
		assert.Equal(t, f.In, f.Out, "padding frames are fixed points")
	}

	_, b, err := Synthesize(context.Background(), params, padded)
	require.NoError(t, err)
	assert.Equal(t, realBoundary, b, "padding must not move the boundary")

	assert.Same(t, tr, Pad(ev, tr, 1), "a long-enough trace is returned as is")
}

func boundaryOf(params circuit.StepParams, tr *eval.Trace) (Boundary, error) {
	_, b, err := Synthesize(context.Background(), params, tr)
	return b, err
}

func TestSequentialProver(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is expensive")
	}
	_, ev, params, tr := traceOf(t, "42")
	tr = Pad(ev, tr, 2)

	insts, b, err := Synthesize(context.Background(), params, tr)
	require.NoError(t, err)

	prover, err := NewSequentialProver(params)
	require.NoError(t, err)

	// out-of-order folding is refused
	require.Error(t, prover.Fold(context.Background(), insts[1]))

	for _, inst := range insts {
		require.NoError(t, prover.Fold(context.Background(), inst))
	}
	proof, err := prover.Finalize(context.Background())
	require.NoError(t, err)

	v := prover.Verifier()
	ok, err := v.Verify(proof, b)
	require.NoError(t, err)
	assert.True(t, ok)

	// a boundary claiming a different final state must not verify
	bad := b
	bad.Final = store.HashState(store.NumUint64(43), store.NilPtr(), store.TerminalK())
	ok, err = v.Verify(proof, bad)
	require.NoError(t, err)
	assert.False(t, ok)

	// proofs survive a serialization round-trip
	tp := proof.(*TraceProof)
	var buf bytes.Buffer
	_, err = tp.WriteTo(&buf)
	require.NoError(t, err)
	var back TraceProof
	_, err = back.ReadFrom(&buf)
	require.NoError(t, err)
	require.Equal(t, tp.Len(), back.Len())
	ok, err = NewVerifier(prover.VerifyingKey()).Verify(&back, b)
	require.NoError(t, err)
	assert.True(t, ok)
}
