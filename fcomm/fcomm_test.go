package fcomm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/fold"
	"github.com/hnfgns/lurk-go/store"
	"github.com/hnfgns/lurk-go/tag"
)

// fakeFolder accepts instances without proving, recording order.
type fakeFolder struct {
	indices []int
}

func (f *fakeFolder) Fold(_ context.Context, inst fold.StepInstance) error {
	f.indices = append(f.indices, inst.Index)
	return nil
}

func (f *fakeFolder) Finalize(context.Context) (fold.Proof, error) {
	return len(f.indices), nil
}

func funOf(t *testing.T, s *store.Store, src string) store.Ptr {
	t.Helper()
	expr, err := s.ReadString(src)
	require.NoError(t, err)
	ev, err := eval.New(s)
	require.NoError(t, err)
	tr, err := ev.Evaluate(context.Background(), expr, 1000)
	require.NoError(t, err)
	require.Equal(t, tag.Fun, tr.Result().Tag)
	return tr.Result()
}

func TestCommit(t *testing.T) {
	s := store.New()
	fun := funOf(t, s, "(lambda (x) (+ x 1))")

	var s1, s2 fr.Element
	s1.SetUint64(17)
	s2.SetUint64(18)

	c := Commit(fun, s1)
	assert.True(t, c.Verify(fun, s1))
	assert.False(t, c.Verify(fun, s2), "a different secret must not open")

	other := funOf(t, s, "(lambda (x) (+ x 2))")
	assert.False(t, c.Verify(other, s1), "a different function must not open")

	assert.NotEqual(t, Commit(fun, s1), Commit(fun, s2), "commitments are hiding per secret")
	assert.Equal(t, Commit(fun, s1), Commit(fun, s1), "commitment derivation is deterministic")
}

func TestOpen(t *testing.T) {
	s := store.New()
	fun := funOf(t, s, "(lambda (x) (* x x))")

	var secret fr.Element
	secret.SetUint64(99)
	c := Commit(fun, secret)

	folder := &fakeFolder{}
	opening, err := Open(context.Background(), s, c, fun, store.NumUint64(6), 1000, folder)
	require.NoError(t, err)

	require.Equal(t, tag.Num, opening.Output.Tag)
	assert.Equal(t, uint64(36), opening.Output.Val.Uint64())
	assert.Equal(t, c, opening.Commitment)
	assert.Greater(t, opening.Boundary.Steps, 0)
	require.NotEmpty(t, folder.indices, "every frame must reach the folder")
	for i, idx := range folder.indices {
		require.Equal(t, i, idx, "frames must be folded in trace order")
	}
}

func TestOpenListInput(t *testing.T) {
	s := store.New()
	fun := funOf(t, s, "(lambda (l) (car l))")

	input, err := s.ReadString("'(7 8)")
	require.NoError(t, err)
	// the committed function receives the datum, so strip the quote wrapper
	datum := s.MustResolve(s.MustResolve(input).Children[1]).Children[0]

	var secret fr.Element
	secret.SetUint64(5)
	opening, err := Open(context.Background(), s, Commit(fun, secret), fun, datum, 1000, &fakeFolder{})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), opening.Output.Val.Uint64())
}

func TestOpenRejectsNonFunction(t *testing.T) {
	s := store.New()
	var secret fr.Element
	secret.SetUint64(1)
	_, err := Open(context.Background(), s, Commitment{}, store.NumUint64(4), store.NumUint64(2), 1000, &fakeFolder{})
	assert.ErrorIs(t, err, errNotFun)
}

func TestClaimRoundTrip(t *testing.T) {
	s := store.New()
	fun := funOf(t, s, "(lambda (x) x)")

	var secret fr.Element
	secret.SetUint64(42)
	c := Commit(fun, secret)

	opening, err := Open(context.Background(), s, c, fun, store.NumUint64(9), 1000, &fakeFolder{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "claim.cbor")
	require.NoError(t, opening.WriteFile(path))

	back, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, opening.Commitment, back.Commitment)
	assert.Equal(t, opening.Input, back.Input)
	assert.Equal(t, opening.Output, back.Output)
	assert.Equal(t, opening.Boundary, back.Boundary)
	assert.Nil(t, back.Proof, "the proof travels separately from the claim")

	_, err = back.VerifyProof(nil)
	assert.Error(t, err)
}
