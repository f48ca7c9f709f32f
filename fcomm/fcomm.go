// Package fcomm commits to closures by digest and proves their application.
//
// A commitment hides a function behind MiMC(secret, tag, digest). Opening a
// commitment applies the function to a chosen input, evaluates the
// application to a complete trace, and folds the trace into a proof whose
// boundary ties the claimed output to the run. The core is consumed
// unchanged; this layer is glue above the evaluator and folder.
package fcomm

import (
	"context"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/hnfgns/lurk-go/circuit"
	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/fold"
	"github.com/hnfgns/lurk-go/logger"
	"github.com/hnfgns/lurk-go/store"
	"github.com/hnfgns/lurk-go/tag"
)

// Commitment is a hiding commitment to a function pointer.
type Commitment struct {
	Digest fr.Element
}

// Commit binds fun under the given blinding secret.
func Commit(fun store.Ptr, secret fr.Element) Commitment {
	return Commitment{Digest: store.HashFields(secret, fun.Tag.Field(), fun.Val)}
}

// Verify checks that the commitment opens to fun under secret.
func (c Commitment) Verify(fun store.Ptr, secret fr.Element) bool {
	d := store.HashFields(secret, fun.Tag.Field(), fun.Val)
	return d.Equal(&c.Digest)
}

// Opening is the provable claim "the committed function, applied to Input,
// yields Output", carried by a folded proof over the evaluation trace.
type Opening struct {
	Commitment Commitment
	Input      store.Ptr
	Output     store.Ptr
	Boundary   fold.Boundary
	Proof      fold.Proof
}

var errNotFun = errors.New("fcomm: commitment target is not a function")

// Open applies the committed function to input and proves the run through
// the folder. The input is passed as a datum, not re-evaluated.
func Open(ctx context.Context, s *store.Store, c Commitment, fun, input store.Ptr, maxSteps int, folder fold.Folder) (*Opening, error) {
	if fun.Tag != tag.Fun {
		return nil, errNotFun
	}

	// (fun (quote input))
	expr := s.Cons(fun, s.Cons(s.Cons(s.Lang().Quote, s.Cons(input, store.NilPtr())), store.NilPtr()))

	ev, err := eval.New(s)
	if err != nil {
		return nil, err
	}
	tr, err := ev.Evaluate(ctx, expr, maxSteps)
	if err != nil {
		return nil, err
	}
	if tr.Reason != eval.Completed {
		return nil, fmt.Errorf("fcomm: application did not complete: %s", tr.Reason)
	}

	params := circuit.NewParams(s, ev.MaxEnvHops())
	insts, boundary, err := fold.Synthesize(ctx, params, tr)
	if err != nil {
		return nil, err
	}
	for _, inst := range insts {
		if err := folder.Fold(ctx, inst); err != nil {
			return nil, err
		}
	}
	proof, err := folder.Finalize(ctx)
	if err != nil {
		return nil, err
	}

	out := tr.Result()
	log := logger.Logger()
	log.Debug().
		Int("steps", boundary.Steps).
		Str("output", s.Fmt(out)).
		Msg("opened commitment")
	return &Opening{
		Commitment: c,
		Input:      input,
		Output:     out,
		Boundary:   boundary,
		Proof:      proof,
	}, nil
}

// VerifyProof checks the opening's folded proof against its boundary.
func (o *Opening) VerifyProof(v fold.Verifier) (bool, error) {
	if o.Proof == nil {
		return false, errors.New("fcomm: opening carries no proof")
	}
	return v.Verify(o.Proof, o.Boundary)
}
