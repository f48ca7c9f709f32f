package fold

import (
	"context"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"

	"github.com/hnfgns/lurk-go/circuit"
	"github.com/hnfgns/lurk-go/logger"
	"github.com/hnfgns/lurk-go/store"
	"github.com/hnfgns/lurk-go/tag"
)

// SequentialProver is the reference Folder: one groth16 proof per step over
// the shared step constraint system, chained by public-state equality at
// verification time. It exercises the whole boundary without recursive
// aggregation, which stays an external concern.
type SequentialProver struct {
	params circuit.StepParams
	ccs    constraint.ConstraintSystem
	pk     groth16.ProvingKey
	vk     groth16.VerifyingKey

	mu    sync.Mutex
	steps []stepProof
}

type stepProof struct {
	proof  groth16.Proof
	public witness.Witness
}

// TraceProof is the aggregate the sequential prover emits: one proof and one
// public witness per step, in trace order.
type TraceProof struct {
	steps []stepProof
}

// NewSequentialProver compiles the step circuit and runs the one-time setup.
// The prover is reusable across traces proved under the same parameters.
func NewSequentialProver(params circuit.StepParams) (*SequentialProver, error) {
	ccs, err := circuit.Compile(params)
	if err != nil {
		return nil, fmt.Errorf("fold: compile step circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, fmt.Errorf("fold: setup: %w", err)
	}
	log := logger.Logger()
	log.Debug().
		Int("constraints", ccs.GetNbConstraints()).
		Msg("step circuit ready")
	return &SequentialProver{params: params, ccs: ccs, pk: pk, vk: vk}, nil
}

// Fold proves one step instance. Instances must arrive in trace order.
func (p *SequentialProver) Fold(ctx context.Context, inst StepInstance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if inst.Index != len(p.steps) {
		return fmt.Errorf("fold: step %d arrived, want %d", inst.Index, len(p.steps))
	}

	full, err := frontend.NewWitness(inst.Assignment, ecc.BN254.ScalarField())
	if err != nil {
		return fmt.Errorf("fold: witness step %d: %w", inst.Index, err)
	}
	proof, err := groth16.Prove(p.ccs, p.pk, full)
	if err != nil {
		return fmt.Errorf("fold: prove step %d: %w", inst.Index, err)
	}
	public, err := full.Public()
	if err != nil {
		return err
	}
	p.steps = append(p.steps, stepProof{proof: proof, public: public})
	return nil
}

// Finalize hands back the accumulated proof and resets the prover for the
// next trace.
func (p *SequentialProver) Finalize(ctx context.Context) (Proof, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.steps) == 0 {
		return nil, fmt.Errorf("fold: nothing folded")
	}
	tp := &TraceProof{steps: p.steps}
	p.steps = nil
	return tp, nil
}

// Verifier returns the checker paired with this prover's verifying key.
func (p *SequentialProver) Verifier() Verifier {
	return &sequentialVerifier{vk: p.vk}
}

type sequentialVerifier struct {
	vk groth16.VerifyingKey
}

// public witness layout: input state (6), output state (6), rule (1)
const nbPublic = 13

func publicVec(w witness.Witness) (fr.Vector, error) {
	vec, ok := w.Vector().(fr.Vector)
	if !ok || len(vec) != nbPublic {
		return nil, fmt.Errorf("fold: malformed public witness")
	}
	return vec, nil
}

func statePtr(v []fr.Element) (store.Ptr, error) {
	t := v[0]
	if !t.IsUint64() || t.Uint64() >= uint64(tag.NbTags) {
		return store.Ptr{}, fmt.Errorf("fold: tag out of range")
	}
	return store.Ptr{Tag: tag.Tag(t.Uint64()), Val: v[1]}, nil
}

func stateDigest(v []fr.Element) (fr.Element, error) {
	expr, err := statePtr(v[0:2])
	if err != nil {
		return fr.Element{}, err
	}
	env, err := statePtr(v[2:4])
	if err != nil {
		return fr.Element{}, err
	}
	cont, err := statePtr(v[4:6])
	if err != nil {
		return fr.Element{}, err
	}
	return store.HashState(expr, env, cont), nil
}

// Verify checks every step proof, links consecutive steps by public-state
// equality, and ties the ends to the boundary commitments. Steps beyond the
// boundary's real count must be fixed-point padding.
func (v *sequentialVerifier) Verify(p Proof, b Boundary) (bool, error) {
	tp, ok := p.(*TraceProof)
	if !ok {
		return false, fmt.Errorf("fold: unknown proof type %T", p)
	}
	if b.Steps <= 0 || b.Steps > len(tp.steps) {
		return false, fmt.Errorf("fold: boundary claims %d steps, proof has %d", b.Steps, len(tp.steps))
	}

	var prevOut fr.Vector
	for i, sp := range tp.steps {
		if err := groth16.Verify(sp.proof, v.vk, sp.public); err != nil {
			return false, fmt.Errorf("fold: step %d: %w", i, err)
		}
		vec, err := publicVec(sp.public)
		if err != nil {
			return false, err
		}
		if i > 0 {
			for j := 0; j < 6; j++ {
				if !vec[j].Equal(&prevOut[j]) {
					return false, nil
				}
			}
		}
		prevOut = vec[6:12]
	}

	first, err := publicVec(tp.steps[0].public)
	if err != nil {
		return false, err
	}
	initial, err := stateDigest(first[0:6])
	if err != nil {
		return false, err
	}
	lastReal, err := publicVec(tp.steps[b.Steps-1].public)
	if err != nil {
		return false, err
	}
	final, err := stateDigest(lastReal[6:12])
	if err != nil {
		return false, err
	}
	if !initial.Equal(&b.Initial) || !final.Equal(&b.Final) {
		return false, nil
	}

	// trailing padding must be the terminal fixed point
	for i := b.Steps; i < len(tp.steps); i++ {
		vec, err := publicVec(tp.steps[i].public)
		if err != nil {
			return false, err
		}
		for j := 0; j < 6; j++ {
			if !vec[j].Equal(&vec[6+j]) {
				return false, nil
			}
		}
	}
	return true, nil
}
