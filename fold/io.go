package fold

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
)

// NewVerifier builds a checker from a deserialized verifying key, for
// verification in a process that did not run the setup.
func NewVerifier(vk groth16.VerifyingKey) Verifier {
	return &sequentialVerifier{vk: vk}
}

// VerifyingKey exposes the prover's key for persistence.
func (p *SequentialProver) VerifyingKey() groth16.VerifyingKey { return p.vk }

// WriteTo serializes the proof: a step count followed by each step's proof
// and public witness.
func (tp *TraceProof) WriteTo(w io.Writer) (int64, error) {
	var total int64
	if err := binary.Write(w, binary.BigEndian, uint32(len(tp.steps))); err != nil {
		return total, err
	}
	total += 4
	for _, sp := range tp.steps {
		n, err := sp.proof.WriteTo(w)
		total += n
		if err != nil {
			return total, err
		}
		n, err = sp.public.WriteTo(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadFrom deserializes a proof written by WriteTo.
func (tp *TraceProof) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return total, err
	}
	total += 4
	steps := make([]stepProof, 0, count)
	for i := uint32(0); i < count; i++ {
		proof := groth16.NewProof(ecc.BN254)
		n, err := proof.ReadFrom(r)
		total += n
		if err != nil {
			return total, fmt.Errorf("fold: read step %d proof: %w", i, err)
		}
		public, err := witness.New(ecc.BN254.ScalarField())
		if err != nil {
			return total, err
		}
		n, err = public.ReadFrom(r)
		total += n
		if err != nil {
			return total, fmt.Errorf("fold: read step %d public witness: %w", i, err)
		}
		steps = append(steps, stepProof{proof: proof, public: public})
	}
	tp.steps = steps
	return total, nil
}

// Len reports the number of folded steps, padding included.
func (tp *TraceProof) Len() int { return len(tp.steps) }
