package fcomm

import (
	"fmt"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/fxamacker/cbor/v2"

	"github.com/hnfgns/lurk-go/fold"
	"github.com/hnfgns/lurk-go/store"
	"github.com/hnfgns/lurk-go/tag"
)

// Claim is the on-disk form of an opening's public statement. The folded
// proof itself is transcript-sized and travels separately; the claim is what
// a verifier pins the proof against.
type Claim struct {
	Commitment []byte `cbor:"1,keyasint"`
	InputTag   uint8  `cbor:"2,keyasint"`
	InputVal   []byte `cbor:"3,keyasint"`
	OutputTag  uint8  `cbor:"4,keyasint"`
	OutputVal  []byte `cbor:"5,keyasint"`
	Initial    []byte `cbor:"6,keyasint"`
	Final      []byte `cbor:"7,keyasint"`
	Steps      int    `cbor:"8,keyasint"`
}

func elemBytes(e fr.Element) []byte {
	b := e.Bytes()
	return b[:]
}

func elemFromBytes(b []byte) (fr.Element, error) {
	var e fr.Element
	if err := e.SetBytesCanonical(b); err != nil {
		return fr.Element{}, err
	}
	return e, nil
}

// Claim extracts the opening's public statement.
func (o *Opening) Claim() Claim {
	return Claim{
		Commitment: elemBytes(o.Commitment.Digest),
		InputTag:   uint8(o.Input.Tag),
		InputVal:   elemBytes(o.Input.Val),
		OutputTag:  uint8(o.Output.Tag),
		OutputVal:  elemBytes(o.Output.Val),
		Initial:    elemBytes(o.Boundary.Initial),
		Final:      elemBytes(o.Boundary.Final),
		Steps:      o.Boundary.Steps,
	}
}

func ptrFrom(t uint8, val []byte) (store.Ptr, error) {
	if t >= uint8(tag.NbTags) {
		return store.Ptr{}, fmt.Errorf("fcomm: tag %d out of range", t)
	}
	v, err := elemFromBytes(val)
	if err != nil {
		return store.Ptr{}, err
	}
	return store.Ptr{Tag: tag.Tag(t), Val: v}, nil
}

// Opening rebuilds the proof-less opening a claim describes.
func (c Claim) Opening() (*Opening, error) {
	digest, err := elemFromBytes(c.Commitment)
	if err != nil {
		return nil, err
	}
	input, err := ptrFrom(c.InputTag, c.InputVal)
	if err != nil {
		return nil, err
	}
	output, err := ptrFrom(c.OutputTag, c.OutputVal)
	if err != nil {
		return nil, err
	}
	initial, err := elemFromBytes(c.Initial)
	if err != nil {
		return nil, err
	}
	final, err := elemFromBytes(c.Final)
	if err != nil {
		return nil, err
	}
	return &Opening{
		Commitment: Commitment{Digest: digest},
		Input:      input,
		Output:     output,
		Boundary:   fold.Boundary{Initial: initial, Final: final, Steps: c.Steps},
	}, nil
}

// WriteFile serializes the opening's claim as CBOR.
func (o *Opening) WriteFile(path string) error {
	data, err := cbor.Marshal(o.Claim())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile loads a claim artifact written by WriteFile.
func ReadFile(path string) (*Opening, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Claim
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c.Opening()
}
