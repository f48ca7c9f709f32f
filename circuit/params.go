package circuit

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/hnfgns/lurk-go/store"
	"github.com/hnfgns/lurk-go/tag"
)

// StepParams embeds, as circuit constants, the digests the step relation
// compares against: the special-form and builtin head symbols and the t
// symbol. They are computed natively with the same hash the store uses, so
// any store produces identical values.
type StepParams struct {
	MaxEnvHops int

	T, Quote, Lambda, If, Let, Letrec *big.Int

	// Op1Syms[op] / Op2Syms[op] map an opcode to the digest of its head
	// symbol; index 0 is unused.
	Op1Syms [5]*big.Int
	Op2Syms [10]*big.Int
}

func toBig(e fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

// NewParams derives the step constants from a store. The result depends
// only on the hash primitive, not on the store's contents.
func NewParams(s *store.Store, maxEnvHops int) StepParams {
	lang := s.Lang()
	p := StepParams{
		MaxEnvHops: maxEnvHops,
		T:          toBig(lang.T.Val),
		Quote:      toBig(lang.Quote.Val),
		Lambda:     toBig(lang.Lambda.Val),
		If:         toBig(lang.If.Val),
		Let:        toBig(lang.Let.Val),
		Letrec:     toBig(lang.Letrec.Val),
	}
	for sym, op := range lang.Op1s {
		p.Op1Syms[op] = toBig(sym.Val)
	}
	for sym, op := range lang.Op2s {
		p.Op2Syms[op] = toBig(sym.Val)
	}
	return p
}

// specialFormDigests lists every head-symbol digest with special dispatch;
// an application operator in symbol position must differ from all of them.
func (p StepParams) specialFormDigests() []*big.Int {
	out := []*big.Int{p.Quote, p.Lambda, p.If, p.Let, p.Letrec}
	for _, d := range p.Op1Syms[1:] {
		out = append(out, d)
	}
	for _, d := range p.Op2Syms[1:] {
		out = append(out, d)
	}
	return out
}

// op2Offset mirrors the opcode encoding of store.Op2Ptr.
const op2Offset = 16

func op2Val(op tag.Op2) uint64 { return uint64(op) + op2Offset }
func op1Val(op tag.Op1) uint64 { return uint64(op) }
