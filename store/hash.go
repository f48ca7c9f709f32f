package store

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/hnfgns/lurk-go/tag"
)

// The store digests content with MiMC over BN254 field elements, the same
// primitive the circuit constrains through gnark's std/hash/mimc gadget.
// A node digest binds the tag: [tag, c0.tag, c0.val, ..., c3.tag, c3.val].

func hashFields(elems ...fr.Element) fr.Element {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		// Write only fails on a non-canonical encoding, which Bytes cannot
		// produce.
		if _, err := h.Write(b[:]); err != nil {
			panic("store: mimc write: " + err.Error())
		}
	}
	var d fr.Element
	d.SetBytes(h.Sum(nil))
	return d
}

// NodePreimage returns the nine field elements hashed to derive a node's
// digest, in hashing order. The circuit re-derives the same sequence.
func NodePreimage(n Node) [9]fr.Element {
	var pre [9]fr.Element
	pre[0] = n.Tag.Field()
	for i, c := range n.Children {
		pre[1+2*i] = c.Tag.Field()
		pre[2+2*i] = c.Val
	}
	return pre
}

func digestNode(n Node) fr.Element {
	pre := NodePreimage(n)
	return hashFields(pre[:]...)
}

// digestText derives the digest of a leaf carrying a string payload (symbols
// and string literals). The name is packed into 31-byte big-endian limbs,
// prefixed by the tag and the byte length so distinct names never share a
// packing.
func digestText(t tag.Tag, s string) fr.Element {
	elems := make([]fr.Element, 0, 2+len(s)/31)
	elems = append(elems, t.Field())
	var n fr.Element
	n.SetUint64(uint64(len(s)))
	elems = append(elems, n)
	for i := 0; i < len(s); i += 31 {
		end := i + 31
		if end > len(s) {
			end = len(s)
		}
		var limb fr.Element
		limb.SetBytes([]byte(s[i:end]))
		elems = append(elems, limb)
	}
	return hashFields(elems...)
}

// HashFields digests an arbitrary element sequence with the store's
// primitive. Consumers deriving commitments outside the store use this so
// native and in-circuit digests stay interchangeable.
func HashFields(elems ...fr.Element) fr.Element {
	return hashFields(elems...)
}

// HashState digests a full machine state triple. This is the commitment
// value exposed across folded proof boundaries.
func HashState(expr, env, cont Ptr) fr.Element {
	return hashFields(
		expr.Tag.Field(), expr.Val,
		env.Tag.Field(), env.Val,
		cont.Tag.Field(), cont.Val,
	)
}
