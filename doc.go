// Package lurk implements a content-addressed symbolic evaluator whose
// execution traces compile into a uniform per-step arithmetic circuit,
// suitable for incremental (folding-based) proof composition.
//
// The module is organized around three coupled subsystems:
//   - store: hash-consing arena addressing every expression, environment
//     and continuation by a MiMC digest over field elements
//   - eval: a deterministic CEK-style small-step machine producing one
//     Frame per reduction step
//   - circuit: a fixed-shape gnark circuit satisfied exactly when a Frame
//     is a correct application of the machine's transition function
//
// The fold package exposes the boundary towards a recursive proof folder,
// and fcomm builds functional commitments on top of the core.
package lurk

import "github.com/blang/semver/v4"

// Version of the lurk-go module.
var Version = semver.MustParse("0.1.0")
