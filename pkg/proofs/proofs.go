// Copyright 2025 Certen Protocol
//
// Proof Oracle Boundary
// The external `verify_batch(notes, roots, height, keys)` collaborator from
// spec.md §6. The PLONK transfer/mint/freeze circuits themselves are out of
// scope (spec.md §1); this package only gives the oracle boundary a
// concrete, pack-grounded Go shape instead of an untyped interface{},
// following the gnark/Groth16 plumbing idiom of pkg/crypto/bls_zkp.

package proofs

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
)

// Arity is the (num inputs, num outputs) key the Freeze and Xfr verifying
// key families are indexed by (spec.md §4.5 "key_for_size").
type Arity struct {
	Inputs  int
	Outputs int
}

// VerifyingKeySet holds the verifying key CRS for every note shape the
// validator may need: one key for Mint, and arity-indexed families for
// Freeze and Transfer.
type VerifyingKeySet struct {
	Mint    groth16.VerifyingKey
	Freeze  map[Arity]groth16.VerifyingKey
	Xfr     map[Arity]groth16.VerifyingKey
	Curve   ecc.ID
}

// NewVerifyingKeySet returns an empty key set for the given curve.
func NewVerifyingKeySet(curve ecc.ID) *VerifyingKeySet {
	return &VerifyingKeySet{
		Freeze: make(map[Arity]groth16.VerifyingKey),
		Xfr:    make(map[Arity]groth16.VerifyingKey),
		Curve:  curve,
	}
}

// RegisterFreezeArity reserves a slot for the freeze verifying key of the
// given arity, pending the real key being installed once provisioned
// (spec.md §1 — trusted-setup key material is an external collaborator).
// Used by the composition root when wiring a deployment's key manifest.
func (s *VerifyingKeySet) RegisterFreezeArity(numInputs, numOutputs int, vk groth16.VerifyingKey) {
	s.Freeze[Arity{numInputs, numOutputs}] = vk
}

// RegisterXfrArity is RegisterFreezeArity's Transfer-key counterpart.
func (s *VerifyingKeySet) RegisterXfrArity(numInputs, numOutputs int, vk groth16.VerifyingKey) {
	s.Xfr[Arity{numInputs, numOutputs}] = vk
}

// FreezeKey returns the freeze verifying key for the given arity, if present.
func (s *VerifyingKeySet) FreezeKey(numInputs, numOutputs int) (groth16.VerifyingKey, bool) {
	vk, ok := s.Freeze[Arity{numInputs, numOutputs}]
	return vk, ok
}

// XfrKey returns the transfer verifying key for the given arity, if present.
func (s *VerifyingKeySet) XfrKey(numInputs, numOutputs int) (groth16.VerifyingKey, bool) {
	vk, ok := s.Xfr[Arity{numInputs, numOutputs}]
	return vk, ok
}

// NoteCircuit is the public-input shape every note's proof is bound to: the
// Merkle root it was proved against and the block height it is submitted
// in. The real per-variant circuits (transfer/mint/freeze validity,
// nullifier derivation, balance conservation) are the external collaborator
// this package stands in for; NoteCircuit exists only so a public witness
// can be constructed and fed to groth16.Verify with a concrete assignment.
type NoteCircuit struct {
	MerkleRoot  frontend.Variable `gnark:",public"`
	BlockHeight frontend.Variable `gnark:",public"`
}

// Define is intentionally empty: constraint generation for the real CAP
// note circuits is out of scope (spec.md §1).
func (c *NoteCircuit) Define(api frontend.API) error { return nil }

// NewPublicWitness builds the public witness a note's proof must be
// verified against, binding it to root and height.
func NewPublicWitness(curve ecc.ID, root [32]byte, height uint64) (witness.Witness, error) {
	assignment := &NoteCircuit{
		MerkleRoot:  new(big.Int).SetBytes(root[:]),
		BlockHeight: new(big.Int).SetUint64(height),
	}
	w, err := frontend.NewWitness(assignment, curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return nil, fmt.Errorf("proofs: build public witness: %w", err)
	}
	return w, nil
}

// Note is one entry of a batch submitted to the verify_batch oracle: a
// proof, the verifying key it must check against, and the public witness
// (root + height) it was proved relative to.
type Note struct {
	Key           groth16.VerifyingKey
	Proof         groth16.Proof
	PublicWitness witness.Witness
}

// ErrVerificationFailed wraps a per-note verification failure; the
// validator maps any error from VerifyBatch to CryptoError (spec.md §4.5
// step 4, §7).
type ErrVerificationFailed struct {
	Index int
	Err   error
}

func (e *ErrVerificationFailed) Error() string {
	return fmt.Sprintf("proofs: note %d failed verification: %v", e.Index, e.Err)
}

func (e *ErrVerificationFailed) Unwrap() error { return e.Err }

// BatchVerifier is the `verify_batch` oracle boundary. Implementations MUST
// be deterministic and fail closed (spec.md §6). Tests substitute a fake
// that returns canned errors rather than exercising real proving-system
// verification.
type BatchVerifier interface {
	VerifyBatch(notes []Note) error
}

// GrothBatchVerifier is the default BatchVerifier: it checks every note's
// Groth16 proof against its verifying key and public witness in order,
// failing the whole batch on the first bad proof (spec.md §9 "Batch
// verification fault isolation").
type GrothBatchVerifier struct{}

func (GrothBatchVerifier) VerifyBatch(notes []Note) error {
	for i, n := range notes {
		if n.Key == nil || n.Proof == nil || n.PublicWitness == nil {
			return &ErrVerificationFailed{Index: i, Err: fmt.Errorf("missing proof material")}
		}
		if err := groth16.Verify(n.Proof, n.Key, n.PublicWitness); err != nil {
			return &ErrVerificationFailed{Index: i, Err: err}
		}
	}
	return nil
}
