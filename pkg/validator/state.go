// Copyright 2025 Certen Protocol
//
// Validator — the state machine
// CapeContractState and SubmitOperations (spec.md §4.5): the ledger's
// entire validation logic, ported from contracts/rust/src/model.rs's
// CapeContractState::submit_operations with the same clone-then-mutate-
// then-return-on-success shape, so any failure leaves the caller's state
// untouched.

package validator

import (
	"github.com/consensys/gnark/backend/groth16"

	"github.com/cape-protocol/cape-validator/pkg/accumulator"
	"github.com/cape-protocol/cape-validator/pkg/burn"
	"github.com/cape-protocol/cape-validator/pkg/capetypes"
	"github.com/cape-protocol/cape-validator/pkg/nullifier"
	"github.com/cape-protocol/cape-validator/pkg/proofs"
	"github.com/cape-protocol/cape-validator/pkg/registry"
)

// PastRootCapacity is the bounded ring size for historical Merkle roots
// (spec.md §6 "Past-root ring capacity: 40").
const PastRootCapacity = 40

// Ledger is the CAP ledger's entire state tuple (spec.md §3).
type Ledger struct {
	BlockHeight uint64
	Frontier    *accumulator.Frontier
	Commitment  accumulator.Commitment
	PastRoots   *accumulator.RootHistory
	Nullifiers  *nullifier.Set
	Registry    *registry.Registry

	Keys     *proofs.VerifyingKeySet
	Verifier proofs.BatchVerifier
}

// NewLedger builds the genesis ledger state over an empty frontier.
func NewLedger(frontier *accumulator.Frontier, keys *proofs.VerifyingKeySet, verifier proofs.BatchVerifier) *Ledger {
	if verifier == nil {
		verifier = proofs.GrothBatchVerifier{}
	}
	return &Ledger{
		Frontier:   frontier,
		Commitment: frontier.Commitment(),
		PastRoots:  accumulator.NewRootHistory(PastRootCapacity),
		Nullifiers: nullifier.New(),
		Registry:   registry.New(),
		Keys:       keys,
		Verifier:   verifier,
	}
}

// Clone returns a deep copy of the mutable ledger state. Keys and Verifier
// are treated as immutable deployment configuration and shared.
func (l *Ledger) Clone() *Ledger {
	return &Ledger{
		BlockHeight: l.BlockHeight,
		Frontier:    l.Frontier.Clone(),
		Commitment:  l.Commitment,
		PastRoots:   l.PastRoots.Clone(),
		Nullifiers:  l.Nullifiers.Clone(),
		Registry:    l.Registry.Clone(),
		Keys:        l.Keys,
		Verifier:    l.Verifier,
	}
}

// SubmitOperations is the validator's single entry point: it applies ops in
// order to a clone of l and returns the resulting ledger and effect list.
// On any error the returned ledger is nil and the effect list empty — the
// caller keeps using its existing *Ledger unchanged (spec.md §4.5
// "State-machine states").
func (l *Ledger) SubmitOperations(ops []Operation) (*Ledger, []EthEffect, error) {
	next := l.Clone()
	next.BlockHeight++

	var effects []EthEffect

	for _, op := range ops {
		switch op.Kind {
		case OpRegisterErc20:
			if err := next.applyRegisterErc20(op, &effects); err != nil {
				return nil, nil, err
			}
		case OpWrapErc20:
			if err := next.applyWrapErc20(op, &effects); err != nil {
				return nil, nil, err
			}
		case OpSubmitBlock:
			if err := next.applySubmitBlock(op, &effects); err != nil {
				return nil, nil, err
			}
		}
	}

	return next, effects, nil
}

func (l *Ledger) applyRegisterErc20(op Operation, effects *[]EthEffect) error {
	if !capetypes.IsForeignAssetValid(op.AssetDef, op.Erc20Code, op.Sponsor) {
		return ErrInvalidErc20Def
	}
	if err := l.Registry.Register(op.AssetDef, op.Erc20Code, op.Sponsor); err != nil {
		return ErrErc20AlreadyRegistered
	}
	*effects = append(*effects, EthEffect{Kind: EffCheckErc20Exists, Erc20Code: op.Erc20Code})
	return nil
}

func (l *Ledger) applyWrapErc20(op Operation, effects *[]EthEffect) error {
	binding, ok := l.Registry.Lookup(op.Opening.AssetDef.Code)
	if !ok {
		return ErrUnregisteredErc20
	}
	if binding.Erc20Code != op.Erc20Code {
		return ErrIncorrectErc20
	}

	rc := op.Opening.Commitment()
	l.Registry.EnqueueWrap(rc)
	l.Registry.Credit(op.Erc20Code, op.Opening.Amount)

	*effects = append(*effects,
		EthEffect{Kind: EffReceiveErc20, Erc20Code: op.Erc20Code, Amount: op.Opening.Amount, Src: op.SrcAddr},
		EthEffect{Kind: EffEmit, Event: Event{
			Kind:      EventErc20Deposited,
			Erc20Code: op.Erc20Code,
			Src:       op.SrcAddr,
			Opening:   op.Opening,
		}},
	)
	return nil
}

// noteForVerify is the per-transaction result of resolving a note's
// verifying key, declared root, and tree-bound outputs (spec.md §4.5 step
// 3b), pending the batch proof check.
type noteForVerify struct {
	key     groth16.VerifyingKey
	root    [32]byte
	outputs []capetypes.RecordCommitment
	note    proofs.Note
	// sideEffect is set only for a burn, carrying the SendErc20 effect its
	// application emits.
	sideEffect *EthEffect
}

func (l *Ledger) applySubmitBlock(op Operation, effects *[]EthEffect) error {
	// Step 2: filter pass (non-fatal) — drop txns colliding with already
	// committed nullifiers, preserving order.
	accepted := make([]Transaction, 0, len(op.Txns))
	for _, tx := range op.Txns {
		if !l.Nullifiers.IntersectsAny(tx.Nullifiers()) {
			accepted = append(accepted, tx)
		}
	}

	var (
		resolved         []noteForVerify
		recordsToInsert  []capetypes.RecordCommitment
	)

	for _, tx := range accepted {
		// Step 3a: fatal per-tx nullifier apply pass — any remaining
		// collision here is an intra-batch double-spend.
		for _, n := range tx.Nullifiers() {
			if l.Nullifiers.Contains(n) {
				return ErrNullifierAlreadyExists
			}
			_ = l.Nullifiers.Insert(n)
		}

		rnote, err := l.resolveNote(tx)
		if err != nil {
			return err
		}

		// Step 3c: the declared root must be current or recent.
		if rnote.root != l.Commitment.Root && !l.PastRoots.Contains(rnote.root) {
			return ErrBadMerkleRoot
		}

		if rnote.sideEffect != nil {
			*effects = append(*effects, *rnote.sideEffect)
		}
		resolved = append(resolved, rnote)
		recordsToInsert = append(recordsToInsert, rnote.outputs...)
	}

	// Step 4: batch verify every accepted note's proof in one call.
	if len(accepted) > 0 {
		notes := make([]proofs.Note, len(resolved))
		for i, r := range resolved {
			notes[i] = r.note
		}
		if err := l.Verifier.VerifyBatch(notes); err != nil {
			return wrap(ErrCryptoError, err)
		}
	}

	// Step 5: drain pending wraps and extend the accumulator.
	wraps := l.Registry.DrainWraps()
	leaves := make([][]byte, 0, len(recordsToInsert)+len(wraps))
	for _, rc := range recordsToInsert {
		b := rc
		leaves = append(leaves, b[:])
	}
	for _, rc := range wraps {
		b := rc
		leaves = append(leaves, b[:])
	}

	newFrontier, newCommitment, err := accumulator.Extend(l.Frontier, leaves)
	if err != nil {
		return wrap(ErrBadMerklePath, err)
	}

	// Step 6: push the prior root before replacing the commitment.
	l.PastRoots.Push(l.Commitment.Root)
	l.Frontier = newFrontier
	l.Commitment = newCommitment

	// Step 7.
	*effects = append(*effects, EthEffect{Kind: EffEmit, Event: Event{
		Kind:  EventBlockCommitted,
		Txns:  accepted,
		Wraps: wraps,
	}})
	return nil
}

// resolveNote dispatches on the transaction's variant to obtain its
// verifying key, declared proof root, and tree-bound outputs, applying any
// burn-specific side effects (SendErc20 emission, deposit debit) along the
// way (spec.md §4.5 step 3b).
func (l *Ledger) resolveNote(tx Transaction) (noteForVerify, error) {
	if tx.Kind == TxBurn {
		return l.resolveBurn(tx)
	}
	switch tx.Note.Variant {
	case NoteMint:
		return l.resolveMint(tx)
	case NoteFreeze:
		return l.resolveFreeze(tx)
	case NoteTransfer:
		return l.resolveTransfer(tx)
	default:
		return noteForVerify{}, ErrInvalidCAPDef
	}
}

func (l *Ledger) resolveMint(tx Transaction) (noteForVerify, error) {
	note := tx.Note
	if note.MintAssetDef.Code == (capetypes.AssetCode{}) {
		return noteForVerify{}, ErrInvalidCAPDef
	}
	return noteForVerify{
		key:     l.Keys.Mint,
		root:    note.MerkleRoot,
		outputs: note.OutputCommitments,
		note:    proofs.Note{Key: l.Keys.Mint, Proof: note.Proof, PublicWitness: note.PublicWitness},
	}, nil
}

func (l *Ledger) resolveFreeze(tx Transaction) (noteForVerify, error) {
	note := tx.Note
	key, ok := l.Keys.FreezeKey(len(note.InputNullifiers), len(note.OutputCommitments))
	if !ok {
		return noteForVerify{}, ErrUnsupportedFreezeSize
	}
	return noteForVerify{
		key:     key,
		root:    note.MerkleRoot,
		outputs: note.OutputCommitments,
		note:    proofs.Note{Key: key, Proof: note.Proof, PublicWitness: note.PublicWitness},
	}, nil
}

func (l *Ledger) resolveTransfer(tx Transaction) (noteForVerify, error) {
	note := tx.Note
	if d := burn.Discriminate(note.AuxProofBoundData); d.Kind != burn.TransferOnly {
		return noteForVerify{}, ErrIncorrectBurnField
	}
	key, ok := l.Keys.XfrKey(len(note.InputNullifiers), len(note.OutputCommitments))
	if !ok {
		return noteForVerify{}, ErrUnsupportedTransferSize
	}
	return noteForVerify{
		key:     key,
		root:    note.MerkleRoot,
		outputs: note.OutputCommitments,
		note:    proofs.Note{Key: key, Proof: note.Proof, PublicWitness: note.PublicWitness},
	}, nil
}

func (l *Ledger) resolveBurn(tx Transaction) (noteForVerify, error) {
	note := tx.Note
	numOutputs := len(note.OutputCommitments)
	if numOutputs < 2 {
		return noteForVerify{}, ErrUnsupportedBurnSize
	}
	if note.OutputCommitments[1] != tx.Opening.Commitment() {
		return noteForVerify{}, ErrIncorrectBurnOpening
	}
	binding, ok := l.Registry.Lookup(tx.Opening.AssetDef.Code)
	if !ok {
		return noteForVerify{}, ErrUnregisteredErc20
	}
	d := burn.Discriminate(note.AuxProofBoundData)
	if d.Kind != burn.Burn {
		return noteForVerify{}, ErrIncorrectBurnField
	}

	key, ok := l.Keys.XfrKey(len(note.InputNullifiers), numOutputs)
	if !ok {
		return noteForVerify{}, ErrUnsupportedBurnSize
	}

	if err := l.Registry.Debit(binding.Erc20Code, tx.Opening.Amount); err != nil {
		// Invariants 5-6 guarantee enough has been deposited to cover any
		// registered burn; an underflow here is a bug, not a caller error
		// (spec.md §4.5 "Fatal invariants").
		panic(err)
	}

	sideEffect := &EthEffect{
		Kind:      EffSendErc20,
		Erc20Code: binding.Erc20Code,
		Amount:    tx.Opening.Amount,
		Dst:       d.Dst,
	}

	return noteForVerify{
		key:        key,
		root:       note.MerkleRoot,
		outputs:    removeAt(note.OutputCommitments, 1),
		note:       proofs.Note{Key: key, Proof: note.Proof, PublicWitness: note.PublicWitness},
		sideEffect: sideEffect,
	}, nil
}
