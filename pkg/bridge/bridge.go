// Copyright 2025 Certen Protocol
//
// Model bridge
// Reconstructs ledger state by replaying the effect log a validator emits
// (spec.md §2 "Model bridge" row), rather than re-running SubmitOperations.
// A follower watching committed blocks on-chain never sees nullifiers,
// proofs, or the operations that produced a block — only the two events
// the contract emits: BlockCommitted and Erc20Deposited. This package
// turns that event stream back into accumulator and registry state.

package bridge

import (
	"errors"
	"fmt"

	"github.com/cape-protocol/cape-validator/pkg/accumulator"
	"github.com/cape-protocol/cape-validator/pkg/registry"
	"github.com/cape-protocol/cape-validator/pkg/validator"
)

// ErrUnexpectedEventKind is returned by Apply for an Event whose Kind is
// neither EventBlockCommitted nor EventErc20Deposited.
var ErrUnexpectedEventKind = errors.New("bridge: unexpected event kind")

// Follower reconstructs a read-only view of ledger state — the accumulator
// commitment, its bounded root history, and per-asset deposit totals — by
// replaying the event log a validator's SubmitOperations emits. It never
// sees nullifiers or proof material and performs no validation of its own;
// it trusts that the events came from a validator that already checked them.
// Deposit totals are credited from Erc20Deposited events only: burns carried
// in a BlockCommitted event are not debited.
type Follower struct {
	Frontier   *accumulator.Frontier
	Commitment accumulator.Commitment
	PastRoots  *accumulator.RootHistory
	Registry   *registry.Registry
}

// NewFollower starts a follower from an empty copy of the genesis frontier
// shape (arity/height/hasher must match the validator being followed).
func NewFollower(frontier *accumulator.Frontier) *Follower {
	return &Follower{
		Frontier:   frontier,
		Commitment: frontier.Commitment(),
		PastRoots:  accumulator.NewRootHistory(validatorPastRootCapacity),
		Registry:   registry.New(),
	}
}

// validatorPastRootCapacity mirrors validator.PastRootCapacity without an
// import cycle (pkg/validator does not depend on pkg/bridge).
const validatorPastRootCapacity = 40

// Apply replays one emitted event into the follower's state. Events must be
// applied in the order the validator emitted them; out-of-order replay
// produces a frontier that will not match the chain's.
func (f *Follower) Apply(ev validator.Event) error {
	switch ev.Kind {
	case validator.EventErc20Deposited:
		f.Registry.Credit(ev.Erc20Code, ev.Opening.Amount)
		return nil
	case validator.EventBlockCommitted:
		return f.applyBlockCommitted(ev)
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedEventKind, ev.Kind)
	}
}

func (f *Follower) applyBlockCommitted(ev validator.Event) error {
	var leaves [][]byte
	for _, tx := range ev.Txns {
		for _, rc := range tx.Commitments() {
			rc := rc
			leaves = append(leaves, rc[:])
		}
	}
	for _, rc := range ev.Wraps {
		rc := rc
		leaves = append(leaves, rc[:])
	}

	newFrontier, newCommitment, err := accumulator.Extend(f.Frontier, leaves)
	if err != nil {
		return fmt.Errorf("bridge: replaying committed block: %w", err)
	}

	f.PastRoots.Push(f.Commitment.Root)
	f.Frontier = newFrontier
	f.Commitment = newCommitment
	return nil
}
