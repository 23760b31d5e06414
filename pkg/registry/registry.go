// Copyright 2025 Certen Protocol
//
// ERC20Registry
// The bidirectional map between CAP asset definitions and the (erc20 code,
// sponsor) pair that backs them, plus per-code deposit accounting and the
// pending-wrap FIFO queue (spec.md §4.3).

package registry

import (
	"errors"

	"github.com/cape-protocol/cape-validator/pkg/capetypes"
)

var (
	// ErrInvalidErc20Def is returned by Register when the asset definition's
	// code does not verify against the canonical foreign-description binding.
	ErrInvalidErc20Def = errors.New("registry: asset code does not match foreign description")
	// ErrAlreadyRegistered is returned by Register for a duplicate asset definition.
	ErrAlreadyRegistered = errors.New("registry: asset definition already registered")
	// ErrUnregistered is returned by lookups that miss.
	ErrUnregistered = errors.New("registry: asset not registered")
	// ErrIncorrectErc20 is returned when a wrap's declared code disagrees
	// with the registry entry for the opening's asset.
	ErrIncorrectErc20 = errors.New("registry: erc20 code does not match registered binding")
	// ErrDebitUnderflow signals an attempt to debit more than has been
	// deposited — a fatal invariant violation (spec.md §4.5 "Fatal
	// invariants"), never expected given invariants 5-6 hold.
	ErrDebitUnderflow = errors.New("registry: debit underflow")
)

// Binding is the (erc20 code, sponsor) pair an asset definition is bound to.
type Binding struct {
	Erc20Code capetypes.Erc20Code
	Sponsor   capetypes.EthereumAddr
}

// Registry holds the asset-definition <-> ERC-20 binding map, cumulative
// deposit counters, and the pending-wrap queue.
type Registry struct {
	bindings map[capetypes.AssetCode]Binding
	deposits map[capetypes.Erc20Code]capetypes.Amount
	wraps    []capetypes.RecordCommitment
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		bindings: make(map[capetypes.AssetCode]Binding),
		deposits: make(map[capetypes.Erc20Code]capetypes.Amount),
	}
}

// Register binds def to (erc20Code, sponsor), after verifying def.Code is
// the correct foreign-description binding of those values and def.Policy.
func (r *Registry) Register(def capetypes.AssetDefinition, erc20Code capetypes.Erc20Code, sponsor capetypes.EthereumAddr) error {
	if !capetypes.IsForeignAssetValid(def, erc20Code, sponsor) {
		return ErrInvalidErc20Def
	}
	if _, ok := r.bindings[def.Code]; ok {
		return ErrAlreadyRegistered
	}
	r.bindings[def.Code] = Binding{Erc20Code: erc20Code, Sponsor: sponsor}
	return nil
}

// Lookup returns the binding for an asset definition's code, if registered.
func (r *Registry) Lookup(code capetypes.AssetCode) (Binding, bool) {
	b, ok := r.bindings[code]
	return b, ok
}

// Credit increases the cumulative deposit counter for erc20Code by amount —
// used by WrapErc20.
func (r *Registry) Credit(erc20Code capetypes.Erc20Code, amount capetypes.Amount) {
	r.deposits[erc20Code] = r.deposits[erc20Code].Add(amount)
}

// Debit decreases the cumulative deposit counter for erc20Code by amount,
// persisting the decremented value — used by a burn's application. Returns
// ErrDebitUnderflow (and leaves the counter untouched) if amount exceeds the
// current balance; this is the "erc20_deposited debit-result-discarded bug"
// from spec.md §9, fixed rather than reproduced (SPEC_FULL.md §4 item 4).
func (r *Registry) Debit(erc20Code capetypes.Erc20Code, amount capetypes.Amount) error {
	cur := r.deposits[erc20Code]
	next, ok := cur.Sub(amount)
	if !ok {
		return ErrDebitUnderflow
	}
	r.deposits[erc20Code] = next
	return nil
}

// Deposited returns the current cumulative deposit counter for erc20Code.
func (r *Registry) Deposited(erc20Code capetypes.Erc20Code) capetypes.Amount {
	return r.deposits[erc20Code]
}

// EnqueueWrap appends rc to the pending-wrap FIFO queue.
func (r *Registry) EnqueueWrap(rc capetypes.RecordCommitment) {
	r.wraps = append(r.wraps, rc)
}

// DrainWraps removes and returns all pending wraps, in FIFO enqueue order.
func (r *Registry) DrainWraps() []capetypes.RecordCommitment {
	out := r.wraps
	r.wraps = nil
	return out
}

// PendingWraps returns the number of commitments queued but not yet drained.
func (r *Registry) PendingWraps() int { return len(r.wraps) }

// Clone returns a deep copy, so a caller can attempt a batch of mutations
// and discard them all on failure without touching the original.
func (r *Registry) Clone() *Registry {
	bindings := make(map[capetypes.AssetCode]Binding, len(r.bindings))
	for k, v := range r.bindings {
		bindings[k] = v
	}
	deposits := make(map[capetypes.Erc20Code]capetypes.Amount, len(r.deposits))
	for k, v := range r.deposits {
		deposits[k] = v
	}
	wraps := make([]capetypes.RecordCommitment, len(r.wraps))
	copy(wraps, r.wraps)
	return &Registry{bindings: bindings, deposits: deposits, wraps: wraps}
}

