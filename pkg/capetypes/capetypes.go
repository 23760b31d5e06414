// Copyright 2025 Certen Protocol
//
// CAP Data Model
// Core value types shared by every ledger component: record openings and
// their commitments, nullifiers, asset definitions, and Ethereum-facing
// identifiers. The zero-knowledge circuitry that produces/consumes these
// values is an external collaborator (see pkg/proofs); this package only
// fixes their Go shape and canonical byte encodings.

package capetypes

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cape-protocol/cape-validator/pkg/commitment"
)

// RecordCommitment identifies an output record uniquely; a field element in
// the real system, represented here as its 32-byte canonical encoding.
type RecordCommitment [32]byte

// Nullifier is a one-time spend tag derived from a consumed record.
type Nullifier [32]byte

// AssetCode identifies an asset definition; derived either from a
// user-chosen seed ("domestic") or from a structured ERC-20 binding
// ("foreign", see ForeignDescription).
type AssetCode [32]byte

// EthereumAddr is the ledger's notion of an Ethereum account: a thin,
// value-comparable wrapper over go-ethereum's common.Address so that it can
// be used as a map key and serialized deterministically.
type EthereumAddr [20]byte

// FromCommonAddress converts a go-ethereum address into an EthereumAddr.
func FromCommonAddress(a common.Address) EthereumAddr {
	var e EthereumAddr
	copy(e[:], a.Bytes())
	return e
}

// Common converts back to a go-ethereum address.
func (e EthereumAddr) Common() common.Address {
	return common.BytesToAddress(e[:])
}

func (e EthereumAddr) String() string { return e.Common().Hex() }

// Erc20Code identifies a deployed ERC-20 token contract by its 20-byte
// Ethereum address. Distinct from AssetCode (CAP's own, 32-byte asset
// identifier): a foreign asset definition binds one of each together.
type Erc20Code = EthereumAddr

// Amount is a CAP record's value, u128-scale per the data model ("u128
// cumulative deposit ledger"). Backed by uint256 because the pack has no
// narrower u128 type and go-ethereum's own balances use the wider type too.
type Amount struct {
	v uint256.Int
}

// NewAmount builds an Amount from a uint64; sufficient for the validator's
// own bookkeeping, which never needs to construct one from a decimal string.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	var out Amount
	out.v.Add(&a.v, &b.v)
	return out
}

// Sub returns a - b, and false if the subtraction would underflow (the
// caller is expected to treat that as a programmer error per spec.md §4.5
// "Fatal invariants").
func (a Amount) Sub(b Amount) (Amount, bool) {
	if a.v.Lt(&b.v) {
		return Amount{}, false
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out, true
}

// ParseAmount parses a base-10 string into an Amount, for decoding the
// decimal-string amounts carried by the HTTP wire format (JSON numbers lose
// precision above 2^53; the CAP amount space is u128-scale).
func ParseAmount(s string) (Amount, error) {
	var a Amount
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, err
	}
	return a, nil
}

func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

func (a Amount) IsZero() bool { return a.v.IsZero() }

func (a Amount) Bytes32() [32]byte { return a.v.Bytes32() }

func (a Amount) String() string { return a.v.Dec() }

// AssetPolicy is the freeze/reveal policy attached to an asset definition.
// The real CAP policy (viewing/freezing public keys, reveal thresholds,
// reveal map) is circuit-level detail out of scope here (spec.md §1); this
// package only needs a canonical, ABI-encodable byte form of it.
type AssetPolicy struct {
	// Blob is the policy's canonical serialized form, opaque to the
	// ledger beyond its use as an input to ForeignDescription and asset
	// code verification.
	Blob []byte
}

// Encode returns the policy's canonical bytes, used verbatim as the
// "policy_abi_encoding" segment of ForeignDescription.
func (p AssetPolicy) Encode() []byte {
	if p.Blob == nil {
		return []byte{}
	}
	return p.Blob
}

// AssetDefinition pairs an asset code with its policy (spec.md §3).
type AssetDefinition struct {
	Code   AssetCode
	Policy AssetPolicy
}

// ForeignDescription computes the canonical byte binding for a
// foreign (ERC-20-backed) asset code: the `foreign_description` external
// interface from spec.md §6 —
//
//	"EsSCAPE ERC20" || erc20_code || "sponsored by" || sponsor || "policy" || policy_abi_encoding
func ForeignDescription(erc20Code Erc20Code, sponsor EthereumAddr, policy AssetPolicy) []byte {
	out := append([]byte("EsSCAPE ERC20"), erc20Code[:]...)
	out = append(out, []byte("sponsored by")...)
	out = append(out, sponsor[:]...)
	out = append(out, []byte("policy")...)
	out = append(out, policy.Encode()...)
	return out
}

// ForeignAssetCode derives the asset code a foreign asset definition must
// carry, by hashing its canonical description (spec.md invariant 8).
func ForeignAssetCode(erc20Code Erc20Code, sponsor EthereumAddr, policy AssetPolicy) AssetCode {
	return AssetCode(commitment.Hash32(ForeignDescription(erc20Code, sponsor, policy)))
}

// IsForeignAssetValid reports whether def.Code is the correct foreign
// binding of (erc20Code, sponsor, def.Policy) — the registration-time check
// behind InvalidErc20Def.
func IsForeignAssetValid(def AssetDefinition, erc20Code Erc20Code, sponsor EthereumAddr) bool {
	return def.Code == ForeignAssetCode(erc20Code, sponsor, def.Policy)
}

// DomesticAssetCode derives the code of a natively minted asset from a
// user-chosen seed and description (spec.md §3 "domestic ... derived from a
// user-chosen seed and description").
func DomesticAssetCode(seed [32]byte, description []byte) AssetCode {
	return AssetCode(commitment.Hash32([]byte("EsSCAPE domestic"), seed[:], description))
}

// RecordOpening is the full pre-image of a record commitment: amount,
// asset, owner, freeze flag, and blinding factor (spec.md §3).
type RecordOpening struct {
	Amount   Amount
	AssetDef AssetDefinition
	// Owner is the record's CAP public key, opaque to the ledger beyond its
	// role as an input to the commitment hash.
	Owner    [32]byte
	Freeze   bool
	Blinding [32]byte
}

// Commitment computes the record_commitment(opening) -> RC external
// interface from spec.md §6: "hash of the opening's canonical encoding."
func (ro RecordOpening) Commitment() RecordCommitment {
	freeze := byte(0)
	if ro.Freeze {
		freeze = 1
	}
	return RecordCommitment(commitment.Hash32(
		ro.Amount.Bytes32()[:],
		ro.AssetDef.Code[:],
		ro.AssetDef.Policy.Encode(),
		ro.Owner[:],
		[]byte{freeze},
		ro.Blinding[:],
	))
}
