// Copyright 2025 Certen Protocol
//
// Validator — data types
// The CAP transaction/operation/effect shapes the state machine in
// state.go consumes and produces (spec.md §3, §4.5, §6).

package validator

import (
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"

	"github.com/cape-protocol/cape-validator/pkg/capetypes"
)

// NoteVariant distinguishes the three CAP transaction note shapes.
type NoteVariant int

const (
	NoteMint NoteVariant = iota
	NoteFreeze
	NoteTransfer
)

func (v NoteVariant) String() string {
	switch v {
	case NoteMint:
		return "Mint"
	case NoteFreeze:
		return "Freeze"
	case NoteTransfer:
		return "Transfer"
	default:
		return "Unknown"
	}
}

// TransactionNote is one CAP note: input nullifiers, output commitments, the
// Merkle root it was proved against, and its embedded zero-knowledge proof
// material. AuxProofBoundData and MintAssetDef are only meaningful for
// Transfer and Mint notes respectively.
type TransactionNote struct {
	Variant           NoteVariant
	InputNullifiers   []capetypes.Nullifier
	OutputCommitments []capetypes.RecordCommitment
	MerkleRoot        [32]byte

	// AuxProofBoundData is the Transfer note's burn/transfer discriminator
	// field (spec.md §4.4); unused for Mint and Freeze.
	AuxProofBoundData []byte

	// MintAssetDef is the asset definition a Mint note declares for its
	// newly minted output; unused for Transfer and Freeze.
	MintAssetDef capetypes.AssetDefinition

	Proof         groth16.Proof
	PublicWitness witness.Witness
}

// TxKind distinguishes an ordinary CAP transaction from a burn.
type TxKind int

const (
	TxCAP TxKind = iota
	TxBurn
)

// Transaction is the tagged union `{CAP(note) | Burn{xfr, opening}}` from
// spec.md §3. For TxBurn, Note holds the underlying Transfer note (its
// Variant is always NoteTransfer) and Opening holds the burned record's
// pre-image.
type Transaction struct {
	Kind    TxKind
	Note    TransactionNote
	Opening capetypes.RecordOpening
}

// Nullifiers returns the transaction's input nullifiers (spec.md
// `CapeModelTxn::nullifiers`).
func (tx Transaction) Nullifiers() []capetypes.Nullifier {
	return tx.Note.InputNullifiers
}

// Commitments returns the transaction's tree-bound output commitments, with
// the burned slot (index 1) removed for a burn (SPEC_FULL.md §4 item 2,
// `CapeModelTxn::commitments`).
func (tx Transaction) Commitments() []capetypes.RecordCommitment {
	if tx.Kind != TxBurn {
		return tx.Note.OutputCommitments
	}
	return removeAt(tx.Note.OutputCommitments, 1)
}

func removeAt(rcs []capetypes.RecordCommitment, idx int) []capetypes.RecordCommitment {
	out := make([]capetypes.RecordCommitment, 0, len(rcs)-1)
	for i, rc := range rcs {
		if i == idx {
			continue
		}
		out = append(out, rc)
	}
	return out
}

// OperationKind distinguishes the three operations submit_operations accepts.
type OperationKind int

const (
	OpSubmitBlock OperationKind = iota
	OpRegisterErc20
	OpWrapErc20
)

// Operation is one entry of the list passed to SubmitOperations. Only the
// fields relevant to Kind are meaningful; this mirrors the teacher's plain
// struct-per-request style rather than a generics-heavy sum type.
type Operation struct {
	Kind OperationKind

	// SubmitBlock
	Txns []Transaction

	// RegisterErc20
	AssetDef capetypes.AssetDefinition
	Sponsor  capetypes.EthereumAddr

	// RegisterErc20 and WrapErc20
	Erc20Code capetypes.Erc20Code

	// WrapErc20
	SrcAddr capetypes.EthereumAddr
	Opening capetypes.RecordOpening
}

// SubmitBlockOp builds a SubmitBlock operation.
func SubmitBlockOp(txns []Transaction) Operation {
	return Operation{Kind: OpSubmitBlock, Txns: txns}
}

// RegisterErc20Op builds a RegisterErc20 operation.
func RegisterErc20Op(def capetypes.AssetDefinition, code capetypes.Erc20Code, sponsor capetypes.EthereumAddr) Operation {
	return Operation{Kind: OpRegisterErc20, AssetDef: def, Erc20Code: code, Sponsor: sponsor}
}

// WrapErc20Op builds a WrapErc20 operation.
func WrapErc20Op(code capetypes.Erc20Code, src capetypes.EthereumAddr, ro capetypes.RecordOpening) Operation {
	return Operation{Kind: OpWrapErc20, Erc20Code: code, SrcAddr: src, Opening: ro}
}

// EthEffectKind distinguishes the four CapeEthEffect variants (spec.md §6).
type EthEffectKind int

const (
	EffReceiveErc20 EthEffectKind = iota
	EffCheckErc20Exists
	EffSendErc20
	EffEmit
)

// EthEffect is one entry of the effect list SubmitOperations returns,
// classified as Ethereum-bound (ReceiveErc20/CheckErc20Exists/SendErc20) or
// log-bound (Emit) per spec.md §2.
type EthEffect struct {
	Kind      EthEffectKind
	Erc20Code capetypes.Erc20Code
	Amount    capetypes.Amount
	Src       capetypes.EthereumAddr // ReceiveErc20
	Dst       capetypes.EthereumAddr // SendErc20
	Event     Event                  // Emit
}

// EventKind distinguishes the two CapeEvent variants.
type EventKind int

const (
	EventErc20Deposited EventKind = iota
	EventBlockCommitted
)

// Event is a CapeEvent: either an Erc20Deposited record or a committed
// block's accepted transactions and drained wraps.
type Event struct {
	Kind EventKind

	// Erc20Deposited
	Erc20Code capetypes.Erc20Code
	Src       capetypes.EthereumAddr
	Opening   capetypes.RecordOpening

	// BlockCommitted
	Txns  []Transaction
	Wraps []capetypes.RecordCommitment
}
