// Copyright 2025 Certen Protocol
//
// HTTP Wire Format
// JSON representations of the capetypes/validator value types exchanged
// over the API: hex strings for fixed-size byte arrays, decimal strings for
// Amount (JSON numbers lose precision above 2^53 and CAP amounts are
// u128-scale), and base64 for raw proof bytes — following the gnark
// ReadFrom/WriteTo serialization idiom used by the teacher's bls_zkp prover
// for moving proof material across a wire boundary.

package server

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"

	"github.com/cape-protocol/cape-validator/pkg/capetypes"
	"github.com/cape-protocol/cape-validator/pkg/proofs"
	"github.com/cape-protocol/cape-validator/pkg/validator"
)

// wireRecordOpening is the JSON shape of a capetypes.RecordOpening.
type wireRecordOpening struct {
	Amount    string `json:"amount"`
	AssetCode string `json:"asset_code"`
	Policy    string `json:"policy,omitempty"`
	Owner     string `json:"owner"`
	Freeze    bool   `json:"freeze"`
	Blinding  string `json:"blinding"`
}

func decodeHex32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// decodeHex20 decodes a 20-byte Ethereum address, for erc20_code/sponsor/
// src_addr wire fields (spec.md §6 "Ethereum address width: 20 bytes").
func decodeHex20(s string) (capetypes.EthereumAddr, error) {
	var out capetypes.EthereumAddr
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 20 {
		return out, fmt.Errorf("want 20 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func (w wireRecordOpening) decode() (capetypes.RecordOpening, error) {
	amount, err := capetypes.ParseAmount(w.Amount)
	if err != nil {
		return capetypes.RecordOpening{}, fmt.Errorf("amount: %w", err)
	}
	code, err := decodeHex32(w.AssetCode)
	if err != nil {
		return capetypes.RecordOpening{}, fmt.Errorf("asset_code: %w", err)
	}
	owner, err := decodeHex32(w.Owner)
	if err != nil {
		return capetypes.RecordOpening{}, fmt.Errorf("owner: %w", err)
	}
	blinding, err := decodeHex32(w.Blinding)
	if err != nil {
		return capetypes.RecordOpening{}, fmt.Errorf("blinding: %w", err)
	}
	var policyBlob []byte
	if w.Policy != "" {
		policyBlob, err = hex.DecodeString(w.Policy)
		if err != nil {
			return capetypes.RecordOpening{}, fmt.Errorf("policy: %w", err)
		}
	}
	return capetypes.RecordOpening{
		Amount:   amount,
		AssetDef: capetypes.AssetDefinition{Code: capetypes.AssetCode(code), Policy: capetypes.AssetPolicy{Blob: policyBlob}},
		Owner:    owner,
		Freeze:   w.Freeze,
		Blinding: blinding,
	}, nil
}

// wireTransactionNote is the JSON shape of a validator.TransactionNote.
// Proof is a base64-encoded groth16.Proof blob; the public witness is not
// carried on the wire at all — it is fully determined by (MerkleRoot,
// block height), both already present, so the server derives it itself via
// proofs.NewPublicWitness rather than trust a client-supplied one.
type wireTransactionNote struct {
	Variant           string   `json:"variant"`
	InputNullifiers   []string `json:"input_nullifiers"`
	OutputCommitments []string `json:"output_commitments"`
	MerkleRoot        string   `json:"merkle_root"`
	AuxProofBoundData string   `json:"aux,omitempty"`
	MintAssetCode     string   `json:"mint_asset_code,omitempty"`
	MintPolicy        string   `json:"mint_policy,omitempty"`
	Proof             string   `json:"proof"`
}

func parseVariant(s string) (validator.NoteVariant, error) {
	switch s {
	case "Mint":
		return validator.NoteMint, nil
	case "Freeze":
		return validator.NoteFreeze, nil
	case "Transfer":
		return validator.NoteTransfer, nil
	default:
		return 0, fmt.Errorf("unknown note variant %q", s)
	}
}

func (w wireTransactionNote) decode(curve ecc.ID, height uint64) (validator.TransactionNote, error) {
	variant, err := parseVariant(w.Variant)
	if err != nil {
		return validator.TransactionNote{}, err
	}
	root, err := decodeHex32(w.MerkleRoot)
	if err != nil {
		return validator.TransactionNote{}, fmt.Errorf("merkle_root: %w", err)
	}

	nullifiers := make([]capetypes.Nullifier, len(w.InputNullifiers))
	for i, s := range w.InputNullifiers {
		b, err := decodeHex32(s)
		if err != nil {
			return validator.TransactionNote{}, fmt.Errorf("input_nullifiers[%d]: %w", i, err)
		}
		nullifiers[i] = capetypes.Nullifier(b)
	}

	commitments := make([]capetypes.RecordCommitment, len(w.OutputCommitments))
	for i, s := range w.OutputCommitments {
		b, err := decodeHex32(s)
		if err != nil {
			return validator.TransactionNote{}, fmt.Errorf("output_commitments[%d]: %w", i, err)
		}
		commitments[i] = capetypes.RecordCommitment(b)
	}

	var aux []byte
	if w.AuxProofBoundData != "" {
		aux, err = hex.DecodeString(w.AuxProofBoundData)
		if err != nil {
			return validator.TransactionNote{}, fmt.Errorf("aux: %w", err)
		}
	}

	var mintDef capetypes.AssetDefinition
	if w.MintAssetCode != "" {
		code, err := decodeHex32(w.MintAssetCode)
		if err != nil {
			return validator.TransactionNote{}, fmt.Errorf("mint_asset_code: %w", err)
		}
		var policyBlob []byte
		if w.MintPolicy != "" {
			policyBlob, err = hex.DecodeString(w.MintPolicy)
			if err != nil {
				return validator.TransactionNote{}, fmt.Errorf("mint_policy: %w", err)
			}
		}
		mintDef = capetypes.AssetDefinition{Code: capetypes.AssetCode(code), Policy: capetypes.AssetPolicy{Blob: policyBlob}}
	}

	proofBytes, err := base64.StdEncoding.DecodeString(w.Proof)
	if err != nil {
		return validator.TransactionNote{}, fmt.Errorf("proof: invalid base64: %w", err)
	}
	proof := groth16.NewProof(curve)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return validator.TransactionNote{}, fmt.Errorf("proof: %w", err)
	}

	publicWitness, err := proofs.NewPublicWitness(curve, root, height)
	if err != nil {
		return validator.TransactionNote{}, fmt.Errorf("public witness: %w", err)
	}

	return validator.TransactionNote{
		Variant:           variant,
		InputNullifiers:   nullifiers,
		OutputCommitments: commitments,
		MerkleRoot:        root,
		AuxProofBoundData: aux,
		MintAssetDef:      mintDef,
		Proof:             proof,
		PublicWitness:     publicWitness,
	}, nil
}

// wireTransaction is the JSON shape of a validator.Transaction: either an
// ordinary CAP note or a burn, distinguished by Kind.
type wireTransaction struct {
	Kind    string            `json:"kind"`
	Note    wireTransactionNote `json:"note"`
	Opening *wireRecordOpening `json:"opening,omitempty"`
}

func (w wireTransaction) decode(curve ecc.ID, height uint64) (validator.Transaction, error) {
	note, err := w.Note.decode(curve, height)
	if err != nil {
		return validator.Transaction{}, err
	}
	switch w.Kind {
	case "cap", "":
		return validator.Transaction{Kind: validator.TxCAP, Note: note}, nil
	case "burn":
		if w.Opening == nil {
			return validator.Transaction{}, fmt.Errorf("burn transaction requires opening")
		}
		opening, err := w.Opening.decode()
		if err != nil {
			return validator.Transaction{}, fmt.Errorf("opening: %w", err)
		}
		return validator.Transaction{Kind: validator.TxBurn, Note: note, Opening: opening}, nil
	default:
		return validator.Transaction{}, fmt.Errorf("unknown transaction kind %q", w.Kind)
	}
}

// SubmitBlockRequest is the POST /v1/blocks request body.
type SubmitBlockRequest struct {
	Transactions []wireTransaction `json:"transactions"`
}

// RegisterErc20Request is the POST /v1/erc20/register request body.
type RegisterErc20Request struct {
	AssetCode string `json:"asset_code"`
	Policy    string `json:"policy,omitempty"`
	Erc20Code string `json:"erc20_code"`
	Sponsor   string `json:"sponsor"`
}

// WrapErc20Request is the POST /v1/erc20/wrap request body.
type WrapErc20Request struct {
	Erc20Code string            `json:"erc20_code"`
	SrcAddr   string            `json:"src_addr"`
	Opening   wireRecordOpening `json:"opening"`
}

// OperationResponse is the common response shape for a successful
// SubmitOperations call: the resulting ledger position and any effects the
// caller should act on (dispatched to pkg/ethexec server-side; surfaced
// here too so a caller without its own Ethereum executor can act on them).
type OperationResponse struct {
	BlockHeight uint64       `json:"block_height"`
	Root        string       `json:"root"`
	Count       uint64       `json:"count"`
	Effects     []wireEffect `json:"effects"`
}

type wireEffect struct {
	Kind      string `json:"kind"`
	Erc20Code string `json:"erc20_code,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Src       string `json:"src,omitempty"`
	Dst       string `json:"dst,omitempty"`
}

func effectKindString(k validator.EthEffectKind) string {
	switch k {
	case validator.EffReceiveErc20:
		return "ReceiveErc20"
	case validator.EffCheckErc20Exists:
		return "CheckErc20Exists"
	case validator.EffSendErc20:
		return "SendErc20"
	case validator.EffEmit:
		return "Emit"
	default:
		return "Unknown"
	}
}

func encodeEffects(effects []validator.EthEffect) []wireEffect {
	out := make([]wireEffect, len(effects))
	for i, e := range effects {
		out[i] = wireEffect{
			Kind:      effectKindString(e.Kind),
			Erc20Code: hex.EncodeToString(e.Erc20Code[:]),
			Amount:    e.Amount.String(),
			Src:       e.Src.String(),
			Dst:       e.Dst.String(),
		}
	}
	return out
}

// LedgerView is the GET /v1/ledger response: a read-only snapshot of the
// ledger's public position.
type LedgerView struct {
	BlockHeight  uint64 `json:"block_height"`
	Root         string `json:"root"`
	Count        uint64 `json:"count"`
	PendingWraps int    `json:"pending_wraps"`
}
