// Copyright 2025 Certen Protocol
//
// BlockAssembler
// Converts between the validator's internal transaction list and the
// on-chain, split-by-type block encoding (spec.md §4.6), grounded on
// cape/mod.rs's CapeBlock/BurnNote (lines 36-210). The type-tag vector is
// the single source of ordering truth; per-type lists are purely an
// encoding artifact and MUST be drained in FIFO (original-order) sequence
// to satisfy the round-trip property (spec.md §8 property 8) — this
// package intentionally does not reproduce cape/mod.rs's reversed-iterator
// consumption, which breaks that round trip whenever a type appears more
// than once in a block (SPEC_FULL.md §4 item 3, DESIGN.md "Open Questions").

package blockassembler

import (
	"errors"
	"fmt"

	"github.com/cape-protocol/cape-validator/pkg/burn"
	"github.com/cape-protocol/cape-validator/pkg/capetypes"
	"github.com/cape-protocol/cape-validator/pkg/validator"
)

// ErrMalformedBlock is returned by IntoTransactions when the tag vector
// calls for more or fewer notes of some type than the block actually
// carries, or holds an unknown note type.
var ErrMalformedBlock = errors.New("blockassembler: tag vector does not match note counts")

// ErrMalformedBurnNote is returned by NewBurnNote when the supplied
// transfer note and opening do not together form a valid burn.
var ErrMalformedBurnNote = errors.New("blockassembler: malformed burn note")

// NoteType is the block's per-transaction type tag, the ordering authority
// across encode/decode round trips.
type NoteType int

const (
	NoteTypeTransfer NoteType = iota
	NoteTypeMint
	NoteTypeFreeze
	NoteTypeBurn
)

// BurnNote pairs a Transfer note with the record opening of its burned
// (second) output — cape/mod.rs's BurnNote.
type BurnNote struct {
	Transfer validator.TransactionNote
	Opening  capetypes.RecordOpening
}

// NewBurnNote validates and constructs a BurnNote, mirroring
// BurnNote::generate's constructor-time checks: at least two outputs, the
// opening matches output[1], the aux field is exactly 32 bytes, and it
// actually carries the burn tag (SPEC_FULL.md §4 item 1 — defense in depth;
// the validator's own checks during SubmitBlock remain authoritative).
func NewBurnNote(note validator.TransactionNote, opening capetypes.RecordOpening) (BurnNote, error) {
	if len(note.OutputCommitments) < 2 {
		return BurnNote{}, fmt.Errorf("%w: fewer than 2 outputs", ErrMalformedBurnNote)
	}
	if note.OutputCommitments[1] != opening.Commitment() {
		return BurnNote{}, fmt.Errorf("%w: opening does not match output[1]", ErrMalformedBurnNote)
	}
	if len(note.AuxProofBoundData) != burn.AuxFieldLen {
		return BurnNote{}, fmt.Errorf("%w: aux field is not %d bytes", ErrMalformedBurnNote, burn.AuxFieldLen)
	}
	if burn.Discriminate(note.AuxProofBoundData).Kind != burn.Burn {
		return BurnNote{}, fmt.Errorf("%w: aux field is not a valid burn tag", ErrMalformedBurnNote)
	}
	return BurnNote{Transfer: note, Opening: opening}, nil
}

// IsBurnNote reports whether a Transfer note carries the burn tag —
// cape/mod.rs's BurnNote::is_burn_note, used while splitting a flat note
// list by discriminator rather than solely by CapeModelTxn's variant tag
// (SPEC_FULL.md §4 item 3).
func IsBurnNote(note validator.TransactionNote) bool {
	return burn.Discriminate(note.AuxProofBoundData).Kind == burn.Burn
}

// Block is the canonical on-chain block encoding: a type-tag vector in
// original order, plus per-type note lists (the encoding artifact).
type Block struct {
	MinerAddr     capetypes.EthereumAddr
	NoteTypes     []NoteType
	TransferNotes []validator.TransactionNote
	MintNotes     []validator.TransactionNote
	FreezeNotes   []validator.TransactionNote
	BurnNotes     []BurnNote
}

// FromTransactions partitions txs by type, recording the original
// interleaving in NoteTypes (cape/mod.rs's CapeBlock::from_cape_transactions
// + generate). A Transfer note carrying the burn tag is routed to
// BurnNotes even if tx.Kind says TxCAP, matching the original's
// discriminator-based routing (SPEC_FULL.md §4 item 3).
func FromTransactions(txs []validator.Transaction, miner capetypes.EthereumAddr) (Block, error) {
	b := Block{MinerAddr: miner}
	for _, tx := range txs {
		if tx.Kind == validator.TxBurn || IsBurnNote(tx.Note) {
			bn, err := NewBurnNote(tx.Note, tx.Opening)
			if err != nil {
				return Block{}, err
			}
			b.BurnNotes = append(b.BurnNotes, bn)
			b.NoteTypes = append(b.NoteTypes, NoteTypeBurn)
			continue
		}
		switch tx.Note.Variant {
		case validator.NoteMint:
			b.MintNotes = append(b.MintNotes, tx.Note)
			b.NoteTypes = append(b.NoteTypes, NoteTypeMint)
		case validator.NoteFreeze:
			b.FreezeNotes = append(b.FreezeNotes, tx.Note)
			b.NoteTypes = append(b.NoteTypes, NoteTypeFreeze)
		default:
			b.TransferNotes = append(b.TransferNotes, tx.Note)
			b.NoteTypes = append(b.NoteTypes, NoteTypeTransfer)
		}
	}
	return b, nil
}

// IntoTransactions zips the tag vector against FIFO per-type queues to
// rebuild the original transaction order and the miner address
// (cape/mod.rs's CapeBlock::into_cape_transactions). Returns
// ErrMalformedBlock if the tag vector calls for more notes of a type than
// the block actually carries, or leaves some of its notes unused.
func (b Block) IntoTransactions() ([]validator.Transaction, capetypes.EthereumAddr, error) {
	var ti, mi, fi, bi int
	txs := make([]validator.Transaction, 0, len(b.NoteTypes))
	for _, nt := range b.NoteTypes {
		switch nt {
		case NoteTypeTransfer:
			if ti >= len(b.TransferNotes) {
				return nil, capetypes.EthereumAddr{}, ErrMalformedBlock
			}
			txs = append(txs, validator.Transaction{Kind: validator.TxCAP, Note: b.TransferNotes[ti]})
			ti++
		case NoteTypeMint:
			if mi >= len(b.MintNotes) {
				return nil, capetypes.EthereumAddr{}, ErrMalformedBlock
			}
			txs = append(txs, validator.Transaction{Kind: validator.TxCAP, Note: b.MintNotes[mi]})
			mi++
		case NoteTypeFreeze:
			if fi >= len(b.FreezeNotes) {
				return nil, capetypes.EthereumAddr{}, ErrMalformedBlock
			}
			txs = append(txs, validator.Transaction{Kind: validator.TxCAP, Note: b.FreezeNotes[fi]})
			fi++
		case NoteTypeBurn:
			if bi >= len(b.BurnNotes) {
				return nil, capetypes.EthereumAddr{}, ErrMalformedBlock
			}
			bn := b.BurnNotes[bi]
			txs = append(txs, validator.Transaction{Kind: validator.TxBurn, Note: bn.Transfer, Opening: bn.Opening})
			bi++
		default:
			return nil, capetypes.EthereumAddr{}, fmt.Errorf("%w: unknown note type %d", ErrMalformedBlock, nt)
		}
	}
	if ti != len(b.TransferNotes) || mi != len(b.MintNotes) || fi != len(b.FreezeNotes) || bi != len(b.BurnNotes) {
		return nil, capetypes.EthereumAddr{}, ErrMalformedBlock
	}
	return txs, b.MinerAddr, nil
}

// Commitments returns the tree-bound output commitments of every
// transaction in the block, in the block's transaction order
// (cape/mod.rs's CapeBlock::commitments, SPEC_FULL.md §4 item 2).
func (b Block) Commitments() ([]capetypes.RecordCommitment, error) {
	txs, _, err := b.IntoTransactions()
	if err != nil {
		return nil, err
	}
	var out []capetypes.RecordCommitment
	for _, tx := range txs {
		out = append(out, tx.Commitments()...)
	}
	return out, nil
}
