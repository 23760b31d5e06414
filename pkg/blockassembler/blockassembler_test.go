package blockassembler

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cape-protocol/cape-validator/pkg/burn"
	"github.com/cape-protocol/cape-validator/pkg/capetypes"
	"github.com/cape-protocol/cape-validator/pkg/validator"
)

func commit(b byte) capetypes.RecordCommitment {
	var c capetypes.RecordCommitment
	c[31] = b
	return c
}

func nullif(b byte) capetypes.Nullifier {
	var n capetypes.Nullifier
	n[31] = b
	return n
}

func transferNote(in, out byte, aux []byte) validator.TransactionNote {
	return validator.TransactionNote{
		Variant:           validator.NoteTransfer,
		InputNullifiers:   []capetypes.Nullifier{nullif(in)},
		OutputCommitments: []capetypes.RecordCommitment{commit(out)},
		AuxProofBoundData: aux,
	}
}

func mintNote(out byte) validator.TransactionNote {
	return validator.TransactionNote{
		Variant:           validator.NoteMint,
		OutputCommitments: []capetypes.RecordCommitment{commit(out)},
	}
}

func freezeNote(in, out byte) validator.TransactionNote {
	return validator.TransactionNote{
		Variant:           validator.NoteFreeze,
		InputNullifiers:   []capetypes.Nullifier{nullif(in)},
		OutputCommitments: []capetypes.RecordCommitment{commit(out)},
	}
}

func burnTx(in, changeOut byte, dst capetypes.EthereumAddr) validator.Transaction {
	ro := capetypes.RecordOpening{
		Amount:   capetypes.NewAmount(5),
		AssetDef: capetypes.AssetDefinition{Code: capetypes.AssetCode{0x9}},
		Blinding: [32]byte{0x7},
	}
	note := validator.TransactionNote{
		Variant:           validator.NoteTransfer,
		InputNullifiers:   []capetypes.Nullifier{nullif(in)},
		OutputCommitments: []capetypes.RecordCommitment{commit(changeOut), ro.Commitment()},
		AuxProofBoundData: burn.Encode(dst),
	}
	return validator.Transaction{Kind: validator.TxBurn, Note: note, Opening: ro}
}

func TestFromTransactionsPartitionsByType(t *testing.T) {
	miner := capetypes.FromCommonAddress(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	dst := capetypes.FromCommonAddress(common.HexToAddress("0x2222222222222222222222222222222222222222"))

	txs := []validator.Transaction{
		{Kind: validator.TxCAP, Note: transferNote(1, 10, nil)},
		{Kind: validator.TxCAP, Note: mintNote(20)},
		burnTx(2, 11, dst),
		{Kind: validator.TxCAP, Note: freezeNote(3, 30)},
		{Kind: validator.TxCAP, Note: transferNote(4, 12, nil)},
	}

	block, err := FromTransactions(txs, miner)
	if err != nil {
		t.Fatalf("FromTransactions: %v", err)
	}
	if len(block.TransferNotes) != 2 || len(block.MintNotes) != 1 || len(block.FreezeNotes) != 1 || len(block.BurnNotes) != 1 {
		t.Fatalf("unexpected partition sizes: %+v", block)
	}
	wantTypes := []NoteType{NoteTypeTransfer, NoteTypeMint, NoteTypeBurn, NoteTypeFreeze, NoteTypeTransfer}
	if len(block.NoteTypes) != len(wantTypes) {
		t.Fatalf("tag vector length = %d, want %d", len(block.NoteTypes), len(wantTypes))
	}
	for i, nt := range wantTypes {
		if block.NoteTypes[i] != nt {
			t.Errorf("tag[%d] = %v, want %v", i, block.NoteTypes[i], nt)
		}
	}
}

func TestRoundTripPreservesOrder(t *testing.T) {
	miner := capetypes.FromCommonAddress(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	dst := capetypes.FromCommonAddress(common.HexToAddress("0x2222222222222222222222222222222222222222"))

	orig := []validator.Transaction{
		{Kind: validator.TxCAP, Note: transferNote(1, 10, nil)},
		{Kind: validator.TxCAP, Note: mintNote(20)},
		{Kind: validator.TxCAP, Note: transferNote(2, 11, nil)},
		burnTx(3, 12, dst),
		{Kind: validator.TxCAP, Note: freezeNote(4, 30)},
		{Kind: validator.TxCAP, Note: mintNote(21)},
		burnTx(5, 13, dst),
	}

	block, err := FromTransactions(orig, miner)
	if err != nil {
		t.Fatalf("FromTransactions: %v", err)
	}
	got, gotMiner, err := block.IntoTransactions()
	if err != nil {
		t.Fatalf("IntoTransactions: %v", err)
	}
	if gotMiner != miner {
		t.Errorf("miner not preserved")
	}
	if len(got) != len(orig) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(orig))
	}
	for i := range orig {
		if got[i].Kind != orig[i].Kind {
			t.Errorf("tx[%d].Kind = %v, want %v", i, got[i].Kind, orig[i].Kind)
		}
		if len(got[i].Note.OutputCommitments) == 0 || len(orig[i].Note.OutputCommitments) == 0 {
			continue
		}
		if got[i].Note.OutputCommitments[0] != orig[i].Note.OutputCommitments[0] {
			t.Errorf("tx[%d] output[0] = %x, want %x", i, got[i].Note.OutputCommitments[0], orig[i].Note.OutputCommitments[0])
		}
	}
}

func TestIntoTransactionsRejectsMismatchedCounts(t *testing.T) {
	block := Block{
		NoteTypes:     []NoteType{NoteTypeTransfer, NoteTypeTransfer},
		TransferNotes: []validator.TransactionNote{transferNote(1, 10, nil)},
	}
	_, _, err := block.IntoTransactions()
	if !errors.Is(err, ErrMalformedBlock) {
		t.Fatalf("err = %v, want ErrMalformedBlock", err)
	}
}

func TestIntoTransactionsRejectsLeftoverNotes(t *testing.T) {
	block := Block{
		NoteTypes:     []NoteType{NoteTypeTransfer},
		TransferNotes: []validator.TransactionNote{transferNote(1, 10, nil), transferNote(2, 11, nil)},
	}
	_, _, err := block.IntoTransactions()
	if !errors.Is(err, ErrMalformedBlock) {
		t.Fatalf("err = %v, want ErrMalformedBlock", err)
	}
}

func TestNewBurnNoteRejectsWrongOpening(t *testing.T) {
	dst := capetypes.FromCommonAddress(common.HexToAddress("0x2222222222222222222222222222222222222222"))
	note := validator.TransactionNote{
		OutputCommitments: []capetypes.RecordCommitment{commit(1), commit(2)},
		AuxProofBoundData: burn.Encode(dst),
	}
	wrongOpening := capetypes.RecordOpening{Amount: capetypes.NewAmount(99)}
	_, err := NewBurnNote(note, wrongOpening)
	if !errors.Is(err, ErrMalformedBurnNote) {
		t.Fatalf("err = %v, want ErrMalformedBurnNote", err)
	}
}

func TestNewBurnNoteRejectsNonBurnAux(t *testing.T) {
	ro := capetypes.RecordOpening{Amount: capetypes.NewAmount(7)}
	note := validator.TransactionNote{
		OutputCommitments: []capetypes.RecordCommitment{commit(1), ro.Commitment()},
		AuxProofBoundData: make([]byte, 32),
	}
	_, err := NewBurnNote(note, ro)
	if !errors.Is(err, ErrMalformedBurnNote) {
		t.Fatalf("err = %v, want ErrMalformedBurnNote", err)
	}
}

func TestCommitmentsExcludesBurnedOutputAndFollowsOrder(t *testing.T) {
	miner := capetypes.FromCommonAddress(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	dst := capetypes.FromCommonAddress(common.HexToAddress("0x2222222222222222222222222222222222222222"))

	txs := []validator.Transaction{
		{Kind: validator.TxCAP, Note: mintNote(20)},
		burnTx(1, 11, dst),
	}
	block, err := FromTransactions(txs, miner)
	if err != nil {
		t.Fatalf("FromTransactions: %v", err)
	}
	commits, err := block.Commitments()
	if err != nil {
		t.Fatalf("Commitments: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("len(commits) = %d, want 2 (mint output + burn change, burned output excluded)", len(commits))
	}
	if commits[0] != commit(20) {
		t.Errorf("commits[0] = %x, want mint output", commits[0])
	}
	if commits[1] != commit(11) {
		t.Errorf("commits[1] = %x, want burn change output", commits[1])
	}
}
