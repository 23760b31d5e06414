package validator

import (
	"errors"
	"testing"

	"github.com/cape-protocol/cape-validator/pkg/accumulator"
	"github.com/cape-protocol/cape-validator/pkg/burn"
	"github.com/cape-protocol/cape-validator/pkg/capetypes"
	"github.com/cape-protocol/cape-validator/pkg/proofs"
)

// acceptAllVerifier is a fake BatchVerifier that always succeeds, standing
// in for the real ZK oracle in tests (per the Test tooling section of
// SPEC_FULL.md — no real proving-system material is exercised here).
type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyBatch(notes []proofs.Note) error { return nil }

// rejectAllVerifier always fails, for exercising CryptoError.
type rejectAllVerifier struct{}

func (rejectAllVerifier) VerifyBatch(notes []proofs.Note) error {
	return errors.New("boom")
}

func freshLedger() *Ledger {
	f := accumulator.New(3, 4, nil)
	keys := proofs.NewVerifyingKeySet(0)
	return NewLedger(f, keys, acceptAllVerifier{})
}

func transferTx(inputNull byte, outputs ...byte) Transaction {
	ns := []capetypes.Nullifier{{inputNull}}
	ocs := make([]capetypes.RecordCommitment, len(outputs))
	for i, o := range outputs {
		ocs[i] = capetypes.RecordCommitment{o}
	}
	return Transaction{
		Kind: TxCAP,
		Note: TransactionNote{
			Variant:           NoteTransfer,
			InputNullifiers:   ns,
			OutputCommitments: ocs,
		},
	}
}

func TestSubmitBlockNativeTransfer(t *testing.T) {
	l := freshLedger()
	l.Keys.Xfr[proofs.Arity{Inputs: 1, Outputs: 2}] = nil

	tx := transferTx(0x01, 0x10, 0x11)
	tx.Note.MerkleRoot = l.Commitment.Root

	next, effects, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{tx})})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if next.Commitment.Count != 2 {
		t.Fatalf("leaf count = %d, want 2", next.Commitment.Count)
	}
	if !next.Nullifiers.Contains(capetypes.Nullifier{0x01}) {
		t.Fatalf("spent nullifier must now be present")
	}
	if len(effects) != 1 || effects[0].Kind != EffEmit || effects[0].Event.Kind != EventBlockCommitted {
		t.Fatalf("expected a single BlockCommitted effect, got %+v", effects)
	}
	if len(effects[0].Event.Txns) != 1 {
		t.Fatalf("expected one committed txn")
	}
}

func TestDoubleSpendInsideOneBlock(t *testing.T) {
	l := freshLedger()
	l.Keys.Xfr[proofs.Arity{Inputs: 1, Outputs: 2}] = nil

	tx1 := transferTx(0x01, 0x10, 0x11)
	tx1.Note.MerkleRoot = l.Commitment.Root
	tx2 := transferTx(0x01, 0x20, 0x21) // shares nullifier 0x01
	tx2.Note.MerkleRoot = l.Commitment.Root

	_, _, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{tx1, tx2})})
	if !errors.Is(err, ErrNullifierAlreadyExists) {
		t.Fatalf("err = %v, want ErrNullifierAlreadyExists", err)
	}
}

func TestDoubleSpendAcrossBlocksIsSilentlyFiltered(t *testing.T) {
	l := freshLedger()
	l.Keys.Xfr[proofs.Arity{Inputs: 1, Outputs: 2}] = nil

	tx := transferTx(0x01, 0x10, 0x11)
	tx.Note.MerkleRoot = l.Commitment.Root
	committed, _, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{tx})})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}

	replay := transferTx(0x01, 0x30, 0x31)
	replay.Note.MerkleRoot = committed.Commitment.Root
	next, effects, err := committed.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{replay})})
	if err != nil {
		t.Fatalf("replay submit: %v", err)
	}
	if next.Commitment.Count != committed.Commitment.Count {
		t.Fatalf("a silently filtered tx must not append any leaves")
	}
	if len(effects[0].Event.Txns) != 0 {
		t.Fatalf("filtered tx must not appear in BlockCommitted, got %+v", effects[0].Event.Txns)
	}
}

func TestRootTooOld(t *testing.T) {
	l := freshLedger()
	l.Keys.Xfr[proofs.Arity{Inputs: 1, Outputs: 2}] = nil
	originalRoot := l.Commitment.Root

	for i := 0; i < 41; i++ {
		tx := transferTx(byte(i), byte(100+i))
		tx.Note.OutputCommitments = []capetypes.RecordCommitment{{byte(100 + i)}}
		tx.Note.MerkleRoot = l.Commitment.Root
		l.Keys.Xfr[proofs.Arity{Inputs: 1, Outputs: 1}] = nil

		next, _, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{tx})})
		if err != nil {
			t.Fatalf("block %d: %v", i, err)
		}
		l = next
	}

	stale := transferTx(0xFF, 0xAA, 0xAB)
	stale.Note.MerkleRoot = originalRoot
	_, _, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{stale})})
	if !errors.Is(err, ErrBadMerkleRoot) {
		t.Fatalf("err = %v, want ErrBadMerkleRoot", err)
	}
}

func TestRegisterAndWrapThenCommit(t *testing.T) {
	l := freshLedger()
	erc20Code := capetypes.Erc20Code{0x01}
	var sponsor capetypes.EthereumAddr
	sponsor[0] = 0x02
	policy := capetypes.AssetPolicy{Blob: []byte("policy")}
	def := capetypes.AssetDefinition{Code: capetypes.ForeignAssetCode(erc20Code, sponsor, policy), Policy: policy}

	next, effects, err := l.SubmitOperations([]Operation{RegisterErc20Op(def, erc20Code, sponsor)})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if effects[0].Kind != EffCheckErc20Exists {
		t.Fatalf("expected CheckErc20Exists effect")
	}

	var aliceOwner [32]byte
	aliceOwner[0] = 0x05
	ro := capetypes.RecordOpening{Amount: capetypes.NewAmount(100), AssetDef: def, Owner: aliceOwner}

	next, effects, err = next.SubmitOperations([]Operation{WrapErc20Op(erc20Code, sponsor, ro)})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if next.Registry.Deposited(erc20Code).Cmp(capetypes.NewAmount(100)) != 0 {
		t.Fatalf("deposited = %s, want 100", next.Registry.Deposited(erc20Code))
	}
	if next.Registry.PendingWraps() != 1 {
		t.Fatalf("pending wraps = %d, want 1", next.Registry.PendingWraps())
	}
	foundDeposited := false
	for _, e := range effects {
		if e.Kind == EffEmit && e.Event.Kind == EventErc20Deposited {
			foundDeposited = true
		}
	}
	if !foundDeposited {
		t.Fatalf("expected an Erc20Deposited event")
	}

	committed, _, err := next.SubmitOperations([]Operation{SubmitBlockOp(nil)})
	if err != nil {
		t.Fatalf("drain commit: %v", err)
	}
	if committed.Commitment.Count != 1 {
		t.Fatalf("leaf count after drain = %d, want 1", committed.Commitment.Count)
	}
	if committed.Registry.PendingWraps() != 0 {
		t.Fatalf("wrap queue must be drained")
	}
}

func TestBurnDebitsAndExcludesBurnedOutput(t *testing.T) {
	l := freshLedger()
	erc20Code := capetypes.Erc20Code{0x01}
	var sponsor capetypes.EthereumAddr
	sponsor[0] = 0x02
	policy := capetypes.AssetPolicy{Blob: []byte("policy")}
	def := capetypes.AssetDefinition{Code: capetypes.ForeignAssetCode(erc20Code, sponsor, policy), Policy: policy}

	l, _, err := l.SubmitOperations([]Operation{RegisterErc20Op(def, erc20Code, sponsor)})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	var sinkOwner [32]byte
	sinkOwner[0] = 0x09
	opening := capetypes.RecordOpening{Amount: capetypes.NewAmount(100), AssetDef: def, Owner: sinkOwner}
	l, _, err = l.SubmitOperations([]Operation{WrapErc20Op(erc20Code, sponsor, opening)})
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	l, _, err = l.SubmitOperations([]Operation{SubmitBlockOp(nil)})
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	l.Keys.Xfr[proofs.Arity{Inputs: 1, Outputs: 2}] = nil

	var dst capetypes.EthereumAddr
	dst[0] = 0x03
	burnTx := Transaction{
		Kind: TxBurn,
		Note: TransactionNote{
			Variant:           NoteTransfer,
			InputNullifiers:   []capetypes.Nullifier{{0xEE}},
			OutputCommitments: []capetypes.RecordCommitment{{0x01}, opening.Commitment()},
			MerkleRoot:        l.Commitment.Root,
			AuxProofBoundData: burn.Encode(dst),
		},
		Opening: opening,
	}

	next, effects, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{burnTx})})
	if err != nil {
		t.Fatalf("submit burn: %v", err)
	}
	if !next.Registry.Deposited(erc20Code).IsZero() {
		t.Fatalf("deposited = %s, want 0 after burn", next.Registry.Deposited(erc20Code))
	}
	if next.Commitment.Count != l.Commitment.Count+1 {
		t.Fatalf("only the fee-change output should be appended, count = %d", next.Commitment.Count)
	}

	var sawSend bool
	for _, e := range effects {
		if e.Kind == EffSendErc20 {
			sawSend = true
			if e.Dst != dst || e.Amount.Cmp(capetypes.NewAmount(100)) != 0 {
				t.Fatalf("unexpected SendErc20 effect: %+v", e)
			}
		}
	}
	if !sawSend {
		t.Fatalf("expected a SendErc20 effect")
	}
}

func TestBurnRejectsNonBurnAuxOnBurnTx(t *testing.T) {
	l := freshLedger()
	l.Keys.Xfr[proofs.Arity{Inputs: 1, Outputs: 2}] = nil

	erc20Code := capetypes.Erc20Code{0x01}
	var sponsor capetypes.EthereumAddr
	def := capetypes.AssetDefinition{Code: capetypes.ForeignAssetCode(erc20Code, sponsor, capetypes.AssetPolicy{})}
	if err := l.Registry.Register(def, erc20Code, sponsor); err != nil {
		t.Fatalf("register: %v", err)
	}

	burnTx := Transaction{
		Kind: TxBurn,
		Note: TransactionNote{
			InputNullifiers:   []capetypes.Nullifier{{0x01}},
			OutputCommitments: []capetypes.RecordCommitment{{0x01}, {0x02}},
			MerkleRoot:        l.Commitment.Root,
			AuxProofBoundData: nil, // not a valid burn tag
		},
		Opening: capetypes.RecordOpening{AssetDef: def},
	}
	// Make the opening commitment match output[1] and register its asset so we
	// reach the burn-tag check.
	burnTx.Note.OutputCommitments[1] = burnTx.Opening.Commitment()

	_, _, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{burnTx})})
	if !errors.Is(err, ErrIncorrectBurnField) {
		t.Fatalf("err = %v, want ErrIncorrectBurnField", err)
	}
}

func TestTransferCarryingBurnTagRejected(t *testing.T) {
	l := freshLedger()
	l.Keys.Xfr[proofs.Arity{Inputs: 1, Outputs: 2}] = nil

	var dst capetypes.EthereumAddr
	tx := transferTx(0x01, 0x10, 0x11)
	tx.Note.MerkleRoot = l.Commitment.Root
	tx.Note.AuxProofBoundData = burn.Encode(dst) // a Transfer note must not carry a burn tag

	_, _, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{tx})})
	if !errors.Is(err, ErrIncorrectBurnField) {
		t.Fatalf("err = %v, want ErrIncorrectBurnField", err)
	}
}

func TestUnsupportedArityRejected(t *testing.T) {
	l := freshLedger() // no keys registered for any arity
	tx := transferTx(0x01, 0x10, 0x11)
	tx.Note.MerkleRoot = l.Commitment.Root

	_, _, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{tx})})
	if !errors.Is(err, ErrUnsupportedTransferSize) {
		t.Fatalf("err = %v, want ErrUnsupportedTransferSize", err)
	}
}

func TestCryptoErrorOnFailedBatchVerify(t *testing.T) {
	f := accumulator.New(3, 4, nil)
	keys := proofs.NewVerifyingKeySet(0)
	keys.Xfr[proofs.Arity{Inputs: 1, Outputs: 2}] = nil
	l := NewLedger(f, keys, rejectAllVerifier{})

	tx := transferTx(0x01, 0x10, 0x11)
	tx.Note.MerkleRoot = l.Commitment.Root

	_, _, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{tx})})
	if !errors.Is(err, ErrCryptoError) {
		t.Fatalf("err = %v, want ErrCryptoError", err)
	}
}

func TestAllOrNothingStateUnchangedOnError(t *testing.T) {
	l := freshLedger()
	before := l.Commitment

	tx := transferTx(0x01, 0x10, 0x11)
	tx.Note.MerkleRoot = l.Commitment.Root
	// No verifying key registered for this arity -> UnsupportedTransferSize.
	_, _, err := l.SubmitOperations([]Operation{SubmitBlockOp([]Transaction{tx})})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if l.Commitment != before {
		t.Fatalf("the original ledger must be unchanged after a failed call")
	}
	if l.Nullifiers.Contains(capetypes.Nullifier{0x01}) {
		t.Fatalf("the original ledger's nullifier set must be unchanged after a failed call")
	}
}
