package server

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cape-protocol/cape-validator/pkg/accumulator"
	"github.com/cape-protocol/cape-validator/pkg/capetypes"
	"github.com/cape-protocol/cape-validator/pkg/proofs"
	"github.com/cape-protocol/cape-validator/pkg/validator"
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyBatch(notes []proofs.Note) error { return nil }

func freshHandlers() *Handlers {
	f := accumulator.New(3, 4, nil)
	keys := proofs.NewVerifyingKeySet(0)
	ledger := validator.NewLedger(f, keys, acceptAllVerifier{})
	return NewHandlers(ledger, nil, nil, nil)
}

func doRequest(h *Handlers, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	NewMux(h).ServeHTTP(rec, req)
	return rec
}

func TestHandleLedgerReturnsEmptySnapshot(t *testing.T) {
	h := freshHandlers()
	rec := doRequest(h, http.MethodGet, "/v1/ledger", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var view LedgerView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.BlockHeight != 0 || view.Count != 0 || view.PendingWraps != 0 {
		t.Fatalf("unexpected snapshot: %+v", view)
	}
}

func TestHandleLedgerRejectsWrongMethod(t *testing.T) {
	h := freshHandlers()
	rec := doRequest(h, http.MethodPost, "/v1/ledger", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandleSubmitBlockRejectsMalformedTransaction(t *testing.T) {
	h := freshHandlers()
	rec := doRequest(h, http.MethodPost, "/v1/blocks", SubmitBlockRequest{
		Transactions: []wireTransaction{
			{Kind: "cap", Note: wireTransactionNote{Variant: "Transfer", MerkleRoot: "not-hex"}},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleRegisterThenWrapErc20(t *testing.T) {
	h := freshHandlers()

	var sponsor capetypes.EthereumAddr
	sponsor[0] = 0xaa
	policy := capetypes.AssetPolicy{}
	erc20Code := capetypes.Erc20Code{0x01}
	assetCode := capetypes.ForeignAssetCode(erc20Code, sponsor, policy)

	registerRec := doRequest(h, http.MethodPost, "/v1/erc20/register", RegisterErc20Request{
		AssetCode: hex.EncodeToString(assetCode[:]),
		Erc20Code: hex.EncodeToString(erc20Code[:]),
		Sponsor:   hex.EncodeToString(sponsor[:]),
	})
	if registerRec.Code != http.StatusOK {
		t.Fatalf("register status = %d, want 200: %s", registerRec.Code, registerRec.Body.String())
	}
	var registerResp OperationResponse
	if err := json.Unmarshal(registerRec.Body.Bytes(), &registerResp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if len(registerResp.Effects) != 1 || registerResp.Effects[0].Kind != "CheckErc20Exists" {
		t.Fatalf("unexpected register effects: %+v", registerResp.Effects)
	}

	var srcAddr capetypes.EthereumAddr
	srcAddr[0] = 0xbb
	wrapRec := doRequest(h, http.MethodPost, "/v1/erc20/wrap", WrapErc20Request{
		Erc20Code: hex.EncodeToString(erc20Code[:]),
		SrcAddr:   hex.EncodeToString(srcAddr[:]),
		Opening: wireRecordOpening{
			Amount:    "100",
			AssetCode: hex.EncodeToString(assetCode[:]),
			Owner:     hex.EncodeToString(make([]byte, 32)),
			Blinding:  hex.EncodeToString(make([]byte, 32)),
		},
	})
	if wrapRec.Code != http.StatusOK {
		t.Fatalf("wrap status = %d, want 200: %s", wrapRec.Code, wrapRec.Body.String())
	}
	var wrapResp OperationResponse
	if err := json.Unmarshal(wrapRec.Body.Bytes(), &wrapResp); err != nil {
		t.Fatalf("decode wrap response: %v", err)
	}
	if len(wrapResp.Effects) != 2 {
		t.Fatalf("expected ReceiveErc20+Emit effects, got %+v", wrapResp.Effects)
	}

	ledgerRec := doRequest(h, http.MethodGet, "/v1/ledger", nil)
	var view LedgerView
	json.Unmarshal(ledgerRec.Body.Bytes(), &view)
	if view.PendingWraps != 1 {
		t.Fatalf("pending_wraps = %d, want 1", view.PendingWraps)
	}
}

func TestHandleRegisterErc20RejectsBadSponsorCode(t *testing.T) {
	h := freshHandlers()
	rec := doRequest(h, http.MethodPost, "/v1/erc20/register", RegisterErc20Request{
		AssetCode: hex.EncodeToString(make([]byte, 32)),
		Erc20Code: hex.EncodeToString(make([]byte, 20)),
		Sponsor:   hex.EncodeToString(make([]byte, 20)),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for a mismatched asset code: %s", rec.Code, rec.Body.String())
	}
}
