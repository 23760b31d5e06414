// Copyright 2025 Certen Protocol
//
// CAPE API Handlers
// POST /v1/blocks, POST /v1/erc20/register, POST /v1/erc20/wrap,
// GET /v1/ledger — the HTTP surface over validator.Ledger.SubmitOperations.

package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/cape-protocol/cape-validator/pkg/capetypes"
	"github.com/cape-protocol/cape-validator/pkg/ethexec"
	"github.com/cape-protocol/cape-validator/pkg/metrics"
	"github.com/cape-protocol/cape-validator/pkg/validator"
)

// Handlers serves the CAPE validator's HTTP API. The ledger is the single
// piece of mutable state every endpoint touches; mu serialises
// SubmitOperations calls so the clone-then-swap state machine never races
// (spec.md §5 "single-writer" note).
type Handlers struct {
	mu      sync.Mutex
	ledger  *validator.Ledger
	exec    *ethexec.Executor
	metrics *metrics.Registry
	logger  *log.Logger
}

// NewHandlers builds the API handlers over an initial ledger state. exec
// may be nil, in which case a committed block's Ethereum-bound effects are
// reported in the response but never dispatched — useful for tests and for
// a deployment that wants to execute effects out-of-process. reg may be
// nil, in which case operations simply aren't observed.
func NewHandlers(ledger *validator.Ledger, exec *ethexec.Executor, reg *metrics.Registry, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[CapeAPI] ", log.LstdFlags)
	}
	return &Handlers{ledger: ledger, exec: exec, metrics: reg, logger: logger}
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

// statusForError maps a validator.Error's Kind to an HTTP status: malformed
// or disallowed input is a 400, everything else (including any non-taxonomy
// error, which should never happen) is a 500.
func statusForError(err error) int {
	var verr *validator.Error
	if errors.As(err, &verr) {
		switch verr.Kind {
		case validator.KindCryptoError:
			return http.StatusInternalServerError
		default:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// submit runs ops against the ledger under the single-writer lock, swaps in
// the resulting state on success, and dispatches any effects to the
// configured Ethereum executor before replying.
func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, ops []validator.Operation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, effects, err := h.ledger.SubmitOperations(ops)
	if err != nil {
		requestID := uuid.New().String()
		h.logger.Printf("request=%s SubmitOperations failed: %v", requestID, err)
		if h.metrics != nil {
			h.metrics.ObserveFailure(err)
		}
		writeJSONError(w, err.Error(), statusForError(err))
		return
	}
	h.ledger = next

	if h.metrics != nil {
		var txnCount int
		for _, eff := range effects {
			if eff.Kind == validator.EffEmit && eff.Event.Kind == validator.EventBlockCommitted {
				txnCount += len(eff.Event.Txns)
			}
		}
		h.metrics.ObserveSuccess(txnCount)
	}

	if h.exec != nil && len(effects) > 0 {
		if err := h.exec.Execute(r.Context(), effects); err != nil {
			h.logger.Printf("ethexec: %v", err)
		}
	}

	root := h.ledger.Commitment.Root
	writeJSON(w, OperationResponse{
		BlockHeight: h.ledger.BlockHeight,
		Root:        hex.EncodeToString(root[:]),
		Count:       h.ledger.Commitment.Count,
		Effects:     encodeEffects(effects),
	})
}

// HandleSubmitBlock handles POST /v1/blocks.
func (h *Handlers) HandleSubmitBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SubmitBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	height := h.ledger.BlockHeight + 1
	curve := h.ledger.Keys.Curve
	h.mu.Unlock()

	txns := make([]validator.Transaction, len(req.Transactions))
	for i, wt := range req.Transactions {
		tx, err := wt.decode(curve, height)
		if err != nil {
			writeJSONError(w, fmt.Sprintf("transactions[%d]: %v", i, err), http.StatusBadRequest)
			return
		}
		txns[i] = tx
	}

	h.submit(w, r, []validator.Operation{validator.SubmitBlockOp(txns)})
}

// HandleRegisterErc20 handles POST /v1/erc20/register.
func (h *Handlers) HandleRegisterErc20(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RegisterErc20Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	assetCode, err := decodeHex32(req.AssetCode)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("asset_code: %v", err), http.StatusBadRequest)
		return
	}
	var policyBlob []byte
	if req.Policy != "" {
		policyBlob, err = hex.DecodeString(req.Policy)
		if err != nil {
			writeJSONError(w, fmt.Sprintf("policy: %v", err), http.StatusBadRequest)
			return
		}
	}
	erc20Code, err := decodeHex20(req.Erc20Code)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("erc20_code: %v", err), http.StatusBadRequest)
		return
	}
	sponsor, err := decodeHex20(req.Sponsor)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("sponsor: %v", err), http.StatusBadRequest)
		return
	}

	def := capetypes.AssetDefinition{
		Code:   capetypes.AssetCode(assetCode),
		Policy: capetypes.AssetPolicy{Blob: policyBlob},
	}

	h.submit(w, r, []validator.Operation{
		validator.RegisterErc20Op(def, erc20Code, sponsor),
	})
}

// HandleWrapErc20 handles POST /v1/erc20/wrap.
func (h *Handlers) HandleWrapErc20(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req WrapErc20Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	erc20Code, err := decodeHex20(req.Erc20Code)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("erc20_code: %v", err), http.StatusBadRequest)
		return
	}
	src, err := decodeHex20(req.SrcAddr)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("src_addr: %v", err), http.StatusBadRequest)
		return
	}

	opening, err := req.Opening.decode()
	if err != nil {
		writeJSONError(w, fmt.Sprintf("opening: %v", err), http.StatusBadRequest)
		return
	}

	h.submit(w, r, []validator.Operation{
		validator.WrapErc20Op(erc20Code, src, opening),
	})
}

// HandleLedger handles GET /v1/ledger: a read-only snapshot of the ledger's
// current position.
func (h *Handlers) HandleLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	root := h.ledger.Commitment.Root
	view := LedgerView{
		BlockHeight:  h.ledger.BlockHeight,
		Root:         hex.EncodeToString(root[:]),
		Count:        h.ledger.Commitment.Count,
		PendingWraps: h.ledger.Registry.PendingWraps(),
	}
	h.mu.Unlock()

	writeJSON(w, view)
}
