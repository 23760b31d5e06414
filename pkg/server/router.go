// Copyright 2025 Certen Protocol
//
// Routes
// Wires Handlers into a plain http.ServeMux, the same routing style the
// teacher's composition root uses (mux.HandleFunc per endpoint, no router
// framework).

package server

import "net/http"

// NewMux builds the CAPE validator's HTTP API mux.
func NewMux(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/blocks", h.HandleSubmitBlock)
	mux.HandleFunc("/v1/erc20/register", h.HandleRegisterErc20)
	mux.HandleFunc("/v1/erc20/wrap", h.HandleWrapErc20)
	mux.HandleFunc("/v1/ledger", h.HandleLedger)
	return mux
}
