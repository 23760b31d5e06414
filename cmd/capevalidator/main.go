// Copyright 2025 Certen Protocol

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/ethereum/go-ethereum/common"

	"github.com/cape-protocol/cape-validator/pkg/accumulator"
	"github.com/cape-protocol/cape-validator/pkg/config"
	"github.com/cape-protocol/cape-validator/pkg/ethereum"
	"github.com/cape-protocol/cape-validator/pkg/ethexec"
	"github.com/cape-protocol/cape-validator/pkg/metrics"
	"github.com/cape-protocol/cape-validator/pkg/proofs"
	"github.com/cape-protocol/cape-validator/pkg/server"
	"github.com/cape-protocol/cape-validator/pkg/validator"
)

// merkleArity and merkleHeight are the accumulator's construction
// parameters: ternary tree, height 24 (spec.md §6 "Persisted/encoded
// constants").
const (
	merkleArity  = 3
	merkleHeight = 24
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("configuration warning: %v", err)
		if err := cfg.ValidateForDevelopment(); err != nil {
			log.Fatalf("configuration invalid even for development: %v", err)
		}
	}

	logger := log.New(log.Writer(), "["+cfg.ValidatorID+"] ", log.LstdFlags)

	keys := proofs.NewVerifyingKeySet(ecc.BN254)
	if cfg.KeyManifestPath != "" {
		manifest, err := config.LoadKeyManifest(cfg.KeyManifestPath)
		if err != nil {
			log.Fatalf("failed to load key manifest: %v", err)
		}
		logger.Printf("loaded key manifest: mint=%v freeze=%d xfr=%d arities", manifest.Mint, len(manifest.Freeze), len(manifest.Xfr))
		// Verifying key material itself is provisioned out of band (a
		// trusted-setup ceremony, spec.md §1); the manifest only records
		// which arities a deployment expects to serve. Until that material
		// is wired in, registered arities carry a nil groth16.VerifyingKey,
		// which GrothBatchVerifier treats as missing proof material and
		// rejects rather than silently accepting.
		for _, a := range manifest.Freeze {
			keys.RegisterFreezeArity(a.Inputs, a.Outputs, nil)
		}
		for _, a := range manifest.Xfr {
			keys.RegisterXfrArity(a.Inputs, a.Outputs, nil)
		}
	}

	frontier := accumulator.New(merkleArity, merkleHeight, nil)
	ledger := validator.NewLedger(frontier, keys, proofs.GrothBatchVerifier{})

	var executor *ethexec.Executor
	if cfg.EthPrivateKey != "" && cfg.ContractAddr != "" {
		ethClient, err := ethereum.NewClient(cfg.EthereumURL, cfg.EthChainID)
		if err != nil {
			log.Fatalf("failed to dial ethereum node: %v", err)
		}
		execCfg := ethexec.Config{
			ContractAddr:  common.HexToAddress(cfg.ContractAddr),
			PrivateKeyHex: cfg.EthPrivateKey,
			GasLimit:      cfg.GasLimit,
		}
		executor = ethexec.NewExecutor(ethClient, execCfg, log.New(log.Writer(), "["+cfg.ValidatorID+"-ethexec] ", log.LstdFlags))
	} else {
		logger.Printf("no Ethereum signing key/contract configured; committed blocks' on-chain effects will not be dispatched")
	}

	reg := metrics.NewRegistry()

	handlers := server.NewHandlers(ledger, executor, reg, logger)
	mux := server.NewMux(handlers)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", reg.Handler())

	apiServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Printf("CAPE validator API listening on %s", cfg.ListenAddr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()
	go func() {
		logger.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("API server shutdown error: %v", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown error: %v", err)
	}

	logger.Printf("stopped")
}
