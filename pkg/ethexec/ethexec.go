// Copyright 2025 Certen Protocol
//
// Ethereum effect executor
// Drives the CapeEthEffect list SubmitOperations returns against a real
// CAPE validator contract deployment: checking ERC-20 registrations,
// letting wrap deposits settle, paying out burns, and logging Emit events.

package ethexec

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cape-protocol/cape-validator/pkg/ethereum"
	"github.com/cape-protocol/cape-validator/pkg/validator"
)

// ContractABI is the subset of the CAPE validator contract's ABI this
// executor depends on: a view method confirming an ERC-20 binding was
// recorded on-chain, and the withdrawal call a burn's SendErc20 effect
// triggers. Every call the executor makes is packed against this fixed
// ABI; Config carries no ABI of its own.
const ContractABI = `[
	{"type":"function","name":"erc20Exists","stateMutability":"view",
	 "inputs":[{"name":"erc20Code","type":"address"}],
	 "outputs":[{"name":"exists","type":"bool"}]},
	{"type":"function","name":"sendErc20","stateMutability":"nonpayable",
	 "inputs":[
	   {"name":"erc20Code","type":"address"},
	   {"name":"to","type":"address"},
	   {"name":"amount","type":"uint256"}
	 ],"outputs":[]}
]`

// ErrErc20NotFound is returned when a CheckErc20Exists effect finds no
// matching binding recorded on the deployed contract.
var ErrErc20NotFound = errors.New("ethexec: erc20 binding not found on contract")

// Config is the fixed, per-deployment configuration an Executor needs.
type Config struct {
	ContractAddr  common.Address
	PrivateKeyHex string
	GasLimit      uint64
}

// ethClient is the slice of *ethereum.Client's surface the executor needs,
// narrowed to an interface so tests can substitute a fake RPC backend.
type ethClient interface {
	CallContract(ctx context.Context, contractAddr common.Address, abiString string, methodName string, params ...interface{}) ([]interface{}, error)
	SendContractTransaction(ctx context.Context, contractAddr common.Address, abiString string, privateKeyHex string, methodName string, gasLimit uint64, params ...interface{}) (*ethereum.ContractCallResult, error)
}

// Executor applies a committed block's CapeEthEffect list against a live
// Ethereum deployment of the CAPE validator contract.
type Executor struct {
	client ethClient
	cfg    Config
	logger *log.Logger
}

// NewExecutor builds an Executor. A nil logger defaults to one prefixed
// "[EthExec] ", matching the rest of the tree's per-component loggers.
func NewExecutor(client ethClient, cfg Config, logger *log.Logger) *Executor {
	if logger == nil {
		logger = log.New(log.Writer(), "[EthExec] ", log.LstdFlags)
	}
	return &Executor{client: client, cfg: cfg, logger: logger}
}

// Execute applies effects in order, stopping at the first error. Effects
// already applied before a failure are not rolled back — the caller decides
// whether to retry the remaining effects or treat the block as stuck,
// exactly as a real chain submission would (spec.md §6 "effects are a
// to-do list for the caller, not a transaction the ledger itself commits").
func (e *Executor) Execute(ctx context.Context, effects []validator.EthEffect) error {
	for i, eff := range effects {
		if err := e.apply(ctx, eff); err != nil {
			return fmt.Errorf("ethexec: effect %d (%v): %w", i, eff.Kind, err)
		}
	}
	return nil
}

func (e *Executor) apply(ctx context.Context, eff validator.EthEffect) error {
	switch eff.Kind {
	case validator.EffCheckErc20Exists:
		return e.checkErc20Exists(ctx, eff)
	case validator.EffReceiveErc20:
		// The ERC-20 transfer-in already happened as part of the caller's
		// wrap transaction before SubmitOperations was even called; there is
		// nothing further for the executor to do on-chain.
		e.logger.Printf("received erc20 code=%s amount=%s src=%s", eff.Erc20Code, eff.Amount, eff.Src)
		return nil
	case validator.EffSendErc20:
		return e.sendErc20(ctx, eff)
	case validator.EffEmit:
		e.logger.Printf("event kind=%d", eff.Event.Kind)
		return nil
	default:
		return fmt.Errorf("ethexec: unknown effect kind %d", eff.Kind)
	}
}

func (e *Executor) checkErc20Exists(ctx context.Context, eff validator.EthEffect) error {
	outputs, err := e.client.CallContract(ctx, e.cfg.ContractAddr, ContractABI, "erc20Exists", eff.Erc20Code.Common())
	if err != nil {
		return err
	}
	exists, ok := outputs[0].(bool)
	if !ok || !exists {
		return fmt.Errorf("%w: code %s", ErrErc20NotFound, eff.Erc20Code)
	}
	return nil
}

func (e *Executor) sendErc20(ctx context.Context, eff validator.EthEffect) error {
	amount := new(big.Int).SetBytes(trimLeadingZeros(eff.Amount.Bytes32()))
	result, err := e.client.SendContractTransaction(
		ctx, e.cfg.ContractAddr, ContractABI, e.cfg.PrivateKeyHex, "sendErc20", e.cfg.GasLimit,
		eff.Erc20Code.Common(), eff.Dst.Common(), amount,
	)
	if err != nil {
		return err
	}
	e.logger.Printf("sendErc20 tx=%s dst=%s amount=%s", result.TransactionHash, eff.Dst, eff.Amount)
	return nil
}

func trimLeadingZeros(b [32]byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}
	return b[i:]
}
