// Package reversal implements the reversal transaction executor: the last
// stage of the taint/PoF pipeline that actually moves recovered funds from a
// tainted holder back to the original victim, funded out of the reversal fee
// pool rather than the victim's or holder's balance.
package reversal

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gxchain/gxcd/internal/feepool"
	"github.com/gxchain/gxcd/internal/pof"
	"github.com/gxchain/gxcd/pkg/tx"
	"github.com/gxchain/gxcd/pkg/types"
)

var (
	ErrAlreadyReversed         = errors.New("reversal: stolen transaction already reversed")
	ErrInsufficientHolderFunds = errors.New("reversal: current holder lacks enough spendable funds")
	ErrFeePoolInsufficient     = errors.New("reversal: fee pool cannot cover execution fee")
)

// Holding is one spendable UTXO belonging to the current holder, as seen by
// the reversal executor.
type Holding struct {
	Outpoint types.Outpoint
	Amount   uint64
}

// HoldingsProvider supplies an address's spendable UTXOs. Implemented by an
// adapter over the ledger's UTXO set; kept as a narrow interface here so this
// package never depends on internal/utxo directly.
type HoldingsProvider interface {
	HoldingsOf(addr types.Address) ([]Holding, error)
}

// Applier commits a built reversal transaction to the ledger, spending the
// given outpoints. Implemented by an adapter over the chain's block/mempool
// machinery.
type Applier interface {
	ApplyReversal(t *tx.Transaction, spent []types.Outpoint) error
}

// Executor runs the reversal pipeline: validate the proof, charge the
// execution fee against the pool, move funds from the holder to the
// original victim, and route a cut of the recovered amount back into the
// pool.
type Executor struct {
	Validator    *pof.Validator
	Pool         *feepool.State
	Holdings     HoldingsProvider
	Apply        Applier
	ExecFeeSplit float64

	mu       sync.Mutex
	reversed map[types.Hash]types.Hash // stolenTxHash -> reversalTxHash
}

// NewExecutor constructs an Executor. ExecFeeSplit defaults to
// feepool.DefaultExecFeeSplit when zero.
func NewExecutor(validator *pof.Validator, pool *feepool.State, holdings HoldingsProvider, apply Applier, execFeeSplit float64) *Executor {
	if execFeeSplit == 0 {
		execFeeSplit = feepool.DefaultExecFeeSplit
	}
	return &Executor{
		Validator:    validator,
		Pool:         pool,
		Holdings:     holdings,
		Apply:        apply,
		ExecFeeSplit: execFeeSplit,
		reversed:     make(map[types.Hash]types.Hash),
	}
}

// IsReversed reports whether stolenTx already has a completed reversal,
// satisfying pof.AlreadyReversedChecker.
func (e *Executor) IsReversed(stolenTx types.Hash) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.reversed[stolenTx]
	return ok
}

// ReversalOf returns the reversal transaction hash for a stolen transaction,
// if one has run.
func (e *Executor) ReversalOf(stolenTx types.Hash) (types.Hash, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.reversed[stolenTx]
	return h, ok
}

// CalculateFee returns the execution fee a reversal of the given recoverable
// amount must pay. The fee is flat regardless of amount (spec §4.11).
func (e *Executor) CalculateFee(amount uint64) uint64 {
	return feepool.StandardReversalFee
}

// selectHoldings greedily picks holdings covering at least target, returning
// the selected set and their total. Order of holdings is whatever the
// provider returned; no attempt is made to minimize change.
func selectHoldings(holdings []Holding, target uint64) ([]Holding, uint64, bool) {
	var selected []Holding
	var total uint64
	for _, h := range holdings {
		if total >= target {
			break
		}
		selected = append(selected, h)
		total += h.Amount
	}
	if total < target {
		return nil, 0, false
	}
	return selected, total, true
}

// Execute runs the reversal pipeline for a validated proof, paying
// originOwner out of proof.CurrentHolder's spendable funds and charging the
// pool's execution fee. It is idempotent: a second call for the same
// proof.StolenTxHash fails with ErrAlreadyReversed without touching the pool
// or the ledger.
func (e *Executor) Execute(proof *pof.ProofOfFeasibility, originOwner types.Address) (*tx.Transaction, error) {
	e.mu.Lock()
	if _, already := e.reversed[proof.StolenTxHash]; already {
		e.mu.Unlock()
		return nil, ErrAlreadyReversed
	}
	e.mu.Unlock()

	if err := e.Validator.ValidateProof(proof); err != nil {
		return nil, fmt.Errorf("reversal: proof validation failed: %w", err)
	}

	fee := e.CalculateFee(proof.Recoverable)
	if !e.Pool.CanAfford(fee) {
		return nil, ErrFeePoolInsufficient
	}

	holdings, err := e.Holdings.HoldingsOf(proof.CurrentHolder)
	if err != nil {
		return nil, fmt.Errorf("reversal: loading holder funds: %w", err)
	}
	selected, total, ok := selectHoldings(holdings, proof.Recoverable)
	if !ok {
		return nil, ErrInsufficientHolderFunds
	}

	if err := e.Pool.DeductFee(proof.StolenTxHash, fee, proof.CurrentHolder, proof.AdminID); err != nil {
		return nil, fmt.Errorf("reversal: charging execution fee: %w", err)
	}

	builder := tx.NewBuilder().Kind(tx.KindReversal)
	spent := make([]types.Outpoint, 0, len(selected))
	for _, h := range selected {
		builder.AddInput(h.Outpoint, h.Amount)
		spent = append(spent, h.Outpoint)
	}
	builder.AddOutput(originOwner, proof.Recoverable, types.Script{Type: types.ScriptTypeP2PKH, Data: originOwner.Bytes()})
	if change := total - proof.Recoverable; change > 0 {
		builder.AddOutput(proof.CurrentHolder, change, types.Script{Type: types.ScriptTypeP2PKH, Data: proof.CurrentHolder.Bytes()})
	}
	builder.SetProofHash(proof.ProofHash)
	reversalTx := builder.Build()

	if err := e.Pool.DeductFee(reversalTx.Hash(), fee, originOwner, proof.AdminID); err != nil {
		return nil, fmt.Errorf("reversal: charging execution fee: %w", err)
	}

	if err := e.Apply.ApplyReversal(reversalTx, spent); err != nil {
		e.Pool.CreditBack(fee)
		return nil, fmt.Errorf("reversal: applying to ledger: %w", err)
	}

	e.mu.Lock()
	e.reversed[proof.StolenTxHash] = reversalTx.Hash()
	e.mu.Unlock()

	e.Pool.DepositReversalExecFee(reversalTx.Hash(), proof.Recoverable, e.ExecFeeSplit)

	return reversalTx, nil
}
