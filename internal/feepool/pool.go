// Package feepool implements the reversal fee pool: the self-funded
// balance that pays execution fees for reversal transactions, topped up
// from a split of ordinary transaction fees and from a cut of every
// reversal it funds.
package feepool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gxchain/gxcd/pkg/types"
)

// Default execution-fee split bounds (spec §4.11/§4.12): the pool keeps
// between 0.1% and 0.3% of every recovered amount, 0.2% by default.
const (
	MinExecFeeSplit     = 0.001
	MaxExecFeeSplit     = 0.003
	DefaultExecFeeSplit = 0.002

	// StandardReversalFee is the flat fee (in base units) a reversal pays,
	// drawn from the pool rather than the holder's balance.
	StandardReversalFee = 1000
)

var (
	ErrInsufficientBalance = errors.New("fee pool: insufficient balance")
	ErrBelowMinFee         = errors.New("fee pool: amount below minimum fee")
)

// FundingEntry records one deposit into the pool.
type FundingEntry struct {
	Source string     // "tx-fee-split", "reversal-exec-fee", "manual"
	Ref    types.Hash // originating transaction hash, zero for manual funding
	Amount uint64
	Note   string
}

// FeeEntry records one debit from the pool to pay a reversal's execution
// fee.
type FeeEntry struct {
	ReversalTxHash types.Hash
	Amount         uint64
	Victim         types.Address
	Admin          string
}

// State is the fee pool's persistent state.
type State struct {
	mu sync.Mutex

	Address        types.Address
	Balance        uint64
	TotalFunded    uint64
	TotalSpent     uint64
	TotalReversals uint64
	FundingLog     []FundingEntry
	FeeLog         []FeeEntry
	MinWarn        uint64
	MinFee         uint64
}

// New creates an empty fee pool state for the given pool address.
func New(addr types.Address, minWarn, minFee uint64) *State {
	return &State{Address: addr, MinWarn: minWarn, MinFee: minFee}
}

// DepositTxFeeSplit adds floor(feeAmount * s) to the pool, the self-funding
// split taken from an ordinary transaction's fee before the producer is
// paid (spec §4.6's self-funding split, §4.12's depositTxFeeSplit).
func (s *State) DepositTxFeeSplit(txHash types.Hash, feeAmount uint64, split float64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount := uint64(float64(feeAmount) * split)
	s.depositLocked(FundingEntry{Source: "tx-fee-split", Ref: txHash, Amount: amount})
	return amount
}

// DepositReversalExecFee adds floor(recovered * p) to the pool: the cut a
// completed reversal routes back to the pool it drew its execution fee
// from, clamped to [MinExecFeeSplit, MaxExecFeeSplit].
func (s *State) DepositReversalExecFee(reversalTxHash types.Hash, recovered uint64, p float64) uint64 {
	if p < MinExecFeeSplit {
		p = MinExecFeeSplit
	}
	if p > MaxExecFeeSplit {
		p = MaxExecFeeSplit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	amount := uint64(float64(recovered) * p)
	s.depositLocked(FundingEntry{Source: "reversal-exec-fee", Ref: reversalTxHash, Amount: amount})
	return amount
}

// RecordManualFunding adds a manually funded deposit (legacy top-up, e.g.
// an operator wiring in seed capital).
func (s *State) RecordManualFunding(amount uint64, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depositLocked(FundingEntry{Source: "manual", Amount: amount, Note: note})
}

func (s *State) depositLocked(e FundingEntry) {
	s.Balance += e.Amount
	s.TotalFunded += e.Amount
	s.FundingLog = append(s.FundingLog, e)
}

// DeductFee debits amount from the pool to pay a reversal's execution fee.
// Fails with ErrBelowMinFee if amount < MinFee, or ErrInsufficientBalance
// if the pool cannot cover it; the caller must treat either as a feasibility
// failure and abort the reversal (spec §4.11 step 1).
func (s *State) DeductFee(reversalTxHash types.Hash, amount uint64, victim types.Address, admin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount < s.MinFee {
		return fmt.Errorf("%w: %d < %d", ErrBelowMinFee, amount, s.MinFee)
	}
	if s.Balance < amount {
		return fmt.Errorf("%w: balance %d < fee %d", ErrInsufficientBalance, s.Balance, amount)
	}

	s.Balance -= amount
	s.TotalSpent += amount
	s.TotalReversals++
	s.FeeLog = append(s.FeeLog, FeeEntry{
		ReversalTxHash: reversalTxHash,
		Amount:         amount,
		Victim:         victim,
		Admin:          admin,
	})
	return nil
}

// CreditBack reverses a fee deduction that must be undone because a later
// step in the reversal pipeline failed after the fee was taken. It is not a
// new funding event: totals are adjusted back rather than logged as income.
func (s *State) CreditBack(amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Balance += amount
	s.TotalSpent -= amount
	if s.TotalReversals > 0 {
		s.TotalReversals--
	}
	if len(s.FeeLog) > 0 {
		s.FeeLog = s.FeeLog[:len(s.FeeLog)-1]
	}
}

// CanAfford reports whether the pool currently holds at least amount,
// without mutating state — used by the feasibility gate (spec §4.11 step
// 1) before committing to a reversal.
func (s *State) CanAfford(amount uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Balance >= amount
}

// IsBalanceLow reports whether the pool balance has fallen below MinWarn.
func (s *State) IsBalanceLow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Balance < s.MinWarn
}

// Snapshot returns a defensive copy of the pool's current totals (not the
// logs) for read-only reporting.
type Snapshot struct {
	Address        types.Address
	Balance        uint64
	TotalFunded    uint64
	TotalSpent     uint64
	TotalReversals uint64
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Address:        s.Address,
		Balance:        s.Balance,
		TotalFunded:    s.TotalFunded,
		TotalSpent:     s.TotalSpent,
		TotalReversals: s.TotalReversals,
	}
}
