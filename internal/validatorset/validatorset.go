// Package validatorset tracks staked validators and selects the
// proof-of-stake leader for each block height.
package validatorset

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/gxchain/gxcd/config"
	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

var (
	ErrStakeBelowMinimum    = errors.New("stake amount below minimum")
	ErrStakingPeriodInvalid = errors.New("staking period outside allowed range")
	ErrNoActiveValidators   = errors.New("no active validators")
)

// StakeRecord mirrors one validator's locked stake.
type StakeRecord struct {
	Address        types.Address
	PubKey         []byte
	Amount         uint64
	StakedAtHeight uint32
	DurationDays   uint16
	Active         bool
}

// IsStakingPeriodValid reports whether the record's duration falls within
// the protocol-wide staking window.
func (r *StakeRecord) IsStakingPeriodValid() bool {
	return r.DurationDays >= config.MinStakingDays && r.DurationDays <= config.MaxStakingDays
}

// HasMinimumStake reports whether the record meets the minimum stake amount.
func (r *StakeRecord) HasMinimumStake() bool {
	return r.Amount >= config.MinStake
}

// Eligible reports whether the record currently counts toward validator-set
// leader selection: active, funded above the minimum, and within the
// allowed staking-period bounds.
func (r *StakeRecord) Eligible() bool {
	return r.Active && r.HasMinimumStake() && r.IsStakingPeriodValid()
}

// Weight returns the record's weighted stake: amount * (durationDays/365)^0.5.
func (r *StakeRecord) Weight() float64 {
	return float64(r.Amount) * math.Pow(float64(r.DurationDays)/365.0, config.StakeWeightBeta)
}

// Set tracks stake records keyed by address and selects PoS leaders.
type Set struct {
	mu      sync.RWMutex
	records map[types.Address]*StakeRecord
}

// NewSet creates an empty validator set.
func NewSet() *Set {
	return &Set{records: make(map[types.Address]*StakeRecord)}
}

// Stake records or updates a validator's stake. Returns an error if the
// amount or duration falls outside protocol bounds — callers (block-apply)
// must reject the underlying STAKE transaction in that case.
func (s *Set) Stake(rec StakeRecord) error {
	if !rec.HasMinimumStake() {
		return ErrStakeBelowMinimum
	}
	if !rec.IsStakingPeriodValid() {
		return ErrStakingPeriodInvalid
	}
	rec.Active = true

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rec
	s.records[rec.Address] = &cp
	return nil
}

// Unstake clears (or reduces) the given address's stake record. partial, if
// nonzero and less than the current amount, reduces the record instead of
// removing it; zero or >= current amount removes it entirely.
func (s *Set) Unstake(addr types.Address, partial uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[addr]
	if !ok {
		return
	}
	if partial == 0 || partial >= rec.Amount {
		delete(s.records, addr)
		return
	}
	rec.Amount -= partial
}

// Get returns a copy of the stake record for addr, or nil if absent.
func (s *Set) Get(addr types.Address) *StakeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[addr]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Active returns all currently eligible validator records, sorted by
// address for deterministic iteration.
func (s *Set) Active() []*StakeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*StakeRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Eligible() {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessAddress(out[i].Address, out[j].Address)
	})
	return out
}

func lessAddress(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// SelectLeader picks the validator for block height h, given the previous
// block's hash as the deterministic PRNG seed (spec: weighted random draw
// over [0, ΣW_i) from a PRNG seeded by (chainTip.hash, h), ties broken by
// lexical address order — which Active's sort already guarantees for the
// iteration order used below).
func (s *Set) SelectLeader(tipHash types.Hash, height uint32) (*StakeRecord, error) {
	active := s.Active()
	if len(active) == 0 {
		return nil, ErrNoActiveValidators
	}

	var total float64
	weights := make([]float64, len(active))
	for i, rec := range active {
		w := rec.Weight()
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return nil, ErrNoActiveValidators
	}

	r := deterministicDraw(tipHash, height, total)

	var running float64
	for i, rec := range active {
		running += weights[i]
		if r < running {
			return rec, nil
		}
	}
	// Floating-point rounding can leave r fractionally beyond the final
	// prefix sum; the last validator in address order wins the tie.
	return active[len(active)-1], nil
}

// deterministicDraw derives a value in [0, total) from (tipHash, height)
// using the chain's standard hash function as the PRNG.
func deterministicDraw(tipHash types.Hash, height uint32, total float64) float64 {
	var buf [types.HashSize + 4]byte
	copy(buf[:types.HashSize], tipHash[:])
	binary.LittleEndian.PutUint32(buf[types.HashSize:], height)
	seed := crypto.Hash(buf[:])

	// Use the first 8 bytes as a uniform fraction of [0, 1).
	n := binary.LittleEndian.Uint64(seed[:8])
	frac := float64(n) / float64(math.MaxUint64)
	return frac * total
}
