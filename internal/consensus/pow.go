package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/gxchain/gxcd/pkg/block"
	"github.com/gxchain/gxcd/pkg/crypto"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrZeroDifficulty   = errors.New("difficulty must be >= 1")
	ErrBadDifficulty    = errors.New("block difficulty does not match expected")
)

// Difficulty bounds and retarget parameters (spec §9): retarget every
// RetargetInterval blocks, damping factor DampingFactor, clamped to
// [MinDifficulty, MaxDifficulty]. TestingRetargetInterval replaces
// RetargetInterval when the engine is constructed in testing mode (a
// finer-grained retarget for fast local chains).
const (
	RetargetInterval        = 2016
	TestingRetargetInterval = 10
	DampingFactor           = 0.25
	MinDifficulty           = 1.0
	MaxDifficulty           = 100.0
	TargetBlockTimeSeconds  = 600
)

// PoWSHA256 implements the SHA256d proof-of-work engine. Difficulty is
// stored in the block header and enforced per block; the engine holds no
// mutable state beyond its retarget configuration.
type PoWSHA256 struct {
	InitialDifficulty float64
	TestingMode       bool

	// Threads controls the number of parallel mining goroutines used by Seal.
	Threads int

	// GetTimestamp returns the timestamp of the block at the given height,
	// used by Prepare/VerifyDifficulty to compute retargets. Injected by the
	// chain package, which owns block history; nil disables retargeting and
	// Prepare always uses InitialDifficulty.
	GetTimestamp func(height uint32) (uint64, error)

	// PrevDifficulty returns the difficulty of the most recently accepted
	// block of this kind, used as the retarget base. Injected by the chain
	// package alongside GetTimestamp.
	PrevDifficulty func() float64
}

// NewPoWSHA256 creates a new SHA256d PoW engine.
func NewPoWSHA256(initialDifficulty float64, testingMode bool) (*PoWSHA256, error) {
	if initialDifficulty < MinDifficulty {
		return nil, ErrZeroDifficulty
	}
	return &PoWSHA256{InitialDifficulty: initialDifficulty, TestingMode: testingMode}, nil
}

func (p *PoWSHA256) retargetInterval() uint32 {
	if p.TestingMode {
		return TestingRetargetInterval
	}
	return RetargetInterval
}

// ShouldRetarget reports whether difficulty should be recalculated at this height.
func (p *PoWSHA256) ShouldRetarget(height uint32) bool {
	interval := p.retargetInterval()
	return height > 0 && height%interval == 0
}

// VerifyHeader checks that the block hash meets the stated difficulty.
func (p *PoWSHA256) VerifyHeader(header *block.Header) error {
	if header.Difficulty < MinDifficulty {
		return ErrZeroDifficulty
	}
	t := ComputeTarget(header.Difficulty)
	hash := crypto.DoubleHash(header.SigningBytes())
	hashInt := new(big.Int).SetBytes(hash[:])
	if hashInt.Cmp(t) > 0 {
		return ErrInsufficientWork
	}
	return nil
}

// Prepare sets the block header's kind and difficulty for mining. If
// GetTimestamp/PrevDifficulty are configured, the difficulty is the
// retarget-adjusted value for header.Height; otherwise InitialDifficulty.
func (p *PoWSHA256) Prepare(header *block.Header) error {
	header.Kind = block.KindPowSHA256
	if p.GetTimestamp == nil || p.PrevDifficulty == nil {
		header.Difficulty = p.InitialDifficulty
		return nil
	}
	header.Difficulty = p.ExpectedDifficulty(header.Height, p.PrevDifficulty(), p.GetTimestamp)
	return nil
}

// Seal mines the block by iterating the nonce until the header hash meets
// the target. If Threads > 1, mining runs in parallel goroutines.
func (p *PoWSHA256) Seal(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if blk.Header.Difficulty < MinDifficulty {
		return ErrZeroDifficulty
	}
	if p.Threads <= 1 {
		return p.sealSingle(ctx, blk)
	}
	return p.sealParallel(ctx, blk, p.Threads)
}

func (p *PoWSHA256) sealSingle(ctx context.Context, blk *block.Block) error {
	t := ComputeTarget(blk.Header.Difficulty)
	hashInt := new(big.Int)

	for nonce := uint64(0); ; nonce++ {
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		blk.Header.Nonce = nonce
		hash := crypto.DoubleHash(blk.Header.SigningBytes())
		hashInt.SetBytes(hash[:])
		if hashInt.Cmp(t) <= 0 {
			return nil
		}
		if nonce == ^uint64(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

func (p *PoWSHA256) sealParallel(ctx context.Context, blk *block.Block, threads int) error {
	t := ComputeTarget(blk.Header.Difficulty)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		err   error
	}
	found := make(chan result, 1)
	headerBase := *blk.Header

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		startNonce := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			h := headerBase
			hashInt := new(big.Int)

			for nonce := startNonce; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}
				h.Nonce = nonce
				hash := crypto.DoubleHash(h.SigningBytes())
				hashInt.SetBytes(hash[:])
				if hashInt.Cmp(t) <= 0 {
					select {
					case found <- result{nonce: nonce}:
					default:
					}
					cancel()
					return
				}
				if nonce > ^uint64(0)-stride {
					select {
					case found <- result{err: fmt.Errorf("nonce space exhausted")}:
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return fmt.Errorf("nonce space exhausted")
		}
		if r.err != nil {
			return r.err
		}
		blk.Header.Nonce = r.nonce
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpectedDifficulty computes the correct difficulty for a block at the
// given height, per the spec's 2016-block retarget (10-block in testing
// mode): newDiff = oldDiff * (expected / max(actual, expected/4)), damped
// and clamped to [MinDifficulty, MaxDifficulty].
func (p *PoWSHA256) ExpectedDifficulty(height uint32, prevDifficulty float64, getTimestamp func(uint32) (uint64, error)) float64 {
	if height <= 1 || prevDifficulty == 0 {
		return p.InitialDifficulty
	}
	if !p.ShouldRetarget(height) {
		return prevDifficulty
	}

	interval := p.retargetInterval()
	startTS, err := getTimestamp(height - interval)
	if err != nil {
		return prevDifficulty
	}
	endTS, err := getTimestamp(height - 1)
	if err != nil {
		return prevDifficulty
	}

	actual := float64(endTS - startTS)
	expected := float64(interval) * TargetBlockTimeSeconds
	return CalcNextDifficulty(prevDifficulty, actual, expected)
}

// VerifyDifficulty checks that a block header's stated difficulty matches
// the expected difficulty computed from chain history.
func (p *PoWSHA256) VerifyDifficulty(header *block.Header, prevDifficulty float64, getTimestamp func(uint32) (uint64, error)) error {
	expected := p.ExpectedDifficulty(header.Height, prevDifficulty, getTimestamp)
	if header.Difficulty != expected {
		return fmt.Errorf("%w: height %d has difficulty %g, want %g",
			ErrBadDifficulty, header.Height, header.Difficulty, expected)
	}
	return nil
}

// CalcNextDifficulty computes the new difficulty after a retarget period,
// damped by DampingFactor and clamped to [MinDifficulty, MaxDifficulty].
func CalcNextDifficulty(currentDiff, actualTimeSpan, expectedTimeSpan float64) float64 {
	if expectedTimeSpan <= 0 {
		expectedTimeSpan = 1
	}
	minSpan := expectedTimeSpan * DampingFactor
	if actualTimeSpan < minSpan {
		actualTimeSpan = minSpan
	}
	maxSpan := expectedTimeSpan / DampingFactor
	if actualTimeSpan > maxSpan {
		actualTimeSpan = maxSpan
	}

	next := currentDiff * (expectedTimeSpan / actualTimeSpan)
	if next < MinDifficulty {
		next = MinDifficulty
	}
	if next > MaxDifficulty {
		next = MaxDifficulty
	}
	return next
}
