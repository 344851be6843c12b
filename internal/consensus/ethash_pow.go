package consensus

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/gxchain/gxcd/pkg/block"
	"github.com/gxchain/gxcd/pkg/ethash"
	"github.com/gxchain/gxcd/pkg/types"
)

// PoWEthash implements the memory-hard Ethash proof-of-work engine. A small
// cache of recent epochs' Cache/Dataset pairs is kept so verification and
// mining don't regenerate them on every call; epochs roll over roughly every
// ethash.EpochLength blocks.
type PoWEthash struct {
	InitialDifficulty float64
	TestingMode       bool
	Threads           int

	GetTimestamp   func(height uint32) (uint64, error)
	PrevDifficulty func() float64

	mu      sync.Mutex
	caches  map[uint64]*ethash.Cache
	dataset *ethash.Dataset // full dataset for the most recently mined epoch
	dsEpoch uint64
	hasDS   bool
}

// NewPoWEthash creates a new Ethash PoW engine.
func NewPoWEthash(initialDifficulty float64, testingMode bool) (*PoWEthash, error) {
	if initialDifficulty < MinDifficulty {
		return nil, ErrZeroDifficulty
	}
	return &PoWEthash{
		InitialDifficulty: initialDifficulty,
		TestingMode:       testingMode,
		caches:            make(map[uint64]*ethash.Cache),
	}, nil
}

func (p *PoWEthash) retargetInterval() uint32 {
	if p.TestingMode {
		return TestingRetargetInterval
	}
	return RetargetInterval
}

// ShouldRetarget reports whether difficulty should be recalculated at this height.
func (p *PoWEthash) ShouldRetarget(height uint32) bool {
	interval := p.retargetInterval()
	return height > 0 && height%interval == 0
}

func (p *PoWEthash) cacheForEpoch(epoch uint64) *ethash.Cache {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.caches[epoch]; ok {
		return c
	}
	c := ethash.GenerateCache(epoch)
	p.caches[epoch] = c
	// Keep the cache map small: this chain only ever needs the current and
	// immediately previous epoch's cache during a transition.
	if len(p.caches) > 2 {
		for e := range p.caches {
			if e != epoch && e+1 != epoch {
				delete(p.caches, e)
			}
		}
	}
	return c
}

// VerifyHeader checks the Ethash light-client proof against the header's
// declared difficulty.
func (p *PoWEthash) VerifyHeader(header *block.Header) error {
	if header.Difficulty < MinDifficulty {
		return ErrZeroDifficulty
	}
	epoch := ethash.Epoch(uint64(header.Height))
	cache := p.cacheForEpoch(epoch)
	target := ComputeTarget(header.Difficulty)

	result := ethash.HashimotoLight(cache, header.HeaderBytes(), header.Nonce)
	if new(big.Int).SetBytes(result.Result[:]).Cmp(target) > 0 {
		return ErrInsufficientWork
	}
	if types.Hash(result.Mix) != header.MixHash {
		return fmt.Errorf("%w: mix digest does not match recorded MixHash", ErrInsufficientWork)
	}
	return nil
}

// Prepare sets the block header's kind and difficulty, mirroring PoWSHA256.Prepare.
func (p *PoWEthash) Prepare(header *block.Header) error {
	header.Kind = block.KindPowEthash
	if p.GetTimestamp == nil || p.PrevDifficulty == nil {
		header.Difficulty = p.InitialDifficulty
		return nil
	}
	interval := p.retargetInterval()
	if header.Height <= 1 || !p.ShouldRetarget(header.Height) {
		header.Difficulty = p.PrevDifficulty()
		return nil
	}
	startTS, err := p.GetTimestamp(header.Height - interval)
	if err != nil {
		header.Difficulty = p.PrevDifficulty()
		return nil
	}
	endTS, err := p.GetTimestamp(header.Height - 1)
	if err != nil {
		header.Difficulty = p.PrevDifficulty()
		return nil
	}
	actual := float64(endTS - startTS)
	expected := float64(interval) * TargetBlockTimeSeconds
	header.Difficulty = CalcNextDifficulty(p.PrevDifficulty(), actual, expected)
	return nil
}

// Seal mines the block using HashimotoFull against a generated dataset for
// the header's epoch, iterating the nonce (optionally across Threads
// goroutines) until the result satisfies the target.
func (p *PoWEthash) Seal(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if blk.Header.Difficulty < MinDifficulty {
		return ErrZeroDifficulty
	}

	epoch := ethash.Epoch(uint64(blk.Header.Height))
	cache := p.cacheForEpoch(epoch)
	dataset := p.datasetForEpoch(epoch, cache)
	target := ComputeTarget(blk.Header.Difficulty)

	threads := p.Threads
	if threads <= 1 {
		threads = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		mix   [32]byte
	}
	found := make(chan result, 1)
	headerBytes := blk.Header.HeaderBytes()

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		start := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			for nonce := start; ; nonce += stride {
				if (nonce/stride)&0xFFF == 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}
				r := ethash.HashimotoFull(dataset, headerBytes, nonce)
				if new(big.Int).SetBytes(r.Result[:]).Cmp(target) <= 0 {
					select {
					case found <- result{nonce: nonce, mix: r.Mix}:
					default:
					}
					cancel()
					return
				}
				if nonce > ^uint64(0)-stride {
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
		blk.Header.Nonce = r.nonce
		blk.Header.MixHash = types.Hash(r.mix)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PoWEthash) datasetForEpoch(epoch uint64, cache *ethash.Cache) *ethash.Dataset {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasDS && p.dsEpoch == epoch {
		return p.dataset
	}
	p.dataset = ethash.GenerateDataset(cache, epoch)
	p.dsEpoch = epoch
	p.hasDS = true
	return p.dataset
}
