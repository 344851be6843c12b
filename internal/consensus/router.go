package consensus

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gxchain/gxcd/pkg/block"
)

// ErrNoEngine is returned when no Engine is registered for a block.Kind.
var ErrNoEngine = fmt.Errorf("no consensus engine registered for kind")

// Router dispatches consensus operations to the engine registered for a
// block's Kind, letting POW_SHA256, POW_ETHASH, and POS blocks coexist on
// one chain. Fork choice across kinds is by accumulated ChainWork, not by
// kind preference — see ChainWork and BlockWork.
type Router struct {
	engines map[block.Kind]Engine
}

// NewRouter creates an empty Router. Register engines with Register before use.
func NewRouter() *Router {
	return &Router{engines: make(map[block.Kind]Engine)}
}

// Register associates an Engine with a block.Kind.
func (r *Router) Register(kind block.Kind, engine Engine) {
	r.engines[kind] = engine
}

// Engine returns the engine registered for kind, or nil if none.
func (r *Router) Engine(kind block.Kind) Engine {
	return r.engines[kind]
}

// VerifyHeader dispatches to the engine matching header.Kind.
func (r *Router) VerifyHeader(header *block.Header) error {
	engine, ok := r.engines[header.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoEngine, header.Kind)
	}
	return engine.VerifyHeader(header)
}

// Prepare dispatches to the engine for the given kind, which sets
// header.Kind and header.Difficulty as a side effect.
func (r *Router) Prepare(kind block.Kind, header *block.Header) error {
	engine, ok := r.engines[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoEngine, kind)
	}
	return engine.Prepare(header)
}

// Seal dispatches to the engine for the given kind.
func (r *Router) Seal(ctx context.Context, kind block.Kind, blk *block.Block) error {
	engine, ok := r.engines[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoEngine, kind)
	}
	return engine.Seal(ctx, blk)
}

// BlockWork returns the chain work a single block contributes, derived from
// its declared difficulty regardless of kind — PoW and PoS difficulty share
// the same scale (spec §4.5), so work accumulates uniformly across kinds.
func BlockWork(header *block.Header) *big.Int {
	return ChainWork(header.Difficulty)
}
