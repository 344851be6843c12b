// Package consensus defines consensus engine interfaces.
package consensus

import (
	"context"

	"github.com/gxchain/gxcd/pkg/block"
)

// Engine is the interface for consensus implementations. A single chain runs
// multiple Engines side by side — one per block.Kind — dispatched by a
// Router keyed on each header's Kind.
type Engine interface {
	VerifyHeader(header *block.Header) error
	Prepare(header *block.Header) error
	Seal(ctx context.Context, blk *block.Block) error
}

// StakeChecker verifies that a validator has sufficient stake locked on-chain.
type StakeChecker interface {
	HasStake(pubKey []byte) (bool, error)
}
