package validatorset

import (
	"context"
	"errors"
	"fmt"

	"github.com/gxchain/gxcd/pkg/block"
	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

var (
	ErrMissingValidatorSignature = errors.New("block missing validator signature")
	ErrInvalidValidatorSignature = errors.New("validator signature does not verify")
	ErrWrongLeader               = errors.New("miner is not the selected leader for this height")
	ErrLeaderIneligible          = errors.New("selected leader is not an active, sufficiently staked validator")
)

// Engine implements consensus.Engine for POS blocks: the leader for a given
// height is the validator set's weighted-random draw seeded by the previous
// block's hash, and the block must carry that validator's signature.
type Engine struct {
	set    *Set
	signer *crypto.PrivateKey

	// PrevHash returns the parent block's hash, used as the PRNG seed for
	// leader selection. Injected by the chain package, which owns history.
	PrevHash func() types.Hash
}

// NewEngine creates a PoS engine over the given validator set.
func NewEngine(set *Set) *Engine {
	return &Engine{set: set}
}

// SetSigner configures the local validator key used by Seal.
func (e *Engine) SetSigner(key *crypto.PrivateKey) {
	e.signer = key
}

// VerifyHeader checks that header.Miner is the selected leader for
// header.Height and that ValidatorSignature verifies over the block hash.
func (e *Engine) VerifyHeader(header *block.Header) error {
	if len(header.ValidatorSignature) == 0 {
		return ErrMissingValidatorSignature
	}

	leader, err := e.set.SelectLeader(header.PrevHash, header.Height)
	if err != nil {
		return fmt.Errorf("select leader: %w", err)
	}
	if leader.Address != header.Miner {
		return fmt.Errorf("%w: expected %s, got %s", ErrWrongLeader, leader.Address, header.Miner)
	}
	if !leader.Eligible() {
		return ErrLeaderIneligible
	}

	hash := header.Hash()
	if !crypto.VerifySignature(hash[:], header.ValidatorSignature, leader.PubKey) {
		return ErrInvalidValidatorSignature
	}
	return nil
}

// Prepare sets header.Kind and stamps the header's declared difficulty with
// the validator set's total active weight, which keeps POS blocks
// participating meaningfully in work-weighted fork choice alongside PoW
// blocks (spec §4.5/§9: difficulty is a single float64 scale across kinds).
func (e *Engine) Prepare(header *block.Header) error {
	header.Kind = block.KindPoS

	var total float64
	for _, rec := range e.set.Active() {
		total += rec.Weight()
	}
	if total < 1 {
		total = 1
	}
	header.Difficulty = total
	return nil
}

// Seal signs the block header hash with the local validator key. ctx is
// accepted to satisfy consensus.Engine but unused: signing is not
// cancellable work the way mining is.
func (e *Engine) Seal(ctx context.Context, blk *block.Block) error {
	if e.signer == nil {
		return fmt.Errorf("no validator signer configured")
	}
	hash := blk.Header.Hash()
	sig, err := e.signer.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("seal block: %w", err)
	}
	blk.Header.ValidatorSignature = sig
	blk.Header.Miner = crypto.AddressFromPubKey(e.signer.PublicKey())
	return nil
}
