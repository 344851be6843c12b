package block

import (
	"errors"
	"fmt"

	"github.com/gxchain/gxcd/config"
	"github.com/gxchain/gxcd/pkg/tx"
	"github.com/gxchain/gxcd/pkg/types"
)

// Validation errors.
var (
	ErrNilHeader           = errors.New("block has nil header")
	ErrNoTransactions      = errors.New("block has no transactions")
	ErrBadMerkleRoot       = errors.New("merkle root mismatch")
	ErrZeroTimestamp       = errors.New("block timestamp is zero")
	ErrNoCoinbase          = errors.New("first transaction must be coinbase")
	ErrTooManyTxs          = errors.New("too many transactions in block")
	ErrBlockTooLarge       = errors.New("block too large")
	ErrDuplicateBlockInput = errors.New("duplicate input across transactions in block")
	ErrMultipleCoinbase    = errors.New("multiple coinbase transactions in block")
	ErrCoinbaseOverpay     = errors.New("coinbase output exceeds block reward plus fees")
)

// Validate checks block structure and internal consistency: this does NOT
// verify consensus rules (proof-of-work/stake, taint gate) — see
// internal/consensus and internal/taint for that.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}

	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}

	if len(b.Transactions) == 0 {
		return ErrNoTransactions
	}

	if len(b.Transactions) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), config.MaxBlockTxs)
	}

	blockSize := len(b.Header.SigningBytes())
	for _, t := range b.Transactions {
		blockSize += len(t.SigningBytes())
	}
	if blockSize > config.MaxBlockSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, blockSize, config.MaxBlockSize)
	}

	if b.Transactions[0].Kind != tx.KindCoinbase {
		return ErrNoCoinbase
	}
	for i, t := range b.Transactions[1:] {
		if t.Kind == tx.KindCoinbase {
			return fmt.Errorf("tx %d: %w", i+1, ErrMultipleCoinbase)
		}
	}

	txHashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		txHashes[i] = t.Hash()
	}
	expectedRoot := ComputeMerkleRoot(txHashes)
	if b.Header.MerkleRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadMerkleRoot, b.Header.MerkleRoot, expectedRoot)
	}

	for i, t := range b.Transactions {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	if err := b.checkCoinbaseReward(); err != nil {
		return err
	}

	return b.checkDuplicateInputs()
}

// checkCoinbaseReward ensures the coinbase transaction does not mint more
// than the declared block reward plus the sum of all other transactions'
// declared fees.
func (b *Block) checkCoinbaseReward() error {
	coinbaseOut, err := b.Transactions[0].TotalOutputValue()
	if err != nil {
		return fmt.Errorf("coinbase: %w", err)
	}

	var totalFees uint64
	for _, t := range b.Transactions[1:] {
		totalFees += t.Fee
	}

	if coinbaseOut > b.Header.Reward+totalFees {
		return fmt.Errorf("%w: coinbase=%d reward=%d fees=%d", ErrCoinbaseOverpay, coinbaseOut, b.Header.Reward, totalFees)
	}
	return nil
}

// checkDuplicateInputs rejects a block where two transactions spend the
// same outpoint (per-tx duplicates are caught by tx.Validate).
func (b *Block) checkDuplicateInputs() error {
	allInputs := make(map[types.Outpoint]int)
	for i, t := range b.Transactions {
		for _, in := range t.Inputs {
			if in.IsCoinbaseInput() {
				continue
			}
			op := in.Outpoint()
			if prevTx, exists := allInputs[op]; exists {
				return fmt.Errorf("tx %d: %w: outpoint %s also spent in tx %d", i, ErrDuplicateBlockInput, op, prevTx)
			}
			allInputs[op] = i
		}
	}
	return nil
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}
