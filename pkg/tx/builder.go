package tx

import (
	"fmt"

	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder for a NORMAL transaction.
// Use Kind to change it before Build.
func NewBuilder() *Builder {
	return &Builder{tx: &Transaction{Kind: KindNormal}}
}

// Kind sets the transaction kind.
func (b *Builder) Kind(k TransactionKind) *Builder {
	b.tx.Kind = k
	return b
}

// AddInput adds an input referencing a previous output with its claimed
// amount (cross-checked against the UTXO's actual value at validation time).
func (b *Builder) AddInput(prevOut types.Outpoint, amount uint64) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{
		PrevTxHash:  prevOut.TxID,
		OutputIndex: prevOut.Index,
		Amount:      amount,
	})
	return b
}

// AddOutput adds an output with a value, destination address, and locking
// script.
func (b *Builder) AddOutput(address types.Address, amount uint64, script types.Script) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Address: address, Amount: amount, Script: script})
	return b
}

// SetTraceability sets the redundant (prevTxHash, referencedAmount) pair
// required by the traceability invariant for kinds where it applies.
func (b *Builder) SetTraceability(prevTxHash types.Hash, referencedAmount uint64) *Builder {
	b.tx.PrevTxHash = prevTxHash
	b.tx.ReferencedAmount = referencedAmount
	return b
}

// SetFee sets the transaction fee.
func (b *Builder) SetFee(fee uint64) *Builder {
	b.tx.Fee = fee
	return b
}

// SetTimestamp sets the transaction timestamp.
func (b *Builder) SetTimestamp(ts uint64) *Builder {
	b.tx.Timestamp = ts
	return b
}

// SetProofHash sets the ProofOfFeasibility hash authorizing a REVERSAL
// transaction.
func (b *Builder) SetProofHash(proofHash types.Hash) *Builder {
	b.tx.ProofHash = proofHash
	return b
}

// Sign signs all inputs with the provided private key.
// Each input gets the same signature (single-key spending).
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	hash := b.tx.Hash()
	sig, err := key.Sign(hash[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	pubKey := key.PublicKey()
	for i := range b.tx.Inputs {
		b.tx.Inputs[i].Signature = sig
		b.tx.Inputs[i].PublicKey = pubKey
	}
	return nil
}

// SignMulti signs each input with the key that owns its outpoint.
// outpointAddr maps each input's outpoint to the address that owns it.
// signers maps each address to the private key that can spend from it.
func (b *Builder) SignMulti(
	signers map[types.Address]*crypto.PrivateKey,
	outpointAddr map[types.Outpoint]types.Address,
) error {
	hash := b.tx.Hash()

	// Cache signatures: same key always produces the same sig for the same hash.
	type sigPub struct {
		sig    []byte
		pubKey []byte
	}
	cache := make(map[types.Address]*sigPub)

	for i := range b.tx.Inputs {
		if b.tx.Inputs[i].IsCoinbaseInput() {
			continue
		}

		op := b.tx.Inputs[i].Outpoint()
		addr, ok := outpointAddr[op]
		if !ok {
			return fmt.Errorf("no address mapping for input %d outpoint", i)
		}
		key, ok := signers[addr]
		if !ok {
			return fmt.Errorf("no signer for address %s (input %d)", addr, i)
		}

		sp, cached := cache[addr]
		if !cached {
			sig, err := key.Sign(hash[:])
			if err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
			sp = &sigPub{sig: sig, pubKey: key.PublicKey()}
			cache[addr] = sp
		}
		b.tx.Inputs[i].Signature = sp.sig
		b.tx.Inputs[i].PublicKey = sp.pubKey
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate — call tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
