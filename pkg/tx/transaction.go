// Package tx defines the transaction data model: inputs, outputs, the
// traceability invariant, and structural/UTXO-aware validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

// TransactionKind distinguishes the five transaction shapes the ledger
// supports.
type TransactionKind uint8

const (
	KindNormal TransactionKind = iota
	KindCoinbase
	KindStake
	KindUnstake
	KindReversal
)

// String returns a human-readable kind name.
func (k TransactionKind) String() string {
	switch k {
	case KindNormal:
		return "NORMAL"
	case KindCoinbase:
		return "COINBASE"
	case KindStake:
		return "STAKE"
	case KindUnstake:
		return "UNSTAKE"
	case KindReversal:
		return "REVERSAL"
	default:
		return "UNKNOWN"
	}
}

// Input references a previous output being spent. Amount is the redundant
// claimed value of the referenced output; the validator cross-checks it
// against the UTXO's actual value (InputAmountMismatch if they diverge).
type Input struct {
	PrevTxHash  types.Hash `json:"prevTxHash"`
	OutputIndex uint32     `json:"outputIndex"`
	Amount      uint64     `json:"amount"`
	Signature   []byte     `json:"signature"`
	PublicKey   []byte     `json:"publicKey"`
}

// Outpoint returns the UTXO key this input spends.
func (in Input) Outpoint() types.Outpoint {
	return types.Outpoint{TxID: in.PrevTxHash, Index: in.OutputIndex}
}

// IsCoinbaseInput reports whether this input is the zero-outpoint
// placeholder used by COINBASE transactions (no UTXO backs it).
func (in Input) IsCoinbaseInput() bool {
	return in.PrevTxHash.IsZero() && in.OutputIndex == 0
}

type inputJSON struct {
	PrevTxHash  types.Hash `json:"prevTxHash"`
	OutputIndex uint32     `json:"outputIndex"`
	Amount      uint64     `json:"amount"`
	Signature   *string    `json:"signature"`
	PublicKey   *string    `json:"publicKey"`
}

// MarshalJSON encodes the input with hex-encoded signature and public key.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PrevTxHash: in.PrevTxHash, OutputIndex: in.OutputIndex, Amount: in.Amount}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	if in.PublicKey != nil {
		p := hex.EncodeToString(in.PublicKey)
		j.PublicKey = &p
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with hex-encoded signature and public key.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevTxHash, in.OutputIndex, in.Amount = j.PrevTxHash, j.OutputIndex, j.Amount
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	if j.PublicKey != nil {
		b, err := hex.DecodeString(*j.PublicKey)
		if err != nil {
			return err
		}
		in.PublicKey = b
	}
	return nil
}

// Output defines a new UTXO.
type Output struct {
	Address types.Address `json:"address"`
	Amount  uint64        `json:"amount"`
	Script  types.Script  `json:"script"`
}

// Transaction is the ledger's unit of state transition. Every non-coinbase,
// non-unstake, non-reversal transaction carries a redundant
// (PrevTxHash, ReferencedAmount) pair that must equal
// (Inputs[0].PrevTxHash, Inputs[0].Amount) — the traceability invariant
// that underlies taint propagation.
type Transaction struct {
	Kind             TransactionKind `json:"kind"`
	Inputs           []Input         `json:"inputs"`
	Outputs          []Output        `json:"outputs"`
	PrevTxHash       types.Hash      `json:"prevTxHash"`
	ReferencedAmount uint64          `json:"referencedAmount"`
	Fee              uint64          `json:"fee"`
	Timestamp        uint64          `json:"timestamp"`
	// ProofHash is set only on REVERSAL transactions: the hash of the
	// ProofOfFeasibility record that authorized them.
	ProofHash types.Hash `json:"proofHash,omitempty"`
}

// Hash computes the transaction ID: SHA-256 over the canonical tuple of
// every field except the hash itself. Recomputing it from stored fields
// must reproduce the same value (hash stability).
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation covered by the
// transaction hash and by input signatures. Signatures themselves are
// excluded to avoid a circular dependency during signing.
//
// Layout: kind(1) | inputCount(4) | [prevTxHash(32)+outputIndex(4)+amount(8)+pubKeyLen(4)+pubKey]...
// | outputCount(4) | [address(20)+amount(8)+scriptType(1)+scriptDataLen(4)+scriptData]...
// | prevTxHash(32) | referencedAmount(8) | fee(8) | timestamp(8) | proofHash(32)
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = append(buf, byte(tx.Kind))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevTxHash[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.OutputIndex)
		buf = binary.LittleEndian.AppendUint64(buf, in.Amount)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.PublicKey)))
		buf = append(buf, in.PublicKey...)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = append(buf, out.Address[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, out.Amount)
		buf = append(buf, byte(out.Script.Type))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Script.Data)))
		buf = append(buf, out.Script.Data...)
	}

	buf = append(buf, tx.PrevTxHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, tx.ReferencedAmount)
	buf = binary.LittleEndian.AppendUint64(buf, tx.Fee)
	buf = binary.LittleEndian.AppendUint64(buf, tx.Timestamp)
	buf = append(buf, tx.ProofHash[:]...)

	return buf
}

// TotalOutputValue returns the sum of all output values, erroring on
// overflow.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Amount
	}
	return total, nil
}

// TotalInputAmount returns the sum of the inputs' claimed amounts (the
// redundant Input.Amount field, not a UTXO lookup), erroring on overflow.
func (tx *Transaction) TotalInputAmount() (uint64, error) {
	var total uint64
	for _, in := range tx.Inputs {
		if total > math.MaxUint64-in.Amount {
			return 0, fmt.Errorf("input value overflow")
		}
		total += in.Amount
	}
	return total, nil
}

// RequiresTraceability reports whether this transaction kind is subject to
// the traceability invariant. COINBASE, UNSTAKE, and REVERSAL are exempt:
// coinbase mints with no ancestor, unstake is a ledger-internal unlock, and
// reversal carries a ProofHash in lieu of a traced ancestor.
func (tx *Transaction) RequiresTraceability() bool {
	switch tx.Kind {
	case KindCoinbase, KindUnstake, KindReversal:
		return false
	default:
		return true
	}
}
