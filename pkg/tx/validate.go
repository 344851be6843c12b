package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/gxchain/gxcd/config"
	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

// Validation errors — members of the spec's "Validation" error taxonomy.
var (
	ErrNoInputs              = errors.New("transaction has no inputs")
	ErrNoOutputs             = errors.New("transaction has no outputs")
	ErrDuplicateInput        = errors.New("duplicate input")
	ErrOutputOverflow        = errors.New("output values overflow")
	ErrZeroOutput            = errors.New("output value is zero")
	ErrMissingPubKey         = errors.New("input missing public key")
	ErrMissingSig            = errors.New("input missing signature")
	ErrSignatureInvalid      = errors.New("invalid signature")
	ErrTooManyInputs         = errors.New("too many inputs")
	ErrTooManyOutputs        = errors.New("too many outputs")
	ErrScriptDataTooLarge    = errors.New("script data too large")
	ErrTraceabilityViolation = errors.New("traceability invariant violated")
	ErrConservationViolation = errors.New("conservation of value violated")
)

// Validate checks transaction structure and the traceability invariant.
// It does not check UTXO existence or conservation against actual UTXO
// values — that requires ValidateWithUTXOs.
func (tx *Transaction) Validate() error {
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(tx.Inputs) > config.MaxTxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(tx.Inputs), config.MaxTxInputs)
	}
	if len(tx.Outputs) > config.MaxTxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(tx.Outputs), config.MaxTxOutputs)
	}

	seen := make(map[types.Outpoint]bool, len(tx.Inputs))
	for i, in := range tx.Inputs {
		op := in.Outpoint()
		if seen[op] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[op] = true
	}

	for i, in := range tx.Inputs {
		if tx.Kind == KindCoinbase && in.IsCoinbaseInput() {
			continue
		}
		if len(in.PublicKey) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingPubKey)
		}
		if len(in.Signature) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingSig)
		}
	}

	var totalOutput uint64
	for i, out := range tx.Outputs {
		if out.Amount == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if len(out.Script.Data) > config.MaxScriptData {
			return fmt.Errorf("output %d: %w: %d bytes, max %d", i, ErrScriptDataTooLarge, len(out.Script.Data), config.MaxScriptData)
		}
		if totalOutput > math.MaxUint64-out.Amount {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		totalOutput += out.Amount
	}

	if err := tx.checkTraceability(); err != nil {
		return err
	}

	return nil
}

// traceabilityEpsilon bounds the floating-point-free amount comparison;
// amounts are integral base units, so the tolerance is exact equality.
const traceabilityEpsilon = 0

// checkTraceability enforces: inputs[0].prevTxHash == prevTxHash AND
// |inputs[0].amount - referencedAmount| < epsilon, for kinds that require
// it (see Transaction.RequiresTraceability).
func (tx *Transaction) checkTraceability() error {
	if !tx.RequiresTraceability() {
		return nil
	}
	first := tx.Inputs[0]
	if first.PrevTxHash != tx.PrevTxHash {
		return fmt.Errorf("%w: inputs[0].prevTxHash=%s prevTxHash=%s", ErrTraceabilityViolation, first.PrevTxHash, tx.PrevTxHash)
	}
	var diff int64
	if first.Amount >= tx.ReferencedAmount {
		diff = int64(first.Amount - tx.ReferencedAmount)
	} else {
		diff = int64(tx.ReferencedAmount - first.Amount)
	}
	if diff > traceabilityEpsilon {
		return fmt.Errorf("%w: inputs[0].amount=%d referencedAmount=%d", ErrTraceabilityViolation, first.Amount, tx.ReferencedAmount)
	}
	return nil
}

// VerifySignatures checks that every non-coinbase input's signature
// verifies against the transaction hash and the input's claimed public key.
func (tx *Transaction) VerifySignatures() error {
	hash := tx.Hash()
	for i, in := range tx.Inputs {
		if tx.Kind == KindCoinbase && in.IsCoinbaseInput() {
			continue
		}
		if !crypto.VerifySignature(hash[:], in.Signature, in.PublicKey) {
			return fmt.Errorf("input %d: %w", i, ErrSignatureInvalid)
		}
	}
	return nil
}
