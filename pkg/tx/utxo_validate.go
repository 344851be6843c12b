package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

// UTXO-aware validation errors.
var (
	ErrUnknownUtxo         = errors.New("input UTXO not found")
	ErrInputAmountMismatch = errors.New("input amount does not match referenced UTXO")
	ErrInputOverflow       = errors.New("input values overflow")
	ErrScriptMismatch      = errors.New("pubkey does not match UTXO script")
)

// UTXOProvider provides read-only access to the UTXO set for validation.
type UTXOProvider interface {
	GetUTXO(outpoint types.Outpoint) (value uint64, script types.Script, err error)
	HasUTXO(outpoint types.Outpoint) bool
}

// ValidateWithUTXOs performs full validation of a transaction against the
// UTXO set: every input exists (except coinbase), the claimed Input.Amount
// matches the UTXO's actual value, the owning pubkey matches the locking
// script, signatures verify, and conservation holds. stakedDelta is the
// ledger-level stake lock/unlock amount this transaction contributes
// (positive for STAKE, negative for UNSTAKE, zero otherwise). Returns the
// transaction fee.
func (tx *Transaction) ValidateWithUTXOs(provider UTXOProvider, stakedDelta int64) (uint64, error) {
	if err := tx.ValidateStructure(); err != nil {
		return 0, err
	}

	var totalInput uint64
	for i, in := range tx.Inputs {
		if tx.Kind == KindCoinbase && in.IsCoinbaseInput() {
			continue
		}

		op := in.Outpoint()
		if !provider.HasUTXO(op) {
			return 0, fmt.Errorf("input %d (%s): %w", i, op, ErrUnknownUtxo)
		}

		value, script, err := provider.GetUTXO(op)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}
		if value != in.Amount {
			return 0, fmt.Errorf("input %d (%s): %w: utxo=%d claimed=%d", i, op, ErrInputAmountMismatch, value, in.Amount)
		}

		if script.Type == types.ScriptTypeP2PKH {
			if err := verifyP2PKH(in.PublicKey, script.Data); err != nil {
				return 0, fmt.Errorf("input %d: %w", i, err)
			}
		}
		if script.Type == types.ScriptTypeStake {
			if len(script.Data) != 33 || string(in.PublicKey) != string(script.Data) {
				return 0, fmt.Errorf("input %d: %w: pubkey does not match stake lock", i, ErrScriptMismatch)
			}
		}

		if totalInput > math.MaxUint64-value {
			return 0, fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		totalInput += value
	}

	if err := tx.VerifySignatures(); err != nil {
		return 0, err
	}

	totalOutput, err := tx.TotalOutputValue()
	if err != nil {
		return 0, fmt.Errorf("output overflow: %w", err)
	}

	// Conservation: sum(outputs) + fee + stakedDelta == sum(inputs).
	rhs := int64(totalOutput) + int64(tx.Fee) + stakedDelta
	if tx.Kind != KindCoinbase && rhs != int64(totalInput) {
		return 0, fmt.Errorf("%w: outputs=%d fee=%d stakedDelta=%d inputs=%d",
			ErrConservationViolation, totalOutput, tx.Fee, stakedDelta, totalInput)
	}

	return tx.Fee, nil
}

// ValidateStructure checks transaction structure without requiring UTXO
// access. Alias for Validate, kept distinct for call-site clarity next to
// ValidateWithUTXOs.
func (tx *Transaction) ValidateStructure() error {
	return tx.Validate()
}

// verifyP2PKH checks that a public key hashes (ripemd160(sha256(pubkey)))
// to the address locked in the script's raw 20-byte data.
func verifyP2PKH(pubKey []byte, scriptData []byte) error {
	if len(scriptData) != types.AddressSize {
		return fmt.Errorf("%w: script data must be %d bytes, got %d", ErrScriptMismatch, types.AddressSize, len(scriptData))
	}
	if len(pubKey) == 0 {
		return ErrMissingPubKey
	}
	derived := crypto.AddressFromPubKey(pubKey)
	if string(derived[:]) != string(scriptData) {
		return fmt.Errorf("%w: pubkey does not derive the locked address", ErrScriptMismatch)
	}
	return nil
}
