package tx

import (
	"errors"
	"math"
	"testing"

	"github.com/gxchain/gxcd/config"
	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

// validTx creates a minimal valid signed transaction for testing.
func validTx(t *testing.T) *Transaction {
	t.Helper()
	key, _ := crypto.GenerateKey()
	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	transaction := NewBuilder().
		AddInput(prevOut, 1000).
		AddOutput(types.Address{0x42}, 1000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)}).
		SetTraceability(prevOut.TxID, 1000).
		Build()
	transaction.Sign(key)
	return transaction
}

func TestValidate_Valid(t *testing.T) {
	transaction := validTx(t)
	if err := transaction.Validate(); err != nil {
		t.Errorf("valid tx should pass: %v", err)
	}
}

func TestValidate_NoInputs(t *testing.T) {
	transaction := &Transaction{
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	err := transaction.Validate()
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got: %v", err)
	}
}

func TestValidate_NoOutputs(t *testing.T) {
	transaction := &Transaction{
		Inputs: []Input{{
			PrevTxHash: types.Hash{0x01},
			Signature:  []byte("sig"),
			PublicKey:  []byte("key"),
		}},
	}
	err := transaction.Validate()
	if !errors.Is(err, ErrNoOutputs) {
		t.Errorf("expected ErrNoOutputs, got: %v", err)
	}
}

func TestValidate_DuplicateInput(t *testing.T) {
	tx := &Transaction{
		Inputs: []Input{
			{PrevTxHash: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")},
			{PrevTxHash: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")},
		},
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrDuplicateInput) {
		t.Errorf("expected ErrDuplicateInput, got: %v", err)
	}
}

func TestValidate_MissingPubKey(t *testing.T) {
	tx := &Transaction{
		Inputs:  []Input{{PrevTxHash: types.Hash{0x01}, Signature: []byte("s")}},
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrMissingPubKey) {
		t.Errorf("expected ErrMissingPubKey, got: %v", err)
	}
}

func TestValidate_MissingSig(t *testing.T) {
	tx := &Transaction{
		Inputs:  []Input{{PrevTxHash: types.Hash{0x01}, PublicKey: []byte("k")}},
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrMissingSig) {
		t.Errorf("expected ErrMissingSig, got: %v", err)
	}
}

func TestValidate_ZeroOutput(t *testing.T) {
	tx := &Transaction{
		Inputs:  []Input{{PrevTxHash: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: []Output{{Amount: 0, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrZeroOutput) {
		t.Errorf("expected ErrZeroOutput, got: %v", err)
	}
}

func TestValidate_OutputOverflow(t *testing.T) {
	tx := &Transaction{
		Inputs: []Input{{PrevTxHash: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: []Output{
			{Amount: math.MaxUint64, Script: types.Script{Type: types.ScriptTypeP2PKH}},
			{Amount: 1, Script: types.Script{Type: types.ScriptTypeP2PKH}},
		},
	}
	err := tx.Validate()
	if !errors.Is(err, ErrOutputOverflow) {
		t.Errorf("expected ErrOutputOverflow, got: %v", err)
	}
}

func TestValidate_Coinbase(t *testing.T) {
	// Coinbase tx: zero outpoint input, no sig/pubkey, no traceability — should pass.
	coinbase := &Transaction{
		Kind:    KindCoinbase,
		Inputs:  []Input{{PrevTxHash: types.Hash{}, OutputIndex: 0}},
		Outputs: []Output{{Amount: 50000, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)}}},
	}
	if err := coinbase.Validate(); err != nil {
		t.Errorf("coinbase tx should pass Validate: %v", err)
	}
}

func TestVerifySignatures_Coinbase(t *testing.T) {
	coinbase := &Transaction{
		Kind:    KindCoinbase,
		Inputs:  []Input{{PrevTxHash: types.Hash{}, OutputIndex: 0}},
		Outputs: []Output{{Amount: 50000, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)}}},
	}
	if err := coinbase.VerifySignatures(); err != nil {
		t.Errorf("coinbase tx should pass VerifySignatures: %v", err)
	}
}

func TestVerifySignatures_Valid(t *testing.T) {
	transaction := validTx(t)
	if err := transaction.VerifySignatures(); err != nil {
		t.Errorf("valid signatures should verify: %v", err)
	}
}

func TestVerifySignatures_WrongKey(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	transaction := NewBuilder().
		AddInput(prevOut, 1000).
		AddOutput(types.Address{0x42}, 1000, types.Script{Type: types.ScriptTypeP2PKH}).
		SetTraceability(prevOut.TxID, 1000).
		Build()
	transaction.Sign(key1)

	transaction.Inputs[0].PublicKey = key2.PublicKey()

	err := transaction.VerifySignatures()
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("expected ErrSignatureInvalid, got: %v", err)
	}
}

func TestVerifySignatures_TamperedOutput(t *testing.T) {
	transaction := validTx(t)

	transaction.Outputs[0].Amount = 9999

	err := transaction.VerifySignatures()
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("tampered tx should fail verification: %v", err)
	}
}

func TestVerifySignatures_CorruptedSig(t *testing.T) {
	transaction := validTx(t)

	transaction.Inputs[0].Signature[0] ^= 0xFF

	err := transaction.VerifySignatures()
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("corrupted sig should fail: %v", err)
	}
}

func TestValidate_TooManyInputs(t *testing.T) {
	inputs := make([]Input, config.MaxTxInputs+1)
	for i := range inputs {
		inputs[i] = Input{
			PrevTxHash: types.Hash{byte(i >> 8), byte(i)},
			OutputIndex: uint32(i),
			Signature:  []byte("s"),
			PublicKey:  []byte("k"),
		}
	}
	transaction := &Transaction{
		Inputs:  inputs,
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	err := transaction.Validate()
	if !errors.Is(err, ErrTooManyInputs) {
		t.Errorf("expected ErrTooManyInputs, got: %v", err)
	}
}

func TestValidate_TooManyInputs_AtLimit(t *testing.T) {
	inputs := make([]Input, config.MaxTxInputs)
	for i := range inputs {
		inputs[i] = Input{
			PrevTxHash: types.Hash{byte(i >> 8), byte(i)},
			OutputIndex: uint32(i),
			Signature:  []byte("s"),
			PublicKey:  []byte("k"),
		}
	}
	transaction := &Transaction{
		Inputs:  inputs,
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	err := transaction.Validate()
	if errors.Is(err, ErrTooManyInputs) {
		t.Errorf("exactly MaxTxInputs should not trigger ErrTooManyInputs")
	}
}

func TestValidate_TooManyOutputs(t *testing.T) {
	outputs := make([]Output, config.MaxTxOutputs+1)
	for i := range outputs {
		outputs[i] = Output{Amount: 1, Script: types.Script{Type: types.ScriptTypeP2PKH}}
	}
	transaction := &Transaction{
		Inputs:  []Input{{PrevTxHash: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: outputs,
	}
	err := transaction.Validate()
	if !errors.Is(err, ErrTooManyOutputs) {
		t.Errorf("expected ErrTooManyOutputs, got: %v", err)
	}
}

func TestValidate_TooManyOutputs_AtLimit(t *testing.T) {
	outputs := make([]Output, config.MaxTxOutputs)
	for i := range outputs {
		outputs[i] = Output{Amount: 1, Script: types.Script{Type: types.ScriptTypeP2PKH}}
	}
	transaction := &Transaction{
		Inputs:  []Input{{PrevTxHash: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: outputs,
	}
	err := transaction.Validate()
	if errors.Is(err, ErrTooManyOutputs) {
		t.Errorf("exactly MaxTxOutputs should not trigger ErrTooManyOutputs")
	}
}

func TestValidate_ScriptDataTooLarge(t *testing.T) {
	transaction := &Transaction{
		Inputs: []Input{{PrevTxHash: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: []Output{{
			Amount: 1000,
			Script: types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, config.MaxScriptData+1)},
		}},
	}
	err := transaction.Validate()
	if !errors.Is(err, ErrScriptDataTooLarge) {
		t.Errorf("expected ErrScriptDataTooLarge, got: %v", err)
	}
}

func TestValidate_ScriptDataAtLimit(t *testing.T) {
	transaction := &Transaction{
		Inputs: []Input{{PrevTxHash: types.Hash{0x01}, Signature: []byte("s"), PublicKey: []byte("k")}},
		Outputs: []Output{{
			Amount: 1000,
			Script: types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, config.MaxScriptData)},
		}},
	}
	err := transaction.Validate()
	if errors.Is(err, ErrScriptDataTooLarge) {
		t.Errorf("exactly MaxScriptData should not trigger ErrScriptDataTooLarge")
	}
}

func TestValidate_TraceabilityViolation(t *testing.T) {
	key, _ := crypto.GenerateKey()
	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	transaction := NewBuilder().
		AddInput(prevOut, 1000).
		AddOutput(types.Address{0x42}, 1000, types.Script{Type: types.ScriptTypeP2PKH}).
		SetTraceability(types.Hash{0x99}, 1000). // Wrong prevTxHash.
		Build()
	transaction.Sign(key)

	err := transaction.Validate()
	if !errors.Is(err, ErrTraceabilityViolation) {
		t.Errorf("expected ErrTraceabilityViolation, got: %v", err)
	}
}

func TestValidate_TraceabilityAmountMismatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	transaction := NewBuilder().
		AddInput(prevOut, 1000).
		AddOutput(types.Address{0x42}, 1000, types.Script{Type: types.ScriptTypeP2PKH}).
		SetTraceability(prevOut.TxID, 2000). // Referenced amount doesn't match input.
		Build()
	transaction.Sign(key)

	err := transaction.Validate()
	if !errors.Is(err, ErrTraceabilityViolation) {
		t.Errorf("expected ErrTraceabilityViolation, got: %v", err)
	}
}

func TestValidate_CoinbaseExemptFromTraceability(t *testing.T) {
	coinbase := &Transaction{
		Kind:       KindCoinbase,
		Inputs:     []Input{{PrevTxHash: types.Hash{}, OutputIndex: 0}},
		Outputs:    []Output{{Amount: 50000, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)}}},
		PrevTxHash: types.Hash{0xAB}, // Mismatched, but exempt.
	}
	if err := coinbase.Validate(); err != nil {
		t.Errorf("coinbase should be exempt from traceability: %v", err)
	}
}
