package tx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

// mockUTXOProvider is a simple in-memory UTXO provider for testing.
type mockUTXOProvider struct {
	utxos map[types.Outpoint]mockUTXO
}

type mockUTXO struct {
	value  uint64
	script types.Script
}

func newMockProvider() *mockUTXOProvider {
	return &mockUTXOProvider{utxos: make(map[types.Outpoint]mockUTXO)}
}

func (m *mockUTXOProvider) add(op types.Outpoint, value uint64, script types.Script) {
	m.utxos[op] = mockUTXO{value: value, script: script}
}

func (m *mockUTXOProvider) GetUTXO(op types.Outpoint) (uint64, types.Script, error) {
	u, ok := m.utxos[op]
	if !ok {
		return 0, types.Script{}, fmt.Errorf("not found")
	}
	return u.value, u.script, nil
}

func (m *mockUTXOProvider) HasUTXO(op types.Outpoint) bool {
	_, ok := m.utxos[op]
	return ok
}

func addressFromKey(key *crypto.PrivateKey) types.Address {
	return crypto.AddressFromPubKey(key.PublicKey())
}

func TestValidateWithUTXOs_Valid(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := addressFromKey(key)

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]})

	transaction := NewBuilder().
		AddInput(prevOut, 5000).
		SetTraceability(prevOut.TxID, 5000).
		AddOutput(types.Address{0x42}, 4000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		SetFee(1000).
		Build()
	transaction.Sign(key)

	fee, err := transaction.ValidateWithUTXOs(provider, 0)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 1000 {
		t.Errorf("fee = %d, want 1000", fee)
	}
}

func TestValidateWithUTXOs_ZeroFee(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := addressFromKey(key)

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 3000, types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]})

	transaction := NewBuilder().
		AddInput(prevOut, 3000).
		SetTraceability(prevOut.TxID, 3000).
		AddOutput(types.Address{0x42}, 3000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		Build()
	transaction.Sign(key)

	fee, err := transaction.ValidateWithUTXOs(provider, 0)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 0 {
		t.Errorf("fee = %d, want 0", fee)
	}
}

func TestValidateWithUTXOs_UnknownUtxo(t *testing.T) {
	key, _ := crypto.GenerateKey()

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider() // Empty — no UTXOs.

	transaction := NewBuilder().
		AddInput(prevOut, 1000).
		SetTraceability(prevOut.TxID, 1000).
		AddOutput(types.Address{0x42}, 1000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		Build()
	transaction.Sign(key)

	_, err := transaction.ValidateWithUTXOs(provider, 0)
	if !errors.Is(err, ErrUnknownUtxo) {
		t.Errorf("expected ErrUnknownUtxo, got: %v", err)
	}
}

func TestValidateWithUTXOs_InputAmountMismatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := addressFromKey(key)

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 1000, types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]})

	// Claimed input amount (5000) does not match the actual UTXO value (1000).
	transaction := NewBuilder().
		AddInput(prevOut, 5000).
		SetTraceability(prevOut.TxID, 5000).
		AddOutput(types.Address{0x42}, 2000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		Build()
	transaction.Sign(key)

	_, err := transaction.ValidateWithUTXOs(provider, 0)
	if !errors.Is(err, ErrInputAmountMismatch) {
		t.Errorf("expected ErrInputAmountMismatch, got: %v", err)
	}
}

func TestValidateWithUTXOs_ConservationViolation(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := addressFromKey(key)

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 1000, types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]})

	// outputs(2000) + fee(0) != inputs(1000).
	transaction := NewBuilder().
		AddInput(prevOut, 1000).
		SetTraceability(prevOut.TxID, 1000).
		AddOutput(types.Address{0x42}, 2000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		Build()
	transaction.Sign(key)

	_, err := transaction.ValidateWithUTXOs(provider, 0)
	if !errors.Is(err, ErrConservationViolation) {
		t.Errorf("expected ErrConservationViolation, got: %v", err)
	}
}

func TestValidateWithUTXOs_ScriptMismatch(t *testing.T) {
	key, _ := crypto.GenerateKey()
	wrongAddr := types.Address{0xff}

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, types.Script{Type: types.ScriptTypeP2PKH, Data: wrongAddr[:]})

	transaction := NewBuilder().
		AddInput(prevOut, 5000).
		SetTraceability(prevOut.TxID, 5000).
		AddOutput(types.Address{0x42}, 4000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		SetFee(1000).
		Build()
	transaction.Sign(key)

	_, err := transaction.ValidateWithUTXOs(provider, 0)
	if !errors.Is(err, ErrScriptMismatch) {
		t.Errorf("expected ErrScriptMismatch, got: %v", err)
	}
}

func TestValidateWithUTXOs_MultipleInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := addressFromKey(key)

	prevOut1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	prevOut2 := types.Outpoint{TxID: types.Hash{0x02}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut1, 3000, types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]})
	provider.add(prevOut2, 2000, types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]})

	transaction := NewBuilder().
		AddInput(prevOut1, 3000).
		AddInput(prevOut2, 2000).
		SetTraceability(prevOut1.TxID, 3000).
		AddOutput(types.Address{0x42}, 4500, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		SetFee(500).
		Build()
	transaction.Sign(key)

	fee, err := transaction.ValidateWithUTXOs(provider, 0)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 500 {
		t.Errorf("fee = %d, want 500", fee)
	}
}

func TestValidateWithUTXOs_InvalidSignature(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	addr2 := addressFromKey(key2)

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	// UTXO is locked to key2's address...
	provider.add(prevOut, 5000, types.Script{Type: types.ScriptTypeP2PKH, Data: addr2[:]})

	// ...but signed with key1. The P2PKH check catches the mismatch before
	// signature verification is even reached.
	transaction := NewBuilder().
		AddInput(prevOut, 5000).
		SetTraceability(prevOut.TxID, 5000).
		AddOutput(types.Address{0x42}, 4000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		SetFee(1000).
		Build()
	transaction.Sign(key1)

	_, err := transaction.ValidateWithUTXOs(provider, 0)
	if !errors.Is(err, ErrScriptMismatch) {
		t.Errorf("expected ErrScriptMismatch, got: %v", err)
	}
}

func TestValidateWithUTXOs_StructuralFailure(t *testing.T) {
	transaction := &Transaction{
		Kind:    KindNormal,
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	provider := newMockProvider()

	_, err := transaction.ValidateWithUTXOs(provider, 0)
	if !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got: %v", err)
	}
}

func TestVerifyP2PKH(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := addressFromKey(key)

	if err := verifyP2PKH(key.PublicKey(), addr[:]); err != nil {
		t.Errorf("valid P2PKH should pass: %v", err)
	}

	key2, _ := crypto.GenerateKey()
	if err := verifyP2PKH(key2.PublicKey(), addr[:]); !errors.Is(err, ErrScriptMismatch) {
		t.Errorf("expected ErrScriptMismatch for wrong pubkey, got: %v", err)
	}

	if err := verifyP2PKH(nil, addr[:]); !errors.Is(err, ErrMissingPubKey) {
		t.Errorf("expected ErrMissingPubKey, got: %v", err)
	}

	if err := verifyP2PKH(key.PublicKey(), []byte{0x01, 0x02}); !errors.Is(err, ErrScriptMismatch) {
		t.Errorf("expected ErrScriptMismatch for wrong length, got: %v", err)
	}
}

func TestValidateWithUTXOs_StakeSpend(t *testing.T) {
	key, _ := crypto.GenerateKey()
	pubKey := key.PublicKey()

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, types.Script{Type: types.ScriptTypeStake, Data: pubKey})

	transaction := NewBuilder().
		AddInput(prevOut, 5000).
		SetTraceability(prevOut.TxID, 5000).
		AddOutput(types.Address{0x42}, 4000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		SetFee(1000).
		Build()
	transaction.Sign(key)

	fee, err := transaction.ValidateWithUTXOs(provider, 0)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 1000 {
		t.Errorf("fee = %d, want 1000", fee)
	}
}

func TestValidateWithUTXOs_StakeSpend_WrongKey(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()
	pubKey1 := key1.PublicKey()

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, types.Script{Type: types.ScriptTypeStake, Data: pubKey1})

	transaction := NewBuilder().
		AddInput(prevOut, 5000).
		SetTraceability(prevOut.TxID, 5000).
		AddOutput(types.Address{0x42}, 4000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		SetFee(1000).
		Build()
	transaction.Sign(key2) // Signed with a different key than the stake lock.

	_, err := transaction.ValidateWithUTXOs(provider, 0)
	if !errors.Is(err, ErrScriptMismatch) {
		t.Errorf("expected ErrScriptMismatch, got: %v", err)
	}
}

func TestValidateWithUTXOs_StakedDelta(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := addressFromKey(key)

	prevOut := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	provider := newMockProvider()
	provider.add(prevOut, 5000, types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]})

	// 4000 returned as change + 1000 locked into a new stake (stakedDelta).
	transaction := NewBuilder().
		Kind(KindStake).
		AddInput(prevOut, 5000).
		SetTraceability(prevOut.TxID, 5000).
		AddOutput(types.Address{0x42}, 4000, types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, types.AddressSize)}).
		Build()
	transaction.Sign(key)

	fee, err := transaction.ValidateWithUTXOs(provider, 1000)
	if err != nil {
		t.Fatalf("ValidateWithUTXOs: %v", err)
	}
	if fee != 0 {
		t.Errorf("fee = %d, want 0", fee)
	}
}
