package tx

import (
	"math"
	"testing"

	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

func testP2PKHScript(addr types.Address) types.Script {
	return types.Script{Type: types.ScriptTypeP2PKH, Data: addr[:]}
}

func TestTransaction_Hash_Deterministic(t *testing.T) {
	transaction := &Transaction{
		Kind:    KindNormal,
		Inputs:  []Input{{PrevTxHash: types.Hash{0x01}, OutputIndex: 0, Amount: 1000}},
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}

	h1 := transaction.Hash()
	h2 := transaction.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestTransaction_Hash_ChangesWithContent(t *testing.T) {
	tx1 := &Transaction{
		Kind:    KindNormal,
		Inputs:  []Input{{PrevTxHash: types.Hash{0x01}, OutputIndex: 0, Amount: 1000}},
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}
	tx2 := &Transaction{
		Kind:    KindNormal,
		Inputs:  []Input{{PrevTxHash: types.Hash{0x01}, OutputIndex: 0, Amount: 1000}},
		Outputs: []Output{{Amount: 2000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}

	if tx1.Hash() == tx2.Hash() {
		t.Error("different transactions should have different hashes")
	}
}

func TestTransaction_Hash_IgnoresSignature(t *testing.T) {
	// The public key is set up front: SigningBytes covers it, while
	// signatures are excluded.
	transaction := &Transaction{
		Kind:    KindNormal,
		Inputs:  []Input{{PrevTxHash: types.Hash{0x01}, OutputIndex: 0, Amount: 1000, PublicKey: []byte("some key")}},
		Outputs: []Output{{Amount: 1000, Script: types.Script{Type: types.ScriptTypeP2PKH}}},
	}

	h1 := transaction.Hash()

	transaction.Inputs[0].Signature = []byte("some signature")

	h2 := transaction.Hash()

	if h1 != h2 {
		t.Error("Hash() should not change when signatures are added")
	}
}

func TestTransaction_TotalOutputValue(t *testing.T) {
	transaction := &Transaction{
		Outputs: []Output{
			{Amount: 1000},
			{Amount: 2000},
			{Amount: 3000},
		},
	}
	got, err := transaction.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if got != 6000 {
		t.Errorf("TotalOutputValue() = %d, want 6000", got)
	}
}

func TestTransaction_TotalOutputValue_Empty(t *testing.T) {
	transaction := &Transaction{}
	got, err := transaction.TotalOutputValue()
	if err != nil {
		t.Fatalf("TotalOutputValue() error: %v", err)
	}
	if got != 0 {
		t.Errorf("TotalOutputValue() empty = %d, want 0", got)
	}
}

func TestTransaction_TotalOutputValue_Overflow(t *testing.T) {
	transaction := &Transaction{
		Outputs: []Output{
			{Amount: math.MaxUint64},
			{Amount: 1},
		},
	}
	_, err := transaction.TotalOutputValue()
	if err == nil {
		t.Error("TotalOutputValue() should return error on overflow")
	}
}

func TestTransaction_RequiresTraceability(t *testing.T) {
	cases := []struct {
		kind TransactionKind
		want bool
	}{
		{KindNormal, true},
		{KindCoinbase, false},
		{KindStake, true},
		{KindUnstake, false},
		{KindReversal, false},
	}
	for _, c := range cases {
		transaction := &Transaction{Kind: c.kind}
		if got := transaction.RequiresTraceability(); got != c.want {
			t.Errorf("RequiresTraceability() for %s = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestBuilder_BuildAndSign(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := types.Address{0x01, 0x02, 0x03}

	prevOut := types.Outpoint{TxID: crypto.Hash([]byte("prev tx")), Index: 0}

	b := NewBuilder().
		AddInput(prevOut, 5000).
		AddOutput(addr, 5000, testP2PKHScript(addr)).
		SetTraceability(prevOut.TxID, 5000)

	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	transaction := b.Build()

	if len(transaction.Inputs) != 1 {
		t.Fatalf("expected 1 input, got %d", len(transaction.Inputs))
	}
	if len(transaction.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(transaction.Outputs))
	}
	if transaction.Kind != KindNormal {
		t.Errorf("kind = %s, want NORMAL", transaction.Kind)
	}

	if err := transaction.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := transaction.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
}

func TestBuilder_MultipleInputsOutputs(t *testing.T) {
	key, _ := crypto.GenerateKey()

	b := NewBuilder().
		AddInput(types.Outpoint{TxID: types.Hash{0x01}, Index: 0}, 3000).
		AddInput(types.Outpoint{TxID: types.Hash{0x02}, Index: 1}, 2000).
		AddOutput(types.Address{0x10}, 3000, types.Script{Type: types.ScriptTypeP2PKH}).
		AddOutput(types.Address{0x20}, 2000, types.Script{Type: types.ScriptTypeP2PKH}).
		SetTraceability(types.Hash{0x01}, 3000)

	b.Sign(key)
	transaction := b.Build()

	if len(transaction.Inputs) != 2 {
		t.Errorf("input count = %d, want 2", len(transaction.Inputs))
	}
	if len(transaction.Outputs) != 2 {
		t.Errorf("output count = %d, want 2", len(transaction.Outputs))
	}
	if err := transaction.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := transaction.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
}

func TestBuilder_SignMulti(t *testing.T) {
	key1, _ := crypto.GenerateKey()
	key2, _ := crypto.GenerateKey()

	addr1 := crypto.AddressFromPubKey(key1.PublicKey())
	addr2 := crypto.AddressFromPubKey(key2.PublicKey())

	out1 := types.Outpoint{TxID: crypto.Hash([]byte("tx1")), Index: 0}
	out2 := types.Outpoint{TxID: crypto.Hash([]byte("tx2")), Index: 1}

	b := NewBuilder().
		AddInput(out1, 3000).
		AddInput(out2, 2000).
		AddOutput(types.Address{0x99}, 3000, testP2PKHScript(types.Address{0x99})).
		SetTraceability(out1.TxID, 3000)

	signers := map[types.Address]*crypto.PrivateKey{
		addr1: key1,
		addr2: key2,
	}
	outpointAddr := map[types.Outpoint]types.Address{
		out1: addr1,
		out2: addr2,
	}

	if err := b.SignMulti(signers, outpointAddr); err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}

	transaction := b.Build()

	if err := transaction.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	if err := transaction.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}

	if string(transaction.Inputs[0].PublicKey) == string(transaction.Inputs[1].PublicKey) {
		t.Error("inputs should have different pubkeys")
	}
}

func TestBuilder_SignMulti_SameKeyTwoInputs(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	out1 := types.Outpoint{TxID: crypto.Hash([]byte("tx1")), Index: 0}
	out2 := types.Outpoint{TxID: crypto.Hash([]byte("tx2")), Index: 0}

	b := NewBuilder().
		AddInput(out1, 2500).
		AddInput(out2, 2500).
		AddOutput(types.Address{0x99}, 5000, testP2PKHScript(types.Address{0x99})).
		SetTraceability(out1.TxID, 2500)

	signers := map[types.Address]*crypto.PrivateKey{addr: key}
	outpointAddr := map[types.Outpoint]types.Address{
		out1: addr,
		out2: addr,
	}

	if err := b.SignMulti(signers, outpointAddr); err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}

	transaction := b.Build()
	if err := transaction.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}

	if string(transaction.Inputs[0].Signature) != string(transaction.Inputs[1].Signature) {
		t.Error("same key should produce same signature (cache)")
	}
}

func TestBuilder_SignMulti_MissingAddress(t *testing.T) {
	key, _ := crypto.GenerateKey()
	addr := crypto.AddressFromPubKey(key.PublicKey())

	out1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}

	b := NewBuilder().
		AddInput(out1, 1000).
		AddOutput(types.Address{}, 1000, testP2PKHScript(types.Address{}))

	signers := map[types.Address]*crypto.PrivateKey{addr: key}
	outpointAddr := map[types.Outpoint]types.Address{}

	if err := b.SignMulti(signers, outpointAddr); err == nil {
		t.Fatal("expected error for missing address mapping")
	}
}

func TestBuilder_SignMulti_MissingSigner(t *testing.T) {
	out1 := types.Outpoint{TxID: types.Hash{0x01}, Index: 0}
	addr := types.Address{0xAA}

	b := NewBuilder().
		AddInput(out1, 1000).
		AddOutput(types.Address{}, 1000, testP2PKHScript(types.Address{}))

	signers := map[types.Address]*crypto.PrivateKey{}
	outpointAddr := map[types.Outpoint]types.Address{out1: addr}

	if err := b.SignMulti(signers, outpointAddr); err == nil {
		t.Fatal("expected error for missing signer")
	}
}
