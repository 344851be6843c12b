package crypto

import (
	"bytes"
	"testing"

	"github.com/gxchain/gxcd/pkg/types"
)

func TestHash_Deterministic(t *testing.T) {
	data := []byte("gxc")
	a := Hash(data)
	b := Hash(data)
	if a != b {
		t.Errorf("Hash not deterministic: %x != %x", a, b)
	}
}

func TestDoubleHash(t *testing.T) {
	data := []byte("gxc")
	got := DoubleHash(data)
	first := Hash(data)
	want := Hash(first[:])
	if got != want {
		t.Errorf("DoubleHash = %x, want %x", got, want)
	}
}

func TestRipemd160_Length(t *testing.T) {
	out := Ripemd160([]byte("gxc"))
	if len(out) != 20 {
		t.Errorf("Ripemd160 length = %d, want 20", len(out))
	}
}

func TestKeccak256_DeterministicAndMultiPart(t *testing.T) {
	whole := Keccak256([]byte("gxc-ethash"))
	parts := Keccak256([]byte("gxc-"), []byte("ethash"))
	if whole != parts {
		t.Errorf("Keccak256 should hash concatenated parts identically to the whole: %x != %x", whole, parts)
	}
	if whole.IsZero() {
		t.Error("Keccak256 output should not be zero")
	}
}

func TestBlake2b_OutputLength(t *testing.T) {
	out, err := Blake2b([]byte("gxc"), 32, nil)
	if err != nil {
		t.Fatalf("Blake2b: %v", err)
	}
	if len(out) != 32 {
		t.Errorf("Blake2b length = %d, want 32", len(out))
	}
}

func TestBlake2b_Keyed(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 32)
	out1, err := Blake2b([]byte("gxc"), 32, key)
	if err != nil {
		t.Fatalf("Blake2b keyed: %v", err)
	}
	out2, _ := Blake2b([]byte("gxc"), 32, nil)
	if bytes.Equal(out1, out2) {
		t.Error("keyed and unkeyed BLAKE2b should differ")
	}
}

func TestArgon2id_MemoryFloor(t *testing.T) {
	p := Argon2idParams{Time: 1, Memory: 4, Threads: 4} // 4 < 8*4
	_, err := Argon2id([]byte("pw"), []byte("salt1234"), p, 32)
	if err == nil {
		t.Error("expected error when memory < 8*threads")
	}
}

func TestArgon2id_Deterministic(t *testing.T) {
	p := DefaultArgon2idParams()
	salt := []byte("fixed-salt-value")
	a, err := Argon2id([]byte("password"), salt, p, 32)
	if err != nil {
		t.Fatalf("Argon2id: %v", err)
	}
	b, _ := Argon2id([]byte("password"), salt, p, 32)
	if !bytes.Equal(a, b) {
		t.Error("Argon2id should be deterministic given identical inputs")
	}
}

func TestAddressFromPubKey_Length(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	addr := AddressFromPubKey(key.PublicKey())
	if addr.IsZero() {
		t.Error("derived address should not be zero")
	}
}

func TestHashConcat(t *testing.T) {
	a := types.Hash{0x01}
	b := types.Hash{0x02}
	got := HashConcat(a, b)
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	want := DoubleHash(buf[:])
	if got != want {
		t.Errorf("HashConcat = %x, want %x", got, want)
	}
}
