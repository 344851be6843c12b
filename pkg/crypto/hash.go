// Package crypto provides the cryptographic primitive set the ledger is
// built on: SHA-256/SHA-256d, RIPEMD-160, Keccak-256, BLAKE2b, Argon2id,
// and secp256k1 key generation/ECDSA signing.
package crypto

import (
	"crypto/sha256"

	"github.com/gxchain/gxcd/pkg/types"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // mandated primitive, not used for TLS
	"golang.org/x/crypto/sha3"
)

// Hash computes a single SHA-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// DoubleHash computes SHA256(SHA256(data)) ("SHA-256d"), the hash used for
// block headers and Merkle nodes.
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// Ripemd160 computes the RIPEMD-160 digest of data.
func Ripemd160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data) //nolint:errcheck // hash.Hash.Write never errors
	return h.Sum(nil)
}

// Keccak256 computes the original (pre-FIPS) Keccak-256 digest, the
// variant whose padding rule is 0x01 ... 0x80 rather than SHA-3's
// 0x06 ... 0x80. Used by the Ethash engine.
func Keccak256(data ...[]byte) types.Hash {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d) //nolint:errcheck
	}
	var out types.Hash
	h.Sum(out[:0])
	return out
}

// Blake2b computes a BLAKE2b digest of outLen bytes (<=64), optionally
// keyed. A zero-length key is treated as unkeyed, per RFC 7693.
func Blake2b(data []byte, outLen int, key []byte) ([]byte, error) {
	h, err := blake2b.New(outLen, key)
	if err != nil {
		return nil, err
	}
	h.Write(data) //nolint:errcheck
	return h.Sum(nil), nil
}

// Argon2idParams bundles the cost parameters for the Argon2id KDF.
type Argon2idParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultArgon2idParams returns conservative interactive-login-class
// parameters satisfying the single-lane safety rule memory >= 8*threads.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{Time: 3, Memory: 64 * 1024, Threads: 4}
}

// Argon2id derives outLen bytes from password and salt using Argon2id
// (RFC 9106). Returns an error if memory < 8*threads, the
// single-lane safety floor the spec requires.
func Argon2id(password, salt []byte, p Argon2idParams, outLen uint32) ([]byte, error) {
	if p.Memory < 8*uint32(p.Threads) {
		return nil, errInsufficientMemory
	}
	return argon2.IDKey(password, salt, p.Time, p.Memory, p.Threads, outLen), nil
}

var errInsufficientMemory = argon2MemoryError{}

type argon2MemoryError struct{}

func (argon2MemoryError) Error() string {
	return "argon2id: memory must be at least 8x the thread/lane count"
}

// AddressFromPubKey derives an address from a compressed public key:
// ripemd160(sha256(pubkey)), truncated to the first types.AddressHexLen
// hex characters (types.HexToAddress/Address.Hex enforce the truncation).
func AddressFromPubKey(pubKey []byte) types.Address {
	sh := Hash(pubKey)
	r := Ripemd160(sh[:])
	var addr types.Address
	copy(addr[:], r)
	return addr
}

// HashConcat hashes the concatenation of two hashes with SHA-256d. Used
// for Merkle tree node construction.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return DoubleHash(buf[:])
}
