package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/gxchain/gxcd/pkg/crypto"
	"github.com/gxchain/gxcd/pkg/types"
)

// Kind distinguishes the three ways a block's proof can be produced.
type Kind uint8

const (
	KindPowSHA256 Kind = iota
	KindPowEthash
	KindPoS
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindPowSHA256:
		return "POW_SHA256"
	case KindPowEthash:
		return "POW_ETHASH"
	case KindPoS:
		return "POS"
	default:
		return "UNKNOWN"
	}
}

// Header contains block metadata. Hash depends on Kind: POW_SHA256 uses
// SHA256d over the header fields; POW_ETHASH and POS use a single SHA256
// pass. The Ethash proof (MixHash) is checked by the consensus engine.
type Header struct {
	Kind                Kind          `json:"kind"`
	Height              uint32        `json:"height"`
	PrevHash            types.Hash    `json:"prevHash"`
	MerkleRoot          types.Hash    `json:"merkleRoot"`
	Timestamp           uint64        `json:"timestamp"`
	Nonce               uint64        `json:"nonce"`
	Difficulty          float64       `json:"difficulty"`
	Miner               types.Address `json:"miner"`
	Reward              uint64        `json:"reward"`
	ValidatorSignature  []byte        `json:"validatorSignature,omitempty"`
	MixHash             types.Hash    `json:"mixHash,omitempty"`
}

type headerJSON struct {
	Kind               Kind          `json:"kind"`
	Height             uint32        `json:"height"`
	PrevHash           types.Hash    `json:"prevHash"`
	MerkleRoot         types.Hash    `json:"merkleRoot"`
	Timestamp          uint64        `json:"timestamp"`
	Nonce              uint64        `json:"nonce"`
	Difficulty         float64       `json:"difficulty"`
	Miner              types.Address `json:"miner"`
	Reward             uint64        `json:"reward"`
	ValidatorSignature string        `json:"validatorSignature,omitempty"`
	MixHash            types.Hash    `json:"mixHash,omitempty"`
}

// MarshalJSON encodes the header with a hex-encoded validator signature.
func (h *Header) MarshalJSON() ([]byte, error) {
	j := headerJSON{
		Kind:       h.Kind,
		Height:     h.Height,
		PrevHash:   h.PrevHash,
		MerkleRoot: h.MerkleRoot,
		Timestamp:  h.Timestamp,
		Nonce:      h.Nonce,
		Difficulty: h.Difficulty,
		Miner:      h.Miner,
		Reward:     h.Reward,
		MixHash:    h.MixHash,
	}
	if h.ValidatorSignature != nil {
		j.ValidatorSignature = hex.EncodeToString(h.ValidatorSignature)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a header with a hex-encoded validator signature.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	h.Kind = j.Kind
	h.Height = j.Height
	h.PrevHash = j.PrevHash
	h.MerkleRoot = j.MerkleRoot
	h.Timestamp = j.Timestamp
	h.Nonce = j.Nonce
	h.Difficulty = j.Difficulty
	h.Miner = j.Miner
	h.Reward = j.Reward
	h.MixHash = j.MixHash
	if j.ValidatorSignature != "" {
		b, err := hex.DecodeString(j.ValidatorSignature)
		if err != nil {
			return err
		}
		h.ValidatorSignature = b
	}
	return nil
}

// Hash computes the block hash according to Kind. Pure: depends only on
// header field values, so any mutation of a field invalidates a
// previously-cached hash — callers must not cache across mutation.
func (h *Header) Hash() types.Hash {
	switch h.Kind {
	case KindPowSHA256:
		return crypto.DoubleHash(h.SigningBytes())
	case KindPowEthash:
		// The Ethash result is computed and recorded by the miner/validator
		// (pkg/ethash.HashimotoLight/Full); the header stores it via MixHash
		// and the caller threads the Keccak result in separately. For a
		// pure structural hash (e.g. map keys, logging) we fall back to a
		// single SHA-256 pass identical to POS, since the authoritative
		// proof check lives in the consensus engine, not here.
		return crypto.Hash(h.SigningBytes())
	case KindPoS:
		return crypto.Hash(h.SigningBytes())
	default:
		return crypto.Hash(h.SigningBytes())
	}
}

// SigningBytes returns the canonical bytes covered by the block hash.
// Layout: kind(1) | height(4) | prevHash(32) | merkleRoot(32) | timestamp(8)
// | nonce(8) | difficulty(8, IEEE-754 bits) | miner(20) | reward(8) | mixHash(32)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 153)
	buf = append(buf, byte(h.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, h.Height)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(h.Difficulty))
	buf = append(buf, h.Miner[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Reward)
	buf = append(buf, h.MixHash[:]...)
	return buf
}

// HeaderBytes returns the bytes hashed for proof-of-work purposes: the
// header fields excluding nonce and mixHash, which the miner varies while
// searching for a valid proof. Used by internal/consensus's PoWEthash
// engine as the header input to the pkg/ethash Hashimoto functions.
func (h *Header) HeaderBytes() []byte {
	buf := make([]byte, 0, 113)
	buf = append(buf, byte(h.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, h.Height)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(h.Difficulty))
	buf = append(buf, h.Miner[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Reward)
	return buf
}

// String returns a short human-readable summary, useful in logs.
func (h *Header) String() string {
	return fmt.Sprintf("Header{kind=%s height=%d prev=%s merkle=%s}", h.Kind, h.Height, h.PrevHash, h.MerkleRoot)
}
