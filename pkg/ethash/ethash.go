// Package ethash implements the epoch-seeded cache/dataset proof-of-work
// used by the POW_ETHASH block kind: per-epoch cache generation, dataset
// item derivation, and the Hashimoto light/full mixing function.
package ethash

import (
	"encoding/binary"
	"math/big"

	"github.com/gxchain/gxcd/pkg/crypto"
)

const (
	// EpochLength is the number of blocks per epoch.
	EpochLength = 30000

	cacheInitBytes    = 1 << 24 // 16 MiB
	cacheGrowthBytes  = 1 << 17 // 128 KiB per epoch
	datasetInitBytes  = 1 << 30 // 1 GiB
	datasetGrowth     = 1 << 23 // 8 MiB per epoch
	hashBytes         = 64     // bytes per cache/dataset item
	cacheRounds       = 3      // RandMemoHash rounds
	datasetParents    = 256    // FNV mixes per dataset item
	mixBytes          = 128    // bytes in the mix state
	fnvPrime          = 0x01000193
	wordsPerHash      = hashBytes / 4
	mixWords          = mixBytes / 4
	hashimotoAccesses = 64
)

// Epoch returns the epoch number for block height n.
func Epoch(n uint64) uint64 {
	return n / EpochLength
}

// isPrime reports whether n is prime, using trial division (cache/dataset
// sizes are small enough in item-count terms that this is fast).
func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for i := uint64(3); i*i <= n; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}

// CacheSize returns the cache size in bytes for the given epoch, walking
// down from the initial size in steps of 2*hashBytes until the item count
// is prime.
func CacheSize(epoch uint64) uint64 {
	size := uint64(cacheInitBytes + cacheGrowthBytes*epoch - hashBytes)
	for !isPrime(size / hashBytes) {
		size -= 2 * hashBytes
	}
	return size
}

// DatasetSize returns the full dataset size in bytes for the given epoch,
// walking down from the initial size in steps of 2*mixBytes until the item
// count is prime.
func DatasetSize(epoch uint64) uint64 {
	size := uint64(datasetInitBytes + datasetGrowth*epoch - mixBytes)
	for !isPrime(size / mixBytes) {
		size -= 2 * mixBytes
	}
	return size
}

// SeedHash returns the epoch seed: Keccak256 applied repeatedly to a
// 32-byte zero seed, once per epoch.
func SeedHash(epoch uint64) [32]byte {
	var seed [32]byte
	for i := uint64(0); i < epoch; i++ {
		seed = crypto.Keccak256(seed[:])
	}
	return seed
}

// Cache is the per-epoch light-verification cache.
type Cache struct {
	Epoch uint64
	items [][hashBytes]byte
}

// GenerateCache builds the cache for the given epoch: a sequential Keccak
// chain seeding CacheSize(epoch)/hashBytes items, followed by cacheRounds
// passes of RandMemoHash.
func GenerateCache(epoch uint64) *Cache {
	size := CacheSize(epoch)
	n := int(size / hashBytes)
	seed := SeedHash(epoch)

	items := make([][hashBytes]byte, n)
	items[0] = keccak512(seed[:])
	for i := 1; i < n; i++ {
		items[i] = keccak512(items[i-1][:])
	}

	for round := 0; round < cacheRounds; round++ {
		for i := 0; i < n; i++ {
			srcIdx := (uint32(i) - 1 + uint32(n)) % uint32(n)
			dstIdx := binary.LittleEndian.Uint32(items[i][:4]) % uint32(n)
			var mixed [hashBytes]byte
			for b := 0; b < hashBytes; b++ {
				mixed[b] = items[srcIdx][b] ^ items[dstIdx][b]
			}
			items[i] = keccak512(mixed[:])
		}
	}
	return &Cache{Epoch: epoch, items: items}
}

func fnv(a, b uint32) uint32 {
	return a*fnvPrime ^ b
}

// datasetItem derives dataset item i from the cache, per the standard
// Ethash generation rule: seed from cache[i mod n], XOR the index into the
// first word, Keccak, then datasetParents FNV mixing rounds pulling
// further cache entries, then a final Keccak.
func datasetItem(c *Cache, i uint32) [hashBytes]byte {
	n := uint32(len(c.items))
	mix := c.items[i%n]
	mix32 := bytesToWords(mix[:])
	mix32[0] ^= i
	mix = wordsToBytes(mix32)
	mix = keccak512(mix[:])

	mixW := bytesToWords(mix[:])
	for j := uint32(0); j < datasetParents; j++ {
		parentIdx := fnv(i^j, mixW[j%wordsPerHash]) % n
		parent := c.items[parentIdx]
		parentW := bytesToWords(parent[:])
		for k := range mixW {
			mixW[k] = fnv(mixW[k], parentW[k])
		}
	}
	out := wordsToBytes(mixW)
	return keccak512(out[:])
}

func bytesToWords(b []byte) [wordsPerHash]uint32 {
	var w [wordsPerHash]uint32
	for i := range w {
		w[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return w
}

func wordsToBytes(w [wordsPerHash]uint32) [hashBytes]byte {
	var b [hashBytes]byte
	for i, v := range w {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

func keccak512(data []byte) [hashBytes]byte {
	// Keccak256 is used twice to widen to a 64-byte digest: the high and
	// low halves are independently derived Keccak streams distinguished
	// by a domain-separating suffix byte, avoiding a second hash primitive.
	lo := crypto.Keccak256(data, []byte{0x00})
	hi := crypto.Keccak256(data, []byte{0x01})
	var out [hashBytes]byte
	copy(out[:32], lo[:])
	copy(out[32:], hi[:])
	return out
}

// Dataset is the pre-generated full dataset used for mining (full mode).
type Dataset struct {
	Epoch uint64
	items [][hashBytes]byte
}

// GenerateDataset builds the full dataset for the given epoch from its
// cache. This is memory- and CPU-heavy and intended for miners, not for
// header verification (which uses HashimotoLight).
func GenerateDataset(c *Cache, epoch uint64) *Dataset {
	size := DatasetSize(epoch)
	n := uint32(size / hashBytes)
	items := make([][hashBytes]byte, n)
	for i := uint32(0); i < n; i++ {
		items[i] = datasetItem(c, i)
	}
	return &Dataset{Epoch: epoch, items: items}
}

// Result is the output of a Hashimoto hash: the 32-byte Keccak result used
// for the difficulty comparison, and the 32-byte compressed mix digest
// stored in the block header as mixHash.
type Result struct {
	Result [32]byte
	Mix    [32]byte
}

func hashimoto(seedHash [32]byte, lookup func(i uint32) [hashBytes]byte, datasetWords uint32) Result {
	mix := make([]uint32, mixWords)
	seedW := bytesToWords(seedHash[:])
	for i := range mix {
		mix[i] = seedW[i%wordsPerHash]
	}

	numFullPages := datasetWords / (mixWords)
	if numFullPages == 0 {
		numFullPages = 1
	}
	for i := uint32(0); i < hashimotoAccesses; i++ {
		p := fnv(uint32(i)^seedW[0], mix[i%mixWords]) % numFullPages
		newData := make([]uint32, mixWords)
		for j := uint32(0); j < mixWords/wordsPerHash; j++ {
			item := lookup(p*(mixWords/wordsPerHash) + j)
			w := bytesToWords(item[:])
			copy(newData[j*wordsPerHash:], w[:])
		}
		for j := range mix {
			mix[j] = fnv(mix[j], newData[j])
		}
	}

	// Compress the 128-byte mix down to 32 bytes via grouped FNV folding.
	compressed := make([]uint32, mixWords/4)
	for i := range compressed {
		compressed[i] = fnv(fnv(fnv(mix[i*4], mix[i*4+1]), mix[i*4+2]), mix[i*4+3])
	}
	var compressedBytes [32]byte
	for i, v := range compressed {
		binary.LittleEndian.PutUint32(compressedBytes[i*4:], v)
	}

	result := crypto.Keccak256(seedHash[:], compressedBytes[:])
	return Result{Result: result, Mix: compressedBytes}
}

// HashimotoLight computes the Ethash result using on-demand cache lookups
// (datasetItem), suitable for header verification without the full
// dataset in memory.
func HashimotoLight(c *Cache, header []byte, nonce uint64) Result {
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], nonce)
	seed := crypto.Keccak256(header, nonceBuf[:])
	datasetWords := uint32(DatasetSize(c.Epoch) / 4)
	lookup := func(i uint32) [hashBytes]byte {
		return datasetItem(c, i/(wordsPerHash))
	}
	return hashimoto(seed, lookup, datasetWords)
}

// HashimotoFull computes the Ethash result using a pre-generated dataset.
func HashimotoFull(d *Dataset, header []byte, nonce uint64) Result {
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], nonce)
	seed := crypto.Keccak256(header, nonceBuf[:])
	datasetWords := uint32(len(d.items)) * wordsPerHash
	lookup := func(i uint32) [hashBytes]byte {
		idx := i / wordsPerHash
		if int(idx) >= len(d.items) {
			idx = idx % uint32(len(d.items))
		}
		return d.items[idx]
	}
	return hashimoto(seed, lookup, datasetWords)
}

// Verify recomputes the Hashimoto result for header+nonce using the light
// cache and checks it matches the recorded result and mix, and that the
// result is below target.
func Verify(c *Cache, header []byte, nonce uint64, wantResult, wantMix [32]byte, target *big.Int) bool {
	got := HashimotoLight(c, header, nonce)
	if got.Result != wantResult || got.Mix != wantMix {
		return false
	}
	resultInt := new(big.Int).SetBytes(got.Result[:])
	return resultInt.Cmp(target) < 0
}
