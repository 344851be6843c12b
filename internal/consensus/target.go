package consensus

import "math/big"

// maxTarget is the 256-bit value used as the difficulty-1 target, mirroring
// arith_uint256's compact "bits" representation without reimplementing its
// packed exponent/mantissa encoding — difficulty here is carried as the
// spec's plain float64 rather than a compact 32-bit field, so the scaled
// 256-bit integer is derived directly by division.
var maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ComputeTarget returns the 256-bit target a block hash must be below to
// satisfy the given difficulty: maxTarget / difficulty, mirroring Bitcoin's
// difficulty-1 convention. difficulty must be >= 1.
func ComputeTarget(difficulty float64) *big.Int {
	if difficulty < 1 {
		difficulty = 1
	}
	// Scale into a rational via a fixed-point numerator to keep precision
	// for non-integer difficulties, then divide.
	const scale = 1 << 20
	scaledDiff := new(big.Int).SetInt64(int64(difficulty * scale))
	if scaledDiff.Sign() <= 0 {
		scaledDiff = big.NewInt(1)
	}
	num := new(big.Int).Mul(maxTarget, big.NewInt(scale))
	return new(big.Int).Div(num, scaledDiff)
}

// ChainWork returns the work contributed by a single block at the given
// difficulty: floor(difficulty * 1e6), accumulated across the chain for
// fork-choice comparisons.
func ChainWork(difficulty float64) *big.Int {
	const workScale = 1e6
	return new(big.Int).SetInt64(int64(difficulty * workScale))
}
