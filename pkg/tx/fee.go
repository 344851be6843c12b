package tx

// EstimateTxFee returns the minimum fee for a transaction with the given
// number of inputs and outputs at the given fee rate (base units per byte).
//
// The estimate is based on the SigningBytes layout (which excludes
// signatures but includes public keys):
//
//	kind(1) + inputCount(4) + inputs(perInput*n) + outputCount(4) + outputs(perOut*n)
//	  + prevTxHash(32) + referencedAmount(8) + fee(8) + timestamp(8) + proofHash(32)
//
// perInput assumes a 33-byte compressed public key. perOutput = 33
// (8 value + 1 type + 4 len + 20 P2PKH addr, no script data). Pass an
// optional extraOutputBytes to add extra bytes per output (e.g., 0 for
// plain P2PKH, or more for stake-locking scripts with larger data).
func EstimateTxFee(numInputs, numOutputs int, feeRate uint64, extraOutputBytes ...int) uint64 {
	const overhead = 1 + 4 + 4 + 32 + 8 + 8 + 8 + 32 // kind + inputCount + outputCount + trace fields
	const perInput = 32 + 4 + 8 + 4 + 33             // prevTxHash + outputIndex + amount + pubKeyLen + pubKey
	const perOutput = 20 + 8 + 1 + 4                 // address + amount + scriptType + scriptDataLen

	extra := 0
	if len(extraOutputBytes) > 0 {
		extra = extraOutputBytes[0]
	}

	size := overhead + perInput*numInputs + (perOutput+extra)*numOutputs
	return uint64(size) * feeRate
}

// RequiredFee returns the exact minimum fee for a fully built transaction
// at the given fee rate (base units per byte of SigningBytes). This is more
// accurate than EstimateTxFee for transactions with non-standard outputs
// (stake, registration, token).
func RequiredFee(transaction *Transaction, feeRate uint64) uint64 {
	return uint64(len(transaction.SigningBytes())) * feeRate
}
