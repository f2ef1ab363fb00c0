package tx

import "github.com/kaelnet/chaincore/pkg/types"

// EstimateTxFee returns the minimum fee for a TOKEN transaction with the
// given number of inputs at the given fee rate (base units per byte),
// based on the SigningBytes layout (which excludes Sig).
func EstimateTxFee(numInputs int, feeRate uint64) uint64 {
	overhead := 2 + 2 + 4 + 4 + 4 + types.DestinationSize + 8 + 8 + 4
	const perInput = 32 + 1 // prev_hash + prev_index

	size := overhead + perInput*numInputs
	return uint64(size) * feeRate
}

// RequiredFee returns the exact minimum fee for a fully built transaction
// at the given fee rate (base units per byte of SigningBytes).
func RequiredFee(transaction *Transaction, feeRate uint64) uint64 {
	return uint64(len(transaction.SigningBytes())) * feeRate
}
