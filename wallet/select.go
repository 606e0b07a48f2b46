package wallet

import (
	"errors"
	"fmt"
)

// ErrInsufficientFunds is returned when the usable UTXO set is exhausted
// before covering the target amount plus the running fee estimate.
var ErrInsufficientFunds = errors.New("insufficient funds")

// UTXO is an unspent output of the funding address, as reported by the
// chain backend. Immutable once fetched.
type UTXO struct {
	TxID  string
	Vout  uint32
	Value int64
}

// FilterDust drops every UTXO at or below the dust limit, preserving the
// order of the remainder.
func FilterDust(utxos []UTXO) []UTXO {
	usable := make([]UTXO, 0, len(utxos))
	for _, utxo := range utxos {
		if utxo.Value > DustLimit {
			usable = append(usable, utxo)
		}
	}
	return usable
}

// SelectUTXOs accumulates UTXOs, in the order provided by the source, until
// they cover targetAmount plus the fee estimate for the running input count.
// This is deliberately first-fit: no sorting, no coin selection optimization.
// The fee bound reserves one output slot for change (numTargets + 1).
//
// Returns the selected inputs and their total value, or ErrInsufficientFunds
// when the set runs out before the bound is met.
func SelectUTXOs(utxos []UTXO, targetAmount int64, numTargets int, feeRate int64) ([]UTXO, int64, error) {
	usable := FilterDust(utxos)

	var selected []UTXO
	var totalInput int64
	numOutputs := numTargets + 1

	for _, utxo := range usable {
		selected = append(selected, utxo)
		totalInput += utxo.Value

		// Recompute the fee bound with the grown input count. Stop as
		// soon as the threshold is met; the excess becomes change.
		fee := FeeForRate(len(selected), numOutputs, feeRate)
		if totalInput >= targetAmount+fee {
			return selected, totalInput, nil
		}
	}

	fee := FeeForRate(len(selected), numOutputs, feeRate)
	return nil, 0, fmt.Errorf("%w: have %d, need %d + %d fee",
		ErrInsufficientFunds, totalInput, targetAmount, fee)
}
