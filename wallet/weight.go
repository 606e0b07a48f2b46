package wallet

import "fmt"

const (
	// DustLimit is the minimum spendable output value in satoshis.
	// UTXOs at or below this value are never selected.
	DustLimit = 546

	// Closed-form weight model, in bytes. Each input carries a single
	// 64-byte Schnorr signature witness; the legacy path is approximated
	// with the same witness constant. This is a known simplification
	// (legacy spends only happen on test networks) and it must stay
	// identical before and after selection so fee and change reconcile.
	txBaseSize       = 10
	txInputSize      = 70
	txOutputSize     = 58
	txWitnessPerIn   = 64
	witnessScaleDown = 4

	// MaxReasonableFeeRate is the maximum fee rate (sat/vB) the tool
	// accepts. Even during peak congestion fees rarely exceed 500.
	MaxReasonableFeeRate = 1000
)

// TxWeight returns the modeled transaction weight in weight units for the
// given input and output counts. This is an estimator, not a measurement
// of the serialized transaction.
func TxWeight(numInputs, numOutputs int) int64 {
	nonWitness := int64(txBaseSize) + int64(txInputSize)*int64(numInputs) + int64(txOutputSize)*int64(numOutputs)
	witness := int64(txWitnessPerIn) * int64(numInputs)
	return 3*nonWitness + witness
}

// TxVirtualSize returns ceil(weight/4) in vbytes.
func TxVirtualSize(numInputs, numOutputs int) int64 {
	weight := TxWeight(numInputs, numOutputs)
	return (weight + witnessScaleDown - 1) / witnessScaleDown
}

// FeeForRate returns the modeled fee in satoshis at the given rate.
func FeeForRate(numInputs, numOutputs int, feeRate int64) int64 {
	return TxVirtualSize(numInputs, numOutputs) * feeRate
}

// FeeEstimate captures one fee computation. It is produced at least twice
// per transfer: once before selection with a provisional single input, and
// once after selection with the real input count.
type FeeEstimate struct {
	FeeRate     int64
	VirtualSize int64
	Fee         int64
}

// EstimateFee computes the fee estimate for the given shape and rate.
func EstimateFee(numInputs, numOutputs int, feeRate int64) FeeEstimate {
	vsize := TxVirtualSize(numInputs, numOutputs)
	return FeeEstimate{
		FeeRate:     feeRate,
		VirtualSize: vsize,
		Fee:         vsize * feeRate,
	}
}

// ValidateFeeRate rejects rates outside [1, MaxReasonableFeeRate].
func ValidateFeeRate(feeRate int64) error {
	if feeRate < 1 {
		return fmt.Errorf("fee rate %d sat/vB is below the minimum of 1", feeRate)
	}
	if feeRate > MaxReasonableFeeRate {
		return fmt.Errorf("fee rate %d sat/vB exceeds safety limit of %d sat/vB - this would be extremely expensive",
			feeRate, MaxReasonableFeeRate)
	}
	return nil
}
