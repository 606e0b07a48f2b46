package payout

import "errors"

// Failure taxonomy for a transfer run. Validation errors abort the run
// before any network cost; ErrNoUsableUTXO is a sentinel so callers can
// tell "nothing to spend" apart from a hard failure.
var (
	// ErrInvalidAddress means a payout row failed address validation.
	ErrInvalidAddress = errors.New("invalid payout address")

	// ErrInvalidAmount means a payout row carries a non-positive amount.
	ErrInvalidAmount = errors.New("invalid payout amount")

	// ErrInsufficientBalance means the payout total exceeds the queried
	// wallet balance. Detected before any UTXO is listed.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNoUsableUTXO means the UTXO set is empty or all dust.
	ErrNoUsableUTXO = errors.New("no usable utxo")

	// ErrBroadcastFailed wraps a broadcast transport error. Not retried;
	// no on-chain state has changed.
	ErrBroadcastFailed = errors.New("broadcast failed")
)
