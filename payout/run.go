// Package payout orchestrates a batch transfer: load the payout list,
// validate it, draft and sign a transaction spending the funding wallet,
// and broadcast it once an operator confirms.
package payout

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/hashicorp/go-hclog"

	"github.com/dan/btc-payout/wallet"
)

// ChainService is the view of the chain the engine needs: balance and UTXO
// lookups for the funding address, fee estimation, raw transaction fetch
// for legacy inputs and broadcast.
type ChainService interface {
	Balance(ctx context.Context, address string) (int64, error)
	ListUnspent(ctx context.Context, address string) ([]wallet.UTXO, error)
	RawTransaction(ctx context.Context, txid string) (string, error)
	FeeRate(ctx context.Context) (int64, error)
	Broadcast(ctx context.Context, txHex string) (string, error)
}

// Engine runs payouts for a single funding key.
type Engine struct {
	Chain   ChainService
	Keys    *wallet.KeyPair
	Log     hclog.Logger
	Confirm ConfirmFunc

	// FeeRate overrides the network estimate when positive.
	FeeRate int64
}

// Result reports the outcome of a transfer.
type Result struct {
	Status  Status
	Summary Summary
}

// Estimation reports the projected cost of a transfer without signing
// or touching the network beyond read-only queries.
type Estimation struct {
	NumInputs   int
	TotalPayout int64
	FeeRate     int64
	VirtualSize int64
	Fee         int64
	Change      int64
}

// ValidateTargets checks every payout target before any network call.
// Errors carry the CSV row number so the operator can fix the file.
func ValidateTargets(targets []Target, params *chaincfg.Params) error {
	for _, t := range targets {
		if t.AmountSats <= 0 {
			return fmt.Errorf("row %d: amount %d sats: %w", t.Row, t.AmountSats, ErrInvalidAmount)
		}
		if err := wallet.ValidateAddress(t.Address, params); err != nil {
			return fmt.Errorf("row %d: %q: %w", t.Row, t.Address, ErrInvalidAddress)
		}
	}
	return nil
}

// Transfer drafts, signs, confirms and broadcasts one payout transaction.
// On a declined confirmation the signed transaction is discarded and the
// result reports StatusCancelled with no error.
func (e *Engine) Transfer(ctx context.Context, targets []Target) (*Result, error) {
	log := e.logger()

	draft, feeRate, err := e.draft(ctx, targets)
	if err != nil {
		return nil, err
	}

	signed, err := wallet.Sign(draft, e.Keys)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	log.Debug("transaction signed", "txid", signed.TxID, "vsize", signed.VirtualSize)

	summary := Summary{
		FundingAddress: e.Keys.Address,
		NumInputs:      len(draft.Packet.Inputs),
		InputTxIDs:     draft.InputTxIDs(),
		TotalPayout:    draft.OutputTotal,
		Fee:            signed.Fee,
		FeeRate:        feeRate,
		Change:         signed.Change,
		ChangeAddress:  e.Keys.Address,
		VirtualSize:    signed.VirtualSize,
		TxID:           signed.TxID,
		Hex:            signed.Hex,
	}

	ok, err := e.Confirm(summary)
	if err != nil {
		return nil, fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		log.Info("broadcast declined, transaction discarded", "txid", signed.TxID)
		return &Result{Status: StatusCancelled, Summary: summary}, nil
	}

	txid, err := e.Chain.Broadcast(ctx, signed.Hex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
	log.Info("transaction broadcast",
		"txid", txid,
		"inputs", len(draft.Packet.Inputs),
		"outputs", len(targets),
		"fee", signed.Fee,
		"fee_rate", feeRate,
	)

	summary.TxID = txid
	return &Result{Status: StatusBroadcast, Summary: summary}, nil
}

// Estimate projects the fee and change for a transfer without signing.
func (e *Engine) Estimate(ctx context.Context, targets []Target) (*Estimation, error) {
	total, err := e.precheck(ctx, targets)
	if err != nil {
		return nil, err
	}

	feeRate, err := e.resolveFeeRate(ctx)
	if err != nil {
		return nil, err
	}

	selected, inputTotal, err := e.selectInputs(ctx, targets, total, feeRate)
	if err != nil {
		return nil, err
	}

	est := wallet.EstimateFee(len(selected), len(targets)+1, feeRate)
	return &Estimation{
		NumInputs:   len(selected),
		TotalPayout: total,
		FeeRate:     feeRate,
		VirtualSize: est.VirtualSize,
		Fee:         est.Fee,
		Change:      inputTotal - total - est.Fee,
	}, nil
}

// draft runs the read-only pipeline and assembles the funded packet.
func (e *Engine) draft(ctx context.Context, targets []Target) (*wallet.Draft, int64, error) {
	log := e.logger()

	total, err := e.precheck(ctx, targets)
	if err != nil {
		return nil, 0, err
	}

	feeRate, err := e.resolveFeeRate(ctx)
	if err != nil {
		return nil, 0, err
	}

	selected, inputTotal, err := e.selectInputs(ctx, targets, total, feeRate)
	if err != nil {
		return nil, 0, err
	}
	log.Debug("inputs selected",
		"count", len(selected),
		"input_total", inputTotal,
		"payout_total", total,
		"fee_rate", feeRate,
	)

	inputs, err := e.describeInputs(ctx, selected)
	if err != nil {
		return nil, 0, err
	}

	outs := make([]wallet.Output, len(targets))
	for i, t := range targets {
		outs[i] = wallet.Output{Address: t.Address, Value: t.AmountSats}
	}

	draft, err := wallet.BuildDraft(e.Keys, inputs, outs, feeRate)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build transaction: %w", err)
	}
	return draft, feeRate, nil
}

// precheck validates targets and aborts on an obviously unfunded run
// before any UTXO listing happens.
func (e *Engine) precheck(ctx context.Context, targets []Target) (int64, error) {
	if len(targets) == 0 {
		return 0, fmt.Errorf("no payout targets")
	}
	if err := ValidateTargets(targets, e.Keys.Params); err != nil {
		return 0, err
	}

	var total int64
	for _, t := range targets {
		total += t.AmountSats
	}

	balance, err := e.Chain.Balance(ctx, e.Keys.Address)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch balance: %w", err)
	}
	if total > balance {
		return 0, fmt.Errorf("%w: payout total %d sats exceeds balance %d sats",
			ErrInsufficientBalance, total, balance)
	}
	return total, nil
}

func (e *Engine) resolveFeeRate(ctx context.Context) (int64, error) {
	feeRate := e.FeeRate
	if feeRate <= 0 {
		var err error
		feeRate, err = e.Chain.FeeRate(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch fee rate: %w", err)
		}
	}
	if err := wallet.ValidateFeeRate(feeRate); err != nil {
		return 0, err
	}
	return feeRate, nil
}

func (e *Engine) selectInputs(ctx context.Context, targets []Target, total, feeRate int64) ([]wallet.UTXO, int64, error) {
	utxos, err := e.Chain.ListUnspent(ctx, e.Keys.Address)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list UTXOs: %w", err)
	}

	usable := wallet.FilterDust(utxos)
	if len(usable) == 0 {
		return nil, 0, fmt.Errorf("%w: %d UTXOs, none above dust", ErrNoUsableUTXO, len(utxos))
	}

	selected, inputTotal, err := wallet.SelectUTXOs(usable, total, len(targets), feeRate)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fund payout: %w", err)
	}
	return selected, inputTotal, nil
}

// describeInputs attaches previous transactions where the signing procedure
// needs them. Taproot inputs commit to the output directly, so the fetch is
// skipped entirely for a taproot wallet.
func (e *Engine) describeInputs(ctx context.Context, selected []wallet.UTXO) ([]wallet.InputDescriptor, error) {
	inputs := make([]wallet.InputDescriptor, len(selected))
	for i, u := range selected {
		inputs[i] = wallet.InputDescriptor{UTXO: u}
	}
	if e.Keys.Kind != wallet.KindP2PKH {
		return inputs, nil
	}

	for i, u := range selected {
		rawHex, err := e.Chain.RawTransaction(ctx, u.TxID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch previous tx %s: %w", u.TxID, err)
		}
		raw, err := hex.DecodeString(rawHex)
		if err != nil {
			return nil, fmt.Errorf("invalid previous tx hex for %s: %w", u.TxID, err)
		}
		prev := &wire.MsgTx{}
		if err := prev.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("failed to decode previous tx %s: %w", u.TxID, err)
		}
		inputs[i].PrevTx = prev
	}
	return inputs, nil
}

func (e *Engine) logger() hclog.Logger {
	if e.Log == nil {
		return hclog.NewNullLogger()
	}
	return e.Log
}
