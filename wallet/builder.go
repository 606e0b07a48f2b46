package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrNegativeChange is returned when the selected inputs cannot cover the
// payout outputs plus the final fee. No transaction is emitted.
var ErrNegativeChange = errors.New("negative change")

const (
	// SequenceRBF is the input sequence that signals opt-in
	// Replace-By-Fee (BIP125).
	SequenceRBF = 0xFFFFFFFD
)

// Output is one payout recipient, value in satoshis.
type Output struct {
	Address string
	Value   int64
}

// InputDescriptor pairs a selected UTXO with the data needed to sign it.
// PrevTx carries the full referenced transaction and is required for the
// legacy kind only: legacy inputs are signed over the whole previous
// transaction, not just its output. Taproot inputs instead carry the
// funding output and the x-only internal key inside the packet.
type InputDescriptor struct {
	UTXO   UTXO
	PrevTx *wire.MsgTx
}

// Draft is the mutable accumulator for one transfer: a funded but unsigned
// packet plus the totals the summary and invariants are checked against.
// It is owned by exactly one transfer and never reused.
type Draft struct {
	Packet         *psbt.Packet
	Kind           string
	FundingAddress string
	InputTotal     int64
	OutputTotal    int64
	Fee            FeeEstimate
	Change         int64
}

// BuildDraft assembles the selected inputs and payout targets into a funded
// packet. The final fee is recomputed here with the actual input count and
// len(targets)+1 outputs (the change slot stays reserved so the selector's
// bound and the builder's arithmetic reconcile). Change goes back to the
// funding address; a zero change output is omitted rather than emitted as
// dust. There is never more than one change output.
func BuildDraft(kp *KeyPair, inputs []InputDescriptor, targets []Output, feeRate int64) (*Draft, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs selected")
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no payout targets")
	}

	fundingScript, err := kp.PayScript()
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)

	var inputTotal int64
	for _, in := range inputs {
		txHash, err := chainhash.NewHashFromStr(in.UTXO.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid txid %s: %w", in.UTXO.TxID, err)
		}

		txIn := wire.NewTxIn(wire.NewOutPoint(txHash, in.UTXO.Vout), nil, nil)
		txIn.Sequence = SequenceRBF
		tx.AddTxIn(txIn)
		inputTotal += in.UTXO.Value
	}

	var outputTotal int64
	for _, out := range targets {
		pkScript, err := PayScript(out.Address, kp.Params)
		if err != nil {
			return nil, fmt.Errorf("invalid payout address %s: %w", out.Address, err)
		}
		tx.AddTxOut(wire.NewTxOut(out.Value, pkScript))
		outputTotal += out.Value
	}

	// Final fee over the actual input count, with the change slot counted.
	fee := EstimateFee(len(inputs), len(targets)+1, feeRate)

	change := inputTotal - outputTotal - fee.Fee
	if change < 0 {
		return nil, fmt.Errorf("%w: inputs %d cannot cover outputs %d + fee %d",
			ErrNegativeChange, inputTotal, outputTotal, fee.Fee)
	}
	if change > 0 {
		tx.AddTxOut(wire.NewTxOut(change, fundingScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to create packet: %w", err)
	}

	proc, err := procedureForKind(kp.Kind)
	if err != nil {
		return nil, err
	}
	for i, in := range inputs {
		if err := proc.attachInput(packet, i, in, kp, fundingScript); err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
	}

	return &Draft{
		Packet:         packet,
		Kind:           kp.Kind,
		FundingAddress: kp.Address,
		InputTotal:     inputTotal,
		OutputTotal:    outputTotal,
		Fee:            fee,
		Change:         change,
	}, nil
}

// InputTxIDs lists the previous-output txids consumed by the draft, in
// input order.
func (d *Draft) InputTxIDs() []string {
	ids := make([]string, len(d.Packet.UnsignedTx.TxIn))
	for i, txIn := range d.Packet.UnsignedTx.TxIn {
		ids[i] = txIn.PreviousOutPoint.Hash.String()
	}
	return ids
}
