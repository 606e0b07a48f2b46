package wallet

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// SignedTx is the immutable result of signing and finalizing a draft. The
// virtual size here is measured on the serialized transaction and is used
// for display only; it is independent of the modeled estimate.
type SignedTx struct {
	Tx          *wire.MsgTx
	TxID        string
	Hex         string
	InputTotal  int64
	OutputTotal int64
	Fee         int64
	Change      int64
	VirtualSize int64
}

// spendProcedure is the per-address-kind capability: how to fund an input
// with signing metadata and how to sign it. The implementation is chosen
// once from the funding address kind; every input in a run shares it, since
// the wallet has exactly one key.
type spendProcedure interface {
	attachInput(packet *psbt.Packet, idx int, in InputDescriptor, kp *KeyPair, fundingScript []byte) error
	signInput(packet *psbt.Packet, idx int, sigHashes *txscript.TxSigHashes, kp *KeyPair) error
}

func procedureForKind(kind string) (spendProcedure, error) {
	switch kind {
	case KindP2TR:
		return taprootSpend{}, nil
	case KindP2PKH:
		return legacySpend{}, nil
	default:
		return nil, fmt.Errorf("unsupported address kind: %s", kind)
	}
}

// taprootSpend implements BIP86 key-path spending. The signing library
// tweaks the internal key with the tagged taproot hash before producing
// the Schnorr signature.
type taprootSpend struct{}

func (taprootSpend) attachInput(packet *psbt.Packet, idx int, in InputDescriptor, kp *KeyPair, fundingScript []byte) error {
	packet.Inputs[idx].WitnessUtxo = wire.NewTxOut(in.UTXO.Value, fundingScript)
	packet.Inputs[idx].TaprootInternalKey = kp.XOnlyPubKey()
	packet.Inputs[idx].SighashType = txscript.SigHashDefault
	return nil
}

func (taprootSpend) signInput(packet *psbt.Packet, idx int, sigHashes *txscript.TxSigHashes, kp *KeyPair) error {
	in := &packet.Inputs[idx]

	sig, err := txscript.RawTxInTaprootSignature(
		packet.UnsignedTx,
		sigHashes,
		idx,
		in.WitnessUtxo.Value,
		in.WitnessUtxo.PkScript,
		nil, // key-path spend, no script tree
		txscript.SigHashDefault,
		kp.PrivKey,
	)
	if err != nil {
		return fmt.Errorf("failed to create Schnorr signature: %w", err)
	}

	in.TaprootKeySpendSig = sig
	return nil
}

// legacySpend implements pay-to-pubkey-hash spending. Legacy inputs commit
// to the whole referenced transaction, so the full previous transaction is
// carried in the packet.
type legacySpend struct{}

func (legacySpend) attachInput(packet *psbt.Packet, idx int, in InputDescriptor, kp *KeyPair, fundingScript []byte) error {
	if in.PrevTx == nil {
		return fmt.Errorf("missing previous transaction for legacy input")
	}

	outpoint := packet.UnsignedTx.TxIn[idx].PreviousOutPoint
	if in.PrevTx.TxHash() != outpoint.Hash {
		return fmt.Errorf("previous transaction %s does not match outpoint %s",
			in.PrevTx.TxHash(), outpoint.Hash)
	}
	if int(outpoint.Index) >= len(in.PrevTx.TxOut) {
		return fmt.Errorf("outpoint index %d out of range for previous transaction", outpoint.Index)
	}

	packet.Inputs[idx].NonWitnessUtxo = in.PrevTx
	packet.Inputs[idx].SighashType = txscript.SigHashAll
	return nil
}

func (legacySpend) signInput(packet *psbt.Packet, idx int, sigHashes *txscript.TxSigHashes, kp *KeyPair) error {
	in := &packet.Inputs[idx]
	prevOut := in.NonWitnessUtxo.TxOut[packet.UnsignedTx.TxIn[idx].PreviousOutPoint.Index]

	sig, err := txscript.RawTxInSignature(
		packet.UnsignedTx,
		idx,
		prevOut.PkScript,
		txscript.SigHashAll,
		kp.PrivKey,
	)
	if err != nil {
		return fmt.Errorf("failed to sign input: %w", err)
	}

	in.PartialSigs = append(in.PartialSigs, &psbt.PartialSig{
		PubKey:    kp.PubKey.SerializeCompressed(),
		Signature: sig,
	})
	return nil
}

// Sign signs every input of the draft with the key pair's spend procedure,
// finalizes all inputs into their consensus form, and extracts the wire
// transaction. The draft must not be touched afterwards.
func Sign(draft *Draft, kp *KeyPair) (*SignedTx, error) {
	packet := draft.Packet

	proc, err := procedureForKind(kp.Kind)
	if err != nil {
		return nil, err
	}

	fetcher, err := prevOutFetcher(packet)
	if err != nil {
		return nil, err
	}
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)

	for idx := range packet.Inputs {
		if err := proc.signInput(packet, idx, sigHashes, kp); err != nil {
			return nil, fmt.Errorf("input %d: %w", idx, err)
		}
	}

	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return nil, fmt.Errorf("failed to finalize: %w", err)
	}

	finalTx, err := psbt.Extract(packet)
	if err != nil {
		return nil, fmt.Errorf("failed to extract transaction: %w", err)
	}

	var buf bytes.Buffer
	if err := finalTx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	stripped := int64(finalTx.SerializeSizeStripped())
	total := int64(finalTx.SerializeSize())
	vsize := (3*stripped + total + 3) / 4

	return &SignedTx{
		Tx:          finalTx,
		TxID:        finalTx.TxHash().String(),
		Hex:         hex.EncodeToString(buf.Bytes()),
		InputTotal:  draft.InputTotal,
		OutputTotal: draft.OutputTotal,
		Fee:         draft.Fee.Fee,
		Change:      draft.Change,
		VirtualSize: vsize,
	}, nil
}

// prevOutFetcher maps every input's outpoint to its funding output, from
// either the witness UTXO or the carried previous transaction.
func prevOutFetcher(packet *psbt.Packet) (*txscript.MultiPrevOutFetcher, error) {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(packet.Inputs))
	for i, in := range packet.Inputs {
		outpoint := packet.UnsignedTx.TxIn[i].PreviousOutPoint
		switch {
		case in.WitnessUtxo != nil:
			prevOuts[outpoint] = in.WitnessUtxo
		case in.NonWitnessUtxo != nil:
			prevOuts[outpoint] = in.NonWitnessUtxo.TxOut[outpoint.Index]
		default:
			return nil, fmt.Errorf("input %d has no funding output attached", i)
		}
	}
	return txscript.NewMultiPrevOutFetcher(prevOuts), nil
}
