package payout

import (
	"bytes"
	"context"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/dan/btc-payout/wallet"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

const testTxID = "aa00000000000000000000000000000000000000000000000000000000000bb1"

type fakeChain struct {
	balance int64
	utxos   []wallet.UTXO
	feeRate int64
	rawTxs  map[string]string

	broadcastErr error

	listCalls      int
	feeRateCalls   int
	broadcastCalls int
	broadcastHex   string
}

func (f *fakeChain) Balance(ctx context.Context, address string) (int64, error) {
	return f.balance, nil
}

func (f *fakeChain) ListUnspent(ctx context.Context, address string) ([]wallet.UTXO, error) {
	f.listCalls++
	return f.utxos, nil
}

func (f *fakeChain) RawTransaction(ctx context.Context, txid string) (string, error) {
	raw, ok := f.rawTxs[txid]
	if !ok {
		return "", context.Canceled
	}
	return raw, nil
}

func (f *fakeChain) FeeRate(ctx context.Context) (int64, error) {
	f.feeRateCalls++
	return f.feeRate, nil
}

func (f *fakeChain) Broadcast(ctx context.Context, txHex string) (string, error) {
	f.broadcastCalls++
	f.broadcastHex = txHex
	if f.broadcastErr != nil {
		return "", f.broadcastErr
	}
	return "broadcast-txid", nil
}

func testEngine(t *testing.T, chain *fakeChain) *Engine {
	t.Helper()
	kp, err := wallet.FromMnemonic(testMnemonic, "testnet4")
	require.NoError(t, err)

	return &Engine{
		Chain:   chain,
		Keys:    kp,
		Confirm: AlwaysConfirm,
	}
}

func TestTransfer(t *testing.T) {
	chain := &fakeChain{
		balance: 100_000,
		utxos:   []wallet.UTXO{{TxID: testTxID, Vout: 0, Value: 100_000}},
		feeRate: 2,
	}
	engine := testEngine(t, chain)

	targets := []Target{
		{Address: engine.Keys.Address, AmountSats: 50_000, Row: 2},
	}

	result, err := engine.Transfer(context.Background(), targets)
	require.NoError(t, err)
	require.Equal(t, StatusBroadcast, result.Status)

	require.Equal(t, int64(326), result.Summary.Fee)
	require.Equal(t, int64(49_674), result.Summary.Change)
	require.Equal(t, int64(2), result.Summary.FeeRate)
	require.Equal(t, int64(50_000), result.Summary.TotalPayout)
	require.Equal(t, "broadcast-txid", result.Summary.TxID)

	require.Equal(t, 1, chain.broadcastCalls)
	require.NotEmpty(t, chain.broadcastHex)

	// broadcast hex is a decodable transaction spending the selected UTXO
	raw, err := hex.DecodeString(chain.broadcastHex)
	require.NoError(t, err)
	var tx wire.MsgTx
	require.NoError(t, tx.Deserialize(bytes.NewReader(raw)))
	require.Len(t, tx.TxIn, 1)
	require.Equal(t, testTxID, tx.TxIn[0].PreviousOutPoint.Hash.String())
}

func TestTransferDeclined(t *testing.T) {
	chain := &fakeChain{
		balance: 100_000,
		utxos:   []wallet.UTXO{{TxID: testTxID, Vout: 0, Value: 100_000}},
		feeRate: 2,
	}
	engine := testEngine(t, chain)
	engine.Confirm = func(Summary) (bool, error) { return false, nil }

	targets := []Target{
		{Address: engine.Keys.Address, AmountSats: 50_000, Row: 2},
	}

	result, err := engine.Transfer(context.Background(), targets)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, result.Status)
	require.Zero(t, chain.broadcastCalls)
}

func TestTransferInsufficientBalance(t *testing.T) {
	chain := &fakeChain{
		balance: 40_000,
		utxos:   []wallet.UTXO{{TxID: testTxID, Vout: 0, Value: 100_000}},
		feeRate: 2,
	}
	engine := testEngine(t, chain)

	targets := []Target{
		{Address: engine.Keys.Address, AmountSats: 50_000, Row: 2},
	}

	_, err := engine.Transfer(context.Background(), targets)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	// the run aborts before any UTXO listing
	require.Zero(t, chain.listCalls)
}

func TestTransferAllDust(t *testing.T) {
	chain := &fakeChain{
		balance: 100_000,
		utxos: []wallet.UTXO{
			{TxID: testTxID, Vout: 0, Value: 546},
			{TxID: testTxID, Vout: 1, Value: 100},
		},
		feeRate: 2,
	}
	engine := testEngine(t, chain)

	targets := []Target{
		{Address: engine.Keys.Address, AmountSats: 500, Row: 2},
	}

	_, err := engine.Transfer(context.Background(), targets)
	require.ErrorIs(t, err, ErrNoUsableUTXO)
}

func TestTransferSelectionExhausted(t *testing.T) {
	// balance covers the payout but not the fee on top
	chain := &fakeChain{
		balance: 50_100,
		utxos:   []wallet.UTXO{{TxID: testTxID, Vout: 0, Value: 50_100}},
		feeRate: 2,
	}
	engine := testEngine(t, chain)

	targets := []Target{
		{Address: engine.Keys.Address, AmountSats: 50_000, Row: 2},
	}

	_, err := engine.Transfer(context.Background(), targets)
	require.ErrorIs(t, err, wallet.ErrInsufficientFunds)
}

func TestTransferValidation(t *testing.T) {
	chain := &fakeChain{balance: 100_000, feeRate: 2}
	engine := testEngine(t, chain)

	t.Run("zero amount", func(t *testing.T) {
		targets := []Target{
			{Address: engine.Keys.Address, AmountSats: 0, Row: 2},
		}
		_, err := engine.Transfer(context.Background(), targets)
		require.ErrorIs(t, err, ErrInvalidAmount)
		require.Contains(t, err.Error(), "row 2")
	})

	t.Run("negative amount", func(t *testing.T) {
		targets := []Target{
			{Address: engine.Keys.Address, AmountSats: -1, Row: 3},
		}
		_, err := engine.Transfer(context.Background(), targets)
		require.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("bad address", func(t *testing.T) {
		targets := []Target{
			{Address: "not-an-address", AmountSats: 1000, Row: 4},
		}
		_, err := engine.Transfer(context.Background(), targets)
		require.ErrorIs(t, err, ErrInvalidAddress)
		require.Contains(t, err.Error(), "row 4")
	})
}

func TestTransferBroadcastFailure(t *testing.T) {
	chain := &fakeChain{
		balance:      100_000,
		utxos:        []wallet.UTXO{{TxID: testTxID, Vout: 0, Value: 100_000}},
		feeRate:      2,
		broadcastErr: context.DeadlineExceeded,
	}
	engine := testEngine(t, chain)

	targets := []Target{
		{Address: engine.Keys.Address, AmountSats: 50_000, Row: 2},
	}

	_, err := engine.Transfer(context.Background(), targets)
	require.ErrorIs(t, err, ErrBroadcastFailed)
}

func TestTransferFeeRateOverride(t *testing.T) {
	chain := &fakeChain{
		balance: 100_000,
		utxos:   []wallet.UTXO{{TxID: testTxID, Vout: 0, Value: 100_000}},
		feeRate: 2,
	}
	engine := testEngine(t, chain)
	engine.FeeRate = 5

	targets := []Target{
		{Address: engine.Keys.Address, AmountSats: 50_000, Row: 2},
	}

	result, err := engine.Transfer(context.Background(), targets)
	require.NoError(t, err)
	require.Equal(t, int64(5), result.Summary.FeeRate)
	require.Equal(t, int64(5*163), result.Summary.Fee)
	require.Zero(t, chain.feeRateCalls)
}

func TestTransferLegacyFetchesPrevTxs(t *testing.T) {
	priv, _ := btcec.PrivKeyFromBytes([]byte{
		0x2a, 0x3b, 0x4c, 0x5d, 0x6e, 0x7f, 0x80, 0x91,
		0xa2, 0xb3, 0xc4, 0xd5, 0xe6, 0xf7, 0x08, 0x19,
		0x2a, 0x3b, 0x4c, 0x5d, 0x6e, 0x7f, 0x80, 0x91,
		0xa2, 0xb3, 0xc4, 0xd5, 0xe6, 0xf7, 0x08, 0x19,
	})
	wif, err := btcutil.NewWIF(priv, &chaincfg.TestNet3Params, true)
	require.NoError(t, err)
	kp, err := wallet.FromWIF(wif.String(), "testnet4")
	require.NoError(t, err)

	script, err := kp.PayScript()
	require.NoError(t, err)

	prev := wire.NewMsgTx(wire.TxVersion)
	prev.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	prev.AddTxOut(wire.NewTxOut(100_000, script))

	var buf bytes.Buffer
	require.NoError(t, prev.Serialize(&buf))
	prevTxID := prev.TxHash().String()

	chain := &fakeChain{
		balance: 100_000,
		utxos:   []wallet.UTXO{{TxID: prevTxID, Vout: 0, Value: 100_000}},
		feeRate: 2,
		rawTxs:  map[string]string{prevTxID: hex.EncodeToString(buf.Bytes())},
	}

	engine := &Engine{Chain: chain, Keys: kp, Confirm: AlwaysConfirm}
	targets := []Target{
		{Address: kp.Address, AmountSats: 50_000, Row: 2},
	}

	result, err := engine.Transfer(context.Background(), targets)
	require.NoError(t, err)
	require.Equal(t, StatusBroadcast, result.Status)
	require.Equal(t, 1, chain.broadcastCalls)
}

func TestEstimate(t *testing.T) {
	chain := &fakeChain{
		balance: 100_000,
		utxos:   []wallet.UTXO{{TxID: testTxID, Vout: 0, Value: 100_000}},
		feeRate: 2,
	}
	engine := testEngine(t, chain)

	targets := []Target{
		{Address: engine.Keys.Address, AmountSats: 50_000, Row: 2},
	}

	est, err := engine.Estimate(context.Background(), targets)
	require.NoError(t, err)

	require.Equal(t, 1, est.NumInputs)
	require.Equal(t, int64(50_000), est.TotalPayout)
	require.Equal(t, int64(2), est.FeeRate)
	require.Equal(t, int64(163), est.VirtualSize)
	require.Equal(t, int64(326), est.Fee)
	require.Equal(t, int64(49_674), est.Change)

	// estimate never signs or broadcasts
	require.Zero(t, chain.broadcastCalls)
}
