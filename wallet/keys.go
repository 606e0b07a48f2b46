package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/tyler-smith/go-bip39"
)

// Address kind constants. The funding address kind decides the signing
// procedure and the input metadata shape for the whole transaction.
const (
	KindP2PKH = "p2pkh"
	KindP2TR  = "p2tr"
)

// BIP86 derivation path for mnemonic-based keys: m/86'/1'/0'/0/0.
// The path is fixed; the tool funds exactly one address per run.
const (
	bip86Purpose  = 86
	bip86CoinType = 1
	bip86Account  = 0
	bip86Chain    = 0
	bip86Index    = 0

	MnemonicKeyPath = "m/86'/1'/0'/0/0"
)

// NetworkParams returns the chain configuration for the given network name
func NetworkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet4":
		// Testnet4 uses same address format as testnet3 (tb1... addresses)
		return &chaincfg.TestNet3Params, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network: %s (supported: mainnet, testnet4, signet)", network)
	}
}

// KeyPair is the single signing capability for a run. Kind tells the
// builder and signer which spend procedure applies to every input.
type KeyPair struct {
	PrivKey *btcec.PrivateKey
	PubKey  *btcec.PublicKey
	Kind    string
	Address string
	Params  *chaincfg.Params
}

// FromMnemonic derives the funding key from a BIP39 mnemonic at the fixed
// BIP86 path and returns it as a taproot key pair.
func FromMnemonic(mnemonic, network string) (*KeyPair, error) {
	params, err := NetworkParams(network)
	if err != nil {
		return nil, err
	}

	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}

	seed := bip39.NewSeed(mnemonic, "")
	key, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	for _, step := range []uint32{
		hdkeychain.HardenedKeyStart + bip86Purpose,
		hdkeychain.HardenedKeyStart + bip86CoinType,
		hdkeychain.HardenedKeyStart + bip86Account,
		bip86Chain,
		bip86Index,
	} {
		key, err = key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s: %w", MnemonicKeyPath, err)
		}
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to get EC private key: %w", err)
	}

	return newKeyPair(privKey, KindP2TR, params)
}

// FromWIF decodes a WIF-encoded private key and returns it as a legacy
// pay-to-pubkey-hash key pair.
func FromWIF(encoded, network string) (*KeyPair, error) {
	params, err := NetworkParams(network)
	if err != nil {
		return nil, err
	}

	wif, err := btcutil.DecodeWIF(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WIF: %w", err)
	}
	if !wif.IsForNet(params) {
		return nil, fmt.Errorf("WIF key is not for %s network", network)
	}

	return newKeyPair(wif.PrivKey, KindP2PKH, params)
}

func newKeyPair(privKey *btcec.PrivateKey, kind string, params *chaincfg.Params) (*KeyPair, error) {
	kp := &KeyPair{
		PrivKey: privKey,
		PubKey:  privKey.PubKey(),
		Kind:    kind,
		Params:  params,
	}

	addr, err := kp.encodeAddress()
	if err != nil {
		return nil, err
	}
	kp.Address = addr

	return kp, nil
}

func (kp *KeyPair) encodeAddress() (string, error) {
	switch kp.Kind {
	case KindP2TR:
		// BIP86 key-path only spending: internal key tweaked with no script tree
		taprootKey := txscript.ComputeTaprootKeyNoScript(kp.PubKey)
		addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(taprootKey), kp.Params)
		if err != nil {
			return "", fmt.Errorf("failed to create P2TR address: %w", err)
		}
		return addr.EncodeAddress(), nil
	case KindP2PKH:
		pubKeyHash := btcutil.Hash160(kp.PubKey.SerializeCompressed())
		addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, kp.Params)
		if err != nil {
			return "", fmt.Errorf("failed to create P2PKH address: %w", err)
		}
		return addr.EncodeAddress(), nil
	default:
		return "", fmt.Errorf("unsupported address kind: %s", kp.Kind)
	}
}

// XOnlyPubKey returns the 32-byte x-only internal key attached to taproot
// inputs as signing metadata.
func (kp *KeyPair) XOnlyPubKey() []byte {
	return schnorr.SerializePubKey(kp.PubKey)
}

// PayScript returns the scriptPubKey of the funding address.
func (kp *KeyPair) PayScript() ([]byte, error) {
	return PayScript(kp.Address, kp.Params)
}

// PayScript returns the scriptPubKey for an address.
func PayScript(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, fmt.Errorf("failed to decode address: %w", err)
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create scriptPubKey: %w", err)
	}

	return script, nil
}

// ValidateAddress checks if an address is valid for the given network
func ValidateAddress(address string, params *chaincfg.Params) error {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}

	if !addr.IsForNet(params) {
		return fmt.Errorf("address is not for %s network", params.Name)
	}

	return nil
}
