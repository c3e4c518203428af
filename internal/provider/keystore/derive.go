package keystore

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/mrz1836/estatelink/internal/vault"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// coinTypeETH is the SLIP-44 coin type for EVM accounts.
const coinTypeETH = 60

// DerivationPath returns the BIP44 path for account and index.
func DerivationPath(account, index uint32) string {
	return fmt.Sprintf("m/44'/%d'/%d'/0/%d", coinTypeETH, account, index)
}

// Account is an unlocked signing key and its public identity.
type Account struct {
	Address   string
	PublicKey string
	Path      string

	key *vault.SecureBytes
}

// DeriveAccount derives the key at m/44'/60'/account'/0/index from mnemonic.
// The private key is held in locked memory until Destroy.
func DeriveAccount(mnemonic string, account, index uint32) (*Account, error) {
	seed, err := bip39.NewSeedWithErrorChecking(NormalizeMnemonic(mnemonic), "")
	if err != nil {
		return nil, linkerr.WithCause(linkerr.ErrInvalidMnemonic, err)
	}
	defer vault.Zero(seed)

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("creating master key: %w", err)
	}

	for _, idx := range []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + coinTypeETH,
		bip32.FirstHardenedChild + account,
		0,
		index,
	} {
		if key, err = key.NewChildKey(idx); err != nil {
			return nil, fmt.Errorf("deriving %s: %w", DerivationPath(account, index), err)
		}
	}

	// go-bip32 can return fewer than 32 bytes when the scalar has leading zeros.
	raw := make([]byte, 32)
	copy(raw[32-len(key.Key):], key.Key)
	secure := vault.SecureBytesFromSlice(raw)
	vault.Zero(raw)

	priv, err := crypto.ToECDSA(secure.Bytes())
	if err != nil {
		secure.Destroy()
		return nil, fmt.Errorf("parsing derived key: %w", err)
	}

	return &Account{
		Address:   crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		PublicKey: hexutil.Encode(crypto.CompressPubkey(&priv.PublicKey)),
		Path:      DerivationPath(account, index),
		key:       secure,
	}, nil
}

// SignText signs message with the EIP-191 personal message prefix and
// returns a 65-byte signature with V in {27, 28}.
func (a *Account) SignText(message []byte) ([]byte, error) {
	priv, err := a.privateKey()
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(accounts.TextHash(message), priv)
	if err != nil {
		return nil, fmt.Errorf("signing message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Destroy wipes the private key.
func (a *Account) Destroy() {
	if a != nil && a.key != nil {
		a.key.Destroy()
	}
}

func (a *Account) privateKey() (*ecdsa.PrivateKey, error) {
	if a == nil || a.key == nil || a.key.Len() == 0 {
		return nil, linkerr.ErrNotConnected
	}
	return crypto.ToECDSA(a.key.Bytes())
}
