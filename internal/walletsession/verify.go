package walletsession

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/estatelink/internal/provider"
)

var (
	// ErrEmptySignature indicates the wallet answered a sign request without a signature.
	ErrEmptySignature = errors.New("wallet returned an empty signature")

	// ErrSignatureMismatch indicates a signature does not recover to the expected address.
	ErrSignatureMismatch = errors.New("signature does not match address")
)

// Verifier checks a challenge signature against the address that signed it.
type Verifier interface {
	Verify(address, message string, res *provider.SignResult) error
}

// EIP191Verifier recovers the signer of an EIP-191 personal message and
// compares it to the expected address.
type EIP191Verifier struct{}

// Verify implements Verifier.
func (EIP191Verifier) Verify(address, message string, res *provider.SignResult) error {
	sig, err := hexutil.Decode(res.Signature)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature is %d bytes", ErrSignatureMismatch, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}

	recovered := crypto.PubkeyToAddress(*pub).Hex()
	if !strings.EqualFold(recovered, address) {
		return fmt.Errorf("%w: recovered %s", ErrSignatureMismatch, recovered)
	}
	return nil
}
