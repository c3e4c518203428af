package walletsession

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrz1836/estatelink/internal/provider"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// Supported chains.
const (
	ChainSTX = "stx"
	ChainETH = "eth"
)

// ChainProfile binds a chain key to the signing method used for the
// authentication challenge and an optional signature verifier.
type ChainProfile struct {
	Chain      string
	SignMethod string
	Verifier   Verifier
}

// ProfileFor returns the profile for chain.
func ProfileFor(chain string) (ChainProfile, error) {
	switch chain {
	case ChainSTX:
		return ChainProfile{Chain: ChainSTX, SignMethod: provider.MethodSTXSignMessage}, nil
	case ChainETH:
		return ChainProfile{Chain: ChainETH, SignMethod: provider.MethodPersonalSign, Verifier: EIP191Verifier{}}, nil
	default:
		return ChainProfile{}, linkerr.WithDetails(linkerr.ErrUnknownChain, map[string]string{
			"chain":     chain,
			"supported": ChainETH + ", " + ChainSTX,
		})
	}
}

// Challenge is the message a wallet signs to prove control of an address.
type Challenge struct {
	AppName  string
	Address  string
	IssuedAt time.Time
	Nonce    string
}

// Message renders the challenge text.
func (c Challenge) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s wants you to sign in with your wallet.\n\n", c.AppName)
	fmt.Fprintf(&b, "Address: %s\n", c.Address)
	fmt.Fprintf(&b, "Issued At: %s\n", c.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Nonce: %s", c.Nonce)
	return b.String()
}
