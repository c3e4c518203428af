// Package provider defines the capability a wallet provider exposes to the
// session: connect, disconnect, cached-address lookup and a generic request
// call used for message signing.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Signing request methods.
const (
	MethodSTXSignMessage = "stx_signMessage"
	MethodPersonalSign   = "personal_sign"
)

// ErrUserRejected is returned by providers when the user cancels a connect
// prompt or declines a request. Providers map their native signals onto it.
var ErrUserRejected = errors.New("request rejected by user")

// ErrMalformedResponse indicates a provider returned a payload that could not be decoded.
var ErrMalformedResponse = errors.New("malformed provider response")

// Provider is the external wallet the session mediates with.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Connect links a wallet and returns its addresses. It may block for as
	// long as the user takes to answer a prompt.
	Connect(ctx context.Context) (*Addresses, error)

	// Disconnect unlinks the wallet and clears the provider's local storage.
	Disconnect(ctx context.Context) error

	// IsConnected reports whether the provider's local storage records a link.
	IsConnected(ctx context.Context) bool

	// LocalStorage returns the addresses cached by the provider.
	LocalStorage(ctx context.Context) (*Addresses, error)

	// Request performs a generic wallet RPC.
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// AddressEntry is one address exposed by a wallet.
type AddressEntry struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey,omitempty"`
}

// Addresses groups wallet addresses by chain key ("stx", "eth").
type Addresses struct {
	ByChain map[string][]AddressEntry `json:"addresses"`
}

// NewAddresses builds an Addresses with a single entry for chain.
func NewAddresses(chain string, entries ...AddressEntry) *Addresses {
	return &Addresses{ByChain: map[string][]AddressEntry{chain: entries}}
}

// First returns the first non-empty address for chain, or "".
func (a *Addresses) First(chain string) string {
	if a == nil {
		return ""
	}
	for _, e := range a.ByChain[chain] {
		if addr := strings.TrimSpace(e.Address); addr != "" {
			return addr
		}
	}
	return ""
}

// Empty reports whether no chain carries an address.
func (a *Addresses) Empty() bool {
	if a == nil {
		return true
	}
	for chain := range a.ByChain {
		if a.First(chain) != "" {
			return false
		}
	}
	return true
}

// SignParams are the parameters of a message-signing request.
type SignParams struct {
	Message string `json:"message"`
	Address string `json:"address,omitempty"`
}

// SignResult is the decoded result of a message-signing request.
type SignResult struct {
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey,omitempty"`
}

// DecodeSignResult parses a signing response. A bare JSON string is accepted
// as the signature, as returned by personal_sign style wallets.
func DecodeSignResult(raw json.RawMessage) (*SignResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: empty sign result", ErrMalformedResponse)
	}

	var sig string
	if err := json.Unmarshal(raw, &sig); err == nil {
		return &SignResult{Signature: sig}, nil
	}

	var res SignResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return &res, nil
}

// DecodeSignParams accepts either a SignParams value or anything that
// marshals into the same JSON shape.
func DecodeSignParams(params any) (SignParams, error) {
	switch p := params.(type) {
	case SignParams:
		return p, nil
	case *SignParams:
		if p == nil {
			return SignParams{}, fmt.Errorf("%w: nil sign params", ErrMalformedResponse)
		}
		return *p, nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return SignParams{}, fmt.Errorf("encoding sign params: %w", err)
	}
	var sp SignParams
	if err := json.Unmarshal(data, &sp); err != nil {
		return SignParams{}, fmt.Errorf("decoding sign params: %w", err)
	}
	return sp, nil
}
