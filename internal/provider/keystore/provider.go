// Package keystore implements a local software wallet provider. Mnemonics are
// stored age-encrypted on disk, keys are derived along BIP44 and messages are
// signed with the EIP-191 personal message scheme.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mrz1836/estatelink/internal/provider"
	"github.com/mrz1836/estatelink/internal/vault"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// Name is the provider name reported to the session.
const Name = "keystore"

// chainKey is the address group the keystore reports.
const chainKey = "eth"

// ErrPromptAborted is returned by prompters when the user abandons a prompt.
var ErrPromptAborted = errors.New("prompt aborted")

// Approval describes a signing request shown to the user.
type Approval struct {
	Method  string
	Address string
	Message string
}

// Prompter collects keystore passwords and signing approval from the user.
type Prompter interface {
	Password(ctx context.Context, keystore string) ([]byte, error)
	Approve(ctx context.Context, req Approval) (bool, error)
}

// Options configure a Provider.
type Options struct {
	Dir       string
	Keystore  string
	Account   uint32
	Index     uint32
	StatePath string
	Prompter  Prompter
}

// Provider is a provider.Provider backed by a local keystore.
type Provider struct {
	store    *Store
	keystore string
	account  uint32
	index    uint32
	prompter Prompter
	storage  *provider.FileStorage

	mu       sync.Mutex
	unlocked *Account
}

// New creates a keystore provider.
func New(opts Options) *Provider {
	return &Provider{
		store:    NewStore(opts.Dir),
		keystore: opts.Keystore,
		account:  opts.Account,
		index:    opts.Index,
		prompter: opts.Prompter,
		storage:  provider.NewFileStorage(opts.StatePath),
	}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return Name }

// Connect unlocks the keystore and links its derived address.
func (p *Provider) Connect(ctx context.Context) (*provider.Addresses, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, err := p.unlockLocked(ctx)
	if err != nil {
		return nil, err
	}

	addrs := provider.NewAddresses(chainKey, provider.AddressEntry{
		Address:   acct.Address,
		PublicKey: acct.PublicKey,
	})
	if err := p.storage.Save(addrs); err != nil {
		return nil, err
	}
	return addrs, nil
}

// Disconnect wipes the unlocked key and the stored address.
func (p *Provider) Disconnect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.unlocked.Destroy()
	p.unlocked = nil
	return p.storage.Clear()
}

// IsConnected reports whether a linked address is stored.
func (p *Provider) IsConnected(_ context.Context) bool {
	addrs, err := p.storage.Load()
	return err == nil && !addrs.Empty()
}

// LocalStorage returns the stored addresses.
func (p *Provider) LocalStorage(_ context.Context) (*provider.Addresses, error) {
	return p.storage.Load()
}

// Request handles personal_sign. The keystore is unlocked on demand when the
// link was restored from storage.
func (p *Provider) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if method != provider.MethodPersonalSign {
		return nil, linkerr.WithDetails(linkerr.ErrUnsupportedMethod, map[string]string{
			"method":   method,
			"provider": Name,
		})
	}

	sp, err := provider.DecodeSignParams(params)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, err := p.unlockLocked(ctx)
	if err != nil {
		return nil, err
	}

	if sp.Address != "" && !strings.EqualFold(sp.Address, acct.Address) {
		return nil, linkerr.WithDetails(linkerr.ErrInvalidInput, map[string]string{
			"requested": sp.Address,
			"unlocked":  acct.Address,
		})
	}

	ok, err := p.prompter.Approve(ctx, Approval{Method: method, Address: acct.Address, Message: sp.Message})
	if err != nil {
		return nil, mapPromptError(err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: signature declined", provider.ErrUserRejected)
	}

	sig, err := acct.SignText([]byte(sp.Message))
	if err != nil {
		return nil, err
	}

	return json.Marshal(provider.SignResult{
		Signature: hexutil.Encode(sig),
		PublicKey: acct.PublicKey,
	})
}

// Close wipes any unlocked key without touching stored state.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlocked.Destroy()
	p.unlocked = nil
}

// unlockLocked returns the unlocked account, prompting for the password when
// needed. Callers hold p.mu.
func (p *Provider) unlockLocked(ctx context.Context) (*Account, error) {
	if p.unlocked != nil {
		return p.unlocked, nil
	}
	if p.prompter == nil {
		return nil, linkerr.WithSuggestion(linkerr.ErrGeneral, "the keystore provider needs an interactive terminal")
	}

	password, err := p.prompter.Password(ctx, p.keystore)
	if err != nil {
		return nil, mapPromptError(err)
	}
	defer vault.Zero(password)

	mnemonic, err := p.store.Unlock(p.keystore, password)
	if err != nil {
		return nil, err
	}
	defer mnemonic.Destroy()

	acct, err := DeriveAccount(string(mnemonic.Bytes()), p.account, p.index)
	if err != nil {
		return nil, err
	}
	p.unlocked = acct
	return acct, nil
}

func mapPromptError(err error) error {
	if errors.Is(err, ErrPromptAborted) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", provider.ErrUserRejected, err)
	}
	return err
}

var _ provider.Provider = (*Provider)(nil)
