// Package providertest provides a scripted, in-memory wallet provider for
// exercising the session without a real wallet.
package providertest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mrz1836/estatelink/internal/provider"
)

// Request records one Request call.
type Request struct {
	Method string
	Params provider.SignParams
}

// FakeProvider is a deterministic provider.Provider. Configure the exported
// fields before use; call counters are safe for concurrent reads.
type FakeProvider struct {
	// ConnectResult is returned from Connect.
	ConnectResult *provider.Addresses
	// ConnectErr, when set, is returned from Connect instead of ConnectResult.
	ConnectErr error
	// ConnectHook runs at the start of Connect; tests use it to block.
	ConnectHook func(ctx context.Context)

	// Stored is the provider's local storage.
	Stored *provider.Addresses
	// Linked is what IsConnected reports.
	Linked bool
	// LocalStorageErr, when set, is returned from LocalStorage.
	LocalStorageErr error

	// SignFunc answers Request; nil signs with a fixed signature.
	SignFunc func(method string, params provider.SignParams) (json.RawMessage, error)

	// DisconnectErr, when set, is returned from Disconnect after clearing state.
	DisconnectErr error

	mu              sync.Mutex
	connectCalls    int
	disconnectCalls int
	requests        []Request
}

// New returns a FakeProvider whose connect yields address for chain.
func New(chain, address string) *FakeProvider {
	return &FakeProvider{
		ConnectResult: provider.NewAddresses(chain, provider.AddressEntry{Address: address}),
	}
}

// Name implements provider.Provider.
func (f *FakeProvider) Name() string { return "fake" }

// Connect implements provider.Provider. A successful connect links the
// provider and stores non-empty results, as a real wallet SDK would. A ctx
// cancelled by the time the hook returns aborts the connect.
func (f *FakeProvider) Connect(ctx context.Context) (*provider.Addresses, error) {
	if f.ConnectHook != nil {
		f.ConnectHook(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if f.ConnectErr != nil {
		return nil, f.ConnectErr
	}
	f.Linked = true
	if !f.ConnectResult.Empty() {
		f.Stored = f.ConnectResult
	}
	return f.ConnectResult, nil
}

// Disconnect implements provider.Provider.
func (f *FakeProvider) Disconnect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectCalls++
	f.Linked = false
	f.Stored = nil
	return f.DisconnectErr
}

// IsConnected implements provider.Provider.
func (f *FakeProvider) IsConnected(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Linked
}

// LocalStorage implements provider.Provider.
func (f *FakeProvider) LocalStorage(_ context.Context) (*provider.Addresses, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LocalStorageErr != nil {
		return nil, f.LocalStorageErr
	}
	if f.Stored == nil {
		return &provider.Addresses{}, nil
	}
	return f.Stored, nil
}

// Request implements provider.Provider.
func (f *FakeProvider) Request(_ context.Context, method string, params any) (json.RawMessage, error) {
	sp, err := provider.DecodeSignParams(params)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.requests = append(f.requests, Request{Method: method, Params: sp})
	sign := f.SignFunc
	f.mu.Unlock()

	if sign != nil {
		return sign(method, sp)
	}
	return json.RawMessage(`{"signature":"0xfakesignature"}`), nil
}

// ConnectCalls returns how many times Connect ran.
func (f *FakeProvider) ConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

// DisconnectCalls returns how many times Disconnect ran.
func (f *FakeProvider) DisconnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnectCalls
}

// Requests returns a copy of every Request call.
func (f *FakeProvider) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Reject returns a SignFunc that declines every request.
func Reject() func(string, provider.SignParams) (json.RawMessage, error) {
	return func(string, provider.SignParams) (json.RawMessage, error) {
		return nil, provider.ErrUserRejected
	}
}

var _ provider.Provider = (*FakeProvider)(nil)
