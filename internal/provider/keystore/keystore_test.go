package keystore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/estatelink/internal/provider"
	"github.com/mrz1836/estatelink/internal/vault"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testAddress  = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
)

func TestMain(m *testing.M) {
	vault.SetScryptWorkFactor(10)
	os.Exit(m.Run())
}

type fakePrompter struct {
	mu           sync.Mutex
	password     string
	passwordErr  error
	approve      bool
	approveErr   error
	passwordAsks int
	approvals    []Approval
}

func (f *fakePrompter) Password(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwordAsks++
	if f.passwordErr != nil {
		return nil, f.passwordErr
	}
	return []byte(f.password), nil
}

func (f *fakePrompter) Approve(_ context.Context, req Approval) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals = append(f.approvals, req)
	return f.approve, f.approveErr
}

func newTestProvider(t *testing.T, prompter *fakePrompter) (*Provider, string) {
	t.Helper()
	home := t.TempDir()
	dir := filepath.Join(home, "keystores")
	require.NoError(t, NewStore(dir).Import("main", testMnemonic, []byte("hunter2")))

	p := New(Options{
		Dir:       dir,
		Keystore:  "main",
		StatePath: filepath.Join(home, "providers", "keystore.json"),
		Prompter:  prompter,
	})
	t.Cleanup(p.Close)
	return p, home
}

func TestGenerateMnemonic(t *testing.T) {
	t.Parallel()

	for _, n := range []int{12, 24} {
		m, err := GenerateMnemonic(n)
		require.NoError(t, err)
		assert.Len(t, strings.Fields(m), n)
		require.NoError(t, ValidateMnemonic(m))
	}

	_, err := GenerateMnemonic(15)
	require.ErrorIs(t, err, linkerr.ErrInvalidInput)
}

func TestValidateMnemonic(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateMnemonic(testMnemonic))
	require.NoError(t, ValidateMnemonic("1. ABANDON, abandon abandon abandon abandon abandon\nabandon abandon abandon abandon abandon about"))

	err := ValidateMnemonic("abandon abandon")
	require.ErrorIs(t, err, linkerr.ErrInvalidMnemonic)

	err = ValidateMnemonic(strings.Replace(testMnemonic, "about", "abuot", 1))
	require.ErrorIs(t, err, linkerr.ErrInvalidMnemonic)
	var le *linkerr.LinkError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Suggestion, "word 12")
	assert.Contains(t, le.Suggestion, "did you mean 'about'?")

	err = ValidateMnemonic(strings.Repeat("abandon ", 12))
	require.ErrorIs(t, err, linkerr.ErrInvalidMnemonic)
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Suggestion, "checksum")
}

func TestDeriveAccount_KnownVector(t *testing.T) {
	t.Parallel()

	acct, err := DeriveAccount(testMnemonic, 0, 0)
	require.NoError(t, err)
	defer acct.Destroy()

	assert.Equal(t, testAddress, acct.Address)
	assert.Equal(t, "m/44'/60'/0'/0/0", acct.Path)
	assert.True(t, strings.HasPrefix(acct.PublicKey, "0x02") || strings.HasPrefix(acct.PublicKey, "0x03"))

	other, err := DeriveAccount(testMnemonic, 0, 1)
	require.NoError(t, err)
	defer other.Destroy()
	assert.NotEqual(t, acct.Address, other.Address)
}

func TestAccount_SignTextRecovers(t *testing.T) {
	t.Parallel()

	acct, err := DeriveAccount(testMnemonic, 0, 0)
	require.NoError(t, err)

	msg := []byte("Sign in to Estatelink")
	sig, err := acct.SignText(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, crypto.PubkeyToAddress(*pub).Hex())

	acct.Destroy()
	_, err = acct.SignText(msg)
	require.ErrorIs(t, err, linkerr.ErrNotConnected)
}

func TestStore(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "keystores"))

	names, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	mnemonic, err := store.Create("beta", 12, []byte("pw"))
	require.NoError(t, err)
	require.NoError(t, store.Import("alpha", testMnemonic, []byte("pw")))

	names, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)

	exists, err := store.Exists("alpha")
	require.NoError(t, err)
	assert.True(t, exists)

	err = store.Import("alpha", testMnemonic, []byte("pw"))
	require.ErrorIs(t, err, linkerr.ErrKeystoreExists)

	secret, err := store.Unlock("beta", []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, mnemonic, string(secret.Bytes()))
	secret.Destroy()

	_, err = store.Unlock("beta", []byte("wrong"))
	require.ErrorIs(t, err, linkerr.ErrDecryptionFailed)

	_, err = store.Unlock("gamma", []byte("pw"))
	require.ErrorIs(t, err, linkerr.ErrKeystoreNotFound)

	info, err := os.Stat(filepath.Join(store.Dir(), "alpha.age"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_Validation(t *testing.T) {
	t.Parallel()
	store := NewStore(t.TempDir())

	require.ErrorIs(t, store.Import("../escape", testMnemonic, []byte("pw")), linkerr.ErrInvalidInput)
	require.ErrorIs(t, store.Import("ok", testMnemonic, nil), linkerr.ErrInvalidInput)
	require.ErrorIs(t, store.Import("ok", "not a mnemonic", []byte("pw")), linkerr.ErrInvalidMnemonic)
}

func TestProvider_ConnectAndSign(t *testing.T) {
	t.Parallel()
	prompter := &fakePrompter{password: "hunter2", approve: true}
	p, _ := newTestProvider(t, prompter)
	ctx := context.Background()

	assert.False(t, p.IsConnected(ctx))

	addrs, err := p.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, testAddress, addrs.First("eth"))
	assert.True(t, p.IsConnected(ctx))

	stored, err := p.LocalStorage(ctx)
	require.NoError(t, err)
	assert.Equal(t, testAddress, stored.First("eth"))

	raw, err := p.Request(ctx, provider.MethodPersonalSign, provider.SignParams{Message: "hello", Address: strings.ToLower(testAddress)})
	require.NoError(t, err)

	var res provider.SignResult
	require.NoError(t, json.Unmarshal(raw, &res))
	sig, err := hexutil.Decode(res.Signature)
	require.NoError(t, err)
	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte("hello")), sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, crypto.PubkeyToAddress(*pub).Hex())

	assert.Equal(t, 1, prompter.passwordAsks)
	require.Len(t, prompter.approvals, 1)
	assert.Equal(t, "hello", prompter.approvals[0].Message)
}

func TestProvider_ConnectAborted(t *testing.T) {
	t.Parallel()
	p, _ := newTestProvider(t, &fakePrompter{passwordErr: ErrPromptAborted})

	_, err := p.Connect(context.Background())
	require.ErrorIs(t, err, provider.ErrUserRejected)
	assert.False(t, p.IsConnected(context.Background()))
}

func TestProvider_WrongPassword(t *testing.T) {
	t.Parallel()
	p, _ := newTestProvider(t, &fakePrompter{password: "nope"})

	_, err := p.Connect(context.Background())
	require.ErrorIs(t, err, linkerr.ErrDecryptionFailed)
	assert.NotErrorIs(t, err, provider.ErrUserRejected)
}

func TestProvider_SignDeclined(t *testing.T) {
	t.Parallel()
	p, _ := newTestProvider(t, &fakePrompter{password: "hunter2", approve: false})
	ctx := context.Background()

	_, err := p.Connect(ctx)
	require.NoError(t, err)

	_, err = p.Request(ctx, provider.MethodPersonalSign, provider.SignParams{Message: "m"})
	require.ErrorIs(t, err, provider.ErrUserRejected)
}

func TestProvider_RequestValidation(t *testing.T) {
	t.Parallel()
	p, _ := newTestProvider(t, &fakePrompter{password: "hunter2", approve: true})
	ctx := context.Background()

	_, err := p.Request(ctx, provider.MethodSTXSignMessage, provider.SignParams{Message: "m"})
	require.ErrorIs(t, err, linkerr.ErrUnsupportedMethod)

	_, err = p.Request(ctx, provider.MethodPersonalSign, provider.SignParams{Message: "m", Address: "0x0000000000000000000000000000000000000001"})
	require.ErrorIs(t, err, linkerr.ErrInvalidInput)
}

func TestProvider_RestoredLinkUnlocksOnDemand(t *testing.T) {
	t.Parallel()
	prompter := &fakePrompter{password: "hunter2", approve: true}
	p, home := newTestProvider(t, prompter)
	ctx := context.Background()

	_, err := p.Connect(ctx)
	require.NoError(t, err)

	restarted := New(Options{
		Dir:       filepath.Join(home, "keystores"),
		Keystore:  "main",
		StatePath: filepath.Join(home, "providers", "keystore.json"),
		Prompter:  prompter,
	})
	defer restarted.Close()
	assert.True(t, restarted.IsConnected(ctx))

	_, err = restarted.Request(ctx, provider.MethodPersonalSign, provider.SignParams{Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, 2, prompter.passwordAsks)
}

func TestProvider_Disconnect(t *testing.T) {
	t.Parallel()
	prompter := &fakePrompter{password: "hunter2", approve: true}
	p, _ := newTestProvider(t, prompter)
	ctx := context.Background()

	_, err := p.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Disconnect(ctx))
	assert.False(t, p.IsConnected(ctx))

	_, err = p.Request(ctx, provider.MethodPersonalSign, provider.SignParams{Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, 2, prompter.passwordAsks)
}

func TestProvider_NoPrompter(t *testing.T) {
	t.Parallel()
	p := New(Options{Dir: t.TempDir(), Keystore: "main", StatePath: filepath.Join(t.TempDir(), "ks.json")})

	_, err := p.Connect(context.Background())
	require.ErrorIs(t, err, linkerr.ErrGeneral)
}
