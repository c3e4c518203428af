package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

var (
	errInner     = errors.New("inner")
	errRootCause = errors.New("root cause")
	errPlain     = errors.New("plain error")
)

func TestExitCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, linkerr.ExitSuccess},
		{"general error", linkerr.ErrGeneral, linkerr.ExitGeneral},
		{"input error", linkerr.ErrInvalidInput, linkerr.ExitInput},
		{"not found error", linkerr.ErrNotFound, linkerr.ExitNotFound},
		{"no address", linkerr.ErrNoAddress, linkerr.ExitNotFound},
		{"auth declined", linkerr.ErrAuthDeclined, linkerr.ExitAuth},
		{"provider failure", linkerr.ErrProviderFailure, linkerr.ExitGeneral},
		{"plain error", errPlain, linkerr.ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, linkerr.ExitCode(tt.err))
		})
	}
}

func TestWrap_PreservesIdentity(t *testing.T) {
	t.Parallel()

	wrapped := linkerr.Wrap(linkerr.ErrNoAddress, "connecting %s", "bridge")
	require.ErrorIs(t, wrapped, linkerr.ErrNoAddress)
	assert.Equal(t, linkerr.ExitNotFound, linkerr.ExitCode(wrapped))
	assert.Equal(t, "NO_ADDRESS", linkerr.Code(wrapped))
	assert.Contains(t, wrapped.Error(), "connecting bridge")
}

func TestWrap_PlainError(t *testing.T) {
	t.Parallel()

	wrapped := linkerr.Wrap(errInner, "loading config")
	require.ErrorIs(t, wrapped, errInner)
	assert.Equal(t, "GENERAL_ERROR", linkerr.Code(wrapped))
	assert.Equal(t, "loading config: inner", wrapped.Error())
}

func TestWrap_Nil(t *testing.T) {
	t.Parallel()
	assert.NoError(t, linkerr.Wrap(nil, "nothing"))
	assert.NoError(t, linkerr.WithDetails(nil, nil))
	assert.NoError(t, linkerr.WithSuggestion(nil, "nothing"))
}

func TestWithCause(t *testing.T) {
	t.Parallel()

	err := linkerr.WithCause(linkerr.ErrAuthDeclined, errRootCause)
	require.ErrorIs(t, err, linkerr.ErrAuthDeclined)
	require.ErrorIs(t, err, errRootCause)
	assert.False(t, errors.Is(err, linkerr.ErrNoAddress))
	assert.Equal(t, "authentication signature was declined or failed: root cause", err.Error())
}

func TestWithDetails_SortedOutput(t *testing.T) {
	t.Parallel()

	err := linkerr.WithDetails(linkerr.ErrUnknownChain, map[string]string{
		"supported": "eth, stx",
		"chain":     "btc",
	})
	assert.Equal(t, "unknown chain (chain: btc) (supported: eth, stx)", err.Error())
	assert.Equal(t, linkerr.ExitInput, linkerr.ExitCode(err))
}

func TestWithSuggestion(t *testing.T) {
	t.Parallel()

	err := linkerr.WithSuggestion(linkerr.ErrUnknownConfigKey, "did you mean 'bridge.url'?")
	var le *linkerr.LinkError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "did you mean 'bridge.url'?", le.Suggestion)
	assert.Equal(t, "UNKNOWN_CONFIG_KEY", le.Code)

	plain := linkerr.WithSuggestion(errPlain, "try again")
	require.ErrorAs(t, plain, &le)
	assert.Equal(t, "GENERAL_ERROR", le.Code)
	assert.Equal(t, "try again", le.Suggestion)
}

func TestNew(t *testing.T) {
	t.Parallel()

	err := linkerr.New("CUSTOM", "custom failure")
	assert.Equal(t, "CUSTOM", err.Code)
	assert.Equal(t, linkerr.ExitGeneral, err.ExitCode)
	assert.Equal(t, "custom failure", err.Error())
}
