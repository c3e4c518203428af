package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

func TestKeystoreCreate(t *testing.T) {
	home := t.TempDir()
	withMockPrompts(t, []byte("correct horse"), true, "")

	got, err := runCLI(t, "keystore", "create", "main", "--words", "24", "--home", home, "-o", "json")
	require.NoError(t, err)

	res := decodeJSON[keystoreResult](t, got)
	assert.Equal(t, "main", res.Name)
	assert.Len(t, strings.Fields(res.Mnemonic), 24)
	assert.True(t, strings.HasPrefix(res.Address, "0x"))
	assert.Equal(t, "m/44'/60'/0'/0/0", res.Path)
	assert.FileExists(t, filepath.Join(home, "keystores", "main.age"))
}

func TestKeystoreCreate_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "bad word count", args: []string{"keystore", "create", "main", "--words", "15"}, want: linkerr.ErrInvalidInput},
		{name: "bad name", args: []string{"keystore", "create", "../escape"}, want: linkerr.ErrInvalidInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			withMockPrompts(t, []byte("correct horse"), true, "")
			_, err := runCLI(t, append(tc.args, "--home", t.TempDir())...)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestKeystoreImport(t *testing.T) {
	home := t.TempDir()
	withMockPrompts(t, []byte("correct horse"), true, "  Abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon ABOUT ")

	got, err := runCLI(t, "keystore", "import", "main", "--home", home, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, got, "Keystore 'main' imported.")
	assert.Contains(t, got, "0x9858EfFD232B4033E47d90003D41EC34EcaEda94")

	_, err = runCLI(t, "keystore", "import", "main", "--home", home)
	require.ErrorIs(t, err, linkerr.ErrKeystoreExists)
}

func TestKeystoreImport_InvalidMnemonic(t *testing.T) {
	withMockPrompts(t, []byte("correct horse"), true, "abandon abandon abandon")

	_, err := runCLI(t, "keystore", "import", "main", "--home", t.TempDir())
	require.ErrorIs(t, err, linkerr.ErrInvalidMnemonic)
	assert.Equal(t, linkerr.ExitInput, ExitCode(err))
}

func TestKeystoreList(t *testing.T) {
	home := t.TempDir()
	withMockPrompts(t, []byte("correct horse"), true, testMnemonic)

	got, err := runCLI(t, "keystore", "list", "--home", home, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, got, "No keystores found")

	for _, name := range []string{"default", "alt"} {
		_, err = runCLI(t, "keystore", "import", name, "--home", home)
		require.NoError(t, err)
	}

	got, err = runCLI(t, "keystore", "list", "--home", home, "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, got, "NAME")
	assert.Contains(t, got, "alt")
	assert.Contains(t, got, "default")

	got, err = runCLI(t, "keystore", "list", "--home", home, "-o", "json")
	require.NoError(t, err)

	type entry struct {
		Name    string `json:"name"`
		Default bool   `json:"default"`
	}
	entries := decodeJSON[[]entry](t, got)
	require.Len(t, entries, 2)
	assert.Equal(t, entry{Name: "alt"}, entries[0])
	assert.Equal(t, entry{Name: "default", Default: true}, entries[1])
}
