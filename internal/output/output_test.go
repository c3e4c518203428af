package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

var errRelay = errors.New("relay unreachable")

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errRelay }

func TestFormatter_Print(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatJSON, &buf).Print(map[string]bool{"connected": true}))
	assert.JSONEq(t, `{"connected": true}`, buf.String())

	buf.Reset()
	f := NewFormatter(FormatText, &buf)
	require.NoError(t, f.Print("not signed in"))
	assert.Equal(t, "not signed in\n", buf.String())
	assert.False(t, f.IsJSON())
	assert.Equal(t, FormatText, f.Format())
	assert.Same(t, &buf, f.Writer())
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]Format{
		"json":   FormatJSON,
		" JSON ": FormatJSON,
		"text":   FormatText,
		"auto":   FormatAuto,
		"yaml":   FormatAuto,
		"":       FormatAuto,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseFormat(in), "input %q", in)
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatText, DetectFormat(&bytes.Buffer{}, FormatText))
	assert.Equal(t, FormatJSON, DetectFormat(&bytes.Buffer{}, FormatAuto))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, FormatJSON, DetectFormat(f, FormatAuto))
}

func TestFormatError_Text(t *testing.T) {
	t.Parallel()

	err := linkerr.WithSuggestion(
		linkerr.WithDetails(linkerr.ErrNoAddress, map[string]string{"provider": "bridge", "chain": "stx"}),
		"unlock your wallet and retry",
	)

	var buf bytes.Buffer
	require.NoError(t, FormatError(&buf, err, FormatText))
	assert.Equal(t, "Error: wallet provider returned no address\n\n"+
		"Details:\n"+
		"  chain: stx\n"+
		"  provider: bridge\n\n"+
		"Suggestion: unlock your wallet and retry\n", buf.String())
}

func TestFormatError_JSON(t *testing.T) {
	t.Parallel()

	err := linkerr.WithCause(linkerr.ErrProviderFailure, errRelay)

	var buf bytes.Buffer
	require.NoError(t, FormatError(&buf, err, FormatJSON))

	var got ErrorOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "PROVIDER_FAILURE", got.Error.Code)
	assert.Equal(t, "wallet provider request failed: relay unreachable", got.Error.Message)
	assert.Equal(t, linkerr.ExitGeneral, got.Error.ExitCode)
}

func TestFormatError_Plain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, FormatError(&buf, errRelay, FormatText))
	assert.Equal(t, "Error: relay unreachable\n", buf.String())

	buf.Reset()
	require.NoError(t, FormatError(&buf, nil, FormatText))
	assert.Empty(t, buf.String())

	require.ErrorIs(t, FormatError(failWriter{}, errRelay, FormatText), errRelay)
}

func TestFormatSuccess(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, FormatSuccess(&buf, "Disconnected", FormatJSON))
	assert.JSONEq(t, `{"status":"success","message":"Disconnected"}`, buf.String())

	buf.Reset()
	require.NoError(t, FormatSuccess(&buf, "Disconnected", FormatText))
	assert.Equal(t, "Disconnected\n", buf.String())
}

func TestTable(t *testing.T) {
	t.Parallel()

	tbl := NewTable("NAME", "ADDRESS")
	tbl.AddRow("main", "0x9858")
	tbl.AddRow("savings-long", "0xab")
	tbl.AddRow("short")

	assert.Equal(t, ""+
		"NAME          ADDRESS\n"+
		"------------  -------\n"+
		"main          0x9858\n"+
		"savings-long  0xab\n"+
		"short         \n", tbl.String())

	assert.Empty(t, NewTable().String())
}
