package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/estatelink/internal/provider"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// relay answers every request with handle's result or error.
func relay(t *testing.T, handle func(method string, params json.RawMessage) (any, *rpcError)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			JSONRPC string          `json:"jsonrpc"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params"`
			ID      string          `json:"id"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "2.0", req.JSONRPC)
		assert.NotEmpty(t, req.ID)

		result, rpcErr := handle(req.Method, req.Params)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	return New(Options{
		URL:       url,
		StatePath: filepath.Join(t.TempDir(), "providers", "bridge.json"),
	})
}

func TestConnect_StoresAddresses(t *testing.T) {
	t.Parallel()

	server := relay(t, func(method string, _ json.RawMessage) (any, *rpcError) {
		assert.Equal(t, MethodConnect, method)
		return map[string]any{"addresses": map[string]any{"stx": []any{map[string]any{"address": "SP123"}}}}, nil
	})
	client := newTestClient(t, server.URL)
	ctx := context.Background()

	assert.False(t, client.IsConnected(ctx))

	addrs, err := client.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SP123", addrs.First("stx"))

	assert.True(t, client.IsConnected(ctx))
	stored, err := client.LocalStorage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "SP123", stored.First("stx"))
}

func TestConnect_EmptyResultNotStored(t *testing.T) {
	t.Parallel()

	server := relay(t, func(string, json.RawMessage) (any, *rpcError) {
		return map[string]any{"addresses": map[string]any{"stx": []any{}}}, nil
	})
	client := newTestClient(t, server.URL)

	addrs, err := client.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, addrs.Empty())
	assert.False(t, client.IsConnected(context.Background()))
}

func TestConnect_UserRejected(t *testing.T) {
	t.Parallel()

	server := relay(t, func(string, json.RawMessage) (any, *rpcError) {
		return nil, &rpcError{Code: CodeUserRejected, Message: "User closed the popup"}
	})
	client := newTestClient(t, server.URL)

	_, err := client.Connect(context.Background())
	require.ErrorIs(t, err, provider.ErrUserRejected)
}

func TestRequest_PassThrough(t *testing.T) {
	t.Parallel()

	server := relay(t, func(method string, params json.RawMessage) (any, *rpcError) {
		assert.Equal(t, provider.MethodSTXSignMessage, method)
		var sp provider.SignParams
		assert.NoError(t, json.Unmarshal(params, &sp))
		assert.Equal(t, "hello", sp.Message)
		return map[string]any{"signature": "abc", "publicKey": "02ff"}, nil
	})
	client := newTestClient(t, server.URL)

	raw, err := client.Request(context.Background(), provider.MethodSTXSignMessage, provider.SignParams{Message: "hello"})
	require.NoError(t, err)

	res, err := provider.DecodeSignResult(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Signature)
}

func TestRequest_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rpcErr *rpcError
		target error
	}{
		{"rejected", &rpcError{Code: CodeUserRejected, Message: "denied"}, provider.ErrUserRejected},
		{"method not found", &rpcError{Code: CodeMethodNotFound, Message: "nope"}, linkerr.ErrUnsupportedMethod},
		{"other", &rpcError{Code: -32000, Message: "internal"}, ErrRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := relay(t, func(string, json.RawMessage) (any, *rpcError) { return nil, tt.rpcErr })
			client := newTestClient(t, server.URL)

			_, err := client.Request(context.Background(), "stx_signMessage", provider.SignParams{Message: "m"})
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestDisconnect_ClearsStorageEvenOnError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := relay(t, func(method string, _ json.RawMessage) (any, *rpcError) {
		calls.Add(1)
		if method == MethodDisconnect {
			return nil, &rpcError{Code: -32000, Message: "relay gone"}
		}
		return map[string]any{"addresses": map[string]any{"eth": []any{map[string]any{"address": "0xabc"}}}}, nil
	})
	client := newTestClient(t, server.URL)
	ctx := context.Background()

	_, err := client.Connect(ctx)
	require.NoError(t, err)
	require.True(t, client.IsConnected(ctx))

	err = client.Disconnect(ctx)
	require.ErrorIs(t, err, ErrRequest)
	assert.False(t, client.IsConnected(ctx))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_HeadersAndStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "estatelink/test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(Options{
		URL:       server.URL,
		Token:     "secret",
		UserAgent: "estatelink/test",
		StatePath: filepath.Join(t.TempDir(), "bridge.json"),
	})

	_, err := client.Request(context.Background(), "wallet_getAddresses", nil)
	require.ErrorIs(t, err, ErrRequest)
	assert.Contains(t, err.Error(), "status: 401")
}

func TestCall_MismatchedID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"other","result":"x"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Request(context.Background(), "anything", nil)
	require.ErrorIs(t, err, ErrResponse)
}

func TestCall_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Request(context.Background(), "anything", nil)
	require.ErrorIs(t, err, ErrResponse)
}

func TestCall_ContextCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, server.URL).Connect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_RateLimit(t *testing.T) {
	t.Parallel()

	client := New(Options{URL: "http://127.0.0.1:1", RatePerSecond: 2, Burst: 3})
	assert.InDelta(t, 2.0, float64(client.limiter.Limit()), 0.001)
	assert.Equal(t, 3, client.limiter.Burst())

	unlimited := New(Options{URL: "http://127.0.0.1:1"})
	assert.Equal(t, 1, unlimited.limiter.Burst())
}
