// Package bridge implements a wallet provider that talks JSON-RPC 2.0 over
// HTTP to a local wallet relay, such as a browser-extension companion.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/mrz1836/estatelink/internal/provider"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// Relay methods.
const (
	MethodConnect    = "wallet_connect"
	MethodDisconnect = "wallet_disconnect"
)

// JSON-RPC error codes with special meaning.
const (
	CodeUserRejected   = 4001
	CodeMethodNotFound = -32601
)

// Name is the provider name reported to the session.
const Name = "bridge"

const (
	defaultTimeout   = 5 * time.Minute
	maxResponseBytes = 1 << 20
)

var (
	// ErrRequest indicates the relay could not be reached or answered with a non-200 status.
	ErrRequest = &linkerr.LinkError{
		Code:     "BRIDGE_REQUEST_FAILED",
		Message:  "wallet bridge request failed",
		ExitCode: linkerr.ExitGeneral,
	}

	// ErrResponse indicates the relay answered with an invalid JSON-RPC payload.
	ErrResponse = &linkerr.LinkError{
		Code:     "BRIDGE_INVALID_RESPONSE",
		Message:  "invalid wallet bridge response",
		ExitCode: linkerr.ExitGeneral,
	}
)

// Options configure a Client.
type Options struct {
	URL           string
	Token         string
	RatePerSecond float64
	Burst         int
	// StatePath is where linked addresses are persisted.
	StatePath  string
	UserAgent  string
	HTTPClient *http.Client
}

// Client is a provider.Provider backed by a wallet relay.
type Client struct {
	url        string
	token      string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	storage    *provider.FileStorage
}

// New creates a bridge client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		url:        opts.URL,
		token:      opts.Token,
		userAgent:  opts.UserAgent,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		storage:    provider.NewFileStorage(opts.StatePath),
	}
}

// request represents a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// response represents a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
}

// Name implements provider.Provider.
func (c *Client) Name() string { return Name }

// Connect asks the relay to link a wallet and records the returned addresses.
func (c *Client) Connect(ctx context.Context) (*provider.Addresses, error) {
	raw, err := c.call(ctx, MethodConnect, nil)
	if err != nil {
		return nil, err
	}

	var addrs provider.Addresses
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &addrs); err != nil {
			return nil, linkerr.WithCause(ErrResponse, err)
		}
	}

	if !addrs.Empty() {
		if err := c.storage.Save(&addrs); err != nil {
			return nil, err
		}
	}
	return &addrs, nil
}

// Disconnect tells the relay to unlink and clears the stored addresses.
// Stored addresses are cleared even when the relay call fails.
func (c *Client) Disconnect(ctx context.Context) error {
	_, callErr := c.call(ctx, MethodDisconnect, nil)
	if err := c.storage.Clear(); err != nil {
		return err
	}
	return callErr
}

// IsConnected reports whether linked addresses are stored.
func (c *Client) IsConnected(_ context.Context) bool {
	addrs, err := c.storage.Load()
	return err == nil && !addrs.Empty()
}

// LocalStorage returns the stored addresses.
func (c *Client) LocalStorage(_ context.Context) (*provider.Addresses, error) {
	return c.storage.Load()
}

// Request forwards method and params to the relay unchanged.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.call(ctx, method, params)
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      uuid.NewString(),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, linkerr.WithCause(ErrRequest, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, linkerr.WithCause(ErrRequest, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, linkerr.WithDetails(ErrRequest, map[string]string{
			"method": method,
			"status": strconv.Itoa(httpResp.StatusCode),
		})
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, linkerr.WithCause(ErrResponse, err)
	}
	if resp.ID != req.ID {
		return nil, linkerr.WithDetails(ErrResponse, map[string]string{
			"expected_id": req.ID,
			"got_id":      resp.ID,
		})
	}

	if resp.Error != nil {
		return nil, mapRPCError(method, resp.Error)
	}
	return resp.Result, nil
}

func mapRPCError(method string, e *rpcError) error {
	switch e.Code {
	case CodeUserRejected:
		return fmt.Errorf("%w: %s", provider.ErrUserRejected, e.Message)
	case CodeMethodNotFound:
		return linkerr.WithDetails(linkerr.WithCause(linkerr.ErrUnsupportedMethod, e), map[string]string{
			"method": method,
		})
	default:
		return linkerr.WithCause(ErrRequest, e)
	}
}

var _ provider.Provider = (*Client)(nil)
