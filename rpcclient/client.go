// Package rpcclient is a thin JSON-RPC 2.0 client for the NEAR sandbox node.
// It covers only the methods the harness needs: the status health probe,
// state queries, transaction broadcast, and the sandbox-only state patch.
package rpcclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// requestID identifies harness-issued requests in the node's logs.
const requestID = "near-harness"

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Name    string          `json:"name"`
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Cause   *struct {
		Name string          `json:"name"`
		Info json.RawMessage `json:"info"`
	} `json:"cause"`
}

func (e *RPCError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("rpc error %s: %s (cause: %s)", e.Name, e.Message, e.Cause.Name)
	}

	return fmt.Sprintf("rpc error %s: %s", e.Name, e.Message)
}

// Client posts JSON-RPC envelopes to one sandbox node.
type Client struct {
	endpoint    string
	client      *resty.Client
	callTimeout time.Duration
}

// Opt configures a Client.
type Opt func(*Client)

// WithCallTimeout bounds every RPC call. The default is no timeout: a hung
// node hangs the caller, so tests that cannot tolerate that should set one.
func WithCallTimeout(d time.Duration) Opt {
	return func(c *Client) {
		c.callTimeout = d
	}
}

// New creates a Client for the given RPC endpoint, e.g. "http://localhost:3030".
func New(endpoint string, opts ...Opt) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   resty.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Endpoint returns the node URL this client posts to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Call posts one JSON-RPC envelope and unmarshals the result member into out
// (which may be nil to discard it). A populated error member is returned as a
// *RPCError; transport failures are wrapped with the method name.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	payload := map[string]any{
		"jsonrpc": "2.0",
		"id":      requestID,
		"method":  method,
		"params":  params,
	}

	resp, err := c.client.R().SetContext(ctx).SetBody(payload).Post(c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to call %s: unexpected status %s", method, resp.Status())
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	return nil
}

// StatusResponse is the subset of the node status the harness reads.
type StatusResponse struct {
	ChainID  string `json:"chain_id"`
	SyncInfo struct {
		LatestBlockHash   string `json:"latest_block_hash"`
		LatestBlockHeight uint64 `json:"latest_block_height"`
	} `json:"sync_info"`
}

// Status performs the lightweight status query used as the health probe.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.Call(ctx, "status", []any{}, &out); err != nil {
		return nil, err
	}

	return &out, nil
}

// LatestFinalBlockHash returns the base58 hash of the latest final block,
// required for transaction construction.
func (c *Client) LatestFinalBlockHash(ctx context.Context) (string, error) {
	var out struct {
		Header struct {
			Hash string `json:"hash"`
		} `json:"header"`
	}
	if err := c.Call(ctx, "block", map[string]any{"finality": "final"}, &out); err != nil {
		return "", err
	}

	return out.Header.Hash, nil
}

// AccessKeyView is the nonce and block context of one access key.
type AccessKeyView struct {
	Nonce       uint64 `json:"nonce"`
	BlockHash   string `json:"block_hash"`
	BlockHeight uint64 `json:"block_height"`
}

// ViewAccessKey fetches the current nonce for (accountID, publicKey).
// Optimistic finality so freshly created keys are visible immediately.
func (c *Client) ViewAccessKey(ctx context.Context, accountID, publicKey string) (*AccessKeyView, error) {
	var out struct {
		AccessKeyView
		Error string `json:"error"`
	}

	err := c.Call(ctx, "query", map[string]any{
		"request_type": "view_access_key",
		"finality":     "optimistic",
		"account_id":   accountID,
		"public_key":   publicKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	// Unknown keys are reported inside the result, not as an rpc error.
	if out.Error != "" {
		return nil, fmt.Errorf("failed to view access key %s for %s: %s", publicKey, accountID, out.Error)
	}

	return &out.AccessKeyView, nil
}

// AccountView is the subset of account state the harness reads.
type AccountView struct {
	Amount   string `json:"amount"`
	Locked   string `json:"locked"`
	CodeHash string `json:"code_hash"`
}

// ViewAccount fetches balance and code hash for accountID.
func (c *Client) ViewAccount(ctx context.Context, accountID string) (*AccountView, error) {
	var out struct {
		AccountView
		Error string `json:"error"`
	}

	err := c.Call(ctx, "query", map[string]any{
		"request_type": "view_account",
		"finality":     "final",
		"account_id":   accountID,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("failed to view account %s: %s", accountID, out.Error)
	}

	return &out.AccountView, nil
}

// CallFunctionResult is the return payload and logs of a view call.
type CallFunctionResult struct {
	Result resultBytes `json:"result"`
	Logs   []string    `json:"logs"`
}

// CallFunction performs a read-only contract call against final state.
// Args must be JSON-encoded; they are transported base64-encoded.
func (c *Client) CallFunction(ctx context.Context, contractID, method string, args []byte) (*CallFunctionResult, error) {
	var out struct {
		CallFunctionResult
		Error string `json:"error"`
	}

	err := c.Call(ctx, "query", map[string]any{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("failed to call %s on %s: %s", method, contractID, out.Error)
	}

	return &out.CallFunctionResult, nil
}

// BroadcastTxCommit submits a signed transaction and waits for its final
// execution outcome, returned raw for the caller to decode.
func (c *Client) BroadcastTxCommit(ctx context.Context, signedTxBase64 string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Call(ctx, "broadcast_tx_commit", []any{signedTxBase64}, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// PatchState replaces matching ledger records with the given snapshot
// records via the sandbox-only sandbox_patch_state method. The node signals
// success with an empty object result; anything else is a failure.
func (c *Client) PatchState(ctx context.Context, records []json.RawMessage) error {
	var out map[string]json.RawMessage
	if err := c.Call(ctx, "sandbox_patch_state", map[string]any{"records": records}, &out); err != nil {
		return fmt.Errorf("failed to patch state: %w", err)
	}
	if len(out) != 0 {
		return fmt.Errorf("failed to patch state: unexpected result with %d fields", len(out))
	}

	return nil
}

// resultBytes decodes the JSON array-of-byte-values encoding the node uses
// for function call return payloads.
type resultBytes []byte

func (r *resultBytes) UnmarshalJSON(data []byte) error {
	var ints []uint8
	// encoding/json decodes []uint8 from base64 strings only, so go through
	// a plain int slice for the array form.
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ints = make([]uint8, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return fmt.Errorf("byte value out of range: %d", v)
		}
		ints[i] = uint8(v)
	}
	*r = ints

	return nil
}
