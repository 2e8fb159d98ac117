// Package client offers a synchronous NEAR chain client for test code:
// account creation, contract deployment, signed and read-only contract
// calls. All chain traffic funnels through one bridge executor, so
// concurrent test goroutines never interleave their submissions.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/r-near/near-harness/bridge"
	"github.com/r-near/near-harness/keys"
	"github.com/r-near/near-harness/pkg/logger"
	"github.com/r-near/near-harness/rpcclient"
	"github.com/r-near/near-harness/tx"
)

const (
	// DefaultGas is the gas attached to contract calls unless overridden,
	// 200 TGas.
	DefaultGas uint64 = 200_000_000_000_000

	// defaultInitialBalanceNear funds new accounts when no balance is given.
	defaultInitialBalanceNear = 10
)

// rpc is the node surface the client needs. Satisfied by
// *rpcclient.Client.
type rpc interface {
	LatestFinalBlockHash(ctx context.Context) (string, error)
	ViewAccessKey(ctx context.Context, accountID, publicKey string) (*rpcclient.AccessKeyView, error)
	ViewAccount(ctx context.Context, accountID string) (*rpcclient.AccountView, error)
	CallFunction(ctx context.Context, contractID, method string, args []byte) (*rpcclient.CallFunctionResult, error)
	BroadcastTxCommit(ctx context.Context, signedTxBase64 string) (json.RawMessage, error)
}

// Config holds the chain client configuration.
type Config struct {
	// Endpoint is the node's JSON-RPC URL.
	Endpoint string

	// MasterAccountID is the funded root account that pays for and signs
	// new account creation. On a sandbox chain this is the validator
	// account.
	MasterAccountID string

	// MasterSecretKey is the master account's secret key in
	// "ed25519:<base58>" form.
	MasterSecretKey string

	Logger logger.Logger
}

func (c Config) validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.MasterAccountID == "" {
		return errors.New("master account id is required")
	}
	if c.MasterSecretKey == "" {
		return errors.New("master secret key is required")
	}

	return nil
}

// Client is a synchronous chain client bound to one node and one master
// identity.
type Client struct {
	lggr   logger.Logger
	rpc    rpc
	bridge *bridge.Bridge
	master *Identity

	mu         sync.Mutex
	identities map[string]*Identity
}

// New builds a Client from the config.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	kp, err := keys.ParseSecretKey(cfg.MasterSecretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid master secret key: %w", err)
	}

	lggr := cfg.Logger
	if lggr == nil {
		lggr = logger.Nop()
	}

	return newClient(rpcclient.New(cfg.Endpoint), cfg.MasterAccountID, kp, lggr), nil
}

func newClient(rpc rpc, masterID string, masterKey *keys.KeyPair, lggr logger.Logger) *Client {
	master := newIdentity(masterID, masterKey)

	return &Client{
		lggr:       lggr,
		rpc:        rpc,
		bridge:     bridge.New(lggr),
		master:     master,
		identities: map[string]*Identity{masterID: master},
	}
}

// Close releases the client's executor. The client must not be used after
// Close.
func (c *Client) Close() {
	c.bridge.Close()
}

// MasterAccount returns a handle on the master identity.
func (c *Client) MasterAccount() *Account {
	return &Account{client: c, id: c.master}
}

// Identity returns the cached identity for an account ID, if the client
// knows its keys.
func (c *Client) Identity(accountID string) (*Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, ok := c.identities[accountID]

	return id, ok
}

func (c *Client) resolveIdentity(accountID string) (*Identity, error) {
	id, ok := c.Identity(accountID)
	if !ok {
		return nil, fmt.Errorf("no signing key for account %s", accountID)
	}

	return id, nil
}

// CreateAccount creates a funded child account of the master account. The
// returned handle carries a generated account ID of the form
// "<name>-<random8>.<master>", so repeated calls with the same name never
// collide. A zero balance funds the account with the default 10 NEAR.
func (c *Client) CreateAccount(ctx context.Context, name string, balance tx.Balance) (*Account, error) {
	return c.createChildAccount(ctx, c.master, name, balance)
}

// CreateSubaccount creates a funded child account under a parent the client
// holds keys for.
func (c *Client) CreateSubaccount(ctx context.Context, parentID, name string, balance tx.Balance) (*Account, error) {
	parent, err := c.resolveIdentity(parentID)
	if err != nil {
		return nil, err
	}

	return c.createChildAccount(ctx, parent, name, balance)
}

func (c *Client) createChildAccount(ctx context.Context, parent *Identity, name string, balance tx.Balance) (*Account, error) {
	if balance == (tx.Balance{}) {
		balance = tx.BalanceFromNear(defaultInitialBalanceNear)
	}

	accountID := fmt.Sprintf("%s-%s.%s", name, uuid.NewString()[:8], parent.AccountID())

	kp, err := keys.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}

	c.lggr.Infow("Creating account", "accountID", accountID, "balance", balance.String())

	raw, err := c.signAndSend(ctx, parent, accountID,
		tx.NewCreateAccount(),
		tx.NewTransfer(balance),
		tx.NewAddFullAccessKey(kp.PublicKey()),
	)
	if err != nil {
		return nil, err
	}
	if _, err := decodeOutcome(raw, "create_account", parent.AccountID(), accountID); err != nil {
		return nil, err
	}

	id := newIdentity(accountID, kp)

	c.mu.Lock()
	c.identities[accountID] = id
	c.mu.Unlock()

	return &Account{client: c, id: id}, nil
}

// CallOpt adjusts a state-changing contract call.
type CallOpt func(*callOpts)

type callOpts struct {
	deposit tx.Balance
	gas     uint64
}

// WithDeposit attaches a deposit to the call.
func WithDeposit(deposit tx.Balance) CallOpt {
	return func(o *callOpts) { o.deposit = deposit }
}

// WithGas overrides the attached gas.
func WithGas(gas uint64) CallOpt {
	return func(o *callOpts) { o.gas = gas }
}

// CallFunction submits a signed contract call from a known sender and
// decodes the outcome. Execution failures come back as a *TxError; transport
// and signing failures as plain errors. args may be nil, a raw JSON byte
// slice, or any JSON-marshalable value.
func (c *Client) CallFunction(ctx context.Context, senderID, contractID, method string, args any, opts ...CallOpt) (*CallResult, error) {
	sender, err := c.resolveIdentity(senderID)
	if err != nil {
		return nil, err
	}

	o := callOpts{gas: DefaultGas}
	for _, opt := range opts {
		opt(&o)
	}

	argsJSON, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}

	c.lggr.Debugw("Calling function", "sender", senderID, "contract", contractID, "method", method)

	raw, err := c.signAndSend(ctx, sender, contractID,
		tx.NewFunctionCall(method, argsJSON, o.gas, o.deposit),
	)
	if err != nil {
		return nil, err
	}

	result, err := decodeOutcome(raw, method, senderID, contractID)
	if err != nil {
		return nil, err
	}

	for _, line := range result.Logs {
		c.lggr.Debugw("Contract log", "contract", contractID, "log", line)
	}

	return result, nil
}

// ViewFunction performs a read-only contract call and returns the raw return
// bytes. View calls carry no execution outcome, so any failure surfaces as a
// plain error.
func (c *Client) ViewFunction(ctx context.Context, contractID, method string, args any) ([]byte, error) {
	argsJSON, err := marshalArgs(args)
	if err != nil {
		return nil, err
	}

	res, err := bridge.Call(ctx, c.bridge, func(ctx context.Context) (*rpcclient.CallFunctionResult, error) {
		return c.rpc.CallFunction(ctx, contractID, method, argsJSON)
	})
	if err != nil {
		return nil, err
	}

	for _, line := range res.Logs {
		c.lggr.Debugw("Contract log", "contract", contractID, "log", line)
	}

	return res.Result, nil
}

// DeployContract deploys wasm bytecode to an account the client holds keys
// for and returns the raw deployment outcome.
func (c *Client) DeployContract(ctx context.Context, accountID string, wasm []byte) (json.RawMessage, error) {
	account, err := c.resolveIdentity(accountID)
	if err != nil {
		return nil, err
	}

	c.lggr.Infow("Deploying contract", "accountID", accountID, "size", len(wasm))

	raw, err := c.signAndSend(ctx, account, accountID, tx.NewDeployContract(wasm))
	if err != nil {
		return nil, err
	}
	if _, err := decodeOutcome(raw, "deploy_contract", accountID, accountID); err != nil {
		return nil, err
	}

	return raw, nil
}

// DeployContractFile reads wasm bytecode from disk and deploys it.
func (c *Client) DeployContractFile(ctx context.Context, accountID, wasmPath string) (json.RawMessage, error) {
	wasm, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract bytecode: %w", err)
	}

	return c.DeployContract(ctx, accountID, wasm)
}

// Transfer moves tokens between accounts, signed by the sender.
func (c *Client) Transfer(ctx context.Context, senderID, receiverID string, amount tx.Balance) error {
	sender, err := c.resolveIdentity(senderID)
	if err != nil {
		return err
	}

	raw, err := c.signAndSend(ctx, sender, receiverID, tx.NewTransfer(amount))
	if err != nil {
		return err
	}
	_, err = decodeOutcome(raw, "transfer", senderID, receiverID)

	return err
}

// ViewAccount returns the on-chain view of an account.
func (c *Client) ViewAccount(ctx context.Context, accountID string) (*rpcclient.AccountView, error) {
	return bridge.Call(ctx, c.bridge, func(ctx context.Context) (*rpcclient.AccountView, error) {
		return c.rpc.ViewAccount(ctx, accountID)
	})
}

// signAndSend builds, signs, and broadcasts a transaction on the bridge
// executor, waiting for finality. Returns the raw execution outcome.
func (c *Client) signAndSend(ctx context.Context, signer *Identity, receiverID string, actions ...tx.Action) (json.RawMessage, error) {
	return bridge.Call(ctx, c.bridge, func(ctx context.Context) (json.RawMessage, error) {
		nonce, err := signer.nextNonce(ctx, c.rpc)
		if err != nil {
			return nil, err
		}

		blockHashB58, err := c.rpc.LatestFinalBlockHash(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch block hash: %w", err)
		}
		blockHash, err := tx.ParseBlockHash(blockHashB58)
		if err != nil {
			return nil, err
		}

		signed, err := tx.New(signer.AccountID(), signer.PublicKey(), nonce, receiverID, blockHash, actions...).Sign(signer.keyPair)
		if err != nil {
			return nil, fmt.Errorf("failed to sign transaction: %w", err)
		}
		encoded, err := signed.Base64()
		if err != nil {
			return nil, fmt.Errorf("failed to encode transaction: %w", err)
		}

		raw, err := c.rpc.BroadcastTxCommit(ctx, encoded)
		if err != nil {
			// The nonce may or may not have been consumed.
			signer.desync()

			return nil, fmt.Errorf("failed to broadcast transaction: %w", err)
		}

		return raw, nil
	})
}

func marshalArgs(args any) ([]byte, error) {
	switch v := args.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode call args: %w", err)
		}

		return data, nil
	}
}
