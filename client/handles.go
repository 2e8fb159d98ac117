package client

import (
	"context"

	"github.com/r-near/near-harness/rpcclient"
	"github.com/r-near/near-harness/tx"
)

// Account is a test-facing handle on a signing identity. Handles are cheap
// and share the identity underneath; their lifetime is bound to the client.
type Account struct {
	client *Client
	id     *Identity
}

// ID returns the account ID.
func (a *Account) ID() string {
	return a.id.AccountID()
}

// CallContract submits a signed call to a contract from this account.
func (a *Account) CallContract(ctx context.Context, contractID, method string, args any, opts ...CallOpt) (*CallResult, error) {
	return a.client.CallFunction(ctx, a.ID(), contractID, method, args, opts...)
}

// ViewContract performs a read-only call against a contract.
func (a *Account) ViewContract(ctx context.Context, contractID, method string, args any) ([]byte, error) {
	return a.client.ViewFunction(ctx, contractID, method, args)
}

// DeployContract deploys bytecode to this account and returns a contract
// handle for it.
func (a *Account) DeployContract(ctx context.Context, wasm []byte) (*Contract, error) {
	if _, err := a.client.DeployContract(ctx, a.ID(), wasm); err != nil {
		return nil, err
	}

	return &Contract{client: a.client, accountID: a.ID()}, nil
}

// Transfer sends tokens from this account.
func (a *Account) Transfer(ctx context.Context, receiverID string, amount tx.Balance) error {
	return a.client.Transfer(ctx, a.ID(), receiverID, amount)
}

// View returns the account's on-chain state.
func (a *Account) View(ctx context.Context) (*rpcclient.AccountView, error) {
	return a.client.ViewAccount(ctx, a.ID())
}

// CreateSubaccount creates a funded child account under this account.
func (a *Account) CreateSubaccount(ctx context.Context, name string, balance tx.Balance) (*Account, error) {
	return a.client.CreateSubaccount(ctx, a.ID(), name, balance)
}

// Contract is a test-facing handle on a deployed contract. It holds no state
// of its own beyond the account ID.
type Contract struct {
	client    *Client
	accountID string
}

// NewContract wraps an already deployed contract account.
func NewContract(c *Client, accountID string) *Contract {
	return &Contract{client: c, accountID: accountID}
}

// AccountID returns the account the contract lives on.
func (c *Contract) AccountID() string {
	return c.accountID
}

// Call invokes a method signed by the contract account itself. The client
// must hold the contract account's keys.
func (c *Contract) Call(ctx context.Context, method string, args any, opts ...CallOpt) (*CallResult, error) {
	return c.client.CallFunction(ctx, c.accountID, c.accountID, method, args, opts...)
}

// CallAs invokes a method signed by another account.
func (c *Contract) CallAs(ctx context.Context, caller *Account, method string, args any, opts ...CallOpt) (*CallResult, error) {
	return c.client.CallFunction(ctx, caller.ID(), c.accountID, method, args, opts...)
}

// View performs a read-only call.
func (c *Contract) View(ctx context.Context, method string, args any) ([]byte, error) {
	return c.client.ViewFunction(ctx, c.accountID, method, args)
}
