// Package harness boots a disposable NEAR sandbox chain and hands tests a
// ready-to-use client bound to the validator's master account.
package harness

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/smartcontractkit/freeport"

	"github.com/r-near/near-harness/client"
	"github.com/r-near/near-harness/pkg/logger"
	"github.com/r-near/near-harness/sandbox"
)

// ProviderConfig holds the configuration to initialize the Provider.
type ProviderConfig struct {
	// Optional: validator home directory. If empty, a temporary directory
	// is created and removed on teardown.
	HomeDir string

	// Optional: JSON-RPC port. If 0, a free port is automatically selected
	// using freeport.
	RPCPort int

	// Optional: near-sandbox binary path. If empty, the binary is resolved
	// from the environment, PATH, or a cached download.
	BinaryPath string

	// Optional: nearcore release to download when no binary is found
	// locally.
	BinaryVersion string

	Logger logger.Logger
}

// validate checks if the ProviderConfig is valid.
func (c ProviderConfig) validate() error {
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return errors.New("rpc port out of range")
	}

	return nil
}

// Chain is a running sandbox chain: the supervised validator process, a
// client wired to it, and the funded master account.
type Chain struct {
	Sandbox       *sandbox.Sandbox
	Client        *client.Client
	MasterAccount *client.Account

	savedState  []sandbox.StateRecord
	alwaysReset bool
}

// Provider boots a NEAR sandbox validator on the local machine.
//
// Starting the validator takes a few seconds, so it is recommended to
// initialize the provider once per test suite or parent test.
type Provider struct {
	t      *testing.T
	config ProviderConfig

	chain *Chain
}

// NewProvider creates a new Provider with the given configuration. The
// caller owns teardown via Close.
func NewProvider(config ProviderConfig) *Provider {
	return &Provider{config: config}
}

// NewTestProvider creates a Provider whose teardown runs automatically when
// the test finishes.
func NewTestProvider(t *testing.T, config ProviderConfig) *Provider {
	t.Helper()

	p := &Provider{t: t, config: config}
	t.Cleanup(func() { _ = p.Close() })

	return p
}

// Initialize boots the validator, waits for it to answer, and builds the
// chain client from the validator key. Calling it again returns the same
// chain.
func (p *Provider) Initialize(ctx context.Context) (*Chain, error) {
	if p.chain != nil {
		return p.chain, nil // Already initialized
	}

	if err := p.config.validate(); err != nil {
		return nil, fmt.Errorf("failed to validate provider config: %w", err)
	}

	rpcPort := p.config.RPCPort
	if rpcPort == 0 {
		rpcPort = freeport.MustTake(1)[0]
	}

	sb, err := sandbox.New(sandbox.Config{
		HomeDir:       p.config.HomeDir,
		RPCPort:       rpcPort,
		BinaryPath:    p.config.BinaryPath,
		BinaryVersion: p.config.BinaryVersion,
		Logger:        p.config.Logger,
	})
	if err != nil {
		return nil, err
	}

	if err := sb.Start(ctx); err != nil {
		return nil, err
	}

	key, err := sb.ValidatorKeyFile()
	if err != nil {
		_ = sb.Stop()

		return nil, err
	}

	cl, err := client.New(client.Config{
		Endpoint:        sb.RPCEndpoint(),
		MasterAccountID: key.AccountID,
		MasterSecretKey: key.SecretKey,
		Logger:          p.config.Logger,
	})
	if err != nil {
		_ = sb.Stop()

		return nil, err
	}

	p.chain = &Chain{
		Sandbox:       sb,
		Client:        cl,
		MasterAccount: cl.MasterAccount(),
	}

	return p.chain, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "NEAR Sandbox Chain Provider"
}

// Close stops the client executor and the validator process. Safe to call
// before Initialize and more than once.
func (p *Provider) Close() error {
	if p.chain == nil {
		return nil
	}

	p.chain.Client.Close()
	err := p.chain.Sandbox.Stop()
	p.chain = nil

	return err
}
