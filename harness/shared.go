package harness

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r-near/near-harness/pkg/logger"
)

var (
	sharedMu       sync.Mutex
	sharedProvider *Provider
	sharedChain    *Chain
)

// Shared returns a process-wide chain, booting it with configuration from
// the environment on first use. Tests that can share one validator use this
// instead of paying the startup cost per test.
//
// Teardown is explicit: call CloseShared from TestMain after m.Run. Without
// it the validator process is only reaped when the test process exits.
func Shared(t *testing.T) *Chain {
	t.Helper()

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedChain != nil {
		return sharedChain
	}

	envCfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	cfg := envCfg.ProviderConfig()
	if cfg.Logger == nil {
		lggr, err := logger.New()
		require.NoError(t, err)
		cfg.Logger = lggr
	}

	p := NewProvider(cfg)
	chain, err := p.Initialize(context.Background())
	require.NoError(t, err)

	chain.alwaysReset = envCfg.AlwaysReset
	sharedProvider = p
	sharedChain = chain

	return chain
}

// CloseShared tears down the chain created by Shared, if any.
func CloseShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedProvider == nil {
		return nil
	}

	err := sharedProvider.Close()
	sharedProvider = nil
	sharedChain = nil

	return err
}
