package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/r-near/near-harness/client"
	"github.com/r-near/near-harness/tx"
)

// CreateAccount creates a child account of the master account funded with
// the default balance.
func (ch *Chain) CreateAccount(ctx context.Context, name string) (*client.Account, error) {
	return ch.Client.CreateAccount(ctx, name, tx.Balance{})
}

// DeployAndInit creates a fresh account named after the wasm file, deploys
// the bytecode to it, and optionally calls an init method. initMethod may be
// empty for contracts without an initializer.
func (ch *Chain) DeployAndInit(ctx context.Context, wasmPath, initMethod string, initArgs any) (*client.Contract, error) {
	name := strings.TrimSuffix(filepath.Base(wasmPath), ".wasm")
	name = strings.ReplaceAll(strings.ToLower(name), "_", "-")

	account, err := ch.CreateAccount(ctx, name)
	if err != nil {
		return nil, err
	}

	if _, err := ch.Client.DeployContractFile(ctx, account.ID(), wasmPath); err != nil {
		return nil, err
	}

	contract := client.NewContract(ch.Client, account.ID())

	if initMethod != "" {
		if _, err := contract.Call(ctx, initMethod, initArgs); err != nil {
			return nil, fmt.Errorf("failed to init contract %s: %w", account.ID(), err)
		}
	}

	return contract, nil
}

// SaveState snapshots the full chain state. The snapshot is held on the
// Chain and reapplied by RestoreSavedState.
func (ch *Chain) SaveState(ctx context.Context) error {
	records, err := ch.Sandbox.DumpState(ctx)
	if err != nil {
		return err
	}
	ch.savedState = records

	return nil
}

// RestoreSavedState patches the chain back to the last snapshot. This is the
// fast per-test isolation path; callers may fall back to Reset when it
// fails.
func (ch *Chain) RestoreSavedState(ctx context.Context) error {
	if ch.savedState == nil {
		return fmt.Errorf("no saved state to restore")
	}

	return ch.Sandbox.RestoreState(ctx, ch.savedState)
}

// Reset wipes the chain back to genesis by restarting the validator. Much
// slower than RestoreSavedState.
func (ch *Chain) Reset(ctx context.Context) error {
	return ch.Sandbox.ResetState(ctx)
}

// Isolate reverts the chain to the last saved snapshot when the test
// finishes. Call SaveState once after shared setup, then Isolate in each
// test that mutates chain state. With NEAR_SANDBOX_ALWAYS_RESET set, the
// revert is a full genesis reset instead of a snapshot restore.
func (ch *Chain) Isolate(t *testing.T) {
	t.Helper()

	t.Cleanup(func() {
		ctx := context.Background()

		if ch.alwaysReset {
			if err := ch.Reset(ctx); err != nil {
				t.Logf("failed to reset chain: %v", err)
			}

			return
		}

		if err := ch.RestoreSavedState(ctx); err != nil {
			t.Logf("failed to restore saved state: %v", err)
		}
	})
}
