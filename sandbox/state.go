package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// StateRecord is one opaque genesis record as produced by the validator's
// state dump. Records round trip through dump and restore untouched.
type StateRecord = json.RawMessage

// ValidatorKey is the signing key the validator was initialized with. Its
// account owns the genesis balance and acts as the root of the account tree.
type ValidatorKey struct {
	AccountID string `json:"account_id"`
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key"`
}

// ResetState wipes the chain back to genesis by stopping the validator,
// deleting its data directory, and starting it again. The validator key and
// genesis config survive, so account identities stay stable across resets.
func (s *Sandbox) ResetState(ctx context.Context) error {
	s.lggr.Info("Resetting sandbox to genesis")

	s.mu.Lock()
	s.stopProcessLocked()
	err := os.RemoveAll(filepath.Join(s.homeDir, "data"))
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to remove sandbox data: %w", err)
	}

	return s.Start(ctx)
}

// DumpState captures the full chain state as a list of records. The dump is
// deterministic for identical prior state, so callers may compare or cache
// it.
func (s *Sandbox) DumpState(ctx context.Context) ([]StateRecord, error) {
	s.lggr.Debug("Dumping sandbox state")

	s.mu.Lock()
	err := s.runCommand(ctx, "view-state", "dump-state")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.homeDir, "output.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read state dump: %w", err)
	}

	var dump struct {
		Records []StateRecord `json:"records"`
	}
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("failed to decode state dump: %w", err)
	}

	s.lggr.Debugf("Dumped %d state records", len(dump.Records))

	return dump.Records, nil
}

// RestoreState patches previously dumped records into the running chain. A
// failure is returned rather than fatal so callers can fall back to
// ResetState.
func (s *Sandbox) RestoreState(ctx context.Context, records []StateRecord) error {
	s.lggr.Debugf("Restoring %d state records", len(records))

	return s.rpc.PatchState(ctx, records)
}

// ValidatorKeyFile reads the validator signing key from the home directory.
// Start must have initialized the sandbox first.
func (s *Sandbox) ValidatorKeyFile() (*ValidatorKey, error) {
	data, err := os.ReadFile(filepath.Join(s.homeDir, "validator_key.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read validator key: %w", err)
	}

	var key ValidatorKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to parse validator key: %w", err)
	}
	if key.SecretKey == "" {
		return nil, errors.New("validator key has no secret key")
	}

	return &key, nil
}
