package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/r-near/near-harness/keys"
)

// Identity is a signing identity known to the client: an account ID, its key
// pair, and a locally tracked access key nonce. The key material never
// changes after construction; only the nonce cache does.
type Identity struct {
	accountID string
	keyPair   *keys.KeyPair

	mu     sync.Mutex
	nonce  uint64
	synced bool
}

func newIdentity(accountID string, kp *keys.KeyPair) *Identity {
	return &Identity{accountID: accountID, keyPair: kp}
}

// AccountID returns the account this identity signs for.
func (id *Identity) AccountID() string {
	return id.accountID
}

// PublicKey returns the identity's public key.
func (id *Identity) PublicKey() keys.PublicKey {
	return id.keyPair.PublicKey()
}

// nextNonce reserves the next access key nonce, syncing from the chain the
// first time or after a desync.
func (id *Identity) nextNonce(ctx context.Context, rpc rpc) (uint64, error) {
	id.mu.Lock()
	defer id.mu.Unlock()

	if !id.synced {
		view, err := rpc.ViewAccessKey(ctx, id.accountID, id.keyPair.PublicKey().String())
		if err != nil {
			return 0, fmt.Errorf("failed to sync nonce for %s: %w", id.accountID, err)
		}
		id.nonce = view.Nonce
		id.synced = true
	}

	id.nonce++

	return id.nonce, nil
}

// desync drops the cached nonce so the next use re-reads it from the chain.
// Called after a failed broadcast, where the consumed nonce is unknowable.
func (id *Identity) desync() {
	id.mu.Lock()
	id.synced = false
	id.mu.Unlock()
}
