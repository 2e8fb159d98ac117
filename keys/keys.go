// Package keys holds the ed25519 key material used to sign sandbox
// transactions. NEAR encodes both halves of a key pair as
// "ed25519:<base58>", with the secret key being the 64-byte expanded form.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const ed25519Prefix = "ed25519:"

var errUnsupportedCurve = errors.New("unsupported key type: only ed25519 keys are supported")

// PublicKey is a NEAR ed25519 public key.
type PublicKey [ed25519.PublicKeySize]byte

// String returns the key in NEAR's "ed25519:<base58>" form.
func (pk PublicKey) String() string {
	return ed25519Prefix + base58.Encode(pk[:])
}

// Bytes returns the raw 32-byte key.
func (pk PublicKey) Bytes() []byte {
	return pk[:]
}

// KeyPair is an immutable ed25519 signing key pair. Replacing a key pair
// means generating a new KeyPair, never mutating an existing one.
type KeyPair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// GenerateKeyPair creates a new random key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}

	return &KeyPair{pub: pub, priv: priv}, nil
}

// ParseSecretKey parses a NEAR-encoded secret key ("ed25519:<base58>") into a
// key pair. The encoded payload is the 64-byte expanded private key, whose
// second half is the public key.
func ParseSecretKey(encoded string) (*KeyPair, error) {
	raw, err := decodeNearKey(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid secret key length %d, want %d", len(raw), ed25519.PrivateKeySize)
	}

	priv := ed25519.PrivateKey(raw)

	return &KeyPair{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

// ParsePublicKey parses a NEAR-encoded public key ("ed25519:<base58>").
func ParsePublicKey(encoded string) (PublicKey, error) {
	raw, err := decodeNearKey(encoded)
	if err != nil {
		return PublicKey{}, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("invalid public key length %d, want %d", len(raw), ed25519.PublicKeySize)
	}

	var pk PublicKey
	copy(pk[:], raw)

	return pk, nil
}

// PublicKey returns the public half of the pair.
func (kp *KeyPair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], kp.pub)

	return pk
}

// SecretKey returns the secret key in NEAR's "ed25519:<base58>" form.
func (kp *KeyPair) SecretKey() string {
	return ed25519Prefix + base58.Encode(kp.priv)
}

// Sign signs data with the secret key.
func (kp *KeyPair) Sign(data []byte) []byte {
	return ed25519.Sign(kp.priv, data)
}

func decodeNearKey(encoded string) ([]byte, error) {
	payload, ok := strings.CutPrefix(encoded, ed25519Prefix)
	if !ok {
		return nil, errUnsupportedCurve
	}

	raw, err := base58.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base58 key: %w", err)
	}

	return raw, nil
}
