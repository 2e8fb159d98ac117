package keys

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_GenerateKeyPair(t *testing.T) {
	t.Parallel()

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(kp.PublicKey().String(), "ed25519:"))
	assert.True(t, strings.HasPrefix(kp.SecretKey(), "ed25519:"))

	// Signatures produced by the pair must verify against its public key.
	msg := []byte("sandbox")
	sig := kp.Sign(msg)
	assert.True(t, ed25519.Verify(kp.PublicKey().Bytes(), msg, sig))
}

func Test_ParseSecretKey_roundTrip(t *testing.T) {
	t.Parallel()

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	parsed, err := ParseSecretKey(kp.SecretKey())
	require.NoError(t, err)

	assert.Equal(t, kp.PublicKey(), parsed.PublicKey())
	assert.Equal(t, kp.SecretKey(), parsed.SecretKey())
}

func Test_ParseSecretKey_errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		give    string
		wantErr string
	}{
		{
			name:    "missing prefix",
			give:    "3D4YudUahN1nawWogh8pAKSj92sUNMdbZGjn7kERKzYoTy8tnFQuwoGUC51DowKqorvkr2pytJSnwuSbsNVfqygr",
			wantErr: "unsupported key type",
		},
		{
			name:    "bad base58",
			give:    "ed25519:0OIl",
			wantErr: "failed to decode base58 key",
		},
		{
			name:    "wrong length",
			give:    "ed25519:2xNWab",
			wantErr: "invalid secret key length",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseSecretKey(tt.give)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func Test_ParsePublicKey_roundTrip(t *testing.T) {
	t.Parallel()

	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	pk, err := ParsePublicKey(kp.PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKey(), pk)

	_, err = ParsePublicKey("ed25519:2xNWab")
	require.ErrorContains(t, err, "invalid public key length")
}
