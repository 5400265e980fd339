// Package keystest provides signing keys for tests.
package keystest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openkcm/openid-provider/internal/keys"
)

// NewSigningKeyPair generates a fresh key pair of the minimum size.
func NewSigningKeyPair(t testing.TB) *keys.SigningKeyPair {
	t.Helper()

	priv, err := keys.Generate(keys.MinRSABits)
	require.NoError(t, err)

	pair, err := keys.NewSigningKeyPair(priv)
	require.NoError(t, err)

	return pair
}

// WriteKeyFile writes a freshly generated key into a temporary directory
// and returns its path.
func WriteKeyFile(t testing.TB) string {
	t.Helper()

	priv, err := keys.Generate(keys.MinRSABits)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "priv.pem")
	require.NoError(t, os.WriteFile(path, keys.EncodePEM(priv), 0o600))

	return path
}
