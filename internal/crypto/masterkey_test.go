package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	key, err := Generate(KeySize)
	require.NoError(t, err)
	require.Len(t, key, KeySize)
}

func TestWipe(t *testing.T) {
	key := []byte{1, 2, 3}
	Wipe(key)
	require.Equal(t, []byte{0, 0, 0}, key)
}

func TestLockKey(t *testing.T) {
	master, err := Generate(KeySize)
	require.NoError(t, err)

	a1, err := LockKey(master, "default")
	require.NoError(t, err)
	a2, err := LockKey(master, "default")
	require.NoError(t, err)
	b, err := LockKey(master, "other")
	require.NoError(t, err)

	require.Len(t, a1, KeySize)
	require.Equal(t, a1, a2, "derivation must be deterministic")
	require.NotEqual(t, a1, b, "lock names must yield distinct keys")
}
