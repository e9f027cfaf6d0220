//go:build !windows

package secretstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	storeContract(t, Keyring("biovault-test"))
}

func TestKeyringProbe(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyringStore("biovault-test").probe())
}
