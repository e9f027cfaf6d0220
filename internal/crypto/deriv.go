package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveHKDF derives n bytes from a master key with a context string.
func DeriveHKDF(master []byte, context string, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(context))
	out := make([]byte, n)
	_, err := io.ReadFull(r, out)
	return out, err
}

// LockKey derives the key sealing a single lock's payload. Each lock name
// gets its own subkey so one biometrics key can serve several locks.
func LockKey(biometricsKey []byte, lockName string) ([]byte, error) {
	return DeriveHKDF(biometricsKey, "biovault/lock/"+lockName, KeySize)
}
