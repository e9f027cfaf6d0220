//go:build !windows

package secretstore

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keyringStore keeps secrets in the macOS Keychain or the freedesktop
// Secret Service. go-keyring only carries strings, so values are stored
// base64 encoded.
type keyringStore string

// Keyring returns a store scoped to the given keyring service name.
func Keyring(service string) Store { return keyringStore(service) }

func (k keyringStore) String() string { return "keyring:" + string(k) }

func (k keyringStore) Put(n string, d []byte) error {
	if err := keyring.Set(string(k), n, base64.StdEncoding.EncodeToString(d)); err != nil {
		return translateKeyringErr(err)
	}
	return nil
}

func (k keyringStore) Get(n string) ([]byte, error) {
	s, err := keyring.Get(string(k), n)
	if err != nil {
		return nil, translateKeyringErr(err)
	}
	d, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode keyring entry %q: %w", n, err)
	}
	return d, nil
}

func (k keyringStore) Delete(n string) error {
	if err := keyring.Delete(string(k), n); err != nil {
		return translateKeyringErr(err)
	}
	return nil
}

// probe reports whether the keyring answers at all. A missing entry is a
// healthy answer.
func (k keyringStore) probe() error {
	_, err := keyring.Get(string(k), "__biovault_probe__")
	if err == nil || errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return translateKeyringErr(err)
}

func translateKeyringErr(err error) error {
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, keyring.ErrSetDataTooBig):
		return ErrTooLarge
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
