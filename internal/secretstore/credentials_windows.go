//go:build windows

package secretstore

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/danieljoos/wincred"
)

// maxCredentialBlob is the largest blob Credential Manager accepts for a
// generic credential.
const maxCredentialBlob = 2560

// credentialStore keeps secrets as generic credentials in the Windows
// Credential Manager. Blobs are stored verbatim, so no encoding is needed.
type credentialStore string

// Credentials returns a store whose targets are "<service>:<name>".
func Credentials(service string) Store { return credentialStore(service) }

func (c credentialStore) String() string { return "wincred:" + string(c) }

func (c credentialStore) target(name string) string { return string(c) + ":" + name }

func (c credentialStore) Put(n string, d []byte) error {
	if len(d) > maxCredentialBlob {
		return ErrTooLarge
	}
	target := c.target(n)
	if len(target) >= 512 {
		return ErrTooLarge
	}

	cred := wincred.NewGenericCredential(target)
	cred.UserName = n
	cred.CredentialBlob = d
	cred.Persist = wincred.PersistLocalMachine
	if err := cred.Write(); err != nil {
		return translateCredErr(err)
	}
	return nil
}

func (c credentialStore) Get(n string) ([]byte, error) {
	cred, err := wincred.GetGenericCredential(c.target(n))
	if err != nil {
		return nil, translateCredErr(err)
	}
	if cred.CredentialBlob == nil {
		return []byte{}, nil
	}
	return cred.CredentialBlob, nil
}

func (c credentialStore) Delete(n string) error {
	cred, err := wincred.GetGenericCredential(c.target(n))
	if err != nil {
		return translateCredErr(err)
	}
	if err := cred.Delete(); err != nil {
		return translateCredErr(err)
	}
	return nil
}

func translateCredErr(err error) error {
	switch {
	case errors.Is(err, syscall.ERROR_NOT_FOUND):
		return ErrNotFound
	case errors.Is(err, syscall.ERROR_ACCESS_DENIED):
		return ErrAccessDenied
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
