// Package secretstore keeps small named secrets in the operating system's
// credential vault. Exactly one platform store is compiled per GOOS; the
// file and memory stores are available everywhere.
package secretstore

import "errors"

var (
	// ErrNotFound is returned when no secret exists under a name.
	ErrNotFound = errors.New("secret not found")
	// ErrUnavailable is returned when the backing vault cannot be reached.
	ErrUnavailable = errors.New("secret store unavailable")
	// ErrTooLarge is returned when a value exceeds what the vault can hold.
	ErrTooLarge = errors.New("secret too large for store")
	// ErrAccessDenied is returned when the vault refuses access to an entry.
	ErrAccessDenied = errors.New("secret store access denied")
)

// Store holds opaque byte values under names. Put overwrites; Get and
// Delete return ErrNotFound for missing names.
type Store interface {
	Put(name string, data []byte) error
	Get(name string) ([]byte, error)
	Delete(name string) error
}
