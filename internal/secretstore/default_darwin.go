//go:build darwin

package secretstore

func osVault(service string) Store { return Keyring(service) }

// The login keychain is always present on macOS.
func platformStore(opts Options) (Store, error) { return Keyring(opts.Service), nil }
