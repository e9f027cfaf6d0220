//go:build windows

package secretstore

func osVault(service string) Store { return Credentials(service) }

func platformStore(opts Options) (Store, error) { return Credentials(opts.Service), nil }
