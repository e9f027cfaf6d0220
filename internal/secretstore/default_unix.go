//go:build !darwin && !windows

package secretstore

import (
	"fmt"

	"github.com/n1/biovault/internal/log"
)

func osVault(service string) Store { return Keyring(service) }

// platformStore prefers the Secret Service and falls back to the file
// store on headless hosts where no provider owns the D-Bus name.
func platformStore(opts Options) (Store, error) {
	k := keyringStore(opts.Service)
	err := k.probe()
	if err == nil {
		return k, nil
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("secret service unavailable and no data directory for fallback: %w", err)
	}
	log.Warn().Err(err).Str("dir", opts.Dir).Msg("Secret Service unavailable, falling back to file store")
	return opts.fileStore(), nil
}
