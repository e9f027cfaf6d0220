package secretstore

import (
	"fmt"
	"path/filepath"

	"github.com/n1/biovault/internal/log"
	"github.com/spf13/afero"
)

// Backend names accepted by Open.
const (
	BackendAuto    = "auto"
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendMemory  = "memory"
)

// Options selects and scopes a store.
type Options struct {
	// Backend is one of the Backend* names; empty means auto.
	Backend string
	// Service namespaces every secret name.
	Service string
	// Dir is the data directory; the file store lives in Dir/secrets/<service>.
	Dir string
}

func (o Options) fileStore() *FileStore {
	return NewFileStore(afero.NewOsFs(), filepath.Join(o.Dir, "secrets", o.Service))
}

// Open returns the store named by opts.Backend. Auto picks the platform
// vault, degrading to the file store where the platform allows it.
func Open(opts Options) (Store, error) {
	if opts.Service == "" {
		return nil, fmt.Errorf("secret store needs a service name")
	}

	var (
		s   Store
		err error
	)
	switch opts.Backend {
	case BackendAuto, "":
		s, err = platformStore(opts)
	case BackendKeyring:
		s = osVault(opts.Service)
	case BackendFile:
		if opts.Dir == "" {
			return nil, fmt.Errorf("file secret store needs a data directory")
		}
		s = opts.fileStore()
	case BackendMemory:
		s = NewMemory()
	default:
		return nil, fmt.Errorf("unknown secret store backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().Str("store", fmt.Sprint(s)).Msg("Secret store selected")
	return s, nil
}
