// Package biometrics is the biometric-gated secret storage capability: it
// probes for presence verification, prompts for it, and keeps secrets in
// the operating system's credential vault.
//
// The platform pieces are chosen at build time by the presence and
// secretstore packages; Backend composes them and gives every failure a
// Kind.
package biometrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/n1/biovault/internal/log"
	"github.com/n1/biovault/internal/presence"
	"github.com/n1/biovault/internal/secretstore"
	"github.com/rs/zerolog"
)

// Biometrics is the capability every platform backend provides.
type Biometrics interface {
	// CanCheckPresence reports whether presence verification can be used.
	// It never prompts.
	CanCheckPresence(ctx context.Context) (bool, error)
	// CheckPresence prompts the user and blocks until the prompt resolves
	// or ctx is done. handle anchors the prompt to a native window where
	// the platform supports it.
	CheckPresence(ctx context.Context, handle []byte, reason string) error
	// GetSecret returns the bytes stored under key.
	GetSecret(ctx context.Context, key string) ([]byte, error)
	// SetSecret stores data under key, replacing any previous value.
	SetSecret(ctx context.Context, key string, data []byte) error
	// DeleteSecret removes key; a missing key is KindNotFound.
	DeleteSecret(ctx context.Context, key string) error
}

// Operation names used in errors and logs.
const (
	OpCanCheckPresence = "can_check_presence"
	OpCheckPresence    = "check_presence"
	OpGetSecret        = "get_secret"
	OpSetSecret        = "set_secret"
	OpDeleteSecret     = "delete_secret"
)

// Backend implements Biometrics over a presence verifier and a secret
// store. Writes and deletes are serialised; reads are not.
type Backend struct {
	verifier presence.Verifier
	store    secretstore.Store
	logger   zerolog.Logger

	mu sync.Mutex
}

var _ Biometrics = (*Backend)(nil)

// NewBackend composes a verifier and a store.
func NewBackend(v presence.Verifier, s secretstore.Store) *Backend {
	return &Backend{
		verifier: v,
		store:    s,
		logger:   log.With("biometrics"),
	}
}

// Options select the platform pieces for New.
type Options struct {
	Store    secretstore.Options
	Presence presence.Options
}

// New builds the backend for this platform. The memory store backend is
// paired with a verifier that always succeeds, for headless use.
func New(opts Options) (*Backend, error) {
	store, err := secretstore.Open(opts.Store)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}

	var v presence.Verifier
	if opts.Store.Backend == secretstore.BackendMemory {
		v = presence.NewStatic(true, nil)
	} else {
		v = presence.New(opts.Presence)
	}
	return NewBackend(v, store), nil
}

func (b *Backend) CanCheckPresence(ctx context.Context) (bool, error) {
	ok, err := b.verifier.Available(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Presence probe failed")
		return false, wrap(OpCanCheckPresence, "", err)
	}
	b.logger.Debug().Bool("available", ok).Msg("Presence probed")
	return ok, nil
}

func (b *Backend) CheckPresence(ctx context.Context, handle []byte, reason string) error {
	if reason == "" {
		return &Error{Op: OpCheckPresence, Kind: KindInvalidArgument, Err: fmt.Errorf("reason is empty")}
	}

	b.logger.Info().Int("handle_len", len(handle)).Msg("Requesting presence verification")
	if err := b.verifier.Verify(ctx, handle, reason); err != nil {
		err = wrap(OpCheckPresence, "", err)
		b.logger.Info().Err(err).Str("kind", KindOf(err).String()).Msg("Presence not verified")
		return err
	}
	b.logger.Info().Msg("Presence verified")
	return nil
}

func (b *Backend) GetSecret(ctx context.Context, key string) ([]byte, error) {
	if err := b.checkKey(ctx, OpGetSecret, key); err != nil {
		return nil, err
	}

	data, err := b.store.Get(key)
	if err != nil {
		b.logger.Debug().Err(err).Str("key", key).Msg("Secret read failed")
		return nil, wrap(OpGetSecret, key, err)
	}
	b.logger.Debug().Str("key", key).Msg("Secret read")
	return data, nil
}

func (b *Backend) SetSecret(ctx context.Context, key string, data []byte) error {
	if err := b.checkKey(ctx, OpSetSecret, key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.store.Put(key, data); err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("Secret write failed")
		return wrap(OpSetSecret, key, err)
	}
	b.logger.Info().Str("key", key).Int("size", len(data)).Msg("Secret stored")
	return nil
}

func (b *Backend) DeleteSecret(ctx context.Context, key string) error {
	if err := b.checkKey(ctx, OpDeleteSecret, key); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.store.Delete(key); err != nil {
		b.logger.Debug().Err(err).Str("key", key).Msg("Secret delete failed")
		return wrap(OpDeleteSecret, key, err)
	}
	b.logger.Info().Str("key", key).Msg("Secret deleted")
	return nil
}

// checkKey rejects invalid keys and already-cancelled contexts before the
// store is touched.
func (b *Backend) checkKey(ctx context.Context, op, key string) error {
	if err := ValidateKey(key); err != nil {
		return &Error{Op: op, Key: key, Kind: KindInvalidKey, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &Error{Op: op, Key: key, Kind: KindUserCancelled, Err: err}
	}
	return nil
}
