// Package lock keeps an offline key-derivation secret behind presence
// verification. The secret is sealed under a random biometrics key that
// lives in the OS credential vault; only the sealed blob and a verifier
// reach the lock database.
//
// Failed unlocks are counted. After MaxAttempts the biometrics key is
// dropped and the lock falls back to password mode, as it does when the
// sealed blob no longer opens.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/n1/biovault/internal/biometrics"
	"github.com/n1/biovault/internal/crypto"
	"github.com/n1/biovault/internal/dao"
	"github.com/n1/biovault/internal/installid"
	"github.com/n1/biovault/internal/log"
	"github.com/rs/zerolog"
)

// DefaultMaxAttempts is the unlock retry budget.
const DefaultMaxAttempts = 3

var (
	// ErrNoLock is returned when no lock exists under the manager's name.
	ErrNoLock = errors.New("no lock configured")
	// ErrTooManyAttempts is returned when the retry budget is spent; the
	// lock is now in password mode.
	ErrTooManyAttempts = errors.New("too many unlock attempts")
	// ErrFallbackPassword is returned when the biometrics key cannot open
	// the sealed secret; the lock is now in password mode.
	ErrFallbackPassword = errors.New("biometric lock invalid, password required")
	// ErrWrongMode is returned for a biometric unlock of a lock that is
	// not in biometrics mode.
	ErrWrongMode = errors.New("lock is not in biometrics mode")
	// ErrInvalidSecret is returned when an offline secret does not match
	// the lock's verifier.
	ErrInvalidSecret = errors.New("offline secret does not match")
)

// State is the externally visible state of a lock.
type State struct {
	Mode       dao.Mode
	Locked     bool
	TTL        time.Duration
	RetryCount int
}

// Options tune a Manager.
type Options struct {
	// Name identifies the lock; several locks may share a database.
	Name        string
	MaxAttempts int
	Clock       quartz.Clock
}

// Manager drives one named lock.
type Manager struct {
	bio         biometrics.Biometrics
	locks       *dao.LockDAO
	clock       quartz.Clock
	name        string
	secretName  string
	maxAttempts int
	logger      zerolog.Logger

	mu sync.Mutex
}

// NewManager binds a lock name to a bootstrapped lock database and a
// biometrics capability.
func NewManager(ctx context.Context, db *sql.DB, bio biometrics.Biometrics, opts Options) (*Manager, error) {
	if opts.Name == "" {
		opts.Name = "default"
	}
	if err := biometrics.ValidateKey(opts.Name); err != nil {
		return nil, fmt.Errorf("invalid lock name: %w", err)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}

	id, err := installid.Ensure(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("installation id: %w", err)
	}
	secretName := installid.FormatSecretName(id) + "/" + opts.Name
	if err := biometrics.ValidateKey(secretName); err != nil {
		return nil, fmt.Errorf("lock name too long: %w", err)
	}

	return &Manager{
		bio:         bio,
		locks:       dao.NewLockDAO(db),
		clock:       opts.Clock,
		name:        opts.Name,
		secretName:  secretName,
		maxAttempts: opts.MaxAttempts,
		logger:      log.With("lock").With().Str("lock", opts.Name).Logger(),
	}, nil
}

// SecretName is the key under which the biometrics key is stored.
func (m *Manager) SecretName() string { return m.secretName }

func stateOf(rec *dao.LockRecord) State {
	return State{Mode: rec.Mode, Locked: rec.Locked, TTL: rec.TTL, RetryCount: rec.RetryCount}
}

// Create seals offlineKD under a fresh biometrics key and puts the lock in
// biometrics mode, replacing any previous lock of the same name.
func (m *Manager) Create(ctx context.Context, offlineKD []byte, ttl time.Duration) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info().Msg("Creating biometric lock")
	if len(offlineKD) == 0 {
		return State{}, fmt.Errorf("offline secret is empty")
	}

	key, err := crypto.Generate(crypto.KeySize)
	if err != nil {
		return State{}, fmt.Errorf("generate biometrics key: %w", err)
	}
	defer crypto.Wipe(key)

	sealed, err := m.seal(key, offlineKD)
	if err != nil {
		return State{}, err
	}
	verifier, err := newVerifier(offlineKD)
	if err != nil {
		return State{}, err
	}

	if err := m.bio.SetSecret(ctx, m.secretName, key); err != nil {
		return State{}, fmt.Errorf("store biometrics key: %w", err)
	}

	rec := &dao.LockRecord{
		Name:         m.name,
		Mode:         dao.ModeBiometrics,
		EncryptedKD:  sealed,
		Verifier:     verifier,
		TTL:          ttl,
		LastExtendAt: m.clock.Now(),
	}
	if err := m.locks.Put(ctx, rec); err != nil {
		if delErr := m.bio.DeleteSecret(ctx, m.secretName); delErr != nil {
			m.logger.Warn().Err(delErr).Msg("Failed to remove biometrics key after aborted create")
		}
		return State{}, fmt.Errorf("persist lock: %w", err)
	}
	return stateOf(rec), nil
}

// Check reports the lock state and restarts its TTL window.
func (m *Manager) Check(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.locks.Get(ctx, m.name)
	if errors.Is(err, dao.ErrNotFound) {
		return State{Mode: dao.ModeNone}, nil
	}
	if err != nil {
		return State{}, err
	}
	if rec.Mode == dao.ModeNone {
		return stateOf(rec), nil
	}
	if err := m.locks.Extend(ctx, m.name, m.clock.Now()); err != nil {
		return State{}, err
	}
	return stateOf(rec), nil
}

// Expired reports whether the TTL elapsed since the last Check, Create or
// successful unlock. A zero TTL never expires.
func (m *Manager) Expired(ctx context.Context) (bool, error) {
	rec, err := m.locks.Get(ctx, m.name)
	if errors.Is(err, dao.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.TTL <= 0 || rec.LastExtendAt.IsZero() {
		return false, nil
	}
	return m.clock.Now().Sub(rec.LastExtendAt) > rec.TTL, nil
}

// Lock marks the lock as locked.
func (m *Manager) Lock(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info().Msg("Locking")
	if err := m.locks.SetLocked(ctx, m.name, true); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return State{}, ErrNoLock
		}
		return State{}, err
	}
	rec, err := m.locks.Get(ctx, m.name)
	if err != nil {
		return State{}, err
	}
	return stateOf(rec), nil
}

// Unlock verifies presence, fetches the biometrics key and opens the
// sealed offline secret, which it returns.
func (m *Manager) Unlock(ctx context.Context, handle []byte, reason string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.locks.Get(ctx, m.name)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, ErrNoLock
	}
	if err != nil {
		return nil, err
	}
	if rec.Mode != dao.ModeBiometrics {
		return nil, ErrWrongMode
	}
	attempt := rec.RetryCount + 1

	if err := m.bio.CheckPresence(ctx, handle, reason); err != nil {
		// A bad reason or handle is the caller's mistake, not a failed
		// verification.
		if errors.Is(err, biometrics.ErrInvalidArgument) {
			return nil, err
		}
		return nil, m.failAttempt(ctx, rec, attempt, err)
	}

	// A missing key only costs an attempt; password mode follows once the
	// budget is spent.
	key, err := m.bio.GetSecret(ctx, m.secretName)
	if err != nil {
		return nil, m.failAttempt(ctx, rec, attempt, err)
	}
	defer crypto.Wipe(key)

	offlineKD, err := m.open(key, rec.EncryptedKD)
	if err == nil {
		err = checkVerifier(offlineKD, rec.Verifier)
	}
	if err != nil {
		return nil, m.fallback(ctx, rec, err)
	}

	rec.RetryCount = 0
	rec.Locked = false
	rec.LastExtendAt = m.clock.Now()
	if err := m.locks.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist unlock: %w", err)
	}
	m.logger.Info().Msg("Unlocked with biometrics")
	return offlineKD, nil
}

// UnlockPassword unlocks with an offline secret the caller derived from the
// user's password. It is the way out of password mode.
func (m *Manager) UnlockPassword(ctx context.Context, offlineKD []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.locks.Get(ctx, m.name)
	if errors.Is(err, dao.ErrNotFound) {
		return ErrNoLock
	}
	if err != nil {
		return err
	}
	if err := checkVerifier(offlineKD, rec.Verifier); err != nil {
		return ErrInvalidSecret
	}

	rec.Locked = false
	rec.RetryCount = 0
	rec.LastExtendAt = m.clock.Now()
	return m.locks.Put(ctx, rec)
}

// Delete removes the lock and its biometrics key.
func (m *Manager) Delete(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info().Msg("Deleting lock")
	if err := m.locks.Delete(ctx, m.name); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return State{}, ErrNoLock
		}
		return State{}, err
	}
	m.dropKey(ctx)
	return State{Mode: dao.ModeNone}, nil
}

// failAttempt records a failed unlock, falling back to password mode once
// the budget is spent. Cancelled prompts count as attempts.
func (m *Manager) failAttempt(ctx context.Context, rec *dao.LockRecord, attempt int, cause error) error {
	m.logger.Info().Err(cause).Int("attempt", attempt).Int("max", m.maxAttempts).Msg("Biometric unlock failed")
	if attempt >= m.maxAttempts {
		if err := m.toPassword(ctx, rec); err != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrTooManyAttempts, cause)
	}

	// Persist with a fresh context: a cancelled prompt must still count.
	persistCtx := context.WithoutCancel(ctx)
	if err := m.locks.SetRetryCount(persistCtx, m.name, attempt); err != nil {
		return fmt.Errorf("persist retry count: %w", err)
	}
	if err := m.locks.SetLocked(persistCtx, m.name, true); err != nil {
		return fmt.Errorf("persist lock: %w", err)
	}
	return cause
}

func (m *Manager) fallback(ctx context.Context, rec *dao.LockRecord, cause error) error {
	m.logger.Warn().Err(cause).Msg("Biometric lock unusable, falling back to password")
	if err := m.toPassword(ctx, rec); err != nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFallbackPassword, cause)
}

func (m *Manager) toPassword(ctx context.Context, rec *dao.LockRecord) error {
	ctx = context.WithoutCancel(ctx)
	rec.Mode = dao.ModePassword
	rec.EncryptedKD = nil
	rec.RetryCount = 0
	rec.Locked = true
	if err := m.locks.Put(ctx, rec); err != nil {
		return fmt.Errorf("persist password fallback: %w", err)
	}
	m.dropKey(ctx)
	return nil
}

func (m *Manager) dropKey(ctx context.Context) {
	err := m.bio.DeleteSecret(context.WithoutCancel(ctx), m.secretName)
	if err != nil && !errors.Is(err, biometrics.ErrNotFound) {
		m.logger.Warn().Err(err).Msg("Failed to delete biometrics key")
	}
}

func (m *Manager) seal(biometricsKey, offlineKD []byte) ([]byte, error) {
	k, err := crypto.LockKey(biometricsKey, m.name)
	if err != nil {
		return nil, fmt.Errorf("derive lock key: %w", err)
	}
	defer crypto.Wipe(k)
	return crypto.EncryptBlob(k, offlineKD, crypto.TagOfflineKD)
}

func (m *Manager) open(biometricsKey, sealed []byte) ([]byte, error) {
	k, err := crypto.LockKey(biometricsKey, m.name)
	if err != nil {
		return nil, fmt.Errorf("derive lock key: %w", err)
	}
	defer crypto.Wipe(k)
	return crypto.DecryptBlob(k, sealed, crypto.TagOfflineKD)
}

const verifierContext = "biovault/offline-verifier"

// newVerifier seals a random canary under a key derived from offlineKD.
// Opening it later proves a candidate offline secret is the right one.
func newVerifier(offlineKD []byte) ([]byte, error) {
	k, err := crypto.DeriveHKDF(offlineKD, verifierContext, crypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive verifier key: %w", err)
	}
	defer crypto.Wipe(k)

	canary, err := crypto.Generate(crypto.KeySize)
	if err != nil {
		return nil, fmt.Errorf("generate canary: %w", err)
	}
	return crypto.EncryptBlob(k, canary, crypto.TagVerifier)
}

func checkVerifier(offlineKD, verifier []byte) error {
	k, err := crypto.DeriveHKDF(offlineKD, verifierContext, crypto.KeySize)
	if err != nil {
		return err
	}
	defer crypto.Wipe(k)
	_, err = crypto.DecryptBlob(k, verifier, crypto.TagVerifier)
	return err
}
