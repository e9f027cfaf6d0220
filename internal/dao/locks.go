package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")
)

// Mode is the way a lock is released.
type Mode string

const (
	ModeNone       Mode = "none"
	ModePassword   Mode = "password"
	ModeBiometrics Mode = "biometrics"
)

// LockRecord is one row of the locks table.
type LockRecord struct {
	Name string
	Mode Mode
	// EncryptedKD is the offline key-derivation secret sealed under the
	// biometrics key. Empty once the lock falls back to password mode.
	EncryptedKD []byte
	// Verifier is a canary sealed under a key derived from the offline KD.
	Verifier     []byte
	RetryCount   int
	TTL          time.Duration
	LastExtendAt time.Time
	Locked       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LockDAO provides access to the locks table
type LockDAO struct {
	db *sql.DB
}

func NewLockDAO(db *sql.DB) *LockDAO {
	return &LockDAO{db: db}
}

const lockColumns = "name, mode, encrypted_kd, verifier, retry_count, ttl_seconds, last_extend_at, locked, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLock(row rowScanner) (*LockRecord, error) {
	var (
		rec        LockRecord
		ttlSeconds int64
		lastExtend sql.NullTime
	)
	err := row.Scan(&rec.Name, &rec.Mode, &rec.EncryptedKD, &rec.Verifier, &rec.RetryCount,
		&ttlSeconds, &lastExtend, &rec.Locked, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.TTL = time.Duration(ttlSeconds) * time.Second
	if lastExtend.Valid {
		rec.LastExtendAt = lastExtend.Time
	}
	return &rec, nil
}

// Get retrieves a lock by name
func (d *LockDAO) Get(ctx context.Context, name string) (*LockRecord, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+lockColumns+" FROM locks WHERE name = ?", name)
	rec, err := scanLock(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lock record: %w", err)
	}
	return rec, nil
}

// Put inserts or replaces the mutable columns of a lock in one statement.
func (d *LockDAO) Put(ctx context.Context, rec *LockRecord) error {
	var lastExtend sql.NullTime
	if !rec.LastExtendAt.IsZero() {
		lastExtend = sql.NullTime{Time: rec.LastExtendAt.UTC(), Valid: true}
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO locks (name, mode, encrypted_kd, verifier, retry_count, ttl_seconds, last_extend_at, locked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			mode = excluded.mode,
			encrypted_kd = excluded.encrypted_kd,
			verifier = excluded.verifier,
			retry_count = excluded.retry_count,
			ttl_seconds = excluded.ttl_seconds,
			last_extend_at = excluded.last_extend_at,
			locked = excluded.locked`,
		rec.Name, string(rec.Mode), rec.EncryptedKD, rec.Verifier, rec.RetryCount,
		int64(rec.TTL/time.Second), lastExtend, rec.Locked,
	)
	if err != nil {
		return fmt.Errorf("failed to put lock record: %w", err)
	}
	return nil
}

// SetRetryCount persists the retry counter without rewriting the sealed
// payload.
func (d *LockDAO) SetRetryCount(ctx context.Context, name string, count int) error {
	return d.update(ctx, "UPDATE locks SET retry_count = ? WHERE name = ?", count, name)
}

// SetLocked flips the locked flag.
func (d *LockDAO) SetLocked(ctx context.Context, name string, locked bool) error {
	return d.update(ctx, "UPDATE locks SET locked = ? WHERE name = ?", locked, name)
}

// Extend records activity, restarting the TTL window.
func (d *LockDAO) Extend(ctx context.Context, name string, at time.Time) error {
	return d.update(ctx, "UPDATE locks SET last_extend_at = ? WHERE name = ?", at.UTC(), name)
}

func (d *LockDAO) update(ctx context.Context, query string, args ...any) error {
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update lock record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a lock by name
func (d *LockDAO) Delete(ctx context.Context, name string) error {
	return d.update(ctx, "DELETE FROM locks WHERE name = ?", name)
}

// List returns every lock ordered by name
func (d *LockDAO) List(ctx context.Context) ([]*LockRecord, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT "+lockColumns+" FROM locks ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query locks: %w", err)
	}
	defer rows.Close()

	var out []*LockRecord
	for rows.Next() {
		rec, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lock: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locks: %w", err)
	}
	return out, nil
}
