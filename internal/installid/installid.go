// Package installid names the secrets that belong to one biovault
// installation, so two data directories on the same machine never share a
// biometrics key.
package installid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// MetadataKey is the metadata row holding the installation UUID.
	MetadataKey = "install_uuid"

	// SecretNamePrefix prefixes the biometrics key secret of a lock.
	SecretNamePrefix = "biovault_lock_"
)

// ErrMissing is returned when the database has no installation id yet.
var ErrMissing = errors.New("installation id not found")

// Generate returns a new random installation id.
func Generate() string {
	return uuid.NewString()
}

// FormatSecretName returns the secret key holding the biometrics key for
// the given installation id.
func FormatSecretName(id string) string {
	return SecretNamePrefix + id
}

// Get reads the installation id. The metadata table must exist.
func Get(ctx context.Context, db *sql.DB) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", MetadataKey).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrMissing
		}
		return "", fmt.Errorf("failed to query installation id: %w", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("stored installation id is malformed: %w", err)
	}
	return id, nil
}

// Ensure returns the installation id, creating one on first use. Concurrent
// callers agree on a single id.
func Ensure(ctx context.Context, db *sql.DB) (string, error) {
	id, err := Get(ctx, db)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrMissing) {
		return "", err
	}

	if _, err := db.ExecContext(ctx,
		"INSERT OR IGNORE INTO metadata (key, value) VALUES (?, ?)", MetadataKey, Generate(),
	); err != nil {
		return "", fmt.Errorf("failed to store installation id: %w", err)
	}
	return Get(ctx, db)
}
