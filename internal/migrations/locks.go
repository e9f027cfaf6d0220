package migrations

import (
	"context"
	"database/sql"
)

// InitLockMigrations registers the schema for lock state.
func InitLockMigrations(runner *Runner) {
	runner.AddMigration(1, "Create metadata table", `
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)

	runner.AddMigration(2, "Create locks table", `
		CREATE TABLE locks (
			name TEXT PRIMARY KEY,
			mode TEXT NOT NULL CHECK (mode IN ('none', 'password', 'biometrics')),
			encrypted_kd BLOB,
			verifier BLOB,
			retry_count INTEGER NOT NULL DEFAULT 0,
			ttl_seconds INTEGER NOT NULL DEFAULT 0,
			last_extend_at TIMESTAMP,
			locked BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`)

	runner.AddMigration(3, "Create trigger for locks updated_at", `
		CREATE TRIGGER trig_locks_updated_at
		AFTER UPDATE ON locks
		BEGIN
			UPDATE locks SET updated_at = CURRENT_TIMESTAMP WHERE name = NEW.name;
		END`)
}

// BootstrapLocks brings the lock database schema up to date.
func BootstrapLocks(ctx context.Context, db *sql.DB) error {
	runner := NewRunner(db)
	InitLockMigrations(runner)
	_, err := runner.Run(ctx)
	return err
}
