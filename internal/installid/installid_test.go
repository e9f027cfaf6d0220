package installid

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/n1/biovault/internal/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	id1 := Generate()
	id2 := Generate()

	assert.Len(t, id1, 36)
	assert.NotEqual(t, id1, id2)
}

func TestFormatSecretName(t *testing.T) {
	assert.Equal(t,
		"biovault_lock_12345678-1234-1234-1234-123456789012",
		FormatSecretName("12345678-1234-1234-1234-123456789012"))
}

func TestEnsure(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.BootstrapLocks(ctx, db))

	_, err = Get(ctx, db)
	assert.ErrorIs(t, err, ErrMissing)

	id1, err := Ensure(ctx, db)
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	id2, err := Ensure(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "the id is stable once created")

	got, err := Get(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, id1, got)
}

func TestGetMalformed(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.BootstrapLocks(ctx, db))

	_, err = db.Exec("INSERT INTO metadata (key, value) VALUES (?, 'not-a-uuid')", MetadataKey)
	require.NoError(t, err)

	_, err = Get(ctx, db)
	assert.ErrorContains(t, err, "malformed")
}
