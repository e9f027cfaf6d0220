package secretstore

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeContract exercises the behaviour every Store must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	const name = "pass/offline-kd"

	t.Run("RoundTrip", func(t *testing.T) {
		require.NoError(t, s.Put(name, []byte("hunter2")))
		got, err := s.Get(name)
		require.NoError(t, err)
		assert.Equal(t, []byte("hunter2"), got)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, s.Put(name, []byte("first")))
		require.NoError(t, s.Put(name, []byte("second")))
		got, err := s.Get(name)
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("EmptyValue", func(t *testing.T) {
		require.NoError(t, s.Put("empty", []byte{}))
		got, err := s.Get("empty")
		require.NoError(t, err)
		assert.Empty(t, got)
		require.NoError(t, s.Delete("empty"))
	})

	t.Run("BinaryValue", func(t *testing.T) {
		value := []byte{0x00, 0xff, 0x10, 0x00, 0x7f}
		require.NoError(t, s.Put("binary", value))
		got, err := s.Get("binary")
		require.NoError(t, err)
		assert.Equal(t, value, got)
		require.NoError(t, s.Delete("binary"))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Put(name, []byte("x")))
		require.NoError(t, s.Delete(name))
		_, err := s.Get(name)
		assert.ErrorIs(t, err, ErrNotFound, "expected miss after delete")
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		assert.ErrorIs(t, s.Delete("never-written"), ErrNotFound)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get("never-written")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestMemoryStoreCopies(t *testing.T) {
	m := NewMemory()
	value := []byte("abc")
	require.NoError(t, m.Put("k", value))
	value[0] = 'x'

	got, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[0] = 'y'
	again, err := m.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
	assert.Equal(t, 1, m.Len())
}

func TestFileStore(t *testing.T) {
	storeContract(t, NewFileStore(afero.NewMemMapFs(), "/data/secrets/biovault"))
}

func TestFileStoreLayout(t *testing.T) {
	fsys := afero.NewMemMapFs()
	s := NewFileStore(fsys, "/data/secrets")
	require.NoError(t, s.Put("a/b", []byte("v")))

	entries, err := afero.ReadDir(fsys, "/data/secrets")
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.NotContains(t, entries[0].Name(), "/")
	assert.Equal(t, "YS9i", entries[0].Name())
}

func TestFileStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	storeContract(t, NewFileStore(afero.NewOsFs(), dir))
}
