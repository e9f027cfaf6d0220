package secretstore

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileStore keeps one file per secret under a private directory. It is the
// fallback on Linux hosts without a Secret Service provider and offers no
// protection beyond file permissions.
type FileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore returns a store rooted at dir on the given filesystem.
func NewFileStore(fsys afero.Fs, dir string) *FileStore {
	return &FileStore{fs: fsys, dir: dir}
}

func (f *FileStore) String() string { return "file:" + f.dir }

// Names may contain path separators, so they are encoded before becoming
// file names.
func (f *FileStore) path(name string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(name)))
}

// Put writes the value to a temporary file and renames it into place so a
// reader never observes a partial value.
func (f *FileStore) Put(n string, d []byte) error {
	if err := f.fs.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	tmp, err := afero.TempFile(f.fs, f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(d); err != nil {
		tmp.Close()
		f.fs.Remove(tmpName)
		return fmt.Errorf("failed to write secret: %w", err)
	}
	if err := tmp.Close(); err != nil {
		f.fs.Remove(tmpName)
		return fmt.Errorf("failed to close secret file: %w", err)
	}
	if err := f.fs.Chmod(tmpName, 0600); err != nil {
		f.fs.Remove(tmpName)
		return fmt.Errorf("failed to restrict secret file: %w", err)
	}
	if err := f.fs.Rename(tmpName, f.path(n)); err != nil {
		f.fs.Remove(tmpName)
		return fmt.Errorf("failed to commit secret: %w", err)
	}
	return nil
}

func (f *FileStore) Get(n string) ([]byte, error) {
	d, err := afero.ReadFile(f.fs, f.path(n))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, ErrAccessDenied
		}
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	return d, nil
}

func (f *FileStore) Delete(n string) error {
	if err := f.fs.Remove(f.path(n)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}
