// Package local stores documents as files under a scratch directory.
//
// This is the backend for running the service on a laptop or under a local
// function emulator: each key becomes a file name, e.g.
// /tmp/2024-01-01-microrager.json.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sakif/microrager/internal/apperror"
	"github.com/sakif/microrager/internal/blobstore"
)

var _ blobstore.Store = (*Store)(nil)

// Store reads and writes files relative to Dir.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir. The directory is created lazily on first Put.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(key))
}

// Get returns the file contents, or NotFound when the file does not exist.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Store(fmt.Sprintf("local: reading %s", key), err)
	}

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.NotFound(key)
		}
		return nil, apperror.Store(fmt.Sprintf("local: reading %s", key), err)
	}
	return data, nil
}

// Put writes data to the key's file, creating parent directories (mkdir -p).
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return apperror.Store(fmt.Sprintf("local: writing %s", key), err)
	}

	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return apperror.Store(fmt.Sprintf("local: creating directory for %s", key), err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return apperror.Store(fmt.Sprintf("local: writing %s", key), err)
	}
	return nil
}
