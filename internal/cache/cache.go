package cache

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store is an on-disk cache of grid files. Entries are immutable once
// written: Put writes to a unique temp file and renames it into place, so
// readers never observe a partial file and concurrent writers of the same
// key are idempotent (first to finish wins, later renames overwrite with
// identical bytes).
type Store struct {
	root string
}

// DefaultRoot resolves the cache root: PHOENIX_CACHE_DIR if set,
// otherwise a "phoenixgrid" directory under the user cache dir.
func DefaultRoot() (string, error) {
	if dir := os.Getenv("PHOENIX_CACHE_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cache: resolving user cache dir: %w", err)
	}
	return filepath.Join(base, "phoenixgrid"), nil
}

// NewStore opens (creating if absent) a cache rooted at root.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Open opens an existing cache entry. Missing entries surface as
// fs.ErrNotExist.
func (s *Store) Open(key string) (*os.File, error) {
	return os.Open(s.path(key))
}

// Put writes an entry atomically: temp file in the final directory, then
// rename. On any failure the temp file is removed and the cache is left
// without a partial entry.
func (s *Store) Put(key string, r io.Reader) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache: creating entry dir: %w", err)
	}

	tmp := path + "." + uuid.NewString() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cache: creating temp file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache: writing %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: closing %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache: committing %s: %w", key, err)
	}
	return nil
}

// Remove deletes one entry. Missing entries are not an error.
func (s *Store) Remove(key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: removing %s: %w", key, err)
	}
	return nil
}

// Size walks the cache and sums file sizes in bytes.
func (s *Store) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache: walking %s: %w", s.root, err)
	}
	return total, nil
}

// Clear removes every entry, leaving an empty cache root. Eviction only
// ever happens through this explicit call.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("cache: clearing %s: %w", s.root, err)
	}
	return os.MkdirAll(s.root, 0o755)
}
