// Package file keeps each key in its own file under a data directory.
// Writes go through a temp file and rename so a crash never leaves a
// half-written record behind.
package file

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/julianstephens/lockstep/internal/kv"
)

const recordExt = ".json"

type Store struct {
	fs     afero.Fs
	dir    string
	mu     sync.RWMutex
	loaded bool
}

func New(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// NewOS returns a store on the real filesystem.
func NewOS(dir string) *Store {
	return New(afero.NewOsFs(), dir)
}

func (s *Store) Init() error {
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	s.loaded = true
	return nil
}

func (s *Store) Load() error {
	info, err := s.fs.Stat(s.dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("storage not initialized, run 'lockstep init' first")
	}
	if err != nil {
		return fmt.Errorf("failed to stat data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	s.loaded = true
	return nil
}

func (s *Store) Close() error {
	s.loaded = false
	return nil
}

func (s *Store) pathFor(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+recordExt)
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	if !s.loaded {
		return "", false, kv.ErrNotLoaded
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := afero.ReadFile(s.fs, s.pathFor(key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return string(data), true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	if !s.loaded {
		return kv.ErrNotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeFileAtomic(s.fs, s.pathFor(key), []byte(value))
}

func (s *Store) Remove(_ context.Context, key string) error {
	if !s.loaded {
		return kv.ErrNotLoaded
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

func (s *Store) Location() string {
	return s.dir
}

func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := afero.TempFile(fs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer fs.Remove(tmpPath)

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	return nil
}
