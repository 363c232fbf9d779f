package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Verify interface compliance
var _ Store = (*FS)(nil)

// FS is a Store backed by a directory tree. Entries are fanned out by the
// first two hex digits of the key so no single directory grows unbounded.
type FS struct {
	root string
}

func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &FS{root: root}, nil
}

func (s *FS) path(key string) string {
	fanout := "00"
	if len(key) >= 2 {
		fanout = key[:2]
	}
	return filepath.Join(s.root, fanout, key)
}

func (s *FS) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	return data, true, nil
}

// Put writes through a temp file and renames it into place so readers
// never observe a partially written entry.
func (s *FS) Put(_ context.Context, key string, val []byte) error {
	p := s.path(key)
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	if _, err := tmp.Write(val); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache entry %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit cache entry %s: %w", key, err)
	}
	return nil
}
