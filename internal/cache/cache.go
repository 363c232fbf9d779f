// Package cache provides byte-oriented stores for pipeline stage artifacts,
// keyed by content digests so unchanged inputs are never reprocessed.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
)

// Store persists opaque artifact bytes under digest keys. A miss is
// (nil, false, nil); errors are reserved for backend failures.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, val []byte) error
}

// Key derives a hex digest from the given parts. Parts are separated by a
// NUL byte so ("ab","c") and ("a","bc") never collide.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		io.WriteString(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Verify interface compliance
var _ Store = (*Memory)(nil)

// Memory is an in-process Store for tests and single-run pipelines.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Memory) Put(_ context.Context, key string, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(val))
	copy(cp, val)
	s.m[key] = cp
	return nil
}

// Len reports the number of cached entries.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
