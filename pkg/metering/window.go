// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metering

import (
	"context"
	"sync"
	"time"
)

// WindowStore tracks which (ad, fingerprint, kind) keys have already been
// counted inside the rolling dedup window. SeenAndRecord must be atomic:
// two concurrent calls with the same key must not both return false.
// Forget releases a key recorded for an event that could not be persisted,
// so the interaction can count when it is retried.
type WindowStore interface {
	SeenAndRecord(ctx context.Context, key string, window time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// MemoryWindowStore is an in-memory WindowStore with lazy expiry
type MemoryWindowStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryWindowStore creates an empty in-memory window store
func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// SeenAndRecord atomically checks whether key was recorded within the
// window and records it if not. Returns true if the key was already seen.
func (s *MemoryWindowStore) SeenAndRecord(ctx context.Context, key string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if at, ok := s.seen[key]; ok && now.Sub(at) < window {
		return true, nil
	}
	s.seen[key] = now

	// Opportunistic sweep keeps the map from growing without bound
	if len(s.seen)%4096 == 0 {
		for k, at := range s.seen {
			if now.Sub(at) >= window {
				delete(s.seen, k)
			}
		}
	}

	return false, nil
}

// Forget drops a recorded key so the next event with it counts again
func (s *MemoryWindowStore) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
	return nil
}
